// Package testutil provides testing utilities for zlog.
//
// This package is intended for use in tests and benchmarks only.
//
// # Random Payloads
//
//	rng := testutil.NewRNG(seed)
//	data := rng.Payload(128)
//	stream := rng.Zipf(16, 1.5) // skewed stream selection
//
// # In-Process Cluster
//
//	h := testutil.NewHarness()
//	cluster := zlog.Cluster{
//	    Backend:     h.Backend,
//	    Projections: h.Projections,
//	    Sequencer:   h.Sequencer,
//	}
package testutil
