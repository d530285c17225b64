// Package bench measures write throughput of backends and logs.
//
// Object-level workloads compare storage layouts for log entries:
//
//   - map_n1: entries striped over width objects as keys of a key-value map
//   - map_11: one object per entry holding a single key
//   - bytestream_11: one object per entry written in full
//   - bytestream_n1_write: entries written at fixed offsets of width objects
//   - bytestream_n1_append: entries appended to width objects
//
// The log_append workload appends through a zlog.Log, optionally tagging
// entries with streams and reading each one back.
//
// A Runner keeps a fixed number of operations in flight, optionally rate
// limited, and reports progress periodically:
//
//	w, _ := bench.NewWorkload(bench.WorkloadConfig{Name: bench.WorkloadMapN1, Width: 10, Backend: be})
//	rep, err := bench.NewRunner(w, bench.Config{QueueDepth: 8, Duration: 10 * time.Second}).Run(ctx)
package bench
