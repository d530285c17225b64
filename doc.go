// Package zlog provides a distributed shared log.
//
// A log is a totally ordered, append-only sequence of entries striped across
// the objects of a storage backend. A sequencer hands out positions; every
// write is tagged with the epoch of the writer's projection, so a
// reconfiguration can fence writers that still use the previous layout.
// Named streams are multiplexed in the single log: each entry records, per
// stream, the positions previously handed out to that stream.
//
// # Quick Start
//
//	cluster := zlog.Cluster{
//	    Backend:     backend.NewMemoryBackend(),
//	    Projections: blobstore.NewMemoryStore(),
//	    Sequencer:   sequencer.New(),
//	}
//	l, _ := zlog.OpenOrCreate(ctx, cluster, "orders", 4)
//	pos, _ := l.Append(ctx, []byte("hello"))
//	data, _ := l.Read(ctx, pos)
//
// # Streams
//
//	s := l.OpenStream(7)
//	s.Append(ctx, []byte("a"))
//	s.Sync(ctx) // discover positions written to stream 7
//	for {
//	    pos, data, err := s.ReadNext(ctx)
//	    if errors.Is(err, zlog.ErrExhausted) {
//	        break
//	    }
//	    // ...
//	}
//
// Sync scans the log backwards from the stream's tail to the highest
// position it already knows. Positions that were reserved but never written
// (a writer crashed or lost a reconfiguration race) are filled so they are
// resolved for every reader.
//
// # Reconfiguration
//
// Reconfigure seals the log's objects at a new epoch, moves the sequencer
// past the highest written position and commits a projection with a new
// stripe. Appends that race it are rejected with a stale epoch, refresh the
// projection and retry with a fresh position.
package zlog
