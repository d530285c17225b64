// Package resource implements the Controller for shared limits.
//
// The Controller manages three resource types:
//
//   - Memory: track and limit bytes held by entry caches
//   - In-flight operations: bound the queue depth of load generators
//   - Rate: cap how fast new operations start (token bucket)
//
// # Memory Management
//
// TryAcquireMemory is non-blocking and lets caches skip an insert when the
// limit is reached. AcquireMemory blocks until memory is released:
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes: 64 << 20,
//	})
//
//	if !rc.TryAcquireMemory(int64(len(entry))) {
//	    return // don't cache
//	}
//	defer rc.ReleaseMemory(int64(len(entry)))
//
// # In-flight Limits and Rate
//
//	rc := resource.NewController(resource.Config{
//	    MaxInFlight: 64,
//	    OpsPerSec:   5000,
//	})
//
//	if err := rc.AcquireOp(ctx); err != nil {
//	    return err
//	}
//	go func() {
//	    defer rc.ReleaseOp()
//	    // ...
//	}()
//
// # Nil Safety
//
// All methods handle nil Controller gracefully - they become no-ops.
package resource
