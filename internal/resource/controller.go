package resource

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrMemoryLimitExceeded is returned when memory limit would be exceeded.
var ErrMemoryLimitExceeded = errors.New("memory limit exceeded")

// Config holds resource limits.
type Config struct {
	// MemoryLimitBytes is the hard limit for managed memory (entry caches).
	// If 0, no hard limit is enforced (only tracking).
	MemoryLimitBytes int64

	// MaxInFlight is the maximum number of concurrent operations.
	// If 0, defaults to 1.
	MaxInFlight int64

	// OpsPerSec caps the operation start rate.
	// If 0, unlimited.
	OpsPerSec float64
}

// Controller manages shared resources (memory, in-flight operations, rate).
type Controller struct {
	cfg Config

	// Memory
	memSem  *semaphore.Weighted // nil if unlimited
	memUsed atomic.Int64

	// Concurrency
	opSem    *semaphore.Weighted
	inFlight atomic.Int64

	// Rate
	limiter *rate.Limiter
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 1
	}

	c := &Controller{
		cfg:   cfg,
		opSem: semaphore.NewWeighted(cfg.MaxInFlight),
	}

	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}

	if cfg.OpsPerSec > 0 {
		burst := int(cfg.OpsPerSec)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.OpsPerSec), burst)
	}

	return c
}

// AcquireMemory reserves memory, blocking until it is available or ctx is done.
func (c *Controller) AcquireMemory(ctx context.Context, bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}
	if c.memSem != nil {
		if bytes > c.cfg.MemoryLimitBytes {
			return ErrMemoryLimitExceeded
		}
		if err := c.memSem.Acquire(ctx, bytes); err != nil {
			return err
		}
	}
	c.memUsed.Add(bytes)
	return nil
}

// TryAcquireMemory reserves memory without blocking.
func (c *Controller) TryAcquireMemory(bytes int64) bool {
	if c == nil || bytes <= 0 {
		return true
	}
	if c.memSem != nil && !c.memSem.TryAcquire(bytes) {
		return false
	}
	c.memUsed.Add(bytes)
	return true
}

// ReleaseMemory releases reserved memory.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}
	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

// MemoryUsage returns the current memory usage in bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// MemoryLimit returns the configured memory limit in bytes (0 if unlimited).
func (c *Controller) MemoryLimit() int64 {
	if c == nil {
		return 0
	}
	return c.cfg.MemoryLimitBytes
}

// AcquireOp waits for the rate limiter and an in-flight slot.
func (c *Controller) AcquireOp(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	if err := c.opSem.Acquire(ctx, 1); err != nil {
		return err
	}
	c.inFlight.Add(1)
	return nil
}

// TryAcquireOp takes an in-flight slot and a rate token without blocking.
func (c *Controller) TryAcquireOp() bool {
	if c == nil {
		return true
	}
	if !c.opSem.TryAcquire(1) {
		return false
	}
	if c.limiter != nil && !c.limiter.AllowN(time.Now(), 1) {
		c.opSem.Release(1)
		return false
	}
	c.inFlight.Add(1)
	return true
}

// ReleaseOp releases an in-flight slot.
func (c *Controller) ReleaseOp() {
	if c == nil {
		return
	}
	c.inFlight.Add(-1)
	c.opSem.Release(1)
}

// InFlight returns the number of operations holding a slot.
func (c *Controller) InFlight() int64 {
	if c == nil {
		return 0
	}
	return c.inFlight.Load()
}
