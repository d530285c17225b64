package bench

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/zlog/internal/resource"
	"github.com/hupe1980/zlog/testutil"
)

// Defaults applied by Config.normalize.
const (
	DefaultQueueDepth     = 1
	DefaultIOSize         = 1024
	DefaultReportInterval = 5 * time.Second
	payloadPoolSize       = 16
)

// Config controls a benchmark run.
type Config struct {
	// QueueDepth is the number of operations kept in flight.
	QueueDepth int
	// IOSize is the payload size in bytes.
	IOSize int
	// Duration bounds the run. Zero runs until the context is done.
	Duration time.Duration
	// OpsPerSec caps the operation rate. Zero is unlimited.
	OpsPerSec float64
	// ReportInterval is the period between progress reports.
	ReportInterval time.Duration
	// Seed seeds the payload generator.
	Seed int64
	// MaxOps stops the run after this many operations. Zero is unlimited.
	MaxOps uint64
}

func (c *Config) normalize() {
	if c.QueueDepth <= 0 {
		c.QueueDepth = DefaultQueueDepth
	}
	if c.IOSize <= 0 {
		c.IOSize = DefaultIOSize
	}
	if c.ReportInterval <= 0 {
		c.ReportInterval = DefaultReportInterval
	}
}

// Report summarizes a run so far.
type Report struct {
	Workload  string
	Elapsed   time.Duration
	Ops       uint64
	Bytes     uint64
	Errors    uint64
	OpsPerSec float64
}

// Observer is called after every operation.
type Observer func(workload string, bytes int, err error)

// Runner drives a workload.
type Runner struct {
	cfg      Config
	workload Workload
	ctrl     *resource.Controller
	payloads [][]byte

	onReport func(Report)
	observer Observer

	next   atomic.Uint64
	ops    atomic.Uint64
	bytes  atomic.Uint64
	errors atomic.Uint64
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithReporter sets the callback receiving periodic progress reports.
func WithReporter(fn func(Report)) RunnerOption {
	return func(r *Runner) {
		r.onReport = fn
	}
}

// WithObserver sets the per-operation callback.
func WithObserver(fn Observer) RunnerOption {
	return func(r *Runner) {
		r.observer = fn
	}
}

// NewRunner returns a runner for w.
func NewRunner(w Workload, cfg Config, opts ...RunnerOption) *Runner {
	cfg.normalize()

	r := &Runner{
		cfg:      cfg,
		workload: w,
		ctrl: resource.NewController(resource.Config{
			MaxInFlight: int64(cfg.QueueDepth),
			OpsPerSec:   cfg.OpsPerSec,
		}),
		payloads: testutil.NewRNG(cfg.Seed).Payloads(payloadPoolSize, cfg.IOSize),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the workload until the duration elapses, MaxOps is reached
// or ctx is done, and returns the final report. Failed operations are
// counted, not returned.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	if r.cfg.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Duration)
		defer cancel()
	}

	start := time.Now()
	done := make(chan struct{})
	reported := make(chan struct{})
	go func() {
		defer close(reported)
		r.report(start, done)
	}()

	g, gctx := errgroup.WithContext(ctx)
	for range r.cfg.QueueDepth {
		g.Go(func() error {
			return r.worker(gctx)
		})
	}
	err := g.Wait()

	close(done)
	<-reported

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		err = nil
	}
	return r.snapshot(start), err
}

func (r *Runner) worker(ctx context.Context) error {
	for {
		if err := r.ctrl.AcquireOp(ctx); err != nil {
			return err
		}

		seq := r.next.Add(1) - 1
		if r.cfg.MaxOps > 0 && seq >= r.cfg.MaxOps {
			r.ctrl.ReleaseOp()
			return nil
		}

		data := r.payloads[seq%uint64(len(r.payloads))]
		err := r.workload.Op(ctx, seq, data)
		r.ctrl.ReleaseOp()

		if err != nil && ctx.Err() != nil {
			// Interrupted by the end of the run.
			return ctx.Err()
		}

		r.ops.Add(1)
		if err != nil {
			r.errors.Add(1)
		} else {
			r.bytes.Add(uint64(len(data)))
		}
		if r.observer != nil {
			r.observer(r.workload.Name(), len(data), err)
		}
	}
}

func (r *Runner) report(start time.Time, done <-chan struct{}) {
	if r.onReport == nil {
		return
	}

	ticker := time.NewTicker(r.cfg.ReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			r.onReport(r.snapshot(start))
		}
	}
}

func (r *Runner) snapshot(start time.Time) Report {
	elapsed := time.Since(start)
	rep := Report{
		Workload: r.workload.Name(),
		Elapsed:  elapsed,
		Ops:      r.ops.Load(),
		Bytes:    r.bytes.Load(),
		Errors:   r.errors.Load(),
	}
	if secs := elapsed.Seconds(); secs > 0 {
		rep.OpsPerSec = float64(rep.Ops) / secs
	}
	return rep
}

// InFlight returns the number of operations currently executing.
func (r *Runner) InFlight() int64 {
	return r.ctrl.InFlight()
}
