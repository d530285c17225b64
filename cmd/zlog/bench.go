package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/hupe1980/zlog"
	"github.com/hupe1980/zlog/bench"
	zlogprom "github.com/hupe1980/zlog/metrics/prometheus"
)

type benchFlags struct {
	workload    string
	logName     string
	prefix      string
	width       int
	streams     int
	verify      bool
	metricsAddr string
	cfg         bench.Config
}

func newBenchCommand() *cobra.Command {
	var f benchFlags

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure append throughput",
		Long: `Runs a write workload and prints throughput every report interval.

Workloads: log_append, map_n1, map_11, bytestream_11, bytestream_n1_write,
bytestream_n1_append. The object workloads need a backend offering
key-value maps or byte objects.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if f.logName == "" {
				f.logName = uuid.NewString() + ".log"
			}
			if f.prefix == "" {
				f.prefix = f.logName + "."
			}
			return runEnv(cmd, func(ctx context.Context, e *env) error {
				return runBench(ctx, cmd.OutOrStdout(), e, f)
			})
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&f.workload, "workload", bench.WorkloadLogAppend, "workload to run")
	fs.StringVar(&f.logName, "logname", "", "log to create (default random)")
	fs.StringVar(&f.prefix, "prefix", "", "object id prefix of object workloads (default log name)")
	fs.IntVar(&f.width, "width", defaultWidth, "stripe width")
	fs.IntVar(&f.streams, "streams", 0, "spread log_append entries over this many streams")
	fs.BoolVar(&f.verify, "verify", false, "read back every log_append entry")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	fs.IntVar(&f.cfg.QueueDepth, "qdepth", 1, "operations in flight")
	fs.IntVar(&f.cfg.IOSize, "iosize", bench.DefaultIOSize, "entry size in bytes")
	fs.DurationVar(&f.cfg.Duration, "duration", 0, "run time (default until interrupted)")
	fs.Float64Var(&f.cfg.OpsPerSec, "rate", 0, "operations per second (default unlimited)")
	fs.DurationVar(&f.cfg.ReportInterval, "report-interval", bench.DefaultReportInterval, "progress report period")
	fs.Uint64Var(&f.cfg.MaxOps, "max-ops", 0, "stop after this many operations")
	fs.Int64Var(&f.cfg.Seed, "seed", 1, "payload generator seed")
	return cmd
}

func runBench(ctx context.Context, out io.Writer, e *env, f benchFlags) (err error) {
	reg := prometheus.NewRegistry()
	collector, err := zlogprom.NewCollector(reg)
	if err != nil {
		return err
	}

	if f.metricsAddr != "" {
		srv := &http.Server{
			Addr:              f.metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if serr := srv.ListenAndServe(); serr != nil && !errors.Is(serr, http.ErrServerClosed) {
				e.logger.Error("metrics server", "addr", f.metricsAddr, "error", serr)
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err = multierr.Append(err, srv.Shutdown(sctx))
		}()
	}

	wcfg := bench.WorkloadConfig{
		Name:    f.workload,
		Prefix:  f.prefix,
		Width:   f.width,
		Backend: e.backend,
		Streams: f.streams,
		Verify:  f.verify,
	}
	if f.workload == bench.WorkloadLogAppend {
		l, cerr := e.createLog(ctx, f.logName, uint32(f.width), zlog.WithMetricsCollector(collector))
		if cerr != nil {
			return cerr
		}
		defer func() {
			err = multierr.Append(err, l.Close())
		}()
		wcfg.Log = l
	}

	w, err := bench.NewWorkload(wcfg)
	if err != nil {
		return err
	}

	printf(out, "workload %s: qdepth %d, iosize %s, width %d\n",
		w.Name(), f.cfg.QueueDepth, humanize.IBytes(uint64(max(f.cfg.IOSize, 0))), f.width)

	runner := bench.NewRunner(w, f.cfg,
		bench.WithObserver(collector.RecordBenchOp),
		bench.WithReporter(func(r bench.Report) {
			printf(out, "%s\n", formatReport(r))
		}),
	)
	rep, err := runner.Run(ctx)
	if err != nil {
		return err
	}
	printf(out, "total: %s\n", formatReport(rep))
	return nil
}

func formatReport(r bench.Report) string {
	var throughput uint64
	if secs := r.Elapsed.Seconds(); secs > 0 {
		throughput = uint64(float64(r.Bytes) / secs)
	}
	return fmt.Sprintf("%s elapsed, %s ops, %s ops/s, %s/s, %s errors",
		r.Elapsed.Truncate(time.Millisecond),
		humanize.Comma(int64(r.Ops)),
		humanize.CommafWithDigits(r.OpsPerSec, 1),
		humanize.IBytes(throughput),
		humanize.Comma(int64(r.Errors)))
}
