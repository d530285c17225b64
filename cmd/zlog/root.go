package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/hupe1980/zlog"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "zlog",
		Short:         "Shared log tool",
		Long:          "zlog creates, inspects, appends to and benchmarks shared logs striped over a storage backend.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	registerFlags(root.PersistentFlags())

	root.AddCommand(
		newCreateCommand(),
		newAppendCommand(),
		newReadCommand(),
		newTailCommand(),
		newFillCommand(),
		newTrimCommand(),
		newReconfigureCommand(),
		newInfoCommand(),
		newBenchCommand(),
	)
	return root
}

// runEnv resolves the config, opens the services and runs fn.
func runEnv(cmd *cobra.Command, fn func(ctx context.Context, e *env) error) (err error) {
	cfg, err := resolveConfig(cmd.Flags())
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	e, err := openEnv(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, e.Close())
	}()
	return fn(ctx, e)
}

// runLog opens the log named name and runs fn.
func runLog(cmd *cobra.Command, name string, fn func(ctx context.Context, l *zlog.Log) error) error {
	return runEnv(cmd, func(ctx context.Context, e *env) (err error) {
		l, err := e.openLog(ctx, name)
		if err != nil {
			return err
		}
		defer func() {
			err = multierr.Append(err, l.Close())
		}()
		return fn(ctx, l)
	})
}

func parsePosition(s string) (uint64, error) {
	pos, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid position %q", s)
	}
	return pos, nil
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
