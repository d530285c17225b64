package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hupe1980/zlog"
)

const defaultWidth = 10

func newCreateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			width, _ := cmd.Flags().GetUint32("width")
			return runEnv(cmd, func(ctx context.Context, e *env) error {
				l, err := e.createLog(ctx, args[0], width)
				if err != nil {
					return err
				}
				printf(cmd.OutOrStdout(), "created %s (epoch %d, width %d)\n", l.Name(), l.Epoch(), width)
				return l.Close()
			})
		},
	}
	cmd.Flags().Uint32("width", defaultWidth, "number of objects entries are striped over")
	return cmd
}

func newAppendCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "append NAME [DATA...]",
		Short: "Append entries; without DATA the whole of stdin is one entry",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			streams, _ := cmd.Flags().GetUintSlice("stream")
			ids := make([]uint64, len(streams))
			for i, id := range streams {
				ids[i] = uint64(id)
			}

			var entries [][]byte
			for _, a := range args[1:] {
				entries = append(entries, []byte(a))
			}
			if len(entries) == 0 {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				entries = append(entries, data)
			}

			return runLog(cmd, args[0], func(ctx context.Context, l *zlog.Log) error {
				for _, data := range entries {
					pos, err := l.MultiAppend(ctx, data, ids)
					if err != nil {
						return err
					}
					printf(cmd.OutOrStdout(), "%d\n", pos)
				}
				return nil
			})
		},
	}
	cmd.Flags().UintSlice("stream", nil, "stream ids the entries belong to")
	return cmd
}

func newReadCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read NAME POSITION...",
		Short: "Read entries",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, _ := cmd.Flags().GetBool("raw")

			positions := make([]uint64, 0, len(args)-1)
			for _, a := range args[1:] {
				pos, err := parsePosition(a)
				if err != nil {
					return err
				}
				positions = append(positions, pos)
			}

			return runLog(cmd, args[0], func(ctx context.Context, l *zlog.Log) error {
				out := cmd.OutOrStdout()
				for _, pos := range positions {
					entry, err := l.ReadEntry(ctx, pos)
					switch {
					case errors.Is(err, zlog.ErrNotWritten):
						printf(out, "%d\tnot written\n", pos)
						continue
					case errors.Is(err, zlog.ErrInvalidated):
						printf(out, "%d\tinvalidated\n", pos)
						continue
					case err != nil:
						return fmt.Errorf("position %d: %w", pos, err)
					}

					if raw {
						_, _ = out.Write(entry.Payload)
						continue
					}
					printf(out, "%d\t%s\t%q\n", pos, formatStreams(entry.Streams), entry.Payload)
				}
				return nil
			})
		},
	}
	cmd.Flags().Bool("raw", false, "write payloads only")
	return cmd
}

func formatStreams(streams map[uint64][]uint64) string {
	if len(streams) == 0 {
		return "-"
	}
	ids := slices.Sorted(maps.Keys(streams))
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(id, 10)
	}
	return strings.Join(parts, ",")
}

func newTailCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tail NAME",
		Short: "Print the next position to be assigned",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(cmd, args[0], func(ctx context.Context, l *zlog.Log) error {
				tail, err := l.CheckTail(ctx)
				if err != nil {
					return err
				}
				printf(cmd.OutOrStdout(), "%d\n", tail)
				return nil
			})
		},
	}
}

func newTombstoneCommand(use, short string, op func(*zlog.Log, context.Context, uint64) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " NAME POSITION",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pos, err := parsePosition(args[1])
			if err != nil {
				return err
			}
			return runLog(cmd, args[0], func(ctx context.Context, l *zlog.Log) error {
				return op(l, ctx, pos)
			})
		},
	}
}

func newFillCommand() *cobra.Command {
	return newTombstoneCommand("fill", "Invalidate an unwritten position", (*zlog.Log).Fill)
}

func newTrimCommand() *cobra.Command {
	return newTombstoneCommand("trim", "Invalidate a position whatever it holds", (*zlog.Log).Trim)
}

func newReconfigureCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconfigure NAME",
		Short: "Seal the current epoch and open a stripe with a new width",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			width, _ := cmd.Flags().GetUint32("width")
			return runLog(cmd, args[0], func(ctx context.Context, l *zlog.Log) error {
				p, err := l.Reconfigure(ctx, width)
				if err != nil {
					return err
				}
				latest := p.Stripes[len(p.Stripes)-1]
				printf(cmd.OutOrStdout(), "epoch %d: width %d from position %d\n", p.Epoch, latest.Width, latest.Start)
				return nil
			})
		},
	}
	cmd.Flags().Uint32("width", defaultWidth, "width of the new stripe")
	return cmd
}

func newInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info NAME",
		Short: "Describe a log's projection and tail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(cmd, args[0], func(ctx context.Context, l *zlog.Log) error {
				tail, err := l.CheckTail(ctx)
				if err != nil {
					return err
				}
				p := l.Projection()

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				printf(tw, "log:\t%s\n", p.LogName)
				printf(tw, "epoch:\t%d\n", p.Epoch)
				printf(tw, "created:\t%s\n", humanize.Time(p.CreatedAt))
				printf(tw, "tail:\t%s\n", humanize.Comma(int64(tail)))
				printf(tw, "objects:\t%d\n", len(l.Objects()))
				printf(tw, "\nEPOCH\tSTART\tWIDTH\n")
				for _, s := range p.Stripes {
					printf(tw, "%d\t%d\t%d\n", s.Epoch, s.Start, s.Width)
				}
				return tw.Flush()
			})
		},
	}
}
