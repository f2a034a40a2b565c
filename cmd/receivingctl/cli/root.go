package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/noven-pro/receiving/internal/platform/db"
	"github.com/noven-pro/receiving/internal/receiving"
	"github.com/noven-pro/receiving/jobs"
)

// Execute runs the root command.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type options struct {
	redisAddr string
	pgDSN     string
	timeout   time.Duration
}

// NewRootCommand builds the command tree. Flags default to the service
// environment so the tool works next to a deployed instance.
func NewRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "receivingctl",
		Short:         "Operate the delivery receiving service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.redisAddr, "redis-addr", os.Getenv("REDIS_ADDR"), "redis address of the job queue")
	root.PersistentFlags().StringVar(&opts.pgDSN, "pg-dsn", os.Getenv("PG_DSN"), "postgres DSN of the delivery store")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "overall command timeout")

	root.AddCommand(
		newHandoffCommand(opts, nil),
		newCleanupCommand(opts),
		newQueueCommand(opts),
	)
	return root
}

// readerFactory opens the delivery store; tests swap it for an in-memory engine.
type readerFactory func(ctx context.Context, dsn string) (jobs.DeliveryReader, func(), error)

func postgresReader(ctx context.Context, dsn string) (jobs.DeliveryReader, func(), error) {
	if dsn == "" {
		return nil, nil, fmt.Errorf("--pg-dsn or PG_DSN is required")
	}
	pool, err := db.New(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	svc := receiving.NewService(receiving.NewRepository(pool), receiving.Dependencies{}, receiving.ServiceConfig{})
	return svc, pool.Close, nil
}

func newHandoffCommand(opts *options, open readerFactory) *cobra.Command {
	if open == nil {
		open = postgresReader
	}
	return &cobra.Command{
		Use:   "handoff DELIVERY_ID",
		Short: "Re-enqueue the quality check hand-off of a delivery",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid delivery id %q: %w", args[0], err)
			}
			if err := requireRedis(opts); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			reader, closeReader, err := open(ctx, opts.pgDSN)
			if err != nil {
				return err
			}
			defer closeReader()

			c := NewJobsCLI(opts.redisAddr)
			defer c.Close()
			info, err := c.RedriveHandoff(ctx, reader, id)
			if err != nil {
				return err
			}
			if info == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "hand-off for %s already queued\n", id)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s (%s)\n", info.ID, info.Queue)
			return nil
		},
	}
}

func newCleanupCommand(opts *options) *cobra.Command {
	var retentionHours int
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Purge expired idempotency keys now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireRedis(opts); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			c := NewJobsCLI(opts.redisAddr)
			defer c.Close()
			info, err := c.TriggerCleanup(ctx, retentionHours)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s (%s)\n", info.ID, info.Queue)
			return nil
		},
	}
	cmd.Flags().IntVar(&retentionHours, "retention-hours", 0, "keep keys younger than this (default 168)")
	return cmd
}

func newQueueCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "Print job queue statistics as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireRedis(opts); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			c := NewJobsCLI(opts.redisAddr)
			defer c.Close()
			stats, err := c.InspectQueue(ctx)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), stats)
		},
	}
}

func requireRedis(opts *options) error {
	if opts.redisAddr == "" {
		return fmt.Errorf("--redis-addr or REDIS_ADDR is required")
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
