// Command adminctl is the operator CLI for the pipeline (spec.md §6):
// inspecting and manipulating job queues, and inspecting or
// force-transitioning meeting records. Every subcommand exits 0 on
// success and 1 on an invalid argument or a runtime failure, the same
// convention cobra's own RunE error path gives us for free.
package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jonchurch/gnv-city-meetings/internal/config"
	"github.com/jonchurch/gnv-city-meetings/internal/meeting"
	"github.com/jonchurch/gnv-city-meetings/internal/orchestrator"
	"github.com/jonchurch/gnv-city-meetings/internal/queue"
	"github.com/jonchurch/gnv-city-meetings/internal/state"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "adminctl",
		Short: "Operator CLI for the city meetings pipeline",
	}

	root.AddCommand(
		newListCmd(),
		newStatsCmd(),
		newAddCmd(),
		newRetryCmd(),
		newRemoveCmd(),
		newCleanCmd(),
		newClearCmd(),
		newMeetingCmd(),
		newRestartCmd(),
		newSetStateCmd(),
		newMigrateCmd(),
	)
	return root
}

func newAdmin() (*queue.Admin, func()) {
	common := config.LoadCommon()
	a := queue.NewAdmin(common.RedisAddr)
	return a, func() { a.Close() }
}

func openStore(ctx context.Context) (*state.Store, func(), error) {
	common := config.LoadCommon()
	store, err := state.Open(common.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	if err := store.Ping(ctx); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("pinging database: %w", err)
	}
	return store, func() { store.Close() }, nil
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <queue> [state] [limit]",
		Short: "List jobs on a queue, optionally filtered by state",
		Args:  cobra.RangeArgs(1, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := args[0]
			jobState := "waiting"
			if len(args) > 1 {
				jobState = args[1]
			}
			limit := -1
			if len(args) > 2 {
				n, err := parseInt(args[2])
				if err != nil {
					return fmt.Errorf("invalid limit %q: %w", args[2], err)
				}
				limit = n
			}

			a, closeFn := newAdmin()
			defer closeFn()

			jobs, err := a.List(q, jobState)
			if err != nil {
				return err
			}
			if limit >= 0 && limit < len(jobs) {
				jobs = jobs[:limit]
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tMEETING\tSTATE\tRETRIED\tLAST ERROR")
			for _, j := range jobs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%s\n", j.ID, j.MeetingID, j.State, j.Retried, j.MaxRetry, j.LastErr)
			}
			return tw.Flush()
		},
	}
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <queue>",
		Short: "Show job counts by state for a queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeFn := newAdmin()
			defer closeFn()

			info, err := a.Stats(args[0])
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "waiting\t%d\n", info.Pending)
			fmt.Fprintf(tw, "active\t%d\n", info.Active)
			fmt.Fprintf(tw, "scheduled\t%d\n", info.Scheduled)
			fmt.Fprintf(tw, "retry\t%d\n", info.Retry)
			fmt.Fprintf(tw, "archived\t%d\n", info.Archived)
			fmt.Fprintf(tw, "completed\t%d\n", info.Completed)
			return tw.Flush()
		},
	}
}

func newAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <queue> <meetingId>",
		Short: "Enqueue a job for a meeting directly",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			common := config.LoadCommon()
			producer := queue.NewProducer(common.RedisAddr, discardLogger())
			defer producer.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return producer.Enqueue(ctx, args[0], args[1])
		},
	}
}

func newRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <queue> <jobId>",
		Short: "Retry a failed or archived job",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeFn := newAdmin()
			defer closeFn()
			return a.Retry(args[0], args[1])
		},
	}
}

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <queue> <jobId>",
		Short: "Remove a single job in any state except active",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeFn := newAdmin()
			defer closeFn()
			return a.Remove(args[0], args[1])
		},
	}
}

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean <queue> <state>",
		Short: "Delete every completed or failed job in the named state",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeFn := newAdmin()
			defer closeFn()
			return a.Clean(args[0], args[1])
		},
	}
}

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear <queue> <state>",
		Short: "Remove every job from a queue in the named state",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeFn := newAdmin()
			defer closeFn()
			return a.Clear(args[0], args[1])
		},
	}
}

func newMeetingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "meeting <meetingId>",
		Short: "Show a meeting's full record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			store, closeFn, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			m, err := store.GetMeeting(ctx, args[0])
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "ID\t%s\n", m.ID)
			fmt.Fprintf(tw, "Title\t%s\n", m.Title)
			fmt.Fprintf(tw, "Phase\t%s\n", m.Phase)
			fmt.Fprintf(tw, "Date\t%s\n", m.Date.Format(time.RFC3339))
			fmt.Fprintf(tw, "SourceURL\t%s\n", m.SourceURL)
			fmt.Fprintf(tw, "RawVideoPath\t%s\n", m.RawVideoPath)
			fmt.Fprintf(tw, "DerivedChaptersPath\t%s\n", m.DerivedChaptersPath)
			fmt.Fprintf(tw, "DerivedMetadataPath\t%s\n", m.DerivedMetadataPath)
			fmt.Fprintf(tw, "DerivedAudioPath\t%s\n", m.DerivedAudioPath)
			fmt.Fprintf(tw, "DerivedDiarizedPath\t%s\n", m.DerivedDiarizedPath)
			fmt.Fprintf(tw, "PublishedURL\t%s\n", m.PublishedURL)
			fmt.Fprintf(tw, "ErrorMessage\t%s\n", m.ErrorMessage)
			fmt.Fprintf(tw, "FailedAtPhase\t%s\n", m.FailedAtPhase)
			if err := tw.Flush(); err != nil {
				return err
			}

			a, adminCloseFn := newAdmin()
			defer adminCloseFn()

			fmt.Println()
			jtw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(jtw, "QUEUE\tJOB STATE\tRETRIED\tLAST ERROR")
			for _, q := range queue.All {
				job, ok, err := a.JobForMeeting(q, m.ID)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintf(jtw, "%s\t(no job)\t\t\n", q)
					continue
				}
				fmt.Fprintf(jtw, "%s\t%s\t%d/%d\t%s\n", q, job.State, job.Retried, job.MaxRetry, job.LastErr)
			}
			return jtw.Flush()
		},
	}
}

func newRestartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restart <meetingId> <phase>",
		Short: "Reset a meeting to a phase and re-enqueue its job",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			phase := meeting.Phase(args[1])
			if !phase.Valid() {
				return fmt.Errorf("invalid phase %q", args[1])
			}

			common := config.LoadCommon()
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			store, closeFn, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			producer := queue.NewProducer(common.RedisAddr, discardLogger())
			defer producer.Close()

			orch := orchestrator.New(store, producer, discardLogger())
			return orch.Restart(ctx, args[0], phase)
		},
	}
}

func newSetStateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-state <meetingId> <phase>",
		Short: "Force a meeting's phase without enqueuing a job",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			phase := meeting.Phase(args[1])
			if !phase.Valid() {
				return fmt.Errorf("invalid phase %q", args[1])
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			store, closeFn, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			return store.UpdateMeeting(ctx, args[0], phase, meeting.FieldPatch{})
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			common := config.LoadCommon()
			return state.Migrate(common.DatabaseURL)
		},
	}
}

func parseInt(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}

// discardLogger quiets the collaborators adminctl borrows from the worker
// binaries: their info and debug lines are dropped, and only warnings and
// errors reach stderr, so the CLI's own output on stdout stays clean.
func discardLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(logrus.WarnLevel)
	return log
}
