package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rpattn/vendorflow/internal/domain"
	"github.com/rpattn/vendorflow/internal/pipeline"
)

func newRunCmd(s *session) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "run [path...]",
		Short: "Process files or directories as one batch",
		Long:  "Runs the pipeline over the given files and directories, or over paths.input_dir when none are given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = []string{s.app.Cfg.Paths.InputDir}
			}
			paths, err := expandPaths(args)
			if err != nil {
				return err
			}

			runner, err := s.app.NewRunner()
			if err != nil {
				return err
			}
			batch, err := runner.Run(cmd.Context(), paths, force)
			if printErr := printBatch(cmd, batch); printErr != nil {
				return printErr
			}
			if err != nil {
				return err
			}
			if batch.Status == domain.BatchStatusFailed {
				return errors.New("batch failed")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Reprocess files that already succeeded")
	return cmd
}

func newWatchCmd(s *session) *cobra.Command {
	var schedule string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Process paths.input_dir on a cron schedule until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if schedule == "" {
				schedule = s.app.Cfg.Watch.Schedule
			}
			runner, err := s.app.NewRunner()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			scheduler := pipeline.NewScheduler(runner, s.app.Cfg.Paths.InputDir, s.app.Log)
			if err := scheduler.Start(ctx, schedule); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Watching %s (%s), press Ctrl+C to stop\n", s.app.Cfg.Paths.InputDir, schedule)
			<-ctx.Done()
			scheduler.Stop()
			return nil
		},
	}

	cmd.Flags().StringVar(&schedule, "schedule", "", "Cron schedule (defaults to watch.schedule)")
	return cmd
}

// expandPaths replaces directories with the files found under them.
func expandPaths(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		found, err := pipeline.Discover(arg)
		if err != nil {
			return nil, err
		}
		paths = append(paths, found...)
	}
	return paths, nil
}

func printBatch(cmd *cobra.Command, batch domain.BatchResult) error {
	if isJSON(cmd) {
		return printJSON(cmd.OutOrStdout(), batch)
	}
	return writeBatchTable(cmd.OutOrStdout(), batch)
}

func writeBatchTable(w io.Writer, batch domain.BatchResult) error {
	_, _ = fmt.Fprintf(w, "Batch %s: %s\n", batch.ID, batch.Status)
	_, _ = fmt.Fprintf(w, "Rows: %d total, %d valid, %d flagged, %d error\n\n",
		batch.TotalRows, batch.ValidRows, batch.FlaggedRows, batch.ErrorRows)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "FILE\tSTATUS\tROWS\tVALID\tFLAGGED\tERRORS\tNOTE")
	for _, f := range batch.Files {
		note := f.Error
		if f.Skipped {
			note = "skipped, already processed"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			filepath.Base(f.Path), f.Status, f.RowCount, f.ValidRows, f.FlaggedRows, f.ErrorRows, note)
	}
	return tw.Flush()
}
