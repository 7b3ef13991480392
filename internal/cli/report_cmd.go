package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rpattn/vendorflow/internal/domain"
	"github.com/rpattn/vendorflow/internal/repository"
)

func newSummaryCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "summary [batch-id]",
		Short: "Show the summary of a batch (the latest when no id is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batch, err := lookupBatch(cmd.Context(), s.app.Store, args)
			if err != nil {
				return err
			}
			return printBatch(cmd, batch)
		},
	}
}

func lookupBatch(ctx context.Context, store repository.BatchRepository, args []string) (domain.BatchResult, error) {
	if len(args) == 1 {
		return store.GetBatch(ctx, args[0])
	}
	batches, err := store.ListBatches(ctx, 1, 0)
	if err != nil {
		return domain.BatchResult{}, err
	}
	if len(batches) == 0 {
		return domain.BatchResult{}, errors.New("no batches recorded yet")
	}
	return batches[0], nil
}

func newExportFlaggedCmd(s *session) *cobra.Command {
	var (
		batchID string
		outPath string
	)

	cmd := &cobra.Command{
		Use:   "export-flagged",
		Short: "Write a review CSV with one line per violation of every flagged row",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var args []string
			if batchID != "" {
				args = []string{batchID}
			}
			batch, err := lookupBatch(cmd.Context(), s.app.Store, args)
			if err != nil {
				return err
			}
			if outPath == "" {
				outPath = filepath.Join(s.app.Cfg.Paths.ExportDir, batch.ID+"_flagged_review.csv")
			}

			n, err := s.app.Exporter.ExportFlagged(cmd.Context(), batch.FileIDs(), outPath)
			if err != nil {
				return err
			}
			if isJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), map[string]any{"batch_id": batch.ID, "path": outPath, "rows": n})
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d flagged rows from batch %s to %s\n", n, batch.ID, outPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&batchID, "batch", "", "Batch to export (defaults to the latest)")
	cmd.Flags().StringVar(&outPath, "out", "", "Output CSV path")
	return cmd
}
