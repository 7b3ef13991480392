package cli

import (
	"fmt"
	"io"
	"os/user"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rpattn/vendorflow/internal/domain"
	"github.com/rpattn/vendorflow/internal/repository"
)

func newFlaggedCmd(s *session) *cobra.Command {
	var (
		fileIDs []string
		limit   int
		offset  int
	)

	cmd := &cobra.Command{
		Use:   "flagged",
		Short: "List rows that need review",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rows, err := s.app.Store.ListRows(cmd.Context(), repository.RowFilter{
				FileIDs: fileIDs,
				Status:  domain.RowStatusFlagged,
				Limit:   limit,
				Offset:  offset,
			})
			if err != nil {
				return err
			}
			if isJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), rows)
			}
			return writeRowTable(cmd.OutOrStdout(), rows)
		},
	}

	cmd.Flags().StringSliceVar(&fileIDs, "file", nil, "Only rows of these file ids")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of rows")
	cmd.Flags().IntVar(&offset, "offset", 0, "Rows to skip")
	return cmd
}

func writeRowTable(w io.Writer, rows []domain.RowRecord) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ROW\tLINE\tSTATUS\tREVIEW\tERRORS")
	for _, row := range rows {
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", row.ID, row.LineNumber, row.Status, row.ReviewDecision, violationSummary(row.Violations))
	}
	return tw.Flush()
}

func violationSummary(violations []domain.Violation) string {
	parts := make([]string, 0, len(violations))
	for _, v := range violations {
		parts = append(parts, fmt.Sprintf("%s:%s", v.Field(), v.Rule))
	}
	return strings.Join(parts, "; ")
}

func newRowCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "row <row-id>",
		Short: "Show one row with its violations and review history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			row, err := s.app.Store.GetRow(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("row %s: %w", args[0], err)
			}
			decisions, err := s.app.Store.ListDecisions(cmd.Context(), row.ID)
			if err != nil {
				return err
			}
			if isJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), map[string]any{"row": row, "decisions": decisions})
			}

			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(w, "Row %s (file %s, line %d): %s\n", row.ID, row.FileID, row.LineNumber, row.Status)
			if len(row.Violations) > 0 {
				_, _ = fmt.Fprintln(w, "Violations:")
				for _, v := range row.Violations {
					_, _ = fmt.Fprintf(w, "  %s [%s] %s\n", v.Field(), v.Rule, v.Message)
				}
			}
			_, _ = fmt.Fprintln(w, "Canonical:")
			if err := printJSON(w, row.Canonical); err != nil {
				return err
			}
			for _, d := range decisions {
				_, _ = fmt.Fprintf(w, "%s %s by %s %s\n", d.DecidedAt.Format("2006-01-02 15:04"), d.Decision, d.Reviewer, d.Comment)
			}
			return nil
		},
	}
}

func newDecisionCmd(s *session, verb string) *cobra.Command {
	decision := domain.DecisionApproved
	if verb == "reject" {
		decision = domain.DecisionRejected
	}
	var reviewer, comment string

	cmd := &cobra.Command{
		Use:   verb + " <row-id>",
		Short: fmt.Sprintf("Record that a reviewer %s a row", decision),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if reviewer == "" {
				reviewer = currentUser()
			}
			row, err := s.app.Store.RecordDecision(cmd.Context(), domain.ReviewDecision{
				RowID:    args[0],
				Decision: decision,
				Reviewer: reviewer,
				Comment:  comment,
			})
			if err != nil {
				return fmt.Errorf("row %s: %w", args[0], err)
			}
			if isJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), row)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Row %s %s by %s\n", row.ID, row.ReviewDecision, row.ApprovedBy)
			return nil
		},
	}

	cmd.Flags().StringVar(&reviewer, "reviewer", "", "Reviewer name (defaults to the current user)")
	cmd.Flags().StringVar(&comment, "comment", "", "Note stored with the decision")
	return cmd
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "unknown"
}
