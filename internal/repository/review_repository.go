package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/rpattn/vendorflow/internal/domain"
)

// RecordDecision stamps the reviewer fields on the row and appends an audit
// entry in one transaction. Status and violations are not changed.
func (s *Store) RecordDecision(ctx context.Context, decision domain.ReviewDecision) (domain.RowRecord, error) {
	switch decision.Decision {
	case domain.DecisionApproved, domain.DecisionRejected:
	default:
		return domain.RowRecord{}, fmt.Errorf("unknown decision %q", decision.Decision)
	}
	if decision.Reviewer == "" {
		return domain.RowRecord{}, fmt.Errorf("reviewer is required")
	}
	if decision.ID == "" {
		decision.ID = uuid.NewString()
	}
	if decision.DecidedAt.IsZero() {
		decision.DecidedAt = s.now()
	}
	decidedAt := decision.DecidedAt.UTC()

	var updated domain.RowRecord
	err := s.withTx(ctx, "record decision for row "+decision.RowID, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, s.q(`UPDATE file_rows
			SET review_decision = ?, approved_by = ?, approved_at = ?, review_note = ?
			WHERE id = ?`),
			string(decision.Decision), decision.Reviewer, decidedAt, decision.Comment, decision.RowID)
		if err != nil {
			return storageErr("update review fields for row "+decision.RowID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrNotFound
		}

		_, err = tx.ExecContext(ctx, s.q(`INSERT INTO approvals (id, row_id, decision, reviewer, comment, decided_at)
			VALUES (?, ?, ?, ?, ?, ?)`),
			decision.ID, decision.RowID, string(decision.Decision), decision.Reviewer, decision.Comment, decidedAt)
		if err != nil {
			return storageErr("record approval for row "+decision.RowID, err)
		}

		updated, err = getRow(ctx, tx, s.q(`SELECT `+rowColumns+` FROM file_rows WHERE id = ?`), decision.RowID)
		return err
	})
	if err != nil {
		return domain.RowRecord{}, err
	}
	return updated, nil
}

// ListDecisions returns the audit trail for a row, oldest first.
func (s *Store) ListDecisions(ctx context.Context, rowID string) ([]domain.ReviewDecision, error) {
	var models []struct {
		ID        string    `db:"id"`
		RowID     string    `db:"row_id"`
		Decision  string    `db:"decision"`
		Reviewer  string    `db:"reviewer"`
		Comment   string    `db:"comment"`
		DecidedAt time.Time `db:"decided_at"`
	}
	err := s.db.SelectContext(ctx, &models, s.q(`SELECT id, row_id, decision, reviewer, comment, decided_at
		FROM approvals WHERE row_id = ? ORDER BY decided_at, id`), rowID)
	if err != nil {
		return nil, storageErr("list decisions for row "+rowID, err)
	}

	decisions := make([]domain.ReviewDecision, 0, len(models))
	for _, m := range models {
		decisions = append(decisions, domain.ReviewDecision{
			ID:        m.ID,
			RowID:     m.RowID,
			Decision:  domain.Decision(m.Decision),
			Reviewer:  m.Reviewer,
			Comment:   m.Comment,
			DecidedAt: m.DecidedAt.UTC(),
		})
	}
	return decisions, nil
}
