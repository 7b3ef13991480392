package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rpattn/vendorflow/internal/domain"
)

func (s *Store) GetSuggestions(ctx context.Context, signature string) ([]domain.Suggestion, bool, error) {
	var raw sql.NullString
	err := s.db.GetContext(ctx, &raw, s.q(`SELECT suggestions FROM suggestion_cache WHERE signature = ?`), signature)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, storageErr("read suggestion cache", err)
	}

	var suggestions []domain.Suggestion
	if err := decodeJSON(raw, &suggestions); err != nil {
		return nil, false, storageErr("decode suggestion cache", err)
	}
	return suggestions, true, nil
}

func (s *Store) PutSuggestions(ctx context.Context, signature string, suggestions []domain.Suggestion) error {
	payload, err := encodeJSON(suggestions, "[]")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.q(`INSERT INTO suggestion_cache (signature, suggestions, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (signature) DO UPDATE SET suggestions = excluded.suggestions, created_at = excluded.created_at`),
		signature, payload, s.now())
	if err != nil {
		return storageErr("write suggestion cache", err)
	}
	return nil
}
