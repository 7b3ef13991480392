package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rpattn/vendorflow/internal/auth"
	"github.com/rpattn/vendorflow/internal/domain"
	"github.com/rpattn/vendorflow/internal/repository"
	"github.com/rpattn/vendorflow/internal/suggest"
)

func parseFileStatus(raw string) (domain.FileStatus, error) {
	status := domain.FileStatus(strings.ToUpper(strings.TrimSpace(raw)))
	switch status {
	case "", domain.FileStatusPending, domain.FileStatusProcessing, domain.FileStatusSuccess, domain.FileStatusFailed:
		return status, nil
	}
	return "", fmt.Errorf("invalid file status %q", raw)
}

func parseRowStatus(raw string) (domain.RowStatus, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	status, ok := domain.ParseRowStatus(raw)
	if !ok {
		return "", fmt.Errorf("invalid row status %q", raw)
	}
	return status, nil
}

func (s *Server) listFiles(w http.ResponseWriter, r *http.Request) {
	status, err := parseFileStatus(r.URL.Query().Get("status"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	limit, offset, err := page(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	files, err := s.store.ListFiles(r.Context(), status, limit, offset)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, files)
}

func (s *Server) getFile(w http.ResponseWriter, r *http.Request) {
	file, err := s.store.GetFile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, file)
}

func (s *Server) listFileRows(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "id")
	if _, err := s.store.GetFile(r.Context(), fileID); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeRows(w, r, []string{fileID})
}

func (s *Server) listRows(w http.ResponseWriter, r *http.Request) {
	var fileIDs []string
	for _, id := range strings.Split(r.URL.Query().Get("file_id"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			fileIDs = append(fileIDs, id)
		}
	}
	s.writeRows(w, r, fileIDs)
}

func (s *Server) writeRows(w http.ResponseWriter, r *http.Request, fileIDs []string) {
	status, err := parseRowStatus(r.URL.Query().Get("status"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	limit, offset, err := page(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	rows, err := s.store.ListRows(r.Context(), repository.RowFilter{
		FileIDs: fileIDs,
		Status:  status,
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

type rowDetail struct {
	domain.RowRecord
	Decisions []domain.ReviewDecision `json:"decisions"`
}

func (s *Server) getRow(w http.ResponseWriter, r *http.Request) {
	rowID := chi.URLParam(r, "id")
	row, err := s.store.GetRow(r.Context(), rowID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	decisions, err := s.store.ListDecisions(r.Context(), rowID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rowDetail{RowRecord: row, Decisions: decisions})
}

type decisionRequest struct {
	Decision string `json:"decision"`
	Reviewer string `json:"reviewer"`
	Comment  string `json:"comment"`
}

// recordDecision stamps a reviewer verdict on a row. The row's status and
// violations stay as the pipeline left them.
func (s *Server) recordDecision(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	decision := domain.Decision(strings.ToLower(strings.TrimSpace(req.Decision)))
	if decision != domain.DecisionApproved && decision != domain.DecisionRejected {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decision must be %q or %q", domain.DecisionApproved, domain.DecisionRejected))
		return
	}
	reviewer := strings.TrimSpace(req.Reviewer)
	if reviewer == "" {
		reviewer, _ = auth.ReviewerFromContext(r.Context())
	}
	if reviewer == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("reviewer is required"))
		return
	}

	row, err := s.store.RecordDecision(r.Context(), domain.ReviewDecision{
		ID:        uuid.NewString(),
		RowID:     chi.URLParam(r, "id"),
		Decision:  decision,
		Reviewer:  reviewer,
		Comment:   req.Comment,
		DecidedAt: s.now(),
	})
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.log.Info("review decision recorded", "row_id", row.ID, "decision", decision, "reviewer", row.ApprovedBy)
	writeJSON(w, http.StatusOK, row)
}

func (s *Server) listBatches(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := page(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	batches, err := s.store.ListBatches(r.Context(), limit, offset)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batches)
}

func (s *Server) getBatch(w http.ResponseWriter, r *http.Request) {
	batch, err := s.store.GetBatch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

type suggestRequest struct {
	Headers         []string `json:"headers"`
	CanonicalFields []string `json:"canonical_fields"`
}

func (s *Server) suggest(w http.ResponseWriter, r *http.Request) {
	var req suggestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	fields := req.CanonicalFields
	if len(fields) == 0 {
		fields = s.canonicalFields
	}
	if len(fields) == 0 {
		s.writeError(w, http.StatusBadRequest, errors.New("canonical_fields is required"))
		return
	}

	suggestions, err := s.suggester.Suggest(r.Context(), req.Headers, fields)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"signature":   suggest.Signature(req.Headers),
		"suggestions": suggestions,
	})
}
