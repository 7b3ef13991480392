package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rpattn/vendorflow/internal/domain"
	"github.com/rpattn/vendorflow/internal/repository"
)

// Processor runs an uploaded file through the full pipeline.
type Processor interface {
	ProcessUpload(ctx context.Context, fileName string, data io.Reader, force bool) (domain.FileOutcome, error)
}

// Handler exposes uploads as an HTTP endpoint.
type Handler struct {
	processor Processor
}

// NewHTTPHandler wraps the processor with a POST endpoint.
func NewHTTPHandler(processor Processor) http.Handler {
	return &Handler{processor: processor}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, fmt.Sprintf("invalid form data: %v", err), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, fmt.Sprintf("file required: %v", err), http.StatusBadRequest)
		return
	}
	defer file.Close()

	force := false
	if raw := strings.TrimSpace(r.FormValue("force")); raw != "" {
		force, err = strconv.ParseBool(raw)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid force flag: %v", err), http.StatusBadRequest)
			return
		}
	}

	outcome, err := h.processor.ProcessUpload(r.Context(), header.Filename, file, force)
	if err != nil {
		status := http.StatusUnprocessableEntity
		if repository.IsStorageError(err) {
			status = http.StatusInternalServerError
		} else if errors.Is(err, ErrUnsupportedFormat) {
			status = http.StatusUnsupportedMediaType
		}
		writeJSON(w, status, map[string]any{"error": err.Error(), "file": outcome})
		return
	}

	writeJSON(w, http.StatusOK, outcome)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
