package export

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/rpattn/vendorflow/internal/domain"
	"github.com/rpattn/vendorflow/internal/logger"
	"github.com/rpattn/vendorflow/internal/repository"
)

var contentTypes = map[Format]string{
	FormatCSV:   "text/csv",
	FormatXLSX:  "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	FormatJSON:  "application/json",
	FormatJSONL: "application/x-ndjson",
	FormatXML:   "application/xml",
}

// Handler streams a file's rows in any export format. It expects to be
// mounted on a chi route with an {id} parameter.
type Handler struct {
	store Store
	log   *logger.Logger
}

func NewHTTPHandler(store Store, log *logger.Logger) http.Handler {
	return &Handler{store: store, log: logger.OrNop(log)}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	fileID := strings.TrimSpace(chi.URLParam(r, "id"))
	if fileID == "" {
		http.Error(w, "file id is required", http.StatusBadRequest)
		return
	}

	query := r.URL.Query()
	format, err := ParseFormat(query.Get("format"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	opts, err := parseOptions(query.Get("status"), query.Get("fields"), query.Get("metadata"), query.Get("errors"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	file, err := h.store.GetFile(r.Context(), fileID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	rows, err := h.store.ListRowsByFile(r.Context(), fileID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	exporter, err := ExporterFor(format)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", contentTypes[format])
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("%s.%s", fileStem(file), format)))
	// Headers are already sent, so a failed export only truncates the body.
	if _, err := exporter.Export(w, rows, opts); err != nil {
		h.log.Error("export download failed", "file_id", fileID, "format", format, "error", err)
	}
}

func parseOptions(status, fields, metadata, errorsFlag string) (Options, error) {
	var opts Options
	if strings.TrimSpace(status) != "" {
		parsed, ok := domain.ParseRowStatus(status)
		if !ok {
			return Options{}, fmt.Errorf("invalid status %q", status)
		}
		opts.Status = parsed
	}
	for _, field := range strings.Split(fields, ",") {
		if field = strings.TrimSpace(field); field != "" {
			opts.Fields = append(opts.Fields, field)
		}
	}
	var err error
	if opts.IncludeMetadata, err = parseFlag(metadata); err != nil {
		return Options{}, fmt.Errorf("invalid metadata flag: %w", err)
	}
	if opts.IncludeErrors, err = parseFlag(errorsFlag); err != nil {
		return Options{}, fmt.Errorf("invalid errors flag: %w", err)
	}
	return opts, nil
}

func parseFlag(raw string) (bool, error) {
	if strings.TrimSpace(raw) == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		http.Error(w, "file not found", http.StatusNotFound)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}
