package export

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rpattn/vendorflow/internal/logger"
)

// brokenWriter accepts headers but fails every body write.
type brokenWriter struct {
	*httptest.ResponseRecorder
}

func (brokenWriter) Write([]byte) (int, error) {
	return 0, errors.New("connection reset")
}

func exportRouter(h http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/files/{id}/export", h)
	return r
}

func TestHTTPHandlerStreamsExport(t *testing.T) {
	router := exportRouter(NewHTTPHandler(seedStore(t), nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/f1/export?format=csv&status=valid", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".csv")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/missing/export?format=csv", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/f1/export?format=pdf", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHTTPHandlerLogsFailedDownload(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := &logger.Logger{SugaredLogger: zap.New(core).Sugar()}
	router := exportRouter(NewHTTPHandler(seedStore(t), log))

	w := brokenWriter{httptest.NewRecorder()}
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/files/f1/export?format=csv", nil))

	entries := logs.FilterMessage("export download failed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "f1", fields["file_id"])
	assert.Contains(t, fields["error"], "connection reset")
}
