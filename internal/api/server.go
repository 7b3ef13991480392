// Package api exposes the metadata store, review decisions, uploads and
// mapping suggestions over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/rpattn/vendorflow/internal/auth"
	"github.com/rpattn/vendorflow/internal/export"
	"github.com/rpattn/vendorflow/internal/ingestion"
	"github.com/rpattn/vendorflow/internal/logger"
	"github.com/rpattn/vendorflow/internal/middleware"
	"github.com/rpattn/vendorflow/internal/repository"
	"github.com/rpattn/vendorflow/internal/suggest"
)

// Config wires the server to its collaborators. Processor and Suggester are
// optional; their endpoints answer 503 when unset.
type Config struct {
	Store           repository.MetadataStore
	Processor       ingestion.Processor
	Suggester       *suggest.Service
	CanonicalFields []string
	AllowedOrigins  []string
	Logger          *logger.Logger
	Now             func() time.Time
}

type Server struct {
	router          chi.Router
	store           repository.MetadataStore
	suggester       *suggest.Service
	canonicalFields []string
	log             *logger.Logger
	now             func() time.Time
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("api: store is required")
	}
	s := &Server{
		router:          chi.NewRouter(),
		store:           cfg.Store,
		suggester:       cfg.Suggester,
		canonicalFields: cfg.CanonicalFields,
		log:             logger.OrNop(cfg.Logger),
		now:             cfg.Now,
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowCredentials: true,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
	})

	r := s.router
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logging(s.log))
	r.Use(corsHandler.Handler)
	r.Use(auth.Reviewer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/files", func(r chi.Router) {
		r.Get("/", s.listFiles)
		r.Get("/{id}", s.getFile)
		r.Get("/{id}/rows", s.listFileRows)
		r.Method(http.MethodGet, "/{id}/export", export.NewHTTPHandler(cfg.Store, s.log))
	})
	r.Route("/rows", func(r chi.Router) {
		r.Get("/", s.listRows)
		r.Get("/{id}", s.getRow)
		r.Post("/{id}/decision", s.recordDecision)
	})
	r.Route("/batches", func(r chi.Router) {
		r.Get("/", s.listBatches)
		r.Get("/{id}", s.getBatch)
	})

	if cfg.Processor != nil {
		r.Method(http.MethodPost, "/ingest", ingestion.NewHTTPHandler(cfg.Processor))
	} else {
		r.Post("/ingest", unavailable("ingestion is not configured"))
	}
	if s.suggester != nil {
		r.Post("/suggest", s.suggest)
	} else {
		r.Post("/suggest", unavailable("suggestions are not configured"))
	}

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func unavailable(msg string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": msg})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "status", status, "error", err)
	} else {
		s.log.Warn("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeStoreError maps repository errors onto HTTP statuses.
func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err)
	case repository.IsStorageError(err):
		s.writeError(w, http.StatusInternalServerError, err)
	default:
		s.writeError(w, http.StatusBadRequest, err)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dest any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// page reads limit and offset query parameters. Missing values are zero and
// left to the store's defaults.
func page(r *http.Request) (limit, offset int, err error) {
	query := r.URL.Query()
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 0 {
			return 0, 0, fmt.Errorf("invalid limit %q", raw)
		}
	}
	if raw := strings.TrimSpace(query.Get("offset")); raw != "" {
		if offset, err = strconv.Atoi(raw); err != nil || offset < 0 {
			return 0, 0, fmt.Errorf("invalid offset %q", raw)
		}
	}
	return limit, offset, nil
}
