package stubapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"omraudit/internal/adapters/httpclient"
	"omraudit/internal/logging"
	"omraudit/internal/ports"
	"omraudit/internal/workers/sheetreader"
)

const (
	DefaultMaxUploadBytes = 50 << 20
	maxJSONBytes          = 1 << 20
	maxEntryBytes         = 32 << 20
)

type Options struct {
	Templates      []string
	Token          string // empty disables the token check
	Workers        int
	MaxUploadBytes int64
}

// Server is an in-memory stand-in for the audit backend. It speaks the same
// HTTP protocol as the real one.
type Server struct {
	opts      Options
	audits    ports.AuditRepository
	jobs      ports.JobRepository
	images    ports.ImageStore
	processor sheetreader.Processor
	log       *slog.Logger

	// one upload at a time
	processing sync.Mutex
}

func New(audits ports.AuditRepository, jobs ports.JobRepository, images ports.ImageStore, processor sheetreader.Processor, opts Options, log *slog.Logger) *Server {
	if log == nil {
		log = logging.Discard()
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	return &Server{opts: opts, audits: audits, jobs: jobs, images: images, processor: processor, log: log}
}

// Routes returns the router serving every backend endpoint.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.correlate)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "omr stub is running"})
	})
	r.Get("/api/templates", s.listTemplates)
	r.With(s.requireToken).Post("/api/process-omr", s.processOMR)
	r.Route("/api/audits", func(r chi.Router) {
		r.Use(s.requireToken)
		r.Get("/", s.listAudits)
		r.Get("/export", s.exportBatch)
		r.Post("/cleanup", s.cleanupBatch)
		r.Get("/{id}", s.getAudit)
		r.Post("/{id}/decision", s.submitDecision)
	})
	r.Get("/static/*", s.serveImage)
	return r
}

type ctxKey struct{}

// correlate echoes the caller's correlation id (or a new one) and logs
// every request with it.
func (s *Server) correlate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corrID := r.Header.Get(httpclient.HeaderCorrelationID)
		if corrID == "" {
			corrID = uuid.NewString()
		}
		w.Header().Set(httpclient.HeaderCorrelationID, corrID)
		log := logging.WithCorrelation(s.log, corrID, strings.TrimSpace(r.Header.Get(httpclient.HeaderUser)))

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), ctxKey{}, log)))
		log.Info("request", "method", r.Method, "path", r.URL.Path, "status", ww.Status(), "bytes", ww.BytesWritten(), "took", time.Since(start))
	})
}

func (s *Server) logger(r *http.Request) *slog.Logger {
	if l, ok := r.Context().Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return s.log
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.Token != "" {
			got := r.Header.Get(httpclient.HeaderToken)
			if subtle.ConstantTimeCompare([]byte(got), []byte(s.opts.Token)) != 1 {
				writeError(w, http.StatusUnauthorized, "invalid audit token")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// requireUser returns the validated X-Audit-User header, or writes a 400.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	user := strings.TrimSpace(r.Header.Get(httpclient.HeaderUser))
	switch {
	case user == "":
		writeError(w, http.StatusBadRequest, "header X-Audit-User is required")
		return "", false
	case !validUser(user):
		writeError(w, http.StatusBadRequest, "header X-Audit-User contains invalid characters")
		return "", false
	}
	return user, true
}

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg, Details: http.StatusText(status)})
}

// writeRepoError maps repository sentinel errors onto status codes.
func (s *Server) writeRepoError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ports.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ports.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ports.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger(r).Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}
