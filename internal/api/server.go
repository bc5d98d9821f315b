package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/reliefweb-corpus/internal/metrics"
	"github.com/JakeFAU/reliefweb-corpus/internal/progress"
	"github.com/JakeFAU/reliefweb-corpus/internal/staleness"
	"github.com/JakeFAU/reliefweb-corpus/internal/storage"
)

const (
	defaultDueLimit = 100
	maxDueLimit     = 5000
	storeTimeout    = 5 * time.Second
)

// Store is the read-only slice of storage.Store the server reports on.
type Store interface {
	Stats(ctx context.Context) (storage.Stats, error)
	ChangedSince(ctx context.Context) ([]staleness.Row, error)
	About(ctx context.Context) (map[string]string, error)
}

// Events exposes the latest progress event per stage.
type Events interface {
	Snapshot() map[progress.Stage]progress.Event
}

// Config controls the HTTP surface.
type Config struct {
	// APIKey guards /v1 when non-empty.
	APIKey         string
	RequestTimeout time.Duration
}

// Server wires HTTP handlers to the store and the progress snapshot.
type Server struct {
	router chi.Router
	store  Store
	events Events
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes. events may be nil.
func NewServer(store Store, events Events, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	s := &Server{store: store, events: events, logger: logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(cfg.RequestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.APIKey != "" {
			r.Use(apiKeyMiddleware(cfg.APIKey))
		}
		r.Get("/status", s.status)
		r.Get("/due", s.due)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()
	if _, err := s.store.Stats(ctx); err != nil {
		s.logger.Warn("readiness check failed", zap.Error(err))
		s.writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// StatusResponse is the body of GET /v1/status.
type StatusResponse struct {
	storage.Stats
	Due    int                 `json:"due"`
	About  map[string]string   `json:"about"`
	Events map[string]EventDTO `json:"events,omitempty"`
}

// EventDTO is the JSON form of a progress event.
type EventDTO struct {
	RunID      string    `json:"run_id"`
	TS         time.Time `json:"ts"`
	Offset     int       `json:"offset,omitempty"`
	Count      int       `json:"count,omitempty"`
	Total      int       `json:"total,omitempty"`
	Tokens     int       `json:"tokens,omitempty"`
	DurationMS int64     `json:"duration_ms,omitempty"`
	Note       string    `json:"note,omitempty"`
}

func toEventDTO(evt progress.Event) EventDTO {
	return EventDTO{
		RunID:      evt.RunUUID().String(),
		TS:         evt.TS,
		Offset:     evt.Offset,
		Count:      evt.Count,
		Total:      evt.Total,
		Tokens:     evt.Tokens,
		DurationMS: evt.Dur.Milliseconds(),
		Note:       evt.Note,
	}
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	stats, err := s.store.Stats(ctx)
	if err != nil {
		s.logger.Error("read stats failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to read stats")
		return
	}
	rows, err := s.store.ChangedSince(ctx)
	if err != nil {
		s.logger.Error("compute due set failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to compute due records")
		return
	}
	about, err := s.store.About(ctx)
	if err != nil {
		s.logger.Error("read about failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to read metadata")
		return
	}

	resp := StatusResponse{Stats: stats, Due: len(staleness.DueRows(rows)), About: about}
	if s.events != nil {
		snap := s.events.Snapshot()
		resp.Events = make(map[string]EventDTO, len(snap))
		for stage, evt := range snap {
			resp.Events[string(stage)] = toEventDTO(evt)
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// due handles GET /v1/due?limit=N and lists the ids awaiting annotation.
func (s *Server) due(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()
	rows, err := s.store.ChangedSince(ctx)
	if err != nil {
		s.logger.Error("compute due set failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to compute due records")
		return
	}
	ids := staleness.DueRows(rows)
	total := len(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"total": total, "ids": ids})
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultDueLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("limit must be a positive integer")
	}
	return min(n, maxDueLimit), nil
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			reqID, _ := r.Context().Value(requestIDKey{}).(string)
			logger.Debug("request completed",
				zap.String("request_id", reqID),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("panic", rec), zap.String("path", r.URL.Path))
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_, _ = w.Write([]byte(`{"error":"internal server error"}` + "\n"))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"unauthorized"}` + "\n"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write json failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
