package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"slacknotes/internal/auth"
	apperrors "slacknotes/internal/errors"
	"slacknotes/internal/note"
	"slacknotes/pkg/logger"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
	checkTimeout      = 2 * time.Second
)

// HealthCheck probes one dependency. A nil error means healthy.
type HealthCheck func(ctx context.Context) error

// Server exposes health, metrics and the admin note API.
type Server struct {
	addr    string
	notes   *note.Service
	guard   *auth.Guard
	metrics http.Handler
	checks  map[string]HealthCheck
	logger  *slog.Logger
}

// ServerOption customizes the server.
type ServerOption func(*Server)

// WithHealthCheck registers a named dependency probe for /healthz.
func WithHealthCheck(name string, check HealthCheck) ServerOption {
	return func(s *Server) {
		if name != "" && check != nil {
			s.checks[name] = check
		}
	}
}

// WithMetricsHandler mounts the Prometheus exposition at /metrics.
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithGuard replaces the admin token guard.
func WithGuard(g *auth.Guard) ServerOption {
	return func(s *Server) {
		if g != nil {
			s.guard = g
		}
	}
}

// WithServerLogger replaces the default logger.
func WithServerLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer builds the ops server around the note service.
func NewServer(addr string, notes *note.Service, opts ...ServerOption) *Server {
	s := &Server{
		addr:   addr,
		notes:  notes,
		guard:  auth.NewGuard(""),
		checks: make(map[string]HealthCheck),
		logger: logger.Named("api"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start serves until ctx is canceled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	s.logger.Info("ops server listening", slog.String("addr", s.addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	mux.Handle("/api/v1/notes", s.guard.Middleware(http.HandlerFunc(s.handleListNotes)))
	mux.Handle("/api/v1/notes/stats", s.guard.Middleware(http.HandlerFunc(s.handleStats)))
	return mux
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	out := healthResponse{Status: "ok", Checks: make(map[string]string, len(s.checks))}
	for name, check := range s.checks {
		checkCtx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := check(checkCtx)
		cancel()
		if err != nil {
			out.Status = "degraded"
			out.Checks[name] = err.Error()
			continue
		}
		out.Checks[name] = "ok"
	}

	status := http.StatusOK
	if out.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, out)
}

// NotesPage is one page of the admin note listing.
type NotesPage struct {
	Notes  []*note.Note `json:"notes"`
	Count  int          `json:"count"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

func (s *Server) handleListNotes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	if s.notes == nil {
		writeError(w, http.StatusServiceUnavailable, apperrors.New(apperrors.CodeInitializationFailure, "note service not configured"))
		return
	}

	opts, limit, offset, err := listOptionsFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	notes, err := s.notes.List(r.Context(), opts...)
	if err != nil {
		s.logger.Error("note listing failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, NotesPage{
		Notes:  notes,
		Count:  len(notes),
		Limit:  limit,
		Offset: offset,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	if s.notes == nil {
		writeError(w, http.StatusServiceUnavailable, apperrors.New(apperrors.CodeInitializationFailure, "note service not configured"))
		return
	}

	opts, _, _, err := listOptionsFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	stats, err := s.notes.Stats(r.Context(), opts...)
	if err != nil {
		s.logger.Error("stats query failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// listOptionsFromQuery maps the query string onto note list options. limit
// and offset come back separately so the page response can echo them after
// the note layer applied its bounds.
func listOptionsFromQuery(r *http.Request) (opts []note.ListOption, limit, offset int, err error) {
	q := r.URL.Query()
	limit = 20

	if raw := q.Get("limit"); raw != "" {
		parsed, perr := strconv.Atoi(raw)
		if perr != nil || parsed <= 0 {
			return nil, 0, 0, apperrors.New(apperrors.CodeInvalidArgument, "limit must be a positive integer")
		}
		limit = parsed
	}
	if limit > 100 {
		limit = 100
	}
	opts = append(opts, note.WithLimit(limit))

	if raw := q.Get("offset"); raw != "" {
		parsed, perr := strconv.Atoi(raw)
		if perr != nil || parsed < 0 {
			return nil, 0, 0, apperrors.New(apperrors.CodeInvalidArgument, "offset must be a non-negative integer")
		}
		offset = parsed
		opts = append(opts, note.WithOffset(offset))
	}

	if user := strings.TrimSpace(q.Get("user")); user != "" {
		opts = append(opts, note.WithUser(user))
	}
	if channel := strings.TrimSpace(q.Get("channel")); channel != "" {
		opts = append(opts, note.WithChannel(channel))
	}
	if query := strings.TrimSpace(q.Get("q")); query != "" {
		opts = append(opts, note.WithQuery(query))
	}

	if raw := q.Get("since"); raw != "" {
		since, perr := time.Parse(time.RFC3339, raw)
		if perr != nil {
			return nil, 0, 0, apperrors.New(apperrors.CodeInvalidArgument, "since must be RFC3339")
		}
		opts = append(opts, note.WithCreatedSince(since))
	}
	if raw := q.Get("until"); raw != "" {
		until, perr := time.Parse(time.RFC3339, raw)
		if perr != nil {
			return nil, 0, 0, apperrors.New(apperrors.CodeInvalidArgument, "until must be RFC3339")
		}
		opts = append(opts, note.WithCreatedUntil(until))
	}

	switch q.Get("order") {
	case "", "desc":
	case "asc":
		opts = append(opts, note.WithSortOrder(note.SortByCreatedAsc))
	default:
		return nil, 0, 0, apperrors.New(apperrors.CodeInvalidArgument, "order must be asc or desc")
	}

	return opts, limit, offset, nil
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{
		Error: err.Error(),
		Code:  string(apperrors.CodeOf(err)),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
