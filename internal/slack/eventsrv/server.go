// Package eventsrv is the HTTP intake for workspaces that cannot use
// Socket Mode. Slack delivers Events API callbacks and slash commands to
// public endpoints; every request is signature-checked before it reaches
// the queue.
package eventsrv

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	apperrors "slacknotes/internal/errors"
	"slacknotes/internal/event"
	"slacknotes/internal/slack"
	"slacknotes/pkg/logger"
)

// Slack aborts deliveries that take longer than a few seconds, so requests
// are acked as soon as the envelope is queued.
const (
	maxBodyBytes      = 1 << 20
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// Intake receives the decoded envelopes. *event.Ingestor implements it.
type Intake interface {
	Ingest(ctx context.Context, env event.Envelope) error
}

// Server terminates Slack's outbound HTTP deliveries.
type Server struct {
	addr     string
	verifier *slack.Verifier
	intake   Intake
	logger   *slog.Logger
}

// NewServer wires the intake server. The verifier is mandatory; unsigned
// intake would accept forged events from anyone who finds the endpoint.
func NewServer(addr string, verifier *slack.Verifier, intake Intake) (*Server, error) {
	if verifier == nil {
		return nil, apperrors.New(apperrors.CodeInitializationFailure, "event server requires a signature verifier")
	}
	if intake == nil {
		return nil, apperrors.New(apperrors.CodeInitializationFailure, "event server requires an intake")
	}
	return &Server{
		addr:     addr,
		verifier: verifier,
		intake:   intake,
		logger:   logger.Named("eventsrv"),
	}, nil
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

	s.logger.Info("event intake listening", slog.String("addr", s.addr))

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
	mux.HandleFunc("/slack/events", s.handleEvents)
	mux.HandleFunc("/slack/commands", s.handleCommands)
	return mux
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	body, ok := s.verifiedBody(w, r)
	if !ok {
		return
	}

	var cb slack.EventCallback
	if err := json.Unmarshal(body, &cb); err != nil {
		http.Error(w, "undecodable payload", http.StatusBadRequest)
		return
	}

	switch cb.Type {
	case "url_verification":
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"challenge": cb.Challenge})
	case "event_callback":
		env, wanted := event.FromEventCallback(cb)
		if !wanted {
			w.WriteHeader(http.StatusOK)
			return
		}
		if err := s.intake.Ingest(r.Context(), env); err != nil {
			s.logger.Error("ingest failed",
				slog.Any("error", err),
				slog.String("envelope_id", env.ID))
			// Non-2xx makes Slack redeliver; dedupe absorbs the overlap.
			http.Error(w, "enqueue failed", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusOK)
	}
}

func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	body, ok := s.verifiedBody(w, r)
	if !ok {
		return
	}

	values, err := url.ParseQuery(string(body))
	if err != nil {
		http.Error(w, "undecodable form", http.StatusBadRequest)
		return
	}
	cmd := slack.SlashCommandFromForm(values)
	if cmd.Command == "" {
		http.Error(w, "missing command", http.StatusBadRequest)
		return
	}

	env := event.FromSlashCommand(cmd)
	if err := s.intake.Ingest(r.Context(), env); err != nil {
		s.logger.Error("ingest failed",
			slog.Any("error", err),
			slog.String("envelope_id", env.ID))
		http.Error(w, "enqueue failed", http.StatusInternalServerError)
		return
	}
	// Empty 200 acks the command; the visible reply goes via response_url.
	w.WriteHeader(http.StatusOK)
}

// verifiedBody reads the request and checks Slack's v0 signature. On
// failure it writes the response itself and returns ok=false.
func (s *Server) verifiedBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return nil, false
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return nil, false
	}

	timestamp := r.Header.Get("X-Slack-Request-Timestamp")
	signature := r.Header.Get("X-Slack-Signature")
	if err := s.verifier.Verify(timestamp, signature, body); err != nil {
		logger.Audit().Warn("access_denied",
			slog.String("path", r.URL.Path),
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("error", err.Error()))
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return nil, false
	}
	return body, true
}
