package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	apperrors "slacknotes/internal/errors"
	"slacknotes/internal/event"
	"slacknotes/pkg/logger"
)

// Handler processes one envelope.
type Handler interface {
	Handle(ctx context.Context, env event.Envelope) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, env event.Envelope) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, env event.Envelope) error {
	return f(ctx, env)
}

// Router dispatches envelopes to the handler registered for their kind, or
// for slash commands to the handler registered for the command name. It is
// the sink the processor drains into.
type Router struct {
	mu       sync.RWMutex
	kinds    map[event.Kind]Handler
	commands map[string]Handler
	logger   *slog.Logger
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{
		kinds:    make(map[event.Kind]Handler),
		commands: make(map[string]Handler),
		logger:   logger.Named("bot"),
	}
}

// RegisterKind routes envelopes of the given kind to handler.
func (r *Router) RegisterKind(kind event.Kind, handler Handler) error {
	if kind == "" {
		return errors.New("kind cannot be empty")
	}
	if handler == nil {
		return errors.New("handler cannot be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.kinds[kind]; exists {
		return fmt.Errorf("kind %s already registered", kind)
	}
	r.kinds[kind] = handler
	return nil
}

// RegisterCommand routes invocations of the named slash command to handler.
func (r *Router) RegisterCommand(name string, handler Handler) error {
	if !strings.HasPrefix(name, "/") {
		return fmt.Errorf("command name %q must start with /", name)
	}
	if handler == nil {
		return errors.New("handler cannot be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.commands[name]; exists {
		return fmt.Errorf("command %s already registered", name)
	}
	r.commands[name] = handler
	return nil
}

// Handle implements the processor's sink. Envelopes nobody registered for
// are dropped, not failed; Slack keeps sending event types the bot does not
// care about.
func (r *Router) Handle(ctx context.Context, env event.Envelope) error {
	if env.Kind == event.KindSlashCommand && env.Command == nil {
		return apperrors.New(apperrors.CodeEventDecodeFailure, "slash envelope has no command payload")
	}

	r.mu.RLock()
	var handler Handler
	if env.Kind == event.KindSlashCommand {
		handler = r.commands[env.Command.Command]
	} else {
		handler = r.kinds[env.Kind]
	}
	r.mu.RUnlock()

	if handler == nil {
		r.logger.Warn("no handler registered, dropping envelope",
			slog.String("envelope_id", env.ID),
			slog.String("kind", string(env.Kind)))
		return nil
	}
	if err := handler.Handle(ctx, env); err != nil {
		return err
	}
	if env.Kind == event.KindSlashCommand {
		logger.Audit().Info("command_handled",
			slog.String("command", env.Command.Command),
			slog.String("user_id", env.Command.UserID),
			slog.String("envelope_id", env.ID))
	}
	return nil
}

var _ event.Sink = (*Router)(nil)
