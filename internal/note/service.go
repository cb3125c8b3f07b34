package note

import (
	"context"
	"log/slog"
	"strings"

	apperrors "slacknotes/internal/errors"
	"slacknotes/pkg/logger"
)

// Recorder counts saved notes. Nil disables instrumentation.
type Recorder interface {
	RecordNoteSaved()
}

// SaveRequest carries the fields of a note to be saved.
type SaveRequest struct {
	UserID      string
	Username    string
	Text        string
	ChannelID   string
	ChannelName string
}

// Service validates and persists notes on top of a Store.
type Service struct {
	store    Store
	recorder Recorder
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceRecorder wires metrics.
func WithServiceRecorder(recorder Recorder) ServiceOption {
	return func(s *Service) {
		s.recorder = recorder
	}
}

// NewService constructs the note service.
func NewService(store Store, opts ...ServiceOption) *Service {
	svc := &Service{store: store}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Save persists one note and returns it with its assigned id. Text is
// trimmed before validation; a note that is only whitespace is rejected.
func (s *Service) Save(ctx context.Context, req SaveRequest) (*Note, error) {
	if s.store == nil {
		return nil, apperrors.New(apperrors.CodeInitializationFailure, "note service has no store")
	}
	if strings.TrimSpace(req.UserID) == "" {
		return nil, apperrors.New(apperrors.CodeInvalidArgument, "user id is required")
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, apperrors.New(apperrors.CodeNoteValidation, "note text is empty")
	}

	n := &Note{
		UserID:      strings.TrimSpace(req.UserID),
		Username:    strings.TrimSpace(req.Username),
		Text:        text,
		ChannelID:   strings.TrimSpace(req.ChannelID),
		ChannelName: strings.TrimSpace(req.ChannelName),
	}
	if err := s.store.Save(ctx, n); err != nil {
		return nil, err
	}
	if s.recorder != nil {
		s.recorder.RecordNoteSaved()
	}
	logger.Audit().Info("note_saved",
		slog.Int64("note_id", n.ID),
		slog.String("user_id", n.UserID),
		slog.String("channel_id", n.ChannelID),
		slog.Int("chars", len(n.Text)))
	return n, nil
}

// Get returns the note with the given id.
func (s *Service) Get(ctx context.Context, id int64) (*Note, error) {
	if s.store == nil {
		return nil, apperrors.New(apperrors.CodeInitializationFailure, "note service has no store")
	}
	return s.store.Get(ctx, id)
}

// List returns notes matching the given filters.
func (s *Service) List(ctx context.Context, opts ...ListOption) ([]*Note, error) {
	if s.store == nil {
		return nil, apperrors.New(apperrors.CodeInitializationFailure, "note service has no store")
	}
	options := buildListOptions(opts)
	return s.store.List(ctx, options)
}

// Stats returns aggregate counts for notes matching the given filters.
func (s *Service) Stats(ctx context.Context, opts ...ListOption) (Stats, error) {
	if s.store == nil {
		return Stats{}, apperrors.New(apperrors.CodeInitializationFailure, "note service has no store")
	}
	options := buildListOptions(opts)
	return s.store.Stats(ctx, options)
}

// Ping reports whether the backing store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	if s.store == nil {
		return apperrors.New(apperrors.CodeInitializationFailure, "note service has no store")
	}
	return s.store.Ping(ctx)
}

// Close releases the store.
func (s *Service) Close() error {
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}
