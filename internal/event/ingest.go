package event

import (
	"context"
	"fmt"
	"log/slog"

	apperrors "slacknotes/internal/errors"
	"slacknotes/pkg/logger"
)

// IngestRecorder counts intake outcomes. Nil disables instrumentation.
type IngestRecorder interface {
	RecordReceived(kind, outcome string)
}

// Ingestor is the single entry point both intake transports feed. It
// filters bot-authored messages, drops duplicates and hands the rest to
// the queue.
type Ingestor struct {
	producer Producer
	seen     SeenStore
	logger   *slog.Logger
	recorder IngestRecorder
}

// IngestorOption configures an Ingestor.
type IngestorOption func(*Ingestor)

// WithSeenStore enables duplicate suppression. Slack redelivers events it
// did not see acknowledged in time, so intake without a seen store will
// occasionally double-handle.
func WithSeenStore(seen SeenStore) IngestorOption {
	return func(i *Ingestor) {
		i.seen = seen
	}
}

// WithIngestLogger routes the ingestor's debug chatter.
func WithIngestLogger(log *slog.Logger) IngestorOption {
	return func(i *Ingestor) {
		i.logger = log
	}
}

// WithIngestRecorder wires metrics.
func WithIngestRecorder(recorder IngestRecorder) IngestorOption {
	return func(i *Ingestor) {
		i.recorder = recorder
	}
}

// NewIngestor builds an Ingestor over the given producer.
func NewIngestor(producer Producer, opts ...IngestorOption) *Ingestor {
	ing := &Ingestor{producer: producer}
	for _, opt := range opts {
		if opt != nil {
			opt(ing)
		}
	}
	return ing
}

// Ingest accepts one envelope. A nil return means the envelope was dealt
// with, dropped envelopes included; callers should only surface errors.
func (i *Ingestor) Ingest(ctx context.Context, env Envelope) error {
	if i.producer == nil {
		return apperrors.New(apperrors.CodeInitializationFailure, "ingestor has no producer")
	}

	// The bot hears its own chat.postMessage output as a fresh message
	// event. Echoing those back would loop forever.
	if env.Message != nil && env.Message.FromBot() {
		i.record(env, "filtered_bot")
		i.logDebug("bot-authored message filtered",
			slog.String("envelope_id", env.ID),
			slog.String("kind", string(env.Kind)))
		return nil
	}

	if i.seen != nil {
		dup, err := i.seen.Seen(ctx, env.ID)
		if err != nil {
			// Dedupe is best effort. A broken seen store must not
			// stop the bot from answering, so fail open.
			logger.L().Warn("dedupe check failed, accepting envelope",
				slog.Any("error", err),
				slog.String("envelope_id", env.ID))
		} else if dup {
			i.record(env, "duplicate")
			i.logDebug("duplicate envelope dropped",
				slog.String("envelope_id", env.ID),
				slog.String("kind", string(env.Kind)))
			return nil
		}
	}

	if err := i.producer.Publish(ctx, env); err != nil {
		i.record(env, "publish_failed")
		logger.L().Error("envelope enqueue failed",
			slog.Any("error", err),
			slog.String("envelope_id", env.ID))
		return apperrors.Wrap(apperrors.CodeQueueFailure, err,
			fmt.Sprintf("enqueue envelope %s", env.ID))
	}

	i.record(env, "accepted")
	logger.Audit().Info("event_accepted",
		slog.String("envelope_id", env.ID),
		slog.String("kind", string(env.Kind)),
		slog.String("user_id", env.UserID()),
		slog.String("channel_id", env.ChannelID()))
	return nil
}

func (i *Ingestor) record(env Envelope, outcome string) {
	if i.recorder == nil {
		return
	}
	i.recorder.RecordReceived(string(env.Kind), outcome)
}

func (i *Ingestor) logDebug(msg string, attrs ...slog.Attr) {
	if i.logger == nil {
		return
	}
	args := make([]any, len(attrs))
	for idx, attr := range attrs {
		args[idx] = attr
	}
	i.logger.Debug(msg, args...)
}
