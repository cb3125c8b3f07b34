package alerting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	xerrors "slacknotes/internal/errors"
	"slacknotes/pkg/logger"
)

// Channel names a notification target.
type Channel string

const (
	ChannelLog   Channel = "log"
	ChannelSlack Channel = "slack"
)

// Event describes one alert-worthy failure in the pipeline.
type Event struct {
	Code        xerrors.Code
	Message     string
	Severity    xerrors.Severity
	EnvelopeID  string
	Kind        string
	Attempts    int
	MaxAttempts int
	Metadata    map[string]string
	OccurredAt  time.Time
}

// Notifier delivers events to one channel.
type Notifier interface {
	Channel() Channel
	Notify(ctx context.Context, event Event) error
}

// Dispatcher broadcasts events to every configured notifier.
type Dispatcher interface {
	Notify(ctx context.Context, event Event) error
}

// FanoutDispatcher fans an event out to all registered notifiers and joins
// their failures.
type FanoutDispatcher struct {
	notifiers map[Channel]Notifier
}

// NewFanout registers the given notifiers, ignoring nils.
func NewFanout(notifiers ...Notifier) *FanoutDispatcher {
	set := make(map[Channel]Notifier, len(notifiers))
	for _, n := range notifiers {
		if n == nil {
			continue
		}
		set[n.Channel()] = n
	}
	return &FanoutDispatcher{notifiers: set}
}

// Notify implements Dispatcher.
func (d *FanoutDispatcher) Notify(ctx context.Context, event Event) error {
	if d == nil {
		return nil
	}
	var errs []error
	for _, notifier := range d.notifiers {
		if err := notifier.Notify(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("channel %s: %w", notifier.Channel(), err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// LogNotifier writes alerts to the structured log. Always registered so an
// alert is never silently lost even with no Slack channel configured.
type LogNotifier struct {
	Logger *slog.Logger
}

// Channel returns the log channel.
func (n *LogNotifier) Channel() Channel { return ChannelLog }

// Notify implements Notifier.
func (n *LogNotifier) Notify(_ context.Context, event Event) error {
	log := logger.L()
	if n != nil && n.Logger != nil {
		log = n.Logger
	}
	attrs := []any{
		slog.String("code", string(event.Code)),
		slog.String("severity", string(event.Severity)),
		slog.String("envelope_id", event.EnvelopeID),
		slog.String("kind", event.Kind),
		slog.Int("attempts", event.Attempts),
		slog.Int("max_attempts", event.MaxAttempts),
	}
	for k, v := range event.Metadata {
		attrs = append(attrs, slog.String("meta_"+k, v))
	}
	switch event.Severity {
	case xerrors.SeverityCritical:
		log.Error(event.Message, attrs...)
	default:
		log.Warn(event.Message, attrs...)
	}
	return nil
}

// SlackSender posts alert text into a channel. The bot's own Web API
// client satisfies this.
type SlackSender interface {
	Send(ctx context.Context, channelID, content string) error
}

// SlackNotifier mirrors alerts into an operator channel in the same
// workspace the bot serves.
type SlackNotifier struct {
	Sender    SlackSender
	ChannelID string
}

// Channel returns the slack channel.
func (n *SlackNotifier) Channel() Channel { return ChannelSlack }

// Notify implements Notifier.
func (n *SlackNotifier) Notify(ctx context.Context, event Event) error {
	if n == nil || n.Sender == nil || n.ChannelID == "" {
		logger.L().Warn("slack notifier not configured, dropping alert",
			slog.String("code", string(event.Code)),
			slog.String("envelope_id", event.EnvelopeID))
		return nil
	}
	content := fmt.Sprintf("*[%s]* %s - %s (attempt %d/%d)",
		event.Severity, event.Code, event.Message, event.Attempts, event.MaxAttempts)
	return n.Sender.Send(ctx, n.ChannelID, content)
}
