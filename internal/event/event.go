package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	apperrors "slacknotes/internal/errors"
	"slacknotes/internal/slack"
)

// Kind classifies an inbound envelope for routing and metrics.
type Kind string

const (
	KindMessage      Kind = "message"
	KindMention      Kind = "app_mention"
	KindSlashCommand Kind = "slash_command"
)

// Envelope is the unit that flows through the queue. Exactly one of Message
// or Command is set, matching Kind. Attempts counts deliveries to the
// processor; the intake always publishes with Attempts zero.
type Envelope struct {
	ID         string              `json:"id"`
	Kind       Kind                `json:"kind"`
	Attempts   int                 `json:"attempts"`
	ReceivedAt time.Time           `json:"received_at"`
	Message    *slack.InnerEvent   `json:"message,omitempty"`
	Command    *slack.SlashCommand `json:"command,omitempty"`
}

// FromEventCallback normalizes an Events API callback. ok is false for
// event types the bot does not handle; those are acked and forgotten.
func FromEventCallback(cb slack.EventCallback) (Envelope, bool) {
	var kind Kind
	switch cb.Event.Type {
	case "message":
		kind = KindMessage
	case "app_mention":
		kind = KindMention
	default:
		return Envelope{}, false
	}

	id := cb.EventID
	if id == "" {
		id = uuid.NewString()
	}
	inner := cb.Event
	return Envelope{
		ID:         id,
		Kind:       kind,
		ReceivedAt: time.Now().UTC(),
		Message:    &inner,
	}, true
}

// FromSlashCommand normalizes a slash command invocation. Slack assigns no
// event ID to commands, so each gets a fresh one.
func FromSlashCommand(cmd slack.SlashCommand) Envelope {
	return Envelope{
		ID:         uuid.NewString(),
		Kind:       KindSlashCommand,
		ReceivedAt: time.Now().UTC(),
		Command:    &cmd,
	}
}

// UserID returns the Slack user behind the envelope, empty if unknown.
func (e Envelope) UserID() string {
	switch {
	case e.Message != nil:
		return e.Message.User
	case e.Command != nil:
		return e.Command.UserID
	}
	return ""
}

// ChannelID returns the channel the envelope originated in, empty if
// unknown.
func (e Envelope) ChannelID() string {
	switch {
	case e.Message != nil:
		return e.Message.Channel
	case e.Command != nil:
		return e.Command.ChannelID
	}
	return ""
}

// Text returns the user-entered text of the envelope.
func (e Envelope) Text() string {
	switch {
	case e.Message != nil:
		return e.Message.Text
	case e.Command != nil:
		return e.Command.Text
	}
	return ""
}

// Encode renders the envelope for queue transports that carry bytes.
func (e Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeEventDecodeFailure, err, "encode envelope")
	}
	return data, nil
}

// Decode parses an envelope off the wire.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, apperrors.Wrap(apperrors.CodeEventDecodeFailure, err, "decode envelope")
	}
	if env.ID == "" || env.Kind == "" {
		return Envelope{}, apperrors.New(apperrors.CodeEventDecodeFailure, "envelope missing id or kind")
	}
	return env, nil
}
