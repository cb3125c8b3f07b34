// Package socket maintains the Socket Mode connection to Slack. It dials
// the websocket URL minted by apps.connections.open, acknowledges every
// envelope, and feeds the decoded events into the intake pipeline. Slack
// invalidates socket URLs on disconnect, so every reconnect asks for a
// fresh one.
package socket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/gorilla/websocket"

	apperrors "slacknotes/internal/errors"
	"slacknotes/internal/event"
	"slacknotes/internal/slack"
	"slacknotes/pkg/logger"
)

const (
	defaultMinBackoff = time.Second
	defaultMaxBackoff = 30 * time.Second

	writeTimeout = 10 * time.Second
)

// Connector mints fresh websocket URLs. *slack.Client implements it.
type Connector interface {
	OpenSocketConnection(ctx context.Context) (string, error)
}

// Intake receives the decoded envelopes. *event.Ingestor implements it.
type Intake interface {
	Ingest(ctx context.Context, env event.Envelope) error
}

// Transport runs the Socket Mode read loop with reconnects.
type Transport struct {
	connector Connector
	intake    Intake
	dialer    *websocket.Dialer
	logger    *slog.Logger

	minBackoff time.Duration
	maxBackoff time.Duration
}

// TransportOption customizes the transport.
type TransportOption func(*Transport)

// WithDialer replaces the websocket dialer.
func WithDialer(dialer *websocket.Dialer) TransportOption {
	return func(t *Transport) {
		if dialer != nil {
			t.dialer = dialer
		}
	}
}

// WithTransportLogger replaces the default logger.
func WithTransportLogger(l *slog.Logger) TransportOption {
	return func(t *Transport) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithBackoff bounds the reconnect delay.
func WithBackoff(min, max time.Duration) TransportOption {
	return func(t *Transport) {
		if min > 0 {
			t.minBackoff = min
		}
		if max >= min && max > 0 {
			t.maxBackoff = max
		}
	}
}

// NewTransport wires the transport to its URL source and intake.
func NewTransport(connector Connector, intake Intake, opts ...TransportOption) *Transport {
	t := &Transport{
		connector:  connector,
		intake:     intake,
		dialer:     websocket.DefaultDialer,
		logger:     logger.Named("socket"),
		minBackoff: defaultMinBackoff,
		maxBackoff: defaultMaxBackoff,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Run connects and serves until ctx is canceled. Connection drops are
// retried with capped jittered backoff; a served hello resets the backoff.
func (t *Transport) Run(ctx context.Context) error {
	if t.connector == nil || t.intake == nil {
		return apperrors.New(apperrors.CodeInitializationFailure, "socket transport requires a connector and an intake")
	}

	backoff := t.minBackoff
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		wsURL, err := t.connector.OpenSocketConnection(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			t.logger.Error("socket url request failed", slog.Any("error", err))
		} else {
			connected, serveErr := t.serve(ctx, wsURL)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if connected {
				backoff = t.minBackoff
			}
			if serveErr != nil {
				t.logger.Warn("socket connection lost", slog.Any("error", serveErr))
			} else {
				// Slack asked for a refresh; reconnect without delay.
				continue
			}
		}

		if err := t.wait(ctx, backoff); err != nil {
			return err
		}
		backoff *= 2
		if backoff > t.maxBackoff {
			backoff = t.maxBackoff
		}
	}
}

// serve drains one websocket connection. It returns nil after a disconnect
// envelope and an error for every other termination. connected reports
// whether the hello arrived, which is when the backoff may reset.
func (t *Transport) serve(ctx context.Context, wsURL string) (connected bool, err error) {
	conn, _, err := t.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return false, apperrors.Wrap(apperrors.CodeSocketDisconnected, err, "dial socket url")
	}
	defer conn.Close()

	// Unblock the read on shutdown.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return connected, ctx.Err()
			}
			return connected, apperrors.Wrap(apperrors.CodeSocketDisconnected, err, "read socket envelope")
		}

		var env socketEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.logger.Warn("undecodable socket frame", slog.Any("error", err))
			continue
		}

		switch env.Type {
		case "hello":
			connected = true
			t.handleHello(env)
		case "events_api":
			t.ack(conn, env.EnvelopeID)
			t.handleEventsAPI(ctx, env)
		case "slash_commands":
			t.ack(conn, env.EnvelopeID)
			t.handleSlashCommand(ctx, env)
		case "disconnect":
			t.logger.Info("disconnect requested", slog.String("reason", env.Reason))
			return connected, nil
		default:
			t.ack(conn, env.EnvelopeID)
			t.logger.Debug("ignoring socket envelope", slog.String("type", env.Type))
		}
	}
}

func (t *Transport) handleHello(env socketEnvelope) {
	var hello helloPayload
	_ = json.Unmarshal(env.Raw, &hello)
	logger.Audit().Info("bot_connected",
		slog.String("app_id", hello.ConnectionInfo.AppID),
		slog.Int("num_connections", hello.NumConnections))
	t.logger.Info("socket connected",
		slog.Int("num_connections", hello.NumConnections))
}

func (t *Transport) handleEventsAPI(ctx context.Context, sockEnv socketEnvelope) {
	var cb slack.EventCallback
	if err := json.Unmarshal(sockEnv.Payload, &cb); err != nil {
		t.logger.Warn("undecodable events_api payload",
			slog.Any("error", err),
			slog.String("envelope_id", sockEnv.EnvelopeID))
		return
	}
	if sockEnv.RetryAttempt > 0 {
		t.logger.Debug("slack redelivery",
			slog.String("event_id", cb.EventID),
			slog.Int("retry_attempt", sockEnv.RetryAttempt),
			slog.String("retry_reason", sockEnv.RetryReason))
	}

	env, ok := event.FromEventCallback(cb)
	if !ok {
		return
	}
	if err := t.intake.Ingest(ctx, env); err != nil {
		t.logger.Error("ingest failed",
			slog.Any("error", err),
			slog.String("envelope_id", env.ID))
	}
}

func (t *Transport) handleSlashCommand(ctx context.Context, sockEnv socketEnvelope) {
	var cmd slack.SlashCommand
	if err := json.Unmarshal(sockEnv.Payload, &cmd); err != nil {
		t.logger.Warn("undecodable slash_commands payload",
			slog.Any("error", err),
			slog.String("envelope_id", sockEnv.EnvelopeID))
		return
	}

	env := event.FromSlashCommand(cmd)
	if err := t.intake.Ingest(ctx, env); err != nil {
		t.logger.Error("ingest failed",
			slog.Any("error", err),
			slog.String("envelope_id", env.ID))
	}
}

// ack confirms receipt so Slack stops redelivering. Failures surface on the
// next read, so they are only logged here.
func (t *Transport) ack(conn *websocket.Conn, envelopeID string) {
	if envelopeID == "" {
		return
	}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(socketAck{EnvelopeID: envelopeID}); err != nil {
		t.logger.Warn("ack failed",
			slog.Any("error", err),
			slog.String("envelope_id", envelopeID))
	}
}

func (t *Transport) wait(ctx context.Context, backoff time.Duration) error {
	delay := backoff/2 + time.Duration(rand.Int63n(int64(backoff/2+1)))
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// socketEnvelope is the framing Slack wraps around every Socket Mode
// message. Raw keeps the whole frame for types whose extra fields live at
// the top level, like hello.
type socketEnvelope struct {
	Type         string          `json:"type"`
	EnvelopeID   string          `json:"envelope_id"`
	Payload      json.RawMessage `json:"payload"`
	RetryAttempt int             `json:"retry_attempt"`
	RetryReason  string          `json:"retry_reason"`
	Reason       string          `json:"reason"`

	Raw json.RawMessage `json:"-"`
}

// UnmarshalJSON retains the raw frame alongside the decoded fields.
func (e *socketEnvelope) UnmarshalJSON(data []byte) error {
	type alias socketEnvelope
	var decoded alias
	if err := json.Unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("decode socket envelope: %w", err)
	}
	*e = socketEnvelope(decoded)
	e.Raw = append(e.Raw[:0], data...)
	return nil
}

type helloPayload struct {
	NumConnections int `json:"num_connections"`
	ConnectionInfo struct {
		AppID string `json:"app_id"`
	} `json:"connection_info"`
}

type socketAck struct {
	EnvelopeID string `json:"envelope_id"`
}
