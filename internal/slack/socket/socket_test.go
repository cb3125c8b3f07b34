package socket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"slacknotes/internal/event"
	"slacknotes/internal/slack"
)

type stubConnector struct {
	mu    sync.Mutex
	url   string
	err   error
	calls int
}

func (c *stubConnector) OpenSocketConnection(context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	return c.url, nil
}

func (c *stubConnector) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type captureIntake struct {
	mu   sync.Mutex
	envs []event.Envelope
}

func (c *captureIntake) Ingest(_ context.Context, env event.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.envs = append(c.envs, env)
	return nil
}

func (c *captureIntake) snapshot() []event.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]event.Envelope(nil), c.envs...)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

// newSocketServer runs script once per websocket connection.
func newSocketServer(t *testing.T, script func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		script(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestTransportIngestsAndAcks(t *testing.T) {
	acks := make(chan string, 8)
	hold := make(chan struct{})

	srv := newSocketServer(t, func(conn *websocket.Conn) {
		conn.WriteJSON(map[string]any{
			"type":            "hello",
			"num_connections": 1,
			"connection_info": map[string]string{"app_id": "A0001"},
		})

		// Unknown envelope types are acked and skipped.
		conn.WriteJSON(map[string]any{"type": "interactive", "envelope_id": "env-0"})

		// Garbage frames must not kill the connection.
		conn.WriteMessage(websocket.TextMessage, []byte("{not json"))

		conn.WriteJSON(map[string]any{
			"type":        "events_api",
			"envelope_id": "env-1",
			"payload": map[string]any{
				"type":     "event_callback",
				"event_id": "Ev0001",
				"event": map[string]any{
					"type":    "message",
					"user":    "U123",
					"channel": "C456",
					"text":    "hello bot",
				},
			},
		})
		conn.WriteJSON(map[string]any{
			"type":        "slash_commands",
			"envelope_id": "env-2",
			"payload": map[string]any{
				"command":      "/take_notes",
				"text":         "buy milk",
				"user_id":      "U123",
				"user_name":    "alice",
				"channel_id":   "C456",
				"response_url": "https://hooks.slack.test/commands/1",
			},
		})

		for i := 0; i < 3; i++ {
			var ack socketAck
			if err := conn.ReadJSON(&ack); err != nil {
				return
			}
			acks <- ack.EnvelopeID
		}
		<-hold
	})
	defer close(hold)

	connector := &stubConnector{url: wsURL(srv)}
	intake := &captureIntake{}
	transport := NewTransport(connector, intake, WithBackoff(time.Millisecond, 4*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- transport.Run(ctx) }()

	waitFor(t, 2*time.Second, func() bool { return len(intake.snapshot()) == 2 }, "envelopes not ingested")

	envs := intake.snapshot()
	if envs[0].Kind != event.KindMessage || envs[0].ID != "Ev0001" {
		t.Fatalf("unexpected first envelope: %+v", envs[0])
	}
	if envs[0].Message == nil || envs[0].Message.Text != "hello bot" {
		t.Fatalf("message payload lost: %+v", envs[0].Message)
	}
	if envs[1].Kind != event.KindSlashCommand || envs[1].Command == nil {
		t.Fatalf("unexpected second envelope: %+v", envs[1])
	}
	if envs[1].Command.Command != "/take_notes" || envs[1].Command.Text != "buy milk" {
		t.Fatalf("command payload lost: %+v", envs[1].Command)
	}

	for _, want := range []string{"env-0", "env-1", "env-2"} {
		select {
		case got := <-acks:
			if got != want {
				t.Fatalf("ack = %q, want %q", got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for ack %q", want)
		}
	}

	cancel()
	select {
	case err := <-runErr:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("transport did not stop on cancel")
	}
}

func TestTransportReconnectsAfterDisconnect(t *testing.T) {
	srv := newSocketServer(t, func(conn *websocket.Conn) {
		conn.WriteJSON(map[string]any{"type": "hello", "num_connections": 1})
		conn.WriteJSON(map[string]any{"type": "disconnect", "reason": "refresh_requested"})
	})

	connector := &stubConnector{url: wsURL(srv)}
	transport := NewTransport(connector, &captureIntake{}, WithBackoff(time.Millisecond, 4*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- transport.Run(ctx) }()

	// Every disconnect mints a fresh URL.
	waitFor(t, 2*time.Second, func() bool { return connector.callCount() >= 2 }, "transport did not reconnect")

	cancel()
	select {
	case <-runErr:
	case <-time.After(2 * time.Second):
		t.Fatal("transport did not stop on cancel")
	}
}

func TestTransportRetriesFailedURLMinting(t *testing.T) {
	connector := &stubConnector{err: errors.New("slack is down")}
	transport := NewTransport(connector, &captureIntake{}, WithBackoff(time.Millisecond, 4*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- transport.Run(ctx) }()

	waitFor(t, 2*time.Second, func() bool { return connector.callCount() >= 3 }, "transport gave up on retries")

	cancel()
	select {
	case err := <-runErr:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("transport did not stop on cancel")
	}
}

func TestTransportRequiresWiring(t *testing.T) {
	err := NewTransport(nil, nil).Run(context.Background())
	if err == nil {
		t.Fatal("expected wiring error")
	}
}

// The connector seam matches the real client.
var _ Connector = (*slack.Client)(nil)
