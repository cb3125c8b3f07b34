package eventsrv

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	apperrors "slacknotes/internal/errors"
	"slacknotes/internal/event"
	"slacknotes/internal/slack"
)

type captureIntake struct {
	mu   sync.Mutex
	envs []event.Envelope
	err  error
}

func (c *captureIntake) Ingest(_ context.Context, env event.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.envs = append(c.envs, env)
	return nil
}

func newTestServer(t *testing.T, intake Intake) (*Server, *slack.Verifier) {
	t.Helper()
	verifier, err := slack.NewVerifier("test-signing-secret")
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	srv, err := NewServer("127.0.0.1:0", verifier, intake)
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	return srv, verifier
}

func signedRequest(verifier *slack.Verifier, target, contentType string, body []byte) (*httptest.ResponseRecorder, *http.Request) {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	req := httptest.NewRequest("POST", target, strings.NewReader(string(body)))
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Slack-Request-Timestamp", ts)
	req.Header.Set("X-Slack-Signature", verifier.Sign(ts, body))
	rec := httptest.NewRecorder()
	return rec, req
}

func TestHandleEventsURLVerification(t *testing.T) {
	intake := &captureIntake{}
	srv, verifier := newTestServer(t, intake)

	body := []byte(`{"type":"url_verification","challenge":"ch4ll3ng3"}`)
	rec, req := signedRequest(verifier, "/slack/events", "application/json", body)
	srv.routes().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	var out map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["challenge"] != "ch4ll3ng3" {
		t.Fatalf("challenge = %q", out["challenge"])
	}
	if len(intake.envs) != 0 {
		t.Fatal("verification must not enqueue")
	}
}

func TestHandleEventsEnqueuesCallback(t *testing.T) {
	intake := &captureIntake{}
	srv, verifier := newTestServer(t, intake)

	body := []byte(`{
		"type": "event_callback",
		"event_id": "Ev0001",
		"event": {"type": "message", "user": "U123", "channel": "C456", "text": "hello"}
	}`)
	rec, req := signedRequest(verifier, "/slack/events", "application/json", body)
	srv.routes().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if len(intake.envs) != 1 {
		t.Fatalf("expected 1 envelope, got %d", len(intake.envs))
	}
	env := intake.envs[0]
	if env.ID != "Ev0001" || env.Kind != event.KindMessage {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if env.Message == nil || env.Message.Text != "hello" {
		t.Fatalf("payload lost: %+v", env.Message)
	}
}

func TestHandleEventsIgnoresUnhandledTypes(t *testing.T) {
	intake := &captureIntake{}
	srv, verifier := newTestServer(t, intake)

	body := []byte(`{
		"type": "event_callback",
		"event_id": "Ev0002",
		"event": {"type": "reaction_added", "user": "U123"}
	}`)
	rec, req := signedRequest(verifier, "/slack/events", "application/json", body)
	srv.routes().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(intake.envs) != 0 {
		t.Fatal("unhandled event types must not enqueue")
	}
}

func TestHandleEventsRejectsBadSignature(t *testing.T) {
	intake := &captureIntake{}
	srv, _ := newTestServer(t, intake)

	body := []byte(`{"type":"event_callback"}`)
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	req := httptest.NewRequest("POST", "/slack/events", strings.NewReader(string(body)))
	req.Header.Set("X-Slack-Request-Timestamp", ts)
	req.Header.Set("X-Slack-Signature", "v0=deadbeef")
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)

	if rec.Code != 401 {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if len(intake.envs) != 0 {
		t.Fatal("forged request must not enqueue")
	}
}

func TestHandleEventsEnqueueFailure(t *testing.T) {
	intake := &captureIntake{err: apperrors.New(apperrors.CodeQueueFailure, "redis gone")}
	srv, verifier := newTestServer(t, intake)

	body := []byte(`{
		"type": "event_callback",
		"event_id": "Ev0003",
		"event": {"type": "message", "user": "U123", "channel": "C456", "text": "hello"}
	}`)
	rec, req := signedRequest(verifier, "/slack/events", "application/json", body)
	srv.routes().ServeHTTP(rec, req)

	// Slack redelivers on 5xx, which is what a lost envelope needs.
	if rec.Code != 500 {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestHandleCommandsEnqueuesSlash(t *testing.T) {
	intake := &captureIntake{}
	srv, verifier := newTestServer(t, intake)

	form := url.Values{}
	form.Set("command", "/take_notes")
	form.Set("text", "buy milk")
	form.Set("user_id", "U123")
	form.Set("user_name", "alice")
	form.Set("channel_id", "C456")
	form.Set("response_url", "https://hooks.slack.test/commands/1")
	body := []byte(form.Encode())

	rec, req := signedRequest(verifier, "/slack/commands", "application/x-www-form-urlencoded", body)
	srv.routes().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("ack body must be empty, got %q", rec.Body.String())
	}
	if len(intake.envs) != 1 {
		t.Fatalf("expected 1 envelope, got %d", len(intake.envs))
	}
	env := intake.envs[0]
	if env.Kind != event.KindSlashCommand || env.Command == nil {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if env.Command.Command != "/take_notes" || env.Command.UserName != "alice" {
		t.Fatalf("command payload lost: %+v", env.Command)
	}
}

func TestHandleCommandsRejectsMissingCommand(t *testing.T) {
	intake := &captureIntake{}
	srv, verifier := newTestServer(t, intake)

	body := []byte("text=orphan")
	rec, req := signedRequest(verifier, "/slack/commands", "application/x-www-form-urlencoded", body)
	srv.routes().ServeHTTP(rec, req)

	if rec.Code != 400 {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestIntakeRejectsNonPost(t *testing.T) {
	srv, _ := newTestServer(t, &captureIntake{})

	req := httptest.NewRequest("GET", "/slack/events", nil)
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)

	if rec.Code != 405 {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}
