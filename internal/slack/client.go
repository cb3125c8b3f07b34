package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	apperrors "slacknotes/internal/errors"
)

const (
	defaultBaseURL = "https://slack.com/api"
	defaultTimeout = 30 * time.Second
)

// CallRecorder receives one observation per Web API round trip. A nil
// recorder disables instrumentation.
type CallRecorder interface {
	RecordSlackCall(method, status string, elapsed time.Duration)
}

// Config describes how to reach the Slack Web API.
type Config struct {
	BotToken string
	AppToken string
	BaseURL  string
	Timeout  time.Duration
	Recorder CallRecorder
}

// Client is a thin typed wrapper over the handful of Web API methods the
// bot uses. It keeps no state besides credentials.
type Client struct {
	botToken   string
	appToken   string
	baseURL    string
	httpClient *http.Client
	recorder   CallRecorder
}

// NewClient validates the credentials and applies defaults.
func NewClient(cfg Config) (*Client, error) {
	botToken := strings.TrimSpace(cfg.BotToken)
	if botToken == "" {
		return nil, apperrors.New(apperrors.CodeInvalidArgument, "slack bot token is required")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		botToken:   botToken,
		appToken:   strings.TrimSpace(cfg.AppToken),
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		recorder:   cfg.Recorder,
	}, nil
}

// AuthTest verifies the bot token and identifies the workspace. Run it once
// at startup so a bad token fails the boot instead of the first reply.
func (c *Client) AuthTest(ctx context.Context) (*AuthTestResponse, error) {
	var out struct {
		apiResponse
		AuthTestResponse
	}
	if err := c.postJSON(ctx, "auth.test", c.botToken, nil, &out); err != nil {
		return nil, err
	}
	return &out.AuthTestResponse, nil
}

// PostMessage sends text to a channel and returns the message receipt.
func (c *Client) PostMessage(ctx context.Context, channelID, text string) (*MessageReceipt, error) {
	payload := map[string]string{"channel": channelID, "text": text}
	var out struct {
		apiResponse
		MessageReceipt
	}
	if err := c.postJSON(ctx, "chat.postMessage", c.botToken, payload, &out); err != nil {
		return nil, err
	}
	return &out.MessageReceipt, nil
}

// ConversationsInfo resolves channel metadata. Callers treat failures as
// non-fatal; a missing name only degrades the reply formatting.
func (c *Client) ConversationsInfo(ctx context.Context, channelID string) (*Channel, error) {
	endpoint := fmt.Sprintf("%s/conversations.info?channel=%s", c.baseURL, url.QueryEscape(channelID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeSlackAPIFailure, err, "build conversations.info request")
	}
	req.Header.Set("Authorization", "Bearer "+c.botToken)

	var out struct {
		apiResponse
		Channel *Channel `json:"channel"`
	}
	if err := c.do(req, "conversations.info", &out.apiResponse, &out); err != nil {
		return nil, err
	}
	if out.Channel == nil {
		return nil, apperrors.New(apperrors.CodeSlackAPIFailure, "conversations.info returned no channel")
	}
	return out.Channel, nil
}

// OpenSocketConnection asks Slack for a fresh socket-mode websocket URL.
// Requires the app-level token.
func (c *Client) OpenSocketConnection(ctx context.Context) (string, error) {
	if c.appToken == "" {
		return "", apperrors.New(apperrors.CodeInvalidArgument, "slack app token is required for socket mode")
	}
	var out struct {
		apiResponse
		URL string `json:"url"`
	}
	if err := c.postJSON(ctx, "apps.connections.open", c.appToken, nil, &out); err != nil {
		return "", err
	}
	if out.URL == "" {
		return "", apperrors.New(apperrors.CodeSlackAPIFailure, "apps.connections.open returned no url")
	}
	return out.URL, nil
}

// RespondToCommand posts an ephemeral reply to a slash command through its
// response_url. These URLs are pre-authorized, no token is attached.
func (c *Client) RespondToCommand(ctx context.Context, responseURL, text string) error {
	body, err := json.Marshal(map[string]string{
		"response_type": "ephemeral",
		"text":          text,
	})
	if err != nil {
		return apperrors.Wrap(apperrors.CodeSlackAPIFailure, err, "encode command response")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, responseURL, bytes.NewReader(body))
	if err != nil {
		return apperrors.Wrap(apperrors.CodeSlackAPIFailure, err, "build command response request")
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record("response_url", "transport_error", start)
		return apperrors.Wrap(apperrors.CodeSlackAPIFailure, err, "post command response")
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		c.record("response_url", fmt.Sprintf("http_%d", resp.StatusCode), start)
		return apperrors.New(apperrors.CodeSlackAPIFailure,
			fmt.Sprintf("response_url returned status %d", resp.StatusCode))
	}
	c.record("response_url", "ok", start)
	return nil
}

func (c *Client) postJSON(ctx context.Context, method, token string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return apperrors.Wrap(apperrors.CodeSlackAPIFailure, err, "encode "+method+" payload")
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, body)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeSlackAPIFailure, err, "build "+method+" request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	return c.do(req, method, statusOf(out), out)
}

// statusOf digs the embedded apiResponse out of a response struct.
func statusOf(out any) *apiResponse {
	type statusCarrier interface{ status() *apiResponse }
	if carrier, ok := out.(statusCarrier); ok {
		return carrier.status()
	}
	return nil
}

func (r *apiResponse) status() *apiResponse { return r }

func (c *Client) do(req *http.Request, method string, status *apiResponse, out any) error {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(method, "transport_error", start)
		return apperrors.Wrap(apperrors.CodeSlackAPIFailure, err, "call "+method)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := strings.TrimSpace(resp.Header.Get("Retry-After"))
		c.record(method, "rate_limited", start)
		return apperrors.New(apperrors.CodeSlackRateLimited,
			fmt.Sprintf("%s rate limited", method),
			apperrors.WithMetadata("retry_after_seconds", retryAfter))
	}
	if resp.StatusCode >= http.StatusBadRequest {
		c.record(method, fmt.Sprintf("http_%d", resp.StatusCode), start)
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return apperrors.New(apperrors.CodeSlackAPIFailure,
			fmt.Sprintf("%s returned status %d: %s", method, resp.StatusCode, strings.TrimSpace(string(body))))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.record(method, "decode_error", start)
		return apperrors.Wrap(apperrors.CodeSlackAPIFailure, err, "decode "+method+" response")
	}

	if status != nil && !status.OK {
		reason := status.Error
		if reason == "" {
			reason = "unknown_error"
		}
		c.record(method, reason, start)
		return classifyAPIError(method, reason)
	}
	c.record(method, "ok", start)
	return nil
}

func classifyAPIError(method, reason string) error {
	meta := apperrors.WithMetadata("slack_error", reason)
	switch reason {
	case "invalid_auth", "not_authed", "account_inactive", "token_revoked", "token_expired", "missing_scope":
		return apperrors.New(apperrors.CodeSlackAuthFailure,
			fmt.Sprintf("%s rejected: %s", method, reason), meta)
	case "ratelimited", "rate_limited":
		return apperrors.New(apperrors.CodeSlackRateLimited,
			fmt.Sprintf("%s rate limited", method), meta)
	default:
		return apperrors.New(apperrors.CodeSlackAPIFailure,
			fmt.Sprintf("%s failed: %s", method, reason), meta)
	}
}

func (c *Client) record(method, status string, start time.Time) {
	if c.recorder == nil {
		return
	}
	c.recorder.RecordSlackCall(method, status, time.Since(start))
}

// RetryAfter extracts the advisory wait from a rate-limit error, zero when
// absent.
func RetryAfter(err error) time.Duration {
	e, ok := apperrors.From(err)
	if !ok || e.Code() != apperrors.CodeSlackRateLimited {
		return 0
	}
	raw := e.Metadata()["retry_after_seconds"]
	if raw == "" {
		return 0
	}
	seconds, err2 := strconv.Atoi(raw)
	if err2 != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
