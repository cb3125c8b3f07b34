// Package slacknotes is the Go client for the note bot's admin API.
package slacknotes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. It is intentionally short to avoid hanging network calls.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the HTTP interactions with the admin REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	token      string
}

// Note mirrors one stored note.
type Note struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"user_id"`
	Username    string    `json:"username,omitempty"`
	Text        string    `json:"text"`
	ChannelID   string    `json:"channel_id,omitempty"`
	ChannelName string    `json:"channel_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// NotesPage is one page of the note listing.
type NotesPage struct {
	Notes  []Note `json:"notes"`
	Count  int    `json:"count"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

// Stats aggregates the stored notes.
type Stats struct {
	Total           int   `json:"total"`
	Users           int   `json:"users"`
	Channels        int   `json:"channels"`
	OldestCreatedAt int64 `json:"oldest_created_at,omitempty"`
	NewestCreatedAt int64 `json:"newest_created_at,omitempty"`
}

// Health reports the daemon's dependency checks.
type Health struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// ListNotesOptions narrows a ListNotes or GetStats call. Zero values are
// omitted from the query.
type ListNotesOptions struct {
	User    string
	Channel string
	Query   string
	Limit   int
	Offset  int
	Since   time.Time
	Until   time.Time
	Order   string
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("slacknotes api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("slacknotes api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the admin API. When httpClient is
// nil, a default client with a sensible timeout is used.
func NewClient(rawURL, token string, httpClient *http.Client) *Client {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		panic(fmt.Sprintf("invalid base url: %v", err))
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient, token: token}
}

// ListNotes fetches one page of notes matching the options.
func (c *Client) ListNotes(ctx context.Context, opts ListNotesOptions) (NotesPage, error) {
	var page NotesPage
	endpoint := "/api/v1/notes"
	if query := opts.encode(); query != "" {
		endpoint += "?" + query
	}
	if err := c.get(ctx, endpoint, &page, true); err != nil {
		return NotesPage{}, err
	}
	return page, nil
}

// GetStats fetches aggregate counters, narrowed by the same filters as
// ListNotes.
func (c *Client) GetStats(ctx context.Context, opts ListNotesOptions) (Stats, error) {
	var stats Stats
	endpoint := "/api/v1/notes/stats"
	if query := opts.encode(); query != "" {
		endpoint += "?" + query
	}
	if err := c.get(ctx, endpoint, &stats, true); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

// Health probes the daemon. A degraded report is data, not an error; the
// error return is reserved for transport and protocol failures.
func (c *Client) Health(ctx context.Context) (Health, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/healthz", nil, false)
	if err != nil {
		return Health{}, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Health{}, fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return Health{}, apiErrorFrom(resp)
	}
	var out Health
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Health{}, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

func (o ListNotesOptions) encode() string {
	values := url.Values{}
	if o.User != "" {
		values.Set("user", o.User)
	}
	if o.Channel != "" {
		values.Set("channel", o.Channel)
	}
	if o.Query != "" {
		values.Set("q", o.Query)
	}
	if o.Limit > 0 {
		values.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.Offset > 0 {
		values.Set("offset", strconv.Itoa(o.Offset))
	}
	if !o.Since.IsZero() {
		values.Set("since", o.Since.Format(time.RFC3339))
	}
	if !o.Until.IsZero() {
		values.Set("until", o.Until.Format(time.RFC3339))
	}
	if o.Order != "" {
		values.Set("order", o.Order)
	}
	return values.Encode()
}

func (c *Client) get(ctx context.Context, endpoint string, out any, withAuth bool) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil, withAuth)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader, withAuth bool) (*http.Request, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	rel := &url.URL{Path: path.Join(c.baseURL.Path, parsed.Path), RawQuery: parsed.RawQuery}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if withAuth && c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return apiErrorFrom(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func apiErrorFrom(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read error response: %w", err)
	}
	if len(data) > 0 {
		_ = json.Unmarshal(data, apiErr)
	}
	if apiErr.Message == "" {
		apiErr.Message = string(bytes.TrimSpace(data))
	}
	return apiErr
}
