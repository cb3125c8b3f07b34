package slacknotes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestListNotesSendsTokenAndFilters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/notes" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Fatalf("unexpected auth header: %q", got)
		}
		q := r.URL.Query()
		if q.Get("user") != "U123" || q.Get("limit") != "2" || q.Get("q") != "milk" {
			t.Fatalf("unexpected query: %s", r.URL.RawQuery)
		}
		_ = json.NewEncoder(w).Encode(NotesPage{
			Notes: []Note{
				{ID: 2, UserID: "U123", Text: "buy milk", CreatedAt: time.Now().UTC()},
				{ID: 1, UserID: "U123", Text: "more milk", CreatedAt: time.Now().UTC()},
			},
			Count: 2,
			Limit: 2,
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "tok", srv.Client())
	page, err := client.ListNotes(context.Background(), ListNotesOptions{
		User:  "U123",
		Query: "milk",
		Limit: 2,
	})
	if err != nil {
		t.Fatalf("list notes: %v", err)
	}
	if page.Count != 2 || len(page.Notes) != 2 {
		t.Fatalf("unexpected page: %+v", page)
	}
	if page.Notes[0].ID != 2 || page.Notes[0].Text != "buy milk" {
		t.Fatalf("unexpected note: %+v", page.Notes[0])
	}
}

func TestGetStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/notes/stats" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(Stats{Total: 42, Users: 7, Channels: 3})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "tok", srv.Client())
	stats, err := client.GetStats(context.Background(), ListNotesOptions{})
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	if stats.Total != 42 || stats.Users != 7 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestAPIErrorDecoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error": "limit must be a positive integer",
			"code":  "INVALID_ARGUMENT",
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "tok", srv.Client())
	_, err := client.ListNotes(context.Background(), ListNotesOptions{Limit: 5})
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.StatusCode != 400 || apiErr.Code != "INVALID_ARGUMENT" {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
	if apiErr.Message != "limit must be a positive integer" {
		t.Fatalf("unexpected message: %q", apiErr.Message)
	}
}

func TestAPIErrorFallsBackToPlainBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "wrong", srv.Client())
	_, err := client.ListNotes(context.Background(), ListNotesOptions{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.StatusCode != 401 || apiErr.Message != "Unauthorized" {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
}

func TestHealthReportsDegradedWithoutError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "" {
			t.Fatal("healthz must not send the admin token")
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(Health{
			Status: "degraded",
			Checks: map[string]string{"mysql": "connection refused", "slack": "ok"},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "tok", srv.Client())
	health, err := client.Health(context.Background())
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if health.Status != "degraded" || health.Checks["mysql"] != "connection refused" {
		t.Fatalf("unexpected health: %+v", health)
	}
}
