package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"slacknotes/sdk/go/slacknotes"
)

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(slacknotes.Health{
			Status: "ok",
			Checks: map[string]string{"mysql": "ok", "slack": "ok"},
		})
	})
	mux.HandleFunc("/api/v1/notes", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(slacknotes.NotesPage{
			Notes: []slacknotes.Note{
				{
					ID:          2,
					UserID:      "U123",
					Username:    "alice",
					Text:        "remember the demo",
					ChannelName: "general",
					CreatedAt:   time.Now().UTC(),
				},
				{
					ID:        1,
					UserID:    "U123",
					Username:  "alice",
					Text:      "buy milk",
					CreatedAt: time.Now().Add(-time.Hour).UTC(),
				},
			},
			Count: 2,
			Limit: 5,
		})
	})
	mux.HandleFunc("/api/v1/notes/stats", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(slacknotes.Stats{Total: 2, Users: 1, Channels: 1})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := slacknotes.NewClient(srv.URL, "demo-token", srv.Client())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	health, err := client.Health(ctx)
	if err != nil {
		panic(err)
	}
	fmt.Printf("daemon status: %s\n", health.Status)

	page, err := client.ListNotes(ctx, slacknotes.ListNotesOptions{User: "U123", Limit: 5})
	if err != nil {
		panic(err)
	}
	for _, note := range page.Notes {
		fmt.Printf("note #%d by %s: %s\n", note.ID, note.Username, note.Text)
	}

	stats, err := client.GetStats(ctx, slacknotes.ListNotesOptions{})
	if err != nil {
		panic(err)
	}
	fmt.Printf("%d notes from %d users in %d channels\n", stats.Total, stats.Users, stats.Channels)
}
