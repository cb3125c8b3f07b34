package note

import (
	"strings"
	"time"
)

// SortOrder defines how results should be ordered when listing notes.
type SortOrder int

const (
	// SortByCreatedDesc orders notes by CreatedAt descending (most recent first).
	SortByCreatedDesc SortOrder = iota
	// SortByCreatedAsc orders notes by CreatedAt ascending (oldest first).
	SortByCreatedAsc
)

// ListOptions controls how notes are selected when querying the store.
type ListOptions struct {
	Limit        int
	Offset       int
	UserID       string
	ChannelID    string
	CreatedSince time.Time
	CreatedUntil time.Time
	Query        string
	Order        SortOrder
}

// applyDefaults sanitizes the options and fills in default values.
func (opts *ListOptions) applyDefaults() {
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if opts.Limit > 100 {
		opts.Limit = 100
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	if opts.Order != SortByCreatedAsc {
		opts.Order = SortByCreatedDesc
	}
	opts.UserID = strings.TrimSpace(opts.UserID)
	opts.ChannelID = strings.TrimSpace(opts.ChannelID)
	opts.Query = strings.TrimSpace(opts.Query)
}

// ListOption mutates ListOptions.
type ListOption func(*ListOptions)

// WithLimit limits the number of notes returned.
func WithLimit(limit int) ListOption {
	return func(opts *ListOptions) {
		opts.Limit = limit
	}
}

// WithOffset skips the first n matching notes before returning results.
func WithOffset(offset int) ListOption {
	return func(opts *ListOptions) {
		opts.Offset = offset
	}
}

// WithUser restricts results to notes saved by the given Slack user.
func WithUser(userID string) ListOption {
	return func(opts *ListOptions) {
		opts.UserID = userID
	}
}

// WithChannel restricts results to notes taken in the given channel.
func WithChannel(channelID string) ListOption {
	return func(opts *ListOptions) {
		opts.ChannelID = channelID
	}
}

// WithCreatedSince filters notes created at or after the provided instant.
func WithCreatedSince(ts time.Time) ListOption {
	return func(opts *ListOptions) {
		opts.CreatedSince = ts
	}
}

// WithCreatedUntil filters notes created at or before the provided instant.
func WithCreatedUntil(ts time.Time) ListOption {
	return func(opts *ListOptions) {
		opts.CreatedUntil = ts
	}
}

// WithQuery filters notes by fuzzy matching across text, username and
// channel name.
func WithQuery(query string) ListOption {
	return func(opts *ListOptions) {
		opts.Query = query
	}
}

// WithSortOrder changes the returned order of notes.
func WithSortOrder(order SortOrder) ListOption {
	return func(opts *ListOptions) {
		opts.Order = order
	}
}

// buildListOptions applies option functions on top of defaults.
func buildListOptions(opts []ListOption) ListOptions {
	options := ListOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	options.applyDefaults()
	return options
}
