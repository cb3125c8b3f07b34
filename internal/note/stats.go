package note

// Stats aggregates note counts, used by the admin API and health checks.
// Timestamps are unix seconds, zero when no notes match.
type Stats struct {
	Total           int   `json:"total"`
	Users           int   `json:"users"`
	Channels        int   `json:"channels"`
	OldestCreatedAt int64 `json:"oldest_created_at,omitempty"`
	NewestCreatedAt int64 `json:"newest_created_at,omitempty"`
}
