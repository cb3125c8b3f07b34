package note

import (
	"time"

	apperrors "slacknotes/internal/errors"
)

// Note is one saved message. ID is assigned by the store.
type Note struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"user_id"`
	Username    string    `json:"username,omitempty"`
	Text        string    `json:"text"`
	ChannelID   string    `json:"channel_id,omitempty"`
	ChannelName string    `json:"channel_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ErrNoteNotFound reports a lookup for an id that does not exist.
var ErrNoteNotFound = apperrors.New(apperrors.CodeNotFound, "note not found",
	apperrors.WithSeverity(apperrors.SeverityInfo))

func cloneNote(n *Note) *Note {
	clone := *n
	return &clone
}
