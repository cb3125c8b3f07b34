package bot

import (
	"context"

	apperrors "slacknotes/internal/errors"
	"slacknotes/internal/event"
)

// Apologizer tells the user their command failed for good. Messages and
// mentions get no apology; when chat.postMessage itself is the failure
// there is no channel left to deliver one on.
type Apologizer struct {
	gateway SlackGateway
}

// NewApologizer builds the terminal-failure recovery hook.
func NewApologizer(gateway SlackGateway) *Apologizer {
	return &Apologizer{gateway: gateway}
}

// Recover implements event.RecoveryHandler.
func (a *Apologizer) Recover(ctx context.Context, env event.Envelope, cause error) error {
	if env.Kind != event.KindSlashCommand || env.Command == nil || env.Command.ResponseURL == "" {
		return nil
	}
	return a.gateway.RespondToCommand(ctx, env.Command.ResponseURL, apologyFor(env.Command.Command, cause))
}

func apologyFor(command string, cause error) string {
	storage := apperrors.CodeOf(cause) == apperrors.CodeStorageFailure
	switch command {
	case CommandTakeNotes:
		if storage {
			return errSaveDatabase
		}
		return errSaveGeneric
	case CommandMyNotes:
		if storage {
			return errListDatabase
		}
		return errListGeneric
	}
	return errCommandGeneric
}

var _ event.RecoveryHandler = (*Apologizer)(nil)
