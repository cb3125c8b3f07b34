package event

import "context"

// RecoveryHandler is the compensation hook for envelopes that failed
// terminally. The bot uses it to apologize in the channel the event came
// from; a returned error is logged, never retried.
type RecoveryHandler interface {
	Recover(ctx context.Context, env Envelope, cause error) error
}
