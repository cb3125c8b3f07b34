package event

import "context"

// Handler consumes one envelope delivered by a queue.
type Handler func(ctx context.Context, env Envelope) error

// Producer publishes envelopes to the queue.
type Producer interface {
	Publish(ctx context.Context, env Envelope) error
	Close() error
}

// Consumer drains the queue into a handler with a fixed worker count. It
// blocks until the context is canceled.
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue is both ends of the pipe.
type Queue interface {
	Producer
	Consumer
}
