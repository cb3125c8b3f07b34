package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	apperrors "slacknotes/internal/errors"
	"slacknotes/internal/observability/alerting"
	"slacknotes/pkg/logger"
)

// Sink receives the envelopes the processor pulls off the queue. The bot
// router implements it.
type Sink interface {
	Handle(ctx context.Context, env Envelope) error
}

// Recorder observes processing outcomes. Nil disables instrumentation.
type Recorder interface {
	RecordProcessed(kind, outcome string)
	ObserveHandler(kind string, elapsed time.Duration)
}

// Processor drains a queue into the sink with a worker pool and owns the
// retry policy: retryable failures are republished with an incremented
// attempt count until maxAttempts, then dropped with an alert.
type Processor struct {
	sink        Sink
	consumer    Consumer
	producer    Producer
	workerCount int
	maxAttempts int
	logger      *slog.Logger
	recovery    RecoveryHandler
	alerter     alerting.Dispatcher
	recorder    Recorder
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithWorkerCount sets the number of consumer goroutines.
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// WithMaxAttempts caps deliveries per envelope, the first one included.
func WithMaxAttempts(attempts int) ProcessorOption {
	return func(p *Processor) {
		if attempts > 0 {
			p.maxAttempts = attempts
		}
	}
}

// WithProcessorLogger routes the processor's debug chatter.
func WithProcessorLogger(log *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = log
	}
}

// WithRecoveryHandler installs a hook that runs after terminal failures.
func WithRecoveryHandler(handler RecoveryHandler) ProcessorOption {
	return func(p *Processor) {
		p.recovery = handler
	}
}

// WithAlertDispatcher wires alert delivery for dropped envelopes.
func WithAlertDispatcher(dispatcher alerting.Dispatcher) ProcessorOption {
	return func(p *Processor) {
		p.alerter = dispatcher
	}
}

// WithRecorder wires metrics.
func WithRecorder(recorder Recorder) ProcessorOption {
	return func(p *Processor) {
		p.recorder = recorder
	}
}

// NewProcessor builds a Processor over the given sink and queue ends.
func NewProcessor(sink Sink, consumer Consumer, producer Producer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		sink:        sink,
		consumer:    consumer,
		producer:    producer,
		workerCount: 1,
		maxAttempts: 3,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Start blocks consuming the queue until the context ends.
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return apperrors.New(apperrors.CodeInitializationFailure, "processor has no consumer")
	}
	if p.sink == nil {
		return apperrors.New(apperrors.CodeInitializationFailure, "processor has no sink")
	}
	return p.consumer.Consume(ctx, p.workerCount, p.handle)
}

func (p *Processor) handle(ctx context.Context, env Envelope) error {
	start := time.Now()
	err := p.safeHandle(ctx, env)
	p.observe(env, time.Since(start))

	if err == nil {
		p.record(env, "ok")
		p.logDebug("envelope handled",
			slog.String("envelope_id", env.ID),
			slog.String("kind", string(env.Kind)))
		return nil
	}
	return p.handleFailure(ctx, env, err)
}

// safeHandle shields the worker pool from handler panics; a panicking
// handler must not take the daemon down with it.
func (p *Processor) safeHandle(ctx context.Context, env Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.New(apperrors.CodeUnknown,
				fmt.Sprintf("handler panic: %v", r),
				apperrors.WithRetryable(false))
			logger.L().Error("handler panicked",
				slog.String("envelope_id", env.ID),
				slog.String("kind", string(env.Kind)),
				slog.Any("panic", r))
		}
	}()
	return p.sink.Handle(ctx, env)
}

func (p *Processor) handleFailure(ctx context.Context, env Envelope, cause error) error {
	retryable := apperrors.RetryableError(cause)
	attempts := env.Attempts + 1
	terminal := !retryable || attempts >= p.maxAttempts

	if !terminal {
		next := env
		next.Attempts = attempts
		if pubErr := p.producer.Publish(ctx, next); pubErr != nil {
			return apperrors.Wrap(apperrors.CodeQueueFailure, pubErr,
				fmt.Sprintf("requeue envelope %s", env.ID))
		}
		logger.Audit().Warn("event_retry",
			slog.String("envelope_id", env.ID),
			slog.String("kind", string(env.Kind)),
			slog.Int("attempts", attempts),
			slog.Int("max_attempts", p.maxAttempts),
			slog.String("error", cause.Error()))
		p.record(env, "retried")
		return nil
	}

	logger.Audit().Warn("event_dropped",
		slog.String("envelope_id", env.ID),
		slog.String("kind", string(env.Kind)),
		slog.Int("attempts", attempts),
		slog.Bool("retryable", retryable),
		slog.String("error", cause.Error()),
		slog.String("error_code", string(apperrors.CodeOf(cause))))
	p.record(env, "dropped")

	if p.recovery != nil {
		if recErr := p.recovery.Recover(ctx, env, cause); recErr != nil {
			logger.L().Error("recovery hook failed",
				slog.Any("error", recErr),
				slog.String("envelope_id", env.ID))
		}
	}
	p.emitAlert(ctx, env, attempts, retryable, cause)
	return nil
}

func (p *Processor) emitAlert(ctx context.Context, env Envelope, attempts int, retryable bool, cause error) {
	if p.alerter == nil {
		return
	}
	code := apperrors.CodeOf(cause)
	if retryable {
		code = apperrors.CodeRetriesExhausted
	}
	event := alerting.Event{
		Code:        code,
		Message:     cause.Error(),
		Severity:    apperrors.SeverityOf(cause),
		EnvelopeID:  env.ID,
		Kind:        string(env.Kind),
		Attempts:    attempts,
		MaxAttempts: p.maxAttempts,
		Metadata:    map[string]string{"stage": "terminal"},
		OccurredAt:  time.Now(),
	}
	if err := p.alerter.Notify(ctx, event); err != nil {
		logger.L().Error("alert delivery failed",
			slog.Any("error", err),
			slog.String("envelope_id", env.ID))
	}
}

func (p *Processor) record(env Envelope, outcome string) {
	if p.recorder == nil {
		return
	}
	p.recorder.RecordProcessed(string(env.Kind), outcome)
}

func (p *Processor) observe(env Envelope, elapsed time.Duration) {
	if p.recorder == nil {
		return
	}
	p.recorder.ObserveHandler(string(env.Kind), elapsed)
}

func (p *Processor) logDebug(msg string, attrs ...slog.Attr) {
	if p.logger == nil {
		return
	}
	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}
	p.logger.Debug(msg, args...)
}
