package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"slacknotes/internal/api"
	"slacknotes/internal/auth"
	"slacknotes/internal/bot"
	"slacknotes/internal/config"
	apperrors "slacknotes/internal/errors"
	"slacknotes/internal/event"
	"slacknotes/internal/note"
	"slacknotes/internal/observability/alerting"
	"slacknotes/internal/observability/metrics"
	"slacknotes/internal/observability/tracing"
	"slacknotes/internal/slack"
	"slacknotes/internal/slack/eventsrv"
	"slacknotes/internal/slack/socket"
	"slacknotes/pkg/logger"
)

const drainTimeout = 5 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("slacknotesd failed: %v", err)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load("")
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w\n\n%s", err, config.SetupHint())
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		OutputPaths: cfg.Log.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Log.Audit.Enabled,
			Path:       cfg.Log.Audit.Path,
			MaxSizeMB:  cfg.Log.Audit.MaxSizeMB,
			MaxBackups: cfg.Log.Audit.MaxBackups,
			MaxAgeDays: cfg.Log.Audit.MaxAgeDays,
		},
	}); err != nil {
		return err
	}
	defer func() {
		if err := logger.Sync(); err != nil {
			log.Printf("logger sync failed: %v", err)
		}
	}()

	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		ServiceName: "slacknotes",
	})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.L().Error("tracing shutdown failed", slog.Any("error", err))
		}
	}()

	recorder, err := metrics.New()
	if err != nil {
		return err
	}

	client, err := slack.NewClient(slack.Config{
		BotToken: cfg.Slack.BotToken,
		AppToken: cfg.Slack.AppToken,
		Recorder: recorder,
	})
	if err != nil {
		return err
	}

	authCtx, cancelAuth := context.WithTimeout(ctx, 10*time.Second)
	identity, err := client.AuthTest(authCtx)
	cancelAuth()
	if err != nil {
		return apperrors.Wrap(apperrors.CodeSlackAuthFailure, err,
			"slack rejected the bot token (SLACK_BOT_TOKEN should be a bot token starting with xoxb-)")
	}
	logger.L().Info("slack authentication verified",
		slog.String("bot_user", identity.User),
		slog.String("team", identity.Team))

	var store note.Store
	switch cfg.Store.Driver {
	case config.DriverMemory:
		store = note.NewMemoryStore()
	case config.DriverMySQL:
		store, err = note.NewMySQLStore(ctx, note.MySQLConfig{
			Host:            cfg.MySQL.Host,
			Port:            cfg.MySQL.Port,
			Database:        cfg.MySQL.Database,
			User:            cfg.MySQL.User,
			Password:        cfg.MySQL.Password,
			MaxOpenConns:    cfg.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.MySQL.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.MySQL.ConnMaxLifetime) * time.Second,
			EnableTracing:   cfg.Tracing.Enabled,
		})
		if err != nil {
			return err
		}
	default:
		return apperrors.New(apperrors.CodeInvalidArgument,
			fmt.Sprintf("unknown store driver %q", cfg.Store.Driver))
	}
	notes := note.NewService(store, note.WithServiceRecorder(recorder))
	defer func() {
		if err := notes.Close(); err != nil {
			logger.L().Error("note store close failed", slog.Any("error", err))
		}
	}()

	var queue event.Queue
	switch cfg.Queue.Driver {
	case config.DriverMemory:
		queue = event.NewMemoryQueue(cfg.Queue.Buffer)
	case config.DriverRedis:
		queue, err = event.NewRedisQueue(event.RedisQueueConfig{
			Address:  cfg.Queue.Redis.Addr,
			Password: cfg.Queue.Redis.Password,
			DB:       cfg.Queue.Redis.DB,
			Key:      cfg.Queue.Redis.Key,
		})
		if err != nil {
			return err
		}
	case config.DriverRabbitMQ:
		queue, err = event.NewRabbitMQQueue(event.RabbitMQQueueConfig{
			URL:      cfg.Queue.RabbitMQ.URL,
			Queue:    cfg.Queue.RabbitMQ.Queue,
			Prefetch: cfg.Queue.RabbitMQ.Prefetch,
			Durable:  true,
		})
		if err != nil {
			return err
		}
	default:
		return apperrors.New(apperrors.CodeInvalidArgument,
			fmt.Sprintf("unknown queue driver %q", cfg.Queue.Driver))
	}
	defer func() {
		if err := queue.Close(); err != nil {
			logger.L().Error("queue close failed", slog.Any("error", err))
		}
	}()

	var seen event.SeenStore
	switch cfg.Dedupe.Driver {
	case config.DriverMemory:
		seen = event.NewMemorySeenStore(
			time.Duration(cfg.Dedupe.TTLSeconds)*time.Second,
			cfg.Dedupe.MaxEntries,
		)
	case config.DriverRedis:
		seen, err = event.NewRedisSeenStore(event.RedisSeenStoreConfig{
			Address:  cfg.Dedupe.Redis.Addr,
			Password: cfg.Dedupe.Redis.Password,
			DB:       cfg.Dedupe.Redis.DB,
			TTL:      time.Duration(cfg.Dedupe.TTLSeconds) * time.Second,
		})
		if err != nil {
			return err
		}
	default:
		return apperrors.New(apperrors.CodeInvalidArgument,
			fmt.Sprintf("unknown dedupe driver %q", cfg.Dedupe.Driver))
	}
	defer seen.Close()

	notifiers := []alerting.Notifier{&alerting.LogNotifier{}}
	if cfg.Slack.AlertChannel != "" {
		notifiers = append(notifiers, &alerting.SlackNotifier{
			Sender:    alerting.NewClientSender(client),
			ChannelID: cfg.Slack.AlertChannel,
		})
	}
	dispatcher := alerting.NewFanout(notifiers...)

	router := bot.NewRouter()
	if err := router.RegisterKind(event.KindMessage, bot.NewEchoHandler(client)); err != nil {
		return err
	}
	if err := router.RegisterKind(event.KindMention, bot.NewMentionHandler(client)); err != nil {
		return err
	}
	if err := router.RegisterCommand(bot.CommandTakeNotes, bot.NewTakeNotesHandler(client, notes)); err != nil {
		return err
	}
	if err := router.RegisterCommand(bot.CommandMyNotes, bot.NewMyNotesHandler(client, notes)); err != nil {
		return err
	}

	processor := event.NewProcessor(router, queue, queue,
		event.WithWorkerCount(cfg.Processor.Workers),
		event.WithMaxAttempts(cfg.Processor.MaxAttempts),
		event.WithProcessorLogger(logger.Named("processor")),
		event.WithRecoveryHandler(bot.NewApologizer(client)),
		event.WithAlertDispatcher(dispatcher),
		event.WithRecorder(recorder),
	)

	processorCtx, cancelProcessor := context.WithCancel(ctx)
	defer cancelProcessor()
	processorDone := make(chan struct{})
	go func() {
		defer close(processorDone)
		if err := processor.Start(processorCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.L().Error("processor exited", slog.Any("error", err))
		}
	}()

	ingestor := event.NewIngestor(queue,
		event.WithSeenStore(seen),
		event.WithIngestLogger(logger.Named("intake")),
		event.WithIngestRecorder(recorder),
	)

	opsServer := api.NewServer(cfg.Ops.Addr, notes,
		api.WithGuard(auth.NewGuard(cfg.Ops.AdminToken)),
		api.WithMetricsHandler(recorder.Handler()),
		api.WithHealthCheck(cfg.Store.Driver, notes.Ping),
		api.WithHealthCheck("slack", func(ctx context.Context) error {
			_, err := client.AuthTest(ctx)
			return err
		}),
	)

	logger.L().Info("starting slacknotes daemon",
		slog.String("intake", cfg.Intake.Mode),
		slog.String("store", cfg.Store.Driver),
		slog.String("queue", cfg.Queue.Driver),
		slog.Int("workers", cfg.Processor.Workers))

	intakeDone := make(chan error, 1)
	go func() { intakeDone <- runIntake(ctx, cfg, client, ingestor) }()
	opsDone := make(chan error, 1)
	go func() { opsDone <- opsServer.Start(ctx) }()

	var runErr error
	select {
	case runErr = <-intakeDone:
	case runErr = <-opsDone:
	}

	// Let in-flight handlers finish before the deferred closes tear the
	// queue and store down under them.
	cancelProcessor()
	select {
	case <-processorDone:
	case <-time.After(drainTimeout):
		logger.L().Warn("processor drain timed out")
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	logger.L().Info("bot stopped")
	return nil
}

// runIntake blocks feeding the ingestor from the configured intake mode
// until ctx is canceled.
func runIntake(ctx context.Context, cfg *config.Config, client *slack.Client, ingestor *event.Ingestor) error {
	switch cfg.Intake.Mode {
	case config.IntakeSocket:
		transport := socket.NewTransport(client, ingestor)
		return transport.Run(ctx)
	case config.IntakeHTTP:
		verifier, err := slack.NewVerifier(cfg.Slack.SigningSecret)
		if err != nil {
			return err
		}
		server, err := eventsrv.NewServer(cfg.Intake.HTTPAddr, verifier, ingestor)
		if err != nil {
			return err
		}
		return server.Start(ctx)
	default:
		return apperrors.New(apperrors.CodeInvalidArgument,
			fmt.Sprintf("unknown intake mode %q", cfg.Intake.Mode))
	}
}
