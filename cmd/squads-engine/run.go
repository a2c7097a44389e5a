package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/agent"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/board"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/broadcast"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/cmd"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/engine"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/log"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/otelhelper"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/scheduler"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/templates"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/web"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/trace"
)

const shutdownTimeout = 15 * time.Second

type Config struct {
	Port          int
	DatabaseURL   string
	EventBus      string
	RedisURL      string
	TemplatesPath string
	SchedulesPath string
	OtelEnabled   bool
	LogLevel      string
}

// Run wires the engine and serves the API until SIGINT or SIGTERM.
func Run(ctx context.Context, cfg Config) error {
	log.Setup(cfg.LogLevel)

	logger := log.WithModule("squads-engine")
	logger.InfoContext(ctx, "Initializing Squads Engine")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracer, shutdownTracer, err := newTracer(ctx, cfg.OtelEnabled)
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}

	defer closeWithLog(logger, "tracer", func() error { return shutdownTracer(context.Background()) })

	persistence, err := cmd.NewPersistence(ctx, logger, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open persistence: %w", err)
	}

	defer closeWithLog(logger, "persistence", func() error { return persistence.Close(context.Background()) })

	eventBus, err := cmd.NewEventBus(cfg.EventBus, logger)
	if err != nil {
		return err
	}

	defer closeWithLog(logger, "event bus", eventBus.Close)

	locker, closeLocker, err := cmd.NewLocker(ctx, logger, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to create run lock: %w", err)
	}

	defer closeWithLog(logger, "run lock", closeLocker)

	imported, err := templates.Import(ctx, logger, persistence.TemplateRepository(), cfg.TemplatesPath)
	if err != nil {
		return fmt.Errorf("failed to import templates: %w", err)
	}

	logger.InfoContext(ctx, "templates imported", "count", imported, "path", cfg.TemplatesPath)

	broadcaster := broadcast.New(logger, broadcast.WithRelay(broadcast.NewBusRelay(eventBus)))

	runEngine, err := engine.New(engine.Config{
		Runs:        persistence.RunRepository(),
		Templates:   persistence.TemplateRepository(),
		Dispatcher:  agent.NewBusDispatcher(logger, eventBus),
		Board:       board.NewBusMover(logger, eventBus, broadcaster),
		Broadcaster: broadcaster,
		Locker:      locker,
		Tracer:      tracer,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		closeWithLog(logger, "engine", func() error { return runEngine.Shutdown(shutdownCtx) })
	}()

	err = agent.NewListener(logger, eventBus, runEngine, broadcaster).Register()
	if err != nil {
		return err
	}

	err = eventBus.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to event bus: %w", err)
	}

	recovered, err := runEngine.Recover(ctx)
	if err != nil {
		return fmt.Errorf("failed to recover runs: %w", err)
	}

	logger.InfoContext(ctx, "runs recovered", "count", recovered)

	cron, err := newScheduler(logger, runEngine, cfg.SchedulesPath)
	if err != nil {
		return err
	}

	cron.Start()

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		closeWithLog(logger, "scheduler", func() error { return cron.Stop(shutdownCtx) })
	}()

	handlers := web.NewAPIHandlers(logger, runEngine, persistence, broadcaster, validator.New(validator.WithRequiredStructEnabled()))
	app := App(handlers)

	serveErr := make(chan error, 1)

	go func() {
		serveErr <- app.Listen(":" + strconv.Itoa(cfg.Port))
	}()

	select {
	case err = <-serveErr:
		handlers.Close()

		return fmt.Errorf("api server stopped: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down Squads Engine")
	handlers.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err = app.ShutdownWithContext(shutdownCtx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Failed to stop api server", "error", err)
	}

	return nil
}

func newTracer(ctx context.Context, enabled bool) (trace.Tracer, otelhelper.Shutdown, error) {
	if !enabled {
		return otelhelper.NoopTracer(), func(context.Context) error { return nil }, nil
	}

	return otelhelper.NewTracer(ctx, "squads-engine")
}

func newScheduler(logger *slog.Logger, triggerer scheduler.Triggerer, path string) (*scheduler.Scheduler, error) {
	schedules, err := scheduler.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load schedules: %w", err)
	}

	s := scheduler.New(logger, triggerer)

	for _, schedule := range schedules {
		err = s.Add(schedule)
		if err != nil {
			return nil, err
		}
	}

	return s, nil
}

func closeWithLog(logger *slog.Logger, name string, closeFn func() error) {
	err := closeFn()
	if err != nil {
		logger.Error("Failed to close "+name, "error", err)
	}
}
