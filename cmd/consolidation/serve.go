package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukex/consolidation/pkg/catalog"
	"github.com/dukex/consolidation/pkg/channels/kafka"
	"github.com/dukex/consolidation/pkg/cmd"
	"github.com/dukex/consolidation/pkg/lifecycle"
	"github.com/dukex/consolidation/pkg/log"
	"github.com/dukex/consolidation/pkg/orchestrator"
	"github.com/dukex/consolidation/pkg/otelhelper"
	"github.com/dukex/consolidation/pkg/scheduler"
	"github.com/dukex/consolidation/pkg/services"
	"github.com/dukex/consolidation/pkg/validation"
	"github.com/dukex/consolidation/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/urfave/cli/v3"
)

const (
	defaultPort            = 9091
	defaultShutdownTimeout = 30 * time.Second
)

func NewServeCommand() *cli.Command {
	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start the consolidation API, orchestrator and scheduler",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Persistence URL (file://dir, postgres://..., redis://...)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "calculation-url",
				Usage:    "Base URL of the calculation service",
				Required: true,
				Sources:  cli.EnvVars("CALCULATION_URL"),
			},
			&cli.IntFlag{
				Name:    "calculation-retries",
				Usage:   "Attempts per calculation call on transient failures",
				Value:   1,
				Sources: cli.EnvVars("CALCULATION_RETRIES"),
			},
			&cli.DurationFlag{
				Name:    "calculation-retry-delay",
				Usage:   "Delay between calculation attempts",
				Value:   time.Second,
				Sources: cli.EnvVars("CALCULATION_RETRY_DELAY"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.IntFlag{
				Name:    "max-parallelism",
				Usage:   "Concurrent calculation calls within a wave",
				Value:   orchestrator.DefaultMaxParallelism,
				Sources: cli.EnvVars("MAX_PARALLELISM"),
			},
			&cli.DurationFlag{
				Name:    "node-timeout",
				Usage:   "Deadline of one calculation call",
				Value:   orchestrator.DefaultNodeTimeout,
				Sources: cli.EnvVars("NODE_TIMEOUT"),
			},
			&cli.BoolFlag{
				Name:    "scheduler",
				Usage:   "Run scheduled simulations",
				Value:   true,
				Sources: cli.EnvVars("SCHEDULER_ENABLED"),
			},
			&cli.BoolFlag{
				Name:    "otel",
				Usage:   "Export traces over OTLP/HTTP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
		},
		Action: serve,
	}
}

func serve(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"), command.String("log-format"))

	logger := log.WithModule("consolidation")

	logger.InfoContext(ctx, "Initializing consolidation engine")

	orchestratorOpts := []orchestrator.Option{
		orchestrator.WithConfig(orchestrator.Config{
			MaxParallelism: int(command.Int("max-parallelism")),
			NodeTimeout:    command.Duration("node-timeout"),
		}),
	}

	if command.Bool("otel") {
		tracer, shutdown, err := otelhelper.NewTracer(ctx, "consolidation")
		if err != nil {
			return fmt.Errorf("failed to initialize tracer: %w", err)
		}

		defer func() {
			if err := shutdown(context.WithoutCancel(ctx)); err != nil {
				logger.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
			}
		}()

		orchestratorOpts = append(orchestratorOpts, orchestrator.WithTracer(tracer))
	}

	persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		if err := persistence.Close(context.WithoutCancel(ctx)); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), kafka.ParseBrokers(command.String("kafka-brokers")), logger)
	if err != nil {
		return err
	}

	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	orchestratorOpts = append(orchestratorOpts, orchestrator.WithPublisher(eventBus))

	client, err := cmd.NewCalculationClient(
		logger,
		command.String("calculation-url"),
		int(command.Int("calculation-retries")),
		command.Duration("calculation-retry-delay"),
	)
	if err != nil {
		return err
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	templates := catalog.New()
	controller := lifecycle.NewController(persistence, logger)

	orch := orchestrator.New(
		persistence,
		controller,
		validation.NewValidator(templates, logger),
		client,
		logger,
		orchestratorOpts...,
	)

	processes := services.NewProcess(persistence, controller, templates, validate, logger)

	var reloader web.ScheduleReloader

	var sched *scheduler.Scheduler

	if command.Bool("scheduler") {
		sched = scheduler.New(persistence.ProcessRepository(), orch, logger)

		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}

		reloader = sched
	}

	api := NewAPI(logger, web.NewAPIHandlers(processes, orch, templates, validate, reloader, logger))

	errCh := make(chan error, 1)

	go func() {
		errCh <- api.Start(int(command.Int("port")))
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	defer signal.Stop(signals)

	var serveErr error

	select {
	case sig := <-signals:
		logger.InfoContext(ctx, "Received signal, shutting down gracefully", "signal", sig)
	case <-ctx.Done():
		logger.InfoContext(ctx, "Context cancelled, shutting down")
	case serveErr = <-errCh:
		logger.ErrorContext(ctx, "API server stopped", "error", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultShutdownTimeout)
	defer cancel()

	var errs []error

	if err := api.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("api: %w", err))
	}

	if sched != nil {
		if err := sched.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("scheduler: %w", err))
		}
	}

	if err := orch.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("orchestrator: %w", err))
	}

	logger.InfoContext(ctx, "Consolidation engine stopped")

	return errors.Join(append(errs, serveErr)...)
}
