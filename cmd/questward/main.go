// Package main is the entrypoint for the Questward service.
//
// Questward is a long-running process with three moving parts: a cron
// scheduler that fires task runs and rule ticks, the worker pool runner that
// fans account work across redundant gateways, and an ops HTTP server for
// health checks and metrics. This file handles dependency wiring; all
// business logic lives in the internal packages.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"questward/internal/config"
	"questward/internal/db"
	"questward/internal/notify"
	"questward/internal/ops"
	"questward/internal/rules"
	"questward/internal/runner"
	"questward/internal/scheduler"
	"questward/internal/types"
	"questward/internal/upstream"
)

// shutdownGrace bounds how long in-flight work may run after a signal.
const shutdownGrace = 30 * time.Second

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	logger.Info("questward starting",
		slog.String("environment", cfg.Environment),
		slog.String("version", cfg.Build.Version),
		slog.String("commit", cfg.Build.Commit),
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("questward exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("questward stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database pool.
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL.Unmask())
	if err != nil {
		return fmt.Errorf("parsing database config: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.Database.MaxConns)
	poolCfg.MinConns = int32(cfg.Database.MinConns)
	poolCfg.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolCfg.ConnConfig.ConnectTimeout = cfg.Database.AcquireTimeout
	poolCfg.HealthCheckPeriod = cfg.Database.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("creating database pool: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}

	accountRepo := db.NewAccountRepository(pool)
	ruleRepo := db.NewNotificationRuleRepository(pool)

	// Observability.
	registry := prometheus.NewRegistry()
	runnerMetrics := runner.NewMetrics(registry)
	schedulerMetrics := scheduler.NewMetrics(registry)
	reporter := ops.NewLogReporter(logger, registry)

	// Upstream transports: one direct client plus one per configured
	// gateway, each with its own breaker.
	httpClient := &http.Client{Timeout: cfg.Upstream.RequestTimeout}
	retryPolicy := upstream.DefaultRetryPolicy()

	directClient := upstream.NewBaseClient(httpClient, "upstream-direct", retryPolicy, cfg.Upstream.UserAgent)
	direct := upstream.NewDirectTransport(cfg.Upstream.BaseURL, directClient, logger)

	var gateways []runner.GatewayBinding
	for name, endpoint := range cfg.Upstream.GatewayEndpoints {
		client := upstream.NewBaseClient(httpClient, "gateway-"+name, retryPolicy, cfg.Upstream.UserAgent)
		gateways = append(gateways, runner.GatewayBinding{
			Transport: upstream.NewGatewayTransport(name, endpoint, client, logger),
			Endpoint:  endpoint,
		})
	}
	probe := upstream.NewHTTPProbe(&http.Client{Timeout: cfg.Upstream.ProbeTimeout}, logger)

	// Notification delivery.
	botClient := upstream.NewBaseClient(httpClient, "bot-api", retryPolicy, cfg.Upstream.UserAgent)
	botChannel := notify.NewBotChannel(cfg.Bot.APIURL, cfg.Bot.Token.Unmask(), botClient)
	dispatcher := notify.NewDispatcher(botChannel, reporter, types.RealClock{}, logger)

	// One coordinator per task kind so runs of different kinds never block
	// each other.
	policy := runner.TaskPolicy{
		FailureCeiling: cfg.Runner.FailureCeiling,
		ItemDelay:      cfg.Runner.ItemDelay,
	}
	newCoordinator := func(kind types.TaskKind) *runner.Coordinator {
		return runner.NewCoordinator(runner.CoordinatorConfig{
			Kind:       kind,
			Accounts:   accountRepo,
			Gateways:   gateways,
			Direct:     direct,
			Probe:      probe,
			Dispatcher: dispatcher,
			Reporter:   reporter,
			Policy:     policy,
			Metrics:    runnerMetrics,
			Logger:     logger,
		})
	}
	checkIn := newCoordinator(types.TaskCheckIn)
	redeemPoints := newCoordinator(types.TaskRedeemPoints)
	redeemCodes := newCoordinator(types.TaskRedeemCodes)

	engine := rules.NewEngine(rules.EngineConfig{
		Accounts:   accountRepo,
		Rules:      ruleRepo,
		Telemetry:  direct,
		Dispatcher: dispatcher,
		Reporter:   reporter,
		Logger:     logger,
	})

	// Cron triggers.
	sched := scheduler.New(logger, schedulerMetrics)
	triggers := []struct {
		name string
		spec string
		fn   scheduler.TriggerFunc
	}{
		{"check_in", cfg.Scheduler.CheckInSpec, checkIn.Execute},
		{"redeem_points", cfg.Scheduler.RedeemPointsSpec, redeemPoints.Execute},
		{"redeem_codes", cfg.Scheduler.RedeemCodesSpec, redeemCodes.Execute},
		{"rule_tick", cfg.Scheduler.RuleTickSpec, engine.Tick},
	}
	for _, t := range triggers {
		if err := sched.Register(ctx, t.name, t.spec, t.fn); err != nil {
			return err
		}
	}

	// Ops HTTP server.
	opsServer := ops.NewServer(logger, cfg.Build, registry, ops.NewDatabaseProbe(pool))
	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           opsServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	sched.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("ops server listening", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ops server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()

		// Stop firing new triggers, then wait for in-flight runs.
		select {
		case <-sched.Stop().Done():
		case <-shutdownCtx.Done():
			logger.Warn("shutdown grace expired with runs still in flight")
		}

		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// parseLogLevel maps the configured level name to a slog.Level, defaulting
// to info on unknown values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
