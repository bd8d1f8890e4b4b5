package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/helixops/ruleflow/internal/actions"
	"github.com/helixops/ruleflow/internal/conditions"
	"github.com/helixops/ruleflow/internal/engine"
	"github.com/helixops/ruleflow/internal/expressions"
	"github.com/helixops/ruleflow/internal/logging"
	"github.com/helixops/ruleflow/internal/scheduler"
	"github.com/helixops/ruleflow/internal/server"
	"github.com/helixops/ruleflow/internal/store"
	"github.com/helixops/ruleflow/internal/validation"
)

func main() {
	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return err
	}

	st, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		return err
	}
	logger.Info("database ready", slog.String("path", cfg.DBPath))

	validator, err := validation.NewRuleValidator()
	if err != nil {
		return err
	}

	exprs := expressions.NewExprEngine()
	evaluator := conditions.NewEvaluator(exprs, logger)
	registry := actions.NewRegistry()

	runner := engine.NewRunner(st, registry, evaluator, validator, logger, engine.Config{
		MaxRuleDepth:  cfg.MaxRuleDepth,
		ActionTimeout: cfg.actionTimeout(),
	})

	// Built-ins are registered after the runner exists so execute_rule can
	// re-enter the engine. Mail and SMS gateways are optional collaborators;
	// without them those actions report a failed result and the run continues.
	err = actions.RegisterBuiltins(registry, actions.BuiltinDeps{
		Records:    st,
		Messaging:  actions.MessagingDeps{Notifications: st},
		Audit:      st,
		Webhook:    actions.WebhookConfig{},
		InvokeRule: runner.NestedInvoker(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	logger.Info("actions registered", slog.Int("count", registry.Count()))

	var sched *scheduler.Scheduler
	if cfg.Scheduler {
		sched = scheduler.NewScheduler(st, runner, logger)
		if err := sched.Start(ctx); err != nil {
			return err
		}
		defer func() { _ = sched.Stop() }()
	}

	api := server.NewServer(server.Deps{
		Store:     st,
		Runner:    runner,
		Registry:  registry,
		Validator: validator,
		Logger:    logger,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", slog.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	inner := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(inner))
}
