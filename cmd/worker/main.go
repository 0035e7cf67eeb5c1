// Package main is the entry point of the Stellar Map worker.
//
// The worker runs the periodic jobs:
//   - hierarchy audit of every core on a cron schedule
//   - tree cache warm-up on an interval, and again after each import
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alem-hub/stellar-map/config"
	"github.com/alem-hub/stellar-map/internal/app"
	"github.com/alem-hub/stellar-map/internal/application/eventhandler"
	"github.com/alem-hub/stellar-map/internal/domain/shared"
	"github.com/alem-hub/stellar-map/internal/infrastructure/scheduler"
	"github.com/alem-hub/stellar-map/internal/infrastructure/scheduler/jobs"
	"github.com/alem-hub/stellar-map/pkg/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION AND LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := logger.New(cfg.LoggerOptions()).With(logger.Component("worker"))
	defer func() { _ = log.Sync() }()

	log.Info("starting Stellar Map worker",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.String("driver", cfg.Database.Driver),
		logger.Bool("redis", cfg.Redis.Enabled),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. STORES, CACHES, HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	rt, err := app.Open(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to open runtime: %w", err)
	}
	defer func() {
		log.Info("closing runtime...")
		if err := rt.Close(context.Background()); err != nil {
			log.Warn("runtime close failed", logger.Err(err))
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 3. SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	sched, err := newScheduler(cfg, rt, log)
	if err != nil {
		return err
	}

	owed, err := subscribe(rt, sched, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to subscribe to events: %w", err)
	}

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	for _, info := range sched.ListJobs() {
		log.Info("job registered",
			logger.String("job", info.Name),
			logger.String("schedule", info.Schedule),
			logger.Time("next_run", info.NextRun),
		)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", logger.String("signal", sig.String()))
	case <-ctx.Done():
	}

	log.Info("starting graceful shutdown...", logger.Duration("timeout", cfg.App.ShutdownTimeout))
	stopped := make(chan error, 1)
	go func() { stopped <- sched.Stop() }()

	select {
	case err := <-stopped:
		if err != nil {
			log.Warn("scheduler stop failed", logger.Err(err))
		}
	case <-time.After(cfg.App.ShutdownTimeout):
		log.Error("scheduler did not stop in time")
	}

	snap := sched.GetMetrics().Snapshot()
	log.Info("shutdown completed",
		logger.Int64("executions", snap.TotalExecutions),
		logger.Int64("failures", snap.TotalFailures),
		logger.Int("rewards_pending", len(owed.Pending())),
	)
	return nil
}

// newScheduler registers the audit and warm-up jobs.
func newScheduler(cfg *config.Config, rt *app.Runtime, log *logger.Logger) (*scheduler.Scheduler, error) {
	sched := scheduler.NewScheduler(scheduler.SchedulerConfig{
		Logger:         log,
		Timezone:       cfg.App.Location(),
		MaxHistorySize: cfg.Worker.MaxHistorySize,
		EnableMetrics:  true,
	})

	auditSchedule, err := scheduler.ParseCronExpression(cfg.Worker.AuditSchedule)
	if err != nil {
		return nil, fmt.Errorf("audit schedule: %w", err)
	}
	audit := jobs.NewAuditHierarchyJob(rt.Validate, rt.Events, log, jobs.AuditHierarchyConfig{
		Timeout:      cfg.Worker.JobTimeout,
		FailOnErrors: cfg.Worker.AuditFailOnErrors,
	})
	if err := sched.Register(audit, auditSchedule); err != nil {
		return nil, fmt.Errorf("register %s: %w", audit.Name(), err)
	}

	warm := jobs.NewWarmHierarchyJob(rt.Classifier, rt.Map, log, cfg.Worker.JobTimeout)
	if err := sched.Register(warm, scheduler.NewIntervalSchedule(cfg.Worker.WarmInterval)); err != nil {
		return nil, fmt.Errorf("register %s: %w", warm.Name(), err)
	}
	if rt.Trees == nil {
		// Without a shared tree cache there is nothing to warm.
		_ = sched.SetEnabled(warm.Name(), false)
	}

	sched.OnJobComplete(func(result scheduler.JobResult) {
		if !result.Success {
			log.Warn("job failed",
				logger.String("job", result.JobName),
				logger.Duration("duration", result.Duration),
				logger.Err(result.Error),
			)
		}
	})
	return sched, nil
}

// subscribe reacts to events published by other processes sharing the bus.
func subscribe(rt *app.Runtime, sched *scheduler.Scheduler, cfg *config.Config, log *logger.Logger) (*eventhandler.OnRewardFailedHandler, error) {
	onImported := eventhandler.NewOnNodesImportedHandler(func(ctx context.Context) error {
		if rt.Trees == nil {
			return nil
		}
		_, err := sched.RunNow(ctx, jobs.WarmHierarchyJobName)
		return err
	}, cfg.Worker.JobTimeout, log)
	if err := rt.Events.Subscribe(shared.EventNodesImported, onImported.Handle); err != nil {
		return nil, err
	}

	onRewardFailed := eventhandler.NewOnRewardFailedHandler(log)
	for _, t := range []shared.EventType{shared.EventRewardFailed, shared.EventRewardApplied} {
		if err := rt.Events.Subscribe(t, onRewardFailed.Handle); err != nil {
			return nil, err
		}
	}
	if !cfg.Redis.Enabled || !cfg.Redis.PublishEvents {
		log.Warn("event relay disabled; reward failures and imports from other processes are not seen",
			logger.Bool("redis", cfg.Redis.Enabled),
			logger.Bool("publish_events", cfg.Redis.PublishEvents),
		)
	}
	return onRewardFailed, nil
}
