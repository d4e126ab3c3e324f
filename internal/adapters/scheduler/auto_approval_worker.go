// Package scheduler runs the periodic auto-approval sweep. A distributed lock
// keeps multiple worker replicas from sweeping the same window concurrently.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/johnthebelovedcoder/contralock/internal/application"
	"github.com/johnthebelovedcoder/contralock/internal/ports"
)

const sweepLockKey = "contralock:auto-approval-sweep"

type AutoApprovalWorker struct {
	logger   *slog.Logger
	service  *application.Service
	lock     ports.SweepLock
	interval time.Duration
}

func NewAutoApprovalWorker(logger *slog.Logger, service *application.Service, lock ports.SweepLock, interval time.Duration) *AutoApprovalWorker {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &AutoApprovalWorker{logger: logger, service: service, lock: lock, interval: interval}
}

// Run sweeps once immediately, then on every tick until cancellation.
func (w *AutoApprovalWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.sweepOnce(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *AutoApprovalWorker) sweepOnce(ctx context.Context) {
	ttl := int(w.interval.Seconds() / 2)
	if ttl < 60 {
		ttl = 60
	}
	if w.lock != nil {
		acquired, err := w.lock.Acquire(ctx, sweepLockKey, ttl)
		if err != nil {
			w.logger.ErrorContext(ctx, "sweep lock acquire failed",
				"module", "scheduler",
				"layer", "adapter",
				"operation", "sweep_once",
				"outcome", "failure",
				"error", err.Error(),
			)
			return
		}
		if !acquired {
			w.logger.InfoContext(ctx, "sweep skipped; another replica holds the lock",
				"module", "scheduler",
				"layer", "adapter",
				"operation", "sweep_once",
				"outcome", "skipped",
			)
			return
		}
		defer func() { _ = w.lock.Release(ctx, sweepLockKey) }()
	}

	report, err := w.service.RunAutoApprovalSweep(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "auto-approval sweep failed",
			"module", "scheduler",
			"layer", "adapter",
			"operation", "sweep_once",
			"outcome", "failure",
			"error", err.Error(),
		)
		return
	}
	w.logger.InfoContext(ctx, "auto-approval sweep completed",
		"module", "scheduler",
		"layer", "adapter",
		"operation", "sweep_once",
		"outcome", "success",
		"scanned", report.Scanned,
		"approved", report.Approved,
		"warned", report.Warned,
		"failed", report.Failed,
	)
}
