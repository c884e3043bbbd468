package service

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// PassResult summarizes one reconciliation pass
type PassResult struct {
	Scanned      int `json:"scanned"`
	Transitioned int `json:"transitioned"`
	Resumed      int `json:"resumed"`
	Failed       int `json:"failed"`
}

// WorkerService is the reconciliation loop: on every tick it advances sessions
// whose time-driven transition is due and retries pending discharge side effects.
// It keeps no state between ticks.
type WorkerService struct {
	lifecycle   *LifecycleService
	sessions    SessionStore
	interval    time.Duration
	concurrency int
	logger      *zap.Logger
}

func NewWorkerService(sessions SessionStore, lifecycleService *LifecycleService, interval time.Duration, concurrency int, logger *zap.Logger) *WorkerService {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &WorkerService{
		lifecycle:   lifecycleService,
		sessions:    sessions,
		interval:    interval,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Start runs a pass immediately and then on every tick until ctx is cancelled
func (w *WorkerService) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("reconciliation loop started", zap.Duration("interval", w.interval), zap.Int("concurrency", w.concurrency))
	w.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("reconciliation loop stopped")
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *WorkerService) tick(ctx context.Context) {
	res, err := w.RunOnce(ctx)
	if err != nil {
		w.logger.Error("reconciliation pass failed", zap.Error(err))
		return
	}
	if res.Transitioned > 0 || res.Resumed > 0 || res.Failed > 0 {
		w.logger.Info("reconciliation pass complete",
			zap.Int("scanned", res.Scanned),
			zap.Int("transitioned", res.Transitioned),
			zap.Int("resumed", res.Resumed),
			zap.Int("failed", res.Failed),
		)
	}
}

// RunOnce performs a single pass. Errors on individual sessions are logged
// and counted; only a failure to load the working set is returned.
func (w *WorkerService) RunOnce(ctx context.Context) (PassResult, error) {
	open, err := w.sessions.LoadOpenSessions(ctx)
	if err != nil {
		return PassResult{}, err
	}
	pending, err := w.sessions.LoadPendingEffects(ctx)
	if err != nil {
		return PassResult{}, err
	}

	var transitioned, resumed, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)

	for i := range open {
		sess := open[i]
		g.Go(func() error {
			moved, err := w.lifecycle.Advance(gctx, &sess)
			if err != nil {
				failed.Add(1)
				w.logger.Error("failed to advance session", zap.Uint("session_id", sess.ID), zap.Error(err))
				return nil
			}
			if moved {
				transitioned.Add(1)
			}
			return nil
		})
	}

	for i := range pending {
		sess := pending[i]
		g.Go(func() error {
			if err := w.lifecycle.ResumeEffects(gctx, &sess); err != nil {
				failed.Add(1)
				return nil
			}
			resumed.Add(1)
			return nil
		})
	}

	// workers never return an error; Wait only joins them
	_ = g.Wait()

	return PassResult{
		Scanned:      len(open) + len(pending),
		Transitioned: int(transitioned.Load()),
		Resumed:      int(resumed.Load()),
		Failed:       int(failed.Load()),
	}, nil
}
