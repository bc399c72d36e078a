package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Refresher regenerates forecasts for the given symbols, bypassing the cache.
type Refresher interface {
	Refresh(ctx context.Context, symbols []string) error
}

// Warmer periodically refreshes the forecasts of a fixed watch list so that
// requests for popular tickers are served from cache.
type Warmer struct {
	cron      *cron.Cron
	schedule  string
	symbols   []string
	refresher Refresher
	logger    *zap.Logger
	timeout   time.Duration
}

// NewWarmer creates a Warmer. An empty schedule or symbol list disables it.
func NewWarmer(schedule string, symbols []string, refresher Refresher, logger *zap.Logger) *Warmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Warmer{
		cron:      cron.New(),
		schedule:  schedule,
		symbols:   symbols,
		refresher: refresher,
		logger:    logger.Named("warmer"),
		timeout:   2 * time.Minute,
	}
}

// Enabled reports whether the warmer has anything to do.
func (w *Warmer) Enabled() bool {
	return w.schedule != "" && len(w.symbols) > 0 && w.refresher != nil
}

// Start registers the refresh job and starts the cron scheduler.
func (w *Warmer) Start() error {
	if !w.Enabled() {
		w.logger.Info("cache warmer disabled")
		return nil
	}
	if _, err := w.cron.AddFunc(w.schedule, w.run); err != nil {
		return fmt.Errorf("register warm task %q: %w", w.schedule, err)
	}
	w.cron.Start()
	w.logger.Info("cache warmer started", zap.String("schedule", w.schedule), zap.Strings("symbols", w.symbols))
	return nil
}

// Stop stops the scheduler and waits for a running job to finish.
func (w *Warmer) Stop() {
	<-w.cron.Stop().Done()
	w.logger.Info("cache warmer stopped")
}

// RunOnce refreshes the watch list immediately.
func (w *Warmer) RunOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	start := time.Now()
	if err := w.refresher.Refresh(ctx, w.symbols); err != nil {
		return fmt.Errorf("warm %d symbols: %w", len(w.symbols), err)
	}
	w.logger.Info("cache warmed", zap.Int("symbols", len(w.symbols)), zap.Duration("took", time.Since(start)))
	return nil
}

func (w *Warmer) run() {
	if err := w.RunOnce(context.Background()); err != nil {
		w.logger.Error("cache warm failed", zap.Error(err))
	}
}
