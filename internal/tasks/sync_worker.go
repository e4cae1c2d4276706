package tasks

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tasting/internal/responses"
	"github.com/desertthunder/tasting/internal/shared"
)

// SyncWorker drains a [responses.Recorder] queue in the background.
type SyncWorker struct {
	recorder *responses.Recorder
	interval time.Duration
	trigger  chan struct{}
	logger   *log.Logger
}

// NewSyncWorker creates a worker running a pass every interval (15s when zero).
func NewSyncWorker(recorder *responses.Recorder, interval time.Duration, logger *log.Logger) *SyncWorker {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &SyncWorker{
		recorder: recorder,
		interval: interval,
		trigger:  make(chan struct{}, 1),
		logger:   shared.WithLogger(logger, "component", "sync"),
	}
}

// Trigger requests a pass as soon as the worker is idle. Extra triggers while one is pending are dropped.
func (w *SyncWorker) Trigger() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// RunOnce performs a single pass and reports it.
func (w *SyncWorker) RunOnce(ctx context.Context, progress chan<- ProgressUpdate) responses.Report {
	report := w.recorder.Sync(ctx)
	sendProgress(progress, syncPassUpdate(report))
	return report
}

// Run performs passes on the interval, on [SyncWorker.Trigger] and when the recorder sees
// connectivity come back, until ctx is done.
func (w *SyncWorker) Run(ctx context.Context, progress chan<- ProgressUpdate) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Debug("sync worker started", "interval", w.interval)
	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("sync worker stopped")
			return ctx.Err()
		case <-ticker.C:
		case <-w.trigger:
		case <-w.recorder.Restored():
			w.logger.Info("connectivity restored, syncing")
		}
		w.RunOnce(ctx, progress)
	}
}
