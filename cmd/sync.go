package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/desertthunder/tasting/internal/responses"
	"github.com/desertthunder/tasting/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Sync drains the offline answer queue, once or until interrupted.
func (r *Runner) Sync(ctx context.Context, cmd *cli.Command) error {
	recorder, db, err := r.openRecorder()
	if err != nil {
		return err
	}
	defer db.Close()

	worker := tasks.NewSyncWorker(recorder, r.config.Sync.Interval, r.logger)

	if cmd.Bool("once") {
		report := worker.RunOnce(ctx, nil)
		if cmd.Bool("json") {
			return r.writeJSON(report, true)
		}
		r.writeReport(report)
		return nil
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	progress := make(chan tasks.ProgressUpdate, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progress {
			if report, ok := update.Data.(responses.Report); ok && report.Attempted > 0 {
				r.writeReport(report)
			}
		}
	}()

	r.logger.Info("sync worker started", "api", r.config.Sync.APIURL, "interval", r.config.Sync.Interval)
	worker.Trigger()
	err = worker.Run(ctx, progress)
	close(progress)
	<-done
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (r *Runner) writeReport(report responses.Report) {
	r.writePlain("%s: %d synced, %d failed, %d dropped, %d remaining (%s)\n",
		report.Status, report.Synced, report.Failed, report.Dropped, report.Remaining, report.Duration.Round(time.Millisecond))
	if report.Err != "" {
		r.writePlain("  %s\n", report.Err)
	}
}
