package responses

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/desertthunder/tasting/internal/models"
	"github.com/desertthunder/tasting/internal/shared"
)

// Report summarizes one sync pass.
type Report struct {
	Status    Status        `json:"status"`
	Attempted int           `json:"attempted"`
	Synced    int           `json:"synced"`
	Failed    int           `json:"failed"`
	Dropped   int           `json:"dropped"`
	Remaining int           `json:"remaining"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
	Err       string        `json:"error,omitempty"`
}

// Sync runs one pass over the queue. Items left when the pass times out stay queued for the next pass.
// The pass is [StatusSynced] only when the queue is empty and nothing was dropped.
func (r *Recorder) Sync(ctx context.Context) Report {
	report := Report{StartedAt: time.Now().UTC()}
	defer func() {
		report.Duration = time.Since(report.StartedAt)
		r.mu.Lock()
		r.last = report
		r.mu.Unlock()
	}()

	queued, err := r.queue.Count()
	if err != nil {
		report.Status = StatusPartial
		report.Err = err.Error()
		return report
	}
	if queued == 0 {
		report.Status = StatusSynced
		return report
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.PassTimeout)
	defer cancel()

	if err := r.sink.Ping(ctx); err != nil {
		r.logger.Debug("sync skipped, API unreachable", "queued", queued, "error", err)
		r.setOffline()
		report.Status = StatusOffline
		report.Remaining = queued
		report.Err = err.Error()
		return report
	}

	items, err := r.queue.Pending(r.opts.BatchSize)
	if err != nil {
		report.Status = StatusPartial
		report.Remaining = queued
		report.Err = err.Error()
		return report
	}

	for _, item := range items {
		if err := r.limiter.Wait(ctx); err != nil {
			break
		}

		report.Attempted++
		err := r.submit(ctx, item)
		switch {
		case err == nil:
			report.Synced++
			r.remove(item)
		case Permanent(err):
			r.logger.Warn("dropping rejected response", "participant_id", item.ParticipantID, "slide_id", item.SlideID, "error", err)
			report.Dropped++
			r.remove(item)
		default:
			attempts, markErr := r.queue.MarkFailed(item.ParticipantID, item.SlideID, item.Revision, err)
			if errors.Is(markErr, shared.ErrNotFound) {
				r.logger.Debug("queue entry replaced during pass", "slide_id", item.SlideID)
				report.Failed++
				continue
			}
			if markErr != nil {
				r.logger.Error("failed to mark queue entry", "slide_id", item.SlideID, "error", markErr)
			}
			if attempts >= r.opts.MaxAttempts {
				r.logger.Warn("dropping response after max attempts", "slide_id", item.SlideID, "attempts", attempts)
				report.Dropped++
				r.remove(item)
				continue
			}
			report.Failed++
			report.Err = err.Error()
		}
	}

	if remaining, err := r.queue.Count(); err == nil {
		report.Remaining = remaining
	}
	if report.Remaining == 0 {
		r.setOnline()
	}
	if report.Remaining == 0 && report.Dropped == 0 {
		report.Status = StatusSynced
	} else {
		report.Status = StatusPartial
	}

	r.logger.Info("sync pass finished",
		"status", report.Status, "synced", report.Synced, "failed", report.Failed,
		"dropped", report.Dropped, "remaining", report.Remaining)
	return report
}

// submit sends one queued item with bounded exponential backoff.
func (r *Recorder) submit(ctx context.Context, item models.PendingResponse) error {
	resp := models.NewResponse(item.ParticipantID, item.SlideID, item.Answer, false)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.opts.InitialInterval
	b.MaxInterval = r.opts.MaxInterval

	op := func() (*models.Response, error) {
		out, err := r.sink.SubmitResponse(ctx, resp)
		if err != nil && Permanent(err) {
			return nil, backoff.Permanent(err)
		}
		return out, err
	}

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(r.opts.MaxTries),
		backoff.WithMaxElapsedTime(r.opts.PassTimeout),
		backoff.WithNotify(func(err error, next time.Duration) {
			r.logger.Debug("retrying response", "slide_id", item.SlideID, "in", next, "error", err)
		}),
	)
	return err
}

func (r *Recorder) remove(item models.PendingResponse) {
	if err := r.queue.Remove(item.ParticipantID, item.SlideID, item.Revision); err != nil && !errors.Is(err, shared.ErrNotFound) {
		r.logger.Error("failed to remove queue entry", "slide_id", item.SlideID, "error", err)
	}
}
