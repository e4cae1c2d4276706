// Package responses records participant answers, falling back to a durable local queue when the
// API cannot be reached.
//
// [Recorder.Record] tries the [Sink] first. Transient failures (transport errors, 5xx) put the answer
// in the [Queue] keyed by (participant, slide). Every Record call takes a strictly increasing revision:
// a queued answer only replaces a lower revision, and a delivery only clears revisions up to its own,
// so a later answer to the same slide always wins. [Recorder.Sync] drains the queue with bounded exponential backoff per item and reports one of
// [StatusSynced], [StatusPartial] or [StatusOffline].
package responses

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tasting/internal/models"
	"github.com/desertthunder/tasting/internal/shared"
	"golang.org/x/time/rate"
)

// Status is the sync state of a recorded answer or of the whole queue.
type Status string

const (
	StatusSynced  Status = "synced"
	StatusPending Status = "pending"
	StatusPartial Status = "partial"
	StatusOffline Status = "offline"
)

// Sink delivers responses to the canonical store.
type Sink interface {
	SubmitResponse(ctx context.Context, resp *models.Response) (*models.Response, error)
	Ping(ctx context.Context) error
}

// Queue is the durable local store of unsynced answers.
type Queue interface {
	Enqueue(p models.PendingResponse) error
	Pending(limit int) ([]models.PendingResponse, error)
	Remove(participantID, slideID string, upTo int64) error
	MarkFailed(participantID, slideID string, revision int64, cause error) (int, error)
	Count() (int, error)
}

// Options tunes submission and sync passes.
type Options struct {
	SubmitTimeout   time.Duration // per direct submit
	PassTimeout     time.Duration // whole sync pass
	MaxTries        uint          // backoff tries per item within one pass
	MaxAttempts     int           // passes an item may fail before it is dropped
	RateLimit       float64       // submissions per second during a pass
	BatchSize       int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// OptionsFromConfig derives [Options] from the [sync] config section.
func OptionsFromConfig(c shared.SyncConfig) Options {
	return Options{
		SubmitTimeout: c.Timeout / 4,
		PassTimeout:   c.Timeout,
		MaxTries:      c.MaxTries,
		MaxAttempts:   c.MaxAttempts,
		RateLimit:     c.RateLimit,
	}
}

func (o Options) withDefaults() Options {
	if o.SubmitTimeout <= 0 {
		o.SubmitTimeout = 5 * time.Second
	}
	if o.PassTimeout <= 0 {
		o.PassTimeout = 20 * time.Second
	}
	if o.MaxTries == 0 {
		o.MaxTries = 3
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 20
	}
	if o.RateLimit <= 0 {
		o.RateLimit = 10
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.InitialInterval <= 0 {
		o.InitialInterval = 200 * time.Millisecond
	}
	if o.MaxInterval <= 0 {
		o.MaxInterval = 5 * time.Second
	}
	return o
}

// Recorder records answers without ever blocking playback.
type Recorder struct {
	sink    Sink
	queue   Queue
	opts    Options
	limiter *rate.Limiter
	logger  *log.Logger

	wg       sync.WaitGroup
	mu       sync.Mutex
	offline  bool
	rev      int64
	last     Report
	restored chan struct{}
}

// NewRecorder creates a [Recorder]. A nil logger discards output.
func NewRecorder(sink Sink, queue Queue, opts Options, logger *log.Logger) *Recorder {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	opts = opts.withDefaults()
	return &Recorder{
		sink:     sink,
		queue:    queue,
		opts:     opts,
		limiter:  rate.NewLimiter(rate.Limit(opts.RateLimit), 1),
		logger:   logger,
		restored: make(chan struct{}, 1),
	}
}

// Restored fires after a direct submit succeeds while the recorder believed it was offline.
func (r *Recorder) Restored() <-chan struct{} { return r.restored }

// Record submits an answer, queueing it when the API is unreachable. The returned status is
// [StatusSynced] or [StatusPending]; rejected answers (invalid, unknown slide, closed session)
// return an error and are not queued.
func (r *Recorder) Record(ctx context.Context, participantID, slideID string, answer json.RawMessage) (Status, error) {
	if participantID == "" || slideID == "" {
		return "", fmt.Errorf("%w: response needs a participant and a slide", shared.ErrInvalidInput)
	}
	if !json.Valid(answer) {
		return "", fmt.Errorf("%w: answer is not valid JSON", shared.ErrInvalidInput)
	}
	rev := r.nextRevision()
	resp := models.NewResponse(participantID, slideID, answer, true)

	submitCtx, cancel := context.WithTimeout(ctx, r.opts.SubmitTimeout)
	_, err := r.sink.SubmitResponse(submitCtx, resp)
	cancel()

	if err == nil {
		// an older queued answer must not overwrite this one on the next pass
		if err := r.queue.Remove(participantID, slideID, rev); err != nil && !errors.Is(err, shared.ErrNotFound) {
			r.logger.Warn("failed to clear superseded queue entry", "participant_id", participantID, "slide_id", slideID, "error", err)
		}
		r.setOnline()
		return StatusSynced, nil
	}

	if Permanent(err) {
		return "", err
	}

	r.logger.Info("response queued for sync", "participant_id", participantID, "slide_id", slideID, "error", err)
	r.setOffline()
	if err := r.queue.Enqueue(models.PendingResponse{
		ParticipantID: participantID,
		SlideID:       slideID,
		Answer:        answer,
		LastError:     err.Error(),
		QueuedAt:      time.Now().UTC(),
		Revision:      rev,
	}); err != nil {
		return "", fmt.Errorf("failed to queue response: %w", err)
	}
	return StatusPending, nil
}

// nextRevision returns a revision above every one handed out before, seeded from the wall clock so
// revisions keep increasing across restarts.
func (r *Recorder) nextRevision() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	rev := time.Now().UnixNano()
	if rev <= r.rev {
		rev = r.rev + 1
	}
	r.rev = rev
	return rev
}

// RecordAsync records in the background. done, when non-nil, receives the outcome.
func (r *Recorder) RecordAsync(participantID, slideID string, answer json.RawMessage, done func(Status, error)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		status, err := r.Record(context.Background(), participantID, slideID, answer)
		if err != nil {
			r.logger.Warn("failed to record response", "participant_id", participantID, "slide_id", slideID, "error", err)
		}
		if done != nil {
			done(status, err)
		}
	}()
}

// Wait blocks until all RecordAsync calls have finished.
func (r *Recorder) Wait() { r.wg.Wait() }

// Last returns the report of the most recent sync pass.
func (r *Recorder) Last() Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func (r *Recorder) setOffline() {
	r.mu.Lock()
	r.offline = true
	r.mu.Unlock()
}

func (r *Recorder) setOnline() {
	r.mu.Lock()
	was := r.offline
	r.offline = false
	r.mu.Unlock()

	if was {
		select {
		case r.restored <- struct{}{}:
		default:
		}
	}
}

// Permanent reports whether err means the API rejected the answer, so retrying cannot help.
func Permanent(err error) bool {
	switch shared.CodeOf(err) {
	case shared.CodeInvalidInput, shared.CodeNotFound, shared.CodeSessionClosed,
		shared.CodeConflict, shared.CodeDuplicatePosition, shared.CodeInvalidMove:
		return true
	default:
		return false
	}
}
