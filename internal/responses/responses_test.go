package responses

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/tasting/internal/models"
	"github.com/desertthunder/tasting/internal/repositories"
	"github.com/desertthunder/tasting/internal/shared"
	tu "github.com/desertthunder/tasting/internal/testing"
)

var errNetwork = errors.New("dial tcp: connection refused")

func fastOptions() Options {
	return Options{
		SubmitTimeout:   time.Second,
		PassTimeout:     2 * time.Second,
		MaxTries:        3,
		MaxAttempts:     2,
		RateLimit:       1000,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}
}

func setup(t *testing.T, sink *tu.FakeSink) (*Recorder, *repositories.QueueRepository) {
	t.Helper()
	queue := repositories.NewQueueRepository(tu.OpenTestDB(t))
	return NewRecorder(sink, queue, fastOptions(), nil), queue
}

func queued(t *testing.T, q *repositories.QueueRepository) int {
	t.Helper()
	n, err := q.Count()
	if err != nil {
		t.Fatalf("failed to count queue: %v", err)
	}
	return n
}

func TestRecord(t *testing.T) {
	ctx := context.Background()

	t.Run("online answer is synced", func(t *testing.T) {
		sink := &tu.FakeSink{}
		rec, queue := setup(t, sink)

		status, err := rec.Record(ctx, "p1", "s1", json.RawMessage(`{"value":4}`))
		if err != nil {
			t.Fatalf("Record() failed: %v", err)
		}
		if status != StatusSynced {
			t.Errorf("expected synced, got %s", status)
		}
		if queued(t, queue) != 0 {
			t.Error("expected empty queue")
		}
	})

	t.Run("network failure queues as pending", func(t *testing.T) {
		sink := &tu.FakeSink{SubmitFunc: func(int, *models.Response) error { return errNetwork }}
		rec, queue := setup(t, sink)

		status, err := rec.Record(ctx, "p1", "s1", json.RawMessage(`{"value":4}`))
		if err != nil {
			t.Fatalf("Record() failed: %v", err)
		}
		if status != StatusPending {
			t.Errorf("expected pending, got %s", status)
		}
		if queued(t, queue) != 1 {
			t.Error("expected one queued response")
		}
	})

	t.Run("second offline answer for the same slide overwrites", func(t *testing.T) {
		sink := &tu.FakeSink{SubmitFunc: func(int, *models.Response) error { return errNetwork }}
		rec, queue := setup(t, sink)

		rec.Record(ctx, "p1", "s1", json.RawMessage(`{"value":2}`))
		rec.Record(ctx, "p1", "s1", json.RawMessage(`{"value":5}`))

		items, err := queue.Pending(10)
		if err != nil {
			t.Fatalf("Pending() failed: %v", err)
		}
		if len(items) != 1 || string(items[0].Answer) != `{"value":5}` {
			t.Errorf("expected single latest answer, got %+v", items)
		}
	})

	t.Run("rejected answer is returned, not queued", func(t *testing.T) {
		sink := &tu.FakeSink{SubmitFunc: func(int, *models.Response) error { return shared.ErrSessionClosed }}
		rec, queue := setup(t, sink)

		if _, err := rec.Record(ctx, "p1", "s1", json.RawMessage(`{}`)); !errors.Is(err, shared.ErrSessionClosed) {
			t.Errorf("expected ErrSessionClosed, got %v", err)
		}
		if queued(t, queue) != 0 {
			t.Error("rejected answer must not be queued")
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		rec, _ := setup(t, &tu.FakeSink{})
		if _, err := rec.Record(ctx, "p1", "s1", json.RawMessage(`{`)); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("direct success clears a stale queued answer", func(t *testing.T) {
		var online atomic.Bool
		sink := &tu.FakeSink{SubmitFunc: func(int, *models.Response) error {
			if online.Load() {
				return nil
			}
			return errNetwork
		}}
		rec, queue := setup(t, sink)

		rec.Record(ctx, "p1", "s1", json.RawMessage(`{"value":1}`))
		online.Store(true)
		rec.Record(ctx, "p1", "s1", json.RawMessage(`{"value":3}`))

		if queued(t, queue) != 0 {
			t.Error("expected stale entry removed")
		}
		select {
		case <-rec.Restored():
		default:
			t.Error("expected connectivity restored signal")
		}
	})

	t.Run("direct success keeps an answer queued after it", func(t *testing.T) {
		var queue *repositories.QueueRepository
		sink := &tu.FakeSink{SubmitFunc: func(int, *models.Response) error {
			if err := queue.Enqueue(models.PendingResponse{
				ParticipantID: "p1", SlideID: "s1", Answer: json.RawMessage(`{"value":5}`), Revision: 1 << 62,
			}); err != nil {
				t.Errorf("failed to enqueue newer answer: %v", err)
			}
			return nil
		}}
		rec, q := setup(t, sink)
		queue = q

		if status, err := rec.Record(ctx, "p1", "s1", json.RawMessage(`{"value":3}`)); err != nil || status != StatusSynced {
			t.Fatalf("Record() = %s, %v", status, err)
		}

		items, err := queue.Pending(0)
		if err != nil {
			t.Fatalf("Pending() failed: %v", err)
		}
		if len(items) != 1 || string(items[0].Answer) != `{"value":5}` {
			t.Errorf("expected the later answer to survive the direct success, got %+v", items)
		}
	})

	t.Run("offline answer does not replace a newer queued one", func(t *testing.T) {
		sink := &tu.FakeSink{SubmitFunc: func(int, *models.Response) error { return errNetwork }}
		rec, queue := setup(t, sink)

		if err := queue.Enqueue(models.PendingResponse{
			ParticipantID: "p1", SlideID: "s1", Answer: json.RawMessage(`{"value":5}`), Revision: 1 << 62,
		}); err != nil {
			t.Fatalf("failed to enqueue: %v", err)
		}
		rec.Record(ctx, "p1", "s1", json.RawMessage(`{"value":1}`))

		items, err := queue.Pending(0)
		if err != nil {
			t.Fatalf("Pending() failed: %v", err)
		}
		if len(items) != 1 || string(items[0].Answer) != `{"value":5}` {
			t.Errorf("expected the newer answer to win, got %+v", items)
		}
	})

	t.Run("revisions increase", func(t *testing.T) {
		rec, _ := setup(t, &tu.FakeSink{})
		prev := rec.nextRevision()
		for range 100 {
			next := rec.nextRevision()
			if next <= prev {
				t.Fatalf("revision %d not above %d", next, prev)
			}
			prev = next
		}
	})

	t.Run("RecordAsync does not block", func(t *testing.T) {
		release := make(chan struct{})
		sink := &tu.FakeSink{SubmitFunc: func(int, *models.Response) error {
			<-release
			return nil
		}}
		rec, _ := setup(t, sink)

		var got atomic.Value
		rec.RecordAsync("p1", "s1", json.RawMessage(`{}`), func(s Status, err error) { got.Store(s) })
		close(release)
		rec.Wait()

		if got.Load() != StatusSynced {
			t.Errorf("expected synced, got %v", got.Load())
		}
	})
}

func TestSync(t *testing.T) {
	ctx := context.Background()

	enqueue := func(t *testing.T, q *repositories.QueueRepository, slideIDs ...string) {
		t.Helper()
		for _, id := range slideIDs {
			if err := q.Enqueue(models.PendingResponse{ParticipantID: "p1", SlideID: id, Answer: json.RawMessage(`{"value":1}`)}); err != nil {
				t.Fatalf("failed to enqueue: %v", err)
			}
		}
	}

	t.Run("empty queue is synced", func(t *testing.T) {
		rec, _ := setup(t, &tu.FakeSink{})
		if r := rec.Sync(ctx); r.Status != StatusSynced || r.Attempted != 0 {
			t.Errorf("unexpected report %+v", r)
		}
	})

	t.Run("offline when ping fails", func(t *testing.T) {
		sink := &tu.FakeSink{PingFunc: func() error { return errNetwork }}
		rec, queue := setup(t, sink)
		enqueue(t, queue, "s1", "s2")

		r := rec.Sync(ctx)
		if r.Status != StatusOffline || r.Remaining != 2 || r.Attempted != 0 {
			t.Errorf("unexpected report %+v", r)
		}
		if sink.Calls() != 0 {
			t.Error("expected no submissions while offline")
		}
	})

	t.Run("drains the queue", func(t *testing.T) {
		sink := &tu.FakeSink{}
		rec, queue := setup(t, sink)
		enqueue(t, queue, "s1", "s2", "s3")

		r := rec.Sync(ctx)
		if r.Status != StatusSynced || r.Synced != 3 || r.Remaining != 0 {
			t.Errorf("unexpected report %+v", r)
		}
		if rec.Last().Status != StatusSynced {
			t.Error("expected last report recorded")
		}
	})

	t.Run("transient failure retried with backoff", func(t *testing.T) {
		sink := &tu.FakeSink{SubmitFunc: func(call int, _ *models.Response) error {
			if call < 3 {
				return errNetwork
			}
			return nil
		}}
		rec, queue := setup(t, sink)
		enqueue(t, queue, "s1")

		r := rec.Sync(ctx)
		if r.Status != StatusSynced || sink.Calls() != 3 {
			t.Errorf("expected success on third try, got %+v after %d calls", r, sink.Calls())
		}
	})

	t.Run("persistent failure is partial and bounded", func(t *testing.T) {
		sink := &tu.FakeSink{SubmitFunc: func(_ int, resp *models.Response) error {
			if resp.SlideID() == "bad" {
				return shared.ErrServiceUnavailable
			}
			return nil
		}}
		rec, queue := setup(t, sink)
		enqueue(t, queue, "ok", "bad")

		r := rec.Sync(ctx)
		if r.Status != StatusPartial || r.Synced != 1 || r.Failed != 1 || r.Remaining != 1 {
			t.Errorf("unexpected report %+v", r)
		}
		if sink.Calls() != 1+3 {
			t.Errorf("expected max tries per item, got %d calls", sink.Calls())
		}

		r = rec.Sync(ctx)
		if r.Dropped != 1 || r.Remaining != 0 || r.Status != StatusPartial {
			t.Errorf("expected drop after max attempts to report partial, got %+v", r)
		}
	})

	t.Run("rejected item dropped without retry", func(t *testing.T) {
		sink := &tu.FakeSink{SubmitFunc: func(int, *models.Response) error { return shared.ErrNotFound }}
		rec, queue := setup(t, sink)
		enqueue(t, queue, "gone")

		r := rec.Sync(ctx)
		if r.Dropped != 1 || r.Remaining != 0 || sink.Calls() != 1 {
			t.Errorf("unexpected report %+v after %d calls", r, sink.Calls())
		}
		if r.Status != StatusPartial {
			t.Errorf("expected partial when an answer was dropped, got %s", r.Status)
		}
	})

	t.Run("newer answer queued during delivery stays queued", func(t *testing.T) {
		var queue *repositories.QueueRepository
		var newer int64
		sink := &tu.FakeSink{SubmitFunc: func(_ int, resp *models.Response) error {
			if string(resp.Answer()) == `{"value":1}` {
				if err := queue.Enqueue(models.PendingResponse{
					ParticipantID: "p1", SlideID: "s1", Answer: json.RawMessage(`{"value":2}`), Revision: newer,
				}); err != nil {
					t.Errorf("failed to enqueue newer answer: %v", err)
				}
			}
			return nil
		}}
		rec, q := setup(t, sink)
		queue = q

		if err := queue.Enqueue(models.PendingResponse{ParticipantID: "p1", SlideID: "s1", Answer: json.RawMessage(`{"value":1}`), Revision: 10}); err != nil {
			t.Fatalf("failed to enqueue: %v", err)
		}
		newer = 11

		r := rec.Sync(ctx)
		if r.Synced != 1 || r.Remaining != 1 || r.Status != StatusPartial {
			t.Errorf("unexpected report %+v", r)
		}

		items, err := queue.Pending(0)
		if err != nil {
			t.Fatalf("Pending() failed: %v", err)
		}
		if len(items) != 1 || string(items[0].Answer) != `{"value":2}` || items[0].Revision != 11 {
			t.Fatalf("expected the newer answer to stay queued, got %+v", items)
		}

		r = rec.Sync(ctx)
		if r.Status != StatusSynced || r.Remaining != 0 {
			t.Errorf("expected next pass to deliver the newer answer, got %+v", r)
		}
		if got, ok := sink.Stored("p1", "s1"); !ok || string(got) != `{"value":2}` {
			t.Errorf("expected newer answer stored last, got %s", got)
		}
	})

	t.Run("failure on a replaced entry does not count against the newer one", func(t *testing.T) {
		var queue *repositories.QueueRepository
		sink := &tu.FakeSink{SubmitFunc: func(call int, resp *models.Response) error {
			if call == 1 {
				if err := queue.Enqueue(models.PendingResponse{
					ParticipantID: "p1", SlideID: "s1", Answer: json.RawMessage(`{"value":2}`), Revision: 20,
				}); err != nil {
					t.Errorf("failed to enqueue newer answer: %v", err)
				}
			}
			return errNetwork
		}}
		rec, q := setup(t, sink)
		queue = q

		if err := queue.Enqueue(models.PendingResponse{ParticipantID: "p1", SlideID: "s1", Answer: json.RawMessage(`{"value":1}`), Revision: 10}); err != nil {
			t.Fatalf("failed to enqueue: %v", err)
		}

		r := rec.Sync(ctx)
		if r.Status != StatusPartial || r.Dropped != 0 || r.Remaining != 1 {
			t.Errorf("unexpected report %+v", r)
		}

		items, err := queue.Pending(0)
		if err != nil || len(items) != 1 {
			t.Fatalf("Pending() = %+v, %v", items, err)
		}
		if items[0].Revision != 20 || items[0].Attempts != 0 {
			t.Errorf("expected untouched newer entry, got %+v", items[0])
		}
	})

	t.Run("canceled pass leaves items queued", func(t *testing.T) {
		rec, queue := setup(t, &tu.FakeSink{})
		enqueue(t, queue, "s1", "s2")

		cctx, cancel := context.WithCancel(ctx)
		cancel()

		r := rec.Sync(cctx)
		if r.Synced != 0 || queued(t, queue) != 2 {
			t.Errorf("expected nothing synced, got %+v", r)
		}
	})
}

func TestPermanent(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{shared.ErrInvalidInput, true},
		{shared.ErrNotFound, true},
		{shared.ErrSessionClosed, true},
		{shared.ErrServiceUnavailable, false},
		{errNetwork, false},
		{shared.ErrContentUnavailable, false},
	}

	for _, tt := range tests {
		if got := Permanent(tt.err); got != tt.want {
			t.Errorf("Permanent(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
