package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tasting/internal/aggregate"
	"github.com/desertthunder/tasting/internal/models"
	"github.com/desertthunder/tasting/internal/shared"
)

// Source supplies the current canonical sequence. It is called again whenever the navigator
// detects an index outside the sequence it holds.
type Source interface {
	Sequence(ctx context.Context) (*aggregate.Sequence, error)
}

// SourceFunc adapts a function to [Source].
type SourceFunc func(ctx context.Context) (*aggregate.Sequence, error)

func (f SourceFunc) Sequence(ctx context.Context) (*aggregate.Sequence, error) { return f(ctx) }

// ProgressHook receives the pointer after every transition.
type ProgressHook func(ptr models.ProgressPointer)

// Navigator is a per-participant cursor over a [Plan].
type Navigator struct {
	mu     sync.Mutex
	source Source
	plan   *Plan
	cursor int
	hook   ProgressHook
	logger *log.Logger
}

// Option configures a [Navigator].
type Option func(*Navigator)

// WithProgressHook registers fn to persist the pointer after each transition.
func WithProgressHook(fn ProgressHook) Option {
	return func(n *Navigator) { n.hook = fn }
}

// WithLogger sets the navigator's logger.
func WithLogger(l *log.Logger) Option {
	return func(n *Navigator) { n.logger = l }
}

// NewNavigator fetches the sequence from source and positions the cursor on the first step.
func NewNavigator(ctx context.Context, source Source, opts ...Option) (*Navigator, error) {
	n := &Navigator{source: source}
	for _, opt := range opts {
		opt(n)
	}

	if err := n.refetch(ctx); err != nil {
		return nil, err
	}
	return n, nil
}

// Plan returns the plan the navigator currently walks.
func (n *Navigator) Plan() *Plan {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.plan
}

// Current returns the step under the cursor.
func (n *Navigator) Current(ctx context.Context) (Step, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.resolve(ctx, n.cursor)
}

// Pointer returns the durable pointer for the current step.
func (n *Navigator) Pointer() models.ProgressPointer {
	n.mu.Lock()
	defer n.mu.Unlock()
	if s, err := n.plan.Step(n.cursor); err == nil {
		return s.Pointer()
	}
	return models.ProgressPointer{StepIndex: n.cursor}
}

// Next advances one step. At Complete it stays on Complete.
func (n *Navigator) Next(ctx context.Context) (Step, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	target := n.cursor + 1
	if target >= n.plan.Len() {
		target = n.plan.Len() - 1
	}
	return n.move(ctx, target)
}

// Prev goes back one step. At the first step it stays there.
func (n *Navigator) Prev(ctx context.Context) (Step, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	target := n.cursor - 1
	if target < 0 {
		target = 0
	}
	return n.move(ctx, target)
}

// Goto jumps to step i.
func (n *Navigator) Goto(ctx context.Context, i int) (Step, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.move(ctx, i)
}

// GotoSlide jumps to the step showing the slide at effective index i. Index equal to the
// sequence length is Complete.
func (n *Navigator) GotoSlide(ctx context.Context, slideIndex int) (Step, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	step, err := n.plan.StateAt(slideIndex)
	if errors.Is(err, shared.ErrSlideOutOfRange) {
		n.warn("slide index outside sequence, refetching", "index", slideIndex, "length", n.plan.Sequence.Len())
		if err := n.refetch(ctx); err != nil {
			return Step{}, err
		}
		step, err = n.plan.StateAt(slideIndex)
		if err != nil {
			return Step{}, unavailable(err)
		}
	} else if err != nil {
		return Step{}, err
	}
	return n.move(ctx, step.Index)
}

// Resume places the cursor on the step ptr refers to. Pointers that no longer match any step
// clamp to the last step of the refetched plan.
func (n *Navigator) Resume(ctx context.Context, ptr models.ProgressPointer) (Step, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if ptr.IsZero() {
		return n.move(ctx, 0)
	}

	i, ok := n.plan.Locate(ptr)
	if !ok {
		if err := n.refetch(ctx); err != nil {
			return Step{}, err
		}
		if i, ok = n.plan.Locate(ptr); !ok {
			i = n.plan.Len() - 1
		}
	}
	return n.move(ctx, i)
}

// Refresh refetches the sequence and keeps the cursor on the same logical step when it still exists.
func (n *Navigator) Refresh(ctx context.Context) (Step, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	var ptr models.ProgressPointer
	if s, err := n.plan.Step(n.cursor); err == nil {
		ptr = s.Pointer()
	}

	if err := n.refetch(ctx); err != nil {
		return Step{}, err
	}

	i, ok := n.plan.Locate(ptr)
	if !ok {
		i = n.plan.Len() - 1
	}
	n.cursor = i
	return n.resolve(ctx, i)
}

func (n *Navigator) move(ctx context.Context, i int) (Step, error) {
	step, err := n.resolve(ctx, i)
	if err != nil {
		return Step{}, err
	}

	n.cursor = step.Index
	if n.hook != nil {
		n.hook(step.Pointer())
	}
	return step, nil
}

// resolve bounds-checks step i and its slide, refetching once before giving up.
func (n *Navigator) resolve(ctx context.Context, i int) (Step, error) {
	step, err := n.check(i)
	if err == nil {
		return step, nil
	}
	if !errors.Is(err, shared.ErrSlideOutOfRange) {
		return Step{}, err
	}

	n.warn("step outside sequence, refetching", "step", i, "steps", n.plan.Len())
	if err := n.refetch(ctx); err != nil {
		return Step{}, err
	}

	step, err = n.check(i)
	if err != nil {
		return Step{}, unavailable(err)
	}
	return step, nil
}

func (n *Navigator) check(i int) (Step, error) {
	step, err := n.plan.Step(i)
	if err != nil {
		return Step{}, err
	}
	if step.SlideIndex >= 0 {
		slide, err := n.plan.Sequence.At(step.SlideIndex)
		if err != nil {
			return Step{}, err
		}
		if step.Slide == nil || slide.ID() != step.Slide.ID() {
			return Step{}, shared.ErrSlideOutOfRange
		}
	}
	return step, nil
}

func (n *Navigator) refetch(ctx context.Context) error {
	seq, err := n.source.Sequence(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch sequence: %w", err)
	}
	n.plan = NewPlan(seq)
	if n.cursor >= n.plan.Len() {
		n.cursor = n.plan.Len() - 1
	}
	return nil
}

func (n *Navigator) warn(msg string, kv ...any) {
	if n.logger != nil {
		n.logger.Warn(msg, kv...)
	}
}

func unavailable(cause error) error {
	return shared.WrapError(shared.CodeContentUnavailable, "slide sequence is inconsistent after refetch", cause)
}
