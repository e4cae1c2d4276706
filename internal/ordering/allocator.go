package ordering

import (
	"fmt"
	"math"

	"github.com/desertthunder/tasting/internal/shared"
)

const (
	DefaultGap      = 1000.0
	DefaultBaseline = 100000.0
)

// Allocator computes gap-based positions.
//
// In integral mode every allocated position is a whole number, so two neighbors closer than 2
// leave no room and allocation fails with [shared.ErrPositionExhausted].
type Allocator struct {
	Gap      float64
	Baseline float64
	Integral bool
}

// NewAllocator builds an allocator from configuration, falling back to defaults for unset values.
func NewAllocator(cfg shared.OrderingConfig) Allocator {
	a := Allocator{Gap: cfg.Gap, Baseline: cfg.Baseline, Integral: cfg.Integral}
	if a.Gap <= 0 {
		a.Gap = DefaultGap
	}
	if a.Baseline <= 0 {
		a.Baseline = DefaultBaseline
	}
	return a
}

// AllocateBetween returns a position sorting strictly between prev and next. Either may be nil.
//
//   - both: the midpoint
//   - prev only: prev + Gap
//   - next only: next / 2
//   - neither: Baseline
func (a Allocator) AllocateBetween(prev, next *float64) (float64, error) {
	var pos float64
	switch {
	case prev != nil && next != nil:
		if *prev >= *next {
			return 0, exhausted(*prev, *next)
		}
		pos = *prev + (*next-*prev)/2
	case prev != nil:
		pos = *prev + a.Gap
	case next != nil:
		pos = *next / 2
	default:
		pos = a.Baseline
	}

	if a.Integral {
		pos = math.Floor(pos)
	}

	if math.IsInf(pos, 0) || math.IsNaN(pos) || pos <= 0 {
		return 0, exhausted(deref(prev), deref(next))
	}
	if prev != nil && pos <= *prev {
		return 0, exhausted(*prev, deref(next))
	}
	if next != nil && pos >= *next {
		return 0, exhausted(deref(prev), *next)
	}

	return pos, nil
}

// Spread returns m ascending positions evenly spaced strictly between prev and next. Either may be nil,
// with the same fallbacks as [Allocator.AllocateBetween].
func (a Allocator) Spread(prev, next *float64, m int) ([]float64, error) {
	positions := make([]float64, m)
	for j := range positions {
		k := float64(j + 1)
		var pos float64
		switch {
		case prev != nil && next != nil:
			pos = *prev + (*next-*prev)*k/float64(m+1)
		case prev != nil:
			pos = *prev + a.Gap*k
		case next != nil:
			pos = *next * k / float64(m+1)
		default:
			pos = a.Baseline + a.Gap*(k-1)
		}
		if a.Integral {
			pos = math.Floor(pos)
		}

		if math.IsInf(pos, 0) || math.IsNaN(pos) || pos <= 0 {
			return nil, exhausted(deref(prev), deref(next))
		}
		if (prev != nil && pos <= *prev) || (next != nil && pos >= *next) || (j > 0 && pos <= positions[j-1]) {
			return nil, exhausted(deref(prev), deref(next))
		}
		positions[j] = pos
	}
	return positions, nil
}

// Renumber returns n evenly spaced positions Gap, 2*Gap, ... n*Gap.
func (a Allocator) Renumber(n int) []float64 {
	positions := make([]float64, n)
	for i := range positions {
		positions[i] = a.Gap * float64(i+1)
	}
	return positions
}

// Append returns the position for a new last item after positions (which must be ascending).
func (a Allocator) Append(positions []float64) (float64, error) {
	if len(positions) == 0 {
		return a.AllocateBetween(nil, nil)
	}
	last := positions[len(positions)-1]
	return a.AllocateBetween(&last, nil)
}

// InsertAt returns the position for a new item placed at index in ascending positions.
func (a Allocator) InsertAt(positions []float64, index int) (float64, error) {
	if index < 0 || index > len(positions) {
		return 0, fmt.Errorf("%w: insert index %d outside [0, %d]", shared.ErrInvalidInput, index, len(positions))
	}

	var prev, next *float64
	if index > 0 {
		prev = &positions[index-1]
	}
	if index < len(positions) {
		next = &positions[index]
	}
	return a.AllocateBetween(prev, next)
}

func exhausted(prev, next float64) error {
	return shared.ErrPositionExhausted.WithMetadata(map[string]string{
		"prev": fmt.Sprint(prev),
		"next": fmt.Sprint(next),
	})
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
