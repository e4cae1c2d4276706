package ordering

import (
	"errors"
	"fmt"
	"math/rand"
	"slices"
	"testing"

	"github.com/desertthunder/tasting/internal/models"
	"github.com/desertthunder/tasting/internal/shared"
)

func ptr(f float64) *float64 { return &f }

func newScope(t *testing.T, positions ...float64) []*models.Slide {
	t.Helper()

	slides := make([]*models.Slide, len(positions))
	for i, pos := range positions {
		s := models.NewSlide("w1", models.SectionDeepDive, pos, "", models.InterludePayload{Title: "x"})
		s.SetID(string(rune('A' + i)))
		slides[i] = s
	}
	return slides
}

func apply(scope []*models.Slide, updates []Update) {
	for _, u := range updates {
		for _, s := range scope {
			if s.ID() == u.SlideID {
				s.SetPosition(u.Position)
			}
		}
	}
}

func orderOf(scope []*models.Slide) []string {
	sorted := slices.Clone(scope)
	SortScope(sorted)
	ids := make([]string, len(sorted))
	for i, s := range sorted {
		ids[i] = s.ID()
	}
	return ids
}

func TestAllocateBetween(t *testing.T) {
	integral := Allocator{Gap: 1000, Baseline: 100000, Integral: true}
	fractional := Allocator{Gap: 1000, Baseline: 100000}

	tc := []struct {
		name      string
		a         Allocator
		prev      *float64
		next      *float64
		want      float64
		exhausted bool
	}{
		{name: "empty scope", a: integral, want: 100000},
		{name: "append", a: integral, prev: ptr(2000), want: 3000},
		{name: "prepend", a: integral, next: ptr(1000), want: 500},
		{name: "midpoint", a: integral, prev: ptr(20), next: ptr(30), want: 25},
		{name: "midpoint floors", a: integral, prev: ptr(20), next: ptr(23), want: 21},
		{name: "adjacent integers", a: integral, prev: ptr(20), next: ptr(21), exhausted: true},
		{name: "prepend before one", a: integral, next: ptr(1), exhausted: true},
		{name: "equal neighbors", a: integral, prev: ptr(2110), next: ptr(2110), exhausted: true},
		{name: "inverted neighbors", a: fractional, prev: ptr(30), next: ptr(20), exhausted: true},
		{name: "fractional midpoint", a: fractional, prev: ptr(20), next: ptr(21), want: 20.5},
		{name: "fractional prepend", a: fractional, next: ptr(1), want: 0.5},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.a.AllocateBetween(tt.prev, tt.next)
			if tt.exhausted {
				if !errors.Is(err, shared.ErrPositionExhausted) {
					t.Fatalf("expected ErrPositionExhausted, got %v (%v)", err, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("AllocateBetween() = %v, want %v", got, tt.want)
			}
		})
	}

	t.Run("precision runs out", func(t *testing.T) {
		prev, next := 1.0, 2.0
		var err error
		for range 200 {
			var mid float64
			mid, err = fractional.AllocateBetween(&prev, &next)
			if err != nil {
				break
			}
			next = mid
		}
		if !errors.Is(err, shared.ErrPositionExhausted) {
			t.Fatalf("expected precision exhaustion, got %v", err)
		}
	})
}

func TestAllocatorHelpers(t *testing.T) {
	a := NewAllocator(shared.OrderingConfig{Integral: true})

	t.Run("defaults", func(t *testing.T) {
		if a.Gap != DefaultGap || a.Baseline != DefaultBaseline {
			t.Errorf("expected defaults, got %+v", a)
		}
	})

	t.Run("Renumber", func(t *testing.T) {
		got := a.Renumber(3)
		want := []float64{1000, 2000, 3000}
		if !slices.Equal(got, want) {
			t.Errorf("Renumber() = %v, want %v", got, want)
		}
	})

	t.Run("Spread", func(t *testing.T) {
		got, err := a.Spread(ptr(1000), ptr(2000), 2)
		if err != nil || !slices.Equal(got, []float64{1333, 1666}) {
			t.Errorf("Spread(1000, 2000, 2) = %v, %v", got, err)
		}

		got, err = a.Spread(nil, ptr(900), 2)
		if err != nil || !slices.Equal(got, []float64{300, 600}) {
			t.Errorf("Spread(nil, 900, 2) = %v, %v", got, err)
		}

		if _, err := a.Spread(ptr(10), ptr(12), 2); !errors.Is(err, shared.ErrPositionExhausted) {
			t.Errorf("expected ErrPositionExhausted, got %v", err)
		}
	})

	t.Run("Append & InsertAt", func(t *testing.T) {
		pos, err := a.Append([]float64{1000, 2000})
		if err != nil || pos != 3000 {
			t.Errorf("Append() = %v, %v", pos, err)
		}

		pos, err = a.InsertAt([]float64{1000, 2000}, 1)
		if err != nil || pos != 1500 {
			t.Errorf("InsertAt() = %v, %v", pos, err)
		}

		if _, err := a.InsertAt([]float64{1000}, 5); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestReconcile(t *testing.T) {
	r := NewReconciler(Allocator{Gap: 1000, Baseline: 100000, Integral: true})

	t.Run("drag between neighbors writes only the moved slide", func(t *testing.T) {
		scope := newScope(t, 10, 20, 30) // A, B, C
		res, err := r.Reconcile(Request{WineID: "w1", Section: models.SectionDeepDive, Current: scope, Order: []string{"B", "A", "C"}})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := []Update{{SlideID: "A", Position: 25}}
		if !slices.Equal(res.Updates, want) {
			t.Errorf("Updates = %+v, want %+v", res.Updates, want)
		}
	})

	t.Run("moved id breaks ties", func(t *testing.T) {
		scope := newScope(t, 10, 20, 30)
		res, err := r.Reconcile(Request{WineID: "w1", Section: models.SectionDeepDive, Current: scope, Order: []string{"B", "A", "C"}, MovedID: "B"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := []Update{{SlideID: "B", Position: 5}}
		if !slices.Equal(res.Updates, want) {
			t.Errorf("Updates = %+v, want %+v", res.Updates, want)
		}
	})

	t.Run("unchanged order writes nothing", func(t *testing.T) {
		scope := newScope(t, 10, 20, 30)
		res, err := r.Reconcile(Request{WineID: "w1", Section: models.SectionDeepDive, Current: scope, Order: []string{"A", "B", "C"}})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(res.Updates) != 0 {
			t.Errorf("expected no updates, got %+v", res.Updates)
		}
	})

	t.Run("exhausted gap respreads a local window", func(t *testing.T) {
		scope := newScope(t, 1000, 1001, 1002, 3000) // A, B, C, D
		res, err := r.Reconcile(Request{WineID: "w1", Section: models.SectionDeepDive, Current: scope, Order: []string{"B", "A", "C", "D"}, MovedID: "A"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Renumbered {
			t.Fatal("expected no full renumber")
		}

		want := []Update{{SlideID: "A", Position: 1667}, {SlideID: "C", Position: 2333}}
		if !slices.Equal(res.Updates, want) {
			t.Errorf("Updates = %+v, want %+v", res.Updates, want)
		}
		apply(scope, res.Updates)
		if got := orderOf(scope); !slices.Equal(got, []string{"B", "A", "C", "D"}) {
			t.Errorf("order = %v", got)
		}
	})

	t.Run("window widens only as far as needed", func(t *testing.T) {
		scope := newScope(t, 1000, 1001, 2000, 3000, 4000, 5000) // A, B, C, D, E, F
		order := []string{"A", "F", "B", "C", "D", "E"}
		res, err := r.Reconcile(Request{WineID: "w1", Section: models.SectionDeepDive, Current: scope, Order: order, MovedID: "F"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Renumbered || len(res.Updates) != 2 {
			t.Fatalf("expected two writes without renumber, got %+v", res)
		}

		apply(scope, res.Updates)
		if got := orderOf(scope); !slices.Equal(got, order) {
			t.Errorf("order = %v, want %v", got, order)
		}
		for _, s := range scope {
			if s.ID() == "C" || s.ID() == "D" || s.ID() == "E" {
				if s.Position() != map[string]float64{"C": 2000, "D": 3000, "E": 4000}[s.ID()] {
					t.Errorf("%s moved to %v", s.ID(), s.Position())
				}
			}
		}
	})

	t.Run("window may run past the last slide", func(t *testing.T) {
		scope := newScope(t, 1, 2, 3) // A, B, C
		res, err := r.Reconcile(Request{WineID: "w1", Section: models.SectionDeepDive, Current: scope, Order: []string{"A", "C", "B"}, MovedID: "C"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Renumbered {
			t.Fatalf("expected no renumber, got %+v", res)
		}

		want := []Update{{SlideID: "C", Position: 1001}, {SlideID: "B", Position: 2001}}
		if !slices.Equal(res.Updates, want) {
			t.Errorf("Updates = %+v, want %+v", res.Updates, want)
		}
	})

	t.Run("no window short of the scope fits so it renumbers", func(t *testing.T) {
		scope := newScope(t, 1, 2) // A, B
		res, err := r.Reconcile(Request{WineID: "w1", Section: models.SectionDeepDive, Current: scope, Order: []string{"B", "A"}, MovedID: "B"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !res.Renumbered {
			t.Fatalf("expected renumber, got %+v", res)
		}

		want := []Update{{SlideID: "B", Position: 1000}, {SlideID: "A", Position: 2000}}
		if !slices.Equal(res.Updates, want) {
			t.Errorf("Updates = %+v, want %+v", res.Updates, want)
		}
	})

	t.Run("welcome slide cannot move down", func(t *testing.T) {
		scope := newScope(t, 10, 20, 30)
		scope[0].SetPackageIntro(true)

		_, err := r.Reconcile(Request{WineID: "w1", Section: models.SectionDeepDive, Current: scope, Order: []string{"B", "A", "C"}})
		if !errors.Is(err, shared.ErrInvalidMove) {
			t.Fatalf("expected ErrInvalidMove, got %v", err)
		}
		if scope[0].Position() != 10 {
			t.Error("expected state unchanged")
		}
	})

	t.Run("cross scope slide is an invalid move", func(t *testing.T) {
		scope := newScope(t, 10, 20)
		_, err := r.Reconcile(Request{WineID: "w1", Section: models.SectionDeepDive, Current: scope, Order: []string{"A", "Z", "B"}})
		if !errors.Is(err, shared.ErrInvalidMove) {
			t.Fatalf("expected ErrInvalidMove, got %v", err)
		}
	})

	t.Run("incomplete order is invalid input", func(t *testing.T) {
		scope := newScope(t, 10, 20, 30)
		_, err := r.Reconcile(Request{WineID: "w1", Section: models.SectionDeepDive, Current: scope, Order: []string{"A", "B"}})
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput, got %v", err)
		}

		_, err = r.Reconcile(Request{WineID: "w1", Section: models.SectionDeepDive, Current: scope, Order: []string{"A", "A", "B"}})
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput for duplicate id, got %v", err)
		}
	})

	t.Run("stale expected positions conflict", func(t *testing.T) {
		scope := newScope(t, 10, 20, 30)
		_, err := r.Reconcile(Request{
			WineID: "w1", Section: models.SectionDeepDive, Current: scope,
			Order:    []string{"B", "A", "C"},
			Expected: map[string]float64{"A": 15},
		})
		if !errors.Is(err, shared.ErrDuplicatePosition) {
			t.Fatalf("expected ErrDuplicatePosition, got %v", err)
		}
	})

	t.Run("legacy duplicate positions are separated", func(t *testing.T) {
		scope := newScope(t, 2110, 2110, 3000)
		res, err := r.Reconcile(Request{WineID: "w1", Section: models.SectionDeepDive, Current: scope, Order: []string{"A", "B", "C"}})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		apply(scope, res.Updates)
		if scope[0].Position() == scope[1].Position() {
			t.Errorf("expected distinct positions, got %+v", res.Updates)
		}
		if got := orderOf(scope); !slices.Equal(got, []string{"A", "B", "C"}) {
			t.Errorf("order = %v", got)
		}
	})
}

// TestReconcileRandomized drives random insert and move sequences through the allocator and
// reconciler, checking after every step that positions stay unique and sort in the desired order.
func TestReconcileRandomized(t *testing.T) {
	for _, integral := range []bool{true, false} {
		t.Run(fmt.Sprintf("integral=%v", integral), func(t *testing.T) {
			rng := rand.New(rand.NewSource(42))
			a := Allocator{Gap: 16, Baseline: 1024, Integral: integral}
			r := NewReconciler(a)

			var scope []*models.Slide
			nextID := 0
			respreads := 0

			for step := range 1500 {
				sorted := slices.Clone(scope)
				SortScope(sorted)

				if len(scope) < 3 || (len(scope) < 60 && rng.Intn(3) == 0) {
					positions := make([]float64, len(sorted))
					for i, s := range sorted {
						positions[i] = s.Position()
					}
					at := rng.Intn(len(sorted) + 1)
					pos, err := a.InsertAt(positions, at)
					if errors.Is(err, shared.ErrPositionExhausted) {
						renumbered := a.Renumber(len(sorted))
						for i, s := range sorted {
							s.SetPosition(renumbered[i])
							positions[i] = renumbered[i]
						}
						respreads++
						pos, err = a.InsertAt(positions, at)
					}
					if err != nil {
						t.Fatalf("step %d: insert failed: %v", step, err)
					}

					s := models.NewSlide("w1", models.SectionDeepDive, pos, "", models.InterludePayload{Title: "x"})
					s.SetID(fmt.Sprintf("s%04d", nextID))
					nextID++
					scope = append(scope, s)
				} else {
					order := orderOf(scope)
					from := rng.Intn(len(order))
					moved := order[from]
					order = slices.Delete(order, from, from+1)
					to := rng.Intn(len(order) + 1)
					order = slices.Insert(order, to, moved)

					movedID := ""
					if rng.Intn(2) == 0 {
						movedID = moved
					}

					fits := false
					if movedID != "" {
						byID := make(map[string]float64, len(scope))
						for _, s := range scope {
							byID[s.ID()] = s.Position()
						}
						var prev, next *float64
						if to > 0 {
							p := byID[order[to-1]]
							prev = &p
						}
						if to+1 < len(order) {
							n := byID[order[to+1]]
							next = &n
						}
						_, allocErr := a.AllocateBetween(prev, next)
						fits = allocErr == nil
					}

					res, err := r.Reconcile(Request{WineID: "w1", Section: models.SectionDeepDive, Current: scope, Order: order, MovedID: movedID})
					if err != nil {
						t.Fatalf("step %d: reconcile failed: %v", step, err)
					}
					if res.Renumbered || len(res.Updates) > 1 {
						respreads++
					}
					if fits && len(res.Updates) > 1 {
						t.Fatalf("step %d: move with room between neighbors produced %d updates", step, len(res.Updates))
					}

					apply(scope, res.Updates)
					if got := orderOf(scope); !slices.Equal(got, order) {
						t.Fatalf("step %d: order = %v, want %v", step, got, order)
					}
				}

				seen := make(map[float64]string, len(scope))
				for _, s := range scope {
					if other, ok := seen[s.Position()]; ok {
						t.Fatalf("step %d: %s and %s share position %v", step, s.ID(), other, s.Position())
					}
					if !models.ValidPosition(s.Position()) {
						t.Fatalf("step %d: %s has invalid position %v", step, s.ID(), s.Position())
					}
					seen[s.Position()] = s.ID()
				}
			}

			if integral && respreads == 0 {
				t.Error("expected crowded positions to be respread at least once in integral mode")
			}
		})
	}
}

func TestCheckPosition(t *testing.T) {
	scope := newScope(t, 10, 20, 30)
	scope[0].SetPackageIntro(true)

	tc := []struct {
		name    string
		id      string
		pos     float64
		wantErr error
	}{
		{name: "free position", id: "C", pos: 25},
		{name: "zero", id: "C", pos: 0, wantErr: shared.ErrInvalidInput},
		{name: "negative", id: "C", pos: -5, wantErr: shared.ErrInvalidInput},
		{name: "collision", id: "C", pos: 20, wantErr: shared.ErrInvalidInput},
		{name: "ahead of welcome", id: "C", pos: 5, wantErr: shared.ErrInvalidMove},
		{name: "welcome moves down", id: "A", pos: 25, wantErr: shared.ErrInvalidMove},
		{name: "welcome moves up", id: "A", pos: 5},
		{name: "unknown slide", id: "Z", pos: 40, wantErr: shared.ErrNotFound},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckPosition(scope, tt.id, tt.pos)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateBatch(t *testing.T) {
	tc := []struct {
		name    string
		updates []Update
		wantErr error
	}{
		{name: "swap", updates: []Update{{SlideID: "A", Position: 20}, {SlideID: "B", Position: 10}}},
		{name: "collision with untouched slide", updates: []Update{{SlideID: "A", Position: 30}}, wantErr: shared.ErrDuplicatePosition},
		{name: "collision inside batch", updates: []Update{{SlideID: "A", Position: 50}, {SlideID: "B", Position: 50}}, wantErr: shared.ErrDuplicatePosition},
		{name: "non positive", updates: []Update{{SlideID: "A", Position: 0}}, wantErr: shared.ErrInvalidInput},
		{name: "unknown slide", updates: []Update{{SlideID: "Z", Position: 50}}, wantErr: shared.ErrNotFound},
		{name: "same slide twice", updates: []Update{{SlideID: "A", Position: 50}, {SlideID: "A", Position: 60}}, wantErr: shared.ErrInvalidInput},
		{name: "empty", updates: nil, wantErr: shared.ErrInvalidInput},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBatch(newScope(t, 10, 20, 30), tt.updates)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	t.Run("welcome slide stays first", func(t *testing.T) {
		scope := newScope(t, 10, 20, 30)
		scope[0].SetPackageIntro(true)

		err := ValidateBatch(scope, []Update{{SlideID: "B", Position: 5}})
		if !errors.Is(err, shared.ErrInvalidMove) {
			t.Errorf("expected ErrInvalidMove, got %v", err)
		}
	})

	t.Run("other scopes are not compared", func(t *testing.T) {
		scope := newScope(t, 10, 20)
		other := models.NewSlide("w2", models.SectionDeepDive, 50, "", models.InterludePayload{Title: "x"})
		other.SetID("X")

		if err := ValidateBatch(append(scope, other), []Update{{SlideID: "A", Position: 50}}); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}
