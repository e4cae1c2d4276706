package ordering

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/desertthunder/tasting/internal/models"
	"github.com/desertthunder/tasting/internal/shared"
)

// Update is a single position write.
type Update struct {
	SlideID  string  `json:"slideId"`
	Position float64 `json:"position"`
}

// Request describes a drag result confined to one (wine, section) scope.
type Request struct {
	WineID  string
	Section models.Section
	// Current holds the canonical slides of the scope.
	Current []*models.Slide
	// Order is the desired order of every slide in the scope.
	Order []string
	// MovedID optionally names the dragged slide so equally small solutions prefer moving it.
	MovedID string
	// Expected optionally holds the positions the client last saw; any mismatch means its copy is stale.
	Expected map[string]float64
}

// Result is the outcome of a reconciliation.
type Result struct {
	Updates    []Update `json:"updates"`
	Renumbered bool     `json:"renumbered"`
}

// Reconciler converts desired orders into position updates.
type Reconciler struct {
	Allocator Allocator
}

// NewReconciler creates a reconciler using a.
func NewReconciler(a Allocator) *Reconciler {
	return &Reconciler{Allocator: a}
}

// Reconcile returns the position writes that make the scope sort in req.Order.
//
// Slides already in relative order keep their positions. When allocation runs out of room between
// two anchors, the smallest surrounding window of slides is respread first; only when no window short
// of the whole scope fits is the scope renumbered. Only slides whose position changed are returned.
func (r *Reconciler) Reconcile(req Request) (Result, error) {
	byID, err := indexScope(req)
	if err != nil {
		return Result{}, err
	}

	if err := validateOrder(req, byID); err != nil {
		return Result{}, err
	}

	for id, pos := range req.Expected {
		slide, ok := byID[id]
		if ok && slide.Position() != pos {
			return Result{}, shared.NewError(shared.CodeDuplicatePosition, "positions changed since last fetch").
				WithMetadata(map[string]string{"slideId": id, "position": formatPos(slide.Position())})
		}
	}

	current := make([]float64, len(req.Order))
	for i, id := range req.Order {
		current[i] = byID[id].Position()
	}

	keep := keepSet(current, weights(req.Order, req.MovedID))

	final, err := r.place(current, keep)
	if errors.Is(err, shared.ErrPositionExhausted) {
		final, err = r.widen(current, keep)
	}
	renumbered := false
	if errors.Is(err, shared.ErrPositionExhausted) {
		final = r.Allocator.Renumber(len(current))
		renumbered = true
	} else if err != nil {
		return Result{}, err
	}

	if err := checkUnique(req.Order, final); err != nil {
		return Result{}, err
	}

	var updates []Update
	for i, id := range req.Order {
		if final[i] != current[i] {
			updates = append(updates, Update{SlideID: id, Position: final[i]})
		}
	}

	return Result{Updates: updates, Renumbered: renumbered}, nil
}

// place allocates positions for items outside keep, left to right, between the nearest kept anchors.
func (r *Reconciler) place(current []float64, keep []bool) ([]float64, error) {
	final := make([]float64, len(current))
	for i := range current {
		if keep[i] {
			final[i] = current[i]
			continue
		}

		var prev, next *float64
		if i > 0 {
			prev = &final[i-1]
		}
		for j := i + 1; j < len(current); j++ {
			if keep[j] {
				next = &current[j]
				break
			}
		}

		pos, err := r.Allocator.AllocateBetween(prev, next)
		if err != nil {
			return nil, err
		}
		final[i] = pos
	}
	return final, nil
}

// widen fills each run of unkept items by spreading it evenly between anchors. A run that does not fit
// absorbs kept neighbors one at a time, on either side, until it does; among windows of the same size
// the one writing the fewest positions wins. Windows spanning the whole scope are left to Renumber.
func (r *Reconciler) widen(current []float64, keep []bool) ([]float64, error) {
	n := len(current)
	final := make([]float64, n)
	for i := 0; i < n; {
		if keep[i] {
			final[i] = current[i]
			i++
			continue
		}

		lo, hi := i, i
		for hi+1 < n && !keep[hi+1] {
			hi++
		}

		resume := -1
		for grow := 0; grow < n && resume < 0; grow++ {
			var best []float64
			bestLo, bestWrites := 0, 0
			for left := 0; left <= grow; left++ {
				wlo, whi, ok := window(keep, lo, hi, left, grow-left)
				if !ok || (wlo == 0 && whi == n-1) {
					continue
				}

				var prev, nxt *float64
				if wlo > 0 {
					prev = &final[wlo-1]
				}
				if whi+1 < n {
					nxt = &current[whi+1]
				}
				spread, err := r.Allocator.Spread(prev, nxt, whi-wlo+1)
				if err != nil {
					continue
				}

				writes := 0
				for j, pos := range spread {
					if pos != current[wlo+j] {
						writes++
					}
				}
				if best == nil || writes < bestWrites {
					best, bestLo, bestWrites = spread, wlo, writes
				}
			}

			if best != nil {
				copy(final[bestLo:], best)
				resume = bestLo + len(best)
			}
		}

		if resume < 0 {
			return nil, shared.ErrPositionExhausted
		}
		i = resume
	}
	return final, nil
}

// window extends the run [lo, hi] over left items before it and right kept items after it, absorbing
// any unkept items that follow so the right anchor is always kept.
func window(keep []bool, lo, hi, left, right int) (int, int, bool) {
	wlo := lo - left
	if wlo < 0 {
		return 0, 0, false
	}

	whi := hi
	for passed := 0; passed < right; {
		whi++
		if whi >= len(keep) {
			return 0, 0, false
		}
		if keep[whi] {
			passed++
		}
	}
	for whi+1 < len(keep) && !keep[whi+1] {
		whi++
	}
	return wlo, whi, true
}

func indexScope(req Request) (map[string]*models.Slide, error) {
	byID := make(map[string]*models.Slide, len(req.Current))
	for _, s := range req.Current {
		if s.WineID() != req.WineID || s.Section() != req.Section {
			return nil, fmt.Errorf("slide %s is outside scope %s/%s", s.ID(), req.WineID, req.Section)
		}
		byID[s.ID()] = s
	}
	return byID, nil
}

func validateOrder(req Request, byID map[string]*models.Slide) error {
	seen := make(map[string]bool, len(req.Order))
	for _, id := range req.Order {
		if _, ok := byID[id]; !ok {
			return shared.NewError(shared.CodeInvalidMove,
				fmt.Sprintf("slide %s does not belong to wine %s section %s", id, req.WineID, req.Section))
		}
		if seen[id] {
			return fmt.Errorf("%w: slide %s listed twice", shared.ErrInvalidInput, id)
		}
		seen[id] = true
	}

	if len(req.Order) != len(byID) {
		return fmt.Errorf("%w: order lists %d of %d slides in the section", shared.ErrInvalidInput, len(req.Order), len(byID))
	}

	for i, id := range req.Order {
		if byID[id].IsPackageIntro() && i != 0 {
			return shared.NewError(shared.CodeInvalidMove, "the welcome slide must stay first").
				WithMetadata(map[string]string{"slideId": id})
		}
	}
	return nil
}

func weights(order []string, movedID string) []int {
	w := make([]int, len(order))
	for i, id := range order {
		w[i] = 1
		if movedID != "" && id != movedID {
			w[i] = 2
		}
	}
	return w
}

// keepSet picks the heaviest strictly increasing subsequence of positions. Among equally heavy
// choices it prefers the one whose members come earliest in the desired order.
func keepSet(positions []float64, w []int) []bool {
	n := len(positions)
	best := make([]int, n)
	for i := n - 1; i >= 0; i-- {
		best[i] = w[i]
		for j := i + 1; j < n; j++ {
			if positions[j] > positions[i] && w[i]+best[j] > best[i] {
				best[i] = w[i] + best[j]
			}
		}
	}

	keep := make([]bool, n)
	target := 0
	for i := range n {
		target = max(target, best[i])
	}

	floor := 0.0
	hasFloor := false
	for i := 0; i < n && target > 0; i++ {
		if best[i] != target || (hasFloor && positions[i] <= floor) {
			continue
		}
		keep[i] = true
		target -= w[i]
		floor = positions[i]
		hasFloor = true
	}
	return keep
}

func checkUnique(order []string, final []float64) error {
	seen := make(map[float64]string, len(final))
	for i, pos := range final {
		if !models.ValidPosition(pos) {
			return shared.NewError(shared.CodeDuplicatePosition, "reconciled position is not positive").
				WithMetadata(map[string]string{"slideId": order[i], "position": formatPos(pos)})
		}
		if other, ok := seen[pos]; ok {
			return shared.NewError(shared.CodeDuplicatePosition, "two slides would share a position").
				WithMetadata(map[string]string{"slideId": order[i], "otherSlideId": other, "position": formatPos(pos)})
		}
		seen[pos] = order[i]
	}
	return nil
}

// SortScope orders slides by (position, id).
func SortScope(slides []*models.Slide) {
	sort.SliceStable(slides, func(i, j int) bool {
		if slides[i].Position() != slides[j].Position() {
			return slides[i].Position() < slides[j].Position()
		}
		return slides[i].ID() < slides[j].ID()
	})
}

func formatPos(pos float64) string {
	return strconv.FormatFloat(pos, 'f', -1, 64)
}
