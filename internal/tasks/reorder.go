package tasks

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/desertthunder/tasting/internal/models"
	"github.com/desertthunder/tasting/internal/ordering"
	"github.com/desertthunder/tasting/internal/repositories"
	"github.com/desertthunder/tasting/internal/shared"
)

// MoveSlide sets one slide's position. The position must be positive and free within the slide's
// (wine, section); the welcome slide stays first.
func (e *TastingEngine) MoveSlide(ctx context.Context, slideID string, position float64) (*models.Slide, error) {
	slide, err := e.slides.Get(slideID)
	if err != nil {
		return nil, err
	}
	packageID, err := e.slides.PackageIDOf(slideID)
	if err != nil {
		return nil, err
	}

	unlock := e.locks.Lock(slide.WineID())
	defer unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	err = e.withTx(func(tx *sql.Tx) error {
		repo := e.slides.WithTx(tx)

		current, err := repo.Get(slideID)
		if err != nil {
			return err
		}
		scope, err := repo.ListScope(current.WineID(), current.Section())
		if err != nil {
			return err
		}
		if err := ordering.CheckPosition(scope, slideID, position); err != nil {
			return err
		}
		if err := repo.UpdatePosition(slideID, position); err != nil {
			return err
		}
		slide = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	slide.SetPosition(position)
	e.logger.Debug("slide moved", "slide_id", slideID, "wine_id", slide.WineID(), "position", position)
	e.invalidate(packageID, EventOrderChanged, map[string]any{"packageId": packageID, "wineId": slide.WineID()})
	return slide, nil
}

// ReorderSlides applies a batch of position updates atomically: either every update is written or none.
func (e *TastingEngine) ReorderSlides(ctx context.Context, updates []ordering.Update) error {
	if len(updates) == 0 {
		return fmt.Errorf("%w: empty reorder batch", shared.ErrInvalidInput)
	}

	wineIDs := make([]string, 0, len(updates))
	packageIDs := map[string]struct{}{}
	for _, u := range updates {
		slide, err := e.slides.Get(u.SlideID)
		if err != nil {
			return err
		}
		packageID, err := e.slides.PackageIDOf(u.SlideID)
		if err != nil {
			return err
		}
		wineIDs = append(wineIDs, slide.WineID())
		packageIDs[packageID] = struct{}{}
	}

	unlock := e.locks.Lock(wineIDs...)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	err := e.withTx(func(tx *sql.Tx) error {
		repo := e.slides.WithTx(tx)

		var scopeSlides []*models.Slide
		seen := map[string]bool{}
		for _, u := range updates {
			slide, err := repo.Get(u.SlideID)
			if err != nil {
				return err
			}
			key := slide.WineID() + "/" + string(slide.Section())
			if seen[key] {
				continue
			}
			seen[key] = true

			scope, err := repo.ListScope(slide.WineID(), slide.Section())
			if err != nil {
				return err
			}
			scopeSlides = append(scopeSlides, scope...)
		}

		if err := ordering.ValidateBatch(scopeSlides, updates); err != nil {
			return err
		}
		return applyUpdates(repo, updates)
	})
	if err != nil {
		return err
	}

	e.logger.Info("slides reordered", "count", len(updates))
	for packageID := range packageIDs {
		e.invalidate(packageID, EventOrderChanged, map[string]any{"packageId": packageID})
	}
	return nil
}

// ReconcileRequest is the payload of POST /slides/reconcile.
type ReconcileRequest struct {
	WineID   string             `json:"wineId"`
	Section  models.Section     `json:"section"`
	Order    []string           `json:"order"`
	MovedID  string             `json:"movedId,omitempty"`
	Expected map[string]float64 `json:"expected,omitempty"`
}

// ReconcileOrder turns a desired (wine, section) order into the minimal set of position writes
// against canonical state and applies them in one transaction.
func (e *TastingEngine) ReconcileOrder(ctx context.Context, req ReconcileRequest) (ordering.Result, error) {
	if !req.Section.Valid() {
		return ordering.Result{}, fmt.Errorf("%w: unknown section %q", shared.ErrInvalidInput, req.Section)
	}
	wine, err := e.wines.Get(req.WineID)
	if err != nil {
		return ordering.Result{}, err
	}

	unlock := e.locks.Lock(wine.ID())
	defer unlock()

	if err := ctx.Err(); err != nil {
		return ordering.Result{}, err
	}

	var result ordering.Result
	err = e.withTx(func(tx *sql.Tx) error {
		repo := e.slides.WithTx(tx)

		current, err := repo.ListScope(wine.ID(), req.Section)
		if err != nil {
			return err
		}

		result, err = e.reconciler.Reconcile(ordering.Request{
			WineID:   wine.ID(),
			Section:  req.Section,
			Current:  current,
			Order:    req.Order,
			MovedID:  req.MovedID,
			Expected: req.Expected,
		})
		if err != nil {
			return err
		}
		if len(result.Updates) == 0 {
			return nil
		}
		return applyUpdates(repo, result.Updates)
	})
	if err != nil {
		return ordering.Result{}, err
	}

	if len(result.Updates) > 0 {
		e.logger.Info("order reconciled",
			"wine_id", wine.ID(), "section", req.Section, "updates", len(result.Updates), "renumbered", result.Renumbered)
		e.invalidate(wine.PackageID(), EventOrderChanged, map[string]any{"packageId": wine.PackageID(), "wineId": wine.ID()})
	}
	if result.Updates == nil {
		result.Updates = []ordering.Update{}
	}
	return result, nil
}

// applyUpdates parks every slide on a distinct negative position first so swaps inside a scope never
// trip the unique index halfway through, then writes the final positions.
func applyUpdates(repo *repositories.SlideRepository, updates []ordering.Update) error {
	for i, u := range updates {
		if err := repo.UpdatePosition(u.SlideID, -float64(i+1)); err != nil {
			return err
		}
	}
	for _, u := range updates {
		if err := repo.UpdatePosition(u.SlideID, u.Position); err != nil {
			return err
		}
	}
	return nil
}
