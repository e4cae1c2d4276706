package tasks

import (
	"context"
	"database/sql"
	"math"
	"sort"

	"github.com/desertthunder/tasting/internal/aggregate"
	"github.com/desertthunder/tasting/internal/models"
	"github.com/desertthunder/tasting/internal/ordering"
)

// RepairOpts controls [TastingEngine.RepairPositions].
type RepairOpts struct {
	// Compact renumbers every scope, not only damaged ones.
	Compact bool
}

// RepairReport summarizes a repair run.
type RepairReport struct {
	PackageID        string `json:"packageId"`
	Scopes           int    `json:"scopes"`
	DamagedScopes    int    `json:"damagedScopes"`
	SlidesRenumbered int    `json:"slidesRenumbered"`
	DuplicateGlobal  int    `json:"duplicateGlobal"`
	GlobalUpdated    int    `json:"globalUpdated"`
}

type repairScope struct {
	wineID  string
	section models.Section
	slides  []*models.Slide
}

// RepairPositions audits a package's stored positions. Scopes with duplicate or invalid positions, or
// with the welcome slide not first, are renumbered with the allocator's full pass; afterwards the
// denormalized global position of every slide is rewritten from the aggregated order.
func (e *TastingEngine) RepairPositions(ctx context.Context, code string, opts RepairOpts, progress chan<- ProgressUpdate) (*RepairReport, error) {
	pkg, err := e.packages.GetByCode(normalizeCode(code))
	if err != nil {
		return nil, err
	}
	wines, err := e.wines.ListByPackage(pkg.ID())
	if err != nil {
		return nil, err
	}

	wineIDs := make([]string, len(wines))
	for i, w := range wines {
		wineIDs[i] = w.ID()
	}
	unlock := e.locks.Lock(wineIDs...)
	defer unlock()

	report := &RepairReport{PackageID: pkg.ID()}
	err = e.withTx(func(tx *sql.Tx) error {
		repo := e.slides.WithTx(tx)

		slides, err := repo.ListByPackage(pkg.ID())
		if err != nil {
			return err
		}

		scopes := groupScopes(slides)
		report.Scopes = len(scopes)
		for i, scope := range scopes {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !opts.Compact && !damaged(scope.slides) {
				continue
			}
			report.DamagedScopes++

			updates := e.renumberScope(scope.slides)
			if err := applyUpdates(repo, updates); err != nil {
				return err
			}
			for _, u := range updates {
				for _, s := range scope.slides {
					if s.ID() == u.SlideID {
						s.SetPosition(u.Position)
					}
				}
			}
			report.SlidesRenumbered += len(updates)
			e.sendProgress(progress, repairScopeUpdate(i+1, len(scopes), scope.wineID, scope.section, len(updates)))
		}

		report.DuplicateGlobal = countDuplicateGlobal(slides)

		seq := aggregate.Build(aggregate.Input{PackageID: pkg.ID(), Wines: wines, Slides: slides})
		global := seq.GlobalPositions()
		for _, s := range slides {
			gp := global[s.ID()]
			if s.GlobalPosition() == gp {
				continue
			}
			if err := repo.UpdateGlobalPosition(s.ID(), gp); err != nil {
				return err
			}
			report.GlobalUpdated++
		}
		e.sendProgress(progress, refreshGlobalUpdate(report.GlobalUpdated, len(slides)))
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("positions repaired",
		"package", pkg.Code(), "scopes", report.Scopes, "damaged", report.DamagedScopes,
		"renumbered", report.SlidesRenumbered, "global_updated", report.GlobalUpdated)
	if report.SlidesRenumbered > 0 {
		e.invalidate(pkg.ID(), EventOrderChanged, map[string]any{"packageId": pkg.ID()})
	} else {
		e.cache.Invalidate(pkg.ID())
	}
	return report, nil
}

// renumberScope spaces a scope evenly in its current (position, id) order with the welcome slide
// first, returning only the slides whose position changes.
func (e *TastingEngine) renumberScope(slides []*models.Slide) []ordering.Update {
	ordered := make([]*models.Slide, len(slides))
	copy(ordered, slides)
	ordering.SortScope(ordered)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].IsPackageIntro() && !ordered[j].IsPackageIntro()
	})

	positions := e.allocator.Renumber(len(ordered))
	var updates []ordering.Update
	for i, s := range ordered {
		if s.Position() != positions[i] {
			updates = append(updates, ordering.Update{SlideID: s.ID(), Position: positions[i]})
		}
	}
	return updates
}

func groupScopes(slides []*models.Slide) []*repairScope {
	var scopes []*repairScope
	byKey := map[string]*repairScope{}
	for _, s := range slides {
		key := s.WineID() + "/" + string(s.Section())
		scope, ok := byKey[key]
		if !ok {
			scope = &repairScope{wineID: s.WineID(), section: s.Section()}
			byKey[key] = scope
			scopes = append(scopes, scope)
		}
		scope.slides = append(scope.slides, s)
	}
	return scopes
}

// damaged reports duplicate, non-positive or non-finite positions, or a welcome slide that is not first.
func damaged(slides []*models.Slide) bool {
	seen := make(map[float64]bool, len(slides))
	lowest := math.Inf(1)
	for _, s := range slides {
		pos := s.Position()
		if !models.ValidPosition(pos) || seen[pos] {
			return true
		}
		seen[pos] = true
		lowest = math.Min(lowest, pos)
	}
	for _, s := range slides {
		if s.IsPackageIntro() && s.Position() != lowest {
			return true
		}
	}
	return false
}

func countDuplicateGlobal(slides []*models.Slide) int {
	counts := map[int]int{}
	for _, s := range slides {
		if s.GlobalPosition() > 0 {
			counts[s.GlobalPosition()]++
		}
	}
	dupes := 0
	for _, n := range counts {
		if n > 1 {
			dupes += n
		}
	}
	return dupes
}
