// Package aggregate builds the single ordered slide sequence a participant traverses.
//
// The order is a pure function of stored wines, slides and session selections:
//
//  1. welcome (package intro) slides
//  2. each included wine in selection order, or default wine position order without selections
//  3. within a wine, slides by (section rank, position, id)
//
// Stored global positions are never consulted.
package aggregate

import (
	"fmt"
	"sort"

	"github.com/desertthunder/tasting/internal/models"
	"github.com/desertthunder/tasting/internal/shared"
)

// Input is everything the aggregation reads.
type Input struct {
	PackageID  string
	Wines      []*models.Wine
	Slides     []*models.Slide
	Selections []models.WineSelection
}

// Sequence is a fully materialized playback order.
type Sequence struct {
	PackageID string
	// Wines holds the included wines in playback order.
	Wines []*models.Wine
	// Slides holds every slide in playback order; a slide's index here is its effective index.
	Slides []*models.Slide

	index  map[string]int
	wineBy map[string]*models.Wine
	counts map[string]int
}

// Build computes the sequence for in. It never mutates the inputs.
func Build(in Input) *Sequence {
	wines := orderWines(in.Wines, in.Selections)

	wineRank := make(map[string]int, len(wines))
	for i, w := range wines {
		wineRank[w.ID()] = i
	}

	allWines := make(map[string]*models.Wine, len(in.Wines))
	for _, w := range in.Wines {
		allWines[w.ID()] = w
	}

	var intro, body []*models.Slide
	for _, s := range in.Slides {
		if s.IsPackageIntro() {
			if _, known := allWines[s.WineID()]; known {
				intro = append(intro, s)
			}
			continue
		}
		if _, included := wineRank[s.WineID()]; included {
			body = append(body, s)
		}
	}

	sort.Slice(intro, func(i, j int) bool {
		a, b := intro[i], intro[j]
		if pa, pb := allWines[a.WineID()].Position(), allWines[b.WineID()].Position(); pa != pb {
			return pa < pb
		}
		return lessSlide(a, b)
	})

	sort.Slice(body, func(i, j int) bool {
		a, b := body[i], body[j]
		if ra, rb := wineRank[a.WineID()], wineRank[b.WineID()]; ra != rb {
			return ra < rb
		}
		return lessSlide(a, b)
	})

	seq := &Sequence{
		PackageID: in.PackageID,
		Wines:     wines,
		Slides:    append(intro, body...),
		index:     make(map[string]int),
		wineBy:    make(map[string]*models.Wine, len(allWines)),
		counts:    make(map[string]int, len(wines)),
	}
	for i, s := range seq.Slides {
		seq.index[s.ID()] = i
		if !s.IsPackageIntro() {
			seq.counts[s.WineID()]++
		}
	}
	for id, w := range allWines {
		seq.wineBy[id] = w
	}

	return seq
}

// lessSlide orders slides of one wine by (section rank, position, id).
func lessSlide(a, b *models.Slide) bool {
	if ra, rb := a.Section().Rank(), b.Section().Rank(); ra != rb {
		return ra < rb
	}
	if a.Position() != b.Position() {
		return a.Position() < b.Position()
	}
	return a.ID() < b.ID()
}

// orderWines applies session selections when present, otherwise default (position, id) order.
// With selections, wines not listed as included are left out.
func orderWines(wines []*models.Wine, selections []models.WineSelection) []*models.Wine {
	byID := make(map[string]*models.Wine, len(wines))
	for _, w := range wines {
		byID[w.ID()] = w
	}

	if len(selections) == 0 {
		ordered := make([]*models.Wine, len(wines))
		copy(ordered, wines)
		sort.Slice(ordered, func(i, j int) bool {
			if ordered[i].Position() != ordered[j].Position() {
				return ordered[i].Position() < ordered[j].Position()
			}
			return ordered[i].ID() < ordered[j].ID()
		})
		return ordered
	}

	included := make([]models.WineSelection, 0, len(selections))
	for _, sel := range selections {
		if _, ok := byID[sel.WineID]; ok && sel.IsIncluded {
			included = append(included, sel)
		}
	}

	sort.Slice(included, func(i, j int) bool {
		a, b := included[i], included[j]
		if a.Position != b.Position {
			return a.Position < b.Position
		}
		if pa, pb := byID[a.WineID].Position(), byID[b.WineID].Position(); pa != pb {
			return pa < pb
		}
		return a.WineID < b.WineID
	})

	ordered := make([]*models.Wine, len(included))
	for i, sel := range included {
		ordered[i] = byID[sel.WineID]
	}
	return ordered
}

// Len returns the number of slides.
func (s *Sequence) Len() int { return len(s.Slides) }

// At returns the slide at effective index i.
func (s *Sequence) At(i int) (*models.Slide, error) {
	if i < 0 || i >= len(s.Slides) {
		return nil, shared.ErrSlideOutOfRange.WithMetadata(map[string]string{
			"index":  fmt.Sprint(i),
			"length": fmt.Sprint(len(s.Slides)),
		})
	}
	return s.Slides[i], nil
}

// IndexOf returns the effective index of a slide, or -1.
func (s *Sequence) IndexOf(slideID string) int {
	if i, ok := s.index[slideID]; ok {
		return i
	}
	return -1
}

// Wine returns a wine of the package by id, included or not.
func (s *Sequence) Wine(id string) *models.Wine { return s.wineBy[id] }

// SlideCount returns how many non-welcome slides a wine contributes.
func (s *Sequence) SlideCount(wineID string) int { return s.counts[wineID] }

// GlobalPositions maps each slide id to its 1-based place in the sequence.
func (s *Sequence) GlobalPositions() map[string]int {
	out := make(map[string]int, len(s.Slides))
	for i, slide := range s.Slides {
		out[slide.ID()] = i + 1
	}
	return out
}

// IDs returns the slide ids in order.
func (s *Sequence) IDs() []string {
	ids := make([]string, len(s.Slides))
	for i, slide := range s.Slides {
		ids[i] = slide.ID()
	}
	return ids
}
