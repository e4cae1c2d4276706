package ordering

import (
	"fmt"

	"github.com/desertthunder/tasting/internal/models"
	"github.com/desertthunder/tasting/internal/shared"
)

type scopeKey struct {
	wineID  string
	section models.Section
}

// CheckPosition validates moving one slide to pos within its scope.
//
// Non-positive or colliding positions are invalid input. Moving the welcome slide off the first
// place, or moving another slide in front of it, is an invalid move.
func CheckPosition(scope []*models.Slide, slideID string, pos float64) error {
	if !models.ValidPosition(pos) {
		return fmt.Errorf("%w: position must be a positive number", shared.ErrInvalidInput)
	}

	var target *models.Slide
	for _, s := range scope {
		if s.ID() == slideID {
			target = s
		}
	}
	if target == nil {
		return fmt.Errorf("%w: slide %s", shared.ErrNotFound, slideID)
	}

	for _, s := range scope {
		if s.ID() == slideID {
			continue
		}
		if s.Position() == pos {
			return fmt.Errorf("%w: position %s is already used by slide %s", shared.ErrInvalidInput, formatPos(pos), s.ID())
		}
		if s.IsPackageIntro() && pos <= s.Position() {
			return shared.NewError(shared.CodeInvalidMove, "slides cannot move in front of the welcome slide")
		}
		if target.IsPackageIntro() && pos >= s.Position() {
			return shared.NewError(shared.CodeInvalidMove, "the welcome slide must stay first")
		}
	}
	return nil
}

// ValidateBatch simulates applying updates over slides and rejects the batch as a whole when any
// scope would end up with two equal positions.
//
// slides must contain every slide of every scope touched by the updates.
func ValidateBatch(slides []*models.Slide, updates []Update) error {
	if len(updates) == 0 {
		return fmt.Errorf("%w: no updates given", shared.ErrInvalidInput)
	}

	byID := make(map[string]*models.Slide, len(slides))
	for _, s := range slides {
		byID[s.ID()] = s
	}

	next := make(map[string]float64, len(slides))
	for _, s := range slides {
		next[s.ID()] = s.Position()
	}

	touched := make(map[scopeKey]bool)
	seen := make(map[string]bool, len(updates))
	for _, u := range updates {
		s, ok := byID[u.SlideID]
		if !ok {
			return fmt.Errorf("%w: slide %s", shared.ErrNotFound, u.SlideID)
		}
		if seen[u.SlideID] {
			return fmt.Errorf("%w: slide %s updated twice", shared.ErrInvalidInput, u.SlideID)
		}
		if !models.ValidPosition(u.Position) {
			return fmt.Errorf("%w: position for slide %s must be positive", shared.ErrInvalidInput, u.SlideID)
		}
		seen[u.SlideID] = true
		next[u.SlideID] = u.Position
		touched[scopeKey{s.WineID(), s.Section()}] = true
	}

	positions := make(map[scopeKey]map[float64]string)
	for _, s := range slides {
		key := scopeKey{s.WineID(), s.Section()}
		if !touched[key] {
			continue
		}
		if positions[key] == nil {
			positions[key] = make(map[float64]string)
		}
		pos := next[s.ID()]
		if other, ok := positions[key][pos]; ok {
			return shared.NewError(shared.CodeDuplicatePosition, "batch would produce two equal positions").
				WithMetadata(map[string]string{"slideId": s.ID(), "otherSlideId": other, "position": formatPos(pos)})
		}
		positions[key][pos] = s.ID()
	}

	for key := range touched {
		if err := checkIntroFirst(slides, key, next); err != nil {
			return err
		}
	}
	return nil
}

func checkIntroFirst(slides []*models.Slide, key scopeKey, next map[string]float64) error {
	var intro *models.Slide
	for _, s := range slides {
		if s.WineID() == key.wineID && s.Section() == key.section && s.IsPackageIntro() {
			intro = s
		}
	}
	if intro == nil {
		return nil
	}

	for _, s := range slides {
		if s.WineID() != key.wineID || s.Section() != key.section || s.ID() == intro.ID() {
			continue
		}
		if next[s.ID()] <= next[intro.ID()] {
			return shared.NewError(shared.CodeInvalidMove, "the welcome slide must stay first").
				WithMetadata(map[string]string{"slideId": intro.ID()})
		}
	}
	return nil
}
