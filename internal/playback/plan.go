// Package playback walks a participant through an aggregated slide sequence.
//
// A [Plan] expands a sequence into steps:
//
//	PackageIntro, WineIntro(w1), Slide..., WineTransition(w1 -> w2), WineIntro(w2), Slide..., Complete
//
// Every included wine gets its own WineIntro, the first one included. Leaving the welcome slide is
// recognized by the slide's package-intro marker, never by comparing wine ids.
package playback

import (
	"fmt"

	"github.com/desertthunder/tasting/internal/aggregate"
	"github.com/desertthunder/tasting/internal/models"
	"github.com/desertthunder/tasting/internal/shared"
)

// StepKind identifies the state of a [Step].
type StepKind string

const (
	StepPackageIntro   StepKind = "package_intro"
	StepWineIntro      StepKind = "wine_intro"
	StepSlide          StepKind = "slide"
	StepWineTransition StepKind = "wine_transition"
	StepComplete       StepKind = "complete"
)

// Step is one screen of playback.
type Step struct {
	Index int      `json:"index"`
	Kind  StepKind `json:"kind"`
	// SlideIndex is the effective index of Slide in the sequence, or -1 for synthetic steps.
	SlideIndex int           `json:"slideIndex"`
	Slide      *models.Slide `json:"slide,omitempty"`
	// Wine is the wine being introduced or played; for transitions it is the next wine.
	Wine     *models.Wine `json:"wine,omitempty"`
	FromWine *models.Wine `json:"fromWine,omitempty"`
	// Position and Total describe the slide within its wine, 1-based.
	Position int `json:"position,omitempty"`
	Total    int `json:"total,omitempty"`
}

// Pointer returns the durable progress pointer for the step.
func (s Step) Pointer() models.ProgressPointer {
	ptr := models.ProgressPointer{StepIndex: s.Index, Kind: string(s.Kind)}
	if s.Slide != nil {
		ptr.SlideID = s.Slide.ID()
	}
	if s.Wine != nil {
		ptr.WineID = s.Wine.ID()
	}
	return ptr
}

// Plan is the full step list for one sequence.
type Plan struct {
	Sequence *aggregate.Sequence
	Steps    []Step

	bySlide map[int]int
}

// NewPlan expands seq into steps.
func NewPlan(seq *aggregate.Sequence) *Plan {
	p := &Plan{Sequence: seq, bySlide: make(map[int]int, seq.Len())}

	add := func(s Step) {
		s.Index = len(p.Steps)
		if s.SlideIndex >= 0 {
			p.bySlide[s.SlideIndex] = s.Index
		}
		p.Steps = append(p.Steps, s)
	}

	byWine := make(map[string][]int)
	welcome := 0
	for i, slide := range seq.Slides {
		if slide.IsPackageIntro() {
			add(Step{Kind: StepPackageIntro, SlideIndex: i, Slide: slide, Wine: seq.Wine(slide.WineID())})
			welcome++
			continue
		}
		byWine[slide.WineID()] = append(byWine[slide.WineID()], i)
	}
	if welcome == 0 {
		add(Step{Kind: StepPackageIntro, SlideIndex: -1})
	}

	var prev *models.Wine
	for _, w := range seq.Wines {
		if prev != nil {
			add(Step{Kind: StepWineTransition, SlideIndex: -1, Wine: w, FromWine: prev})
		}
		indexes := byWine[w.ID()]
		add(Step{Kind: StepWineIntro, SlideIndex: -1, Wine: w, Total: len(indexes)})
		for n, i := range indexes {
			add(Step{Kind: StepSlide, SlideIndex: i, Slide: seq.Slides[i], Wine: w, Position: n + 1, Total: len(indexes)})
		}
		prev = w
	}

	add(Step{Kind: StepComplete, SlideIndex: -1})
	return p
}

// Len returns the number of steps including Complete.
func (p *Plan) Len() int { return len(p.Steps) }

// Step returns step i, or [shared.ErrSlideOutOfRange] outside the plan.
func (p *Plan) Step(i int) (Step, error) {
	if i < 0 || i >= len(p.Steps) {
		return Step{}, shared.ErrSlideOutOfRange.WithMetadata(map[string]string{
			"step":  fmt.Sprint(i),
			"steps": fmt.Sprint(len(p.Steps)),
		})
	}
	return p.Steps[i], nil
}

// StateAt returns the step showing the slide at effective index i. Index Len() of the sequence
// is Complete; anything else outside the sequence is [shared.ErrSlideOutOfRange].
func (p *Plan) StateAt(slideIndex int) (Step, error) {
	if slideIndex == p.Sequence.Len() {
		return p.Steps[len(p.Steps)-1], nil
	}
	if _, err := p.Sequence.At(slideIndex); err != nil {
		return Step{}, err
	}
	return p.Steps[p.bySlide[slideIndex]], nil
}

// Locate finds the step a pointer refers to. Slide steps match by slide id, wine steps by wine id
// and kind. When nothing matches the stored index is used if it is still inside the plan.
func (p *Plan) Locate(ptr models.ProgressPointer) (int, bool) {
	kind := StepKind(ptr.Kind)
	for _, s := range p.Steps {
		if s.Kind != kind {
			continue
		}
		switch kind {
		case StepSlide, StepPackageIntro:
			if s.Slide != nil && s.Slide.ID() == ptr.SlideID {
				return s.Index, true
			}
			if s.Slide == nil && ptr.SlideID == "" {
				return s.Index, true
			}
		case StepWineIntro, StepWineTransition:
			if s.Wine != nil && s.Wine.ID() == ptr.WineID {
				return s.Index, true
			}
		case StepComplete:
			return s.Index, true
		}
	}

	if ptr.StepIndex >= 0 && ptr.StepIndex < len(p.Steps) {
		return ptr.StepIndex, true
	}
	return 0, false
}

// Kinds lists the step kinds in order.
func (p *Plan) Kinds() []StepKind {
	kinds := make([]StepKind, len(p.Steps))
	for i, s := range p.Steps {
		kinds[i] = s.Kind
	}
	return kinds
}
