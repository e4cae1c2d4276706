package models

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/desertthunder/tasting/internal/shared"
)

// Section is a phase within a wine's slides.
type Section string

const (
	SectionIntro    Section = "intro"
	SectionDeepDive Section = "deep_dive"
	SectionEnding   Section = "ending"
)

// Rank orders sections intro < deep_dive < ending. Unknown sections sort last.
func (s Section) Rank() int {
	switch s {
	case SectionIntro:
		return 0
	case SectionDeepDive:
		return 1
	case SectionEnding:
		return 2
	default:
		return 3
	}
}

// Valid reports whether s is one of the known sections.
func (s Section) Valid() bool { return s.Rank() < 3 }

// ParseSection converts a string to a [Section].
func ParseSection(s string) (Section, error) {
	sec := Section(s)
	if !sec.Valid() {
		return "", fmt.Errorf("%w: unknown section %q", shared.ErrInvalidInput, s)
	}
	return sec, nil
}

// Slide is one unit of content shown to a participant. Position is unique within (wine, section).
//
// GlobalPosition is a denormalized hint refreshed by position repair; ordering never depends on it.
type Slide struct {
	id             string
	wineID         string
	section        Section
	position       float64
	globalPosition int
	isPackageIntro bool
	title          string
	payload        Payload
	createdAt      time.Time
	updatedAt      time.Time
}

// NewSlide creates a slide with the given payload. The slide type and question kind come from the payload.
func NewSlide(wineID string, section Section, position float64, title string, payload Payload) *Slide {
	now := time.Now()
	return &Slide{
		wineID:    wineID,
		section:   section,
		position:  position,
		title:     title,
		payload:   payload,
		createdAt: now,
		updatedAt: now,
	}
}

func (s *Slide) ID() string           { return s.id }
func (s *Slide) WineID() string       { return s.wineID }
func (s *Slide) Section() Section     { return s.section }
func (s *Slide) Position() float64    { return s.position }
func (s *Slide) GlobalPosition() int  { return s.globalPosition }
func (s *Slide) IsPackageIntro() bool { return s.isPackageIntro }
func (s *Slide) Title() string        { return s.title }
func (s *Slide) Payload() Payload     { return s.payload }
func (s *Slide) CreatedAt() time.Time { return s.createdAt }
func (s *Slide) UpdatedAt() time.Time { return s.updatedAt }

// Type returns the slide type implied by the payload.
func (s *Slide) Type() SlideType {
	if s.payload == nil {
		return SlideInterlude
	}
	return s.payload.Type()
}

// QuestionKind returns the question kind implied by the payload.
func (s *Slide) QuestionKind() QuestionKind {
	if s.payload == nil {
		return QuestionNone
	}
	return s.payload.QuestionKind()
}

// Question returns the payload as a [Question] when the slide accepts answers.
func (s *Slide) Question() (Question, bool) {
	q, ok := s.payload.(Question)
	return q, ok
}

func (s *Slide) SetID(id string)            { s.id = id }
func (s *Slide) SetPosition(pos float64)    { s.position = pos }
func (s *Slide) SetGlobalPosition(pos int)  { s.globalPosition = pos }
func (s *Slide) SetPackageIntro(intro bool) { s.isPackageIntro = intro }
func (s *Slide) SetTitle(title string)      { s.title = title }
func (s *Slide) SetPayload(p Payload)       { s.payload = p }
func (s *Slide) SetCreatedAt(t time.Time)   { s.createdAt = t }
func (s *Slide) SetUpdatedAt(t time.Time)   { s.updatedAt = t }
func (s *Slide) SetSection(section Section) { s.section = section }
func (s *Slide) SetWineID(wineID string)    { s.wineID = wineID }

// Validate checks ownership, section, a positive finite position and the payload schema.
func (s *Slide) Validate() error {
	if s.id == "" {
		return fmt.Errorf("%w: slide id is required", shared.ErrInvalidInput)
	}
	if s.wineID == "" {
		return fmt.Errorf("%w: slide wine id is required", shared.ErrInvalidInput)
	}
	if !s.section.Valid() {
		return fmt.Errorf("%w: unknown section %q", shared.ErrInvalidInput, s.section)
	}
	if !ValidPosition(s.position) {
		return fmt.Errorf("%w: slide position must be positive, got %v", shared.ErrInvalidInput, s.position)
	}
	if s.payload == nil {
		return fmt.Errorf("%w: slide payload is required", shared.ErrInvalidInput)
	}
	return s.payload.Validate()
}

// ValidPosition reports whether pos is a usable slide position.
func ValidPosition(pos float64) bool {
	return pos > 0 && !math.IsInf(pos, 0) && !math.IsNaN(pos)
}

// Clone returns a shallow copy so callers can adjust positions without touching the original.
func (s *Slide) Clone() *Slide {
	cp := *s
	return &cp
}

func (s *Slide) MarshalJSON() ([]byte, error) {
	payload, err := EncodePayload(s.payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		ID             string          `json:"id"`
		WineID         string          `json:"wineId"`
		Type           SlideType       `json:"type"`
		QuestionKind   QuestionKind    `json:"questionKind,omitempty"`
		Section        Section         `json:"sectionType"`
		Position       float64         `json:"position"`
		GlobalPosition int             `json:"globalPosition"`
		IsPackageIntro bool            `json:"isPackageIntro"`
		Title          string          `json:"title"`
		Payload        json.RawMessage `json:"payload"`
	}{
		ID:             s.id,
		WineID:         s.wineID,
		Type:           s.Type(),
		QuestionKind:   s.QuestionKind(),
		Section:        s.section,
		Position:       s.position,
		GlobalPosition: s.globalPosition,
		IsPackageIntro: s.isPackageIntro,
		Title:          s.title,
		Payload:        payload,
	})
}

func (s *Slide) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID             string          `json:"id"`
		WineID         string          `json:"wineId"`
		Type           SlideType       `json:"type"`
		QuestionKind   QuestionKind    `json:"questionKind"`
		Section        Section         `json:"sectionType"`
		Position       float64         `json:"position"`
		GlobalPosition int             `json:"globalPosition"`
		IsPackageIntro bool            `json:"isPackageIntro"`
		Title          string          `json:"title"`
		Payload        json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	payload, err := DecodePayload(raw.Type, raw.QuestionKind, raw.Payload)
	if err != nil {
		return err
	}

	*s = Slide{
		id:             raw.ID,
		wineID:         raw.WineID,
		section:        raw.Section,
		position:       raw.Position,
		globalPosition: raw.GlobalPosition,
		isPackageIntro: raw.IsPackageIntro,
		title:          raw.Title,
		payload:        payload,
	}
	return nil
}
