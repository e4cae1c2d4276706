package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"unicode/utf8"

	"github.com/desertthunder/tasting/internal/shared"
)

// SlideType is the broad category of a slide.
type SlideType string

const (
	SlideQuestion  SlideType = "question"
	SlideMedia     SlideType = "media"
	SlideInterlude SlideType = "interlude"
)

// QuestionKind refines [SlideQuestion] slides.
type QuestionKind string

const (
	QuestionNone           QuestionKind = ""
	QuestionScale          QuestionKind = "scale"
	QuestionMultipleChoice QuestionKind = "multiple_choice"
	QuestionText           QuestionKind = "text"
)

// Payload is the structured content of a slide. Each variant validates its own schema.
type Payload interface {
	Type() SlideType
	QuestionKind() QuestionKind
	Validate() error
}

// Question is implemented by payloads that accept participant answers.
type Question interface {
	Payload
	ValidateAnswer(answer json.RawMessage) error
}

// ScalePayload asks for an integer rating within [Min, Max].
type ScalePayload struct {
	Prompt   string `json:"prompt"`
	Min      int    `json:"min"`
	Max      int    `json:"max"`
	MinLabel string `json:"minLabel,omitempty"`
	MaxLabel string `json:"maxLabel,omitempty"`
}

// ChoiceOption is one selectable answer of a [ChoicePayload].
type ChoiceOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// ChoicePayload asks the participant to pick one or more options.
type ChoicePayload struct {
	Prompt        string         `json:"prompt"`
	Options       []ChoiceOption `json:"options"`
	AllowMultiple bool           `json:"allowMultiple,omitempty"`
}

// TextPayload asks for a free-form note.
type TextPayload struct {
	Prompt    string `json:"prompt"`
	MaxLength int    `json:"maxLength,omitempty"`
}

// MediaPayload references an image, video or audio asset.
type MediaPayload struct {
	Title     string `json:"title"`
	MediaRef  string `json:"mediaRef"`
	MediaKind string `json:"mediaKind,omitempty"`
}

// InterludePayload is informational text between questions.
type InterludePayload struct {
	Title string `json:"title"`
	Body  string `json:"body,omitempty"`
}

// ScaleAnswer is the answer shape for [ScalePayload].
type ScaleAnswer struct {
	Value int `json:"value"`
}

// ChoiceAnswer is the answer shape for [ChoicePayload].
type ChoiceAnswer struct {
	Selected []string `json:"selected"`
}

// TextAnswer is the answer shape for [TextPayload].
type TextAnswer struct {
	Text string `json:"text"`
}

func (ScalePayload) Type() SlideType                { return SlideQuestion }
func (ScalePayload) QuestionKind() QuestionKind     { return QuestionScale }
func (ChoicePayload) Type() SlideType               { return SlideQuestion }
func (ChoicePayload) QuestionKind() QuestionKind    { return QuestionMultipleChoice }
func (TextPayload) Type() SlideType                 { return SlideQuestion }
func (TextPayload) QuestionKind() QuestionKind      { return QuestionText }
func (MediaPayload) Type() SlideType                { return SlideMedia }
func (MediaPayload) QuestionKind() QuestionKind     { return QuestionNone }
func (InterludePayload) Type() SlideType            { return SlideInterlude }
func (InterludePayload) QuestionKind() QuestionKind { return QuestionNone }

func (p ScalePayload) Validate() error {
	if p.Prompt == "" {
		return invalidPayload("scale prompt is required")
	}
	if p.Min >= p.Max {
		return invalidPayload(fmt.Sprintf("scale min %d must be below max %d", p.Min, p.Max))
	}
	return nil
}

func (p ChoicePayload) Validate() error {
	if p.Prompt == "" {
		return invalidPayload("choice prompt is required")
	}
	if len(p.Options) < 2 {
		return invalidPayload("choice needs at least two options")
	}
	seen := make(map[string]bool, len(p.Options))
	for _, opt := range p.Options {
		if opt.ID == "" || opt.Text == "" {
			return invalidPayload("choice options need an id and text")
		}
		if seen[opt.ID] {
			return invalidPayload(fmt.Sprintf("duplicate option id %q", opt.ID))
		}
		seen[opt.ID] = true
	}
	return nil
}

func (p TextPayload) Validate() error {
	if p.Prompt == "" {
		return invalidPayload("text prompt is required")
	}
	if p.MaxLength < 0 {
		return invalidPayload("text maxLength cannot be negative")
	}
	return nil
}

func (p MediaPayload) Validate() error {
	if p.MediaRef == "" {
		return invalidPayload("media reference is required")
	}
	switch p.MediaKind {
	case "", "image", "video", "audio":
		return nil
	default:
		return invalidPayload(fmt.Sprintf("unknown media kind %q", p.MediaKind))
	}
}

func (p InterludePayload) Validate() error {
	if p.Title == "" && p.Body == "" {
		return invalidPayload("interlude needs a title or body")
	}
	return nil
}

// ValidateAnswer checks answer is an integer within the scale bounds.
func (p ScalePayload) ValidateAnswer(answer json.RawMessage) error {
	var a ScaleAnswer
	if err := decodeStrict(answer, &a); err != nil {
		return err
	}
	if a.Value < p.Min || a.Value > p.Max {
		return invalidPayload(fmt.Sprintf("scale value %d outside [%d, %d]", a.Value, p.Min, p.Max))
	}
	return nil
}

// ValidateAnswer checks every selected id exists and single-choice questions get one selection.
func (p ChoicePayload) ValidateAnswer(answer json.RawMessage) error {
	var a ChoiceAnswer
	if err := decodeStrict(answer, &a); err != nil {
		return err
	}
	if len(a.Selected) == 0 {
		return invalidPayload("at least one option must be selected")
	}
	if !p.AllowMultiple && len(a.Selected) > 1 {
		return invalidPayload("only one option may be selected")
	}
	for _, id := range a.Selected {
		if !slices.ContainsFunc(p.Options, func(o ChoiceOption) bool { return o.ID == id }) {
			return invalidPayload(fmt.Sprintf("unknown option %q", id))
		}
	}
	return nil
}

// ValidateAnswer checks the text fits MaxLength (0 means unlimited).
func (p TextPayload) ValidateAnswer(answer json.RawMessage) error {
	var a TextAnswer
	if err := decodeStrict(answer, &a); err != nil {
		return err
	}
	if p.MaxLength > 0 && utf8.RuneCountInString(a.Text) > p.MaxLength {
		return invalidPayload(fmt.Sprintf("text exceeds %d characters", p.MaxLength))
	}
	return nil
}

// DecodePayload decodes raw JSON into the variant selected by (slideType, kind) and validates it.
func DecodePayload(slideType SlideType, kind QuestionKind, raw json.RawMessage) (Payload, error) {
	var p Payload
	switch {
	case slideType == SlideQuestion && kind == QuestionScale:
		var v ScalePayload
		if err := decodeStrict(raw, &v); err != nil {
			return nil, err
		}
		p = v
	case slideType == SlideQuestion && kind == QuestionMultipleChoice:
		var v ChoicePayload
		if err := decodeStrict(raw, &v); err != nil {
			return nil, err
		}
		p = v
	case slideType == SlideQuestion && kind == QuestionText:
		var v TextPayload
		if err := decodeStrict(raw, &v); err != nil {
			return nil, err
		}
		p = v
	case slideType == SlideMedia && kind == QuestionNone:
		var v MediaPayload
		if err := decodeStrict(raw, &v); err != nil {
			return nil, err
		}
		p = v
	case slideType == SlideInterlude && kind == QuestionNone:
		var v InterludePayload
		if err := decodeStrict(raw, &v); err != nil {
			return nil, err
		}
		p = v
	default:
		return nil, invalidPayload(fmt.Sprintf("unsupported slide variant %s/%s", slideType, kind))
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// EncodePayload serializes a payload for storage.
func EncodePayload(p Payload) (json.RawMessage, error) {
	if p == nil {
		return json.RawMessage("{}"), nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return data, nil
}

func decodeStrict(raw json.RawMessage, v any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: malformed payload: %v", shared.ErrInvalidInput, err)
	}
	return nil
}

func invalidPayload(msg string) error {
	return fmt.Errorf("%w: %s", shared.ErrInvalidInput, msg)
}
