package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/desertthunder/tasting/internal/shared"
)

// Wine is one tasting subject within a package. Position is unique within the package and
// defines the default presentation order.
type Wine struct {
	id          string
	packageID   string
	position    int
	name        string
	description string
	imageRef    string
	createdAt   time.Time
	updatedAt   time.Time
}

// NewWine creates a wine at the given package position.
func NewWine(packageID string, position int, name, description, imageRef string) *Wine {
	now := time.Now()
	return &Wine{
		packageID:   packageID,
		position:    position,
		name:        name,
		description: description,
		imageRef:    imageRef,
		createdAt:   now,
		updatedAt:   now,
	}
}

func (w *Wine) ID() string           { return w.id }
func (w *Wine) PackageID() string    { return w.packageID }
func (w *Wine) Position() int        { return w.position }
func (w *Wine) Name() string         { return w.name }
func (w *Wine) Description() string  { return w.description }
func (w *Wine) ImageRef() string     { return w.imageRef }
func (w *Wine) CreatedAt() time.Time { return w.createdAt }
func (w *Wine) UpdatedAt() time.Time { return w.updatedAt }

func (w *Wine) SetID(id string)          { w.id = id }
func (w *Wine) SetPosition(pos int)      { w.position = pos }
func (w *Wine) SetName(name string)      { w.name = name }
func (w *Wine) SetDescription(d string)  { w.description = d }
func (w *Wine) SetImageRef(ref string)   { w.imageRef = ref }
func (w *Wine) SetCreatedAt(t time.Time) { w.createdAt = t }
func (w *Wine) SetUpdatedAt(t time.Time) { w.updatedAt = t }

// Validate checks that the wine belongs to a package and has a positive position.
func (w *Wine) Validate() error {
	if w.id == "" {
		return fmt.Errorf("%w: wine id is required", shared.ErrInvalidInput)
	}
	if w.packageID == "" {
		return fmt.Errorf("%w: wine package id is required", shared.ErrInvalidInput)
	}
	if w.position <= 0 {
		return fmt.Errorf("%w: wine position must be positive, got %d", shared.ErrInvalidInput, w.position)
	}
	if w.name == "" {
		return fmt.Errorf("%w: wine name is required", shared.ErrInvalidInput)
	}
	return nil
}

func (w *Wine) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID          string `json:"id"`
		PackageID   string `json:"packageId"`
		Position    int    `json:"position"`
		Name        string `json:"name"`
		Description string `json:"description"`
		ImageRef    string `json:"imageRef,omitempty"`
	}{w.id, w.packageID, w.position, w.name, w.description, w.imageRef})
}

func (w *Wine) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID          string `json:"id"`
		PackageID   string `json:"packageId"`
		Position    int    `json:"position"`
		Name        string `json:"name"`
		Description string `json:"description"`
		ImageRef    string `json:"imageRef"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*w = Wine{
		id:          raw.ID,
		packageID:   raw.PackageID,
		position:    raw.Position,
		name:        raw.Name,
		description: raw.Description,
		imageRef:    raw.ImageRef,
	}
	return nil
}
