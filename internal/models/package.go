package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/tasting/internal/shared"
)

// Package is an authored collection of wines identified by a short, globally unique code.
type Package struct {
	id          string
	sequence    int
	code        string
	name        string
	description string
	createdAt   time.Time
	updatedAt   time.Time
}

// NewPackage creates a package. The code is normalized to upper case.
func NewPackage(sequence int, code, name, description string) *Package {
	now := time.Now()
	return &Package{
		sequence:    sequence,
		code:        strings.ToUpper(strings.TrimSpace(code)),
		name:        name,
		description: description,
		createdAt:   now,
		updatedAt:   now,
	}
}

func (p *Package) ID() string           { return p.id }
func (p *Package) Sequence() int        { return p.sequence }
func (p *Package) Code() string         { return p.code }
func (p *Package) Name() string         { return p.name }
func (p *Package) Description() string  { return p.description }
func (p *Package) CreatedAt() time.Time { return p.createdAt }
func (p *Package) UpdatedAt() time.Time { return p.updatedAt }

func (p *Package) SetID(id string)          { p.id = id }
func (p *Package) SetSequence(seq int)      { p.sequence = seq }
func (p *Package) SetName(name string)      { p.name = name }
func (p *Package) SetDescription(d string)  { p.description = d }
func (p *Package) SetCreatedAt(t time.Time) { p.createdAt = t }
func (p *Package) SetUpdatedAt(t time.Time) { p.updatedAt = t }

// Validate checks the package has a code and a name.
func (p *Package) Validate() error {
	if p.id == "" {
		return fmt.Errorf("%w: package id is required", shared.ErrInvalidInput)
	}
	if p.code == "" {
		return fmt.Errorf("%w: package code is required", shared.ErrInvalidInput)
	}
	if strings.ContainsAny(p.code, " /?#") {
		return fmt.Errorf("%w: package code %q contains reserved characters", shared.ErrInvalidInput, p.code)
	}
	if p.name == "" {
		return fmt.Errorf("%w: package name is required", shared.ErrInvalidInput)
	}
	return nil
}

func (p *Package) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID          string    `json:"id"`
		Code        string    `json:"code"`
		Name        string    `json:"name"`
		Description string    `json:"description"`
		CreatedAt   time.Time `json:"createdAt"`
		UpdatedAt   time.Time `json:"updatedAt"`
	}{p.id, p.code, p.name, p.description, p.createdAt, p.updatedAt})
}
