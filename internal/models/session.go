package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/tasting/internal/shared"
)

// SessionStatus is the lifecycle state of a [Session].
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
)

// Session is a live playthrough of a package by a group of participants.
type Session struct {
	id          string
	sequence    int
	packageID   string
	shortCode   string
	status      SessionStatus
	createdAt   time.Time
	updatedAt   time.Time
	completedAt *time.Time
}

// NewSession creates an active session for a package.
func NewSession(sequence int, packageID, shortCode string) *Session {
	now := time.Now()
	return &Session{
		sequence:  sequence,
		packageID: packageID,
		shortCode: strings.ToUpper(shortCode),
		status:    SessionActive,
		createdAt: now,
		updatedAt: now,
	}
}

func (s *Session) ID() string              { return s.id }
func (s *Session) Sequence() int           { return s.sequence }
func (s *Session) PackageID() string       { return s.packageID }
func (s *Session) ShortCode() string       { return s.shortCode }
func (s *Session) Status() SessionStatus   { return s.status }
func (s *Session) CreatedAt() time.Time    { return s.createdAt }
func (s *Session) UpdatedAt() time.Time    { return s.updatedAt }
func (s *Session) CompletedAt() *time.Time { return s.completedAt }
func (s *Session) IsActive() bool          { return s.status == SessionActive }

func (s *Session) SetID(id string)            { s.id = id }
func (s *Session) SetSequence(seq int)        { s.sequence = seq }
func (s *Session) SetShortCode(code string)   { s.shortCode = strings.ToUpper(code) }
func (s *Session) SetStatus(st SessionStatus) { s.status = st }
func (s *Session) SetCreatedAt(t time.Time)   { s.createdAt = t }
func (s *Session) SetUpdatedAt(t time.Time)   { s.updatedAt = t }
func (s *Session) SetCompletedAt(t *time.Time) {
	s.completedAt = t
}

// Complete marks the session completed at the given time.
func (s *Session) Complete(at time.Time) {
	s.status = SessionCompleted
	s.completedAt = &at
	s.updatedAt = at
}

// Validate checks the session references a package and has a known status.
func (s *Session) Validate() error {
	if s.id == "" {
		return fmt.Errorf("%w: session id is required", shared.ErrInvalidInput)
	}
	if s.packageID == "" {
		return fmt.Errorf("%w: session package id is required", shared.ErrInvalidInput)
	}
	if s.shortCode == "" {
		return fmt.Errorf("%w: session short code is required", shared.ErrInvalidInput)
	}
	if s.status != SessionActive && s.status != SessionCompleted {
		return fmt.Errorf("%w: unknown session status %q", shared.ErrInvalidInput, s.status)
	}
	return nil
}

func (s *Session) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID          string        `json:"id"`
		PackageID   string        `json:"packageId"`
		ShortCode   string        `json:"shortCode"`
		Status      SessionStatus `json:"status"`
		CreatedAt   time.Time     `json:"createdAt"`
		CompletedAt *time.Time    `json:"completedAt,omitempty"`
	}{s.id, s.packageID, s.shortCode, s.status, s.createdAt, s.completedAt})
}

func (s *Session) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID          string        `json:"id"`
		PackageID   string        `json:"packageId"`
		ShortCode   string        `json:"shortCode"`
		Status      SessionStatus `json:"status"`
		CreatedAt   time.Time     `json:"createdAt"`
		CompletedAt *time.Time    `json:"completedAt"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = Session{
		id:          raw.ID,
		packageID:   raw.PackageID,
		shortCode:   raw.ShortCode,
		status:      raw.Status,
		createdAt:   raw.CreatedAt,
		updatedAt:   raw.CreatedAt,
		completedAt: raw.CompletedAt,
	}
	return nil
}

// WineSelection overrides inclusion and relative order of a wine for one session.
type WineSelection struct {
	SessionID  string `json:"sessionId,omitempty"`
	WineID     string `json:"packageWineId"`
	Position   int    `json:"position"`
	IsIncluded bool   `json:"isIncluded"`
}

// ValidateSelections checks a replacement set: known wines only, no duplicates and at least one included wine.
func ValidateSelections(selections []WineSelection, wines []*Wine) error {
	known := make(map[string]bool, len(wines))
	for _, w := range wines {
		known[w.ID()] = true
	}

	seen := make(map[string]bool, len(selections))
	included := 0
	for _, sel := range selections {
		if !known[sel.WineID] {
			return fmt.Errorf("%w: wine %s is not part of the package", shared.ErrInvalidInput, sel.WineID)
		}
		if seen[sel.WineID] {
			return fmt.Errorf("%w: wine %s selected twice", shared.ErrInvalidInput, sel.WineID)
		}
		seen[sel.WineID] = true
		if sel.IsIncluded {
			included++
		}
	}

	if included == 0 {
		return fmt.Errorf("%w: at least one wine must be included", shared.ErrInvalidInput)
	}
	return nil
}
