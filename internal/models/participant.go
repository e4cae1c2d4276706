package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/tasting/internal/shared"
)

// ProgressPointer identifies a playback step durably enough to survive a sequence recompute.
//
// Kind together with SlideID or WineID locates the step again; StepIndex is the fallback.
type ProgressPointer struct {
	StepIndex int    `json:"stepIndex"`
	Kind      string `json:"kind"`
	SlideID   string `json:"slideId,omitempty"`
	WineID    string `json:"wineId,omitempty"`
}

// IsZero reports whether the pointer was never set.
func (p ProgressPointer) IsZero() bool {
	return p == ProgressPointer{}
}

// Participant is one user within a session.
type Participant struct {
	id          string
	sessionID   string
	displayName string
	isHost      bool
	progress    ProgressPointer
	createdAt   time.Time
	updatedAt   time.Time
}

// NewParticipant creates a participant at the start of the session.
func NewParticipant(sessionID, displayName string, isHost bool) *Participant {
	now := time.Now()
	return &Participant{
		sessionID:   sessionID,
		displayName: strings.TrimSpace(displayName),
		isHost:      isHost,
		createdAt:   now,
		updatedAt:   now,
	}
}

func (p *Participant) ID() string                { return p.id }
func (p *Participant) SessionID() string         { return p.sessionID }
func (p *Participant) DisplayName() string       { return p.displayName }
func (p *Participant) IsHost() bool              { return p.isHost }
func (p *Participant) Progress() ProgressPointer { return p.progress }
func (p *Participant) CreatedAt() time.Time      { return p.createdAt }
func (p *Participant) UpdatedAt() time.Time      { return p.updatedAt }

func (p *Participant) SetID(id string)                   { p.id = id }
func (p *Participant) SetProgress(ptr ProgressPointer)   { p.progress = ptr }
func (p *Participant) SetCreatedAt(t time.Time)          { p.createdAt = t }
func (p *Participant) SetUpdatedAt(t time.Time)          { p.updatedAt = t }
func (p *Participant) SetDisplayName(displayName string) { p.displayName = displayName }

func (p *Participant) Validate() error {
	if p.id == "" {
		return fmt.Errorf("%w: participant id is required", shared.ErrInvalidInput)
	}
	if p.sessionID == "" {
		return fmt.Errorf("%w: participant session id is required", shared.ErrInvalidInput)
	}
	if p.displayName == "" {
		return fmt.Errorf("%w: display name is required", shared.ErrInvalidInput)
	}
	if p.progress.StepIndex < 0 {
		return fmt.Errorf("%w: step index cannot be negative", shared.ErrInvalidInput)
	}
	return nil
}

func (p *Participant) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID          string          `json:"id"`
		SessionID   string          `json:"sessionId"`
		DisplayName string          `json:"displayName"`
		IsHost      bool            `json:"isHost"`
		Progress    ProgressPointer `json:"progressPointer"`
	}{p.id, p.sessionID, p.displayName, p.isHost, p.progress})
}

func (p *Participant) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID          string          `json:"id"`
		SessionID   string          `json:"sessionId"`
		DisplayName string          `json:"displayName"`
		IsHost      bool            `json:"isHost"`
		Progress    ProgressPointer `json:"progressPointer"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = Participant{
		id:          raw.ID,
		sessionID:   raw.SessionID,
		displayName: raw.DisplayName,
		isHost:      raw.IsHost,
		progress:    raw.Progress,
	}
	return nil
}
