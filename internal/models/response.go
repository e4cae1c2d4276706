package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/desertthunder/tasting/internal/shared"
)

// Response is a participant's answer to one slide. There is at most one per (participant, slide).
type Response struct {
	id            string
	participantID string
	slideID       string
	answer        json.RawMessage
	synced        bool
	createdAt     time.Time
	updatedAt     time.Time
}

// NewResponse creates a response for upsert.
func NewResponse(participantID, slideID string, answer json.RawMessage, synced bool) *Response {
	now := time.Now()
	return &Response{
		participantID: participantID,
		slideID:       slideID,
		answer:        answer,
		synced:        synced,
		createdAt:     now,
		updatedAt:     now,
	}
}

func (r *Response) ID() string              { return r.id }
func (r *Response) ParticipantID() string   { return r.participantID }
func (r *Response) SlideID() string         { return r.slideID }
func (r *Response) Answer() json.RawMessage { return r.answer }
func (r *Response) Synced() bool            { return r.synced }
func (r *Response) CreatedAt() time.Time    { return r.createdAt }
func (r *Response) UpdatedAt() time.Time    { return r.updatedAt }

func (r *Response) SetID(id string)             { r.id = id }
func (r *Response) SetAnswer(a json.RawMessage) { r.answer = a }
func (r *Response) SetSynced(synced bool)       { r.synced = synced }
func (r *Response) SetCreatedAt(t time.Time)    { r.createdAt = t }
func (r *Response) SetUpdatedAt(t time.Time)    { r.updatedAt = t }

func (r *Response) Validate() error {
	if r.id == "" {
		return fmt.Errorf("%w: response id is required", shared.ErrInvalidInput)
	}
	if r.participantID == "" || r.slideID == "" {
		return fmt.Errorf("%w: response needs a participant and a slide", shared.ErrInvalidInput)
	}
	if !json.Valid(r.answer) {
		return fmt.Errorf("%w: answer is not valid JSON", shared.ErrInvalidInput)
	}
	return nil
}

func (r *Response) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID            string          `json:"id"`
		ParticipantID string          `json:"participantId"`
		SlideID       string          `json:"slideId"`
		Answer        json.RawMessage `json:"answerJson"`
		Synced        bool            `json:"synced"`
		UpdatedAt     time.Time       `json:"updatedAt"`
	}{r.id, r.participantID, r.slideID, r.answer, r.synced, r.updatedAt})
}

func (r *Response) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID            string          `json:"id"`
		ParticipantID string          `json:"participantId"`
		SlideID       string          `json:"slideId"`
		Answer        json.RawMessage `json:"answerJson"`
		Synced        bool            `json:"synced"`
		UpdatedAt     time.Time       `json:"updatedAt"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*r = Response{
		id:            raw.ID,
		participantID: raw.ParticipantID,
		slideID:       raw.SlideID,
		answer:        raw.Answer,
		synced:        raw.Synced,
		createdAt:     raw.UpdatedAt,
		updatedAt:     raw.UpdatedAt,
	}
	return nil
}

// PendingResponse is a response waiting in the local offline queue.
type PendingResponse struct {
	ParticipantID string          `json:"participantId"`
	SlideID       string          `json:"slideId"`
	Answer        json.RawMessage `json:"answerJson"`
	Attempts      int             `json:"attempts"`
	LastError     string          `json:"lastError,omitempty"`
	QueuedAt      time.Time       `json:"queuedAt"`
	Revision      int64           `json:"revision"`
}
