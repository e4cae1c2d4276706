package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/tasting/internal/models"
	"github.com/desertthunder/tasting/internal/playback"
	"github.com/desertthunder/tasting/internal/shared"
)

// CreateSession starts an active session of the package with the given code. An empty shortCode
// gets a generated one.
func (e *TastingEngine) CreateSession(ctx context.Context, code, shortCode string) (*models.Session, error) {
	pkg, err := e.packages.GetByCode(normalizeCode(code))
	if err != nil {
		return nil, err
	}

	session := models.NewSession(0, pkg.ID(), shortCode)
	if err := e.sessions.Create(session); err != nil {
		return nil, err
	}

	e.logger.Info("session created", "session_id", session.ID(), "short_code", session.ShortCode(), "package", pkg.Code())
	return session, nil
}

// SessionByRef resolves a session by id or, failing that, by short code.
func (e *TastingEngine) SessionByRef(ref string) (*models.Session, error) {
	session, err := e.sessions.Get(ref)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}
	return e.sessions.GetByShortCode(strings.ToUpper(ref))
}

// Sessions lists sessions of a package, optionally filtered by status.
func (e *TastingEngine) Sessions(code string, status models.SessionStatus) ([]*models.Session, error) {
	criteria := map[string]any{"status": status}
	if code != "" {
		pkg, err := e.packages.GetByCode(normalizeCode(code))
		if err != nil {
			return nil, err
		}
		criteria["package_id"] = pkg.ID()
	}
	return e.sessions.List(criteria)
}

// JoinSession adds a participant to an active session.
func (e *TastingEngine) JoinSession(ctx context.Context, shortCode, displayName string, isHost bool) (*models.Participant, *models.Session, error) {
	session, err := e.SessionByRef(shortCode)
	if err != nil {
		return nil, nil, err
	}
	if !session.IsActive() {
		return nil, nil, shared.ErrSessionClosed.WithMetadata(map[string]string{"sessionId": session.ID()})
	}

	p := models.NewParticipant(session.ID(), strings.TrimSpace(displayName), isHost)
	if err := e.participants.Create(p); err != nil {
		return nil, nil, err
	}

	e.logger.Info("participant joined", "session_id", session.ID(), "participant_id", p.ID(), "host", isHost)
	return p, session, nil
}

// CompleteSession closes a session. Completing a completed session is a no-op.
func (e *TastingEngine) CompleteSession(ctx context.Context, sessionID string) (*models.Session, error) {
	session, err := e.SessionByRef(sessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsActive() {
		return session, nil
	}

	session.Complete(time.Now().UTC())
	if err := e.sessions.Update(session); err != nil {
		return nil, err
	}

	e.notify(session.ID(), EventSessionCompleted, session)
	return session, nil
}

// activeParticipant loads a participant and their session, failing with SESSION_CLOSED when the
// session is completed.
func (e *TastingEngine) activeParticipant(participantID string) (*models.Participant, *models.Session, error) {
	p, err := e.participants.Get(participantID)
	if err != nil {
		return nil, nil, err
	}
	session, err := e.sessions.Get(p.SessionID())
	if err != nil {
		return nil, nil, err
	}
	if !session.IsActive() {
		return nil, nil, shared.ErrSessionClosed.WithMetadata(map[string]string{"sessionId": session.ID()})
	}
	return p, session, nil
}

// HostStep is broadcast when the host moves.
type HostStep struct {
	ParticipantID string                 `json:"participantId"`
	Pointer       models.ProgressPointer `json:"progressPointer"`
}

// UpdateProgress persists a participant's progress pointer.
func (e *TastingEngine) UpdateProgress(ctx context.Context, participantID string, ptr models.ProgressPointer) error {
	if ptr.StepIndex < 0 {
		return fmt.Errorf("%w: step index cannot be negative", shared.ErrInvalidInput)
	}

	p, session, err := e.activeParticipant(participantID)
	if err != nil {
		return err
	}
	if err := e.participants.UpdateProgress(p.ID(), ptr); err != nil {
		return err
	}

	if p.IsHost() {
		e.notify(session.ID(), EventHostStep, HostStep{ParticipantID: p.ID(), Pointer: ptr})
	}
	return nil
}

// ParticipantState is the payload of GET /participants/{id}/state.
type ParticipantState struct {
	Participant *models.Participant `json:"participant"`
	Session     *models.Session     `json:"session"`
	Step        playback.Step       `json:"step"`
	Steps       int                 `json:"steps"`
	TotalCount  int                 `json:"totalCount"`
}

// ParticipantState resolves a participant's stored pointer against the current plan. Pointers that
// no longer match a step clamp to the last step.
func (e *TastingEngine) ParticipantState(ctx context.Context, participantID string) (*ParticipantState, error) {
	p, err := e.participants.Get(participantID)
	if err != nil {
		return nil, err
	}
	session, err := e.sessions.Get(p.SessionID())
	if err != nil {
		return nil, err
	}

	seq, err := e.Sequence(ctx, session.PackageID(), session.ID())
	if err != nil {
		return nil, err
	}
	plan := playback.NewPlan(seq)

	i := 0
	if ptr := p.Progress(); !ptr.IsZero() {
		var ok bool
		if i, ok = plan.Locate(ptr); !ok {
			i = plan.Len() - 1
		}
	}

	step, err := plan.Step(i)
	if err != nil {
		return nil, err
	}
	return &ParticipantState{
		Participant: p,
		Session:     session,
		Step:        step,
		Steps:       plan.Len(),
		TotalCount:  seq.Len(),
	}, nil
}

// ReplaceSelections overrides a session's wine order and inclusion.
func (e *TastingEngine) ReplaceSelections(ctx context.Context, sessionID string, selections []models.WineSelection) ([]models.WineSelection, error) {
	session, err := e.SessionByRef(sessionID)
	if err != nil {
		return nil, err
	}

	wines, err := e.wines.ListByPackage(session.PackageID())
	if err != nil {
		return nil, err
	}
	if err := models.ValidateSelections(selections, wines); err != nil {
		return nil, err
	}

	if err := e.selections.Replace(session.ID(), selections); err != nil {
		return nil, err
	}
	stored, err := e.selections.List(session.ID())
	if err != nil {
		return nil, err
	}

	e.cache.Invalidate(session.PackageID())
	e.notify(session.ID(), EventSelectionChanged, stored)
	return stored, nil
}

// Selections returns a session's wine selections.
func (e *TastingEngine) Selections(sessionID string) ([]models.WineSelection, error) {
	session, err := e.SessionByRef(sessionID)
	if err != nil {
		return nil, err
	}
	return e.selections.List(session.ID())
}

// RecordResponse upserts a participant's answer to a question slide of their session's package.
func (e *TastingEngine) RecordResponse(ctx context.Context, participantID, slideID string, answer json.RawMessage, synced bool) (*models.Response, error) {
	p, session, err := e.activeParticipant(participantID)
	if err != nil {
		return nil, err
	}

	slide, err := e.slides.Get(slideID)
	if err != nil {
		return nil, err
	}
	packageID, err := e.slides.PackageIDOf(slideID)
	if err != nil {
		return nil, err
	}
	if packageID != session.PackageID() {
		return nil, fmt.Errorf("%w: slide %s is not part of this session", shared.ErrNotFound, slideID)
	}

	q, ok := slide.Question()
	if !ok {
		return nil, fmt.Errorf("%w: %s slides do not take answers", shared.ErrInvalidInput, slide.Type())
	}
	if err := q.ValidateAnswer(answer); err != nil {
		return nil, err
	}

	resp := models.NewResponse(p.ID(), slide.ID(), answer, synced)
	if err := e.responses.Upsert(resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// SessionResponses lists every response recorded in a session.
func (e *TastingEngine) SessionResponses(ctx context.Context, sessionID string) ([]*models.Response, error) {
	session, err := e.SessionByRef(sessionID)
	if err != nil {
		return nil, err
	}
	return e.responses.List(map[string]any{"session_id": session.ID()})
}

// Participants lists the participants of a session.
func (e *TastingEngine) Participants(sessionID string) ([]*models.Participant, error) {
	session, err := e.SessionByRef(sessionID)
	if err != nil {
		return nil, err
	}
	return e.participants.List(map[string]any{"session_id": session.ID()})
}
