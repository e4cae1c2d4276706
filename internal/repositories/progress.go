package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/tasting/internal/models"
	"github.com/desertthunder/tasting/internal/shared"
)

// LocalProgress is the client-side copy of a participant's pointer used to resume after restart.
type LocalProgress struct {
	ParticipantID string
	SessionID     string
	Pointer       models.ProgressPointer
	UpdatedAt     time.Time
}

// ProgressRepository stores [LocalProgress] in the local database.
type ProgressRepository struct {
	db *sql.DB
}

// NewProgressRepository creates a new [ProgressRepository] with the given database connection
func NewProgressRepository(db *sql.DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

// Save upserts the pointer for a participant
func (r *ProgressRepository) Save(participantID, sessionID string, ptr models.ProgressPointer) error {
	query := `
		INSERT INTO local_progress (participant_id, session_id, step_index, step_kind, step_slide_id, step_wine_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (participant_id) DO UPDATE SET
			session_id = excluded.session_id,
			step_index = excluded.step_index,
			step_kind = excluded.step_kind,
			step_slide_id = excluded.step_slide_id,
			step_wine_id = excluded.step_wine_id,
			updated_at = excluded.updated_at
	`

	_, err := r.db.Exec(query, participantID, sessionID, ptr.StepIndex, ptr.Kind, ptr.SlideID, ptr.WineID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to save local progress: %w", err)
	}
	return nil
}

// Load returns the stored pointer for a participant
func (r *ProgressRepository) Load(participantID string) (*LocalProgress, error) {
	var lp LocalProgress
	err := r.db.QueryRow(`
		SELECT participant_id, session_id, step_index, step_kind, step_slide_id, step_wine_id, updated_at
		FROM local_progress
		WHERE participant_id = ?
	`, participantID).Scan(&lp.ParticipantID, &lp.SessionID, &lp.Pointer.StepIndex, &lp.Pointer.Kind,
		&lp.Pointer.SlideID, &lp.Pointer.WineID, &lp.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: local progress for %s", shared.ErrNotFound, participantID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load local progress: %w", err)
	}
	return &lp, nil
}

// LatestForSession returns the most recently saved pointer in a session
func (r *ProgressRepository) LatestForSession(sessionID string) (*LocalProgress, error) {
	var lp LocalProgress
	err := r.db.QueryRow(`
		SELECT participant_id, session_id, step_index, step_kind, step_slide_id, step_wine_id, updated_at
		FROM local_progress
		WHERE session_id = ?
		ORDER BY updated_at DESC
		LIMIT 1
	`, sessionID).Scan(&lp.ParticipantID, &lp.SessionID, &lp.Pointer.StepIndex, &lp.Pointer.Kind,
		&lp.Pointer.SlideID, &lp.Pointer.WineID, &lp.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: local progress for session %s", shared.ErrNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load local progress: %w", err)
	}
	return &lp, nil
}
