package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/tasting/internal/models"
	"github.com/desertthunder/tasting/internal/shared"
)

// ParticipantRepository implements [models.Repository] for [models.Participant] persistence.
type ParticipantRepository struct {
	db *sql.DB
}

// NewParticipantRepository creates a new [ParticipantRepository] with the given database connection
func NewParticipantRepository(db *sql.DB) *ParticipantRepository {
	return &ParticipantRepository{db: db}
}

// Create inserts a participant with a generated ID
func (r *ParticipantRepository) Create(p *models.Participant) error {
	p.SetID(shared.GenerateID())

	if err := p.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	ptr := p.Progress()
	query := `
		INSERT INTO participants (id, session_id, display_name, is_host, step_index, step_kind,
			step_slide_id, step_wine_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query, p.ID(), p.SessionID(), p.DisplayName(), boolToInt(p.IsHost()),
		ptr.StepIndex, ptr.Kind, ptr.SlideID, ptr.WineID, p.CreatedAt(), p.UpdatedAt())
	if err != nil {
		if IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: session %s", shared.ErrNotFound, p.SessionID())
		}
		return fmt.Errorf("failed to insert participant: %w", err)
	}

	return nil
}

// Get retrieves a participant by ID
func (r *ParticipantRepository) Get(id string) (*models.Participant, error) {
	query := `
		SELECT id, session_id, display_name, is_host, step_index, step_kind, step_slide_id, step_wine_id,
			created_at, updated_at
		FROM participants
		WHERE id = ?
	`
	return r.scan(r.db.QueryRow(query, id))
}

// Update persists a participant's display name and progress pointer
func (r *ParticipantRepository) Update(p *models.Participant) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	p.SetUpdatedAt(now)
	ptr := p.Progress()

	query := `
		UPDATE participants
		SET display_name = ?, step_index = ?, step_kind = ?, step_slide_id = ?, step_wine_id = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.Exec(query, p.DisplayName(), ptr.StepIndex, ptr.Kind, ptr.SlideID, ptr.WineID, now, p.ID())
	if err != nil {
		return fmt.Errorf("failed to update participant: %w", err)
	}

	return expectRows(result, "participant", p.ID())
}

// UpdateProgress persists only the progress pointer
func (r *ParticipantRepository) UpdateProgress(id string, ptr models.ProgressPointer) error {
	if ptr.StepIndex < 0 {
		return fmt.Errorf("%w: step index cannot be negative", shared.ErrInvalidInput)
	}

	query := `
		UPDATE participants
		SET step_index = ?, step_kind = ?, step_slide_id = ?, step_wine_id = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.Exec(query, ptr.StepIndex, ptr.Kind, ptr.SlideID, ptr.WineID, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}

	return expectRows(result, "participant", id)
}

// Delete removes a participant and their responses.
func (r *ParticipantRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM participants WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete participant: %w", err)
	}
	return expectRows(result, "participant", id)
}

// List retrieves participants in join order. Supported criteria: "session_id", "is_host".
func (r *ParticipantRepository) List(criteria map[string]any) ([]*models.Participant, error) {
	query := `
		SELECT id, session_id, display_name, is_host, step_index, step_kind, step_slide_id, step_wine_id,
			created_at, updated_at
		FROM participants
		WHERE 1 = 1
	`
	args := []any{}

	if sessionID, ok := criteria["session_id"].(string); ok && sessionID != "" {
		query += " AND session_id = ?"
		args = append(args, sessionID)
	}

	if isHost, ok := criteria["is_host"].(bool); ok {
		query += " AND is_host = ?"
		args = append(args, boolToInt(isHost))
	}

	query += " ORDER BY created_at ASC, id ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query participants: %w", err)
	}
	defer rows.Close()

	var participants []*models.Participant
	for rows.Next() {
		p, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return participants, nil
}

func (r *ParticipantRepository) scan(row scanner) (*models.Participant, error) {
	var (
		id          string
		sessionID   string
		displayName string
		isHost      bool
		ptr         models.ProgressPointer
		createdAt   time.Time
		updatedAt   time.Time
	)

	err := row.Scan(&id, &sessionID, &displayName, &isHost, &ptr.StepIndex, &ptr.Kind, &ptr.SlideID, &ptr.WineID,
		&createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: participant", shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan participant: %w", err)
	}

	p := models.NewParticipant(sessionID, displayName, isHost)
	p.SetID(id)
	p.SetProgress(ptr)
	p.SetCreatedAt(createdAt)
	p.SetUpdatedAt(updatedAt)
	return p, nil
}
