package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/tasting/internal/models"
	"github.com/desertthunder/tasting/internal/shared"
)

// ResponseRepository persists answers with upsert semantics on (participant, slide).
type ResponseRepository struct {
	db *sql.DB
}

// NewResponseRepository creates a new [ResponseRepository] with the given database connection
func NewResponseRepository(db *sql.DB) *ResponseRepository {
	return &ResponseRepository{db: db}
}

// Upsert records an answer. A second call for the same (participant, slide) overwrites the answer
// and keeps the original id and creation time.
func (r *ResponseRepository) Upsert(resp *models.Response) error {
	if resp.ID() == "" {
		resp.SetID(shared.GenerateID())
	}

	if err := resp.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	resp.SetUpdatedAt(now)

	query := `
		INSERT INTO responses (id, participant_id, slide_id, answer_json, synced, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (participant_id, slide_id) DO UPDATE SET
			answer_json = excluded.answer_json,
			synced = excluded.synced,
			updated_at = excluded.updated_at
	`

	_, err := r.db.Exec(query, resp.ID(), resp.ParticipantID(), resp.SlideID(), string(resp.Answer()),
		boolToInt(resp.Synced()), resp.CreatedAt(), now)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: participant %s or slide %s", shared.ErrNotFound, resp.ParticipantID(), resp.SlideID())
		}
		return fmt.Errorf("failed to upsert response: %w", err)
	}

	var (
		id        string
		createdAt time.Time
	)
	err = r.db.QueryRow(`SELECT id, created_at FROM responses WHERE participant_id = ? AND slide_id = ?`,
		resp.ParticipantID(), resp.SlideID()).Scan(&id, &createdAt)
	if err != nil {
		return fmt.Errorf("failed to read upserted response: %w", err)
	}

	resp.SetID(id)
	resp.SetCreatedAt(createdAt)
	return nil
}

// Create is [ResponseRepository.Upsert]
func (r *ResponseRepository) Create(resp *models.Response) error { return r.Upsert(resp) }

// Update is [ResponseRepository.Upsert]
func (r *ResponseRepository) Update(resp *models.Response) error { return r.Upsert(resp) }

// Get retrieves a response by ID
func (r *ResponseRepository) Get(id string) (*models.Response, error) {
	query := `
		SELECT id, participant_id, slide_id, answer_json, synced, created_at, updated_at
		FROM responses
		WHERE id = ?
	`
	return r.scan(r.db.QueryRow(query, id))
}

// GetByKey retrieves the response of a participant to a slide
func (r *ResponseRepository) GetByKey(participantID, slideID string) (*models.Response, error) {
	query := `
		SELECT id, participant_id, slide_id, answer_json, synced, created_at, updated_at
		FROM responses
		WHERE participant_id = ? AND slide_id = ?
	`
	return r.scan(r.db.QueryRow(query, participantID, slideID))
}

// Delete removes a response by ID
func (r *ResponseRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM responses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete response: %w", err)
	}
	return expectRows(result, "response", id)
}

// List retrieves responses. Supported criteria: "participant_id", "slide_id", "session_id".
func (r *ResponseRepository) List(criteria map[string]any) ([]*models.Response, error) {
	query := `
		SELECT r.id, r.participant_id, r.slide_id, r.answer_json, r.synced, r.created_at, r.updated_at
		FROM responses r
		JOIN participants p ON p.id = r.participant_id
		WHERE 1 = 1
	`
	args := []any{}

	if participantID, ok := criteria["participant_id"].(string); ok && participantID != "" {
		query += " AND r.participant_id = ?"
		args = append(args, participantID)
	}

	if slideID, ok := criteria["slide_id"].(string); ok && slideID != "" {
		query += " AND r.slide_id = ?"
		args = append(args, slideID)
	}

	if sessionID, ok := criteria["session_id"].(string); ok && sessionID != "" {
		query += " AND p.session_id = ?"
		args = append(args, sessionID)
	}

	query += " ORDER BY p.created_at ASC, r.participant_id ASC, r.created_at ASC, r.slide_id ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query responses: %w", err)
	}
	defer rows.Close()

	var responses []*models.Response
	for rows.Next() {
		resp, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		responses = append(responses, resp)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return responses, nil
}

// Count returns the number of responses stored for a (participant, slide) pair
func (r *ResponseRepository) Count(participantID, slideID string) (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM responses WHERE participant_id = ? AND slide_id = ?`,
		participantID, slideID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count responses: %w", err)
	}
	return n, nil
}

func (r *ResponseRepository) scan(row scanner) (*models.Response, error) {
	var (
		id            string
		participantID string
		slideID       string
		answer        string
		synced        bool
		createdAt     time.Time
		updatedAt     time.Time
	)

	err := row.Scan(&id, &participantID, &slideID, &answer, &synced, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: response", shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan response: %w", err)
	}

	resp := models.NewResponse(participantID, slideID, []byte(answer), synced)
	resp.SetID(id)
	resp.SetCreatedAt(createdAt)
	resp.SetUpdatedAt(updatedAt)
	return resp, nil
}
