package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/tasting/internal/models"
	"github.com/desertthunder/tasting/internal/shared"
)

// QueueRepository is the durable local queue of responses that could not be delivered.
//
// Entries are keyed by (participant, slide). Re-queuing with a higher revision replaces the answer and
// keeps the attempt count; a lower or equal revision leaves the stored entry alone.
type QueueRepository struct {
	db *sql.DB
}

// NewQueueRepository creates a new [QueueRepository] with the given database connection
func NewQueueRepository(db *sql.DB) *QueueRepository {
	return &QueueRepository{db: db}
}

// Enqueue stores a pending answer or replaces an older revision of it
func (r *QueueRepository) Enqueue(p models.PendingResponse) error {
	if p.ParticipantID == "" || p.SlideID == "" {
		return fmt.Errorf("%w: pending response needs a participant and a slide", shared.ErrInvalidInput)
	}
	if p.QueuedAt.IsZero() {
		p.QueuedAt = time.Now()
	}

	query := `
		INSERT INTO pending_responses (participant_id, slide_id, answer_json, attempts, last_error, queued_at, revision)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (participant_id, slide_id) DO UPDATE SET
			answer_json = excluded.answer_json,
			queued_at = excluded.queued_at,
			revision = excluded.revision
		WHERE excluded.revision > pending_responses.revision
	`

	_, err := r.db.Exec(query, p.ParticipantID, p.SlideID, string(p.Answer), p.Attempts, p.LastError, p.QueuedAt, p.Revision)
	if err != nil {
		return fmt.Errorf("failed to enqueue response: %w", err)
	}
	return nil
}

// Pending lists queued answers oldest first. A non-positive limit returns everything.
func (r *QueueRepository) Pending(limit int) ([]models.PendingResponse, error) {
	query := `
		SELECT participant_id, slide_id, answer_json, attempts, last_error, queued_at, revision
		FROM pending_responses
		ORDER BY queued_at ASC, participant_id ASC, slide_id ASC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending responses: %w", err)
	}
	defer rows.Close()

	var pending []models.PendingResponse
	for rows.Next() {
		var (
			p      models.PendingResponse
			answer string
		)
		if err := rows.Scan(&p.ParticipantID, &p.SlideID, &answer, &p.Attempts, &p.LastError, &p.QueuedAt, &p.Revision); err != nil {
			return nil, fmt.Errorf("failed to scan pending response: %w", err)
		}
		p.Answer = []byte(answer)
		pending = append(pending, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return pending, nil
}

// Remove deletes the entry for (participant, slide) when its revision is at most upTo, so an answer
// queued after the delivered one survives. Removing a missing entry is not an error.
func (r *QueueRepository) Remove(participantID, slideID string, upTo int64) error {
	_, err := r.db.Exec(`DELETE FROM pending_responses WHERE participant_id = ? AND slide_id = ? AND revision <= ?`,
		participantID, slideID, upTo)
	if err != nil {
		return fmt.Errorf("failed to remove pending response: %w", err)
	}
	return nil
}

// MarkFailed increments the attempt count of the given revision and records the last error. It returns
// the new count, or [shared.ErrNotFound] when that revision is no longer queued.
func (r *QueueRepository) MarkFailed(participantID, slideID string, revision int64, cause error) (int, error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}

	_, err := r.db.Exec(`
		UPDATE pending_responses SET attempts = attempts + 1, last_error = ?
		WHERE participant_id = ? AND slide_id = ? AND revision = ?
	`, msg, participantID, slideID, revision)
	if err != nil {
		return 0, fmt.Errorf("failed to mark pending response: %w", err)
	}

	var attempts int
	err = r.db.QueryRow(`SELECT attempts FROM pending_responses WHERE participant_id = ? AND slide_id = ? AND revision = ?`,
		participantID, slideID, revision).Scan(&attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: pending response", shared.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read attempts: %w", err)
	}
	return attempts, nil
}

// Count returns the number of queued answers
func (r *QueueRepository) Count() (int, error) {
	var n int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM pending_responses`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count pending responses: %w", err)
	}
	return n, nil
}
