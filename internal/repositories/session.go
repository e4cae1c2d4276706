package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/tasting/internal/models"
	"github.com/desertthunder/tasting/internal/shared"
)

// shortCodeAttempts bounds retries when a generated short code collides.
const shortCodeAttempts = 5

// SessionRepository implements [models.Repository] for [models.Session] persistence.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new [SessionRepository] with the given database connection
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a session with generated ID, sequence and, if unset, a fresh short code.
// A colliding generated short code is regenerated a bounded number of times.
func (r *SessionRepository) Create(session *models.Session) error {
	sequence, err := NextSequence(r.db, "sessions")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	session.SetID(shared.GenerateID())
	session.SetSequence(sequence)

	generated := session.ShortCode() == ""
	for attempt := 0; ; attempt++ {
		if generated {
			session.SetShortCode(shared.GenerateShortCode(0))
		}

		if err := session.Validate(); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}

		err = r.insert(session)
		if err == nil {
			return nil
		}
		if !IsUniqueViolation(err) {
			if IsForeignKeyViolation(err) {
				return fmt.Errorf("%w: package %s", shared.ErrNotFound, session.PackageID())
			}
			return fmt.Errorf("failed to insert session: %w", err)
		}
		if !generated || attempt+1 >= shortCodeAttempts {
			return fmt.Errorf("%w: short code %s already in use", shared.ErrConflict, session.ShortCode())
		}
	}
}

func (r *SessionRepository) insert(session *models.Session) error {
	query := `
		INSERT INTO sessions (id, sequence, package_id, short_code, status, created_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query,
		session.ID(),
		session.Sequence(),
		session.PackageID(),
		session.ShortCode(),
		session.Status(),
		session.CreatedAt(),
		session.UpdatedAt(),
		session.CompletedAt(),
	)
	return err
}

// Get retrieves a session by ID
func (r *SessionRepository) Get(id string) (*models.Session, error) {
	query := `
		SELECT id, sequence, package_id, short_code, status, created_at, updated_at, completed_at
		FROM sessions
		WHERE id = ?
	`
	return r.scan(r.db.QueryRow(query, id))
}

// GetByShortCode retrieves a session by its join code (case-insensitive)
func (r *SessionRepository) GetByShortCode(code string) (*models.Session, error) {
	query := `
		SELECT id, sequence, package_id, short_code, status, created_at, updated_at, completed_at
		FROM sessions
		WHERE short_code = UPPER(?)
	`
	return r.scan(r.db.QueryRow(query, code))
}

// Update persists a session's status
func (r *SessionRepository) Update(session *models.Session) error {
	if err := session.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	session.SetUpdatedAt(now)

	result, err := r.db.Exec(`UPDATE sessions SET status = ?, completed_at = ?, updated_at = ? WHERE id = ?`,
		session.Status(), session.CompletedAt(), now, session.ID())
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	return expectRows(result, "session", session.ID())
}

// Delete removes a session together with its participants, responses and selections
func (r *SessionRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return expectRows(result, "session", id)
}

// List retrieves sessions ordered by sequence. Supported criteria: "package_id", "status".
func (r *SessionRepository) List(criteria map[string]any) ([]*models.Session, error) {
	query := `
		SELECT id, sequence, package_id, short_code, status, created_at, updated_at, completed_at
		FROM sessions
		WHERE 1 = 1
	`
	args := []any{}

	if packageID, ok := criteria["package_id"].(string); ok && packageID != "" {
		query += " AND package_id = ?"
		args = append(args, packageID)
	}

	if status, ok := criteria["status"].(models.SessionStatus); ok && status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}

	query += " ORDER BY sequence ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		session, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return sessions, nil
}

func (r *SessionRepository) scan(row scanner) (*models.Session, error) {
	var (
		id          string
		sequence    int
		packageID   string
		shortCode   string
		status      string
		createdAt   time.Time
		updatedAt   time.Time
		completedAt sql.NullTime
	)

	err := row.Scan(&id, &sequence, &packageID, &shortCode, &status, &createdAt, &updatedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: session", shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}

	session := models.NewSession(sequence, packageID, shortCode)
	session.SetID(id)
	session.SetStatus(models.SessionStatus(status))
	session.SetCreatedAt(createdAt)
	session.SetUpdatedAt(updatedAt)
	if completedAt.Valid {
		session.SetCompletedAt(&completedAt.Time)
	}
	return session, nil
}
