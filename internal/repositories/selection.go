package repositories

import (
	"database/sql"
	"fmt"

	"github.com/desertthunder/tasting/internal/models"
)

// SelectionRepository persists per-session wine selection overrides.
type SelectionRepository struct {
	db *sql.DB
}

// NewSelectionRepository creates a new [SelectionRepository] with the given database connection
func NewSelectionRepository(db *sql.DB) *SelectionRepository {
	return &SelectionRepository{db: db}
}

// Replace swaps a session's selections for the given set in one transaction.
// Callers validate the set with [models.ValidateSelections] first.
func (r *SelectionRepository) Replace(sessionID string, selections []models.WineSelection) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM session_wine_selections WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to clear selections: %w", err)
	}

	query := `
		INSERT INTO session_wine_selections (session_id, wine_id, position, is_included)
		VALUES (?, ?, ?, ?)
	`
	for _, sel := range selections {
		if _, err := tx.Exec(query, sessionID, sel.WineID, sel.Position, boolToInt(sel.IsIncluded)); err != nil {
			return fmt.Errorf("failed to insert selection for wine %s: %w", sel.WineID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit selections: %w", err)
	}
	return nil
}

// List returns a session's selections ordered by (position, wine id). An empty result means no override.
func (r *SelectionRepository) List(sessionID string) ([]models.WineSelection, error) {
	rows, err := r.db.Query(`
		SELECT session_id, wine_id, position, is_included
		FROM session_wine_selections
		WHERE session_id = ?
		ORDER BY position ASC, wine_id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query selections: %w", err)
	}
	defer rows.Close()

	var selections []models.WineSelection
	for rows.Next() {
		var sel models.WineSelection
		if err := rows.Scan(&sel.SessionID, &sel.WineID, &sel.Position, &sel.IsIncluded); err != nil {
			return nil, fmt.Errorf("failed to scan selection: %w", err)
		}
		selections = append(selections, sel)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return selections, nil
}
