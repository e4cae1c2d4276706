// package repositories provides persistence layer implementations for all model types.
//
// Each repository implements models.Repository[T] for a specific entity type,
// handling CRUD operations, constraint mapping, and sequence generation.
package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/desertthunder/tasting/internal/models"
	"github.com/desertthunder/tasting/internal/shared"
	"github.com/mattn/go-sqlite3"
)

var (
	_ models.Repository[*models.Package]     = (*PackageRepository)(nil)
	_ models.Repository[*models.Wine]        = (*WineRepository)(nil)
	_ models.Repository[*models.Slide]       = (*SlideRepository)(nil)
	_ models.Repository[*models.Session]     = (*SessionRepository)(nil)
	_ models.Repository[*models.Participant] = (*ParticipantRepository)(nil)
	_ models.Repository[*models.Response]    = (*ResponseRepository)(nil)
)

// Executor is satisfied by both [sql.DB] and [sql.Tx].
type Executor interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// NextSequence atomically increments and returns the next sequence number for the given table.
//
// Sequence numbers provide human-readable ordering for entities (e.g., package #4, session #15).
// They are NOT exposed in API output but used internally for sorting and debugging.
//
// Given a [*sql.DB] the increment runs in its own transaction; given a transaction it joins it.
func NextSequence(db Executor, table string) (int, error) {
	conn, ok := db.(*sql.DB)
	if !ok {
		return nextSequence(db, table)
	}

	tx, err := conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	sequence, err := nextSequence(tx, table)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit sequence transaction: %w", err)
	}

	return sequence, nil
}

func nextSequence(db Executor, table string) (int, error) {
	sequenceTable := table + "_sequence"

	_, err := db.Exec(fmt.Sprintf("UPDATE %s SET value = value + 1 WHERE id = 1", sequenceTable))
	if err != nil {
		return 0, fmt.Errorf("failed to increment sequence: %w", err)
	}

	var sequence int
	err = db.QueryRow(fmt.Sprintf("SELECT value FROM %s WHERE id = 1", sequenceTable)).Scan(&sequence)
	if err != nil {
		return 0, fmt.Errorf("failed to get sequence value: %w", err)
	}
	return sequence, nil
}

// IsUniqueViolation reports whether err is a sqlite UNIQUE or PRIMARY KEY constraint failure.
func IsUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// IsForeignKeyViolation reports whether err is a sqlite FOREIGN KEY constraint failure. Inserts
// with a missing parent fail with SQLITE_CONSTRAINT_FOREIGNKEY, deletes blocked by ON DELETE RESTRICT
// fail with SQLITE_CONSTRAINT_TRIGGER.
func IsForeignKeyViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.ExtendedCode {
	case sqlite3.ErrConstraintForeignKey:
		return true
	case sqlite3.ErrConstraintTrigger:
		return strings.Contains(sqliteErr.Error(), "FOREIGN KEY")
	default:
		return false
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// scanner is satisfied by both [sql.Row] and [sql.Rows].
type scanner interface {
	Scan(dest ...any) error
}

// expectRows returns [shared.ErrNotFound] when an update or delete touched nothing.
func expectRows(result sql.Result, entity, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s %s", shared.ErrNotFound, entity, id)
	}
	return nil
}
