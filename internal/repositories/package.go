package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/tasting/internal/models"
	"github.com/desertthunder/tasting/internal/shared"
)

// PackageRepository implements [models.Repository] for [models.Package] persistence.
type PackageRepository struct {
	db Executor
}

// NewPackageRepository creates a new [PackageRepository] with the given database connection or transaction
func NewPackageRepository(db Executor) *PackageRepository {
	return &PackageRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *PackageRepository) WithTx(tx *sql.Tx) *PackageRepository {
	return &PackageRepository{db: tx}
}

// Create inserts a new package with generated ID and sequence. Duplicate codes fail with [shared.ErrConflict].
func (r *PackageRepository) Create(pkg *models.Package) error {
	sequence, err := NextSequence(r.db, "packages")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()
	pkg.SetID(id)
	pkg.SetSequence(sequence)

	if err := pkg.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO packages (id, sequence, code, name, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query, id, sequence, pkg.Code(), pkg.Name(), pkg.Description(), pkg.CreatedAt(), pkg.UpdatedAt())
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("%w: package code %s already exists", shared.ErrConflict, pkg.Code())
		}
		return fmt.Errorf("failed to insert package: %w", err)
	}

	return nil
}

// Get retrieves a package by ID
func (r *PackageRepository) Get(id string) (*models.Package, error) {
	query := `
		SELECT id, sequence, code, name, description, created_at, updated_at
		FROM packages
		WHERE id = ?
	`
	return r.scan(r.db.QueryRow(query, id))
}

// GetByCode retrieves a package by its code (case-insensitive)
func (r *PackageRepository) GetByCode(code string) (*models.Package, error) {
	query := `
		SELECT id, sequence, code, name, description, created_at, updated_at
		FROM packages
		WHERE code = UPPER(?)
	`
	return r.scan(r.db.QueryRow(query, code))
}

// Update modifies a package's name and description. The code is immutable.
func (r *PackageRepository) Update(pkg *models.Package) error {
	if err := pkg.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	pkg.SetUpdatedAt(now)

	result, err := r.db.Exec(`UPDATE packages SET name = ?, description = ?, updated_at = ? WHERE id = ?`,
		pkg.Name(), pkg.Description(), now, pkg.ID())
	if err != nil {
		return fmt.Errorf("failed to update package: %w", err)
	}

	return expectRows(result, "package", pkg.ID())
}

// Delete removes a package and, by cascade, its wines and slides.
// Packages referenced by a session cannot be deleted.
func (r *PackageRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM packages WHERE id = ?`, id)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: package %s is referenced by a session", shared.ErrConflict, id)
		}
		return fmt.Errorf("failed to delete package: %w", err)
	}

	return expectRows(result, "package", id)
}

// List retrieves all packages ordered by sequence. Supported criteria: "code".
func (r *PackageRepository) List(criteria map[string]any) ([]*models.Package, error) {
	query := `
		SELECT id, sequence, code, name, description, created_at, updated_at
		FROM packages
		WHERE 1 = 1
	`
	args := []any{}

	if code, ok := criteria["code"].(string); ok && code != "" {
		query += " AND code = UPPER(?)"
		args = append(args, code)
	}

	query += " ORDER BY sequence ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query packages: %w", err)
	}
	defer rows.Close()

	var packages []*models.Package
	for rows.Next() {
		pkg, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		packages = append(packages, pkg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return packages, nil
}

func (r *PackageRepository) scan(row scanner) (*models.Package, error) {
	var (
		id          string
		sequence    int
		code        string
		name        string
		description string
		createdAt   time.Time
		updatedAt   time.Time
	)

	err := row.Scan(&id, &sequence, &code, &name, &description, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: package", shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan package: %w", err)
	}

	pkg := models.NewPackage(sequence, code, name, description)
	pkg.SetID(id)
	pkg.SetCreatedAt(createdAt)
	pkg.SetUpdatedAt(updatedAt)
	return pkg, nil
}
