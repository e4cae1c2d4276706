package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/tasting/internal/models"
	"github.com/desertthunder/tasting/internal/shared"
)

// WineRepository implements [models.Repository] for [models.Wine] persistence.
type WineRepository struct {
	db Executor
}

// NewWineRepository creates a new [WineRepository] with the given database connection or transaction
func NewWineRepository(db Executor) *WineRepository {
	return &WineRepository{db: db}
}

// Create inserts a wine. A taken package position fails with [shared.ErrConflict].
func (r *WineRepository) Create(wine *models.Wine) error {
	wine.SetID(shared.GenerateID())

	if err := wine.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO wines (id, package_id, position, name, description, image_ref, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query, wine.ID(), wine.PackageID(), wine.Position(), wine.Name(), wine.Description(),
		wine.ImageRef(), wine.CreatedAt(), wine.UpdatedAt())
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("%w: wine position %d already used in package", shared.ErrConflict, wine.Position())
		}
		if IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: package %s", shared.ErrNotFound, wine.PackageID())
		}
		return fmt.Errorf("failed to insert wine: %w", err)
	}

	return nil
}

// Get retrieves a wine by ID
func (r *WineRepository) Get(id string) (*models.Wine, error) {
	query := `
		SELECT id, package_id, position, name, description, image_ref, created_at, updated_at
		FROM wines
		WHERE id = ?
	`
	return r.scan(r.db.QueryRow(query, id))
}

// Update modifies a wine's descriptive fields and position
func (r *WineRepository) Update(wine *models.Wine) error {
	if err := wine.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	wine.SetUpdatedAt(now)

	query := `
		UPDATE wines
		SET position = ?, name = ?, description = ?, image_ref = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.Exec(query, wine.Position(), wine.Name(), wine.Description(), wine.ImageRef(), now, wine.ID())
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("%w: wine position %d already used in package", shared.ErrConflict, wine.Position())
		}
		return fmt.Errorf("failed to update wine: %w", err)
	}

	return expectRows(result, "wine", wine.ID())
}

// Delete removes a wine and its slides
func (r *WineRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM wines WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete wine: %w", err)
	}
	return expectRows(result, "wine", id)
}

// List retrieves wines ordered by (position, id). Supported criteria: "package_id".
func (r *WineRepository) List(criteria map[string]any) ([]*models.Wine, error) {
	query := `
		SELECT id, package_id, position, name, description, image_ref, created_at, updated_at
		FROM wines
		WHERE 1 = 1
	`
	args := []any{}

	if packageID, ok := criteria["package_id"].(string); ok && packageID != "" {
		query += " AND package_id = ?"
		args = append(args, packageID)
	}

	query += " ORDER BY position ASC, id ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query wines: %w", err)
	}
	defer rows.Close()

	var wines []*models.Wine
	for rows.Next() {
		wine, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		wines = append(wines, wine)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return wines, nil
}

// ListByPackage retrieves a package's wines in default order
func (r *WineRepository) ListByPackage(packageID string) ([]*models.Wine, error) {
	return r.List(map[string]any{"package_id": packageID})
}

// MaxPosition returns the highest wine position in a package, or 0 when it has none
func (r *WineRepository) MaxPosition(packageID string) (int, error) {
	var pos int
	err := r.db.QueryRow(`SELECT COALESCE(MAX(position), 0) FROM wines WHERE package_id = ?`, packageID).Scan(&pos)
	if err != nil {
		return 0, fmt.Errorf("failed to query wine positions: %w", err)
	}
	return pos, nil
}

func (r *WineRepository) scan(row scanner) (*models.Wine, error) {
	var (
		id          string
		packageID   string
		position    int
		name        string
		description string
		imageRef    string
		createdAt   time.Time
		updatedAt   time.Time
	)

	err := row.Scan(&id, &packageID, &position, &name, &description, &imageRef, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: wine", shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan wine: %w", err)
	}

	wine := models.NewWine(packageID, position, name, description, imageRef)
	wine.SetID(id)
	wine.SetCreatedAt(createdAt)
	wine.SetUpdatedAt(updatedAt)
	return wine, nil
}
