package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/desertthunder/tasting/internal/models"
	"github.com/desertthunder/tasting/internal/shared"
)

const slideColumns = `s.id, s.wine_id, s.type, s.question_kind, s.section, s.position, s.global_position,
	s.is_package_intro, s.title, s.payload, s.created_at, s.updated_at`

// SlideRepository implements [models.Repository] for [models.Slide] persistence.
//
// Position collisions within a (wine, section) surface as [shared.ErrDuplicatePosition].
type SlideRepository struct {
	db Executor
}

// NewSlideRepository creates a new [SlideRepository] with the given database connection or transaction
func NewSlideRepository(db Executor) *SlideRepository {
	return &SlideRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *SlideRepository) WithTx(tx *sql.Tx) *SlideRepository {
	return &SlideRepository{db: tx}
}

// Create inserts a slide with a generated ID
func (r *SlideRepository) Create(slide *models.Slide) error {
	slide.SetID(shared.GenerateID())

	if err := slide.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	payload, err := models.EncodePayload(slide.Payload())
	if err != nil {
		return err
	}

	query := `
		INSERT INTO slides (id, wine_id, type, question_kind, section, position, global_position,
			is_package_intro, title, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		slide.ID(),
		slide.WineID(),
		slide.Type(),
		slide.QuestionKind(),
		slide.Section(),
		slide.Position(),
		slide.GlobalPosition(),
		boolToInt(slide.IsPackageIntro()),
		slide.Title(),
		string(payload),
		slide.CreatedAt(),
		slide.UpdatedAt(),
	)
	if err != nil {
		return r.mapWriteError(err, slide.ID(), slide.Position())
	}

	return nil
}

// Get retrieves a slide by ID
func (r *SlideRepository) Get(id string) (*models.Slide, error) {
	query := `SELECT ` + slideColumns + ` FROM slides s WHERE s.id = ?`
	return r.scan(r.db.QueryRow(query, id))
}

// Update modifies a slide's content, section and position. The owning wine is immutable.
func (r *SlideRepository) Update(slide *models.Slide) error {
	if err := slide.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	payload, err := models.EncodePayload(slide.Payload())
	if err != nil {
		return err
	}

	now := time.Now()
	slide.SetUpdatedAt(now)

	query := `
		UPDATE slides
		SET type = ?, question_kind = ?, section = ?, position = ?, global_position = ?,
			is_package_intro = ?, title = ?, payload = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.Exec(query,
		slide.Type(),
		slide.QuestionKind(),
		slide.Section(),
		slide.Position(),
		slide.GlobalPosition(),
		boolToInt(slide.IsPackageIntro()),
		slide.Title(),
		string(payload),
		now,
		slide.ID(),
	)
	if err != nil {
		return r.mapWriteError(err, slide.ID(), slide.Position())
	}

	return expectRows(result, "slide", slide.ID())
}

// UpdatePosition moves a slide within its (wine, section) scope
func (r *SlideRepository) UpdatePosition(id string, position float64) error {
	result, err := r.db.Exec(`UPDATE slides SET position = ?, updated_at = ? WHERE id = ?`, position, time.Now(), id)
	if err != nil {
		return r.mapWriteError(err, id, position)
	}
	return expectRows(result, "slide", id)
}

// UpdateGlobalPosition refreshes the denormalized package-wide ordering hint
func (r *SlideRepository) UpdateGlobalPosition(id string, globalPosition int) error {
	result, err := r.db.Exec(`UPDATE slides SET global_position = ? WHERE id = ?`, globalPosition, id)
	if err != nil {
		return fmt.Errorf("failed to update global position: %w", err)
	}
	return expectRows(result, "slide", id)
}

// Delete removes a slide by ID
func (r *SlideRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM slides WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete slide: %w", err)
	}
	return expectRows(result, "slide", id)
}

// List retrieves slides ordered by (position, id).
// Supported criteria: "wine_id", "section", "package_id".
func (r *SlideRepository) List(criteria map[string]any) ([]*models.Slide, error) {
	query := `SELECT ` + slideColumns + ` FROM slides s JOIN wines w ON w.id = s.wine_id WHERE 1 = 1`
	args := []any{}

	if wineID, ok := criteria["wine_id"].(string); ok && wineID != "" {
		query += " AND s.wine_id = ?"
		args = append(args, wineID)
	}

	if section, ok := criteria["section"].(models.Section); ok && section != "" {
		query += " AND s.section = ?"
		args = append(args, section)
	}

	if packageID, ok := criteria["package_id"].(string); ok && packageID != "" {
		query += " AND w.package_id = ?"
		args = append(args, packageID)
	}

	query += " ORDER BY w.position ASC, s.position ASC, s.id ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query slides: %w", err)
	}
	defer rows.Close()

	var slides []*models.Slide
	for rows.Next() {
		slide, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		slides = append(slides, slide)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return slides, nil
}

// ListByPackage retrieves every slide of every wine in a package
func (r *SlideRepository) ListByPackage(packageID string) ([]*models.Slide, error) {
	return r.List(map[string]any{"package_id": packageID})
}

// ListScope retrieves the slides of one (wine, section) ordered by position
func (r *SlideRepository) ListScope(wineID string, section models.Section) ([]*models.Slide, error) {
	return r.List(map[string]any{"wine_id": wineID, "section": section})
}

// PackageIDOf returns the package owning a slide
func (r *SlideRepository) PackageIDOf(slideID string) (string, error) {
	var packageID string
	err := r.db.QueryRow(`SELECT w.package_id FROM slides s JOIN wines w ON w.id = s.wine_id WHERE s.id = ?`, slideID).
		Scan(&packageID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: slide %s", shared.ErrNotFound, slideID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve slide package: %w", err)
	}
	return packageID, nil
}

// LastPosition returns the highest position in a (wine, section) scope and whether the scope has any slide
func (r *SlideRepository) LastPosition(wineID string, section models.Section) (float64, bool, error) {
	var pos sql.NullFloat64
	err := r.db.QueryRow(`SELECT MAX(position) FROM slides WHERE wine_id = ? AND section = ?`, wineID, section).Scan(&pos)
	if err != nil {
		return 0, false, fmt.Errorf("failed to query slide positions: %w", err)
	}
	return pos.Float64, pos.Valid, nil
}

func (r *SlideRepository) mapWriteError(err error, id string, position float64) error {
	if IsUniqueViolation(err) {
		return shared.WrapError(shared.CodeDuplicatePosition, "slide position already taken", err).
			WithMetadata(map[string]string{
				"slideId":  id,
				"position": strconv.FormatFloat(position, 'f', -1, 64),
			})
	}
	if IsForeignKeyViolation(err) {
		return fmt.Errorf("%w: wine for slide %s", shared.ErrNotFound, id)
	}
	return fmt.Errorf("failed to write slide: %w", err)
}

func (r *SlideRepository) scan(row scanner) (*models.Slide, error) {
	var (
		id             string
		wineID         string
		slideType      string
		questionKind   string
		section        string
		position       float64
		globalPosition int
		isPackageIntro bool
		title          string
		payload        string
		createdAt      time.Time
		updatedAt      time.Time
	)

	err := row.Scan(&id, &wineID, &slideType, &questionKind, &section, &position, &globalPosition,
		&isPackageIntro, &title, &payload, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: slide", shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan slide: %w", err)
	}

	decoded, err := models.DecodePayload(models.SlideType(slideType), models.QuestionKind(questionKind), []byte(payload))
	if err != nil {
		return nil, fmt.Errorf("slide %s has an invalid payload: %w", id, err)
	}

	slide := models.NewSlide(wineID, models.Section(section), position, title, decoded)
	slide.SetID(id)
	slide.SetGlobalPosition(globalPosition)
	slide.SetPackageIntro(isPackageIntro)
	slide.SetCreatedAt(createdAt)
	slide.SetUpdatedAt(updatedAt)
	return slide, nil
}
