package tasks

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/desertthunder/tasting/internal/aggregate"
	"github.com/desertthunder/tasting/internal/models"
	"github.com/desertthunder/tasting/internal/repositories"
	"github.com/desertthunder/tasting/internal/shared"
)

// PackageDoc is an authored package as read from a TOML file:
//
//	code = "RHONE"
//	name = "Northern Rhône"
//
//	[[wines]]
//	name = "Crozes-Hermitage 2020"
//
//	  [[wines.slides]]
//	  section = "intro"
//	  type = "interlude"
//	  package_intro = true
//	  payload = { title = "Welcome" }
type PackageDoc struct {
	Code        string    `toml:"code"`
	Name        string    `toml:"name"`
	Description string    `toml:"description"`
	Wines       []WineDoc `toml:"wines"`
}

// WineDoc is one wine of a [PackageDoc].
type WineDoc struct {
	Name        string     `toml:"name"`
	Description string     `toml:"description"`
	ImageRef    string     `toml:"image_ref"`
	Slides      []SlideDoc `toml:"slides"`
}

// SlideDoc is one slide of a [WineDoc]. Slides are positioned in file order within their section.
type SlideDoc struct {
	Section      string         `toml:"section"`
	Title        string         `toml:"title"`
	Type         string         `toml:"type"`
	QuestionKind string         `toml:"question_kind"`
	PackageIntro bool           `toml:"package_intro"`
	Payload      map[string]any `toml:"payload"`
}

// ParsePackageDoc decodes and validates a package document.
func ParsePackageDoc(data []byte) (*PackageDoc, error) {
	var doc PackageDoc
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: failed to parse package: %v", shared.ErrInvalidInput, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// LoadPackageDoc reads a package document from path.
func LoadPackageDoc(path string) (*PackageDoc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read package file: %w", err)
	}
	return ParsePackageDoc(data)
}

// Validate checks the document shape and decodes every slide's section and payload.
func (d *PackageDoc) Validate() error {
	if strings.TrimSpace(d.Code) == "" || strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: package code and name are required", shared.ErrInvalidInput)
	}
	if len(d.Wines) == 0 {
		return fmt.Errorf("%w: package needs at least one wine", shared.ErrInvalidInput)
	}

	for wi, w := range d.Wines {
		if strings.TrimSpace(w.Name) == "" {
			return fmt.Errorf("%w: wine %d has no name", shared.ErrInvalidInput, wi+1)
		}
		for si, s := range w.Slides {
			if s.PackageIntro && (wi != 0 || si != 0) {
				return fmt.Errorf("%w: only the first slide of the first wine can be the package intro", shared.ErrInvalidInput)
			}
			if _, err := s.section(); err != nil {
				return fmt.Errorf("wine %d slide %d: %w", wi+1, si+1, err)
			}
			if _, err := s.payload(); err != nil {
				return fmt.Errorf("wine %d slide %d: %w", wi+1, si+1, err)
			}
		}
	}
	return nil
}

func (s SlideDoc) section() (models.Section, error) {
	if s.Section == "" {
		return models.SectionDeepDive, nil
	}
	return models.ParseSection(s.Section)
}

func (s SlideDoc) payload() (models.Payload, error) {
	raw, err := json.Marshal(s.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: slide payload: %v", shared.ErrInvalidInput, err)
	}
	if s.Payload == nil {
		raw = json.RawMessage(`{}`)
	}
	return models.DecodePayload(models.SlideType(s.Type), models.QuestionKind(s.QuestionKind), raw)
}

// ImportResult reports what [TastingEngine.ImportPackage] created.
type ImportResult struct {
	Package *models.Package `json:"package"`
	Wines   int             `json:"wines"`
	Slides  int             `json:"slides"`
}

// ImportPackage creates a package with its wines (positions 1..n) and slides. Slide positions come
// from the allocator, appended in file order per (wine, section). Either everything is created or nothing.
func (e *TastingEngine) ImportPackage(ctx context.Context, doc *PackageDoc, progress chan<- ProgressUpdate) (*ImportResult, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}

	pkg := models.NewPackage(0, doc.Code, doc.Name, doc.Description)
	result := &ImportResult{Package: pkg}
	err := e.withTx(func(tx *sql.Tx) error {
		if err := e.packages.WithTx(tx).Create(pkg); err != nil {
			return err
		}
		e.sendProgress(progress, importPackageUpdate(pkg, len(doc.Wines)))

		wineRepo := repositories.NewWineRepository(tx)
		slideRepo := e.slides.WithTx(tx)

		var wines []*models.Wine
		var slides []*models.Slide
		for wi, wdoc := range doc.Wines {
			if err := ctx.Err(); err != nil {
				return err
			}

			wine := models.NewWine(pkg.ID(), wi+1, wdoc.Name, wdoc.Description, wdoc.ImageRef)
			if err := wineRepo.Create(wine); err != nil {
				return err
			}
			wines = append(wines, wine)

			positions := map[models.Section][]float64{}
			for si, sdoc := range wdoc.Slides {
				section, err := sdoc.section()
				if err != nil {
					return fmt.Errorf("wine %d slide %d: %w", wi+1, si+1, err)
				}
				payload, err := sdoc.payload()
				if err != nil {
					return fmt.Errorf("wine %d slide %d: %w", wi+1, si+1, err)
				}

				pos, err := e.allocator.Append(positions[section])
				if err != nil {
					return err
				}
				positions[section] = append(positions[section], pos)

				slide := models.NewSlide(wine.ID(), section, pos, sdoc.Title, payload)
				slide.SetPackageIntro(sdoc.PackageIntro)
				if err := slideRepo.Create(slide); err != nil {
					return err
				}
				slides = append(slides, slide)
			}
			e.sendProgress(progress, importWineUpdate(wi+1, len(doc.Wines), wine, len(wdoc.Slides)))
		}

		seq := aggregate.Build(aggregate.Input{PackageID: pkg.ID(), Wines: wines, Slides: slides})
		for id, gp := range seq.GlobalPositions() {
			if err := slideRepo.UpdateGlobalPosition(id, gp); err != nil {
				return err
			}
		}

		result.Wines, result.Slides = len(wines), len(slides)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("package imported", "package", pkg.Code(), "wines", result.Wines, "slides", result.Slides)
	return result, nil
}
