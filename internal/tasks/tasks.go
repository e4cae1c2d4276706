package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tasting/internal/aggregate"
	"github.com/desertthunder/tasting/internal/models"
	"github.com/desertthunder/tasting/internal/ordering"
	"github.com/desertthunder/tasting/internal/repositories"
	"github.com/desertthunder/tasting/internal/shared"
)

// Event names sent to a [Notifier].
const (
	EventOrderChanged     = "order_changed"
	EventSelectionChanged = "selection_changed"
	EventHostStep         = "host_step"
	EventSessionCompleted = "session_completed"
)

// Notifier fans events out to the clients of a session.
type Notifier interface {
	Broadcast(sessionID, event string, data any)
}

// EngineOpts contains configuration for a [TastingEngine].
type EngineOpts struct {
	Ordering       shared.OrderingConfig
	CacheSequences bool
	Notifier       Notifier
	Logger         *log.Logger
}

// TastingEngine is the service layer behind the API and the CLI.
type TastingEngine struct {
	db           *sql.DB
	packages     *repositories.PackageRepository
	wines        *repositories.WineRepository
	slides       *repositories.SlideRepository
	sessions     *repositories.SessionRepository
	selections   *repositories.SelectionRepository
	participants *repositories.ParticipantRepository
	responses    *repositories.ResponseRepository

	allocator  ordering.Allocator
	reconciler *ordering.Reconciler
	cache      *aggregate.Cache
	locks      *keyedMutex
	notifier   Notifier
	logger     *log.Logger
}

// NewTastingEngine creates a [TastingEngine] over a migrated database.
func NewTastingEngine(db *sql.DB, opts EngineOpts) *TastingEngine {
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}

	allocator := ordering.NewAllocator(opts.Ordering)
	e := &TastingEngine{
		db:           db,
		packages:     repositories.NewPackageRepository(db),
		wines:        repositories.NewWineRepository(db),
		slides:       repositories.NewSlideRepository(db),
		sessions:     repositories.NewSessionRepository(db),
		selections:   repositories.NewSelectionRepository(db),
		participants: repositories.NewParticipantRepository(db),
		responses:    repositories.NewResponseRepository(db),
		allocator:    allocator,
		reconciler:   ordering.NewReconciler(allocator),
		locks:        newKeyedMutex(),
		notifier:     opts.Notifier,
		logger:       shared.WithLogger(opts.Logger, "component", "engine"),
	}
	e.cache = aggregate.NewCache(e, e.logger, opts.CacheSequences)
	return e
}

// SetNotifier attaches the event fan-out after construction.
func (e *TastingEngine) SetNotifier(n Notifier) { e.notifier = n }

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func (e *TastingEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	sendProgress(progress, update)
}

func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// LoadInput implements [aggregate.Loader].
func (e *TastingEngine) LoadInput(packageID, sessionID string) (aggregate.Input, error) {
	in := aggregate.Input{PackageID: packageID}

	wines, err := e.wines.ListByPackage(packageID)
	if err != nil {
		return in, err
	}
	slides, err := e.slides.ListByPackage(packageID)
	if err != nil {
		return in, err
	}
	in.Wines, in.Slides = wines, slides

	if sessionID != "" {
		selections, err := e.selections.List(sessionID)
		if err != nil {
			return in, err
		}
		in.Selections = selections
	}
	return in, nil
}

// Sequence returns the aggregated order for a package, scoped to a session's wine selections when
// sessionID is set.
func (e *TastingEngine) Sequence(ctx context.Context, packageID, sessionID string) (*aggregate.Sequence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.cache.Get(packageID, sessionID)
}

// SlidesView is the payload of GET /packages/{code}/slides.
type SlidesView struct {
	Package    *models.Package `json:"package"`
	SessionID  string          `json:"sessionId,omitempty"`
	Wines      []*models.Wine  `json:"wines"`
	Slides     []*models.Slide `json:"slides"`
	TotalCount int             `json:"totalCount"`
}

// PackageSlides returns the full ordered slide list for a package, referenced by code or id. With a
// participant the wine selections of the participant's session apply. TotalCount always equals len(Slides).
func (e *TastingEngine) PackageSlides(ctx context.Context, code, participantID string) (*SlidesView, error) {
	pkg, err := e.packageByRef(code)
	if err != nil {
		return nil, err
	}

	var sessionID string
	if participantID != "" {
		p, err := e.participants.Get(participantID)
		if err != nil {
			return nil, err
		}
		session, err := e.sessions.Get(p.SessionID())
		if err != nil {
			return nil, err
		}
		if session.PackageID() != pkg.ID() {
			return nil, fmt.Errorf("%w: participant %s is not in a session of package %s", shared.ErrInvalidInput, participantID, pkg.Code())
		}
		sessionID = session.ID()
	}

	seq, err := e.Sequence(ctx, pkg.ID(), sessionID)
	if err != nil {
		return nil, err
	}
	return newSlidesView(pkg, sessionID, seq), nil
}

// packageByRef resolves a package by code or, failing that, by id.
func (e *TastingEngine) packageByRef(ref string) (*models.Package, error) {
	pkg, err := e.packages.GetByCode(normalizeCode(ref))
	if err == nil {
		return pkg, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}
	return e.packages.Get(ref)
}

// newSlidesView copies the sequence so callers never see cached slides, and stamps each slide with
// its derived global position.
func newSlidesView(pkg *models.Package, sessionID string, seq *aggregate.Sequence) *SlidesView {
	view := &SlidesView{
		Package:   pkg,
		SessionID: sessionID,
		Wines:     seq.Wines,
		Slides:    make([]*models.Slide, seq.Len()),
	}
	for i, s := range seq.Slides {
		c := s.Clone()
		c.SetGlobalPosition(i + 1)
		view.Slides[i] = c
	}
	view.TotalCount = len(view.Slides)
	return view
}

// Outline returns a package and its aggregated order.
func (e *TastingEngine) Outline(ctx context.Context, code, sessionID string) (*models.Package, *aggregate.Sequence, error) {
	pkg, err := e.packages.GetByCode(normalizeCode(code))
	if err != nil {
		return nil, nil, err
	}
	if sessionID != "" {
		session, err := e.SessionByRef(sessionID)
		if err != nil {
			return nil, nil, err
		}
		if session.PackageID() != pkg.ID() {
			return nil, nil, fmt.Errorf("%w: session %s belongs to another package", shared.ErrInvalidInput, session.ShortCode())
		}
		sessionID = session.ID()
	}

	seq, err := e.Sequence(ctx, pkg.ID(), sessionID)
	if err != nil {
		return nil, nil, err
	}
	return pkg, seq, nil
}

// Packages lists packages, optionally filtered by code.
func (e *TastingEngine) Packages(code string) ([]*models.Package, error) {
	return e.packages.List(map[string]any{"code": normalizeCode(code)})
}

// invalidate drops cached sequences of a package and tells its active sessions to refetch.
func (e *TastingEngine) invalidate(packageID, event string, data any) {
	e.cache.Invalidate(packageID)
	if e.notifier == nil {
		return
	}

	sessions, err := e.sessions.List(map[string]any{"package_id": packageID, "status": models.SessionActive})
	if err != nil {
		e.logger.Warn("failed to list sessions for notification", "package_id", packageID, "error", err)
		return
	}
	for _, s := range sessions {
		e.notifier.Broadcast(s.ID(), event, data)
	}
}

func (e *TastingEngine) notify(sessionID, event string, data any) {
	if e.notifier != nil {
		e.notifier.Broadcast(sessionID, event, data)
	}
}

// withTx runs fn in a transaction, rolling back on error.
func (e *TastingEngine) withTx(fn func(tx *sql.Tx) error) error {
	tx, err := e.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
