// package testing contains shared test doubles, fixtures and assertions
package testing

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"testing"

	"github.com/desertthunder/tasting/internal/models"
	"github.com/desertthunder/tasting/internal/shared"
)

// OpenTestDB creates an in-memory SQLite database with migrations applied and closes it on cleanup.
func OpenTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	return db
}

// FakeSink is a scriptable response sink. SubmitFunc and PingFunc default to success.
type FakeSink struct {
	mu         sync.Mutex
	SubmitFunc func(call int, resp *models.Response) error
	PingFunc   func() error
	calls      int
	stored     map[string]*models.Response
}

func (f *FakeSink) SubmitResponse(ctx context.Context, resp *models.Response) (*models.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.SubmitFunc != nil {
		if err := f.SubmitFunc(f.calls, resp); err != nil {
			return nil, err
		}
	}
	if f.stored == nil {
		f.stored = make(map[string]*models.Response)
	}
	f.stored[resp.ParticipantID()+"/"+resp.SlideID()] = resp
	return resp, nil
}

func (f *FakeSink) Ping(ctx context.Context) error {
	if f.PingFunc != nil {
		return f.PingFunc()
	}
	return nil
}

// Calls returns how many submissions were attempted.
func (f *FakeSink) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Stored returns the answer accepted for (participant, slide), if any.
func (f *FakeSink) Stored(participantID, slideID string) (json.RawMessage, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	resp, ok := f.stored[participantID+"/"+slideID]
	if !ok {
		return nil, false
	}
	return resp.Answer(), true
}

// TastingFixture builds an unsaved package of wines with the given slide counts. The first slide of
// the first wine is the welcome slide when welcome is true. Ids are deterministic.
func TastingFixture(welcome bool, counts ...int) (*models.Package, []*models.Wine, []*models.Slide) {
	pkg := models.NewPackage(1, "FIXTURE", "Fixture tasting", "")
	pkg.SetID("pkg")

	var wines []*models.Wine
	var slides []*models.Slide
	for wi, count := range counts {
		w := models.NewWine(pkg.ID(), wi+1, fmt.Sprintf("Wine %d", wi+1), "", "")
		w.SetID(fmt.Sprintf("w%d", wi+1))
		wines = append(wines, w)

		for i := range count {
			s := models.NewSlide(w.ID(), models.SectionDeepDive, float64(1000*(i+1)), fmt.Sprintf("Slide %d.%d", wi+1, i+1),
				models.ScalePayload{Prompt: "Rate it", Min: 1, Max: 5})
			s.SetID(fmt.Sprintf("%s-s%d", w.ID(), i))
			slides = append(slides, s)
		}
	}

	if welcome && len(wines) > 0 {
		s := models.NewSlide(wines[0].ID(), models.SectionIntro, 1000, "Welcome", models.InterludePayload{Title: "Welcome"})
		s.SetID("welcome")
		s.SetPackageIntro(true)
		slides = append(slides, s)
	}
	return pkg, wines, slides
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func MustGetwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	return wd
}

func MustChdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory to %s: %v", dir, err)
	}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func AssertDirExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		t.Errorf("Directory does not exist: %s", path)
		return
	}
	if !info.IsDir() {
		t.Errorf("Path is not a directory: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
