package tasks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/desertthunder/tasting/internal/formatter"
	"github.com/desertthunder/tasting/internal/shared"
	"golang.org/x/time/rate"
)

// ExportOpts contains configuration for session exports.
type ExportOpts struct {
	Format      string  // Export format: csv, markdown, json
	OutputDir   string  // Base output directory (default: tasting_export_{epoch})
	NumWorkers  int     // Concurrent workers (default: 4)
	RateLimit   float64 // Sessions loaded per second (default: 10)
	FetchImages bool    // Download wine images for markdown exports
}

// SessionExportResult is the outcome for one session.
type SessionExportResult struct {
	SessionID string   `json:"sessionId"`
	ShortCode string   `json:"shortCode"`
	Success   bool     `json:"success"`
	Files     []string `json:"files"`
	Error     string   `json:"error,omitempty"`
}

// ExportResult summarizes an export run.
type ExportResult struct {
	TotalSessions     int                   `json:"totalSessions"`
	SuccessfulExports int                   `json:"successfulExports"`
	FailedExports     int                   `json:"failedExports"`
	OutputDirectory   string                `json:"outputDirectory"`
	ManifestPath      string                `json:"manifestPath"`
	Results           []SessionExportResult `json:"results"`
}

type exportJob struct {
	sessionID string
	report    *formatter.SessionReport
}

// SessionReport gathers a session's responses and the sequence they were given against.
func (e *TastingEngine) SessionReport(ctx context.Context, sessionID string) (*formatter.SessionReport, error) {
	session, err := e.SessionByRef(sessionID)
	if err != nil {
		return nil, err
	}
	pkg, err := e.packages.Get(session.PackageID())
	if err != nil {
		return nil, err
	}
	seq, err := e.Sequence(ctx, pkg.ID(), session.ID())
	if err != nil {
		return nil, err
	}
	participants, err := e.participants.List(map[string]any{"session_id": session.ID()})
	if err != nil {
		return nil, err
	}
	responses, err := e.responses.List(map[string]any{"session_id": session.ID()})
	if err != nil {
		return nil, err
	}

	return &formatter.SessionReport{
		Package:      pkg,
		Session:      session,
		Sequence:     seq,
		Participants: participants,
		Responses:    responses,
	}, nil
}

// ExportSessions exports several sessions concurrently with rate limiting and progress tracking,
// then writes a manifest summarizing the results. One failing session does not stop the others.
func (e *TastingEngine) ExportSessions(ctx context.Context, prog chan<- ProgressUpdate, ids []string, opts ExportOpts) (*ExportResult, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no sessions to export", shared.ErrMissingArgument)
	}
	if opts.OutputDir == "" {
		opts.OutputDir = fmt.Sprintf("tasting_export_%d", time.Now().Unix())
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 4
	}
	if opts.NumWorkers > 10 {
		opts.NumWorkers = 10
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 10.0
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	result := &ExportResult{
		TotalSessions:   len(ids),
		OutputDirectory: opts.OutputDir,
		Results:         make([]SessionExportResult, 0, len(ids)),
	}

	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)

	jobs := make(chan exportJob, len(ids))
	results := make(chan SessionExportResult, len(ids))

	var wg sync.WaitGroup
	for i := 0; i < opts.NumWorkers; i++ {
		wg.Add(1)
		go e.exportWorker(ctx, &wg, jobs, results, opts)
	}

	go func() {
		defer close(jobs)
		for _, id := range ids {
			if err := limiter.Wait(ctx); err != nil {
				return
			}

			report, err := e.SessionReport(ctx, id)
			if err != nil {
				results <- SessionExportResult{SessionID: id, Error: fmt.Sprintf("failed to load session: %v", err)}
				continue
			}
			jobs <- exportJob{sessionID: id, report: report}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	completed := 0
	for res := range results {
		completed++
		result.Results = append(result.Results, res)

		if res.Success {
			result.SuccessfulExports++
			e.sendProgress(prog, exportCompletedUpdate(completed, len(ids), res.ShortCode, len(res.Files)))
		} else {
			result.FailedExports++
			e.sendProgress(prog, exportFailedUpdate(completed, len(ids), res.SessionID, fmt.Errorf("%s", res.Error)))
		}
	}

	manifestPath := filepath.Join(opts.OutputDir, "export_manifest.json")
	if err := formatter.WriteManifest(result, manifestPath); err != nil {
		return result, fmt.Errorf("export completed but failed to write manifest: %w", err)
	}
	result.ManifestPath = manifestPath
	return result, nil
}

func (e *TastingEngine) exportWorker(ctx context.Context, wg *sync.WaitGroup, jobs <-chan exportJob, results chan<- SessionExportResult, opts ExportOpts) {
	defer wg.Done()

	for job := range jobs {
		select {
		case <-ctx.Done():
			results <- SessionExportResult{SessionID: job.sessionID, Error: ctx.Err().Error()}
			continue
		default:
		}
		results <- exportSession(job, opts)
	}
}

func exportSession(j exportJob, opts ExportOpts) SessionExportResult {
	code := j.report.Session.ShortCode()
	result := SessionExportResult{SessionID: j.report.Session.ID(), ShortCode: code, Files: []string{}}

	switch opts.Format {
	case "csv":
		res, err := formatter.WriteCSVExport(j.report, filepath.Join(opts.OutputDir, code))
		if err != nil {
			result.Error = fmt.Sprintf("CSV export failed: %v", err)
			return result
		}
		result.Files = []string{res.ResponsesFile, res.MetadataFile}
	case "markdown":
		res, err := formatter.WriteMarkdownExport(j.report, filepath.Join(opts.OutputDir, code), opts.FetchImages)
		if err != nil {
			result.Error = fmt.Sprintf("markdown export failed: %v", err)
			return result
		}
		result.Files = res.Files
	default:
		path := filepath.Join(opts.OutputDir, code+".json")
		payload := map[string]any{
			"session":      j.report.Session,
			"participants": j.report.Participants,
			"responses":    j.report.Responses,
			"slideIds":     j.report.Sequence.IDs(),
		}
		if err := formatter.WriteManifest(payload, path); err != nil {
			result.Error = fmt.Sprintf("JSON export failed: %v", err)
			return result
		}
		result.Files = []string{path}
	}

	result.Success = true
	return result
}
