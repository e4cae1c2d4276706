package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/tasting/internal/models"
	"github.com/desertthunder/tasting/internal/shared"
	"github.com/desertthunder/tasting/internal/tasks"
	"github.com/urfave/cli/v3"
)

// SessionCreate opens a session for a package.
func (r *Runner) SessionCreate(ctx context.Context, cmd *cli.Command) error {
	engine, closeDB, err := r.openEngine()
	if err != nil {
		return err
	}
	defer closeDB()

	session, err := engine.CreateSession(ctx, cmd.String("code"), cmd.String("short-code"))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(session, true)
	}
	r.writePlain("✓ Session %s opened\n", session.ShortCode())
	r.writePlain("Participants join with: tasting play --session %s --name <name>\n", session.ShortCode())
	return nil
}

// SessionList lists sessions, optionally of one package and status.
func (r *Runner) SessionList(ctx context.Context, cmd *cli.Command) error {
	status := models.SessionStatus(cmd.String("status"))
	switch status {
	case "", models.SessionActive, models.SessionCompleted:
	default:
		return fmt.Errorf("%w: unknown status %q", shared.ErrInvalidArgument, status)
	}

	engine, closeDB, err := r.openEngine()
	if err != nil {
		return err
	}
	defer closeDB()

	sessions, err := engine.Sessions(cmd.String("code"), status)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		if sessions == nil {
			sessions = []*models.Session{}
		}
		return r.writeJSON(sessions, true)
	}

	if len(sessions) == 0 {
		return r.writePlain("No sessions\n")
	}
	r.writePlainHeader(fmt.Sprintf("Sessions (%d)", len(sessions)))
	for _, s := range sessions {
		r.writePlain("%3d. %-8s %-10s %s\n", s.Sequence(), s.ShortCode(), s.Status(), s.CreatedAt().Format("2006-01-02 15:04"))
	}
	return nil
}

// SessionComplete closes a session.
func (r *Runner) SessionComplete(ctx context.Context, cmd *cli.Command) error {
	ref := cmd.StringArg("session")
	if ref == "" {
		return fmt.Errorf("%w: session id or short code is required", shared.ErrMissingArgument)
	}

	engine, closeDB, err := r.openEngine()
	if err != nil {
		return err
	}
	defer closeDB()

	session, err := engine.CompleteSession(ctx, ref)
	if err != nil {
		return err
	}
	return r.writePlain("✓ Session %s completed\n", session.ShortCode())
}

// SessionExport writes response exports for one or more sessions.
func (r *Runner) SessionExport(ctx context.Context, cmd *cli.Command) error {
	engine, closeDB, err := r.openEngine()
	if err != nil {
		return err
	}
	defer closeDB()

	opts := tasks.ExportOpts{
		Format:      cmd.String("format"),
		OutputDir:   cmd.String("output"),
		NumWorkers:  int(cmd.Int("workers")),
		FetchImages: cmd.Bool("fetch-images"),
	}
	switch opts.Format {
	case "csv", "markdown", "json":
	default:
		return fmt.Errorf("%w: unknown format %q (want csv, markdown or json)", shared.ErrInvalidArgument, opts.Format)
	}

	progress := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go r.printProgress(progress, done)

	result, err := engine.ExportSessions(ctx, progress, cmd.StringSlice("id"), opts)
	close(progress)
	<-done
	if err != nil {
		return err
	}

	r.writePlainln("Exported %d/%d sessions to %s", result.SuccessfulExports, result.TotalSessions, result.OutputDirectory)
	for _, res := range result.Results {
		if !res.Success {
			r.writePlain("  ✗ %s: %s\n", res.SessionID, res.Error)
		}
	}
	r.writePlain("Manifest: %s\n", result.ManifestPath)
	return nil
}
