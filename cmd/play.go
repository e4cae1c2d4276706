package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/tasting/internal/models"
	"github.com/desertthunder/tasting/internal/playback"
	"github.com/desertthunder/tasting/internal/repositories"
	"github.com/desertthunder/tasting/internal/shared"
	"github.com/desertthunder/tasting/internal/ui"
	"github.com/urfave/cli/v3"
)

// Play joins a session through the API and runs the participant player. Local progress is keyed by
// the session's short code so a restarted player resumes as the same participant.
func (r *Runner) Play(ctx context.Context, cmd *cli.Command) error {
	code := strings.ToUpper(strings.TrimSpace(cmd.String("session")))
	name := strings.TrimSpace(cmd.String("name"))
	if code == "" || name == "" {
		return fmt.Errorf("%w: --session and --name are required", shared.ErrMissingArgument)
	}

	// Redirect logs to a file to keep them off the player screen
	fileLogger, err := shared.NewFileLogger(cmd.String("log-file"))
	if err != nil {
		return err
	}
	fileLogger.SetLevel(r.logger.GetLevel())
	r.SetLogger(fileLogger)

	recorder, db, err := r.openRecorder()
	if err != nil {
		return err
	}
	defer db.Close()
	local := repositories.NewProgressRepository(db)

	participantID, session, resume, err := r.joinOrResume(ctx, local, code, name, cmd.Bool("host"), cmd.Bool("fresh"))
	if err != nil {
		return err
	}
	logger := shared.WithLogger(r.logger, "component", "player", "participant_id", participantID, "session_id", session.ID())

	nav, err := playback.NewNavigator(ctx, r.client.Source(session.PackageID(), participantID), playback.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to load tasting: %w", err)
	}

	model := ui.NewModel(ctx, ui.Options{
		ParticipantID: participantID,
		SessionID:     code,
		DisplayName:   name,
		Navigator:     nav,
		Recorder:      recorder,
		Local:         local,
		Remote:        r.client,
		Resume:        resume,
	})

	logger.Info("player started", "resumed", resume != nil)
	_, err = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	recorder.Wait()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("error running player: %w", err)
	}
	return nil
}

// joinOrResume reuses the participant saved for code unless fresh is set or the API no longer
// knows them; otherwise it joins as a new participant.
func (r *Runner) joinOrResume(ctx context.Context, local *repositories.ProgressRepository, code, name string, isHost, fresh bool) (string, *models.Session, *models.ProgressPointer, error) {
	if !fresh {
		saved, err := local.LatestForSession(code)
		switch {
		case err == nil:
			state, err := r.client.ParticipantState(ctx, saved.ParticipantID)
			if err == nil {
				if !state.Session.IsActive() {
					return "", nil, nil, shared.ErrSessionClosed.WithMetadata(map[string]string{"shortCode": code})
				}
				r.logger.Info("resuming participant", "participant_id", saved.ParticipantID, "step", saved.Pointer.StepIndex)
				ptr := saved.Pointer
				return saved.ParticipantID, state.Session, &ptr, nil
			}
			if shared.CodeOf(err) != shared.CodeNotFound {
				return "", nil, nil, fmt.Errorf("failed to resume: %w", err)
			}
			r.logger.Warn("saved participant is gone, joining again", "participant_id", saved.ParticipantID)
		case !errors.Is(err, shared.ErrNotFound):
			return "", nil, nil, err
		}
	}

	joined, err := r.client.JoinSession(ctx, code, name, isHost)
	if err != nil {
		return "", nil, nil, fmt.Errorf("failed to join %s: %w", code, err)
	}
	r.logger.Info("joined session", "participant_id", joined.Participant.ID(), "host", isHost)
	return joined.Participant.ID(), joined.Session, nil, nil
}
