package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/tasting/internal/models"
	"github.com/desertthunder/tasting/internal/playback"
	"github.com/desertthunder/tasting/internal/responses"
)

// MsgKind enumerates all message types in the player.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgStepLoaded MsgKind = iota
	MsgAnswerRecorded
	MsgProgressSaved
	MsgConnectionRestored
	MsgSyncFinished
)

type stepLoaded struct {
	step playback.Step
	err  error
}

type answerRecorded struct {
	slideID string
	status  responses.Status
	err     error
}

type progressSaved struct {
	ptr models.ProgressPointer
	err error
}

// stepLoadedMsg is the constructor for [MsgStepLoaded]
func stepLoadedMsg(step playback.Step, err error) Msg {
	return Msg{kind: MsgStepLoaded, data: stepLoaded{step, err}}
}

// answerRecordedMsg is the constructor for [MsgAnswerRecorded]
func answerRecordedMsg(slideID string, status responses.Status, err error) Msg {
	return Msg{kind: MsgAnswerRecorded, data: answerRecorded{slideID, status, err}}
}

// progressSavedMsg is the constructor for [MsgProgressSaved]
func progressSavedMsg(ptr models.ProgressPointer, err error) Msg {
	return Msg{kind: MsgProgressSaved, data: progressSaved{ptr, err}}
}

// connectionRestoredMsg is the constructor for [MsgConnectionRestored]
func connectionRestoredMsg() Msg {
	return Msg{kind: MsgConnectionRestored}
}

// syncFinishedMsg is the constructor for [MsgSyncFinished]
func syncFinishedMsg(report responses.Report) Msg {
	return Msg{kind: MsgSyncFinished, data: report}
}
