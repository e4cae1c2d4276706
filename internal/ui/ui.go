package ui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/tasting/internal/models"
	"github.com/desertthunder/tasting/internal/playback"
	"github.com/desertthunder/tasting/internal/responses"
	"github.com/desertthunder/tasting/internal/shared"
)

const progressTimeout = 5 * time.Second

// ProgressStore keeps the pointer on this machine.
type ProgressStore interface {
	Save(participantID, sessionID string, ptr models.ProgressPointer) error
}

// ProgressUpdater reports the pointer to the API.
type ProgressUpdater interface {
	UpdateProgress(ctx context.Context, participantID string, ptr models.ProgressPointer) error
}

// Options wires a [Model] to its participant and collaborators. Local, Remote and Resume are optional.
type Options struct {
	ParticipantID string
	SessionID     string
	DisplayName   string
	Navigator     *playback.Navigator
	Recorder      *responses.Recorder
	Local         ProgressStore
	Remote        ProgressUpdater
	Resume        *models.ProgressPointer
}

// Model represents the player state.
type Model struct {
	ctx      context.Context
	opts     Options
	nav      *playback.Navigator
	recorder *responses.Recorder

	step    playback.Step
	loaded  bool
	scale   int
	choices list.Model
	text    textinput.Model
	answers map[string]json.RawMessage
	records chan Msg

	sync   responses.Status
	notice string
	closed bool
	err    error

	width  int
	height int
	help   help.Model
	keys   keyMap
}

// NewModel creates a player for one participant.
func NewModel(ctx context.Context, opts Options) *Model {
	return &Model{
		ctx:      ctx,
		opts:     opts,
		nav:      opts.Navigator,
		recorder: opts.Recorder,
		answers:  make(map[string]json.RawMessage),
		records:  make(chan Msg, 16),
		help:     help.New(),
		keys:     newKeyMap(),
	}
}

// Init loads the first step (or the resumed one) and starts listening for recorder results.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.load(), m.waitForRecord(), m.waitForRestore())
}

// Step returns the step on screen.
func (m *Model) Step() playback.Step { return m.step }

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		if q := m.question(); q != nil && q.QuestionKind() == models.QuestionMultipleChoice {
			m.choices.SetSize(msg.Width-4, listHeight(msg.Height))
		}
		m.text.Width = max(msg.Width-8, 20)
		return m, nil

	case tea.KeyMsg:
		return m.handleKeys(msg)

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateInputs(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgStepLoaded:
		d := msg.data.(stepLoaded)
		if d.err != nil {
			m.err = d.err
			return m, nil
		}
		m.err = nil
		m.notice = ""
		m.step = d.step
		m.loaded = true
		focus := m.prepareInput()
		return m, tea.Batch(focus, m.persist(d.step.Pointer()))

	case MsgAnswerRecorded:
		d := msg.data.(answerRecorded)
		if d.err != nil {
			delete(m.answers, d.slideID)
			m.notice = fmt.Sprintf("answer not saved: %v", d.err)
			if errors.Is(d.err, shared.ErrSessionClosed) {
				m.closed = true
			}
		} else {
			m.sync = d.status
		}
		return m, m.waitForRecord()

	case MsgProgressSaved:
		d := msg.data.(progressSaved)
		if errors.Is(d.err, shared.ErrSessionClosed) {
			m.closed = true
			m.notice = "the host has closed this session"
		} else if d.err != nil {
			m.notice = fmt.Sprintf("progress not saved: %v", d.err)
		}
		return m, nil

	case MsgConnectionRestored:
		m.notice = "back online, sending queued answers"
		return m, tea.Batch(m.flush(), m.waitForRestore())

	case MsgSyncFinished:
		report := msg.data.(responses.Report)
		m.sync = report.Status
		if report.Status == responses.StatusSynced {
			m.notice = ""
		}
		return m, nil
	}
	return m, nil
}

func (m *Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}

	if m.err != nil {
		switch {
		case key.Matches(msg, m.keys.quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.refresh):
			return m, m.navigate(m.nav.Refresh)
		}
		return m, nil
	}

	question := m.question()
	typing := question != nil && question.QuestionKind() == models.QuestionText

	switch {
	case key.Matches(msg, m.keys.next):
		return m, m.navigate(m.nav.Next)
	case key.Matches(msg, m.keys.prev):
		return m, m.navigate(m.nav.Prev)
	case key.Matches(msg, m.keys.submit):
		if question != nil && !m.closed {
			return m, m.submit(question)
		}
		return m, m.navigate(m.nav.Next)
	}

	if typing {
		var cmd tea.Cmd
		m.text, cmd = m.text.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.refresh):
		return m, m.navigate(m.nav.Refresh)
	}

	if question == nil {
		return m, nil
	}

	switch p := question.(type) {
	case models.ScalePayload:
		switch {
		case key.Matches(msg, m.keys.left):
			m.scale = max(m.scale-1, p.Min)
		case key.Matches(msg, m.keys.right):
			m.scale = min(m.scale+1, p.Max)
		}
		return m, nil
	case models.ChoicePayload:
		if key.Matches(msg, m.keys.toggle) {
			return m, m.toggle(p)
		}
	}
	return m.updateInputs(msg)
}

func (m *Model) updateInputs(msg tea.Msg) (tea.Model, tea.Cmd) {
	question := m.question()
	if question == nil {
		return m, nil
	}

	var cmd tea.Cmd
	switch question.QuestionKind() {
	case models.QuestionMultipleChoice:
		m.choices, cmd = m.choices.Update(msg)
	case models.QuestionText:
		m.text, cmd = m.text.Update(msg)
	}
	return m, cmd
}

// question returns the payload of the current slide when it asks something.
func (m *Model) question() models.Question {
	if !m.loaded || m.step.Kind != playback.StepSlide || m.step.Slide == nil {
		return nil
	}
	q, ok := m.step.Slide.Question()
	if !ok {
		return nil
	}
	return q
}

// prepareInput resets the answer widgets for the current step, prefilled with an earlier answer.
func (m *Model) prepareInput() tea.Cmd {
	question := m.question()
	if question == nil {
		return nil
	}
	previous := m.answers[m.step.Slide.ID()]

	switch p := question.(type) {
	case models.ScalePayload:
		m.scale = p.Min + (p.Max-p.Min)/2
		var a models.ScaleAnswer
		if previous != nil && json.Unmarshal(previous, &a) == nil {
			m.scale = a.Value
		}
	case models.ChoicePayload:
		var a models.ChoiceAnswer
		if previous != nil {
			_ = json.Unmarshal(previous, &a)
		}
		delegate := list.NewDefaultDelegate()
		delegate.ShowDescription = false
		m.choices = list.New(optionItems(p, a.Selected), delegate, max(m.width-4, 20), listHeight(m.height))
		m.choices.SetShowTitle(false)
		m.choices.SetShowStatusBar(false)
		m.choices.SetShowHelp(false)
		m.choices.SetFilteringEnabled(false)
	case models.TextPayload:
		m.text = textinput.New()
		m.text.Placeholder = "Your notes"
		m.text.CharLimit = p.MaxLength
		m.text.Width = max(m.width-8, 20)
		var a models.TextAnswer
		if previous != nil && json.Unmarshal(previous, &a) == nil {
			m.text.SetValue(a.Text)
		}
		return m.text.Focus()
	}
	return nil
}

func (m *Model) toggle(p models.ChoicePayload) tea.Cmd {
	i := m.choices.Index()
	item, ok := m.choices.SelectedItem().(optionItem)
	if !ok {
		return nil
	}

	var cmds []tea.Cmd
	if !p.AllowMultiple {
		for j, other := range m.choices.Items() {
			if o, ok := other.(optionItem); ok && o.selected && j != i {
				o.selected = false
				cmds = append(cmds, m.choices.SetItem(j, o))
			}
		}
	}
	item.selected = !item.selected
	cmds = append(cmds, m.choices.SetItem(i, item))
	return tea.Batch(cmds...)
}

// answer encodes the widget state for question.
func (m *Model) answer(question models.Question) (json.RawMessage, error) {
	switch question.(type) {
	case models.ScalePayload:
		return json.Marshal(models.ScaleAnswer{Value: m.scale})
	case models.ChoicePayload:
		var selected []string
		for _, item := range m.choices.Items() {
			if o, ok := item.(optionItem); ok && o.selected {
				selected = append(selected, o.option.ID)
			}
		}
		if len(selected) == 0 {
			if o, ok := m.choices.SelectedItem().(optionItem); ok {
				selected = []string{o.option.ID}
			}
		}
		return json.Marshal(models.ChoiceAnswer{Selected: selected})
	case models.TextPayload:
		return json.Marshal(models.TextAnswer{Text: strings.TrimSpace(m.text.Value())})
	}
	return nil, fmt.Errorf("%w: unsupported question", shared.ErrInvalidInput)
}

// submit records the answer in the background and advances without waiting for the API.
func (m *Model) submit(question models.Question) tea.Cmd {
	answer, err := m.answer(question)
	if err == nil {
		err = question.ValidateAnswer(answer)
	}
	if err != nil {
		m.notice = err.Error()
		return nil
	}

	slideID := m.step.Slide.ID()
	m.answers[slideID] = answer
	m.recorder.RecordAsync(m.opts.ParticipantID, slideID, answer, func(status responses.Status, err error) {
		select {
		case m.records <- answerRecordedMsg(slideID, status, err):
		default:
		}
	})
	return m.navigate(m.nav.Next)
}

func (m *Model) load() tea.Cmd {
	return func() tea.Msg {
		if m.opts.Resume != nil && !m.opts.Resume.IsZero() {
			step, err := m.nav.Resume(m.ctx, *m.opts.Resume)
			return stepLoadedMsg(step, err)
		}
		step, err := m.nav.Current(m.ctx)
		return stepLoadedMsg(step, err)
	}
}

func (m *Model) navigate(fn func(context.Context) (playback.Step, error)) tea.Cmd {
	return func() tea.Msg {
		step, err := fn(m.ctx)
		return stepLoadedMsg(step, err)
	}
}

// persist saves ptr locally and reports it to the API.
func (m *Model) persist(ptr models.ProgressPointer) tea.Cmd {
	return func() tea.Msg {
		var errs []error
		if m.opts.Local != nil {
			if err := m.opts.Local.Save(m.opts.ParticipantID, m.opts.SessionID, ptr); err != nil {
				errs = append(errs, err)
			}
		}
		if m.opts.Remote != nil {
			ctx, cancel := context.WithTimeout(m.ctx, progressTimeout)
			defer cancel()
			if err := m.opts.Remote.UpdateProgress(ctx, m.opts.ParticipantID, ptr); err != nil {
				errs = append(errs, err)
			}
		}
		return progressSavedMsg(ptr, errors.Join(errs...))
	}
}

func (m *Model) waitForRecord() tea.Cmd {
	return func() tea.Msg {
		return <-m.records
	}
}

func (m *Model) waitForRestore() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-m.recorder.Restored():
			return connectionRestoredMsg()
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m *Model) flush() tea.Cmd {
	return func() tea.Msg {
		return syncFinishedMsg(m.recorder.Sync(m.ctx))
	}
}

// View renders the current step.
func (m *Model) View() string {
	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Error: %v", m.err)) +
			"\n\n" + m.help.ShortHelpView([]key.Binding{m.keys.refresh, m.keys.quit})
	}
	if !m.loaded {
		return styles.muted.Render("Loading tasting...")
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(styles.card.Render(m.renderStep()))
	b.WriteString("\n\n")
	b.WriteString(m.renderSync())
	if m.notice != "" {
		b.WriteString("  ")
		b.WriteString(styles.warn.Render(m.notice))
	}
	b.WriteString("\n\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m *Model) renderHeader() string {
	total := 0
	if plan := m.nav.Plan(); plan != nil {
		total = plan.Len()
	}
	name := m.opts.DisplayName
	if name == "" {
		name = "Tasting"
	}
	return styles.title.Render(fmt.Sprintf("%s · step %d of %d", name, m.step.Index+1, total))
}

func (m *Model) renderStep() string {
	s := m.step
	switch s.Kind {
	case playback.StepPackageIntro:
		if s.Slide != nil {
			return m.renderSlide(s.Slide)
		}
		return styles.ok.Render("Welcome to the tasting") + "\n\nPress enter to begin."

	case playback.StepWineIntro:
		var b strings.Builder
		b.WriteString(styles.ok.Render(wineName(s.Wine)))
		if s.Wine != nil && s.Wine.Description() != "" {
			b.WriteString("\n\n" + s.Wine.Description())
		}
		b.WriteString(styles.muted.Render(fmt.Sprintf("\n\n%d slides", s.Total)))
		return b.String()

	case playback.StepWineTransition:
		return fmt.Sprintf("Finished %s.\n\nUp next: %s", wineName(s.FromWine), styles.ok.Render(wineName(s.Wine)))

	case playback.StepSlide:
		header := styles.muted.Render(fmt.Sprintf("%s · %d of %d", wineName(s.Wine), s.Position, s.Total))
		return header + "\n\n" + m.renderSlide(s.Slide)

	case playback.StepComplete:
		return styles.ok.Render("✓ Tasting complete") + "\n\nThank you for tasting with us."
	}
	return ""
}

func (m *Model) renderSlide(slide *models.Slide) string {
	if slide == nil {
		return ""
	}

	var b strings.Builder
	if slide.Title() != "" {
		b.WriteString(styles.ok.Render(slide.Title()) + "\n\n")
	}

	switch p := slide.Payload().(type) {
	case models.InterludePayload:
		b.WriteString(p.Title)
		if p.Body != "" {
			b.WriteString("\n\n" + p.Body)
		}
	case models.MediaPayload:
		b.WriteString(p.Title + "\n")
		b.WriteString(styles.muted.Render(fmt.Sprintf("%s %s", p.MediaKind, p.MediaRef)))
	case models.ScalePayload:
		b.WriteString(p.Prompt + "\n\n")
		b.WriteString(renderScale(p, m.scale))
	case models.ChoicePayload:
		b.WriteString(p.Prompt + "\n\n")
		b.WriteString(m.choices.View())
	case models.TextPayload:
		b.WriteString(p.Prompt + "\n\n")
		b.WriteString(m.text.View())
	}

	if _, ok := m.answers[slide.ID()]; ok {
		b.WriteString("\n\n" + styles.muted.Render("answered"))
	}
	return b.String()
}

func (m *Model) renderSync() string {
	switch m.sync {
	case responses.StatusSynced:
		return styles.ok.Render("● synced")
	case responses.StatusPending:
		return styles.warn.Render("● saved offline")
	case responses.StatusPartial:
		return styles.warn.Render("● partly synced")
	case responses.StatusOffline:
		return styles.err.Render("● offline")
	default:
		return styles.muted.Render("○ no answers yet")
	}
}

func renderScale(p models.ScalePayload, value int) string {
	var marks []string
	for v := p.Min; v <= p.Max; v++ {
		if v == value {
			marks = append(marks, styles.ok.Render(fmt.Sprintf("[%d]", v)))
		} else {
			marks = append(marks, styles.muted.Render(fmt.Sprintf(" %d ", v)))
		}
	}

	line := strings.Join(marks, " ")
	if p.MinLabel != "" || p.MaxLabel != "" {
		line = fmt.Sprintf("%s  %s  %s", styles.help.Render(p.MinLabel), line, styles.help.Render(p.MaxLabel))
	}
	return line
}

func wineName(w *models.Wine) string {
	if w == nil {
		return "this wine"
	}
	return w.Name()
}

func listHeight(height int) int {
	if height <= 0 {
		return 10
	}
	return max(height-16, 5)
}
