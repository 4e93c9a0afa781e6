package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/bep/debounce"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/five82/tether/internal/config"
	"github.com/five82/tether/internal/pipeline"
	"github.com/five82/tether/internal/prefs"
	"github.com/five82/tether/internal/search"
	"github.com/five82/tether/internal/state"
)

// DefaultSearchDebounce delays search-as-you-type until typing pauses.
const DefaultSearchDebounce = 150 * time.Millisecond

// Controller is the pipeline surface the UI drives. Its methods may block on
// the update loop, so the UI only calls them from commands.
type Controller interface {
	Connect(identity string) error
	Disconnect() error
	RenameLogFile(newPath string) error
	ApplyHighlightConfig() error
	SetHideEnabled(enabled bool)
	HideEnabled() bool
}

// Options configures the UI.
type Options struct {
	Context    context.Context
	Controller Controller
	View       *LineView
	Search     *search.Engine
	Scheduler  *Scheduler
	Store      *state.Store
	// Rules returns the highlight rules used to build the style palette.
	Rules     func() []config.Rule
	PollTick  time.Duration
	Debounce  time.Duration
	Prefs     prefs.Prefs
	PrefsPath string
	Logger    *zap.SugaredLogger
	// Copy writes to the clipboard. Nil uses the system clipboard.
	Copy func(string) error
}

type promptKind int

const (
	promptNone promptKind = iota
	promptSearch
	promptConnect
	promptRename
)

// Model is the root application state for Bubble Tea.
type Model struct {
	ctx       context.Context
	ctrl      Controller
	view      *LineView
	engine    *search.Engine
	sched     *Scheduler
	store     *state.Store
	rules     func() []config.Rule
	prefsPath string
	pollTick  time.Duration
	log       *zap.SugaredLogger
	copy      func(string) error
	debounced func(func())

	keys    keyMap
	theme   Theme
	palette map[string]lipgloss.Style
	prefs   prefs.Prefs
	width   int
	height  int
	ready   bool

	viewport viewport.Model
	rendered uint64
	follow   bool

	prompt        promptKind
	input         textinput.Model
	caseSensitive bool
	regex         bool
	searchErr     error
	lastSelected  search.Result

	snapshot    state.Snapshot
	lastUpdated time.Time
	flash       string
	flashErr    bool
	showHelp    bool
}

// New creates a new Bubble Tea model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	pollTick := opts.PollTick
	if pollTick <= 0 {
		pollTick = time.Second
	}
	wait := opts.Debounce
	if wait <= 0 {
		wait = DefaultSearchDebounce
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	rules := opts.Rules
	if rules == nil {
		rules = config.DefaultRules
	}
	cp := opts.Copy
	if cp == nil {
		cp = clipboard.WriteAll
	}
	prefsPath := opts.PrefsPath
	if prefsPath == "" {
		prefsPath = prefs.DefaultPath()
	}

	ti := textinput.New()
	ti.CharLimit = 256

	theme := GetTheme(opts.Prefs.Theme)
	m := Model{
		ctx:       ctx,
		ctrl:      opts.Controller,
		view:      opts.View,
		engine:    opts.Search,
		sched:     opts.Scheduler,
		store:     opts.Store,
		rules:     rules,
		prefsPath: prefsPath,
		pollTick:  pollTick,
		log:       log,
		copy:      cp,
		debounced: debounce.New(wait),
		keys:      DefaultKeyMap(),
		theme:     theme,
		palette:   theme.Palette(rules()),
		prefs:     opts.Prefs,
		follow:    opts.Prefs.Follow,
		input:     ti,
	}
	m.lastSelected = search.Result{Line: -1}
	return m
}

// Prefs returns the preferences as changed during the session.
func (m Model) Prefs() prefs.Prefs {
	p := m.prefs
	p.Theme = m.theme.Name
	p.Follow = m.follow
	return p
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{tickCmd(m.pollTick)}
	if m.sched != nil {
		cmds = append(cmds, m.sched.wait())
	}
	if m.store != nil {
		cmds = append(cmds, fetchSnapshotCmd(m.store))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		next, cmd := m.handleKey(msg)
		nm := next.(Model)
		nm.syncViewport()
		return nm, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if !m.ready {
			m.viewport = viewport.New(m.width, m.contentHeight())
			m.ready = true
		}
		m.viewport.Width = m.width
		m.viewport.Height = m.contentHeight()
		m.input.Width = max(m.width-20, 10)
		m.rendered = 0
		m.syncViewport()
		return m, nil

	case batchMsg:
		var cmds []tea.Cmd
		for _, inner := range msg {
			if fn, ok := inner.(execMsg); ok {
				fn()
				continue
			}
			next, cmd := m.Update(inner)
			m = next.(Model)
			cmds = append(cmds, cmd)
		}
		m.syncViewport()
		m.trackSelection()
		cmds = append(cmds, m.sched.wait())
		return m, tea.Batch(cmds...)

	case queryMsg:
		if m.prompt == promptSearch && m.input.Value() == msg.text {
			m.applyQuery(msg.text)
		}
		return m, nil

	case tickMsg:
		var cmds []tea.Cmd
		if m.store != nil {
			cmds = append(cmds, fetchSnapshotCmd(m.store))
		}
		cmds = append(cmds, tickCmd(m.pollTick))
		return m, tea.Batch(cmds...)

	case snapshotMsg:
		m.snapshot = state.Snapshot(msg)
		m.lastUpdated = time.Now()
		return m, nil

	case opResultMsg:
		if msg.err != nil {
			m.log.Warnw("operation failed", "op", msg.op, "error", msg.err)
			m.setFlash(fmt.Sprintf("%s: %v", msg.op, msg.err), true)
		} else if msg.done != "" {
			m.setFlash(msg.done, false)
		}
		if msg.refresh {
			m.palette = m.theme.Palette(m.rules())
			m.view.Touch()
			m.syncViewport()
		}
		return m, nil
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelp()
	}
	return m.renderMain()
}

func (m Model) contentHeight() int {
	// header, status line, footer
	return max(m.height-3, 1)
}

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		m.showHelp = false
		return m, nil
	}
	if m.prompt != promptNone {
		return m.handlePromptKey(msg)
	}

	k := m.keys
	switch {
	case key.Matches(msg, k.Quit):
		return m, tea.Quit

	case key.Matches(msg, k.Help):
		m.showHelp = true

	case key.Matches(msg, k.CycleTheme):
		m.theme = GetTheme(NextTheme(m.theme.Name))
		m.palette = m.theme.Palette(m.rules())
		m.view.Touch()
		if err := prefs.Save(m.prefsPath, m.Prefs()); err != nil {
			m.log.Warnw("save preferences", "path", m.prefsPath, "error", err)
		}

	case key.Matches(msg, k.Search):
		cmd := m.openPrompt(promptSearch, m.engine.Query().Pattern)
		return m, cmd

	case key.Matches(msg, k.Connect):
		if m.snapshot.HasStatus && m.snapshot.Status.State != pipeline.StateDisconnected {
			m.setFlash("already "+m.snapshot.Status.State.String()+", press d to disconnect", true)
			return m, nil
		}
		cmd := m.openPrompt(promptConnect, m.prefs.LastConnection)
		return m, cmd

	case key.Matches(msg, k.Disconnect):
		return m, m.runOp("disconnect", "disconnected", false, m.ctrl.Disconnect)

	case key.Matches(msg, k.RenameLog):
		current := m.snapshot.Status.LogFile
		if current == "" {
			m.setFlash("no session log to rename", true)
			return m, nil
		}
		cmd := m.openPrompt(promptRename, current)
		return m, cmd

	case key.Matches(msg, k.ToggleHide):
		ctrl := m.ctrl
		return m, m.runOp("hide filter", "hide filter toggled", true, func() error {
			ctrl.SetHideEnabled(!ctrl.HideEnabled())
			return nil
		})

	case key.Matches(msg, k.Reload):
		return m, m.runOp("reload rules", "highlight rules reloaded", true, m.ctrl.ApplyHighlightConfig)

	case key.Matches(msg, k.NextMatch):
		m.engine.SelectNext()
		m.trackSelection()

	case key.Matches(msg, k.PrevMatch):
		m.engine.SelectPrior()
		m.trackSelection()

	case key.Matches(msg, k.Yank):
		m.yankSelection()

	case key.Matches(msg, k.Escape):
		if m.engine.Active() {
			m.engine.Clear()
			m.searchErr = nil
			m.view.Touch()
		}
		m.flash = ""

	case key.Matches(msg, k.ToggleFollow):
		m.follow = !m.follow
		if m.follow {
			m.viewport.GotoBottom()
		}

	case key.Matches(msg, k.Top):
		m.viewport.GotoTop()
		m.follow = false

	case key.Matches(msg, k.Bottom):
		m.viewport.GotoBottom()
		m.follow = true

	case key.Matches(msg, k.Down):
		m.viewport.ScrollDown(1)
		m.follow = m.viewport.AtBottom()

	case key.Matches(msg, k.Up):
		m.viewport.ScrollUp(1)
		m.follow = false

	case key.Matches(msg, k.HalfPageDown):
		m.viewport.HalfPageDown()
		m.follow = m.viewport.AtBottom()

	case key.Matches(msg, k.HalfPageUp):
		m.viewport.HalfPageUp()
		m.follow = false

	case key.Matches(msg, k.PageDown):
		m.viewport.PageDown()
		m.follow = m.viewport.AtBottom()

	case key.Matches(msg, k.PageUp):
		m.viewport.PageUp()
		m.follow = false
	}
	return m, nil
}

func (m *Model) openPrompt(kind promptKind, value string) tea.Cmd {
	m.prompt = kind
	switch kind {
	case promptSearch:
		m.input.Prompt = "/"
		m.input.Placeholder = "search"
	case promptConnect:
		m.input.Prompt = "connect: "
		m.input.Placeholder = "/dev/ttyUSB0@115200, tcp://host:port, file:/path, -"
	case promptRename:
		m.input.Prompt = "rename log: "
		m.input.Placeholder = "new path"
	}
	m.input.SetValue(value)
	m.input.CursorEnd()
	return m.input.Focus()
}

func (m *Model) closePrompt() {
	m.prompt = promptNone
	m.input.Blur()
}

// handlePromptKey handles keyboard input while the prompt line is open.
func (m Model) handlePromptKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	k := m.keys
	switch {
	case key.Matches(msg, k.Confirm):
		value := strings.TrimSpace(m.input.Value())
		kind := m.prompt
		m.closePrompt()
		switch kind {
		case promptSearch:
			m.applyQuery(m.input.Value())
		case promptConnect:
			if value == "" {
				return m, nil
			}
			m.prefs.LastConnection = value
			return m, m.runOp("connect", "", false, func() error { return m.ctrl.Connect(value) })
		case promptRename:
			if value == "" || value == m.snapshot.Status.LogFile {
				return m, nil
			}
			ctrl := m.ctrl
			return m, m.runOp("rename", "log file renamed to "+value, false, func() error {
				return ctrl.RenameLogFile(value)
			})
		}
		return m, nil

	case key.Matches(msg, k.Escape):
		if m.prompt == promptSearch {
			m.engine.Clear()
			m.searchErr = nil
			m.view.Touch()
		}
		m.closePrompt()
		return m, nil

	case m.prompt == promptSearch && key.Matches(msg, k.ToggleCase):
		m.caseSensitive = !m.caseSensitive
		m.applyQuery(m.input.Value())
		return m, nil

	case m.prompt == promptSearch && key.Matches(msg, k.ToggleRegex):
		m.regex = !m.regex
		m.applyQuery(m.input.Value())
		return m, nil
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if m.prompt == promptSearch && m.input.Value() != before {
		text, sched := m.input.Value(), m.sched
		m.debounced(func() { sched.Send(queryMsg{text: text}) })
	}
	return m, cmd
}

// applyQuery starts a search for text from the top of the viewport.
func (m *Model) applyQuery(text string) {
	if text == "" {
		m.engine.Clear()
		m.searchErr = nil
		m.view.Touch()
		return
	}
	q := search.Query{Pattern: text, CaseSensitive: m.caseSensitive, Regex: m.regex}
	if err := m.engine.OnQueryChanged(q, m.viewport.YOffset+1); err != nil {
		m.searchErr = err
		return
	}
	m.searchErr = nil
	m.lastSelected = search.Result{Line: -1}
}

// trackSelection scrolls to the selected result when it changes.
func (m *Model) trackSelection() {
	r, _, ok := m.engine.Selected()
	if !ok || r == m.lastSelected {
		return
	}
	m.lastSelected = r
	m.syncViewport()
	line := m.engine.ViewLine(r) - 1
	if line < m.viewport.YOffset || line >= m.viewport.YOffset+m.viewport.Height {
		m.follow = false
		m.viewport.SetYOffset(max(line-m.viewport.Height/2, 0))
	}
}

func (m *Model) yankSelection() {
	r, _, ok := m.engine.Selected()
	if !ok {
		m.setFlash("no match selected", true)
		return
	}
	text, ok := m.view.Text(m.engine.ViewLine(r))
	if !ok {
		m.setFlash("selected line was evicted", true)
		return
	}
	if err := m.copy(text); err != nil {
		m.setFlash("copy: "+err.Error(), true)
		return
	}
	m.setFlash("copied line to clipboard", false)
}

func (m *Model) setFlash(text string, isErr bool) {
	m.flash = text
	m.flashErr = isErr
}

// syncViewport redraws the viewport when the view changed since the last draw.
func (m *Model) syncViewport() {
	if !m.ready || m.view == nil {
		return
	}
	if v := m.view.Version(); v != m.rendered {
		base := lipgloss.NewStyle().Foreground(lipgloss.Color(m.theme.Text))
		m.viewport.SetContent(m.view.Render(m.palette, base, m.overlays()))
		m.rendered = v
	}
	if m.view.TakeScroll() && m.follow {
		m.viewport.GotoBottom()
	}
}

// overlays builds search highlight spans keyed by view line.
func (m *Model) overlays() map[int][]pipeline.Span {
	if m.engine == nil || !m.engine.Active() {
		return nil
	}
	_, selected, _ := m.engine.Selected()
	out := make(map[int][]pipeline.Span)
	for i, r := range m.engine.Results() {
		line := m.engine.ViewLine(r)
		if line < 1 {
			continue
		}
		style := styleSearchMatch
		if i == selected {
			style = styleSearchCurrent
		}
		out[line] = append(out[line], pipeline.Span{StyleID: style, Start: r.Column, End: r.Column + r.Length})
	}
	return out
}

// runOp runs a controller call off the update loop.
func (m Model) runOp(op, done string, refresh bool, fn func() error) tea.Cmd {
	return func() tea.Msg {
		err := fn()
		return opResultMsg{op: op, done: done, refresh: refresh && err == nil, err: err}
	}
}

// Messages

type tickMsg time.Time

type snapshotMsg state.Snapshot

type queryMsg struct{ text string }

type opResultMsg struct {
	op      string
	done    string
	refresh bool
	err     error
}

// Commands

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchSnapshotCmd(store *state.Store) tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg(store.Snapshot())
	}
}

// Run starts the Bubble Tea program and returns the final preferences.
func Run(opts Options) (prefs.Prefs, error) {
	m := New(opts)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(m.ctx))
	final, err := p.Run()
	if opts.Scheduler != nil {
		opts.Scheduler.Close()
	}
	if fm, ok := final.(Model); ok {
		m = fm
	}
	if errors.Is(err, tea.ErrProgramKilled) && m.ctx.Err() != nil {
		err = nil
	}
	return m.Prefs(), err
}
