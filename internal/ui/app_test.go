package ui

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/tether/internal/prefs"
	"github.com/five82/tether/internal/search"
	"github.com/five82/tether/internal/state"
)

type fakeController struct {
	mu          sync.Mutex
	connected   []string
	disconnects int
	renamed     []string
	hide        bool
	reloads     int
	connectErr  error
}

func (f *fakeController) Connect(identity string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = append(f.connected, identity)
	return f.connectErr
}

func (f *fakeController) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	return nil
}

func (f *fakeController) RenameLogFile(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.renamed = append(f.renamed, path)
	return nil
}

func (f *fakeController) ApplyHighlightConfig() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reloads++
	return nil
}

func (f *fakeController) SetHideEnabled(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hide = enabled
}

func (f *fakeController) HideEnabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hide
}

type harness struct {
	model  Model
	ctrl   *fakeController
	view   *LineView
	copied []string
}

func newHarness(t *testing.T, lines ...string) *harness {
	t.Helper()
	h := &harness{ctrl: &fakeController{}, view: NewLineView()}
	fill(h.view, lines...)
	engine := search.New(search.Options{Index: h.view, OnChange: h.view.Touch})
	h.model = New(Options{
		Controller: h.ctrl,
		View:       h.view,
		Search:     engine,
		Scheduler:  NewScheduler(),
		Store:      &state.Store{},
		Prefs:      prefs.Prefs{Theme: "Slate", LastConnection: "tcp://127.0.0.1:4000", Follow: true},
		PrefsPath:  filepath.Join(t.TempDir(), "prefs.toml"),
		Copy:       func(s string) error {
			h.copied = append(h.copied, s)
			return nil
		},
	})
	h.send(tea.WindowSizeMsg{Width: 80, Height: 10})
	return h
}

func (h *harness) send(msg tea.Msg) tea.Cmd {
	next, cmd := h.model.Update(msg)
	h.model = next.(Model)
	return cmd
}

func (h *harness) keys(s string) tea.Cmd {
	var cmd tea.Cmd
	for _, r := range s {
		cmd = h.send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return cmd
}

func (h *harness) key(t tea.KeyType) tea.Cmd {
	return h.send(tea.KeyMsg{Type: t})
}

// runOp executes a command and feeds its result back.
func (h *harness) runOp(t *testing.T, cmd tea.Cmd) {
	t.Helper()
	if cmd == nil {
		t.Fatal("expected a command")
	}
	msg := cmd()
	if _, ok := msg.(opResultMsg); !ok {
		t.Fatalf("command returned %T, want opResultMsg", msg)
	}
	h.send(msg)
}

func TestSearchPromptSelectsAndYanks(t *testing.T) {
	h := newHarness(t, "boot", "ERROR disk", "ok", "error net")

	h.keys("/")
	if h.model.prompt != promptSearch {
		t.Fatalf("prompt = %v, want search", h.model.prompt)
	}
	h.keys("error")
	h.key(tea.KeyEnter)

	if h.model.prompt != promptNone {
		t.Fatalf("prompt still open after enter")
	}
	if n := len(h.model.engine.Results()); n != 2 {
		t.Fatalf("results = %d, want 2", n)
	}

	h.keys("n")
	r, idx, _ := h.model.engine.Selected()
	if idx != 1 || h.model.engine.ViewLine(r) != 4 {
		t.Fatalf("selected %d at view line %d, want 1 at 4", idx, h.model.engine.ViewLine(r))
	}

	h.keys("y")
	if len(h.copied) != 1 || h.copied[0] != "error net" {
		t.Fatalf("copied = %q, want [error net]", h.copied)
	}

	h.key(tea.KeyEsc)
	if h.model.engine.Active() {
		t.Fatal("search still active after esc")
	}
}

func TestSearchInvalidRegexReported(t *testing.T) {
	h := newHarness(t, "x")

	h.keys("/")
	h.send(tea.KeyMsg{Type: tea.KeyCtrlR})
	h.keys("(")
	h.key(tea.KeyEnter)

	if h.model.searchErr == nil {
		t.Fatal("expected search error for invalid regex")
	}
	if h.model.engine.Active() {
		t.Fatal("invalid query left the engine active")
	}
}

func TestDebouncedQueryIgnoredWhenStale(t *testing.T) {
	h := newHarness(t, "alpha", "beta")

	h.keys("/al")
	h.send(queryMsg{text: "a"})
	if h.model.engine.Active() {
		t.Fatal("stale debounced query was applied")
	}
	h.send(queryMsg{text: "al"})
	if !h.model.engine.Active() || h.model.engine.Query().Pattern != "al" {
		t.Fatalf("query = %+v, want al", h.model.engine.Query())
	}
}

func TestConnectPromptUsesLastConnection(t *testing.T) {
	h := newHarness(t)

	h.keys("c")
	if h.model.prompt != promptConnect || h.model.input.Value() != "tcp://127.0.0.1:4000" {
		t.Fatalf("prompt = %v value %q", h.model.prompt, h.model.input.Value())
	}
	h.runOp(t, h.key(tea.KeyEnter))

	if len(h.ctrl.connected) != 1 || h.ctrl.connected[0] != "tcp://127.0.0.1:4000" {
		t.Fatalf("connected = %q", h.ctrl.connected)
	}
	if got := h.model.Prefs().LastConnection; got != "tcp://127.0.0.1:4000" {
		t.Fatalf("Prefs().LastConnection = %q", got)
	}
}

func TestConnectFailureFlashes(t *testing.T) {
	h := newHarness(t)
	h.ctrl.connectErr = errors.New("no such port")

	h.keys("c")
	h.runOp(t, h.key(tea.KeyEnter))

	if !h.model.flashErr || h.model.flash == "" {
		t.Fatalf("flash = %q (err %v), want error message", h.model.flash, h.model.flashErr)
	}
}

func TestSessionKeys(t *testing.T) {
	h := newHarness(t)

	h.runOp(t, h.keys("d"))
	h.runOp(t, h.keys("H"))
	h.runOp(t, h.keys("r"))

	if h.ctrl.disconnects != 1 {
		t.Fatalf("disconnects = %d, want 1", h.ctrl.disconnects)
	}
	if !h.ctrl.hide {
		t.Fatal("hide filter not toggled on")
	}
	if h.ctrl.reloads != 1 {
		t.Fatalf("reloads = %d, want 1", h.ctrl.reloads)
	}
}

func TestRenameNeedsSessionLog(t *testing.T) {
	h := newHarness(t)

	if cmd := h.keys("R"); cmd != nil {
		t.Fatal("rename prompt opened without a session log")
	}
	h.model.snapshot.Status.LogFile = "/tmp/a.log"
	h.keys("R")
	h.model.input.SetValue("/tmp/b.log")
	h.runOp(t, h.key(tea.KeyEnter))
	if len(h.ctrl.renamed) != 1 || h.ctrl.renamed[0] != "/tmp/b.log" {
		t.Fatalf("renamed = %q", h.ctrl.renamed)
	}
}

func TestFollowToggleAndThemeCycle(t *testing.T) {
	h := newHarness(t)

	h.keys(" ")
	if h.model.follow {
		t.Fatal("follow still on after space")
	}
	h.keys("T")
	if h.model.theme.Name != "Nightfox" {
		t.Fatalf("theme = %q, want Nightfox after Slate", h.model.theme.Name)
	}
	saved, err := prefs.Load(h.model.prefsPath)
	if err != nil {
		t.Fatalf("prefs.Load error = %v", err)
	}
	if saved.Theme != "Nightfox" || saved.Follow {
		t.Fatalf("saved prefs = %+v", saved)
	}
}

func TestBatchRunsPostedWork(t *testing.T) {
	h := newHarness(t)
	ran := false
	cmd := h.send(batchMsg{execMsg(func() {
		ran = true
		h.view.InsertLine("late")
	})})

	if !ran {
		t.Fatal("posted work did not run")
	}
	if cmd == nil {
		t.Fatal("batch did not re-arm the scheduler")
	}
	if h.model.rendered != h.view.Version() {
		t.Fatalf("viewport not redrawn: rendered %d, version %d", h.model.rendered, h.view.Version())
	}
}
