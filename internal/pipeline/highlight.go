package pipeline

import (
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// HighlightOptions configure a HighlightStage.
type HighlightOptions struct {
	Capacity     int
	PollInterval time.Duration
	Rules        RuleProvider
	Logger       *zap.SugaredLogger
}

// renderer is the part of RenderStage the highlight stage drives.
type renderer interface {
	Push(inst RenderInstruction)
	PushReload(lines []RenderInstruction) <-chan struct{}
	AwaitIdle(quit <-chan struct{}) bool
}

type highlightItem struct {
	line    FormattedLine
	control func(quit <-chan struct{})
}

// HighlightStage owns the LineBuffer and turns lines into render instructions.
type HighlightStage struct {
	buffer *LineBuffer
	render renderer
	rules  RuleProvider
	poll   time.Duration
	log    *zap.SugaredLogger
	in     *Queue[highlightItem]
	w      worker

	mu        sync.RWMutex
	set       RuleSet
	reloading atomic.Bool

	// worker-owned run of consecutive hidden lines
	hidden int
}

// NewHighlightStage builds a stage feeding render.
func NewHighlightStage(render renderer, opts HighlightOptions) *HighlightStage {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	rules := opts.Rules
	if rules == nil {
		rules = func() RuleSet { return RuleSet{} }
	}
	return &HighlightStage{
		buffer: NewLineBuffer(opts.Capacity),
		render: render,
		rules:  rules,
		poll:   poll,
		log:    log,
		in:     NewQueue[highlightItem](0),
		w:      worker{name: "highlight", log: log},
	}
}

// Push enqueues a line for highlighting.
func (h *HighlightStage) Push(line FormattedLine) {
	h.in.Put(highlightItem{line: line}, nil)
}

// Start reads the rule set and begins processing.
func (h *HighlightStage) Start() error {
	if h.w.running() {
		h.log.Warnw("start ignored", "stage", "highlight", "error", ErrAlreadyStarted)
		return ErrAlreadyStarted
	}
	set := h.rules()
	h.mu.Lock()
	h.set = set
	h.mu.Unlock()
	h.log.Debugw("highlight rules loaded", "rules", len(set.Rules), "hide", len(set.Hide), "hide_enabled", set.HideEnabled)
	return h.w.start(h.loop)
}

// Stop halts the worker. With drain set every queued line is processed first.
func (h *HighlightStage) Stop(drain bool) error {
	var before func()
	if drain {
		before = h.in.Join
	}
	return h.w.stop(before)
}

// Reload asks the worker to re-render the whole buffer. It returns at once.
func (h *HighlightStage) Reload() {
	h.in.Put(highlightItem{control: h.reload}, nil)
}

// SetHideEnabled toggles the hide filter; callers follow with Reload.
func (h *HighlightStage) SetHideEnabled(enabled bool) {
	h.mu.Lock()
	h.set.HideEnabled = enabled
	h.mu.Unlock()
}

// HideEnabled reports whether hidden lines are collapsed.
func (h *HighlightStage) HideEnabled() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.set.HideEnabled
}

// Reloading reports whether a reload is in progress.
func (h *HighlightStage) Reloading() bool { return h.reloading.Load() }

// Buffer exposes the line buffer for inspection.
func (h *HighlightStage) Buffer() *LineBuffer { return h.buffer }

// ReplaceLineBufferString rewrites old to new in buffered lines and returns the
// number of replacements. While running it is serialized with line appends.
// If the worker stops before reaching the request, it is applied directly.
func (h *HighlightStage) ReplaceLineBufferString(old, new string, all bool) int {
	done := h.w.exited()
	if done == nil {
		return h.buffer.Replace(old, new, all)
	}
	var claimed atomic.Bool
	result := make(chan int, 1)
	queued := h.in.Put(highlightItem{control: func(<-chan struct{}) {
		if claimed.CompareAndSwap(false, true) {
			result <- h.buffer.Replace(old, new, all)
		}
	}}, done)
	if queued {
		select {
		case n := <-result:
			return n
		case <-done:
		}
	}
	if claimed.CompareAndSwap(false, true) {
		return h.buffer.Replace(old, new, all)
	}
	return <-result
}

// Sync waits until every line pushed before the call has been handed to the
// renderer. It returns true at once when the stage is stopped, true when the
// worker stops while waiting, and false if quit closes first.
func (h *HighlightStage) Sync(quit <-chan struct{}) bool {
	done := h.w.exited()
	if done == nil {
		return true
	}
	reached := make(chan struct{})
	if !h.in.Put(highlightItem{control: func(<-chan struct{}) { close(reached) }}, done) {
		return true
	}
	select {
	case <-reached:
		return true
	case <-done:
		return true
	case <-quit:
		return false
	}
}

func (h *HighlightStage) loop(quit <-chan struct{}) {
	for !stopped(quit) {
		item, ok := h.in.Get(h.poll)
		if !ok {
			continue
		}
		if item.control != nil {
			item.control(quit)
		} else {
			h.handle(item.line)
		}
		h.in.Done()
	}
}

func (h *HighlightStage) handle(line FormattedLine) {
	h.buffer.Append(line)
	h.mu.RLock()
	inst := h.instruction(line, &h.hidden)
	h.mu.RUnlock()
	h.render.Push(inst)
}

func (h *HighlightStage) reload(quit <-chan struct{}) {
	h.reloading.Store(true)
	defer h.reloading.Store(false)

	if !h.render.AwaitIdle(quit) {
		return
	}
	lines := h.buffer.Lines()
	batch := make([]RenderInstruction, 0, len(lines))
	hidden := 0
	h.mu.RLock()
	for _, line := range lines {
		batch = append(batch, h.instruction(line, &hidden))
	}
	h.mu.RUnlock()
	h.hidden = hidden

	applied := h.render.PushReload(batch)
	select {
	case <-applied:
		h.log.Debugw("reload applied", "lines", len(batch))
	case <-quit:
	}
}

// instruction builds the render instruction for line. hidden carries the
// length of the current run of hidden lines. Callers hold h.mu.
func (h *HighlightStage) instruction(line FormattedLine, hidden *int) RenderInstruction {
	text := strings.TrimSuffix(line.Text, "\n")
	markers := markerSpans(text)

	if markers == nil && h.set.HideEnabled && matchesAny(h.set.Hide, text) {
		*hidden++
		note := hiddenNote(*hidden)
		return RenderInstruction{
			Text:             note,
			Spans:            []Span{{StyleID: StyleHidden, Start: 0, End: len(note)}},
			ReplacesLastLine: *hidden > 1,
		}
	}
	*hidden = 0

	var spans []Span
	for _, rule := range h.set.Rules {
		loc := rule.Pattern.FindStringIndex(text)
		if loc == nil || loc[0] == loc[1] {
			continue
		}
		spans = append(spans, Span{StyleID: rule.StyleID, Start: loc[0], End: loc[1]})
	}
	spans = append(spans, markers...)
	return RenderInstruction{Text: text, Spans: spans}
}

func hiddenNote(n int) string {
	if n == 1 {
		return "1 line hidden"
	}
	return strconv.Itoa(n) + " lines hidden"
}
