package pipeline

import (
	"fmt"
	"testing"
	"time"
)

// newManualRender returns a started stage whose ticker never fires, so tests
// drive it with Tick.
func newManualRender(t *testing.T, d Display, capacity int) *RenderStage {
	t.Helper()
	r := NewRenderStage(d, RenderOptions{Capacity: capacity, Interval: time.Hour})
	if err := r.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = r.Stop() })
	return r
}

func TestRenderEvictsOverCapacity(t *testing.T) {
	d := &fakeDisplay{}
	obs := &fakeObserver{}
	r := newManualRender(t, d, 3)
	r.SetObserver(obs)

	for i := 1; i <= 5; i++ {
		r.Push(RenderInstruction{Text: fmt.Sprintf("line %d", i)})
	}
	r.Tick()

	got := d.texts()
	want := []string{"line 3", "line 4", "line 5"}
	if len(got) != len(want) {
		t.Fatalf("view = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("view[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if len(obs.calls) != 1 {
		t.Fatalf("observer calls = %d, want 1", len(obs.calls))
	}
	if c := obs.calls[0]; c.added != 5 || c.evicted != 2 || c.last != 5 {
		t.Fatalf("OnLinesAdded(%d, %d, %d), want (5, 2, 5)", c.added, c.evicted, c.last)
	}
	if d.scrolls != 1 {
		t.Fatalf("ScrollToEnd calls = %d, want 1", d.scrolls)
	}
}

func TestRenderReplacesLastLine(t *testing.T) {
	d := &fakeDisplay{}
	r := newManualRender(t, d, 10)

	r.Push(RenderInstruction{Text: "visible"})
	r.Push(RenderInstruction{Text: "1 line hidden", Spans: []Span{{StyleID: StyleHidden, Start: 0, End: 13}}})
	r.Push(RenderInstruction{Text: "2 lines hidden", ReplacesLastLine: true, Spans: []Span{{StyleID: StyleHidden, Start: 0, End: 14}}})
	r.Tick()

	lines := d.snapshot()
	if len(lines) != 2 {
		t.Fatalf("view lines = %d, want 2", len(lines))
	}
	if lines[1].text != "2 lines hidden" {
		t.Fatalf("last line = %q, want %q", lines[1].text, "2 lines hidden")
	}
	if len(lines[1].spans) != 1 || lines[1].spans[0].End != 14 {
		t.Fatalf("last line spans = %v, want one span ending at 14", lines[1].spans)
	}
	if got := r.LastAbsolute(); got != 2 {
		t.Fatalf("LastAbsolute() = %d, want 2", got)
	}
}

func TestRenderClampsSpans(t *testing.T) {
	d := &fakeDisplay{}
	r := newManualRender(t, d, 10)
	r.Push(RenderInstruction{Text: "abc", Spans: []Span{{StyleID: "x", Start: -2, End: 99}, {StyleID: "y", Start: 2, End: 2}}})
	r.Tick()

	spans := d.snapshot()[0].spans
	if len(spans) != 1 || spans[0] != (Span{StyleID: "x", Start: 0, End: 3}) {
		t.Fatalf("spans = %v, want [{x 0 3}]", spans)
	}
}

func TestRenderPauseHoldsInstructions(t *testing.T) {
	d := &fakeDisplay{}
	r := newManualRender(t, d, 10)
	r.Pause()
	r.Push(RenderInstruction{Text: "held"})
	r.Tick()
	if d.LineCount() != 0 {
		t.Fatalf("LineCount() while paused = %d, want 0", d.LineCount())
	}
	r.Resume()
	r.Tick()
	if d.LineCount() != 1 {
		t.Fatalf("LineCount() after resume = %d, want 1", d.LineCount())
	}
}

func TestRenderReloadRestartsAboveMaximum(t *testing.T) {
	d := &fakeDisplay{}
	obs := &fakeObserver{}
	r := newManualRender(t, d, 10)
	r.SetObserver(obs)

	r.Push(RenderInstruction{Text: "a"})
	r.Push(RenderInstruction{Text: "b"})
	r.Tick()

	applied := r.PushReload([]RenderInstruction{{Text: "a"}, {Text: "b"}, {Text: "c"}})
	r.Push(RenderInstruction{Text: "after"})
	r.Tick()

	select {
	case <-applied:
	default:
		t.Fatalf("reload batch not applied")
	}
	if got := d.texts(); len(got) != 3 || got[2] != "c" {
		t.Fatalf("view after reload = %v, want [a b c]", got)
	}
	if d.clears != 1 {
		t.Fatalf("Clear calls = %d, want 1", d.clears)
	}
	last := obs.calls[len(obs.calls)-1]
	if !last.reset || last.last != 5 {
		t.Fatalf("last observer call = %+v, want reset at 5", last)
	}

	// the live line queued behind the batch lands on the next tick
	r.Tick()
	if got := d.texts(); len(got) != 4 || got[3] != "after" {
		t.Fatalf("view = %v, want trailing %q", got, "after")
	}
	if got := r.LastAbsolute(); got != 6 {
		t.Fatalf("LastAbsolute() = %d, want 6", got)
	}
}

func TestRenderAwaitIdle(t *testing.T) {
	d := &fakeDisplay{}
	r := newManualRender(t, d, 10)
	r.Push(RenderInstruction{Text: "pending"})

	idle := make(chan bool)
	go func() { idle <- r.AwaitIdle(nil) }()

	waitFor(t, "waiter registered", func() bool {
		r.waitMu.Lock()
		defer r.waitMu.Unlock()
		return len(r.waiters) == 1
	})
	r.Tick()
	select {
	case ok := <-idle:
		if !ok {
			t.Fatalf("AwaitIdle() = false, want true")
		}
	case <-time.After(time.Second):
		t.Fatalf("AwaitIdle did not return after an idle tick")
	}
}

func TestRenderAwaitIdleWhenStopped(t *testing.T) {
	r := NewRenderStage(&fakeDisplay{}, RenderOptions{})
	if !r.AwaitIdle(nil) {
		t.Fatalf("AwaitIdle() on stopped stage = false, want true")
	}
	if err := r.Stop(); err != ErrNotStarted {
		t.Fatalf("Stop() = %v, want %v", err, ErrNotStarted)
	}
}

func TestRenderTicksThroughExecutor(t *testing.T) {
	d := &fakeDisplay{}
	calls := make(chan struct{}, 100)
	r := NewRenderStage(d, RenderOptions{
		Interval: 2 * time.Millisecond,
		Executor: func(fn func()) {
			select {
			case calls <- struct{}{}:
			default:
			}
			fn()
		},
	})
	if err := r.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	r.Push(RenderInstruction{Text: "tick"})
	waitFor(t, "line rendered", func() bool { return d.LineCount() == 1 })
	if err := r.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if len(calls) == 0 {
		t.Fatalf("executor never called")
	}
}
