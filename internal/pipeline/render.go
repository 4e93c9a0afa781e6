package pipeline

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultRenderInterval is the render tick period.
const DefaultRenderInterval = 100 * time.Millisecond

// RenderOptions configure a RenderStage.
type RenderOptions struct {
	Capacity int
	Interval time.Duration
	// Executor runs each tick on the scheduler thread. Nil runs ticks inline
	// on the ticker goroutine.
	Executor Executor
	Logger   *zap.SugaredLogger
}

type renderItem struct {
	inst  RenderInstruction
	batch *reloadBatch
}

type reloadBatch struct {
	lines   []RenderInstruction
	applied chan struct{}
}

// RenderStage applies render instructions to a Display once per tick.
type RenderStage struct {
	display  Display
	capacity int
	interval time.Duration
	exec     Executor
	log      *zap.SugaredLogger

	queue    *Queue[renderItem]
	observer atomic.Pointer[ViewObserver]
	active   atomic.Bool
	paused   atomic.Bool

	lifeMu sync.Mutex
	quit   chan struct{}
	done   chan struct{}

	waitMu  sync.Mutex
	waiters []chan struct{}

	// tickMu serializes ticks; the fields below are owned by the tick.
	tickMu  sync.Mutex
	lastID  LineID
	hasLast bool
	lastAbs int
}

// NewRenderStage builds a stage drawing on display.
func NewRenderStage(display Display, opts RenderOptions) *RenderStage {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	capacity := opts.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultRenderInterval
	}
	exec := opts.Executor
	if exec == nil {
		exec = Inline
	}
	return &RenderStage{
		display:  display,
		capacity: capacity,
		interval: interval,
		exec:     exec,
		log:      log,
		queue:    NewQueue[renderItem](0),
	}
}

// SetObserver registers the view observer. Call before Start.
func (r *RenderStage) SetObserver(o ViewObserver) {
	if o == nil {
		r.observer.Store(nil)
		return
	}
	r.observer.Store(&o)
}

// Push enqueues one instruction.
func (r *RenderStage) Push(inst RenderInstruction) {
	r.queue.Put(renderItem{inst: inst}, nil)
}

// PushReload enqueues a batch that replaces the whole view. The returned
// channel closes once the batch has been applied.
func (r *RenderStage) PushReload(lines []RenderInstruction) <-chan struct{} {
	batch := &reloadBatch{lines: lines, applied: make(chan struct{})}
	r.queue.Put(renderItem{batch: batch}, nil)
	return batch.applied
}

// AwaitIdle blocks until a tick has drained the queue. It returns true at once
// when the stage is stopped and false if quit closes first.
func (r *RenderStage) AwaitIdle(quit <-chan struct{}) bool {
	ch := make(chan struct{})
	r.waitMu.Lock()
	if !r.active.Load() {
		r.waitMu.Unlock()
		return true
	}
	r.waiters = append(r.waiters, ch)
	r.waitMu.Unlock()

	select {
	case <-ch:
		return true
	case <-quit:
		return false
	}
}

// Start begins ticking.
func (r *RenderStage) Start() error {
	r.lifeMu.Lock()
	defer r.lifeMu.Unlock()
	if r.done != nil {
		r.log.Warnw("start ignored", "stage", "render", "error", ErrAlreadyStarted)
		return ErrAlreadyStarted
	}
	r.quit = make(chan struct{})
	r.done = make(chan struct{})
	r.active.Store(true)
	go r.run(r.quit, r.done)
	r.log.Debugw("stage started", "stage", "render")
	return nil
}

// Stop cancels the ticker and waits for a tick in flight to finish.
func (r *RenderStage) Stop() error {
	r.lifeMu.Lock()
	defer r.lifeMu.Unlock()
	if r.done == nil {
		r.log.Warnw("stop ignored", "stage", "render", "error", ErrNotStarted)
		return ErrNotStarted
	}
	r.waitMu.Lock()
	r.active.Store(false)
	r.waitMu.Unlock()
	close(r.quit)
	<-r.done
	r.quit, r.done = nil, nil

	r.tickMu.Lock()
	r.tickMu.Unlock()
	r.releaseWaiters()
	r.log.Debugw("stage stopped", "stage", "render")
	return nil
}

// Pause suspends draining until Resume.
func (r *RenderStage) Pause() { r.paused.Store(true) }

// Resume re-enables draining.
func (r *RenderStage) Resume() { r.paused.Store(false) }

// Paused reports whether draining is suspended.
func (r *RenderStage) Paused() bool { return r.paused.Load() }

// Pending reports queued instructions.
func (r *RenderStage) Pending() int { return r.queue.Len() }

// LastAbsolute returns the absolute number of the newest rendered line.
func (r *RenderStage) LastAbsolute() int {
	r.tickMu.Lock()
	defer r.tickMu.Unlock()
	return r.lastAbs
}

func (r *RenderStage) run(quit, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-quit:
			return
		case <-ticker.C:
			r.exec(r.Tick)
		}
	}
}

// Tick drains queued instructions onto the display. It is a no-op while the
// stage is stopped or paused.
func (r *RenderStage) Tick() {
	r.tickMu.Lock()
	defer r.tickMu.Unlock()
	if !r.active.Load() || r.paused.Load() {
		return
	}

	var observer ViewObserver
	if p := r.observer.Load(); p != nil {
		observer = *p
	}

	added, evicted := 0, 0
	changed := false
	for !r.paused.Load() {
		item, ok := r.queue.TryGet()
		if !ok {
			break
		}
		if item.batch != nil {
			if observer != nil && (added > 0 || evicted > 0) {
				observer.OnLinesAdded(added, evicted, r.lastAbs)
			}
			added, evicted = 0, 0
			r.applyReload(item.batch)
			r.queue.Done()
			changed = true
			if observer != nil {
				observer.OnViewReset(r.lastAbs)
			}
			break
		}
		a, e := r.apply(item.inst)
		added += a
		evicted += e
		changed = true
		r.queue.Done()
	}

	if observer != nil && (added > 0 || evicted > 0) {
		observer.OnLinesAdded(added, evicted, r.lastAbs)
	}
	if changed {
		r.display.ScrollToEnd()
	}
	if r.queue.Len() == 0 {
		r.releaseWaiters()
	}
}

func (r *RenderStage) apply(inst RenderInstruction) (added, evicted int) {
	if inst.ReplacesLastLine && r.hasLast && r.display.LineCount() > 0 {
		r.display.ReplaceLine(r.lastID, inst.Text)
		r.style(r.lastID, inst)
		return 0, 0
	}
	id := r.display.InsertLine(inst.Text)
	r.lastID = id
	r.hasLast = true
	r.lastAbs++
	r.style(id, inst)
	if r.display.LineCount() > r.capacity {
		r.display.EvictOldest()
		evicted = 1
	}
	return 1, evicted
}

func (r *RenderStage) style(id LineID, inst RenderInstruction) {
	for _, span := range inst.Spans {
		start, end := clampSpan(span.Start, span.End, len(inst.Text))
		if start >= end {
			continue
		}
		r.display.ApplyStyle(id, span.StyleID, start, end)
	}
}

func (r *RenderStage) applyReload(batch *reloadBatch) {
	r.display.Clear()
	r.hasLast = false
	for _, inst := range batch.lines {
		r.apply(inst)
	}
	close(batch.applied)
}

func (r *RenderStage) releaseWaiters() {
	r.waitMu.Lock()
	waiters := r.waiters
	r.waiters = nil
	r.waitMu.Unlock()
	for _, ch := range waiters {
		close(ch)
	}
}

func clampSpan(start, end, n int) (int, int) {
	if start < 0 {
		start = 0
	}
	if end > n {
		end = n
	}
	return start, end
}
