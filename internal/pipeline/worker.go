package pipeline

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultPollInterval bounds how long a worker waits on its queue before
// checking for a stop request.
const DefaultPollInterval = 50 * time.Millisecond

// worker runs one stage loop on its own goroutine. The loop must return once
// quit is closed.
type worker struct {
	name string
	log  *zap.SugaredLogger

	mu   sync.Mutex
	quit chan struct{}
	done chan struct{}
}

func (w *worker) start(loop func(quit <-chan struct{})) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done != nil {
		w.log.Warnw("start ignored", "stage", w.name, "error", ErrAlreadyStarted)
		return ErrAlreadyStarted
	}
	quit := make(chan struct{})
	done := make(chan struct{})
	w.quit, w.done = quit, done
	go func() {
		defer close(done)
		loop(quit)
	}()
	w.log.Debugw("stage started", "stage", w.name)
	return nil
}

// stop signals the loop and waits for it to return. beforeQuit runs while the
// loop is still live, which lets callers drain its input first.
func (w *worker) stop(beforeQuit func()) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done == nil {
		w.log.Warnw("stop ignored", "stage", w.name, "error", ErrNotStarted)
		return ErrNotStarted
	}
	if beforeQuit != nil {
		select {
		case <-w.done:
		default:
			beforeQuit()
		}
	}
	close(w.quit)
	<-w.done
	w.quit, w.done = nil, nil
	w.log.Debugw("stage stopped", "stage", w.name)
	return nil
}

// exited returns a channel closed when the current loop returns, or nil when
// the worker is not running.
func (w *worker) exited() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.done
}

func (w *worker) running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.done != nil
}

func stopped(quit <-chan struct{}) bool {
	select {
	case <-quit:
		return true
	default:
		return false
	}
}
