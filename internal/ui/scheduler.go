package ui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

type execMsg func()

type batchMsg []tea.Msg

// Scheduler funnels work from other goroutines onto the bubbletea update
// loop. Post satisfies pipeline.Executor and never blocks.
type Scheduler struct {
	mu      sync.Mutex
	pending []tea.Msg
	wake    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// NewScheduler returns an open scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Post runs fn on the update loop.
func (s *Scheduler) Post(fn func()) {
	s.Send(execMsg(fn))
}

// Send delivers msg to the update loop. Messages sent after Close are dropped.
func (s *Scheduler) Send(msg tea.Msg) {
	select {
	case <-s.done:
		return
	default:
	}
	s.mu.Lock()
	s.pending = append(s.pending, msg)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Close stops delivery.
func (s *Scheduler) Close() {
	s.once.Do(func() { close(s.done) })
}

// wait blocks until work is queued and returns it as one batch.
func (s *Scheduler) wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-s.wake:
		case <-s.done:
			return nil
		}
		s.mu.Lock()
		msgs := s.pending
		s.pending = nil
		s.mu.Unlock()
		return batchMsg(msgs)
	}
}
