package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// DefaultFailureGrace delays a forced disconnect raised while still connecting
// so the connect sequence can finish first.
const DefaultFailureGrace = 250 * time.Millisecond

// Options configure a Supervisor and the stages it builds.
type Options struct {
	Source   Source
	Display  Display
	Executor Executor
	Rules    RuleProvider
	Logger   *zap.SugaredLogger

	Capacity       int
	RenderInterval time.Duration
	PollInterval   time.Duration
	FormatCapacity int

	LogDir       string
	LogPrefix    string
	LogLayout    string
	LogExtension string

	FailureGrace time.Duration
	Now          func() time.Time
	// OnStatus receives every published status.
	OnStatus func(Status)
	// OnClose runs at the end of Shutdown.
	OnClose func()
}

// Status is the supervisor state published to observers.
type Status struct {
	State    State
	Identity string
	LogFile  string
	Lines    int64
	Bytes    int64
	Err      error
}

// Supervisor owns the stages and the connection state machine.
type Supervisor struct {
	opts Options
	log  *zap.SugaredLogger

	render    *RenderStage
	highlight *HighlightStage
	persist   *PersistenceStage
	format    *FormatStage
	ingest    *IngestStage

	// opMu serializes connect, disconnect and rename.
	opMu sync.Mutex

	mu       sync.Mutex
	state    State
	session  int
	identity string
	lastLog  string
	lastErr  error

	failures sync.WaitGroup
}

// New builds every stage in dependency order.
func New(opts Options) *Supervisor {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.FailureGrace <= 0 {
		opts.FailureGrace = DefaultFailureGrace
	}
	s := &Supervisor{opts: opts, log: opts.Logger}

	s.render = NewRenderStage(opts.Display, RenderOptions{
		Capacity: opts.Capacity,
		Interval: opts.RenderInterval,
		Executor: opts.Executor,
		Logger:   opts.Logger.Named("render"),
	})
	s.highlight = NewHighlightStage(s.render, HighlightOptions{
		Capacity:     opts.Capacity,
		PollInterval: opts.PollInterval,
		Rules:        opts.Rules,
		Logger:       opts.Logger.Named("highlight"),
	})
	s.persist = NewPersistenceStage(PersistOptions{
		Dir:          opts.LogDir,
		Prefix:       opts.LogPrefix,
		Layout:       opts.LogLayout,
		Extension:    opts.LogExtension,
		PollInterval: opts.PollInterval,
		Now:          opts.Now,
		OnError:      s.fail,
		Logger:       opts.Logger.Named("persist"),
	})
	s.format = NewFormatStage(FormatOptions{
		Capacity:     opts.FormatCapacity,
		PollInterval: opts.PollInterval,
		Identity:     s.Identity,
		Logger:       opts.Logger.Named("format"),
	}, s.highlight, s.persist)
	s.ingest = NewIngestStage(opts.Source, s.format, IngestOptions{
		PollInterval: opts.PollInterval,
		OnConnected:  s.connected,
		OnError:      s.fail,
		Logger:       opts.Logger.Named("ingest"),
	})
	return s
}

// Render returns the render stage.
func (s *Supervisor) Render() *RenderStage { return s.render }

// Highlight returns the highlight stage.
func (s *Supervisor) Highlight() *HighlightStage { return s.highlight }

// Start enables the stages that live for the whole application.
func (s *Supervisor) Start() error {
	if err := s.highlight.Start(); err != nil {
		return fmt.Errorf("start highlight: %w", err)
	}
	if err := s.render.Start(); err != nil {
		_ = s.highlight.Stop(false)
		return fmt.Errorf("start render: %w", err)
	}
	s.publish()
	return nil
}

// Connect opens a session on identity.
func (s *Supervisor) Connect(identity string) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.state != StateDisconnected {
		state := s.state
		s.mu.Unlock()
		s.log.Warnw("connect ignored", "state", state, "identity", identity)
		return fmt.Errorf("connect %s: already %s", identity, state)
	}
	s.state = StateConnecting
	s.session++
	s.identity = identity
	s.lastErr = nil
	s.mu.Unlock()
	s.publish()
	s.log.Infow("connecting", "identity", identity)

	if err := s.persist.Start(); err != nil {
		s.abortConnect(err)
		return err
	}
	if err := s.format.Start(); err != nil {
		_, _ = s.persist.Stop(false)
		s.abortConnect(err)
		return err
	}
	if err := s.ingest.Start(identity); err != nil {
		_ = s.format.Stop(false)
		_, _ = s.persist.Stop(false)
		s.abortConnect(err)
		return err
	}
	return nil
}

func (s *Supervisor) abortConnect(err error) {
	s.log.Errorw("connect failed", "error", err)
	s.mu.Lock()
	s.state = StateDisconnected
	s.lastErr = err
	s.mu.Unlock()
	s.publish()
}

// Disconnect ends the session, flushing every line read so far to disk.
func (s *Supervisor) Disconnect() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.disconnectLocked()
}

func (s *Supervisor) disconnectLocked() error {
	s.mu.Lock()
	prior := s.state
	if prior == StateDisconnected || prior == StateDisconnecting {
		s.mu.Unlock()
		s.log.Debugw("disconnect ignored", "state", prior)
		return nil
	}
	s.state = StateDisconnecting
	s.mu.Unlock()
	s.publish()

	var errs []error
	if err := s.ingest.Stop(); err != nil && !errors.Is(err, ErrNotStarted) {
		errs = append(errs, err)
	}
	if err := s.format.Stop(true); err != nil && !errors.Is(err, ErrNotStarted) {
		errs = append(errs, err)
	}
	report, err := s.persist.Stop(true)
	if err != nil && !errors.Is(err, ErrNotStarted) {
		errs = append(errs, err)
	}
	s.log.Infow("log file closed",
		"path", report.Path,
		"lines", report.Lines,
		"size", humanize.Bytes(uint64(report.Bytes)))

	if prior == StateConnected {
		s.highlight.Push(DisconnectLine(s.opts.Now(), report.Path))
	}

	s.mu.Lock()
	s.state = StateDisconnected
	if report.Path != "" {
		s.lastLog = report.Path
	}
	s.mu.Unlock()
	s.publish()
	return errors.Join(errs...)
}

func (s *Supervisor) connected(identity string) {
	s.mu.Lock()
	if s.state != StateConnecting {
		s.mu.Unlock()
		return
	}
	s.state = StateConnected
	s.identity = identity
	s.mu.Unlock()
	s.log.Infow("connected", "identity", identity)
	s.publish()
}

// fail records a session-ending error and disconnects from a separate
// goroutine so the reporting stage is never joined from its own worker.
func (s *Supervisor) fail(err error) {
	s.mu.Lock()
	s.lastErr = err
	session := s.session
	s.mu.Unlock()
	s.log.Errorw("session failed", "error", err)
	s.publish()

	s.failures.Add(1)
	go func() {
		defer s.failures.Done()
		if s.State() == StateConnecting {
			time.Sleep(s.opts.FailureGrace)
		}
		s.opMu.Lock()
		defer s.opMu.Unlock()
		s.mu.Lock()
		current := s.session
		s.mu.Unlock()
		if current != session {
			return
		}
		if derr := s.disconnectLocked(); derr != nil {
			s.log.Warnw("forced disconnect", "error", derr)
		}
	}()
}

// ApplyHighlightConfig restarts the highlight stage so it rereads its rules,
// then re-renders the buffer.
func (s *Supervisor) ApplyHighlightConfig() error {
	if err := s.highlight.Stop(true); err != nil && !errors.Is(err, ErrNotStarted) {
		return fmt.Errorf("stop highlight: %w", err)
	}
	if err := s.highlight.Start(); err != nil {
		return fmt.Errorf("start highlight: %w", err)
	}
	s.highlight.Reload()
	return nil
}

// SetHideEnabled toggles the hide filter and re-renders the buffer.
func (s *Supervisor) SetHideEnabled(enabled bool) {
	s.highlight.SetHideEnabled(enabled)
	s.highlight.Reload()
}

// HideEnabled reports whether the hide filter is on.
func (s *Supervisor) HideEnabled() bool {
	return s.highlight.HideEnabled()
}

// Reload re-renders the buffer.
func (s *Supervisor) Reload() {
	s.highlight.Reload()
}

// RenameLogFile moves the last session file to newPath and rewrites references
// to it in the buffer.
func (s *Supervisor) RenameLogFile(newPath string) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	oldPath := s.lastLog
	state := s.state
	s.mu.Unlock()
	if oldPath == "" {
		return errors.New("rename log file: no session log")
	}
	if state != StateDisconnected && oldPath == s.persist.Path() {
		return fmt.Errorf("rename log file: %s is in use", oldPath)
	}
	if err := os.MkdirAll(filepath.Dir(newPath), 0o755); err != nil {
		return &PersistenceError{Path: newPath, Op: "create dir", Err: err}
	}
	if err := os.Rename(oldPath, newPath); err != nil {
		return &PersistenceError{Path: oldPath, Op: "rename", Err: err}
	}
	n := s.highlight.ReplaceLineBufferString(oldPath, newPath, true)
	s.log.Infow("log file renamed", "from", oldPath, "to", newPath, "references", n)

	s.mu.Lock()
	s.lastLog = newPath
	s.mu.Unlock()
	s.highlight.Reload()
	s.publish()
	return nil
}

// Drain waits until every line read so far has reached the display. It
// returns false if quit closes first.
func (s *Supervisor) Drain(quit <-chan struct{}) bool {
	return s.highlight.Sync(quit) && s.render.AwaitIdle(quit)
}

// Shutdown disconnects and stops the remaining stages.
func (s *Supervisor) Shutdown() {
	if err := s.Disconnect(); err != nil {
		s.log.Warnw("disconnect on shutdown", "error", err)
	}
	s.failures.Wait()
	_ = s.highlight.Stop(false)
	_ = s.render.Stop()
	s.log.Infow("pipeline shut down")
	if s.opts.OnClose != nil {
		s.opts.OnClose()
	}
}

// State returns the current connection state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Identity returns the identity of the current or last session.
func (s *Supervisor) Identity() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// LastLogFile returns the most recently closed session file.
func (s *Supervisor) LastLogFile() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastLog
}

// Status returns a snapshot including live persistence counters.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	st := Status{State: s.state, Identity: s.identity, LogFile: s.lastLog, Err: s.lastErr}
	s.mu.Unlock()
	if st.State != StateDisconnected {
		st.LogFile = s.persist.Path()
	}
	st.Lines = s.persist.Lines()
	st.Bytes = s.persist.Bytes()
	return st
}

func (s *Supervisor) publish() {
	if s.opts.OnStatus != nil {
		s.opts.OnStatus(s.Status())
	}
}
