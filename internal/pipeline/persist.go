package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// PersistOptions configure a PersistenceStage.
type PersistOptions struct {
	Dir          string
	Prefix       string
	Layout       string
	Extension    string
	PollInterval time.Duration
	Now          func() time.Time
	// OnError receives write failures as PersistenceError values.
	OnError func(err error)
	Logger  *zap.SugaredLogger
}

// FileReport summarizes a closed session log.
type FileReport struct {
	Path  string
	Lines int64
	Bytes int64
}

// PersistenceStage appends formatted lines to one file per session.
type PersistenceStage struct {
	opts PersistOptions
	in   *Queue[FormattedLine]
	log  *zap.SugaredLogger
	w    worker

	mu     sync.Mutex
	file   *os.File
	path   string
	failed bool
	lines  atomic.Int64
	bytes  atomic.Int64
}

// NewPersistenceStage builds a stage with the given file naming.
func NewPersistenceStage(opts PersistOptions) *PersistenceStage {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Layout == "" {
		opts.Layout = "2006-01-02_15-04-05"
	}
	if opts.OnError == nil {
		opts.OnError = func(error) {}
	}
	return &PersistenceStage{
		opts: opts,
		in:   NewQueue[FormattedLine](0),
		log:  opts.Logger,
		w:    worker{name: "persist", log: opts.Logger},
	}
}

// Push enqueues a line for writing.
func (p *PersistenceStage) Push(line FormattedLine) {
	p.in.Put(line, nil)
}

// Start opens a new session file for append and resets the counters.
func (p *PersistenceStage) Start() error {
	if p.w.running() {
		p.log.Warnw("start ignored", "stage", "persist", "error", ErrAlreadyStarted)
		return ErrAlreadyStarted
	}
	name := p.opts.Prefix + p.opts.Now().Format(p.opts.Layout) + p.opts.Extension
	path := filepath.Join(p.opts.Dir, name)
	if err := os.MkdirAll(p.opts.Dir, 0o755); err != nil {
		return &PersistenceError{Path: path, Op: "create dir", Err: err}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return &PersistenceError{Path: path, Op: "open", Err: err}
	}

	p.mu.Lock()
	p.file = file
	p.path = path
	p.failed = false
	p.mu.Unlock()
	p.lines.Store(0)
	p.bytes.Store(0)

	if err := p.w.start(p.loop); err != nil {
		_ = file.Close()
		return err
	}
	p.log.Infow("log file open", "path", path)
	return nil
}

// Stop closes the session file. With drain set every queued line is written
// first.
func (p *PersistenceStage) Stop(drain bool) (FileReport, error) {
	var before func()
	if drain {
		before = p.in.Join
	}
	if err := p.w.stop(before); err != nil {
		return FileReport{}, err
	}
	p.in.Reset()

	p.mu.Lock()
	defer p.mu.Unlock()
	report := FileReport{Path: p.path, Lines: p.lines.Load(), Bytes: p.bytes.Load()}
	var err error
	if p.file != nil {
		if cerr := p.file.Close(); cerr != nil {
			err = &PersistenceError{Path: p.path, Op: "close", Err: cerr}
		}
		p.file = nil
	}
	return report, err
}

// Path returns the current or last session file.
func (p *PersistenceStage) Path() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.path
}

// Lines reports lines written this session.
func (p *PersistenceStage) Lines() int64 { return p.lines.Load() }

// Bytes reports bytes written this session.
func (p *PersistenceStage) Bytes() int64 { return p.bytes.Load() }

func (p *PersistenceStage) loop(quit <-chan struct{}) {
	for !stopped(quit) {
		line, ok := p.in.Get(p.opts.PollInterval)
		if !ok {
			continue
		}
		if err := p.write(line); err != nil {
			p.log.Errorw("log write failed", "error", err)
			p.opts.OnError(err)
		}
		p.in.Done()
	}
}

// write appends one line. After the first failure the rest of the session is
// discarded so the worker keeps draining its queue.
func (p *PersistenceStage) write(line FormattedLine) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file == nil || p.failed {
		return nil
	}
	n, err := p.file.WriteString(line.Text)
	p.bytes.Add(int64(n))
	if err != nil {
		p.failed = true
		return &PersistenceError{Path: p.path, Op: "write", Err: err}
	}
	p.lines.Add(1)
	return nil
}

func (r FileReport) String() string {
	return fmt.Sprintf("%s (%d lines, %d bytes)", r.Path, r.Lines, r.Bytes)
}
