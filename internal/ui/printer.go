package ui

import (
	"bufio"
	"io"
	"sync"

	"github.com/five82/tether/internal/pipeline"
)

// Printer is a Display that writes lines to a plain stream, for runs without
// a terminal. The newest line is held back until another line arrives or the
// render tick ends, so a replacement of it is printed once.
type Printer struct {
	mu      sync.Mutex
	w       *bufio.Writer
	nextID  pipeline.LineID
	pending string
	hasPend bool
	count   int
	err     error
}

// NewPrinter writes to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: bufio.NewWriter(w)}
}

func (p *Printer) InsertLine(text string) pipeline.LineID {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flushPending()
	p.nextID++
	p.pending, p.hasPend = text, true
	p.count++
	return p.nextID
}

// ReplaceLine only affects the held line; printed lines cannot change, so a
// late replacement is printed as a new line.
func (p *Printer) ReplaceLine(id pipeline.LineID, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id == p.nextID {
		p.pending, p.hasPend = text, true
	}
}

func (p *Printer) ApplyStyle(pipeline.LineID, string, int, int) {}

func (p *Printer) EvictOldest() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.count > 0 {
		p.count--
	}
}

func (p *Printer) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.count = 0
	p.pending, p.hasPend = "", false
}

// ScrollToEnd ends a render tick: the held line is printed and output flushed.
func (p *Printer) ScrollToEnd() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flushPending()
	if err := p.w.Flush(); err != nil && p.err == nil {
		p.err = err
	}
}

func (p *Printer) LineCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

// Err returns the first write error.
func (p *Printer) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *Printer) flushPending() {
	if !p.hasPend {
		return
	}
	p.hasPend = false
	if _, err := p.w.WriteString(p.pending + "\n"); err != nil && p.err == nil {
		p.err = err
	}
}
