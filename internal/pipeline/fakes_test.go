package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeLine struct {
	id    LineID
	text  string
	spans []Span
}

type fakeDisplay struct {
	mu      sync.Mutex
	lines   []fakeLine
	next    LineID
	scrolls int
	clears  int
}

func (d *fakeDisplay) InsertLine(text string) LineID {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.next++
	d.lines = append(d.lines, fakeLine{id: d.next, text: text})
	return d.next
}

func (d *fakeDisplay) ReplaceLine(id LineID, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.lines {
		if d.lines[i].id == id {
			d.lines[i].text = text
			d.lines[i].spans = nil
		}
	}
}

func (d *fakeDisplay) ApplyStyle(id LineID, styleID string, start, end int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.lines {
		if d.lines[i].id == id {
			d.lines[i].spans = append(d.lines[i].spans, Span{StyleID: styleID, Start: start, End: end})
		}
	}
}

func (d *fakeDisplay) EvictOldest() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.lines) > 0 {
		d.lines = d.lines[1:]
	}
}

func (d *fakeDisplay) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lines = nil
	d.clears++
}

func (d *fakeDisplay) ScrollToEnd() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scrolls++
}

func (d *fakeDisplay) LineCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.lines)
}

func (d *fakeDisplay) snapshot() []fakeLine {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]fakeLine, len(d.lines))
	for i, l := range d.lines {
		out[i] = fakeLine{text: l.text, spans: append([]Span(nil), l.spans...)}
	}
	return out
}

func (d *fakeDisplay) texts() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.lines))
	for i, l := range d.lines {
		out[i] = l.text
	}
	return out
}

type observerCall struct {
	reset                 bool
	added, evicted, last int
}

type fakeObserver struct {
	mu    sync.Mutex
	calls []observerCall
}

func (o *fakeObserver) OnLinesAdded(added, evicted, last int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, observerCall{added: added, evicted: evicted, last: last})
}

func (o *fakeObserver) OnViewReset(last int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, observerCall{reset: true, last: last})
}

func (o *fakeObserver) resets() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, c := range o.calls {
		if c.reset {
			n++
		}
	}
	return n
}

// fakeSource hands out a fakeConn fed by a channel of payloads.
type fakeSource struct {
	mu      sync.Mutex
	opened  []string
	openErr error
	records chan []byte
	readErr chan error
}

func newFakeSource() *fakeSource {
	return &fakeSource{records: make(chan []byte, 1024), readErr: make(chan error, 1)}
}

func (s *fakeSource) Open(_ context.Context, identity string) (Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openErr != nil {
		return nil, s.openErr
	}
	s.opened = append(s.opened, identity)
	return &fakeConn{identity: "fake:" + identity, src: s}, nil
}

func (s *fakeSource) send(payloads ...string) {
	for _, p := range payloads {
		s.records <- []byte(p)
	}
}

type fakeConn struct {
	identity string
	src      *fakeSource
	closed   bool
}

func (c *fakeConn) Identity() string { return c.identity }

func (c *fakeConn) ReadRecord(timeout time.Duration) (RawRecord, bool, error) {
	select {
	case p := <-c.src.records:
		return RawRecord{Payload: p, Arrival: time.Now()}, true, nil
	case err := <-c.src.readErr:
		return RawRecord{}, false, err
	case <-time.After(timeout):
		return RawRecord{}, false, nil
	}
}

func (c *fakeConn) Close() error {
	if c.closed {
		return errors.New("closed twice")
	}
	c.closed = true
	return nil
}

type lineCollector struct {
	mu    sync.Mutex
	lines []FormattedLine
}

func (c *lineCollector) Push(line FormattedLine) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, line)
}

func (c *lineCollector) all() []FormattedLine {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]FormattedLine(nil), c.lines...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
