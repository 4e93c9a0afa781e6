package search

import (
	"regexp"

	"github.com/five82/tether/internal/config"
)

// DefaultChunkSize caps the matches collected per scheduled scan step.
const DefaultChunkSize = 500

// Query is the user's search request.
type Query struct {
	Pattern       string
	CaseSensitive bool
	// Regex treats Pattern as a regular expression rather than literal text.
	Regex bool
}

// Compile builds the matcher for q. Invalid expressions return a
// config.ValidationError.
func (q Query) Compile() (*regexp.Regexp, error) {
	expr := q.Pattern
	if !q.Regex {
		expr = regexp.QuoteMeta(expr)
	}
	if !q.CaseSensitive {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, &config.ValidationError{Field: "search", Value: q.Pattern, Reason: err.Error()}
	}
	return re, nil
}

// Position addresses a byte offset within a 1-indexed view line.
type Position struct {
	Line   int
	Column int
}

// Match is one hit reported by an Index, in view coordinates.
type Match struct {
	Line   int
	Column int
	Length int
}

// Index is the searchable view.
type Index interface {
	LineCount() int
	// Find returns the first match at or after from, on lines up to toLine.
	Find(re *regexp.Regexp, from Position, toLine int) (Match, bool)
}

// Pauser suspends view updates while a scan runs.
type Pauser interface {
	Pause()
	Resume()
}

// Result is a match. Line minus the engine's offset is its current view line.
type Result struct {
	Line   int
	Column int
	Length int
}

// Options configure an Engine.
type Options struct {
	Index  Index
	Pauser Pauser
	// Post schedules fn on the scheduler thread. Nil runs it inline.
	Post      func(fn func())
	ChunkSize int
	// OnChange is called on the scheduler thread after results or the
	// selection change.
	OnChange func()
}

type scan struct {
	gen     int
	viewTop int
	end     int
	wrapped bool
	pos     Position
	head    []Result
}

// Engine tracks results for the active query. All methods run on the
// scheduler thread.
type Engine struct {
	index    Index
	pauser   Pauser
	post     func(func())
	chunk    int
	onChange func()

	query    Query
	re       *regexp.Regexp
	results  []Result
	selected int
	offset   int
	shift    int
	lastAbs  int
	viewTop  int
	gen      int
	scan     *scan
	paused   bool
}

// New returns an idle engine.
func New(opts Options) *Engine {
	post := opts.Post
	if post == nil {
		post = func(fn func()) { fn() }
	}
	chunk := opts.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	onChange := opts.OnChange
	if onChange == nil {
		onChange = func() {}
	}
	return &Engine{
		index:    opts.Index,
		pauser:   opts.Pauser,
		post:     post,
		chunk:    chunk,
		onChange: onChange,
		selected: -1,
	}
}

// OnLinesAdded folds newly rendered lines into the results. last is the
// session-monotonic number of the newest line.
func (e *Engine) OnLinesAdded(added, evicted, last int) {
	e.lastAbs = last
	if e.re == nil {
		return
	}
	e.offset += evicted

	if added > 0 && e.scan == nil {
		rel := last - e.shift
		from := rel - added + 1 - e.offset
		to := rel - e.offset
		if from < 1 {
			from = 1
		}
		if to > e.index.LineCount() {
			to = e.index.LineCount()
		}
		if from <= to {
			e.results = append(e.results, e.collect(Position{Line: from}, to, 0)...)
			if e.selected < 0 && len(e.results) > 0 {
				e.selected = 0
			}
		}
	}

	if evicted > 0 {
		e.dropEvicted()
	}
	e.onChange()
}

func (e *Engine) dropEvicted() {
	dropped := 0
	for dropped < len(e.results) && e.results[dropped].Line-e.offset <= 0 {
		dropped++
	}
	if dropped == 0 {
		return
	}
	e.results = e.results[dropped:]
	e.selected -= dropped
	switch {
	case len(e.results) == 0:
		e.selected = -1
	case e.selected < 0:
		e.selected = 0
	case e.selected >= len(e.results):
		e.selected = len(e.results) - 1
	}
}

// OnViewReset re-runs the active query against a rebuilt view.
func (e *Engine) OnViewReset(last int) {
	e.lastAbs = last
	if e.re == nil {
		return
	}
	e.start(e.viewTop)
}

// OnQueryChanged replaces the query and starts a full scan beginning at the
// 1-indexed view line viewTop. An empty pattern clears the search.
func (e *Engine) OnQueryChanged(q Query, viewTop int) error {
	if q.Pattern == "" {
		e.Clear()
		return nil
	}
	re, err := q.Compile()
	if err != nil {
		return err
	}
	e.query = q
	e.re = re
	e.start(viewTop)
	return nil
}

// Clear cancels any scan and drops the query.
func (e *Engine) Clear() {
	e.gen++
	e.scan = nil
	e.query = Query{}
	e.re = nil
	e.results = nil
	e.selected = -1
	e.offset = 0
	e.resume()
	e.onChange()
}

func (e *Engine) start(viewTop int) {
	e.gen++
	e.results = nil
	e.selected = -1
	e.offset = 0

	count := e.index.LineCount()
	e.shift = e.lastAbs - count
	if viewTop < 1 || viewTop > count {
		viewTop = 1
	}
	e.viewTop = viewTop
	e.scan = &scan{gen: e.gen, viewTop: viewTop, end: count, pos: Position{Line: viewTop}}

	if e.pauser != nil && !e.paused {
		e.pauser.Pause()
		e.paused = true
	}
	gen := e.gen
	e.post(func() { e.step(gen) })
}

// step collects at most one chunk of matches and reschedules itself until
// the view has been covered.
func (e *Engine) step(gen int) {
	s := e.scan
	if s == nil || gen != e.gen {
		return
	}

	limit := s.end
	if s.wrapped {
		limit = s.viewTop - 1
	}
	found := e.collect(s.pos, limit, e.chunk)
	if len(found) > 0 {
		lastHit := found[len(found)-1]
		s.pos = Position{Line: lastHit.Line, Column: lastHit.Column + max(lastHit.Length, 1)}
	}
	if !s.wrapped {
		e.results = append(e.results, found...)
		if e.selected < 0 && len(e.results) > 0 {
			e.selected = 0
		}
	} else {
		s.head = append(s.head, found...)
	}

	if len(found) < e.chunk {
		if !s.wrapped && s.viewTop > 1 {
			s.wrapped = true
			s.pos = Position{Line: 1}
		} else {
			e.finish()
			return
		}
	}
	e.onChange()
	e.post(func() { e.step(gen) })
}

func (e *Engine) finish() {
	s := e.scan
	e.scan = nil
	if len(s.head) > 0 {
		if e.selected >= 0 {
			e.selected += len(s.head)
		}
		e.results = append(s.head, e.results...)
		if e.selected < 0 {
			e.selected = 0
		}
	}
	e.resume()
	e.onChange()
}

func (e *Engine) resume() {
	if e.pauser != nil && e.paused {
		e.pauser.Resume()
	}
	e.paused = false
}

// collect gathers up to limit matches (0 for no limit) from pos through line
// to, converting them to result numbering.
func (e *Engine) collect(pos Position, to, limit int) []Result {
	var out []Result
	for limit == 0 || len(out) < limit {
		m, ok := e.index.Find(e.re, pos, to)
		if !ok {
			break
		}
		if m.Length > 0 {
			out = append(out, Result{Line: m.Line + e.offset, Column: m.Column, Length: m.Length})
		}
		pos = Position{Line: m.Line, Column: m.Column + max(m.Length, 1)}
	}
	return out
}

// SelectNext moves the selection forward, wrapping at the end.
func (e *Engine) SelectNext() {
	if len(e.results) == 0 {
		return
	}
	e.selected = (e.selected + 1) % len(e.results)
	e.onChange()
}

// SelectPrior moves the selection backward, wrapping at the start.
func (e *Engine) SelectPrior() {
	n := len(e.results)
	if n == 0 {
		return
	}
	if e.selected < 0 {
		e.selected = n - 1
	} else {
		e.selected = (e.selected - 1 + n) % n
	}
	e.onChange()
}

// Selected returns the selected result and its index.
func (e *Engine) Selected() (Result, int, bool) {
	if e.selected < 0 || e.selected >= len(e.results) {
		return Result{}, -1, false
	}
	return e.results[e.selected], e.selected, true
}

// Results returns a copy of the current results.
func (e *Engine) Results() []Result {
	return append([]Result(nil), e.results...)
}

// ViewLine converts a result to its current 1-indexed view line.
func (e *Engine) ViewLine(r Result) int {
	return r.Line - e.offset
}

// Offset reports lines evicted since the query started.
func (e *Engine) Offset() int { return e.offset }

// Query returns the active query.
func (e *Engine) Query() Query { return e.query }

// Active reports whether a query is set.
func (e *Engine) Active() bool { return e.re != nil }

// Scanning reports whether a full scan is in flight.
func (e *Engine) Scanning() bool { return e.scan != nil }

// Matcher returns the compiled active query, or nil.
func (e *Engine) Matcher() *regexp.Regexp { return e.re }
