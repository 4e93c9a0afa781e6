package search

import (
	"errors"
	"fmt"
	"regexp"
	"testing"

	"github.com/five82/tether/internal/config"
)

// fakeIndex is a slice-backed view.
type fakeIndex struct {
	lines []string
}

func (ix *fakeIndex) LineCount() int { return len(ix.lines) }

func (ix *fakeIndex) Find(re *regexp.Regexp, from Position, toLine int) (Match, bool) {
	col := from.Column
	for line := from.Line; line <= toLine && line <= len(ix.lines); line++ {
		text := ix.lines[line-1]
		if col <= len(text) {
			if loc := re.FindStringIndex(text[col:]); loc != nil {
				return Match{Line: line, Column: col + loc[0], Length: loc[1] - loc[0]}, true
			}
		}
		col = 0
	}
	return Match{}, false
}

// append adds lines and evicts from the front like the render stage does.
func (ix *fakeIndex) append(evict int, lines ...string) {
	ix.lines = append(ix.lines[evict:], lines...)
}

type fakePauser struct {
	paused  bool
	pauses  int
	resumes int
}

func (p *fakePauser) Pause()  { p.paused = true; p.pauses++ }
func (p *fakePauser) Resume() { p.paused = false; p.resumes++ }

// queuedPost collects posted work so tests can step the scheduler.
type queuedPost struct {
	fns []func()
}

func (q *queuedPost) post(fn func()) { q.fns = append(q.fns, fn) }

func (q *queuedPost) runAll() int {
	n := 0
	for len(q.fns) > 0 {
		fn := q.fns[0]
		q.fns = q.fns[1:]
		fn()
		n++
	}
	return n
}

func numbered(n int, hits map[int]string) []string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf("line %d", i+1)
		if s, ok := hits[i+1]; ok {
			lines[i] = s
		}
	}
	return lines
}

func resultLines(rs []Result) []int {
	out := make([]int, len(rs))
	for i, r := range rs {
		out[i] = r.Line
	}
	return out
}

// newSeeded returns an engine over 30 lines with hits for "B" at 10, 20 and 30.
func newSeeded(t *testing.T) (*Engine, *fakeIndex) {
	t.Helper()
	ix := &fakeIndex{lines: numbered(30, map[int]string{10: "B ten", 20: "B twenty", 30: "B thirty"})}
	e := New(Options{Index: ix})
	e.OnLinesAdded(30, 0, 30)
	if err := e.OnQueryChanged(Query{Pattern: "B", CaseSensitive: true}, 1); err != nil {
		t.Fatalf("OnQueryChanged() error = %v", err)
	}
	if got := resultLines(e.Results()); fmt.Sprint(got) != "[10 20 30]" {
		t.Fatalf("Results() = %v, want [10 20 30]", got)
	}
	return e, ix
}

func TestEvictionKeepsResultsAboveOffset(t *testing.T) {
	e, ix := newSeeded(t)

	ix.append(5, "no match")
	e.OnLinesAdded(1, 5, 31)

	if e.Offset() != 5 {
		t.Fatalf("Offset() = %d, want 5", e.Offset())
	}
	if got := resultLines(e.Results()); fmt.Sprint(got) != "[10 20 30]" {
		t.Fatalf("Results() = %v, want [10 20 30]", got)
	}
	for _, r := range e.Results() {
		view := e.ViewLine(r)
		if text := ix.lines[view-1]; text[:1] != "B" {
			t.Fatalf("view line %d = %q, want a B line", view, text)
		}
	}
}

func TestEvictionDropsAtZero(t *testing.T) {
	tests := []struct {
		evict int
		want  string
	}{
		{evict: 9, want: "[10 20 30]"},
		{evict: 10, want: "[20 30]"},
		{evict: 11, want: "[20 30]"},
		{evict: 20, want: "[30]"},
		{evict: 30, want: "[]"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("evict %d", tt.evict), func(t *testing.T) {
			e, ix := newSeeded(t)
			ix.append(tt.evict, "no match")
			e.OnLinesAdded(1, tt.evict, 31)
			if got := fmt.Sprint(resultLines(e.Results())); got != tt.want {
				t.Fatalf("Results() = %v, want %v", got, tt.want)
			}
			for _, r := range e.Results() {
				if e.ViewLine(r) <= 0 {
					t.Fatalf("result %d has view line %d", r.Line, e.ViewLine(r))
				}
			}
		})
	}
}

func TestSelectionShiftsWhenResultsDrop(t *testing.T) {
	e, ix := newSeeded(t)
	e.SelectNext() // 20
	ix.append(10, "no match")
	e.OnLinesAdded(1, 10, 31)
	r, idx, ok := e.Selected()
	if !ok || idx != 0 || r.Line != 20 {
		t.Fatalf("Selected() = %+v, %d, %v, want line 20 at 0", r, idx, ok)
	}

	ix.append(20, "no match")
	e.OnLinesAdded(1, 20, 32)
	if _, idx, ok := e.Selected(); ok || idx != -1 {
		t.Fatalf("Selected() after all dropped = %d, %v, want -1, false", idx, ok)
	}
}

func TestNewLinesAreScanned(t *testing.T) {
	e, ix := newSeeded(t)
	ix.append(2, "B new", "nothing", "B again B")
	e.OnLinesAdded(3, 2, 33)

	want := []int{10, 20, 30, 31, 33, 33}
	got := resultLines(e.Results())
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("Results() = %v, want %v", got, want)
	}
	for _, r := range e.Results() {
		text := ix.lines[e.ViewLine(r)-1]
		if text[r.Column:r.Column+r.Length] != "B" {
			t.Fatalf("result %+v does not cover B in %q", r, text)
		}
	}
}

func TestOffsetCorrectUnderInterleavings(t *testing.T) {
	ix := &fakeIndex{}
	e := New(Options{Index: ix})
	if err := e.OnQueryChanged(Query{Pattern: `^hit`, Regex: true}, 1); err != nil {
		t.Fatalf("OnQueryChanged() error = %v", err)
	}

	const capacity = 7
	last := 0
	for step := 0; step < 60; step++ {
		added := step%4 + 1
		var lines []string
		for i := 0; i < added; i++ {
			last++
			if last%3 == 0 {
				lines = append(lines, fmt.Sprintf("hit %d", last))
			} else {
				lines = append(lines, fmt.Sprintf("miss %d", last))
			}
		}
		evict := len(ix.lines) + added - capacity
		if evict < 0 {
			evict = 0
		}
		ix.append(evict, lines...)
		e.OnLinesAdded(added, evict, last)

		for _, r := range e.Results() {
			view := e.ViewLine(r)
			if view < 1 || view > len(ix.lines) {
				t.Fatalf("step %d: result %d maps to view line %d of %d", step, r.Line, view, len(ix.lines))
			}
			if want := fmt.Sprintf("hit %d", r.Line); ix.lines[view-1] != want {
				t.Fatalf("step %d: view line %d = %q, want %q", step, view, ix.lines[view-1], want)
			}
		}
		hits := 0
		for _, l := range ix.lines {
			if l[:3] == "hit" {
				hits++
			}
		}
		if len(e.Results()) != hits {
			t.Fatalf("step %d: results = %d, want %d", step, len(e.Results()), hits)
		}
	}
}

func TestChunkedScanStartsAtViewport(t *testing.T) {
	hits := map[int]string{}
	for i := 1; i <= 40; i++ {
		hits[i] = "x x"
	}
	ix := &fakeIndex{lines: numbered(40, hits)}
	pauser := &fakePauser{}
	sched := &queuedPost{}
	e := New(Options{Index: ix, Pauser: pauser, Post: sched.post, ChunkSize: 5})
	e.OnLinesAdded(40, 0, 40)

	if err := e.OnQueryChanged(Query{Pattern: "x"}, 31); err != nil {
		t.Fatalf("OnQueryChanged() error = %v", err)
	}
	if !pauser.paused || !e.Scanning() {
		t.Fatalf("scan did not pause rendering")
	}

	// first quantum covers the viewport first
	sched.fns[0]()
	sched.fns = sched.fns[1:]
	first := e.Results()
	if len(first) != 5 || first[0].Line != 31 {
		t.Fatalf("first chunk = %v, want 5 results starting at line 31", resultLines(first))
	}

	steps := sched.runAll()
	if steps < 10 {
		t.Fatalf("scan ran in %d steps, want chunking", steps+1)
	}
	if e.Scanning() || pauser.paused || pauser.resumes != 1 {
		t.Fatalf("scan did not finish cleanly: scanning=%v paused=%v resumes=%d", e.Scanning(), pauser.paused, pauser.resumes)
	}
	results := e.Results()
	if len(results) != 80 {
		t.Fatalf("results = %d, want 80", len(results))
	}
	for i := 1; i < len(results); i++ {
		a, b := results[i-1], results[i]
		if a.Line > b.Line || (a.Line == b.Line && a.Column >= b.Column) {
			t.Fatalf("results out of order at %d: %+v then %+v", i, a, b)
		}
	}
	r, _, ok := e.Selected()
	if !ok || r.Line != 31 || r.Column != 0 {
		t.Fatalf("Selected() = %+v, want first match at the viewport", r)
	}
}

func TestQueryChangeCancelsScan(t *testing.T) {
	ix := &fakeIndex{lines: numbered(20, map[int]string{2: "a", 3: "b"})}
	sched := &queuedPost{}
	e := New(Options{Index: ix, Post: sched.post, ChunkSize: 1})
	e.OnLinesAdded(20, 0, 20)

	if err := e.OnQueryChanged(Query{Pattern: "a"}, 1); err != nil {
		t.Fatalf("OnQueryChanged() error = %v", err)
	}
	if err := e.OnQueryChanged(Query{Pattern: "b"}, 1); err != nil {
		t.Fatalf("OnQueryChanged() error = %v", err)
	}
	sched.runAll()
	if got := resultLines(e.Results()); fmt.Sprint(got) != "[3]" {
		t.Fatalf("Results() = %v, want [3]", got)
	}
}

func TestSelectionIsCyclic(t *testing.T) {
	e, _ := newSeeded(t)
	var seen []int
	for i := 0; i < 4; i++ {
		r, _, _ := e.Selected()
		seen = append(seen, r.Line)
		e.SelectNext()
	}
	if fmt.Sprint(seen) != "[10 20 30 10]" {
		t.Fatalf("SelectNext sequence = %v, want [10 20 30 10]", seen)
	}
	e.SelectPrior()
	e.SelectPrior()
	if r, _, _ := e.Selected(); r.Line != 30 {
		t.Fatalf("SelectPrior wrapped to %d, want 30", r.Line)
	}
}

func TestSelectOnEmptyIsNoop(t *testing.T) {
	e := New(Options{Index: &fakeIndex{}})
	e.SelectNext()
	e.SelectPrior()
	if _, idx, ok := e.Selected(); ok || idx != -1 {
		t.Fatalf("Selected() = %d, %v, want -1, false", idx, ok)
	}
}

func TestInvalidRegexIsRejected(t *testing.T) {
	e, _ := newSeeded(t)
	err := e.OnQueryChanged(Query{Pattern: "(", Regex: true}, 1)
	var verr *config.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("OnQueryChanged() error = %v, want ValidationError", err)
	}
	if got := len(e.Results()); got != 3 {
		t.Fatalf("results after rejected query = %d, want 3", got)
	}
}

func TestLiteralQueryEscapesMeta(t *testing.T) {
	ix := &fakeIndex{lines: []string{"a.b", "axb"}}
	e := New(Options{Index: ix})
	e.OnLinesAdded(2, 0, 2)
	if err := e.OnQueryChanged(Query{Pattern: "a.b"}, 1); err != nil {
		t.Fatalf("OnQueryChanged() error = %v", err)
	}
	if got := resultLines(e.Results()); fmt.Sprint(got) != "[1]" {
		t.Fatalf("Results() = %v, want [1]", got)
	}
}

func TestViewResetRescans(t *testing.T) {
	e, ix := newSeeded(t)
	ix.lines = []string{"B only"}
	e.OnViewReset(45)
	results := e.Results()
	if len(results) != 1 || e.ViewLine(results[0]) != 1 {
		t.Fatalf("Results() after reset = %+v, want one hit on view line 1", results)
	}
	ix.append(0, "B more")
	e.OnLinesAdded(1, 0, 46)
	if got := len(e.Results()); got != 2 {
		t.Fatalf("results = %d, want 2", got)
	}
}

func TestClearResumesRendering(t *testing.T) {
	ix := &fakeIndex{lines: numbered(3, nil)}
	pauser := &fakePauser{}
	sched := &queuedPost{}
	e := New(Options{Index: ix, Pauser: pauser, Post: sched.post})
	if err := e.OnQueryChanged(Query{Pattern: "line"}, 1); err != nil {
		t.Fatalf("OnQueryChanged() error = %v", err)
	}
	if err := e.OnQueryChanged(Query{}, 1); err != nil {
		t.Fatalf("OnQueryChanged(empty) error = %v", err)
	}
	sched.runAll()
	if pauser.paused || e.Active() || len(e.Results()) != 0 {
		t.Fatalf("Clear left paused=%v active=%v results=%d", pauser.paused, e.Active(), len(e.Results()))
	}
}
