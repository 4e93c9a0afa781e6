package ui

import (
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"

	"github.com/five82/tether/internal/pipeline"
	"github.com/five82/tether/internal/search"
)

type viewLine struct {
	id    pipeline.LineID
	text  string
	spans []pipeline.Span
}

// LineView holds the rendered lines. It implements pipeline.Display and
// search.Index.
type LineView struct {
	mu      sync.Mutex
	lines   []viewLine
	nextID  pipeline.LineID
	version uint64
	scroll  bool
}

// NewLineView returns an empty view.
func NewLineView() *LineView {
	return &LineView{}
}

func (v *LineView) InsertLine(text string) pipeline.LineID {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.nextID++
	v.lines = append(v.lines, viewLine{id: v.nextID, text: text})
	v.version++
	return v.nextID
}

// ReplaceLine swaps the text of id and drops its styles.
func (v *LineView) ReplaceLine(id pipeline.LineID, text string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if i := v.find(id); i >= 0 {
		v.lines[i] = viewLine{id: id, text: text}
		v.version++
	}
}

func (v *LineView) ApplyStyle(id pipeline.LineID, styleID string, start, end int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if i := v.find(id); i >= 0 {
		v.lines[i].spans = append(v.lines[i].spans, pipeline.Span{StyleID: styleID, Start: start, End: end})
		v.version++
	}
}

func (v *LineView) EvictOldest() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.lines) == 0 {
		return
	}
	v.lines[0] = viewLine{}
	v.lines = v.lines[1:]
	v.version++
}

func (v *LineView) Clear() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lines = nil
	v.version++
}

// ScrollToEnd records a follow request, consumed by TakeScroll.
func (v *LineView) ScrollToEnd() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.scroll = true
}

func (v *LineView) LineCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.lines)
}

// find locates id, searching from the newest line.
func (v *LineView) find(id pipeline.LineID) int {
	for i := len(v.lines) - 1; i >= 0; i-- {
		if v.lines[i].id == id {
			return i
		}
		if v.lines[i].id < id {
			break
		}
	}
	return -1
}

// Find returns the first match of re at or after from, on lines up to toLine.
// Lines are 1-indexed.
func (v *LineView) Find(re *regexp.Regexp, from search.Position, toLine int) (search.Match, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	toLine = min(toLine, len(v.lines))
	line := max(from.Line, 1)
	col := from.Column
	if line != from.Line {
		col = 0
	}
	for ; line <= toLine; line++ {
		text := v.lines[line-1].text
		if col <= len(text) {
			// match the whole line so anchors and word boundaries keep their meaning
			for _, loc := range re.FindAllStringIndex(text, -1) {
				if loc[0] >= col {
					return search.Match{Line: line, Column: loc[0], Length: loc[1] - loc[0]}, true
				}
			}
		}
		col = 0
	}
	return search.Match{}, false
}

// Text returns the text of 1-indexed line n.
func (v *LineView) Text(n int) (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if n < 1 || n > len(v.lines) {
		return "", false
	}
	return v.lines[n-1].text, true
}

// Lines returns the plain text of every line.
func (v *LineView) Lines() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]string, len(v.lines))
	for i, l := range v.lines {
		out[i] = l.text
	}
	return out
}

// Version changes whenever the content or styles change.
func (v *LineView) Version() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.version
}

// Touch bumps the version so overlays are redrawn.
func (v *LineView) Touch() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.version++
}

// TakeScroll reports and clears a pending follow request.
func (v *LineView) TakeScroll() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	s := v.scroll
	v.scroll = false
	return s
}

// Render draws every line with palette styles on top of base. Overlays are
// extra spans keyed by 1-indexed line, painted after the line's own spans.
func (v *LineView) Render(palette map[string]lipgloss.Style, base lipgloss.Style, overlays map[int][]pipeline.Span) string {
	v.mu.Lock()
	defer v.mu.Unlock()
	var b strings.Builder
	for i, l := range v.lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		spans := l.spans
		if extra := overlays[i+1]; len(extra) > 0 {
			spans = append(append([]pipeline.Span(nil), spans...), extra...)
		}
		b.WriteString(renderSpans(l.text, spans, palette, base))
	}
	return b.String()
}

// renderSpans styles text by byte ranges. Where spans overlap the later one
// wins. Unknown style ids render with base.
func renderSpans(text string, spans []pipeline.Span, palette map[string]lipgloss.Style, base lipgloss.Style) string {
	if text == "" {
		return ""
	}
	if len(spans) == 0 {
		return base.Render(text)
	}
	owner := make([]int, len(text))
	for i := range owner {
		owner[i] = -1
	}
	for i, sp := range spans {
		start, end := max(sp.Start, 0), min(sp.End, len(text))
		for j := start; j < end; j++ {
			owner[j] = i
		}
	}

	var b strings.Builder
	runStart := 0
	for j := 1; j <= len(text); j++ {
		if j < len(text) && (owner[j] == owner[runStart] || !utf8.RuneStart(text[j])) {
			continue
		}
		style := base
		if o := owner[runStart]; o >= 0 {
			if s, ok := palette[spans[o].StyleID]; ok {
				style = s.Inherit(base)
			}
		}
		b.WriteString(style.Render(text[runStart:j]))
		runStart = j
	}
	return b.String()
}
