package pipeline

import (
	"context"
	"regexp"
	"time"
)

// RawRecord is one unit read from a transport, before formatting.
type RawRecord struct {
	Payload []byte
	Arrival time.Time
}

// FormattedLine is a display-ready line. Text always ends with a newline.
type FormattedLine struct {
	Text   string
	Source time.Time
}

// HighlightRule paints the first match of Pattern with StyleID.
type HighlightRule struct {
	Name    string
	Pattern *regexp.Regexp
	StyleID string
}

// RuleSet is the highlight configuration read when the highlight stage starts.
type RuleSet struct {
	Rules       []HighlightRule
	Hide        []*regexp.Regexp
	HideEnabled bool
}

// RuleProvider returns the current highlight configuration.
type RuleProvider func() RuleSet

// Span styles the byte range [Start, End) of a rendered line.
type Span struct {
	StyleID string
	Start   int
	End     int
}

// RenderInstruction describes one change to the view. Text carries no newline.
type RenderInstruction struct {
	Text             string
	Spans            []Span
	ReplacesLastLine bool
}

// Style ids applied by the pipeline itself.
const (
	StyleSessionConnect    = "session-connect"
	StyleSessionDisconnect = "session-disconnect"
	StyleLink              = "link"
	StyleHidden            = "hidden"
)

// State is the connection state owned by the supervisor.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// Source opens connections to a transport named by identity.
type Source interface {
	Open(ctx context.Context, identity string) (Conn, error)
}

// Conn is an open transport. ReadRecord returns ok=false when no record arrived
// within timeout; a non-nil error ends the session.
type Conn interface {
	Identity() string
	ReadRecord(timeout time.Duration) (RawRecord, bool, error)
	Close() error
}

// LineID identifies a line inserted into a Display.
type LineID uint64

// Display is the rendering surface. It is only touched from the scheduler thread.
type Display interface {
	InsertLine(text string) LineID
	ReplaceLine(id LineID, text string)
	ApplyStyle(id LineID, styleID string, start, end int)
	EvictOldest()
	Clear()
	ScrollToEnd()
	LineCount() int
}

// ViewObserver is notified on the scheduler thread after the view changes.
// last is the session-monotonic absolute number of the newest line.
type ViewObserver interface {
	OnLinesAdded(added, evicted, last int)
	OnViewReset(last int)
}

// Executor runs fn on the scheduler thread.
type Executor func(fn func())

// Inline runs fn on the calling goroutine.
func Inline(fn func()) { fn() }

// LineSink accepts formatted lines.
type LineSink interface {
	Push(line FormattedLine)
}

// RecordSink accepts raw records, blocking while full. It returns false when
// quit closes first.
type RecordSink interface {
	Push(rec RawRecord, quit <-chan struct{}) bool
}
