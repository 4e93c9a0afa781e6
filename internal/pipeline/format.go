package pipeline

import (
	"bytes"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"
)

// FormatOptions configure a FormatStage.
type FormatOptions struct {
	// Capacity bounds the input queue; ingest blocks while it is full.
	Capacity     int
	PollInterval time.Duration
	// Identity names the connected transport for the session-connect marker.
	Identity func() string
	Logger   *zap.SugaredLogger
}

// FormatStage turns raw records into stamped display lines and fans them out.
type FormatStage struct {
	in       *Queue[RawRecord]
	sinks    []LineSink
	poll     time.Duration
	identity func() string
	log      *zap.SugaredLogger
	w        worker

	// worker-owned session state
	started bool
	last    time.Time
}

// NewFormatStage builds a stage publishing to sinks in order.
func NewFormatStage(opts FormatOptions, sinks ...LineSink) *FormatStage {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	identity := opts.Identity
	if identity == nil {
		identity = func() string { return "" }
	}
	return &FormatStage{
		in:       NewQueue[RawRecord](opts.Capacity),
		sinks:    sinks,
		poll:     poll,
		identity: identity,
		log:      log,
		w:        worker{name: "format", log: log},
	}
}

// Push enqueues rec, blocking while the queue is full.
func (f *FormatStage) Push(rec RawRecord, quit <-chan struct{}) bool {
	return f.in.Put(rec, quit)
}

// Start begins a new session; the next record is preceded by a connect marker.
func (f *FormatStage) Start() error {
	return f.w.start(f.loop)
}

// Stop halts the worker. With drain set every queued record is formatted first.
func (f *FormatStage) Stop(drain bool) error {
	var before func()
	if drain {
		before = f.in.Join
	}
	err := f.w.stop(before)
	if !drain {
		f.in.Reset()
	}
	return err
}

func (f *FormatStage) loop(quit <-chan struct{}) {
	f.started = false
	f.last = time.Time{}
	for !stopped(quit) {
		rec, ok := f.in.Get(f.poll)
		if !ok {
			continue
		}
		for _, line := range f.format(rec) {
			for _, sink := range f.sinks {
				sink.Push(line)
			}
		}
		f.in.Done()
	}
}

func (f *FormatStage) format(rec RawRecord) []FormattedLine {
	text := Sanitize(rec.Payload)
	if !f.started {
		f.started = true
		f.last = rec.Arrival
		return []FormattedLine{
			ConnectLine(rec.Arrival, f.identity()),
			{Text: stamp(rec.Arrival) + " " + text + "\n", Source: rec.Arrival},
		}
	}
	delta := rec.Arrival.Sub(f.last)
	f.last = rec.Arrival
	return []FormattedLine{{
		Text:   stamp(rec.Arrival) + " (" + FormatDelta(delta) + ") " + text + "\n",
		Source: rec.Arrival,
	}}
}

// FormatDelta renders an elapsed time as +S.mmm, +M:SS.mmm or +H:MM:SS.mmm.
func FormatDelta(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	h := ms / 3_600_000
	ms -= h * 3_600_000
	m := ms / 60_000
	ms -= m * 60_000
	s := ms / 1000
	ms -= s * 1000
	switch {
	case h > 0:
		return fmt.Sprintf("+%d:%02d:%02d.%03d", h, m, s, ms)
	case m > 0:
		return fmt.Sprintf("+%d:%02d.%03d", m, s, ms)
	default:
		return fmt.Sprintf("+%d.%03d", s, ms)
	}
}

// Sanitize strips the line terminator and escapes bytes that cannot be shown.
// Tabs are kept; control characters and invalid UTF-8 become \xNN.
func Sanitize(payload []byte) string {
	payload = bytes.TrimRight(payload, "\r\n")
	var b strings.Builder
	b.Grow(len(payload))
	for len(payload) > 0 {
		r, size := utf8.DecodeRune(payload)
		switch {
		case r == utf8.RuneError && size <= 1:
			fmt.Fprintf(&b, `\x%02x`, payload[0])
		case r == '\t' || unicode.IsPrint(r):
			b.WriteRune(r)
		case r < utf8.RuneSelf:
			fmt.Fprintf(&b, `\x%02x`, r)
		default:
			fmt.Fprintf(&b, `\u%04x`, r)
		}
		payload = payload[size:]
	}
	return b.String()
}
