package pipeline

import (
	"strings"
	"sync"
)

// DefaultCapacity is the number of lines kept by the buffer and the view.
const DefaultCapacity = 4000

// LineBuffer is a bounded ring of formatted lines with FIFO eviction.
type LineBuffer struct {
	mu      sync.RWMutex
	lines   []FormattedLine
	head    int
	count   int
	evicted uint64
}

// NewLineBuffer returns a buffer holding at most capacity lines.
func NewLineBuffer(capacity int) *LineBuffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &LineBuffer{lines: make([]FormattedLine, capacity)}
}

// Append adds line and reports whether the oldest line was evicted.
func (b *LineBuffer) Append(line FormattedLine) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	capacity := len(b.lines)
	if b.count < capacity {
		b.lines[(b.head+b.count)%capacity] = line
		b.count++
		return false
	}
	b.lines[b.head] = line
	b.head = (b.head + 1) % capacity
	b.evicted++
	return true
}

// Lines returns the buffered lines oldest first.
func (b *LineBuffer) Lines() []FormattedLine {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]FormattedLine, b.count)
	for i := range out {
		out[i] = b.lines[(b.head+i)%len(b.lines)]
	}
	return out
}

// Replace rewrites old to new in buffered lines. With all unset only the first
// occurrence is replaced. It returns the number of replacements.
func (b *LineBuffer) Replace(old, new string, all bool) int {
	if old == "" {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	replaced := 0
	for i := 0; i < b.count; i++ {
		idx := (b.head + i) % len(b.lines)
		text := b.lines[idx].Text
		n := strings.Count(text, old)
		if n == 0 {
			continue
		}
		if !all {
			b.lines[idx].Text = strings.Replace(text, old, new, 1)
			return 1
		}
		b.lines[idx].Text = strings.ReplaceAll(text, old, new)
		replaced += n
	}
	return replaced
}

// Len reports the number of buffered lines.
func (b *LineBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Cap reports the buffer capacity.
func (b *LineBuffer) Cap() int {
	return len(b.lines)
}

// Evicted reports how many lines have been dropped since creation.
func (b *LineBuffer) Evicted() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.evicted
}
