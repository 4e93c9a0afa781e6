package ui

import (
	"bytes"
	"testing"
)

func TestPrinterHoldsLastLineUntilTickEnds(t *testing.T) {
	var out bytes.Buffer
	p := NewPrinter(&out)

	p.InsertLine("one")
	id := p.InsertLine("1 line hidden")
	p.ReplaceLine(id, "2 lines hidden")
	p.ScrollToEnd()

	want := "one\n2 lines hidden\n"
	if out.String() != want {
		t.Fatalf("output = %q, want %q", out.String(), want)
	}
	if p.LineCount() != 2 {
		t.Fatalf("LineCount() = %d, want 2", p.LineCount())
	}

	p.ReplaceLine(id, "3 lines hidden")
	p.ScrollToEnd()
	if got := out.String(); got != want+"3 lines hidden\n" {
		t.Fatalf("output after late replace = %q", got)
	}

	p.EvictOldest()
	if p.LineCount() != 1 {
		t.Fatalf("LineCount() after evict = %d, want 1", p.LineCount())
	}
	if err := p.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}
}
