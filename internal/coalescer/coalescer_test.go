package coalescer

import "testing"

func TestCoalescer_AppendBelowMaxCharsBuffersWithoutEmitting(t *testing.T) {
	var emitted []Chunk
	c := New(Config{MaxChars: 100, MinChars: 10}, func(ch Chunk) { emitted = append(emitted, ch) })
	c.Append("hello")
	if len(emitted) != 0 {
		t.Fatalf("expected no emission yet, got %v", emitted)
	}
}

func TestCoalescer_AppendAtMaxCharsFlushes(t *testing.T) {
	var emitted []Chunk
	c := New(Config{MaxChars: 10}, func(ch Chunk) { emitted = append(emitted, ch) })
	c.Append("0123456789")
	if len(emitted) != 1 {
		t.Fatalf("expected one emission, got %d", len(emitted))
	}
	if emitted[0].IsEdit {
		t.Fatal("expected first emission to not be an edit")
	}
}

func TestCoalescer_EndFlushesResidueUnconditionally(t *testing.T) {
	var emitted []Chunk
	c := New(Config{MaxChars: 1000, MinChars: 1000}, func(ch Chunk) { emitted = append(emitted, ch) })
	c.Append("short")
	c.End()
	if len(emitted) != 1 || emitted[0].Text != "short" {
		t.Fatalf("expected End to flush the residue, got %v", emitted)
	}
}

func TestCoalescer_EditInPlaceFirstFlushIsNotEdit(t *testing.T) {
	var emitted []Chunk
	c := New(Config{MaxChars: 5, EditInPlace: true}, func(ch Chunk) { emitted = append(emitted, ch) })
	c.Append("abcde")
	if len(emitted) != 1 || emitted[0].IsEdit {
		t.Fatalf("expected the first flush to not be an edit, got %v", emitted)
	}
}

func TestCoalescer_EditInPlaceSubsequentFlushesCarryFullText(t *testing.T) {
	var emitted []Chunk
	c := New(Config{MaxChars: 5, EditInPlace: true}, func(ch Chunk) { emitted = append(emitted, ch) })
	c.Append("abcde")
	c.Append("fghij")
	if len(emitted) != 2 {
		t.Fatalf("expected 2 emissions, got %d", len(emitted))
	}
	if !emitted[1].IsEdit {
		t.Fatal("expected the second flush to be flagged as an edit")
	}
	if emitted[1].Text != "abcdefghij" {
		t.Fatalf("expected the full accumulated text, got %q", emitted[1].Text)
	}
}

func TestCoalescer_FullTextAccumulatesAcrossAppends(t *testing.T) {
	c := New(Config{MaxChars: 1000}, func(Chunk) {})
	c.Append("foo")
	c.Append("bar")
	if c.FullText() != "foobar" {
		t.Fatalf("got %q", c.FullText())
	}
}

func TestCoalescer_AppendAtMaxCharsBreaksAtWordBoundary(t *testing.T) {
	var emitted []Chunk
	c := New(Config{MaxChars: 10}, func(ch Chunk) { emitted = append(emitted, ch) })
	c.Append("hello worldX")
	if len(emitted) != 1 {
		t.Fatalf("expected one emission, got %d", len(emitted))
	}
	if emitted[0].Text != "hello " {
		t.Fatalf("expected the flush to break at the word boundary before the cap, got %q", emitted[0].Text)
	}
}

func TestCoalescer_AppendAfterEndIsNoop(t *testing.T) {
	var emitted []Chunk
	c := New(Config{MaxChars: 1000}, func(ch Chunk) { emitted = append(emitted, ch) })
	c.End()
	c.Append("late")
	if len(emitted) != 0 {
		t.Fatalf("expected no emission, got %v", emitted)
	}
}
