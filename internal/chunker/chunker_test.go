package chunker

import "testing"

func TestSplit_ShortTextReturnsSingleChunk(t *testing.T) {
	chunks := Split("hello world", 100)
	if len(chunks) != 1 || chunks[0] != "hello world" {
		t.Fatalf("got %v", chunks)
	}
}

func TestSplit_EmptyTextReturnsNoChunks(t *testing.T) {
	if chunks := Split("", 100); chunks != nil {
		t.Fatalf("expected nil, got %v", chunks)
	}
}

func TestSplit_ConcatenationEqualsInput(t *testing.T) {
	text := ""
	for i := 0; i < 50; i++ {
		text += "This is sentence number is here. "
	}
	chunks := Split(text, 120)
	joined := ""
	for _, c := range chunks {
		if len([]rune(c)) > 120 {
			t.Fatalf("chunk exceeds maxLength: %d runes", len([]rune(c)))
		}
		joined += c
	}
	if joined != text {
		t.Fatalf("concatenation mismatch:\n got: %q\nwant: %q", joined, text)
	}
}

func TestSplit_PrefersParagraphBoundary(t *testing.T) {
	text := longRun('a', 50) + "\n\n" + longRun('b', 50)
	chunks := Split(text, 60)
	if len(chunks) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(chunks))
	}
	if chunks[0] != longRun('a', 50)+"\n\n" {
		t.Fatalf("expected first chunk to end at the paragraph boundary, got %q", chunks[0])
	}
}

func TestSplit_HardCutWhenNoBoundaryExists(t *testing.T) {
	text := longRun('x', 300)
	chunks := Split(text, 100)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 hard-cut chunks, got %d", len(chunks))
	}
	for _, c := range chunks {
		if len([]rune(c)) != 100 {
			t.Fatalf("expected exact 100-rune chunks, got %d", len([]rune(c)))
		}
	}
}

func TestSplit_RejectsBoundaryBeforeThirtyPercent(t *testing.T) {
	// A newline at position 5 inside a 100-char budget (5 < 30) must not be
	// used as the break point; the chunker should look for a later one or
	// hard-cut instead.
	text := "aaaaa\n" + longRun('b', 94) + longRun('c', 50)
	chunks := Split(text, 100)
	if len([]rune(chunks[0])) < 30 {
		t.Fatalf("expected the tiny early newline to be rejected, got first chunk len %d", len([]rune(chunks[0])))
	}
}

func longRun(ch rune, n int) string {
	r := make([]rune, n)
	for i := range r {
		r[i] = ch
	}
	return string(r)
}
