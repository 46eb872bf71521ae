// Package chunker splits long text into ordered substrings no longer than
// a platform's maximum message length, preferring natural break points
// over hard cuts.
package chunker

import "regexp"

// Per-platform maximum message lengths.
const (
	MaxLenTelegram = 4096
	MaxLenDiscord  = 2000
	MaxLenWhatsApp = 65536
	MaxLenSlack    = 40000
)

// sentenceBoundary matches end-of-sentence punctuation followed by
// whitespace and a capital letter — the split point is after the
// punctuation+whitespace, before the capital.
var sentenceBoundary = regexp.MustCompile(`[.!?]\s+[A-Z]`)

// minBoundaryFraction: a candidate break point is only accepted if it
// falls past this fraction of maxLength, to avoid emitting tiny chunks.
const minBoundaryFraction = 0.3

// Split breaks text into chunks of at most maxLength runes each, preferring
// paragraph, then sentence, then newline, then word boundaries before
// falling back to a hard cut. The concatenation of the returned chunks
// equals text exactly.
func Split(text string, maxLength int) []string {
	if maxLength <= 0 {
		maxLength = MaxLenTelegram
	}
	runes := []rune(text)
	if len(runes) <= maxLength {
		if len(runes) == 0 {
			return nil
		}
		return []string{text}
	}

	var chunks []string
	remaining := runes
	for len(remaining) > maxLength {
		cut := bestBreak(remaining, maxLength)
		chunk := string(remaining[:cut])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		remaining = remaining[cut:]
	}
	if len(remaining) > 0 {
		chunks = append(chunks, string(remaining))
	}
	return chunks
}

// bestBreak returns the rune index in s (len(s) > maxLength) at which to
// cut, preferring the latest boundary of each kind that still falls
// within [minBoundaryFraction*maxLength, maxLength].
func bestBreak(s []rune, maxLength int) int {
	window := s[:maxLength]
	minPos := int(float64(maxLength) * minBoundaryFraction)

	if pos := lastIndex(window, "\n\n"); pos >= minPos {
		return pos + 2
	}
	if pos := lastSentenceBreak(window); pos >= minPos {
		return pos
	}
	if pos := lastIndex(window, "\n"); pos >= minPos {
		return pos + 1
	}
	if pos := lastWordBreak(window); pos >= minPos {
		return pos
	}
	return maxLength
}

// lastIndex returns the rune index of the last occurrence of sep in s, or
// -1. Equivalent to strings.LastIndex but operating on []rune so byte and
// rune offsets never diverge for multi-byte input.
func lastIndex(s []rune, sep string) int {
	sepRunes := []rune(sep)
	for i := len(s) - len(sepRunes); i >= 0; i-- {
		if runesEqual(s[i:i+len(sepRunes)], sepRunes) {
			return i
		}
	}
	return -1
}

func runesEqual(a, b []rune) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// lastSentenceBreak finds the last match of sentenceBoundary in s and
// returns the index just past the whitespace, before the capital letter.
func lastSentenceBreak(s []rune) int {
	str := string(s)
	matches := sentenceBoundary.FindAllStringIndex(str, -1)
	if len(matches) == 0 {
		return -1
	}
	last := matches[len(matches)-1]
	// Convert byte offset (end of match, which includes the capital) back
	// one rune to land just before the capital letter.
	end := []rune(str[:last[1]])
	return len(end) - 1
}

func lastWordBreak(s []rune) int {
	for i := len(s) - 1; i > 0; i-- {
		if s[i] == ' ' || s[i] == '\t' {
			return i + 1
		}
	}
	return -1
}
