package assemble

import (
	"fmt"
	"strings"

	"luisterlab/internal/models"
)

// AssemblyError marks a malformed or empty segment set. It is
// deterministic given the committed segments, so it is never retried.
type AssemblyError struct {
	Err error
}

func (e *AssemblyError) Error() string { return "assembly failed: " + e.Err.Error() }
func (e *AssemblyError) Unwrap() error { return e.Err }

// maxWords bounds sentence length when the service produces long runs of
// fragments without terminal punctuation.
const maxWords = 100

// Build merges timed segments (chunk order, then segment order, absolute
// times) into the ordered sentence sequence. Consecutive segments are
// merged until one ends with sentence-ending punctuation or the word
// bound is reached. Zero-duration segments and empty texts are dropped.
// A sentence spans exactly the range of the segments it covers.
func Build(segments []models.Segment) ([]models.Sentence, error) {
	if len(segments) == 0 {
		return nil, &AssemblyError{Err: fmt.Errorf("no segments to assemble")}
	}

	var sentences []models.Sentence
	var parts []string
	var startSec, endSec float64
	words := 0

	flush := func() {
		if len(parts) == 0 {
			return
		}
		sentences = append(sentences, models.Sentence{
			Index:    len(sentences),
			Text:     strings.Join(parts, " "),
			StartSec: startSec,
			EndSec:   endSec,
		})
		parts = nil
		words = 0
	}

	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" || seg.EndSec <= seg.StartSec {
			continue
		}

		if len(parts) == 0 {
			startSec = seg.StartSec
		}
		parts = append(parts, text)
		endSec = seg.EndSec
		words += len(strings.Fields(text))

		if endsSentence(text) || words >= maxWords {
			flush()
		}
	}
	flush()

	if len(sentences) == 0 {
		return nil, &AssemblyError{Err: fmt.Errorf("all segments were empty or zero-duration")}
	}
	return sentences, nil
}

// endsSentence reports whether text ends with sentence-ending punctuation,
// allowing a trailing closing quote or bracket.
func endsSentence(text string) bool {
	trimmed := strings.TrimRight(text, `"')]»`)
	if trimmed == "" {
		return false
	}
	switch trimmed[len(trimmed)-1] {
	case '.', '!', '?':
		return true
	}
	return strings.HasSuffix(trimmed, "…")
}
