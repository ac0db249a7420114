// Package chunker splits a transcript into overlapping bounded-size
// segments suitable for embedding. Splitting is pure and deterministic.
package chunker

import "strings"

const (
	// DefaultChunkSize is the hard maximum chunk length in runes.
	DefaultChunkSize = 200
	// DefaultOverlap is how many runes consecutive chunks share.
	DefaultOverlap = 20
)

// separators ordered from strongest to weakest boundary. A cut prefers
// the strongest separator available near the end of the window so that
// sentences are not broken mid-way when it can be avoided.
var separators = []string{"\n\n", "\n", ". ", " "}

// Split chunks text with the default size and overlap.
func Split(text string) []string {
	return SplitWith(text, DefaultChunkSize, DefaultOverlap)
}

// SplitWith chunks text into segments of at most size runes where each
// chunk starts exactly overlap runes before the end of the previous one.
// Empty input yields nil; input no longer than size yields one chunk.
func SplitWith(text string, size, overlap int) []string {
	if size <= 0 {
		return nil
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size - 1
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= size {
		return []string{text}
	}

	// A cut may retreat at most this far from the hard limit to land
	// on a separator. Bounded by the overlap so every step still makes
	// progress.
	slack := overlap

	var chunks []string
	start := 0
	for {
		end := start + size
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			return chunks
		}
		cut := cutPoint(runes, end, slack)
		chunks = append(chunks, string(runes[start:cut]))
		start = cut - overlap
	}
}

// cutPoint returns the index just past the latest separator whose end
// falls in (end-slack, end], trying stronger separators first. Falls
// back to the hard limit when the window has no separator.
func cutPoint(runes []rune, end, slack int) int {
	if slack <= 0 {
		return end
	}
	window := string(runes[end-slack : end])
	for _, sep := range separators {
		i := strings.LastIndex(window, sep)
		if i < 0 {
			continue
		}
		prefix := len([]rune(window[:i])) + len([]rune(sep))
		return end - slack + prefix
	}
	return end
}
