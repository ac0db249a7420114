package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// reconstruct undoes the overlap: the first chunk plus every following
// chunk minus its first overlap runes must reproduce the input.
func reconstruct(chunks []string, overlap int) string {
	if len(chunks) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(chunks[0])
	for _, c := range chunks[1:] {
		runes := []rune(c)
		b.WriteString(string(runes[overlap:]))
	}
	return b.String()
}

func TestSplitDegenerateInputs(t *testing.T) {
	assert.Nil(t, Split(""))
	assert.Equal(t, []string{"short text"}, Split("short text"))

	exact := strings.Repeat("x", DefaultChunkSize)
	assert.Equal(t, []string{exact}, Split(exact))
}

func TestSplitBoundsAndOverlap(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"sentences", strings.Repeat("The suspect was seen near the docks at midnight. ", 40)},
		{"no separators", strings.Repeat("a", 1000)},
		{"newlines", strings.Repeat("line one\nline two\n\n", 60)},
		{"unicode", strings.Repeat("Der Verdächtige floh über die Brücke. ", 30)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := Split(tt.text)
			require.NotEmpty(t, chunks)

			for _, c := range chunks {
				assert.LessOrEqual(t, len([]rune(c)), DefaultChunkSize)
			}

			for i := 1; i < len(chunks); i++ {
				prev := []rune(chunks[i-1])
				cur := []rune(chunks[i])
				require.GreaterOrEqual(t, len(prev), DefaultOverlap)
				assert.Equal(t,
					string(prev[len(prev)-DefaultOverlap:]),
					string(cur[:DefaultOverlap]),
					"chunks %d and %d must share exactly the overlap", i-1, i)
			}

			assert.Equal(t, tt.text, reconstruct(chunks, DefaultOverlap))
		})
	}
}

func TestSplitPrefersSentenceBoundaries(t *testing.T) {
	text := strings.Repeat("Something happened here. ", 30)
	chunks := Split(text)
	require.Greater(t, len(chunks), 1)
	// every non-final chunk should end right after a sentence break
	for _, c := range chunks[:len(chunks)-1] {
		assert.True(t, strings.HasSuffix(c, ". "), "chunk should end on a sentence boundary: %q", c)
	}
}

func TestRechunkingChunkSizedInputIsIdentity(t *testing.T) {
	text := strings.Repeat("The witness heard two shots fired near the warehouse. ", 25)
	for _, c := range Split(text) {
		assert.Equal(t, []string{c}, Split(c))
	}
}

func TestSplitWithParameterClamping(t *testing.T) {
	assert.Nil(t, SplitWith("anything", 0, 5))

	// overlap >= size is clamped rather than looping forever
	chunks := SplitWith(strings.Repeat("b", 50), 10, 10)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), 10)
	}
	assert.Equal(t, strings.Repeat("b", 50), reconstruct(chunks, 9))
}
