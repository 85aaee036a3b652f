package chunk

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit_Empty(t *testing.T) {
	assert.Empty(t, Split("", 512, 64, 100))
}

func TestSplit_SingleShortFile(t *testing.T) {
	pieces := Split("hello world", 512, 64, 100)
	require.Len(t, pieces, 1)
	assert.Equal(t, "hello world", pieces[0].Text)
	assert.Equal(t, 1, pieces[0].StartLine)
	assert.Equal(t, 1, pieces[0].EndLine)
}

func TestSplit_FirstChunkStartsAtLineOne(t *testing.T) {
	content := "line1\nline2\nline3\nline4\nline5"
	pieces := Split(content, 20, 5, 100)
	require.NotEmpty(t, pieces)
	assert.Equal(t, 1, pieces[0].StartLine)
}

func TestSplit_MaxChunks(t *testing.T) {
	var lines []string
	for i := 0; i < 1000; i++ {
		lines = append(lines, fmt.Sprintf("line %d", i))
	}
	pieces := Split(strings.Join(lines, "\n"), 50, 10, 5)
	assert.LessOrEqual(t, len(pieces), 5)
}

func TestSplit_LineRangesValid(t *testing.T) {
	var lines []string
	for i := 0; i < 200; i++ {
		lines = append(lines, fmt.Sprintf("content of line number %d", i))
	}
	content := strings.Join(lines, "\n")
	pieces := Split(content, 256, 32, MaxPerFile)
	require.NotEmpty(t, pieces)

	for _, p := range pieces {
		assert.GreaterOrEqual(t, p.StartLine, 1)
		assert.GreaterOrEqual(t, p.EndLine, p.StartLine)
		assert.LessOrEqual(t, p.EndLine, len(lines))
		// The piece text carries exactly the lines it claims.
		want := strings.Join(lines[p.StartLine-1:p.EndLine], "\n")
		assert.Equal(t, want, p.Text)
	}
}

func TestSplit_DeOverlapReconstructsContent(t *testing.T) {
	var lines []string
	for i := 0; i < 120; i++ {
		lines = append(lines, fmt.Sprintf("line-%d some filler text", i))
	}
	content := strings.Join(lines, "\n")
	pieces := Split(content, 300, 40, MaxPerFile)
	require.Greater(t, len(pieces), 1, "expected multiple chunks")

	// Concatenating chunks with the overlap removed reproduces the
	// original line sequence.
	var rebuilt []string
	for i, p := range pieces {
		chunkLines := strings.Split(p.Text, "\n")
		if i == 0 {
			rebuilt = append(rebuilt, chunkLines...)
			continue
		}
		overlap := pieces[i-1].EndLine - p.StartLine + 1
		require.GreaterOrEqual(t, overlap, 0)
		rebuilt = append(rebuilt, chunkLines[overlap:]...)
	}
	assert.Equal(t, lines, rebuilt)
}

func TestSplit_OverlapCoversRequestedChars(t *testing.T) {
	var lines []string
	for i := 0; i < 50; i++ {
		lines = append(lines, strings.Repeat("x", 20))
	}
	pieces := Split(strings.Join(lines, "\n"), 100, 30, MaxPerFile)
	require.Greater(t, len(pieces), 1)

	for i := 1; i < len(pieces); i++ {
		overlapLines := pieces[i-1].EndLine - pieces[i].StartLine + 1
		overlapChars := 0
		for _, l := range strings.Split(pieces[i].Text, "\n")[:overlapLines] {
			overlapChars += len(l) + 1
		}
		assert.GreaterOrEqual(t, overlapChars, 30)
	}
}

func TestEstimate(t *testing.T) {
	assert.Equal(t, 1, Estimate(10))
	assert.Equal(t, MaxPerFile, Estimate(10_000_000))
}
