// Package chunk splits file text into overlapping, line-aligned windows for
// embedding. A chunk boundary never splits a line.
package chunk

import "strings"

// Tuning constants for code embedding. Roughly one kilobyte per chunk fits
// comfortably inside the embedding model's token budget while keeping
// retrieval granular.
const (
	// MaxChars is the maximum chunk size in characters.
	MaxChars = 1024
	// OverlapChars is the minimum overlap carried between adjacent chunks.
	OverlapChars = 96
	// MaxPerFile caps the chunks produced for a single file.
	MaxPerFile = 200
)

// Piece is one chunk of a file. Line numbers are 1-indexed and inclusive.
type Piece struct {
	Text      string
	StartLine int
	EndLine   int
}

// Split chunks content into pieces of about maxChars characters, carrying
// at least overlap characters of trailing lines into the next piece, and
// producing at most maxChunks pieces. A piece is closed when the next line
// would push it past maxChars; the carried lines and the line that follows
// them are not re-checked against the limit, and a single line longer than
// maxChars is never split, so such pieces exceed maxChars. Empty content
// yields nil; content that fits produces exactly one piece.
func Split(content string, maxChars, overlap, maxChunks int) []Piece {
	if content == "" {
		return nil
	}
	lines := strings.Split(strings.TrimSuffix(content, "\n"), "\n")

	var pieces []Piece
	var cur []string
	curChars := 0
	startLine := 0 // 0-indexed line the current chunk begins at

	for i, line := range lines {
		lineChars := len(line) + 1 // +1 for the newline

		if curChars+lineChars > maxChars && len(cur) > 0 {
			pieces = append(pieces, Piece{
				Text:      strings.Join(cur, "\n"),
				StartLine: startLine + 1,
				EndLine:   i,
			})
			if len(pieces) >= maxChunks {
				return pieces
			}

			// Retain tail lines whose cumulative size covers the overlap.
			kept := len(cur)
			keptChars := 0
			for j := len(cur) - 1; j >= 0; j-- {
				keptChars += len(cur[j]) + 1
				if keptChars >= overlap {
					kept = j
					break
				}
			}
			tail := cur[kept:]
			cur = append([]string(nil), tail...)
			curChars = 0
			for _, l := range cur {
				curChars += len(l) + 1
			}
			startLine += kept
		}

		cur = append(cur, line)
		curChars += lineChars
	}

	if len(cur) > 0 && len(pieces) < maxChunks {
		pieces = append(pieces, Piece{
			Text:      strings.Join(cur, "\n"),
			StartLine: startLine + 1,
			EndLine:   len(lines),
		})
	}
	return pieces
}

// SplitDefault applies the package's tuning constants.
func SplitDefault(content string) []Piece {
	return Split(content, MaxChars, OverlapChars, MaxPerFile)
}

// Estimate approximates the number of chunks Split will produce for content
// of the given length; the real count can be higher or lower. The vector
// pipeline logs it next to the real count.
func Estimate(contentLen int) int {
	n := contentLen/(MaxChars-OverlapChars) + 1
	if n > MaxPerFile {
		return MaxPerFile
	}
	return n
}
