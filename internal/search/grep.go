package search

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/vyotiq-ai/codesearchd/internal/apperr"
	"github.com/vyotiq-ai/codesearchd/internal/scanner"
)

// grepMaxResults caps the total number of grep matches returned.
const grepMaxResults = 1000

// grepMaxLineLength truncates pathological lines in grep output.
const grepMaxLineLength = 500

// GrepQuery is a regex search request.
type GrepQuery struct {
	Pattern string   `json:"pattern"`
	Include []string `json:"include,omitempty"`
	Exclude []string `json:"exclude,omitempty"`
}

// GrepMatch is one matching line.
type GrepMatch struct {
	RelativePath string `json:"relative_path"`
	LineNumber   int    `json:"line_number"`
	LineText     string `json:"line_text"`
	MatchStart   int    `json:"match_start"`
	MatchEnd     int    `json:"match_end"`
}

// GrepResponse wraps grep matches.
type GrepResponse struct {
	Matches   []GrepMatch `json:"matches"`
	Total     int         `json:"total"`
	Truncated bool        `json:"truncated"`
}

// Grep walks the workspace under the shared filter rules and returns lines
// matching the pattern, with include/exclude glob refinement.
func Grep(ctx context.Context, scan *scanner.Scanner, root string, q GrepQuery) (*GrepResponse, error) {
	if err := ValidateQuery(q.Pattern); err != nil {
		return nil, err
	}
	re, err := regexp.Compile(q.Pattern)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindBadRequest, err, "invalid grep pattern")
	}

	files, err := scan.Walk(ctx, root)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindSearch, err, "walk workspace")
	}

	var (
		mu        sync.Mutex
		matches   []GrepMatch
		truncated bool
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for _, f := range files {
		if !globsAllow(f.RelPath, q.Include, q.Exclude) {
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			mu.Lock()
			full := len(matches) >= grepMaxResults
			mu.Unlock()
			if full {
				return nil
			}

			fileMatches := grepFile(f.AbsPath, f.RelPath, re)
			if len(fileMatches) == 0 {
				return nil
			}
			mu.Lock()
			room := grepMaxResults - len(matches)
			if len(fileMatches) > room {
				fileMatches = fileMatches[:room]
				truncated = true
			}
			matches = append(matches, fileMatches...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, apperr.Wrap(apperr.KindSearch, err, "grep workspace")
	}

	return &GrepResponse{Matches: matches, Total: len(matches), Truncated: truncated}, nil
}

// grepFile scans one file line by line for pattern matches.
func grepFile(absPath, relPath string, re *regexp.Regexp) []GrepMatch {
	f, err := os.Open(absPath)
	if err != nil {
		return nil
	}
	defer f.Close()

	var matches []GrepMatch
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		loc := re.FindStringIndex(line)
		if loc == nil {
			continue
		}
		text := line
		if len(text) > grepMaxLineLength {
			text = text[:grepMaxLineLength]
		}
		matches = append(matches, GrepMatch{
			RelativePath: relPath,
			LineNumber:   lineNo,
			LineText:     text,
			MatchStart:   loc[0],
			MatchEnd:     loc[1],
		})
	}
	return matches
}

// globsAllow applies include/exclude globs against the relative path and
// its base name.
func globsAllow(relPath string, include, exclude []string) bool {
	base := filepath.Base(relPath)
	for _, pattern := range exclude {
		if globMatch(pattern, relPath, base) {
			return false
		}
	}
	if len(include) == 0 {
		return true
	}
	for _, pattern := range include {
		if globMatch(pattern, relPath, base) {
			return true
		}
	}
	return false
}

func globMatch(pattern, relPath, base string) bool {
	if ok, err := filepath.Match(pattern, relPath); err == nil && ok {
		return true
	}
	ok, err := filepath.Match(pattern, base)
	return err == nil && ok
}
