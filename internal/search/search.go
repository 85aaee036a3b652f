// Package search implements the query surface: lexical full-text search
// with snippet generation, regex grep over the workspace tree, and the
// semantic search pass-through.
package search

import (
	"context"
	"strings"

	"github.com/vyotiq-ai/codesearchd/internal/apperr"
	"github.com/vyotiq-ai/codesearchd/internal/config"
	"github.com/vyotiq-ai/codesearchd/internal/index"
)

// snippetContextLines is the number of lines kept on each side of the
// first matching line in a snippet.
const snippetContextLines = 2

// defaultLimit is the result cap when a query does not specify one.
const defaultLimit = 50

// Query is a full-text search request.
type Query struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

// Result is one full-text hit.
type Result struct {
	Path         string  `json:"path"`
	RelativePath string  `json:"relative_path"`
	Filename     string  `json:"filename"`
	Extension    string  `json:"extension"`
	Language     string  `json:"language"`
	Size         int64   `json:"size"`
	Modified     int64   `json:"modified"`
	Score        float64 `json:"score"`
	Snippet      string  `json:"snippet"`
	LineNumber   int     `json:"line_number"`
}

// Response wraps full-text results.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
}

// ValidateQuery enforces the shared length and emptiness constraints for
// queries and grep patterns.
func ValidateQuery(q string) error {
	if strings.TrimSpace(q) == "" {
		return apperr.E(apperr.KindBadRequest, "search query must not be empty")
	}
	if len(q) > config.MaxSearchQueryLength {
		return apperr.E(apperr.KindBadRequest,
			"search query too long (%d chars), maximum is %d",
			len(q), config.MaxSearchQueryLength)
	}
	return nil
}

// FullText runs a lexical query against the workspace's index. A workspace
// with no index returns an empty response.
func FullText(ctx context.Context, indexes *index.Manager, workspaceID string, q Query) (*Response, error) {
	if err := ValidateQuery(q.Query); err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	lex := indexes.Lexical(workspaceID)
	if lex == nil {
		return &Response{Results: []Result{}}, nil
	}

	hits, err := lex.Search(ctx, q.Query, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindSearch, err, "full-text search")
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		snippet, line := makeSnippet(h.Content, q.Query)
		results = append(results, Result{
			Path:         h.Path,
			RelativePath: h.RelativePath,
			Filename:     h.Filename,
			Extension:    h.Extension,
			Language:     h.Language,
			Size:         h.Size,
			Modified:     h.Modified,
			Score:        h.Score,
			Snippet:      snippet,
			LineNumber:   line,
		})
	}
	return &Response{Results: results, Total: len(results)}, nil
}

// makeSnippet returns a few lines of context around the first line that
// contains any query term, plus that line's 1-indexed number. Falls back
// to the head of the file when no term matches literally (the index
// analyzer may have matched a split token).
func makeSnippet(content, query string) (string, int) {
	if content == "" {
		return "", 0
	}
	lines := strings.Split(content, "\n")
	terms := strings.Fields(strings.ToLower(query))

	matchLine := -1
	for i, line := range lines {
		lower := strings.ToLower(line)
		for _, term := range terms {
			if strings.Contains(lower, term) {
				matchLine = i
				break
			}
		}
		if matchLine >= 0 {
			break
		}
	}
	if matchLine < 0 {
		matchLine = 0
	}

	start := max(matchLine-snippetContextLines, 0)
	end := min(matchLine+snippetContextLines+1, len(lines))
	return strings.Join(lines[start:end], "\n"), matchLine + 1
}
