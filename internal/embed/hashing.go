package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
	"sync"
	"unicode"
)

// HashingEmbedder generates deterministic embeddings from token and n-gram
// hashes. It needs no network, no model download, and no native code, at
// the cost of reduced semantic quality. It is the bundled default and the
// embedder every test runs against.
type HashingEmbedder struct {
	mu     sync.RWMutex
	closed bool
}

const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

var wordRegex = regexp.MustCompile(`[a-zA-Z0-9]+`)

// stopWords are common programming keywords carrying no retrieval signal.
var stopWords = map[string]bool{
	"func": true, "function": true, "def": true, "class": true,
	"return": true, "import": true, "const": true, "var": true,
	"let": true, "int": true, "string": true, "bool": true,
	"void": true, "true": true, "false": true, "nil": true,
	"null": true, "this": true, "self": true, "new": true,
}

// NewHashingEmbedder creates the deterministic embedder.
func NewHashingEmbedder() *HashingEmbedder {
	return &HashingEmbedder{}
}

// Embed generates a unit vector for a single text.
func (e *HashingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("embedder is closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return make([]float32, Dimensions), nil
	}

	vector := make([]float32, Dimensions)
	for _, token := range tokenize(trimmed) {
		if stopWords[token] {
			continue
		}
		vector[hashToIndex(token)] += tokenWeight
	}
	normalized := normalizeForNgrams(trimmed)
	for i := 0; i+ngramSize <= len(normalized); i++ {
		vector[hashToIndex(normalized[i:i+ngramSize])] += ngramWeight
	}

	normalize(vector)
	return vector, nil
}

// EmbedBatch embeds each text independently.
func (e *HashingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns the embedding dimensionality.
func (e *HashingEmbedder) Dimensions() int { return Dimensions }

// ModelName identifies the embedder.
func (e *HashingEmbedder) ModelName() string { return "hashing-v1" }

// Close marks the embedder unusable.
func (e *HashingEmbedder) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return nil
}

// tokenize splits text into lowercase code-aware tokens, breaking
// camelCase and snake_case identifiers apart.
func tokenize(text string) []string {
	var tokens []string
	for _, word := range wordRegex.FindAllString(text, -1) {
		for _, part := range splitIdentifier(word) {
			if part != "" {
				tokens = append(tokens, strings.ToLower(part))
			}
		}
	}
	return tokens
}

// splitIdentifier splits camelCase and PascalCase runs, handling acronym
// boundaries like HTTPHandler -> HTTP, Handler.
func splitIdentifier(s string) []string {
	var result []string
	var cur strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevLower := unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if (prevLower || nextLower) && cur.Len() > 0 {
				result = append(result, cur.String())
				cur.Reset()
			}
		}
		cur.WriteRune(r)
	}
	if cur.Len() > 0 {
		result = append(result, cur.String())
	}
	return result
}

// normalizeForNgrams lowercases and collapses whitespace so n-grams are
// layout-insensitive.
func normalizeForNgrams(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

func hashToIndex(s string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum32() % uint32(Dimensions))
}

var _ Embedder = (*HashingEmbedder)(nil)
