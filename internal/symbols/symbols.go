// Package symbols extracts top-level identifiers from source text using
// per-language regular expressions. The output feeds the lexical index's
// symbols field; it is intentionally regex-level, not a parser.
package symbols

import (
	"regexp"
	"strings"
)

// pattern pairs a compiled regex with the capture group holding the
// identifier.
type pattern struct {
	re    *regexp.Regexp
	group int
}

func pats(sources ...string) []pattern {
	out := make([]pattern, 0, len(sources))
	for _, src := range sources {
		out = append(out, pattern{re: regexp.MustCompile(src), group: 1})
	}
	return out
}

// languagePatterns is the static table mapping a language tag to its
// declaration anchors. Patterns are multiline-anchored so only top-level-ish
// declarations match.
var languagePatterns = map[string][]pattern{
	"go": pats(
		`(?m)^func\s+(?:\([^)]*\)\s*)?([A-Za-z_][A-Za-z0-9_]*)\s*[([]`,
		`(?m)^type\s+([A-Za-z_][A-Za-z0-9_]*)\s+(?:struct|interface|func|[\[\]*A-Za-z_])`,
		`(?m)^(?:var|const)\s+([A-Za-z_][A-Za-z0-9_]*)`,
	),
	"rust": pats(
		`(?m)^\s*(?:pub(?:\([^)]*\))?\s+)?(?:async\s+)?fn\s+([A-Za-z_][A-Za-z0-9_]*)`,
		`(?m)^\s*(?:pub(?:\([^)]*\))?\s+)?(?:struct|enum|trait|union)\s+([A-Za-z_][A-Za-z0-9_]*)`,
		`(?m)^\s*(?:pub(?:\([^)]*\))?\s+)?type\s+([A-Za-z_][A-Za-z0-9_]*)`,
		`(?m)^\s*impl(?:<[^>]*>)?\s+([A-Za-z_][A-Za-z0-9_]*)`,
		`(?m)^\s*(?:pub(?:\([^)]*\))?\s+)?mod\s+([A-Za-z_][A-Za-z0-9_]*)`,
	),
	"python": pats(
		`(?m)^\s*(?:async\s+)?def\s+([A-Za-z_][A-Za-z0-9_]*)`,
		`(?m)^\s*class\s+([A-Za-z_][A-Za-z0-9_]*)`,
	),
	"javascript": pats(
		`(?m)^\s*(?:export\s+)?(?:default\s+)?(?:async\s+)?function\s*\*?\s*([A-Za-z_$][A-Za-z0-9_$]*)`,
		`(?m)^\s*(?:export\s+)?class\s+([A-Za-z_$][A-Za-z0-9_$]*)`,
		`(?m)^\s*(?:export\s+)?(?:const|let|var)\s+([A-Za-z_$][A-Za-z0-9_$]*)\s*=\s*(?:async\s+)?(?:\([^)]*\)|[A-Za-z_$][A-Za-z0-9_$]*)\s*=>`,
	),
	"typescript": pats(
		`(?m)^\s*(?:export\s+)?(?:default\s+)?(?:async\s+)?function\s*\*?\s*([A-Za-z_$][A-Za-z0-9_$]*)`,
		`(?m)^\s*(?:export\s+)?(?:abstract\s+)?class\s+([A-Za-z_$][A-Za-z0-9_$]*)`,
		`(?m)^\s*(?:export\s+)?interface\s+([A-Za-z_$][A-Za-z0-9_$]*)`,
		`(?m)^\s*(?:export\s+)?(?:type|enum|namespace)\s+([A-Za-z_$][A-Za-z0-9_$]*)`,
		`(?m)^\s*(?:export\s+)?(?:const|let|var)\s+([A-Za-z_$][A-Za-z0-9_$]*)\s*=\s*(?:async\s+)?(?:\([^)]*\)|[A-Za-z_$][A-Za-z0-9_$]*)\s*=>`,
	),
	"java": pats(
		`(?m)^\s*(?:public|protected|private)?\s*(?:static\s+)?(?:final\s+)?(?:abstract\s+)?(?:class|interface|enum|record)\s+([A-Za-z_][A-Za-z0-9_]*)`,
		`(?m)^\s*(?:public|protected|private)\s+(?:static\s+)?(?:final\s+)?[\w<>\[\],\s]+\s+([A-Za-z_][A-Za-z0-9_]*)\s*\(`,
	),
	"csharp": pats(
		`(?m)^\s*(?:public|internal|protected|private)?\s*(?:static\s+)?(?:sealed\s+)?(?:partial\s+)?(?:class|interface|struct|enum|record)\s+([A-Za-z_][A-Za-z0-9_]*)`,
		`(?m)^\s*namespace\s+([A-Za-z_][A-Za-z0-9_.]*)`,
	),
	"kotlin": pats(
		`(?m)^\s*(?:open\s+|data\s+|sealed\s+|abstract\s+)*(?:class|interface|object|enum class)\s+([A-Za-z_][A-Za-z0-9_]*)`,
		`(?m)^\s*(?:suspend\s+)?fun\s+(?:<[^>]*>\s+)?([A-Za-z_][A-Za-z0-9_]*)`,
	),
	"scala": pats(
		`(?m)^\s*(?:case\s+)?(?:class|object|trait)\s+([A-Za-z_][A-Za-z0-9_]*)`,
		`(?m)^\s*def\s+([A-Za-z_][A-Za-z0-9_]*)`,
	),
	"c": pats(
		`(?m)^[A-Za-z_][\w\s*]*\s\*?([A-Za-z_][A-Za-z0-9_]*)\s*\([^;]*$`,
		`(?m)^\s*(?:typedef\s+)?(?:struct|union|enum)\s+([A-Za-z_][A-Za-z0-9_]*)`,
		`(?m)^#define\s+([A-Za-z_][A-Za-z0-9_]*)`,
	),
	"cpp": pats(
		`(?m)^[A-Za-z_][\w\s:<>,*&]*\s[*&]?([A-Za-z_][A-Za-z0-9_]*)\s*\([^;]*$`,
		`(?m)^\s*(?:class|struct|enum(?:\s+class)?)\s+([A-Za-z_][A-Za-z0-9_]*)`,
		`(?m)^\s*namespace\s+([A-Za-z_][A-Za-z0-9_]*)`,
		`(?m)^#define\s+([A-Za-z_][A-Za-z0-9_]*)`,
	),
	"ruby": pats(
		`(?m)^\s*def\s+(?:self\.)?([A-Za-z_][A-Za-z0-9_?!]*)`,
		`(?m)^\s*(?:class|module)\s+([A-Z][A-Za-z0-9_]*)`,
	),
	"php": pats(
		`(?m)^\s*(?:public\s+|protected\s+|private\s+|static\s+)*function\s+([A-Za-z_][A-Za-z0-9_]*)`,
		`(?m)^\s*(?:abstract\s+|final\s+)?(?:class|interface|trait|enum)\s+([A-Za-z_][A-Za-z0-9_]*)`,
	),
	"swift": pats(
		`(?m)^\s*(?:public\s+|internal\s+|private\s+|open\s+|fileprivate\s+)?(?:static\s+)?func\s+([A-Za-z_][A-Za-z0-9_]*)`,
		`(?m)^\s*(?:public\s+|internal\s+|private\s+|open\s+|fileprivate\s+)?(?:final\s+)?(?:class|struct|enum|protocol|extension|actor)\s+([A-Za-z_][A-Za-z0-9_]*)`,
	),
}

// aliases fold related tags onto one rule family.
var aliases = map[string]string{
	"vue":    "typescript",
	"svelte": "typescript",
	"astro":  "typescript",
}

// Extract returns a whitespace-joined, deduplicated list of top-level
// identifiers declared in content, or "" for unknown languages.
// Identifiers shorter than two characters are dropped.
func Extract(content, language string) string {
	if target, ok := aliases[language]; ok {
		language = target
	}
	patterns, ok := languagePatterns[language]
	if !ok {
		return ""
	}

	seen := make(map[string]struct{})
	var out []string
	for _, p := range patterns {
		for _, match := range p.re.FindAllStringSubmatch(content, -1) {
			name := match[p.group]
			if len(name) < 2 {
				continue
			}
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	return strings.Join(out, " ")
}
