package config

import "strings"

// supportedExtensions is the canonical allow-list of lowercase file
// extensions (without the leading dot) considered indexable. Both the
// lexical pipeline and the vector collector consult this single list.
var supportedExtensions = map[string]struct{}{}

func init() {
	for _, ext := range []string{
		// JavaScript / TypeScript
		"ts", "tsx", "js", "jsx", "mjs", "cjs",
		// Systems / compiled
		"rs", "py", "go", "java", "c", "cpp", "h", "hpp",
		"cs", "rb", "php", "swift", "kt", "scala",
		// Web
		"html", "css", "scss", "less", "sass",
		// Data / config
		"json", "yaml", "yml", "toml", "xml",
		// Documentation
		"md", "mdx", "txt", "rst",
		// Query / schema
		"sql", "graphql", "gql",
		// Shell
		"sh", "bash", "zsh", "fish", "ps1", "bat", "cmd",
		// Build / container
		"dockerfile", "makefile",
		// Frontend frameworks
		"vue", "svelte", "astro",
		// Misc languages
		"lua", "zig", "nim", "dart", "elixir", "ex", "exs",
		"r", "jl", "clj", "cljs", "cljc", "erl", "hrl",
		// Infra / IPC
		"tf", "hcl", "proto",
		// Dotfiles / config
		"env", "ini", "cfg", "conf",
	} {
		supportedExtensions[ext] = struct{}{}
	}
}

// IsSupportedExtension reports whether ext (without leading dot, any case)
// is in the shared supported-extensions list.
func IsSupportedExtension(ext string) bool {
	_, ok := supportedExtensions[strings.ToLower(ext)]
	return ok
}

// specialFileNames are well-known files indexed regardless of extension.
var specialFileNames = map[string]struct{}{
	"dockerfile": {}, "makefile": {}, "cmakelists.txt": {}, "cargo.toml": {},
	"package.json": {}, "tsconfig.json": {}, "pyproject.toml": {},
	".gitignore": {}, ".eslintrc": {}, ".prettierrc": {},
	"readme": {}, "license": {}, "changelog": {}, "contributing": {},
}

// IsSpecialFileName reports whether a bare file name (any case) is one of
// the well-known extensionless files worth indexing.
func IsSpecialFileName(name string) bool {
	_, ok := specialFileNames[strings.ToLower(name)]
	return ok
}

// excludedDirectories is the canonical set of directory names excluded from
// indexing, file walking, grep, and tree display.
var excludedDirectories = map[string]struct{}{
	"node_modules": {}, ".git": {}, "target": {}, "dist": {}, "build": {},
	"out": {}, ".next": {}, ".nuxt": {}, ".output": {}, ".vite": {},
	".turbo": {}, ".svelte-kit": {}, ".parcel-cache": {}, "__pycache__": {},
	".tox": {}, ".mypy_cache": {}, ".pytest_cache": {}, ".ruff_cache": {},
	"coverage": {}, ".nyc_output": {}, ".cache": {}, "vendor": {},
	".gradle": {}, ".maven": {}, ".terraform": {}, ".eggs": {},
	".vscode": {}, ".idea": {}, ".angular": {}, ".expo": {}, ".vercel": {},
	".netlify": {}, ".serverless": {}, ".aws-sam": {}, "__generated__": {},
	".cargo": {},
}

// IsExcludedDirectory reports whether a single directory name is excluded.
// Also covers suffix patterns such as *.egg-info.
func IsExcludedDirectory(name string) bool {
	if _, ok := excludedDirectories[name]; ok {
		return true
	}
	return strings.HasSuffix(name, ".egg-info")
}

// MatchesUserPatterns reports whether a name matches any user-supplied
// exclusion pattern. Patterns support exact names (with an optional
// trailing /** or /*), *suffix, and prefix* shapes; matching is
// case-insensitive.
func MatchesUserPatterns(name string, patterns []string) bool {
	nameLower := strings.ToLower(name)
	for _, pattern := range patterns {
		p := strings.ToLower(strings.TrimSpace(pattern))
		if p == "" {
			continue
		}
		dirPattern := strings.TrimSuffix(strings.TrimSuffix(p, "/**"), "/*")
		if nameLower == dirPattern {
			return true
		}
		if suffix, ok := strings.CutPrefix(p, "*"); ok && strings.HasSuffix(nameLower, suffix) {
			return true
		}
		if prefix, ok := strings.CutSuffix(p, "*"); ok && strings.HasPrefix(nameLower, prefix) {
			return true
		}
	}
	return false
}

// DetectLanguage maps a file extension (without leading dot) to a language
// tag. Unknown extensions map to plaintext.
func DetectLanguage(ext string) string {
	switch strings.ToLower(ext) {
	case "ts", "tsx":
		return "typescript"
	case "js", "jsx", "mjs", "cjs":
		return "javascript"
	case "rs":
		return "rust"
	case "py", "pyi", "pyw":
		return "python"
	case "go":
		return "go"
	case "java":
		return "java"
	case "c", "h":
		return "c"
	case "cpp", "hpp", "cc", "cxx", "hxx":
		return "cpp"
	case "cs":
		return "csharp"
	case "rb", "rake":
		return "ruby"
	case "php":
		return "php"
	case "swift":
		return "swift"
	case "kt", "kts":
		return "kotlin"
	case "scala", "sc":
		return "scala"
	case "html", "htm":
		return "html"
	case "css":
		return "css"
	case "scss", "sass", "less":
		return "scss"
	case "json", "jsonc":
		return "json"
	case "yaml", "yml":
		return "yaml"
	case "toml":
		return "toml"
	case "xml", "xsl", "xslt":
		return "xml"
	case "md", "mdx", "rst":
		return "markdown"
	case "sql":
		return "sql"
	case "graphql", "gql":
		return "graphql"
	case "sh", "bash", "zsh", "fish":
		return "shell"
	case "ps1", "psm1", "psd1":
		return "powershell"
	case "bat", "cmd":
		return "batch"
	case "vue":
		return "vue"
	case "svelte":
		return "svelte"
	case "astro":
		return "astro"
	case "lua":
		return "lua"
	case "zig":
		return "zig"
	case "nim":
		return "nim"
	case "dart":
		return "dart"
	case "elixir", "ex", "exs":
		return "elixir"
	case "erl", "hrl":
		return "erlang"
	case "r":
		return "r"
	case "jl":
		return "julia"
	case "clj", "cljs", "cljc":
		return "clojure"
	case "tf", "hcl":
		return "hcl"
	case "proto":
		return "protobuf"
	case "dockerfile":
		return "dockerfile"
	case "makefile":
		return "makefile"
	case "ini", "cfg", "conf":
		return "ini"
	case "env":
		return "dotenv"
	default:
		return "plaintext"
	}
}
