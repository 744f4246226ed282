package chunker

import (
	"path/filepath"
	"strings"

	"dupguard/internal/domain"
)

// span is a structural unit found by a LanguageParser. Lines are 1-indexed
// and inclusive.
type span struct {
	Kind      domain.UnitKind
	Name      string
	StartLine int
	EndLine   int
}

// LanguageParser finds function and class spans in one language.
type LanguageParser interface {
	Parse(content string) ([]span, error)

	Language() string
}

var extensionLanguages = map[string]string{
	".go":    "go",
	".py":    "python",
	".pyw":   "python",
	".rb":    "ruby",
	".js":    "javascript",
	".jsx":   "javascript",
	".mjs":   "javascript",
	".cjs":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".java":  "java",
	".kt":    "kotlin",
	".kts":   "kotlin",
	".scala": "scala",
	".swift": "swift",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".cc":    "cpp",
	".cxx":   "cpp",
	".hpp":   "cpp",
	".hh":    "cpp",
	".cs":    "csharp",
	".rs":    "rust",
	".php":   "php",
	".sh":    "shell",
	".bash":  "shell",
	".md":    "markdown",
	".txt":   "text",
}

// DetectLanguage maps a file name to a language by extension. Unknown
// extensions yield "".
func DetectLanguage(path string) string {
	return extensionLanguages[strings.ToLower(filepath.Ext(path))]
}

// extractLines extracts lines from a slice (1-indexed, inclusive).
func extractLines(lines []string, startLine, endLine int) string {
	if startLine < 1 {
		startLine = 1
	}
	if endLine > len(lines) {
		endLine = len(lines)
	}
	if startLine > len(lines) || startLine > endLine {
		return ""
	}
	return strings.Join(lines[startLine-1:endLine], "\n")
}
