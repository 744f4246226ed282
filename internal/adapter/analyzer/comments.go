package analyzer

import "strings"

// commentSyntax describes how one language family writes comments.
type commentSyntax struct {
	line       []string
	blockStart string
	blockEnd   string
	// blockAtLineStart requires block markers to begin a line (ruby =begin).
	blockAtLineStart bool
	quotes           string
}

var (
	cStyle = commentSyntax{line: []string{"//"}, blockStart: "/*", blockEnd: "*/", quotes: "\"'`"}
	hash   = commentSyntax{line: []string{"#"}, quotes: "\"'"}
)

var commentSyntaxes = map[string]commentSyntax{
	"go":         cStyle,
	"javascript": cStyle,
	"typescript": cStyle,
	"java":       cStyle,
	"c":          cStyle,
	"cpp":        cStyle,
	"csharp":     cStyle,
	"rust":       cStyle,
	"kotlin":     cStyle,
	"swift":      cStyle,
	"scala":      cStyle,
	"php":        {line: []string{"//", "#"}, blockStart: "/*", blockEnd: "*/", quotes: "\"'"},
	"python":     hash,
	"shell":      hash,
	"ruby":       {line: []string{"#"}, blockStart: "=begin", blockEnd: "=end", blockAtLineStart: true, quotes: "\"'"},
}

// HasCommentSyntax reports whether StripComments understands lang.
func HasCommentSyntax(lang string) bool {
	_, ok := commentSyntaxes[lang]
	return ok
}

// StripComments removes comments from content while keeping every newline,
// so line numbers still match the original. String literals are left alone.
// Unknown languages are returned unchanged.
func StripComments(content, lang string) string {
	syn, ok := commentSyntaxes[lang]
	if !ok {
		return content
	}

	var out strings.Builder
	out.Grow(len(content))

	inBlock := false
	var quote byte
	atLineStart := true

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if inBlock {
			if ch == '\n' {
				out.WriteByte('\n')
				atLineStart = true
				continue
			}
			if (!syn.blockAtLineStart || atLineStart) && strings.HasPrefix(content[i:], syn.blockEnd) {
				inBlock = false
				i += len(syn.blockEnd) - 1
			}
			atLineStart = false
			continue
		}

		if quote != 0 {
			out.WriteByte(ch)
			switch {
			case ch == '\\' && i+1 < len(content):
				i++
				out.WriteByte(content[i])
			case ch == quote:
				quote = 0
			case ch == '\n' && quote != '`':
				quote = 0 // unterminated literal
			}
			atLineStart = ch == '\n'
			continue
		}

		if syn.blockStart != "" && (!syn.blockAtLineStart || atLineStart) && strings.HasPrefix(content[i:], syn.blockStart) {
			inBlock = true
			i += len(syn.blockStart) - 1
			atLineStart = false
			continue
		}

		if marker := lineMarkerAt(content[i:], syn.line); marker {
			for i < len(content) && content[i] != '\n' {
				i++
			}
			if i < len(content) {
				out.WriteByte('\n')
			}
			atLineStart = true
			continue
		}

		if strings.IndexByte(syn.quotes, ch) >= 0 {
			quote = ch
		}
		out.WriteByte(ch)
		atLineStart = ch == '\n'
	}

	return out.String()
}

func lineMarkerAt(s string, markers []string) bool {
	for _, m := range markers {
		if strings.HasPrefix(s, m) {
			return true
		}
	}
	return false
}

// Normalize strips comments, trims trailing whitespace and drops blank
// lines, so cosmetic edits do not change a unit's content hash.
func Normalize(content, lang string) string {
	lines := strings.Split(StripComments(content, lang), "\n")

	out := lines[:0]
	for _, line := range lines {
		line = strings.TrimRight(line, " \t\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
