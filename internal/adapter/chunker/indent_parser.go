package chunker

import (
	"regexp"
	"strings"

	"dupguard/internal/adapter/analyzer"
	"dupguard/internal/domain"
)

var (
	pyDefRe   = regexp.MustCompile(`^(\s*)(?:async\s+)?def\s+([A-Za-z_]\w*)`)
	pyClassRe = regexp.MustCompile(`^(\s*)class\s+([A-Za-z_]\w*)`)
	rbDefRe   = regexp.MustCompile(`^(\s*)def\s+((?:self\.)?[A-Za-z_]\w*[?!=]?)`)
	rbClassRe = regexp.MustCompile(`^(\s*)(?:class|module)\s+([A-Z]\w*(?:::\w+)*)`)
	rbEndRe   = regexp.MustCompile(`^(\s*)end\b`)
)

// IndentParser handles Python, where a block ends at the first non-blank
// line indented no deeper than its header, and Ruby, where it ends at the
// "end" aligned with the header.
type IndentParser struct {
	language string
}

// NewIndentParser returns nil for languages other than python and ruby.
func NewIndentParser(language string) *IndentParser {
	if language != "python" && language != "ruby" {
		return nil
	}
	return &IndentParser{language: language}
}

func (p *IndentParser) Language() string {
	return p.language
}

func (p *IndentParser) Parse(content string) ([]span, error) {
	lines := strings.Split(analyzer.StripComments(content, p.language), "\n")
	if p.language == "ruby" {
		return parseRuby(lines), nil
	}
	return parsePython(lines), nil
}

func parsePython(lines []string) []span {
	var spans []span
	for i, line := range lines {
		kind := domain.UnitFunction
		m := pyDefRe.FindStringSubmatch(line)
		if m == nil {
			kind = domain.UnitClass
			if m = pyClassRe.FindStringSubmatch(line); m == nil {
				continue
			}
		}
		indent := indentWidth(m[1])
		headerEnd := headerEndLine(lines, i)

		end := headerEnd
		for j := headerEnd + 1; j < len(lines); j++ {
			if strings.TrimSpace(lines[j]) == "" {
				continue
			}
			if indentWidth(lines[j]) <= indent {
				break
			}
			end = j
		}
		spans = append(spans, span{Kind: kind, Name: m[2], StartLine: i + 1, EndLine: end + 1})
	}
	return spans
}

// headerEndLine skips continuation lines of a header whose parameter list
// spans several lines.
func headerEndLine(lines []string, start int) int {
	depth := 0
	for i := start; i < len(lines); i++ {
		depth += strings.Count(lines[i], "(") + strings.Count(lines[i], "[")
		depth -= strings.Count(lines[i], ")") + strings.Count(lines[i], "]")
		if depth <= 0 {
			return i
		}
	}
	return start
}

func parseRuby(lines []string) []span {
	var spans []span
	for i, line := range lines {
		kind := domain.UnitFunction
		m := rbDefRe.FindStringSubmatch(line)
		if m == nil {
			kind = domain.UnitClass
			if m = rbClassRe.FindStringSubmatch(line); m == nil {
				continue
			}
		}
		// endless method: def twice(x) = x * 2
		rest := strings.TrimSpace(line[len(m[0]):])
		if strings.HasPrefix(rest, "(") {
			if k := strings.Index(rest, ")"); k >= 0 {
				rest = strings.TrimSpace(rest[k+1:])
			}
		}
		if kind == domain.UnitFunction && strings.HasPrefix(rest, "=") {
			spans = append(spans, span{Kind: kind, Name: m[2], StartLine: i + 1, EndLine: i + 1})
			continue
		}
		indent := indentWidth(m[1])
		for j := i + 1; j < len(lines); j++ {
			e := rbEndRe.FindStringSubmatch(lines[j])
			if e != nil && indentWidth(e[1]) == indent {
				spans = append(spans, span{Kind: kind, Name: m[2], StartLine: i + 1, EndLine: j + 1})
				break
			}
		}
	}
	return spans
}

// indentWidth counts leading whitespace with tabs expanded to 8 columns.
func indentWidth(s string) int {
	w := 0
	for _, r := range s {
		switch r {
		case ' ':
			w++
		case '\t':
			w += 8 - w%8
		default:
			return w
		}
	}
	return w
}
