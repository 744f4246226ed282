package chunker

import (
	"regexp"
	"strings"

	"dupguard/internal/adapter/analyzer"
	"dupguard/internal/domain"
)

type declPattern struct {
	kind domain.UnitKind
	re   *regexp.Regexp
	// group holding the declared name
	group int
}

var (
	classDecl = declPattern{
		kind:  domain.UnitClass,
		re:    regexp.MustCompile(`^\s*(?:(?:export|default|public|private|protected|internal|static|final|abstract|sealed|open|data|pub(?:\([^)]*\))?|partial|readonly)\s+)*(?:class|interface|struct|enum|trait|impl|object|record|union)\s+([A-Za-z_]\w*)`),
		group: 1,
	}
	cFuncDecl = declPattern{
		kind:  domain.UnitFunction,
		re:    regexp.MustCompile(`^\s*(?:(?:public|private|protected|internal|static|final|virtual|override|async|inline|extern|unsafe|abstract|synchronized|sealed|const|constexpr)\s+)*[A-Za-z_][\w:<>\[\],\.]*[\s\*&]+\**&?([A-Za-z_]\w*)\s*\(`),
		group: 1,
	}
	jsFuncDecl = declPattern{
		kind:  domain.UnitFunction,
		re:    regexp.MustCompile(`^\s*(?:export\s+)?(?:default\s+)?(?:async\s+)?function\s*\*?\s*([A-Za-z_$][\w$]*)\s*\(`),
		group: 1,
	}
	jsArrowDecl = declPattern{
		kind:  domain.UnitFunction,
		re:    regexp.MustCompile(`^\s*(?:export\s+)?(?:const|let|var)\s+([A-Za-z_$][\w$]*)\s*(?::[^=]+)?=\s*(?:async\s+)?(?:\([^)]*\)|[A-Za-z_$][\w$]*)\s*(?::[^=]+)?=>`),
		group: 1,
	}
	jsMethodDecl = declPattern{
		kind:  domain.UnitFunction,
		re:    regexp.MustCompile(`^\s*(?:(?:public|private|protected|static|async|readonly|get|set)\s+)*([A-Za-z_$][\w$]*)\s*\([^;]*\)\s*(?::\s*[^{;]+)?\{\s*$`),
		group: 1,
	}
	keywordFuncDecl = func(keyword string) declPattern {
		return declPattern{
			kind:  domain.UnitFunction,
			re:    regexp.MustCompile(`^\s*(?:[a-z]+(?:\([^)]*\))?\s+)*` + keyword + `\s+(?:<[^>]*>\s*)?(?:[A-Za-z_][\w.]*\.)?([A-Za-z_]\w*)`),
			group: 1,
		}
	}
)

var controlWords = map[string]struct{}{
	"if": {}, "for": {}, "while": {}, "switch": {}, "catch": {}, "return": {},
	"else": {}, "new": {}, "do": {}, "try": {}, "using": {}, "lock": {},
	"foreach": {}, "sizeof": {}, "typeof": {}, "delete": {}, "throw": {},
	"case": {}, "await": {}, "yield": {}, "function": {},
}

var bracePatterns = map[string][]declPattern{
	"javascript": {classDecl, jsFuncDecl, jsArrowDecl, jsMethodDecl},
	"typescript": {classDecl, jsFuncDecl, jsArrowDecl, jsMethodDecl},
	"java":       {classDecl, cFuncDecl},
	"csharp":     {classDecl, cFuncDecl},
	"c":          {classDecl, cFuncDecl},
	"cpp":        {classDecl, cFuncDecl},
	"rust":       {classDecl, keywordFuncDecl("fn")},
	"kotlin":     {classDecl, keywordFuncDecl("fun")},
	"scala":      {classDecl, keywordFuncDecl("def")},
	"swift":      {classDecl, keywordFuncDecl("func")},
	"php":        {classDecl, keywordFuncDecl("function")},
}

// BraceParser finds declarations by pattern and their extent by matching
// braces. Comments are stripped before matching so commented-out code and
// braces inside comments are ignored.
type BraceParser struct {
	language string
	patterns []declPattern
}

// NewBraceParser returns nil for languages without brace patterns.
func NewBraceParser(language string) *BraceParser {
	patterns, ok := bracePatterns[language]
	if !ok {
		return nil
	}
	return &BraceParser{language: language, patterns: patterns}
}

func (p *BraceParser) Language() string {
	return p.language
}

func (p *BraceParser) Parse(content string) ([]span, error) {
	lines := strings.Split(analyzer.StripComments(content, p.language), "\n")

	var spans []span
	for i, line := range lines {
		kind, name, ok := p.match(line)
		if !ok {
			continue
		}
		end, ok := closingLine(lines, i)
		if !ok {
			continue
		}
		spans = append(spans, span{
			Kind:      kind,
			Name:      name,
			StartLine: i + 1,
			EndLine:   end + 1,
		})
	}
	return spans, nil
}

func (p *BraceParser) match(line string) (domain.UnitKind, string, bool) {
	for _, pat := range p.patterns {
		m := pat.re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name := m[pat.group]
		if _, ok := controlWords[name]; ok {
			continue
		}
		return pat.kind, name, true
	}
	return "", "", false
}

// closingLine finds the body opened after line start and returns the index
// of the line holding its closing brace. A ';' before the first '{' means a
// declaration without a body.
func closingLine(lines []string, start int) (int, bool) {
	depth := 0
	opened := false
	var quote rune

	for i := start; i < len(lines); i++ {
		escaped := false
		for _, r := range lines[i] {
			if quote != 0 {
				switch {
				case escaped:
					escaped = false
				case r == '\\':
					escaped = true
				case r == quote:
					quote = 0
				}
				continue
			}
			switch r {
			case '"', '\'', '`':
				quote = r
			case ';':
				if !opened && depth == 0 {
					return 0, false
				}
			case '{':
				depth++
				opened = true
			case '}':
				depth--
				if opened && depth == 0 {
					return i, true
				}
				if depth < 0 {
					return 0, false
				}
			}
		}
		// single and double quoted literals never span lines
		if quote != '`' {
			quote = 0
		}
	}
	return 0, false
}
