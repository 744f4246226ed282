package chunker

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"dupguard/config"
	"dupguard/internal/adapter/analyzer"
	"dupguard/internal/domain"
	"dupguard/internal/port"
)

// binarySniffLen is how much of a file is checked for NUL bytes.
const binarySniffLen = 8 << 10

// Extractor turns file content into code units. Structural parsers are
// tried first; files they cannot parse, or in which they find nothing, are
// split into line windows.
type Extractor struct {
	parsers      map[string]LanguageParser
	fallback     *LineChunker
	maxFileBytes int64
	minUnitChars int
}

var _ port.Extractor = (*Extractor)(nil)

func NewExtractor(cfg config.IndexConfig) *Extractor {
	e := &Extractor{
		parsers:      make(map[string]LanguageParser),
		fallback:     NewLineChunker(cfg.ChunkLines, cfg.ChunkOverlap),
		maxFileBytes: cfg.MaxFileBytes,
		minUnitChars: cfg.MinUnitChars,
	}
	e.RegisterParser(NewGoParser())
	for lang := range bracePatterns {
		e.RegisterParser(NewBraceParser(lang))
	}
	e.RegisterParser(NewIndentParser("python"))
	e.RegisterParser(NewIndentParser("ruby"))
	return e
}

func (e *Extractor) RegisterParser(parser LanguageParser) {
	e.parsers[parser.Language()] = parser
}

// Extract never fails: binary, oversized and empty files yield no units,
// and parse errors fall back to line windows. language may be empty, in
// which case it is detected from filePath.
func (e *Extractor) Extract(filePath string, content []byte, language string) []domain.CodeUnit {
	if len(content) == 0 || IsBinary(content) {
		return nil
	}
	if e.maxFileBytes > 0 && int64(len(content)) > e.maxFileBytes {
		return nil
	}
	if language == "" {
		language = DetectLanguage(filePath)
	}

	text := strings.ReplaceAll(string(content), "\r\n", "\n")
	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")

	var spans []span
	if parser, ok := e.parsers[language]; ok {
		if parsed, err := parser.Parse(text); err == nil {
			spans = parsed
		}
	}
	if len(spans) == 0 {
		spans = e.fallback.Chunk(lines)
		kind := domain.UnitChunk
		if len(spans) == 1 {
			kind = domain.UnitFile
		}
		for i := range spans {
			spans[i].Kind = kind
		}
	}

	units := make([]domain.CodeUnit, 0, len(spans))
	seen := make(map[string]struct{}, len(spans))
	for _, s := range spans {
		norm := analyzer.Normalize(extractLines(lines, s.StartLine, s.EndLine), language)
		if len([]rune(norm)) < e.minUnitChars {
			continue
		}
		// point ids are derived from kind and offset, so a second span
		// starting on the same line is dropped
		key := string(s.Kind) + ":" + strconv.Itoa(s.StartLine)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		units = append(units, domain.CodeUnit{
			FilePath:    filePath,
			Kind:        s.Kind,
			Name:        s.Name,
			Language:    language,
			StartLine:   s.StartLine,
			EndLine:     s.EndLine,
			Offset:      s.StartLine,
			Text:        norm,
			ContentHash: ContentHash(norm),
		})
	}
	return units
}

// ContentHash is the hex SHA-256 of normalized unit text.
func ContentHash(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// IsBinary reports whether the head of content contains a NUL byte.
func IsBinary(content []byte) bool {
	head := content
	if len(head) > binarySniffLen {
		head = head[:binarySniffLen]
	}
	return bytes.IndexByte(head, 0) >= 0
}
