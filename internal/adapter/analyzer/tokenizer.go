package analyzer

import (
	"strings"
	"unicode"
)

// Tokenizer splits source code into lexical tokens and identifier subwords.
type Tokenizer struct {
	stopwords map[string]struct{}
}

// NewTokenizer creates a new Tokenizer.
func NewTokenizer() *Tokenizer {
	return &Tokenizer{stopwords: defaultStopwords()}
}

// Tokenize returns lowercase identifier words and their camelCase/snake_case
// parts, without stopwords or single characters.
func (t *Tokenizer) Tokenize(text string) []string {
	words := splitWords(text)
	tokens := make([]string, 0, len(words))

	add := func(w string) {
		w = strings.ToLower(w)
		if len(w) < 2 {
			return
		}
		if _, isStop := t.stopwords[w]; isStop {
			return
		}
		tokens = append(tokens, w)
	}

	for _, word := range words {
		add(word)
		parts := splitIdentifier(word)
		if len(parts) > 1 {
			for _, p := range parts {
				add(p)
			}
		}
	}
	return tokens
}

// CodeTokens returns the lexical stream of code: whole identifiers and
// numbers lowercased, and every other non-space rune as its own token.
func (t *Tokenizer) CodeTokens(text string) []string {
	var tokens []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, strings.ToLower(current.String()))
			current.Reset()
		}
	}

	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			current.WriteRune(r)
		case unicode.IsSpace(r):
			flush()
		default:
			flush()
			tokens = append(tokens, string(r))
		}
	}
	flush()
	return tokens
}

// splitWords splits text into words using unicode word boundaries.
func splitWords(text string) []string {
	var words []string
	var current strings.Builder

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			current.WriteRune(r)
		} else {
			if current.Len() > 0 {
				words = append(words, current.String())
				current.Reset()
			}
		}
	}
	if current.Len() > 0 {
		words = append(words, current.String())
	}

	return words
}

// splitIdentifier breaks snake_case and camelCase (including acronym runs
// like HTTPServer) into parts.
func splitIdentifier(word string) []string {
	var parts []string
	for _, chunk := range strings.Split(word, "_") {
		runes := []rune(chunk)
		start := 0
		for i := 1; i < len(runes); i++ {
			prev, cur := runes[i-1], runes[i]
			boundary := unicode.IsLower(prev) && unicode.IsUpper(cur) ||
				unicode.IsLetter(prev) != unicode.IsLetter(cur) ||
				i+1 < len(runes) && unicode.IsUpper(prev) && unicode.IsUpper(cur) && unicode.IsLower(runes[i+1])
			if boundary {
				parts = append(parts, string(runes[start:i]))
				start = i
			}
		}
		if start < len(runes) {
			parts = append(parts, string(runes[start:]))
		}
	}
	return parts
}

// defaultStopwords holds keywords too common across languages to say
// anything about what a unit does.
func defaultStopwords() map[string]struct{} {
	stops := []string{
		"the", "an", "and", "or", "of", "to", "in", "is", "it",
		"var", "let", "const", "func", "function", "def", "fn", "return",
		"if", "else", "for", "while", "do", "end", "self", "this",
		"public", "private", "protected", "static", "void", "new",
	}
	m := make(map[string]struct{}, len(stops))
	for _, s := range stops {
		m[s] = struct{}{}
	}
	return m
}
