package port

import "dupguard/internal/domain"

// Extractor splits a file into indexable code units.
type Extractor interface {
	Extract(filePath string, content []byte, language string) []domain.CodeUnit
}
