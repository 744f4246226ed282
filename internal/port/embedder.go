package port

import (
	"context"

	"dupguard/internal/domain"
)

// Embedder generates vector embeddings for code.
type Embedder interface {
	// Embed returns a vector of exactly Dimension() values. Malformed input or
	// responses are reported as domain.ErrEmbedding.
	Embed(ctx context.Context, text, language string) ([]float32, error)

	// Dimension returns the embedding vector dimension.
	Dimension() int

	// ModelName returns the name of the embedding model.
	ModelName() string
}

// VectorBackend is the raw contract of a remote vector database.
type VectorBackend interface {
	// Describe reports whether the collection exists and its vector size.
	Describe(ctx context.Context, collection string) (domain.CollectionInfo, error)

	// Create creates a collection and a keyword index on file_path. It returns
	// an error wrapping domain.ErrCollectionExists if the name is taken.
	Create(ctx context.Context, collection string, vectorSize int, distance domain.Distance) error

	// Drop deletes the collection and all its points.
	Drop(ctx context.Context, collection string) error

	// Upsert overwrites points by ID.
	Upsert(ctx context.Context, collection string, points []domain.Point) error

	// DeleteByPath removes every point whose payload file_path matches.
	DeleteByPath(ctx context.Context, collection, filePath string) error

	// DeletePoints removes points by ID.
	DeletePoints(ctx context.Context, collection string, ids []string) error

	// Query returns at most topK points scoring at least threshold.
	Query(ctx context.Context, collection string, vector []float32, topK int, threshold float64) ([]domain.SimilarityResult, error)

	Close() error
}
