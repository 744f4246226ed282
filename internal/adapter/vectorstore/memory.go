package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"dupguard/internal/domain"
)

// MemoryBackend keeps collections in process memory and searches them by
// brute-force cosine similarity. It is used for tests and offline runs.
type MemoryBackend struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
}

type memCollection struct {
	size     int
	distance domain.Distance
	points   map[string]domain.Point
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{collections: make(map[string]*memCollection)}
}

func (m *MemoryBackend) Describe(_ context.Context, collection string) (domain.CollectionInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.collections[collection]
	if !ok {
		return domain.CollectionInfo{Name: collection}, nil
	}
	return domain.CollectionInfo{
		Name:        collection,
		Exists:      true,
		VectorSize:  c.size,
		Distance:    c.distance,
		PointsCount: int64(len(c.points)),
	}, nil
}

func (m *MemoryBackend) Create(_ context.Context, collection string, vectorSize int, distance domain.Distance) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.collections[collection]; ok {
		return fmt.Errorf("%w: %s", domain.ErrCollectionExists, collection)
	}
	m.collections[collection] = &memCollection{
		size:     vectorSize,
		distance: distance,
		points:   make(map[string]domain.Point),
	}
	return nil
}

func (m *MemoryBackend) Drop(_ context.Context, collection string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.collections[collection]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrCollectionNotFound, collection)
	}
	delete(m.collections, collection)
	return nil
}

func (m *MemoryBackend) Upsert(_ context.Context, collection string, points []domain.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.get(collection)
	if err != nil {
		return err
	}
	for _, p := range points {
		if len(p.Vector) != c.size {
			return fmt.Errorf("vector dimension mismatch: expected %d, got %d", c.size, len(p.Vector))
		}
	}
	for _, p := range points {
		p.Vector = append([]float32(nil), p.Vector...)
		c.points[p.ID] = p
	}
	return nil
}

func (m *MemoryBackend) DeleteByPath(_ context.Context, collection, filePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.get(collection)
	if err != nil {
		return err
	}
	for id, p := range c.points {
		if p.Payload.FilePath == filePath {
			delete(c.points, id)
		}
	}
	return nil
}

func (m *MemoryBackend) DeletePoints(_ context.Context, collection string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.get(collection)
	if err != nil {
		return err
	}
	for _, id := range ids {
		delete(c.points, id)
	}
	return nil
}

func (m *MemoryBackend) Query(_ context.Context, collection string, vector []float32, topK int, threshold float64) ([]domain.SimilarityResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, err := m.get(collection)
	if err != nil {
		return nil, err
	}
	if len(vector) != c.size {
		return nil, fmt.Errorf("query dimension mismatch: expected %d, got %d", c.size, len(vector))
	}

	results := make([]domain.SimilarityResult, 0)
	for id, p := range c.points {
		score := cosineSimilarity(vector, p.Vector)
		if score < threshold {
			continue
		}
		results = append(results, domain.SimilarityResult{ID: id, Score: score, Payload: p.Payload})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Points returns a copy of every point in the collection.
func (m *MemoryBackend) Points(collection string) []domain.Point {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.collections[collection]
	if !ok {
		return nil
	}
	points := make([]domain.Point, 0, len(c.points))
	for _, p := range c.points {
		points = append(points, p)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].ID < points[j].ID })
	return points
}

func (m *MemoryBackend) Close() error { return nil }

func (m *MemoryBackend) get(collection string) (*memCollection, error) {
	c, ok := m.collections[collection]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrCollectionNotFound, collection)
	}
	return c, nil
}

// cosineSimilarity calculates the cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
