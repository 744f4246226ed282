package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"

	"dupguard/internal/adapter/analyzer"
	"dupguard/internal/domain"
)

const (
	bigramWeight  = 0.7
	subwordWeight = 0.5
)

// HashingEmbedder maps code to a fixed-size vector by feature hashing its
// token unigrams, token bigrams and identifier subwords. It needs no model
// or network, and identical token streams always get identical vectors.
type HashingEmbedder struct {
	dimension int
	model     string
	tokenizer *analyzer.Tokenizer
}

func NewHashingEmbedder(dimension int, model string) *HashingEmbedder {
	if model == "" {
		model = "feature-hash-v1"
	}
	return &HashingEmbedder{
		dimension: dimension,
		model:     model,
		tokenizer: analyzer.NewTokenizer(),
	}
}

func (e *HashingEmbedder) Embed(ctx context.Context, text, language string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.dimension <= 0 {
		return nil, fmt.Errorf("%w: invalid dimension %d", domain.ErrEmbedding, e.dimension)
	}

	tokens := e.tokenizer.CodeTokens(text)
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: no tokens in input", domain.ErrEmbedding)
	}

	acc := make([]float64, e.dimension)
	for i, tok := range tokens {
		e.add(acc, "u:"+tok, 1)
		if i > 0 {
			e.add(acc, "b:"+tokens[i-1]+" "+tok, bigramWeight)
		}
	}
	for _, w := range e.tokenizer.Tokenize(text) {
		e.add(acc, "w:"+w, subwordWeight)
	}

	var norm float64
	for _, v := range acc {
		norm += v * v
	}
	if norm == 0 {
		return nil, fmt.Errorf("%w: zero vector", domain.ErrEmbedding)
	}
	norm = math.Sqrt(norm)

	vec := make([]float32, e.dimension)
	for i, v := range acc {
		vec[i] = float32(v / norm)
	}
	return vec, nil
}

// add hashes feature into a bucket; one hash bit picks the sign so
// collisions cancel out on average.
func (e *HashingEmbedder) add(acc []float64, feature string, weight float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(e.dimension))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	acc[idx] += weight
}

func (e *HashingEmbedder) Dimension() int {
	return e.dimension
}

func (e *HashingEmbedder) ModelName() string {
	return e.model
}
