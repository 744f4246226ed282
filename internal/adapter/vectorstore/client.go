package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"dupguard/config"
	"dupguard/internal/adapter/logging"
	"dupguard/internal/adapter/telemetry"
	"dupguard/internal/domain"
	"dupguard/internal/port"
)

// pointNamespace seeds the name-based UUIDs used as point IDs.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("dupguard:point"))

// PointID derives the stable ID of the unit at (filePath, kind, offset), so
// re-indexing the same location overwrites the previous point.
func PointID(filePath string, kind domain.UnitKind, offset int) string {
	key := filePath + "\x00" + string(kind) + "\x00" + strconv.Itoa(offset)
	return uuid.NewSHA1(pointNamespace, []byte(key)).String()
}

// Client is the vector store client shared by the indexer and the guard.
// Every call gets a per-attempt timeout and transient failures are retried
// with exponential backoff.
type Client struct {
	backend        port.VectorBackend
	timeout        time.Duration
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

func NewClient(backend port.VectorBackend, cfg config.StoreConfig) *Client {
	c := &Client{
		backend:        backend,
		timeout:        cfg.Timeout,
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = 1
	}
	if c.initialBackoff <= 0 {
		c.initialBackoff = 100 * time.Millisecond
	}
	if c.maxBackoff < c.initialBackoff {
		c.maxBackoff = c.initialBackoff
	}
	return c
}

// EnsureCollection creates the collection if needed. An existing collection
// with another vector size or metric is reported, never rebuilt.
func (c *Client) EnsureCollection(ctx context.Context, name string, vectorSize int, distance domain.Distance) error {
	if vectorSize <= 0 {
		return fmt.Errorf("%w: invalid vector size %d", domain.ErrConfiguration, vectorSize)
	}

	info, err := c.Describe(ctx, name)
	if err != nil {
		return err
	}
	if !info.Exists {
		err = c.do(ctx, "create", name, func(ctx context.Context) error {
			return c.backend.Create(ctx, name, vectorSize, distance)
		})
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrCollectionExists) {
			return err
		}
		// lost a creation race, check what the winner made
		if info, err = c.Describe(ctx, name); err != nil {
			return err
		}
	}

	if info.VectorSize != vectorSize {
		return &domain.DimensionMismatchError{Collection: name, Existing: info.VectorSize, Requested: vectorSize}
	}
	if info.Distance != "" && info.Distance != distance {
		return &domain.DistanceMismatchError{Collection: name, Existing: info.Distance, Requested: distance}
	}
	return nil
}

// Describe reports the collection state. A missing collection is not an error.
func (c *Client) Describe(ctx context.Context, name string) (domain.CollectionInfo, error) {
	var info domain.CollectionInfo
	err := c.do(ctx, "describe", name, func(ctx context.Context) error {
		var err error
		info, err = c.backend.Describe(ctx, name)
		return err
	})
	info.Name = name
	return info, err
}

func (c *Client) DropCollection(ctx context.Context, name string) error {
	return c.do(ctx, "drop", name, func(ctx context.Context) error {
		err := c.backend.Drop(ctx, name)
		if errors.Is(err, domain.ErrCollectionNotFound) {
			return nil
		}
		return err
	})
}

// Upsert overwrites points by ID.
func (c *Client) Upsert(ctx context.Context, collection string, points []domain.Point) error {
	if len(points) == 0 {
		return nil
	}
	return c.do(ctx, "upsert", collection, func(ctx context.Context) error {
		return c.backend.Upsert(ctx, collection, points)
	})
}

// DeleteByPath removes every point whose payload file_path equals filePath.
func (c *Client) DeleteByPath(ctx context.Context, collection, filePath string) error {
	if filePath == "" {
		return nil
	}
	return c.do(ctx, "delete_by_path", collection, func(ctx context.Context) error {
		return c.backend.DeleteByPath(ctx, collection, filePath)
	})
}

func (c *Client) DeletePoints(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return c.do(ctx, "delete_points", collection, func(ctx context.Context) error {
		return c.backend.DeletePoints(ctx, collection, ids)
	})
}

// Query returns at most topK results scoring at least threshold, sorted by
// descending score. Scores are clamped to [0,1].
func (c *Client) Query(ctx context.Context, collection string, vector []float32, topK int, threshold float64) ([]domain.SimilarityResult, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}
	if topK <= 0 {
		topK = 5
	}

	var raw []domain.SimilarityResult
	err := c.do(ctx, "query", collection, func(ctx context.Context) error {
		var err error
		raw, err = c.backend.Query(ctx, collection, vector, topK, threshold)
		return err
	})
	if err != nil {
		return nil, err
	}

	results := make([]domain.SimilarityResult, 0, len(raw))
	for _, r := range raw {
		r.Score = clamp(r.Score)
		if r.Score < threshold {
			continue
		}
		results = append(results, r)
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (c *Client) Close() error {
	return c.backend.Close()
}

func (c *Client) do(ctx context.Context, op, collection string, fn func(ctx context.Context) error) error {
	ctx, span := telemetry.StartClientSpan(ctx, "vectorstore."+op,
		attribute.String("vectorstore.collection", collection))
	defer span.End()

	logger := logging.FromContext(ctx)
	attempts := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		actx := ctx
		if c.timeout > 0 {
			var cancel context.CancelFunc
			actx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}

		err := fn(actx)
		if err == nil {
			return struct{}{}, nil
		}
		if ctx.Err() != nil || !isTransient(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		logger.Debug("vector store call failed, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempts),
			zap.Error(err))
		return struct{}{}, err
	},
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(uint(c.maxAttempts)),
	)
	if err == nil {
		return nil
	}

	span.SetAttributes(attribute.Int("vectorstore.attempts", attempts))
	if isTransient(err) {
		err = &domain.StoreUnavailableError{Op: op, Attempts: attempts, Err: err}
	}
	telemetry.RecordError(span, err)
	return err
}

func (c *Client) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialBackoff
	b.MaxInterval = c.maxBackoff
	return b
}

// isTransient reports whether err is worth another attempt.
func isTransient(err error) bool {
	return errors.Is(err, domain.ErrTransientStore) || errors.Is(err, context.DeadlineExceeded)
}

func clamp(score float64) float64 {
	switch {
	case math.IsNaN(score) || score < 0:
		return 0
	case score > 1:
		return 1
	}
	return score
}
