package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"dupguard/internal/domain"
)

// RESTBackend talks to Qdrant's HTTP/JSON API.
type RESTBackend struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewRESTBackend creates a backend for baseURL, e.g. http://localhost:6333.
// Timeouts come from the caller's context.
func NewRESTBackend(baseURL, apiKey string) *RESTBackend {
	return &RESTBackend{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{},
	}
}

type restPoint struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload domain.Payload `json:"payload"`
}

type restFilter struct {
	Must []restCondition `json:"must"`
}

type restCondition struct {
	Key   string `json:"key"`
	Match struct {
		Value string `json:"value"`
	} `json:"match"`
}

func pathFilter(filePath string) restFilter {
	cond := restCondition{Key: "file_path"}
	cond.Match.Value = filePath
	return restFilter{Must: []restCondition{cond}}
}

func (b *RESTBackend) Describe(ctx context.Context, collection string) (domain.CollectionInfo, error) {
	var resp struct {
		Result struct {
			PointsCount *int64 `json:"points_count"`
			Config      struct {
				Params struct {
					Vectors struct {
						Size     int    `json:"size"`
						Distance string `json:"distance"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}

	err := b.doRequest(ctx, http.MethodGet, collectionPath(collection), nil, &resp)
	if errors.Is(err, domain.ErrCollectionNotFound) {
		return domain.CollectionInfo{Name: collection}, nil
	}
	if err != nil {
		return domain.CollectionInfo{}, err
	}

	info := domain.CollectionInfo{
		Name:       collection,
		Exists:     true,
		VectorSize: resp.Result.Config.Params.Vectors.Size,
		Distance:   domain.Distance(resp.Result.Config.Params.Vectors.Distance),
	}
	if resp.Result.PointsCount != nil {
		info.PointsCount = *resp.Result.PointsCount
	}
	return info, nil
}

func (b *RESTBackend) Create(ctx context.Context, collection string, vectorSize int, distance domain.Distance) error {
	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": string(distance),
		},
	}
	if err := b.doRequest(ctx, http.MethodPut, collectionPath(collection), reqBody, nil); err != nil {
		return err
	}

	index := map[string]any{
		"field_name":   "file_path",
		"field_schema": "keyword",
	}
	return b.doRequest(ctx, http.MethodPut, collectionPath(collection)+"/index?wait=true", index, nil)
}

func (b *RESTBackend) Drop(ctx context.Context, collection string) error {
	return b.doRequest(ctx, http.MethodDelete, collectionPath(collection), nil, nil)
}

func (b *RESTBackend) Upsert(ctx context.Context, collection string, points []domain.Point) error {
	body := struct {
		Points []restPoint `json:"points"`
	}{Points: make([]restPoint, len(points))}
	for i, p := range points {
		body.Points[i] = restPoint{ID: p.ID, Vector: p.Vector, Payload: p.Payload}
	}
	return b.doRequest(ctx, http.MethodPut, collectionPath(collection)+"/points?wait=true", body, nil)
}

func (b *RESTBackend) DeleteByPath(ctx context.Context, collection, filePath string) error {
	body := map[string]any{"filter": pathFilter(filePath)}
	return b.doRequest(ctx, http.MethodPost, collectionPath(collection)+"/points/delete?wait=true", body, nil)
}

func (b *RESTBackend) DeletePoints(ctx context.Context, collection string, ids []string) error {
	body := map[string]any{"points": ids}
	return b.doRequest(ctx, http.MethodPost, collectionPath(collection)+"/points/delete?wait=true", body, nil)
}

func (b *RESTBackend) Query(ctx context.Context, collection string, vector []float32, topK int, threshold float64) ([]domain.SimilarityResult, error) {
	reqBody := map[string]any{
		"vector":          vector,
		"limit":           topK,
		"with_payload":    true,
		"score_threshold": threshold,
	}

	var resp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload domain.Payload `json:"payload"`
		} `json:"result"`
	}
	if err := b.doRequest(ctx, http.MethodPost, collectionPath(collection)+"/points/search", reqBody, &resp); err != nil {
		return nil, err
	}

	results := make([]domain.SimilarityResult, 0, len(resp.Result))
	for _, item := range resp.Result {
		results = append(results, domain.SimilarityResult{
			ID:      fmt.Sprint(item.ID),
			Score:   item.Score,
			Payload: item.Payload,
		})
	}
	return results, nil
}

func (b *RESTBackend) Close() error {
	b.httpClient.CloseIdleConnections()
	return nil
}

func collectionPath(collection string) string {
	return "/collections/" + url.PathEscape(collection)
}

func (b *RESTBackend) doRequest(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal qdrant request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create qdrant request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		req.Header.Set("api-key", b.apiKey)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read qdrant response: %v", domain.ErrTransientStore, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrCollectionNotFound, strings.TrimSpace(string(data)))
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("%w: %s", domain.ErrCollectionExists, strings.TrimSpace(string(data)))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%w: qdrant API error: %d %s", domain.ErrTransientStore, resp.StatusCode, string(data))
	case resp.StatusCode >= 300:
		return fmt.Errorf("qdrant API error: %d %s", resp.StatusCode, string(data))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse qdrant response: %w", err)
	}
	return nil
}

// classifyTransportError marks network failures as transient. Caller
// cancellation is left as is so retries stop.
func classifyTransportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: qdrant request failed: %w", domain.ErrTransientStore, err)
	}
	return fmt.Errorf("qdrant request failed: %w", err)
}
