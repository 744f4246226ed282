package vectorstore

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dupguard/internal/domain"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   map[string]any
	APIKey string
}

func newQdrantStub(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var mu sync.Mutex
	var reqs []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		rec := recordedRequest{Method: r.Method, Path: r.URL.Path, APIKey: r.Header.Get("api-key")}
		if len(data) > 0 {
			_ = json.Unmarshal(data, &rec.Body)
		}
		mu.Lock()
		reqs = append(reqs, rec)
		mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &reqs
}

func TestREST_DescribeMissingCollection(t *testing.T) {
	srv, _ := newQdrantStub(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"status":{"error":"Not found"}}`, http.StatusNotFound)
	})

	info, err := NewRESTBackend(srv.URL, "").Describe(context.Background(), "ws")
	require.NoError(t, err)
	assert.False(t, info.Exists)
}

func TestREST_DescribeExisting(t *testing.T) {
	srv, _ := newQdrantStub(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"result":{"points_count":7,"config":{"params":{"vectors":{"size":384,"distance":"Cosine"}}}}}`)
	})

	info, err := NewRESTBackend(srv.URL, "").Describe(context.Background(), "ws")
	require.NoError(t, err)
	assert.True(t, info.Exists)
	assert.Equal(t, 384, info.VectorSize)
	assert.Equal(t, domain.Cosine, info.Distance)
	assert.Equal(t, int64(7), info.PointsCount)
}

func TestREST_CreateAddsPathIndex(t *testing.T) {
	srv, reqs := newQdrantStub(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"result":true}`)
	})

	require.NoError(t, NewRESTBackend(srv.URL, "secret").Create(context.Background(), "ws", 384, domain.Cosine))
	require.Len(t, *reqs, 2)

	create := (*reqs)[0]
	assert.Equal(t, http.MethodPut, create.Method)
	assert.Equal(t, "/collections/ws", create.Path)
	assert.Equal(t, "secret", create.APIKey)
	vectors := create.Body["vectors"].(map[string]any)
	assert.Equal(t, float64(384), vectors["size"])
	assert.Equal(t, "Cosine", vectors["distance"])

	index := (*reqs)[1]
	assert.Equal(t, "/collections/ws/index", index.Path)
	assert.Equal(t, "file_path", index.Body["field_name"])
}

func TestREST_UpsertPayloadShape(t *testing.T) {
	srv, reqs := newQdrantStub(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"result":{"status":"completed"}}`)
	})

	p := domain.Point{
		ID:     "0b3c3a6e-8f0e-5d8a-9d7c-000000000001",
		Vector: []float32{0.5, 0.5},
		Payload: domain.Payload{
			FilePath:    "src/a.py",
			UnitKind:    domain.UnitFunction,
			ContentHash: "abc",
			Language:    "python",
			IndexedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		},
	}
	require.NoError(t, NewRESTBackend(srv.URL, "").Upsert(context.Background(), "ws", []domain.Point{p}))

	req := (*reqs)[0]
	assert.Equal(t, "/collections/ws/points", req.Path)
	points := req.Body["points"].([]any)
	payload := points[0].(map[string]any)["payload"].(map[string]any)
	assert.Equal(t, "src/a.py", payload["file_path"])
	assert.Equal(t, "function", payload["unit_kind"])
	assert.Equal(t, "abc", payload["content_hash"])
	assert.Equal(t, "python", payload["language"])
	assert.Equal(t, "2026-01-02T03:04:05Z", payload["indexed_at"])
}

func TestREST_DeleteByPathFilter(t *testing.T) {
	srv, reqs := newQdrantStub(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"result":{}}`)
	})

	require.NoError(t, NewRESTBackend(srv.URL, "").DeleteByPath(context.Background(), "ws", "src/a.py"))
	req := (*reqs)[0]
	assert.Equal(t, "/collections/ws/points/delete", req.Path)
	must := req.Body["filter"].(map[string]any)["must"].([]any)
	cond := must[0].(map[string]any)
	assert.Equal(t, "file_path", cond["key"])
	assert.Equal(t, "src/a.py", cond["match"].(map[string]any)["value"])
}

func TestREST_Search(t *testing.T) {
	srv, reqs := newQdrantStub(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"result":[
			{"id":"p1","score":0.93,"payload":{"file_path":"a.py","unit_kind":"function","content_hash":"h","language":"python"}},
			{"id":42,"score":0.71,"payload":{"file_path":"b.py","unit_kind":"chunk"}}
		]}`)
	})

	results, err := NewRESTBackend(srv.URL, "").Query(context.Background(), "ws", []float32{1, 0}, 5, 0.7)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "p1", results[0].ID)
	assert.Equal(t, "42", results[1].ID)
	assert.Equal(t, "a.py", results[0].Payload.FilePath)
	assert.Equal(t, 0.7, (*reqs)[0].Body["score_threshold"])
	assert.Equal(t, float64(5), (*reqs)[0].Body["limit"])
}

func TestREST_ServerErrorsAreTransient(t *testing.T) {
	srv, reqs := newQdrantStub(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	})

	c := NewClient(NewRESTBackend(srv.URL, ""), testStoreConfig())
	_, err := c.Query(context.Background(), "ws", []float32{1}, 5, 0.7)
	assert.True(t, domain.IsStoreUnavailable(err))
	assert.Len(t, *reqs, 3)
}

func TestREST_ConnectionRefusedIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(NewRESTBackend(url, ""), testStoreConfig())
	err := c.EnsureCollection(context.Background(), "ws", 3, domain.Cosine)
	var su *domain.StoreUnavailableError
	require.ErrorAs(t, err, &su)
	assert.Equal(t, "describe", su.Op)
}
