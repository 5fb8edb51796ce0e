package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbeddings struct {
	dims     int
	requests atomic.Int32
	failures int32
	status   int
	inputs   [][]string
}

func (f *fakeEmbeddings) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n := f.requests.Add(1)
	if r.URL.Path != "/embeddings" || r.Header.Get("Authorization") != "Bearer sk-test" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if n <= f.failures {
		w.WriteHeader(f.status)
		return
	}
	var req embeddingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.inputs = append(f.inputs, req.Input)
	type item struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	}
	var data []item
	// reversed order to check that the index field is honoured
	for i := len(req.Input) - 1; i >= 0; i-- {
		v := make([]float32, f.dims)
		v[0] = float32(len(req.Input[i]))
		data = append(data, item{Index: i, Embedding: v})
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
}

func newTestEmbedder(t *testing.T, srv *httptest.Server, batch, retries int) *OpenAIEmbedder {
	t.Helper()
	e, err := NewOpenAIEmbedder(OpenAIConfig{
		BaseURL:    srv.URL + "/",
		APIKey:     "sk-test",
		Dimensions: 4,
		BatchSize:  batch,
		MaxRetries: retries,
	}, nil)
	require.NoError(t, err)
	e.sleep = func(context.Context, time.Duration) error { return nil }
	return e
}

func TestOpenAIEmbedder_BatchesAndOrders(t *testing.T) {
	fake := &fakeEmbeddings{dims: 4}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	e := newTestEmbedder(t, srv, 2, 0)
	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, float32(1), vecs[0][0])
	assert.Equal(t, float32(2), vecs[1][0])
	assert.Equal(t, float32(3), vecs[2][0])
	assert.Equal(t, [][]string{{"a", "bb"}, {"ccc"}}, fake.inputs)
	assert.Equal(t, 4, e.Dimensions())
}

func TestOpenAIEmbedder_RetriesTransientFailures(t *testing.T) {
	fake := &fakeEmbeddings{dims: 4, failures: 2, status: http.StatusTooManyRequests}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	v, err := newTestEmbedder(t, srv, 8, 3).Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, float32(5), v[0])
	assert.Equal(t, int32(3), fake.requests.Load())
}

func TestOpenAIEmbedder_GivesUpAfterMaxRetries(t *testing.T) {
	fake := &fakeEmbeddings{dims: 4, failures: 10, status: http.StatusBadGateway}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	_, err := newTestEmbedder(t, srv, 8, 2).Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, int32(3), fake.requests.Load())
}

func TestOpenAIEmbedder_ClientErrorIsPermanent(t *testing.T) {
	fake := &fakeEmbeddings{dims: 4, failures: 10, status: http.StatusUnauthorized}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	_, err := newTestEmbedder(t, srv, 8, 5).Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, int32(1), fake.requests.Load())
}

func TestOpenAIEmbedder_DimensionMismatch(t *testing.T) {
	fake := &fakeEmbeddings{dims: 3}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	_, err := newTestEmbedder(t, srv, 8, 0).Embed(context.Background(), "x")
	assert.ErrorContains(t, err, "dimensions")
}

func TestNewOpenAIEmbedder_MissingKey(t *testing.T) {
	_, err := NewOpenAIEmbedder(OpenAIConfig{}, nil)
	assert.Error(t, err)
}

func TestRetryDelay(t *testing.T) {
	assert.Equal(t, 200*time.Millisecond, retryDelay(0))
	assert.Equal(t, 800*time.Millisecond, retryDelay(2))
	assert.Equal(t, 5*time.Second, retryDelay(10))
}

func TestNew_SelectsProvider(t *testing.T) {
	e, err := New(context.Background(), Config{Provider: ProviderHash, Dimensions: 16, CacheSize: 4}, nil)
	require.NoError(t, err)
	assert.IsType(t, &CachedEmbedder{}, e)
	assert.Equal(t, 16, e.Dimensions())

	_, err = New(context.Background(), Config{Provider: "nope"}, nil)
	assert.Error(t, err)

	_, err = New(context.Background(), Config{Provider: ProviderGemini}, nil)
	assert.Error(t, err, "gemini without key")
}
