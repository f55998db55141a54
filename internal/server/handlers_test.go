package server

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezkaaufar/hybrid-search-service/internal/config"
	"github.com/rezkaaufar/hybrid-search-service/internal/embed"
	"github.com/rezkaaufar/hybrid-search-service/internal/rerank"
	"github.com/rezkaaufar/hybrid-search-service/internal/search"
	"github.com/rezkaaufar/hybrid-search-service/internal/store"
)

// stubLexical serves fixed hits so handler tests need no corpus tuning.
type stubLexical struct {
	hits []*store.LexicalResult
}

func (f *stubLexical) Index(context.Context, []*store.LexicalEntry) error { return nil }
func (f *stubLexical) Delete(context.Context, []int64) error              { return nil }
func (f *stubLexical) Close() error                                       { return nil }
func (f *stubLexical) Search(_ context.Context, _ string, limit int) ([]*store.LexicalResult, error) {
	if len(f.hits) > limit {
		return f.hits[:limit], nil
	}
	return f.hits, nil
}

type stubVector struct {
	hits []*store.VectorResult
}

func (f *stubVector) Add(context.Context, []int64, [][]float32) error { return nil }
func (f *stubVector) Delete(context.Context, []int64) error           { return nil }
func (f *stubVector) Count() int                                      { return len(f.hits) }
func (f *stubVector) Save(string) error                               { return nil }
func (f *stubVector) Load(string) error                               { return nil }
func (f *stubVector) Close() error                                    { return nil }
func (f *stubVector) Search(_ context.Context, _ []float32, k int) ([]*store.VectorResult, error) {
	if len(f.hits) > k {
		return f.hits[:k], nil
	}
	return f.hits, nil
}

// failingScorer makes every rerank call blow up server-side.
type failingScorer struct{}

func (failingScorer) Score(context.Context, string, []string) ([]float64, error) {
	return nil, stderrors.New("model crashed")
}
func (failingScorer) Warm(context.Context) error     { return nil }
func (failingScorer) Available(context.Context) bool { return false }
func (failingScorer) Close() error                   { return nil }

func newTestServer(t *testing.T, scorer rerank.Scorer) (*Server, []int64) {
	t.Helper()

	docs, err := store.OpenDocumentStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = docs.Close() })

	ctx := context.Background()
	docID, err := docs.UpsertDocument(ctx, "src-1", "Camera X100", "https://example.com/x100", "sum")
	require.NoError(t, err)

	chunks := []*store.Chunk{
		{Content: "sharp lens and fast autofocus", TokenCount: 5},
		{Content: "battery drains quickly in cold weather", TokenCount: 6},
	}
	require.NoError(t, docs.InsertChunks(ctx, docID, chunks))

	ids := []int64{chunks[0].ID, chunks[1].ID}
	lex := &stubLexical{hits: []*store.LexicalResult{
		{ChunkID: ids[0], Score: 2.0},
		{ChunkID: ids[1], Score: 1.0},
	}}
	vec := &stubVector{hits: []*store.VectorResult{
		{ChunkID: ids[1], Score: 0.9},
	}}

	executor := search.NewExecutor(lex, vec, embed.NewStaticEmbedder(), docs, search.ExecutorConfig{})
	if scorer == nil {
		scorer = rerank.NewLexicalScorer()
	}
	gate := rerank.NewGate(scorer, rerank.GateConfig{MaxDocuments: 3})

	cfg := config.NewConfig()
	return New(Deps{Executor: executor, Gate: gate, Config: cfg}), ids
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth_AlwaysOK(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := doJSON(t, s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestQuery_HybridReturnsEnrichedResults(t *testing.T) {
	s, ids := newTestServer(t, nil)

	rec := doJSON(t, s, http.MethodPost, "/query", map[string]any{"query": "camera lens"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp queryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, search.ModeHybrid, resp.Mode)
	require.NotEmpty(t, resp.Results)

	first := resp.Results[0]
	assert.Equal(t, 1, first.Rank)
	assert.Contains(t, ids, first.ChunkID)
	assert.NotEmpty(t, first.Content)
	assert.Equal(t, "Camera X100", first.SourceTitle)
}

func TestQuery_ModeAndKRespected(t *testing.T) {
	s, ids := newTestServer(t, nil)

	rec := doJSON(t, s, http.MethodPost, "/query",
		map[string]any{"query": "camera", "mode": "lexical", "k": 1})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp queryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, search.ModeLexical, resp.Mode)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, ids[0], resp.Results[0].ChunkID)
}

func TestQuery_EmptyQueryIs400(t *testing.T) {
	s, _ := newTestServer(t, nil)

	for _, q := range []string{"", "   "} {
		rec := doJSON(t, s, http.MethodPost, "/query", map[string]any{"query": q})
		assert.Equal(t, http.StatusBadRequest, rec.Code, "query %q", q)

		var resp errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "ERR_402_QUERY_EMPTY", resp.Error.Code)
	}
}

func TestQuery_UnknownModeIs400(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := doJSON(t, s, http.MethodPost, "/query",
		map[string]any{"query": "camera", "mode": "fuzzy"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQuery_MalformedBodyIs400(t *testing.T) {
	s, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/query", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRerank_ReordersByScore(t *testing.T) {
	s, _ := newTestServer(t, nil)

	chunkA, chunkB := int64(10), int64(11)
	scoreA := 0.4
	rec := doJSON(t, s, http.MethodPost, "/rerank", map[string]any{
		"query": "battery life",
		"documents": []map[string]any{
			{"chunk_id": chunkA, "content": "nothing about power", "score": scoreA},
			{"chunk_id": chunkB, "content": "battery life is excellent"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp rerankResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "battery life", resp.Query)
	assert.Equal(t, 2, resp.RerankedCount)
	assert.Equal(t, 2, resp.ReturnedCount)
	assert.GreaterOrEqual(t, resp.LatencyMs, 0.0)
	require.Len(t, resp.Results, 2)

	top := resp.Results[0]
	assert.Equal(t, 1, top.Rank)
	require.NotNil(t, top.ChunkID)
	assert.Equal(t, chunkB, *top.ChunkID)
	assert.Nil(t, top.OriginalScore)

	second := resp.Results[1]
	require.NotNil(t, second.OriginalScore)
	assert.Equal(t, scoreA, *second.OriginalScore)
	assert.Greater(t, top.RerankerScore, second.RerankerScore)
}

func TestRerank_TopKLimitsReturned(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := doJSON(t, s, http.MethodPost, "/rerank", map[string]any{
		"query": "battery",
		"top_k": 1,
		"documents": []map[string]any{
			{"content": "battery"},
			{"content": "unrelated"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp rerankResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.RerankedCount)
	assert.Equal(t, 1, resp.ReturnedCount)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "battery", resp.Results[0].Content)
}

func TestRerank_OverCeilingIs422(t *testing.T) {
	s, _ := newTestServer(t, nil) // gate ceiling is 3

	docs := make([]map[string]any, 4)
	for i := range docs {
		docs[i] = map[string]any{"content": "doc"}
	}
	rec := doJSON(t, s, http.MethodPost, "/rerank",
		map[string]any{"query": "q", "documents": docs})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ERR_403_TOO_MANY_DOCUMENTS", resp.Error.Code)
}

func TestRerank_EmptyDocumentsIs400(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := doJSON(t, s, http.MethodPost, "/rerank",
		map[string]any{"query": "q", "documents": []map[string]any{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRerank_ScoringFailureIs500Generic(t *testing.T) {
	s, _ := newTestServer(t, failingScorer{})

	rec := doJSON(t, s, http.MethodPost, "/rerank", map[string]any{
		"query":     "q",
		"documents": []map[string]any{{"content": "doc"}},
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "internal server error", resp.Error.Message)
	assert.NotContains(t, resp.Error.Message, "model crashed")
}

func TestMethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := doJSON(t, s, http.MethodGet, "/query", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
