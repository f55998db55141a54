package ingest

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezkaaufar/hybrid-search-service/internal/embed"
	"github.com/rezkaaufar/hybrid-search-service/internal/store"
)

// memorySource yields a fixed record slice.
type memorySource struct {
	name    string
	records []*Record
	err     error
}

func (m *memorySource) Name() string { return m.name }

func (m *memorySource) Stream(_ context.Context, yield func(*Record) error) error {
	if m.err != nil {
		return m.err
	}
	for _, r := range m.records {
		if err := yield(r); err != nil {
			return err
		}
	}
	return nil
}

type testDeps struct {
	docs    *store.DocumentStore
	lexical store.LexicalIndex
	vector  store.VectorIndex
}

func newTestDeps(t *testing.T) *testDeps {
	t.Helper()
	docs, err := store.OpenDocumentStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = docs.Close() })

	lexical, err := store.NewSQLiteLexicalIndex(docs.DB())
	require.NoError(t, err)

	vector, err := store.NewHNSWIndex(store.VectorIndexConfig{
		Dimensions: embed.StaticDimensions,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = vector.Close() })

	return &testDeps{docs: docs, lexical: lexical, vector: vector}
}

func newTestPipeline(t *testing.T, deps *testDeps) *Pipeline {
	t.Helper()
	return NewPipeline(deps.docs, deps.lexical, deps.vector, embed.NewStaticEmbedder(),
		PipelineConfig{ChunkSize: 20, ChunkOverlap: 4, Workers: 2})
}

func reviewRecords() []*Record {
	return []*Record{
		{
			SourceID: "electronics:B001:U1:0",
			Title:    "electronics review B001",
			URL:      "https://example.com/electronics.json.gz",
			Text:     "Great battery. Lasts all week on one charge. Highly recommended for travel.",
		},
		{
			SourceID: "electronics:B002:U2:1",
			Title:    "electronics review B002",
			URL:      "https://example.com/electronics.json.gz",
			Text:     "Disappointing screen. Colors wash out in sunlight and the glass scratches easily.",
		},
	}
}

func TestRun_IngestsDocumentsAndChunks(t *testing.T) {
	deps := newTestDeps(t)
	p := newTestPipeline(t, deps)

	src := &memorySource{name: "electronics", records: reviewRecords()}
	summary, err := p.Run(context.Background(), []Source{src})
	require.NoError(t, err)

	assert.Equal(t, int64(2), summary.Documents)
	assert.Zero(t, summary.SourcesFailed)
	assert.Greater(t, summary.Chunks, int64(0))
	assert.NotEmpty(t, summary.RunID)

	ctx := context.Background()
	doc, err := deps.docs.GetDocumentBySourceID(ctx, "electronics:B001:U1:0")
	require.NoError(t, err)
	assert.Equal(t, "electronics review B001", doc.Title)
	assert.Len(t, doc.Checksum, 64)

	chunks, err := deps.docs.ChunksByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Len(t, chunks[0].Embedding, embed.StaticDimensions)

	// Both indexes see the new chunks.
	hits, err := deps.lexical.Search(ctx, "battery", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, hits)
	assert.Equal(t, int(summary.Chunks), deps.vector.Count())
}

func TestRun_IdempotentOnUnchangedSource(t *testing.T) {
	deps := newTestDeps(t)
	p := newTestPipeline(t, deps)
	src := &memorySource{name: "electronics", records: reviewRecords()}

	first, err := p.Run(context.Background(), []Source{src})
	require.NoError(t, err)

	ctx := context.Background()
	doc, err := deps.docs.GetDocumentBySourceID(ctx, "electronics:B001:U1:0")
	require.NoError(t, err)
	before, err := deps.docs.ChunksByDocument(ctx, doc.ID)
	require.NoError(t, err)

	second, err := p.Run(context.Background(), []Source{src})
	require.NoError(t, err)
	assert.Equal(t, first.Chunks, second.Chunks)

	// Same document row, same chunk contents in the same order.
	again, err := deps.docs.GetDocumentBySourceID(ctx, "electronics:B001:U1:0")
	require.NoError(t, err)
	assert.Equal(t, doc.ID, again.ID)

	after, err := deps.docs.ChunksByDocument(ctx, again.ID)
	require.NoError(t, err)
	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].Content, after[i].Content)
		assert.Equal(t, before[i].ChunkIndex, after[i].ChunkIndex)
	}

	docCount, _, err := deps.docs.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, docCount)
}

func TestRun_FailingSourceIsSkipped(t *testing.T) {
	deps := newTestDeps(t)
	p := newTestPipeline(t, deps)

	good := &memorySource{name: "good", records: reviewRecords()}
	bad := &memorySource{name: "bad", err: stderrors.New("connection reset")}

	summary, err := p.Run(context.Background(), []Source{good, bad})
	require.NoError(t, err)
	assert.Equal(t, int64(2), summary.Documents)
	assert.Equal(t, int64(1), summary.SourcesFailed)
}

func TestRun_NoSourceDataIsFatal(t *testing.T) {
	deps := newTestDeps(t)
	p := newTestPipeline(t, deps)

	empty := NewLocalDirSource(t.TempDir(), 0)
	_, err := p.Run(context.Background(), []Source{empty})
	require.Error(t, err)
}

func TestRun_EmptyTextYieldsNoChunks(t *testing.T) {
	deps := newTestDeps(t)
	p := newTestPipeline(t, deps)

	src := &memorySource{name: "blank", records: []*Record{
		{SourceID: "blank:1", Title: "t", URL: "u", Text: "   "},
	}}
	summary, err := p.Run(context.Background(), []Source{src})
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.Documents)
	assert.Zero(t, summary.Chunks)
}

func TestRun_PersistsVectorIndex(t *testing.T) {
	deps := newTestDeps(t)
	path := t.TempDir() + "/vectors.hnsw"
	p := NewPipeline(deps.docs, deps.lexical, deps.vector, embed.NewStaticEmbedder(),
		PipelineConfig{ChunkSize: 20, ChunkOverlap: 4, Workers: 1, VectorIndexPath: path})

	_, err := p.Run(context.Background(), []Source{
		&memorySource{name: "electronics", records: reviewRecords()},
	})
	require.NoError(t, err)

	dims, err := store.ReadHNSWIndexDimensions(path)
	require.NoError(t, err)
	assert.Equal(t, embed.StaticDimensions, dims)
}

func TestRebuildVectorIndex_FromPersistedEmbeddings(t *testing.T) {
	deps := newTestDeps(t)
	p := newTestPipeline(t, deps)

	_, err := p.Run(context.Background(), []Source{
		&memorySource{name: "electronics", records: reviewRecords()},
	})
	require.NoError(t, err)

	fresh, err := store.NewHNSWIndex(store.VectorIndexConfig{
		Dimensions: embed.StaticDimensions,
	})
	require.NoError(t, err)
	defer fresh.Close()

	added, err := RebuildVectorIndex(context.Background(), deps.docs, fresh)
	require.NoError(t, err)
	assert.Equal(t, deps.vector.Count(), added)
	assert.Equal(t, deps.vector.Count(), fresh.Count())
}

func TestContentChecksum_StableAndDistinct(t *testing.T) {
	assert.Equal(t, contentChecksum("abc"), contentChecksum("abc"))
	assert.NotEqual(t, contentChecksum("abc"), contentChecksum("abd"))
	assert.Len(t, contentChecksum(""), 64)
}
