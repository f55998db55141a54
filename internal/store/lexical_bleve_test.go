package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBleveIndex(t *testing.T) *BleveLexicalIndex {
	t.Helper()
	idx, err := NewBleveLexicalIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestBleveLexical_IndexAndSearch(t *testing.T) {
	idx := newTestBleveIndex(t)
	ctx := context.Background()

	entries := []*LexicalEntry{
		{ChunkID: 1, Content: "The battery life on this laptop is excellent"},
		{ChunkID: 2, Content: "Screen resolution is sharp but battery drains fast"},
		{ChunkID: 3, Content: "Great keyboard, very comfortable for typing"},
	}
	require.NoError(t, idx.Index(ctx, entries))

	results, err := idx.Search(ctx, "battery", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)

	ids := []int64{results[0].ChunkID, results[1].ChunkID}
	assert.ElementsMatch(t, []int64{1, 2}, ids)
	for _, r := range results {
		assert.Greater(t, r.Score, 0.0)
	}
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
}

func TestBleveLexical_ReindexReplacesEntry(t *testing.T) {
	idx := newTestBleveIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Index(ctx, []*LexicalEntry{
		{ChunkID: 1, Content: "original content about cameras"},
	}))
	require.NoError(t, idx.Index(ctx, []*LexicalEntry{
		{ChunkID: 1, Content: "replacement content about headphones"},
	}))

	results, err := idx.Search(ctx, "cameras", 10)
	require.NoError(t, err)
	assert.Empty(t, results, "old content should no longer match")

	results, err = idx.Search(ctx, "headphones", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(1), results[0].ChunkID)
}

func TestBleveLexical_Delete(t *testing.T) {
	idx := newTestBleveIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Index(ctx, []*LexicalEntry{
		{ChunkID: 1, Content: "delete me please"},
		{ChunkID: 2, Content: "keep me around please"},
	}))
	require.NoError(t, idx.Delete(ctx, []int64{1}))

	results, err := idx.Search(ctx, "please", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(2), results[0].ChunkID)
}

func TestBleveLexical_EmptyQuery(t *testing.T) {
	idx := newTestBleveIndex(t)

	results, err := idx.Search(context.Background(), "   ", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestBleveLexical_ClosedIndexRejects(t *testing.T) {
	idx := newTestBleveIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.Close())

	err := idx.Index(ctx, []*LexicalEntry{{ChunkID: 1, Content: "x"}})
	require.Error(t, err)

	_, err = idx.Search(ctx, "x", 10)
	require.Error(t, err)
}

func TestBleveLexical_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexical.bleve")
	ctx := context.Background()

	idx, err := NewBleveLexicalIndex(path)
	require.NoError(t, err)
	require.NoError(t, idx.Index(ctx, []*LexicalEntry{
		{ChunkID: 7, Content: "durable tripod for landscape photography"},
	}))
	require.NoError(t, idx.Close())

	reopened, err := NewBleveLexicalIndex(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	results, err := reopened.Search(ctx, "tripod", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(7), results[0].ChunkID)
}

// Both backends should agree on ranking order for an unambiguous corpus,
// even though their absolute scores differ.
func TestLexicalBackends_RankingParity(t *testing.T) {
	ctx := context.Background()
	entries := []*LexicalEntry{
		{ChunkID: 1, Content: "battery battery battery lasts forever on this battery"},
		{ChunkID: 2, Content: "the battery is fine, nothing special"},
		{ChunkID: 3, Content: "shipping was quick and the box was intact"},
	}

	sqliteIdx := newTestLexicalIndex(t)
	require.NoError(t, sqliteIdx.Index(ctx, entries))

	bleveIdx := newTestBleveIndex(t)
	require.NoError(t, bleveIdx.Index(ctx, entries))

	sqliteResults, err := sqliteIdx.Search(ctx, "battery", 10)
	require.NoError(t, err)
	bleveResults, err := bleveIdx.Search(ctx, "battery", 10)
	require.NoError(t, err)

	require.Len(t, sqliteResults, 2)
	require.Len(t, bleveResults, 2)
	for i := range sqliteResults {
		assert.Equal(t, sqliteResults[i].ChunkID, bleveResults[i].ChunkID,
			"backends disagree on rank %d", i)
	}
}
