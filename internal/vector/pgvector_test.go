package vector

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistanceOperator(t *testing.T) {
	op, score := distanceOperator(Cosine)
	assert.Equal(t, "<=>", op)
	assert.InDelta(t, 0.75, score(0.25), 1e-9)

	op, score = distanceOperator(Dot)
	assert.Equal(t, "<#>", op)
	assert.Equal(t, 3.0, score(-3))

	op, score = distanceOperator(Euclid)
	assert.Equal(t, "<->", op)
	assert.Equal(t, -2.0, score(2))
}

// Runs against a real database when KOTAE_TEST_PG_DSN is set.
func TestPGVectorIndex_Roundtrip(t *testing.T) {
	dsn := os.Getenv("KOTAE_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("KOTAE_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	idx, err := NewPGVectorIndex(ctx, dsn, "kotae_test_docs", Cosine)
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.ResetCollection(ctx, "kotae_test_docs", 2, Cosine))
	require.NoError(t, idx.Upsert(ctx, 0, []float32{1, 0}, map[string]string{MetadataDocumentID: "a.mdx"}))
	require.NoError(t, idx.Upsert(ctx, 1, []float32{0, 1}, map[string]string{MetadataDocumentID: "b.mdx"}))
	require.NoError(t, idx.Upsert(ctx, 1, []float32{0, 1}, map[string]string{MetadataDocumentID: "c.mdx"}))

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	hits, err := idx.Search(ctx, []float32{0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "c.mdx", hits[0].Metadata[MetadataDocumentID])
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
}
