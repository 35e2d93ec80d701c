package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lineagraph/lineage-engine/pkg/apperrors"
	"github.com/lineagraph/lineage-engine/pkg/graph"
	"github.com/lineagraph/lineage-engine/pkg/llm"
	"github.com/lineagraph/lineage-engine/pkg/models"
)

func scopedNeighborhood() *graph.Neighborhood {
	return &graph.Neighborhood{
		Nodes: []*models.Node{
			{Kind: models.NodeKindCodeUnit, Key: "billing.sp_archive"},
			{Kind: models.NodeKindDataAsset, Key: "billing.orders"},
		},
		Edges: []*models.Edge{
			{
				Source: models.NodeRef{Kind: models.NodeKindCodeUnit, Key: "billing.sp_archive"},
				Target: models.NodeRef{Kind: models.NodeKindDataAsset, Key: "billing.orders"},
				Kind:   models.EdgeKindReadsFrom,
			},
		},
	}
}

func newTestRetriever(store graph.Store, embedder llm.Client, cache EmbeddingCache) Retriever {
	return NewRetriever(RetrieverDeps{
		Store:            store,
		Embedder:         embedder,
		Cache:            cache,
		Logger:           zap.NewNop(),
		Hops:             2,
		MaxNeighbors:     50,
		ChunkTopK:        4,
		GraphTimeout:     time.Second,
		EmbeddingTimeout: time.Second,
	})
}

func TestRetrieve_GraphAndChunks(t *testing.T) {
	store := graph.NewMockStore()
	store.NeighborhoodFunc = func(ctx context.Context, scope models.NodeRef, opts graph.NeighborhoodOptions) (*graph.Neighborhood, error) {
		assert.Equal(t, 2, opts.Hops)
		assert.Equal(t, "proj-1", opts.ProjectID)
		return scopedNeighborhood(), nil
	}
	store.SearchChunksFunc = func(ctx context.Context, vector []float32, topK int, projectID string) ([]*graph.CodeChunk, error) {
		assert.Equal(t, 4, topK)
		return []*graph.CodeChunk{{Key: "f.sql#billing.sp_archive", Text: "BEGIN ... END"}}, nil
	}

	embedder := llm.NewMockClient()
	embedder.CreateEmbeddingFunc = func(ctx context.Context, input string) ([]float32, error) {
		return []float32{0.5}, nil
	}

	result, err := newTestRetriever(store, embedder, nil).Retrieve(context.Background(), "CodeUnit:billing.sp_archive", "proj-1")
	require.NoError(t, err)

	assert.False(t, result.Degraded)
	assert.Equal(t, "CodeUnit:billing.sp_archive", result.Scope.String())
	assert.Len(t, result.Neighborhood.Nodes, 2)
	require.Len(t, result.Chunks, 1)
	assert.Equal(t, "f.sql#billing.sp_archive", result.Chunks[0].Key)
}

func TestRetrieve_EmbeddingFailureDegradesGracefully(t *testing.T) {
	store := graph.NewMockStore()
	store.NeighborhoodFunc = func(ctx context.Context, scope models.NodeRef, opts graph.NeighborhoodOptions) (*graph.Neighborhood, error) {
		return scopedNeighborhood(), nil
	}

	embedder := llm.NewMockClient()
	embedder.CreateEmbeddingFunc = func(ctx context.Context, input string) ([]float32, error) {
		return nil, errors.New("embedding endpoint down")
	}

	result, err := newTestRetriever(store, embedder, nil).Retrieve(context.Background(), "CodeUnit:billing.sp_archive", "")
	require.NoError(t, err)

	assert.True(t, result.Degraded)
	assert.Contains(t, result.DegradedReason, "embed")
	assert.Empty(t, result.Chunks)
	// The graph half is fully present.
	assert.Len(t, result.Neighborhood.Nodes, 2)
	assert.Equal(t, 0, store.SearchChunksCalls)
}

func TestRetrieve_VectorSearchFailureDegradesGracefully(t *testing.T) {
	store := graph.NewMockStore()
	store.NeighborhoodFunc = func(ctx context.Context, scope models.NodeRef, opts graph.NeighborhoodOptions) (*graph.Neighborhood, error) {
		return scopedNeighborhood(), nil
	}
	store.SearchChunksFunc = func(ctx context.Context, vector []float32, topK int, projectID string) ([]*graph.CodeChunk, error) {
		return nil, errors.New("vector index missing")
	}

	embedder := llm.NewMockClient()
	embedder.CreateEmbeddingFunc = func(ctx context.Context, input string) ([]float32, error) {
		return []float32{0.5}, nil
	}

	result, err := newTestRetriever(store, embedder, nil).Retrieve(context.Background(), "CodeUnit:billing.sp_archive", "")
	require.NoError(t, err)
	assert.True(t, result.Degraded)
	assert.Empty(t, result.Chunks)
}

func TestRetrieve_NoEmbedderIsGraphOnly(t *testing.T) {
	store := graph.NewMockStore()
	store.NeighborhoodFunc = func(ctx context.Context, scope models.NodeRef, opts graph.NeighborhoodOptions) (*graph.Neighborhood, error) {
		return scopedNeighborhood(), nil
	}

	result, err := newTestRetriever(store, nil, nil).Retrieve(context.Background(), "CodeUnit:billing.sp_archive", "")
	require.NoError(t, err)
	assert.True(t, result.Degraded)
	assert.Equal(t, "no embedding provider configured", result.DegradedReason)
}

func TestRetrieve_ScopeNotFound(t *testing.T) {
	store := graph.NewMockStore() // every neighborhood query comes back empty

	_, err := newTestRetriever(store, nil, nil).Retrieve(context.Background(), "no_such_object", "")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRetrieve_GraphOutage(t *testing.T) {
	store := graph.NewMockStore()
	store.NeighborhoodFunc = func(ctx context.Context, scope models.NodeRef, opts graph.NeighborhoodOptions) (*graph.Neighborhood, error) {
		return nil, errors.New("connection refused")
	}

	_, err := newTestRetriever(store, nil, nil).Retrieve(context.Background(), "CodeUnit:billing.sp_archive", "")
	assert.ErrorIs(t, err, apperrors.ErrGraphUnavailable)
}

func TestRetrieve_BareNameTriesVariants(t *testing.T) {
	var tried []string
	store := graph.NewMockStore()
	store.NeighborhoodFunc = func(ctx context.Context, scope models.NodeRef, opts graph.NeighborhoodOptions) (*graph.Neighborhood, error) {
		tried = append(tried, scope.String())
		if scope.Kind == models.NodeKindDataAsset && scope.Key == "order" {
			return &graph.Neighborhood{Nodes: []*models.Node{{Kind: scope.Kind, Key: scope.Key}}}, nil
		}
		return &graph.Neighborhood{}, nil
	}

	result, err := newTestRetriever(store, nil, nil).Retrieve(context.Background(), "orders", "")
	require.NoError(t, err)
	assert.Equal(t, "DataAsset:order", result.Scope.String())
	// The exact name was tried across kinds before the singular variant.
	assert.Contains(t, tried, "CodeUnit:orders")
	assert.Contains(t, tried, "DataAsset:orders")
}

type fakeCache struct {
	vectors map[string][]float32
	puts    int
}

func (f *fakeCache) Get(ctx context.Context, text string) ([]float32, bool) {
	v, ok := f.vectors[text]
	return v, ok
}

func (f *fakeCache) Put(ctx context.Context, text string, vector []float32) {
	f.puts++
	f.vectors[text] = vector
}

func TestRetrieve_CacheAvoidsEmbeddingCall(t *testing.T) {
	store := graph.NewMockStore()
	store.NeighborhoodFunc = func(ctx context.Context, scope models.NodeRef, opts graph.NeighborhoodOptions) (*graph.Neighborhood, error) {
		return scopedNeighborhood(), nil
	}

	embedder := llm.NewMockClient()
	embedder.CreateEmbeddingFunc = func(ctx context.Context, input string) ([]float32, error) {
		return []float32{0.9}, nil
	}

	cache := &fakeCache{vectors: map[string][]float32{}}
	retriever := newTestRetriever(store, embedder, cache)

	_, err := retriever.Retrieve(context.Background(), "CodeUnit:billing.sp_archive", "")
	require.NoError(t, err)
	assert.Equal(t, 1, embedder.CreateEmbeddingCalls)
	assert.Equal(t, 1, cache.puts)

	_, err = retriever.Retrieve(context.Background(), "CodeUnit:billing.sp_archive", "")
	require.NoError(t, err)
	assert.Equal(t, 1, embedder.CreateEmbeddingCalls, "second retrieval should hit the cache")
}

func TestCandidateRefs(t *testing.T) {
	t.Run("explicit reference", func(t *testing.T) {
		refs := candidateRefs("DataAsset:billing.orders")
		require.Len(t, refs, 1)
		assert.Equal(t, models.NodeKindDataAsset, refs[0].Kind)
		assert.Equal(t, "billing.orders", refs[0].Key)
	})

	t.Run("unknown kind prefix falls back to fan-out", func(t *testing.T) {
		refs := candidateRefs("nonsense:thing")
		assert.Greater(t, len(refs), 1)
	})

	t.Run("bare name fans out over kinds", func(t *testing.T) {
		refs := candidateRefs("customers")
		require.NotEmpty(t, refs)
		assert.Equal(t, models.NodeKindCodeUnit, refs[0].Kind)
		assert.Equal(t, "customers", refs[0].Key)
	})
}

func TestNameVariants(t *testing.T) {
	assert.Equal(t, []string{"orders", "order"}, nameVariants("orders"))
	assert.Equal(t, []string{"billing.orders", "billing.order"}, nameVariants("billing.orders"))
	assert.Equal(t, []string{"order", "orders"}, nameVariants("order"))
}
