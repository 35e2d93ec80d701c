package extract

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lineagraph/lineage-engine/pkg/graph"
	"github.com/lineagraph/lineage-engine/pkg/llm"
	"github.com/lineagraph/lineage-engine/pkg/models"
	"github.com/lineagraph/lineage-engine/pkg/retry"
)

func fastRetry() *retry.Config {
	return &retry.Config{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1.0}
}

func newTestExtractor(store graph.Store, embedder llm.Client) Extractor {
	return NewExtractor(ExtractorDeps{
		Store:    store,
		Embedder: embedder,
		Logger:   zap.NewNop(),
		Retry:    fastRetry(),
	})
}

func triggerTree() *models.UnitTree {
	return &models.UnitTree{
		FilePath:  "triggers/trg_audit.sql",
		Dialect:   "tsql",
		ProjectID: "proj-1",
		ParsedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Units: []*models.Unit{
			{
				Kind:        models.UnitKindTrigger,
				Name:        "trg_audit",
				TargetTable: "Orders",
				Snippet:     "CREATE TRIGGER trg_audit ON Orders ...",
			},
		},
	}
}

func edgeKey(e *models.Edge) string {
	return e.Source.String() + "|" + string(e.Kind) + "|" + e.Target.String()
}

func TestExtractAndUpsert_TriggerProducesAttachedTo(t *testing.T) {
	var gotNodes []*models.Node
	var gotEdges []*models.Edge
	store := graph.NewMockStore()
	store.UpsertGraphFunc = func(ctx context.Context, nodes []*models.Node, edges []*models.Edge) (graph.WriteStats, error) {
		gotNodes, gotEdges = nodes, edges
		return graph.WriteStats{NodesWritten: len(nodes), EdgesWritten: len(edges)}, nil
	}

	stats, err := newTestExtractor(store, nil).ExtractAndUpsert(context.Background(), triggerTree())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.NodesWritten)
	assert.Equal(t, 1, stats.EdgesWritten)

	kinds := map[models.NodeKind]string{}
	for _, n := range gotNodes {
		kinds[n.Kind] = n.Key
	}
	assert.Equal(t, "triggers/trg_audit.sql", kinds[models.NodeKindFile])
	assert.Equal(t, "trg_audit", kinds[models.NodeKindTrigger])
	assert.Equal(t, "Orders", kinds[models.NodeKindDataAsset])

	require.Len(t, gotEdges, 1)
	edge := gotEdges[0]
	assert.Equal(t, models.EdgeKindAttachedTo, edge.Kind)
	assert.Equal(t, "Trigger:trg_audit", edge.Source.String())
	assert.Equal(t, "DataAsset:Orders", edge.Target.String())
	assert.Equal(t, models.EdgeSourceParser, edge.Provenance)
	assert.Equal(t, 1.0, edge.Confidence)
	assert.Equal(t, models.EdgeStatusApproved, edge.Status)
	assert.Equal(t, "proj-1", edge.ProjectID)
}

func TestExtractAndUpsert_CodeUnitReferences(t *testing.T) {
	tree := &models.UnitTree{
		FilePath: "procs/usp_daily.sql",
		Dialect:  "tsql",
		ParsedAt: time.Now().UTC(),
		Units: []*models.Unit{
			{
				Kind:   models.UnitKindProcedure,
				Schema: "dbo",
				Name:   "usp_daily",
				TableRefs: []models.TableRef{
					{Asset: "billing.orders", Kind: models.TableRefRead, Statement: "FROM billing.orders"},
					{Asset: "run_stats", Kind: models.TableRefWrite, Statement: "UPDATE run_stats SET"},
				},
				CallRefs: []string{"dbo.usp_load_orders"},
			},
		},
	}

	var gotEdges []*models.Edge
	store := graph.NewMockStore()
	store.UpsertGraphFunc = func(ctx context.Context, nodes []*models.Node, edges []*models.Edge) (graph.WriteStats, error) {
		gotEdges = edges
		return graph.WriteStats{}, nil
	}

	_, err := newTestExtractor(store, nil).ExtractAndUpsert(context.Background(), tree)
	require.NoError(t, err)

	var keys []string
	for _, e := range gotEdges {
		keys = append(keys, edgeKey(e))
	}
	sort.Strings(keys)
	assert.Equal(t, []string{
		"CodeUnit:dbo.usp_daily|CALLS|CodeUnit:dbo.usp_load_orders",
		"CodeUnit:dbo.usp_daily|READS_FROM|DataAsset:billing.orders",
		"CodeUnit:dbo.usp_daily|WRITES_TO|DataAsset:run_stats",
	}, keys)
}

func TestExtractAndUpsert_IdempotentNodeAndEdgeSets(t *testing.T) {
	collect := func() ([]string, []string) {
		var nodeKeys, edgeKeys []string
		store := graph.NewMockStore()
		store.UpsertGraphFunc = func(ctx context.Context, nodes []*models.Node, edges []*models.Edge) (graph.WriteStats, error) {
			for _, n := range nodes {
				nodeKeys = append(nodeKeys, n.Ref().String())
			}
			for _, e := range edges {
				edgeKeys = append(edgeKeys, edgeKey(e))
			}
			return graph.WriteStats{}, nil
		}
		_, err := newTestExtractor(store, nil).ExtractAndUpsert(context.Background(), triggerTree())
		require.NoError(t, err)
		return nodeKeys, edgeKeys
	}

	nodes1, edges1 := collect()
	nodes2, edges2 := collect()
	assert.Equal(t, nodes1, nodes2)
	assert.Equal(t, edges1, edges2)
}

func TestExtractAndUpsert_ParseErrorWritesOnlyFileNode(t *testing.T) {
	tree := &models.UnitTree{
		FilePath:   "bad.sql",
		Dialect:    "postgres",
		ParseError: true,
		ParsedAt:   time.Now().UTC(),
	}

	var gotNodes []*models.Node
	var gotEdges []*models.Edge
	store := graph.NewMockStore()
	store.UpsertGraphFunc = func(ctx context.Context, nodes []*models.Node, edges []*models.Edge) (graph.WriteStats, error) {
		gotNodes, gotEdges = nodes, edges
		return graph.WriteStats{}, nil
	}

	_, err := newTestExtractor(store, nil).ExtractAndUpsert(context.Background(), tree)
	require.NoError(t, err)

	require.Len(t, gotNodes, 1)
	assert.Equal(t, models.NodeKindFile, gotNodes[0].Kind)
	assert.Equal(t, true, gotNodes[0].Props["parse_error"])
	assert.Empty(t, gotEdges)
}

func TestExtractAndUpsert_RetriesTransientWriteFailure(t *testing.T) {
	attempts := 0
	store := graph.NewMockStore()
	store.UpsertGraphFunc = func(ctx context.Context, nodes []*models.Node, edges []*models.Edge) (graph.WriteStats, error) {
		attempts++
		if attempts == 1 {
			return graph.WriteStats{}, errors.New("neo4j: connection reset")
		}
		return graph.WriteStats{NodesWritten: len(nodes)}, nil
	}

	stats, err := newTestExtractor(store, nil).ExtractAndUpsert(context.Background(), triggerTree())
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 3, stats.NodesWritten)
}

func TestExtractAndUpsert_WriteFailureLeavesNoPartialState(t *testing.T) {
	store := graph.NewMockStore()
	store.UpsertGraphFunc = func(ctx context.Context, nodes []*models.Node, edges []*models.Edge) (graph.WriteStats, error) {
		return graph.WriteStats{}, errors.New("malformed query")
	}

	stats, err := newTestExtractor(store, nil).ExtractAndUpsert(context.Background(), triggerTree())
	require.Error(t, err)
	assert.Equal(t, graph.WriteStats{}, stats)
	assert.Equal(t, 0, store.UpsertChunksCalls)
}

func TestExtractAndUpsert_ChunkIndexingFailureIsNotFatal(t *testing.T) {
	store := graph.NewMockStore()
	embedder := llm.NewMockClient()
	embedder.CreateEmbeddingFunc = func(ctx context.Context, input string) ([]float32, error) {
		return nil, errors.New("embedding endpoint down")
	}

	_, err := newTestExtractor(store, embedder).ExtractAndUpsert(context.Background(), triggerTree())
	require.NoError(t, err)
	assert.Equal(t, 1, store.UpsertGraphCalls)
	assert.Equal(t, 0, store.UpsertChunksCalls)
}

func TestExtractAndUpsert_IndexesChunksForUnits(t *testing.T) {
	var gotChunks []*graph.CodeChunk
	store := graph.NewMockStore()
	store.UpsertChunksFunc = func(ctx context.Context, chunks []*graph.CodeChunk) error {
		gotChunks = chunks
		return nil
	}
	embedder := llm.NewMockClient()
	embedder.CreateEmbeddingFunc = func(ctx context.Context, input string) ([]float32, error) {
		return []float32{0.1, 0.2}, nil
	}

	_, err := newTestExtractor(store, embedder).ExtractAndUpsert(context.Background(), triggerTree())
	require.NoError(t, err)

	require.Len(t, gotChunks, 1)
	assert.Equal(t, "triggers/trg_audit.sql#trg_audit", gotChunks[0].Key)
	assert.Equal(t, "trg_audit", gotChunks[0].UnitName)
	assert.Equal(t, []float32{0.1, 0.2}, gotChunks[0].Embedding)
}
