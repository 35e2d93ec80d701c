package graph

import (
	"context"

	"github.com/google/uuid"

	"github.com/lineagraph/lineage-engine/pkg/models"
)

// MockStore is a configurable mock for testing graph consumers.
// Set the function fields to control behavior in tests.
type MockStore struct {
	UpsertGraphFunc        func(ctx context.Context, nodes []*models.Node, edges []*models.Edge) (WriteStats, error)
	IngestPendingFunc      func(ctx context.Context, edges []*models.Edge) (int, error)
	NeighborhoodFunc       func(ctx context.Context, scope models.NodeRef, opts NeighborhoodOptions) (*Neighborhood, error)
	GetEdgeFunc            func(ctx context.Context, id uuid.UUID) (*models.Edge, error)
	UpdateEdgeStatusFunc   func(ctx context.Context, id uuid.UUID, fromStatus, toStatus string, confidence *float64) (*models.Edge, error)
	ListEdgesFunc          func(ctx context.Context, filter models.EdgeFilter) ([]*models.Edge, error)
	BackfillProvenanceFunc func(ctx context.Context) (int, error)
	UpsertChunksFunc       func(ctx context.Context, chunks []*CodeChunk) error
	SearchChunksFunc       func(ctx context.Context, vector []float32, topK int, projectID string) ([]*CodeChunk, error)

	// Call tracking for verification
	UpsertGraphCalls   int
	IngestPendingCalls int
	NeighborhoodCalls  int
	SearchChunksCalls  int
	UpsertChunksCalls  int
}

// NewMockStore creates a mock whose unset methods succeed with zero values.
func NewMockStore() *MockStore {
	return &MockStore{}
}

var _ Store = (*MockStore)(nil)

func (m *MockStore) UpsertGraph(ctx context.Context, nodes []*models.Node, edges []*models.Edge) (WriteStats, error) {
	m.UpsertGraphCalls++
	if m.UpsertGraphFunc != nil {
		return m.UpsertGraphFunc(ctx, nodes, edges)
	}
	return WriteStats{NodesWritten: len(nodes), EdgesWritten: len(edges)}, nil
}

func (m *MockStore) IngestPending(ctx context.Context, edges []*models.Edge) (int, error) {
	m.IngestPendingCalls++
	if m.IngestPendingFunc != nil {
		return m.IngestPendingFunc(ctx, edges)
	}
	return len(edges), nil
}

func (m *MockStore) Neighborhood(ctx context.Context, scope models.NodeRef, opts NeighborhoodOptions) (*Neighborhood, error) {
	m.NeighborhoodCalls++
	if m.NeighborhoodFunc != nil {
		return m.NeighborhoodFunc(ctx, scope, opts)
	}
	return &Neighborhood{}, nil
}

func (m *MockStore) GetEdge(ctx context.Context, id uuid.UUID) (*models.Edge, error) {
	if m.GetEdgeFunc != nil {
		return m.GetEdgeFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockStore) UpdateEdgeStatus(ctx context.Context, id uuid.UUID, fromStatus, toStatus string, confidence *float64) (*models.Edge, error) {
	if m.UpdateEdgeStatusFunc != nil {
		return m.UpdateEdgeStatusFunc(ctx, id, fromStatus, toStatus, confidence)
	}
	return nil, nil
}

func (m *MockStore) ListEdges(ctx context.Context, filter models.EdgeFilter) ([]*models.Edge, error) {
	if m.ListEdgesFunc != nil {
		return m.ListEdgesFunc(ctx, filter)
	}
	return nil, nil
}

func (m *MockStore) BackfillProvenance(ctx context.Context) (int, error) {
	if m.BackfillProvenanceFunc != nil {
		return m.BackfillProvenanceFunc(ctx)
	}
	return 0, nil
}

func (m *MockStore) UpsertChunks(ctx context.Context, chunks []*CodeChunk) error {
	m.UpsertChunksCalls++
	if m.UpsertChunksFunc != nil {
		return m.UpsertChunksFunc(ctx, chunks)
	}
	return nil
}

func (m *MockStore) SearchChunks(ctx context.Context, vector []float32, topK int, projectID string) ([]*CodeChunk, error) {
	m.SearchChunksCalls++
	if m.SearchChunksFunc != nil {
		return m.SearchChunksFunc(ctx, vector, topK, projectID)
	}
	return nil, nil
}
