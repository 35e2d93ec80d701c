package graph

import (
	"context"

	"github.com/google/uuid"

	"github.com/lineagraph/lineage-engine/pkg/models"
)

// WriteStats reports how many upserts a graph write performed.
type WriteStats struct {
	NodesWritten int `json:"nodes_written"`
	EdgesWritten int `json:"edges_written"`
}

// NeighborhoodOptions bounds a neighborhood query.
type NeighborhoodOptions struct {
	Hops      int               // hop radius, >= 1
	Labels    []models.NodeKind // node kinds to include; always at least File and DataAsset
	ProjectID string            // restrict to one project when non-empty
	MaxNodes  int
}

// Neighborhood is the graph portion of a retrieved context.
type Neighborhood struct {
	Nodes []*models.Node `json:"nodes"`
	Edges []*models.Edge `json:"edges"`
}

// CodeChunk is an indexed code fragment with an optional embedding.
type CodeChunk struct {
	Key       string    `json:"key"` // file path + unit qualified name
	FilePath  string    `json:"file_path"`
	UnitName  string    `json:"unit_name"`
	Text      string    `json:"text"`
	ProjectID string    `json:"project_id,omitempty"`
	Embedding []float32 `json:"-"`
	Score     float64   `json:"score,omitempty"` // similarity, search results only
}

// Store is the lineage graph store contract. All writes are upserts keyed by
// natural keys; per-key atomicity is the store's concern so concurrent
// ingestion of independent files needs no external lock.
type Store interface {
	// UpsertGraph merges nodes and deterministic parser edges in one
	// transaction (all-or-nothing per file). Parser edge writes refresh
	// existing parser edges but never touch a pair that already carries an
	// approved llm edge.
	UpsertGraph(ctx context.Context, nodes []*models.Node, edges []*models.Edge) (WriteStats, error)

	// IngestPending merges llm proposals as pending_review records in one
	// transaction. Approved edges for the same pair are left intact;
	// re-proposing an already-pending pair refreshes confidence/evidence.
	IngestPending(ctx context.Context, edges []*models.Edge) (int, error)

	// Neighborhood returns the bounded subgraph around a scope node.
	Neighborhood(ctx context.Context, scope models.NodeRef, opts NeighborhoodOptions) (*Neighborhood, error)

	// GetEdge fetches one edge record by id. Returns nil when absent.
	GetEdge(ctx context.Context, id uuid.UUID) (*models.Edge, error)

	// UpdateEdgeStatus transitions an edge from fromStatus to toStatus as a
	// single atomic update. Returns nil when no edge matched (absent or not
	// in fromStatus); the caller distinguishes the two.
	UpdateEdgeStatus(ctx context.Context, id uuid.UUID, fromStatus, toStatus string, confidence *float64) (*models.Edge, error)

	// ListEdges returns edges matching the filter.
	ListEdges(ctx context.Context, filter models.EdgeFilter) ([]*models.Edge, error)

	// BackfillProvenance sets default provenance fields on edges that lack
	// them and reports how many were touched. Idempotent.
	BackfillProvenance(ctx context.Context) (int, error)

	// UpsertChunks merges code chunks (best-effort index corpus).
	UpsertChunks(ctx context.Context, chunks []*CodeChunk) error

	// SearchChunks runs a vector similarity query over indexed chunks.
	SearchChunks(ctx context.Context, vector []float32, topK int, projectID string) ([]*CodeChunk, error)
}
