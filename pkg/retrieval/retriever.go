// Package retrieval assembles the context handed to the inference stage: a
// bounded graph neighborhood around a scope node plus, when embeddings are
// available, the most similar indexed code chunks.
package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lineagraph/lineage-engine/pkg/apperrors"
	"github.com/lineagraph/lineage-engine/pkg/graph"
	"github.com/lineagraph/lineage-engine/pkg/llm"
	"github.com/lineagraph/lineage-engine/pkg/models"
)

// ContextResult is the retrieved context for one scope. Degraded is set when
// the chunk half of retrieval was skipped or failed; the graph half is always
// present or the retrieval as a whole errors.
type ContextResult struct {
	Scope          models.NodeRef     `json:"scope"`
	Neighborhood   graph.Neighborhood `json:"neighborhood"`
	Chunks         []*graph.CodeChunk `json:"chunks,omitempty"`
	Degraded       bool               `json:"degraded"`
	DegradedReason string             `json:"degraded_reason,omitempty"`
}

// Retriever builds inference context for a scope object.
type Retriever interface {
	// Retrieve resolves scope (either "Kind:key" or a bare object name) and
	// returns its context. A missing scope node yields apperrors.ErrNotFound;
	// a graph outage yields apperrors.ErrGraphUnavailable. Embedding or
	// vector index failures never fail the call.
	Retrieve(ctx context.Context, scope string, projectID string) (*ContextResult, error)
}

type RetrieverDeps struct {
	Store    graph.Store
	Embedder llm.Client     // optional
	Cache    EmbeddingCache // optional
	Logger   *zap.Logger

	Hops         int
	MaxNeighbors int
	ChunkTopK    int

	// Independent budgets: a slow embedding endpoint must not consume the
	// graph query's time, and vice versa.
	GraphTimeout     time.Duration
	EmbeddingTimeout time.Duration
}

type retriever struct {
	deps RetrieverDeps
}

func NewRetriever(deps RetrieverDeps) Retriever {
	if deps.GraphTimeout <= 0 {
		deps.GraphTimeout = 10 * time.Second
	}
	if deps.EmbeddingTimeout <= 0 {
		deps.EmbeddingTimeout = 15 * time.Second
	}
	deps.Logger = deps.Logger.Named("retrieval")
	return &retriever{deps: deps}
}

func (r *retriever) Retrieve(ctx context.Context, scope string, projectID string) (*ContextResult, error) {
	ref, hood, err := r.neighborhood(ctx, scope, projectID)
	if err != nil {
		return nil, err
	}

	result := &ContextResult{
		Scope:        ref,
		Neighborhood: *hood,
	}

	if r.deps.Embedder == nil {
		result.Degraded = true
		result.DegradedReason = "no embedding provider configured"
		return result, nil
	}

	chunks, cerr := r.searchChunks(ctx, ref, hood, projectID)
	if cerr != nil {
		r.deps.Logger.Warn("chunk retrieval failed, returning graph-only context",
			zap.String("scope", ref.String()),
			zap.Error(cerr))
		result.Degraded = true
		result.DegradedReason = cerr.Error()
		return result, nil
	}
	result.Chunks = chunks
	return result, nil
}

// neighborhood resolves the scope token to a node and fetches its subgraph.
// Candidate references are tried in order until one matches.
func (r *retriever) neighborhood(ctx context.Context, scope, projectID string) (models.NodeRef, *graph.Neighborhood, error) {
	opts := graph.NeighborhoodOptions{
		Hops:      r.deps.Hops,
		ProjectID: projectID,
		MaxNodes:  r.deps.MaxNeighbors,
	}

	var lastRef models.NodeRef
	for _, ref := range candidateRefs(scope) {
		lastRef = ref
		qctx, cancel := context.WithTimeout(ctx, r.deps.GraphTimeout)
		hood, err := r.deps.Store.Neighborhood(qctx, ref, opts)
		cancel()
		if err != nil {
			return ref, nil, fmt.Errorf("%w: neighborhood query for %s: %v",
				apperrors.ErrGraphUnavailable, ref.String(), err)
		}
		if len(hood.Nodes) > 0 {
			return ref, hood, nil
		}
	}

	return lastRef, nil, fmt.Errorf("%w: no graph node matches scope %q", apperrors.ErrNotFound, scope)
}

func (r *retriever) searchChunks(ctx context.Context, ref models.NodeRef, hood *graph.Neighborhood, projectID string) ([]*graph.CodeChunk, error) {
	query := chunkQueryText(ref, hood)

	ectx, cancel := context.WithTimeout(ctx, r.deps.EmbeddingTimeout)
	defer cancel()

	vector, err := r.embed(ectx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed retrieval query: %w", err)
	}

	sctx, cancel := context.WithTimeout(ctx, r.deps.GraphTimeout)
	defer cancel()

	chunks, err := r.deps.Store.SearchChunks(sctx, vector, r.deps.ChunkTopK, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to search code chunks: %w", err)
	}
	return chunks, nil
}

// embed returns the query vector, consulting the cache first when one is
// configured. Cache failures fall through to the provider.
func (r *retriever) embed(ctx context.Context, text string) ([]float32, error) {
	if r.deps.Cache != nil {
		if vector, ok := r.deps.Cache.Get(ctx, text); ok {
			return vector, nil
		}
	}

	vector, err := r.deps.Embedder.CreateEmbedding(ctx, text)
	if err != nil {
		return nil, err
	}

	if r.deps.Cache != nil {
		r.deps.Cache.Put(ctx, text, vector)
	}
	return vector, nil
}

// chunkQueryText builds the similarity query from the scope and the object
// names around it, so retrieved fragments relate to the whole neighborhood
// rather than just the scope's own name.
func chunkQueryText(ref models.NodeRef, hood *graph.Neighborhood) string {
	var sb strings.Builder
	sb.WriteString(ref.Key)
	for _, n := range hood.Nodes {
		if n.Key == ref.Key {
			continue
		}
		sb.WriteString(" ")
		sb.WriteString(n.Key)
	}
	return sb.String()
}
