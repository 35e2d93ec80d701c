package extract

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lineagraph/lineage-engine/pkg/graph"
	"github.com/lineagraph/lineage-engine/pkg/llm"
	"github.com/lineagraph/lineage-engine/pkg/models"
	"github.com/lineagraph/lineage-engine/pkg/retry"
)

// Extractor converts a parsed unit tree into graph nodes and deterministic
// edges and writes them to the graph store.
type Extractor interface {
	// ExtractAndUpsert writes the full node/edge set for one file. The write
	// is all-or-nothing: on failure the graph retains its previous state for
	// that file. Re-running on unchanged input produces an identical graph.
	ExtractAndUpsert(ctx context.Context, tree *models.UnitTree) (graph.WriteStats, error)
}

type ExtractorDeps struct {
	Store    graph.Store
	Embedder llm.Client // optional; chunk indexing is skipped when nil
	Logger   *zap.Logger
	Retry    *retry.Config
}

type extractor struct {
	store    graph.Store
	embedder llm.Client
	logger   *zap.Logger
	retry    *retry.Config
}

func NewExtractor(deps ExtractorDeps) Extractor {
	cfg := deps.Retry
	if cfg == nil {
		cfg = retry.DefaultConfig()
	}
	return &extractor{
		store:    deps.Store,
		embedder: deps.Embedder,
		logger:   deps.Logger.Named("extract"),
		retry:    cfg,
	}
}

func (e *extractor) ExtractAndUpsert(ctx context.Context, tree *models.UnitTree) (graph.WriteStats, error) {
	nodes, edges := e.collect(tree)

	var stats graph.WriteStats
	err := retry.Do(ctx, e.retry, func() error {
		var werr error
		stats, werr = e.store.UpsertGraph(ctx, nodes, edges)
		return werr
	})
	if err != nil {
		return graph.WriteStats{}, fmt.Errorf("failed to upsert lineage graph for %s: %w", tree.FilePath, err)
	}

	e.logger.Info("extracted lineage graph",
		zap.String("file", tree.FilePath),
		zap.Int("units", len(tree.Units)),
		zap.Int("nodes", stats.NodesWritten),
		zap.Int("edges", stats.EdgesWritten),
		zap.Bool("parse_error", tree.ParseError))

	// Chunk indexing is best effort: retrieval degrades gracefully without
	// it, so an embedding outage must not fail ingestion.
	if e.embedder != nil && !tree.ParseError {
		if cerr := e.indexChunks(ctx, tree); cerr != nil {
			e.logger.Warn("chunk indexing failed, continuing without embeddings",
				zap.String("file", tree.FilePath),
				zap.Error(cerr))
		}
	}

	return stats, nil
}

// collect builds the deterministic node and edge sets for a unit tree. A
// file that failed structural validation contributes only its File node,
// flagged with parse_error.
func (e *extractor) collect(tree *models.UnitTree) ([]*models.Node, []*models.Edge) {
	b := newBuilder(tree)

	b.addNode(models.FileNode(tree.FilePath, tree.Dialect, tree.ProjectID, tree.ParseError, tree.ParsedAt))
	if tree.ParseError {
		return b.finish()
	}

	for _, unit := range tree.Units {
		switch unit.Kind {
		case models.UnitKindTable, models.UnitKindView:
			b.addAsset(unit)
		case models.UnitKindProcedure, models.UnitKindFunction:
			b.addCodeUnit(unit)
		case models.UnitKindTrigger:
			b.addTrigger(unit)
		case models.UnitKindSynonym:
			b.addSynonym(unit)
		case models.UnitKindMaterializedView:
			b.addMaterializedView(unit)
		default:
			e.logger.Warn("skipping unit of unknown kind",
				zap.String("file", tree.FilePath),
				zap.String("kind", string(unit.Kind)),
				zap.String("name", unit.QualifiedName()))
		}
	}

	return b.finish()
}

func (e *extractor) indexChunks(ctx context.Context, tree *models.UnitTree) error {
	var chunks []*graph.CodeChunk
	for _, unit := range tree.Units {
		if unit.Snippet == "" {
			continue
		}
		embedding, err := e.embedder.CreateEmbedding(ctx, unit.Snippet)
		if err != nil {
			return fmt.Errorf("failed to embed chunk for %s: %w", unit.QualifiedName(), err)
		}
		chunks = append(chunks, &graph.CodeChunk{
			Key:       fmt.Sprintf("%s#%s", tree.FilePath, unit.QualifiedName()),
			FilePath:  tree.FilePath,
			UnitName:  unit.QualifiedName(),
			Text:      unit.Snippet,
			ProjectID: tree.ProjectID,
			Embedding: embedding,
		})
	}
	if len(chunks) == 0 {
		return nil
	}
	if err := e.store.UpsertChunks(ctx, chunks); err != nil {
		return fmt.Errorf("failed to upsert code chunks: %w", err)
	}
	e.logger.Debug("indexed code chunks",
		zap.String("file", tree.FilePath),
		zap.Int("chunks", len(chunks)))
	return nil
}
