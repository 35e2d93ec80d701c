package inference

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lineagraph/lineage-engine/pkg/graph"
	"github.com/lineagraph/lineage-engine/pkg/models"
	"github.com/lineagraph/lineage-engine/pkg/retry"
)

// Ingestor persists validated proposals into the graph store.
type Ingestor interface {
	// IngestProposals writes the batch as pending_review edges in one
	// transaction and returns how many records were merged. Approved edges
	// for the same pairs are never touched.
	IngestProposals(ctx context.Context, edges []*models.Edge) (int, error)
}

type IngestorDeps struct {
	Store  graph.Store
	Logger *zap.Logger
	Retry  *retry.Config
}

type ingestor struct {
	store  graph.Store
	logger *zap.Logger
	retry  *retry.Config
}

func NewIngestor(deps IngestorDeps) Ingestor {
	cfg := deps.Retry
	if cfg == nil {
		cfg = retry.DefaultConfig()
	}
	return &ingestor{
		store:  deps.Store,
		logger: deps.Logger.Named("inference"),
		retry:  cfg,
	}
}

func (i *ingestor) IngestProposals(ctx context.Context, edges []*models.Edge) (int, error) {
	if len(edges) == 0 {
		return 0, nil
	}

	var written int
	err := retry.Do(ctx, i.retry, func() error {
		var werr error
		written, werr = i.store.IngestPending(ctx, edges)
		return werr
	})
	if err != nil {
		return 0, fmt.Errorf("failed to ingest edge proposals: %w", err)
	}

	i.logger.Info("ingested edge proposals",
		zap.Int("proposed", len(edges)),
		zap.Int("written", written))
	return written, nil
}
