// Package review implements the human gate for model-proposed lineage edges.
package review

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lineagraph/lineage-engine/pkg/apperrors"
	"github.com/lineagraph/lineage-engine/pkg/graph"
	"github.com/lineagraph/lineage-engine/pkg/models"
)

// Service applies review decisions. pending_review is the only reviewable
// state; approved and rejected are terminal, so a second decision on the
// same edge fails rather than silently rewriting history.
type Service interface {
	// Review applies the action to the edge and returns the updated record.
	// Returns apperrors.ErrNotFound for an unknown id and
	// apperrors.ErrInvalidTransition when the edge is not pending_review,
	// including when a concurrent reviewer got there first.
	Review(ctx context.Context, edgeID uuid.UUID, action models.ReviewAction) (*models.Edge, error)

	// ListPending returns the review queue for a project, oldest decisions
	// last (most recently updated first).
	ListPending(ctx context.Context, projectID string, limit int) ([]*models.Edge, error)
}

type ServiceDeps struct {
	Store  graph.Store
	Logger *zap.Logger
}

type service struct {
	store  graph.Store
	logger *zap.Logger
}

func NewService(deps ServiceDeps) Service {
	return &service{
		store:  deps.Store,
		logger: deps.Logger.Named("review"),
	}
}

func (s *service) Review(ctx context.Context, edgeID uuid.UUID, action models.ReviewAction) (*models.Edge, error) {
	if !action.IsValid() {
		return nil, fmt.Errorf("unsupported review action %q", action)
	}

	edge, err := s.store.GetEdge(ctx, edgeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load edge %s: %w", edgeID, err)
	}
	if edge == nil {
		return nil, fmt.Errorf("%w: edge %s", apperrors.ErrNotFound, edgeID)
	}
	if edge.Status != models.EdgeStatusPendingReview {
		return nil, fmt.Errorf("%w: edge %s is %s", apperrors.ErrInvalidTransition, edgeID, edge.Status)
	}

	toStatus := models.EdgeStatusApproved
	if action == models.ReviewActionReject {
		toStatus = models.EdgeStatusRejected
	}

	// The store re-checks pending_review inside the update, so two
	// concurrent reviewers cannot both win.
	updated, err := s.store.UpdateEdgeStatus(ctx, edgeID, models.EdgeStatusPendingReview, toStatus, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to update edge %s: %w", edgeID, err)
	}
	if updated == nil {
		return nil, fmt.Errorf("%w: edge %s was reviewed concurrently", apperrors.ErrInvalidTransition, edgeID)
	}

	s.logger.Info("reviewed edge",
		zap.String("edge_id", edgeID.String()),
		zap.String("action", string(action)),
		zap.String("kind", string(updated.Kind)),
		zap.String("source", updated.Source.String()),
		zap.String("target", updated.Target.String()))
	return updated, nil
}

func (s *service) ListPending(ctx context.Context, projectID string, limit int) ([]*models.Edge, error) {
	edges, err := s.store.ListEdges(ctx, models.EdgeFilter{
		ProjectID: projectID,
		Status:    models.EdgeStatusPendingReview,
		Limit:     limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pending edges: %w", err)
	}
	return edges, nil
}
