// Package inference turns retrieved context into reviewed-by-default lineage
// edge proposals via the language model.
package inference

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lineagraph/lineage-engine/pkg/apperrors"
	"github.com/lineagraph/lineage-engine/pkg/llm"
	"github.com/lineagraph/lineage-engine/pkg/logging"
	"github.com/lineagraph/lineage-engine/pkg/models"
	"github.com/lineagraph/lineage-engine/pkg/prompts"
	"github.com/lineagraph/lineage-engine/pkg/retrieval"
)

// proposalTemperature keeps proposals conservative; exploration is not a
// virtue when every accepted edge lands in a review queue.
const proposalTemperature = 0.1

// proposalResponse is the JSON envelope the model returns.
type proposalResponse struct {
	Proposals []models.ProposedEdge `json:"proposals"`
}

// Proposer asks the model for lineage edges implied by a retrieved context.
type Proposer interface {
	// Propose returns validated llm/pending_review edges for the context.
	// Proposals naming nodes outside the context or using unknown edge
	// kinds are dropped. A proposal for a pair that already carries an
	// edge is kept: the store's merge discipline refreshes a pending
	// record and files a fresh one alongside approved or rejected
	// records, so a reviewer sees every suggestion. Returns
	// apperrors.ErrNoProposals when nothing valid survives, including when
	// the model output is unparseable.
	Propose(ctx context.Context, contextResult *retrieval.ContextResult, projectID string) ([]*models.Edge, error)
}

type ProposerDeps struct {
	LLM               llm.Client
	Logger            *zap.Logger
	CompletionTimeout time.Duration
}

type proposer struct {
	llm     llm.Client
	logger  *zap.Logger
	timeout time.Duration
}

func NewProposer(deps ProposerDeps) Proposer {
	if deps.CompletionTimeout <= 0 {
		deps.CompletionTimeout = 2 * time.Minute
	}
	return &proposer{
		llm:     deps.LLM,
		logger:  deps.Logger.Named("inference"),
		timeout: deps.CompletionTimeout,
	}
}

func (p *proposer) Propose(ctx context.Context, contextResult *retrieval.ContextResult, projectID string) ([]*models.Edge, error) {
	prompt := buildPrompt(contextResult)

	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	response, err := p.llm.GenerateResponse(cctx, prompt, prompts.BuildEdgeProposalSystemMessage(), proposalTemperature)
	if err != nil {
		return nil, fmt.Errorf("failed to generate edge proposals: %w", err)
	}

	parsed, err := llm.ParseJSONResponse[proposalResponse](response)
	if err != nil {
		p.logger.Warn("model returned unparseable proposal output",
			zap.String("scope", contextResult.Scope.String()),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", apperrors.ErrNoProposals, err)
	}

	edges := p.validate(parsed.Proposals, contextResult, projectID)
	if len(edges) == 0 {
		return nil, fmt.Errorf("%w for scope %s", apperrors.ErrNoProposals, contextResult.Scope.String())
	}

	p.logger.Info("generated edge proposals",
		zap.String("scope", contextResult.Scope.String()),
		zap.Int("raw", len(parsed.Proposals)),
		zap.Int("accepted", len(edges)))
	return edges, nil
}

// validate filters raw proposals down to well-formed edges whose endpoints
// exist in the supplied context. Anything the model invented about objects
// it was never shown is a hallucination and is dropped, not repaired.
func (p *proposer) validate(raw []models.ProposedEdge, contextResult *retrieval.ContextResult, projectID string) []*models.Edge {
	inScope := map[string]bool{}
	for _, n := range contextResult.Neighborhood.Nodes {
		inScope[n.Ref().String()] = true
	}

	now := time.Now().UTC()
	var edges []*models.Edge
	for _, prop := range raw {
		source, err := models.ParseNodeRef(prop.SourceNode)
		if err != nil {
			p.drop(prop, "malformed source reference")
			continue
		}
		target, err := models.ParseNodeRef(prop.TargetNode)
		if err != nil {
			p.drop(prop, "malformed target reference")
			continue
		}
		if !prop.Kind.IsValid() {
			p.drop(prop, "unknown edge kind")
			continue
		}
		if !inScope[source.String()] || !inScope[target.String()] {
			p.drop(prop, "endpoint outside retrieved context")
			continue
		}
		if source == target {
			p.drop(prop, "self edge")
			continue
		}

		edges = append(edges, &models.Edge{
			ID:         uuid.New(),
			Source:     source,
			Target:     target,
			Kind:       prop.Kind,
			Provenance: models.EdgeSourceLLM,
			Confidence: models.ClampConfidence(prop.Confidence),
			Status:     models.EdgeStatusPendingReview,
			Evidence:   prop.Evidence,
			ProjectID:  projectID,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}
	return edges
}

func (p *proposer) drop(prop models.ProposedEdge, reason string) {
	p.logger.Warn("dropping proposal",
		zap.String("source", prop.SourceNode),
		zap.String("target", prop.TargetNode),
		zap.String("kind", string(prop.Kind)),
		zap.String("evidence", logging.TruncateString(prop.Evidence, 200)),
		zap.String("reason", reason))
}

// buildPrompt maps the retrieved context into the prompt builder's shape.
func buildPrompt(contextResult *retrieval.ContextResult) string {
	nodes := make([]prompts.NodeContext, 0, len(contextResult.Neighborhood.Nodes))
	for _, n := range contextResult.Neighborhood.Nodes {
		nodes = append(nodes, prompts.NodeContext{
			Kind:  string(n.Kind),
			Key:   n.Key,
			Props: n.Props,
		})
	}

	edges := make([]prompts.EdgeContext, 0, len(contextResult.Neighborhood.Edges))
	for _, e := range contextResult.Neighborhood.Edges {
		edges = append(edges, prompts.EdgeContext{
			SourceKind: string(e.Source.Kind),
			SourceKey:  e.Source.Key,
			TargetKind: string(e.Target.Kind),
			TargetKey:  e.Target.Key,
			Kind:       string(e.Kind),
			Provenance: e.Provenance,
			Status:     e.Status,
		})
	}

	chunks := make([]prompts.ChunkContext, 0, len(contextResult.Chunks))
	for _, c := range contextResult.Chunks {
		chunks = append(chunks, prompts.ChunkContext{
			FilePath: c.FilePath,
			UnitName: c.UnitName,
			Text:     c.Text,
		})
	}

	return prompts.BuildEdgeProposalPrompt(nodes, edges, chunks)
}
