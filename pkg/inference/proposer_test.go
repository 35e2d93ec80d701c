package inference

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lineagraph/lineage-engine/pkg/apperrors"
	"github.com/lineagraph/lineage-engine/pkg/graph"
	"github.com/lineagraph/lineage-engine/pkg/llm"
	"github.com/lineagraph/lineage-engine/pkg/models"
	"github.com/lineagraph/lineage-engine/pkg/retrieval"
)

func testContext() *retrieval.ContextResult {
	return &retrieval.ContextResult{
		Scope: models.NodeRef{Kind: models.NodeKindCodeUnit, Key: "billing.sp_archive"},
		Neighborhood: graph.Neighborhood{
			Nodes: []*models.Node{
				{Kind: models.NodeKindCodeUnit, Key: "billing.sp_archive"},
				{Kind: models.NodeKindDataAsset, Key: "billing.orders"},
				{Kind: models.NodeKindDataAsset, Key: "billing.orders_archive"},
			},
			Edges: []*models.Edge{
				{
					Source:     models.NodeRef{Kind: models.NodeKindCodeUnit, Key: "billing.sp_archive"},
					Target:     models.NodeRef{Kind: models.NodeKindDataAsset, Key: "billing.orders"},
					Kind:       models.EdgeKindReadsFrom,
					Provenance: models.EdgeSourceParser,
					Status:     models.EdgeStatusApproved,
					Confidence: 1.0,
				},
			},
		},
	}
}

func newTestProposer(response string, err error) (Proposer, *llm.MockClient) {
	client := llm.NewMockClient()
	client.GenerateResponseFunc = func(ctx context.Context, prompt, systemMessage string, temperature float64) (string, error) {
		return response, err
	}
	return NewProposer(ProposerDeps{
		LLM:               client,
		Logger:            zap.NewNop(),
		CompletionTimeout: time.Second,
	}), client
}

func TestPropose_AcceptsValidProposal(t *testing.T) {
	response := `{
  "proposals": [
    {
      "source_node": "CodeUnit:billing.sp_archive",
      "target_node": "DataAsset:billing.orders_archive",
      "edge_kind": "WRITES_TO",
      "confidence": 0.8,
      "evidence": "Dynamic INSERT INTO orders_archive."
    }
  ]
}`
	proposer, _ := newTestProposer(response, nil)

	edges, err := proposer.Propose(context.Background(), testContext(), "proj-1")
	require.NoError(t, err)
	require.Len(t, edges, 1)

	edge := edges[0]
	assert.Equal(t, "CodeUnit:billing.sp_archive", edge.Source.String())
	assert.Equal(t, "DataAsset:billing.orders_archive", edge.Target.String())
	assert.Equal(t, models.EdgeKindWritesTo, edge.Kind)
	assert.Equal(t, models.EdgeSourceLLM, edge.Provenance)
	assert.Equal(t, models.EdgeStatusPendingReview, edge.Status)
	assert.Equal(t, 0.8, edge.Confidence)
	assert.Equal(t, "proj-1", edge.ProjectID)
	assert.NotEqual(t, "", edge.ID.String())
}

func TestPropose_ParsesFencedJSON(t *testing.T) {
	response := "Here is my analysis:\n```json\n" + `{"proposals":[{"source_node":"CodeUnit:billing.sp_archive","target_node":"DataAsset:billing.orders_archive","edge_kind":"WRITES_TO","confidence":0.7,"evidence":"x"}]}` + "\n```"
	proposer, _ := newTestProposer(response, nil)

	edges, err := proposer.Propose(context.Background(), testContext(), "")
	require.NoError(t, err)
	assert.Len(t, edges, 1)
}

func TestPropose_ClampsConfidence(t *testing.T) {
	response := `{"proposals":[{"source_node":"CodeUnit:billing.sp_archive","target_node":"DataAsset:billing.orders_archive","edge_kind":"WRITES_TO","confidence":1.4,"evidence":"x"}]}`
	proposer, _ := newTestProposer(response, nil)

	edges, err := proposer.Propose(context.Background(), testContext(), "")
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, 1.0, edges[0].Confidence)
}

func TestPropose_FiltersInvalidProposals(t *testing.T) {
	tests := []struct {
		name     string
		proposal string
	}{
		{
			name:     "hallucinated target",
			proposal: `{"source_node":"CodeUnit:billing.sp_archive","target_node":"DataAsset:made_up_table","edge_kind":"WRITES_TO","confidence":0.9}`,
		},
		{
			name:     "unknown edge kind",
			proposal: `{"source_node":"CodeUnit:billing.sp_archive","target_node":"DataAsset:billing.orders_archive","edge_kind":"MANAGES","confidence":0.9}`,
		},
		{
			name:     "malformed source reference",
			proposal: `{"source_node":"sp_archive","target_node":"DataAsset:billing.orders_archive","edge_kind":"WRITES_TO","confidence":0.9}`,
		},
		{
			name:     "self edge",
			proposal: `{"source_node":"CodeUnit:billing.sp_archive","target_node":"CodeUnit:billing.sp_archive","edge_kind":"CALLS","confidence":0.9}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proposer, _ := newTestProposer(`{"proposals":[`+tt.proposal+`]}`, nil)

			_, err := proposer.Propose(context.Background(), testContext(), "")
			assert.ErrorIs(t, err, apperrors.ErrNoProposals)
		})
	}
}

func TestPropose_KnownPairBecomesPendingRecord(t *testing.T) {
	// The context already carries a parser/approved READS_FROM edge for this
	// pair. The proposal must still come back as a pending record: the
	// review gate, not the proposer, decides what happens to a suggestion
	// that conflicts with or repeats recorded lineage.
	response := `{"proposals":[{"source_node":"CodeUnit:billing.sp_archive","target_node":"DataAsset:billing.orders","edge_kind":"READS_FROM","confidence":0.9,"evidence":"SELECT in body"}]}`
	proposer, _ := newTestProposer(response, nil)

	edges, err := proposer.Propose(context.Background(), testContext(), "")
	require.NoError(t, err)
	require.Len(t, edges, 1)

	edge := edges[0]
	assert.Equal(t, "CodeUnit:billing.sp_archive", edge.Source.String())
	assert.Equal(t, "DataAsset:billing.orders", edge.Target.String())
	assert.Equal(t, models.EdgeKindReadsFrom, edge.Kind)
	assert.Equal(t, models.EdgeSourceLLM, edge.Provenance)
	assert.Equal(t, models.EdgeStatusPendingReview, edge.Status)
}

func TestPropose_MalformedOutput(t *testing.T) {
	proposer, _ := newTestProposer("I could not find anything interesting.", nil)

	_, err := proposer.Propose(context.Background(), testContext(), "")
	assert.ErrorIs(t, err, apperrors.ErrNoProposals)
}

func TestPropose_EmptyProposalList(t *testing.T) {
	proposer, _ := newTestProposer(`{"proposals":[]}`, nil)

	_, err := proposer.Propose(context.Background(), testContext(), "")
	assert.ErrorIs(t, err, apperrors.ErrNoProposals)
}

func TestPropose_ModelErrorIsNotNoProposals(t *testing.T) {
	proposer, _ := newTestProposer("", assert.AnError)

	_, err := proposer.Propose(context.Background(), testContext(), "")
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperrors.ErrNoProposals)
}

func TestPropose_PromptCarriesContext(t *testing.T) {
	var seenPrompt string
	client := llm.NewMockClient()
	client.GenerateResponseFunc = func(ctx context.Context, prompt, systemMessage string, temperature float64) (string, error) {
		seenPrompt = prompt
		return `{"proposals":[]}`, nil
	}
	proposer := NewProposer(ProposerDeps{LLM: client, Logger: zap.NewNop(), CompletionTimeout: time.Second})

	contextResult := testContext()
	contextResult.Chunks = []*graph.CodeChunk{{FilePath: "f.sql", UnitName: "billing.sp_archive", Text: "BEGIN EXECUTE IMMEDIATE ... END"}}

	_, _ = proposer.Propose(context.Background(), contextResult, "")

	assert.Contains(t, seenPrompt, "CodeUnit")
	assert.Contains(t, seenPrompt, "billing.sp_archive")
	assert.Contains(t, seenPrompt, "billing.orders_archive")
	assert.Contains(t, seenPrompt, "EXECUTE IMMEDIATE")
	assert.Contains(t, seenPrompt, "READS_FROM")
}
