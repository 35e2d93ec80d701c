package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/lineagraph/lineage-engine/pkg/jsonutil"
)

// EdgeKind identifies the relationship type of a lineage graph edge.
type EdgeKind string

// Edge kind constants.
const (
	EdgeKindReadsFrom  EdgeKind = "READS_FROM"
	EdgeKindWritesTo   EdgeKind = "WRITES_TO"
	EdgeKindAttachedTo EdgeKind = "ATTACHED_TO"
	EdgeKindAliasOf    EdgeKind = "ALIAS_OF"
	EdgeKindDerives    EdgeKind = "DERIVES"
	EdgeKindCalls      EdgeKind = "CALLS"
)

// IsValid returns true if the kind is a recognized edge kind.
func (k EdgeKind) IsValid() bool {
	switch k {
	case EdgeKindReadsFrom, EdgeKindWritesTo, EdgeKindAttachedTo,
		EdgeKindAliasOf, EdgeKindDerives, EdgeKindCalls:
		return true
	default:
		return false
	}
}

// Edge source constants. These record HOW an edge came to exist.
const (
	EdgeSourceParser = "parser"
	EdgeSourceLLM    = "llm"
)

// Edge status constants.
const (
	EdgeStatusApproved      = "approved"
	EdgeStatusPendingReview = "pending_review"
	EdgeStatusRejected      = "rejected"
)

// Edge is a lineage graph edge with provenance. At most one edge of a given
// kind exists between the same ordered node pair per trust level: a
// parser/approved edge and an llm/pending_review edge for the same pair are
// distinct records until the review gate resolves them.
type Edge struct {
	ID         uuid.UUID `json:"id"`
	Source     NodeRef   `json:"source"`
	Target     NodeRef   `json:"target"`
	Kind       EdgeKind  `json:"kind"`
	Provenance string    `json:"provenance"` // parser | llm
	Confidence float64   `json:"confidence"`
	Status     string    `json:"status"`
	Evidence   string    `json:"evidence,omitempty"`
	ProjectID  string    `json:"project_id,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
	UpdatedAt  time.Time `json:"updated_at,omitempty"`
}

// DeterministicEdge builds a parser-sourced approved edge. Deterministic
// extraction always asserts full confidence; anything the parser is unsure
// about is left to the inference stage instead of being asserted here.
func DeterministicEdge(source, target NodeRef, kind EdgeKind, evidence string) *Edge {
	return &Edge{
		ID:         uuid.New(),
		Source:     source,
		Target:     target,
		Kind:       kind,
		Provenance: EdgeSourceParser,
		Confidence: 1.0,
		Status:     EdgeStatusApproved,
		Evidence:   evidence,
	}
}

// ProposedEdge is a relationship suggested by the language model, as it
// appears in the model's JSON output. Node endpoints use the "Kind:key"
// string form. It becomes an Edge with provenance=llm,
// status=pending_review when ingested.
type ProposedEdge struct {
	SourceNode string   `json:"source_node"`
	TargetNode string   `json:"target_node"`
	Kind       EdgeKind `json:"edge_kind"`
	Confidence float64  `json:"confidence"`
	Evidence   string   `json:"evidence,omitempty"`
}

// UnmarshalJSON decodes the model's output tolerantly: quoted confidences
// and numeric evidence are coerced rather than rejected, leaving semantic
// validation to decide the proposal's fate.
func (p *ProposedEdge) UnmarshalJSON(data []byte) error {
	var raw struct {
		SourceNode json.RawMessage `json:"source_node"`
		TargetNode json.RawMessage `json:"target_node"`
		Kind       json.RawMessage `json:"edge_kind"`
		Confidence json.RawMessage `json:"confidence"`
		Evidence   json.RawMessage `json:"evidence"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	p.SourceNode = jsonutil.FlexibleString(raw.SourceNode)
	p.TargetNode = jsonutil.FlexibleString(raw.TargetNode)
	p.Kind = EdgeKind(jsonutil.FlexibleString(raw.Kind))
	p.Confidence = jsonutil.FlexibleFloat(raw.Confidence)
	p.Evidence = jsonutil.FlexibleString(raw.Evidence)
	return nil
}

// ClampConfidence clamps a model-reported confidence into [0,1].
func ClampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// EdgeFilter narrows edge listing queries.
type EdgeFilter struct {
	ProjectID     string   `json:"project_id,omitempty"`
	Status        string   `json:"status,omitempty"`
	MinConfidence *float64 `json:"min_confidence,omitempty"`
	Kind          EdgeKind `json:"kind,omitempty"`
	Limit         int      `json:"limit,omitempty"`
}

// ReviewAction is a human decision on a pending_review edge.
type ReviewAction string

// Review action constants.
const (
	ReviewActionApprove ReviewAction = "approve"
	ReviewActionReject  ReviewAction = "reject"
)

// IsValid returns true for a recognized review action.
func (a ReviewAction) IsValid() bool {
	return a == ReviewActionApprove || a == ReviewActionReject
}
