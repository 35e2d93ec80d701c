package prompts

import (
	"fmt"
	"strings"
)

// NodeContext describes a graph node included in the analysis scope.
type NodeContext struct {
	Kind  string
	Key   string
	Props map[string]any
}

// EdgeContext describes an already-known edge inside the scope.
type EdgeContext struct {
	SourceKind string
	SourceKey  string
	TargetKind string
	TargetKey  string
	Kind       string
	Provenance string
	Status     string
}

// ChunkContext is a code fragment retrieved as supporting evidence.
type ChunkContext struct {
	FilePath string
	UnitName string
	Text     string
}

// BuildEdgeProposalPrompt creates the prompt asking the LLM to propose
// lineage edges that the deterministic parser could not establish. It lists
// the scoped subgraph, the known edges, the retrieved code fragments, and the
// JSON response format.
func BuildEdgeProposalPrompt(nodes []NodeContext, edges []EdgeContext, chunks []ChunkContext) string {
	var prompt strings.Builder

	prompt.WriteString("# Data Lineage Edge Analysis\n\n")
	prompt.WriteString("Analyze the following database objects and code fragments and propose lineage edges that are implied by the code but not yet recorded in the graph.\n\n")

	prompt.WriteString("## Objects In Scope\n\n")
	for _, n := range nodes {
		prompt.WriteString(fmt.Sprintf("- **%s** `%s`", n.Kind, n.Key))
		if obj, ok := n.Props["object"].(string); ok && obj != "" {
			prompt.WriteString(fmt.Sprintf(" (%s)", obj))
		}
		if sig, ok := n.Props["signature"].(string); ok && sig != "" {
			prompt.WriteString(fmt.Sprintf(" — signature: `%s`", sig))
		}
		prompt.WriteString("\n")
	}
	prompt.WriteString("\n")

	prompt.WriteString("## Known Edges\n\n")
	if len(edges) == 0 {
		prompt.WriteString("None recorded yet.\n")
	}
	for _, e := range edges {
		prompt.WriteString(fmt.Sprintf("- `%s:%s` -[%s]-> `%s:%s` (%s, %s)\n",
			e.SourceKind, e.SourceKey, e.Kind, e.TargetKind, e.TargetKey, e.Provenance, e.Status))
	}
	prompt.WriteString("\n")

	if len(chunks) > 0 {
		prompt.WriteString("## Code Fragments\n\n")
		for _, c := range chunks {
			prompt.WriteString(fmt.Sprintf("### %s (%s)\n", c.UnitName, c.FilePath))
			prompt.WriteString("```sql\n")
			prompt.WriteString(c.Text)
			if !strings.HasSuffix(c.Text, "\n") {
				prompt.WriteString("\n")
			}
			prompt.WriteString("```\n\n")
		}
	}

	prompt.WriteString("## Analysis Guidelines\n\n")
	prompt.WriteString("**Propose an edge when**:\n")
	prompt.WriteString("- Dynamic SQL builds a statement against a table the static text never names directly\n")
	prompt.WriteString("- A naming or commenting convention clearly links a routine to an asset (e.g. sp_refresh_orders maintaining Orders)\n")
	prompt.WriteString("- A fragment reads from or writes to an object through an alias or synonym in scope\n\n")

	prompt.WriteString("**Do NOT propose**:\n")
	prompt.WriteString("- Edges that merely restate a Known Edge without new supporting evidence\n")
	prompt.WriteString("- Edges involving any object not listed under Objects In Scope\n")
	prompt.WriteString("- Edges justified only by a guess with no supporting fragment\n\n")

	prompt.WriteString("Valid edge kinds: READS_FROM, WRITES_TO, ATTACHED_TO, ALIAS_OF, DERIVES, CALLS.\n\n")

	prompt.WriteString("## Output Format\n\n")
	prompt.WriteString("Respond in JSON with a `proposals` array (may be empty):\n")
	prompt.WriteString("- `source_node`: `\"Kind:key\"` of the source, exactly as listed above\n")
	prompt.WriteString("- `target_node`: `\"Kind:key\"` of the target, exactly as listed above\n")
	prompt.WriteString("- `edge_kind`: one of the valid edge kinds\n")
	prompt.WriteString("- `confidence`: 0.0-1.0 (how confident you are the edge is real)\n")
	prompt.WriteString("- `evidence`: the fragment or convention that supports the edge (1-2 sentences)\n\n")

	prompt.WriteString("Example:\n")
	prompt.WriteString("```json\n")
	prompt.WriteString(`{
  "proposals": [
    {
      "source_node": "CodeUnit:billing.sp_archive",
      "target_node": "DataAsset:billing.orders_archive",
      "edge_kind": "WRITES_TO",
      "confidence": 0.8,
      "evidence": "The procedure builds 'INSERT INTO orders_archive' via EXECUTE IMMEDIATE with a concatenated suffix."
    }
  ]
}
`)
	prompt.WriteString("```\n\n")

	prompt.WriteString("Return ONLY the JSON, no additional text.\n")

	return prompt.String()
}

// BuildEdgeProposalSystemMessage returns the system message for the LLM.
func BuildEdgeProposalSystemMessage() string {
	return `You are a data lineage analysis expert. Your task is to read SQL objects and code fragments and propose only the lineage edges the evidence supports.`
}
