package extract

import (
	"github.com/lineagraph/lineage-engine/pkg/models"
)

// builder accumulates the node and edge sets for one file, deduplicating by
// natural key so one object referenced twice yields one node and one edge.
type builder struct {
	tree     *models.UnitTree
	nodes    []*models.Node
	nodeSeen map[string]int // NodeRef.String() -> index into nodes
	edges    []*models.Edge
	edgeSeen map[string]bool // source|kind|target
}

func newBuilder(tree *models.UnitTree) *builder {
	return &builder{
		tree:     tree,
		nodeSeen: map[string]int{},
		edgeSeen: map[string]bool{},
	}
}

func (b *builder) finish() ([]*models.Node, []*models.Edge) {
	return b.nodes, b.edges
}

func (b *builder) addNode(n *models.Node) models.NodeRef {
	ref := n.Ref()
	if idx, ok := b.nodeSeen[ref.String()]; ok {
		// A richer definition wins over a bare reference to the same key.
		if len(n.Props) > len(b.nodes[idx].Props) {
			b.nodes[idx] = n
		}
		return ref
	}
	b.nodeSeen[ref.String()] = len(b.nodes)
	b.nodes = append(b.nodes, n)
	return ref
}

func (b *builder) addEdge(source, target models.NodeRef, kind models.EdgeKind, evidence string) {
	dedupKey := source.String() + "|" + string(kind) + "|" + target.String()
	if b.edgeSeen[dedupKey] {
		return
	}
	b.edgeSeen[dedupKey] = true
	edge := models.DeterministicEdge(source, target, kind, evidence)
	edge.ProjectID = b.tree.ProjectID
	b.edges = append(b.edges, edge)
}

// assetRef registers a DataAsset node for a name referenced in a statement
// body. Referenced assets carry no definition metadata; if the defining DDL
// is ingested later the same merge key picks up its properties.
func (b *builder) assetRef(name string) models.NodeRef {
	return b.addNode(&models.Node{
		Kind:      models.NodeKindDataAsset,
		Key:       name,
		ProjectID: b.tree.ProjectID,
		Props:     map[string]any{"name": name},
	})
}

func (b *builder) addAsset(unit *models.Unit) {
	ref := b.addNode(&models.Node{
		Kind:      models.NodeKindDataAsset,
		Key:       unit.QualifiedName(),
		ProjectID: b.tree.ProjectID,
		Props: map[string]any{
			"name":      unit.Name,
			"schema":    unit.Schema,
			"object":    string(unit.Kind),
			"file_path": b.tree.FilePath,
		},
	})
	for _, col := range unit.Columns {
		b.addNode(&models.Node{
			Kind:      models.NodeKindColumn,
			Key:       models.ColumnKey(ref.Key, col.Name),
			ProjectID: b.tree.ProjectID,
			Props: map[string]any{
				"name":      col.Name,
				"data_type": col.DataType,
				"asset":     ref.Key,
			},
		})
	}
}

func (b *builder) addCodeUnit(unit *models.Unit) {
	ref := b.addNode(&models.Node{
		Kind:      models.NodeKindCodeUnit,
		Key:       unit.QualifiedName(),
		ProjectID: b.tree.ProjectID,
		Props: map[string]any{
			"name":      unit.Name,
			"schema":    unit.Schema,
			"object":    string(unit.Kind),
			"signature": unit.Signature,
			"file_path": b.tree.FilePath,
		},
	})
	for _, tr := range unit.TableRefs {
		asset := b.assetRef(tr.Asset)
		switch tr.Kind {
		case models.TableRefRead:
			b.addEdge(ref, asset, models.EdgeKindReadsFrom, tr.Statement)
		case models.TableRefWrite:
			b.addEdge(ref, asset, models.EdgeKindWritesTo, tr.Statement)
		}
	}
	for _, call := range unit.CallRefs {
		callee := b.addNode(&models.Node{
			Kind:      models.NodeKindCodeUnit,
			Key:       call,
			ProjectID: b.tree.ProjectID,
			Props:     map[string]any{"name": call},
		})
		b.addEdge(ref, callee, models.EdgeKindCalls, "")
	}
}

func (b *builder) addTrigger(unit *models.Unit) {
	ref := b.addNode(&models.Node{
		Kind:      models.NodeKindTrigger,
		Key:       unit.QualifiedName(),
		ProjectID: b.tree.ProjectID,
		Props: map[string]any{
			"name":      unit.Name,
			"schema":    unit.Schema,
			"table":     unit.TargetTable,
			"file_path": b.tree.FilePath,
		},
	})
	if unit.TargetTable != "" {
		b.addEdge(ref, b.assetRef(unit.TargetTable), models.EdgeKindAttachedTo, unit.Snippet)
	}
}

func (b *builder) addSynonym(unit *models.Unit) {
	ref := b.addNode(&models.Node{
		Kind:      models.NodeKindSynonym,
		Key:       unit.QualifiedName(),
		ProjectID: b.tree.ProjectID,
		Props: map[string]any{
			"name":      unit.Name,
			"schema":    unit.Schema,
			"target":    unit.TargetObject,
			"file_path": b.tree.FilePath,
		},
	})
	if unit.TargetObject != "" {
		b.addEdge(ref, b.assetRef(unit.TargetObject), models.EdgeKindAliasOf, unit.Snippet)
	}
}

func (b *builder) addMaterializedView(unit *models.Unit) {
	ref := b.addNode(&models.Node{
		Kind:      models.NodeKindMaterializedView,
		Key:       unit.QualifiedName(),
		ProjectID: b.tree.ProjectID,
		Props: map[string]any{
			"name":      unit.Name,
			"schema":    unit.Schema,
			"file_path": b.tree.FilePath,
		},
	})
	for _, src := range unit.SourceAssets {
		b.addEdge(ref, b.assetRef(src), models.EdgeKindDerives, unit.Snippet)
	}
}
