// Package models contains domain types for lineage-engine.
package models

import (
	"fmt"
	"strings"
	"time"
)

// NodeKind identifies the type of a lineage graph node.
type NodeKind string

// Node kind constants. Each kind derives its identity from a natural key,
// never from a surrogate index, so re-parsing the same source is an upsert.
const (
	NodeKindFile             NodeKind = "File"
	NodeKindCodeUnit         NodeKind = "CodeUnit"
	NodeKindDataAsset        NodeKind = "DataAsset"
	NodeKindColumn           NodeKind = "Column"
	NodeKindTrigger          NodeKind = "Trigger"
	NodeKindSynonym          NodeKind = "Synonym"
	NodeKindMaterializedView NodeKind = "MaterializedView"
	NodeKindCodeChunk        NodeKind = "CodeChunk"
)

// IsValid returns true if the kind is a recognized node kind.
func (k NodeKind) IsValid() bool {
	switch k {
	case NodeKindFile, NodeKindCodeUnit, NodeKindDataAsset, NodeKindColumn,
		NodeKindTrigger, NodeKindSynonym, NodeKindMaterializedView, NodeKindCodeChunk:
		return true
	default:
		return false
	}
}

// Node is a lineage graph node. Key is the natural key within the kind:
// file path for File, qualified name for CodeUnit/DataAsset, "asset.column"
// for Column, trigger name for Trigger, and so on.
type Node struct {
	Kind      NodeKind       `json:"kind"`
	Key       string         `json:"key"`
	ProjectID string         `json:"project_id,omitempty"`
	Props     map[string]any `json:"props,omitempty"`
}

// NodeRef addresses a node without carrying its properties. Edges and
// proposals reference nodes this way.
type NodeRef struct {
	Kind NodeKind `json:"kind"`
	Key  string   `json:"key"`
}

// Ref returns the node's reference.
func (n *Node) Ref() NodeRef {
	return NodeRef{Kind: n.Kind, Key: n.Key}
}

// String renders the reference as "Kind:key" for logs and evidence text.
func (r NodeRef) String() string {
	return fmt.Sprintf("%s:%s", r.Kind, r.Key)
}

// ParseNodeRef parses the "Kind:key" string form back into a reference.
func ParseNodeRef(s string) (NodeRef, error) {
	kind, key, ok := strings.Cut(s, ":")
	if !ok || key == "" {
		return NodeRef{}, fmt.Errorf("malformed node reference %q", s)
	}
	k := NodeKind(kind)
	if !k.IsValid() {
		return NodeRef{}, fmt.Errorf("unknown node kind in reference %q", s)
	}
	return NodeRef{Kind: k, Key: key}, nil
}

// QualifiedName joins a schema and object name, omitting an empty schema.
func QualifiedName(schema, name string) string {
	name = strings.TrimSpace(name)
	schema = strings.TrimSpace(schema)
	if schema == "" {
		return name
	}
	return schema + "." + name
}

// ColumnKey builds the natural key of a Column node from its parent asset
// qualified name and the column name.
func ColumnKey(assetKey, column string) string {
	return assetKey + "." + column
}

// FileNode builds a File node with its parse metadata.
func FileNode(path, dialect, projectID string, parseError bool, parsedAt time.Time) *Node {
	return &Node{
		Kind:      NodeKindFile,
		Key:       path,
		ProjectID: projectID,
		Props: map[string]any{
			"dialect":     dialect,
			"parse_error": parseError,
			"parsed_at":   parsedAt.UTC().Format(time.RFC3339),
		},
	}
}
