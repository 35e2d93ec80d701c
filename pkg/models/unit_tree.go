package models

import "time"

// UnitKind identifies a construct the structural parser recognized.
type UnitKind string

// Unit kind constants. This is a closed set: the graph extractor matches on
// it exhaustively, so a new construct kind means a new extraction rule.
const (
	UnitKindTable            UnitKind = "table"
	UnitKindView             UnitKind = "view"
	UnitKindProcedure        UnitKind = "procedure"
	UnitKindFunction         UnitKind = "function"
	UnitKindTrigger          UnitKind = "trigger"
	UnitKindSynonym          UnitKind = "synonym"
	UnitKindMaterializedView UnitKind = "materialized_view"
)

// TableRefKind classifies how a procedural body touches a table.
type TableRefKind string

// Table reference kinds.
const (
	TableRefRead  TableRefKind = "read"
	TableRefWrite TableRefKind = "write"
)

// TableRef is a heuristic reference from a code unit's body to a table or
// view. The extraction over- or under-matches by design; consumers must
// tolerate false positives and negatives.
type TableRef struct {
	Asset     string       `json:"asset"` // qualified name as written
	Kind      TableRefKind `json:"kind"`
	Statement string       `json:"statement,omitempty"` // snippet the reference came from
}

// ColumnDef is a column recognized inside a table or view definition.
type ColumnDef struct {
	Name     string `json:"name"`
	DataType string `json:"data_type,omitempty"`
}

// Unit is one construct recognized in a file. Kind-specific fields are only
// populated for the kinds that carry them.
type Unit struct {
	Kind      UnitKind `json:"kind"`
	Schema    string   `json:"schema,omitempty"`
	Name      string   `json:"name"`
	Signature string   `json:"signature,omitempty"` // procedures/functions

	// Tables and views.
	Columns []ColumnDef `json:"columns,omitempty"`

	// Triggers: the table the trigger fires on.
	TargetTable string `json:"target_table,omitempty"`

	// Synonyms: the object the synonym aliases.
	TargetObject string `json:"target_object,omitempty"`

	// Materialized views: qualified names of the assets the defining
	// query reads from.
	SourceAssets []string `json:"source_assets,omitempty"`

	// Procedures, functions and triggers: heuristic body references.
	TableRefs []TableRef `json:"table_refs,omitempty"`
	CallRefs  []string   `json:"call_refs,omitempty"`

	// Snippet is the definition text, kept for chunk indexing and evidence.
	Snippet string `json:"snippet,omitempty"`
}

// QualifiedName returns the unit's schema-qualified name.
func (u *Unit) QualifiedName() string {
	return QualifiedName(u.Schema, u.Name)
}

// UnitTree is the normalized result of parsing one file. A syntax error
// never aborts parsing: the tree then carries only the file identity with
// ParseError set, and extraction degrades to a bare File node.
type UnitTree struct {
	FilePath   string    `json:"file_path"`
	Dialect    string    `json:"dialect"`
	ProjectID  string    `json:"project_id,omitempty"`
	ParseError bool      `json:"parse_error"`
	ParsedAt   time.Time `json:"parsed_at"`
	Units      []*Unit   `json:"units,omitempty"`
}
