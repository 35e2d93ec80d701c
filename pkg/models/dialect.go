package models

// DialectAuto is the sentinel callers at the system boundary may pass to
// mean "use the registry default". Nothing below the resolver sees it.
const DialectAuto = "auto"

// Dialect is one row of the dialect registry. ParserKey is the concrete
// identifier the structural parser is parameterized by; ID is the logical
// token callers use.
type Dialect struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	ParserKey   string `json:"parser_dialect_key"`
	Enabled     bool   `json:"enabled"`
	IsDefault   bool   `json:"is_default"`
}
