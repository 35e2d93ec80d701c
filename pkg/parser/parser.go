// Package parser turns SQL source text into a normalized unit tree.
//
// This is a structural parser, not a SQL compiler: it recognizes top-level
// CREATE statements with dialect-aware regexes and extracts heuristic table
// and call references from procedural bodies. It is allowed to over- or
// under-match; downstream consumers tolerate false positives and negatives.
package parser

import (
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lineagraph/lineage-engine/pkg/models"
)

// Concrete parser dialect keys the registry maps to.
const (
	KeyPostgres = "postgres"
	KeyTSQL     = "tsql"
	KeyPLSQL    = "plsql"
	KeyMySQL    = "mysql"
)

// Parser parses one file at a time. Parsers are stateless and safe for
// concurrent use; parsing independent files shares nothing.
type Parser struct {
	logger *zap.Logger
}

// New creates a Parser.
func New(logger *zap.Logger) *Parser {
	return &Parser{logger: logger.Named("parser")}
}

// createStmtPattern locates top-level CREATE statements. The statement text
// runs from one match to the next; that keeps procedure bodies attached to
// their heading without tracking BEGIN/END nesting.
var createStmtPattern = regexp.MustCompile(`(?is)\bCREATE\s+(?:OR\s+(?:REPLACE|ALTER)\s+)?(GLOBAL\s+TEMPORARY\s+TABLE|MATERIALIZED\s+VIEW|TABLE|VIEW|PROCEDURE|PROC\b|FUNCTION|TRIGGER|(?:PUBLIC\s+)?SYNONYM)\s+`)

// Parse produces a UnitTree for the file. It never returns an error: on
// malformed input the tree carries only the file identity with ParseError
// set so the rest of the pipeline keeps operating.
func (p *Parser) Parse(filePath, text, dialectKey, projectID string) *models.UnitTree {
	tree := &models.UnitTree{
		FilePath:  filePath,
		Dialect:   dialectKey,
		ProjectID: projectID,
		ParsedAt:  time.Now().UTC(),
	}

	cleaned := stripComments(text)

	if !balancedQuotes(cleaned) || !balancedParens(cleaned) {
		p.logger.Warn("malformed source, recording parse error",
			zap.String("file", filePath),
			zap.String("dialect", dialectKey))
		tree.ParseError = true
		return tree
	}

	matches := createStmtPattern.FindAllStringSubmatchIndex(cleaned, -1)
	for i, m := range matches {
		end := len(cleaned)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		stmt := strings.TrimSpace(cleaned[m[0]:end])
		keyword := normalizeKeyword(cleaned[m[2]:m[3]])

		unit := p.parseStatement(keyword, stmt, dialectKey)
		if unit == nil {
			continue
		}
		unit.Snippet = truncateSnippet(stmt)
		tree.Units = append(tree.Units, unit)
	}

	p.logger.Debug("parsed file",
		zap.String("file", filePath),
		zap.String("dialect", dialectKey),
		zap.Int("units", len(tree.Units)))

	return tree
}

func (p *Parser) parseStatement(keyword, stmt, dialectKey string) *models.Unit {
	switch keyword {
	case "TABLE":
		return parseTable(stmt)
	case "VIEW":
		return parseView(stmt, false)
	case "MATERIALIZED VIEW":
		return parseView(stmt, true)
	case "PROCEDURE", "PROC":
		return parseRoutine(stmt, models.UnitKindProcedure, dialectKey)
	case "FUNCTION":
		return parseRoutine(stmt, models.UnitKindFunction, dialectKey)
	case "TRIGGER":
		return parseTrigger(stmt, dialectKey)
	case "SYNONYM":
		return parseSynonym(stmt)
	default:
		return nil
	}
}

func normalizeKeyword(raw string) string {
	fields := strings.Fields(strings.ToUpper(raw))
	switch {
	case len(fields) >= 2 && fields[0] == "MATERIALIZED":
		return "MATERIALIZED VIEW"
	case len(fields) >= 3 && fields[0] == "GLOBAL":
		return "TABLE"
	case len(fields) >= 2 && fields[0] == "PUBLIC":
		return "SYNONYM"
	case len(fields) > 0:
		return fields[0]
	default:
		return ""
	}
}

var (
	tableNamePattern = regexp.MustCompile(`(?is)\bTABLE\s+(?:IF\s+NOT\s+EXISTS\s+)?([\w."\[\]]+)`)
	viewNamePattern  = regexp.MustCompile(`(?is)\bVIEW\s+(?:IF\s+NOT\s+EXISTS\s+)?([\w."\[\]]+)`)
)

func parseTable(stmt string) *models.Unit {
	m := tableNamePattern.FindStringSubmatch(stmt)
	if m == nil {
		return nil
	}
	schema, name := splitQualified(m[1])

	unit := &models.Unit{
		Kind:   models.UnitKindTable,
		Schema: schema,
		Name:   name,
	}
	unit.Columns = parseColumnDefs(stmt)
	return unit
}

func parseView(stmt string, materialized bool) *models.Unit {
	m := viewNamePattern.FindStringSubmatch(stmt)
	if m == nil {
		return nil
	}
	schema, name := splitQualified(m[1])

	kind := models.UnitKindView
	if materialized {
		kind = models.UnitKindMaterializedView
	}

	unit := &models.Unit{
		Kind:   kind,
		Schema: schema,
		Name:   name,
	}

	// The defining query starts after the first top-level AS. Only
	// materialized views record their sources; a plain view has no
	// DERIVES semantics in the lineage graph.
	if materialized {
		if idx := findKeyword(stmt, "AS"); idx >= 0 {
			unit.SourceAssets = scanReadSources(stmt[idx+2:])
		}
	}

	return unit
}

var routineNamePattern = regexp.MustCompile(`(?is)\b(?:PROCEDURE|PROC|FUNCTION)\s+([\w."\[\]]+)`)

func parseRoutine(stmt string, kind models.UnitKind, dialectKey string) *models.Unit {
	m := routineNamePattern.FindStringSubmatch(stmt)
	if m == nil {
		return nil
	}
	schema, name := splitQualified(m[1])

	unit := &models.Unit{
		Kind:   kind,
		Schema: schema,
		Name:   name,
	}
	unit.Signature = extractSignature(stmt)

	body := routineBody(stmt, dialectKey)
	unit.TableRefs = scanTableRefs(body)
	unit.CallRefs = scanCallRefs(body, name)

	return unit
}

var (
	triggerNamePattern  = regexp.MustCompile(`(?is)\bTRIGGER\s+(?:IF\s+NOT\s+EXISTS\s+)?([\w."\[\]]+)`)
	triggerTablePattern = regexp.MustCompile(`(?is)\bON\s+([\w."\[\]]+)`)
)

func parseTrigger(stmt string, dialectKey string) *models.Unit {
	m := triggerNamePattern.FindStringSubmatch(stmt)
	if m == nil {
		return nil
	}
	schema, name := splitQualified(m[1])

	unit := &models.Unit{
		Kind:   models.UnitKindTrigger,
		Schema: schema,
		Name:   name,
	}

	if tm := triggerTablePattern.FindStringSubmatch(stmt); tm != nil {
		_, table := splitQualified(tm[1])
		unit.TargetTable = models.QualifiedName(qualifier(tm[1]), table)
	}

	body := routineBody(stmt, dialectKey)
	unit.TableRefs = scanTableRefs(body)
	unit.CallRefs = scanCallRefs(body, name)

	return unit
}

var synonymPattern = regexp.MustCompile(`(?is)\bSYNONYM\s+([\w."\[\]]+)\s+FOR\s+([\w."\[\]]+)`)

func parseSynonym(stmt string) *models.Unit {
	m := synonymPattern.FindStringSubmatch(stmt)
	if m == nil {
		return nil
	}
	schema, name := splitQualified(m[1])
	targetSchema, target := splitQualified(m[2])

	return &models.Unit{
		Kind:         models.UnitKindSynonym,
		Schema:       schema,
		Name:         name,
		TargetObject: models.QualifiedName(targetSchema, target),
	}
}

// parseColumnDefs extracts column names and types from the first balanced
// parenthesis group of a CREATE TABLE statement. Constraint clauses
// (PRIMARY KEY, FOREIGN KEY, CHECK, UNIQUE, CONSTRAINT) are skipped.
func parseColumnDefs(stmt string) []models.ColumnDef {
	open := strings.IndexByte(stmt, '(')
	if open < 0 {
		return nil
	}
	group, ok := balancedGroup(stmt[open:])
	if !ok {
		return nil
	}

	var cols []models.ColumnDef
	for _, part := range splitTopLevel(group, ',') {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Fields(part)
		if len(fields) == 0 {
			continue
		}
		head := strings.ToUpper(strings.Trim(fields[0], `"[]`))
		switch head {
		case "PRIMARY", "FOREIGN", "CONSTRAINT", "UNIQUE", "CHECK", "KEY", "INDEX", "EXCLUDE", "LIKE":
			continue
		}
		col := models.ColumnDef{Name: strings.Trim(fields[0], `"[]`)}
		if len(fields) > 1 {
			col.DataType = strings.ToLower(strings.TrimRight(fields[1], ","))
		}
		cols = append(cols, col)
	}
	return cols
}

// extractSignature returns the routine heading up to the body introducer.
func extractSignature(stmt string) string {
	upper := strings.ToUpper(stmt)
	end := len(stmt)
	for _, kw := range []string{"\nAS\n", " AS ", "\nIS\n", " IS ", "BEGIN", "RETURN", "LANGUAGE"} {
		if idx := strings.Index(upper, kw); idx >= 0 && idx < end {
			end = idx
		}
	}
	sig := strings.TrimSpace(stmt[:end])
	return truncateSnippet(sig)
}

// routineBody returns the procedural body portion of the statement. For
// PostgreSQL that is the dollar-quoted block when present; otherwise
// everything after the first AS/IS/BEGIN.
func routineBody(stmt, dialectKey string) string {
	if dialectKey == KeyPostgres {
		if body, ok := dollarQuotedBody(stmt); ok {
			return body
		}
	}
	upper := strings.ToUpper(stmt)
	for _, kw := range []string{" AS ", "\nAS\n", " IS ", "\nIS\n", "BEGIN"} {
		if idx := strings.Index(upper, kw); idx >= 0 {
			return stmt[idx:]
		}
	}
	return stmt
}

var dollarQuotePattern = regexp.MustCompile(`(?s)\$([A-Za-z_]*)\$(.*?)\$([A-Za-z_]*)\$`)

func dollarQuotedBody(stmt string) (string, bool) {
	m := dollarQuotePattern.FindStringSubmatch(stmt)
	if m == nil || m[1] != m[3] {
		return "", false
	}
	return m[2], true
}

const maxSnippetLen = 2000

func truncateSnippet(s string) string {
	if len(s) <= maxSnippetLen {
		return s
	}
	return s[:maxSnippetLen]
}
