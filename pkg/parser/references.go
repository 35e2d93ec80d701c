package parser

import (
	"regexp"
	"strings"

	"github.com/lineagraph/lineage-engine/pkg/models"
)

// Reference scanning is heuristic by contract. The scanner reads statement
// keywords (SELECT/INSERT/UPDATE/DELETE/MERGE) out of procedural bodies and
// records which assets they touch. Anything it cannot see through — string
// concatenation, variables holding table names — is omitted rather than
// guessed; the inference stage exists for those cases.

var (
	fromJoinPattern  = regexp.MustCompile(`(?is)\b(?:FROM|JOIN)\s+([\w."\[\]]+)`)
	insertPattern    = regexp.MustCompile(`(?is)\bINSERT\s+INTO\s+([\w."\[\]]+)`)
	updatePattern    = regexp.MustCompile(`(?is)\bUPDATE\s+([\w."\[\]]+)\s+SET\b`)
	deletePattern    = regexp.MustCompile(`(?is)\bDELETE\s+FROM\s+([\w."\[\]]+)`)
	mergePattern     = regexp.MustCompile(`(?is)\bMERGE\s+INTO\s+([\w."\[\]]+)`)
	truncatePattern  = regexp.MustCompile(`(?is)\bTRUNCATE\s+TABLE\s+([\w."\[\]]+)`)
	callPattern      = regexp.MustCompile(`(?is)\b(?:CALL|PERFORM)\s+([\w."\[\]]+)`)
	execNamePattern  = regexp.MustCompile(`(?is)\bEXEC(?:UTE)?\s+([A-Za-z_][\w."\[\]]*)\s*[;(\s]`)
	dynamicPattern   = regexp.MustCompile(`(?is)\b(?:EXECUTE\s+IMMEDIATE|sp_executesql|EXECUTE\s*\()\s*(.{0,400})`)
	stringLitPattern = regexp.MustCompile(`(?s)^[\s(]*N?'((?:[^']|'')*)'\s*[,);]?`)
)

// pseudoTables are engine-provided row sets that must not become assets.
var pseudoTables = map[string]bool{
	"dual":     true,
	"inserted": true,
	"deleted":  true,
	"new":      true,
	"old":      true,
}

// scanTableRefs extracts read and write references from a procedural body.
// Dynamic execution of a plain string literal is scanned recursively; a
// string built from concatenation or variables contributes nothing.
func scanTableRefs(body string) []models.TableRef {
	var refs []models.TableRef
	seen := map[string]bool{}

	add := func(raw string, kind models.TableRefKind, stmt string) {
		asset := cleanAssetName(raw)
		if asset == "" || pseudoTables[strings.ToLower(asset)] {
			return
		}
		key := asset + "/" + string(kind)
		if seen[key] {
			return
		}
		seen[key] = true
		refs = append(refs, models.TableRef{Asset: asset, Kind: kind, Statement: stmt})
	}

	scan := func(text string) {
		for _, m := range fromJoinPattern.FindAllStringSubmatch(text, -1) {
			add(m[1], models.TableRefRead, strings.TrimSpace(m[0]))
		}
		for _, m := range insertPattern.FindAllStringSubmatch(text, -1) {
			add(m[1], models.TableRefWrite, strings.TrimSpace(m[0]))
		}
		for _, m := range updatePattern.FindAllStringSubmatch(text, -1) {
			add(m[1], models.TableRefWrite, strings.TrimSpace(m[0]))
		}
		for _, m := range deletePattern.FindAllStringSubmatch(text, -1) {
			add(m[1], models.TableRefWrite, strings.TrimSpace(m[0]))
		}
		for _, m := range mergePattern.FindAllStringSubmatch(text, -1) {
			add(m[1], models.TableRefWrite, strings.TrimSpace(m[0]))
		}
		for _, m := range truncatePattern.FindAllStringSubmatch(text, -1) {
			add(m[1], models.TableRefWrite, strings.TrimSpace(m[0]))
		}
	}

	scan(body)

	for _, m := range dynamicPattern.FindAllStringSubmatch(body, -1) {
		arg := m[1]
		lit := stringLitPattern.FindStringSubmatch(arg)
		if lit == nil {
			// String-built statement: omit rather than fabricate.
			continue
		}
		rest := arg[len(lit[0]):]
		if strings.HasPrefix(strings.TrimSpace(rest), "||") || strings.HasPrefix(strings.TrimSpace(rest), "+") {
			continue
		}
		scan(strings.ReplaceAll(lit[1], "''", "'"))
	}

	return refs
}

// scanCallRefs extracts named procedure/function calls, excluding the
// routine's own name.
func scanCallRefs(body, selfName string) []string {
	var calls []string
	seen := map[string]bool{}
	selfLower := strings.ToLower(selfName)

	add := func(raw string) {
		name := cleanAssetName(raw)
		if name == "" {
			return
		}
		lower := strings.ToLower(name)
		if lower == selfLower || strings.HasSuffix(lower, "."+selfLower) {
			return
		}
		if isReservedWord(lower) || seen[lower] {
			return
		}
		seen[lower] = true
		calls = append(calls, name)
	}

	for _, m := range callPattern.FindAllStringSubmatch(body, -1) {
		add(m[1])
	}
	for _, m := range execNamePattern.FindAllStringSubmatch(body, -1) {
		add(m[1])
	}

	return calls
}

// scanReadSources lists the distinct assets a defining query reads from,
// in order of first appearance.
func scanReadSources(query string) []string {
	var sources []string
	seen := map[string]bool{}
	for _, m := range fromJoinPattern.FindAllStringSubmatch(query, -1) {
		asset := cleanAssetName(m[1])
		if asset == "" || pseudoTables[strings.ToLower(asset)] {
			continue
		}
		lower := strings.ToLower(asset)
		if seen[lower] {
			continue
		}
		seen[lower] = true
		sources = append(sources, asset)
	}
	return sources
}

var reservedWords = map[string]bool{
	"immediate": true, "select": true, "insert": true, "update": true,
	"delete": true, "into": true, "from": true, "where": true,
	"begin": true, "end": true, "if": true, "then": true, "else": true,
	"loop": true, "while": true, "as": true, "is": true, "declare": true,
	"sp_executesql": true, "statement": true, "procedure": true, "function": true,
}

func isReservedWord(lower string) bool {
	return reservedWords[lower]
}

// cleanAssetName strips quoting and brackets from a matched identifier and
// rejects anything that is not a plain (possibly qualified) name.
func cleanAssetName(raw string) string {
	name := strings.TrimSpace(raw)
	name = strings.Trim(name, `"[]`)
	name = strings.ReplaceAll(name, `"`, "")
	name = strings.ReplaceAll(name, "[", "")
	name = strings.ReplaceAll(name, "]", "")
	name = strings.TrimSuffix(name, ";")
	name = strings.TrimSuffix(name, ",")
	name = strings.TrimSuffix(name, ")")
	if name == "" || strings.HasPrefix(name, "(") || strings.HasPrefix(name, "@") || strings.HasPrefix(name, ":") {
		return ""
	}
	if isReservedWord(strings.ToLower(name)) {
		return ""
	}
	return name
}
