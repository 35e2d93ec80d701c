package retrieval

import (
	"strings"

	"github.com/jinzhu/inflection"

	"github.com/lineagraph/lineage-engine/pkg/models"
)

// scopeKinds is the resolution order for a bare scope name. Code units come
// first: inference scopes are usually procedures or functions.
var scopeKinds = []models.NodeKind{
	models.NodeKindCodeUnit,
	models.NodeKindDataAsset,
	models.NodeKindTrigger,
	models.NodeKindSynonym,
	models.NodeKindMaterializedView,
	models.NodeKindFile,
}

// candidateRefs expands a scope token into the node references to try, in
// order. An explicit "Kind:key" token yields exactly one candidate; a bare
// name fans out over kinds and singular/plural name variants, since DDL and
// body references disagree on pluralization often enough to matter.
func candidateRefs(scope string) []models.NodeRef {
	scope = strings.TrimSpace(scope)

	if kind, key, ok := strings.Cut(scope, ":"); ok {
		if k := models.NodeKind(kind); k.IsValid() {
			return []models.NodeRef{{Kind: k, Key: key}}
		}
	}

	var refs []models.NodeRef
	for _, key := range nameVariants(scope) {
		for _, k := range scopeKinds {
			refs = append(refs, models.NodeRef{Kind: k, Key: key})
		}
	}
	return refs
}

// nameVariants returns the scope name plus its singular and plural forms,
// varying only the last segment of a qualified name.
func nameVariants(name string) []string {
	variants := []string{name}
	seen := map[string]bool{name: true}

	qualifier, last := "", name
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		qualifier, last = name[:idx+1], name[idx+1:]
	}

	for _, form := range []string{inflection.Singular(last), inflection.Plural(last)} {
		variant := qualifier + form
		if form != "" && !seen[variant] {
			seen[variant] = true
			variants = append(variants, variant)
		}
	}
	return variants
}
