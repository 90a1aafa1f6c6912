// Package resolver maps the free-text target names produced by extractors to
// component ids stored earlier in the same run.
package resolver

import (
	"strings"

	"github.com/xkilldash9x/metagraph/api/schemas"
)

// CustomSuffix is appended to delimited names that lack a custom-identifier
// suffix. The rule is a heuristic; it is never validated against a schema.
const CustomSuffix = "__c"

// customSuffixes are the identifier suffixes the platform reserves for custom
// objects, metadata types, events and their derived tables.
var customSuffixes = []string{
	"__c", "__mdt", "__e", "__b", "__x", "__r", "__share", "__history", "__feed", "__kav",
}

// HasCustomSuffix reports whether name ends with a known custom-identifier
// suffix. The check is case-insensitive.
func HasCustomSuffix(name string) bool {
	lower := strings.ToLower(name)
	for _, s := range customSuffixes {
		if strings.HasSuffix(lower, s) {
			return true
		}
	}
	return false
}

// NeedsSuffix reports whether the heuristic applies: name contains an
// internal underscore but no custom-identifier suffix.
func NeedsSuffix(name string) bool {
	inner := strings.Trim(name, "_")
	return strings.Contains(inner, "_") && !HasCustomSuffix(name)
}

// ApplySuffix returns name with CustomSuffix appended when NeedsSuffix holds
// and name unchanged otherwise.
func ApplySuffix(name string) string {
	if NeedsSuffix(name) {
		return name + CustomSuffix
	}
	return name
}

// NormalizeTarget cleans an extracted target name. Object references get the
// suffix heuristic; code references (classes, interfaces, flow actions) only
// have whitespace trimmed, since class names routinely contain underscores.
func NormalizeTarget(kind schemas.EdgeKind, name string) string {
	name = strings.TrimSpace(name)
	if kind.TargetsCode() {
		return name
	}
	return ApplySuffix(name)
}

// Lookup finds a component id by canonical name, preferring components of
// the given family when several share the name.
type Lookup interface {
	Lookup(name string, prefer schemas.Family) (int64, bool)
}

// Resolver resolves raw edges against one run's component index.
type Resolver struct {
	index Lookup
}

// New returns a Resolver over index.
func New(index Lookup) *Resolver {
	return &Resolver{index: index}
}

// Resolve returns the id of the component edge points at. It tries an exact
// match first and, on a miss, one retry with the custom suffix appended.
// A target equal to fromID is treated as unresolved.
//
// Extractors pass names through NormalizeTarget, so object-kind targets
// usually arrive with the suffix already applied and the exact lookup is the
// only one that runs. The retry covers edges built without normalization.
func (r *Resolver) Resolve(fromID int64, edge schemas.RawEdge) (int64, bool) {
	name := strings.TrimSpace(edge.ToName)
	if name == "" {
		return 0, false
	}
	prefer := PreferredFamily(edge.Kind)

	id, ok := r.index.Lookup(name, prefer)
	if !ok && NeedsSuffix(name) {
		id, ok = r.index.Lookup(name+CustomSuffix, prefer)
	}
	if !ok || id == fromID {
		return 0, false
	}
	return id, true
}

// PreferredFamily is the family an edge kind normally points at.
func PreferredFamily(kind schemas.EdgeKind) schemas.Family {
	if kind.TargetsCode() {
		return schemas.FamilyApexClass
	}
	return schemas.FamilyCustomObject
}
