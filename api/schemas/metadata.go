package schemas

import "time"

// -- Canonical Dependency Graph Data Model --

// Family is the metadata type tag of an archive entry, derived from its
// filename suffix. The values match the platform's metadata type names.
type Family string

// The families that have dedicated extractors, plus the Unknown tag. The full
// suffix table lives in the archive package.
const (
	FamilyApexClass    Family = "ApexClass"
	FamilyApexTrigger  Family = "ApexTrigger"
	FamilyCustomObject Family = "CustomObject"
	FamilyFlow         Family = "Flow"
	FamilyLayout       Family = "Layout"
	FamilyUnknown      Family = "Unknown"
)

func (f Family) String() string { return string(f) }

// EdgeKind defines the semantic type of a dependency between two components.
type EdgeKind string

const (
	EdgeQueryReference      EdgeKind = "query-reference"          // Code queries an object.
	EdgeMutationReference   EdgeKind = "mutation-reference"       // Code performs DML on an operand.
	EdgeOnObject            EdgeKind = "on-object"                // A trigger is declared on an object.
	EdgeFieldReference      EdgeKind = "field-reference"          // An object field looks up another object.
	EdgeInheritance         EdgeKind = "inheritance"              // A class extends another class.
	EdgeInterface           EdgeKind = "interface-implementation" // A class implements an interface.
	EdgeFlowObjectReference EdgeKind = "flow-object-reference"    // A flow touches an object.
	EdgeFlowCodeReference   EdgeKind = "flow-code-reference"      // A flow invokes Apex.
	EdgeLayoutForObject     EdgeKind = "layout-for-object"        // A page layout governs an object.
)

func (k EdgeKind) String() string { return string(k) }

// AllEdgeKinds lists every kind in a stable order.
var AllEdgeKinds = []EdgeKind{
	EdgeQueryReference,
	EdgeMutationReference,
	EdgeOnObject,
	EdgeFieldReference,
	EdgeInheritance,
	EdgeInterface,
	EdgeFlowObjectReference,
	EdgeFlowCodeReference,
	EdgeLayoutForObject,
}

// Valid reports whether k is one of the known edge kinds.
func (k EdgeKind) Valid() bool {
	for _, known := range AllEdgeKinds {
		if k == known {
			return true
		}
	}
	return false
}

// TargetsCode reports whether edges of this kind point at code artifacts
// (classes and interfaces) rather than objects.
func (k EdgeKind) TargetsCode() bool {
	switch k {
	case EdgeInheritance, EdgeInterface, EdgeFlowCodeReference:
		return true
	default:
		return false
	}
}

// Scope is the tenant boundary within which component names are unique.
type Scope struct {
	OrgID         string `json:"org_id"`
	IntegrationID string `json:"integration_id"`
}

// MetadataComponent is one parsed, stored artifact. Content is never mutated
// after creation; re-extraction produces new rows under a new job.
type MetadataComponent struct {
	ID            int64     `json:"id"`
	Family        Family    `json:"type"`
	Name          string    `json:"name"`
	Label         string    `json:"label"`
	Path          string    `json:"path"`
	Content       string    `json:"content,omitempty"`
	APIVersion    string    `json:"api_version"`
	Notes         string    `json:"notes"`
	JobID         string    `json:"job_id"`
	OrgID         string    `json:"org_id"`
	IntegrationID string    `json:"integration_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// Scope returns the owning scope of the component.
func (c MetadataComponent) Scope() Scope {
	return Scope{OrgID: c.OrgID, IntegrationID: c.IntegrationID}
}

// ComponentInput carries everything needed to create a component row.
type ComponentInput struct {
	Family     Family
	Name       string
	Label      string
	Path       string
	Content    string
	APIVersion string
	Notes      string
	JobID      string
	Scope      Scope
}

// DependencyEdge is a directed, typed reference between two stored
// components. FromID never equals ToID.
type DependencyEdge struct {
	ID          int64     `json:"id"`
	FromID      int64     `json:"from_component_id"`
	ToID        int64     `json:"to_component_id"`
	Kind        EdgeKind  `json:"kind"`
	Description string    `json:"description"`
	JobID       string    `json:"job_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// RawEdge is an extractor's unresolved view of a dependency: a free-text
// target name plus the kind and description of the reference.
type RawEdge struct {
	ToName      string   `json:"to_name"`
	Kind        EdgeKind `json:"kind"`
	Description string   `json:"description"`
}

// SearchQuery filters components by scope, free text and optional family.
type SearchQuery struct {
	Scope  Scope
	Text   string
	Family Family
	Limit  int
}

// TypeCount is the number of components of one family within a job.
type TypeCount struct {
	Family Family `json:"type"`
	Count  int    `json:"count"`
}
