// Package extractor turns artifact content into unresolved dependency edges.
// Every extractor is a pure function of its Source.
package extractor

import (
	"fmt"

	"github.com/xkilldash9x/metagraph/api/schemas"
	"github.com/xkilldash9x/metagraph/internal/resolver"
)

// MetadataNamespace is the schema URI of every structural artifact.
const MetadataNamespace = "http://soap.sforce.com/2006/04/metadata"

// Source is the extractor's view of one stored component.
type Source struct {
	Path    string
	Name    string
	Family  schemas.Family
	Content string
}

// Extractor produces raw edges for one artifact family.
type Extractor interface {
	Extract(src Source) ([]schemas.RawEdge, error)
}

// Func adapts a plain function to the Extractor interface.
type Func func(src Source) ([]schemas.RawEdge, error)

// Extract calls f.
func (f Func) Extract(src Source) ([]schemas.RawEdge, error) { return f(src) }

// ParseError reports a single artifact that could not be analyzed. It never
// fails the enclosing run.
type ParseError struct {
	Path   string
	Family schemas.Family
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s %q: %v", e.Family, e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Registry dispatches sources to the extractor registered for their family.
type Registry struct {
	byFamily map[schemas.Family]Extractor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byFamily: make(map[schemas.Family]Extractor)}
}

// Default returns a registry with the built-in extractors.
func Default() *Registry {
	r := NewRegistry()
	r.Register(schemas.FamilyApexClass, Func(ExtractApexClass))
	r.Register(schemas.FamilyApexTrigger, Func(ExtractApexTrigger))
	r.Register(schemas.FamilyCustomObject, Func(ExtractCustomObject))
	r.Register(schemas.FamilyFlow, Func(ExtractFlow))
	r.Register(schemas.FamilyLayout, Func(ExtractLayout))
	return r
}

// Register sets the extractor for family, replacing any previous one.
func (r *Registry) Register(family schemas.Family, e Extractor) {
	r.byFamily[family] = e
}

// Supports reports whether family has an extractor.
func (r *Registry) Supports(family schemas.Family) bool {
	_, ok := r.byFamily[family]
	return ok
}

// Extract runs the family's extractor over src. Families without an
// extractor yield no edges. Any failure, including a panic inside the
// extractor, comes back as a *ParseError with no edges.
func (r *Registry) Extract(src Source) (edges []schemas.RawEdge, err error) {
	e, ok := r.byFamily[src.Family]
	if !ok {
		return nil, nil
	}

	defer func() {
		if rec := recover(); rec != nil {
			edges = nil
			err = &ParseError{Path: src.Path, Family: src.Family, Err: fmt.Errorf("extractor panic: %v", rec)}
		}
	}()

	edges, err = e.Extract(src)
	if err != nil {
		if _, isParse := err.(*ParseError); !isParse {
			err = &ParseError{Path: src.Path, Family: src.Family, Err: err}
		}
		return nil, err
	}
	return edges, nil
}

// newEdge builds a raw edge with its target normalized.
func newEdge(kind schemas.EdgeKind, target, description string) schemas.RawEdge {
	return schemas.RawEdge{
		ToName:      resolver.NormalizeTarget(kind, target),
		Kind:        kind,
		Description: description,
	}
}
