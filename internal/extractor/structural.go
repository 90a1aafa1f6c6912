package extractor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/xkilldash9x/metagraph/api/schemas"
)

// referenceFieldTypes are the field types that point at another object.
var referenceFieldTypes = map[string]struct{}{
	"Lookup":       {},
	"MasterDetail": {},
}

var errNoRoot = errors.New("document has no root element")

// parseMetadata reads a structural artifact.
func parseMetadata(content string) (*etree.Element, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(content); err != nil {
		return nil, err
	}
	root := doc.Root()
	if root == nil {
		return nil, errNoRoot
	}
	return root, nil
}

// inNamespace reports whether el is the metadata element named local.
func inNamespace(el *etree.Element, local string) bool {
	return el.Tag == local && el.NamespaceURI() == MetadataNamespace
}

// walk calls fn for every descendant of el named local in the metadata
// namespace, in document order.
func walk(el *etree.Element, local string, fn func(*etree.Element)) {
	for _, child := range el.ChildElements() {
		if inNamespace(child, local) {
			fn(child)
		}
		walk(child, local, fn)
	}
}

// children returns the direct children of el named local in the metadata
// namespace.
func children(el *etree.Element, local string) []*etree.Element {
	var out []*etree.Element
	for _, child := range el.ChildElements() {
		if inNamespace(child, local) {
			out = append(out, child)
		}
	}
	return out
}

// childText returns the trimmed text of the first direct child named local.
func childText(el *etree.Element, local string) string {
	if matches := children(el, local); len(matches) > 0 {
		return strings.TrimSpace(matches[0].Text())
	}
	return ""
}

// ExtractCustomObject emits a field-reference edge for every Lookup or
// MasterDetail field of an object definition.
func ExtractCustomObject(src Source) ([]schemas.RawEdge, error) {
	root, err := parseMetadata(src.Content)
	if err != nil {
		return nil, err
	}

	var edges []schemas.RawEdge
	walk(root, "fields", func(field *etree.Element) {
		fieldType := childText(field, "type")
		if _, ok := referenceFieldTypes[fieldType]; !ok {
			return
		}
		fieldName := childText(field, "fullName")
		for _, ref := range children(field, "referenceTo") {
			target := strings.TrimSpace(ref.Text())
			if target == "" {
				continue
			}
			edges = append(edges, newEdge(schemas.EdgeFieldReference, target,
				fmt.Sprintf("%s has %s field %s referencing %s", src.Name, fieldType, fieldName, target)))
		}
	})
	return edges, nil
}

// ExtractFlow emits edges for the objects a flow touches and the Apex it
// invokes, either through plugin calls or invocable actions.
func ExtractFlow(src Source) ([]schemas.RawEdge, error) {
	root, err := parseMetadata(src.Content)
	if err != nil {
		return nil, err
	}

	var edges []schemas.RawEdge
	walk(root, "object", func(el *etree.Element) {
		if name := strings.TrimSpace(el.Text()); name != "" {
			edges = append(edges, newEdge(schemas.EdgeFlowObjectReference, name,
				fmt.Sprintf("%s flow references object %s", src.Name, name)))
		}
	})
	walk(root, "apexClass", func(el *etree.Element) {
		if name := strings.TrimSpace(el.Text()); name != "" {
			edges = append(edges, newEdge(schemas.EdgeFlowCodeReference, name,
				fmt.Sprintf("%s flow calls Apex class %s", src.Name, name)))
		}
	})
	walk(root, "actionCalls", func(el *etree.Element) {
		if !strings.EqualFold(childText(el, "actionType"), "apex") {
			return
		}
		if name := childText(el, "actionName"); name != "" {
			edges = append(edges, newEdge(schemas.EdgeFlowCodeReference, name,
				fmt.Sprintf("%s flow calls Apex class %s", src.Name, name)))
		}
	})
	return edges, nil
}

// LayoutDelimiter separates the governed object from the layout's own name,
// as in "Account-Account Layout".
const LayoutDelimiter = "-"

// ExtractLayout derives the governed object from the layout's canonical
// name. Content is not parsed. Names without the delimiter yield no edge.
func ExtractLayout(src Source) ([]schemas.RawEdge, error) {
	object, _, found := strings.Cut(src.Name, LayoutDelimiter)
	object = strings.TrimSpace(object)
	if !found || object == "" {
		return nil, nil
	}
	return []schemas.RawEdge{
		newEdge(schemas.EdgeLayoutForObject, object, fmt.Sprintf("%s layout is for object %s", src.Name, object)),
	}, nil
}
