package extractor

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/xkilldash9x/metagraph/api/schemas"
)

var (
	// Query targets. [^;] keeps a match inside one statement while allowing
	// multi-line SELECT clauses.
	queryPattern = regexp.MustCompile(`(?i)\bSELECT\s+[^;]+?\s+FROM\s+(\w+)`)
	dmlPattern   = regexp.MustCompile(`(?i)\b(insert|update|delete|upsert|merge)\s+(\w+)`)
	// An optional extends clause lets "class A extends B implements C" yield
	// both edges.
	extendsPattern    = regexp.MustCompile(`(?i)\bclass\s+(\w+)\s+extends\s+(\w+)`)
	implementsPattern = regexp.MustCompile(`(?i)\bclass\s+(\w+)(?:\s+extends\s+\w+)?\s+implements\s+(\w+)`)
	triggerPattern    = regexp.MustCompile(`(?i)\btrigger\s+\w+\s+on\s+(\w+)`)
)

// dmlStoplist holds generic container names that are never object references.
var dmlStoplist = map[string]struct{}{
	"list":    {},
	"set":     {},
	"map":     {},
	"string":  {},
	"integer": {},
	"boolean": {},
}

// ExtractApexClass finds queries, DML statements, inheritance and interface
// implementation in Apex class source.
func ExtractApexClass(src Source) ([]schemas.RawEdge, error) {
	var edges []schemas.RawEdge

	for _, m := range queryPattern.FindAllStringSubmatch(src.Content, -1) {
		edges = append(edges, newEdge(schemas.EdgeQueryReference, m[1],
			fmt.Sprintf("%s queries %s", src.Name, m[1])))
	}

	for _, m := range dmlPattern.FindAllStringSubmatch(src.Content, -1) {
		op, operand := m[1], m[2]
		if _, skip := dmlStoplist[strings.ToLower(operand)]; skip {
			continue
		}
		edges = append(edges, newEdge(schemas.EdgeMutationReference, operand,
			fmt.Sprintf("%s performs %s on %s", src.Name, op, operand)))
	}

	for _, m := range extendsPattern.FindAllStringSubmatch(src.Content, -1) {
		edges = append(edges, newEdge(schemas.EdgeInheritance, m[2],
			fmt.Sprintf("%s extends %s", src.Name, m[2])))
	}

	for _, m := range implementsPattern.FindAllStringSubmatch(src.Content, -1) {
		edges = append(edges, newEdge(schemas.EdgeInterface, m[2],
			fmt.Sprintf("%s implements %s", src.Name, m[2])))
	}

	return edges, nil
}

// ExtractApexTrigger finds the object a trigger is declared on.
func ExtractApexTrigger(src Source) ([]schemas.RawEdge, error) {
	m := triggerPattern.FindStringSubmatch(src.Content)
	if m == nil {
		return nil, nil
	}
	return []schemas.RawEdge{
		newEdge(schemas.EdgeOnObject, m[1], fmt.Sprintf("%s trigger operates on %s", src.Name, m[1])),
	}, nil
}
