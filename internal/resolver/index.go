package resolver

import (
	"github.com/xkilldash9x/metagraph/api/schemas"
)

type indexEntry struct {
	id     int64
	family schemas.Family
}

// Index is the name to component map of one run, built during the component
// pass. It is not safe for concurrent mutation; the pass that fills it is
// single-writer and readers only start once it is complete.
type Index struct {
	byName map[string][]indexEntry
	size   int
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{byName: make(map[string][]indexEntry)}
}

// Add records a stored component under its canonical name.
func (ix *Index) Add(id int64, family schemas.Family, name string) {
	ix.byName[name] = append(ix.byName[name], indexEntry{id: id, family: family})
	ix.size++
}

// Len is the number of components added.
func (ix *Index) Len() int { return ix.size }

// Lookup returns the first component named name whose family is prefer, or
// the first component with that name in insertion order.
func (ix *Index) Lookup(name string, prefer schemas.Family) (int64, bool) {
	entries := ix.byName[name]
	if len(entries) == 0 {
		return 0, false
	}
	for _, e := range entries {
		if e.family == prefer {
			return e.id, true
		}
	}
	return entries[0].id, true
}
