package model

import "strings"

// HierarchySeparator joins a parent category and a subcategory into a single
// collection name, e.g. "Storage > Bike Storage".
const HierarchySeparator = " > "

// ParentMap maps a full collection name to its parent category name. Entries
// exist only for hierarchical names; flat names have no parent.
type ParentMap map[string]string

// Taxonomy is an ordered set of unique collection names. Iteration order is
// insertion order and is significant: tie-breaks and duplicate resolution
// throughout the pipeline follow it.
type Taxonomy struct {
	index map[string]int
	names []string
}

// NewTaxonomy creates a taxonomy from the given names, dropping duplicates
// while preserving first-seen order.
func NewTaxonomy(names ...string) *Taxonomy {
	t := &Taxonomy{index: make(map[string]int, len(names))}
	for _, name := range names {
		t.Add(name)
	}
	return t
}

// Add appends a name to the taxonomy. It returns false if the name was
// already present or empty after trimming.
func (t *Taxonomy) Add(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	if _, ok := t.index[name]; ok {
		return false
	}
	t.index[name] = len(t.names)
	t.names = append(t.names, name)
	return true
}

// Contains reports whether name is a member of the taxonomy.
func (t *Taxonomy) Contains(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Names returns the taxonomy entries in iteration order. The returned slice
// is a copy.
func (t *Taxonomy) Names() []string {
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}

// Len returns the number of entries.
func (t *Taxonomy) Len() int {
	return len(t.names)
}

// ParentMap derives the parent mapping for all hierarchical entries.
func (t *Taxonomy) ParentMap() ParentMap {
	pm := make(ParentMap)
	for _, name := range t.names {
		if parent, _, ok := SplitHierarchical(name); ok {
			pm[name] = parent
		}
	}
	return pm
}

// SplitHierarchical decomposes a collection name of the form
// "Parent > Subcategory" into its parts. Only the first separator is
// meaningful; anything after it belongs to the subcategory. ok is false for
// flat names.
func SplitHierarchical(name string) (parent, sub string, ok bool) {
	parent, sub, ok = strings.Cut(name, HierarchySeparator)
	if !ok {
		return "", "", false
	}
	parent = strings.TrimSpace(parent)
	sub = strings.TrimSpace(sub)
	if parent == "" || sub == "" {
		return "", "", false
	}
	return parent, sub, true
}
