// Package vocabulary holds the controlled vocabulary of entity and relation
// type labels, the overlap metric used to compare label sets, and the
// line-oriented files the vocabulary is persisted in.
package vocabulary

import (
	"sort"
	"strings"
)

// TypeSet is an unordered collection of unique, trimmed, non-empty labels.
// Labels are case-sensitive.
type TypeSet map[string]struct{}

// New builds a TypeSet from labels, trimming each one and dropping empties.
func New(labels ...string) TypeSet {
	s := make(TypeSet, len(labels))
	for _, l := range labels {
		s.Add(l)
	}
	return s
}

// Add inserts label after trimming. It reports whether the set grew.
func (s TypeSet) Add(label string) bool {
	label = strings.TrimSpace(label)
	if label == "" {
		return false
	}
	if _, ok := s[label]; ok {
		return false
	}
	s[label] = struct{}{}
	return true
}

// Contains reports whether label (trimmed) is in the set.
func (s TypeSet) Contains(label string) bool {
	_, ok := s[strings.TrimSpace(label)]
	return ok
}

// Len returns the number of labels.
func (s TypeSet) Len() int { return len(s) }

// Sorted returns the labels in ascending byte order.
func (s TypeSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for l := range s {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy.
func (s TypeSet) Clone() TypeSet {
	c := make(TypeSet, len(s))
	for l := range s {
		c[l] = struct{}{}
	}
	return c
}

// Union returns a new set holding the labels of both s and o.
func (s TypeSet) Union(o TypeSet) TypeSet {
	u := s.Clone()
	for l := range o {
		u[l] = struct{}{}
	}
	return u
}

// Difference returns the labels of s that are not in o, sorted.
func (s TypeSet) Difference(o TypeSet) []string {
	var out []string
	for l := range s {
		if _, ok := o[l]; !ok {
			out = append(out, l)
		}
	}
	sort.Strings(out)
	return out
}

// intersectionLen counts labels present in both sets.
func (s TypeSet) intersectionLen(o TypeSet) int {
	small, large := s, o
	if len(small) > len(large) {
		small, large = large, small
	}
	n := 0
	for l := range small {
		if _, ok := large[l]; ok {
			n++
		}
	}
	return n
}

// Vocabulary pairs the entity-type and relation-type sets.
type Vocabulary struct {
	Entities  TypeSet
	Relations TypeSet
}

// EntityLabels returns the entity types in sorted order.
func (v Vocabulary) EntityLabels() []string { return v.Entities.Sorted() }

// RelationLabels returns the relation types in sorted order.
func (v Vocabulary) RelationLabels() []string { return v.Relations.Sorted() }

// Empty reports whether both sets are empty.
func (v Vocabulary) Empty() bool { return v.Entities.Len() == 0 && v.Relations.Len() == 0 }
