package rdf

import (
	"sort"
)

// Graph is a set of triples
type Graph struct {
	triples map[Triple]struct{}
}

// NewGraph creates a graph holding the given triples
func NewGraph(triples ...Triple) *Graph {
	g := &Graph{triples: make(map[Triple]struct{}, len(triples))}
	g.Add(triples...)
	return g
}

// Add inserts triples, ignoring duplicates
func (g *Graph) Add(triples ...Triple) {
	for _, t := range triples {
		g.triples[t] = struct{}{}
	}
}

// Has reports whether the triple is in the graph
func (g *Graph) Has(t Triple) bool {
	_, ok := g.triples[t]
	return ok
}

// Len returns the number of triples
func (g *Graph) Len() int {
	return len(g.triples)
}

// Merge adds every triple of other
func (g *Graph) Merge(other *Graph) {
	for t := range other.triples {
		g.triples[t] = struct{}{}
	}
}

// Triples returns the triples ordered by subject, predicate and object
func (g *Graph) Triples() []Triple {
	triples := make([]Triple, 0, len(g.triples))
	for t := range g.triples {
		triples = append(triples, t)
	}
	SortTriples(triples)
	return triples
}

// BySubject returns the triples whose subject is s
func (g *Graph) BySubject(s Term) []Triple {
	var triples []Triple
	for t := range g.triples {
		if t.Subject == s {
			triples = append(triples, t)
		}
	}
	SortTriples(triples)
	return triples
}

// ByObject returns the triples whose object is o
func (g *Graph) ByObject(o Term) []Triple {
	var triples []Triple
	for t := range g.triples {
		if t.Object == o {
			triples = append(triples, t)
		}
	}
	SortTriples(triples)
	return triples
}

// SubjectsOfType returns the sorted subjects typed with the given class
func (g *Graph) SubjectsOfType(class string) []Term {
	typeTerm := NewIRI(RDFType)
	classTerm := NewIRI(class)

	var subjects []Term
	for t := range g.triples {
		if t.Predicate == typeTerm && t.Object == classTerm {
			subjects = append(subjects, t.Subject)
		}
	}
	sort.Slice(subjects, func(i, j int) bool {
		return subjects[i].String() < subjects[j].String()
	})
	return subjects
}

// Equal reports whether both graphs hold the same triples
func (g *Graph) Equal(other *Graph) bool {
	if g.Len() != other.Len() {
		return false
	}
	for t := range g.triples {
		if !other.Has(t) {
			return false
		}
	}
	return true
}

// SortTriples orders triples by their N-Triples rendering, term by term
func SortTriples(triples []Triple) {
	sort.Slice(triples, func(i, j int) bool {
		a, b := triples[i], triples[j]
		if as, bs := a.Subject.String(), b.Subject.String(); as != bs {
			return as < bs
		}
		if ap, bp := a.Predicate.String(), b.Predicate.String(); ap != bp {
			return ap < bp
		}
		return a.Object.String() < b.Object.String()
	})
}
