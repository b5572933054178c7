package rdf

import (
	"fmt"
	"strings"
)

// Common namespaces and datatypes
const (
	RDFNamespace = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	XSDNamespace = "http://www.w3.org/2001/XMLSchema#"

	RDFType       = RDFNamespace + "type"
	RDFLangString = RDFNamespace + "langString"

	XSDString  = XSDNamespace + "string"
	XSDInteger = XSDNamespace + "integer"
	XSDDecimal = XSDNamespace + "decimal"
	XSDDouble  = XSDNamespace + "double"
	XSDBoolean = XSDNamespace + "boolean"
)

// TermKind tells IRIs, blank nodes and literals apart
type TermKind int

const (
	IRIKind TermKind = iota
	BlankKind
	LiteralKind
)

// Term is an RDF term. Literals always carry a datatype; language tagged
// literals use rdf:langString.
type Term struct {
	Kind     TermKind
	Value    string
	Datatype string
	Lang     string
}

// NewIRI creates an IRI term
func NewIRI(iri string) Term {
	return Term{Kind: IRIKind, Value: iri}
}

// NewBlank creates a blank node term
func NewBlank(id string) Term {
	return Term{Kind: BlankKind, Value: id}
}

// NewLiteral creates a typed literal; an empty datatype means xsd:string
func NewLiteral(value, datatype string) Term {
	if datatype == "" {
		datatype = XSDString
	}
	return Term{Kind: LiteralKind, Value: value, Datatype: datatype}
}

// NewLangLiteral creates a language tagged string
func NewLangLiteral(value, lang string) Term {
	return Term{Kind: LiteralKind, Value: value, Datatype: RDFLangString, Lang: strings.ToLower(lang)}
}

func (t Term) IsIRI() bool     { return t.Kind == IRIKind }
func (t Term) IsBlank() bool   { return t.Kind == BlankKind }
func (t Term) IsLiteral() bool { return t.Kind == LiteralKind }

// String renders the term in N-Triples syntax
func (t Term) String() string {
	switch t.Kind {
	case IRIKind:
		return "<" + escapeIRI(t.Value) + ">"
	case BlankKind:
		return "_:" + t.Value
	case LiteralKind:
		quoted := `"` + escapeString(t.Value) + `"`
		if t.Lang != "" {
			return quoted + "@" + t.Lang
		}
		if t.Datatype == "" || t.Datatype == XSDString {
			return quoted
		}
		return quoted + "^^<" + escapeIRI(t.Datatype) + ">"
	default:
		return fmt.Sprintf("?%d(%s)", t.Kind, t.Value)
	}
}

// Triple is a single subject, predicate, object statement
type Triple struct {
	Subject   Term
	Predicate Term
	Object    Term
}

// NewTriple creates a triple
func NewTriple(s, p, o Term) Triple {
	return Triple{Subject: s, Predicate: p, Object: o}
}

// String renders the triple as an N-Triples line without the newline
func (t Triple) String() string {
	return t.Subject.String() + " " + t.Predicate.String() + " " + t.Object.String() + " ."
}

func escapeString(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func escapeIRI(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r <= 0x20, strings.ContainsRune(`<>"{}|^`+"`"+`\`, r):
			fmt.Fprintf(&b, `\u%04X`, r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
