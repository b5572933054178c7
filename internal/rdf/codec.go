package rdf

import (
	"io"
	"strings"
	"unicode/utf8"

	knakk "github.com/knakk/rdf"
	grapherr "github.com/knaw-huc/pipeline-airflow/pkg/errors"
)

// Parse decodes a Turtle (or N-Triples) document into a graph
func Parse(text string) (*Graph, error) {
	return ParseReader(strings.NewReader(text))
}

// ParseReader decodes a Turtle document read from r
func ParseReader(r io.Reader) (*Graph, error) {
	dec := knakk.NewTripleDecoder(r, knakk.Turtle)
	g := NewGraph()
	for {
		lt, err := dec.Decode()
		if err == io.EOF {
			return g, nil
		}
		if err != nil {
			return nil, grapherr.Wrap(err, grapherr.CodeValidationTriples, "decoding turtle")
		}
		t, err := fromLibrary(lt)
		if err != nil {
			return nil, err
		}
		g.Add(t)
	}
}

// encode writes the sorted triples of g. Turtle output uses generated nsN
// prefixes, which Normalize expands again.
func encode(w io.Writer, g *Graph, format knakk.Format) error {
	enc := knakk.NewTripleEncoder(w, format)
	if format == knakk.Turtle {
		enc.GenerateNamespaces = true
	}
	for _, t := range g.Triples() {
		lt, err := toLibrary(t)
		if err != nil {
			return err
		}
		if err := enc.Encode(lt); err != nil {
			return grapherr.Wrap(err, grapherr.CodeSerializationWrite, "encoding triple", grapherr.Field("triple", t.String()))
		}
	}
	if err := enc.Close(); err != nil {
		return grapherr.Wrap(err, grapherr.CodeSerializationWrite, "flushing encoder")
	}
	return nil
}

func fromLibrary(t knakk.Triple) (Triple, error) {
	s, err := fromLibraryTerm(t.Subj)
	if err != nil {
		return Triple{}, err
	}
	p, err := fromLibraryTerm(t.Pred)
	if err != nil {
		return Triple{}, err
	}
	o, err := fromLibraryTerm(t.Obj)
	if err != nil {
		return Triple{}, err
	}
	return NewTriple(s, p, o), nil
}

func fromLibraryTerm(term knakk.Term) (Term, error) {
	switch v := term.(type) {
	case knakk.IRI:
		return NewIRI(v.String()), nil
	case knakk.Blank:
		return NewBlank(strings.TrimPrefix(v.String(), "_:")), nil
	case knakk.Literal:
		if v.Lang() != "" {
			return NewLangLiteral(v.String(), v.Lang()), nil
		}
		return NewLiteral(v.String(), v.DataType.String()), nil
	default:
		return Term{}, grapherr.Errorf(grapherr.CodeSerializationTerm, "unsupported term %T", term)
	}
}

func toLibrary(t Triple) (knakk.Triple, error) {
	s, err := toLibraryTerm(t.Subject)
	if err != nil {
		return knakk.Triple{}, err
	}
	p, err := toLibraryTerm(t.Predicate)
	if err != nil {
		return knakk.Triple{}, err
	}
	o, err := toLibraryTerm(t.Object)
	if err != nil {
		return knakk.Triple{}, err
	}

	subj, ok := s.(knakk.Subject)
	if !ok || t.Subject.IsLiteral() {
		return knakk.Triple{}, grapherr.New(grapherr.CodeSerializationTerm, "literal in subject position", grapherr.Field("term", t.Subject.String()))
	}
	pred, ok := p.(knakk.Predicate)
	if !ok || !t.Predicate.IsIRI() {
		return knakk.Triple{}, grapherr.New(grapherr.CodeSerializationTerm, "predicate is not an IRI", grapherr.Field("term", t.Predicate.String()))
	}
	obj, ok := o.(knakk.Object)
	if !ok {
		return knakk.Triple{}, grapherr.New(grapherr.CodeSerializationTerm, "unsupported object", grapherr.Field("term", t.Object.String()))
	}
	return knakk.Triple{Subj: subj, Pred: pred, Obj: obj}, nil
}

// toLibraryTerm rejects text that is not valid UTF-8; encoding it would
// silently replace the bad bytes
func toLibraryTerm(t Term) (knakk.Term, error) {
	if !utf8.ValidString(t.Value) {
		return nil, grapherr.New(grapherr.CodeSerializationTerm, "term is not valid UTF-8", grapherr.Field("term", t.String()))
	}

	switch t.Kind {
	case IRIKind:
		iri, err := knakk.NewIRI(t.Value)
		if err != nil {
			return nil, grapherr.Wrap(err, grapherr.CodeSerializationTerm, "invalid IRI", grapherr.Field("term", t.Value))
		}
		return iri, nil
	case BlankKind:
		blank, err := knakk.NewBlank(t.Value)
		if err != nil {
			return nil, grapherr.Wrap(err, grapherr.CodeSerializationTerm, "invalid blank node", grapherr.Field("term", t.Value))
		}
		return blank, nil
	case LiteralKind:
		if t.Lang != "" {
			lit, err := knakk.NewLangLiteral(t.Value, t.Lang)
			if err != nil {
				return nil, grapherr.Wrap(err, grapherr.CodeSerializationTerm, "invalid language tag", grapherr.Field("lang", t.Lang))
			}
			return lit, nil
		}
		datatype := t.Datatype
		if datatype == "" {
			datatype = XSDString
		}
		dt, err := knakk.NewIRI(datatype)
		if err != nil {
			return nil, grapherr.Wrap(err, grapherr.CodeSerializationTerm, "invalid datatype", grapherr.Field("datatype", datatype))
		}
		return knakk.NewTypedLiteral(t.Value, dt), nil
	default:
		return nil, grapherr.Errorf(grapherr.CodeSerializationTerm, "unknown term kind %d", t.Kind)
	}
}
