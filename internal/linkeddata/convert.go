package linkeddata

import (
	"bytes"
	"encoding/json"
	"sort"
	"unicode/utf8"

	"github.com/knaw-huc/pipeline-airflow/internal/rdf"
	grapherr "github.com/knaw-huc/pipeline-airflow/pkg/errors"
	"github.com/piprate/json-gold/ld"
)

const nquadsFormat = "application/n-quads"

// Triples expands the document into an RDF graph with the JSON-LD
// processor. Types and property names are expanded through the context;
// references become IRI objects and null values are dropped.
func (d *Document) Triples() (*rdf.Graph, error) {
	if err := d.checkText(); err != nil {
		return nil, err
	}

	input, err := d.generic()
	if err != nil {
		return nil, err
	}

	opts := ld.NewJsonLdOptions("")
	opts.Format = nquadsFormat
	out, err := ld.NewJsonLdProcessor().ToRDF(input, opts)
	if err != nil {
		return nil, grapherr.Wrap(err, grapherr.CodeSerializationTerm, "expanding JSON-LD")
	}
	nquads, ok := out.(string)
	if !ok {
		return nil, grapherr.Errorf(grapherr.CodeSerializationTerm, "unexpected JSON-LD output %T", out)
	}

	g, err := rdf.Parse(nquads)
	if err != nil {
		return nil, grapherr.Wrap(err, grapherr.CodeSerializationTerm, "decoding expanded JSON-LD")
	}
	return g, nil
}

// generic re-decodes the document into plain maps and slices
func (d *Document) generic() (interface{}, error) {
	var buf bytes.Buffer
	if err := d.WriteJSON(&buf); err != nil {
		return nil, grapherr.Wrap(err, grapherr.CodeSerializationTerm, "encoding JSON-LD")
	}
	var input interface{}
	if err := json.Unmarshal(buf.Bytes(), &input); err != nil {
		return nil, grapherr.Wrap(err, grapherr.CodeSerializationTerm, "decoding JSON-LD")
	}
	return input, nil
}

// checkText rejects strings that JSON encoding would silently repair
func (d *Document) checkText() error {
	for _, node := range d.nodes {
		predicates := make([]string, 0, len(node.Properties))
		for predicate := range node.Properties {
			predicates = append(predicates, predicate)
		}
		sort.Strings(predicates)

		for _, predicate := range predicates {
			if !ValidText(node.Properties[predicate]) {
				return grapherr.New(grapherr.CodeSerializationTerm, "value is not valid UTF-8",
					grapherr.FieldRecord(node.ID), grapherr.Field("predicate", predicate))
			}
		}
	}
	return nil
}

// ValidText reports whether every string inside value is valid UTF-8
func ValidText(value interface{}) bool {
	switch v := value.(type) {
	case string:
		return utf8.ValidString(v)
	case []byte:
		return utf8.Valid(v)
	case []interface{}:
		for _, item := range v {
			if !ValidText(item) {
				return false
			}
		}
	case map[string]interface{}:
		for key, item := range v {
			if !utf8.ValidString(key) || !ValidText(item) {
				return false
			}
		}
	}
	return true
}

// Compact turns a graph into a compacted JSON-LD document: names are
// compacted through the context and repeated predicates collected in arrays
func Compact(g *rdf.Graph, ctx *Context) (map[string]interface{}, error) {
	nquads, err := rdf.ToNTriples(g)
	if err != nil {
		return nil, err
	}

	proc := ld.NewJsonLdProcessor()
	opts := ld.NewJsonLdOptions("")
	opts.Format = nquadsFormat
	expanded, err := proc.FromRDF(nquads, opts)
	if err != nil {
		return nil, grapherr.Wrap(err, grapherr.CodeSerializationTerm, "reading triples as JSON-LD")
	}

	encoded, err := json.Marshal(ctx)
	if err != nil {
		return nil, grapherr.Wrap(err, grapherr.CodeSerializationTerm, "encoding context")
	}
	var contextMap map[string]interface{}
	if err := json.Unmarshal(encoded, &contextMap); err != nil {
		return nil, grapherr.Wrap(err, grapherr.CodeSerializationTerm, "decoding context")
	}

	compacted, err := proc.Compact(expanded, map[string]interface{}{"@context": contextMap}, ld.NewJsonLdOptions(""))
	if err != nil {
		return nil, grapherr.Wrap(err, grapherr.CodeSerializationTerm, "compacting JSON-LD")
	}
	return compacted, nil
}
