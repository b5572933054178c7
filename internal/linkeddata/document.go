package linkeddata

import (
	"encoding/json"
	"fmt"
	"io"

	grapherr "github.com/knaw-huc/pipeline-airflow/pkg/errors"
)

// Reference points at another node by IRI
type Reference struct {
	ID string
}

// MarshalJSON writes the reference as a node object
func (r Reference) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{"@id": r.ID})
}

// Node is one entity of a document
type Node struct {
	ID         string
	Types      []string
	Properties map[string]interface{}
}

// NewNode creates a node with a single type
func NewNode(id, nodeType string) *Node {
	node := &Node{ID: id, Properties: make(map[string]interface{})}
	if nodeType != "" {
		node.Types = []string{nodeType}
	}
	return node
}

// Set assigns a property value, replacing the previous one
func (n *Node) Set(predicate string, value interface{}) {
	n.Properties[predicate] = value
}

// Get returns a property value
func (n *Node) Get(predicate string) (interface{}, bool) {
	value, ok := n.Properties[predicate]
	return value, ok
}

// AddType adds a type once
func (n *Node) AddType(nodeType string) {
	for _, t := range n.Types {
		if t == nodeType {
			return
		}
	}
	n.Types = append(n.Types, nodeType)
}

// MarshalJSON writes the node as a JSON-LD node object
func (n *Node) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(n.Properties)+2)
	for predicate, value := range n.Properties {
		out[predicate] = value
	}
	out["@id"] = n.ID
	switch len(n.Types) {
	case 0:
	case 1:
		out["@type"] = n.Types[0]
	default:
		out["@type"] = n.Types
	}
	return json.Marshal(out)
}

// Document is a set of nodes indexed by IRI, sharing one context.
// Nodes keep the order in which they were first added.
type Document struct {
	Context *Context
	nodes   []*Node
	index   map[string]*Node
}

// NewDocument creates an empty document
func NewDocument(ctx *Context) *Document {
	return &Document{
		Context: ctx,
		index:   make(map[string]*Node),
	}
}

// Node looks up a node by IRI
func (d *Document) Node(iri string) (*Node, bool) {
	node, ok := d.index[iri]
	return node, ok
}

// Has reports whether a node with the IRI exists
func (d *Document) Has(iri string) bool {
	_, ok := d.index[iri]
	return ok
}

// Upsert adds a node, or merges it into the node with the same IRI.
// On merge each incoming property overwrites the existing one and types
// are unioned. It reports whether a merge happened.
func (d *Document) Upsert(node *Node) bool {
	existing, ok := d.index[node.ID]
	if !ok {
		d.index[node.ID] = node
		d.nodes = append(d.nodes, node)
		return false
	}

	for _, t := range node.Types {
		existing.AddType(t)
	}
	for predicate, value := range node.Properties {
		existing.Properties[predicate] = value
	}
	return true
}

// Nodes returns the nodes in insertion order
func (d *Document) Nodes() []*Node {
	return d.nodes
}

// Len returns the number of nodes
func (d *Document) Len() int {
	return len(d.nodes)
}

type documentJSON struct {
	Context *Context `json:"@context"`
	Graph   []*Node  `json:"@graph"`
}

// MarshalJSON writes the document with its context and node list
func (d *Document) MarshalJSON() ([]byte, error) {
	graph := d.nodes
	if graph == nil {
		graph = []*Node{}
	}
	return json.Marshal(documentJSON{Context: d.Context, Graph: graph})
}

// WriteJSON writes the document as indented JSON
func (d *Document) WriteJSON(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	return encoder.Encode(d)
}

// ReadJSON decodes a document written by WriteJSON
func ReadJSON(r io.Reader) (*Document, error) {
	var raw struct {
		Context *Context                 `json:"@context"`
		Graph   []map[string]interface{} `json:"@graph"`
	}
	decoder := json.NewDecoder(r)
	decoder.UseNumber()
	if err := decoder.Decode(&raw); err != nil {
		return nil, grapherr.Wrap(err, grapherr.CodeValidationRecord, "decoding JSON-LD document")
	}
	if raw.Context == nil {
		raw.Context = NewContext("")
	}

	doc := NewDocument(raw.Context)
	for i, object := range raw.Graph {
		node, err := nodeFromJSON(object)
		if err != nil {
			return nil, grapherr.Wrapf(err, grapherr.CodeValidationRecord, "node %d", i)
		}
		doc.Upsert(node)
	}
	return doc, nil
}

func nodeFromJSON(object map[string]interface{}) (*Node, error) {
	node := NewNode("", "")
	for key, value := range object {
		switch key {
		case "@id", "id":
			id, ok := value.(string)
			if !ok {
				return nil, fmt.Errorf("node id must be a string, got %T", value)
			}
			node.ID = id
		case "@type", "type":
			switch v := value.(type) {
			case string:
				node.AddType(v)
			case []interface{}:
				for _, t := range v {
					if s, ok := t.(string); ok {
						node.AddType(s)
					}
				}
			}
		default:
			node.Set(key, valueFromJSON(value))
		}
	}
	if node.ID == "" {
		return nil, fmt.Errorf("node without id")
	}
	return node, nil
}

// valueFromJSON turns bare node objects back into references
func valueFromJSON(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		if len(v) == 1 {
			for _, key := range []string{"@id", "id"} {
				if id, ok := v[key].(string); ok {
					return Reference{ID: id}
				}
			}
		}
		return v
	case []interface{}:
		values := make([]interface{}, len(v))
		for i, item := range v {
			values[i] = valueFromJSON(item)
		}
		return values
	default:
		return v
	}
}
