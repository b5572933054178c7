package linkeddata

import (
	"encoding/json"
	"strings"
)

// Context maps the short names used in a document onto IRIs. Names without
// a term fall back to the vocabulary IRI when the document is expanded.
type Context struct {
	Vocab string
	Terms map[string]string
}

// NewContext creates a context whose vocabulary is the base URI
func NewContext(baseURI string) *Context {
	return &Context{
		Vocab: baseURI,
		Terms: make(map[string]string),
	}
}

// AddTerm binds a name to an IRI, replacing any earlier binding
func (c *Context) AddTerm(name, iri string) {
	c.Terms[name] = iri
}

// MarshalJSON writes the context with the id and type aliases
func (c *Context) MarshalJSON() ([]byte, error) {
	out := make(map[string]string, len(c.Terms)+3)
	for name, iri := range c.Terms {
		out[name] = iri
	}
	out["@vocab"] = c.Vocab
	out["id"] = "@id"
	out["type"] = "@type"
	return json.Marshal(out)
}

// UnmarshalJSON reads a flat context object; keyword aliases are skipped
func (c *Context) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	c.Terms = make(map[string]string, len(raw))
	for name, value := range raw {
		switch v := value.(type) {
		case string:
			if name == "@vocab" {
				c.Vocab = v
				continue
			}
			if strings.HasPrefix(v, "@") {
				continue
			}
			c.Terms[name] = v
		case map[string]interface{}:
			if id, ok := v["@id"].(string); ok {
				c.Terms[name] = id
			}
		}
	}
	return nil
}

// IsAbsoluteIRI reports whether s has a scheme followed by a non empty remainder
func IsAbsoluteIRI(s string) bool {
	colon := strings.IndexByte(s, ':')
	if colon <= 0 || colon == len(s)-1 {
		return false
	}
	for i, r := range s[:colon] {
		switch {
		case 'a' <= r && r <= 'z', 'A' <= r && r <= 'Z':
		case i > 0 && ('0' <= r && r <= '9' || r == '+' || r == '-' || r == '.'):
		default:
			return false
		}
	}
	return !strings.ContainsAny(s, " \t\n<>\"")
}
