package rdf

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	knakk "github.com/knakk/rdf"
	grapherr "github.com/knaw-huc/pipeline-airflow/pkg/errors"
)

var (
	generatedPrefixLine = regexp.MustCompile(`^@prefix\s+(ns[0-9]+):\s*<([^>]*)>\s*\.\s*$`)
	generatedPrefixUse  = regexp.MustCompile(`^(ns[0-9]+):`)
)

// ToTurtle serializes a graph as Turtle without prefix declarations: every
// IRI is written in full
func ToTurtle(g *Graph) (string, error) {
	var buf bytes.Buffer
	if err := encode(&buf, g, knakk.Turtle); err != nil {
		return "", err
	}
	return Normalize(buf.String()), nil
}

// ToNTriples serializes a graph as sorted N-Triples
func ToNTriples(g *Graph) (string, error) {
	var buf bytes.Buffer
	if err := encode(&buf, g, knakk.NTriples); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Validate checks that text parses as Turtle
func Validate(text string) error {
	if _, err := Parse(text); err != nil {
		return grapherr.Wrap(err, grapherr.CodeValidationTriples, "generated turtle does not parse")
	}
	return nil
}

// Normalize expands every use of a generated nsN prefix into a full IRI and
// drops the generated prefix declarations. IRIs, literals and comments are
// copied untouched.
func Normalize(text string) string {
	namespaces := make(map[string]string)
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		if m := generatedPrefixLine.FindStringSubmatch(line); m != nil {
			namespaces[m[1]] = m[2]
			continue
		}
		kept = append(kept, line)
	}
	if len(namespaces) == 0 {
		return text
	}
	body := strings.Join(kept, "\n")

	var out strings.Builder
	out.Grow(len(body))

	for i := 0; i < len(body); {
		c := body[i]
		switch {
		case c == '<':
			end := strings.IndexByte(body[i:], '>')
			if end < 0 {
				out.WriteString(body[i:])
				return out.String()
			}
			out.WriteString(body[i : i+end+1])
			i += end + 1
		case c == '"' || c == '\'':
			end := literalEnd(body, i)
			out.WriteString(body[i:end])
			i = end
		case c == '#':
			end := strings.IndexByte(body[i:], '\n')
			if end < 0 {
				out.WriteString(body[i:])
				return out.String()
			}
			out.WriteString(body[i : i+end])
			i += end
		case c == 'n' && (i == 0 || !isNameChar(body[i-1]) && body[i-1] != ':'):
			if iri, n, ok := expandPrefixedName(body[i:], namespaces); ok {
				out.WriteString("<" + iri + ">")
				i += n
				continue
			}
			out.WriteByte(c)
			i++
		default:
			out.WriteByte(c)
			i++
		}
	}

	return out.String()
}

// literalEnd returns the index just past the string literal starting at i
func literalEnd(text string, i int) int {
	quote := text[i]
	delim := string(quote)
	if strings.HasPrefix(text[i:], strings.Repeat(delim, 3)) {
		delim = strings.Repeat(delim, 3)
	}

	j := i + len(delim)
	for j < len(text) {
		switch {
		case text[j] == '\\':
			j += 2
		case strings.HasPrefix(text[j:], delim):
			j += len(delim)
			for len(delim) == 3 && j < len(text) && text[j] == quote {
				j++
			}
			return j
		default:
			j++
		}
	}
	return len(text)
}

// expandPrefixedName expands nsN:local at the start of text
func expandPrefixedName(text string, namespaces map[string]string) (string, int, bool) {
	m := generatedPrefixUse.FindStringSubmatch(text)
	if m == nil {
		return "", 0, false
	}
	colon := len(m[1])
	ns, ok := namespaces[m[1]]
	if !ok {
		return "", 0, false
	}

	end := colon + 1
	for end < len(text) && (isNameChar(text[end]) || text[end] == '.') {
		end++
	}
	for end > colon+1 && text[end-1] == '.' {
		end--
	}
	return ns + text[colon+1:end], end, true
}

// WriteFile writes data to path through a temporary file in the same directory
func WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return grapherr.Wrap(err, grapherr.CodeSerializationWrite, "creating output directory", grapherr.Field("path", dir))
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return grapherr.Wrap(err, grapherr.CodeSerializationWrite, "creating temporary file", grapherr.Field("path", path))
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return grapherr.Wrap(err, grapherr.CodeSerializationWrite, "writing temporary file", grapherr.Field("path", path))
	}
	if err := tmp.Close(); err != nil {
		return grapherr.Wrap(err, grapherr.CodeSerializationWrite, "closing temporary file", grapherr.Field("path", path))
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return grapherr.Wrap(err, grapherr.CodeSerializationWrite, "renaming temporary file", grapherr.Field("path", path))
	}
	return nil
}

// ReadFile parses a Turtle file
func ReadFile(path string) (*Graph, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, grapherr.Wrap(err, grapherr.CodeFileNotFound, "reading turtle file", grapherr.Field("path", path))
	}
	defer file.Close()

	g, err := ParseReader(file)
	if err != nil {
		return nil, grapherr.With(err, grapherr.Field("path", path))
	}
	return g, nil
}

func isNameChar(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	case c == '_', c == '-', c >= 0x80:
		return true
	}
	return false
}
