package partition

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/knaw-huc/pipeline-airflow/internal/rdf"
	grapherr "github.com/knaw-huc/pipeline-airflow/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// IndexFile is the name of the fragment index written next to the fragments
const IndexFile = "index.yaml"

// FragmentStore writes one Turtle file per entity key. The first write of a
// key in a run replaces the file; later writes merge into it. Runs that
// share a directory must not overlap.
type FragmentStore struct {
	Dir    string
	Prefix string
	Logger *logrus.Logger

	written map[string]int
}

// IndexEntry describes one fragment file
type IndexEntry struct {
	Key     string `yaml:"key"`
	File    string `yaml:"file"`
	Triples int    `yaml:"triples"`
}

// NewFragmentStore creates a store writing below dir
func NewFragmentStore(dir, prefix string, logger *logrus.Logger) *FragmentStore {
	return &FragmentStore{
		Dir:     dir,
		Prefix:  prefix,
		Logger:  logger,
		written: make(map[string]int),
	}
}

// Path returns the file a key is written to
func (s *FragmentStore) Path(key string) string {
	return filepath.Join(s.Dir, s.Prefix+fileName(key)+".ttl")
}

// Write stores the graph under key and returns the file path
func (s *FragmentStore) Write(key string, g *rdf.Graph) (string, error) {
	path := s.Path(key)

	merged := rdf.NewGraph()
	merged.Merge(g)
	if _, seen := s.written[key]; seen {
		existing, err := rdf.ReadFile(path)
		if err != nil {
			return "", grapherr.With(err, grapherr.Field("key", key))
		}
		merged.Merge(existing)
		s.Logger.Debugf("Merging fragment %s into %s", key, path)
	}

	text, err := rdf.ToTurtle(merged)
	if err != nil {
		return "", grapherr.With(err, grapherr.Field("key", key))
	}
	if err := rdf.Validate(text); err != nil {
		return "", grapherr.With(err, grapherr.Field("key", key))
	}
	if err := rdf.WriteFile(path, []byte(text)); err != nil {
		return "", err
	}

	s.written[key] = merged.Len()
	return path, nil
}

// Keys returns the keys written in this run
func (s *FragmentStore) Keys() []string {
	keys := make([]string, 0, len(s.written))
	for key := range s.written {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Index lists the fragments written in this run
func (s *FragmentStore) Index() []IndexEntry {
	entries := make([]IndexEntry, 0, len(s.written))
	for _, key := range s.Keys() {
		entries = append(entries, IndexEntry{
			Key:     key,
			File:    filepath.Base(s.Path(key)),
			Triples: s.written[key],
		})
	}
	return entries
}

// WriteIndex writes the index of this run's fragments as YAML
func (s *FragmentStore) WriteIndex() (string, error) {
	data, err := yaml.Marshal(struct {
		Fragments []IndexEntry `yaml:"fragments"`
	}{Fragments: s.Index()})
	if err != nil {
		return "", grapherr.Wrap(err, grapherr.CodeSerializationWrite, "encoding fragment index")
	}

	path := filepath.Join(s.Dir, IndexFile)
	if err := rdf.WriteFile(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// MergeFiles parses every Turtle file into one graph
func MergeFiles(paths []string) (*rdf.Graph, error) {
	merged := rdf.NewGraph()
	for _, path := range paths {
		g, err := rdf.ReadFile(path)
		if err != nil {
			return nil, err
		}
		merged.Merge(g)
	}
	return merged, nil
}

func fileName(key string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, key)
}
