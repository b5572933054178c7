package partition

import (
	"errors"
	"strings"

	"github.com/knaw-huc/pipeline-airflow/internal/rdf"
	grapherr "github.com/knaw-huc/pipeline-airflow/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Splitter cuts a graph into per-entity fragments
type Splitter struct {
	TypeIRI string
	Store   *FragmentStore
	Logger  *logrus.Logger
}

// NewSplitter creates a splitter selecting entities of typeIRI
func NewSplitter(typeIRI string, store *FragmentStore, logger *logrus.Logger) *Splitter {
	return &Splitter{
		TypeIRI: typeIRI,
		Store:   store,
		Logger:  logger,
	}
}

// EgoGraph collects the triples around entity: those with the entity as
// subject or object, plus the triples about every neighbor reached that way.
func EgoGraph(src *rdf.Graph, entity rdf.Term) *rdf.Graph {
	ego := rdf.NewGraph()
	visited := map[rdf.Term]bool{entity: true}

	expand := func(neighbor rdf.Term) {
		if neighbor.IsLiteral() || visited[neighbor] {
			return
		}
		visited[neighbor] = true
		ego.Add(src.BySubject(neighbor)...)
	}

	for _, t := range src.BySubject(entity) {
		ego.Add(t)
		expand(t.Object)
	}
	for _, t := range src.ByObject(entity) {
		ego.Add(t)
		expand(t.Subject)
	}
	return ego
}

// EntityKey returns the last path segment of the first subject typed typeIRI
func EntityKey(g *rdf.Graph, typeIRI string) (string, error) {
	subjects := g.SubjectsOfType(typeIRI)
	if len(subjects) == 0 {
		return "", grapherr.New(grapherr.CodeEntityNotFound, "no subject of the selected type",
			grapherr.Field("type", typeIRI))
	}

	key := lastSegment(subjects[0].Value)
	if key == "" {
		return "", grapherr.New(grapherr.CodeEntityNotFound, "subject has no local identifier",
			grapherr.Field("type", typeIRI), grapherr.Field("subject", subjects[0].Value))
	}
	return key, nil
}

func lastSegment(iri string) string {
	iri = strings.TrimRight(iri, "/#")
	if i := strings.LastIndexAny(iri, "/#:"); i >= 0 {
		return iri[i+1:]
	}
	return iri
}

// Partition writes one fragment per entity of the selected type
func (s *Splitter) Partition(src *rdf.Graph) (map[string]string, error) {
	paths := make(map[string]string)

	for _, entity := range src.SubjectsOfType(s.TypeIRI) {
		key := lastSegment(entity.Value)
		if key == "" {
			return paths, grapherr.New(grapherr.CodeEntityNotFound, "subject has no local identifier",
				grapherr.Field("subject", entity.Value))
		}

		path, err := s.Store.Write(key, EgoGraph(src, entity))
		if err != nil {
			return paths, err
		}
		paths[key] = path
	}

	s.Logger.Infof("Partitioned graph into %d fragments", len(paths))
	return paths, nil
}

// PartitionFragments stores small per-row Turtle documents under the key of
// their typed entity. Fragments sharing a key are merged. A fragment without
// a typed entity fails on its own; the others are still written.
func (s *Splitter) PartitionFragments(fragments []string) (map[string]string, error) {
	paths := make(map[string]string)
	var errs []error

	for i, fragment := range fragments {
		g, err := rdf.Parse(fragment)
		if err != nil {
			errs = append(errs, grapherr.With(err, grapherr.Field("fragment", i)))
			continue
		}

		key, err := EntityKey(g, s.TypeIRI)
		if err != nil {
			s.Logger.WithField("fragment", i).Errorf("Skipping fragment: %v", err)
			errs = append(errs, grapherr.With(err, grapherr.Field("fragment", i)))
			continue
		}

		path, err := s.Store.Write(key, g)
		if err != nil {
			return paths, err
		}
		paths[key] = path
	}

	s.Logger.Infof("Wrote %d fragments from %d inputs", len(paths), len(fragments))
	return paths, errors.Join(errs...)
}
