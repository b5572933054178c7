package analyzer

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/knaw-huc/pipeline-airflow/internal/config"
	grapherr "github.com/knaw-huc/pipeline-airflow/pkg/errors"
	"github.com/knaw-huc/pipeline-airflow/pkg/models"
	"github.com/sirupsen/logrus"
)

// MockSource serves table metadata from memory and counts probes
type MockSource struct {
	ForeignKeys map[string]map[string]string
	Extra       []string
	FailOn      string
	Probes      map[string]int
}

func (m *MockSource) Catalog(ctx context.Context) (map[string]string, error) {
	tables := make(map[string]string)
	for table := range m.ForeignKeys {
		tables[table] = "https://example.org/api/" + table + "/"
	}
	for _, table := range m.Extra {
		tables[table] = "https://example.org/api/" + table + "/"
	}
	return tables, nil
}

func (m *MockSource) Probe(ctx context.Context, table string) (*models.Page, error) {
	if m.Probes == nil {
		m.Probes = make(map[string]int)
	}
	m.Probes[table]++
	if table == m.FailOn {
		return nil, grapherr.New(grapherr.CodeFetchResponseStatus, "bad gateway", grapherr.FieldTable(table))
	}
	page := &models.Page{}
	page.Metadata.Fields = []string{"id"}
	page.Metadata.ForeignKeys = make(map[string]string)
	for field, target := range m.ForeignKeys[table] {
		page.Metadata.Fields = append(page.Metadata.Fields, field)
		page.Metadata.ForeignKeys[field] = target
	}
	return page, nil
}

func (m *MockSource) TableRows(ctx context.Context, table string) ([]models.Record, error) {
	return nil, nil
}

func newTestExplorer(t *testing.T, source *MockSource, ctxConfig config.ContextConfig) *SchemaExplorer {
	t.Helper()

	logger := createTestLogger()
	settings := config.NewSettings(ctxConfig)

	tables, err := LoadCatalog(context.Background(), source, settings, logger)
	if err != nil {
		t.Fatalf("LoadCatalog failed: %v", err)
	}
	return NewSchemaExplorer(NewMetadataCache(source, logger), tables, settings, logger)
}

func TestExploreLocationAndCountryCode(t *testing.T) {
	source := &MockSource{ForeignKeys: map[string]map[string]string{
		"location":    {"ccode": "countrycode"},
		"countrycode": {},
	}}
	explorer := newTestExplorer(t, source, config.ContextConfig{})

	relations, err := explorer.Explore(context.Background(), "location", 1)
	if err != nil {
		t.Fatalf("Explore failed: %v", err)
	}

	if len(relations) != 2 {
		t.Fatalf("Expected 2 tables, got %v", relations.Tables())
	}
	if !reflect.DeepEqual(relations["location"].Outgoing, []string{"countrycode"}) {
		t.Errorf("Expected location outgoing [countrycode], got %v", relations["location"].Outgoing)
	}
	if len(relations["location"].Incoming) != 0 {
		t.Errorf("Expected no incoming tables for location, got %v", relations["location"].Incoming)
	}
	if !reflect.DeepEqual(relations["countrycode"].Incoming, []string{"location"}) {
		t.Errorf("Expected countrycode incoming [location], got %v", relations["countrycode"].Incoming)
	}
	if !relations["location"].IsForeignKey("ccode") {
		t.Error("Expected ccode to be a foreign key of location")
	}
}

func TestExploreDistanceZero(t *testing.T) {
	source := &MockSource{ForeignKeys: map[string]map[string]string{
		"location":    {"ccode": "countrycode"},
		"countrycode": {},
	}}
	explorer := newTestExplorer(t, source, config.ContextConfig{})

	relations, err := explorer.Explore(context.Background(), "location", 0)
	if err != nil {
		t.Fatalf("Explore failed: %v", err)
	}

	if !reflect.DeepEqual(relations.Tables(), []string{"location"}) {
		t.Errorf("Expected only the root table, got %v", relations.Tables())
	}
	// Neighbor sets are still populated for the root
	if !reflect.DeepEqual(relations["location"].Outgoing, []string{"countrycode"}) {
		t.Errorf("Expected outgoing [countrycode], got %v", relations["location"].Outgoing)
	}
}

func TestExploreNegativeDistance(t *testing.T) {
	source := &MockSource{ForeignKeys: map[string]map[string]string{"location": {}}}
	explorer := newTestExplorer(t, source, config.ContextConfig{})

	relations, err := explorer.Explore(context.Background(), "location", -1)
	if err != nil {
		t.Fatalf("Explore failed: %v", err)
	}
	if len(relations) != 0 {
		t.Errorf("Expected no tables, got %v", relations.Tables())
	}
}

func TestExploreDistances(t *testing.T) {
	// a -> b -> c -> d, and e -> a
	source := &MockSource{ForeignKeys: map[string]map[string]string{
		"a": {"b_id": "b"},
		"b": {"c_id": "c"},
		"c": {"d_id": "d"},
		"d": {},
		"e": {"a_id": "a"},
	}}
	explorer := newTestExplorer(t, source, config.ContextConfig{})

	tests := []struct {
		distance int
		expected []string
	}{
		{0, []string{"a"}},
		{1, []string{"a", "b", "e"}},
		{2, []string{"a", "b", "c", "e"}},
		{3, []string{"a", "b", "c", "d", "e"}},
		{10, []string{"a", "b", "c", "d", "e"}},
	}

	for _, tt := range tests {
		relations, err := explorer.Explore(context.Background(), "a", tt.distance)
		if err != nil {
			t.Fatalf("Explore(a, %d) failed: %v", tt.distance, err)
		}
		if !reflect.DeepEqual(relations.Tables(), tt.expected) {
			t.Errorf("Explore(a, %d): expected %v, got %v", tt.distance, tt.expected, relations.Tables())
		}
	}

	distances := explorer.Distances()
	if distances["a"] != 0 || distances["e"] != 1 || distances["d"] != 3 {
		t.Errorf("Unexpected distances: %v", distances)
	}
}

func TestExploreCycleTerminates(t *testing.T) {
	source := &MockSource{ForeignKeys: map[string]map[string]string{
		"person":  {"place_id": "place"},
		"place":   {"parent_id": "place", "owner_id": "person"},
		"context": {"person_id": "person"},
	}}
	explorer := newTestExplorer(t, source, config.ContextConfig{})

	relations, err := explorer.Explore(context.Background(), "person", 50)
	if err != nil {
		t.Fatalf("Explore failed: %v", err)
	}
	if len(relations) != 3 {
		t.Errorf("Expected 3 tables, got %v", relations.Tables())
	}
	if !reflect.DeepEqual(relations["place"].Incoming, []string{"person", "place"}) {
		t.Errorf("Expected self reference in place incoming, got %v", relations["place"].Incoming)
	}
}

func TestExploreSkipsStopTablesAndResolvesAliases(t *testing.T) {
	source := &MockSource{ForeignKeys: map[string]map[string]string{
		"location":    {"ccode": "country", "user_id": "auth_user"},
		"auth_user":   {},
		"countrycode": {},
	}}
	explorer := newTestExplorer(t, source, config.ContextConfig{
		StopTables: []string{"auth_user"},
		TableMap:   map[string]string{"country": "countrycode"},
	})

	relations, err := explorer.Explore(context.Background(), "location", 2)
	if err != nil {
		t.Fatalf("Explore failed: %v", err)
	}

	if !reflect.DeepEqual(relations.Tables(), []string{"countrycode", "location"}) {
		t.Errorf("Expected stop table to be skipped, got %v", relations.Tables())
	}
	if relations["location"].ForeignKeys["ccode"] != "countrycode" {
		t.Errorf("Expected aliased foreign key target, got %v", relations["location"].ForeignKeys)
	}
	if source.Probes["auth_user"] != 0 {
		t.Errorf("Expected stop table never to be probed, got %d probes", source.Probes["auth_user"])
	}
}

func TestExploreFetchesEachTableOnce(t *testing.T) {
	source := &MockSource{ForeignKeys: map[string]map[string]string{
		"a": {"b_id": "b", "c_id": "c"},
		"b": {"c_id": "c"},
		"c": {"a_id": "a"},
	}}
	explorer := newTestExplorer(t, source, config.ContextConfig{})

	for _, distance := range []int{0, 1, 2, 5} {
		if _, err := explorer.Explore(context.Background(), "a", distance); err != nil {
			t.Fatalf("Explore failed: %v", err)
		}
	}

	if got := explorer.Cache.Fetches(); got != 3 {
		t.Errorf("Expected 3 fetches, got %d", got)
	}
	for table, count := range source.Probes {
		if count != 1 {
			t.Errorf("Expected table %s to be probed once, got %d", table, count)
		}
	}
}

func TestExploreAbortsOnFetchFailure(t *testing.T) {
	source := &MockSource{
		ForeignKeys: map[string]map[string]string{
			"location":    {"ccode": "countrycode"},
			"countrycode": {},
		},
		FailOn: "countrycode",
	}
	explorer := newTestExplorer(t, source, config.ContextConfig{})

	_, err := explorer.Explore(context.Background(), "location", 1)
	if err == nil {
		t.Fatal("Expected an error, got nil")
	}
	if !grapherr.IsFetch(err) {
		t.Errorf("Expected a fetch error, got %v", err)
	}

	// Failures are not cached
	source.FailOn = ""
	if _, err := explorer.Explore(context.Background(), "location", 1); err != nil {
		t.Errorf("Expected retry to succeed, got %v", err)
	}
	if source.Probes["countrycode"] != 2 {
		t.Errorf("Expected countrycode to be probed again, got %d", source.Probes["countrycode"])
	}
}

func TestExploreUnknownRoot(t *testing.T) {
	source := &MockSource{ForeignKeys: map[string]map[string]string{"location": {}}}
	explorer := newTestExplorer(t, source, config.ContextConfig{})

	_, err := explorer.Explore(context.Background(), "nowhere", 1)
	if !grapherr.IsNotFound(err) {
		t.Errorf("Expected a not found error, got %v", err)
	}
}

func TestShortestPath(t *testing.T) {
	source := &MockSource{ForeignKeys: map[string]map[string]string{
		"a": {"b_id": "b"},
		"b": {"c_id": "c"},
		"c": {},
		"d": {},
	}}
	explorer := newTestExplorer(t, source, config.ContextConfig{})

	path, err := explorer.ShortestPath(context.Background(), "c", "a")
	if err != nil {
		t.Fatalf("ShortestPath failed: %v", err)
	}
	if !reflect.DeepEqual(path, []string{"c", "b", "a"}) {
		t.Errorf("Expected [c b a], got %v", path)
	}

	// Walking edges backwards must not add them to the dependency graph
	c, b := explorer.TableIndexMap["c"], explorer.TableIndexMap["b"]
	if explorer.DependencyGraph.Edge(c, b) {
		t.Error("Expected no c -> b edge in the dependency graph")
	}
	if !explorer.ReverseGraph.Edge(c, b) {
		t.Error("Expected a c -> b edge in the reverse graph")
	}

	path, err = explorer.ShortestPath(context.Background(), "a", "d")
	if err != nil {
		t.Fatalf("ShortestPath failed: %v", err)
	}
	if path != nil {
		t.Errorf("Expected no path to an isolated table, got %v", path)
	}
}

func TestLoadCatalogPropagatesErrors(t *testing.T) {
	logger := createTestLogger()
	settings := config.NewSettings(config.ContextConfig{})

	_, err := LoadCatalog(context.Background(), failingCatalog{&MockSource{}}, settings, logger)
	if err == nil {
		t.Error("Expected catalog error, got nil")
	}
}

type failingCatalog struct {
	*MockSource
}

func (failingCatalog) Catalog(ctx context.Context) (map[string]string, error) {
	return nil, errors.New("catalog unavailable")
}

// Helper function to create a test logger
func createTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel) // Suppress log output during tests
	return logger
}
