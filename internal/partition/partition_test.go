package partition

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/knaw-huc/pipeline-airflow/internal/rdf"
	grapherr "github.com/knaw-huc/pipeline-airflow/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const (
	place = "http://www.cidoc-crm.org/cidoc-crm/E53_Place"
	ex    = "https://example.org/"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func iri(local string) rdf.Term { return rdf.NewIRI(ex + local) }

func sourceGraph() *rdf.Graph {
	typ := rdf.NewIRI(rdf.RDFType)
	name := iri("name")
	partOf := iri("partOf")

	return rdf.NewGraph(
		rdf.NewTriple(iri("place/batavia"), typ, rdf.NewIRI(place)),
		rdf.NewTriple(iri("place/batavia"), name, rdf.NewLiteral("Batavia", "")),
		rdf.NewTriple(iri("place/batavia"), partOf, iri("region/java")),
		rdf.NewTriple(iri("region/java"), name, rdf.NewLiteral("Java", "")),
		rdf.NewTriple(iri("region/java"), partOf, iri("region/indonesia")),
		rdf.NewTriple(iri("region/indonesia"), name, rdf.NewLiteral("Indonesia", "")),
		rdf.NewTriple(iri("event/1"), iri("at"), iri("place/batavia")),
		rdf.NewTriple(iri("event/1"), name, rdf.NewLiteral("Landing", "")),

		rdf.NewTriple(iri("place/malacca"), typ, rdf.NewIRI(place)),
		rdf.NewTriple(iri("place/malacca"), name, rdf.NewLiteral("Malacca", "")),
		rdf.NewTriple(iri("place/malacca"), iri("near"), iri("place/batavia")),
	)
}

func TestEgoGraph(t *testing.T) {
	src := sourceGraph()
	ego := EgoGraph(src, iri("place/batavia"))

	// Neighbors bring their own triples, but not their neighbors'
	assert.True(t, ego.Has(rdf.NewTriple(iri("region/java"), iri("partOf"), iri("region/indonesia"))))
	assert.False(t, ego.Has(rdf.NewTriple(iri("region/indonesia"), iri("name"), rdf.NewLiteral("Indonesia", ""))))

	// Incoming edges and the triples of their subjects
	assert.True(t, ego.Has(rdf.NewTriple(iri("event/1"), iri("name"), rdf.NewLiteral("Landing", ""))))
	assert.True(t, ego.Has(rdf.NewTriple(iri("place/malacca"), iri("near"), iri("place/batavia"))))
	assert.True(t, ego.Has(rdf.NewTriple(iri("place/malacca"), iri("name"), rdf.NewLiteral("Malacca", ""))))

	assert.Equal(t, 10, ego.Len())
}

func TestEgoGraphOnCycle(t *testing.T) {
	p := iri("next")
	src := rdf.NewGraph(
		rdf.NewTriple(iri("a"), p, iri("b")),
		rdf.NewTriple(iri("b"), p, iri("a")),
	)

	ego := EgoGraph(src, iri("a"))
	assert.True(t, ego.Equal(src))
}

func TestEntityKey(t *testing.T) {
	key, err := EntityKey(sourceGraph(), place)
	require.NoError(t, err)
	assert.Equal(t, "batavia", key)

	_, err = EntityKey(rdf.NewGraph(rdf.NewTriple(iri("x"), iri("name"), rdf.NewLiteral("x", ""))), place)
	require.Error(t, err)
	assert.True(t, grapherr.IsNotFound(err))
}

func TestLastSegment(t *testing.T) {
	assert.Equal(t, "42", lastSegment("https://example.org/place/42"))
	assert.Equal(t, "42", lastSegment("https://example.org/place/42/"))
	assert.Equal(t, "E53_Place", lastSegment("http://www.cidoc-crm.org/cidoc-crm#E53_Place"))
	assert.Equal(t, "isbn", lastSegment("urn:isbn"))
}

func TestPartition(t *testing.T) {
	dir := t.TempDir()
	splitter := NewSplitter(place, NewFragmentStore(dir, "place-", quietLogger()), quietLogger())

	paths, err := splitter.Partition(sourceGraph())
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, filepath.Join(dir, "place-batavia.ttl"), paths["batavia"])

	batavia, err := rdf.ReadFile(paths["batavia"])
	require.NoError(t, err)
	assert.True(t, batavia.Equal(EgoGraph(sourceGraph(), iri("place/batavia"))))

	malacca, err := rdf.ReadFile(paths["malacca"])
	require.NoError(t, err)
	assert.True(t, malacca.Has(rdf.NewTriple(iri("place/batavia"), iri("name"), rdf.NewLiteral("Batavia", ""))))
}

func TestPartitionIsIdempotent(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()

	a, err := NewSplitter(place, NewFragmentStore(first, "", quietLogger()), quietLogger()).Partition(sourceGraph())
	require.NoError(t, err)
	b, err := NewSplitter(place, NewFragmentStore(second, "", quietLogger()), quietLogger()).Partition(sourceGraph())
	require.NoError(t, err)

	require.Len(t, b, len(a))
	for key, path := range a {
		want, err := os.ReadFile(path)
		require.NoError(t, err)
		got, err := os.ReadFile(b[key])
		require.NoError(t, err)
		assert.Equal(t, string(want), string(got), key)
	}

	// Running again into the same directory replaces the files
	again, err := NewSplitter(place, NewFragmentStore(first, "", quietLogger()), quietLogger()).Partition(sourceGraph())
	require.NoError(t, err)
	for key, path := range again {
		g, err := rdf.ReadFile(path)
		require.NoError(t, err)
		assert.True(t, g.Equal(EgoGraph(sourceGraph(), iri("place/"+key))))
	}
}

const fragmentA = `<https://example.org/place/7> a <http://www.cidoc-crm.org/cidoc-crm/E53_Place> ;
    <https://example.org/name> "Ambon" .
`

const fragmentB = `@prefix ex: <https://example.org/> .
<https://example.org/place/7> a <http://www.cidoc-crm.org/cidoc-crm/E53_Place> ;
    ex:label "Amboina"@nl .
`

const fragmentC = `<https://example.org/place/8> a <http://www.cidoc-crm.org/cidoc-crm/E53_Place> ;
    <https://example.org/name> "Banda" .
`

func TestPartitionFragmentsMergesSharedKeys(t *testing.T) {
	dir := t.TempDir()
	store := NewFragmentStore(dir, "", quietLogger())
	splitter := NewSplitter(place, store, quietLogger())

	paths, err := splitter.PartitionFragments([]string{fragmentA, fragmentC, fragmentA, fragmentB})
	require.NoError(t, err)
	require.Len(t, paths, 2)

	g, err := rdf.ReadFile(paths["7"])
	require.NoError(t, err)
	assert.True(t, g.Has(rdf.NewTriple(iri("place/7"), iri("name"), rdf.NewLiteral("Ambon", ""))))
	assert.True(t, g.Has(rdf.NewTriple(iri("place/7"), iri("label"), rdf.NewLangLiteral("Amboina", "nl"))))
	assert.Equal(t, 3, g.Len())

	assert.Equal(t, []string{"7", "8"}, store.Keys())
}

func TestPartitionFragmentsReportsUntypedFragment(t *testing.T) {
	dir := t.TempDir()
	splitter := NewSplitter(place, NewFragmentStore(dir, "", quietLogger()), quietLogger())

	untyped := `<https://example.org/place/9> <https://example.org/name> "Nowhere" .`
	paths, err := splitter.PartitionFragments([]string{untyped, fragmentC})
	require.Error(t, err)
	assert.Contains(t, paths, "8")
	assert.NotContains(t, paths, "9")
}

func TestWriteIndexAndMergeFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewFragmentStore(dir, "", quietLogger())
	paths, err := NewSplitter(place, store, quietLogger()).Partition(sourceGraph())
	require.NoError(t, err)

	indexPath, err := store.WriteIndex()
	require.NoError(t, err)
	data, err := os.ReadFile(indexPath)
	require.NoError(t, err)

	var index struct {
		Fragments []IndexEntry `yaml:"fragments"`
	}
	require.NoError(t, yaml.Unmarshal(data, &index))
	require.Len(t, index.Fragments, 2)
	assert.Equal(t, "batavia", index.Fragments[0].Key)
	assert.Equal(t, "batavia.ttl", index.Fragments[0].File)
	assert.Equal(t, 10, index.Fragments[0].Triples)

	merged, err := MergeFiles([]string{paths["batavia"], paths["malacca"]})
	require.NoError(t, err)
	assert.True(t, merged.Has(rdf.NewTriple(iri("place/malacca"), iri("name"), rdf.NewLiteral("Malacca", ""))))
	assert.True(t, merged.Has(rdf.NewTriple(iri("event/1"), iri("at"), iri("place/batavia"))))

	_, err = MergeFiles([]string{filepath.Join(dir, "missing.ttl")})
	assert.True(t, grapherr.IsNotFound(err))
}
