package linkeddata

import (
	"bytes"
	"encoding/json"
	"strconv"
	"testing"

	"github.com/knaw-huc/pipeline-airflow/internal/rdf"
	grapherr "github.com/knaw-huc/pipeline-airflow/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const base = "https://example.org/"

func sampleDocument() *Document {
	ctx := NewContext(base)
	ctx.AddTerm("location", base+"location")
	ctx.AddTerm("location-name", base+"location/name")
	ctx.AddTerm("location-countrycode", base+"location/countrycode")
	ctx.AddTerm("countrycode", base+"countrycode")

	doc := NewDocument(ctx)

	location := NewNode(base+"location/1", "location")
	location.Set("location-name", "Batavia")
	location.Set("location-countrycode", Reference{ID: base + "countrycode/ID"})
	location.Set("location-population", json.Number("120000"))
	location.Set("location-area", 150.5)
	location.Set("location-capital", true)
	doc.Upsert(location)

	doc.Upsert(NewNode(base+"countrycode/ID", "countrycode"))
	return doc
}

func TestContextJSON(t *testing.T) {
	ctx := NewContext(base)
	ctx.AddTerm("location-name", base+"location/name")

	data, err := json.Marshal(ctx)
	require.NoError(t, err)

	var read Context
	require.NoError(t, json.Unmarshal(data, &read))
	assert.Equal(t, base, read.Vocab)
	// The id and type aliases are not terms
	assert.Equal(t, map[string]string{"location-name": base + "location/name"}, read.Terms)

	require.NoError(t, json.Unmarshal([]byte(`{"place": {"@id": "https://example.org/place", "@type": "@id"}}`), &read))
	assert.Equal(t, "https://example.org/place", read.Terms["place"])
}

func TestIsAbsoluteIRI(t *testing.T) {
	assert.True(t, IsAbsoluteIRI("https://example.org/x"))
	assert.True(t, IsAbsoluteIRI("urn:isbn:123"))
	assert.False(t, IsAbsoluteIRI("Batavia"))
	assert.False(t, IsAbsoluteIRI("12:30"))
	assert.False(t, IsAbsoluteIRI("note: see below"))
	assert.False(t, IsAbsoluteIRI("http:"))
}

func TestUpsertMergesByIRI(t *testing.T) {
	doc := NewDocument(NewContext(base))

	first := NewNode(base+"location/1", "location")
	first.Set("location-name", "Batavia")
	first.Set("location-code", "BAT")
	assert.False(t, doc.Upsert(first))

	second := NewNode(base+"location/1", "location")
	second.Set("location-name", "Jakarta")
	assert.True(t, doc.Upsert(second))

	require.Equal(t, 1, doc.Len())
	node, ok := doc.Node(base + "location/1")
	require.True(t, ok)
	assert.Equal(t, "Jakarta", node.Properties["location-name"])
	assert.Equal(t, "BAT", node.Properties["location-code"])
	assert.Equal(t, []string{"location"}, node.Types)
}

func TestTriplesExpandsThroughContext(t *testing.T) {
	g, err := sampleDocument().Triples()
	require.NoError(t, err)

	subject := rdf.NewIRI(base + "location/1")
	assert.True(t, g.Has(rdf.NewTriple(subject, rdf.NewIRI(rdf.RDFType), rdf.NewIRI(base+"location"))))
	assert.True(t, g.Has(rdf.NewTriple(subject, rdf.NewIRI(base+"location/name"), rdf.NewLiteral("Batavia", ""))))
	assert.True(t, g.Has(rdf.NewTriple(subject, rdf.NewIRI(base+"location/countrycode"), rdf.NewIRI(base+"countrycode/ID"))))
	// Unbound names fall back to the vocabulary
	assert.True(t, g.Has(rdf.NewTriple(subject, rdf.NewIRI(base+"location-population"), rdf.NewLiteral("120000", rdf.XSDInteger))))
	assert.True(t, g.Has(rdf.NewTriple(subject, rdf.NewIRI(base+"location-capital"), rdf.NewLiteral("true", rdf.XSDBoolean))))
	assert.True(t, g.Has(rdf.NewTriple(rdf.NewIRI(base+"countrycode/ID"), rdf.NewIRI(rdf.RDFType), rdf.NewIRI(base+"countrycode"))))

	var area []rdf.Triple
	for _, triple := range g.BySubject(subject) {
		if triple.Predicate.Value == base+"location-area" {
			area = append(area, triple)
		}
	}
	require.Len(t, area, 1)
	assert.Equal(t, rdf.XSDDouble, area[0].Object.Datatype)
	value, err := strconv.ParseFloat(area[0].Object.Value, 64)
	require.NoError(t, err)
	assert.Equal(t, 150.5, value)

	assert.Equal(t, 7, g.Len())
}

func TestTriplesDropsNullValues(t *testing.T) {
	doc := NewDocument(NewContext(base))
	node := NewNode(base+"location/2", "")
	node.Set("location-name", nil)
	node.Set("location-code", "AMB")
	doc.Upsert(node)

	g, err := doc.Triples()
	require.NoError(t, err)
	assert.Equal(t, 1, g.Len())
}

func TestTriplesRejectsInvalidUTF8(t *testing.T) {
	doc := NewDocument(NewContext(base))
	node := NewNode(base+"location/3", "location")
	node.Set("location-name", "a\xffb")
	doc.Upsert(node)

	_, err := doc.Triples()
	require.Error(t, err)
	assert.True(t, grapherr.IsSerialization(err))
	assert.Equal(t, base+"location/3", grapherr.FieldsOf(err)["record"])
	assert.Equal(t, "location-name", grapherr.FieldsOf(err)["predicate"])
}

func TestValidText(t *testing.T) {
	assert.True(t, ValidText("Batavia"))
	assert.True(t, ValidText(42))
	assert.True(t, ValidText([]interface{}{"a", map[string]interface{}{"@value": "b"}}))
	assert.False(t, ValidText("a\xffb"))
	assert.False(t, ValidText([]byte("a\xffb")))
	assert.False(t, ValidText([]interface{}{"a", "a\xffb"}))
	assert.False(t, ValidText(map[string]interface{}{"@value": "a\xffb"}))
}

func TestCompactRoundTrip(t *testing.T) {
	doc := sampleDocument()
	g, err := doc.Triples()
	require.NoError(t, err)

	subject := rdf.NewIRI(base + "location/1")
	g.Add(
		rdf.NewTriple(subject, rdf.NewIRI(base+"location/name"), rdf.NewLiteral("Djakarta", "")),
		rdf.NewTriple(subject, rdf.NewIRI(base+"location/label"), rdf.NewLangLiteral("Batavia", "nl")),
		rdf.NewTriple(subject, rdf.NewIRI(base+"location/ratio"), rdf.NewLiteral("0.50", rdf.XSDDecimal)),
	)

	compacted, err := Compact(g, doc.Context)
	require.NoError(t, err)
	require.Contains(t, compacted, "@graph")

	data, err := json.Marshal(compacted)
	require.NoError(t, err)
	read, err := ReadJSON(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 2, read.Len())

	node, ok := read.Node(base + "location/1")
	require.True(t, ok)
	assert.Equal(t, []string{"location"}, node.Types)
	assert.Len(t, node.Properties["location-name"], 2)

	again, err := read.Triples()
	require.NoError(t, err)
	assert.True(t, g.Equal(again))
}

func TestWriteAndReadJSON(t *testing.T) {
	doc := sampleDocument()

	var buf bytes.Buffer
	require.NoError(t, doc.WriteJSON(&buf))

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &raw))
	ctx := raw["@context"].(map[string]interface{})
	assert.Equal(t, base, ctx["@vocab"])
	assert.Equal(t, "@id", ctx["id"])
	assert.Equal(t, "@type", ctx["type"])
	graph := raw["@graph"].([]interface{})
	require.Len(t, graph, 2)
	first := graph[0].(map[string]interface{})
	assert.Equal(t, base+"location/1", first["@id"])
	assert.Equal(t, map[string]interface{}{"@id": base + "countrycode/ID"}, first["location-countrycode"])

	read, err := ReadJSON(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 2, read.Len())

	want, err := doc.Triples()
	require.NoError(t, err)
	got, err := read.Triples()
	require.NoError(t, err)
	assert.True(t, want.Equal(got))
}

func TestReadJSONRejectsNodeWithoutID(t *testing.T) {
	_, err := ReadJSON(bytes.NewReader([]byte(`{"@context": {"@vocab": "https://example.org/"}, "@graph": [{"name": "x"}]}`)))
	assert.True(t, grapherr.IsValidation(err))
}
