package builder

import (
	"fmt"
	"sort"
	"strings"

	"github.com/knaw-huc/pipeline-airflow/internal/config"
	"github.com/knaw-huc/pipeline-airflow/internal/linkeddata"
	grapherr "github.com/knaw-huc/pipeline-airflow/pkg/errors"
	"github.com/knaw-huc/pipeline-airflow/pkg/models"
	"github.com/sirupsen/logrus"
)

// Stats counts what happened to the records given to a builder
type Stats struct {
	NodesAdded    int
	NodesMerged   int
	SkippedByLink int
	LinksCreated  int
	LinksDropped  int
}

// GraphBuilder turns table records into nodes of a linked-data document
type GraphBuilder struct {
	Settings *config.Settings
	Document *linkeddata.Document
	Logger   *logrus.Logger
	Stats    Stats

	fields map[string][]string
}

// NewGraphBuilder creates a builder with an empty document
func NewGraphBuilder(settings *config.Settings, logger *logrus.Logger) *GraphBuilder {
	return &GraphBuilder{
		Settings: settings,
		Document: linkeddata.NewDocument(linkeddata.NewContext(settings.BaseURI())),
		Logger:   logger,
		fields:   make(map[string][]string),
	}
}

// predicateNames maps every field of a table onto its predicate name.
// An aliased field keeps its own name when another field of the table ends
// up with the same name.
func (gb *GraphBuilder) predicateNames(table string, fields []string) map[string]string {
	counts := make(map[string]int, len(fields))
	for _, field := range fields {
		name := field
		if alias, ok := gb.Settings.FieldAlias(field); ok {
			name = alias
		}
		counts[name]++
	}

	names := make(map[string]string, len(fields))
	for _, field := range fields {
		name := field
		if alias, ok := gb.Settings.FieldAlias(field); ok && counts[alias] == 1 {
			name = alias
		}
		names[field] = table + "-" + name
	}
	return names
}

// endpointFields returns the fields of an association table that name its two endpoints
func (gb *GraphBuilder) endpointFields(table string, fields []string) []string {
	var endpoints []string
	for _, field := range fields {
		if gb.Settings.IsUniqueField(field) || gb.Settings.IsAssociationIgnored(table, field) {
			continue
		}
		endpoints = append(endpoints, field)
	}
	return endpoints
}

// AddTableFieldsToContext binds the terms of a table in the document context
func (gb *GraphBuilder) AddTableFieldsToContext(table string, fields []string) error {
	gb.fields[table] = append([]string(nil), fields...)
	ctx := gb.Document.Context

	switch category := gb.Settings.Classify(table); category {
	case models.MainEntry, models.Resource:
		ctx.AddTerm(table, gb.Settings.IRI(table))
		names := gb.predicateNames(table, fields)
		for _, field := range fields {
			if gb.Settings.IsUniqueField(field) {
				continue
			}
			name := names[field]
			ctx.AddTerm(name, gb.Settings.IRI(table, strings.TrimPrefix(name, table+"-")))
		}
		return nil
	case models.Association:
		endpoints := gb.endpointFields(table, fields)
		if len(endpoints) != 2 {
			return grapherr.New(grapherr.CodeLinkageEndpoints,
				fmt.Sprintf("association table needs exactly two endpoint fields, found %d", len(endpoints)),
				grapherr.FieldTable(table), grapherr.Field("fields", endpoints))
		}
		a, b := endpoints[0], endpoints[1]
		ctx.AddTerm(b+"-"+table, gb.Settings.IRI(gb.Settings.TableAlias(a), table))
		ctx.AddTerm(a+"-"+table, gb.Settings.IRI(gb.Settings.TableAlias(b), table))
		return nil
	case models.Stop:
		gb.Logger.Debugf("Not adding stop table %s to the context", table)
		return nil
	default:
		return grapherr.Errorf(grapherr.CodeValidationConfig, "unknown category %v for table %s", category, table)
	}
}

// recordFields lists the fields of a record, in context order when the
// table fields are known
func (gb *GraphBuilder) recordFields(table string, record models.Record) []string {
	seen := make(map[string]bool, len(record))
	var fields []string
	for _, field := range gb.fields[table] {
		if _, ok := record[field]; ok {
			fields = append(fields, field)
			seen[field] = true
		}
	}

	var extra []string
	for field := range record {
		if !seen[field] {
			extra = append(extra, field)
		}
	}
	sort.Strings(extra)
	return append(fields, extra...)
}

// AddRecordToGraph adds one record of a table to the document. It returns
// false without an error when the record is filtered out.
func (gb *GraphBuilder) AddRecordToGraph(table string, relations models.RelationMap, record models.Record, checkLinkage bool) (bool, error) {
	relation, ok := relations[table]
	if !ok {
		relation = &models.TableRelation{TableName: table}
		relations[table] = relation
	}

	switch category := gb.Settings.Classify(table); category {
	case models.Association:
		return gb.addAssociation(table, relation, record)
	case models.MainEntry, models.Resource:
		return gb.addEntity(table, relations, relation, record, checkLinkage)
	case models.Stop:
		return false, nil
	default:
		return false, grapherr.Errorf(grapherr.CodeValidationConfig, "unknown category %v for table %s", category, table)
	}
}

func (gb *GraphBuilder) addEntity(table string, relations models.RelationMap, relation *models.TableRelation, record models.Record, checkLinkage bool) (bool, error) {
	id, ok := record.ID()
	if !ok {
		return false, grapherr.New(grapherr.CodeValidationRecord, "record has no id", grapherr.FieldTable(table))
	}
	iri := gb.Settings.IRI(table, id)

	if checkLinkage && !relations.Contains(iri) {
		gb.Stats.SkippedByLink++
		return false, nil
	}

	node := linkeddata.NewNode(iri, table)
	fields := gb.recordFields(table, record)
	names := gb.predicateNames(table, fields)

	for _, field := range fields {
		if gb.Settings.IsUniqueField(field) {
			continue
		}
		value := record[field]
		if isEmpty(value) {
			continue
		}
		if !linkeddata.ValidText(value) {
			return false, grapherr.New(grapherr.CodeSerializationTerm, "field value is not valid UTF-8",
				grapherr.FieldTable(table), grapherr.FieldRecord(id), grapherr.Field("field", field))
		}

		predicate := names[field]
		switch {
		case field == "point" && gb.Settings.IsLocationTable(table):
			point, ok := pointLiteral(value)
			if !ok {
				gb.Logger.WithField("table", table).Warningf("Skipping malformed point on %s: %v", iri, value)
				continue
			}
			node.Set(predicate, point)
		default:
			node.Set(predicate, gb.resolveValue(relation, field, value))
		}
	}

	if gb.Document.Upsert(node) {
		gb.Stats.NodesMerged++
	} else {
		gb.Stats.NodesAdded++
		relation.Records = append(relation.Records, iri)
	}
	return true, nil
}

// resolveValue turns foreign keys and absolute URIs into references and
// leaves everything else as a literal
func (gb *GraphBuilder) resolveValue(relation *models.TableRelation, field string, value interface{}) interface{} {
	if relation.IsForeignKey(field) {
		target := gb.Settings.TableAlias(relation.ForeignKeys[field])
		return linkeddata.Reference{ID: gb.Settings.IRI(target, models.FormatScalar(value))}
	}
	if s, ok := value.(string); ok && linkeddata.IsAbsoluteIRI(s) {
		return linkeddata.Reference{ID: s}
	}
	if b, ok := value.([]byte); ok {
		return string(b)
	}
	return value
}

// endpointReference builds the IRI an association field points at
func (gb *GraphBuilder) endpointReference(relation *models.TableRelation, field string, value interface{}) string {
	if relation.IsForeignKey(field) {
		target := gb.Settings.TableAlias(relation.ForeignKeys[field])
		return gb.Settings.IRI(target, models.FormatScalar(value))
	}
	if s, ok := value.(string); ok && linkeddata.IsAbsoluteIRI(s) {
		return s
	}
	return gb.Settings.IRI(gb.Settings.TableAlias(field), models.FormatScalar(value))
}

func (gb *GraphBuilder) addAssociation(table string, relation *models.TableRelation, record models.Record) (bool, error) {
	endpoints := gb.endpointFields(table, gb.recordFields(table, record))
	if len(endpoints) != 2 {
		gb.Stats.LinksDropped++
		return false, grapherr.New(grapherr.CodeLinkageEndpoints,
			fmt.Sprintf("association record needs exactly two endpoint fields, found %d", len(endpoints)),
			grapherr.FieldTable(table), grapherr.Field("fields", endpoints))
	}
	a, b := endpoints[0], endpoints[1]

	var missing []string
	iris := make([]string, 2)
	nodes := make([]*linkeddata.Node, 2)
	for i, field := range endpoints {
		if isEmpty(record[field]) {
			missing = append(missing, field)
			continue
		}
		iris[i] = gb.endpointReference(relation, field, record[field])
		node, ok := gb.Document.Node(iris[i])
		if !ok {
			missing = append(missing, iris[i])
			continue
		}
		nodes[i] = node
	}

	if len(missing) > 0 {
		gb.Stats.LinksDropped++
		id, _ := record.ID()
		return false, grapherr.New(grapherr.CodeLinkageEndpoint, "association endpoint not found",
			grapherr.FieldTable(table), grapherr.FieldRecord(id), grapherr.Field("missing", missing))
	}

	addReference(nodes[0], b+"-"+table, iris[1])
	addReference(nodes[1], a+"-"+table, iris[0])
	gb.Stats.LinksCreated++

	if id, ok := record.ID(); ok {
		relation.Records = append(relation.Records, gb.Settings.IRI(table, id))
	}
	return true, nil
}

// addReference adds a reference to a property, turning it into a list
// when it already points elsewhere
func addReference(node *linkeddata.Node, predicate, iri string) {
	ref := linkeddata.Reference{ID: iri}
	existing, ok := node.Get(predicate)
	if !ok {
		node.Set(predicate, ref)
		return
	}

	switch v := existing.(type) {
	case linkeddata.Reference:
		if v.ID != iri {
			node.Set(predicate, []interface{}{v, ref})
		}
	case []interface{}:
		for _, item := range v {
			if item == interface{}(ref) {
				return
			}
		}
		node.Set(predicate, append(v, ref))
	default:
		node.Set(predicate, []interface{}{v, ref})
	}
}

// pointLiteral renders a coordinate structure as POINT(x,y)
func pointLiteral(value interface{}) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, strings.HasPrefix(strings.ToUpper(v), "POINT(")
	case map[string]interface{}:
		coordinates, ok := v["coordinates"].([]interface{})
		if !ok || len(coordinates) != 2 {
			return "", false
		}
		return fmt.Sprintf("POINT(%s,%s)", models.FormatScalar(coordinates[0]), models.FormatScalar(coordinates[1])), true
	default:
		return "", false
	}
}

func isEmpty(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []byte:
		return len(strings.TrimSpace(string(v))) == 0
	case map[string]interface{}:
		return len(v) == 0
	case []interface{}:
		return len(v) == 0
	default:
		return false
	}
}
