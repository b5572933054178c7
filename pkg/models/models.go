package models

import (
	"fmt"
	"sort"
)

// TableMetadata represents the schema of a table as reported by the source
type TableMetadata struct {
	Name        string
	Fields      []string
	ForeignKeys map[string]string
}

// TableRelation represents a table reached during exploration with its neighbors
type TableRelation struct {
	TableName   string
	Incoming    []string
	Outgoing    []string
	ForeignKeys map[string]string
	Records     []string
}

// IsForeignKey reports whether field is an outgoing foreign key of the table
func (tr *TableRelation) IsForeignKey(field string) bool {
	if tr == nil {
		return false
	}
	_, ok := tr.ForeignKeys[field]
	return ok
}

// RelationMap holds every table reached during exploration, keyed by table name
type RelationMap map[string]*TableRelation

// Tables returns the table names in a stable order
func (rm RelationMap) Tables() []string {
	tables := make([]string, 0, len(rm))
	for table := range rm {
		tables = append(tables, table)
	}
	sort.Strings(tables)
	return tables
}

// Contains reports whether iri has been recorded for any table in the map
func (rm RelationMap) Contains(iri string) bool {
	for _, relation := range rm {
		for _, record := range relation.Records {
			if record == iri {
				return true
			}
		}
	}
	return false
}

// Record represents a single row returned by the source
type Record map[string]interface{}

// ID returns the record identifier as a string
func (r Record) ID() (string, bool) {
	value, ok := r["id"]
	if !ok || value == nil {
		return "", false
	}
	id := FormatScalar(value)
	if id == "" {
		return "", false
	}
	return id, true
}

// FormatScalar renders a scalar value the way it appears in an IRI path
func FormatScalar(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%v", v)
	case float32:
		return FormatScalar(float64(v))
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Page represents one page of a paginated table listing
type Page struct {
	Metadata struct {
		Fields      []string          `json:"fields"`
		ForeignKeys map[string]string `json:"foreign_keys"`
	} `json:"metadata"`
	Results []Record `json:"results"`
	Links   struct {
		Next *string `json:"next"`
	} `json:"links"`
}

// TableCategory represents how a table is materialized into the graph
type TableCategory int

const (
	Resource TableCategory = iota
	MainEntry
	Association
	Stop
)

// String returns the human readable category name
func (c TableCategory) String() string {
	switch c {
	case Resource:
		return "Resource"
	case MainEntry:
		return "Main-Entry"
	case Association:
		return "Association"
	case Stop:
		return "Stop"
	default:
		return fmt.Sprintf("TableCategory(%d)", int(c))
	}
}

// TableData represents a fetched table: its metadata and all of its rows
type TableData struct {
	Metadata *TableMetadata
	Rows     []Record
}

// MaterializationResult represents the outcome of one materialization run
type MaterializationResult struct {
	RootTable     string
	Distance      int
	Tables        []string
	NodeCount     int
	TripleCount   int
	LinksCreated  int
	LinksDropped  int
	SkippedByLink int
	JSONLDPath    string
	TurtlePath    string
	Turtle        string
}
