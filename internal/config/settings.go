package config

import (
	"strings"

	"github.com/knaw-huc/pipeline-airflow/pkg/models"
)

// Settings is the immutable, pre-indexed view of ContextConfig that the
// explorer and builder are given for the duration of a run.
type Settings struct {
	baseURI                 string
	unique                  map[string]bool
	locations               map[string]bool
	tableMap                map[string]string
	categories              map[string]models.TableCategory
	associationIgnoreFields map[string]map[string]bool
}

// NewSettings compiles the context configuration into lookup tables.
func NewSettings(ctx ContextConfig) *Settings {
	s := &Settings{
		baseURI:                 ctx.BaseURI,
		unique:                  toSet(ctx.UniqueFields),
		locations:               toSet(ctx.LocationTables),
		tableMap:                make(map[string]string, len(ctx.TableMap)),
		categories:              make(map[string]models.TableCategory),
		associationIgnoreFields: make(map[string]map[string]bool, len(ctx.AssociationIgnoreFields)),
	}

	for from, to := range ctx.TableMap {
		s.tableMap[from] = to
	}
	for table, fields := range ctx.AssociationIgnoreFields {
		s.associationIgnoreFields[table] = toSet(fields)
	}

	// Later assignments win: stop beats association beats main entry.
	for _, table := range ctx.MainEntryTables {
		s.categories[table] = models.MainEntry
	}
	for _, table := range ctx.MiddleTables {
		s.categories[table] = models.Association
	}
	for _, table := range ctx.StopTables {
		s.categories[table] = models.Stop
	}

	return s
}

// BaseURI returns the root namespace for generated IRIs.
func (s *Settings) BaseURI() string {
	return s.baseURI
}

// TableAlias maps a logical name onto the catalog table name it stands for.
func (s *Settings) TableAlias(name string) string {
	if alias, ok := s.tableMap[name]; ok {
		return alias
	}
	return name
}

// FieldAlias returns the alias of a field and whether one is configured.
func (s *Settings) FieldAlias(field string) (string, bool) {
	alias, ok := s.tableMap[field]
	return alias, ok
}

// Classify resolves the category of a table.
func (s *Settings) Classify(table string) models.TableCategory {
	if category, ok := s.categories[table]; ok {
		return category
	}
	return models.Resource
}

// IsStopTable reports whether the table is excluded from the catalog.
func (s *Settings) IsStopTable(table string) bool {
	return s.Classify(table) == models.Stop
}

// IsUniqueField reports whether a field must never become a predicate.
func (s *Settings) IsUniqueField(field string) bool {
	return s.unique[field]
}

// IsLocationTable reports whether the table carries geometry points.
func (s *Settings) IsLocationTable(table string) bool {
	return s.locations[table]
}

// IsAssociationIgnored reports whether a field of an association table is not an endpoint.
func (s *Settings) IsAssociationIgnored(table, field string) bool {
	return s.associationIgnoreFields[table][field]
}

// JoinURL joins URL parts with single slashes.
func JoinURL(base string, parts ...string) string {
	segments := []string{strings.TrimRight(base, "/")}
	for _, part := range parts {
		segments = append(segments, strings.Trim(part, "/"))
	}
	return strings.Join(segments, "/")
}

// IRI builds an IRI below the base URI.
func (s *Settings) IRI(parts ...string) string {
	return JoinURL(s.baseURI, parts...)
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, value := range values {
		set[value] = true
	}
	return set
}
