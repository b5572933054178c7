package generator

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/knaw-huc/pipeline-airflow/internal/config"
	grapherr "github.com/knaw-huc/pipeline-airflow/pkg/errors"
	"github.com/knaw-huc/pipeline-airflow/pkg/models"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// TableSpec describes a synthetic table. Every table gets an integer id column.
type TableSpec struct {
	Rows    int          `yaml:"rows"`
	Columns []ColumnSpec `yaml:"columns"`
}

// Schema is the document read from synthetic.schema_file
type Schema struct {
	Tables map[string]TableSpec `yaml:"tables"`
}

// LoadSchema reads a synthetic schema from a YAML file
func LoadSchema(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, grapherr.Wrap(err, grapherr.CodeFileNotFound, "reading synthetic schema", grapherr.Field("path", path))
	}
	return ParseSchema(data)
}

// ParseSchema decodes a synthetic schema and checks its references
func ParseSchema(data []byte) (*Schema, error) {
	var schema Schema
	if err := yaml.Unmarshal(data, &schema); err != nil {
		return nil, grapherr.Wrap(err, grapherr.CodeValidationConfig, "decoding synthetic schema")
	}
	if len(schema.Tables) == 0 {
		return nil, grapherr.New(grapherr.CodeValidationConfig, "synthetic schema declares no tables")
	}
	for table, spec := range schema.Tables {
		for _, column := range spec.Columns {
			if column.Name == "" {
				return nil, grapherr.New(grapherr.CodeValidationConfig, "column without a name", grapherr.FieldTable(table))
			}
			if column.References == "" {
				continue
			}
			if _, ok := schema.Tables[column.References]; !ok {
				return nil, grapherr.Errorf(grapherr.CodeValidationConfig,
					"column %s references unknown table %s", column.Name, column.References)
			}
		}
	}
	return &schema, nil
}

// SyntheticSource serves faker generated rows for a declared schema.
// Foreign key values always point at a generated row of the target table.
type SyntheticSource struct {
	Schema *Schema
	Config config.SyntheticConfig
	Logger *logrus.Logger

	once sync.Once
	rows map[string][]models.Record
}

// NewSyntheticSource creates a synthetic source
func NewSyntheticSource(schema *Schema, cfg config.SyntheticConfig, logger *logrus.Logger) *SyntheticSource {
	return &SyntheticSource{
		Schema: schema,
		Config: cfg,
		Logger: logger,
	}
}

// NewSyntheticSourceFromConfig loads the schema named in the configuration
func NewSyntheticSourceFromConfig(cfg config.SyntheticConfig, logger *logrus.Logger) (*SyntheticSource, error) {
	schema, err := LoadSchema(cfg.SchemaFile)
	if err != nil {
		return nil, err
	}
	return NewSyntheticSource(schema, cfg, logger), nil
}

func (ss *SyntheticSource) rowCount(table string) int {
	if n := ss.Schema.Tables[table].Rows; n > 0 {
		return n
	}
	if ss.Config.Rows > 0 {
		return ss.Config.Rows
	}
	return 1
}

// generate fills every table once, in sorted table order so a seed always
// yields the same data
func (ss *SyntheticSource) generate() {
	ss.once.Do(func() {
		dg := NewDataGenerator(ss.Config.Seed, ss.Logger)
		ss.rows = make(map[string][]models.Record, len(ss.Schema.Tables))

		tables := make([]string, 0, len(ss.Schema.Tables))
		for table := range ss.Schema.Tables {
			tables = append(tables, table)
		}
		sort.Strings(tables)

		for _, table := range tables {
			count := ss.rowCount(table)
			records := make([]models.Record, 0, count)
			for i := 1; i <= count; i++ {
				record := models.Record{"id": int64(i)}
				for _, column := range ss.Schema.Tables[table].Columns {
					if column.Name == "id" {
						continue
					}
					if column.References != "" {
						if column.Nullable && dg.Faker.IntBetween(0, 9) < 3 {
							record[column.Name] = nil
							continue
						}
						record[column.Name] = int64(dg.Faker.IntBetween(1, ss.rowCount(column.References)))
						continue
					}
					record[column.Name] = dg.GenerateData(table, column)
				}
				records = append(records, record)
			}
			ss.rows[table] = records
			ss.Logger.Debugf("Generated %d rows for table %s", count, table)
		}
	})
}

// Catalog lists the declared tables
func (ss *SyntheticSource) Catalog(ctx context.Context) (map[string]string, error) {
	tables := make(map[string]string, len(ss.Schema.Tables))
	for table := range ss.Schema.Tables {
		tables[table] = fmt.Sprintf("synthetic://%d/%s", ss.Config.Seed, table)
	}
	return tables, nil
}

// Probe returns the declared metadata of a table with its first row
func (ss *SyntheticSource) Probe(ctx context.Context, table string) (*models.Page, error) {
	spec, ok := ss.Schema.Tables[table]
	if !ok {
		return nil, grapherr.New(grapherr.CodeTableNotFound, "table is not declared", grapherr.FieldTable(table))
	}
	ss.generate()

	page := &models.Page{}
	page.Metadata.Fields = []string{"id"}
	page.Metadata.ForeignKeys = make(map[string]string)
	for _, column := range spec.Columns {
		if column.Name == "id" {
			continue
		}
		page.Metadata.Fields = append(page.Metadata.Fields, column.Name)
		if column.References != "" {
			page.Metadata.ForeignKeys[column.Name] = column.References
		}
	}
	if rows := ss.rows[table]; len(rows) > 0 {
		page.Results = []models.Record{rows[0]}
	}
	return page, nil
}

// TableRows returns every generated row of a table
func (ss *SyntheticSource) TableRows(ctx context.Context, table string) ([]models.Record, error) {
	if _, ok := ss.Schema.Tables[table]; !ok {
		return nil, grapherr.New(grapherr.CodeTableNotFound, "table is not declared", grapherr.FieldTable(table))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ss.generate()

	return ss.rows[table], nil
}
