package populator

import (
	"bytes"
	"context"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/knaw-huc/pipeline-airflow/internal/analyzer"
	"github.com/knaw-huc/pipeline-airflow/internal/builder"
	"github.com/knaw-huc/pipeline-airflow/internal/config"
	"github.com/knaw-huc/pipeline-airflow/internal/rdf"
	grapherr "github.com/knaw-huc/pipeline-airflow/pkg/errors"
	"github.com/knaw-huc/pipeline-airflow/pkg/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// buildOrder is the order in which table categories are added to the graph.
// Association tables come last so both of their endpoints already exist.
var buildOrder = []models.TableCategory{models.MainEntry, models.Resource, models.Association}

// Materializer turns the neighborhood of a root table into a linked-data graph
type Materializer struct {
	Source      analyzer.Source
	Config      *config.Config
	Settings    *config.Settings
	Concurrency int
	Logger      *logrus.Logger
}

// NewMaterializer creates a new materializer
func NewMaterializer(source analyzer.Source, cfg *config.Config, logger *logrus.Logger) *Materializer {
	concurrency := cfg.API.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	return &Materializer{
		Source:      source,
		Config:      cfg,
		Settings:    config.NewSettings(cfg.Context),
		Concurrency: concurrency,
		Logger:      logger,
	}
}

// Explore loads the catalog and explores the tables around root
func (m *Materializer) Explore(ctx context.Context, root string, distance int) (models.RelationMap, *analyzer.SchemaExplorer, error) {
	tables, err := analyzer.LoadCatalog(ctx, m.Source, m.Settings, m.Logger)
	if err != nil {
		return nil, nil, err
	}

	cache := analyzer.NewMetadataCache(m.Source, m.Logger)
	explorer := analyzer.NewSchemaExplorer(cache, tables, m.Settings, m.Logger)
	relations, err := explorer.Explore(ctx, root, distance)
	if err != nil {
		return nil, nil, err
	}
	return relations, explorer, nil
}

// Run materializes the graph around root and writes the JSON-LD and Turtle outputs
func (m *Materializer) Run(ctx context.Context, root string, distance int) (*models.MaterializationResult, error) {
	runID := uuid.NewString()
	log := m.Logger.WithField("run", runID)
	log.Infof("Materializing %s with distance %d", root, distance)

	relations, explorer, err := m.Explore(ctx, root, distance)
	if err != nil {
		return nil, grapherr.With(err, grapherr.Field("run", runID))
	}

	log.Info("Pre-fetching related tables")
	data, err := m.prefetch(ctx, explorer.Cache, relations)
	if err != nil {
		return nil, grapherr.With(err, grapherr.Field("run", runID))
	}

	gb := builder.NewGraphBuilder(m.Settings, m.Logger)
	for _, category := range buildOrder {
		log.Infof("Processing %s tables", category)
		for _, table := range relations.Tables() {
			if m.Settings.Classify(table) != category {
				continue
			}
			if err := m.buildTable(log, gb, table, relations, data[table]); err != nil {
				return nil, grapherr.With(err, grapherr.Field("run", runID))
			}
		}
	}

	result := &models.MaterializationResult{
		RootTable:     root,
		Distance:      distance,
		Tables:        relations.Tables(),
		NodeCount:     gb.Document.Len(),
		LinksCreated:  gb.Stats.LinksCreated,
		LinksDropped:  gb.Stats.LinksDropped,
		SkippedByLink: gb.Stats.SkippedByLink,
	}

	if err := m.writeOutputs(log, gb, result); err != nil {
		return nil, grapherr.With(err, grapherr.Field("run", runID))
	}

	log.Info("Done")
	return result, nil
}

// prefetch reads the metadata and rows of every related table. Reads run
// concurrently; the graph is built afterwards from the collected results.
func (m *Materializer) prefetch(ctx context.Context, cache *analyzer.MetadataCache, relations models.RelationMap) (map[string]*models.TableData, error) {
	tables := relations.Tables()
	results := make([]*models.TableData, len(tables))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.Concurrency)
	for i, table := range tables {
		i, table := i, table
		g.Go(func() error {
			m.Logger.Debugf("Caching related table: '%s'", table)
			metadata, err := cache.Get(gctx, table)
			if err != nil {
				return err
			}
			rows, err := m.Source.TableRows(gctx, table)
			if err != nil {
				return grapherr.With(err, grapherr.FieldTable(table))
			}
			results[i] = &models.TableData{Metadata: metadata, Rows: rows}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	data := make(map[string]*models.TableData, len(tables))
	for i, table := range tables {
		data[table] = results[i]
	}
	return data, nil
}

// buildTable adds the context terms and every record of one table. Dropped
// association links are logged and counted; any other record error stops the run.
func (m *Materializer) buildTable(log *logrus.Entry, gb *builder.GraphBuilder, table string, relations models.RelationMap, data *models.TableData) error {
	log = log.WithField("table", table)
	if data == nil {
		return grapherr.New(grapherr.CodeTableNotFound, "table was not fetched", grapherr.FieldTable(table))
	}

	switch category := m.Settings.Classify(table); category {
	case models.MainEntry, models.Resource, models.Association:
	case models.Stop:
		return nil
	default:
		return grapherr.Errorf(grapherr.CodeValidationConfig, "unknown category %v for table %s", category, table)
	}

	log.Infof("Processing %s table with %d records", m.Settings.Classify(table), len(data.Rows))
	if err := gb.AddTableFieldsToContext(table, data.Metadata.Fields); err != nil {
		if grapherr.IsLinkage(err) {
			log.Warningf("Skipping table and its %d links: %v", len(data.Rows), err)
			gb.Stats.LinksDropped += len(data.Rows)
			return nil
		}
		return err
	}

	for _, record := range data.Rows {
		if _, err := gb.AddRecordToGraph(table, relations, record, false); err != nil {
			if grapherr.IsLinkage(err) {
				log.WithField("fields", grapherr.FieldsOf(err)).Warningf("Dropping link: %v", err)
				continue
			}
			return grapherr.With(err, grapherr.FieldTable(table))
		}
	}
	return nil
}

// writeOutputs writes the JSON-LD document, then the Turtle rendering once it
// re-parses cleanly. A Turtle file that fails validation is never written.
func (m *Materializer) writeOutputs(log *logrus.Entry, gb *builder.GraphBuilder, result *models.MaterializationResult) error {
	var buf bytes.Buffer
	if err := gb.Document.WriteJSON(&buf); err != nil {
		return grapherr.Wrap(err, grapherr.CodeSerializationWrite, "encoding JSON-LD")
	}
	jsonPath := filepath.Join(m.Config.OutputDir, m.Config.OutputJSONLD)
	if err := rdf.WriteFile(jsonPath, buf.Bytes()); err != nil {
		return err
	}
	result.JSONLDPath = jsonPath
	log.Infof("JSON-LD saved to %s", jsonPath)

	g, err := gb.Document.Triples()
	if err != nil {
		return err
	}
	turtle, err := rdf.ToTurtle(g)
	if err != nil {
		return err
	}
	if err := rdf.Validate(turtle); err != nil {
		log.Errorf("TTL is not valid: %v", err)
		return err
	}

	ttlPath := filepath.Join(m.Config.OutputDir, m.Config.OutputRDF)
	if err := rdf.WriteFile(ttlPath, []byte(turtle)); err != nil {
		return err
	}
	result.TripleCount = g.Len()
	result.Turtle = turtle
	result.TurtlePath = ttlPath
	log.Infof("Turtle data saved to %s", ttlPath)
	return nil
}
