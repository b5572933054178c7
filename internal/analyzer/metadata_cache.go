package analyzer

import (
	"context"
	"sync"

	grapherr "github.com/knaw-huc/pipeline-airflow/pkg/errors"
	"github.com/knaw-huc/pipeline-airflow/pkg/models"
	"github.com/sirupsen/logrus"
)

// Source is anything that can list, describe and read relational tables
type Source interface {
	Catalog(ctx context.Context) (map[string]string, error)
	Probe(ctx context.Context, table string) (*models.Page, error)
	TableRows(ctx context.Context, table string) ([]models.Record, error)
}

// MetadataCache memoizes first-page probes and the table metadata derived
// from them for the duration of one run
type MetadataCache struct {
	Source Source
	Logger *logrus.Logger

	mu       sync.Mutex
	probes   map[string]*models.Page
	metadata map[string]*models.TableMetadata
	fetches  int
}

// NewMetadataCache creates an empty metadata cache over a source
func NewMetadataCache(source Source, logger *logrus.Logger) *MetadataCache {
	return &MetadataCache{
		Source:   source,
		Logger:   logger,
		probes:   make(map[string]*models.Page),
		metadata: make(map[string]*models.TableMetadata),
	}
}

// Probe returns the first page of a table, fetching it at most once.
// Failures are not cached so a retrying caller fetches again.
func (mc *MetadataCache) Probe(ctx context.Context, table string) (*models.Page, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	return mc.probeLocked(ctx, table)
}

func (mc *MetadataCache) probeLocked(ctx context.Context, table string) (*models.Page, error) {
	if page, ok := mc.probes[table]; ok {
		return page, nil
	}

	mc.Logger.Debugf("Fetching metadata for table: %s", table)
	mc.fetches++
	page, err := mc.Source.Probe(ctx, table)
	if err != nil {
		return nil, err
	}
	if page == nil {
		return nil, grapherr.New(grapherr.CodeTableNotFound, "empty probe response", grapherr.FieldTable(table))
	}

	mc.probes[table] = page
	return page, nil
}

// Get returns the metadata of a table
func (mc *MetadataCache) Get(ctx context.Context, table string) (*models.TableMetadata, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if metadata, ok := mc.metadata[table]; ok {
		return metadata, nil
	}

	page, err := mc.probeLocked(ctx, table)
	if err != nil {
		return nil, err
	}

	metadata := &models.TableMetadata{
		Name:        table,
		Fields:      append([]string(nil), page.Metadata.Fields...),
		ForeignKeys: make(map[string]string, len(page.Metadata.ForeignKeys)),
	}
	for field, target := range page.Metadata.ForeignKeys {
		metadata.ForeignKeys[field] = target
	}

	mc.metadata[table] = metadata
	return metadata, nil
}

// Fetches returns how many probes reached the source
func (mc *MetadataCache) Fetches() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	return mc.fetches
}
