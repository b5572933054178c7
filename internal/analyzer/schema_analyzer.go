package analyzer

import (
	"context"
	"sort"

	"github.com/knaw-huc/pipeline-airflow/internal/config"
	grapherr "github.com/knaw-huc/pipeline-airflow/pkg/errors"
	"github.com/knaw-huc/pipeline-airflow/pkg/models"
	"github.com/sirupsen/logrus"
	"github.com/yourbasic/graph"
)

// SchemaExplorer finds the tables within a number of foreign key hops of a root table
type SchemaExplorer struct {
	Cache           *MetadataCache
	Settings        *config.Settings
	Tables          []string
	TableIndexMap   map[string]int
	IndexTableMap   map[int]string
	DependencyGraph *graph.Mutable
	ReverseGraph    *graph.Immutable
	Logger          *logrus.Logger

	distances map[string]int
}

// LoadCatalog fetches the table catalog and drops the stop tables
func LoadCatalog(ctx context.Context, source Source, settings *config.Settings, logger *logrus.Logger) ([]string, error) {
	endpoints, err := source.Catalog(ctx)
	if err != nil {
		logger.Errorf("Error getting catalog: %v", err)
		return nil, err
	}

	var tables []string
	for table := range endpoints {
		if settings.IsStopTable(table) {
			logger.Debugf("Skipping stop table: %s", table)
			continue
		}
		tables = append(tables, table)
	}
	sort.Strings(tables)

	return tables, nil
}

// NewSchemaExplorer creates a new schema explorer over the given catalog
func NewSchemaExplorer(cache *MetadataCache, tables []string, settings *config.Settings, logger *logrus.Logger) *SchemaExplorer {
	se := &SchemaExplorer{
		Cache:         cache,
		Settings:      settings,
		Tables:        append([]string(nil), tables...),
		TableIndexMap: make(map[string]int, len(tables)),
		IndexTableMap: make(map[int]string, len(tables)),
		Logger:        logger,
		distances:     make(map[string]int),
	}
	sort.Strings(se.Tables)

	// Create a map of table indices for the dependency graph
	for i, table := range se.Tables {
		se.TableIndexMap[table] = i
		se.IndexTableMap[i] = table
	}

	return se
}

// buildDependencyGraph probes every catalog table once and records an edge
// from each table to every table its foreign keys point at
func (se *SchemaExplorer) buildDependencyGraph(ctx context.Context) error {
	if se.DependencyGraph != nil {
		return nil
	}

	g := graph.New(len(se.Tables))
	for i, table := range se.Tables {
		metadata, err := se.Cache.Get(ctx, table)
		if err != nil {
			se.Logger.Errorf("Error getting metadata for table %s: %v", table, err)
			return grapherr.With(err, grapherr.FieldTable(table))
		}

		for _, target := range metadata.ForeignKeys {
			if destIdx, ok := se.TableIndexMap[se.Settings.TableAlias(target)]; ok {
				g.AddCost(i, destIdx, 1)
			}
		}
	}

	se.DependencyGraph = g
	se.ReverseGraph = graph.Transpose(g)
	return nil
}

// relation computes the neighbor sets of a single table
func (se *SchemaExplorer) relation(ctx context.Context, table string) (*models.TableRelation, error) {
	metadata, err := se.Cache.Get(ctx, table)
	if err != nil {
		return nil, grapherr.With(err, grapherr.FieldTable(table))
	}

	relation := &models.TableRelation{
		TableName:   table,
		ForeignKeys: make(map[string]string, len(metadata.ForeignKeys)),
	}

	// Add outgoing foreign keys
	outgoing := make(map[string]bool)
	for field, target := range metadata.ForeignKeys {
		resolved := se.Settings.TableAlias(target)
		relation.ForeignKeys[field] = resolved
		outgoing[resolved] = true
	}
	relation.Outgoing = sortedKeys(outgoing)

	// Add incoming foreign keys
	incoming := make(map[string]bool)
	if idx, ok := se.TableIndexMap[table]; ok {
		se.ReverseGraph.Visit(idx, func(w int, _ int64) bool {
			incoming[se.IndexTableMap[w]] = true
			return false
		})
	}
	relation.Incoming = sortedKeys(incoming)

	return relation, nil
}

type frontierItem struct {
	table     string
	remaining int
}

// Explore returns every table reachable from root within maxDistance hops
// over incoming or outgoing foreign keys. Tables are discovered breadth
// first, so each table is recorded at its shortest distance.
func (se *SchemaExplorer) Explore(ctx context.Context, root string, maxDistance int) (models.RelationMap, error) {
	relations := make(models.RelationMap)
	se.distances = make(map[string]int)

	root = se.Settings.TableAlias(root)
	if maxDistance < 0 {
		return relations, nil
	}
	if _, ok := se.TableIndexMap[root]; !ok {
		return nil, grapherr.New(grapherr.CodeTableNotFound, "root table is not in the catalog", grapherr.FieldTable(root))
	}

	if err := se.buildDependencyGraph(ctx); err != nil {
		return nil, err
	}

	queued := map[string]bool{root: true}
	frontier := []frontierItem{{table: root, remaining: maxDistance}}

	for len(frontier) > 0 {
		item := frontier[0]
		frontier = frontier[1:]

		relation, err := se.relation(ctx, item.table)
		if err != nil {
			return nil, err
		}
		relations[item.table] = relation
		se.distances[item.table] = maxDistance - item.remaining
		se.Logger.WithField("table", item.table).Debugf("Outgoing: %v, incoming: %v", relation.Outgoing, relation.Incoming)

		if item.remaining < 1 {
			continue
		}

		neighbors := append(append([]string(nil), relation.Incoming...), relation.Outgoing...)
		for _, neighbor := range neighbors {
			if queued[neighbor] {
				continue
			}
			if _, ok := se.TableIndexMap[neighbor]; !ok {
				se.Logger.Debugf("Not following %s from %s: not in catalog", neighbor, item.table)
				continue
			}
			queued[neighbor] = true
			frontier = append(frontier, frontierItem{table: neighbor, remaining: item.remaining - 1})
		}
	}

	se.Logger.Infof("Working on %d related tables out of %d with distance %d", len(relations), len(se.Tables), maxDistance)
	return relations, nil
}

// Distances returns the hop distance from the root of every table found by the last Explore
func (se *SchemaExplorer) Distances() map[string]int {
	distances := make(map[string]int, len(se.distances))
	for table, distance := range se.distances {
		distances[table] = distance
	}
	return distances
}

// ShortestPath returns the foreign key path between two catalog tables,
// ignoring edge direction
func (se *SchemaExplorer) ShortestPath(ctx context.Context, from, to string) ([]string, error) {
	if err := se.buildDependencyGraph(ctx); err != nil {
		return nil, err
	}

	fromIdx, ok := se.TableIndexMap[se.Settings.TableAlias(from)]
	if !ok {
		return nil, grapherr.New(grapherr.CodeTableNotFound, "table is not in the catalog", grapherr.FieldTable(from))
	}
	toIdx, ok := se.TableIndexMap[se.Settings.TableAlias(to)]
	if !ok {
		return nil, grapherr.New(grapherr.CodeTableNotFound, "table is not in the catalog", grapherr.FieldTable(to))
	}

	undirected := graph.Copy(se.DependencyGraph)
	for v := 0; v < se.DependencyGraph.Order(); v++ {
		se.DependencyGraph.Visit(v, func(w int, c int64) bool {
			undirected.AddCost(w, v, c)
			return false
		})
	}
	path, dist := graph.ShortestPath(undirected, fromIdx, toIdx)
	if dist < 0 {
		return nil, nil
	}

	tables := make([]string, 0, len(path))
	for _, idx := range path {
		tables = append(tables, se.IndexTableMap[idx])
	}
	return tables, nil
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
