package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/knaw-huc/pipeline-airflow/internal/config"
	grapherr "github.com/knaw-huc/pipeline-airflow/pkg/errors"
	"github.com/knaw-huc/pipeline-airflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "api", cfg.Source)
	assert.Equal(t, "http://example.globalise.nl/temp", cfg.Context.BaseURI)
	assert.Equal(t, "output.ttl", cfg.OutputRDF)
	assert.Contains(t, cfg.Context.MiddleTables, "rulership2source")
	assert.Equal(t, "countrycode", cfg.Context.TableMap["ccode"])
	assert.Equal(t, []string{"relation"}, cfg.Context.AssociationIgnoreFields["location2externalid"])
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "graph.yaml")

	content := `
output_dir: /tmp/graph
context:
  base_uri: "https://data.example.org/gaz"
  main_entry_tables: ["location"]
  middle_tables: ["location2source "]
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o644))

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/graph", cfg.OutputDir)
	assert.Equal(t, "https://data.example.org/gaz", cfg.Context.BaseURI)
	assert.Equal(t, []string{"location2source"}, cfg.Context.MiddleTables)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("GRAPH_OUTPUT_DIR", "/srv/out")
	t.Setenv("MYSQL_HOST", "db.internal")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "/srv/out", cfg.OutputDir)
	assert.Equal(t, "db.internal", cfg.Database.Host)
}

func TestLoad_InvalidBaseURI(t *testing.T) {
	t.Setenv("GRAPH_CONTEXT_BASE_URI", "not a uri")

	_, err := config.Load("")
	require.Error(t, err)
	assert.True(t, grapherr.IsValidation(err))
}

func TestValidateBaseURI(t *testing.T) {
	assert.NoError(t, config.ValidateBaseURI("http://example.org/base"))
	assert.Error(t, config.ValidateBaseURI(""))
	assert.Error(t, config.ValidateBaseURI("/relative/path"))
	assert.Error(t, config.ValidateBaseURI("ftp://example.org/base"))
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := &config.Config{
		Source: "ftp",
		API:    config.APIConfig{RequestsPerSecond: 0, Concurrency: 0},
		Context: config.ContextConfig{
			BaseURI:         "",
			MainEntryTables: []string{"location"},
			MiddleTables:    []string{"location"},
		},
	}

	errs := cfg.Validate()
	assert.Len(t, errs, 5)
}

func TestSettings_Classify(t *testing.T) {
	settings := config.NewSettings(config.ContextConfig{
		BaseURI:         "http://example.org/base/",
		MainEntryTables: []string{"location"},
		MiddleTables:    []string{"location2source"},
		StopTables:      []string{"user"},
	})

	assert.Equal(t, models.MainEntry, settings.Classify("location"))
	assert.Equal(t, models.Association, settings.Classify("location2source"))
	assert.Equal(t, models.Stop, settings.Classify("user"))
	assert.Equal(t, models.Resource, settings.Classify("countrycode"))
	assert.True(t, settings.IsStopTable("user"))
}

func TestSettings_AliasAndIRI(t *testing.T) {
	settings := config.NewSettings(config.ContextConfig{
		BaseURI:  "http://example.org/base/",
		TableMap: map[string]string{"ccode": "countrycode"},
	})

	assert.Equal(t, "countrycode", settings.TableAlias("ccode"))
	assert.Equal(t, "location", settings.TableAlias("location"))
	assert.Equal(t, "http://example.org/base/location/12", settings.IRI("location", "12"))
	assert.Equal(t, "http://a/b/c", config.JoinURL("http://a/", "/b/", "c"))

	alias, ok := settings.FieldAlias("ccode")
	assert.True(t, ok)
	assert.Equal(t, "countrycode", alias)
}
