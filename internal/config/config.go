package config

import (
	"errors"
	"net/url"
	"strings"
	"time"

	grapherr "github.com/knaw-huc/pipeline-airflow/pkg/errors"
	"github.com/spf13/viper"
)

// Config is the top-level materializer configuration.
type Config struct {
	LogLevel     string          `mapstructure:"log_level"`
	Source       string          `mapstructure:"source"`
	OutputDir    string          `mapstructure:"output_dir"`
	OutputJSONLD string          `mapstructure:"output_jsonld"`
	OutputRDF    string          `mapstructure:"output_rdf"`
	API          APIConfig       `mapstructure:"api"`
	Database     DatabaseConfig  `mapstructure:"database"`
	Synthetic    SyntheticConfig `mapstructure:"synthetic"`
	Context      ContextConfig   `mapstructure:"context"`
	Split        SplitConfig     `mapstructure:"split"`
}

// APIConfig controls access to the paginated relational API.
type APIConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	Concurrency       int           `mapstructure:"concurrency"`
}

// DatabaseConfig holds the MySQL connection used by the direct database source.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	Port     string `mapstructure:"port"`
}

// SyntheticConfig drives the offline faker-backed source.
type SyntheticConfig struct {
	SchemaFile string `mapstructure:"schema_file"`
	Rows       int    `mapstructure:"rows"`
	Seed       int64  `mapstructure:"seed"`
}

// ContextConfig describes how tables and fields become graph terms.
type ContextConfig struct {
	BaseURI                 string              `mapstructure:"base_uri"`
	UniqueFields            []string            `mapstructure:"unique_fields"`
	StopTables              []string            `mapstructure:"stop_tables"`
	MiddleTables            []string            `mapstructure:"middle_tables"`
	MainEntryTables         []string            `mapstructure:"main_entry_tables"`
	LocationTables          []string            `mapstructure:"location_tables"`
	TableMap                map[string]string   `mapstructure:"table_map"`
	AssociationIgnoreFields map[string][]string `mapstructure:"association_ignore_fields"`
}

// SplitConfig controls partitioning of a materialized graph.
type SplitConfig struct {
	TypeIRI string `mapstructure:"type_iri"`
	Dir     string `mapstructure:"dir"`
	Prefix  string `mapstructure:"prefix"`
}

var validSources = map[string]bool{"api": true, "mysql": true, "synthetic": true}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides (prefix GRAPH_).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Environment
	v.SetEnvPrefix("GRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("database.host", "GRAPH_DATABASE_HOST", "MYSQL_HOST")
	_ = v.BindEnv("database.user", "GRAPH_DATABASE_USER", "MYSQL_USER")
	_ = v.BindEnv("database.password", "GRAPH_DATABASE_PASSWORD", "MYSQL_PASSWORD")
	_ = v.BindEnv("database.name", "GRAPH_DATABASE_NAME", "MYSQL_DATABASE")
	_ = v.BindEnv("database.port", "GRAPH_DATABASE_PORT", "MYSQL_PORT")

	// File
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, grapherr.Errorf(grapherr.CodeValidationConfig, "reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, grapherr.Errorf(grapherr.CodeValidationConfig, "unmarshalling config: %w", err)
	}
	cfg.normalize()

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, grapherr.Errorf(grapherr.CodeValidationConfig, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("source", "api")
	v.SetDefault("output_dir", "output")
	v.SetDefault("output_jsonld", "output.jsonld")
	v.SetDefault("output_rdf", "output.ttl")

	v.SetDefault("api.base_url", "http://localhost/api/")
	v.SetDefault("api.timeout", 10*time.Second)
	v.SetDefault("api.requests_per_second", 20.0)
	v.SetDefault("api.burst", 5)
	v.SetDefault("api.concurrency", 4)

	v.SetDefault("database.port", "3306")

	v.SetDefault("synthetic.rows", 10)
	v.SetDefault("synthetic.seed", 1)

	v.SetDefault("context.base_uri", "http://example.globalise.nl/temp")
	v.SetDefault("context.unique_fields", []string{"id", "@type"})
	v.SetDefault("context.stop_tables", []string{
		"logentry", "permission", "group", "user", "contenttype", "session",
		"postgisgeometrycolumns", "postgisspatialrefsys", "places", "document", "page",
	})
	v.SetDefault("context.middle_tables", []string{
		"timespan2source", "polity2source", "politylabel2source", "rulership2source",
		"rulershiplabel2source", "rulergender2source", "ruler2source", "rulerlabel2source",
		"reign2source", "location2countrycode", "location2coordsource", "location2source",
		"location2externalid", "location2type", "locationtype2source", "locationlabel2source",
		"locationpartof2source", "shiplabel2source", "ship2externalid", "ship2type",
		"ship2source", "event2source", "event2location", "translocation2externalid",
		"translocation2source", "translocation2location", "locationlabel", "document2externalid",
		"document2type", "page2document",
	})
	v.SetDefault("context.main_entry_tables", []string{
		"polity", "politylabel", "reign", "ruler", "rulership", "rulershiplabel", "rulerlabel",
		"shiplabel", "location", "event", "translocation",
	})
	v.SetDefault("context.location_tables", []string{"location"})
	v.SetDefault("context.table_map", map[string]string{
		"ccode":             "countrycode",
		"lifespan":          "timespan",
		"part_of":           "locationpartof",
		"external_id":       "externalid",
		"child_location":    "location",
		"parent_location":   "location",
		"predecessor":       "reign",
		"successor":         "reign",
		"locationtype":      "location2type",
		"location_relation": "locationpartof",
	})
	v.SetDefault("context.association_ignore_fields", map[string][]string{
		"location2externalid": {"relation"},
	})

	v.SetDefault("split.type_iri", "http://www.cidoc-crm.org/cidoc-crm/E53_Place")
	v.SetDefault("split.dir", "fragments")
	v.SetDefault("split.prefix", "")
}

// normalize trims stray whitespace from table lists; hand-maintained lists
// tend to pick some up.
func (c *Config) normalize() {
	trim := func(values []string) []string {
		out := make([]string, 0, len(values))
		for _, value := range values {
			if value = strings.TrimSpace(value); value != "" {
				out = append(out, value)
			}
		}
		return out
	}
	c.Context.UniqueFields = trim(c.Context.UniqueFields)
	c.Context.StopTables = trim(c.Context.StopTables)
	c.Context.MiddleTables = trim(c.Context.MiddleTables)
	c.Context.MainEntryTables = trim(c.Context.MainEntryTables)
	c.Context.LocationTables = trim(c.Context.LocationTables)
	c.Source = strings.ToLower(strings.TrimSpace(c.Source))
}

// Validate checks the configuration for logical errors.
// It returns a slice of all validation errors found, collecting all issues
// rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	if !validSources[c.Source] {
		errs = append(errs, grapherr.Errorf(grapherr.CodeValidationConfig,
			"config: source must be one of [api, mysql, synthetic], got %q", c.Source))
	}

	if err := ValidateBaseURI(c.Context.BaseURI); err != nil {
		errs = append(errs, err)
	}

	errs = append(errs, c.validateAPI()...)
	errs = append(errs, c.validateTables()...)

	if c.Source == "synthetic" && c.Synthetic.SchemaFile == "" {
		errs = append(errs, grapherr.Errorf(grapherr.CodeValidationConfig,
			"config: synthetic.schema_file is required for the synthetic source"))
	}

	return errs
}

func (c *Config) validateAPI() []error {
	var errs []error

	if c.Source == "api" {
		if _, err := url.ParseRequestURI(c.API.BaseURL); err != nil || c.API.BaseURL == "" {
			errs = append(errs, grapherr.Errorf(grapherr.CodeValidationConfig,
				"config: api.base_url must be an absolute URL, got %q", c.API.BaseURL))
		}
	}
	if c.API.RequestsPerSecond <= 0 {
		errs = append(errs, grapherr.Errorf(grapherr.CodeValidationConfig,
			"config: api.requests_per_second must be positive, got %v", c.API.RequestsPerSecond))
	}
	if c.API.Concurrency < 1 {
		errs = append(errs, grapherr.Errorf(grapherr.CodeValidationConfig,
			"config: api.concurrency must be at least 1, got %d", c.API.Concurrency))
	}

	return errs
}

func (c *Config) validateTables() []error {
	var errs []error

	middle := make(map[string]bool, len(c.Context.MiddleTables))
	for _, table := range c.Context.MiddleTables {
		middle[table] = true
	}
	for _, table := range c.Context.MainEntryTables {
		if middle[table] {
			errs = append(errs, grapherr.Errorf(grapherr.CodeValidationConfig,
				"config: table %q cannot be both a main entry table and a middle table", table))
		}
	}

	return errs
}

// ValidateBaseURI checks that uri can serve as the root namespace of generated IRIs.
func ValidateBaseURI(uri string) error {
	parsed, err := url.Parse(uri)
	if err != nil || uri == "" || !parsed.IsAbs() || parsed.Host == "" {
		return grapherr.New(grapherr.CodeValidationBaseURI,
			"config: context.base_uri must be an absolute http(s) URI",
			grapherr.Field("base_uri", uri))
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return grapherr.New(grapherr.CodeValidationBaseURI,
			"config: context.base_uri must use http or https",
			grapherr.Field("base_uri", uri))
	}
	return nil
}
