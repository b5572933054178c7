package populator

import (
	"github.com/knaw-huc/pipeline-airflow/internal/analyzer"
	"github.com/knaw-huc/pipeline-airflow/internal/config"
	"github.com/knaw-huc/pipeline-airflow/internal/connector"
	"github.com/knaw-huc/pipeline-airflow/internal/generator"
	"github.com/knaw-huc/pipeline-airflow/internal/utils"
	grapherr "github.com/knaw-huc/pipeline-airflow/pkg/errors"
	"github.com/sirupsen/logrus"
)

// OpenSource creates the row source named in the configuration. The returned
// function releases it.
func OpenSource(cfg *config.Config, logger *logrus.Logger) (analyzer.Source, func(), error) {
	switch cfg.Source {
	case "api":
		return connector.NewAPIConnector(cfg.API, logger), func() {}, nil
	case "mysql":
		if !utils.ValidateConnectionParams(cfg.Database, logger) {
			return nil, nil, grapherr.New(grapherr.CodeValidationConfig, "incomplete database connection parameters")
		}
		db := connector.NewDatabaseConnector(cfg.Database, logger)
		if err := db.Connect(); err != nil {
			return nil, nil, grapherr.Wrap(err, grapherr.CodeFetchRequestFailure, "connecting to database")
		}
		return db, db.Disconnect, nil
	case "synthetic":
		source, err := generator.NewSyntheticSourceFromConfig(cfg.Synthetic, logger)
		if err != nil {
			return nil, nil, err
		}
		return source, func() {}, nil
	default:
		return nil, nil, grapherr.Errorf(grapherr.CodeValidationConfig, "unknown source %q", cfg.Source)
	}
}
