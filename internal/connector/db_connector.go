package connector

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	"github.com/knaw-huc/pipeline-airflow/internal/config"
	grapherr "github.com/knaw-huc/pipeline-airflow/pkg/errors"
	"github.com/knaw-huc/pipeline-airflow/pkg/models"
	"github.com/sirupsen/logrus"
)

// DatabaseConnector reads tables straight from the MySQL database behind the API
type DatabaseConnector struct {
	Host     string
	User     string
	Password string
	Database string
	Port     string
	DB       *sql.DB
	Logger   *logrus.Logger
}

// NewDatabaseConnector creates a new database connector
func NewDatabaseConnector(params config.DatabaseConfig, logger *logrus.Logger) *DatabaseConnector {
	if params.Host == "" {
		params.Host = getEnvOrDefault("MYSQL_HOST", "localhost")
	}
	if params.User == "" {
		params.User = getEnvOrDefault("MYSQL_USER", "root")
	}
	if params.Password == "" {
		params.Password = getEnvOrDefault("MYSQL_PASSWORD", "")
	}
	if params.Name == "" {
		params.Name = getEnvOrDefault("MYSQL_DATABASE", "")
	}
	if params.Port == "" {
		params.Port = getEnvOrDefault("MYSQL_PORT", "3306")
	}

	return &DatabaseConnector{
		Host:     params.Host,
		User:     params.User,
		Password: params.Password,
		Database: params.Name,
		Port:     params.Port,
		Logger:   logger,
	}
}

// Connect establishes a connection to the MySQL database
func (dc *DatabaseConnector) Connect() error {
	if dc.Database == "" {
		return fmt.Errorf("database name must be provided either as an argument or as MYSQL_DATABASE environment variable")
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true", dc.User, dc.Password, dc.Host, dc.Port, dc.Database)
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		dc.Logger.Errorf("Error connecting to MySQL database: %v", err)
		return err
	}

	// Test the connection
	err = db.Ping()
	if err != nil {
		dc.Logger.Errorf("Error pinging MySQL database: %v", err)
		return err
	}

	dc.DB = db
	dc.Logger.Infof("Connected to MySQL database: %s", dc.Database)
	return nil
}

// Disconnect closes the database connection
func (dc *DatabaseConnector) Disconnect() {
	if dc.DB != nil {
		err := dc.DB.Close()
		if err != nil {
			dc.Logger.Errorf("Error closing database connection: %v", err)
		} else {
			dc.Logger.Info("MySQL connection closed")
		}
	}
}

// ExecuteQuery executes a SQL query and returns the results
func (dc *DatabaseConnector) ExecuteQuery(ctx context.Context, query string, params ...interface{}) ([]map[string]interface{}, error) {
	if dc.DB == nil {
		if err := dc.Connect(); err != nil {
			return nil, err
		}
	}

	rows, err := dc.DB.QueryContext(ctx, query, params...)
	if err != nil {
		dc.Logger.Errorf("Error executing query: %v", err)
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		dc.Logger.Errorf("Error getting columns: %v", err)
		return nil, err
	}

	var results []map[string]interface{}

	for rows.Next() {
		// Create a slice of interface{} to hold the values
		values := make([]interface{}, len(columns))
		// Create a slice of pointers to the values
		valuePtrs := make([]interface{}, len(columns))
		for i := range columns {
			valuePtrs[i] = &values[i]
		}

		// Scan the result into the pointers
		if err := rows.Scan(valuePtrs...); err != nil {
			dc.Logger.Errorf("Error scanning row: %v", err)
			return nil, err
		}

		// Create a map for this row
		row := make(map[string]interface{})
		for i, col := range columns {
			val := values[i]
			// Convert []byte to string for text fields
			if b, ok := val.([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = val
			}
		}

		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		dc.Logger.Errorf("Error iterating rows: %v", err)
		return nil, err
	}

	return results, nil
}

// Catalog lists the base tables of the database
func (dc *DatabaseConnector) Catalog(ctx context.Context) (map[string]string, error) {
	// Aliases pin the label case; MySQL 8 reports information_schema columns in upper case
	tablesQuery := `
		SELECT table_name AS table_name
		FROM information_schema.tables
		WHERE table_schema = ?
		AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`
	result, err := dc.ExecuteQuery(ctx, tablesQuery, dc.Database)
	if err != nil {
		return nil, grapherr.Wrap(err, grapherr.CodeFetchQueryFailure, "listing tables")
	}

	tables := make(map[string]string, len(result))
	for _, row := range result {
		name := models.FormatScalar(row["table_name"])
		tables[name] = fmt.Sprintf("mysql://%s:%s/%s/%s", dc.Host, dc.Port, dc.Database, name)
	}

	return tables, nil
}

// Probe builds the first page of a table: its columns, its foreign keys and
// at most one row
func (dc *DatabaseConnector) Probe(ctx context.Context, table string) (*models.Page, error) {
	columnsQuery := `
		SELECT column_name AS column_name
		FROM information_schema.columns
		WHERE table_schema = ?
		AND table_name = ?
		ORDER BY ordinal_position
	`
	columnsResult, err := dc.ExecuteQuery(ctx, columnsQuery, dc.Database, table)
	if err != nil {
		return nil, grapherr.Wrap(err, grapherr.CodeFetchQueryFailure, "reading columns", grapherr.FieldTable(table))
	}
	if len(columnsResult) == 0 {
		return nil, grapherr.New(grapherr.CodeTableNotFound, "table has no columns", grapherr.FieldTable(table))
	}

	fkQuery := `
		SELECT
			column_name AS column_name,
			referenced_table_name AS referenced_table_name
		FROM information_schema.key_column_usage
		WHERE table_schema = ?
		AND table_name = ?
		AND referenced_table_name IS NOT NULL
		ORDER BY column_name
	`
	fkResult, err := dc.ExecuteQuery(ctx, fkQuery, dc.Database, table)
	if err != nil {
		return nil, grapherr.Wrap(err, grapherr.CodeFetchQueryFailure, "reading foreign keys", grapherr.FieldTable(table))
	}

	page := &models.Page{}
	for _, row := range columnsResult {
		page.Metadata.Fields = append(page.Metadata.Fields, models.FormatScalar(row["column_name"]))
	}
	page.Metadata.ForeignKeys = make(map[string]string, len(fkResult))
	for _, row := range fkResult {
		page.Metadata.ForeignKeys[models.FormatScalar(row["column_name"])] = models.FormatScalar(row["referenced_table_name"])
	}

	rows, err := dc.ExecuteQuery(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT 1", quoteIdentifier(table)))
	if err != nil {
		return nil, grapherr.Wrap(err, grapherr.CodeFetchQueryFailure, "sampling rows", grapherr.FieldTable(table))
	}
	for _, row := range rows {
		page.Results = append(page.Results, models.Record(row))
	}

	return page, nil
}

// TableRows reads every row of a table
func (dc *DatabaseConnector) TableRows(ctx context.Context, table string) ([]models.Record, error) {
	result, err := dc.ExecuteQuery(ctx, fmt.Sprintf("SELECT * FROM %s", quoteIdentifier(table)))
	if err != nil {
		return nil, grapherr.Wrap(err, grapherr.CodeFetchQueryFailure, "reading rows", grapherr.FieldTable(table))
	}

	records := make([]models.Record, 0, len(result))
	for _, row := range result {
		records = append(records, models.Record(row))
	}
	return records, nil
}

func quoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// getEnvOrDefault gets an environment variable or returns a default value
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
