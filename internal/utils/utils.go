package utils

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knaw-huc/pipeline-airflow/internal/config"
	"github.com/knaw-huc/pipeline-airflow/pkg/models"
	"github.com/sirupsen/logrus"
)

// SetupLogging configures the logging system
func SetupLogging(logLevel string) *logrus.Logger {
	// Create a new logger
	logger := logrus.New()

	// Get log level from environment variable or parameter
	levelStr := logLevel
	if levelStr == "" {
		levelStr = os.Getenv("GRAPH_LOG_LEVEL")
		if levelStr == "" {
			levelStr = "info"
		}
	}

	// Parse log level
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
	}

	// Configure logger
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	logger.SetOutput(os.Stdout)

	logger.Debugf("Logging configured with level: %s", level)
	return logger
}

// LoadEnvironmentVariables loads environment variables from .env file
func LoadEnvironmentVariables(envFile string, logger *logrus.Logger) bool {
	// Check if a sample .env file exists but not the actual .env file
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		sampleEnvFile := envFile + ".sample"
		if _, err := os.Stat(sampleEnvFile); err == nil {
			logger.Infof("No %s file found, but %s exists. Consider copying %s to %s and updating it.",
				envFile, sampleEnvFile, sampleEnvFile, envFile)
		}
		logger.Debugf("No %s file found, using existing environment variables", envFile)
		return false
	}

	if err := godotenv.Load(envFile); err != nil {
		logger.Warningf("Error loading %s file: %v", envFile, err)
		return false
	}
	logger.Infof("Loaded environment variables from %s", envFile)

	// Log all available GRAPH_* and MYSQL_* environment variables (for debugging)
	if logger.Level == logrus.DebugLevel {
		for _, env := range os.Environ() {
			if !strings.HasPrefix(env, "GRAPH_") && !strings.HasPrefix(env, "MYSQL_") {
				continue
			}
			parts := strings.SplitN(env, "=", 2)
			if len(parts) != 2 {
				continue
			}
			// Mask password
			if strings.HasSuffix(parts[0], "PASSWORD") {
				logger.Debugf("%s=********", parts[0])
			} else {
				logger.Debugf("%s=%s", parts[0], parts[1])
			}
		}
	}

	return true
}

// ValidateConnectionParams validates database connection parameters
func ValidateConnectionParams(db config.DatabaseConfig, logger *logrus.Logger) bool {
	if db.Host == "" {
		logger.Error("Database host is required")
		return false
	}

	if db.User == "" {
		logger.Error("Database user is required")
		return false
	}

	if db.Password == "" { // Empty password is allowed
		logger.Warning("Database password is empty")
	}

	if db.Name == "" {
		logger.Error("Database name is required")
		return false
	}

	if _, err := strconv.Atoi(db.Port); err != nil {
		logger.Errorf("Invalid port number: %s", db.Port)
		return false
	}

	return true
}

// PrintRelationAnalysis prints the tables reached from the root table
func PrintRelationAnalysis(w io.Writer, root string, relations models.RelationMap, distances map[string]int, settings *config.Settings) {
	tables := relations.Tables()

	fmt.Fprintln(w, "\n"+strings.Repeat("=", 80))
	fmt.Fprintln(w, "SCHEMA RELATION ANALYSIS REPORT")
	fmt.Fprintln(w, strings.Repeat("=", 80))

	// Basic statistics
	counts := make(map[models.TableCategory]int)
	for _, table := range tables {
		counts[settings.Classify(table)]++
	}

	fmt.Fprintln(w, "\n1. BASIC STATISTICS")
	fmt.Fprintf(w, "   Root table: %s\n", root)
	fmt.Fprintf(w, "   Related tables: %d\n", len(tables))
	fmt.Fprintf(w, "   Main entry tables: %d\n", counts[models.MainEntry])
	fmt.Fprintf(w, "   Resource tables: %d\n", counts[models.Resource])
	fmt.Fprintf(w, "   Association tables: %d\n", counts[models.Association])

	// Order tables by distance, then name
	sort.SliceStable(tables, func(i, j int) bool {
		if distances[tables[i]] != distances[tables[j]] {
			return distances[tables[i]] < distances[tables[j]]
		}
		return tables[i] < tables[j]
	})

	fmt.Fprintln(w, "\n2. TABLES BY DISTANCE")
	for i, table := range tables {
		relation := relations[table]
		fmt.Fprintf(w, "   %3d. %s (%s, distance %d)\n", i+1, table, settings.Classify(table), distances[table])
		if len(relation.Outgoing) > 0 {
			fmt.Fprintf(w, "        outgoing: %s\n", strings.Join(relation.Outgoing, ", "))
		}
		if len(relation.Incoming) > 0 {
			fmt.Fprintf(w, "        incoming: %s\n", strings.Join(relation.Incoming, ", "))
		}
	}

	fmt.Fprintln(w, "\n"+strings.Repeat("=", 80))
}

// PrintSummary prints a summary of the materialization run
func PrintSummary(w io.Writer, result *models.MaterializationResult) {
	fmt.Fprintln(w, "\n"+strings.Repeat("=", 50))
	fmt.Fprintln(w, "GRAPH MATERIALIZATION SUMMARY")
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintf(w, "Root table: %s (distance %d)\n", result.RootTable, result.Distance)
	fmt.Fprintf(w, "Tables processed: %d\n", len(result.Tables))
	fmt.Fprintf(w, "Nodes emitted: %d\n", result.NodeCount)
	fmt.Fprintf(w, "Triples serialized: %d\n", result.TripleCount)
	fmt.Fprintf(w, "Association links created: %d\n", result.LinksCreated)
	fmt.Fprintf(w, "Association links dropped: %d\n", result.LinksDropped)
	fmt.Fprintf(w, "Records outside linkage closure: %d\n", result.SkippedByLink)

	if result.JSONLDPath != "" {
		fmt.Fprintf(w, "\nJSON-LD written to: %s\n", result.JSONLDPath)
	}
	if result.TurtlePath != "" {
		fmt.Fprintf(w, "Turtle written to: %s\n", result.TurtlePath)
	}

	fmt.Fprintln(w, strings.Repeat("=", 50))
}

// PrintFragments prints the fragment files written by a split run
func PrintFragments(w io.Writer, fragments map[string]string) {
	keys := make([]string, 0, len(fragments))
	for key := range fragments {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	fmt.Fprintln(w, "\n"+strings.Repeat("=", 50))
	fmt.Fprintln(w, "GRAPH PARTITION SUMMARY")
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintf(w, "Fragments written: %d\n", len(keys))
	for _, key := range keys {
		fmt.Fprintf(w, "  - %s: %s\n", key, fragments[key])
	}
	fmt.Fprintln(w, strings.Repeat("=", 50))
}
