package generator

import (
	"math/rand"
	"strings"
	"time"

	"github.com/jaswdr/faker"
	"github.com/sirupsen/logrus"
)

// ColumnSpec describes one column of a synthetic table
type ColumnSpec struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	References string `yaml:"references"`
	Nullable   bool   `yaml:"nullable"`
}

// DataGenerator generates fake values based on column names and types
type DataGenerator struct {
	Faker  faker.Faker
	Logger *logrus.Logger
}

// NewDataGenerator creates a data generator whose output is fixed by seed
func NewDataGenerator(seed int64, logger *logrus.Logger) *DataGenerator {
	return &DataGenerator{
		Faker:  faker.NewWithSeed(rand.NewSource(seed)),
		Logger: logger,
	}
}

// GenerateData generates a value for a non key column
func (dg *DataGenerator) GenerateData(table string, column ColumnSpec) interface{} {
	if column.Nullable && dg.Faker.IntBetween(0, 9) < 3 {
		return nil
	}

	columnName := strings.ToLower(column.Name)
	dataType := strings.ToLower(column.Type)

	// Types that carry structure win over column name hints
	switch dataType {
	case "point":
		return dg.generatePoint()
	case "bool", "boolean":
		return dg.Faker.IntBetween(0, 1) == 1
	}

	// Handle special column names
	switch {
	case strings.Contains(columnName, "email"):
		return dg.Faker.Internet().Email()
	case strings.Contains(columnName, "url") || strings.Contains(columnName, "uri") || strings.Contains(columnName, "website"):
		return dg.Faker.Internet().URL()
	case strings.Contains(columnName, "country"):
		return dg.Faker.Address().Country()
	case strings.Contains(columnName, "city") || strings.Contains(columnName, "place"):
		return dg.Faker.Address().City()
	case strings.Contains(columnName, "name"):
		if table == "person" || strings.Contains(columnName, "person") {
			return dg.Faker.Person().Name()
		}
		return dg.Faker.Address().City()
	case strings.Contains(columnName, "lat"):
		return dg.Faker.Address().Latitude()
	case strings.Contains(columnName, "lon"):
		return dg.Faker.Address().Longitude()
	case strings.Contains(columnName, "description") || strings.Contains(columnName, "note"):
		return dg.Faker.Lorem().Sentence(8)
	case strings.Contains(columnName, "title"):
		return dg.Faker.Lorem().Sentence(4)
	case strings.Contains(columnName, "code"):
		return strings.ToUpper(dg.Faker.RandomStringWithLength(2))
	}

	// Generate data based on data type
	switch dataType {
	case "int", "integer", "smallint", "bigint":
		return int64(dg.Faker.IntBetween(1, 2000))
	case "float", "double", "decimal":
		return float64(dg.Faker.IntBetween(0, 100000)) / 100
	case "date":
		return dg.generateDate().Format("2006-01-02")
	case "datetime", "timestamp":
		return dg.generateDate().Format(time.RFC3339)
	case "", "varchar", "char", "text", "string":
		return dg.Faker.Lorem().Word()
	default:
		dg.Logger.Warningf("No specific generator for type %s, using default string", dataType)
		return dg.Faker.Lorem().Word()
	}
}

// generatePoint generates a GeoJSON style point as the API serves it
func (dg *DataGenerator) generatePoint() map[string]interface{} {
	lng := float64(dg.Faker.IntBetween(-1800000, 1800000)) / 10000
	lat := float64(dg.Faker.IntBetween(-900000, 900000)) / 10000
	return map[string]interface{}{
		"type":        "Point",
		"coordinates": []interface{}{lng, lat},
	}
}

// generateDate generates a date between 1500 and 1900
func (dg *DataGenerator) generateDate() time.Time {
	year := dg.Faker.IntBetween(1500, 1899)
	day := dg.Faker.IntBetween(0, 364)
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, day)
}
