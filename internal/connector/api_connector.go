package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/knaw-huc/pipeline-airflow/internal/config"
	grapherr "github.com/knaw-huc/pipeline-airflow/pkg/errors"
	"github.com/knaw-huc/pipeline-airflow/pkg/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// APIConnector reads tables from the paginated relational API
type APIConnector struct {
	BaseURL string
	Client  *http.Client
	Limiter *rate.Limiter
	Logger  *logrus.Logger
}

// NewAPIConnector creates a new API connector
func NewAPIConnector(cfg config.APIConfig, logger *logrus.Logger) *APIConnector {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &APIConnector{
		BaseURL: cfg.BaseURL,
		Client:  &http.Client{Timeout: timeout},
		Limiter: rate.NewLimiter(limit, burst),
		Logger:  logger,
	}
}

// Catalog returns every table the API exposes, mapped to its endpoint
func (ac *APIConnector) Catalog(ctx context.Context) (map[string]string, error) {
	ac.Logger.Infof("Fetching endpoints from %s", ac.BaseURL)

	var tables map[string]string
	if err := ac.getJSON(ctx, ac.BaseURL, &tables); err != nil {
		return nil, err
	}

	return tables, nil
}

// Probe fetches the first page of a table with a single row; the page
// carries the table metadata
func (ac *APIConnector) Probe(ctx context.Context, table string) (*models.Page, error) {
	endpoint, err := url.Parse(config.JoinURL(ac.BaseURL, strings.ToLower(table)))
	if err != nil {
		return nil, grapherr.Wrap(err, grapherr.CodeFetchRequestFailure, "building probe URL", grapherr.FieldTable(table))
	}

	query := endpoint.Query()
	query.Set("page", strconv.Itoa(1))
	query.Set("page_size", strconv.Itoa(1))
	endpoint.RawQuery = query.Encode()

	var page models.Page
	if err := ac.getJSON(ctx, endpoint.String(), &page); err != nil {
		return nil, grapherr.With(err, grapherr.FieldTable(table))
	}

	return &page, nil
}

// TableRows fetches every row of a table, following the next links until
// the last page. A next link that points back at a fetched page is an error.
func (ac *APIConnector) TableRows(ctx context.Context, table string) ([]models.Record, error) {
	var rows []models.Record
	next := config.JoinURL(ac.BaseURL, strings.ToLower(table))
	seen := make(map[string]bool)

	for next != "" {
		if seen[next] {
			return nil, grapherr.New(grapherr.CodeFetchPaginationLoop, "pagination links loop back to a fetched page",
				grapherr.FieldTable(table), grapherr.FieldURL(next), grapherr.Field("pages", len(seen)))
		}
		seen[next] = true
		ac.Logger.Debugf("Fetching data from: %s", next)

		var page models.Page
		if err := ac.getJSON(ctx, next, &page); err != nil {
			return nil, grapherr.With(err, grapherr.FieldTable(table))
		}

		rows = append(rows, page.Results...)

		next = ""
		if page.Links.Next != nil {
			next = *page.Links.Next
		}
	}

	return rows, nil
}

func (ac *APIConnector) getJSON(ctx context.Context, target string, out interface{}) error {
	if err := ac.Limiter.Wait(ctx); err != nil {
		return grapherr.Wrap(err, grapherr.CodeFetchRequestFailure, "waiting for rate limiter", grapherr.FieldURL(target))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return grapherr.Wrap(err, grapherr.CodeFetchRequestFailure, "building request", grapherr.FieldURL(target))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := ac.Client.Do(req)
	if err != nil {
		return grapherr.Wrap(err, grapherr.CodeFetchRequestFailure, "requesting "+target, grapherr.FieldURL(target))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return grapherr.New(grapherr.CodeFetchResponseStatus,
			fmt.Sprintf("error fetching %s: %d", target, resp.StatusCode),
			grapherr.FieldURL(target), grapherr.Field("status", resp.StatusCode))
	}

	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	if err := decoder.Decode(out); err != nil {
		return grapherr.Wrap(err, grapherr.CodeFetchDecodeFailure, "decoding response", grapherr.FieldURL(target))
	}

	return nil
}
