package forecast

import (
	"context"
	"fmt"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"github.com/feral-file/crm-reports/internal/adapter"
	"github.com/feral-file/crm-reports/internal/config"
	"github.com/feral-file/crm-reports/internal/domain"
	"github.com/feral-file/crm-reports/internal/logger"
	"github.com/feral-file/crm-reports/internal/providers/salesforce"
	"github.com/feral-file/crm-reports/internal/report"
	"github.com/feral-file/crm-reports/internal/table"
)

// Field names of flattened Opportunity records
const (
	FieldID          = "Id"
	FieldAccountID   = "AccountId"
	FieldCreatedDate = "CreatedDate"
	FieldCloseDate   = "CloseDate"
	FieldOwnerRegion = "Owner.UserRegion__c"
)

// Field names of flattened Forecast__c records
const (
	FieldForecastAccount = "Account__c"
	FieldForecastDate    = "Date__c"
	FieldForecastAmount  = "Amount__c"
)

var (
	opportunityRelated = []string{"Account", "Owner"}
	forecastRelated    = []string{"Account__r", "CreatedBy"}
)

// dateColumn is a column holding query API date strings
type dateColumn struct {
	name   string
	layout string
}

var (
	opportunityDates = []dateColumn{
		{name: FieldCreatedDate, layout: domain.DateTimeLayout},
		{name: FieldCloseDate, layout: domain.DateLayout},
	}
	forecastDates = []dateColumn{
		{name: FieldCreatedDate, layout: domain.DateTimeLayout},
		{name: FieldForecastDate, layout: domain.DateLayout},
	}
)

// Pipeline extracts opportunities with the account forecasts around them
type Pipeline struct {
	cfg    config.ForecastConfig
	files  config.FilesConfig
	client salesforce.QueryClient
	clock  adapter.Clock
	writer report.Writer
}

// NewPipeline creates a new opportunity and forecast pipeline
func NewPipeline(cfg config.ForecastConfig, files config.FilesConfig, client salesforce.QueryClient, clock adapter.Clock, writer report.Writer) *Pipeline {
	return &Pipeline{
		cfg:    cfg,
		files:  files,
		client: client,
		clock:  clock,
		writer: writer,
	}
}

// fetch runs the opportunity and forecast queries concurrently and returns both
// as tables with their date columns parsed
func (p *Pipeline) fetch(ctx context.Context, opportunityQuery, forecastQuery string) (opportunities, forecasts *table.Table, err error) {
	concurrency := p.cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	pool := pond.NewResultPool[*table.Table](concurrency, pond.WithContext(ctx))
	defer pool.StopAndWait()

	group := pool.NewGroup()
	group.SubmitErr(
		func() (*table.Table, error) {
			return p.fetchTable(ctx, "opportunities", opportunityQuery, opportunityRelated, opportunityDates)
		},
		func() (*table.Table, error) {
			return p.fetchTable(ctx, "forecasts", forecastQuery, forecastRelated, forecastDates)
		},
	)

	results, err := group.Wait()
	if err != nil {
		return nil, nil, err
	}

	return results[0], results[1], nil
}

// fetchTable runs one query and turns the records into a table ordered like the SELECT clause
func (p *Pipeline) fetchTable(ctx context.Context, name, query string, related []string, dates []dateColumn) (*table.Table, error) {
	records, err := p.client.FetchAll(ctx, query, related)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", name, err)
	}

	t := table.FromRecords(records, salesforce.SelectedFields(query))
	if err := parseDates(t, p.clock, dates); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", name, err)
	}

	logger.InfoCtx(ctx, "Fetched records", zap.String("object", name), zap.Int("rows", t.Len()))
	return t, nil
}

// parseDates replaces date strings with time values. Missing and empty values stay as they are.
func parseDates(t *table.Table, clock adapter.Clock, columns []dateColumn) error {
	for _, col := range columns {
		if !t.HasColumn(col.name) {
			continue
		}

		var parseErr error
		t.Set(col.name, func(row domain.FlatRecord) any {
			raw, ok := row[col.name].(string)
			if !ok || raw == "" || parseErr != nil {
				return row[col.name]
			}
			ts, err := clock.Parse(col.layout, raw)
			if err != nil {
				parseErr = fmt.Errorf("%w: %s %q: %w", domain.ErrMalformedRecord, col.name, raw, err)
				return row[col.name]
			}
			return ts
		})
		if parseErr != nil {
			return parseErr
		}
	}
	return nil
}

// requireOutput fails when the output workbook of a report is not configured
func requireOutput(path, key string) error {
	if path == "" {
		return fmt.Errorf("%w: files.%s is required", domain.ErrInvalidConfig, key)
	}
	return nil
}
