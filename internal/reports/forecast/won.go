package forecast

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/feral-file/crm-reports/internal/domain"
	"github.com/feral-file/crm-reports/internal/logger"
	"github.com/feral-file/crm-reports/internal/report"
	"github.com/feral-file/crm-reports/internal/table"
)

// Forecast types of a won opportunity
const (
	TypeNoForecast        = "No Forecast Created"
	TypeNewAfterWon       = "New Forecast Created After Won Oppo"
	TypeRecurringForecast = "Could be from Recurring Forecast"
)

// Columns added by attribution
const (
	ColumnForecastType    = "Forecast Type"
	ColumnAttributable    = "Attributable Forecasts"
	ColumnNotAttributable = "Not Attributable Forecasts"
)

// Sheets of the won opportunity workbook
const (
	SheetOpportunityData = "Opportunity Data"
	SheetForecastData    = "Forecast Data"
	SheetFinal           = "Final_raw"
)

// finalColumns maps query fields to the labels analysts read in the final sheet
var finalColumns = map[string]string{
	"Id":          "Oppo Id",
	"Name":        "Oppo Name",
	"Amount":      "Oppo Revenue",
	"CreatedDate": "Oppo Created Date",
	"CloseDate":   "Oppo Close Date",
	"Owner.Name":  "Oppo Owner",
	"OwnerId":     "Oppo Owner Id",
	"Type":        "Oppo Type",
}

// RunWonOpportunities attributes account forecasts to won opportunities and writes the workbook
func (p *Pipeline) RunWonOpportunities(ctx context.Context) error {
	if err := requireOutput(p.files.WonOpportunitiesOutput, "won_opportunities_output"); err != nil {
		return err
	}

	opportunities, forecasts, err := p.fetch(ctx, p.cfg.WonOpportunityQuery, p.cfg.ForecastQuery)
	if err != nil {
		return err
	}

	final := Finalize(Attribute(opportunities, forecasts))

	counts := make(map[string]int)
	for _, v := range final.Column(ColumnForecastType) {
		if s, ok := v.(string); ok {
			counts[s]++
		}
	}
	logger.InfoCtx(ctx, "Attributed forecasts to won opportunities",
		zap.Int("opportunities", final.Len()),
		zap.Int("no_forecast", counts[TypeNoForecast]),
		zap.Int("new_after_won", counts[TypeNewAfterWon]),
		zap.Int("recurring", counts[TypeRecurringForecast]))

	return p.writer.Write(ctx, p.files.WonOpportunitiesOutput, report.Mode(p.files.WriteMode),
		report.Sheet{Name: SheetOpportunityData, Table: opportunities},
		report.Sheet{Name: SheetForecastData, Table: forecasts},
		report.Sheet{Name: SheetFinal, Table: final},
	)
}

// Attribute returns a copy of opportunities with the forecast type of each one and the
// summed amounts of its account forecasts. A forecast created on or after the close
// date is attributable to the opportunity, an earlier one is not. Sums are nil when
// no forecast falls on that side.
func Attribute(opportunities, forecasts *table.Table) *table.Table {
	byAccount := make(map[string][]domain.FlatRecord)
	for _, f := range forecasts.Rows() {
		account := f.String(FieldForecastAccount)
		if account == "" {
			continue
		}
		byAccount[account] = append(byAccount[account], f)
	}

	out := table.New(append(opportunities.Columns(), ColumnForecastType, ColumnAttributable, ColumnNotAttributable)...)
	for _, o := range opportunities.Rows() {
		row := o.Clone()

		var attributable, notAttributable []domain.FlatRecord
		closeDate, hasClose := o[FieldCloseDate].(time.Time)
		for _, f := range byAccount[o.String(FieldAccountID)] {
			created, ok := f[FieldCreatedDate].(time.Time)
			if !ok || !hasClose {
				continue
			}
			if created.Before(closeDate) {
				notAttributable = append(notAttributable, f)
			} else {
				attributable = append(attributable, f)
			}
		}

		switch {
		case len(attributable) == 0:
			row[ColumnForecastType] = TypeNoForecast
		case len(notAttributable) == 0:
			row[ColumnForecastType] = TypeNewAfterWon
		default:
			row[ColumnForecastType] = TypeRecurringForecast
		}
		row[ColumnAttributable] = sumAmounts(attributable)
		row[ColumnNotAttributable] = sumAmounts(notAttributable)

		out.Append(row)
	}
	return out
}

// Finalize drops internal columns and renames query fields for the final sheet
func Finalize(attributed *table.Table) *table.Table {
	out := attributed.Clone()
	out.Drop(FieldOwnerRegion)
	out.Rename(finalColumns)
	return out
}

// sumAmounts adds up forecast amounts. Missing amounts count as zero; no forecasts yield nil.
func sumAmounts(forecasts []domain.FlatRecord) any {
	if len(forecasts) == 0 {
		return nil
	}
	var total float64
	for _, f := range forecasts {
		switch v := f[FieldForecastAmount].(type) {
		case float64:
			total += v
		case int:
			total += float64(v)
		case int64:
			total += float64(v)
		}
	}
	return total
}
