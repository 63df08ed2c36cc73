package forecast

import (
	"context"

	"github.com/feral-file/crm-reports/internal/report"
)

// SheetOpenOpportunityData holds the open opportunities of the fiscal year
const SheetOpenOpportunityData = "Open Opportunity Data"

// RunOpenOpportunities extracts open opportunities and account forecasts side by side
func (p *Pipeline) RunOpenOpportunities(ctx context.Context) error {
	if err := requireOutput(p.files.OpenOpportunitiesOutput, "open_opportunities_output"); err != nil {
		return err
	}

	opportunities, forecasts, err := p.fetch(ctx, p.cfg.OpenOpportunityQuery, p.cfg.OpenForecastQuery)
	if err != nil {
		return err
	}

	return p.writer.Write(ctx, p.files.OpenOpportunitiesOutput, report.Mode(p.files.WriteMode),
		report.Sheet{Name: SheetOpenOpportunityData, Table: opportunities},
		report.Sheet{Name: SheetForecastData, Table: forecasts},
	)
}
