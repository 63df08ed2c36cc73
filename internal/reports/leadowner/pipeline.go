package leadowner

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/feral-file/crm-reports/internal/adapter"
	"github.com/feral-file/crm-reports/internal/config"
	"github.com/feral-file/crm-reports/internal/domain"
	"github.com/feral-file/crm-reports/internal/history"
	"github.com/feral-file/crm-reports/internal/logger"
	"github.com/feral-file/crm-reports/internal/providers/salesforce"
	"github.com/feral-file/crm-reports/internal/reference"
	"github.com/feral-file/crm-reports/internal/report"
	"github.com/feral-file/crm-reports/internal/table"
)

// Field names of a flattened LeadHistory record
const (
	FieldLeadID      = "LeadId"
	FieldNewValue    = "NewValue"
	FieldOldValue    = "OldValue"
	FieldCreatedDate = "CreatedDate"
)

// SheetName is the worksheet the report is written to
const SheetName = "Final Output"

// relatedObjects are the sub-records a LeadHistory row carries
var relatedObjects = []string{"Lead", "Lead.Owner"}

// Pipeline builds the current SDR and sales owner of every lead from its owner history
type Pipeline struct {
	cfg    config.LeadOwnerConfig
	files  config.FilesConfig
	client salesforce.QueryClient
	fs     adapter.FileSystem
	clock  adapter.Clock
	writer report.Writer
}

// NewPipeline creates a new lead owner pipeline
func NewPipeline(cfg config.LeadOwnerConfig, files config.FilesConfig, client salesforce.QueryClient, fs adapter.FileSystem, clock adapter.Clock, writer report.Writer) *Pipeline {
	return &Pipeline{
		cfg:    cfg,
		files:  files,
		client: client,
		fs:     fs,
		clock:  clock,
		writer: writer,
	}
}

// Run loads the sales members, builds the report and writes it to the lead members workbook
func (p *Pipeline) Run(ctx context.Context) error {
	if p.files.SalesMembers == "" {
		return fmt.Errorf("%w: files.sales_members is required", domain.ErrInvalidConfig)
	}
	if p.files.LeadMembersOutput == "" {
		return fmt.Errorf("%w: files.lead_members_output is required", domain.ErrInvalidConfig)
	}

	ref, err := reference.Load(ctx, p.fs, p.files.SalesMembers, p.files.SalesMembersSheet)
	if err != nil {
		return err
	}

	out, err := p.Build(ctx, ref)
	if err != nil {
		return err
	}

	return p.writer.Write(ctx, p.files.LeadMembersOutput, report.Mode(p.files.WriteMode),
		report.Sheet{Name: SheetName, Table: out})
}

// Build fetches the lead history and returns one row per lead with a column per owner
// track and the display name of each configured owner column
func (p *Pipeline) Build(ctx context.Context, ref *reference.Table) (*table.Table, error) {
	records, err := p.client.FetchAll(ctx, p.cfg.Query, relatedObjects)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch lead history: %w", err)
	}

	entries, err := p.entries(records, ref)
	if err != nil {
		return nil, err
	}
	history.SortEntries(entries)

	state := history.Resolve(entries)
	logger.InfoCtx(ctx, "Resolved lead owners",
		zap.Int("history", len(records)),
		zap.Int("leads", len(state.Entities())),
		zap.Strings("tracks", state.Tracks()))

	out := state.Table(FieldLeadID)

	renames := make(map[string]string, len(p.cfg.TrackColumns))
	for _, tc := range p.cfg.TrackColumns {
		renames[tc.Track] = tc.Column
	}
	out.Rename(renames)

	lookups := make([]reference.Lookup, 0, len(p.cfg.NameColumns))
	for _, nc := range p.cfg.NameColumns {
		lookups = append(lookups, reference.Lookup{
			IDColumn: nc.IDColumn,
			Column:   nc.Column,
			Field:    reference.FieldName,
		})
	}

	return reference.JoinNames(out, ref, lookups), nil
}

// entries turns history records into resolver entries, labelling each value with
// the team of the member it refers to
func (p *Pipeline) entries(records []domain.FlatRecord, ref *reference.Table) ([]history.Entry, error) {
	entries := make([]history.Entry, 0, len(records))
	for i, record := range records {
		leadID := record.String(FieldLeadID)
		if leadID == "" {
			return nil, fmt.Errorf("%w: history record %d has no %s", domain.ErrMalformedRecord, i, FieldLeadID)
		}

		raw := record.String(FieldCreatedDate)
		changedAt, err := p.clock.Parse(domain.DateTimeLayout, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: history record %d has invalid %s %q: %w",
				domain.ErrMalformedRecord, i, FieldCreatedDate, raw, err)
		}

		entries = append(entries, history.Entry{
			EntityID:  leadID,
			ChangedAt: changedAt,
			NewValue:  record[FieldNewValue],
			OldValue:  record[FieldOldValue],
			NewTrack:  team(ref, record[FieldNewValue]),
			OldTrack:  team(ref, record[FieldOldValue]),
		})
	}
	return entries, nil
}

// team returns the team of the member a history value refers to, empty when unknown
func team(ref *reference.Table, value any) string {
	id, ok := value.(string)
	if !ok || id == "" {
		return ""
	}
	t, _ := ref.Field(id, reference.FieldTeam).(string)
	return t
}
