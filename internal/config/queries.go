package config

// Default SOQL queries of the reports. Each one can be overridden in config.yaml.
const (
	DefaultLeadHistoryQuery = `SELECT LeadId, Field, OldValue, NewValue, DataType, CreatedById, CreatedDate, Id,
Lead.SDROwner__c, Lead.SalesOwner__c, Lead.OwnerId, Lead.Owner.Name
FROM LeadHistory
WHERE (Field='ownerAssignment' or Field='Owner') and DataType='EntityId'`

	DefaultWonOpportunityQuery = `SELECT
Id, AccountId, Account.Name, Name, StageName, CreatedDate, CloseDate, Amount, OwnerId, Owner.Name, Owner.UserRegion__c, CurrencyIsoCode, Type
FROM Opportunity
WHERE RecordType.Name = 'Main Opportunity' and StageName = 'Closed Won' and CloseDate = THIS_FISCAL_YEAR`

	DefaultOpenOpportunityQuery = `SELECT
Id, AccountId, Account.Name, Name, StageName, CreatedDate, CloseDate, Amount, OwnerId, Owner.Name, Owner.UserRegion__c, CurrencyIsoCode, Type, Ramp_up_time_years__c, BusinessLine__c
FROM Opportunity
WHERE RecordType.Name = 'Main Opportunity' and StageName != 'Closed Won' and (CloseDate = THIS_FISCAL_YEAR)`

	DefaultForecastQuery = `SELECT
Id, Account__c, Account__r.Name, CreatedDate, Date__c, Amount__c, CreatedById, CreatedBy.Name, Account__r.Region__c, CurrencyIsoCode, Business_line__c, Product_Family__c
FROM Forecast__c
WHERE Account__c != null`

	DefaultOpenForecastQuery = DefaultForecastQuery
)

// DefaultTrackColumns returns the owner tracks of the lead owner report and their output columns
func DefaultTrackColumns() []TrackColumn {
	return []TrackColumn{
		{Track: "SDR Owner", Column: "SDROwner__c"},
		{Track: "Sales Owner", Column: "SalesOwner__c"},
	}
}

// DefaultNameColumns returns the display-name columns of the lead owner report
func DefaultNameColumns() []NameColumn {
	return []NameColumn{
		{Column: "SDR Owner Name", IDColumn: "SDROwner__c"},
		{Column: "Sales Owner Name", IDColumn: "SalesOwner__c"},
		{Column: "Admin Name", IDColumn: "Admin"},
	}
}
