package domain

const (
	// MetadataField is the per-record metadata object the query API attaches to every record and sub-record
	MetadataField = "attributes"

	// DateTimeLayout is the layout of datetime fields returned by the query API (e.g. CreatedDate)
	DateTimeLayout = "2006-01-02T15:04:05.000-0700"

	// DateLayout is the layout of date fields returned by the query API (e.g. CloseDate)
	DateLayout = "2006-01-02"
)
