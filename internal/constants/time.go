package constants

const (
	// DateFormat is the standard date format used on disk and in the CLI (YYYY-MM-DD)
	DateFormat = "2006-01-02"

	// APIDateFormat is the strftime format the HTTP API uses when the caller
	// does not supply one
	APIDateFormat = "%d-%m-%Y"

	// TimestampFormat is used for created_at/updated_at columns
	TimestampFormat = "2006-01-02T15:04:05Z07:00"
)
