package config

const (
	// DefaultDatabasePath is the default path for the main application database
	DefaultDatabasePath = "./shelfmark.db"

	// DefaultErrorBudget is how many malformed clippings blocks an import
	// tolerates before the whole file is rejected
	DefaultErrorBudget = 25
)
