package http

import (
	"github.com/shelfmark/shelfmark/internal/audit"
	"github.com/shelfmark/shelfmark/internal/canonical"
	"github.com/shelfmark/shelfmark/internal/database"
	"github.com/shelfmark/shelfmark/internal/database/books"
	canonicalRepo "github.com/shelfmark/shelfmark/internal/database/canonical"
	"github.com/shelfmark/shelfmark/internal/database/sessions"
	"github.com/shelfmark/shelfmark/internal/database/tags"
	"github.com/shelfmark/shelfmark/internal/importer"
	"github.com/shelfmark/shelfmark/internal/tasks"
)

// RouterConfig contains all dependencies and configuration needed to create
// the HTTP router. This replaces a long parameter list in NewRouter.
type RouterConfig struct {
	// Core dependencies
	Database    *database.Database
	Books       *books.Repository
	Sessions    *sessions.Repository
	Canonical   *canonicalRepo.Repository
	Tags        *tags.Repository
	Coordinator *importer.Coordinator
	Resolver    *canonical.Resolver

	// Audit trail (optional)
	AuditService *audit.Service

	// Retention carried into enqueued audit cleanup tasks
	AuditRetentionDays int

	// Task queue client (optional; canonical re-resolution endpoint needs it)
	TaskClient *tasks.Client

	// Upload limit in bytes; zero means the default
	MaxUploadSize int64

	// Application info
	Version string
}
