// Package http exposes the JSON API: clippings upload, import session
// tracking, book and note browsing, manual entry with interactive canonical
// confirmation, and the canonical catalog surface.
package http

import (
	"github.com/gin-gonic/gin"
)

// NewRouter creates and configures the HTTP router with all endpoints.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	health := NewHealthController(cfg.Database, cfg.Version)
	importController := NewImportController(cfg.Coordinator, cfg.Sessions, cfg.MaxUploadSize)
	booksController := NewBooksController(cfg.Books, cfg.AuditService)
	manualController := NewManualEntryController(cfg.Books, cfg.Database, cfg.Resolver)
	canonicalController := NewCanonicalController(cfg.Canonical, cfg.Books, cfg.TaskClient)
	tagsController := NewTagsController(cfg.Tags, cfg.TaskClient)

	router.GET("/health", health.Status)

	api := router.Group("/api")
	{
		api.POST("/import/clippings", importController.ImportClippings)
		api.GET("/import/sessions", importController.ListSessions)
		api.GET("/import/sessions/:id", importController.GetSession)

		api.GET("/books", booksController.GetAllBooks)
		api.GET("/books/stats", booksController.GetStats)
		api.GET("/books/:id", booksController.GetBook)
		api.GET("/books/:id/notes", booksController.GetNotes)
		api.DELETE("/books/:id", booksController.DeleteBook)
		api.DELETE("/notes/:id", booksController.DeleteNote)

		api.POST("/books/manual", manualController.Create)
		api.POST("/books/manual/confirm", manualController.ConfirmSelection)
		api.POST("/books/manual/none", manualController.ConfirmNone)

		api.GET("/canonical/provisional", canonicalController.ListProvisional)
		api.GET("/canonical/:id", canonicalController.GetCanonical)
		api.GET("/canonical/:id/audits", canonicalController.ListAudits)
		api.POST("/canonical/:id/reconcile", canonicalController.Reconcile)

		api.GET("/tags", tagsController.GetAllTags)
		api.POST("/tags", tagsController.CreateTag)
		api.DELETE("/tags/:id", tagsController.DeleteTag)
		api.POST("/notes/:id/tags", tagsController.TagNote)
		api.DELETE("/notes/:id/tags/:tagId", tagsController.UntagNote)

		api.POST("/admin/tags/cleanup", tagsController.CleanupOrphanTags)
	}

	if cfg.AuditService != nil {
		auditController := NewAuditController(cfg.AuditService, cfg.TaskClient, cfg.AuditRetentionDays)
		router.GET("/api/audit/events", auditController.GetEvents)
		router.POST("/api/admin/audit/cleanup", auditController.Cleanup)
	}

	return router
}
