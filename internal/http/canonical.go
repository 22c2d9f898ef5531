package http

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/shelfmark/shelfmark/internal/database/books"
	canonicalRepo "github.com/shelfmark/shelfmark/internal/database/canonical"
	"github.com/shelfmark/shelfmark/internal/tasks"
)

// CanonicalController exposes the canonical catalog: provisional records
// awaiting reconciliation, per-record resolution history, and a manual
// trigger that enqueues a re-resolution task.
type CanonicalController struct {
	canonical  *canonicalRepo.Repository
	books      *books.Repository
	taskClient *tasks.Client
}

func NewCanonicalController(canonical *canonicalRepo.Repository, booksRepo *books.Repository, taskClient *tasks.Client) *CanonicalController {
	return &CanonicalController{
		canonical:  canonical,
		books:      booksRepo,
		taskClient: taskClient,
	}
}

// ListProvisional returns unverified canonical records, oldest first.
func (c *CanonicalController) ListProvisional(ctx *gin.Context) {
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "100"))

	records, err := c.canonical.ListProvisional(limit)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve provisional records"})
		return
	}

	ctx.IndentedJSON(http.StatusOK, gin.H{
		"records": records,
		"count":   len(records),
	})
}

// GetCanonical returns one canonical record with the books linked to it.
func (c *CanonicalController) GetCanonical(ctx *gin.Context) {
	id, err := parseID(ctx, "id")
	if err != nil {
		return
	}

	record, err := c.canonical.GetCanonical(id)
	if err != nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "Canonical record not found"})
		return
	}

	linked, err := c.books.GetBooksByCanonicalID(id)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve linked books"})
		return
	}

	ctx.IndentedJSON(http.StatusOK, gin.H{
		"canonical": record,
		"books":     linked,
	})
}

// ListAudits returns the resolution history of one canonical record.
func (c *CanonicalController) ListAudits(ctx *gin.Context) {
	id, err := parseID(ctx, "id")
	if err != nil {
		return
	}

	audits, err := c.canonical.ListAuditsForCanonical(id)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve audit records"})
		return
	}

	ctx.IndentedJSON(http.StatusOK, gin.H{
		"audits": audits,
		"count":  len(audits),
	})
}

// Reconcile enqueues a background re-resolution for one canonical record.
func (c *CanonicalController) Reconcile(ctx *gin.Context) {
	id, err := parseID(ctx, "id")
	if err != nil {
		return
	}

	if c.taskClient == nil {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": "Task queue not configured"})
		return
	}

	if _, err := c.canonical.GetCanonical(id); err != nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "Canonical record not found"})
		return
	}

	if _, err := c.taskClient.Add(tasks.ResolveBookTask{CanonicalID: id}).Save(); err != nil {
		log.Printf("Enqueueing reconcile for canonical %d failed: %v", id, err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to enqueue reconciliation"})
		return
	}

	ctx.JSON(http.StatusAccepted, gin.H{"enqueued": id})
}
