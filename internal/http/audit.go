package http

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/shelfmark/shelfmark/internal/audit"
	"github.com/shelfmark/shelfmark/internal/entities"
	"github.com/shelfmark/shelfmark/internal/tasks"
)

type AuditController struct {
	auditService  *audit.Service
	taskClient    *tasks.Client
	retentionDays int
}

func NewAuditController(auditService *audit.Service, taskClient *tasks.Client, retentionDays int) *AuditController {
	return &AuditController{
		auditService:  auditService,
		taskClient:    taskClient,
		retentionDays: retentionDays,
	}
}

// GetEvents returns paginated audit events, optionally filtered by type.
func (a *AuditController) GetEvents(ctx *gin.Context) {
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(ctx.DefaultQuery("offset", "0"))

	var (
		events []entities.AuditEvent
		total  int64
		err    error
	)
	if eventType := ctx.Query("type"); eventType != "" {
		events, total, err = a.auditService.GetEventsByType(entities.AuditEventType(eventType), limit, offset)
	} else {
		events, total, err = a.auditService.GetEvents(limit, offset)
	}
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve audit events"})
		return
	}

	ctx.IndentedJSON(http.StatusOK, gin.H{
		"events": events,
		"total":  total,
	})
}

// Cleanup enqueues deletion of audit events older than the configured
// retention period.
func (a *AuditController) Cleanup(ctx *gin.Context) {
	if a.taskClient == nil {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": "Task queue not configured"})
		return
	}

	ids, err := a.taskClient.Add(tasks.CleanupAuditEventsTask{RetentionDays: a.retentionDays}).Save()
	if err != nil {
		log.Printf("Enqueueing audit event cleanup failed: %v", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to enqueue cleanup"})
		return
	}

	ctx.JSON(http.StatusAccepted, gin.H{
		"message":        "Audit event cleanup enqueued",
		"task_id":        ids[0],
		"retention_days": a.retentionDays,
	})
}
