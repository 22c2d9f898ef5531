package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/shelfmark/shelfmark/internal/clippings"
	"github.com/shelfmark/shelfmark/internal/database/sessions"
	"github.com/shelfmark/shelfmark/internal/entities"
	"github.com/shelfmark/shelfmark/internal/importer"
)

const defaultMaxUploadSize = 10 * 1024 * 1024 // 10 MB

type ImportController struct {
	coordinator   *importer.Coordinator
	sessions      *sessions.Repository
	maxUploadSize int64
}

func NewImportController(coordinator *importer.Coordinator, sessionsRepo *sessions.Repository, maxUploadSize int64) *ImportController {
	if maxUploadSize <= 0 {
		maxUploadSize = defaultMaxUploadSize
	}
	return &ImportController{
		coordinator:   coordinator,
		sessions:      sessionsRepo,
		maxUploadSize: maxUploadSize,
	}
}

type ImportResult struct {
	Success bool                    `json:"success"`
	Error   string                  `json:"error,omitempty"`
	Session *entities.ImportSession `json:"session,omitempty"`
}

// ImportClippings accepts a multipart clippings export and runs one import
// session synchronously. A rejected parse still reports the failed session so
// the caller can inspect the counters.
func (c *ImportController) ImportClippings(ctx *gin.Context) {
	file, header, err := ctx.Request.FormFile("clippings_file")
	if err != nil {
		ctx.JSON(http.StatusBadRequest, &ImportResult{
			Success: false,
			Error:   "Clippings file not provided",
		})
		return
	}
	defer file.Close()

	if header.Size > c.maxUploadSize {
		ctx.JSON(http.StatusBadRequest, &ImportResult{
			Success: false,
			Error:   fmt.Sprintf("File too large (max %d MB)", c.maxUploadSize/(1024*1024)),
		})
		return
	}

	limitedReader := io.LimitReader(file, c.maxUploadSize+1)

	session, err := c.coordinator.Run(ctx.Request.Context(), header.Filename, header.Size, limitedReader)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, clippings.ErrBudgetExceeded) {
			status = http.StatusUnprocessableEntity
		}
		ctx.JSON(status, &ImportResult{
			Success: false,
			Error:   err.Error(),
			Session: session,
		})
		return
	}

	ctx.IndentedJSON(http.StatusOK, &ImportResult{
		Success: true,
		Session: session,
	})
}

// ListSessions returns recent import sessions, most recent first.
func (c *ImportController) ListSessions(ctx *gin.Context) {
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "50"))

	list, err := c.sessions.GetSessions(limit)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve sessions"})
		return
	}

	ctx.IndentedJSON(http.StatusOK, gin.H{
		"sessions": list,
		"count":    len(list),
	})
}

// GetSession returns one import session by ID.
func (c *ImportController) GetSession(ctx *gin.Context) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 32)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session ID"})
		return
	}

	session, err := c.sessions.GetSession(uint(id))
	if err != nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}

	ctx.IndentedJSON(http.StatusOK, session)
}
