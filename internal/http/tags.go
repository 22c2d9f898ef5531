package http

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/shelfmark/shelfmark/internal/database/tags"
	"github.com/shelfmark/shelfmark/internal/tasks"
)

type TagsController struct {
	tags       *tags.Repository
	taskClient *tasks.Client
}

func NewTagsController(tagsRepo *tags.Repository, taskClient *tasks.Client) *TagsController {
	return &TagsController{tags: tagsRepo, taskClient: taskClient}
}

func (t *TagsController) GetAllTags(ctx *gin.Context) {
	list, err := t.tags.GetAllTags()
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve tags"})
		return
	}

	ctx.IndentedJSON(http.StatusOK, gin.H{
		"tags":  list,
		"count": len(list),
	})
}

type CreateTagRequest struct {
	Name string `json:"name"`
}

func (t *TagsController) CreateTag(ctx *gin.Context) {
	var req CreateTagRequest
	if err := ctx.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Tag name is required"})
		return
	}

	tag, err := t.tags.GetOrCreateTag(strings.TrimSpace(req.Name))
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create tag"})
		return
	}

	ctx.IndentedJSON(http.StatusCreated, tag)
}

func (t *TagsController) DeleteTag(ctx *gin.Context) {
	id, err := parseID(ctx, "id")
	if err != nil {
		return
	}

	if err := t.tags.DeleteTag(id); err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete tag"})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"deleted": id})
}

// TagNote attaches a tag (created on demand) to a note.
func (t *TagsController) TagNote(ctx *gin.Context) {
	noteID, err := parseID(ctx, "id")
	if err != nil {
		return
	}

	var req CreateTagRequest
	if err := ctx.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Tag name is required"})
		return
	}

	tag, err := t.tags.GetOrCreateTag(strings.TrimSpace(req.Name))
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create tag"})
		return
	}

	if err := t.tags.AddTagToNote(noteID, tag.ID); err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to tag note"})
		return
	}

	ctx.IndentedJSON(http.StatusOK, tag)
}

func (t *TagsController) UntagNote(ctx *gin.Context) {
	noteID, err := parseID(ctx, "id")
	if err != nil {
		return
	}
	tagID, err := parseID(ctx, "tagId")
	if err != nil {
		return
	}

	if err := t.tags.RemoveTagFromNote(noteID, tagID); err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to untag note"})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"removed": tagID})
}

// CleanupOrphanTags enqueues a background sweep deleting tags no note
// references anymore.
func (t *TagsController) CleanupOrphanTags(ctx *gin.Context) {
	if t.taskClient == nil {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": "Task queue not configured"})
		return
	}

	ids, err := t.taskClient.Add(tasks.CleanupOrphanTagsTask{}).Save()
	if err != nil {
		log.Printf("Enqueueing orphan tag cleanup failed: %v", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to enqueue cleanup"})
		return
	}

	ctx.JSON(http.StatusAccepted, gin.H{
		"message": "Orphan tag cleanup enqueued",
		"task_id": ids[0],
	})
}
