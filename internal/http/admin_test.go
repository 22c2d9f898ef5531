package http

import (
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfmark/shelfmark/internal/audit"
	"github.com/shelfmark/shelfmark/internal/canonical"
	"github.com/shelfmark/shelfmark/internal/database"
	auditRepo "github.com/shelfmark/shelfmark/internal/database/audit"
	"github.com/shelfmark/shelfmark/internal/database/books"
	canonicalRepo "github.com/shelfmark/shelfmark/internal/database/canonical"
	"github.com/shelfmark/shelfmark/internal/database/sessions"
	"github.com/shelfmark/shelfmark/internal/database/tags"
	"github.com/shelfmark/shelfmark/internal/importer"
	"github.com/shelfmark/shelfmark/internal/tasks"
)

// setupAdminRouter wires the router the way the server does: with a live
// task queue and an audit trail. Workers never start; the tests only assert
// that cleanup requests land in the queue.
func setupAdminRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := database.NewDatabase(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	taskCfg := tasks.DefaultConfig()
	taskCfg.Workers = 1
	taskClient, err := tasks.NewClient(dbPath, taskCfg)
	require.NoError(t, err)
	t.Cleanup(func() { taskClient.Close() })

	booksRepo := books.NewRepository(db.DB)
	sessionsRepo := sessions.NewRepository(db.DB)
	canonRepo := canonicalRepo.NewRepository(db.DB)
	tagsRepo := tags.NewRepository(db.DB)
	auditService := audit.NewService(auditRepo.NewRepository(db.DB))

	provider := &stubProvider{search: perfectMatch}
	resolver := canonical.NewResolver(provider, canonRepo,
		gocache.New(time.Minute, time.Minute),
		canonical.DefaultWeights, canonical.DefaultThresholds, time.Second)

	coordinator := importer.NewCoordinator(db, booksRepo, sessionsRepo, resolver, nil, nil, 0)

	return NewRouter(RouterConfig{
		Database:           db,
		Books:              booksRepo,
		Sessions:           sessionsRepo,
		Canonical:          canonRepo,
		Tags:               tagsRepo,
		Coordinator:        coordinator,
		Resolver:           resolver,
		AuditService:       auditService,
		AuditRetentionDays: 30,
		TaskClient:         taskClient,
		Version:            "test",
	})
}

func TestAdminCleanupEndpoints(t *testing.T) {
	router := setupAdminRouter(t)

	t.Run("orphan tag cleanup is enqueued", func(t *testing.T) {
		w, response := doJSON(t, router, "POST", "/api/admin/tags/cleanup", nil)

		assert.Equal(t, http.StatusAccepted, w.Code)
		assert.NotEmpty(t, response["task_id"])
	})

	t.Run("audit cleanup carries the configured retention", func(t *testing.T) {
		w, response := doJSON(t, router, "POST", "/api/admin/audit/cleanup", nil)

		assert.Equal(t, http.StatusAccepted, w.Code)
		assert.NotEmpty(t, response["task_id"])
		assert.Equal(t, float64(30), response["retention_days"])
	})
}

func TestAdminCleanupWithoutTaskQueue(t *testing.T) {
	env := setupRouter(t)

	w, response := doJSON(t, env.router, "POST", "/api/admin/tags/cleanup", nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, response["error"], "Task queue")
}
