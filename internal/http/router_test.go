package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfmark/shelfmark/internal/canonical"
	"github.com/shelfmark/shelfmark/internal/database"
	"github.com/shelfmark/shelfmark/internal/database/books"
	canonicalRepo "github.com/shelfmark/shelfmark/internal/database/canonical"
	"github.com/shelfmark/shelfmark/internal/database/sessions"
	"github.com/shelfmark/shelfmark/internal/database/tags"
	"github.com/shelfmark/shelfmark/internal/importer"
)

// stubProvider delegates to a configurable search function so each test can
// script the catalog's behaviour.
type stubProvider struct {
	search func(ctx context.Context, title, author string) ([]canonical.Candidate, error)
	calls  int
}

func (p *stubProvider) Search(ctx context.Context, title, author string) ([]canonical.Candidate, error) {
	p.calls++
	if p.search == nil {
		return nil, nil
	}
	return p.search(ctx, title, author)
}

// perfectMatch scripts a provider that echoes the query back as a single
// exact candidate.
func perfectMatch(ctx context.Context, title, author string) ([]canonical.Candidate, error) {
	return []canonical.Candidate{
		{Title: title, Authors: []string{author}, ExternalID: "OL-" + canonical.NormalizeString(title)},
	}, nil
}

type routerEnv struct {
	router   *gin.Engine
	db       *database.Database
	books    *books.Repository
	sessions *sessions.Repository
	provider *stubProvider
}

func setupRouter(t *testing.T) *routerEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	booksRepo := books.NewRepository(db.DB)
	sessionsRepo := sessions.NewRepository(db.DB)
	canonRepo := canonicalRepo.NewRepository(db.DB)
	tagsRepo := tags.NewRepository(db.DB)

	provider := &stubProvider{search: perfectMatch}
	resolver := canonical.NewResolver(provider, canonRepo,
		gocache.New(time.Minute, time.Minute),
		canonical.DefaultWeights, canonical.DefaultThresholds, time.Second)

	coordinator := importer.NewCoordinator(db, booksRepo, sessionsRepo, resolver, nil, nil, 0)

	router := NewRouter(RouterConfig{
		Database:    db,
		Books:       booksRepo,
		Sessions:    sessionsRepo,
		Canonical:   canonRepo,
		Tags:        tagsRepo,
		Coordinator: coordinator,
		Resolver:    resolver,
		Version:     "test",
	})

	return &routerEnv{
		router:   router,
		db:       db,
		books:    booksRepo,
		sessions: sessionsRepo,
		provider: provider,
	}
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body []byte) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var response map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	}
	return w, response
}

func TestHealthEndpoint(t *testing.T) {
	env := setupRouter(t)

	w, response := doJSON(t, env.router, "GET", "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", response["status"])

	checks, ok := response["checks"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "ok", checks["database"])
}
