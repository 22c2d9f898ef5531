package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleClippings = `Atomic Habits (James Clear)
- Your Highlight on page 12 | location 100-105 | Added on Tuesday, April 15, 2025 10:16:21 PM

Habits are the compound interest of self-improvement.
==========
Atomic Habits (James Clear)
- Your Note on page 12 | location 105 | Added on Tuesday, April 15, 2025 10:17:02 PM

Worth rereading every January.
==========
Meditations (Marcus Aurelius)
- Your Highlight on page 3 | location 40-42 | Added on Wednesday, April 16, 2025 8:01:11 AM

You have power over your mind, not outside events.
==========
`

func uploadClippings(t *testing.T, env *routerEnv, filename, content string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("clippings_file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest("POST", "/api/import/clippings", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	return w, response
}

func TestImportClippings(t *testing.T) {
	t.Run("imports a clean file", func(t *testing.T) {
		env := setupRouter(t)

		w, response := uploadClippings(t, env, "My Clippings.txt", sampleClippings)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, true, response["success"])

		session, ok := response["session"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "completed", session["status"])
		assert.Equal(t, float64(3), session["entries_parsed"])
		assert.Equal(t, float64(2), session["books_added"])
		assert.Equal(t, float64(3), session["notes_added"])

		books, err := env.books.GetAllBooks()
		require.NoError(t, err)
		assert.Len(t, books, 2)
	})

	t.Run("rejects request without file", func(t *testing.T) {
		env := setupRouter(t)

		w, response := doJSON(t, env.router, "POST", "/api/import/clippings", nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, false, response["success"])
	})

	t.Run("rejects file over the rejection threshold", func(t *testing.T) {
		env := setupRouter(t)

		malformed := "garbage\n==========\nmore garbage\n==========\n"
		w, response := uploadClippings(t, env, "broken.txt", malformed)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, false, response["success"])

		session, ok := response["session"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "failed", session["status"])
	})
}

func TestImportSessions(t *testing.T) {
	t.Run("lists sessions most recent first", func(t *testing.T) {
		env := setupRouter(t)

		uploadClippings(t, env, "first.txt", sampleClippings)
		uploadClippings(t, env, "second.txt", sampleClippings)

		w, response := doJSON(t, env.router, "GET", "/api/import/sessions", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, float64(2), response["count"])
	})

	t.Run("returns one session by id", func(t *testing.T) {
		env := setupRouter(t)

		_, uploadResp := uploadClippings(t, env, "My Clippings.txt", sampleClippings)
		session := uploadResp["session"].(map[string]interface{})
		id := uint(session["id"].(float64))

		w, response := doJSON(t, env.router, "GET", fmt.Sprintf("/api/import/sessions/%d", id), nil)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "My Clippings.txt", response["source_file"])
		assert.Equal(t, "completed", response["status"])
	})

	t.Run("unknown session is 404", func(t *testing.T) {
		env := setupRouter(t)

		w, _ := doJSON(t, env.router, "GET", "/api/import/sessions/9999", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
