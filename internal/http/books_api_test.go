package http

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBooksAPI(t *testing.T) {
	t.Run("returns empty list when no books", func(t *testing.T) {
		env := setupRouter(t)

		w, response := doJSON(t, env.router, "GET", "/api/books", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, float64(0), response["count"])
	})

	t.Run("lists imported books", func(t *testing.T) {
		env := setupRouter(t)
		uploadClippings(t, env, "My Clippings.txt", sampleClippings)

		w, response := doJSON(t, env.router, "GET", "/api/books", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, float64(2), response["count"])
	})

	t.Run("filters by search query", func(t *testing.T) {
		env := setupRouter(t)
		uploadClippings(t, env, "My Clippings.txt", sampleClippings)

		w, response := doJSON(t, env.router, "GET", "/api/books?q=meditations", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, float64(1), response["count"])
	})

	t.Run("returns one book with its notes", func(t *testing.T) {
		env := setupRouter(t)
		uploadClippings(t, env, "My Clippings.txt", sampleClippings)

		book, err := env.books.GetBookByKey("Atomic Habits", "James Clear")
		require.NoError(t, err)

		w, response := doJSON(t, env.router, "GET", fmt.Sprintf("/api/books/%d", book.ID), nil)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "Atomic Habits", response["title"])
		notes, ok := response["notes"].([]interface{})
		require.True(t, ok)
		assert.Len(t, notes, 2)
	})

	t.Run("reports stats", func(t *testing.T) {
		env := setupRouter(t)
		uploadClippings(t, env, "My Clippings.txt", sampleClippings)

		w, response := doJSON(t, env.router, "GET", "/api/books/stats", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, float64(2), response["total_books"])
		assert.Equal(t, float64(3), response["total_notes"])
	})

	t.Run("deletes a book with its notes", func(t *testing.T) {
		env := setupRouter(t)
		uploadClippings(t, env, "My Clippings.txt", sampleClippings)

		book, err := env.books.GetBookByKey("Meditations", "Marcus Aurelius")
		require.NoError(t, err)

		w, _ := doJSON(t, env.router, "DELETE", fmt.Sprintf("/api/books/%d", book.ID), nil)
		assert.Equal(t, http.StatusOK, w.Code)

		_, err = env.books.GetBookByKey("Meditations", "Marcus Aurelius")
		assert.Error(t, err)

		_, totalNotes, err := env.books.GetStats()
		require.NoError(t, err)
		assert.Equal(t, int64(2), totalNotes)
	})

	t.Run("unknown book is 404", func(t *testing.T) {
		env := setupRouter(t)

		w, _ := doJSON(t, env.router, "GET", "/api/books/9999", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
