package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/shelfmark/shelfmark/internal/audit"
	"github.com/shelfmark/shelfmark/internal/database/books"
	"github.com/shelfmark/shelfmark/internal/entities"
)

type BooksController struct {
	books        *books.Repository
	auditService *audit.Service
}

func NewBooksController(booksRepo *books.Repository, auditService *audit.Service) *BooksController {
	return &BooksController{
		books:        booksRepo,
		auditService: auditService,
	}
}

// GetAllBooks returns all books, optionally filtered by a search query.
func (b *BooksController) GetAllBooks(ctx *gin.Context) {
	query := ctx.Query("q")

	var (
		list []entities.Book
		err  error
	)
	if query != "" {
		list, err = b.books.SearchBooks(query)
	} else {
		list, err = b.books.GetAllBooks()
	}
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve books"})
		return
	}

	ctx.IndentedJSON(http.StatusOK, gin.H{
		"books": list,
		"count": len(list),
	})
}

// GetBook returns one book with its notes ordered by location.
func (b *BooksController) GetBook(ctx *gin.Context) {
	id, err := parseID(ctx, "id")
	if err != nil {
		return
	}

	book, err := b.books.GetBookByID(id)
	if err != nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "Book not found"})
		return
	}

	ctx.IndentedJSON(http.StatusOK, book)
}

// GetNotes returns a book's notes ordered by location.
func (b *BooksController) GetNotes(ctx *gin.Context) {
	id, err := parseID(ctx, "id")
	if err != nil {
		return
	}

	if _, err := b.books.GetBookByID(id); err != nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "Book not found"})
		return
	}

	notes, err := b.books.GetNotesForBook(id)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve notes"})
		return
	}

	ctx.IndentedJSON(http.StatusOK, gin.H{
		"notes": notes,
		"count": len(notes),
	})
}

// GetStats returns total book and note counts.
func (b *BooksController) GetStats(ctx *gin.Context) {
	totalBooks, totalNotes, err := b.books.GetStats()
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve stats"})
		return
	}

	ctx.IndentedJSON(http.StatusOK, gin.H{
		"total_books": totalBooks,
		"total_notes": totalNotes,
	})
}

// DeleteBook removes a book together with its notes and tag links.
func (b *BooksController) DeleteBook(ctx *gin.Context) {
	id, err := parseID(ctx, "id")
	if err != nil {
		return
	}

	book, err := b.books.GetBookByID(id)
	if err != nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "Book not found"})
		return
	}

	if err := b.books.DeleteBook(id); err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete book"})
		return
	}

	if b.auditService != nil {
		b.auditService.LogDelete("book", id, book.Title)
	}

	ctx.JSON(http.StatusOK, gin.H{"deleted": id})
}

// DeleteNote removes a single note.
func (b *BooksController) DeleteNote(ctx *gin.Context) {
	id, err := parseID(ctx, "id")
	if err != nil {
		return
	}

	note, err := b.books.GetNoteByID(id)
	if err != nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "Note not found"})
		return
	}

	if err := b.books.DeleteNote(id); err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete note"})
		return
	}
	if err := b.books.RefreshNoteCount(note.BookID); err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to refresh note count"})
		return
	}

	if b.auditService != nil {
		b.auditService.LogDelete("note", id, truncateText(note.Text, 80))
	}

	ctx.JSON(http.StatusOK, gin.H{"deleted": id})
}

// parseID extracts a uint path parameter, writing the error response itself.
func parseID(ctx *gin.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(ctx.Param(name), 10, 32)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, err
	}
	return uint(id), nil
}

func truncateText(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
