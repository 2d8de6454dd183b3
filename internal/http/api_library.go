package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jollyrodger/pika/internal/database/library"
)

// DefaultAPIPerPage is the page size of API listings without per_page.
const DefaultAPIPerPage = 20

// LibraryAPIController serves the /api/v1 books, series and authors resources.
type LibraryAPIController struct {
	library *library.Repository
}

func NewLibraryAPIController(repo *library.Repository) *LibraryAPIController {
	return &LibraryAPIController{library: repo}
}

// RegisterRoutes mounts the resources on an already authenticated group.
func (ac *LibraryAPIController) RegisterRoutes(api gin.IRouter) {
	books := api.Group("/books")
	books.GET("/", ac.ListBooks)
	books.GET("/all", ac.AllBooks)
	books.GET("/:id", ac.GetBook)
	books.POST("/", ac.CreateBook)
	books.PUT("/:id", ac.UpdateBook)
	books.DELETE("/:id", ac.DeleteBook)

	series := api.Group("/series")
	series.GET("/", ac.ListSeries)
	series.GET("/all", ac.AllSeries)
	series.GET("/:id", ac.GetSeries)
	series.POST("/", ac.CreateSeries)
	series.PUT("/:id", ac.UpdateSeries)
	series.DELETE("/:id", ac.DeleteSeries)

	authors := api.Group("/authors")
	authors.GET("/", ac.ListAuthors)
	authors.GET("/all", ac.AllAuthors)
	authors.GET("/:id", ac.GetAuthor)
	authors.POST("/", ac.CreateAuthor)
	authors.PUT("/:id", ac.UpdateAuthor)
	authors.DELETE("/:id", ac.DeleteAuthor)
}

// apiID parses the :id parameter. Anything but a positive integer is a
// missing record.
func apiID(c *gin.Context, notFound string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		respondAPIError(c, http.StatusNotFound, notFound, nil)
		return 0, false
	}
	return uint(id), true
}

func pageParams(c *gin.Context, defPerPage int) (int, int) {
	return intQuery(c, "page", 1), intQuery(c, "per_page", defPerPage)
}

// respondReferenceError answers a write that referenced a missing record.
// It reports whether err was such an error.
func respondReferenceError(c *gin.Context, err error, message string, detailPrefix string) bool {
	var nf *library.NotFoundError
	if !errors.As(err, &nf) {
		return false
	}
	if message == "" {
		message = nf.Kind + " not found"
	}
	respondAPIError(c, http.StatusNotFound, message, detailPrefix+nf.Error())
	return true
}

// --- Books ---

// ListBooks returns a page of books ordered by title.
// GET /api/v1/books/?page=1&per_page=20
func (ac *LibraryAPIController) ListBooks(c *gin.Context) {
	page, perPage := pageParams(c, DefaultAPIPerPage)
	result, err := ac.library.ListBooks(c.Request.Context(), page, perPage)
	if errors.Is(err, library.ErrPageNotFound) {
		respondAPIError(c, http.StatusNotFound, "Page not found", nil)
		return
	}
	if err != nil {
		respondAPIInternalError(c, err, "list books")
		return
	}
	respondData(c, BookPage{
		LibraryPage: newLibraryPage(result),
		Books:       mapSlice(result.Items, newBookData),
	})
}

// AllBooks returns every book.
// GET /api/v1/books/all
func (ac *LibraryAPIController) AllBooks(c *gin.Context) {
	books, err := ac.library.AllBooks(c.Request.Context())
	if err != nil {
		respondAPIInternalError(c, err, "all books")
		return
	}
	respondData(c, mapSlice(books, newBookData))
}

// GetBook returns a single book.
// GET /api/v1/books/:id
func (ac *LibraryAPIController) GetBook(c *gin.Context) {
	id, ok := apiID(c, "Book not found.")
	if !ok {
		return
	}
	book, err := ac.library.GetBook(c.Request.Context(), id)
	if errors.Is(err, library.ErrBookNotFound) {
		respondAPIError(c, http.StatusNotFound, "Book not found.", nil)
		return
	}
	if err != nil {
		respondAPIInternalError(c, err, "get book")
		return
	}
	respondData(c, newBookData(*book))
}

// CreateBook adds a book.
// POST /api/v1/books/
func (ac *LibraryAPIController) CreateBook(c *gin.Context) {
	var req bookRequest
	if !bindJSON(c, &req) {
		return
	}
	book, err := ac.library.CreateBook(c.Request.Context(), req.input())
	if err != nil {
		if respondReferenceError(c, err, "", "") {
			return
		}
		respondAPIInternalError(c, err, "create book")
		return
	}
	respondData(c, newBookData(*book))
}

// UpdateBook replaces the fields of a book.
// PUT /api/v1/books/:id
func (ac *LibraryAPIController) UpdateBook(c *gin.Context) {
	id, ok := apiID(c, "Book not found")
	if !ok {
		return
	}
	var req bookRequest
	if !bindJSON(c, &req) {
		return
	}
	book, err := ac.library.UpdateBook(c.Request.Context(), id, req.input())
	if err != nil {
		switch {
		case respondReferenceError(c, err, "", ""):
		case errors.Is(err, library.ErrBookNotFound):
			respondAPIError(c, http.StatusNotFound, "Book not found", nil)
		default:
			respondAPIInternalError(c, err, "update book")
		}
		return
	}
	respondData(c, newBookData(*book))
}

// DeleteBook removes a book and returns its base record.
// DELETE /api/v1/books/:id
func (ac *LibraryAPIController) DeleteBook(c *gin.Context) {
	id, ok := apiID(c, "Book not found")
	if !ok {
		return
	}
	book, err := ac.library.DeleteBook(c.Request.Context(), id)
	if errors.Is(err, library.ErrBookNotFound) {
		respondAPIError(c, http.StatusNotFound, "Book not found", nil)
		return
	}
	if err != nil {
		respondAPIInternalError(c, err, "delete book")
		return
	}
	respondData(c, newBookBase(*book))
}

// --- Series ---

// ListSeries returns a page of series ordered by title.
// GET /api/v1/series/?page=1&per_page=20
func (ac *LibraryAPIController) ListSeries(c *gin.Context) {
	page, perPage := pageParams(c, DefaultAPIPerPage)
	result, err := ac.library.ListSeries(c.Request.Context(), page, perPage)
	if errors.Is(err, library.ErrPageNotFound) {
		respondAPIError(c, http.StatusNotFound, "Page not found", nil)
		return
	}
	if err != nil {
		respondAPIInternalError(c, err, "list series")
		return
	}
	respondData(c, SeriesPage{
		LibraryPage: newLibraryPage(result),
		Series:      mapSlice(result.Items, newSeriesData),
	})
}

// GET /api/v1/series/all
func (ac *LibraryAPIController) AllSeries(c *gin.Context) {
	series, err := ac.library.AllSeries(c.Request.Context())
	if err != nil {
		respondAPIInternalError(c, err, "all series")
		return
	}
	respondData(c, mapSlice(series, newSeriesData))
}

// GET /api/v1/series/:id
func (ac *LibraryAPIController) GetSeries(c *gin.Context) {
	id, ok := apiID(c, "Series not found.")
	if !ok {
		return
	}
	series, err := ac.library.GetSeries(c.Request.Context(), id)
	if errors.Is(err, library.ErrSeriesNotFound) {
		respondAPIError(c, http.StatusNotFound, "Series not found.", nil)
		return
	}
	if err != nil {
		respondAPIInternalError(c, err, "get series")
		return
	}
	respondData(c, newSeriesData(*series))
}

// POST /api/v1/series/
func (ac *LibraryAPIController) CreateSeries(c *gin.Context) {
	var req seriesRequest
	if !bindJSON(c, &req) {
		return
	}
	series, err := ac.library.CreateSeries(c.Request.Context(), *req.Title, bookIDs(req.Books))
	if err != nil {
		if respondReferenceError(c, err, "", "") {
			return
		}
		respondAPIInternalError(c, err, "create series")
		return
	}
	respondData(c, newSeriesData(*series))
}

// PUT /api/v1/series/:id
func (ac *LibraryAPIController) UpdateSeries(c *gin.Context) {
	id, ok := apiID(c, "Series not found")
	if !ok {
		return
	}
	var req seriesRequest
	if !bindJSON(c, &req) {
		return
	}
	series, err := ac.library.UpdateSeries(c.Request.Context(), id, *req.Title, bookIDs(req.Books))
	if err != nil {
		switch {
		case respondReferenceError(c, err, "Series update failed", "Unable to assign book to series. "):
		case errors.Is(err, library.ErrSeriesNotFound):
			respondAPIError(c, http.StatusNotFound, "Series not found", nil)
		default:
			respondAPIInternalError(c, err, "update series")
		}
		return
	}
	respondData(c, newSeriesData(*series))
}

// DELETE /api/v1/series/:id
func (ac *LibraryAPIController) DeleteSeries(c *gin.Context) {
	id, ok := apiID(c, "Series not found")
	if !ok {
		return
	}
	series, err := ac.library.DeleteSeries(c.Request.Context(), id)
	switch {
	case errors.Is(err, library.ErrSeriesNotFound):
		respondAPIError(c, http.StatusNotFound, "Series not found", nil)
	case errors.Is(err, library.ErrDeleteRestricted):
		respondAPIError(c, http.StatusBadRequest, "Delete failed",
			fmt.Sprintf("Failed to delete series '%d'. Series cannot be deleted when books are still assigned to it.", id))
	case err != nil:
		respondAPIInternalError(c, err, "delete series")
	default:
		respondData(c, newSeriesBase(*series))
	}
}

// --- Authors ---

// ListAuthors returns a page of authors ordered by last name.
// GET /api/v1/authors/?page=1&per_page=20
func (ac *LibraryAPIController) ListAuthors(c *gin.Context) {
	page, perPage := pageParams(c, DefaultAPIPerPage)
	result, err := ac.library.ListAuthors(c.Request.Context(), page, perPage)
	if errors.Is(err, library.ErrPageNotFound) {
		respondAPIError(c, http.StatusNotFound, "Page not found", nil)
		return
	}
	if err != nil {
		respondAPIInternalError(c, err, "list authors")
		return
	}
	respondData(c, AuthorsPage{
		LibraryPage: newLibraryPage(result),
		Authors:     mapSlice(result.Items, newAuthorData),
	})
}

// GET /api/v1/authors/all
func (ac *LibraryAPIController) AllAuthors(c *gin.Context) {
	authors, err := ac.library.AllAuthors(c.Request.Context())
	if err != nil {
		respondAPIInternalError(c, err, "all authors")
		return
	}
	respondData(c, mapSlice(authors, newAuthorData))
}

// GET /api/v1/authors/:id
func (ac *LibraryAPIController) GetAuthor(c *gin.Context) {
	id, ok := apiID(c, "Author not found.")
	if !ok {
		return
	}
	author, err := ac.library.GetAuthor(c.Request.Context(), id)
	if errors.Is(err, library.ErrAuthorNotFound) {
		respondAPIError(c, http.StatusNotFound, "Author not found.", nil)
		return
	}
	if err != nil {
		respondAPIInternalError(c, err, "get author")
		return
	}
	respondData(c, newAuthorData(*author))
}

// POST /api/v1/authors/
func (ac *LibraryAPIController) CreateAuthor(c *gin.Context) {
	var req authorRequest
	if !bindJSON(c, &req) {
		return
	}
	author, err := ac.library.CreateAuthor(c.Request.Context(), req.FirstName, *req.LastName, bookIDs(req.Books))
	if err != nil {
		if respondReferenceError(c, err, "", "") {
			return
		}
		respondAPIInternalError(c, err, "create author")
		return
	}
	respondData(c, newAuthorData(*author))
}

// PUT /api/v1/authors/:id
func (ac *LibraryAPIController) UpdateAuthor(c *gin.Context) {
	id, ok := apiID(c, "Author not found")
	if !ok {
		return
	}
	var req authorRequest
	if !bindJSON(c, &req) {
		return
	}
	author, err := ac.library.UpdateAuthor(c.Request.Context(), id, req.FirstName, *req.LastName, bookIDs(req.Books))
	if err != nil {
		switch {
		case respondReferenceError(c, err, "Author update failed", "Unable to assign book to author. "):
		case errors.Is(err, library.ErrAuthorNotFound):
			respondAPIError(c, http.StatusNotFound, "Author not found", nil)
		default:
			respondAPIInternalError(c, err, "update author")
		}
		return
	}
	respondData(c, newAuthorData(*author))
}

// DELETE /api/v1/authors/:id
func (ac *LibraryAPIController) DeleteAuthor(c *gin.Context) {
	id, ok := apiID(c, "Author not found")
	if !ok {
		return
	}
	author, err := ac.library.DeleteAuthor(c.Request.Context(), id)
	switch {
	case errors.Is(err, library.ErrAuthorNotFound):
		respondAPIError(c, http.StatusNotFound, "Author not found", nil)
	case errors.Is(err, library.ErrDeleteRestricted):
		respondAPIError(c, http.StatusBadRequest, "Delete failed",
			fmt.Sprintf("Failed to delete author '%d'. Authors cannot be deleted when books are still assigned to them.", id))
	case err != nil:
		respondAPIInternalError(c, err, "delete author")
	default:
		respondData(c, newAuthorBase(*author))
	}
}
