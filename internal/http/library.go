package http

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/jollyrodger/pika/internal/audit"
	"github.com/jollyrodger/pika/internal/auth"
	"github.com/jollyrodger/pika/internal/covers"
	"github.com/jollyrodger/pika/internal/database/library"
	"github.com/jollyrodger/pika/internal/entities"
	"github.com/jollyrodger/pika/internal/pagination"
)

// Page link offsets of the listings.
const (
	booksPageOffset   = 1
	seriesPageOffset  = 2
	authorsPageOffset = 2
)

const msgNoCover = "This book does not have a cover image."

// LibraryController serves the session authenticated library pages and forms.
type LibraryController struct {
	library *library.Repository
	covers  *covers.Store
	events  *audit.Service
	perPage int
}

// NewLibraryController creates the controller. events may be nil.
func NewLibraryController(repo *library.Repository, store *covers.Store, events *audit.Service, perPage int) *LibraryController {
	if perPage <= 0 {
		perPage = DefaultAPIPerPage
	}
	return &LibraryController{
		library: repo,
		covers:  store,
		events:  events,
		perPage: perPage,
	}
}

// RegisterRoutes mounts the /library pages on a group that requires a login.
func (lc *LibraryController) RegisterRoutes(group gin.IRouter) {
	group.GET("/books", lc.BooksIndex)
	group.GET("/books/add", lc.AddBookPage)
	group.POST("/books/add", lc.AddBook)
	group.GET("/books/:id", lc.BookDetails)
	group.GET("/books/:id/edit", lc.EditBookPage)
	group.POST("/books/:id/edit", lc.EditBook)
	group.POST("/books/:id/delete", lc.DeleteBook)
	group.POST("/books/:id/cover/delete", lc.DeleteCover)
	group.POST("/books/:id/cover/download", lc.DownloadCover)

	group.GET("/series", lc.SeriesIndex)
	group.GET("/series/add", lc.AddSeriesPage)
	group.POST("/series/add", lc.AddSeries)
	group.GET("/series/:id", lc.SeriesDetails)
	group.GET("/series/:id/edit", lc.EditSeriesPage)
	group.POST("/series/:id/edit", lc.EditSeries)
	group.POST("/series/:id/delete", lc.DeleteSeries)

	group.GET("/authors", lc.AuthorsIndex)
	group.GET("/authors/add", lc.AddAuthorPage)
	group.POST("/authors/add", lc.AddAuthor)
	group.GET("/authors/:id", lc.AuthorDetails)
	group.GET("/authors/:id/edit", lc.EditAuthorPage)
	group.POST("/authors/:id/edit", lc.EditAuthor)
	group.POST("/authors/:id/delete", lc.DeleteAuthor)
}

// ListingPage is the view model of a paginated library listing.
type ListingPage[T any] struct {
	Items       []T               `json:"items"`
	Pages       []pagination.Item `json:"pages"`
	CurrentPage int               `json:"current_page"`
	LastPage    int               `json:"last_page"`
	HasPrevious bool              `json:"has_previous"`
	HasNext     bool              `json:"has_next"`
}

func newListingPage[T, V any](p *library.Page[T], offset int, fn func(T) V) ListingPage[V] {
	return ListingPage[V]{
		Items:       mapSlice(p.Items, fn),
		Pages:       pagination.Window(p.Page, offset, p.Last),
		CurrentPage: p.Page,
		LastPage:    p.Last,
		HasPrevious: p.HasPrevious,
		HasNext:     p.HasNext,
	}
}

// FormChoices lists what the book form can link to.
type FormChoices struct {
	Series  []SeriesBase `json:"series"`
	Authors []AuthorBase `json:"authors"`
}

func (lc *LibraryController) formChoices(c *gin.Context) (*FormChoices, bool) {
	series, err := lc.library.AllSeries(c.Request.Context())
	if err != nil {
		respondInternalError(c, err, "load series choices")
		return nil, false
	}
	authors, err := lc.library.AllAuthors(c.Request.Context())
	if err != nil {
		respondInternalError(c, err, "load author choices")
		return nil, false
	}
	return &FormChoices{
		Series:  mapSlice(series, newSeriesBase),
		Authors: mapSlice(authors, newAuthorBase),
	}, true
}

func (lc *LibraryController) logDelete(c *gin.Context, kind string, id uint, name string) {
	if lc.events != nil {
		lc.events.LogDelete(auth.GetUserID(c), kind, id, name)
	}
}

// respondCreated answers an add form. add_next sends the user back to the empty form.
func respondCreated(c *gin.Context, key string, id uint, addNext bool, detailsURL, addURL string) {
	next := detailsURL
	if addNext {
		next = addURL
	}
	c.Header("Location", next)
	c.JSON(http.StatusCreated, gin.H{key: id, "next": next})
}

// --- Books ---

// BooksIndex lists the books ordered by title.
// GET /library/books?page=1
func (lc *LibraryController) BooksIndex(c *gin.Context) {
	page, err := lc.library.ListBooks(c.Request.Context(), intQuery(c, "page", 1), lc.perPage)
	if errors.Is(err, library.ErrPageNotFound) {
		respondNotFound(c, "The requested Page was not found on the server.")
		return
	}
	if err != nil {
		respondInternalError(c, err, "list books")
		return
	}
	listing := newListingPage(page, booksPageOffset, newBookData)
	c.JSON(http.StatusOK, gin.H{
		"books":        listing.Items,
		"pages":        listing.Pages,
		"current_page": listing.CurrentPage,
		"last_page":    listing.LastPage,
	})
}

func (lc *LibraryController) loadBook(c *gin.Context) (*entities.Book, bool) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return nil, false
	}
	book, err := lc.library.GetBook(c.Request.Context(), id)
	if errors.Is(err, library.ErrBookNotFound) {
		respondNotFound(c, "This book does not exist.")
		return nil, false
	}
	if err != nil {
		respondInternalError(c, err, "get book")
		return nil, false
	}
	return book, true
}

// GET /library/books/:id
func (lc *LibraryController) BookDetails(c *gin.Context) {
	book, ok := lc.loadBook(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"book":      newBookData(*book),
		"has_cover": book.Cover != nil && lc.covers.Exists(*book.Cover),
	})
}

// GET /library/books/add
func (lc *LibraryController) AddBookPage(c *gin.Context) {
	choices, ok := lc.formChoices(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"form":    gin.H{"release_date": entities.Today(), "read_status": false},
		"choices": choices,
	})
}

// AddBook handles the add book form.
// POST /library/books/add
func (lc *LibraryController) AddBook(c *gin.Context) {
	var form bookForm
	if !bindForm(c, &form) {
		return
	}
	book, err := lc.library.CreateBook(c.Request.Context(), form.input())
	if err != nil {
		lc.respondWriteError(c, err, "create book")
		return
	}
	respondCreated(c, "book_id", book.ID, checked(form.AddNext),
		fmt.Sprintf("/library/books/%d", book.ID), "/library/books/add")
}

// respondWriteError maps repository errors of a form submission.
func (lc *LibraryController) respondWriteError(c *gin.Context, err error, context string) {
	var nf *library.NotFoundError
	switch {
	case errors.As(err, &nf):
		respondNotFound(c, nf.Error())
	case errors.Is(err, library.ErrBookNotFound):
		respondNotFound(c, "This book does not exist.")
	case errors.Is(err, library.ErrSeriesNotFound):
		respondNotFound(c, "This series does not exist.")
	case errors.Is(err, library.ErrAuthorNotFound):
		respondNotFound(c, "This author does not exist.")
	default:
		respondInternalError(c, err, context)
	}
}

// EditBookPage returns the book form prefilled with the stored values.
// GET /library/books/:id/edit
func (lc *LibraryController) EditBookPage(c *gin.Context) {
	book, ok := lc.loadBook(c)
	if !ok {
		return
	}
	choices, ok := lc.formChoices(c)
	if !ok {
		return
	}
	form := gin.H{
		"book_id":      book.ID,
		"title":        book.Title,
		"series":       book.SeriesID,
		"volume_nr":    book.VolumeNr,
		"authors":      mapSlice(book.Authors, func(a entities.Author) uint { return a.ID }),
		"synopsis":     book.Synopsis,
		"release_date": book.ReleaseDate,
		"read_status":  book.ReadStatus,
	}
	c.JSON(http.StatusOK, gin.H{"form": form, "choices": choices})
}

// EditBook handles the multipart edit form. A new cover replaces the stored
// one once the book is updated; an unchanged form is a no-op.
// POST /library/books/:id/edit
func (lc *LibraryController) EditBook(c *gin.Context) {
	book, ok := lc.loadBook(c)
	if !ok {
		return
	}
	var form bookForm
	if !bindForm(c, &form) {
		return
	}

	in := form.input()
	in.Cover = book.Cover

	var newCover string
	if file, err := c.FormFile("cover"); err == nil {
		src, err := file.Open()
		if err != nil {
			respondInternalError(c, err, "open cover upload")
			return
		}
		newCover, err = lc.covers.Save(book.ID, file.Filename, src)
		src.Close()
		if errors.Is(err, covers.ErrUnsupportedType) {
			respondFormError(c, "cover", "File does not have an approved extension: jpg, png")
			return
		}
		if err != nil {
			respondInternalError(c, err, "save cover")
			return
		}
		in.Cover = &newCover
	} else if !errors.Is(err, http.ErrMissingFile) && !errors.Is(err, http.ErrNotMultipart) {
		respondBadRequest(c, "invalid cover upload")
		return
	}

	details := fmt.Sprintf("/library/books/%d", book.ID)
	if in.Matches(book) {
		respondRedirect(c, details, "Nothing changed.")
		return
	}

	if _, err := lc.library.UpdateBook(c.Request.Context(), book.ID, in); err != nil {
		if newCover != "" {
			lc.covers.Remove(newCover)
		}
		lc.respondWriteError(c, err, "update book")
		return
	}

	if newCover != "" && book.Cover != nil {
		if err := lc.covers.Remove(*book.Cover); err != nil {
			respondInternalError(c, err, "remove old cover")
			return
		}
	}
	respondRedirect(c, details, "Book updated.")
}

// DeleteBook removes a book together with its cover file.
// POST /library/books/:id/delete
func (lc *LibraryController) DeleteBook(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	book, err := lc.library.DeleteBook(c.Request.Context(), id)
	if err != nil {
		lc.respondWriteError(c, err, "delete book")
		return
	}
	if book.Cover != nil {
		if err := lc.covers.Remove(*book.Cover); err != nil {
			respondInternalError(c, err, "remove cover")
			return
		}
	}
	lc.logDelete(c, "book", book.ID, book.Title)
	respondRedirect(c, "/library/books", "Book was deleted successfully.")
}

// DeleteCover clears the cover of a book and removes the file.
// POST /library/books/:id/cover/delete
func (lc *LibraryController) DeleteCover(c *gin.Context) {
	book, ok := lc.loadBook(c)
	if !ok {
		return
	}
	if book.Cover == nil {
		respondError(c, http.StatusConflict, msgNoCover)
		return
	}
	if err := lc.library.SetCover(c.Request.Context(), book.ID, nil); err != nil {
		respondInternalError(c, err, "clear cover")
		return
	}
	if err := lc.covers.Remove(*book.Cover); err != nil {
		respondInternalError(c, err, "remove cover")
		return
	}
	respondRedirect(c, fmt.Sprintf("/library/books/%d", book.ID), "Cover deleted.")
}

// DownloadCover sends the cover image as an attachment.
// POST /library/books/:id/cover/download
func (lc *LibraryController) DownloadCover(c *gin.Context) {
	book, ok := lc.loadBook(c)
	if !ok {
		return
	}
	if book.Cover == nil {
		respondError(c, http.StatusConflict, msgNoCover)
		return
	}
	if !lc.covers.Exists(*book.Cover) {
		respondNotFound(c, "The cover image file is missing.")
		return
	}
	c.FileAttachment(lc.covers.Path(*book.Cover), filepath.Base(*book.Cover))
}

// --- Series ---

// SeriesIndex lists the series ordered by title.
// GET /library/series?page=1
func (lc *LibraryController) SeriesIndex(c *gin.Context) {
	page, err := lc.library.ListSeries(c.Request.Context(), intQuery(c, "page", 1), lc.perPage)
	if errors.Is(err, library.ErrPageNotFound) {
		respondNotFound(c, "The requested Page was not found on the server.")
		return
	}
	if err != nil {
		respondInternalError(c, err, "list series")
		return
	}
	listing := newListingPage(page, seriesPageOffset, newSeriesData)
	c.JSON(http.StatusOK, gin.H{
		"series":       listing.Items,
		"pages":        listing.Pages,
		"current_page": listing.CurrentPage,
		"last_page":    listing.LastPage,
	})
}

// SeriesDetails shows a series with its books in volume order.
// GET /library/series/:id
func (lc *LibraryController) SeriesDetails(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	series, err := lc.library.GetSeries(c.Request.Context(), id)
	if errors.Is(err, library.ErrSeriesNotFound) {
		respondNotFound(c, "This series does not exist.")
		return
	}
	if err != nil {
		respondInternalError(c, err, "get series")
		return
	}
	data := newSeriesData(*series)
	sort.SliceStable(data.Books, func(i, j int) bool {
		a, b := data.Books[i].VolumeNr, data.Books[j].VolumeNr
		if a == nil || b == nil {
			return a != nil
		}
		return *a < *b
	})
	c.JSON(http.StatusOK, gin.H{"series": data})
}

// GET /library/series/add
func (lc *LibraryController) AddSeriesPage(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"form": seriesForm{}})
}

// POST /library/series/add
func (lc *LibraryController) AddSeries(c *gin.Context) {
	var form seriesForm
	if !bindForm(c, &form) {
		return
	}
	series, err := lc.library.CreateSeries(c.Request.Context(), form.Title, nil)
	if err != nil {
		lc.respondWriteError(c, err, "create series")
		return
	}
	respondCreated(c, "series_id", series.ID, checked(form.AddNext),
		fmt.Sprintf("/library/series/%d", series.ID), "/library/series/add")
}

// GET /library/series/:id/edit
func (lc *LibraryController) EditSeriesPage(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	series, err := lc.library.GetSeries(c.Request.Context(), id)
	if err != nil {
		lc.respondWriteError(c, err, "get series")
		return
	}
	c.JSON(http.StatusOK, gin.H{"form": gin.H{"series_id": series.ID, "title": series.Title}})
}

// POST /library/series/:id/edit
func (lc *LibraryController) EditSeries(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var form seriesForm
	if !bindForm(c, &form) {
		return
	}
	series, err := lc.library.UpdateSeries(c.Request.Context(), id, form.Title, nil)
	if err != nil {
		lc.respondWriteError(c, err, "update series")
		return
	}
	respondRedirect(c, fmt.Sprintf("/library/series/%d", series.ID), "Series updated.")
}

// DeleteSeries removes a series without books.
// POST /library/series/:id/delete
func (lc *LibraryController) DeleteSeries(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	series, err := lc.library.DeleteSeries(c.Request.Context(), id)
	if errors.Is(err, library.ErrDeleteRestricted) {
		respondError(c, http.StatusConflict, "Series cannot be deleted when books are still assigned to it.")
		return
	}
	if err != nil {
		lc.respondWriteError(c, err, "delete series")
		return
	}
	lc.logDelete(c, "series", series.ID, series.Title)
	respondRedirect(c, "/library/series", "Series was deleted successfully.")
}

// --- Authors ---

// AuthorsIndex lists the authors ordered by last name.
// GET /library/authors?page=1
func (lc *LibraryController) AuthorsIndex(c *gin.Context) {
	page, err := lc.library.ListAuthors(c.Request.Context(), intQuery(c, "page", 1), lc.perPage)
	if errors.Is(err, library.ErrPageNotFound) {
		respondNotFound(c, "The requested Page was not found on the server.")
		return
	}
	if err != nil {
		respondInternalError(c, err, "list authors")
		return
	}
	listing := newListingPage(page, authorsPageOffset, newAuthorData)
	c.JSON(http.StatusOK, gin.H{
		"authors":      listing.Items,
		"pages":        listing.Pages,
		"current_page": listing.CurrentPage,
		"last_page":    listing.LastPage,
	})
}

// GET /library/authors/:id
func (lc *LibraryController) AuthorDetails(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	author, err := lc.library.GetAuthor(c.Request.Context(), id)
	if errors.Is(err, library.ErrAuthorNotFound) {
		respondNotFound(c, "This author does not exist.")
		return
	}
	if err != nil {
		respondInternalError(c, err, "get author")
		return
	}
	c.JSON(http.StatusOK, gin.H{"author": newAuthorData(*author)})
}

// GET /library/authors/add
func (lc *LibraryController) AddAuthorPage(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"form": authorForm{}})
}

// POST /library/authors/add
func (lc *LibraryController) AddAuthor(c *gin.Context) {
	var form authorForm
	if !bindForm(c, &form) {
		return
	}
	author, err := lc.library.CreateAuthor(c.Request.Context(), optionalString(form.FirstName), form.LastName, nil)
	if err != nil {
		lc.respondWriteError(c, err, "create author")
		return
	}
	respondCreated(c, "author_id", author.ID, checked(form.AddNext),
		fmt.Sprintf("/library/authors/%d", author.ID), "/library/authors/add")
}

// GET /library/authors/:id/edit
func (lc *LibraryController) EditAuthorPage(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	author, err := lc.library.GetAuthor(c.Request.Context(), id)
	if err != nil {
		lc.respondWriteError(c, err, "get author")
		return
	}
	c.JSON(http.StatusOK, gin.H{"form": gin.H{
		"author_id":  author.ID,
		"first_name": author.FirstName,
		"last_name":  author.LastName,
	}})
}

// POST /library/authors/:id/edit
func (lc *LibraryController) EditAuthor(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var form authorForm
	if !bindForm(c, &form) {
		return
	}
	author, err := lc.library.UpdateAuthor(c.Request.Context(), id, optionalString(form.FirstName), form.LastName, nil)
	if err != nil {
		lc.respondWriteError(c, err, "update author")
		return
	}
	respondRedirect(c, fmt.Sprintf("/library/authors/%d", author.ID), "Author updated.")
}

// DeleteAuthor removes an author without books.
// POST /library/authors/:id/delete
func (lc *LibraryController) DeleteAuthor(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	author, err := lc.library.DeleteAuthor(c.Request.Context(), id)
	if errors.Is(err, library.ErrDeleteRestricted) {
		respondError(c, http.StatusConflict, "Author cannot be deleted when books are still assigned to them.")
		return
	}
	if err != nil {
		lc.respondWriteError(c, err, "delete author")
		return
	}
	lc.logDelete(c, "author", author.ID, author.FullName())
	respondRedirect(c, "/library/authors", "Author was deleted successfully.")
}
