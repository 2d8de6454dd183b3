package http

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jollyrodger/pika/internal/audit"
	"github.com/jollyrodger/pika/internal/auth"
	"github.com/jollyrodger/pika/internal/covers"
	"github.com/jollyrodger/pika/internal/database/library"
	"github.com/jollyrodger/pika/internal/metadata"
)

const importSource = "goodreads"

// Previewer turns a book page URL into a prefilled book form.
type Previewer interface {
	Preview(ctx context.Context, pageURL string) (*metadata.ImportPreview, error)
}

// ImportController imports books from Goodreads pages.
type ImportController struct {
	previewer Previewer
	library   *library.Repository
	covers    *covers.Store
	auditor   *audit.Auditor
	events    *audit.Service
}

// NewImportController creates the controller. auditor and events may be nil.
func NewImportController(previewer Previewer, repo *library.Repository, store *covers.Store, auditor *audit.Auditor, events *audit.Service) *ImportController {
	return &ImportController{
		previewer: previewer,
		library:   repo,
		covers:    store,
		auditor:   auditor,
		events:    events,
	}
}

// RegisterRoutes mounts the import pages on the /library group.
func (ic *ImportController) RegisterRoutes(group gin.IRouter) {
	group.GET("/import/goodreads", ic.ImportPage)
	group.POST("/import/preview", ic.Preview)
	group.POST("/import/confirm", ic.Confirm)
}

// GET /library/import/goodreads
func (ic *ImportController) ImportPage(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"form":   previewForm{},
		"source": importSource,
	})
}

// Preview scrapes the page and returns the book form to confirm.
// POST /library/import/preview
func (ic *ImportController) Preview(c *gin.Context) {
	var form previewForm
	if !bindForm(c, &form) {
		return
	}

	preview, err := ic.previewer.Preview(c.Request.Context(), form.ImportURL)
	switch {
	case errors.Is(err, metadata.ErrTitleNotFound):
		respondError(c, http.StatusUnprocessableEntity, "The page does not look like a Goodreads book page.")
		return
	case errors.Is(err, metadata.ErrUnexpectedStatus):
		respondError(c, http.StatusBadGateway, "Goodreads did not return the book page.")
		return
	case err != nil:
		log.Printf("Import preview of %s failed: %v", form.ImportURL, err)
		respondError(c, http.StatusBadGateway, "The book page could not be fetched.")
		return
	}

	series, err := ic.library.AllSeries(c.Request.Context())
	if err != nil {
		respondInternalError(c, err, "load series choices")
		return
	}
	authors, err := ic.library.AllAuthors(c.Request.Context())
	if err != nil {
		respondInternalError(c, err, "load author choices")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"form": preview,
		"choices": FormChoices{
			Series:  mapSlice(series, newSeriesBase),
			Authors: mapSlice(authors, newAuthorBase),
		},
	})
}

// Confirm creates the previewed book, downloads its cover and keeps a
// snapshot of what was imported.
// POST /library/import/confirm
func (ic *ImportController) Confirm(c *gin.Context) {
	var form importForm
	if !bindForm(c, &form) {
		return
	}
	ctx := c.Request.Context()
	userID := auth.GetUserID(c)

	book, err := ic.library.CreateBook(ctx, form.input())
	if err != nil {
		ic.logImport(userID, form.ImportURL, nil, "", err)
		var nf *library.NotFoundError
		if errors.As(err, &nf) {
			respondNotFound(c, nf.Error())
			return
		}
		respondInternalError(c, err, "create imported book")
		return
	}

	if form.CoverURL != "" {
		cover, err := ic.covers.Download(ctx, book.ID, form.CoverURL)
		if err != nil {
			log.Printf("Cover download for book %d failed: %v", book.ID, err)
		} else if err := ic.library.SetCover(ctx, book.ID, &cover); err != nil {
			log.Printf("Failed to set cover of book %d: %v", book.ID, err)
			ic.covers.Remove(cover)
		}
	}

	var snapshot string
	if ic.auditor != nil {
		snapshot, err = ic.auditor.SaveJSON(gin.H{
			"source":     importSource,
			"import_url": form.ImportURL,
			"cover_url":  form.CoverURL,
			"book":       form.input(),
		})
		if err != nil {
			log.Printf("Failed to save import snapshot: %v", err)
		}
	}
	ic.logImport(userID, form.ImportURL, &book.ID, snapshot, nil)

	details := fmt.Sprintf("/library/books/%d", book.ID)
	c.Header("Location", details)
	c.JSON(http.StatusCreated, gin.H{"book_id": book.ID, "next": details})
}

func (ic *ImportController) logImport(userID uint, url string, bookID *uint, snapshot string, err error) {
	if ic.events != nil {
		ic.events.LogImport(userID, importSource, "Imported "+url, bookID, snapshot, err)
	}
}
