package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jollyrodger/pika/internal/covers"
	"github.com/jollyrodger/pika/internal/database/library"
)

// CoversController serves stored cover images inline.
type CoversController struct {
	store   *covers.Store
	library *library.Repository
}

func NewCoversController(store *covers.Store, repo *library.Repository) *CoversController {
	return &CoversController{
		store:   store,
		library: repo,
	}
}

// GetCover serves the cover image of a book.
// GET /library/books/:id/cover
func (cc *CoversController) GetCover(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	book, err := cc.library.GetBook(c.Request.Context(), id)
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}
	if book.Cover == nil || !cc.store.Exists(*book.Cover) {
		c.Status(http.StatusNotFound)
		return
	}

	c.Header("Cache-Control", "private, max-age=3600")
	c.File(cc.store.Path(*book.Cover))
}
