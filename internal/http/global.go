package http

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/jollyrodger/pika/internal/auth"
	"github.com/jollyrodger/pika/internal/database/library"
	"github.com/jollyrodger/pika/internal/entities"
	"github.com/jollyrodger/pika/internal/search"
)

const (
	recentReleasesCount = 10
	searchResultsCount  = 10
	gravatarURL         = "https://www.gravatar.com/avatar/"
)

// GlobalController serves the landing page, the library search and the user icon.
type GlobalController struct {
	library *library.Repository
	index   *search.Index
	db      *gorm.DB
}

func NewGlobalController(repo *library.Repository, index *search.Index, db *gorm.DB) *GlobalController {
	return &GlobalController{library: repo, index: index, db: db}
}

// Index returns the latest releases.
// GET /
func (gc *GlobalController) Index(c *gin.Context) {
	books, err := gc.library.RecentReleases(c.Request.Context(), recentReleasesCount)
	if err != nil {
		respondInternalError(c, err, "load recent releases")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"recent_releases": mapSlice(books, newBookData),
		"viewer":          GetViewerData(c),
	})
}

// SearchResults holds the best matches of every library index.
type SearchResults struct {
	Query   string       `json:"query"`
	Books   []BookData   `json:"books"`
	Series  []SeriesData `json:"series"`
	Authors []AuthorData `json:"authors"`
	Total   int64        `json:"total"`
}

// Search queries books, series and authors.
// GET /search?q=
func (gc *GlobalController) Search(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		c.Redirect(http.StatusFound, "/")
		return
	}
	ctx := c.Request.Context()

	books, booksTotal, err := search.Search[entities.Book](ctx, gc.index, gc.db, q, 1, searchResultsCount, "Authors", "Series")
	if err != nil {
		respondInternalError(c, err, "search books")
		return
	}
	series, seriesTotal, err := search.Search[entities.Series](ctx, gc.index, gc.db, q, 1, searchResultsCount, "Books", "Books.Authors")
	if err != nil {
		respondInternalError(c, err, "search series")
		return
	}
	authors, authorsTotal, err := search.Search[entities.Author](ctx, gc.index, gc.db, q, 1, searchResultsCount, "Books", "Books.Series")
	if err != nil {
		respondInternalError(c, err, "search authors")
		return
	}

	c.JSON(http.StatusOK, SearchResults{
		Query:   q,
		Books:   mapSlice(books, newBookData),
		Series:  mapSlice(series, newSeriesData),
		Authors: mapSlice(authors, newAuthorData),
		Total:   booksTotal + seriesTotal + authorsTotal,
	})
}

// Icon redirects to the gravatar identicon of the logged in user.
// GET /icon?size=
func (gc *GlobalController) Icon(c *gin.Context) {
	user := auth.GetUser(c)
	size := intQuery(c, "size", 80)
	if size < 1 || size > 2048 {
		size = 80
	}
	c.Redirect(http.StatusFound, gravatar(user.Email, size))
}

func gravatar(email string, size int) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email))))
	return fmt.Sprintf("%s%s?d=identicon&s=%d", gravatarURL, hex.EncodeToString(sum[:]), size)
}

// GET /ping
func Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}
