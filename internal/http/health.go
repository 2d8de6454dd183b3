package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jollyrodger/pika/internal/database"
	"github.com/jollyrodger/pika/internal/entities"
	"github.com/jollyrodger/pika/internal/search"
)

type HealthResponse struct {
	Status  string            `json:"status"`
	Time    string            `json:"time"`
	Uptime  string            `json:"uptime"`
	Version string            `json:"version,omitempty"`
	Checks  map[string]string `json:"checks"`
}

type HealthController struct {
	db      *database.Database
	index   *search.Index
	version string
	started time.Time
}

// NewHealthController creates the controller. index may be nil.
func NewHealthController(db *database.Database, index *search.Index, version string) *HealthController {
	return &HealthController{
		db:      db,
		index:   index,
		version: version,
		started: time.Now(),
	}
}

// Status pings the database and runs a probe query against the search index.
// GET /health
func (h *HealthController) Status(c *gin.Context) {
	checks := make(map[string]string)
	healthy := true

	if h.db == nil {
		checks["database"] = "not configured"
	} else if err := h.pingDatabase(c.Request.Context()); err != nil {
		checks["database"] = "error: " + err.Error()
		healthy = false
	} else {
		checks["database"] = "ok"
	}

	if h.index == nil {
		checks["search"] = "not configured"
	} else if healthy {
		if _, _, err := h.index.Query(c.Request.Context(), entities.IndexBooks, "health", 1, 1); err != nil {
			checks["search"] = "error: " + err.Error()
			healthy = false
		} else {
			checks["search"] = "ok"
		}
	}

	resp := HealthResponse{
		Status:  "healthy",
		Time:    time.Now().Format(time.RFC3339),
		Uptime:  time.Since(h.started).Round(time.Second).String(),
		Version: h.version,
		Checks:  checks,
	}
	status := http.StatusOK
	if !healthy {
		resp.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}
	c.IndentedJSON(status, resp)
}

func (h *HealthController) pingDatabase(ctx context.Context) error {
	sqlDB, err := h.db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
