package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jollyrodger/pika/internal/audit"
	auditrepo "github.com/jollyrodger/pika/internal/database/audit"
	"github.com/jollyrodger/pika/internal/entities"
	"github.com/jollyrodger/pika/internal/pagination"
)

const auditPageSize = 25

type AuditController struct {
	auditService *audit.Service
}

func NewAuditController(auditService *audit.Service) *AuditController {
	return &AuditController{
		auditService: auditService,
	}
}

type EventTypeOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// AuditLog returns one page of audit events, newest first.
// GET /admin/audit?page=1&limit=25&type=admin&user_id=3
func (ac *AuditController) AuditLog(c *gin.Context) {
	page := intQuery(c, "page", 1)
	if page < 1 {
		page = 1
	}
	limit := intQuery(c, "limit", auditPageSize)
	if limit < 1 || limit > 100 {
		limit = auditPageSize
	}

	filter := auditrepo.Filter{EventType: entities.AuditEventType(c.Query("type"))}
	if v := c.Query("user_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			respondBadRequest(c, "invalid user_id")
			return
		}
		filter.UserID = uint(id)
	}

	events, total, err := ac.auditService.ListEvents(c.Request.Context(), filter, limit, (page-1)*limit)
	if err != nil {
		respondInternalError(c, err, "load audit events")
		return
	}

	totalPages := (int(total) + limit - 1) / limit
	if totalPages < 1 {
		totalPages = 1
	}

	c.JSON(http.StatusOK, gin.H{
		"events":       events,
		"pages":        pagination.Window(page, 2, totalPages),
		"current_page": page,
		"total_pages":  totalPages,
		"total_events": total,
		"event_type":   filter.EventType,
		"event_types":  eventTypes(),
	})
}

func eventTypes() []EventTypeOption {
	return []EventTypeOption{
		{Value: "", Label: "All Events"},
		{Value: string(entities.AuditEventAuth), Label: "Authentication"},
		{Value: string(entities.AuditEventAdmin), Label: "Administration"},
		{Value: string(entities.AuditEventDelete), Label: "Delete"},
		{Value: string(entities.AuditEventImport), Label: "Import"},
		{Value: string(entities.AuditEventSystem), Label: "System"},
	}
}
