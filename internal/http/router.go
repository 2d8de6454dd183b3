package http

import (
	"github.com/gin-gonic/gin"

	"github.com/jollyrodger/pika/internal/auth"
)

// NewRouter creates and configures the HTTP router with all endpoints.
// The returned function releases background resources of the controllers.
func NewRouter(cfg RouterConfig) (*gin.Engine, func()) {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// Apply security headers to all responses
	router.Use(auth.SecurityHeadersMiddleware())

	// CSRF must run before the session so that the session context survives
	// CSRF's request replacement
	if len(cfg.CSRFSecret) > 0 {
		router.Use(auth.CSRFMiddleware(cfg.CSRFSecret, cfg.AuthConfig.SecureCookies))
	}
	router.Use(cfg.SessionManager.SessionLoadSave())

	mw := auth.NewMiddleware(cfg.AuthService, cfg.SessionManager)
	apiMW := auth.NewMiddleware(cfg.AuthService, cfg.SessionManager, auth.WithErrorRenderer(renderAPIError))
	router.Use(mw.Handler())
	router.Use(ViewerContextMiddleware())

	var auditor auth.Auditor
	if cfg.AuditService != nil {
		auditor = cfg.AuditService
	}
	accounts := auth.NewAccountController(cfg.AuthService, cfg.SessionManager, cfg.Mailer, auditor, cfg.AuthConfig)
	accounts.RegisterRoutes(router, mw)

	// Health endpoints
	health := NewHealthController(cfg.Database, cfg.Index, cfg.Version)
	router.GET("/health", health.Status)
	router.GET("/ping", Ping)

	// Global pages
	global := NewGlobalController(cfg.Library, cfg.Index, cfg.Database.DB)
	router.GET("/", global.Index)
	router.GET("/search", mw.RequireAuth(), global.Search)
	router.GET("/icon", mw.RequireAuth(), global.Icon)

	// REST API
	api := router.Group("/api/v1")
	tokens := NewTokenController(cfg.AuthService)
	api.POST("/token", tokens.IssueToken)
	api.DELETE("/token", apiMW.RequireBearer(), tokens.RevokeToken)
	protected := api.Group("", apiMW.RequireBearer())
	NewLibraryAPIController(cfg.Library).RegisterRoutes(protected)

	// Library pages
	libraryGroup := router.Group("/library", mw.RequireAuth())
	NewLibraryController(cfg.Library, cfg.Covers, cfg.AuditService, cfg.PerPage).RegisterRoutes(libraryGroup)
	libraryGroup.GET("/books/:id/cover", NewCoversController(cfg.Covers, cfg.Library).GetCover)
	if cfg.Previewer != nil {
		NewImportController(cfg.Previewer, cfg.Library, cfg.Covers, cfg.Auditor, cfg.AuditService).RegisterRoutes(libraryGroup)
	}

	// Community
	NewCommunityController(cfg.Community, cfg.Users, cfg.SessionManager, cfg.ContactEmail).RegisterRoutes(router, mw)

	// Account settings
	profile := NewProfileController(cfg.AuthService, cfg.Users, cfg.Community)
	profile.RegisterRoutes(router.Group("/user", mw.RequireAuth()))

	// Administration
	var auditLog *AuditController
	if cfg.AuditService != nil {
		auditLog = NewAuditController(cfg.AuditService)
	}
	NewAdminController(cfg.Users, cfg.AuthService, cfg.Mailer, cfg.AuditService).RegisterRoutes(router, mw, auditLog)

	return router, accounts.Stop
}
