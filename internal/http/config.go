package http

import (
	"github.com/jollyrodger/pika/internal/audit"
	"github.com/jollyrodger/pika/internal/auth"
	"github.com/jollyrodger/pika/internal/config"
	"github.com/jollyrodger/pika/internal/covers"
	"github.com/jollyrodger/pika/internal/database"
	"github.com/jollyrodger/pika/internal/database/community"
	"github.com/jollyrodger/pika/internal/database/library"
	"github.com/jollyrodger/pika/internal/database/users"
	"github.com/jollyrodger/pika/internal/search"
)

// RouterConfig contains all dependencies and configuration needed
// to create the HTTP router.
type RouterConfig struct {
	// Core dependencies
	Database  *database.Database
	Library   *library.Repository
	Community *community.Repository
	Users     *users.Repository
	Index     *search.Index
	Covers    *covers.Store

	// Goodreads import
	Previewer Previewer
	Auditor   *audit.Auditor

	// Authentication
	AuthService    *auth.Service
	SessionManager *auth.SessionManager
	AuthConfig     config.Auth
	CSRFSecret     []byte // CSRF protection is off when empty
	Mailer         auth.ActivationSender

	// Audit log (optional)
	AuditService *audit.Service

	PerPage      int
	ContactEmail string
	Version      string
}
