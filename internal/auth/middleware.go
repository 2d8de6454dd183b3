package auth

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jollyrodger/pika/internal/entities"
)

// Context keys for user data
const (
	ContextKeyUser     = "auth_user"
	ContextKeyAuthType = "auth_type" // "session", "bearer", or "none"
)

// AuthType indicates how the user was authenticated
type AuthType string

const (
	AuthTypeNone    AuthType = "none"
	AuthTypeSession AuthType = "session"
	AuthTypeBearer  AuthType = "bearer"
)

// Messages of the authorization failures.
const (
	MessageAuthRequired = "Authentication required."
	MessageUnauthorized = "You are not authorized to access this resource."
)

// LoginPath is where anonymous web requests are redirected.
const LoginPath = "/auth/login"

// ErrorRenderer writes an aborting error response.
type ErrorRenderer func(c *gin.Context, status int, message string)

func defaultErrorRenderer(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

// Middleware handles authentication for HTTP requests.
type Middleware struct {
	service        *Service
	sessionManager *SessionManager
	renderError    ErrorRenderer
}

// MiddlewareOption configures a Middleware.
type MiddlewareOption func(*Middleware)

// WithErrorRenderer replaces the JSON body used for 401 responses.
func WithErrorRenderer(r ErrorRenderer) MiddlewareOption {
	return func(m *Middleware) {
		m.renderError = r
	}
}

// NewMiddleware creates a new authentication middleware.
func NewMiddleware(service *Service, sessionManager *SessionManager, opts ...MiddlewareOption) *Middleware {
	m := &Middleware{
		service:        service,
		sessionManager: sessionManager,
		renderError:    defaultErrorRenderer,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Handler identifies the user of a request. Anonymous requests pass through;
// use RequireAuth, RequireBearer or RequireRole to guard routes.
func (m *Middleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ContextKeyAuthType, AuthTypeNone)

		// Try Bearer token first (for API clients)
		if user := m.tryBearerAuth(c); user != nil {
			setUserContext(c, user, AuthTypeBearer)
		} else if user := m.trySessionAuth(c); user != nil {
			setUserContext(c, user, AuthTypeSession)
		}
		c.Next()
	}
}

func (m *Middleware) tryBearerAuth(c *gin.Context) *entities.User {
	token := BearerToken(c)
	if token == "" {
		return nil
	}
	user, err := m.service.ValidateToken(c.Request.Context(), token)
	if err != nil {
		return nil
	}
	return user
}

func (m *Middleware) trySessionAuth(c *gin.Context) *entities.User {
	if m.sessionManager == nil {
		return nil
	}

	userID := m.sessionManager.GetUserID(c.Request)
	if userID == 0 {
		return nil
	}

	user, err := m.service.GetUserByID(c.Request.Context(), userID)
	if err != nil || !user.Active {
		return nil
	}
	return user
}

func setUserContext(c *gin.Context, user *entities.User, authType AuthType) {
	c.Set(ContextKeyUser, user)
	c.Set(ContextKeyAuthType, authType)
}

// isAPIRequest determines if this is an API request vs web browser request.
func isAPIRequest(c *gin.Context) bool {
	if strings.HasPrefix(c.Request.URL.Path, "/api/") {
		return true
	}
	if strings.Contains(c.GetHeader("Accept"), "application/json") {
		return true
	}
	return c.GetHeader("Authorization") != ""
}

func (m *Middleware) unauthenticated(c *gin.Context) {
	if isAPIRequest(c) {
		m.renderError(c, http.StatusUnauthorized, MessageAuthRequired)
		c.Abort()
		return
	}
	c.Redirect(http.StatusFound, LoginPath+"?next="+url.QueryEscape(c.Request.URL.RequestURI()))
	c.Abort()
}

// RequireAuth rejects anonymous requests. Web requests are redirected to the
// login page, API requests get a 401.
func (m *Middleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetUser(c) == nil {
			m.unauthenticated(c)
			return
		}
		c.Next()
	}
}

// RequireBearer only lets requests through that carry a valid API token.
func (m *Middleware) RequireBearer() gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetAuthType(c) != AuthTypeBearer {
			m.renderError(c, http.StatusUnauthorized, MessageAuthRequired)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireRole returns a middleware that requires one of the given roles.
func (m *Middleware) RequireRole(roles ...entities.RoleName) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := GetUser(c)
		if user == nil {
			m.unauthenticated(c)
			return
		}
		if !user.HasRole(roles...) {
			m.renderError(c, http.StatusUnauthorized, MessageUnauthorized)
			c.Abort()
			return
		}
		c.Next()
	}
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(c *gin.Context) string {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// GetUser retrieves the authenticated user from the context, nil if anonymous.
func GetUser(c *gin.Context) *entities.User {
	if v, exists := c.Get(ContextKeyUser); exists {
		if user, ok := v.(*entities.User); ok {
			return user
		}
	}
	return nil
}

// GetUserID retrieves the authenticated user's ID from the context.
// Returns 0 if not authenticated.
func GetUserID(c *gin.Context) uint {
	if user := GetUser(c); user != nil {
		return user.ID
	}
	return 0
}

// GetAuthType retrieves the authentication method used.
func GetAuthType(c *gin.Context) AuthType {
	if t, exists := c.Get(ContextKeyAuthType); exists {
		if authType, ok := t.(AuthType); ok {
			return authType
		}
	}
	return AuthTypeNone
}

// IsAuthenticated returns true if the request is authenticated.
func IsAuthenticated(c *gin.Context) bool {
	return GetUser(c) != nil
}
