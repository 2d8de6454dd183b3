package auth

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jollyrodger/pika/internal/config"
	"github.com/jollyrodger/pika/internal/entities"
)

// DefaultLoginRedirect is where a login without a next parameter ends up.
const DefaultLoginRedirect = "/user/dashboard"

// ActivationSender queues the activation mail of a new account.
type ActivationSender interface {
	SendActivation(ctx context.Context, user *entities.User, token string) (*entities.OutboundMail, error)
}

// Auditor records authentication events.
type Auditor interface {
	LogAuth(userID uint, action, ipAddr, userAgent string, success bool)
}

// isLocalPath validates that a redirect path is local to prevent open redirect attacks.
func isLocalPath(path string) bool {
	if !strings.HasPrefix(path, "/") || strings.HasPrefix(path, "//") {
		return false
	}
	return !strings.Contains(path, "://") && !strings.Contains(path, "\\")
}

// sanitizeRedirectPath returns path when it is local, fallback otherwise.
func sanitizeRedirectPath(path, fallback string) string {
	if isLocalPath(path) {
		return path
	}
	return fallback
}

// AccountController serves registration, activation, login and logout.
type AccountController struct {
	service        *Service
	sessionManager *SessionManager
	mailer         ActivationSender
	auditor        Auditor
	rateLimiter    *RateLimiter
}

// NewAccountController creates the controller and its login rate limiter.
// mailer and auditor may be nil.
func NewAccountController(service *Service, sessionManager *SessionManager, mailer ActivationSender, auditor Auditor, cfg config.Auth) *AccountController {
	return &AccountController{
		service:        service,
		sessionManager: sessionManager,
		mailer:         mailer,
		auditor:        auditor,
		rateLimiter:    NewRateLimiter(cfg, 5*time.Minute),
	}
}

// RegisterRoutes registers the /auth routes.
func (ac *AccountController) RegisterRoutes(router gin.IRouter, mw *Middleware) {
	group := router.Group("/auth")
	group.POST("/register", ac.Register)
	group.GET("/activate", ac.Activate)
	group.GET("/login", ac.LoginPage)
	group.POST("/login", ac.Login)
	group.GET("/logout", ac.Logout)
	group.POST("/logout", ac.Logout)
	group.GET("/deactivate", mw.RequireAuth(), ac.Deactivate)
}

// Stop cleans up resources (rate limiter background goroutine).
func (ac *AccountController) Stop() {
	ac.rateLimiter.Stop()
}

func (ac *AccountController) audit(c *gin.Context, userID uint, action string, success bool) {
	if ac.auditor != nil {
		ac.auditor.LogAuth(userID, action, c.ClientIP(), c.Request.UserAgent(), success)
	}
}

// Register creates an inactive account and queues its activation mail.
func (ac *AccountController) Register(c *gin.Context) {
	user, err := ac.service.Register(c.Request.Context(),
		strings.TrimSpace(c.PostForm("new_username")),
		strings.TrimSpace(c.PostForm("new_email")),
		c.PostForm("new_password"),
		c.PostForm("new_confirm_password"),
	)
	if err != nil {
		if isValidationError(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.Printf("Failed to register user: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		return
	}
	ac.audit(c, user.ID, "register", true)

	if err := ac.sendActivation(c.Request.Context(), user); err != nil {
		log.Printf("Failed to queue activation mail for user %d: %v", user.ID, err)
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Your account has been created. Check your mailbox for the activation link.",
		"user_id": user.ID,
	})
}

func (ac *AccountController) sendActivation(ctx context.Context, user *entities.User) error {
	if ac.mailer == nil {
		return nil
	}
	token, err := ac.service.ActivationToken(user.ID)
	if err != nil {
		return err
	}
	_, err = ac.mailer.SendActivation(ctx, user, token)
	return err
}

func isValidationError(err error) bool {
	for _, target := range []error{
		ErrUsernameRequired, ErrEmailRequired, ErrPasswordRequired,
		ErrUsernameInvalid, ErrEmailInvalid, ErrPasswordTooShort, ErrPasswordTooLong,
		ErrPasswordMismatch, ErrUsernameTaken, ErrEmailTaken,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Activate enables the account named by the token query parameter.
func (ac *AccountController) Activate(c *gin.Context) {
	user, err := ac.service.Activate(c.Request.Context(), c.Query("token"))
	switch {
	case errors.Is(err, ErrTokenExpired):
		c.JSON(http.StatusGone, gin.H{"error": "Token Expired"})
		return
	case errors.Is(err, ErrInvalidToken):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid token"})
		return
	case err != nil:
		log.Printf("Failed to activate account: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "activation failed"})
		return
	}
	ac.audit(c, user.ID, "activate", true)
	c.JSON(http.StatusOK, gin.H{"message": "Your account has been activated.", "username": user.Username})
}

// LoginPage returns what the login form needs.
func (ac *AccountController) LoginPage(c *gin.Context) {
	if ac.sessionManager.IsAuthenticated(c.Request) {
		c.Redirect(http.StatusFound, DefaultLoginRedirect)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"title":      "Login",
		"next":       sanitizeRedirectPath(c.Query("next"), DefaultLoginRedirect),
		"csrf_token": GetCSRFToken(c),
	})
}

// Login checks the credentials of an active account and starts a session.
func (ac *AccountController) Login(c *gin.Context) {
	username := strings.TrimSpace(c.PostForm("username"))
	password := c.PostForm("password")
	next := sanitizeRedirectPath(c.PostForm("next"), DefaultLoginRedirect)
	clientIP := c.ClientIP()

	if allowed, retryAfter := ac.rateLimiter.Allow(clientIP, username); !allowed {
		c.Header("Retry-After", RetryAfterSeconds(retryAfter))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many login attempts. Please try again later."})
		return
	}

	user, err := ac.service.Authenticate(c.Request.Context(), username, password)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			ac.rateLimiter.RecordFailure(clientIP, username)
			ac.audit(c, 0, "login", false)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
		case errors.Is(err, ErrAccountLocked):
			c.JSON(http.StatusLocked, gin.H{"error": "Account is locked. Please try again later."})
		case errors.Is(err, ErrAccountInactive):
			c.JSON(http.StatusForbidden, gin.H{"error": "Please activate your account first."})
		default:
			log.Printf("Failed to authenticate %q: %v", username, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		}
		return
	}

	ac.rateLimiter.RecordSuccess(clientIP, username)
	if err := ac.sessionManager.CreateSession(c.Request, user); err != nil {
		log.Printf("Failed to create session: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
		return
	}
	ac.audit(c, user.ID, "login", true)

	c.Redirect(http.StatusFound, next)
}

// Logout destroys the session.
func (ac *AccountController) Logout(c *gin.Context) {
	userID := ac.sessionManager.GetUserID(c.Request)
	if err := ac.sessionManager.DestroySession(c.Request); err != nil {
		log.Printf("Failed to destroy session: %v", err)
	}
	if userID != 0 {
		ac.audit(c, userID, "logout", true)
	}
	c.Redirect(http.StatusFound, "/")
}

// Deactivate disables the current account and logs out.
func (ac *AccountController) Deactivate(c *gin.Context) {
	userID := GetUserID(c)
	if err := ac.service.Deactivate(c.Request.Context(), userID); err != nil {
		log.Printf("Failed to deactivate user %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "deactivation failed"})
		return
	}
	ac.audit(c, userID, "deactivate", true)
	_ = ac.sessionManager.DestroySession(c.Request)
	c.Redirect(http.StatusFound, "/")
}
