package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jollyrodger/pika/internal/auth"
)

// TokenController hands out and revokes API bearer tokens.
type TokenController struct {
	authService *auth.Service
}

func NewTokenController(authService *auth.Service) *TokenController {
	return &TokenController{authService: authService}
}

// IssueToken exchanges HTTP basic credentials for a bearer token.
// POST /api/v1/token
func (tc *TokenController) IssueToken(c *gin.Context) {
	username, password, ok := c.Request.BasicAuth()
	if !ok {
		c.Header("WWW-Authenticate", `Basic realm="Authentication Required"`)
		respondAPIError(c, http.StatusUnauthorized, auth.MessageAuthRequired, nil)
		return
	}

	user, err := tc.authService.Authenticate(c.Request.Context(), username, password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials),
			errors.Is(err, auth.ErrAccountInactive),
			errors.Is(err, auth.ErrAccountLocked):
			c.Header("WWW-Authenticate", `Basic realm="Authentication Required"`)
			respondAPIError(c, http.StatusUnauthorized, auth.MessageAuthRequired, err.Error())
		default:
			respondAPIInternalError(c, err, "authenticate")
		}
		return
	}

	token, _, err := tc.authService.IssueToken(c.Request.Context(), user)
	if err != nil {
		respondAPIInternalError(c, err, "issue token")
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// RevokeToken expires the bearer token of the request.
// DELETE /api/v1/token
func (tc *TokenController) RevokeToken(c *gin.Context) {
	if err := tc.authService.RevokeToken(c.Request.Context(), auth.GetUser(c)); err != nil {
		respondAPIInternalError(c, err, "revoke token")
		return
	}
	c.Status(http.StatusNoContent)
}
