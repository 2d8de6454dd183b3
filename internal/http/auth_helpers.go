package http

import (
	"github.com/gin-gonic/gin"

	"github.com/jollyrodger/pika/internal/auth"
	"github.com/jollyrodger/pika/internal/entities"
)

const contextKeyViewer = "viewer_data"

// ViewerData tells a page client who is looking at it.
type ViewerData struct {
	LoggedIn  bool                `json:"logged_in"`
	Username  string              `json:"username,omitempty"`
	Roles     []entities.RoleName `json:"roles,omitempty"`
	CSRFToken string              `json:"csrf_token,omitempty"`
}

// ViewerContextMiddleware stores the viewer of the request for the page handlers.
// It runs after the auth middleware.
func ViewerContextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		viewer := ViewerData{CSRFToken: auth.GetCSRFToken(c)}
		if user := auth.GetUser(c); user != nil {
			viewer.LoggedIn = true
			viewer.Username = user.Username
			viewer.Roles = user.RoleNames()
		}
		c.Set(contextKeyViewer, viewer)
		c.Next()
	}
}

// GetViewerData returns the viewer stored by ViewerContextMiddleware.
func GetViewerData(c *gin.Context) ViewerData {
	if data, exists := c.Get(contextKeyViewer); exists {
		if viewer, ok := data.(ViewerData); ok {
			return viewer
		}
	}
	return ViewerData{}
}
