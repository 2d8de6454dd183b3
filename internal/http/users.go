package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jollyrodger/pika/internal/auth"
	"github.com/jollyrodger/pika/internal/database/community"
	"github.com/jollyrodger/pika/internal/database/users"
	"github.com/jollyrodger/pika/internal/entities"
)

const dashboardPath = "/user/dashboard"

type editNameForm struct {
	FirstName string `form:"first_name" validate:"max=255"`
	LastName  string `form:"last_name" validate:"max=255"`
}

type editEmailForm struct {
	Email string `form:"email" validate:"required,email"`
}

type editPasswordForm struct {
	OldPassword        string `form:"old_password" validate:"required"`
	NewPassword        string `form:"new_password" validate:"required"`
	NewPasswordConfirm string `form:"new_password_confirm" validate:"required"`
}

// SettingsView is what a user sees of their own account.
type SettingsView struct {
	UserBase
	Email      string              `json:"email"`
	FullName   string              `json:"full_name"`
	Roles      []entities.RoleName `json:"roles"`
	TokenValid bool                `json:"token_valid"`
}

// ProfileController serves the dashboard and settings of the logged in user.
type ProfileController struct {
	authService *auth.Service
	users       *users.Repository
	community   *community.Repository
}

func NewProfileController(authService *auth.Service, repo *users.Repository, communityRepo *community.Repository) *ProfileController {
	return &ProfileController{
		authService: authService,
		users:       repo,
		community:   communityRepo,
	}
}

// RegisterRoutes mounts /user on a group that requires a login.
func (pc *ProfileController) RegisterRoutes(group gin.IRouter) {
	group.GET("/dashboard", pc.Dashboard)
	group.GET("/settings", pc.Settings)
	group.GET("/edit/name", pc.Settings)
	group.POST("/edit/name", pc.EditName)
	group.GET("/edit/email", pc.Settings)
	group.POST("/edit/email", pc.EditEmail)
	group.GET("/edit/password", pc.PasswordPage)
	group.POST("/edit/password", pc.EditPassword)
}

func (pc *ProfileController) settingsView(c *gin.Context) (*SettingsView, bool) {
	user, err := pc.authService.GetUserByID(c.Request.Context(), auth.GetUserID(c))
	if err != nil {
		respondInternalError(c, err, "load user")
		return nil, false
	}
	return &SettingsView{
		UserBase:   *newUserBase(user),
		Email:      user.Email,
		FullName:   user.FullName(),
		Roles:      user.RoleNames(),
		TokenValid: user.TokenValid(time.Now().UTC()),
	}, true
}

// Dashboard shows the account overview with forum activity.
// GET /user/dashboard
func (pc *ProfileController) Dashboard(c *gin.Context) {
	view, ok := pc.settingsView(c)
	if !ok {
		return
	}
	var posts int64
	if pc.community != nil {
		var err error
		posts, err = pc.community.CountUserPosts(c.Request.Context(), view.UserID)
		if err != nil {
			respondInternalError(c, err, "count posts")
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"full_name":   view.FullName,
		"profile":     view,
		"posts_count": posts,
	})
}

// GET /user/settings
func (pc *ProfileController) Settings(c *gin.Context) {
	view, ok := pc.settingsView(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": view})
}

// GET /user/edit/password
func (pc *ProfileController) PasswordPage(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"form":                editPasswordForm{},
		"min_password_length": auth.MinPasswordLength,
	})
}

// POST /user/edit/name
func (pc *ProfileController) EditName(c *gin.Context) {
	var form editNameForm
	if !bindForm(c, &form) {
		return
	}
	err := pc.users.UpdateName(c.Request.Context(), auth.GetUserID(c), optionalString(form.FirstName), optionalString(form.LastName))
	if err != nil {
		respondInternalError(c, err, "update name")
		return
	}
	respondRedirect(c, dashboardPath, "Name updated.")
}

// EditEmail changes the email unless another account uses it.
// POST /user/edit/email
func (pc *ProfileController) EditEmail(c *gin.Context) {
	var form editEmailForm
	if !bindForm(c, &form) {
		return
	}
	ctx := c.Request.Context()
	userID := auth.GetUserID(c)
	email := strings.TrimSpace(form.Email)

	taken, err := pc.users.EmailTaken(ctx, email, userID)
	if err != nil {
		respondInternalError(c, err, "check email")
		return
	}
	if taken {
		respondFormError(c, "email", "Email is already in use")
		return
	}
	if err := pc.users.UpdateEmail(ctx, userID, email); err != nil {
		respondInternalError(c, err, "update email")
		return
	}
	respondRedirect(c, dashboardPath, "Email updated.")
}

// EditPassword replaces the password after checking the current one.
// POST /user/edit/password
func (pc *ProfileController) EditPassword(c *gin.Context) {
	var form editPasswordForm
	if !bindForm(c, &form) {
		return
	}
	err := pc.authService.ChangePassword(c.Request.Context(), auth.GetUserID(c), form.OldPassword, form.NewPassword, form.NewPasswordConfirm)
	switch {
	case err == nil:
		respondRedirect(c, dashboardPath, "Password updated.")
	case errors.Is(err, auth.ErrInvalidPassword):
		respondFormError(c, "old_password", "Current password is incorrect")
	case errors.Is(err, auth.ErrPasswordMismatch):
		respondFormError(c, "new_password_confirm", "New passwords are not the same")
	case errors.Is(err, auth.ErrPasswordTooShort), errors.Is(err, auth.ErrPasswordTooLong):
		respondFormError(c, "new_password", err.Error())
	default:
		respondInternalError(c, err, "change password")
	}
}
