package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jollyrodger/pika/internal/audit"
	"github.com/jollyrodger/pika/internal/auth"
	"github.com/jollyrodger/pika/internal/database/users"
	"github.com/jollyrodger/pika/internal/entities"
)

// AccountView is a user as the administration sees it.
type AccountView struct {
	UserID          uint                `json:"user_id"`
	Username        string              `json:"username"`
	Email           string              `json:"email"`
	FullName        string              `json:"full_name"`
	Active          bool                `json:"active"`
	LastLogin       time.Time           `json:"last_login"`
	CreatedAt       time.Time           `json:"created_at"`
	Roles           []entities.RoleName `json:"roles"`
	HasToken        bool                `json:"has_token"`
	TokenValid      bool                `json:"token_valid"`
	TokenExpiration *time.Time          `json:"token_expiration"`
}

func newAccountView(now time.Time) func(entities.User) AccountView {
	return func(u entities.User) AccountView {
		return AccountView{
			UserID:          u.ID,
			Username:        u.Username,
			Email:           u.Email,
			FullName:        u.FullName(),
			Active:          u.Active,
			LastLogin:       u.LastLogin,
			CreatedAt:       u.CreatedAt,
			Roles:           u.RoleNames(),
			HasToken:        u.Token != nil,
			TokenValid:      u.TokenValid(now),
			TokenExpiration: u.TokenExpiration,
		}
	}
}

type userIDForm struct {
	UserID uint `form:"user_id" validate:"required"`
}

type roleChangeForm struct {
	UserID uint `form:"user_id" validate:"required"`
	RoleID uint `form:"role_id" validate:"required"`
}

// AdminController manages accounts, roles and API tokens of other users.
type AdminController struct {
	users       *users.Repository
	authService *auth.Service
	mailer      auth.ActivationSender
	events      *audit.Service
	now         func() time.Time
}

// NewAdminController creates the controller. mailer and events may be nil.
func NewAdminController(repo *users.Repository, authService *auth.Service, mailer auth.ActivationSender, events *audit.Service) *AdminController {
	return &AdminController{
		users:       repo,
		authService: authService,
		mailer:      mailer,
		events:      events,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// RegisterRoutes mounts /admin. The user overview is open to superusers,
// everything else needs the admin role.
func (ac *AdminController) RegisterRoutes(router gin.IRouter, mw *auth.Middleware, auditLog *AuditController) {
	group := router.Group("/admin")
	group.GET("/users", mw.RequireRole(entities.RoleAdmin, entities.RoleSuperuser), ac.Users)

	admin := group.Group("", mw.RequireRole(entities.RoleAdmin))
	admin.GET("/roles", ac.Roles)
	admin.POST("/roles/assign", ac.AssignRole)
	admin.POST("/roles/remove", ac.RemoveRole)
	admin.GET("/accounts", ac.Accounts)
	admin.POST("/accounts/enable", ac.EnableAccount)
	admin.POST("/accounts/disable", ac.DisableAccount)
	admin.POST("/accounts/send_activation_email", ac.SendActivationEmail)
	admin.POST("/token/renew", ac.RenewToken)
	admin.POST("/token/revoke", ac.RevokeToken)
	if auditLog != nil {
		admin.GET("/audit", auditLog.AuditLog)
	}
}

func (ac *AdminController) logAdmin(c *gin.Context, action string, targetID uint, description string, err error) {
	if ac.events != nil {
		ac.events.LogAdmin(auth.GetUserID(c), action, description, targetID, err)
	}
}

func (ac *AdminController) listAccounts(c *gin.Context) ([]AccountView, bool) {
	all, err := ac.users.List(c.Request.Context())
	if err != nil {
		respondInternalError(c, err, "list users")
		return nil, false
	}
	return mapSlice(all, newAccountView(ac.now())), true
}

// GET /admin/users
func (ac *AdminController) Users(c *gin.Context) {
	accounts, ok := ac.listAccounts(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"all_users": accounts, "now": ac.now()})
}

// GET /admin/roles
func (ac *AdminController) Roles(c *gin.Context) {
	accounts, ok := ac.listAccounts(c)
	if !ok {
		return
	}
	roles, err := ac.users.ListRoles(c.Request.Context())
	if err != nil {
		respondInternalError(c, err, "list roles")
		return
	}
	c.JSON(http.StatusOK, gin.H{"roles": roles, "users": accounts})
}

// POST /admin/roles/assign
func (ac *AdminController) AssignRole(c *gin.Context) {
	ac.changeRole(c, "role_assign", ac.users.AssignRole)
}

// POST /admin/roles/remove
func (ac *AdminController) RemoveRole(c *gin.Context) {
	ac.changeRole(c, "role_remove", ac.users.RemoveRole)
}

func (ac *AdminController) changeRole(c *gin.Context, action string, apply func(ctx context.Context, userID, roleID uint) error) {
	var form roleChangeForm
	if !bindForm(c, &form) {
		return
	}
	err := apply(c.Request.Context(), form.UserID, form.RoleID)
	ac.logAdmin(c, action, form.UserID, fmt.Sprintf("role %d", form.RoleID), err)
	if !ac.respondUserError(c, err, action) {
		return
	}
	respondRedirect(c, "/admin/roles", "Roles updated.")
}

// respondUserError maps an account lookup failure. It returns true when err is nil.
func (ac *AdminController) respondUserError(c *gin.Context, err error, op string) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, users.ErrUserNotFound), errors.Is(err, auth.ErrUserNotFound):
		respondNotFound(c, "This user does not exist.")
	case errors.Is(err, users.ErrRoleNotFound):
		respondNotFound(c, "This role does not exist.")
	default:
		respondInternalError(c, err, op)
	}
	return false
}

// GET /admin/accounts
func (ac *AdminController) Accounts(c *gin.Context) {
	accounts, ok := ac.listAccounts(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": accounts})
}

// POST /admin/accounts/enable
func (ac *AdminController) EnableAccount(c *gin.Context) {
	ac.setActive(c, true)
}

// POST /admin/accounts/disable
func (ac *AdminController) DisableAccount(c *gin.Context) {
	ac.setActive(c, false)
}

func (ac *AdminController) setActive(c *gin.Context, active bool) {
	var form userIDForm
	if !bindForm(c, &form) {
		return
	}
	action := "account_disable"
	if active {
		action = "account_enable"
	}
	err := ac.users.SetActive(c.Request.Context(), form.UserID, active)
	ac.logAdmin(c, action, form.UserID, "", err)
	if !ac.respondUserError(c, err, action) {
		return
	}
	respondRedirect(c, "/admin/accounts", "Account updated.")
}

// SendActivationEmail queues a fresh activation mail for an account.
// POST /admin/accounts/send_activation_email
func (ac *AdminController) SendActivationEmail(c *gin.Context) {
	var form userIDForm
	if !bindForm(c, &form) {
		return
	}
	user, err := ac.authService.GetUserByID(c.Request.Context(), form.UserID)
	if !ac.respondUserError(c, err, "get user") {
		return
	}
	if ac.mailer == nil {
		respondError(c, http.StatusServiceUnavailable, "Mail delivery is not configured.")
		return
	}

	token, err := ac.authService.ActivationToken(user.ID)
	if err == nil {
		_, err = ac.mailer.SendActivation(c.Request.Context(), user, token)
	}
	ac.logAdmin(c, "send_activation_email", user.ID, user.Email, err)
	if err != nil {
		respondInternalError(c, err, "send activation mail")
		return
	}
	respondRedirect(c, "/admin/accounts", "Activation mail queued.")
}

// RenewToken expires the API token of a user and issues a new one.
// POST /admin/token/renew
func (ac *AdminController) RenewToken(c *gin.Context) {
	ac.changeToken(c, "token_renew", func(user *entities.User) error {
		_, _, err := ac.authService.RenewToken(c.Request.Context(), user)
		return err
	})
}

// RevokeToken expires and removes the API token of a user.
// POST /admin/token/revoke
func (ac *AdminController) RevokeToken(c *gin.Context) {
	ac.changeToken(c, "token_revoke", func(user *entities.User) error {
		if err := ac.authService.RevokeToken(c.Request.Context(), user); err != nil {
			return err
		}
		return ac.authService.ClearToken(c.Request.Context(), user)
	})
}

func (ac *AdminController) changeToken(c *gin.Context, action string, apply func(*entities.User) error) {
	var form userIDForm
	if !bindForm(c, &form) {
		return
	}
	user, err := ac.authService.GetUserByID(c.Request.Context(), form.UserID)
	if !ac.respondUserError(c, err, "get user") {
		return
	}
	err = apply(user)
	ac.logAdmin(c, action, user.ID, "", err)
	if err != nil {
		respondInternalError(c, err, action)
		return
	}
	respondRedirect(c, "/admin/users", "Token updated.")
}
