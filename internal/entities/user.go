package entities

import (
	"time"
)

type RoleName string

const (
	RoleAdmin     RoleName = "admin"
	RoleSuperuser RoleName = "superuser"
	RoleUser      RoleName = "user"
)

// DefaultRoles are created on first start.
var DefaultRoles = []RoleName{RoleAdmin, RoleSuperuser, RoleUser}

type Role struct {
	ID   uint     `gorm:"primaryKey" json:"id"`
	Name RoleName `gorm:"uniqueIndex;size:20" json:"name"`
}

func (Role) TableName() string {
	return "roles"
}

// UserRole is the join table between users and roles.
type UserRole struct {
	RoleID uint `gorm:"primaryKey"`
	UserID uint `gorm:"primaryKey;index"`
}

func (UserRole) TableName() string {
	return "user_roles"
}

type User struct {
	ID              uint       `gorm:"primaryKey;column:user_id" json:"user_id"`
	Username        string     `gorm:"uniqueIndex;size:20;not null" json:"username"`
	PasswordHash    string     `gorm:"column:password;size:255" json:"-"`
	Email           string     `gorm:"uniqueIndex;size:255;not null" json:"email"`
	FirstName       *string    `gorm:"size:255" json:"first_name"`
	LastName        *string    `gorm:"size:255" json:"last_name"`
	LastLogin       time.Time  `json:"last_login"`
	CreatedAt       time.Time  `json:"created_at"`
	Active          bool       `gorm:"not null;default:false" json:"active"`
	Token           *string    `gorm:"uniqueIndex;size:32" json:"-"`
	TokenExpiration *time.Time `json:"-"`

	FailedLoginCount int        `gorm:"default:0" json:"-"`
	LockedUntil      *time.Time `json:"-"`

	Roles []Role `gorm:"many2many:user_roles;joinForeignKey:UserID;joinReferences:RoleID" json:"roles,omitempty"`
}

func (User) TableName() string {
	return "users"
}

// FullName joins first and last name, skipping empty parts.
func (u User) FullName() string {
	var first, last string
	if u.FirstName != nil {
		first = *u.FirstName
	}
	if u.LastName != nil {
		last = *u.LastName
	}
	switch {
	case first != "" && last != "":
		return first + " " + last
	case first != "":
		return first
	default:
		return last
	}
}

// RoleNames returns the names of all roles assigned to the user.
func (u User) RoleNames() []RoleName {
	names := make([]RoleName, 0, len(u.Roles))
	for _, r := range u.Roles {
		names = append(names, r.Name)
	}
	return names
}

// HasRole reports whether the user holds any of the given roles.
func (u User) HasRole(roles ...RoleName) bool {
	for _, r := range u.Roles {
		for _, want := range roles {
			if r.Name == want {
				return true
			}
		}
	}
	return false
}

// TokenValid reports whether the user's API token is set and not expired at now.
func (u User) TokenValid(now time.Time) bool {
	if u.Token == nil || *u.Token == "" || u.TokenExpiration == nil {
		return false
	}
	return u.TokenExpiration.After(now)
}
