// Package users provides database operations for accounts, roles and API tokens.
//
// # Usage
//
//	repo := users.NewRepository(db)
//	user, err := repo.GetByToken(ctx, token)
package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/jollyrodger/pika/internal/entities"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrRoleNotFound = errors.New("role not found")
)

// Repository handles all user database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new users repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a user holding the named roles.
func (r *Repository) Create(ctx context.Context, user *entities.User, roles ...entities.RoleName) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, name := range roles {
			var role entities.Role
			if err := tx.Where("name = ?", name).First(&role).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("%w: %s", ErrRoleNotFound, name)
				}
				return err
			}
			user.Roles = append(user.Roles, role)
		}
		if user.CreatedAt.IsZero() {
			user.CreatedAt = time.Now().UTC()
		}
		if user.LastLogin.IsZero() {
			user.LastLogin = user.CreatedAt
		}
		return tx.Omit("Roles.*").Create(user).Error
	})
}

// GetByID retrieves a user with roles by ID.
func (r *Repository) GetByID(ctx context.Context, id uint) (*entities.User, error) {
	return r.first(ctx, "user_id = ?", id)
}

// GetByUsername retrieves a user with roles by username.
func (r *Repository) GetByUsername(ctx context.Context, username string) (*entities.User, error) {
	return r.first(ctx, "username = ?", username)
}

func (r *Repository) GetByEmail(ctx context.Context, email string) (*entities.User, error) {
	return r.first(ctx, "email = ?", email)
}

// GetByToken retrieves the owner of an API token, expired or not.
func (r *Repository) GetByToken(ctx context.Context, token string) (*entities.User, error) {
	if token == "" {
		return nil, ErrUserNotFound
	}
	return r.first(ctx, "token = ?", token)
}

func (r *Repository) first(ctx context.Context, query string, args ...any) (*entities.User, error) {
	var user entities.User
	err := r.db.WithContext(ctx).Preload("Roles").Where(query, args...).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UsernameTaken reports whether another user than exceptID owns username.
func (r *Repository) UsernameTaken(ctx context.Context, username string, exceptID uint) (bool, error) {
	return r.exists(ctx, "username = ? AND user_id <> ?", username, exceptID)
}

// EmailTaken reports whether another user than exceptID owns email.
func (r *Repository) EmailTaken(ctx context.Context, email string, exceptID uint) (bool, error) {
	return r.exists(ctx, "email = ? AND user_id <> ?", email, exceptID)
}

func (r *Repository) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entities.User{}).Where(query, args...).Count(&count).Error
	return count > 0, err
}

func (r *Repository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entities.User{}).Count(&count).Error
	return count, err
}

// List returns every user with roles in creation order.
func (r *Repository) List(ctx context.Context) ([]entities.User, error) {
	var users []entities.User
	err := r.db.WithContext(ctx).Preload("Roles").Order("user_id").Find(&users).Error
	return users, err
}

// RecentLogins returns the n users who logged in last.
func (r *Repository) RecentLogins(ctx context.Context, n int) ([]entities.User, error) {
	var users []entities.User
	err := r.db.WithContext(ctx).Order("last_login DESC").Limit(n).Find(&users).Error
	return users, err
}

func (r *Repository) ListRoles(ctx context.Context) ([]entities.Role, error) {
	var roles []entities.Role
	err := r.db.WithContext(ctx).Order("id").Find(&roles).Error
	return roles, err
}

func (r *Repository) AssignRole(ctx context.Context, userID, roleID uint) error {
	user, role, err := r.userAndRole(ctx, userID, roleID)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Model(user).Omit("Roles.*").Association("Roles").Append(role)
}

func (r *Repository) RemoveRole(ctx context.Context, userID, roleID uint) error {
	user, role, err := r.userAndRole(ctx, userID, roleID)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Model(user).Association("Roles").Delete(role)
}

func (r *Repository) userAndRole(ctx context.Context, userID, roleID uint) (*entities.User, *entities.Role, error) {
	user, err := r.GetByID(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	var role entities.Role
	if err := r.db.WithContext(ctx).First(&role, roleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrRoleNotFound
		}
		return nil, nil, err
	}
	return user, &role, nil
}

func (r *Repository) SetActive(ctx context.Context, id uint, active bool) error {
	return r.update(ctx, id, map[string]any{"active": active})
}

func (r *Repository) UpdateName(ctx context.Context, id uint, firstName, lastName *string) error {
	return r.update(ctx, id, map[string]any{"first_name": firstName, "last_name": lastName})
}

func (r *Repository) UpdateEmail(ctx context.Context, id uint, email string) error {
	return r.update(ctx, id, map[string]any{"email": email})
}

func (r *Repository) UpdatePassword(ctx context.Context, id uint, passwordHash string) error {
	return r.update(ctx, id, map[string]any{"password": passwordHash})
}

// RecordLogin stores a successful login and clears failed attempts.
func (r *Repository) RecordLogin(ctx context.Context, id uint, at time.Time) error {
	return r.update(ctx, id, map[string]any{
		"last_login":         at,
		"failed_login_count": 0,
		"locked_until":       nil,
	})
}

// RecordFailedLogin counts a failed attempt and locks the account for
// lockout once maxAttempts is reached.
func (r *Repository) RecordFailedLogin(ctx context.Context, user *entities.User, maxAttempts int, lockout time.Duration) error {
	user.FailedLoginCount++
	updates := map[string]any{"failed_login_count": user.FailedLoginCount}
	if maxAttempts > 0 && user.FailedLoginCount >= maxAttempts {
		lockUntil := time.Now().UTC().Add(lockout)
		user.LockedUntil = &lockUntil
		updates["locked_until"] = lockUntil
	}
	return r.update(ctx, user.ID, updates)
}

// SetToken stores an API token and its expiration. Nil values clear them.
func (r *Repository) SetToken(ctx context.Context, id uint, token *string, expiration *time.Time) error {
	return r.update(ctx, id, map[string]any{"token": token, "token_expiration": expiration})
}

// SweepExpiredTokens clears tokens that expired before cutoff.
func (r *Repository) SweepExpiredTokens(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&entities.User{}).
		Where("token IS NOT NULL AND token_expiration < ?", cutoff).
		Updates(map[string]any{"token": nil, "token_expiration": nil})
	return result.RowsAffected, result.Error
}

func (r *Repository) update(ctx context.Context, id uint, updates map[string]any) error {
	result := r.db.WithContext(ctx).Model(&entities.User{}).Where("user_id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}
