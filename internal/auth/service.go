package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jollyrodger/pika/internal/config"
	"github.com/jollyrodger/pika/internal/database/users"
	"github.com/jollyrodger/pika/internal/entities"
)

// Validation patterns
var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,20}$`)
	emailPattern    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUsernameTaken      = errors.New("this username is already taken")
	ErrEmailTaken         = errors.New("this email is already in use")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
	ErrAuthRequired       = errors.New("authentication required")
	ErrUsernameRequired   = errors.New("username is required")
	ErrEmailRequired      = errors.New("email is required")
	ErrPasswordRequired   = errors.New("password is required")
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrAccountLocked      = errors.New("account is locked due to too many failed login attempts")
	ErrAccountInactive    = errors.New("account is not activated")
	ErrUsernameInvalid    = errors.New("username must be 3-20 characters, alphanumeric and underscore/hyphen only")
	ErrEmailInvalid       = errors.New("invalid email format")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// tokenReuseMargin is the minimum remaining lifetime for an API token to be handed out again.
const tokenReuseMargin = 60 * time.Second

// Service handles authentication and account management.
type Service struct {
	users  *users.Repository
	config config.Auth
	now    func() time.Time
}

// NewService creates a new authentication service.
func NewService(repo *users.Repository, cfg config.Auth) *Service {
	return &Service{
		users:  repo,
		config: cfg,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Register creates an inactive account with the user role.
func (s *Service) Register(ctx context.Context, username, email, password, confirm string) (*entities.User, error) {
	if err := validateAccount(username, email, password); err != nil {
		return nil, err
	}
	if password != confirm {
		return nil, ErrPasswordMismatch
	}

	if taken, err := s.users.UsernameTaken(ctx, username, 0); err != nil {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	} else if taken {
		return nil, ErrUsernameTaken
	}
	if taken, err := s.users.EmailTaken(ctx, email, 0); err != nil {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	} else if taken {
		return nil, ErrEmailTaken
	}

	passwordHash, err := HashPassword(password, s.config.BcryptCost)
	if err != nil {
		return nil, err
	}

	user := &entities.User{
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Active:       false,
	}
	if err := s.users.Create(ctx, user, entities.RoleUser); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

func validateAccount(username, email, password string) error {
	if username == "" {
		return ErrUsernameRequired
	}
	if email == "" {
		return ErrEmailRequired
	}
	if password == "" {
		return ErrPasswordRequired
	}

	if !usernamePattern.MatchString(username) {
		return ErrUsernameInvalid
	}
	// RFC 5321 limit is 254
	if len(email) > 254 || !emailPattern.MatchString(email) {
		return ErrEmailInvalid
	}
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	return nil
}

// ValidEmail reports whether email is well-formed.
func ValidEmail(email string) bool {
	return len(email) <= 254 && emailPattern.MatchString(email)
}

// Authenticate validates credentials of an active account and records the login.
// Implements account lockout after too many failed attempts.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*entities.User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	now := s.now()
	if user.LockedUntil != nil && now.Before(*user.LockedUntil) {
		return nil, ErrAccountLocked
	}

	if err := CheckPassword(password, user.PasswordHash); err != nil {
		maxAttempts := s.config.MaxLoginAttempts
		if maxAttempts <= 0 {
			maxAttempts = 5
		}
		lockout := s.config.LockoutDuration
		if lockout == 0 {
			lockout = 30 * time.Minute
		}
		if recErr := s.users.RecordFailedLogin(ctx, user, maxAttempts, lockout); recErr != nil {
			return nil, recErr
		}
		return nil, ErrInvalidCredentials
	}

	if !user.Active {
		return nil, ErrAccountInactive
	}

	if err := s.users.RecordLogin(ctx, user.ID, now); err != nil {
		return nil, fmt.Errorf("failed to record login: %w", err)
	}
	user.LastLogin = now
	user.FailedLoginCount = 0
	user.LockedUntil = nil
	return user, nil
}

// GetUserByID retrieves a user by their ID.
func (s *Service) GetUserByID(ctx context.Context, id uint) (*entities.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if errors.Is(err, users.ErrUserNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}

// ValidateToken returns the active owner of an unexpired API token.
func (s *Service) ValidateToken(ctx context.Context, token string) (*entities.User, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	user, err := s.users.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if !user.TokenValid(s.now()) {
		return nil, ErrTokenExpired
	}
	if !user.Active {
		return nil, ErrAccountInactive
	}
	return user, nil
}

// IssueToken returns the user's API token. A token with more than a minute
// left is reused, otherwise a new one is stored.
func (s *Service) IssueToken(ctx context.Context, user *entities.User) (string, time.Time, error) {
	now := s.now()
	if user.TokenValid(now.Add(tokenReuseMargin)) {
		return *user.Token, *user.TokenExpiration, nil
	}

	token, err := GenerateAPIToken()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate token: %w", err)
	}
	expiry := s.config.TokenExpiry
	if expiry <= 0 {
		expiry = time.Hour
	}
	expiration := now.Add(expiry)

	if err := s.users.SetToken(ctx, user.ID, &token, &expiration); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to save token: %w", err)
	}
	user.Token = &token
	user.TokenExpiration = &expiration
	return token, expiration, nil
}

// RevokeToken expires a user's API token immediately but keeps it stored.
func (s *Service) RevokeToken(ctx context.Context, user *entities.User) error {
	if user.Token == nil {
		return nil
	}
	expired := s.now().Add(-time.Second)
	if err := s.users.SetToken(ctx, user.ID, user.Token, &expired); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	user.TokenExpiration = &expired
	return nil
}

// ClearToken removes a user's API token entirely.
func (s *Service) ClearToken(ctx context.Context, user *entities.User) error {
	if err := s.users.SetToken(ctx, user.ID, nil, nil); err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}
	user.Token = nil
	user.TokenExpiration = nil
	return nil
}

// RenewToken revokes the current API token and issues a new one.
func (s *Service) RenewToken(ctx context.Context, user *entities.User) (string, time.Time, error) {
	if err := s.RevokeToken(ctx, user); err != nil {
		return "", time.Time{}, err
	}
	return s.IssueToken(ctx, user)
}

// ActivationToken creates the token sent in activation mails.
func (s *Service) ActivationToken(userID uint) (string, error) {
	ttl := s.config.ActivationExpiry
	if ttl <= 0 {
		ttl = 90 * time.Minute
	}
	return NewActivationToken(s.config.SecretKey, userID, ttl, s.now())
}

// Activate enables the account named by an activation token.
func (s *Service) Activate(ctx context.Context, token string) (*entities.User, error) {
	userID, err := ParseActivationToken(s.config.SecretKey, token)
	if err != nil {
		return nil, err
	}
	if err := s.users.SetActive(ctx, userID, true); err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return s.GetUserByID(ctx, userID)
}

// Deactivate disables an account.
func (s *Service) Deactivate(ctx context.Context, userID uint) error {
	return s.users.SetActive(ctx, userID, false)
}

// ChangePassword updates a user's password after checking the old one.
func (s *Service) ChangePassword(ctx context.Context, userID uint, oldPassword, newPassword, confirm string) error {
	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}

	// Verify old password
	if err := CheckPassword(oldPassword, user.PasswordHash); err != nil {
		return err
	}
	if newPassword != confirm {
		return ErrPasswordMismatch
	}

	newHash, err := HashPassword(newPassword, s.config.BcryptCost)
	if err != nil {
		return err
	}
	return s.users.UpdatePassword(ctx, userID, newHash)
}

// HasUsers returns true if any users exist in the database.
func (s *Service) HasUsers(ctx context.Context) (bool, error) {
	count, err := s.users.Count(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
