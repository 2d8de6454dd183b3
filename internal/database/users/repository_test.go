package users

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jollyrodger/pika/internal/database"
	"github.com/jollyrodger/pika/internal/entities"
)

func setupTestDB(t *testing.T) *Repository {
	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "users.db"), "silent")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(db.DB)
}

func createUser(t *testing.T, repo *Repository, username string, roles ...entities.RoleName) *entities.User {
	t.Helper()
	user := &entities.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "hash",
		Active:       true,
	}
	require.NoError(t, repo.Create(context.Background(), user, roles...))
	return user
}

func TestRepository_Create(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	user := createUser(t, repo, "testuser", entities.RoleUser)
	assert.NotZero(t, user.ID)
	assert.False(t, user.CreatedAt.IsZero())

	loaded, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "testuser", loaded.Username)
	assert.Equal(t, []entities.RoleName{entities.RoleUser}, loaded.RoleNames())
}

func TestRepository_CreateInactive(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	user := &entities.User{Username: "pending", Email: "pending@example.com", Active: false}
	require.NoError(t, repo.Create(ctx, user))

	loaded, err := repo.GetByUsername(ctx, "pending")
	require.NoError(t, err)
	assert.False(t, loaded.Active)
}

func TestRepository_Create_UnknownRole(t *testing.T) {
	repo := setupTestDB(t)

	user := &entities.User{Username: "x", Email: "x@example.com"}
	err := repo.Create(context.Background(), user, "pirate")
	assert.ErrorIs(t, err, ErrRoleNotFound)
}

func TestRepository_Lookups(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	user := createUser(t, repo, "reader")

	byEmail, err := repo.GetByEmail(ctx, "reader@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)

	_, err = repo.GetByID(ctx, 999)
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = repo.GetByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = repo.GetByToken(ctx, "")
	assert.ErrorIs(t, err, ErrUserNotFound)

	taken, err := repo.UsernameTaken(ctx, "reader", 0)
	require.NoError(t, err)
	assert.True(t, taken)

	taken, err = repo.EmailTaken(ctx, "reader@example.com", user.ID)
	require.NoError(t, err)
	assert.False(t, taken, "own email is not taken")
}

func TestRepository_Roles(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	user := createUser(t, repo, "member", entities.RoleUser)

	roles, err := repo.ListRoles(ctx)
	require.NoError(t, err)
	require.Len(t, roles, 3)

	require.NoError(t, repo.AssignRole(ctx, user.ID, roles[0].ID))
	loaded, _ := repo.GetByID(ctx, user.ID)
	assert.True(t, loaded.HasRole(entities.RoleAdmin))

	require.NoError(t, repo.RemoveRole(ctx, user.ID, roles[0].ID))
	loaded, _ = repo.GetByID(ctx, user.ID)
	assert.False(t, loaded.HasRole(entities.RoleAdmin))
	assert.True(t, loaded.HasRole(entities.RoleUser))

	assert.ErrorIs(t, repo.AssignRole(ctx, user.ID, 999), ErrRoleNotFound)
	assert.ErrorIs(t, repo.AssignRole(ctx, 999, roles[0].ID), ErrUserNotFound)
}

func TestRepository_Tokens(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	user := createUser(t, repo, "api")

	token := "0123456789abcdef0123456789abcdef"
	expires := time.Now().UTC().Add(time.Hour)
	require.NoError(t, repo.SetToken(ctx, user.ID, &token, &expires))

	loaded, err := repo.GetByToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, loaded.ID)
	assert.True(t, loaded.TokenValid(time.Now()))

	require.NoError(t, repo.SetToken(ctx, user.ID, nil, nil))
	_, err = repo.GetByToken(ctx, token)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestRepository_SweepExpiredTokens(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	stale := createUser(t, repo, "stale")
	fresh := createUser(t, repo, "fresh")

	staleToken, freshToken := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	staleExp := time.Now().UTC().Add(-48 * time.Hour)
	freshExp := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, repo.SetToken(ctx, stale.ID, &staleToken, &staleExp))
	require.NoError(t, repo.SetToken(ctx, fresh.ID, &freshToken, &freshExp))

	swept, err := repo.SweepExpiredTokens(ctx, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), swept)

	_, err = repo.GetByToken(ctx, staleToken)
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = repo.GetByToken(ctx, freshToken)
	assert.NoError(t, err)
}

func TestRepository_LoginTracking(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	first := createUser(t, repo, "first")
	second := createUser(t, repo, "second")

	require.NoError(t, repo.RecordFailedLogin(ctx, first, 2, time.Hour))
	assert.Nil(t, first.LockedUntil)
	require.NoError(t, repo.RecordFailedLogin(ctx, first, 2, time.Hour))
	require.NotNil(t, first.LockedUntil)

	loaded, _ := repo.GetByID(ctx, first.ID)
	assert.Equal(t, 2, loaded.FailedLoginCount)
	require.NotNil(t, loaded.LockedUntil)

	require.NoError(t, repo.RecordLogin(ctx, first.ID, time.Now().UTC().Add(time.Minute)))
	loaded, _ = repo.GetByID(ctx, first.ID)
	assert.Zero(t, loaded.FailedLoginCount)
	assert.Nil(t, loaded.LockedUntil)

	recent, err := repo.RecentLogins(ctx, 5)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, first.ID, recent[0].ID)
	assert.Equal(t, second.ID, recent[1].ID)
}

func TestRepository_Updates(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	user := createUser(t, repo, "editor")

	first, last := "Ed", "Itor"
	require.NoError(t, repo.UpdateName(ctx, user.ID, &first, &last))
	require.NoError(t, repo.UpdateEmail(ctx, user.ID, "new@example.com"))
	require.NoError(t, repo.SetActive(ctx, user.ID, false))

	loaded, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ed Itor", loaded.FullName())
	assert.Equal(t, "new@example.com", loaded.Email)
	assert.False(t, loaded.Active)

	assert.ErrorIs(t, repo.SetActive(ctx, 999, true), ErrUserNotFound)
}
