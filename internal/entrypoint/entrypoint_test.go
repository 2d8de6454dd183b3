package entrypoint

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jollyrodger/pika/internal/auth"
	"github.com/jollyrodger/pika/internal/config"
	"github.com/jollyrodger/pika/internal/database"
	"github.com/jollyrodger/pika/internal/database/library"
	"github.com/jollyrodger/pika/internal/database/users"
	"github.com/jollyrodger/pika/internal/entities"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Global:   config.Global{LogLevel: "silent"},
		Database: config.Database{Path: filepath.Join(t.TempDir(), "pika.db")},
		Search:   config.Search{CacheSize: 16},
		Auth:     config.Auth{BcryptCost: 4},
		Setup: config.Setup{
			AdminUsername: "Admin",
			AdminEmail:    "admin@example.com",
			AdminPassword: "correct horse battery",
		},
	}
}

func TestOpen_IndexesCommittedChanges(t *testing.T) {
	cfg := testConfig(t)
	db, index, err := Open(cfg)
	require.NoError(t, err)
	defer db.Close()

	_, err = library.NewRepository(db.DB).CreateAuthor(context.Background(), nil, "Herbert", nil)
	require.NoError(t, err)

	ids, total, err := index.Query(context.Background(), entities.IndexAuthors, "herbert", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, ids, 1)
}

func TestSeedDefaultRecords(t *testing.T) {
	cfg := testConfig(t)
	db, _, err := Open(cfg)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, SeedDefaultRecords(db, cfg))
	// a second run leaves the existing records alone
	require.NoError(t, SeedDefaultRecords(db, cfg))

	admin, err := users.NewRepository(db.DB).GetByUsername(context.Background(), "Admin")
	require.NoError(t, err)
	assert.True(t, admin.Active)
	assert.True(t, admin.HasRole(entities.RoleAdmin))
	assert.NoError(t, auth.CheckPassword("correct horse battery", admin.PasswordHash))

	var threads int64
	require.NoError(t, db.DB.Model(&entities.Thread{}).Count(&threads).Error)
	assert.Equal(t, int64(len(database.DefaultThreads)), threads)
}

func TestSeedDefaultRecords_GeneratesPassword(t *testing.T) {
	cfg := testConfig(t)
	cfg.Setup.AdminPassword = ""
	db, _, err := Open(cfg)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, SeedDefaultRecords(db, cfg))

	admin, err := users.NewRepository(db.DB).GetByUsername(context.Background(), "Admin")
	require.NoError(t, err)
	assert.NotEmpty(t, admin.PasswordHash)
}

func TestCSRFKey(t *testing.T) {
	secret, err := auth.GenerateSecret()
	require.NoError(t, err)

	key := csrfKey(secret)
	assert.Len(t, key, 32)
	assert.Equal(t, key, csrfKey(secret))

	assert.Len(t, csrfKey("short passphrase"), 32)
	assert.NotEqual(t, csrfKey("one"), csrfKey("two"))
}
