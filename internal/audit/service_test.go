package audit

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	auditRepo "github.com/jollyrodger/pika/internal/database/audit"
	"github.com/jollyrodger/pika/internal/entities"
)

func setupTestService(t *testing.T) (*Service, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "audit.db")+"?_busy_timeout=5000"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&entities.AuditEvent{}))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	return NewService(auditRepo.NewRepository(db)), db
}

func TestService_Log(t *testing.T) {
	svc, db := setupTestService(t)

	event := &entities.AuditEvent{
		UserID:    1,
		EventType: entities.AuditEventSystem,
		Action:    "reindex",
		Status:    entities.AuditStatusSuccess,
	}
	require.NoError(t, svc.Log(context.Background(), event))

	var saved entities.AuditEvent
	require.NoError(t, db.First(&saved, event.ID).Error)
	assert.Equal(t, "reindex", saved.Action)
	assert.False(t, saved.CreatedAt.IsZero())
}

func TestService_LogAuth(t *testing.T) {
	svc, db := setupTestService(t)

	svc.LogAuth(3, "login", "10.0.0.1", "curl/8.0", true)
	svc.LogAuth(3, "login", "10.0.0.1", "curl/8.0", false)
	svc.Wait()

	var events []entities.AuditEvent
	require.NoError(t, db.Where("event_type = ?", entities.AuditEventAuth).Order("id").Find(&events).Error)
	require.Len(t, events, 2)

	statuses := []entities.AuditStatus{events[0].Status, events[1].Status}
	assert.ElementsMatch(t, []entities.AuditStatus{entities.AuditStatusSuccess, entities.AuditStatusFailed}, statuses)
	assert.Equal(t, "10.0.0.1", events[0].IPAddress)
}

func TestService_LogAdmin(t *testing.T) {
	svc, db := setupTestService(t)

	svc.LogAdmin(1, "role_assign", "Assigned admin to bob", 7, nil)
	svc.LogAdmin(1, "account_disable", "Disable bob", 7, errors.New("user not found"))
	svc.Wait()

	var ok entities.AuditEvent
	require.NoError(t, db.Where("action = ?", "role_assign").First(&ok).Error)
	assert.Equal(t, entities.AuditEventAdmin, ok.EventType)
	require.NotNil(t, ok.EntityID)
	assert.Equal(t, uint(7), *ok.EntityID)

	var failed entities.AuditEvent
	require.NoError(t, db.Where("action = ?", "account_disable").First(&failed).Error)
	assert.Equal(t, entities.AuditStatusFailed, failed.Status)
	assert.Equal(t, "user not found", failed.ErrorMsg)
}

func TestService_LogDelete(t *testing.T) {
	svc, db := setupTestService(t)

	svc.LogDelete(2, "book", 42, "The Hobbit")
	svc.Wait()

	var event entities.AuditEvent
	require.NoError(t, db.Where("action = ?", "book_delete").First(&event).Error)
	assert.Equal(t, "Deleted book: The Hobbit", event.Description)
	assert.Equal(t, "book", event.EntityType)
}

func TestService_LogImport(t *testing.T) {
	svc, db := setupTestService(t)

	bookID := uint(9)
	svc.LogImport(2, "goodreads", "Imported The Hobbit", &bookID, "abc.json", nil)
	svc.LogImport(2, "goodreads_preview", "Preview failed", nil, "", errors.New("unexpected status 503"))
	svc.Wait()

	var event entities.AuditEvent
	require.NoError(t, db.Where("action = ?", "goodreads_import").First(&event).Error)
	assert.Contains(t, event.Metadata, "abc.json")
	assert.Equal(t, entities.AuditStatusSuccess, event.Status)

	var failed entities.AuditEvent
	require.NoError(t, db.Where("action = ?", "goodreads_preview_import").First(&failed).Error)
	assert.Nil(t, failed.EntityID)
	assert.Contains(t, failed.ErrorMsg, "503")
}

func TestService_DeleteOldEvents(t *testing.T) {
	svc, db := setupTestService(t)
	ctx := context.Background()

	old := &entities.AuditEvent{Action: "old", EventType: entities.AuditEventSystem, CreatedAt: time.Now().UTC().Add(-40 * 24 * time.Hour)}
	recent := &entities.AuditEvent{Action: "recent", EventType: entities.AuditEventSystem}
	require.NoError(t, svc.Log(ctx, old))
	require.NoError(t, svc.Log(ctx, recent))

	deleted, err := svc.DeleteOldEvents(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	var count int64
	require.NoError(t, db.Model(&entities.AuditEvent{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	events, total, err := svc.ListEvents(ctx, auditRepo.Filter{}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "recent", events[0].Action)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}
