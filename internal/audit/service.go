package audit

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/jollyrodger/pika/internal/database/audit"
	"github.com/jollyrodger/pika/internal/entities"
)

// Service provides high-level audit logging functionality.
type Service struct {
	repo    *audit.Repository
	pending sync.WaitGroup
}

// NewService creates a new audit service.
func NewService(repo *audit.Repository) *Service {
	return &Service{repo: repo}
}

// Log records an audit event synchronously.
func (s *Service) Log(ctx context.Context, event *entities.AuditEvent) error {
	return s.repo.LogEvent(ctx, event)
}

// LogAsync records an audit event in the background (non-blocking).
func (s *Service) LogAsync(event *entities.AuditEvent) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.repo.LogEvent(context.Background(), event); err != nil {
			log.Printf("Failed to log audit event %s: %v", event.Action, err)
		}
	}()
}

// Wait blocks until all background writes are done.
func (s *Service) Wait() {
	s.pending.Wait()
}

// LogAuth records a registration, activation, login or logout.
func (s *Service) LogAuth(userID uint, action, ipAddr, userAgent string, success bool) {
	event := &entities.AuditEvent{
		UserID:    userID,
		EventType: entities.AuditEventAuth,
		Action:    action,
		IPAddress: ipAddr,
		UserAgent: truncate(userAgent, 500),
		Status:    entities.AuditStatusSuccess,
	}
	if !success {
		event.Status = entities.AuditStatusFailed
	}
	s.LogAsync(event)
}

// LogAdmin records an action taken by actorID on the account targetID.
func (s *Service) LogAdmin(actorID uint, action, description string, targetID uint, err error) {
	event := &entities.AuditEvent{
		UserID:      actorID,
		EventType:   entities.AuditEventAdmin,
		Action:      action,
		Description: truncate(description, 500),
		EntityType:  "user",
		EntityID:    &targetID,
		Status:      entities.AuditStatusSuccess,
	}
	setError(event, err)
	s.LogAsync(event)
}

// LogDelete records the deletion of a library record.
func (s *Service) LogDelete(userID uint, entityType string, entityID uint, entityName string) {
	event := &entities.AuditEvent{
		UserID:      userID,
		EventType:   entities.AuditEventDelete,
		Action:      entityType + "_delete",
		Description: truncate("Deleted "+entityType+": "+entityName, 500),
		EntityType:  entityType,
		EntityID:    &entityID,
		Status:      entities.AuditStatusSuccess,
	}
	s.LogAsync(event)
}

// LogImport records a metadata import. snapshot names the saved source
// document, bookID is set once the imported book exists.
func (s *Service) LogImport(userID uint, source, description string, bookID *uint, snapshot string, err error) {
	event := &entities.AuditEvent{
		UserID:      userID,
		EventType:   entities.AuditEventImport,
		Action:      source + "_import",
		Description: truncate(description, 500),
		EntityType:  "book",
		EntityID:    bookID,
		Status:      entities.AuditStatusSuccess,
	}
	if snapshot != "" {
		if md, e := json.Marshal(map[string]string{"snapshot": snapshot}); e == nil {
			event.Metadata = string(md)
		}
	}
	setError(event, err)
	s.LogAsync(event)
}

// LogSystem records maintenance work such as reindexing or token sweeps.
func (s *Service) LogSystem(action string, affected int64, err error) {
	event := &entities.AuditEvent{
		EventType:   entities.AuditEventSystem,
		Action:      action,
		Description: strconv.FormatInt(affected, 10) + " records affected",
		Status:      entities.AuditStatusSuccess,
	}
	setError(event, err)
	s.LogAsync(event)
}

// ListEvents retrieves paginated audit events.
func (s *Service) ListEvents(ctx context.Context, filter audit.Filter, limit, offset int) ([]entities.AuditEvent, int64, error) {
	return s.repo.ListEvents(ctx, filter, limit, offset)
}

// DeleteOldEvents removes events older than the specified duration.
func (s *Service) DeleteOldEvents(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)
	return s.repo.DeleteOldEvents(ctx, cutoff)
}

func setError(event *entities.AuditEvent, err error) {
	if err != nil {
		event.Status = entities.AuditStatusFailed
		event.ErrorMsg = truncate(err.Error(), 500)
	}
}

// truncate shortens a string to max length.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
