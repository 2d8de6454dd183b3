// Package outbox persists outgoing mails until the mailer has delivered them.
package outbox

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/jollyrodger/pika/internal/entities"
)

var ErrMailNotFound = errors.New("mail not found")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Enqueue(ctx context.Context, mail *entities.OutboundMail) error {
	if mail.CreatedAt.IsZero() {
		mail.CreatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(mail).Error
}

func (r *Repository) Get(ctx context.Context, id uint) (*entities.OutboundMail, error) {
	var mail entities.OutboundMail
	err := r.db.WithContext(ctx).First(&mail, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMailNotFound
	}
	if err != nil {
		return nil, err
	}
	return &mail, nil
}

// Pending returns unsent mails, oldest first.
func (r *Repository) Pending(ctx context.Context) ([]entities.OutboundMail, error) {
	var mails []entities.OutboundMail
	err := r.db.WithContext(ctx).Where("sent_at IS NULL").Order("id").Find(&mails).Error
	return mails, err
}

func (r *Repository) MarkSent(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&entities.OutboundMail{}).Where("id = ?", id).
		Updates(map[string]any{"sent_at": at, "last_error": ""}).Error
}

func (r *Repository) MarkFailed(ctx context.Context, id uint, cause error) error {
	msg := cause.Error()
	if len(msg) > 500 {
		msg = msg[:500]
	}
	return r.db.WithContext(ctx).Model(&entities.OutboundMail{}).Where("id = ?", id).
		Update("last_error", msg).Error
}
