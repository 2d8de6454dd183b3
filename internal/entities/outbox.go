package entities

import "time"

type MailKind string

const (
	MailActivation MailKind = "activation"
)

// OutboundMail is a message waiting for, or already handed to, the mailer.
type OutboundMail struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	UserID    uint       `gorm:"index" json:"user_id"`
	Kind      MailKind   `gorm:"size:50" json:"kind"`
	Recipient string     `gorm:"size:255;not null" json:"recipient"`
	Subject   string     `gorm:"size:255" json:"subject"`
	Body      string     `gorm:"type:text" json:"body"`
	CreatedAt time.Time  `json:"created_at"`
	SentAt    *time.Time `gorm:"index" json:"sent_at,omitempty"`
	LastError string     `gorm:"size:500" json:"last_error,omitempty"`
}

func (OutboundMail) TableName() string {
	return "outbound_mails"
}

func (m OutboundMail) Sent() bool {
	return m.SentAt != nil
}
