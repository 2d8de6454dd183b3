package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/mikestefanello/backlite"
)

// MailDeliverer sends a stored outbox mail and marks it sent.
type MailDeliverer interface {
	Deliver(ctx context.Context, mailID uint) error
}

// SendActivationMailTask delivers one outbox row.
type SendActivationMailTask struct {
	MailID uint `json:"mail_id"`
}

func (t SendActivationMailTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "send_activation_mail",
		MaxAttempts: 5,
		Backoff:     30 * time.Second,
		Timeout:     30 * time.Second,
		Retention: &backlite.Retention{
			Duration:   7 * 24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// SendActivationMailProcessor creates a processor function for SendActivationMailTask.
func SendActivationMailProcessor(deliverer MailDeliverer) backlite.QueueProcessor[SendActivationMailTask] {
	return func(ctx context.Context, task SendActivationMailTask) error {
		if task.MailID == 0 {
			return fmt.Errorf("mail ID is required")
		}
		if err := deliverer.Deliver(ctx, task.MailID); err != nil {
			return fmt.Errorf("deliver mail %d: %w", task.MailID, err)
		}
		return nil
	}
}

func NewSendActivationMailQueue(deliverer MailDeliverer) backlite.Queue {
	return backlite.NewQueue(SendActivationMailProcessor(deliverer))
}
