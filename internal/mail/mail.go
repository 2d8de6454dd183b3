// Package mail queues account mails in the outbox and hands them to a Mailer.
//
// Mails are never sent while a request is being served. SendActivation
// stores the message and asks the DeliveryScheduler (the task queue) to call
// Deliver later. Without a scheduler Deliver runs inline.
package mail

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/jollyrodger/pika/internal/database/outbox"
	"github.com/jollyrodger/pika/internal/entities"
)

// Message is a single plain text mail.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer writes messages to the process log instead of sending them.
type LogMailer struct {
	Logger *log.Logger
}

func (m LogMailer) Send(ctx context.Context, msg Message) error {
	printf := log.Printf
	if m.Logger != nil {
		printf = m.Logger.Printf
	}
	printf("[MAIL] To: %s Subject: %s\n%s", msg.To, msg.Subject, msg.Body)
	return nil
}

// DeliveryScheduler enqueues the delivery of a stored mail.
type DeliveryScheduler interface {
	ScheduleDelivery(ctx context.Context, mailID uint) error
}

type Service struct {
	outbox    *outbox.Repository
	mailer    Mailer
	scheduler DeliveryScheduler
	baseURL   string
	now       func() time.Time
}

func NewService(repo *outbox.Repository, mailer Mailer, scheduler DeliveryScheduler, baseURL string) *Service {
	return &Service{
		outbox:    repo,
		mailer:    mailer,
		scheduler: scheduler,
		baseURL:   strings.TrimRight(baseURL, "/"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ActivationLink returns the URL that activates an account.
func (s *Service) ActivationLink(token string) string {
	return s.baseURL + "/auth/activate?token=" + url.QueryEscape(token)
}

// SendActivation stores the activation mail for user and schedules its delivery.
func (s *Service) SendActivation(ctx context.Context, user *entities.User, token string) (*entities.OutboundMail, error) {
	mail := &entities.OutboundMail{
		UserID:    user.ID,
		Kind:      entities.MailActivation,
		Recipient: user.Email,
		Subject:   "Activate your account",
		Body: fmt.Sprintf("Hello %s,\n\nplease activate your account by following this link:\n\n%s\n\nThe link is valid for 90 minutes.\n",
			user.Username, s.ActivationLink(token)),
	}
	if err := s.outbox.Enqueue(ctx, mail); err != nil {
		return nil, fmt.Errorf("failed to store activation mail: %w", err)
	}
	return mail, s.schedule(ctx, mail.ID)
}

func (s *Service) schedule(ctx context.Context, mailID uint) error {
	if s.scheduler == nil {
		return s.Deliver(ctx, mailID)
	}
	return s.scheduler.ScheduleDelivery(ctx, mailID)
}

// Deliver sends a stored mail once. Mails already sent are skipped.
func (s *Service) Deliver(ctx context.Context, mailID uint) error {
	mail, err := s.outbox.Get(ctx, mailID)
	if err != nil {
		return err
	}
	if mail.Sent() {
		return nil
	}

	msg := Message{To: mail.Recipient, Subject: mail.Subject, Body: mail.Body}
	if err := s.mailer.Send(ctx, msg); err != nil {
		if markErr := s.outbox.MarkFailed(ctx, mail.ID, err); markErr != nil {
			log.Printf("Failed to record mail %d failure: %v", mail.ID, markErr)
		}
		return fmt.Errorf("failed to send mail %d: %w", mail.ID, err)
	}
	return s.outbox.MarkSent(ctx, mail.ID, s.now())
}

// ResumePending schedules every mail that has not been sent yet, for
// instance after a restart lost the queue.
func (s *Service) ResumePending(ctx context.Context) (int, error) {
	pending, err := s.outbox.Pending(ctx)
	if err != nil {
		return 0, err
	}
	for _, mail := range pending {
		if err := s.schedule(ctx, mail.ID); err != nil {
			return 0, err
		}
	}
	return len(pending), nil
}
