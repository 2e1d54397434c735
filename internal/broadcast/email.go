package broadcast

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
)

const smtpTimeout = 15 * time.Second

// Sender delivers one composed message.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// Email mails a notification to the recipient's address.
type Email struct {
	sender Sender
	from   string
	actors repository.ActorRepository
}

// NewEmail returns nil when SMTP is not configured.
func NewEmail(cfg config.NotificationConfig, actors repository.ActorRepository) *Email {
	if strings.TrimSpace(cfg.SMTPHost) == "" {
		return nil
	}
	dialer := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword)
	return NewEmailWithSender(dialer, cfg.EmailFrom, actors)
}

// NewEmailWithSender builds the channel over any Sender.
func NewEmailWithSender(sender Sender, from string, actors repository.ActorRepository) *Email {
	return &Email{sender: sender, from: strings.TrimSpace(from), actors: actors}
}

func (e *Email) Broadcast(ctx context.Context, n domain.Notification) error {
	actor, err := e.actors.GetByID(ctx, n.UserID)
	if err != nil {
		return fmt.Errorf("lookup recipient: %w", err)
	}
	if !actor.Active() || actor.Email == "" {
		return nil
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", e.from)
	msg.SetHeader("To", actor.Email)
	msg.SetHeader("Subject", n.Title)
	body := n.Message
	if n.ResourceID != "" {
		body += fmt.Sprintf("\n\n%s %s", n.ResourceType, n.ResourceID)
	}
	msg.SetBody("text/plain", body)

	done := make(chan error, 1)
	go func() {
		done <- e.sender.DialAndSend(msg)
	}()

	wait := smtpTimeout
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d > 0 && d < wait {
			wait = d
		}
	}
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return context.DeadlineExceeded
	}
}
