package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/dukerupert/homestead/internal/email"
	"github.com/dukerupert/homestead/internal/model"
)

// Mailer sends a transactional email.
type Mailer interface {
	Send(ctx context.Context, msg email.Message) error
}

// EmailNotifier sends reminders to the recipient's email address.
type EmailNotifier struct {
	mailer Mailer
	now    func() time.Time
}

func NewEmailNotifier(mailer Mailer) *EmailNotifier {
	return &EmailNotifier{mailer: mailer, now: time.Now}
}

func (n *EmailNotifier) Notify(ctx context.Context, recipient *model.User, task *model.Task) error {
	msg := ReminderMessage(recipient, task, n.now())
	err := n.mailer.Send(ctx, email.Message{
		To:       recipient.Email,
		Subject:  msg.Subject,
		TextBody: msg.Text(),
		HTMLBody: msg.HTML(),
	})
	if err != nil {
		return fmt.Errorf("email reminder to user %d: %w", recipient.ID, err)
	}
	return nil
}
