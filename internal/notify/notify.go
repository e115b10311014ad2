// Package notify delivers task reminders to users over email and web push.
package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/dukerupert/homestead/internal/model"
)

// Notifier delivers one reminder for task to recipient.
type Notifier interface {
	Notify(ctx context.Context, recipient *model.User, task *model.Task) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, recipient *model.User, task *model.Task) error

func (f NotifierFunc) Notify(ctx context.Context, recipient *model.User, task *model.Task) error {
	return f(ctx, recipient, task)
}

// Message is the rendered reminder shared by every channel.
type Message struct {
	Subject  string
	Greeting string
	Body     string
}

// Text renders the message as plain text.
func (m Message) Text() string {
	return m.Greeting + "\n\n" + m.Body
}

// HTML renders the message as an HTML fragment.
func (m Message) HTML() string {
	return "<p>" + html.EscapeString(m.Greeting) + "</p><p>" + html.EscapeString(m.Body) + "</p>"
}

// ReminderMessage renders the reminder for task relative to now. The time
// left is rounded up to the next whole minute.
func ReminderMessage(recipient *model.User, task *model.Task, now time.Time) Message {
	body := fmt.Sprintf("This is a reminder that the deadline for your assigned task, %s, is soon.", task.Title)
	if task.Deadline != nil {
		body = reminderBody(task.Title, *task.Deadline, now)
	}
	return Message{
		Subject:  "Task reminder: " + task.Title,
		Greeting: "Hello " + firstName(recipient.Name) + "!",
		Body:     body,
	}
}

func reminderBody(title string, deadline, now time.Time) string {
	left := deadline.Sub(now)
	if left <= 0 {
		rel := humanize.RelTime(deadline, now, "ago", "from now")
		if rel == "now" {
			return fmt.Sprintf("This is a reminder that your assigned task, %s, is due now.", title)
		}
		return fmt.Sprintf("This is a reminder that your assigned task, %s, was due %s.", title, rel)
	}
	if rem := left % time.Minute; rem > 0 {
		left += time.Minute - rem
	}
	return fmt.Sprintf("This is a reminder that the deadline for your assigned task, %s, is %s.",
		title, humanize.RelTime(now.Add(left), now, "ago", "from now"))
}

func firstName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return "there"
	}
	return fields[0]
}

// Multi fans a reminder out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, recipient *model.User, task *model.Task) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, recipient, task); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogNotifier writes reminders to the log instead of delivering them.
type LogNotifier struct {
	logger *slog.Logger
	now    func() time.Time
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("component", "log_notifier"), now: time.Now}
}

func (n *LogNotifier) Notify(_ context.Context, recipient *model.User, task *model.Task) error {
	msg := ReminderMessage(recipient, task, n.now())
	n.logger.Info("task reminder",
		"recipient_id", recipient.ID,
		"task_id", task.ID,
		"subject", msg.Subject,
		"body", msg.Body,
	)
	return nil
}
