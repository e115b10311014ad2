package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/homestead/internal/model"
	"github.com/dukerupert/homestead/internal/push"
)

// PushSender delivers one web push payload.
type PushSender interface {
	Send(ctx context.Context, sub *model.PushSubscription, payload push.Payload) error
}

// SubscriptionStore lists and removes a user's push devices.
type SubscriptionStore interface {
	ListByUser(ctx context.Context, userID int64) ([]model.PushSubscription, error)
	DeleteByEndpoint(ctx context.Context, endpoint string) error
}

// PushNotifier sends reminders to every device the recipient registered.
// Devices the push service reports as gone are removed.
type PushNotifier struct {
	sender PushSender
	subs   SubscriptionStore
	logger *slog.Logger
	now    func() time.Time
}

func NewPushNotifier(sender PushSender, subs SubscriptionStore, logger *slog.Logger) *PushNotifier {
	return &PushNotifier{
		sender: sender,
		subs:   subs,
		logger: logger.With("component", "push_notifier"),
		now:    time.Now,
	}
}

func (n *PushNotifier) Notify(ctx context.Context, recipient *model.User, task *model.Task) error {
	subs, err := n.subs.ListByUser(ctx, recipient.ID)
	if err != nil {
		return fmt.Errorf("list push subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return nil
	}

	msg := ReminderMessage(recipient, task, n.now())
	payload := push.Payload{
		Title: msg.Subject,
		Body:  msg.Body,
		URL:   fmt.Sprintf("/tasks/%d", task.ID),
		Tag:   fmt.Sprintf("task-%d", task.ID),
	}

	var errs []error
	for i := range subs {
		sub := &subs[i]
		err := n.sender.Send(ctx, sub, payload)
		if errors.Is(err, push.ErrExpired) {
			n.logger.Info("removing expired push subscription", "user_id", recipient.ID, "subscription_id", sub.ID)
			if err := n.subs.DeleteByEndpoint(ctx, sub.Endpoint); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("push to subscription %d: %w", sub.ID, err))
		}
	}
	return errors.Join(errs...)
}
