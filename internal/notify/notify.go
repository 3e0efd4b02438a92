// Package notify hands ledger events to the push-notification collaborator.
// Delivery is best-effort: a failure is logged and counted, never returned to
// the ledger operation that produced it.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/cruisemall/affiliate/internal/logging"
	"github.com/cruisemall/affiliate/internal/metrics"
	"github.com/cruisemall/affiliate/internal/queue"
)

// Notification is the tuple handed to the delivery collaborator
type Notification struct {
	Title              string    `json:"title"`
	Body               string    `json:"body"`
	RecipientProfileID uuid.UUID `json:"recipient_profile_id"`
}

// Notifier accepts notifications for delivery
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Enqueuer is the part of the queue the notifier needs
type Enqueuer interface {
	Enqueue(ctx context.Context, queueName string, payload interface{}, opts ...queue.EnqueueOption) (string, error)
}

// QueueNotifier pushes notifications onto a Redis queue for the worker
type QueueNotifier struct {
	queue      Enqueuer
	queueName  string
	maxRetries int
}

// NewQueueNotifier creates a notifier on the given queue. Each notification
// is retried up to maxRetries times before it is dead-lettered.
func NewQueueNotifier(q Enqueuer, queueName string, maxRetries int) *QueueNotifier {
	if maxRetries < 0 {
		maxRetries = queue.DefaultMaxRetries
	}
	return &QueueNotifier{queue: q, queueName: queueName, maxRetries: maxRetries}
}

// Notify implements Notifier
func (n *QueueNotifier) Notify(ctx context.Context, note Notification) error {
	if _, err := n.queue.Enqueue(ctx, n.queueName, note, queue.WithMaxRetries(n.maxRetries)); err != nil {
		return fmt.Errorf("failed to queue notification: %w", err)
	}
	return nil
}

// Nop drops every notification
type Nop struct{}

// Notify implements Notifier
func (Nop) Notify(context.Context, Notification) error { return nil }

// Dispatch sends each notification and swallows failures after logging them
func Dispatch(ctx context.Context, notifier Notifier, logger logging.Logger, notes ...Notification) {
	for _, note := range notes {
		if note.RecipientProfileID == uuid.Nil {
			continue
		}
		if err := notifier.Notify(ctx, note); err != nil {
			metrics.NotificationsFailed.Inc()
			logger.WithError(err).WithFields(logging.Fields{
				"profile_id": note.RecipientProfileID,
				"title":      note.Title,
			}).Warn("Failed to send notification")
		}
	}
}

// DeliverFunc delivers one notification to its recipient
type DeliverFunc func(ctx context.Context, n Notification) error

// Handler adapts a DeliverFunc to the queue worker
func Handler(deliver DeliverFunc) queue.JobHandler {
	return func(ctx context.Context, job queue.Job) error {
		var note Notification
		if err := json.Unmarshal(job.Payload, &note); err != nil {
			return fmt.Errorf("failed to unmarshal notification: %w", err)
		}
		return deliver(ctx, note)
	}
}

// LogDelivery is the DeliverFunc used when no push gateway is configured
func LogDelivery(logger logging.Logger) DeliverFunc {
	return func(ctx context.Context, n Notification) error {
		logger.WithFields(logging.Fields{
			"profile_id": n.RecipientProfileID,
			"title":      n.Title,
		}).Info(n.Body)
		return nil
	}
}
