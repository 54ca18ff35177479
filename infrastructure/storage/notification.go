package storage

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

const NotificationsCollection = "notifications"

// NotificationQueue is the pending push request queue, FIFO by enqueue time.
type NotificationQueue struct {
	store *DocumentStore
	clock contract.Clock
}

func NewNotificationQueue(store *DocumentStore, clock contract.Clock) *NotificationQueue {
	return &NotificationQueue{store: store, clock: clock}
}

func (q *NotificationQueue) Enqueue(ctx context.Context, n domain.PendingNotification) (string, error) {
	at := q.clock.Now().UTC()
	id := fmt.Sprintf("%019d_%s", at.UnixNano(), uuid.NewString())
	err := q.store.Set(ctx, NotificationsCollection, id, map[string]any{
		"token": n.Token,
		"notification": map[string]any{
			"title": n.Notification.Title,
			"body":  n.Notification.Body,
		},
		"data":      lo.Ternary(n.Data == nil, map[string]string{}, n.Data),
		"createdAt": at,
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Pending returns every queued request, oldest first.
func (q *NotificationQueue) Pending(ctx context.Context) ([]domain.PendingNotification, error) {
	docs, err := q.store.List(ctx, NotificationsCollection, false, 0)
	if err != nil {
		return nil, err
	}
	return lo.Map(docs, func(doc Document, _ int) domain.PendingNotification {
		return toPendingNotification(doc)
	}), nil
}

// Delete acknowledges a request.
func (q *NotificationQueue) Delete(ctx context.Context, id string) error {
	return q.store.Delete(ctx, NotificationsCollection, id)
}

// Watch fires onChange for every new request; deletions are ignored.
func (q *NotificationQueue) Watch(ctx context.Context, ready, onChange func()) error {
	return q.store.Watch(ctx, NotificationsCollection, ready, func(doc Document) {
		if !doc.Deleted {
			onChange()
		}
	})
}

func toPendingNotification(doc Document) domain.PendingNotification {
	notification := mapField(doc.Fields, "notification")
	data := lo.MapEntries(mapField(doc.Fields, "data"), func(k string, v any) (string, string) {
		return k, fmt.Sprint(v)
	})
	return domain.PendingNotification{
		ID:    doc.ID,
		Token: stringField(doc.Fields, "token"),
		Notification: domain.Notification{
			Title: stringField(notification, "title"),
			Body:  stringField(notification, "body"),
		},
		Data:      data,
		CreatedAt: timeField(doc.Fields, "createdAt"),
	}
}
