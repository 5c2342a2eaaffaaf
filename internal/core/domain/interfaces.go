package domain

import "context"

// NotificationRepository is the durable store behind the notification
// REST surface. Listing is newest-first; ids are unique per user.
type NotificationRepository interface {
	ListByUser(ctx context.Context, userID string) ([]Notification, error)
	Create(ctx context.Context, userID string, n *Notification) error
	MarkRead(ctx context.Context, userID, id string) error
	MarkAllRead(ctx context.Context, userID string) error
	Delete(ctx context.Context, userID, id string) error
}
