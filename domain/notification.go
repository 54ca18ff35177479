package domain

import "time"

// PendingNotification is a queued push request produced elsewhere on the platform.
// It is consumed exactly once: send then delete.
type PendingNotification struct {
	ID           string
	Token        string
	Notification Notification
	Data         map[string]string
	CreatedAt    time.Time
}
