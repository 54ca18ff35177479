package domain

import "time"

// ChatThread is the persisted metadata of a two-party conversation.
type ChatThread struct {
	ChatID      string
	UnreadCount map[string]int
	ActiveUsers map[string]bool
}

// IsActive reports whether userID currently has the thread open.
func (t ChatThread) IsActive(userID string) bool {
	return t.ActiveUsers[userID]
}

type GroupChat struct {
	GroupID       string
	GroupName     string
	Members       []string
	LastMessage   string
	LastTimestamp time.Time
}

// User is the subset of a profile the delivery core reads.
type User struct {
	ID       string
	Name     string
	FCMToken string
}

func (u User) HasPushToken() bool {
	return u.FCMToken != ""
}
