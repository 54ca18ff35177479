package domain

import "time"

const DefaultCategory = "General"

// AnnouncementPost is an append-only admin post.
type AnnouncementPost struct {
	ID          string
	Text        string
	AuthorEmail string
	ImageURL    *string
	Category    string
	Timestamp   time.Time
}

// AnnouncementPayload is the JSON body streamed to event subscribers.
type AnnouncementPayload struct {
	Message    string  `json:"message"`
	AdminEmail string  `json:"adminEmail"`
	Timestamp  string  `json:"timestamp"`
	ImageURL   *string `json:"imageUrl"`
	Category   string  `json:"category"`
}

// ToPayload renders the post for the stream; a missing timestamp falls back to now.
func (p AnnouncementPost) ToPayload(now time.Time) AnnouncementPayload {
	at := p.Timestamp
	if at.IsZero() {
		at = now
	}
	category := p.Category
	if category == "" {
		category = DefaultCategory
	}
	return AnnouncementPayload{
		Message:    p.Text,
		AdminEmail: p.AuthorEmail,
		Timestamp:  at.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		ImageURL:   p.ImageURL,
		Category:   category,
	}
}
