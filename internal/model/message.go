package model

import "time"

// Message is one synced inbox message. ID is the provider message id and
// is the only upsert key.
type Message struct {
	ID          string    `json:"id"`
	ThreadID    string    `json:"thread_id"`
	Subject     *string   `json:"subject"`
	FromEmail   string    `json:"from_email"`
	FromName    *string   `json:"from_name"`
	Snippet     *string   `json:"snippet"`
	BodyPreview *string   `json:"body_preview"`
	ReceivedAt  time.Time `json:"received_at"`
	IsRead      bool      `json:"is_read"`
	Labels      []string  `json:"labels"`
	UserID      string    `json:"user_id"`
}

// NewerThan reports whether m should be announced after prev was the last
// message seen. A nil prev means nothing has been seen yet.
func (m *Message) NewerThan(prev *Message) bool {
	if prev == nil {
		return true
	}
	if m.ID == prev.ID {
		return false
	}
	return !m.ReceivedAt.Before(prev.ReceivedAt)
}
