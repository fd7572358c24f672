package models

import "time"

// Message represents a persisted chat message. Content may be empty when the
// message carries only an image.
type Message struct {
	ID             int       `db:"id" json:"id"`
	ConversationID int       `db:"conversation_id" json:"conversation_id"`
	SenderID       int       `db:"sender_id" json:"sender_id"`
	Content        string    `db:"content" json:"content"`
	ImageURL       string    `db:"image_url" json:"image_url,omitempty"`
	IsRead         bool      `db:"is_read" json:"is_read"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
