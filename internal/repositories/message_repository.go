package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

// ImagePreviewPlaceholder is stored as the conversation preview for
// image-only messages.
const ImagePreviewPlaceholder = "[photo]"

// MessageRepository defines interactions for chat messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, conversationID int, senderID int, content string, imageURL string) (models.Message, error)
	GetConversationMessages(ctx context.Context, conversationID int) ([]models.Message, error)
	MarkMessagesRead(ctx context.Context, conversationID int, readerID int) (int64, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage stores a message and updates the conversation summary in one
// transaction. The message row is never visible without the matching preview
// update and vice versa.
func (r *MessageRepo) CreateMessage(ctx context.Context, conversationID int, senderID int, content string, imageURL string) (models.Message, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer tx.Rollback()

	var msg models.Message
	err = tx.QueryRowxContext(ctx, `INSERT INTO messages (conversation_id, sender_id, content, image_url)
        VALUES ($1, $2, $3, $4)
        RETURNING id, conversation_id, sender_id, content, image_url, is_read, created_at`,
		conversationID, senderID, content, imageURL).StructScan(&msg)
	if err != nil {
		return models.Message{}, err
	}

	preview := content
	if preview == "" {
		preview = ImagePreviewPlaceholder
	}
	if _, err := tx.ExecContext(ctx, `UPDATE conversations SET last_message_text=$1, last_message_at=$2 WHERE id=$3`,
		preview, msg.CreatedAt, conversationID); err != nil {
		return models.Message{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// GetConversationMessages returns ordered messages for a conversation.
func (r *MessageRepo) GetConversationMessages(ctx context.Context, conversationID int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT id, conversation_id, sender_id, content, image_url, is_read, created_at
        FROM messages WHERE conversation_id=$1 ORDER BY created_at ASC`, conversationID)
	return msgs, err
}

// MarkMessagesRead flips the read flag on every unread message in the
// conversation not authored by the reader. Returns the number of rows
// flipped; zero is not an error.
func (r *MessageRepo) MarkMessagesRead(ctx context.Context, conversationID int, readerID int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET is_read = TRUE
        WHERE conversation_id=$1 AND sender_id<>$2 AND is_read = FALSE`, conversationID, readerID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
