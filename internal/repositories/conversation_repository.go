package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

var ErrConversationNotFound = errors.New("conversation not found")

// ConversationRepository abstracts conversation persistence.
type ConversationRepository interface {
	CreateOrGetConversation(ctx context.Context, listingID int, buyerID int, sellerID int) (models.Conversation, error)
	GetConversation(ctx context.Context, conversationID int) (models.Conversation, error)
	IsParticipant(ctx context.Context, conversationID int, userID int) (bool, error)
	ListConversations(ctx context.Context, userID int) ([]models.Conversation, error)
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// CreateOrGetConversation creates a listing conversation between buyer and
// seller if one does not already exist.
func (r *ConversationRepo) CreateOrGetConversation(ctx context.Context, listingID int, buyerID int, sellerID int) (models.Conversation, error) {
	if buyerID == sellerID {
		return models.Conversation{}, errors.New("cannot start conversation with self")
	}

	var conv models.Conversation
	query := `SELECT id, listing_id, buyer_id, seller_id, last_message_text, last_message_at, created_at
        FROM conversations WHERE listing_id=$1 AND buyer_id=$2`
	err := r.db.GetContext(ctx, &conv, query, listingID, buyerID)
	if err == nil {
		return conv, nil
	}
	if err != sql.ErrNoRows {
		return models.Conversation{}, err
	}

	err = r.db.QueryRowxContext(ctx, `INSERT INTO conversations (listing_id, buyer_id, seller_id)
        VALUES ($1, $2, $3)
        RETURNING id, listing_id, buyer_id, seller_id, last_message_text, last_message_at, created_at`,
		listingID, buyerID, sellerID).StructScan(&conv)
	return conv, err
}

// GetConversation fetches a conversation by id.
func (r *ConversationRepo) GetConversation(ctx context.Context, conversationID int) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, `SELECT id, listing_id, buyer_id, seller_id, last_message_text, last_message_at, created_at
        FROM conversations WHERE id=$1`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conv, err
}

// IsParticipant checks whether a user belongs to the conversation.
func (r *ConversationRepo) IsParticipant(ctx context.Context, conversationID int, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM conversations WHERE id=$1 AND (buyer_id=$2 OR seller_id=$2))`, conversationID, userID)
	return exists, err
}

// ListConversations returns the user's conversations, most recent activity first.
func (r *ConversationRepo) ListConversations(ctx context.Context, userID int) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := r.db.SelectContext(ctx, &convs, `SELECT id, listing_id, buyer_id, seller_id, last_message_text, last_message_at, created_at
        FROM conversations WHERE buyer_id=$1 OR seller_id=$1
        ORDER BY last_message_at DESC`, userID)
	return convs, err
}
