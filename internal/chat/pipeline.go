package chat

import (
	"context"
	"errors"
	"fmt"

	"messaging-service/internal/auth"
	"messaging-service/internal/models"
	"messaging-service/internal/notifications"
	"messaging-service/internal/observability"
	"messaging-service/internal/repositories"
)

var (
	ErrNotParticipant = errors.New("not a conversation participant")
	ErrEmptyMessage   = errors.New("message requires content or an image")
)

// Broadcaster fans an event out to a conversation room. Satisfied by ws.Hub.
type Broadcaster interface {
	Broadcast(conversationID int, ev models.ServerEvent, excludeConnID string)
}

// Pipeline validates, persists, and fans out chat messages.
type Pipeline struct {
	convRepo    repositories.ConversationRepository
	messageRepo repositories.MessageRepository
	notifier    notifications.Notifier
	broadcaster Broadcaster
}

// NewPipeline constructs a Pipeline.
func NewPipeline(convRepo repositories.ConversationRepository, messageRepo repositories.MessageRepository, notifier notifications.Notifier, broadcaster Broadcaster) *Pipeline {
	return &Pipeline{
		convRepo:    convRepo,
		messageRepo: messageRepo,
		notifier:    notifier,
		broadcaster: broadcaster,
	}
}

// Send authorizes, validates, and persists a message, then broadcasts it to
// the conversation room. Persistence completes before the broadcast is
// emitted, so no subscriber ever sees a message it cannot re-fetch. The
// caller delivers the direct acknowledgment to the originating connection.
func (p *Pipeline) Send(ctx context.Context, conversationID int, sender auth.Identity, content, imageURL, correlationID string) (models.Message, error) {
	conv, err := p.convRepo.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, repositories.ErrConversationNotFound) {
			observability.IncSendFailure("authorization")
			return models.Message{}, ErrNotParticipant
		}
		observability.IncSendFailure("persistence")
		return models.Message{}, fmt.Errorf("load conversation: %w", err)
	}
	if !conv.HasParticipant(sender.UserID) {
		observability.IncSendFailure("authorization")
		return models.Message{}, ErrNotParticipant
	}

	if content == "" && imageURL == "" {
		observability.IncSendFailure("validation")
		return models.Message{}, ErrEmptyMessage
	}

	msg, err := p.messageRepo.CreateMessage(ctx, conversationID, sender.UserID, content, imageURL)
	if err != nil {
		observability.IncSendFailure("persistence")
		return models.Message{}, fmt.Errorf("store message: %w", err)
	}

	preview := content
	if preview == "" {
		preview = repositories.ImagePreviewPlaceholder
	}

	// Best effort: a failed notification never fails the send.
	_ = p.notifier.Notify(ctx, conv.OtherParticipant(sender.UserID), notifications.NewMessagePayload{
		ConversationID: conversationID,
		MessageID:      msg.ID,
		SenderID:       sender.UserID,
		SenderName:     sender.Username,
		Preview:        preview,
		SentAt:         msg.CreatedAt,
	})

	p.broadcaster.Broadcast(conversationID, models.ServerEvent{
		Type:           models.EventMessageCreated,
		ConversationID: conversationID,
		Message:        &msg,
		CorrelationID:  correlationID,
	}, "")

	observability.IncMessagesSent()
	return msg, nil
}

// MarkRead flips the read flag on every message in the conversation not
// authored by the reader and broadcasts a read receipt to the room,
// excluding the reader's connection. Repeated calls with nothing unread are
// a no-op.
func (p *Pipeline) MarkRead(ctx context.Context, conversationID int, reader auth.Identity, excludeConnID string) error {
	member, err := p.convRepo.IsParticipant(ctx, conversationID, reader.UserID)
	if err != nil {
		return fmt.Errorf("verify membership: %w", err)
	}
	if !member {
		return ErrNotParticipant
	}

	if _, err := p.messageRepo.MarkMessagesRead(ctx, conversationID, reader.UserID); err != nil {
		return fmt.Errorf("mark messages read: %w", err)
	}

	p.broadcaster.Broadcast(conversationID, models.ServerEvent{
		Type:           models.EventMessagesRead,
		ConversationID: conversationID,
		UserID:         reader.UserID,
	}, excludeConnID)
	return nil
}
