package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"messaging-service/internal/models"
	"messaging-service/internal/notifications"
)

type ConversationRepositoryMock struct {
	mock.Mock
}

func (m *ConversationRepositoryMock) CreateOrGetConversation(ctx context.Context, listingID int, buyerID int, sellerID int) (models.Conversation, error) {
	args := m.Called(ctx, listingID, buyerID, sellerID)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) GetConversation(ctx context.Context, conversationID int) (models.Conversation, error) {
	args := m.Called(ctx, conversationID)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) IsParticipant(ctx context.Context, conversationID int, userID int) (bool, error) {
	args := m.Called(ctx, conversationID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *ConversationRepositoryMock) ListConversations(ctx context.Context, userID int) ([]models.Conversation, error) {
	args := m.Called(ctx, userID)
	var list []models.Conversation
	if val := args.Get(0); val != nil {
		list = val.([]models.Conversation)
	}
	return list, args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, conversationID int, senderID int, content string, imageURL string) (models.Message, error) {
	args := m.Called(ctx, conversationID, senderID, content, imageURL)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) GetConversationMessages(ctx context.Context, conversationID int) ([]models.Message, error) {
	args := m.Called(ctx, conversationID)
	var list []models.Message
	if val := args.Get(0); val != nil {
		list = val.([]models.Message)
	}
	return list, args.Error(1)
}

func (m *MessageRepositoryMock) MarkMessagesRead(ctx context.Context, conversationID int, readerID int) (int64, error) {
	args := m.Called(ctx, conversationID, readerID)
	return args.Get(0).(int64), args.Error(1)
}

type NotifierMock struct {
	mock.Mock
}

func (m *NotifierMock) Notify(ctx context.Context, userID int, payload notifications.NewMessagePayload) error {
	args := m.Called(ctx, userID, payload)
	return args.Error(0)
}

func (m *NotifierMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

type BroadcasterMock struct {
	mock.Mock
}

func (m *BroadcasterMock) Broadcast(conversationID int, ev models.ServerEvent, excludeConnID string) {
	m.Called(conversationID, ev, excludeConnID)
}
