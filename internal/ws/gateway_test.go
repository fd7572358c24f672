package ws

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/auth"
	"messaging-service/internal/chat"
	"messaging-service/internal/mocks"
	"messaging-service/internal/models"
)

func newTestGateway(convRepo *mocks.ConversationRepositoryMock, messageRepo *mocks.MessageRepositoryMock, notifier *mocks.NotifierMock) *Gateway {
	hub := NewHub()
	pipeline := chat.NewPipeline(convRepo, messageRepo, notifier, hub)
	return NewGateway(hub, NewPresence(), NewTypingTracker(), auth.NewJWTVerifier("test-secret"), convRepo, pipeline)
}

func drain(c *Conn) {
	for {
		select {
		case <-c.send:
		default:
			return
		}
	}
}

func TestDispatchUnknownEventRepliesError(t *testing.T) {
	g := newTestGateway(new(mocks.ConversationRepositoryMock), new(mocks.MessageRepositoryMock), new(mocks.NotifierMock))
	conn := testConn(1, "alice")
	g.hub.Register(conn)

	g.dispatch(conn, models.ClientEvent{Type: "subscribe_everything"})

	ev := recvEvent(t, conn)
	require.Equal(t, models.EventError, ev.Type)
	assert.Contains(t, ev.Error, "unknown event type")
}

func TestJoinUnauthorizedDoesNotMutateRoom(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	g := newTestGateway(convRepo, new(mocks.MessageRepositoryMock), new(mocks.NotifierMock))
	conn := testConn(3, "eve")
	g.hub.Register(conn)

	convRepo.On("IsParticipant", mock.Anything, 10, 3).Return(false, nil).Once()

	g.dispatch(conn, models.ClientEvent{Type: models.EventJoinConversation, ConversationID: 10})

	ev := recvEvent(t, conn)
	require.Equal(t, models.EventError, ev.Type)
	assert.Equal(t, "cannot open this conversation", ev.Error)
	assert.False(t, g.hub.InRoom(10, conn.ID))
	convRepo.AssertExpectations(t)
}

func TestJoinAuthorized(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	g := newTestGateway(convRepo, new(mocks.MessageRepositoryMock), new(mocks.NotifierMock))
	conn := testConn(1, "alice")
	g.hub.Register(conn)

	convRepo.On("IsParticipant", mock.Anything, 10, 1).Return(true, nil).Once()

	g.dispatch(conn, models.ClientEvent{Type: models.EventJoinConversation, ConversationID: 10})

	assertNoEvent(t, conn)
	assert.True(t, g.hub.InRoom(10, conn.ID))
	convRepo.AssertExpectations(t)
}

func TestSendMessageDeliversBroadcastAndAck(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	notifier := new(mocks.NotifierMock)
	g := newTestGateway(convRepo, messageRepo, notifier)

	alice := testConn(1, "alice")
	bob := testConn(2, "bob")
	g.hub.Register(alice)
	g.hub.Register(bob)
	g.hub.Join(10, alice)
	g.hub.Join(10, bob)

	conv := models.Conversation{ID: 10, ListingID: 5, BuyerID: 1, SellerID: 2}
	stored := models.Message{ID: 7, ConversationID: 10, SenderID: 1, Content: "hello", CreatedAt: time.Now()}
	convRepo.On("GetConversation", mock.Anything, 10).Return(conv, nil).Once()
	messageRepo.On("CreateMessage", mock.Anything, 10, 1, "hello", "").Return(stored, nil).Once()
	notifier.On("Notify", mock.Anything, 2, mock.Anything).Return(nil).Once()

	g.dispatch(alice, models.ClientEvent{
		Type:           models.EventSendMessage,
		ConversationID: 10,
		Content:        "hello",
		CorrelationID:  "t1",
	})

	// Room broadcast reaches both participants, sender included.
	bobEv := recvEvent(t, bob)
	require.Equal(t, models.EventMessageCreated, bobEv.Type)
	require.NotNil(t, bobEv.Message)
	assert.Equal(t, "hello", bobEv.Message.Content)
	assert.Equal(t, "t1", bobEv.CorrelationID)

	aliceBroadcast := recvEvent(t, alice)
	require.Equal(t, models.EventMessageCreated, aliceBroadcast.Type)

	// Direct acknowledgment goes to the originating connection only.
	ack := recvEvent(t, alice)
	require.Equal(t, models.EventMessageSendAck, ack.Type)
	assert.Equal(t, "t1", ack.CorrelationID)
	require.NotNil(t, ack.Message)
	assert.Equal(t, 7, ack.Message.ID)
	assertNoEvent(t, bob)

	convRepo.AssertExpectations(t)
	messageRepo.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestSendEmptyPayloadRejectedBeforePersistence(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	g := newTestGateway(convRepo, messageRepo, new(mocks.NotifierMock))
	alice := testConn(1, "alice")
	g.hub.Register(alice)

	conv := models.Conversation{ID: 10, BuyerID: 1, SellerID: 2}
	convRepo.On("GetConversation", mock.Anything, 10).Return(conv, nil).Once()

	g.dispatch(alice, models.ClientEvent{Type: models.EventSendMessage, ConversationID: 10, CorrelationID: "t2"})

	ev := recvEvent(t, alice)
	require.Equal(t, models.EventError, ev.Type)
	assert.Equal(t, "t2", ev.CorrelationID)
	messageRepo.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSendPersistenceFailureNotBroadcast(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	g := newTestGateway(convRepo, messageRepo, new(mocks.NotifierMock))

	alice := testConn(1, "alice")
	bob := testConn(2, "bob")
	g.hub.Register(alice)
	g.hub.Register(bob)
	g.hub.Join(10, bob)

	conv := models.Conversation{ID: 10, BuyerID: 1, SellerID: 2}
	convRepo.On("GetConversation", mock.Anything, 10).Return(conv, nil).Once()
	messageRepo.On("CreateMessage", mock.Anything, 10, 1, "hi", "").Return(models.Message{}, assert.AnError).Once()

	g.dispatch(alice, models.ClientEvent{Type: models.EventSendMessage, ConversationID: 10, Content: "hi", CorrelationID: "t3"})

	ev := recvEvent(t, alice)
	require.Equal(t, models.EventError, ev.Type)
	assert.Equal(t, "failed to send message", ev.Error)
	assertNoEvent(t, bob)
}

func TestMarkReadBroadcastsExcludingReader(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	g := newTestGateway(convRepo, messageRepo, new(mocks.NotifierMock))

	alice := testConn(1, "alice")
	bob := testConn(2, "bob")
	g.hub.Register(alice)
	g.hub.Register(bob)
	g.hub.Join(10, alice)
	g.hub.Join(10, bob)

	convRepo.On("IsParticipant", mock.Anything, 10, 2).Return(true, nil).Once()
	messageRepo.On("MarkMessagesRead", mock.Anything, 10, 2).Return(int64(3), nil).Once()

	g.dispatch(bob, models.ClientEvent{Type: models.EventMarkRead, ConversationID: 10})

	ev := recvEvent(t, alice)
	require.Equal(t, models.EventMessagesRead, ev.Type)
	assert.Equal(t, 2, ev.UserID)
	assert.Equal(t, 10, ev.ConversationID)
	assertNoEvent(t, bob)
}

func TestTypingFlowAndDisconnectCleanup(t *testing.T) {
	g := newTestGateway(new(mocks.ConversationRepositoryMock), new(mocks.MessageRepositoryMock), new(mocks.NotifierMock))

	alice := testConn(1, "alice")
	bob := testConn(2, "bob")
	g.register(alice)
	g.register(bob)
	for _, convID := range []int{10, 20} {
		g.hub.Join(convID, alice)
		g.hub.Join(convID, bob)
	}
	drain(alice)
	drain(bob)

	g.dispatch(alice, models.ClientEvent{Type: models.EventTypingStart, ConversationID: 10})
	ev := recvEvent(t, bob)
	require.Equal(t, models.EventUserTyping, ev.Type)
	assert.Equal(t, 1, ev.UserID)
	assert.Equal(t, "alice", ev.Username)
	assertNoEvent(t, alice)

	// Repeated start must not emit a second event.
	g.dispatch(alice, models.ClientEvent{Type: models.EventTypingStart, ConversationID: 10})
	assertNoEvent(t, bob)

	g.dispatch(alice, models.ClientEvent{Type: models.EventTypingStop, ConversationID: 10})
	ev = recvEvent(t, bob)
	require.Equal(t, models.EventUserStoppedTyping, ev.Type)

	// Stop without a start is a no-op.
	g.dispatch(alice, models.ClientEvent{Type: models.EventTypingStop, ConversationID: 10})
	assertNoEvent(t, bob)

	// Alice starts typing in the second conversation, then disconnects
	// without stopping. Cleanup must still notify conversation members.
	g.dispatch(alice, models.ClientEvent{Type: models.EventTypingStart, ConversationID: 20})
	drain(bob)
	g.cleanup(alice)

	stopped := recvEvent(t, bob)
	require.Equal(t, models.EventUserStoppedTyping, stopped.Type)
	assert.Equal(t, 20, stopped.ConversationID)
	assert.Equal(t, 1, stopped.UserID)

	offline := recvEvent(t, bob)
	require.Equal(t, models.EventUserOffline, offline.Type)
	assert.Equal(t, 1, offline.UserID)

	assert.False(t, g.presence.IsOnline(1))
	assert.True(t, g.presence.IsOnline(2))
	assert.False(t, g.hub.InRoom(10, alice.ID))
}

func TestCleanupIsIdempotent(t *testing.T) {
	g := newTestGateway(new(mocks.ConversationRepositoryMock), new(mocks.MessageRepositoryMock), new(mocks.NotifierMock))
	conn := testConn(1, "alice")
	g.register(conn)
	g.cleanup(conn)
	g.cleanup(conn)
	assert.False(t, g.presence.IsOnline(1))
}
