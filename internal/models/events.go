package models

// Inbound event types accepted after a successful handshake. The dispatch
// switch in the gateway is exhaustive over this set; anything else is a
// protocol failure.
const (
	EventJoinConversation  = "join_conversation"
	EventLeaveConversation = "leave_conversation"
	EventSendMessage       = "send_message"
	EventTypingStart       = "typing_start"
	EventTypingStop        = "typing_stop"
	EventMarkRead          = "mark_read"
)

// Outbound event types.
const (
	EventUserOnline        = "user_online"
	EventUserOffline       = "user_offline"
	EventMessageCreated    = "message_created"
	EventMessageSendAck    = "message_send_ack"
	EventUserTyping        = "user_typing"
	EventUserStoppedTyping = "user_stopped_typing"
	EventMessagesRead      = "messages_read"
	EventError             = "error"
)

// ClientEvent is a frame received from a websocket client.
type ClientEvent struct {
	Type           string `json:"type"`
	ConversationID int    `json:"conversation_id,omitempty"`
	Content        string `json:"content,omitempty"`
	ImageURL       string `json:"image_url,omitempty"`
	CorrelationID  string `json:"correlation_id,omitempty"`
}

// ServerEvent is a frame sent to websocket clients.
type ServerEvent struct {
	Type           string   `json:"type"`
	ConversationID int      `json:"conversation_id,omitempty"`
	UserID         int      `json:"user_id,omitempty"`
	Username       string   `json:"username,omitempty"`
	Message        *Message `json:"message,omitempty"`
	CorrelationID  string   `json:"correlation_id,omitempty"`
	Error          string   `json:"error,omitempty"`
}
