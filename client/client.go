// Package client implements the browser-side contract of the messaging
// protocol for Go callers: optimistic sends correlated with server
// confirmations, presence and typing event delivery, and rollback on
// timeout.
package client

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"messaging-service/internal/models"
)

var ErrSendTimeout = errors.New("send not acknowledged in time")

const defaultSendTimeout = 5 * time.Second

// EventHandler receives server events that are not part of send
// reconciliation (presence, typing, read receipts, errors).
type EventHandler func(models.ServerEvent)

// Client is one logical session over a single websocket connection.
type Client struct {
	sock    *websocket.Conn
	rec     *reconciler
	handler EventHandler
	timeout time.Duration

	writeMu sync.Mutex
	done    chan struct{}
	once    sync.Once
}

// Option configures a Client.
type Option func(*Client)

// WithSendTimeout overrides the acknowledgment wait for Send.
func WithSendTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithEventHandler registers a callback for non-reconciliation events.
func WithEventHandler(h EventHandler) Option {
	return func(c *Client) { c.handler = h }
}

// Dial connects to the messaging endpoint with a bearer credential and
// starts the read loop.
func Dial(ctx context.Context, url, token string, opts ...Option) (*Client, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	sock, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, err
	}

	c := &Client{
		sock:    sock,
		rec:     newReconciler(),
		timeout: defaultSendTimeout,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.readLoop()
	return c, nil
}

// Close shuts the connection down.
func (c *Client) Close() error {
	c.once.Do(func() { close(c.done) })
	return c.sock.Close()
}

// Send delivers a message optimistically: a pending entry is registered
// under a fresh correlation id, the frame is written, and the call blocks
// until the server confirms via direct ack or room broadcast, or the timeout
// rolls the entry back.
func (c *Client) Send(ctx context.Context, conversationID int, content, imageURL string) (models.Message, error) {
	correlationID := uuid.NewString()
	confirmed := c.rec.add(correlationID, conversationID, content, imageURL)

	err := c.write(models.ClientEvent{
		Type:           models.EventSendMessage,
		ConversationID: conversationID,
		Content:        content,
		ImageURL:       imageURL,
		CorrelationID:  correlationID,
	})
	if err != nil {
		c.rec.fail(correlationID)
		return models.Message{}, err
	}

	select {
	case res := <-confirmed:
		return res.msg, res.err
	case <-time.After(c.timeout):
		c.rec.fail(correlationID)
		return models.Message{}, ErrSendTimeout
	case <-ctx.Done():
		c.rec.fail(correlationID)
		return models.Message{}, ctx.Err()
	}
}

// Join subscribes the session to a conversation room.
func (c *Client) Join(conversationID int) error {
	return c.write(models.ClientEvent{Type: models.EventJoinConversation, ConversationID: conversationID})
}

// Leave unsubscribes the session from a conversation room.
func (c *Client) Leave(conversationID int) error {
	return c.write(models.ClientEvent{Type: models.EventLeaveConversation, ConversationID: conversationID})
}

// StartTyping signals that the user began composing. The caller owns the
// quiet-period contract and must StopTyping within a few seconds of
// inactivity.
func (c *Client) StartTyping(conversationID int) error {
	return c.write(models.ClientEvent{Type: models.EventTypingStart, ConversationID: conversationID})
}

// StopTyping signals that the user stopped composing.
func (c *Client) StopTyping(conversationID int) error {
	return c.write(models.ClientEvent{Type: models.EventTypingStop, ConversationID: conversationID})
}

// MarkRead flags the conversation's messages from the peer as read.
func (c *Client) MarkRead(conversationID int) error {
	return c.write(models.ClientEvent{Type: models.EventMarkRead, ConversationID: conversationID})
}

// Messages returns the confirmed messages received for a conversation.
func (c *Client) Messages(conversationID int) []models.Message {
	return c.rec.Messages(conversationID)
}

// Pending returns the optimistic entries still awaiting confirmation.
func (c *Client) Pending(conversationID int) []PendingMessage {
	return c.rec.Pending(conversationID)
}

func (c *Client) write(ev models.ClientEvent) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.sock.WriteJSON(ev)
}

func (c *Client) readLoop() {
	for {
		var ev models.ServerEvent
		if err := c.sock.ReadJSON(&ev); err != nil {
			select {
			case <-c.done:
			default:
				log.Printf("client read error: %v", err)
			}
			return
		}
		c.handleEvent(ev)
	}
}

// handleEvent reconciles confirmations and forwards everything else to the
// registered handler. The broadcast copy may arrive before, after, or
// instead of the direct ack; all three orders resolve to exactly one
// confirmation per correlation id.
func (c *Client) handleEvent(ev models.ServerEvent) {
	switch ev.Type {
	case models.EventMessageSendAck:
		if ev.Message != nil {
			c.rec.resolve(ev.CorrelationID, *ev.Message)
		}
	case models.EventMessageCreated:
		if ev.Message == nil {
			return
		}
		if ev.CorrelationID != "" {
			c.rec.resolve(ev.CorrelationID, *ev.Message)
		} else {
			c.rec.insert(*ev.Message)
		}
	case models.EventError:
		if ev.CorrelationID != "" {
			c.rec.reject(ev.CorrelationID, errors.New(ev.Error))
			return
		}
		if c.handler != nil {
			c.handler(ev)
		}
	default:
		if c.handler != nil {
			c.handler(ev)
		}
	}
}
