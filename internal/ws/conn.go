package ws

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"messaging-service/internal/auth"
	"messaging-service/internal/models"
)

const sendQueueSize = 32

// Conn is one live websocket connection bound to an authenticated identity.
// The identity is resolved once at handshake and never re-derived.
type Conn struct {
	ID          string
	Identity    auth.Identity
	IP          string
	RequestID   string
	ConnectedAt time.Time

	sock      *websocket.Conn
	send      chan models.ServerEvent
	done      chan struct{}
	closeOnce sync.Once
}

func newConn(sock *websocket.Conn, identity auth.Identity, ip, requestID string) *Conn {
	return &Conn{
		ID:          newConnID(),
		Identity:    identity,
		IP:          ip,
		RequestID:   requestID,
		ConnectedAt: time.Now(),
		sock:        sock,
		send:        make(chan models.ServerEvent, sendQueueSize),
		done:        make(chan struct{}),
	}
}

// Send enqueues an event for delivery. The write pump drains the queue in
// enqueue order, so each connection observes events in the order they were
// enqueued for it. A connection too slow to drain its queue is closed rather
// than allowed to block the caller.
func (c *Conn) Send(ev models.ServerEvent) {
	select {
	case <-c.done:
	case c.send <- ev:
	default:
		log.Printf("conn %s send queue full, closing", c.ID)
		c.close()
	}
}

func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.sock != nil {
			_ = c.sock.Close()
		}
	})
}

// writePump serializes all socket writes for the connection.
func (c *Conn) writePump() {
	for {
		select {
		case ev := <-c.send:
			if err := c.sock.WriteJSON(ev); err != nil {
				log.Printf("websocket write error: %v", err)
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func newConnID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}
