package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"messaging-service/internal/auth"
	"messaging-service/internal/chat"
	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/repositories"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Gateway owns the websocket lifecycle: handshake authentication, inbound
// event dispatch, and cleanup of presence, room, and typing state on every
// exit path.
type Gateway struct {
	hub      *Hub
	presence *Presence
	typing   *TypingTracker
	verifier auth.Verifier
	convRepo repositories.ConversationRepository
	pipeline *chat.Pipeline
}

// NewGateway constructs a Gateway.
func NewGateway(hub *Hub, presence *Presence, typing *TypingTracker, verifier auth.Verifier, convRepo repositories.ConversationRepository, pipeline *chat.Pipeline) *Gateway {
	return &Gateway{
		hub:      hub,
		presence: presence,
		typing:   typing,
		verifier: verifier,
		convRepo: convRepo,
		pipeline: pipeline,
	}
}

// Handle authenticates the handshake, upgrades the connection, and starts
// the per-connection pumps. A missing or invalid credential refuses the
// connection before any event is accepted.
func (g *Gateway) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("messaging-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := bearerToken(c)
	identity, err := g.verifier.Verify(ctx, token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	sock, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	conn := newConn(sock, identity, observability.IPFromRequest(c.Request), observability.RequestIDFromRequest(c.Request))
	g.register(conn)
	go conn.writePump()
	go g.readLoop(conn)
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		const prefix = "Bearer "
		if len(header) > len(prefix) && header[:len(prefix)] == prefix {
			return header[len(prefix):]
		}
		return ""
	}
	return c.Query("token")
}

func (g *Gateway) register(conn *Conn) {
	g.hub.Register(conn)
	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	log.Printf("ws connect conn=%s user=%d ip=%s", conn.ID, conn.Identity.UserID, conn.IP)

	if g.presence.MarkOnline(conn.Identity.UserID) {
		g.hub.BroadcastAll(models.ServerEvent{
			Type:     models.EventUserOnline,
			UserID:   conn.Identity.UserID,
			Username: conn.Identity.Username,
		})
	}
	observability.SetOnlineUsers(g.presence.OnlineCount())
}

// readLoop consumes inbound frames until the transport fails or closes.
// Cleanup is deferred so it runs on every exit path.
func (g *Gateway) readLoop(conn *Conn) {
	defer g.cleanup(conn)
	for {
		_, payload, err := conn.sock.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("ws read error conn=%s: %v", conn.ID, err)
			}
			return
		}

		var ev models.ClientEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			// Malformed frame: reply with an error, keep the connection.
			conn.Send(models.ServerEvent{Type: models.EventError, Error: "malformed event"})
			continue
		}
		g.dispatch(conn, ev)
	}
}

// dispatch routes one inbound event. The switch is exhaustive over the
// protocol's inbound event set; unknown types get an error reply instead of
// being silently dropped.
func (g *Gateway) dispatch(conn *Conn, ev models.ClientEvent) {
	observability.IncWSEvent(ev.Type)
	ctx := context.Background()

	switch ev.Type {
	case models.EventJoinConversation:
		g.handleJoin(ctx, conn, ev)
	case models.EventLeaveConversation:
		g.hub.Leave(ev.ConversationID, conn)
	case models.EventSendMessage:
		g.handleSend(ctx, conn, ev)
	case models.EventTypingStart:
		g.handleTyping(conn, ev, true)
	case models.EventTypingStop:
		g.handleTyping(conn, ev, false)
	case models.EventMarkRead:
		g.handleMarkRead(ctx, conn, ev)
	default:
		conn.Send(models.ServerEvent{Type: models.EventError, Error: "unknown event type: " + ev.Type})
	}
}

func (g *Gateway) handleJoin(ctx context.Context, conn *Conn, ev models.ClientEvent) {
	member, err := g.convRepo.IsParticipant(ctx, ev.ConversationID, conn.Identity.UserID)
	if err != nil || !member {
		conn.Send(models.ServerEvent{
			Type:           models.EventError,
			ConversationID: ev.ConversationID,
			Error:          "cannot open this conversation",
		})
		return
	}
	g.hub.Join(ev.ConversationID, conn)
}

func (g *Gateway) handleSend(ctx context.Context, conn *Conn, ev models.ClientEvent) {
	msg, err := g.pipeline.Send(ctx, ev.ConversationID, conn.Identity, ev.Content, ev.ImageURL, ev.CorrelationID)
	if err != nil {
		conn.Send(models.ServerEvent{
			Type:           models.EventError,
			ConversationID: ev.ConversationID,
			CorrelationID:  ev.CorrelationID,
			Error:          sendErrorText(err),
		})
		return
	}

	// Direct acknowledgment to the originating connection only, so the
	// sender can resolve its optimistic entry even when it has not joined
	// the room.
	conn.Send(models.ServerEvent{
		Type:           models.EventMessageSendAck,
		ConversationID: ev.ConversationID,
		CorrelationID:  ev.CorrelationID,
		Message:        &msg,
	})
}

func sendErrorText(err error) string {
	switch {
	case errors.Is(err, chat.ErrNotParticipant):
		return "not a participant of this conversation"
	case errors.Is(err, chat.ErrEmptyMessage):
		return "message requires content or an image"
	default:
		return "failed to send message"
	}
}

func (g *Gateway) handleTyping(conn *Conn, ev models.ClientEvent, start bool) {
	userID := conn.Identity.UserID
	if start {
		if g.typing.Start(ev.ConversationID, userID) {
			g.hub.Broadcast(ev.ConversationID, models.ServerEvent{
				Type:           models.EventUserTyping,
				ConversationID: ev.ConversationID,
				UserID:         userID,
				Username:       conn.Identity.Username,
			}, conn.ID)
		}
		return
	}
	if g.typing.Stop(ev.ConversationID, userID) {
		g.hub.Broadcast(ev.ConversationID, models.ServerEvent{
			Type:           models.EventUserStoppedTyping,
			ConversationID: ev.ConversationID,
			UserID:         userID,
			Username:       conn.Identity.Username,
		}, conn.ID)
	}
}

func (g *Gateway) handleMarkRead(ctx context.Context, conn *Conn, ev models.ClientEvent) {
	if err := g.pipeline.MarkRead(ctx, ev.ConversationID, conn.Identity, conn.ID); err != nil {
		conn.Send(models.ServerEvent{
			Type:           models.EventError,
			ConversationID: ev.ConversationID,
			Error:          sendErrorText(err),
		})
	}
}

// cleanup tears down everything the connection touched: room membership,
// typing marks, presence. It is idempotent and swallows delivery failures,
// so a disconnect can never leak state or cascade.
func (g *Gateway) cleanup(conn *Conn) {
	conn.close()
	g.hub.Unregister(conn)

	for _, convID := range g.typing.StopAll(conn.Identity.UserID) {
		g.hub.Broadcast(convID, models.ServerEvent{
			Type:           models.EventUserStoppedTyping,
			ConversationID: convID,
			UserID:         conn.Identity.UserID,
			Username:       conn.Identity.Username,
		}, conn.ID)
	}

	if g.presence.MarkOffline(conn.Identity.UserID) {
		g.hub.BroadcastAll(models.ServerEvent{
			Type:     models.EventUserOffline,
			UserID:   conn.Identity.UserID,
			Username: conn.Identity.Username,
		})
	}
	observability.SetOnlineUsers(g.presence.OnlineCount())
	observability.DecWSActive()
	observability.IncWSEvent("ws_disconnect")
	log.Printf("ws disconnect conn=%s user=%d", conn.ID, conn.Identity.UserID)
}
