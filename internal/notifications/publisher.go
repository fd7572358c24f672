package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// NewMessagePayload describes a new chat message to the notification
// consumers (email digests, mobile push workers).
type NewMessagePayload struct {
	ConversationID int       `json:"conversation_id"`
	MessageID      int       `json:"message_id"`
	SenderID       int       `json:"sender_id"`
	SenderName     string    `json:"sender_name"`
	Preview        string    `json:"preview"`
	SentAt         time.Time `json:"sent_at"`
}

// Notifier delivers best-effort notifications to a user. Failures never
// propagate into the message send path.
type Notifier interface {
	Notify(ctx context.Context, userID int, payload NewMessagePayload) error
	Close() error
}

// NewNotifier builds a RabbitMQ notifier or a noop notifier when AMQP is
// disabled or unreachable.
func NewNotifier(amqpURL, exchange string) Notifier {
	if amqpURL == "" {
		log.Printf("notifications disabled, using noop: empty amqp url")
		return noopNotifier{}
	}

	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		log.Printf("notifications disabled, using noop: %v", err)
		return noopNotifier{}
	}

	ch, err := conn.Channel()
	if err != nil {
		log.Printf("notifications disabled, using noop: %v", err)
		_ = conn.Close()
		return noopNotifier{}
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		log.Printf("notifications disabled, using noop: %v", err)
		_ = ch.Close()
		_ = conn.Close()
		return noopNotifier{}
	}

	log.Printf("notifications connected exchange=%s", exchange)
	return &amqpNotifier{conn: conn, ch: ch, exchange: exchange}
}

type amqpNotifier struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

func (n *amqpNotifier) Notify(ctx context.Context, userID int, payload NewMessagePayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	routingKey := fmt.Sprintf("notifications.user.%d", userID)
	err = n.ch.PublishWithContext(ctx, n.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		log.Printf("notification publish failed: %v", err)
	}
	return err
}

func (n *amqpNotifier) Close() error {
	if n.ch != nil {
		_ = n.ch.Close()
	}
	if n.conn != nil {
		return n.conn.Close()
	}
	return nil
}

type noopNotifier struct{}

func (noopNotifier) Notify(ctx context.Context, userID int, payload NewMessagePayload) error {
	log.Printf("notification noop user_id=%d conversation_id=%d message_id=%d", userID, payload.ConversationID, payload.MessageID)
	return nil
}

func (noopNotifier) Close() error {
	return nil
}
