package client

import (
	"sync"
	"time"

	"messaging-service/internal/models"
)

// Pending entry states.
const (
	StatePending   = "pending"
	StateConfirmed = "confirmed"
	StateFailed    = "failed"
)

// PendingMessage is an optimistic, client-local message awaiting server
// confirmation.
type PendingMessage struct {
	CorrelationID  string
	ConversationID int
	Content        string
	ImageURL       string
	State          string
	CreatedAt      time.Time
}

type sendResult struct {
	msg models.Message
	err error
}

type pendingEntry struct {
	msg      PendingMessage
	resolved chan sendResult
}

// reconciler correlates optimistic entries with server confirmations. Either
// the direct ack or a broadcast carrying the same correlation id resolves an
// entry; whichever arrives first wins and the other becomes a duplicate
// insert, deduplicated by server message id.
type reconciler struct {
	mu       sync.Mutex
	pending  map[string]*pendingEntry
	messages map[int][]models.Message
	seen     map[int]struct{}
}

func newReconciler() *reconciler {
	return &reconciler{
		pending:  make(map[string]*pendingEntry),
		messages: make(map[int][]models.Message),
		seen:     make(map[int]struct{}),
	}
}

// add registers an optimistic entry and returns the one-shot channel its
// resolution arrives on.
func (r *reconciler) add(correlationID string, conversationID int, content, imageURL string) <-chan sendResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry := &pendingEntry{
		msg: PendingMessage{
			CorrelationID:  correlationID,
			ConversationID: conversationID,
			Content:        content,
			ImageURL:       imageURL,
			State:          StatePending,
			CreatedAt:      time.Now(),
		},
		resolved: make(chan sendResult, 1),
	}
	r.pending[correlationID] = entry
	return entry.resolved
}

// resolve confirms the pending entry for the correlation id, if one is still
// open, and stores the authoritative message. Resolving an already-resolved
// or unknown correlation id only inserts the message.
func (r *reconciler) resolve(correlationID string, msg models.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.pending[correlationID]; ok {
		entry.msg.State = StateConfirmed
		entry.resolved <- sendResult{msg: msg}
		delete(r.pending, correlationID)
	}
	r.insertLocked(msg)
}

// reject fails the pending entry with a server-reported error, waking the
// waiting sender immediately instead of letting it run out the timeout.
func (r *reconciler) reject(correlationID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.pending[correlationID]; ok {
		entry.msg.State = StateFailed
		entry.resolved <- sendResult{err: err}
		delete(r.pending, correlationID)
	}
}

// insert stores a message, deduplicated by server id. Used for broadcast
// copies that carry no correlation id the client knows about.
func (r *reconciler) insert(msg models.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insertLocked(msg)
}

func (r *reconciler) insertLocked(msg models.Message) {
	if _, dup := r.seen[msg.ID]; dup {
		return
	}
	r.seen[msg.ID] = struct{}{}
	r.messages[msg.ConversationID] = append(r.messages[msg.ConversationID], msg)
}

// fail discards the pending entry after a timeout so no dangling optimistic
// message survives. Returns the failed entry for the caller to surface.
func (r *reconciler) fail(correlationID string) (PendingMessage, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.pending[correlationID]
	if !ok {
		return PendingMessage{}, false
	}
	delete(r.pending, correlationID)
	entry.msg.State = StateFailed
	return entry.msg, true
}

// Messages returns the confirmed messages of a conversation in arrival order.
func (r *reconciler) Messages(conversationID int) []models.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := make([]models.Message, len(r.messages[conversationID]))
	copy(msgs, r.messages[conversationID])
	return msgs
}

// Pending returns the open optimistic entries for a conversation.
func (r *reconciler) Pending(conversationID int) []PendingMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []PendingMessage
	for _, entry := range r.pending {
		if entry.msg.ConversationID == conversationID {
			out = append(out, entry.msg)
		}
	}
	return out
}
