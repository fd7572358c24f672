package ws

import "sync"

// TypingTracker holds per-conversation sets of users currently composing a
// message. Entries are added and removed only on explicit client signals and
// on disconnect; the server applies no timeout of its own.
type TypingTracker struct {
	mu     sync.Mutex
	typing map[int]map[int]struct{}
}

// NewTypingTracker creates an empty tracker.
func NewTypingTracker() *TypingTracker {
	return &TypingTracker{typing: make(map[int]map[int]struct{})}
}

// Start marks the user as typing in the conversation. Returns true when the
// user was not already marked, so repeated starts stay idempotent.
func (t *TypingTracker) Start(conversationID int, userID int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.typing[conversationID]
	if !ok {
		set = make(map[int]struct{})
		t.typing[conversationID] = set
	}
	if _, already := set[userID]; already {
		return false
	}
	set[userID] = struct{}{}
	return true
}

// Stop clears the user's typing mark. Returns true when the user was marked;
// stopping a user who was not typing is a no-op.
func (t *TypingTracker) Stop(conversationID int, userID int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.typing[conversationID]
	if !ok {
		return false
	}
	if _, present := set[userID]; !present {
		return false
	}
	delete(set, userID)
	if len(set) == 0 {
		delete(t.typing, conversationID)
	}
	return true
}

// StopAll clears the user's typing mark in every conversation and returns
// the affected conversation ids. Used for disconnect cleanup so peers never
// see a stuck typing indicator.
func (t *TypingTracker) StopAll(userID int) []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	var affected []int
	for convID, set := range t.typing {
		if _, present := set[userID]; present {
			delete(set, userID)
			if len(set) == 0 {
				delete(t.typing, convID)
			}
			affected = append(affected, convID)
		}
	}
	return affected
}

// IsTyping reports whether the user is marked typing in the conversation.
func (t *TypingTracker) IsTyping(conversationID int, userID int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, present := t.typing[conversationID][userID]
	return present
}
