package ws

import "sync"

// Presence tracks which users currently hold at least one live connection.
// Connections are reference counted per user so a second tab or a rapid
// reconnect never produces a spurious offline transition. State is not
// persisted; a restart rebuilds it from live connections.
type Presence struct {
	mu   sync.Mutex
	refs map[int]int
}

// NewPresence creates an empty presence registry.
func NewPresence() *Presence {
	return &Presence{refs: make(map[int]int)}
}

// MarkOnline records a new connection for the user. Returns true when this
// is the user's first live connection, i.e. an actual offline→online flip.
func (p *Presence) MarkOnline(userID int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refs[userID]++
	return p.refs[userID] == 1
}

// MarkOffline records a departing connection for the user. Returns true when
// this was the user's last live connection. Calling it for a user with no
// tracked connections is a no-op.
func (p *Presence) MarkOffline(userID int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, ok := p.refs[userID]
	if !ok {
		return false
	}
	if n <= 1 {
		delete(p.refs, userID)
		return true
	}
	p.refs[userID] = n - 1
	return false
}

// IsOnline reports whether the user has at least one live connection.
func (p *Presence) IsOnline(userID int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refs[userID] > 0
}

// OnlineCount returns the number of distinct online users.
func (p *Presence) OnlineCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.refs)
}
