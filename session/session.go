// Package session holds the in-memory conversation history for one
// connected operator. History lives only for the lifetime of the
// connection; a reset clears it atomically.
package session

import (
	"sync"
	"time"
)

// Roles for history entries.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// Message is one entry in the conversation history.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// History is an append-only ordered log of messages. It is safe for use
// by the receive loop and the turn goroutine concurrently.
type History struct {
	mu      sync.Mutex
	entries []Message
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{}
}

// Append adds a message with the current timestamp.
func (h *History) Append(role, content string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
}

// Snapshot returns a copy of the current entries in order.
func (h *History) Snapshot() []Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Message, len(h.entries))
	copy(out, h.entries)
	return out
}

// Reset discards all entries.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = nil
}

// Len reports the number of entries.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}
