package inmemory

import (
	"context"
	"sync"

	"github.com/aigohq/aigo/providers/ai"
	"github.com/aigohq/aigo/providers/memory"
)

// ArrayMemory is a simple, concurrency-safe in-memory message store. It
// uses RWMutex to guard access and is efficient for read-heavy workloads.
// None of its operations can fail, so its read methods always return a nil
// error; the error returns exist to satisfy memory.Provider for backing
// stores that can fail.
type ArrayMemory struct {
	mu       sync.RWMutex
	messages []ai.Message
}

// New returns an empty ArrayMemory.
func New() *ArrayMemory {
	return &ArrayMemory{messages: []ai.Message{}}
}

// Ensure ArrayMemory implements memory.Provider.
var _ memory.Provider = (*ArrayMemory)(nil)

// AppendMessage stores a copy of the provided message at the end of the history.
func (m *ArrayMemory) AppendMessage(_ context.Context, message *ai.Message) {
	if message == nil {
		return
	}
	m.mu.Lock()
	m.messages = append(m.messages, *message)
	m.mu.Unlock()
}

// AllMessages returns a copy of all messages to avoid external mutation of
// internal state.
func (m *ArrayMemory) AllMessages(_ context.Context) ([]ai.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.messages) == 0 {
		return []ai.Message{}, nil
	}
	out := make([]ai.Message, len(m.messages))
	copy(out, m.messages)
	return out, nil
}

// ClearMessages removes all messages while retaining underlying capacity.
func (m *ArrayMemory) ClearMessages(_ context.Context) {
	m.mu.Lock()
	m.messages = m.messages[:0]
	m.mu.Unlock()
}

// Count returns the number of messages stored.
func (m *ArrayMemory) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	n := len(m.messages)
	m.mu.RUnlock()
	return n, nil
}

// LastMessages returns up to the last n messages as a new slice. If n <= 0,
// returns empty.
func (m *ArrayMemory) LastMessages(_ context.Context, n int) ([]ai.Message, error) {
	if n <= 0 {
		return []ai.Message{}, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if n > len(m.messages) {
		n = len(m.messages)
	}
	start := len(m.messages) - n
	out := make([]ai.Message, n)
	copy(out, m.messages[start:])
	return out, nil
}

// PopLastMessage removes and returns the most recently appended message, or
// nil if the history is empty.
func (m *ArrayMemory) PopLastMessage(_ context.Context) (*ai.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.messages) == 0 {
		return nil, nil
	}
	last := m.messages[len(m.messages)-1]
	m.messages = m.messages[:len(m.messages)-1]
	return &last, nil
}

// FilterByRole returns a copy of messages matching the given role.
func (m *ArrayMemory) FilterByRole(_ context.Context, role ai.MessageRole) ([]ai.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	filtered := make([]ai.Message, 0, len(m.messages))
	for _, msg := range m.messages {
		if msg.Role == role {
			filtered = append(filtered, msg)
		}
	}
	return filtered, nil
}
