package memory

import (
	"context"

	"github.com/aigohq/aigo/providers/ai"
)

// Provider defines conversation history storage for a chat session. All
// methods take a context so that database-backed implementations can honor
// cancellation and deadlines. AppendMessage and ClearMessages are mutations
// and do not return an error: the bundled in-memory implementation cannot
// fail, and callers that need failure visibility on writes should wrap a
// Provider rather than changing the interface for every implementation.
// Every read method returns an error so that backing stores can surface
// failures instead of silently dropping history.
type Provider interface {
	// AppendMessage stores message at the end of the conversation history.
	// A nil message is a no-op.
	AppendMessage(ctx context.Context, message *ai.Message)

	// AllMessages returns every message currently stored, oldest first.
	AllMessages(ctx context.Context) ([]ai.Message, error)

	// LastMessages returns up to the last n messages, oldest first. If n <= 0
	// or the history is empty, it returns an empty slice.
	LastMessages(ctx context.Context, n int) ([]ai.Message, error)

	// PopLastMessage removes and returns the most recently appended message,
	// or nil if the history is empty.
	PopLastMessage(ctx context.Context) (*ai.Message, error)

	// Count returns the number of messages currently stored.
	Count(ctx context.Context) (int, error)

	// ClearMessages removes all stored messages.
	ClearMessages(ctx context.Context)

	// FilterByRole returns every stored message with the given role, in
	// original order.
	FilterByRole(ctx context.Context, role ai.MessageRole) ([]ai.Message, error)
}
