package session

import "context"

// Request is one inbound chat record.
type Request struct {
	UserID         string `json:"user_id"`
	AgentID        string `json:"agent_id"`
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
}

const (
	TypeChunk    = "chunk"
	TypeComplete = "complete"
)

// Outbound is either a chunk, a complete marker, or an error record.
// Rejected marks an error about an inbound record that never became a
// request; it does not end the request currently streaming.
type Outbound struct {
	Type           string `json:"type,omitempty"`
	Content        string `json:"content,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Error          string `json:"error,omitempty"`
	Rejected       bool   `json:"rejected,omitempty"`
}

func chunk(conversationID, content string) Outbound {
	return Outbound{Type: TypeChunk, Content: content, ConversationID: conversationID}
}

func complete(conversationID string) Outbound {
	return Outbound{Type: TypeComplete, ConversationID: conversationID}
}

func errorRecord(msg string) Outbound {
	return Outbound{Error: msg}
}

func rejection(msg string) Outbound {
	return Outbound{Error: msg, Rejected: true}
}

// Channel is the outbound half of a live connection.
type Channel interface {
	Send(ctx context.Context, out Outbound) error
}

type userKey struct{}

// WithUser binds an authenticated user to ctx. Requests handled under it
// must carry the same user_id.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

func boundUser(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userKey{}).(string)
	return id, ok && id != ""
}
