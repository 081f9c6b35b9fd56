package session

import "fmt"

type Kind int

const (
	KindValidation Kind = iota + 1
	KindAuthorization
	KindRateLimited
	KindBackendUnavailable
	KindGeneration
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindRateLimited:
		return "rate_limited"
	case KindBackendUnavailable:
		return "backend_unavailable"
	case KindGeneration:
		return "generation"
	case KindStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// Error is the single failure shape of a request. Msg is what the client
// sees; Err stays server side.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

const (
	msgMissingFields    = "Missing required fields: user_id, agent_id, message"
	msgAgentNotFound    = "Agent not found"
	msgAccessDenied     = "Access denied to this agent. Payment required."
	msgUserMismatch     = "user_id does not match the authenticated user"
	msgConvNotFound     = "Conversation not found"
	msgRateLimited      = "Too many messages. Please slow down."
	msgStorage          = "Failed to save conversation. Please try again."
	msgAccessCheck      = "Failed to verify agent access. Please try again."
	msgInvalidFormat    = "Invalid message format"
	msgTooManyPending   = "Too many pending requests on this connection"
	msgBackendPrefix    = "AI service is unavailable: "
	msgGenerationPrefix = "Failed to get agent response: "
)
