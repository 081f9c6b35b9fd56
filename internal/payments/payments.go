package payments

import (
	"context"
	"errors"
)

var (
	ErrUnconfigured  = errors.New("payments are not configured")
	ErrNotSucceeded  = errors.New("payment not completed")
	ErrMismatch      = errors.New("payment does not match user or agent")
	ErrUnknownIntent = errors.New("payment intent not found")
)

type Intent struct {
	ID           string            `json:"id"`
	Status       string            `json:"status"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	ClientSecret string            `json:"-"`
	Metadata     map[string]string `json:"metadata"`
}

// Charge is one agent unlock a user is about to pay for.
type Charge struct {
	UserID      string
	AgentID     string
	AgentName   string
	AmountCents int64
}

type Gateway interface {
	// CreateIntent opens a payment tagged with the user and agent ids that
	// Verify later checks.
	CreateIntent(ctx context.Context, ch Charge) (*Intent, error)
	// Verify fetches the intent and checks it succeeded for (userID, agentID).
	Verify(ctx context.Context, intentID, userID, agentID string) (*Intent, error)
}
