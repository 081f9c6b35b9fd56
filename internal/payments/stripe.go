package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"

	"github.com/suPer8Hu/agencore/internal/logging"
)

const currency = "usd"

// Stripe talks to the PaymentIntents API.
type Stripe struct {
	key     string
	intents paymentintent.Client
}

// NewStripe builds a gateway for secretKey. An empty baseURL uses the live
// API; anything else (a mock server) replaces its host.
func NewStripe(baseURL, secretKey string) *Stripe {
	cfg := &stripe.BackendConfig{
		HTTPClient:    &http.Client{Timeout: 15 * time.Second},
		LeveledLogger: stripeLogger{l: logging.Component("stripe")},
	}
	if u := strings.TrimSuffix(strings.TrimRight(baseURL, "/"), "/v1"); u != "" {
		cfg.URL = stripe.String(u)
	}
	return &Stripe{
		key: strings.TrimSpace(secretKey),
		intents: paymentintent.Client{
			B:   stripe.GetBackendWithConfig(stripe.APIBackend, cfg),
			Key: strings.TrimSpace(secretKey),
		},
	}
}

func (s *Stripe) CreateIntent(ctx context.Context, ch Charge) (*Intent, error) {
	if s.key == "" {
		return nil, ErrUnconfigured
	}
	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(ch.AmountCents),
		Currency:    stripe.String(currency),
		Description: stripe.String(fmt.Sprintf("Access to %s AI Agent", ch.AgentName)),
	}
	params.Context = ctx
	params.AddMetadata("user_id", ch.UserID)
	params.AddMetadata("agent_id", ch.AgentID)
	params.AddMetadata("agent_name", ch.AgentName)

	pi, err := s.intents.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: create intent: %w", err)
	}
	return toIntent(pi), nil
}

func (s *Stripe) Verify(ctx context.Context, intentID, userID, agentID string) (*Intent, error) {
	if s.key == "" {
		return nil, ErrUnconfigured
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := s.intents.Get(intentID, params)
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && se.HTTPStatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrUnknownIntent, intentID)
		}
		return nil, fmt.Errorf("stripe: retrieve intent: %w", err)
	}

	in := toIntent(pi)
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return in, ErrNotSucceeded
	}
	if in.Metadata["user_id"] != userID || in.Metadata["agent_id"] != agentID {
		return in, ErrMismatch
	}
	return in, nil
}

func toIntent(pi *stripe.PaymentIntent) *Intent {
	return &Intent{
		ID:           pi.ID,
		Status:       string(pi.Status),
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
		ClientSecret: pi.ClientSecret,
		Metadata:     pi.Metadata,
	}
}

// stripeLogger routes the SDK's own logging through zerolog.
type stripeLogger struct{ l zerolog.Logger }

func (s stripeLogger) Debugf(format string, v ...interface{}) { s.l.Debug().Msgf(format, v...) }
func (s stripeLogger) Infof(format string, v ...interface{})  { s.l.Debug().Msgf(format, v...) }
func (s stripeLogger) Warnf(format string, v ...interface{})  { s.l.Warn().Msgf(format, v...) }
func (s stripeLogger) Errorf(format string, v ...interface{}) { s.l.Error().Msgf(format, v...) }
