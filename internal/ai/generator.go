package ai

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"golang.org/x/sync/semaphore"
)

const (
	UnavailableText = "AI chat is not available. Please configure OpenAI API key."
	EmptyReplyText  = "No response generated."
)

// Generator turns (persona, message, history) into a reply. A nil provider
// is a valid state: the generator then answers with UnavailableText.
type Generator struct {
	provider    Provider
	sem         *semaphore.Weighted
	counter     TokenCounter
	tokenBudget int
}

type GeneratorOption func(*Generator)

// WithTokenBudget trims history to budget tokens before each call.
func WithTokenBudget(c TokenCounter, budget int) GeneratorOption {
	return func(g *Generator) {
		g.counter = c
		g.tokenBudget = budget
	}
}

func NewGenerator(p Provider, maxConcurrent int64, opts ...GeneratorOption) *Generator {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	g := &Generator{provider: p, sem: semaphore.NewWeighted(maxConcurrent)}
	for _, o := range opts {
		o(g)
	}
	return g
}

func (g *Generator) Available() bool { return g.provider != nil }

func (g *Generator) messages(persona, message string, history []Message) []Message {
	history = TrimHistory(history, g.tokenBudget, g.counter)
	out := make([]Message, 0, len(history)+2)
	if strings.TrimSpace(persona) != "" {
		out = append(out, Message{Role: RoleSystem, Content: persona})
	}
	out = append(out, history...)
	return append(out, Message{Role: RoleUser, Content: message})
}

func (g *Generator) acquire(ctx context.Context) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("wait for ai slot: %w", err)
	}
	return nil
}

// Generate is the blocking form.
func (g *Generator) Generate(ctx context.Context, persona, message string, history []Message) (string, error) {
	if g.provider == nil {
		return UnavailableText, nil
	}
	if err := g.acquire(ctx); err != nil {
		return "", err
	}
	defer g.sem.Release(1)
	return g.provider.Chat(ctx, g.messages(persona, message, history))
}

// Stream yields reply fragments in emission order. Providers without
// streaming support yield their whole reply as one fragment. The backend
// slot is held until the sequence ends or the consumer stops early.
func (g *Generator) Stream(ctx context.Context, persona, message string, history []Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if g.provider == nil {
			yield(UnavailableText, nil)
			return
		}
		if err := g.acquire(ctx); err != nil {
			yield("", err)
			return
		}
		defer g.sem.Release(1)

		msgs := g.messages(persona, message, history)
		sp, ok := g.provider.(StreamProvider)
		if !ok {
			reply, err := g.provider.Chat(ctx, msgs)
			if err != nil {
				yield("", err)
				return
			}
			if reply != "" {
				yield(reply, nil)
			}
			return
		}
		for chunk, err := range sp.StreamChat(ctx, msgs) {
			if !yield(chunk, err) || err != nil {
				return
			}
		}
	}
}

// ProviderFor resolves the configured backend, mapping ErrUnconfigured to a
// nil provider.
func ProviderFor(ctx context.Context, r *Registry, name, model string) (Provider, error) {
	p, err := r.Get(ctx, name, model)
	if err != nil {
		if errors.Is(err, ErrUnconfigured) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}
