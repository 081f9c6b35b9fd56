package ai

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	// ErrUnconfigured means no backend was set up; callers treat it as "no provider".
	ErrUnconfigured = errors.New("ai provider is not configured")
	// ErrUnavailable wraps failures to reach a configured backend.
	ErrUnavailable = errors.New("ai backend unavailable")
)

type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

// StreamProvider is an optional interface. The returned sequence is finite
// and single-use; a non-nil error element is always the last one, and
// stopping iteration early releases the underlying response.
type StreamProvider interface {
	StreamChat(ctx context.Context, messages []Message) iter.Seq2[string, error]
}

// Options are sampling parameters shared by the HTTP providers.
type Options struct {
	MaxTokens   int
	Temperature float64
}

var errStalled = errors.New("stream stalled")

// stallGuard cancels a stream whose backend stays silent for longer than d.
// The clock is paused while the consumer holds a fragment.
type stallGuard struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
	timer  *time.Timer
	d      time.Duration
}

func newStallGuard(parent context.Context, d time.Duration) *stallGuard {
	ctx, cancel := context.WithCancelCause(parent)
	g := &stallGuard{ctx: ctx, cancel: cancel, d: d}
	if d > 0 {
		g.timer = time.AfterFunc(d, func() { cancel(errStalled) })
	}
	return g
}

func (g *stallGuard) pause() {
	if g.timer != nil {
		g.timer.Stop()
	}
}

func (g *stallGuard) resume() {
	if g.timer != nil {
		g.timer.Reset(g.d)
	}
}

func (g *stallGuard) stop() {
	g.pause()
	g.cancel(nil)
}

// wrap maps a failure caused by the guard to ErrUnavailable and one caused
// by the caller to the caller's context error.
func (g *stallGuard) wrap(parent context.Context, name string, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(context.Cause(g.ctx), errStalled) {
		return fmt.Errorf("%w: %s: no data for %s", ErrUnavailable, name, g.d)
	}
	return err
}
