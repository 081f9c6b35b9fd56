package activity

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/suPer8Hu/agencore/internal/logging"
)

// Recorder is what request paths depend on. Record never blocks and never
// reports failure to the caller.
type Recorder interface {
	Record(ctx context.Context, userID, action string, metadata map[string]any)
}

type Sink interface {
	Store(ctx context.Context, e *Event) error
}

type Stats struct {
	Recorded int64 `json:"recorded"`
	Dropped  int64 `json:"dropped"`
	Failed   int64 `json:"failed"`
}

// Logger queues events and drains them to a Sink on one goroutine.
type Logger struct {
	sink         Sink
	queue        chan Event
	storeTimeout time.Duration
	log          zerolog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}

	recorded atomic.Int64
	dropped  atomic.Int64
	failed   atomic.Int64
}

func NewLogger(sink Sink, queueSize int) *Logger {
	if queueSize <= 0 {
		queueSize = 1000
	}
	l := &Logger{
		sink:         sink,
		queue:        make(chan Event, queueSize),
		storeTimeout: 5 * time.Second,
		log:          logging.Component("activity"),
		done:         make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Logger) Record(_ context.Context, userID, action string, metadata map[string]any) {
	e := Event{UserID: userID, Action: action, Metadata: metadata, CreatedAt: time.Now()}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		l.dropped.Add(1)
		return
	}
	select {
	case l.queue <- e:
	default:
		l.dropped.Add(1)
		l.log.Warn().Str("user_id", userID).Str("action", action).Msg("activity queue full, event dropped")
	}
}

func (l *Logger) run() {
	defer close(l.done)
	for e := range l.queue {
		ctx, cancel := context.WithTimeout(context.Background(), l.storeTimeout)
		err := l.sink.Store(ctx, &e)
		cancel()
		if err != nil {
			l.failed.Add(1)
			l.log.Error().Err(err).Str("user_id", e.UserID).Str("action", e.Action).Msg("activity store failed")
			continue
		}
		l.recorded.Add(1)
	}
}

func (l *Logger) Stats() Stats {
	return Stats{Recorded: l.recorded.Load(), Dropped: l.dropped.Load(), Failed: l.failed.Load()}
}

// Close stops intake and waits for queued events to drain or ctx to end.
func (l *Logger) Close(ctx context.Context) error {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.queue)
	}
	l.mu.Unlock()

	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("activity logger: drain interrupted"), ctx.Err())
	}
}

// Nop discards events.
type Nop struct{}

func (Nop) Record(context.Context, string, string, map[string]any) {}
