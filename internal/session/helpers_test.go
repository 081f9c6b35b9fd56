package session

import (
	"context"
	"errors"
	"iter"
	"path/filepath"
	"sync"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/suPer8Hu/agencore/internal/agents"
	"github.com/suPer8Hu/agencore/internal/ai"
	"github.com/suPer8Hu/agencore/internal/chat"
	"github.com/suPer8Hu/agencore/internal/entitlement"
)

type recordingChannel struct {
	mu     sync.Mutex
	out    []Outbound
	onSend func(Outbound)
}

func (c *recordingChannel) Send(ctx context.Context, out Outbound) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.out = append(c.out, out)
	c.mu.Unlock()
	if c.onSend != nil {
		c.onSend(out)
	}
	return nil
}

func (c *recordingChannel) records() []Outbound {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Outbound(nil), c.out...)
}

type scriptedGenerator struct {
	mu       sync.Mutex
	chunks   []string
	err      error
	calls    int
	personas []string
	history  [][]ai.Message
	// block, when set, parks the stream until ctx ends.
	block   bool
	started chan struct{}
}

func (g *scriptedGenerator) Stream(ctx context.Context, persona, message string, history []ai.Message) iter.Seq2[string, error] {
	g.mu.Lock()
	g.calls++
	g.personas = append(g.personas, persona)
	g.history = append(g.history, history)
	g.mu.Unlock()
	return func(yield func(string, error) bool) {
		if g.started != nil {
			g.started <- struct{}{}
		}
		for _, c := range g.chunks {
			if ctx.Err() != nil {
				yield("", ctx.Err())
				return
			}
			if !yield(c, nil) {
				return
			}
		}
		if g.block {
			<-ctx.Done()
			yield("", ctx.Err())
			return
		}
		if g.err != nil {
			yield("", g.err)
		}
	}
}

func (g *scriptedGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type activityEntry struct {
	UserID string
	Action string
	Meta   map[string]any
}

type fakeActivity struct {
	mu      sync.Mutex
	entries []activityEntry
}

func (a *fakeActivity) Record(_ context.Context, userID, action string, meta map[string]any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, activityEntry{UserID: userID, Action: action, Meta: meta})
}

func (a *fakeActivity) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []string
	for _, e := range a.entries {
		out = append(out, e.Action)
	}
	return out
}

type fakeLimiter struct {
	allow bool
	err   error
}

func (l fakeLimiter) Allow(context.Context, string) (bool, error) { return l.allow, l.err }

// failingConversations fails AppendMessage for one role.
type failingConversations struct {
	*chat.Repo
	failRole string
}

func (f failingConversations) AppendMessage(ctx context.Context, id, role, content string) (*chat.Message, error) {
	if role == f.failRole {
		return nil, errors.New("disk full")
	}
	return f.Repo.AppendMessage(ctx, id, role, content)
}

type fixture struct {
	db       *gorm.DB
	repo     *chat.Repo
	agents   *agents.Registry
	ents     *entitlement.Service
	gen      *scriptedGenerator
	activity *fakeActivity
	core     *Core
}

func newFixture(t *testing.T, mutate ...func(*Deps)) *fixture {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open(filepath.Join(t.TempDir(), "session.db")), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&chat.Conversation{}, &chat.Message{}, &entitlement.Entitlement{}))

	reg, err := agents.NewRegistry(agents.Builtin())
	require.NoError(t, err)

	f := &fixture{
		db:       db,
		repo:     chat.NewRepo(db),
		agents:   reg,
		gen:      &scriptedGenerator{chunks: []string{"Hel", "lo", "!"}},
		activity: &fakeActivity{},
	}
	f.ents = entitlement.NewService(entitlement.NewStore(db), reg)

	d := Deps{
		Agents:        f.agents,
		Entitlements:  f.ents,
		Conversations: f.repo,
		Generator:     f.gen,
		Activity:      f.activity,
		HistoryLimit:  10,
	}
	for _, m := range mutate {
		m(&d)
	}
	f.core = NewCore(d)
	return f
}

func (f *fixture) conversationCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&chat.Conversation{}).Count(&n).Error)
	return n
}

func (f *fixture) messageCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&chat.Message{}).Count(&n).Error)
	return n
}

func concatChunks(out []Outbound) string {
	var s string
	for _, o := range out {
		if o.Type == TypeChunk {
			s += o.Content
		}
	}
	return s
}
