package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/suPer8Hu/agencore/internal/activity"
	"github.com/suPer8Hu/agencore/internal/agents"
	"github.com/suPer8Hu/agencore/internal/ai"
	"github.com/suPer8Hu/agencore/internal/chat"
)

func TestHandleRequest_NewConversationStreamsAndPersists(t *testing.T) {
	f := newFixture(t)
	ch := &recordingChannel{}

	err := f.core.HandleRequest(context.Background(), ch, Request{UserID: "u1", AgentID: "creative-writer", Message: "hi"})
	require.NoError(t, err)

	out := ch.records()
	require.Len(t, out, 4)
	convID := out[0].ConversationID
	require.NotEmpty(t, convID)
	for _, o := range out[:3] {
		require.Equal(t, TypeChunk, o.Type)
		require.Equal(t, convID, o.ConversationID)
		require.Empty(t, o.Error)
	}
	require.Equal(t, Outbound{Type: TypeComplete, ConversationID: convID}, out[3])

	conv, err := f.repo.GetConversation(context.Background(), convID)
	require.NoError(t, err)
	require.Equal(t, "u1", conv.UserID)
	require.Equal(t, "creative-writer", conv.AgentID)
	require.Equal(t, "hi", conv.Title)

	msgs, err := f.repo.ListMessages(context.Background(), convID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, chat.RoleUser, msgs[0].Role)
	require.Equal(t, "hi", msgs[0].Content)
	require.Equal(t, chat.RoleAssistant, msgs[1].Role)
	require.Equal(t, concatChunks(out), msgs[1].Content)
	require.False(t, msgs[1].CreatedAt.Before(msgs[0].CreatedAt))

	persona, _ := f.agents.Get("creative-writer")
	require.Equal(t, []string{persona.Persona}, f.gen.personas)
	require.Empty(t, f.gen.history[0])

	require.Equal(t, []string{activity.ActionMessageSent, activity.ActionMessageReceived}, f.activity.actions())
	require.Equal(t, 6, f.activity.entries[1].Meta["response_length"])
	require.Equal(t, 2, f.activity.entries[0].Meta["message_length"])
}

func TestHandleRequest_MissingFieldsTouchNothing(t *testing.T) {
	cases := []Request{
		{AgentID: "creative-writer", Message: "hi"},
		{UserID: "u1", Message: "hi"},
		{UserID: "u1", AgentID: "creative-writer"},
		{UserID: "u1", AgentID: "creative-writer", Message: "   "},
		{},
	}
	for i, req := range cases {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			f := newFixture(t)
			ch := &recordingChannel{}

			err := f.core.HandleRequest(context.Background(), ch, req)
			var se *Error
			require.True(t, errors.As(err, &se))
			require.Equal(t, KindValidation, se.Kind)

			require.Equal(t, []Outbound{{Error: msgMissingFields}}, ch.records())
			require.Zero(t, f.conversationCount(t))
			require.Zero(t, f.messageCount(t))
			require.Zero(t, f.gen.callCount())
			require.Empty(t, f.activity.actions())
		})
	}
}

func TestHandleRequest_PaidAgentWithoutEntitlement(t *testing.T) {
	f := newFixture(t)
	ch := &recordingChannel{}

	err := f.core.HandleRequest(context.Background(), ch, Request{UserID: "u1", AgentID: "data-scientist", Message: "analyze"})
	var se *Error
	require.True(t, errors.As(err, &se))
	require.Equal(t, KindAuthorization, se.Kind)
	require.Equal(t, []Outbound{{Error: msgAccessDenied}}, ch.records())
	require.Zero(t, f.conversationCount(t))
	require.Zero(t, f.messageCount(t))
	require.Equal(t, []string{activity.ActionAccessDenied}, f.activity.actions())

	require.NoError(t, f.ents.Grant(context.Background(), "u1", "data-scientist", nil))
	ch = &recordingChannel{}
	require.NoError(t, f.core.HandleRequest(context.Background(), ch, Request{UserID: "u1", AgentID: "data-scientist", Message: "analyze"}))
	out := ch.records()
	require.Equal(t, TypeComplete, out[len(out)-1].Type)
}

func TestHandleRequest_RecreatedPaidAgentStaysPaid(t *testing.T) {
	f := newFixture(t)
	ds, ok := f.agents.Get("data-scientist")
	require.True(t, ok)
	require.NoError(t, f.agents.Delete("data-scientist"))
	free := ds
	free.Tier = agents.TierFree
	require.Error(t, f.agents.Create(free))
	require.NoError(t, f.agents.Create(ds))

	ch := &recordingChannel{}
	err := f.core.HandleRequest(context.Background(), ch, Request{UserID: "nobody", AgentID: "data-scientist", Message: "analyze"})
	require.Error(t, err)
	require.Equal(t, []Outbound{{Error: msgAccessDenied}}, ch.records())

	entitled, err := f.ents.IsEntitled(context.Background(), "nobody", "data-scientist")
	require.NoError(t, err)
	require.False(t, entitled)
}

func TestHandleRequest_ResponseLengthCountsRunes(t *testing.T) {
	f := newFixture(t)
	f.gen.chunks = []string{"héllo", " ✓"}
	var buf bytes.Buffer
	f.core.log = zerolog.New(&buf).Level(zerolog.DebugLevel)

	require.NoError(t, f.core.HandleRequest(context.Background(), &recordingChannel{}, Request{UserID: "u1", AgentID: "creative-writer", Message: "hi"}))

	var received activityEntry
	for _, e := range f.activity.entries {
		if e.Action == activity.ActionMessageReceived {
			received = e
		}
	}
	require.Equal(t, 7, received.Meta["response_length"])
	require.Contains(t, buf.String(), `"response_length":7`)
}

func TestHandleRequest_GenerationFailureDiscardsPartial(t *testing.T) {
	f := newFixture(t)
	f.gen.chunks = []string{"part one ", "part two"}
	f.gen.err = errors.New("model exploded")
	ch := &recordingChannel{}

	err := f.core.HandleRequest(context.Background(), ch, Request{UserID: "u1", AgentID: "code-helper", Message: "fix it"})
	var se *Error
	require.True(t, errors.As(err, &se))
	require.Equal(t, KindGeneration, se.Kind)

	out := ch.records()
	require.Len(t, out, 3)
	require.Equal(t, TypeChunk, out[0].Type)
	require.Equal(t, TypeChunk, out[1].Type)
	require.Equal(t, msgGenerationPrefix+"model exploded", out[2].Error)
	require.Empty(t, out[2].Type)

	msgs, err := f.repo.ListMessages(context.Background(), out[0].ConversationID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, chat.RoleUser, msgs[0].Role)
	require.Equal(t, []string{activity.ActionMessageSent}, f.activity.actions())
}

func TestHandleRequest_BackendUnreachable(t *testing.T) {
	f := newFixture(t)
	f.gen.chunks = nil
	f.gen.err = fmt.Errorf("%w: openai: dial tcp: refused", ai.ErrUnavailable)
	ch := &recordingChannel{}

	err := f.core.HandleRequest(context.Background(), ch, Request{UserID: "u1", AgentID: "code-helper", Message: "hi"})
	var se *Error
	require.True(t, errors.As(err, &se))
	require.Equal(t, KindBackendUnavailable, se.Kind)
	require.True(t, errors.Is(err, ai.ErrUnavailable))

	out := ch.records()
	require.Len(t, out, 1)
	require.Contains(t, out[0].Error, msgBackendPrefix)
	// The user's message survives.
	require.Equal(t, int64(1), f.messageCount(t))
}

func TestHandleRequest_UnconfiguredBackendExplains(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.Generator = ai.NewGenerator(nil, 1) })
	ch := &recordingChannel{}

	require.NoError(t, f.core.HandleRequest(context.Background(), ch, Request{UserID: "u1", AgentID: "research-assistant", Message: "hi"}))

	out := ch.records()
	require.Len(t, out, 2)
	require.Equal(t, TypeChunk, out[0].Type)
	require.Equal(t, ai.UnavailableText, out[0].Content)
	require.Equal(t, TypeComplete, out[1].Type)

	msgs, err := f.repo.ListMessages(context.Background(), out[0].ConversationID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, ai.UnavailableText, msgs[1].Content)
}

func TestHandleRequest_EmptyReplyIsSynthesized(t *testing.T) {
	f := newFixture(t)
	f.gen.chunks = nil
	ch := &recordingChannel{}

	require.NoError(t, f.core.HandleRequest(context.Background(), ch, Request{UserID: "u1", AgentID: "code-helper", Message: "hi"}))
	out := ch.records()
	require.Len(t, out, 2)
	require.Equal(t, ai.EmptyReplyText, out[0].Content)

	msgs, err := f.repo.ListMessages(context.Background(), out[0].ConversationID)
	require.NoError(t, err)
	require.Equal(t, ai.EmptyReplyText, msgs[1].Content)
}

func TestHandleRequest_ReplayIsNotIdempotent(t *testing.T) {
	f := newFixture(t)
	ch := &recordingChannel{}
	first := Request{UserID: "u1", AgentID: "creative-writer", Message: "again"}
	require.NoError(t, f.core.HandleRequest(context.Background(), ch, first))
	convID := ch.records()[0].ConversationID

	replay := Request{UserID: "u1", AgentID: "creative-writer", Message: "again", ConversationID: convID}
	require.NoError(t, f.core.HandleRequest(context.Background(), ch, replay))
	require.NoError(t, f.core.HandleRequest(context.Background(), ch, replay))

	msgs, err := f.repo.ListMessages(context.Background(), convID)
	require.NoError(t, err)
	require.Len(t, msgs, 6)
	for i, m := range msgs {
		if i%2 == 0 {
			require.Equal(t, chat.RoleUser, m.Role)
		} else {
			require.Equal(t, chat.RoleAssistant, m.Role)
		}
	}
	require.Equal(t, int64(1), f.conversationCount(t))

	// The third call saw the four earlier messages as history.
	require.Len(t, f.gen.history[2], 4)
	require.Equal(t, "again", f.gen.history[2][0].Content)
}

func TestHandleRequest_ForeignConversationRejected(t *testing.T) {
	f := newFixture(t)
	conv, err := f.repo.CreateConversation(context.Background(), "owner", "creative-writer", "")
	require.NoError(t, err)

	for _, req := range []Request{
		{UserID: "intruder", AgentID: "creative-writer", Message: "hi", ConversationID: conv.ID},
		{UserID: "owner", AgentID: "code-helper", Message: "hi", ConversationID: conv.ID},
		{UserID: "owner", AgentID: "creative-writer", Message: "hi", ConversationID: "01MISSING00000000000000000"},
	} {
		ch := &recordingChannel{}
		err := f.core.HandleRequest(context.Background(), ch, req)
		var se *Error
		require.True(t, errors.As(err, &se))
		require.Equal(t, KindAuthorization, se.Kind)
		require.Equal(t, []Outbound{{Error: msgConvNotFound}}, ch.records())
	}
	require.Zero(t, f.messageCount(t))
}

func TestHandleRequest_BoundUserMismatch(t *testing.T) {
	f := newFixture(t)
	ch := &recordingChannel{}
	ctx := WithUser(context.Background(), "alice")

	err := f.core.HandleRequest(ctx, ch, Request{UserID: "bob", AgentID: "creative-writer", Message: "hi"})
	require.Error(t, err)
	require.Equal(t, []Outbound{{Error: msgUserMismatch}}, ch.records())
	require.Zero(t, f.conversationCount(t))

	require.NoError(t, f.core.HandleRequest(ctx, &recordingChannel{}, Request{UserID: "alice", AgentID: "creative-writer", Message: "hi"}))
}

func TestHandleRequest_InactiveOrUnknownAgent(t *testing.T) {
	f := newFixture(t)
	active, err := f.agents.ToggleActive("code-helper")
	require.NoError(t, err)
	require.False(t, active)

	for _, id := range []string{"code-helper", "nope"} {
		ch := &recordingChannel{}
		err := f.core.HandleRequest(context.Background(), ch, Request{UserID: "u1", AgentID: id, Message: "hi"})
		require.Error(t, err)
		require.Equal(t, []Outbound{{Error: msgAgentNotFound}}, ch.records())
	}
	require.Zero(t, f.conversationCount(t))
}

func TestHandleRequest_RateLimit(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.RateLimiter = fakeLimiter{allow: false} })
	ch := &recordingChannel{}
	err := f.core.HandleRequest(context.Background(), ch, Request{UserID: "u1", AgentID: "creative-writer", Message: "hi"})
	var se *Error
	require.True(t, errors.As(err, &se))
	require.Equal(t, KindRateLimited, se.Kind)
	require.Zero(t, f.conversationCount(t))

	// A broken limiter fails open.
	f = newFixture(t, func(d *Deps) { d.RateLimiter = fakeLimiter{err: errors.New("redis down")} })
	require.NoError(t, f.core.HandleRequest(context.Background(), &recordingChannel{}, Request{UserID: "u1", AgentID: "creative-writer", Message: "hi"}))
}

func TestHandleRequest_AssistantStorageFailure(t *testing.T) {
	f := newFixture(t, func(d *Deps) {
		d.Conversations = failingConversations{Repo: d.Conversations.(*chat.Repo), failRole: chat.RoleAssistant}
	})
	ch := &recordingChannel{}

	err := f.core.HandleRequest(context.Background(), ch, Request{UserID: "u1", AgentID: "creative-writer", Message: "hi"})
	var se *Error
	require.True(t, errors.As(err, &se))
	require.Equal(t, KindStorage, se.Kind)

	out := ch.records()
	last := out[len(out)-1]
	require.Equal(t, msgStorage, last.Error)
	for _, o := range out {
		require.NotEqual(t, TypeComplete, o.Type)
	}
	require.NotContains(t, f.activity.actions(), activity.ActionMessageReceived)
}

func TestHandleRequest_UserStorageFailureSkipsGeneration(t *testing.T) {
	f := newFixture(t, func(d *Deps) {
		d.Conversations = failingConversations{Repo: d.Conversations.(*chat.Repo), failRole: chat.RoleUser}
	})
	ch := &recordingChannel{}

	err := f.core.HandleRequest(context.Background(), ch, Request{UserID: "u1", AgentID: "creative-writer", Message: "hi"})
	require.Error(t, err)
	require.Equal(t, []Outbound{{Error: msgStorage}}, ch.records())
	require.Zero(t, f.gen.callCount())
}

func TestHandleRequest_CancelMidStreamDropsPartial(t *testing.T) {
	f := newFixture(t)
	f.gen.chunks = []string{"first", "second"}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The client goes away right after the first chunk is delivered.
	ch := &recordingChannel{onSend: func(o Outbound) {
		if o.Type == TypeChunk {
			cancel()
		}
	}}

	err := f.core.HandleRequest(ctx, ch, Request{UserID: "u1", AgentID: "creative-writer", Message: "hi"})
	require.ErrorIs(t, err, context.Canceled)

	out := ch.records()
	require.Len(t, out, 1)
	require.Equal(t, "first", out[0].Content)

	msgs, err := f.repo.ListMessages(context.Background(), out[0].ConversationID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, chat.RoleUser, msgs[0].Role)
	require.NotContains(t, f.activity.actions(), activity.ActionMessageReceived)
}

func TestErrorKinds(t *testing.T) {
	e := newError(KindStorage, msgStorage, errors.New("disk"))
	require.Equal(t, "storage: "+msgStorage+": disk", e.Error())
	require.Equal(t, "disk", errors.Unwrap(e).Error())
	require.Equal(t, "rate_limited", KindRateLimited.String())
	require.Equal(t, "unknown", Kind(0).String())
}
