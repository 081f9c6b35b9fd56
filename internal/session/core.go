package session

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/suPer8Hu/agencore/internal/activity"
	"github.com/suPer8Hu/agencore/internal/agents"
	"github.com/suPer8Hu/agencore/internal/ai"
	"github.com/suPer8Hu/agencore/internal/chat"
	"github.com/suPer8Hu/agencore/internal/logging"
)

type AgentCatalog interface {
	Get(id string) (agents.Agent, bool)
}

type Entitlements interface {
	IsEntitled(ctx context.Context, userID, agentID string) (bool, error)
}

type Conversations interface {
	CreateConversation(ctx context.Context, userID, agentID, title string) (*chat.Conversation, error)
	GetConversation(ctx context.Context, id string) (*chat.Conversation, error)
	AppendMessage(ctx context.Context, conversationID, role, content string) (*chat.Message, error)
	ListRecentMessages(ctx context.Context, conversationID string, limit int) ([]chat.Message, error)
}

type Generator interface {
	Stream(ctx context.Context, persona, message string, history []ai.Message) iter.Seq2[string, error]
}

type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type Deps struct {
	Agents        AgentCatalog
	Entitlements  Entitlements
	Conversations Conversations
	Generator     Generator
	Activity      activity.Recorder
	// RateLimiter is optional.
	RateLimiter RateLimiter
	// HistoryLimit bounds the prior messages handed to the generator.
	HistoryLimit int
}

// Core runs one chat request end to end. It holds no per-connection state,
// so one Core serves every channel.
type Core struct {
	d   Deps
	log zerolog.Logger
}

func NewCore(d Deps) *Core {
	if d.Activity == nil {
		d.Activity = activity.Nop{}
	}
	return &Core{d: d, log: logging.Component("session")}
}

// HandleRequest streams the reply to ch. The client sees either chunks
// followed by one complete record, or exactly one error record. The
// returned error is nil on success, a *Error when an error record was
// sent, or the send failure when the channel is gone.
func (c *Core) HandleRequest(ctx context.Context, ch Channel, req Request) error {
	l := c.log.With().Str("user_id", req.UserID).Str("agent_id", req.AgentID).Logger()

	conv, history, err := c.prepare(ctx, req)
	if err != nil {
		return c.fail(ctx, ch, l, err)
	}
	l = l.With().Str("conversation_id", conv.ID).Logger()

	agent, _ := c.d.Agents.Get(req.AgentID)
	var buf strings.Builder
	var genErr error
	for fragment, err := range c.d.Generator.Stream(ctx, agent.Persona, req.Message, history) {
		if err != nil {
			genErr = err
			break
		}
		if fragment == "" {
			continue
		}
		buf.WriteString(fragment)
		if err := ch.Send(ctx, chunk(conv.ID, fragment)); err != nil {
			l.Debug().Err(err).Int("partial_length", buf.Len()).Msg("channel gone mid-stream, partial reply discarded")
			return fmt.Errorf("send chunk: %w", err)
		}
	}

	if ctx.Err() != nil {
		l.Info().Int("partial_length", buf.Len()).Msg("request cancelled, partial reply discarded")
		return ctx.Err()
	}
	if genErr != nil {
		if errors.Is(genErr, ai.ErrUnavailable) {
			return c.fail(ctx, ch, l, newError(KindBackendUnavailable, msgBackendPrefix+genErr.Error(), genErr))
		}
		return c.fail(ctx, ch, l, newError(KindGeneration, msgGenerationPrefix+genErr.Error(), genErr))
	}

	reply := buf.String()
	if reply == "" {
		reply = ai.EmptyReplyText
		if err := ch.Send(ctx, chunk(conv.ID, reply)); err != nil {
			return fmt.Errorf("send chunk: %w", err)
		}
	}

	if _, err := c.d.Conversations.AppendMessage(ctx, conv.ID, chat.RoleAssistant, reply); err != nil {
		return c.fail(ctx, ch, l, newError(KindStorage, msgStorage, err))
	}
	replyLen := utf8.RuneCountInString(reply)
	c.d.Activity.Record(ctx, req.UserID, activity.ActionMessageReceived, map[string]any{
		"agent_id":        req.AgentID,
		"conversation_id": conv.ID,
		"response_length": replyLen,
	})

	if err := ch.Send(ctx, complete(conv.ID)); err != nil {
		return fmt.Errorf("send complete: %w", err)
	}
	l.Debug().Int("response_length", replyLen).Msg("request complete")
	return nil
}

// prepare runs every step before generation: validation, authorization,
// conversation resolution, history load and the user-message append.
func (c *Core) prepare(ctx context.Context, req Request) (*chat.Conversation, []ai.Message, *Error) {
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.AgentID) == "" || strings.TrimSpace(req.Message) == "" {
		return nil, nil, newError(KindValidation, msgMissingFields, nil)
	}
	if bound, ok := boundUser(ctx); ok && bound != req.UserID {
		return nil, nil, newError(KindAuthorization, msgUserMismatch, nil)
	}

	agent, ok := c.d.Agents.Get(req.AgentID)
	if !ok || !agent.Active {
		return nil, nil, newError(KindValidation, msgAgentNotFound, nil)
	}

	if c.d.RateLimiter != nil {
		allowed, err := c.d.RateLimiter.Allow(ctx, req.UserID)
		if err != nil {
			c.log.Warn().Err(err).Str("user_id", req.UserID).Msg("rate limiter unavailable, allowing")
		} else if !allowed {
			return nil, nil, newError(KindRateLimited, msgRateLimited, nil)
		}
	}

	entitled, err := c.d.Entitlements.IsEntitled(ctx, req.UserID, req.AgentID)
	if err != nil {
		return nil, nil, newError(KindStorage, msgAccessCheck, err)
	}
	if !entitled {
		c.d.Activity.Record(ctx, req.UserID, activity.ActionAccessDenied, map[string]any{"agent_id": req.AgentID})
		return nil, nil, newError(KindAuthorization, msgAccessDenied, nil)
	}

	var conv *chat.Conversation
	var history []ai.Message
	if req.ConversationID != "" {
		conv, err = c.d.Conversations.GetConversation(ctx, req.ConversationID)
		if errors.Is(err, chat.ErrNotFound) {
			return nil, nil, newError(KindAuthorization, msgConvNotFound, err)
		}
		if err != nil {
			return nil, nil, newError(KindStorage, msgStorage, err)
		}
		if conv.UserID != req.UserID || conv.AgentID != req.AgentID {
			return nil, nil, newError(KindAuthorization, msgConvNotFound, nil)
		}
		if c.d.HistoryLimit > 0 {
			recent, err := c.d.Conversations.ListRecentMessages(ctx, conv.ID, c.d.HistoryLimit)
			if err != nil {
				return nil, nil, newError(KindStorage, msgStorage, err)
			}
			history = make([]ai.Message, 0, len(recent))
			for _, m := range recent {
				history = append(history, ai.Message{Role: m.Role, Content: m.Content})
			}
		}
	} else {
		conv, err = c.d.Conversations.CreateConversation(ctx, req.UserID, req.AgentID, chat.TitleFrom(req.Message))
		if err != nil {
			return nil, nil, newError(KindStorage, msgStorage, err)
		}
	}

	if _, err := c.d.Conversations.AppendMessage(ctx, conv.ID, chat.RoleUser, req.Message); err != nil {
		return nil, nil, newError(KindStorage, msgStorage, err)
	}
	c.d.Activity.Record(ctx, req.UserID, activity.ActionMessageSent, map[string]any{
		"agent_id":        req.AgentID,
		"conversation_id": conv.ID,
		"message_length":  utf8.RuneCountInString(req.Message),
	})
	return conv, history, nil
}

func (c *Core) fail(ctx context.Context, ch Channel, l zerolog.Logger, e *Error) error {
	ev := l.Info()
	if e.Kind == KindStorage || e.Kind == KindBackendUnavailable {
		ev = l.Error()
	}
	ev.Err(e.Err).Str("kind", e.Kind.String()).Msg(e.Msg)

	if err := ch.Send(ctx, errorRecord(e.Msg)); err != nil {
		return fmt.Errorf("send error record: %w", err)
	}
	return e
}
