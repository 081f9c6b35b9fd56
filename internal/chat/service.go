package chat

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"
)

const titleMaxRunes = 60

// TitleFrom derives a conversation title from the opening message.
func TitleFrom(message string) string {
	t := strings.Join(strings.Fields(message), " ")
	if t == "" {
		return DefaultTitle
	}
	if utf8.RuneCountInString(t) <= titleMaxRunes {
		return t
	}
	r := []rune(t)
	return strings.TrimSpace(string(r[:titleMaxRunes])) + "..."
}

// Service is the read side used by the REST handlers. The streaming write
// path goes through the session core, which talks to Repo directly.
type Service struct {
	repo *Repo
}

func NewService(repo *Repo) *Service {
	return &Service{repo: repo}
}

func (s *Service) History(ctx context.Context, userID string, limit int) ([]ConversationSummary, error) {
	return s.repo.ListConversationsByUser(ctx, userID, limit)
}

// Messages returns the log of a conversation the user owns.
func (s *Service) Messages(ctx context.Context, userID, conversationID string) (*Conversation, []Message, error) {
	conv, err := s.repo.GetOwnedConversation(ctx, userID, conversationID)
	if err != nil {
		return nil, nil, err
	}
	msgs, err := s.repo.ListMessages(ctx, conv.ID)
	if err != nil {
		return nil, nil, err
	}
	return conv, msgs, nil
}

func (s *Service) Stats(ctx context.Context, userID string) (*UserStats, error) {
	return s.repo.UserStats(ctx, userID)
}

func (s *Service) Cleanup(ctx context.Context, olderThan time.Duration) (CleanupResult, error) {
	return s.repo.CleanupOlderThan(ctx, s.repo.now().Add(-olderThan))
}
