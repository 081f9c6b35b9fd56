package chat

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/suPer8Hu/agencore/internal/common"
)

var ErrNotFound = stderrors.New("conversation not found")

type Repo struct {
	db  *gorm.DB
	now func() time.Time
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db, now: time.Now}
}

func (r *Repo) CreateConversation(ctx context.Context, userID, agentID, title string) (*Conversation, error) {
	id, err := common.NewULID()
	if err != nil {
		return nil, errors.Wrap(err, "new conversation id")
	}
	if title == "" {
		title = DefaultTitle
	}
	now := r.now()
	c := &Conversation{ID: id, UserID: userID, AgentID: agentID, Title: title, CreatedAt: now, UpdatedAt: now}
	if err := r.db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, errors.Wrap(err, "create conversation")
	}
	return c, nil
}

func (r *Repo) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	var c Conversation
	if err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get conversation")
	}
	return &c, nil
}

// GetOwnedConversation hides conversations of other users behind ErrNotFound.
func (r *Repo) GetOwnedConversation(ctx context.Context, userID, id string) (*Conversation, error) {
	c, err := r.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.UserID != userID {
		return nil, ErrNotFound
	}
	return c, nil
}

// AppendMessage inserts the message and bumps the conversation's updated_at
// in one transaction.
func (r *Repo) AppendMessage(ctx context.Context, conversationID, role, content string) (*Message, error) {
	m := &Message{ConversationID: conversationID, Role: role, Content: content, CreatedAt: r.now()}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Conversation{}).
			Where("id = ?", conversationID).
			Update("updated_at", m.CreatedAt)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Create(m).Error
	})
	if err != nil {
		if stderrors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(err, "append message")
	}
	return m, nil
}

// ListMessages returns the whole log oldest first.
func (r *Repo) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	var msgs []Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").Order("id ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, errors.Wrap(err, "list messages")
	}
	return msgs, nil
}

// ListRecentMessages returns at most limit of the newest messages, oldest first.
func (r *Repo) ListRecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	var desc []Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&desc).Error
	if err != nil {
		return nil, errors.Wrap(err, "list recent messages")
	}
	for i, j := 0, len(desc)-1; i < j; i, j = i+1, j-1 {
		desc[i], desc[j] = desc[j], desc[i]
	}
	return desc, nil
}

// ListConversationsByUser returns the user's conversations, most recently
// active first.
func (r *Repo) ListConversationsByUser(ctx context.Context, userID string, limit int) ([]ConversationSummary, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []ConversationSummary
	err := r.db.WithContext(ctx).
		Model(&Conversation{}).
		Select("conversations.*, (SELECT COUNT(*) FROM chat_messages m WHERE m.conversation_id = conversations.id) AS message_count").
		Where("conversations.user_id = ?", userID).
		Order("conversations.updated_at DESC").
		Limit(limit).
		Scan(&out).Error
	if err != nil {
		return nil, errors.Wrap(err, "list conversations")
	}
	return out, nil
}

// UserStats counts the user's own messages, in total and per agent.
func (r *Repo) UserStats(ctx context.Context, userID string) (*UserStats, error) {
	var rows []struct {
		AgentID string
		N       int64
	}
	err := r.db.WithContext(ctx).
		Table("chat_messages AS m").
		Select("c.agent_id AS agent_id, COUNT(m.id) AS n").
		Joins("JOIN conversations c ON c.id = m.conversation_id").
		Where("c.user_id = ? AND m.role = ?", userID, RoleUser).
		Group("c.agent_id").
		Scan(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "user stats")
	}
	st := &UserStats{AgentInteractions: make(map[string]int64, len(rows))}
	for _, row := range rows {
		st.AgentInteractions[row.AgentID] = row.N
		st.TotalMessages += row.N
	}
	return st, nil
}

// CleanupOlderThan deletes conversations created before cutoff together
// with their messages.
func (r *Repo) CleanupOlderThan(ctx context.Context, cutoff time.Time) (CleanupResult, error) {
	var res CleanupResult
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		old := tx.Model(&Conversation{}).Select("id").Where("created_at < ?", cutoff)
		m := tx.Where("conversation_id IN (?)", old).Delete(&Message{})
		if m.Error != nil {
			return m.Error
		}
		c := tx.Where("created_at < ?", cutoff).Delete(&Conversation{})
		if c.Error != nil {
			return c.Error
		}
		res = CleanupResult{Conversations: c.RowsAffected, Messages: m.RowsAffected}
		return nil
	})
	if err != nil {
		return CleanupResult{}, errors.Wrap(err, "cleanup conversations")
	}
	return res, nil
}
