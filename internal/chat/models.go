package chat

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	DefaultTitle = "New Conversation"
)

type Conversation struct {
	ID        string    `gorm:"type:varchar(26);primaryKey" json:"id"` // ULID
	UserID    string    `gorm:"type:varchar(36);index;not null" json:"user_id"`
	AgentID   string    `gorm:"type:varchar(64);index;not null" json:"agent_id"`
	Title     string    `gorm:"type:varchar(255);not null" json:"title"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `gorm:"index" json:"updated_at"`
}

func (Conversation) TableName() string { return "conversations" }

type Message struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID string    `gorm:"type:varchar(26);not null;index:idx_chat_msg_conv_created,priority:1" json:"conversation_id"`
	Role           string    `gorm:"type:varchar(16);not null" json:"role"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	CreatedAt      time.Time `gorm:"index:idx_chat_msg_conv_created,priority:2" json:"created_at"`
}

func (Message) TableName() string { return "chat_messages" }

// ConversationSummary is a conversation row plus its message count.
type ConversationSummary struct {
	Conversation `gorm:"embedded"`
	MessageCount int64 `json:"message_count"`
}

type UserStats struct {
	TotalMessages     int64            `json:"total_messages"`
	AgentInteractions map[string]int64 `json:"agent_interactions"`
}

type CleanupResult struct {
	Conversations int64 `json:"deleted_conversations"`
	Messages      int64 `json:"deleted_messages"`
}
