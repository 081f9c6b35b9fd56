package activity

import "time"

const (
	ActionMessageSent      = "message_sent"
	ActionMessageReceived  = "message_received"
	ActionAccessDenied     = "access_denied"
	ActionPaymentAttempt   = "payment_attempt"
	ActionPaymentSuccess   = "payment_success"
	ActionPaymentFailed    = "payment_failed"
	ActionUserRegistration = "user_registration"
	ActionUserLogin        = "user_login"
)

type Event struct {
	ID        uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    string         `gorm:"type:varchar(36);index;not null" json:"user_id"`
	Action    string         `gorm:"type:varchar(64);index;not null" json:"action"`
	Metadata  map[string]any `gorm:"serializer:json;type:text" json:"metadata,omitempty"`
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
}

func (Event) TableName() string { return "activity_logs" }
