package entitlement

import "time"

// Entitlement is a durable grant of one paid agent to one user.
// Free agents are never materialized here.
type Entitlement struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     string    `gorm:"type:varchar(36);not null;uniqueIndex:uniq_user_agent,priority:1" json:"user_id"`
	AgentID    string    `gorm:"type:varchar(64);not null;uniqueIndex:uniq_user_agent,priority:2;index" json:"agent_id"`
	PaymentRef *string   `gorm:"type:varchar(128)" json:"payment_ref,omitempty"`
	GrantedAt  time.Time `gorm:"not null" json:"granted_at"`
}

func (Entitlement) TableName() string { return "entitlements" }
