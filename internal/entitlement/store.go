package entitlement

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Store struct {
	db  *gorm.DB
	now func() time.Time
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Grant is an idempotent upsert on (user_id, agent_id). A repeated grant
// refreshes the payment reference and the grant time.
func (s *Store) Grant(ctx context.Context, userID, agentID string, ref *string) error {
	e := Entitlement{UserID: userID, AgentID: agentID, PaymentRef: ref, GrantedAt: s.now()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "agent_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"payment_ref", "granted_at"}),
	}).Create(&e).Error
	return errors.Wrap(err, "grant entitlement")
}

// Revoke reports whether a row was removed.
func (s *Store) Revoke(ctx context.Context, userID, agentID string) (bool, error) {
	res := s.db.WithContext(ctx).
		Where("user_id = ? AND agent_id = ?", userID, agentID).
		Delete(&Entitlement{})
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "revoke entitlement")
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) Has(ctx context.Context, userID, agentID string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&Entitlement{}).
		Where("user_id = ? AND agent_id = ?", userID, agentID).
		Count(&n).Error
	if err != nil {
		return false, errors.Wrap(err, "lookup entitlement")
	}
	return n > 0, nil
}

func (s *Store) ListByUser(ctx context.Context, userID string) ([]Entitlement, error) {
	var out []Entitlement
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("granted_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, errors.Wrap(err, "list entitlements")
	}
	return out, nil
}

// Toggle grants when absent and revokes when present, returning the new state.
func (s *Store) Toggle(ctx context.Context, userID, agentID string) (bool, error) {
	removed, err := s.Revoke(ctx, userID, agentID)
	if err != nil {
		return false, err
	}
	if removed {
		return false, nil
	}
	if err := s.Grant(ctx, userID, agentID, nil); err != nil {
		return false, err
	}
	return true, nil
}
