package entitlement

import "context"

// FreeSet reports whether an agent is free. agents.Registry satisfies it.
type FreeSet interface {
	IsFree(agentID string) bool
}

type Service struct {
	store *Store
	free  FreeSet
}

func NewService(store *Store, free FreeSet) *Service {
	return &Service{store: store, free: free}
}

// IsEntitled answers free agents from memory and only consults the store
// for paid ones.
func (s *Service) IsEntitled(ctx context.Context, userID, agentID string) (bool, error) {
	if s.free.IsFree(agentID) {
		return true, nil
	}
	return s.store.Has(ctx, userID, agentID)
}

func (s *Service) Grant(ctx context.Context, userID, agentID string, ref *string) error {
	return s.store.Grant(ctx, userID, agentID, ref)
}

func (s *Service) Revoke(ctx context.Context, userID, agentID string) (bool, error) {
	return s.store.Revoke(ctx, userID, agentID)
}

func (s *Service) Toggle(ctx context.Context, userID, agentID string) (bool, error) {
	return s.store.Toggle(ctx, userID, agentID)
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]Entitlement, error) {
	return s.store.ListByUser(ctx, userID)
}

// PaidAgentIDs lists the paid agents a user holds.
func (s *Service) PaidAgentIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.AgentID)
	}
	return ids, nil
}
