package agents

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	ErrNotFound     = errors.New("agent not found")
	ErrExists       = errors.New("agent already exists")
	ErrInvalidAgent = errors.New("invalid agent")
)

// Registry is the single owner of the agent catalog. Reads return copies,
// so callers never share mutable state with the table.
//
// The free set is taken from the seed and never changes afterwards.
// Agents created later must keep the tier their id was seeded with, and
// ids outside the seed are always paid.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]Agent
	free   map[string]struct{}
	sealed bool
}

func NewRegistry(seed []Agent) (*Registry, error) {
	r := &Registry{
		agents: make(map[string]Agent, len(seed)),
		free:   make(map[string]struct{}),
	}
	for _, a := range seed {
		if err := r.Create(a); err != nil {
			return nil, err
		}
	}
	r.mu.Lock()
	for id, a := range r.agents {
		if a.Tier == TierFree {
			r.free[id] = struct{}{}
		}
	}
	r.sealed = true
	r.mu.Unlock()
	return r, nil
}

func (r *Registry) Get(id string) (Agent, bool) {
	r.mu.RLock()
	a, ok := r.agents[id]
	r.mu.RUnlock()
	if !ok {
		return Agent{}, false
	}
	return a.clone(), true
}

// IsFree never touches storage and only answers for registered agents in
// the seeded free set.
func (r *Registry) IsFree(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.agents[id]; !ok {
		return false
	}
	_, free := r.free[id]
	return free
}

func (r *Registry) List() []Agent {
	r.mu.RLock()
	out := make([]Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a.clone())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) ListByTier(t Tier) []Agent {
	var out []Agent
	for _, a := range r.List() {
		if a.Tier == t {
			out = append(out, a)
		}
	}
	return out
}

func (r *Registry) FreeIDs() []string {
	var ids []string
	for _, a := range r.ListByTier(TierFree) {
		ids = append(ids, a.ID)
	}
	return ids
}

// Create registers a new agent. An empty id is derived from the name and an
// empty tier defaults to the one the free set implies.
func (r *Registry) Create(a Agent) error {
	if a.ID == "" {
		a.ID = Slug(a.Name)
	}
	if a.Persona == "" {
		a.Persona = DefaultPersona
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		_, free := r.free[a.ID]
		if a.Tier == "" {
			a.Tier = TierPaid
			if free {
				a.Tier = TierFree
			}
		}
		if free != (a.Tier == TierFree) {
			return fmt.Errorf("%w: free agent set is fixed, %s cannot be %s", ErrInvalidAgent, a.ID, a.Tier)
		}
	} else if a.Tier == "" {
		a.Tier = TierFree
	}
	if err := validate(a); err != nil {
		return err
	}
	if _, ok := r.agents[a.ID]; ok {
		return fmt.Errorf("%w: %s", ErrExists, a.ID)
	}
	r.agents[a.ID] = a.clone()
	return nil
}

func (r *Registry) Update(id string, p Patch) (Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok {
		return Agent{}, ErrNotFound
	}
	p.apply(&a)
	if err := validate(a); err != nil {
		return Agent{}, err
	}
	r.agents[id] = a
	return a.clone(), nil
}

// ToggleActive flips the active flag and returns the new value.
func (r *Registry) ToggleActive(id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok {
		return false, ErrNotFound
	}
	a.Active = !a.Active
	r.agents[id] = a
	return a.Active, nil
}

func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[id]; !ok {
		return ErrNotFound
	}
	delete(r.agents, id)
	return nil
}

func validate(a Agent) error {
	if strings.TrimSpace(a.ID) == "" || strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("%w: id and name required", ErrInvalidAgent)
	}
	switch a.Tier {
	case TierFree:
	case TierPaid:
		if a.PriceCents <= 0 {
			return fmt.Errorf("%w: paid agent %s needs a positive price", ErrInvalidAgent, a.ID)
		}
	default:
		return fmt.Errorf("%w: unknown tier %q", ErrInvalidAgent, a.Tier)
	}
	return nil
}

// Slug turns "Travel Planner" into "travel-planner".
func Slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
