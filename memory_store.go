package rbac

import (
	"context"
	"sync"
)

// MemoryRuleStore is an in-memory RuleStore and Seeder for tests and demos.
type MemoryRuleStore struct {
	mu      sync.RWMutex
	groups  map[int64]*Group
	rules   map[int64]*Rule
	members map[int64][]int64 // uid -> group ids
	users   map[int64]map[string]any
}

func NewMemoryRuleStore() *MemoryRuleStore {
	return &MemoryRuleStore{
		groups:  make(map[int64]*Group),
		rules:   make(map[int64]*Rule),
		members: make(map[int64][]int64),
		users:   make(map[int64]map[string]any),
	}
}

func (s *MemoryRuleStore) CreateGroup(ctx context.Context, g *Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cop := *g
	cop.Rules = append([]int64(nil), g.Rules...)
	s.groups[g.ID] = &cop
	return nil
}

func (s *MemoryRuleStore) CreateRule(ctx context.Context, r *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cop := *r
	s.rules[r.ID] = &cop
	return nil
}

func (s *MemoryRuleStore) AssignGroup(ctx context.Context, uid, groupID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.members[uid] {
		if id == groupID {
			return nil
		}
	}
	s.members[uid] = append(s.members[uid], groupID)
	return nil
}

func (s *MemoryRuleStore) RevokeGroup(ctx context.Context, uid, groupID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.members[uid]
	for i, id := range ids {
		if id == groupID {
			s.members[uid] = append(ids[:i], ids[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *MemoryRuleStore) PutUser(ctx context.Context, uid int64, attrs map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cop := make(map[string]any, len(attrs))
	for k, v := range attrs {
		cop[k] = v
	}
	s.users[uid] = cop
	return nil
}

func (s *MemoryRuleStore) GetActiveGroups(ctx context.Context, uid int64) ([]Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Group, 0)
	for _, gid := range s.members[uid] {
		g, ok := s.groups[gid]
		if !ok || !g.Enabled {
			continue
		}
		cop := *g
		cop.Rules = append([]int64(nil), g.Rules...)
		out = append(out, cop)
	}
	return out, nil
}

func (s *MemoryRuleStore) GetActiveRules(ctx context.Context, ids []int64) ([]Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Rule, 0, len(ids))
	for _, id := range ids {
		r, ok := s.rules[id]
		if !ok || !r.Enabled {
			continue
		}
		out = append(out, *r)
	}
	return out, nil
}

func (s *MemoryRuleStore) GetUserAttributes(ctx context.Context, uid int64) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attrs, ok := s.users[uid]
	if !ok {
		return map[string]any{}, nil
	}
	cop := make(map[string]any, len(attrs))
	for k, v := range attrs {
		cop[k] = v
	}
	return cop, nil
}

// MemorySessionCache is an in-memory SessionCache for tests and
// single-process deployments.
type MemorySessionCache struct {
	mu    sync.RWMutex
	store map[string][]Permission
}

func NewMemorySessionCache() *MemorySessionCache {
	return &MemorySessionCache{store: make(map[string][]Permission)}
}

func (c *MemorySessionCache) Get(ctx context.Context, key string) ([]Permission, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	perms, ok := c.store[key]
	if !ok {
		return nil, false, nil
	}
	return append([]Permission(nil), perms...), true, nil
}

func (c *MemorySessionCache) Set(ctx context.Context, key string, perms []Permission) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[key] = append([]Permission(nil), perms...)
	return nil
}

func (c *MemorySessionCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, key)
	return nil
}

// Len reports the number of cached permission sets.
func (c *MemorySessionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

var (
	_ RuleStore    = (*MemoryRuleStore)(nil)
	_ Seeder       = (*MemoryRuleStore)(nil)
	_ SessionCache = (*MemorySessionCache)(nil)
)
