package rbac

import (
	"context"
	"sync/atomic"
	"testing"
)

// countingStore wraps a RuleStore and counts calls per method.
type countingStore struct {
	inner  RuleStore
	groups atomic.Int64
	rules  atomic.Int64
	users  atomic.Int64
}

func (s *countingStore) GetActiveGroups(ctx context.Context, uid int64) ([]Group, error) {
	s.groups.Add(1)
	return s.inner.GetActiveGroups(ctx, uid)
}

func (s *countingStore) GetActiveRules(ctx context.Context, ids []int64) ([]Rule, error) {
	s.rules.Add(1)
	return s.inner.GetActiveRules(ctx, ids)
}

func (s *countingStore) GetUserAttributes(ctx context.Context, uid int64) (map[string]any, error) {
	s.users.Add(1)
	return s.inner.GetUserAttributes(ctx, uid)
}

func TestResolverMemoizesPerUser(t *testing.T) {
	ctx := context.Background()
	counting := &countingStore{inner: seedBasicStore(t)}
	c := newTestChecker(t, counting)

	for i := 0; i < 3; i++ {
		if _, err := c.ResolveEffectivePermissions(ctx, 4); err != nil {
			t.Fatalf("resolve %d: %v", i, err)
		}
	}
	if n := counting.groups.Load(); n != 1 {
		t.Fatalf("expected 1 group fetch, got %d", n)
	}
	if n := counting.rules.Load(); n != 1 {
		t.Fatalf("expected 1 rule fetch, got %d", n)
	}

	// a different type tag is a different cache entry
	if _, err := c.ResolveEffectivePermissions(ctx, 4, 2); err != nil {
		t.Fatalf("resolve typed: %v", err)
	}
	if n := counting.groups.Load(); n != 2 {
		t.Fatalf("expected second group fetch for new type tag, got %d", n)
	}
}

func TestResolverSkipsRuleFetchWithoutGroups(t *testing.T) {
	ctx := context.Background()
	counting := &countingStore{inner: seedBasicStore(t)}
	c := newTestChecker(t, counting)

	perms, err := c.ResolveEffectivePermissions(ctx, 777)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(perms) != 0 {
		t.Fatalf("expected empty set, got %v", perms)
	}
	if n := counting.rules.Load(); n != 0 {
		t.Fatalf("expected no rule fetch for user without memberships, got %d", n)
	}
}

func TestResolverFetchesAttributesLazily(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRuleStore()
	if err := store.CreateGroup(ctx, &Group{ID: 1, Enabled: true, Rules: []int64{1}}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.CreateRule(ctx, &Rule{ID: 1, Route: "plain", Enabled: true}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.AssignGroup(ctx, 1, 1); err != nil {
		t.Fatalf("seed: %v", err)
	}
	counting := &countingStore{inner: store}
	c := newTestChecker(t, counting)

	if _, err := c.ResolveEffectivePermissions(ctx, 1); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if n := counting.users.Load(); n != 0 {
		t.Fatalf("no rule has a condition, expected no attribute fetch, got %d", n)
	}
}

func TestResolverKeepsFirstRulePerRoute(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRuleStore()
	if err := store.CreateGroup(ctx, &Group{ID: 1, Enabled: true, Rules: []int64{1, 2}}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	// same route, conflicting methods: first wins
	if err := store.CreateRule(ctx, &Rule{ID: 1, Route: "items", Method: MethodGet, Enabled: true}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.CreateRule(ctx, &Rule{ID: 2, Route: "Items", Method: MethodDelete, Enabled: true}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.AssignGroup(ctx, 1, 1); err != nil {
		t.Fatalf("seed: %v", err)
	}
	c := newTestChecker(t, store)

	perms, err := c.ResolveEffectivePermissions(ctx, 1)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(perms) != 1 {
		t.Fatalf("expected one deduplicated permission, got %v", perms)
	}
	if perms[0].Route != "items" || perms[0].Method != MethodGet {
		t.Fatalf("expected first rule to win, got %v", perms[0])
	}
}

func TestPermKey(t *testing.T) {
	if got := permKey(7, nil); got != "authlist:7:1" {
		t.Fatalf("default key: %q", got)
	}
	if got := permKey(7, []int{1}); got != "authlist:7:1" {
		t.Fatalf("explicit default key: %q", got)
	}
	// order and duplicates must not change the key
	a := permKey(7, []int{2, 1, 2})
	b := permKey(7, []int{1, 2})
	if a != b {
		t.Fatalf("keys differ: %q vs %q", a, b)
	}
	if a == permKey(8, []int{1, 2}) {
		t.Fatalf("keys must include the uid")
	}
}
