package rbac

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/zcloop/rbac/logger"
)

// PermissionResolver expands a user's group memberships into the effective
// permission set: the deduplicated, condition-filtered list of (route,
// method) pairs applicable to that user.
//
// Results are memoized in-process in a ristretto cache keyed by (uid, type
// tags) for the configured TTL. In cached evaluation mode the optional
// SessionCache is consulted first and written through, so permission sets
// survive across processes until explicitly invalidated.
type PermissionResolver struct {
	store   RuleStore
	eval    *ConditionEvaluator
	cache   *ristretto.Cache
	session SessionCache
	mode    Mode
	ttl     time.Duration
	logger  logger.Logger
}

func newPermissionResolver(store RuleStore, cfg Config, session SessionCache, log logger.Logger) (*PermissionResolver, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.Cache.NumCounters,
		MaxCost:     cfg.Cache.MaxCost,
		BufferItems: cfg.Cache.BufferItems,
	})
	if err != nil {
		return nil, fmt.Errorf("rbac: permission cache: %w", err)
	}
	return &PermissionResolver{
		store:   store,
		eval:    NewConditionEvaluator(),
		cache:   cache,
		session: session,
		mode:    cfg.Mode,
		ttl:     time.Duration(cfg.Cache.TTLMillis) * time.Millisecond,
		logger:  log,
	}, nil
}

// Close releases the in-process cache.
func (r *PermissionResolver) Close() {
	r.cache.Close()
}

// Resolve returns the user's effective permission set for the given type
// tags. Identical (uid, types) keys return the cached result within the TTL
// window.
func (r *PermissionResolver) Resolve(ctx context.Context, uid int64, types []int) ([]Permission, error) {
	key := permKey(uid, types)

	if v, ok := r.cache.Get(key); ok {
		return v.([]Permission), nil
	}

	if r.mode == ModeCached && r.session != nil {
		perms, ok, err := r.session.Get(ctx, key)
		if err != nil {
			// a broken session cache degrades to recomputation, it must
			// not fail the check open or closed
			r.logger.Error("session cache read failed", "key", key, "error", err.Error())
		} else if ok {
			r.memoize(key, perms)
			return perms, nil
		}
	}

	perms, err := r.resolve(ctx, uid)
	if err != nil {
		return nil, err
	}

	r.memoize(key, perms)
	if r.mode == ModeCached && r.session != nil {
		if err := r.session.Set(ctx, key, perms); err != nil {
			r.logger.Error("session cache write failed", "key", key, "error", err.Error())
		}
	}
	return perms, nil
}

// Invalidate drops the cached permission set for (uid, types) from the
// in-process cache and, when configured, the session cache.
func (r *PermissionResolver) Invalidate(ctx context.Context, uid int64, types []int) error {
	key := permKey(uid, types)
	r.cache.Del(key)
	r.cache.Wait()
	if r.session != nil {
		if err := r.session.Delete(ctx, key); err != nil {
			return fmt.Errorf("rbac: invalidate %s: %w", key, err)
		}
	}
	return nil
}

func (r *PermissionResolver) memoize(key string, perms []Permission) {
	r.cache.SetWithTTL(key, perms, 1, r.ttl)
	// ristretto applies writes asynchronously; wait so the very next
	// Resolve for the same key hits
	r.cache.Wait()
}

func (r *PermissionResolver) resolve(ctx context.Context, uid int64) ([]Permission, error) {
	groups, err := r.store.GetActiveGroups(ctx, uid)
	if err != nil {
		return nil, &StoreError{Op: "groups", Err: err}
	}
	if len(groups) == 0 {
		return []Permission{}, nil
	}

	seen := make(map[int64]struct{})
	ids := make([]int64, 0)
	for _, g := range groups {
		for _, id := range g.Rules {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return []Permission{}, nil
	}

	rules, err := r.store.GetActiveRules(ctx, ids)
	if err != nil {
		return nil, &StoreError{Op: "rules", Err: err}
	}

	var attrs map[string]any
	attrsLoaded := false

	perms := make([]Permission, 0, len(rules))
	byRoute := make(map[string]struct{}, len(rules))
	for _, rule := range rules {
		if rule.Condition != "" {
			if !attrsLoaded {
				attrs, err = r.store.GetUserAttributes(ctx, uid)
				if err != nil {
					return nil, &StoreError{Op: "user", Err: err}
				}
				attrsLoaded = true
			}
			ok, err := r.eval.Evaluate(rule.Condition, attrs)
			if err != nil {
				// a failing or malformed condition is condition=false,
				// never fatal
				r.logger.Debug("condition evaluation failed",
					"rule", int(rule.ID), "condition", rule.Condition, "error", err.Error())
				continue
			}
			if !ok {
				continue
			}
		}
		route := strings.ToLower(rule.Route)
		if _, dup := byRoute[route]; dup {
			continue
		}
		byRoute[route] = struct{}{}
		perms = append(perms, Permission{Route: route, Method: rule.Method})
	}
	return perms, nil
}

// permKey builds the memoization key. Type tags are sorted and deduplicated
// so that any ordering of the same tag set yields the same key. Empty types
// default to tag 1.
func permKey(uid int64, types []int) string {
	if len(types) == 0 {
		types = []int{1}
	}
	tags := append([]int(nil), types...)
	sort.Ints(tags)
	var b strings.Builder
	b.WriteString("authlist:")
	b.WriteString(strconv.FormatInt(uid, 10))
	b.WriteByte(':')
	for i, t := range tags {
		if i > 0 && tags[i-1] == t {
			continue
		}
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(t))
	}
	return b.String()
}
