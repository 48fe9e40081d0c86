package rbac

import (
	"context"
	"fmt"
	"strings"

	"github.com/zcloop/rbac/logger"
)

// ============================================================================
// DOMAIN OBJECTS
// ============================================================================

// Method is the HTTP method a rule is constrained to. The zero value
// (MethodAny) matches every request method.
type Method string

const (
	MethodAny    Method = ""
	MethodGet    Method = "GET"
	MethodPost   Method = "POST"
	MethodPut    Method = "PUT"
	MethodDelete Method = "DELETE"
)

// ParseMethod normalizes a method string. Empty and "any" map to MethodAny.
func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToUpper(strings.TrimSpace(s))); m {
	case MethodAny, Method("ANY"), Method("*"):
		return MethodAny, nil
	case MethodGet, MethodPost, MethodPut, MethodDelete:
		return m, nil
	default:
		return MethodAny, fmt.Errorf("rbac: unknown method %q", s)
	}
}

// Group is a named collection of rule IDs. Users gain permissions through
// group membership; only enabled groups count.
type Group struct {
	ID      int64   `json:"id" yaml:"id"`
	Name    string  `json:"name" yaml:"name"`
	Enabled bool    `json:"enabled" yaml:"enabled"`
	Rules   []int64 `json:"rules" yaml:"rules"`
}

// Rule is a stored permission record: a route pattern, an optional method
// constraint and an optional condition expression evaluated against the
// user's attribute record.
type Rule struct {
	ID        int64  `json:"id" yaml:"id"`
	Route     string `json:"route" yaml:"route"`
	Method    Method `json:"method,omitempty" yaml:"method,omitempty"`
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`
	Enabled   bool   `json:"enabled" yaml:"enabled"`
}

// Permission is one entry of a user's effective permission set: a lowercased
// route pattern paired with the method of the rule it came from.
type Permission struct {
	Route  string `json:"route"`
	Method Method `json:"method"`
}

// ============================================================================
// STORAGE INTERFACES
// ============================================================================

// RuleStore supplies membership and rule data. Implementations must return
// only enabled groups and rules.
type RuleStore interface {
	// GetActiveGroups returns the enabled groups the user belongs to.
	GetActiveGroups(ctx context.Context, uid int64) ([]Group, error)
	// GetActiveRules returns the enabled rules whose ID is in ids.
	GetActiveRules(ctx context.Context, ids []int64) ([]Rule, error)
	// GetUserAttributes returns the user's attribute record. It is invoked
	// lazily, only when a rule carries a condition expression.
	GetUserAttributes(ctx context.Context, uid int64) (map[string]any, error)
}

// SessionCache persists effective permission sets across requests. It is
// consulted only in cached evaluation mode.
type SessionCache interface {
	Get(ctx context.Context, key string) ([]Permission, bool, error)
	Set(ctx context.Context, key string, perms []Permission) error
	Delete(ctx context.Context, key string) error
}

// Seeder accepts bootstrap data, typically from a Config fixture.
type Seeder interface {
	CreateGroup(ctx context.Context, g *Group) error
	CreateRule(ctx context.Context, r *Rule) error
	AssignGroup(ctx context.Context, uid, groupID int64) error
	PutUser(ctx context.Context, uid int64, attrs map[string]any) error
}

// ============================================================================
// CHECKER
// ============================================================================

// Relation decides how matches across multiple requested routes combine.
type Relation string

const (
	// RelationAny passes when at least one requested route matches.
	RelationAny Relation = "any"
	// RelationAll passes only when every requested route matches.
	RelationAll Relation = "all"
)

// Request describes one authorization check.
type Request struct {
	// Routes are the candidate route strings. Entries may themselves be
	// comma separated lists; see SplitRoutes.
	Routes []string
	// UID identifies the user being checked.
	UID int64
	// Params are the request parameters matched against rule constraints.
	Params map[string]string
	// Method is the actual request method, compared against rule methods
	// when MatchMethod is set.
	Method      Method
	MatchMethod bool
	// Types are permission type tags scoping the effective permission set.
	// Empty defaults to [1].
	Types []int
	// Relation combines per-route results. Empty defaults to RelationAny.
	Relation Relation
}

// Checker is the authorization decision engine. All collaborators are
// injected at construction; a Checker is safe for concurrent use.
type Checker struct {
	store        RuleStore
	resolver     *PermissionResolver
	sessionCache SessionCache
	cfg          Config
	logger       logger.Logger
}

// Option configures a Checker.
type Option func(*Checker) error

// WithConfig replaces the default configuration. The config is validated
// during New.
func WithConfig(cfg Config) Option {
	return func(c *Checker) error {
		c.cfg = cfg
		return nil
	}
}

// WithLogger installs a structured logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Checker) error {
		if l == nil {
			return fmt.Errorf("rbac: nil logger")
		}
		c.logger = l
		return nil
	}
}

// WithSessionCache installs the cross-request permission cache used in
// cached evaluation mode.
func WithSessionCache(sc SessionCache) Option {
	return func(c *Checker) error {
		c.sessionCache = sc
		return nil
	}
}

// New builds a Checker around the given RuleStore.
func New(store RuleStore, opts ...Option) (*Checker, error) {
	if store == nil {
		return nil, fmt.Errorf("rbac: nil rule store")
	}
	c := &Checker{
		store:  store,
		cfg:    DefaultConfig(),
		logger: logger.NewNullLogger(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if err := c.cfg.Validate(); err != nil {
		return nil, err
	}
	resolver, err := newPermissionResolver(c.store, c.cfg, c.sessionCache, c.logger)
	if err != nil {
		return nil, err
	}
	c.resolver = resolver
	return c, nil
}

// Close releases the resolver's in-process cache.
func (c *Checker) Close() {
	c.resolver.Close()
}

// Check decides whether the user may access the requested route(s).
//
// When authorization is disabled in the configuration, Check returns true
// for every input, including unknown users. Leave Config.Enabled on
// anywhere access control matters.
//
// Store failures are returned as *StoreError and never silently mapped to a
// deny or an allow.
func (c *Checker) Check(ctx context.Context, req *Request) (bool, error) {
	if !c.cfg.Enabled {
		return true, nil
	}

	rel := req.Relation
	if rel == "" {
		rel = RelationAny
	}
	if rel != RelationAny && rel != RelationAll {
		return false, fmt.Errorf("%w: %q", ErrInvalidRelation, req.Relation)
	}

	routes := normalizeRoutes(req.Routes)
	params := normalizeParams(req.Params)

	perms, err := c.resolver.Resolve(ctx, req.UID, req.Types)
	if err != nil {
		return false, err
	}

	matched := make(map[string]struct{}, len(routes))
	for _, perm := range perms {
		for _, route := range routes {
			if _, done := matched[route]; done {
				continue
			}
			if Matches(perm, route, params, req.MatchMethod, req.Method) {
				matched[route] = struct{}{}
			}
		}
		if len(matched) == len(routes) {
			break
		}
	}

	if rel == RelationAny {
		return len(matched) > 0, nil
	}
	return len(matched) == len(routes), nil
}

// ResolveGroups returns the enabled groups the user belongs to. Exposed as
// an inspectable sub-result for debugging and tests.
func (c *Checker) ResolveGroups(ctx context.Context, uid int64) ([]Group, error) {
	groups, err := c.store.GetActiveGroups(ctx, uid)
	if err != nil {
		return nil, &StoreError{Op: "groups", Err: err}
	}
	return groups, nil
}

// ResolveEffectivePermissions returns the user's deduplicated, condition
// filtered permission set for the given type tags.
func (c *Checker) ResolveEffectivePermissions(ctx context.Context, uid int64, types ...int) ([]Permission, error) {
	return c.resolver.Resolve(ctx, uid, types)
}

// InvalidatePermissions drops cached permission sets for the user, e.g.
// after a role change. It clears both the in-process cache and, in cached
// mode, the session cache entry.
func (c *Checker) InvalidatePermissions(ctx context.Context, uid int64, types ...int) error {
	return c.resolver.Invalidate(ctx, uid, types)
}

// SplitRoutes splits a comma separated route list into individual routes.
func SplitRoutes(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// normalizeRoutes lowercases, splits embedded comma lists and deduplicates
// while preserving first-seen order. Duplicate requested routes must not
// make an ALL check fail, so set semantics apply before combination.
func normalizeRoutes(routes []string) []string {
	seen := make(map[string]struct{}, len(routes))
	out := make([]string, 0, len(routes))
	for _, r := range routes {
		for _, part := range SplitRoutes(r) {
			part = strings.ToLower(part)
			if _, ok := seen[part]; ok {
				continue
			}
			seen[part] = struct{}{}
			out = append(out, part)
		}
	}
	return out
}

// normalizeParams lowercases parameter keys and values so constraint
// matching is case-insensitive, like route matching.
func normalizeParams(params map[string]string) map[string]string {
	if len(params) == 0 {
		return nil
	}
	out := make(map[string]string, len(params))
	for k, v := range params {
		out[strings.ToLower(k)] = strings.ToLower(v)
	}
	return out
}
