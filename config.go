package rbac

import (
	"context"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Mode selects how effective permissions are sourced per check.
type Mode string

const (
	// ModeRealtime recomputes permissions from the RuleStore on every
	// cache-expired check.
	ModeRealtime Mode = "realtime"
	// ModeCached reads permission sets from the SessionCache when present,
	// in the manner of login-time authorization.
	ModeCached Mode = "cached"
)

// Tables names the backing collections for SQL rule stores. The algorithm
// itself never touches these; they exist for store implementations.
type Tables struct {
	Groups      string `json:"groups" yaml:"groups"`
	GroupAccess string `json:"group_access" yaml:"group_access"`
	Rules       string `json:"rules" yaml:"rules"`
	Users       string `json:"users" yaml:"users"`
}

// CacheConfig sizes the resolver's in-process permission cache.
type CacheConfig struct {
	TTLMillis   int64 `json:"ttl_ms" yaml:"ttl_ms"`
	NumCounters int64 `json:"num_counters" yaml:"num_counters"`
	MaxCost     int64 `json:"max_cost" yaml:"max_cost"`
	BufferItems int64 `json:"buffer_items" yaml:"buffer_items"`
}

// Membership is a seed entry linking a user to a group.
type Membership struct {
	UID     int64 `json:"uid" yaml:"uid"`
	GroupID int64 `json:"group_id" yaml:"group_id"`
}

// UserSeed is a seed entry supplying a user's attribute record.
type UserSeed struct {
	ID    int64          `json:"id" yaml:"id"`
	Attrs map[string]any `json:"attrs" yaml:"attrs"`
}

// Config is the checker configuration plus optional bootstrap data.
//
// Enabled defaults to true. Turning it off makes every Check return true
// for any input.
type Config struct {
	Enabled bool        `json:"enabled" yaml:"enabled"`
	Mode    Mode        `json:"mode" yaml:"mode"`
	Tables  Tables      `json:"tables" yaml:"tables"`
	Cache   CacheConfig `json:"cache" yaml:"cache"`

	// bootstrap sections, applied to a Seeder via Apply
	Groups      []Group      `json:"groups,omitempty" yaml:"groups,omitempty"`
	Rules       []Rule       `json:"rules,omitempty" yaml:"rules,omitempty"`
	Memberships []Membership `json:"memberships,omitempty" yaml:"memberships,omitempty"`
	Users       []UserSeed   `json:"users,omitempty" yaml:"users,omitempty"`
}

// DefaultConfig returns the baseline configuration: authorization on,
// realtime evaluation, the original table names, a short-TTL cache.
func DefaultConfig() Config {
	return Config{
		Enabled: true,
		Mode:    ModeRealtime,
		Tables: Tables{
			Groups:      "auth_group",
			GroupAccess: "auth_group_access",
			Rules:       "auth_rule",
			Users:       "user_admin",
		},
		Cache: CacheConfig{
			TTLMillis:   1000,
			NumCounters: 10_000,
			MaxCost:     1 << 20,
			BufferItems: 64,
		},
	}
}

// Validate checks the configuration once, at construction time. Unknown
// values are rejected with a descriptive error rather than silently
// defaulted; zero-valued sizes fall back to the defaults.
func (c *Config) Validate() error {
	switch c.Mode {
	case "":
		c.Mode = ModeRealtime
	case ModeRealtime, ModeCached:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMode, c.Mode)
	}
	def := DefaultConfig()
	if c.Cache.TTLMillis <= 0 {
		c.Cache.TTLMillis = def.Cache.TTLMillis
	}
	if c.Cache.NumCounters <= 0 {
		c.Cache.NumCounters = def.Cache.NumCounters
	}
	if c.Cache.MaxCost <= 0 {
		c.Cache.MaxCost = def.Cache.MaxCost
	}
	if c.Cache.BufferItems <= 0 {
		c.Cache.BufferItems = def.Cache.BufferItems
	}
	if c.Tables.Groups == "" {
		c.Tables.Groups = def.Tables.Groups
	}
	if c.Tables.GroupAccess == "" {
		c.Tables.GroupAccess = def.Tables.GroupAccess
	}
	if c.Tables.Rules == "" {
		c.Tables.Rules = def.Tables.Rules
	}
	if c.Tables.Users == "" {
		c.Tables.Users = def.Tables.Users
	}
	for _, r := range c.Rules {
		if _, err := ParseCondition(r.Condition); err != nil {
			return fmt.Errorf("rbac: rule %d: %w", r.ID, err)
		}
	}
	return nil
}

// Apply pushes the bootstrap sections into a Seeder.
func (c *Config) Apply(ctx context.Context, s Seeder) error {
	for i := range c.Groups {
		g := c.Groups[i]
		if err := s.CreateGroup(ctx, &g); err != nil {
			return fmt.Errorf("rbac: seed group %d: %w", g.ID, err)
		}
	}
	for i := range c.Rules {
		r := c.Rules[i]
		if err := s.CreateRule(ctx, &r); err != nil {
			return fmt.Errorf("rbac: seed rule %d: %w", r.ID, err)
		}
	}
	for _, m := range c.Memberships {
		if err := s.AssignGroup(ctx, m.UID, m.GroupID); err != nil {
			return fmt.Errorf("rbac: seed membership %d->%d: %w", m.UID, m.GroupID, err)
		}
	}
	for _, u := range c.Users {
		if err := s.PutUser(ctx, u.ID, u.Attrs); err != nil {
			return fmt.Errorf("rbac: seed user %d: %w", u.ID, err)
		}
	}
	return nil
}

// ConfigLoader loads configuration from the supported formats.
type ConfigLoader struct{}

func NewConfigLoader() *ConfigLoader {
	return &ConfigLoader{}
}

// LoadYAML unmarshals YAML over the defaults, so omitted keys keep their
// default values (in particular Enabled stays true unless set to false).
func (l *ConfigLoader) LoadYAML(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("rbac: parse yaml config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadJSON unmarshals JSON over the defaults.
func (l *ConfigLoader) LoadJSON(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("rbac: parse json config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ToYAML exports the configuration.
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// ToJSON exports the configuration.
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}
