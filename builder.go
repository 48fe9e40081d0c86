package rbac

// Builders provide a fluent API for assembling configurations in code,
// mostly for tests and embedded deployments that do not load YAML.

// GroupBuilder builds a Group.
type GroupBuilder struct {
	g Group
}

func NewGroupBuilder(id int64) *GroupBuilder {
	return &GroupBuilder{g: Group{ID: id, Enabled: true}}
}

func (b *GroupBuilder) Name(n string) *GroupBuilder { b.g.Name = n; return b }
func (b *GroupBuilder) Rules(ids ...int64) *GroupBuilder {
	b.g.Rules = append(b.g.Rules, ids...)
	return b
}
func (b *GroupBuilder) Enabled(on bool) *GroupBuilder { b.g.Enabled = on; return b }
func (b *GroupBuilder) Build() Group                  { return b.g }

// RuleBuilder builds a Rule.
type RuleBuilder struct {
	r Rule
}

func NewRuleBuilder(id int64, route string) *RuleBuilder {
	return &RuleBuilder{r: Rule{ID: id, Route: route, Enabled: true}}
}

func (b *RuleBuilder) Method(m Method) *RuleBuilder      { b.r.Method = m; return b }
func (b *RuleBuilder) Condition(expr string) *RuleBuilder { b.r.Condition = expr; return b }
func (b *RuleBuilder) Enabled(on bool) *RuleBuilder      { b.r.Enabled = on; return b }
func (b *RuleBuilder) Build() Rule                       { return b.r }

// ConfigBuilder builds a Config with seed data.
type ConfigBuilder struct {
	cfg Config
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{cfg: DefaultConfig()}
}

func (b *ConfigBuilder) Enabled(on bool) *ConfigBuilder { b.cfg.Enabled = on; return b }
func (b *ConfigBuilder) Mode(m Mode) *ConfigBuilder     { b.cfg.Mode = m; return b }

func (b *ConfigBuilder) CacheTTLMillis(ms int64) *ConfigBuilder {
	b.cfg.Cache.TTLMillis = ms
	return b
}

func (b *ConfigBuilder) Tables(t Tables) *ConfigBuilder { b.cfg.Tables = t; return b }

func (b *ConfigBuilder) AddGroup(g Group) *ConfigBuilder {
	b.cfg.Groups = append(b.cfg.Groups, g)
	return b
}

func (b *ConfigBuilder) AddRule(r Rule) *ConfigBuilder {
	b.cfg.Rules = append(b.cfg.Rules, r)
	return b
}

func (b *ConfigBuilder) AddMembership(uid, groupID int64) *ConfigBuilder {
	b.cfg.Memberships = append(b.cfg.Memberships, Membership{UID: uid, GroupID: groupID})
	return b
}

func (b *ConfigBuilder) AddUser(id int64, attrs map[string]any) *ConfigBuilder {
	b.cfg.Users = append(b.cfg.Users, UserSeed{ID: id, Attrs: attrs})
	return b
}

// Build validates the assembled configuration.
func (b *ConfigBuilder) Build() (Config, error) {
	cfg := b.cfg
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
