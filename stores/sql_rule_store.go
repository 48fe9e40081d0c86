// Package stores provides RuleStore and SessionCache implementations backed
// by SQL (squealx) and Redis.
package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/oarkflow/squealx"

	"github.com/zcloop/rbac"
)

// SQLRuleStore reads groups, memberships, rules and user attributes from a
// SQL database via squealx. Table names come from the configuration; they
// are operator-controlled identifiers, not request input.
type SQLRuleStore struct {
	db     *squealx.DB
	tables rbac.Tables
}

func NewSQLRuleStore(db *squealx.DB, tables rbac.Tables) *SQLRuleStore {
	def := rbac.DefaultConfig().Tables
	if tables.Groups == "" {
		tables.Groups = def.Groups
	}
	if tables.GroupAccess == "" {
		tables.GroupAccess = def.GroupAccess
	}
	if tables.Rules == "" {
		tables.Rules = def.Rules
	}
	if tables.Users == "" {
		tables.Users = def.Users
	}
	return &SQLRuleStore{db: db, tables: tables}
}

func (s *SQLRuleStore) GetActiveGroups(ctx context.Context, uid int64) ([]rbac.Group, error) {
	q := fmt.Sprintf(
		`SELECT g.id, g.name, g.rules FROM %s a JOIN %s g ON a.group_id = g.id WHERE a.uid = :uid AND g.status = 1`,
		s.tables.GroupAccess, s.tables.Groups)
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"uid": uid})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]rbac.Group, 0)
	for r.Next() {
		var id int64
		var name, rules string
		if err := r.Scan(&id, &name, &rules); err != nil {
			return nil, err
		}
		out = append(out, rbac.Group{ID: id, Name: name, Enabled: true, Rules: splitRuleIDs(rules)})
	}
	return out, r.Err()
}

func (s *SQLRuleStore) GetActiveRules(ctx context.Context, ids []int64) ([]rbac.Rule, error) {
	if len(ids) == 0 {
		return []rbac.Rule{}, nil
	}
	placeholders, args := namedIn("id", ids)
	q := fmt.Sprintf(
		`SELECT id, route, method, condition FROM %s WHERE status = 1 AND id IN (%s)`,
		s.tables.Rules, placeholders)
	r, err := s.db.NamedQueryContext(ctx, q, args)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]rbac.Rule, 0, len(ids))
	for r.Next() {
		var id int64
		var route, method, condition string
		if err := r.Scan(&id, &route, &method, &condition); err != nil {
			return nil, err
		}
		m, err := rbac.ParseMethod(method)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", id, err)
		}
		out = append(out, rbac.Rule{ID: id, Route: route, Method: m, Condition: condition, Enabled: true})
	}
	return out, r.Err()
}

// GetUserAttributes scans every column of the user row into a generic
// record. A json column named attrs_json, if present, is unmarshalled and
// merged, which is how seeded fixtures carry arbitrary attributes.
func (s *SQLRuleStore) GetUserAttributes(ctx context.Context, uid int64) (map[string]any, error) {
	q := fmt.Sprintf(`SELECT * FROM %s WHERE id = :id`, s.tables.Users)
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"id": uid})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		if err := r.Err(); err != nil {
			return nil, err
		}
		return map[string]any{}, nil
	}
	cols, err := r.Columns()
	if err != nil {
		return nil, err
	}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := r.Scan(ptrs...); err != nil {
		return nil, err
	}
	attrs := make(map[string]any, len(cols))
	for i, col := range cols {
		if col == "attrs_json" {
			if raw, ok := normalizeAttr(col, vals[i]).(string); ok && raw != "" {
				extra := make(map[string]any)
				if err := json.Unmarshal([]byte(raw), &extra); err == nil {
					for k, v := range extra {
						attrs[k] = v
					}
				}
			}
			continue
		}
		attrs[col] = normalizeAttr(col, vals[i])
	}
	return attrs, nil
}

// Seeder implementation, used by fixtures and the CLI.

func (s *SQLRuleStore) CreateGroup(ctx context.Context, g *rbac.Group) error {
	q := fmt.Sprintf(
		`INSERT INTO %s(id, name, status, rules) VALUES(:id, :name, :status, :rules)`,
		s.tables.Groups)
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":     g.ID,
		"name":   g.Name,
		"status": boolToInt(g.Enabled),
		"rules":  joinRuleIDs(g.Rules),
	})
	return err
}

func (s *SQLRuleStore) CreateRule(ctx context.Context, rule *rbac.Rule) error {
	q := fmt.Sprintf(
		`INSERT INTO %s(id, route, method, condition, status) VALUES(:id, :route, :method, :condition, :status)`,
		s.tables.Rules)
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":        rule.ID,
		"route":     rule.Route,
		"method":    string(rule.Method),
		"condition": rule.Condition,
		"status":    boolToInt(rule.Enabled),
	})
	return err
}

func (s *SQLRuleStore) AssignGroup(ctx context.Context, uid, groupID int64) error {
	q := fmt.Sprintf(
		`INSERT INTO %s(uid, group_id) VALUES(:uid, :group_id)`,
		s.tables.GroupAccess)
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"uid": uid, "group_id": groupID})
	return err
}

func (s *SQLRuleStore) PutUser(ctx context.Context, uid int64, attrs map[string]any) error {
	raw, err := json.Marshal(attrs)
	if err != nil {
		return err
	}
	q := fmt.Sprintf(
		`INSERT INTO %s(id, attrs_json) VALUES(:id, :attrs_json)`,
		s.tables.Users)
	_, err = s.db.NamedExecContext(ctx, q, map[string]any{"id": uid, "attrs_json": string(raw)})
	return err
}

// namedIn builds a named-parameter IN clause: ":id0,:id1,..." plus its
// argument map.
func namedIn(prefix string, ids []int64) (string, map[string]any) {
	names := make([]string, len(ids))
	args := make(map[string]any, len(ids))
	for i, id := range ids {
		name := fmt.Sprintf("%s%d", prefix, i)
		names[i] = ":" + name
		args[name] = id
	}
	return strings.Join(names, ","), args
}

var (
	_ rbac.RuleStore = (*SQLRuleStore)(nil)
	_ rbac.Seeder    = (*SQLRuleStore)(nil)
)
