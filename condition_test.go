package rbac

import (
	"strings"
	"testing"
)

func TestEvaluateComparisons(t *testing.T) {
	eval := NewConditionEvaluator()

	cases := []struct {
		cond  string
		attrs map[string]any
		want  bool
	}{
		{"{age} > 18", map[string]any{"age": 20}, true},
		{"{age} > 18", map[string]any{"age": 10}, false},
		{"{age} >= 18", map[string]any{"age": 18}, true},
		{"{age} < 18", map[string]any{"age": 17.5}, true},
		{"{age} == 18", map[string]any{"age": int64(18)}, true},
		{"{age} != 18", map[string]any{"age": 18}, false},
		{"{name} == \"alice\"", map[string]any{"name": "alice"}, true},
		{"{name} == 'alice'", map[string]any{"name": "bob"}, false},
		{"{active} == true", map[string]any{"active": true}, true},
		{"{score} > 3 && {score} < 10", map[string]any{"score": 5}, true},
		{"{score} > 3 && {score} < 10", map[string]any{"score": 12}, false},
		{"{role} == \"admin\" || {role} == \"ops\"", map[string]any{"role": "ops"}, true},
		{"!({age} > 18)", map[string]any{"age": 10}, true},
		{"({a} > 1 || {b} > 1) && {c} > 1", map[string]any{"a": 0, "b": 2, "c": 2}, true},
		{"{expires_at} > \"2026-01-01\"", map[string]any{"expires_at": "2026-06-30"}, true},
		{"{expires_at} > \"2026-01-01\"", map[string]any{"expires_at": "2025-06-30"}, false},
	}
	for _, tc := range cases {
		got, err := eval.Evaluate(tc.cond, tc.attrs)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.cond, err)
		}
		if got != tc.want {
			t.Fatalf("%s with %v: got %v want %v", tc.cond, tc.attrs, got, tc.want)
		}
	}
}

func TestEvaluateFailuresAreErrorsNotPanics(t *testing.T) {
	eval := NewConditionEvaluator()

	// missing field
	if ok, err := eval.Evaluate("{age} > 18", map[string]any{}); err == nil || ok {
		t.Fatalf("expected error for missing field, got ok=%v err=%v", ok, err)
	}
	// malformed expressions
	for _, cond := range []string{
		"{age} >",
		"age > 18",
		"{age} > 18 &&",
		"{age > 18",
		"{age} # 18",
		"'unterminated",
		"{age} > 18 extra",
	} {
		if _, err := eval.Evaluate(cond, map[string]any{"age": 20}); err == nil {
			t.Fatalf("expected parse/eval error for %q", cond)
		}
	}
	// non-boolean result
	if _, err := eval.Evaluate("{age}", map[string]any{"age": 20}); err == nil {
		t.Fatalf("expected error for non-boolean condition result")
	}
	// type mismatch in ordering
	if _, err := eval.Evaluate("{age} > 18", map[string]any{"age": "twenty"}); err == nil {
		t.Fatalf("expected error ordering string against number")
	}
}

func TestEvaluateCannotReachOutsideAttributes(t *testing.T) {
	eval := NewConditionEvaluator()
	// identifiers are not a thing in the operand language; anything that is
	// not a literal or a {field} placeholder must fail to parse
	for _, cond := range []string{
		"os.Getenv(\"HOME\") == \"x\"",
		"{age} > len(\"abc\")",
		"exec == true",
	} {
		if _, err := eval.Evaluate(cond, map[string]any{"age": 20}); err == nil {
			t.Fatalf("expected %q to be rejected", cond)
		}
	}
}

func TestParseConditionEmptyIsTrue(t *testing.T) {
	expr, err := ParseCondition("  ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	v, err := expr.Eval(nil)
	if err != nil || v != true {
		t.Fatalf("empty condition should evaluate true, got %v err=%v", v, err)
	}
}

func TestExprString(t *testing.T) {
	expr, err := ParseCondition("{age} > 18 && {name} == \"alice\"")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	s := expr.String()
	if !strings.Contains(s, "{age}") || !strings.Contains(s, "\"alice\"") {
		t.Fatalf("unexpected String(): %s", s)
	}
}
