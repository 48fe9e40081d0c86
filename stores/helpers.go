package stores

import (
	"strconv"
	"strings"
	"time"

	"github.com/oarkflow/date"
)

// splitRuleIDs parses the source format of a group's rule list: a comma
// delimited string of rule IDs, possibly with stray whitespace or empty
// segments.
func splitRuleIDs(s string) []int64 {
	parts := strings.Split(strings.Trim(s, ","), ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out
}

func joinRuleIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// normalizeAttr converts raw driver values into condition-friendly types:
// byte slices become strings, and *_at timestamp columns are parsed with the
// flexible date parser when possible.
func normalizeAttr(col string, v any) any {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	if s, ok := v.(string); ok && strings.HasSuffix(col, "_at") {
		if t, err := parseFlexibleTime(s); err == nil {
			return t
		}
	}
	return v
}

func parseFlexibleTime(s string) (time.Time, error) {
	return date.Parse(s)
}
