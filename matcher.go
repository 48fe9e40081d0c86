package rbac

import "strings"

// splitPattern splits a rule route of the shape "path?k1=v1&k2=v2" into its
// base path and parameter constraints. Routes without a '?' have no
// constraints.
func splitPattern(pattern string) (string, map[string]string) {
	base, query, ok := strings.Cut(pattern, "?")
	if !ok || query == "" {
		return base, nil
	}
	constraints := make(map[string]string)
	for _, pair := range strings.Split(query, "&") {
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		constraints[k] = v
	}
	return base, constraints
}

// Matches reports whether a stored permission grants the requested route.
//
// The permission's base path must equal the route, compared lowercased so
// direct callers need not pre-normalize. Parameter
// constraints, if any, must each be present in params with an identical
// value. When matchMethod is set the permission's method must equal the
// actual method; permissions with MethodAny always pass the method check.
func Matches(perm Permission, route string, params map[string]string, matchMethod bool, method Method) bool {
	base, constraints := splitPattern(strings.ToLower(perm.Route))
	if base != strings.ToLower(route) {
		return false
	}
	for k, v := range constraints {
		if got, ok := params[k]; !ok || got != v {
			return false
		}
	}
	if matchMethod && perm.Method != MethodAny && perm.Method != method {
		return false
	}
	return true
}
