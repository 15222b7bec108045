// Package access decides whether a caller may use a route.  It is a pure
// function of the request path, method and the already-resolved session.
package access

import "strings"

// Decision is the outcome of one authorization check.
type Decision int

const (
	Allowed Decision = iota
	Unauthenticated
	Forbidden
)

func (d Decision) String() string {
	switch d {
	case Allowed:
		return "allowed"
	case Unauthenticated:
		return "unauthenticated"
	default:
		return "forbidden"
	}
}

// Session is the verified identity behind a request.
type Session struct {
	UserID uint64
	Role   string
	Tenant string
}

// Rule grants the listed roles each method on paths matching Pattern.
// Pattern segments starting with ':' match any single non-empty segment; a
// final "*" matches the rest of the path.
type Rule struct {
	Pattern string
	Methods map[string][]string
}

type compiledRule struct {
	segs    []string
	methods map[string]map[string]bool
}

// Table is an ordered, immutable list of rules.  The first rule whose
// pattern matches decides.
type Table struct {
	rules []compiledRule
}

// NewTable compiles rules in order.
func NewTable(rules ...Rule) *Table {
	t := &Table{rules: make([]compiledRule, 0, len(rules))}
	for _, r := range rules {
		cr := compiledRule{segs: split(r.Pattern), methods: make(map[string]map[string]bool, len(r.Methods))}
		for m, roles := range r.Methods {
			set := make(map[string]bool, len(roles))
			for _, role := range roles {
				set[role] = true
			}
			cr.methods[strings.ToUpper(m)] = set
		}
		t.rules = append(t.rules, cr)
	}
	return t
}

// Authorize decides method+path for s (nil when no session was presented).
// Paths without a rule, and methods a rule does not list, are Forbidden
// regardless of the session.
func (t *Table) Authorize(method, path string, s *Session) Decision {
	segs := split(path)
	for _, r := range t.rules {
		if !match(r.segs, segs) {
			continue
		}
		roles, ok := r.methods[strings.ToUpper(method)]
		if !ok || len(roles) == 0 {
			return Forbidden
		}
		if s == nil {
			return Unauthenticated
		}
		if roles[s.Role] {
			return Allowed
		}
		return Forbidden
	}
	return Forbidden
}

func split(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func match(pattern, segs []string) bool {
	for i, p := range pattern {
		if p == "*" && i == len(pattern)-1 {
			return true
		}
		if i >= len(segs) {
			return false
		}
		switch {
		case strings.HasPrefix(p, ":"):
			if segs[i] == "" {
				return false
			}
		case p != segs[i]:
			return false
		}
	}
	return len(pattern) == len(segs)
}
