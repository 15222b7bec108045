// Package tenant maps request hosts onto clinic organizations.
package tenant

import (
	"net"
	"regexp"
	"strings"
)

var keyPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// ValidKey reports whether key can name a tenant: a lowercase DNS label.
func ValidKey(key string) bool { return keyPattern.MatchString(key) }

// Resolver extracts the tenant key from a Host header.
type Resolver struct {
	baseLabels int
	excluded   map[string]bool
}

// NewResolver builds a resolver for a root domain made of baseLabels labels
// ("example.com" is 2, "example.co.uk" is 3).  excluded labels such as
// "www" never name a tenant.
func NewResolver(baseLabels int, excluded []string) *Resolver {
	if baseLabels < 1 {
		baseLabels = 1
	}
	ex := make(map[string]bool, len(excluded))
	for _, l := range excluded {
		ex[strings.ToLower(strings.TrimSpace(l))] = true
	}
	return &Resolver{baseLabels: baseLabels, excluded: ex}
}

// Excluded reports whether label is reserved.
func (r *Resolver) Excluded(label string) bool { return r.excluded[label] }

// Resolve returns the tenant key for host, or ok=false for the root domain,
// reserved labels, IP literals and anything malformed.
func (r *Resolver) Resolve(host string) (key string, ok bool) {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(strings.Trim(host, "[]"), ".")
	if host == "" || net.ParseIP(host) != nil {
		return "", false
	}

	labels := strings.Split(host, ".")
	base := r.baseLabels
	if labels[len(labels)-1] == "localhost" {
		base = 1
	}
	if len(labels) <= base {
		return "", false
	}
	for _, l := range labels {
		if l == "" {
			return "", false
		}
	}

	key = labels[0]
	if r.excluded[key] || !ValidKey(key) {
		return "", false
	}
	return key, true
}
