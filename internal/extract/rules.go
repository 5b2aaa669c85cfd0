package extract

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Category is the static per-hostname routing decision.
type Category string

// Routing categories, in lookup order. First match wins.
const (
	CategoryBlocked       Category = "blocked"
	CategoryNeverBrowser  Category = "never_browser"
	CategoryAlwaysBrowser Category = "always_browser"
	CategoryPaywalled     Category = "paywalled"
	CategoryStrict        Category = "strict"
	CategoryPreferHTML    Category = "prefer_html"
	CategoryUnranked      Category = "unranked"
)

// ForcesBrowser reports whether the category skips lightweight
// extraction and goes straight to the guarded heavy path.
func (c Category) ForcesBrowser() bool {
	switch c {
	case CategoryAlwaysBrowser, CategoryPaywalled, CategoryStrict:
		return true
	default:
		return false
	}
}

// RuleFile is the on-disk shape of the domain rule table, versioned with
// the deployment.
type RuleFile struct {
	Blocked       []string `yaml:"blocked"`
	NeverBrowser  []string `yaml:"never_browser"`
	AlwaysBrowser []string `yaml:"always_browser"`
	Paywalled     []string `yaml:"paywalled"`
	Strict        []string `yaml:"strict"`
	PreferHTML    []string `yaml:"prefer_html"`
}

// RuleTable maps normalized hostnames to routing categories.
type RuleTable struct {
	hosts map[string]Category
}

// NewRuleTable builds a table from category host lists. Later lists
// never override earlier ones, preserving the lookup order when a host
// appears in more than one list.
func NewRuleTable(file RuleFile) *RuleTable {
	t := &RuleTable{hosts: make(map[string]Category)}
	ordered := []struct {
		hosts []string
		cat   Category
	}{
		{file.Blocked, CategoryBlocked},
		{file.NeverBrowser, CategoryNeverBrowser},
		{file.AlwaysBrowser, CategoryAlwaysBrowser},
		{file.Paywalled, CategoryPaywalled},
		{file.Strict, CategoryStrict},
		{file.PreferHTML, CategoryPreferHTML},
	}
	for _, group := range ordered {
		for _, raw := range group.hosts {
			host := NormalizeHost(raw)
			if host == "" {
				continue
			}
			if _, exists := t.hosts[host]; exists {
				continue
			}
			t.hosts[host] = group.cat
		}
	}
	return t
}

// LoadRuleTable reads a YAML rule file from disk.
func LoadRuleTable(path string) (*RuleTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule file: %w", err)
	}
	var file RuleFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse rule file: %w", err)
	}
	return NewRuleTable(file), nil
}

// Classify returns the routing category for a hostname.
func (t *RuleTable) Classify(hostname string) Category {
	if t == nil {
		return CategoryUnranked
	}
	host := NormalizeHost(hostname)
	if host == "" {
		return CategoryUnranked
	}
	if cat, ok := t.hosts[host]; ok {
		return cat
	}
	return CategoryUnranked
}

// NormalizeHost lowercases a hostname and strips a leading "www.".
func NormalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	return strings.TrimPrefix(host, "www.")
}

// HostFromURL extracts the normalized hostname from a raw URL, returning
// an empty string when the URL does not parse.
func HostFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return NormalizeHost(u.Hostname())
}
