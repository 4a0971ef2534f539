package masterfile

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/miekg/dns"
)

const (
	// wildcardLabel matches exactly one label at its position.
	wildcardLabel = "*"

	// patternCacheSize bounds the number of compiled patterns kept around.
	patternCacheSize = 1024
)

var patternCache = mustPatternCache(patternCacheSize)

func mustPatternCache(size int) *lru.Cache[Domain, *Pattern] {
	c, err := lru.New[Domain, *Pattern](size)
	if err != nil {
		panic(err)
	}
	return c
}

// Domain is a dot separated DNS name. A single trailing dot is optional and
// ignored when comparing.
type Domain string

func (d Domain) String() string {
	return string(d)
}

// Labels splits the domain into its labels. The root domain has none.
func (d Domain) Labels() []string {
	s := strings.TrimSuffix(string(d), ".")
	if s == "" {
		return nil
	}
	return strings.Split(s, ".")
}

// FQDN returns the domain with a trailing dot, as used on the wire.
func (d Domain) FQDN() string {
	return dns.Fqdn(string(d))
}

// IsWildcard reports whether any label of the domain is "*".
func (d Domain) IsWildcard() bool {
	for _, l := range d.Labels() {
		if l == wildcardLabel {
			return true
		}
	}
	return false
}

type labelMatcher struct {
	label    string
	wildcard bool
}

// Pattern is a compiled domain pattern. A "*" label matches any single
// non-empty label; every other label matches case-insensitively. Matching is
// anchored at both ends, so a pattern only matches names with the same number
// of labels.
type Pattern struct {
	source Domain
	labels []labelMatcher
}

// CompilePattern compiles pattern into a structural matcher.
func CompilePattern(pattern Domain) *Pattern {
	labels := pattern.Labels()
	p := &Pattern{
		source: pattern,
		labels: make([]labelMatcher, len(labels)),
	}
	for i, l := range labels {
		p.labels[i] = labelMatcher{label: l, wildcard: l == wildcardLabel}
	}
	return p
}

// String returns the pattern source.
func (p *Pattern) String() string {
	return p.source.String()
}

// Match reports whether candidate matches the pattern.
func (p *Pattern) Match(candidate Domain) bool {
	labels := candidate.Labels()
	if len(labels) != len(p.labels) {
		return false
	}

	for i, m := range p.labels {
		if m.wildcard {
			if labels[i] == "" {
				return false
			}
			continue
		}
		if !strings.EqualFold(labels[i], m.label) {
			return false
		}
	}
	return true
}

// Matches reports whether candidate matches pattern. Compiled patterns are
// cached, and the function is safe for concurrent use.
func Matches(candidate, pattern Domain) bool {
	p, ok := patternCache.Get(pattern)
	if !ok {
		p = CompilePattern(pattern)
		patternCache.Add(pattern, p)
	}
	return p.Match(candidate)
}
