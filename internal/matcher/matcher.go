// Package matcher implements the fixed-precedence tiered search over a snapshot
// of entries. It keeps no state and is safe for concurrent use.
package matcher

import (
	"strings"

	"github.com/ajitpratap0/rulings/internal/models"
	"github.com/ajitpratap0/rulings/internal/normalizer"
)

// Tier is one precedence level. Match receives the normalized, non-empty query.
type Tier struct {
	Name  string
	Match func(query string, e models.Entry) bool
}

// Hit is a matched entry together with the tier that selected it.
type Hit struct {
	Entry models.Entry `json:"entry"`
	Tier  string       `json:"tier"`
}

// Tier names.
const (
	TierExactKey      = "exact_key"
	TierKeyContains   = "key_contains"
	TierTitleContains = "title_contains"
	TierTagContains   = "tag_contains"
)

// ExactKey selects entries whose key equals the query.
var ExactKey = Tier{
	Name: TierExactKey,
	Match: func(q string, e models.Entry) bool {
		return e.Key == q
	},
}

// KeyContains selects entries whose key contains the query or is contained in it.
var KeyContains = Tier{
	Name: TierKeyContains,
	Match: func(q string, e models.Entry) bool {
		return containsEither(e.Key, q)
	},
}

// TitleContains selects entries whose folded title contains the query.
var TitleContains = Tier{
	Name: TierTitleContains,
	Match: func(q string, e models.Entry) bool {
		return strings.Contains(normalizer.Fold(e.Title), q)
	},
}

// TagContains selects entries where any tag, the archetype or the format
// contains the query or is contained in it.
var TagContains = Tier{
	Name: TierTagContains,
	Match: func(q string, e models.Entry) bool {
		for _, tag := range e.Tags {
			if containsEither(tag, q) {
				return true
			}
		}
		return containsEither(e.Archetype, q) || containsEither(e.Format, q)
	},
}

// DefaultTiers is the standard precedence: key, key containment, title, tags.
func DefaultTiers() []Tier {
	return []Tier{ExactKey, KeyContains, TitleContains, TagContains}
}

// Engine applies an ordered list of tiers.
type Engine struct {
	tiers []Tier
}

// New creates an engine with the given tiers, or DefaultTiers when none are given.
func New(tiers ...Tier) *Engine {
	if len(tiers) == 0 {
		tiers = DefaultTiers()
	}
	return &Engine{tiers: tiers}
}

// WithTier returns a new engine with t appended after the existing tiers.
func (m *Engine) WithTier(t Tier) *Engine {
	tiers := make([]Tier, 0, len(m.tiers)+1)
	tiers = append(tiers, m.tiers...)
	return &Engine{tiers: append(tiers, t)}
}

// Tiers returns the tier names in precedence order.
func (m *Engine) Tiers() []string {
	names := make([]string, len(m.tiers))
	for i, t := range m.tiers {
		names[i] = t.Name
	}
	return names
}

// Search returns at most limit hits for query. Tiers are concatenated in order,
// an entry appears once at its first matching tier, and within a tier the
// order of entries is preserved.
func (m *Engine) Search(query string, entries []models.Entry, limit int) []Hit {
	q := normalizer.Key(query)
	if q == "" || limit <= 0 {
		return []Hit{}
	}

	hits := make([]Hit, 0, min(limit, len(entries)))
	seen := make(map[string]struct{}, len(entries))
	for _, tier := range m.tiers {
		for i := range entries {
			e := &entries[i]
			if _, dup := seen[e.Key]; dup {
				continue
			}
			if !tier.Match(q, *e) {
				continue
			}
			seen[e.Key] = struct{}{}
			hits = append(hits, Hit{Entry: *e, Tier: tier.Name})
			if len(hits) == limit {
				return hits
			}
		}
	}
	return hits
}

// Match is Search without tier information.
func (m *Engine) Match(query string, entries []models.Entry, limit int) []models.Entry {
	hits := m.Search(query, entries, limit)
	out := make([]models.Entry, len(hits))
	for i := range hits {
		out[i] = hits[i].Entry
	}
	return out
}

var defaultEngine = New()

// Match runs the default tiers over entries.
func Match(query string, entries []models.Entry, limit int) []models.Entry {
	return defaultEngine.Match(query, entries, limit)
}

// containsEither reports whether a contains b or b contains a. Empty values never match.
func containsEither(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}
