// Package suggest proposes keys that are spelled close to a query. It is
// independent of the tiered matcher and always runs over the full key set.
package suggest

import (
	"fmt"
	"sort"
	"unicode/utf8"

	edlib "github.com/hbollon/go-edlib"
	"github.com/xrash/smetrics"

	"github.com/ajitpratap0/rulings/internal/normalizer"
)

const (
	// DefaultFloor is the minimum similarity a key needs to be suggested.
	DefaultFloor = 0.55

	// DefaultMax is the default number of suggestions returned.
	DefaultMax = 5
)

// Metric scores the similarity of two normalized strings in [0,1].
// Identical strings must score 1.
type Metric func(a, b string) float64

// Ratio is twice the number of matching characters over the total length,
// computed from the insert/delete edit distance (substitutions cost two).
// Lengths and matches count characters, not bytes.
func Ratio(a, b string) float64 {
	total := utf8.RuneCountInString(a) + utf8.RuneCountInString(b)
	if total == 0 {
		return 1
	}
	if x, y, ok := byteAlphabet(a, b); ok {
		d := smetrics.WagnerFischer(x, y, 1, 1, 2)
		return 1 - float64(d)/float64(total)
	}
	// Indel distance is total - 2*LCS.
	return 2 * float64(edlib.LCS(a, b)) / float64(total)
}

// JaroWinkler is the Jaro-Winkler similarity with the usual 0.7 boost
// threshold and a four character prefix, over characters.
func JaroWinkler(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	if x, y, ok := byteAlphabet(a, b); ok {
		return smetrics.JaroWinkler(x, y, 0.7, 4)
	}
	return float64(edlib.JaroWinklerSimilarity(a, b))
}

// byteAlphabet rewrites a and b so that each distinct character becomes one
// byte, letting the byte-oriented smetrics functions compare characters.
// It reports false when the pair uses more than 256 distinct characters.
func byteAlphabet(a, b string) (string, string, bool) {
	if isASCII(a) && isASCII(b) {
		return a, b, true
	}
	codes := make(map[rune]byte)
	encode := func(s string) ([]byte, bool) {
		out := make([]byte, 0, len(s))
		for _, r := range s {
			c, ok := codes[r]
			if !ok {
				if len(codes) == 256 {
					return nil, false
				}
				c = byte(len(codes))
				codes[r] = c
			}
			out = append(out, c)
		}
		return out, true
	}
	x, ok := encode(a)
	if !ok {
		return "", "", false
	}
	y, ok := encode(b)
	if !ok {
		return "", "", false
	}
	return string(x), string(y), true
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// MetricByName resolves a configured metric name.
func MetricByName(name string) (Metric, error) {
	switch name {
	case "", "ratio":
		return Ratio, nil
	case "jaro_winkler":
		return JaroWinkler, nil
	default:
		return nil, fmt.Errorf("unknown similarity metric %q (use ratio or jaro_winkler)", name)
	}
}

// Candidate is a suggested key with its similarity score.
type Candidate struct {
	Key   string  `json:"key"`
	Score float64 `json:"score"`
}

// Suggester ranks keys by similarity to a query.
type Suggester struct {
	metric Metric
	floor  float64
	max    int
}

// Option configures a Suggester.
type Option func(*Suggester)

// WithMetric replaces the similarity metric.
func WithMetric(m Metric) Option {
	return func(s *Suggester) {
		if m != nil {
			s.metric = m
		}
	}
}

// WithFloor sets the minimum accepted score.
func WithFloor(floor float64) Option {
	return func(s *Suggester) { s.floor = floor }
}

// WithMax sets the maximum number of suggestions.
func WithMax(n int) Option {
	return func(s *Suggester) { s.max = n }
}

// New creates a Suggester using Ratio, DefaultFloor and DefaultMax unless overridden.
func New(opts ...Option) *Suggester {
	s := &Suggester{metric: Ratio, floor: DefaultFloor, max: DefaultMax}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Candidates scores every distinct key against query and returns those at or
// above the floor, best first, ties broken by key order.
func (s *Suggester) Candidates(query string, keys []string) []Candidate {
	q := normalizer.Key(query)
	if q == "" || len(keys) == 0 || s.max <= 0 {
		return []Candidate{}
	}

	out := make([]Candidate, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		score := s.metric(q, normalizer.Key(key))
		if score < s.floor {
			continue
		}
		out = append(out, Candidate{Key: key, Score: score})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Key < out[j].Key
	})

	if len(out) > s.max {
		out = out[:s.max]
	}
	return out
}

// Keys is Candidates without scores.
func (s *Suggester) Keys(query string, keys []string) []string {
	cands := s.Candidates(query, keys)
	out := make([]string, len(cands))
	for i := range cands {
		out[i] = cands[i].Key
	}
	return out
}

// Suggest returns up to n keys scoring at least floor against query using Ratio.
func Suggest(query string, keys []string, n int, floor float64) []string {
	return New(WithMax(n), WithFloor(floor)).Keys(query, keys)
}
