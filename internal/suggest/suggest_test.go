package suggest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var rulingKeys = []string{"damage step", "miss timing", "ash blossom"}

func TestSuggest_Typo(t *testing.T) {
	got := Suggest("ash blosom", rulingKeys, DefaultMax, DefaultFloor)
	assert.Equal(t, []string{"ash blossom"}, got)
}

func TestSuggest_NothingClose(t *testing.T) {
	got := Suggest("zzzzzzz", rulingKeys, DefaultMax, DefaultFloor)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestSuggest_EmptyInputs(t *testing.T) {
	assert.Empty(t, Suggest("ash", nil, DefaultMax, DefaultFloor))
	assert.Empty(t, Suggest("  ", rulingKeys, DefaultMax, DefaultFloor))
	assert.Empty(t, Suggest("ash blossom", rulingKeys, 0, DefaultFloor))
}

func TestSuggest_QueryIsNormalized(t *testing.T) {
	got := Suggest("  ASH   Blossom ", rulingKeys, DefaultMax, DefaultFloor)
	require.NotEmpty(t, got)
	assert.Equal(t, "ash blossom", got[0])
}

func TestCandidates_OrderingAndTruncation(t *testing.T) {
	s := New(WithMax(2))
	got := s.Candidates("chain", []string{"chain c", "chain b", "chain a", "chain a"})

	require.Len(t, got, 2)
	assert.Equal(t, "chain a", got[0].Key)
	assert.Equal(t, "chain b", got[1].Key)
	assert.InDelta(t, 1-2.0/12.0, got[0].Score, 1e-9)
}

func TestCandidates_BestScoreFirst(t *testing.T) {
	s := New()
	got := s.Candidates("damage step", []string{"damage", "damage step", "damage steps"})

	require.Len(t, got, 3)
	assert.Equal(t, "damage step", got[0].Key)
	assert.Equal(t, 1.0, got[0].Score)
	assert.Equal(t, "damage steps", got[1].Key)
	assert.Equal(t, "damage", got[2].Key)
}

func TestCandidates_Floor(t *testing.T) {
	s := New(WithFloor(0.99))
	assert.Empty(t, s.Candidates("ash blosom", rulingKeys))

	s = New(WithFloor(0))
	assert.Len(t, s.Candidates("ash blosom", rulingKeys), 3)
}

func TestRatio(t *testing.T) {
	assert.Equal(t, 1.0, Ratio("ash blossom", "ash blossom"))
	assert.Equal(t, 1.0, Ratio("", ""))
	assert.Equal(t, 0.0, Ratio("abc", "xyz"))
	assert.Equal(t, 0.0, Ratio("abc", ""))
	assert.InDelta(t, 1-1.0/21.0, Ratio("ash blosom", "ash blossom"), 1e-9)
}

func TestJaroWinkler(t *testing.T) {
	assert.Equal(t, 1.0, JaroWinkler("miss timing", "miss timing"))
	assert.Equal(t, 0.0, JaroWinkler("", "miss timing"))

	s := New(WithMetric(JaroWinkler))
	got := s.Keys("mis timing", rulingKeys)
	require.NotEmpty(t, got)
	assert.Equal(t, "miss timing", got[0])
}

func TestMetricByName(t *testing.T) {
	m, err := MetricByName("ratio")
	require.NoError(t, err)
	assert.Equal(t, 1.0, m("a", "a"))

	m, err = MetricByName("")
	require.NoError(t, err)
	assert.NotNil(t, m)

	_, err = MetricByName("jaro_winkler")
	require.NoError(t, err)

	_, err = MetricByName("cosine")
	require.Error(t, err)
}

func TestMetrics_DisjointNonASCIIScoreZero(t *testing.T) {
	pairs := [][2]string{
		{"ドラゴン", "マジシャン"},
		{"мир", "дело"},
		{"éèê", "àâä"},
	}
	for _, p := range pairs {
		assert.Zero(t, Ratio(p[0], p[1]), "ratio %q %q", p[0], p[1])
		assert.Zero(t, JaroWinkler(p[0], p[1]), "jaro-winkler %q %q", p[0], p[1])
	}

	got := Suggest("ドラゴン", []string{"マジシャン", "ash blossom"}, DefaultMax, DefaultFloor)
	assert.Empty(t, got)
}

func TestMetrics_CountCharactersNotBytes(t *testing.T) {
	// One deleted character out of 7+6.
	assert.InDelta(t, 1-1.0/13.0, Ratio("fenêtre", "fenêtr"), 1e-9)
	assert.InDelta(t, 1-1.0/13.0, Ratio("fenetre", "fenetr"), 1e-9)
	assert.Equal(t, 1.0, Ratio("ドラゴン", "ドラゴン"))
	assert.Equal(t, 1.0, JaroWinkler("ドラゴン", "ドラゴン"))
	assert.Greater(t, JaroWinkler("ドラゴン", "ドラゴンズ"), DefaultFloor)

	got := Suggest("ブラック・マジシャ", []string{"ブラック・マジシャン", "ドラゴン"}, DefaultMax, DefaultFloor)
	assert.Equal(t, []string{"ブラック・マジシャン"}, got)
}

func TestMetrics_LargeAlphabetFallback(t *testing.T) {
	var a, b []rune
	for i := 0; i < 200; i++ {
		a = append(a, rune(0x4E00+i))
		b = append(b, rune(0x5E00+i))
	}
	_, _, ok := byteAlphabet(string(a), string(b))
	require.False(t, ok)

	assert.Zero(t, Ratio(string(a), string(b)))
	assert.Equal(t, 1.0, Ratio(string(a), string(a)))
	// Dropping the last character costs one deletion.
	assert.InDelta(t, 1-1.0/399.0, Ratio(string(a), string(a[:199])), 1e-9)
	assert.Less(t, JaroWinkler(string(a), string(b)), DefaultFloor)
}

func TestByteAlphabet_ASCIIUnchanged(t *testing.T) {
	x, y, ok := byteAlphabet("ash", "blossom")
	require.True(t, ok)
	assert.Equal(t, "ash", x)
	assert.Equal(t, "blossom", y)
}
