package seed

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/rulings/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestParseYAML_List(t *testing.T) {
	recs, err := ParseYAML("x.yaml", []byte(`
- key: Damage Step
  content: window
  tags: battle, timing
- key: ash blossom
  content: negates
  tags: [hand trap, negate]
  category: monster
`))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "Damage Step", recs[0].Raw.Key)
	assert.Equal(t, "x.yaml:2", recs[0].Source)
	require.NotNil(t, recs[1].Raw.Category)
	assert.Equal(t, "monster", *recs[1].Raw.Category)
}

func TestParseYAML_Mapping(t *testing.T) {
	recs, err := ParseYAML("m.yaml", []byte(`
damage step: "Damage Step: restrictive window."
miss timing:
  title: Missing the timing
  content: When... you can
`))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "damage step", recs[0].Raw.Key)
	assert.Equal(t, "Damage Step: restrictive window.", *recs[0].Raw.Content)
	assert.Equal(t, "miss timing", recs[1].Raw.Key)
	assert.Equal(t, "Missing the timing", *recs[1].Raw.Title)
}

func TestParseYAML_Errors(t *testing.T) {
	_, err := ParseYAML("bad.yaml", []byte("just a string"))
	require.Error(t, err)

	recs, err := ParseYAML("empty.yaml", nil)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestParseJSON_ArrayAndObject(t *testing.T) {
	recs, err := ParseJSON("a.json", []byte(`[{"key":"a","content":"x","tags":"t1,t2"}]`))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, []string{"t1", "t2"}, []string(recs[0].Raw.Tags))

	recs, err = ParseJSON("o.json", []byte(`{"zeta":"last","alpha":{"content":"first"}}`))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "zeta", recs[0].Raw.Key, "object order is kept")
	assert.Equal(t, "alpha", recs[1].Raw.Key)
	assert.Equal(t, "first", *recs[1].Raw.Content)

	_, err = ParseJSON("n.json", []byte(`42`))
	require.Error(t, err)
}

func TestParseMapping_NullContentIsAbsent(t *testing.T) {
	recs, err := ParseJSON("o.json", []byte(`{"gone": null, "empty": "", "kept": "x"}`))
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Nil(t, recs[0].Raw.Content)
	require.NotNil(t, recs[1].Raw.Content)
	assert.Equal(t, "", *recs[1].Raw.Content)

	yrecs, err := ParseYAML("o.yaml", []byte("gone: ~\nalso gone:\nempty: \"\"\nkept: x\n"))
	require.NoError(t, err)
	require.Len(t, yrecs, 4)
	assert.Nil(t, yrecs[0].Raw.Content)
	assert.Nil(t, yrecs[1].Raw.Content)
	require.NotNil(t, yrecs[2].Raw.Content)
	assert.Equal(t, "", *yrecs[2].Raw.Content)

	st := store.NewMemoryStore()
	report, err := NewImporter(st, testLogger()).Import(context.Background(), append(recs, yrecs...))
	require.NoError(t, err)
	assert.Equal(t, 3, report.Skipped)
	_, err = st.Get(context.Background(), "gone")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestParseJSONL(t *testing.T) {
	recs, problems := ParseJSONL("l.jsonl", []byte(`{"key":"a","content":"x"}

not json
{"key":"b","content":"y"}
`))
	require.Len(t, recs, 2)
	require.Len(t, problems, 1)
	assert.Equal(t, "l.jsonl:3", problems[0].Source)
	assert.Equal(t, "l.jsonl:4", recs[1].Source)
}

func TestImport_DedupeLastWinsAndSkipsInvalid(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	im := NewImporter(st, testLogger())

	recs, err := ParseYAML("s.yaml", []byte(`
- key: damage step
  content: v1
- key: "   "
  content: blank key
- key: miss timing
- key: ash blossom
  content: negates
- key: DAMAGE  STEP
  content: v2
`))
	require.NoError(t, err)

	report, err := im.Import(ctx, recs)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Inserted)
	assert.Equal(t, 1, report.Duplicates)
	assert.Equal(t, 2, report.Skipped)
	assert.Len(t, report.Problems, 2)

	all, err := st.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "damage step", all[0].Key)
	assert.Equal(t, "v2", all[0].Content)
	assert.Equal(t, "ash blossom", all[1].Key)

	report, err = im.Import(ctx, recs)
	require.NoError(t, err)
	assert.Zero(t, report.Inserted)
	assert.Equal(t, 2, report.Updated)
}

func TestImportPath_Directory(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "b.jsonl", "{\"key\":\"miss timing\",\"content\":\"y\"}\n{oops\n")
	writeFile(t, dir, "a.yaml", "damage step: x\n")
	writeFile(t, dir, "notes.txt", "ignored")

	st := store.NewMemoryStore()
	report, err := NewImporter(st, testLogger()).ImportPath(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Inserted)
	assert.Equal(t, 1, report.Skipped)

	all, err := st.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "damage step", all[0].Key, "files load in lexical order")
}

func TestImportPath_Missing(t *testing.T) {
	_, err := NewImporter(store.NewMemoryStore(), testLogger()).ImportPath(context.Background(), filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestDefaults(t *testing.T) {
	recs, err := Defaults()
	require.NoError(t, err)
	require.Len(t, recs, 3)

	st := store.NewMemoryStore()
	report, err := NewImporter(st, testLogger()).Import(context.Background(), recs)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Inserted)

	e, err := st.Get(context.Background(), "ash blossom")
	require.NoError(t, err)
	assert.Equal(t, []string{"hand trap", "negate"}, e.Tags)
	assert.Equal(t, "monster", e.Archetype)
}

func TestWatch_FiresOnChange(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "rulings.yaml", "damage step: x\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var fired atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, 20*time.Millisecond, testLogger(), func() { fired.Add(1) })
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, dir, "rulings.yaml", "damage step: y\n")
	writeFile(t, dir, "other.txt", "ignored")

	require.Eventually(t, func() bool { return fired.Load() >= 1 }, 3*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestIsSeedFile(t *testing.T) {
	assert.True(t, IsSeedFile("a.YAML"))
	assert.True(t, IsSeedFile("a.jsonl"))
	assert.False(t, IsSeedFile("a.txt"))
}
