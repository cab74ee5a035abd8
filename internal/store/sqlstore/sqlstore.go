// Package sqlstore implements store.Store on database/sql. Two dialects are
// supported: SQLite through mattn/go-sqlite3 and PostgreSQL through the pgx
// stdlib driver. Entries keep their first-insert position in List.
package sqlstore

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/ajitpratap0/rulings/internal/models"
	"github.com/ajitpratap0/rulings/internal/store"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

//go:embed schema_postgres.sql
var postgresSchema string

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type dialect struct {
	driver      string
	schema      string
	numbered    bool // $1 placeholders instead of ?
	returnsXmax bool // upsert can report insert vs update in one statement
}

var dialects = map[string]dialect{
	DriverSQLite:   {driver: "sqlite3", schema: sqliteSchema},
	DriverPostgres: {driver: "pgx", schema: postgresSchema, numbered: true, returnsXmax: true},
}

// Store is a SQL-backed store.Store.
type Store struct {
	db *sql.DB
	d  dialect
}

var _ store.Store = (*Store)(nil)

// Open connects to the database, verifies connectivity and applies the schema.
// For SQLite, dsn is a file path or ":memory:".
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("sqlstore: unknown driver %q", driver)
	}
	if dsn == "" {
		return nil, fmt.Errorf("sqlstore: %s dsn is empty", driver)
	}
	if driver == DriverSQLite && !strings.Contains(dsn, "?") {
		dsn += "?_busy_timeout=5000&_foreign_keys=on"
	}

	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// One writer at a time; also keeps ":memory:" on a single connection.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlstore: ping %s: %w", driver, err)
	}

	s := &Store{db: db, d: d}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(s.d.schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlstore: init schema: %w", err)
		}
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *Store) rebind(query string) string {
	if !s.d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const entryColumns = "key, title, content, tags, archetype, format"

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (models.Entry, error) {
	var e models.Entry
	var tags string
	if err := row.Scan(&e.Key, &e.Title, &e.Content, &tags, &e.Archetype, &e.Format); err != nil {
		return e, err
	}
	var err error
	e.Tags, err = decodeTags(tags)
	return e, err
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}
	return string(b), nil
}

func decodeTags(raw string) ([]string, error) {
	tags := []string{}
	if raw == "" {
		return tags, nil
	}
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	return tags, nil
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]models.Entry, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := []models.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// List returns every entry in first-insert order.
func (s *Store) List(ctx context.Context) ([]models.Entry, error) {
	out, err := s.queryEntries(ctx, "SELECT "+entryColumns+" FROM entries ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return out, nil
}

// Get retrieves a single entry by key.
func (s *Store) Get(ctx context.Context, key string) (*models.Entry, error) {
	row := s.db.QueryRowContext(ctx, s.rebind("SELECT "+entryColumns+" FROM entries WHERE key = ?"), key)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("entry %q: %w", key, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get entry %q: %w", key, err)
	}
	return &e, nil
}

const upsertEntry = `INSERT INTO entries (key, title, content, tags, archetype, format)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (key) DO UPDATE SET
    title = excluded.title,
    content = excluded.content,
    tags = excluded.tags,
    archetype = excluded.archetype,
    format = excluded.format`

// Upsert inserts or fully replaces an entry. The row keeps its sequence
// number on replace so List order does not change.
func (s *Store) Upsert(ctx context.Context, e models.Entry) (store.UpsertResult, error) {
	if e.Key == "" {
		return 0, fmt.Errorf("upsert: empty key")
	}
	tags, err := encodeTags(e.Tags)
	if err != nil {
		return 0, err
	}
	args := []any{e.Key, e.Title, e.Content, tags, e.Archetype, e.Format}

	if s.d.returnsXmax {
		var inserted bool
		err := s.db.QueryRowContext(ctx, s.rebind(upsertEntry+" RETURNING (xmax = 0)"), args...).Scan(&inserted)
		if err != nil {
			return 0, fmt.Errorf("upsert %q: %w", e.Key, err)
		}
		if inserted {
			return store.Inserted, nil
		}
		return store.Updated, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("upsert %q: begin: %w", e.Key, err)
	}
	defer func() { _ = tx.Rollback() }()

	var one int
	existed := true
	err = tx.QueryRowContext(ctx, s.rebind("SELECT 1 FROM entries WHERE key = ?"), e.Key).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		existed = false
	case err != nil:
		return 0, fmt.Errorf("upsert %q: probe: %w", e.Key, err)
	}

	if _, err := tx.ExecContext(ctx, s.rebind(upsertEntry), args...); err != nil {
		return 0, fmt.Errorf("upsert %q: %w", e.Key, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("upsert %q: commit: %w", e.Key, err)
	}
	if existed {
		return store.Updated, nil
	}
	return store.Inserted, nil
}

// Delete removes an entry by key.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM entries WHERE key = ?"), key)
	if err != nil {
		return false, fmt.Errorf("delete %q: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete %q: %w", key, err)
	}
	return n > 0, nil
}

// Count returns the number of entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entries").Scan(&n); err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return n, nil
}

// Filter narrows scalar fields in SQL and checks tags in Go, since tags are
// stored as a JSON array. Only ASCII needles reach SQL: SQLite's LOWER folds
// ASCII alone, and every row the pre-filter keeps is checked with f.Matches.
func (s *Store) Filter(ctx context.Context, f *store.Filters) ([]models.Entry, error) {
	if f.IsEmpty() {
		return s.List(ctx)
	}

	var where []string
	var args []any
	for _, c := range []struct{ col, val string }{
		{"key", f.Key},
		{"title", f.Title},
		{"archetype", f.Archetype},
		{"format", f.Format},
	} {
		if c.val == "" || !isASCII(c.val) {
			continue
		}
		where = append(where, "LOWER("+c.col+") LIKE ? ESCAPE '\\'")
		args = append(args, "%"+escapeLike(strings.ToLower(c.val))+"%")
	}

	query := "SELECT " + entryColumns + " FROM entries"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq"

	rows, err := s.queryEntries(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("filter entries: %w", err)
	}
	out := rows[:0]
	for _, e := range rows {
		if f.Matches(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// IncrementUsage adds one to the counter of key.
func (s *Store) IncrementUsage(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO usage (key, hits) VALUES (?, 1)
ON CONFLICT (key) DO UPDATE SET hits = usage.hits + 1`), key)
	if err != nil {
		return fmt.Errorf("increment usage %q: %w", key, err)
	}
	return nil
}

// Usage returns the counter of key.
func (s *Store) Usage(ctx context.Context, key string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, s.rebind("SELECT hits FROM usage WHERE key = ?"), key).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("usage %q: %w", key, err)
	}
	return n, nil
}

// TopUsage returns the n most used keys.
func (s *Store) TopUsage(ctx context.Context, n int) ([]models.UsageStat, error) {
	query := "SELECT key, hits FROM usage ORDER BY hits DESC, key ASC"
	var args []any
	if n > 0 {
		query += " LIMIT ?"
		args = append(args, n)
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("top usage: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []models.UsageStat{}
	for rows.Next() {
		var u models.UsageStat
		if err := rows.Scan(&u.Key, &u.Count); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

const suggestionColumns = `id, entry_key, title, content, tags, archetype, format,
author_id, author_display_name, created_at_ns, status, decided_at_ns`

// AddSuggestion stores a suggestion.
func (s *Store) AddSuggestion(ctx context.Context, sg models.Suggestion) error {
	tags, err := encodeTags(sg.Entry.Tags)
	if err != nil {
		return err
	}
	var decided *int64
	if sg.DecidedAt != nil {
		ns := sg.DecidedAt.UnixNano()
		decided = &ns
	}
	_, err = s.db.ExecContext(ctx, s.rebind(`INSERT INTO suggestions (`+suggestionColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		sg.ID, sg.Entry.Key, sg.Entry.Title, sg.Entry.Content, tags, sg.Entry.Archetype, sg.Entry.Format,
		sg.AuthorID, sg.AuthorDisplayName, sg.CreatedAt.UnixNano(), string(sg.Status), decided)
	if err != nil {
		return fmt.Errorf("add suggestion %s: %w", sg.ID, err)
	}
	return nil
}

func scanSuggestion(row scanner) (models.Suggestion, error) {
	var (
		sg        models.Suggestion
		tags      string
		status    string
		createdNs int64
		decidedNs sql.NullInt64
	)
	err := row.Scan(&sg.ID, &sg.Entry.Key, &sg.Entry.Title, &sg.Entry.Content, &tags,
		&sg.Entry.Archetype, &sg.Entry.Format, &sg.AuthorID, &sg.AuthorDisplayName,
		&createdNs, &status, &decidedNs)
	if err != nil {
		return sg, err
	}
	if sg.Entry.Tags, err = decodeTags(tags); err != nil {
		return sg, err
	}
	sg.Status = models.SuggestionStatus(status)
	sg.CreatedAt = time.Unix(0, createdNs).UTC()
	if decidedNs.Valid {
		d := time.Unix(0, decidedNs.Int64).UTC()
		sg.DecidedAt = &d
	}
	return sg, nil
}

// GetSuggestion retrieves a suggestion by ID.
func (s *Store) GetSuggestion(ctx context.Context, id string) (*models.Suggestion, error) {
	row := s.db.QueryRowContext(ctx, s.rebind("SELECT "+suggestionColumns+" FROM suggestions WHERE id = ?"), id)
	sg, err := scanSuggestion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("suggestion %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get suggestion %s: %w", id, err)
	}
	return &sg, nil
}

// ListSuggestions returns suggestions most recent first.
func (s *Store) ListSuggestions(ctx context.Context, status *models.SuggestionStatus, limit int) ([]models.Suggestion, error) {
	query := "SELECT " + suggestionColumns + " FROM suggestions"
	var args []any
	if status != nil {
		query += " WHERE status = ?"
		args = append(args, string(*status))
	}
	query += " ORDER BY created_at_ns DESC, seq DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list suggestions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []models.Suggestion{}
	for rows.Next() {
		sg, err := scanSuggestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan suggestion: %w", err)
		}
		out = append(out, sg)
	}
	return out, rows.Err()
}

// TransitionSuggestion moves a pending suggestion to a terminal status with a
// single conditional UPDATE.
func (s *Store) TransitionSuggestion(ctx context.Context, id string, to models.SuggestionStatus, at time.Time) error {
	if err := store.ValidateTransition(models.StatusPending, to); err != nil {
		return fmt.Errorf("suggestion %s: %w", id, err)
	}
	res, err := s.db.ExecContext(ctx,
		s.rebind("UPDATE suggestions SET status = ?, decided_at_ns = ? WHERE id = ? AND status = ?"),
		string(to), at.UnixNano(), id, string(models.StatusPending))
	if err != nil {
		return fmt.Errorf("transition suggestion %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition suggestion %s: %w", id, err)
	}
	if n > 0 {
		return nil
	}
	if _, err := s.GetSuggestion(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("suggestion %s: %w", id, store.ErrNotPending)
}

// DeleteSuggestion removes a suggestion by ID.
func (s *Store) DeleteSuggestion(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM suggestions WHERE id = ?"), id)
	if err != nil {
		return false, fmt.Errorf("delete suggestion %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete suggestion %s: %w", id, err)
	}
	return n > 0, nil
}
