// Package boltstore implements store.Store on bbolt, an embedded B+ tree.
// Entries, usage counters and suggestions live in three top-level buckets
// holding JSON values. Writes are transactional, and List returns entries in
// key order because that is the bucket's native iteration order.
package boltstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/ajitpratap0/rulings/internal/models"
	"github.com/ajitpratap0/rulings/internal/store"
)

// Bucket keys
var (
	bucketEntries     = []byte("entries")
	bucketUsage       = []byte("usage")
	bucketSuggestions = []byte("suggestions")
)

// Store implements store.Store backed by bbolt.
type Store struct {
	db *bolt.DB
}

var _ store.Store = (*Store)(nil)

// suggestionRecord carries the insertion sequence used to break CreatedAt ties.
type suggestionRecord struct {
	Seq        uint64            `json:"seq"`
	Suggestion models.Suggestion `json:"suggestion"`
}

// Open opens (or creates) a bbolt database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("bbolt open: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketEntries, bucketUsage, bucketSuggestions} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying bbolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

func decodeEntry(v []byte) (models.Entry, error) {
	var e models.Entry
	if err := json.Unmarshal(v, &e); err != nil {
		return e, fmt.Errorf("unmarshal entry: %w", err)
	}
	if e.Tags == nil {
		e.Tags = []string{}
	}
	return e, nil
}

// List returns every entry in key order.
func (s *Store) List(_ context.Context) ([]models.Entry, error) {
	out := []models.Entry{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEntries).ForEach(func(_, v []byte) error {
			// json.Unmarshal copies, so the entry outlives the transaction.
			e, err := decodeEntry(v)
			if err != nil {
				return err
			}
			out = append(out, e)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return out, nil
}

// Get retrieves a single entry by key.
func (s *Store) Get(_ context.Context, key string) (*models.Entry, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketEntries).Get([]byte(key)); v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get entry %q: %w", key, err)
	}
	if data == nil {
		return nil, fmt.Errorf("entry %q: %w", key, store.ErrNotFound)
	}
	e, err := decodeEntry(data)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Upsert inserts or fully replaces an entry.
func (s *Store) Upsert(_ context.Context, e models.Entry) (store.UpsertResult, error) {
	if e.Key == "" {
		return 0, fmt.Errorf("upsert: empty key")
	}
	if e.Tags == nil {
		e.Tags = []string{}
	}
	data, err := json.Marshal(e)
	if err != nil {
		return 0, fmt.Errorf("marshal entry: %w", err)
	}

	result := store.Inserted
	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		if b.Get([]byte(e.Key)) != nil {
			result = store.Updated
		}
		return b.Put([]byte(e.Key), data)
	})
	if err != nil {
		return 0, fmt.Errorf("upsert %q: %w", e.Key, err)
	}
	return result, nil
}

// Delete removes an entry by key.
func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	existed := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		if b.Get([]byte(key)) == nil {
			return nil
		}
		existed = true
		return b.Delete([]byte(key))
	})
	if err != nil {
		return false, fmt.Errorf("delete %q: %w", key, err)
	}
	return existed, nil
}

// Count returns the number of entries.
func (s *Store) Count(_ context.Context) (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketEntries).Stats().KeyN
		return nil
	})
	return n, err
}

// Filter scans the entries bucket and applies f.
func (s *Store) Filter(ctx context.Context, f *store.Filters) ([]models.Entry, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, e := range all {
		if f.Matches(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

func encodeCount(n uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, n)
	return buf
}

func decodeCount(v []byte) uint64 {
	if len(v) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(v)
}

// IncrementUsage adds one to the counter of key.
func (s *Store) IncrementUsage(_ context.Context, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketUsage)
		return b.Put([]byte(key), encodeCount(decodeCount(b.Get([]byte(key)))+1))
	})
}

// Usage returns the counter of key.
func (s *Store) Usage(_ context.Context, key string) (int64, error) {
	var n uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		n = decodeCount(tx.Bucket(bucketUsage).Get([]byte(key)))
		return nil
	})
	return int64(n), err
}

// TopUsage returns the n most used keys.
func (s *Store) TopUsage(_ context.Context, n int) ([]models.UsageStat, error) {
	stats := []models.UsageStat{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketUsage).ForEach(func(k, v []byte) error {
			stats = append(stats, models.UsageStat{Key: string(k), Count: int64(decodeCount(v))})
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("top usage: %w", err)
	}
	store.SortUsage(stats)
	if n > 0 && len(stats) > n {
		stats = stats[:n]
	}
	return stats, nil
}

// AddSuggestion stores a suggestion.
func (s *Store) AddSuggestion(_ context.Context, sg models.Suggestion) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSuggestions)
		if b.Get([]byte(sg.ID)) != nil {
			return fmt.Errorf("suggestion %s already exists", sg.ID)
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		data, err := json.Marshal(suggestionRecord{Seq: seq, Suggestion: sg})
		if err != nil {
			return fmt.Errorf("marshal suggestion: %w", err)
		}
		return b.Put([]byte(sg.ID), data)
	})
}

func decodeSuggestion(v []byte) (suggestionRecord, error) {
	var rec suggestionRecord
	if err := json.Unmarshal(v, &rec); err != nil {
		return rec, fmt.Errorf("unmarshal suggestion: %w", err)
	}
	if rec.Suggestion.Entry.Tags == nil {
		rec.Suggestion.Entry.Tags = []string{}
	}
	return rec, nil
}

// GetSuggestion retrieves a suggestion by ID.
func (s *Store) GetSuggestion(_ context.Context, id string) (*models.Suggestion, error) {
	var rec *suggestionRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketSuggestions).Get([]byte(id))
		if v == nil {
			return nil
		}
		r, err := decodeSuggestion(v)
		if err != nil {
			return err
		}
		rec = &r
		return nil
	})
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("suggestion %s: %w", id, store.ErrNotFound)
	}
	return &rec.Suggestion, nil
}

// ListSuggestions returns suggestions most recent first.
func (s *Store) ListSuggestions(_ context.Context, status *models.SuggestionStatus, limit int) ([]models.Suggestion, error) {
	var recs []suggestionRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSuggestions).ForEach(func(_, v []byte) error {
			rec, err := decodeSuggestion(v)
			if err != nil {
				return err
			}
			if status == nil || rec.Suggestion.Status == *status {
				recs = append(recs, rec)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list suggestions: %w", err)
	}

	sort.Slice(recs, func(i, j int) bool {
		ci, cj := recs[i].Suggestion.CreatedAt, recs[j].Suggestion.CreatedAt
		if !ci.Equal(cj) {
			return ci.After(cj)
		}
		return recs[i].Seq > recs[j].Seq
	})
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}

	out := make([]models.Suggestion, len(recs))
	for i := range recs {
		out[i] = recs[i].Suggestion
	}
	return out, nil
}

// TransitionSuggestion moves a pending suggestion to a terminal status inside
// one write transaction.
func (s *Store) TransitionSuggestion(_ context.Context, id string, to models.SuggestionStatus, at time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSuggestions)
		v := b.Get([]byte(id))
		if v == nil {
			return fmt.Errorf("suggestion %s: %w", id, store.ErrNotFound)
		}
		rec, err := decodeSuggestion(v)
		if err != nil {
			return err
		}
		if err := store.ValidateTransition(rec.Suggestion.Status, to); err != nil {
			return fmt.Errorf("suggestion %s: %w", id, err)
		}
		decided := at.UTC()
		rec.Suggestion.Status = to
		rec.Suggestion.DecidedAt = &decided
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal suggestion: %w", err)
		}
		return b.Put([]byte(id), data)
	})
}

// DeleteSuggestion removes a suggestion by ID.
func (s *Store) DeleteSuggestion(_ context.Context, id string) (bool, error) {
	existed := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSuggestions)
		if b.Get([]byte(id)) == nil {
			return nil
		}
		existed = true
		return b.Delete([]byte(id))
	})
	if err != nil {
		return false, fmt.Errorf("delete suggestion %s: %w", id, err)
	}
	return existed, nil
}
