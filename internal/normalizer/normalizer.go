// Package normalizer canonicalizes raw entries before they reach the store.
// Every write path (seeding, admin add/edit, proposals, approvals) goes through
// Normalize, so the store never holds an unnormalized key.
package normalizer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ajitpratap0/rulings/internal/models"
)

// ErrInvalidEntry is returned when a raw entry cannot be normalized into a valid Entry.
var ErrInvalidEntry = errors.New("invalid entry")

// Key folds s to lower case, trims it and collapses internal whitespace runs
// to a single space. Queries are normalized with the same rule.
func Key(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Fold is the folding applied to titles, tags, archetypes and formats.
func Fold(s string) string {
	return Key(s)
}

// Tags folds every tag, splits items on commas, drops empty values and
// duplicates, and keeps first-seen order.
func Tags(list []string) []string {
	out := make([]string, 0, len(list))
	seen := make(map[string]struct{}, len(list))
	for _, item := range list {
		for _, part := range strings.Split(item, ",") {
			tag := Fold(part)
			if tag == "" {
				continue
			}
			if _, dup := seen[tag]; dup {
				continue
			}
			seen[tag] = struct{}{}
			out = append(out, tag)
		}
	}
	return out
}

// Normalize turns raw into a well-formed Entry. It returns an error wrapping
// ErrInvalidEntry when the key is empty after normalization or content is absent.
func Normalize(raw models.RawEntry) (models.Entry, error) {
	key := Key(raw.Key)
	if key == "" {
		return models.Entry{}, fmt.Errorf("%w: key is empty", ErrInvalidEntry)
	}
	if raw.Content == nil {
		return models.Entry{}, fmt.Errorf("%w: content is missing for %q", ErrInvalidEntry, key)
	}

	title := key
	if raw.Title != nil {
		if t := strings.TrimSpace(*raw.Title); t != "" {
			title = t
		}
	}

	archetype := ""
	switch {
	case raw.Archetype != nil:
		archetype = Fold(*raw.Archetype)
	case raw.Category != nil:
		archetype = Fold(*raw.Category)
	}

	format := ""
	if raw.Format != nil {
		format = Fold(*raw.Format)
	}

	return models.Entry{
		Key:       key,
		Title:     title,
		Content:   *raw.Content,
		Tags:      Tags(raw.Tags),
		Archetype: archetype,
		Format:    format,
	}, nil
}

// FromEntry converts a stored entry back into raw form with every field present.
func FromEntry(e models.Entry) models.RawEntry {
	tags := make(models.TagList, len(e.Tags))
	copy(tags, e.Tags)
	raw := models.RawEntry{
		Key:     e.Key,
		Title:   models.StringPtr(e.Title),
		Content: models.StringPtr(e.Content),
		Tags:    tags,
	}
	if e.Archetype != "" {
		raw.Archetype = models.StringPtr(e.Archetype)
	}
	if e.Format != "" {
		raw.Format = models.StringPtr(e.Format)
	}
	return raw
}

// Apply merges the supplied fields of patch into existing and normalizes the result.
// The key is never changed by a patch.
func Apply(existing models.Entry, patch models.EntryPatch) (models.Entry, error) {
	raw := FromEntry(existing)
	if patch.Title != nil {
		raw.Title = patch.Title
	}
	if patch.Content != nil {
		raw.Content = patch.Content
	}
	if patch.Tags != nil {
		raw.Tags = *patch.Tags
	}
	if patch.Archetype != nil {
		raw.Archetype = patch.Archetype
	}
	if patch.Format != nil {
		raw.Format = patch.Format
	}
	return Normalize(raw)
}
