package models

// Entry is a stored ruling, keyed uniquely by its normalized key.
type Entry struct {
	Key       string   `json:"key" yaml:"key"`
	Title     string   `json:"title" yaml:"title"`
	Content   string   `json:"content" yaml:"content"`
	Tags      []string `json:"tags" yaml:"tags"`
	Archetype string   `json:"archetype,omitempty" yaml:"archetype,omitempty"`
	Format    string   `json:"format,omitempty" yaml:"format,omitempty"`
}

// Clone returns a copy of e that shares no mutable state with it.
func (e Entry) Clone() Entry {
	if e.Tags != nil {
		tags := make([]string, len(e.Tags))
		copy(tags, e.Tags)
		e.Tags = tags
	}
	return e
}

// RawEntry is an entry as it arrives from an admin edit, a seed file or a user
// proposal, before normalization. Nil pointers mark absent fields.
type RawEntry struct {
	Key       string  `json:"key" yaml:"key"`
	Title     *string `json:"title,omitempty" yaml:"title,omitempty"`
	Content   *string `json:"content,omitempty" yaml:"content,omitempty"`
	Tags      TagList `json:"tags,omitempty" yaml:"tags,omitempty"`
	Archetype *string `json:"archetype,omitempty" yaml:"archetype,omitempty"`
	// Category is accepted as an alias of Archetype.
	Category *string `json:"category,omitempty" yaml:"category,omitempty"`
	Format   *string `json:"format,omitempty" yaml:"format,omitempty"`
}

// EntryPatch carries the fields of a partial edit. Nil fields are left unchanged.
type EntryPatch struct {
	Title     *string  `json:"title,omitempty"`
	Content   *string  `json:"content,omitempty"`
	Tags      *TagList `json:"tags,omitempty"`
	Archetype *string  `json:"archetype,omitempty"`
	Format    *string  `json:"format,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p EntryPatch) IsEmpty() bool {
	return p.Title == nil && p.Content == nil && p.Tags == nil && p.Archetype == nil && p.Format == nil
}

// UsageStat is the lookup count recorded for one key.
type UsageStat struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// Stats holds summary statistics about the knowledge base.
type Stats struct {
	TotalEntries       int         `json:"total_entries"`
	PendingSuggestions int         `json:"pending_suggestions"`
	TopUsage           []UsageStat `json:"top_usage"`
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string { return &s }
