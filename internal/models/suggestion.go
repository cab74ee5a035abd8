package models

import "time"

// SuggestionStatus is the moderation state of a proposed entry.
type SuggestionStatus string

const (
	StatusPending  SuggestionStatus = "pending"
	StatusApproved SuggestionStatus = "approved"
	StatusRejected SuggestionStatus = "rejected"
)

// ValidSuggestionStatuses is the set of all valid suggestion statuses.
var ValidSuggestionStatuses = []SuggestionStatus{
	StatusPending,
	StatusApproved,
	StatusRejected,
}

// IsValid returns true if the status is recognized.
func (s SuggestionStatus) IsValid() bool {
	for _, v := range ValidSuggestionStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// IsTerminal returns true for approved and rejected.
func (s SuggestionStatus) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Author identifies who proposed a suggestion.
type Author struct {
	ID          string `json:"author_id"`
	DisplayName string `json:"author_display_name"`
}

// Suggestion is a user-proposed entry awaiting moderation.
type Suggestion struct {
	ID                string           `json:"id"`
	Entry             Entry            `json:"entry"`
	AuthorID          string           `json:"author_id"`
	AuthorDisplayName string           `json:"author_display_name"`
	CreatedAt         time.Time        `json:"created_at"`
	Status            SuggestionStatus `json:"status"`
	DecidedAt         *time.Time       `json:"decided_at,omitempty"`
}
