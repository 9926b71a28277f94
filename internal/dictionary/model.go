package dictionary

import (
	"encoding/json"
	"time"
)

// Meaning is a single sense of a dictionary entry.
type Meaning struct {
	Text         string   `json:"text"`
	RelatedTerms []string `json:"related_terms,omitempty"`
}

// SearchResult is one cleaned-up entry parsed from an upstream record.
type SearchResult struct {
	Word          string    `json:"word"`
	Pronunciation string    `json:"pronunciation"`
	Meanings      []Meaning `json:"meanings"`
	Examples      []string  `json:"examples"`
}

// Entry represents a persisted canonical dictionary API response.
type Entry struct {
	Word      string          `db:"word"`
	Variant   string          `db:"variant"`
	SourceURL string          `db:"source_url"`
	Response  json.RawMessage `db:"response"`
	CreatedAt time.Time       `db:"created_at"`
	UpdatedAt time.Time       `db:"updated_at"`
}
