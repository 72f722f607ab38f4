// Package domain holds the harvester's core types.
package domain

import "time"

// Candidate is a record produced by a source adapter before deduplication.
type Candidate struct {
	URL         string
	DisplayName string
	Size        *int64
	Metadata    map[string]string
}

// Meta returns a metadata value or "".
func (c Candidate) Meta(key string) string {
	if c.Metadata == nil {
		return ""
	}
	return c.Metadata[key]
}

// Record is a harvested item persisted by the record store.
type Record struct {
	ID          int64             `db:"id"           json:"id"`
	Source      string            `db:"source"       json:"source"`
	SourceURL   string            `db:"source_url"   json:"source_url"`
	Fingerprint string            `db:"fingerprint"  json:"fingerprint"`
	DisplayName string            `db:"display_name" json:"display_name"`
	Size        *int64            `db:"size"         json:"size,omitempty"`
	Metadata    map[string]string `db:"-"            json:"metadata,omitempty"`
	CreatedAt   time.Time         `db:"created_at"   json:"created_at"`
}

// NewRecord builds an unsaved record from a candidate.
func NewRecord(source string, c Candidate, fingerprint string) *Record {
	return &Record{
		Source:      source,
		SourceURL:   c.URL,
		Fingerprint: fingerprint,
		DisplayName: c.DisplayName,
		Size:        c.Size,
		Metadata:    c.Metadata,
	}
}

// InsertOutcome tags the result of an insert attempt.
type InsertOutcome int

const (
	// OutcomeInserted means a new row was created.
	OutcomeInserted InsertOutcome = iota
	// OutcomeAlreadyExists means a row with the same URL or fingerprint won the race.
	OutcomeAlreadyExists
)

func (o InsertOutcome) String() string {
	switch o {
	case OutcomeInserted:
		return "inserted"
	case OutcomeAlreadyExists:
		return "already_exists"
	default:
		return "unknown"
	}
}

// InsertResult is returned by the record store for every insert attempt.
type InsertResult struct {
	Outcome   InsertOutcome
	ID        int64
	CreatedAt time.Time
}

// SourceCount is the number of records stored for one source.
type SourceCount struct {
	Source string `db:"source" json:"source"`
	Count  int64  `db:"count"  json:"count"`
}
