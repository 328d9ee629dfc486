// Package search writes flattened documents to an Elasticsearch index with
// version checks, and reads them back for counts and highlighted search.
package search

import (
	"errors"

	"github.com/mongoadmin/indexsync/internal/flatten"
)

var (
	// ErrVersionConflict is returned when the engine rejects a conditional write
	// because the document changed after it was read
	ErrVersionConflict = errors.New("search index version conflict")

	// ErrIndexNotFound is returned when the target index does not exist
	ErrIndexNotFound = errors.New("search index not found")

	// ErrUnavailable is returned when the engine cannot be reached or fails
	ErrUnavailable = errors.New("search engine unavailable")

	// ErrInvalidQuery is returned for a search request that cannot be run
	ErrInvalidQuery = errors.New("invalid search query")
)

// Outcome describes what a write did
type Outcome string

const (
	// OutcomeWritten means the document was stored
	OutcomeWritten Outcome = "written"
	// OutcomeStale means the index already holds a newer version; nothing was written
	OutcomeStale Outcome = "stale"
	// OutcomeCurrent means the index already holds this version; nothing was written
	OutcomeCurrent Outcome = "current"
	// OutcomeDeleted means the document was removed
	OutcomeDeleted Outcome = "deleted"
	// OutcomeNotFound means there was nothing to delete
	OutcomeNotFound Outcome = "not_found"
	// OutcomeConflict means a concurrent change won and the delete was abandoned
	OutcomeConflict Outcome = "conflict"
)

// Source identifies the collection a document came from
type Source struct {
	DBName   string `json:"dbName"`
	CollName string `json:"collName"`
}

// UpsertRequest carries one document version to index
type UpsertRequest struct {
	Index            string
	CustomID         string
	Source           Source
	Flat             []flatten.Pair
	UpdateVersion    int64
	UpdateAt         int64
	UpdateAtTimeZone int64

	// ForceReindex skips the read of the stored version and overwrites
	ForceReindex bool
}

// Document is the body stored in the index for every tracked document
type Document struct {
	Flat             []flatten.Pair `json:"flat"`
	UpdateVersion    int64          `json:"updateVersion"`
	UpdateAt         int64          `json:"updateAt"`
	UpdateAtTimeZone int64          `json:"updateAtTimeZone"`
	Source           Source         `json:"source"`
}

// IndexedDocument is a stored document with its concurrency token
type IndexedDocument struct {
	ID            string `json:"id"`
	SeqNo         int64  `json:"seqNo"`
	PrimaryTerm   int64  `json:"primaryTerm"`
	UpdateVersion int64  `json:"updateVersion"`
	Source        Source `json:"source"`
}

// Field names a searchable part of a flattened pair
const (
	FieldValue = "value"
	FieldPath  = "path"
)

// SearchRequest is a phrase query over flattened pairs
type SearchRequest struct {
	Query string `json:"query"`

	// Fields lists the pair parts to match: "value" (default) and/or "path"
	Fields []string `json:"fields,omitempty"`

	// Page is zero-based
	Page     int `json:"page,omitempty"`
	PageSize int `json:"pageSize,omitempty"`

	// Source restricts results to one collection when set
	Source *Source `json:"source,omitempty"`
}

// Offset is a zero-based [start, end) character range in the original text
type Offset [2]int

// Match is one highlighted pair of a hit
type Match struct {
	Path    string   `json:"path"`
	Value   string   `json:"value"`
	Field   string   `json:"field"`
	Offsets []Offset `json:"offsets"`
}

// Hit is one matching document
type Hit struct {
	ID               string  `json:"id"`
	Score            float64 `json:"score"`
	UpdateVersion    int64   `json:"updateVersion"`
	UpdateAt         int64   `json:"updateAt"`
	UpdateAtTimeZone int64   `json:"updateAtTimeZone"`
	Source           Source  `json:"source"`
	Matches          []Match `json:"matches"`
}

// SearchResult is one page of hits
type SearchResult struct {
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Hits     []Hit `json:"hits"`
}
