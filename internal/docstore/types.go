package docstore

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Unknown marks a timestamp or time zone that has never been recorded.
const Unknown int64 = -1

// Metadata field names stored next to the content of every tracked document.
const (
	FieldID                = "_id"
	FieldContent           = "content"
	FieldCustomID          = "customId"
	FieldUpdateVersion     = "updateVersion"
	FieldIndexVersion      = "indexVersion"
	FieldIndexAt           = "indexAt"
	FieldCreateAt          = "createAt"
	FieldCreateAtTimeZone  = "createAtTimeZone"
	FieldUpdateAt          = "updateAt"
	FieldUpdateAtTimeZone  = "updateAtTimeZone"
	FieldShouldUpdateIndex = "shouldUpdateIndex"
	FieldIsDeleted         = "isDeleted"
	FieldIsIndexDeleted    = "isIndexDeleted"
)

// State is the position of a document in the index synchronization lifecycle.
type State string

const (
	// StateUntracked means the document has never been mutated through the store
	StateUntracked State = "Untracked"
	// StatePendingIndex means a content change has not reached the search index yet
	StatePendingIndex State = "PendingIndex"
	// StateIndexing means an indexing job currently holds the document
	StateIndexing State = "Indexing"
	// StateSynced means the search index holds the latest version
	StateSynced State = "Synced"
	// StatePendingDelete means the document is soft-deleted but still indexed
	StatePendingDelete State = "PendingDelete"
	// StateDeleting means a delete job currently holds the document
	StateDeleting State = "Deleting"
	// StatePurged means both delete flags are set and the record is due for removal
	StatePurged State = "Purged"
)

// Document is a tracked document with its synchronization metadata decoded.
type Document struct {
	ID                any    `json:"id"`
	Content           bson.M `json:"content"`
	UpdateVersion     int64  `json:"updateVersion"`
	IndexVersion      int64  `json:"indexVersion"`
	IndexAt           int64  `json:"indexAt"`
	CreateAt          int64  `json:"createAt"`
	CreateAtTimeZone  int64  `json:"createAtTimeZone"`
	UpdateAt          int64  `json:"updateAt"`
	UpdateAtTimeZone  int64  `json:"updateAtTimeZone"`
	ShouldUpdateIndex bool   `json:"shouldUpdateIndex"`
	IsDeleted         bool   `json:"isDeleted"`
	IsIndexDeleted    bool   `json:"isIndexDeleted"`

	// missing lists metadata fields absent from the stored record
	missing []string
}

// Decode converts a raw stored record into a Document. Absent metadata fields
// take their documented defaults and are remembered as missing.
func Decode(raw bson.M) *Document {
	d := &Document{ID: raw[FieldID]}

	switch c := raw[FieldContent].(type) {
	case bson.M:
		d.Content = c
	case map[string]any:
		d.Content = bson.M(c)
	case bson.D:
		d.Content = c.Map()
	default:
		d.Content = bson.M{}
	}

	intField := func(name string, def int64) int64 {
		if v, ok := asInt64(raw[name]); ok {
			return v
		}
		d.missing = append(d.missing, name)
		return def
	}
	boolField := func(name string, def bool) bool {
		if v, ok := raw[name].(bool); ok {
			return v
		}
		d.missing = append(d.missing, name)
		return def
	}

	d.UpdateVersion = intField(FieldUpdateVersion, 0)
	d.IndexVersion = intField(FieldIndexVersion, 0)
	d.IndexAt = intField(FieldIndexAt, Unknown)
	d.CreateAt = intField(FieldCreateAt, Unknown)
	d.CreateAtTimeZone = intField(FieldCreateAtTimeZone, Unknown)
	d.UpdateAt = intField(FieldUpdateAt, Unknown)
	d.UpdateAtTimeZone = intField(FieldUpdateAtTimeZone, Unknown)
	d.ShouldUpdateIndex = boolField(FieldShouldUpdateIndex, true)
	d.IsDeleted = boolField(FieldIsDeleted, false)
	d.IsIndexDeleted = boolField(FieldIsIndexDeleted, false)
	return d
}

// Missing returns the metadata fields absent from the stored record.
func (d *Document) Missing() []string {
	return append([]string(nil), d.missing...)
}

// CustomID returns the business identifier stored in the content, or "" when
// it has not been populated yet.
func (d *Document) CustomID() string {
	v, ok := d.Content[FieldCustomID]
	if !ok || v == nil {
		return ""
	}
	switch id := v.(type) {
	case string:
		return id
	case primitive.ObjectID:
		return id.Hex()
	default:
		return fmt.Sprint(id)
	}
}

// State derives the lifecycle state from the stored flags. In-flight states
// (Indexing, Deleting) cannot be observed from storage alone.
func (d *Document) State() State {
	switch {
	case d.IsDeleted && d.IsIndexDeleted:
		return StatePurged
	case d.IsDeleted:
		return StatePendingDelete
	case d.UpdateVersion == 0 && d.IndexAt == Unknown:
		return StateUntracked
	case d.ShouldUpdateIndex || d.IndexVersion < d.UpdateVersion:
		return StatePendingIndex
	default:
		return StateSynced
	}
}

// ParseID interprets an identifier from a request. A 24 hex character string
// may refer to an ObjectID or to a plain string id, so both are returned.
func ParseID(id string) []any {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return []any{oid, id}
	}
	return []any{id}
}

// IDFilter matches a document by a request identifier.
func IDFilter(id string) bson.M {
	candidates := ParseID(id)
	if len(candidates) == 1 {
		return bson.M{FieldID: candidates[0]}
	}
	return bson.M{FieldID: bson.M{"$in": bson.A{candidates[0], candidates[1]}}}
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	case float32:
		return int64(n), true
	default:
		return 0, false
	}
}
