package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/mongoadmin/indexsync/internal/clock"
)

// PendingIndexName is the name of the supporting index on shouldUpdateIndex
const PendingIndexName = "shouldUpdateIndex_1"

// Store keeps the synchronization metadata of the documents in one collection.
// It never talks to the search index.
type Store struct {
	coll  Collection
	clock clock.Clock
}

// NewStore creates a store over coll.
func NewStore(coll Collection, clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Store{coll: coll, clock: clk}
}

// Get loads a document by a request identifier.
func (s *Store) Get(ctx context.Context, id string) (*Document, error) {
	raw, err := s.coll.FindOne(ctx, IDFilter(id))
	if err != nil {
		if errors.Is(err, ErrNoDocument) {
			return nil, fmt.Errorf("document %s: %w", id, ErrNoDocument)
		}
		return nil, err
	}
	return Decode(raw), nil
}

// GetByID loads a document by its stored _id value.
func (s *Store) GetByID(ctx context.Context, id any) (*Document, error) {
	raw, err := s.coll.FindOne(ctx, bson.M{FieldID: id})
	if err != nil {
		if errors.Is(err, ErrNoDocument) {
			return nil, fmt.Errorf("document %v: %w", id, ErrNoDocument)
		}
		return nil, err
	}
	return Decode(raw), nil
}

// EnsureMetadata fills every metadata field missing from doc with its default.
// A field is only written while it is still absent, so values recorded
// concurrently are never overwritten. Returns the document as now stored.
func (s *Store) EnsureMetadata(ctx context.Context, doc *Document) (*Document, error) {
	if len(doc.missing) == 0 {
		return doc, nil
	}

	defaults := map[string]any{
		FieldUpdateVersion:     int64(0),
		FieldIndexVersion:      int64(0),
		FieldIndexAt:           Unknown,
		FieldCreateAt:          Unknown,
		FieldCreateAtTimeZone:  Unknown,
		FieldUpdateAt:          Unknown,
		FieldUpdateAtTimeZone:  Unknown,
		FieldShouldUpdateIndex: true,
		FieldIsDeleted:         false,
		FieldIsIndexDeleted:    false,
	}

	for _, field := range doc.missing {
		value, ok := defaults[field]
		if !ok {
			continue
		}
		filter := bson.M{FieldID: doc.ID, field: bson.M{"$exists": false}}
		if _, err := s.coll.UpdateOne(ctx, filter, bson.M{"$set": bson.M{field: value}}); err != nil {
			return nil, fmt.Errorf("failed to initialize %s: %w", field, err)
		}
	}
	return s.GetByID(ctx, doc.ID)
}

// BumpVersion applies updates to the document content and records a new
// content version. Keys of updates are paths relative to the content root.
func (s *Store) BumpVersion(ctx context.Context, doc *Document, updates map[string]any) (*Document, error) {
	set := bson.M{}
	for path, value := range updates {
		if err := validatePath(path); err != nil {
			return nil, err
		}
		set[FieldContent+"."+path] = value
	}

	set[FieldUpdateAt] = s.clock.NowMillis()
	set[FieldUpdateAtTimeZone] = int64(s.clock.UTCOffsetHours())
	set[FieldShouldUpdateIndex] = true
	set[FieldIsDeleted] = false
	set[FieldIsIndexDeleted] = false
	s.initializeOnFirstWrite(doc, set)

	update := bson.M{
		"$set": set,
		"$inc": bson.M{FieldUpdateVersion: int64(1)},
	}
	res, err := s.coll.UpdateOne(ctx, bson.M{FieldID: doc.ID}, update)
	if err != nil {
		return nil, fmt.Errorf("failed to update document: %w", err)
	}
	if res.Matched == 0 {
		return nil, fmt.Errorf("document %v: %w", doc.ID, ErrNoDocument)
	}
	return s.GetByID(ctx, doc.ID)
}

// MarkDeleted records the intent to delete the document. The record stays in
// storage until the delete has also reached the search index.
func (s *Store) MarkDeleted(ctx context.Context, doc *Document) (*Document, error) {
	set := bson.M{
		FieldIsDeleted:         true,
		FieldIsIndexDeleted:    false,
		FieldShouldUpdateIndex: true,
		FieldUpdateAt:          s.clock.NowMillis(),
		FieldUpdateAtTimeZone:  int64(s.clock.UTCOffsetHours()),
	}
	s.initializeOnFirstWrite(doc, set)

	update := bson.M{
		"$set": set,
		"$inc": bson.M{FieldUpdateVersion: int64(1)},
	}
	res, err := s.coll.UpdateOne(ctx, bson.M{FieldID: doc.ID}, update)
	if err != nil {
		return nil, fmt.Errorf("failed to mark document deleted: %w", err)
	}
	if res.Matched == 0 {
		return nil, fmt.Errorf("document %v: %w", doc.ID, ErrNoDocument)
	}
	return s.GetByID(ctx, doc.ID)
}

// MarkIndexed records that version reached the search index. It only applies
// while the stored updateVersion still equals version and the index has not
// been confirmed yet; false means a newer write or a duplicate job won.
func (s *Store) MarkIndexed(ctx context.Context, id any, version, indexAt int64) (bool, error) {
	if indexAt == Unknown {
		indexAt = s.clock.NowMillis()
	}
	filter := bson.M{
		FieldID:            id,
		FieldUpdateVersion: version,
		FieldIsDeleted:     bson.M{"$ne": true},
		"$or": bson.A{
			bson.M{FieldIndexVersion: bson.M{"$lt": version}},
			bson.M{FieldShouldUpdateIndex: true},
		},
	}
	update := bson.M{"$set": bson.M{
		FieldIndexVersion:      version,
		FieldIndexAt:           indexAt,
		FieldShouldUpdateIndex: false,
	}}
	res, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to mark document indexed: %w", err)
	}
	return res.Matched > 0, nil
}

// MarkIndexDeleted records that the delete of version reached the search
// index. It only applies while the document is still deleted at that version.
func (s *Store) MarkIndexDeleted(ctx context.Context, id any, version int64) (bool, error) {
	filter := bson.M{
		FieldID:            id,
		FieldUpdateVersion: version,
		FieldIsDeleted:     true,
	}
	update := bson.M{"$set": bson.M{
		FieldIsIndexDeleted:    true,
		FieldIndexVersion:      version,
		FieldIndexAt:           s.clock.NowMillis(),
		FieldShouldUpdateIndex: false,
	}}
	res, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to mark index deleted: %w", err)
	}
	return res.Matched > 0, nil
}

// Purge physically removes the document once both delete flags are set.
func (s *Store) Purge(ctx context.Context, id any) (bool, error) {
	n, err := s.coll.DeleteOne(ctx, bson.M{
		FieldID:             id,
		FieldIsDeleted:      true,
		FieldIsIndexDeleted: true,
	})
	if err != nil {
		return false, fmt.Errorf("failed to purge document: %w", err)
	}
	return n > 0, nil
}

// Scan visits documents in storage order. With pendingOnly only documents
// flagged shouldUpdateIndex are visited; records that predate tracking have
// no flag at all and count as pending.
func (s *Store) Scan(ctx context.Context, pendingOnly bool, limit int64, fn func(*Document) error) error {
	filter := bson.M{}
	if pendingOnly {
		filter = pendingFilter()
	}
	return s.coll.Scan(ctx, filter, limit, func(raw bson.M) error {
		return fn(Decode(raw))
	})
}

// EnsurePendingIndex creates the index backing pending scans if it is missing.
func (s *Store) EnsurePendingIndex(ctx context.Context) error {
	names, err := s.coll.ListIndexNames(ctx)
	if err != nil {
		return fmt.Errorf("failed to list indexes: %w", err)
	}
	for _, name := range names {
		if name == PendingIndexName {
			return nil
		}
	}
	return s.coll.CreateIndex(ctx, bson.D{{Key: FieldShouldUpdateIndex, Value: 1}}, PendingIndexName)
}

// Counts summarizes the collection.
type Counts struct {
	Total   int64 `json:"total"`
	Pending int64 `json:"pending"`
	Deleted int64 `json:"deleted"`
}

// Count returns document totals for the collection.
func (s *Store) Count(ctx context.Context) (Counts, error) {
	var c Counts
	var err error
	if c.Total, err = s.coll.Count(ctx, bson.M{}); err != nil {
		return Counts{}, err
	}
	if c.Pending, err = s.coll.Count(ctx, pendingFilter()); err != nil {
		return Counts{}, err
	}
	if c.Deleted, err = s.coll.Count(ctx, bson.M{FieldIsDeleted: true}); err != nil {
		return Counts{}, err
	}
	return c, nil
}

func pendingFilter() bson.M {
	return bson.M{"$or": bson.A{
		bson.M{FieldShouldUpdateIndex: true},
		bson.M{FieldShouldUpdateIndex: bson.M{"$exists": false}},
	}}
}

// initializeOnFirstWrite adds defaults for metadata a first tracked write must set.
func (*Store) initializeOnFirstWrite(doc *Document, set bson.M) {
	for _, field := range doc.missing {
		switch field {
		case FieldCreateAt, FieldCreateAtTimeZone, FieldIndexAt:
			set[field] = Unknown
		case FieldIndexVersion:
			set[field] = int64(0)
		}
	}
}

// ErrInvalidPath is returned for update paths that would escape the content root
var ErrInvalidPath = errors.New("invalid update path")

func validatePath(path string) error {
	if path == "" || strings.HasPrefix(path, "$") || strings.HasPrefix(path, ".") ||
		strings.HasSuffix(path, ".") || strings.Contains(path, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	return nil
}
