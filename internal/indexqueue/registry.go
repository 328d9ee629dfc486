// Package indexqueue keeps one companion record per business id in the
// __IndexQueue__ collection of every tracked database. The record mirrors the
// synchronization progress of the primary document so pending work can be
// listed without scanning the primary collections.
package indexqueue

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/mongoadmin/indexsync/internal/clock"
	"github.com/mongoadmin/indexsync/internal/docstore"
)

const (
	// CollectionName is the queue collection created in every tracked database
	CollectionName = "__IndexQueue__"

	// CompoundIndexName is the name of the (status, updateVersion) index
	CompoundIndexName = "status_1_updateVersion_1"
)

// ErrNotFound is returned when neither a queue entry nor the primary document exists
var ErrNotFound = errors.New("queue entry not found")

// Status is the indexing progress recorded for an entry
type Status string

const (
	// StatusPending means the latest version still has to reach the search index
	StatusPending Status = "pending"
	// StatusIndexed means the search index holds the latest version
	StatusIndexed Status = "indexed"
	// StatusDeleting means the document is soft-deleted and the index delete is outstanding
	StatusDeleting Status = "deleting"
	// StatusPurged means the document was removed from both sides
	StatusPurged Status = "purged"
)

// Statuses lists every status in lifecycle order
var Statuses = []Status{StatusPending, StatusIndexed, StatusDeleting, StatusPurged}

// Entry is one queue record
type Entry struct {
	CustomID         string `bson:"_id" json:"customId"`
	Collection       string `bson:"collection" json:"collection"`
	StorageID        any    `bson:"storageId" json:"storageId"`
	Status           Status `bson:"status" json:"status"`
	UpdateVersion    int64  `bson:"updateVersion" json:"updateVersion"`
	IndexVersion     int64  `bson:"indexVersion" json:"indexVersion"`
	CreateAt         int64  `bson:"createAt" json:"createAt"`
	CreateAtTimeZone int64  `bson:"createAtTimeZone" json:"createAtTimeZone"`
	UpdateAt         int64  `bson:"updateAt" json:"updateAt"`
	UpdateAtTimeZone int64  `bson:"updateAtTimeZone" json:"updateAtTimeZone"`
}

// StatusOf maps a document's stored flags to a queue status
func StatusOf(doc *docstore.Document) Status {
	switch doc.State() {
	case docstore.StatePurged:
		return StatusPurged
	case docstore.StatePendingDelete, docstore.StateDeleting:
		return StatusDeleting
	case docstore.StateSynced:
		return StatusIndexed
	default:
		return StatusPending
	}
}

// Registry reads and writes queue entries
type Registry struct {
	provider docstore.Provider
	clock    clock.Clock
}

// NewRegistry creates a registry over the databases served by provider
func NewRegistry(provider docstore.Provider, clk clock.Clock) *Registry {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Registry{provider: provider, clock: clk}
}

func (r *Registry) queue(database string) (docstore.Collection, error) {
	coll, err := r.provider.Collection(database, CollectionName)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s/%s: %w", database, CollectionName, err)
	}
	return coll, nil
}

// Get returns the entry for customID, or ErrNotFound
func (r *Registry) Get(ctx context.Context, database, customID string) (*Entry, error) {
	queue, err := r.queue(database)
	if err != nil {
		return nil, err
	}
	raw, err := queue.FindOne(ctx, bson.M{"_id": customID})
	if err != nil {
		if errors.Is(err, docstore.ErrNoDocument) {
			return nil, fmt.Errorf("%s/%s: %w", database, customID, ErrNotFound)
		}
		return nil, err
	}
	return decodeEntry(raw)
}

// GetOrCreate returns the entry for customID. When there is none but the
// primary document identified by storageID exists, a pending entry is created
// for it.
func (r *Registry) GetOrCreate(ctx context.Context, database, collection, customID string, storageID any) (*Entry, error) {
	entry, err := r.Get(ctx, database, customID)
	if err == nil || !errors.Is(err, ErrNotFound) {
		return entry, err
	}

	primary, err := r.provider.Collection(database, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s/%s: %w", database, collection, err)
	}
	raw, err := primary.FindOne(ctx, bson.M{docstore.FieldID: storageID})
	if err != nil {
		if errors.Is(err, docstore.ErrNoDocument) {
			return nil, fmt.Errorf("%s/%s/%v: %w", database, collection, storageID, ErrNotFound)
		}
		return nil, err
	}
	doc := docstore.Decode(raw)

	now, tz := r.clock.NowMillis(), int64(r.clock.UTCOffsetHours())
	entry = &Entry{
		CustomID:         customID,
		Collection:       collection,
		StorageID:        storageID,
		Status:           StatusPending,
		UpdateVersion:    doc.UpdateVersion,
		IndexVersion:     doc.IndexVersion,
		CreateAt:         now,
		CreateAtTimeZone: tz,
		UpdateAt:         now,
		UpdateAtTimeZone: tz,
	}

	queue, err := r.queue(database)
	if err != nil {
		return nil, err
	}
	if _, err := queue.InsertOne(ctx, entry.bson()); err != nil {
		if errors.Is(err, docstore.ErrDuplicateKey) {
			// created concurrently
			return r.Get(ctx, database, customID)
		}
		return nil, fmt.Errorf("failed to create queue entry: %w", err)
	}
	return entry, nil
}

// Record mirrors the metadata of doc into its queue entry, creating the entry
// when it does not exist yet
func (r *Registry) Record(ctx context.Context, database, collection string, doc *docstore.Document) error {
	customID := doc.CustomID()
	if customID == "" {
		return nil
	}
	queue, err := r.queue(database)
	if err != nil {
		return err
	}

	now, tz := r.clock.NowMillis(), int64(r.clock.UTCOffsetHours())
	set := bson.M{
		"collection":       collection,
		"storageId":        doc.ID,
		"status":           string(StatusOf(doc)),
		"updateVersion":    doc.UpdateVersion,
		"indexVersion":     doc.IndexVersion,
		"updateAt":         now,
		"updateAtTimeZone": tz,
	}

	// an entry already carrying a newer updateVersion is left as is
	filter := bson.M{"_id": customID, "updateVersion": bson.M{"$lte": doc.UpdateVersion}}
	for attempt := 0; attempt < 2; attempt++ {
		res, err := queue.UpdateOne(ctx, filter, bson.M{"$set": set})
		if err != nil {
			return fmt.Errorf("failed to update queue entry %s: %w", customID, err)
		}
		if res.Matched > 0 {
			return nil
		}

		insert := bson.M{"_id": customID, "createAt": now, "createAtTimeZone": tz}
		for k, v := range set {
			insert[k] = v
		}
		_, err = queue.InsertOne(ctx, insert)
		if err == nil {
			return nil
		}
		if !errors.Is(err, docstore.ErrDuplicateKey) {
			return fmt.Errorf("failed to create queue entry %s: %w", customID, err)
		}
	}
	// both the update and the insert missed, so the entry is newer than doc
	return nil
}

// EnsureCompoundIndex creates the (status, updateVersion) index on the queue
// of database unless it already exists
func (r *Registry) EnsureCompoundIndex(ctx context.Context, database string) error {
	queue, err := r.queue(database)
	if err != nil {
		return err
	}
	names, err := queue.ListIndexNames(ctx)
	if err != nil {
		return fmt.Errorf("failed to list queue indexes: %w", err)
	}
	for _, name := range names {
		if name == CompoundIndexName {
			return nil
		}
	}
	keys := bson.D{{Key: "status", Value: 1}, {Key: "updateVersion", Value: 1}}
	if err := queue.CreateIndex(ctx, keys, CompoundIndexName); err != nil {
		return fmt.Errorf("failed to create queue index: %w", err)
	}
	return nil
}

// CountByStatus returns the number of entries per status in database
func (r *Registry) CountByStatus(ctx context.Context, database string) (map[Status]int64, error) {
	queue, err := r.queue(database)
	if err != nil {
		return nil, err
	}
	counts := make(map[Status]int64, len(Statuses))
	for _, status := range Statuses {
		n, err := queue.Count(ctx, bson.M{"status": string(status)})
		if err != nil {
			return nil, fmt.Errorf("failed to count %s entries: %w", status, err)
		}
		counts[status] = n
	}
	return counts, nil
}

// Pending visits the entries of database whose index write or index delete
// is still outstanding
func (r *Registry) Pending(ctx context.Context, database string, limit int64, fn func(*Entry) error) error {
	queue, err := r.queue(database)
	if err != nil {
		return err
	}
	return queue.Scan(ctx, bson.M{"status": bson.M{"$in": bson.A{string(StatusPending), string(StatusDeleting)}}}, limit,
		func(raw bson.M) error {
			entry, err := decodeEntry(raw)
			if err != nil {
				return err
			}
			return fn(entry)
		})
}

func (e *Entry) bson() bson.M {
	return bson.M{
		"_id":              e.CustomID,
		"collection":       e.Collection,
		"storageId":        e.StorageID,
		"status":           string(e.Status),
		"updateVersion":    e.UpdateVersion,
		"indexVersion":     e.IndexVersion,
		"createAt":         e.CreateAt,
		"createAtTimeZone": e.CreateAtTimeZone,
		"updateAt":         e.UpdateAt,
		"updateAtTimeZone": e.UpdateAtTimeZone,
	}
}

func decodeEntry(raw bson.M) (*Entry, error) {
	data, err := bson.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to encode queue entry: %w", err)
	}
	var entry Entry
	if err := bson.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode queue entry: %w", err)
	}
	return &entry, nil
}
