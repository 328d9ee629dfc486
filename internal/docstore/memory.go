package docstore

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryProvider keeps collections in process memory. It evaluates the subset
// of the MongoDB query language the store emits: equality, $eq, $ne, $lt,
// $lte, $gt, $gte, $in, $exists, $or and $and filters, and $set, $inc and
// $unset updates.
type MemoryProvider struct {
	mu          sync.Mutex
	collections map[string]*MemoryCollection
}

// NewMemoryProvider returns an empty in-memory provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{collections: make(map[string]*MemoryCollection)}
}

// Collection returns the named collection, creating it on first use.
func (p *MemoryProvider) Collection(database, collection string) (Collection, error) {
	return p.Memory(database, collection), nil
}

// Memory is Collection with the concrete type, for tests that seed data.
func (p *MemoryProvider) Memory(database, collection string) *MemoryCollection {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := database + "/" + collection
	c, ok := p.collections[key]
	if !ok {
		c = NewMemoryCollection()
		p.collections[key] = c
	}
	return c
}

// MemoryCollection is an in-memory Collection.
type MemoryCollection struct {
	mu      sync.Mutex
	order   []string
	docs    map[string]bson.M
	indexes []string
}

// NewMemoryCollection returns an empty collection.
func NewMemoryCollection() *MemoryCollection {
	return &MemoryCollection{
		docs:    make(map[string]bson.M),
		indexes: []string{"_id_"},
	}
}

func idKey(id any) string {
	if oid, ok := id.(primitive.ObjectID); ok {
		return "oid:" + oid.Hex()
	}
	return fmt.Sprintf("%T:%v", id, id)
}

// FindOne returns a copy of the first matching document
func (c *MemoryCollection) FindOne(_ context.Context, filter bson.M) (bson.M, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range c.order {
		doc := c.docs[key]
		ok, err := matches(doc, filter)
		if err != nil {
			return nil, err
		}
		if ok {
			return copyValue(doc).(bson.M), nil
		}
	}
	return nil, ErrNoDocument
}

// UpdateOne applies update to the first matching document
func (c *MemoryCollection) UpdateOne(_ context.Context, filter bson.M, update bson.M) (UpdateResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range c.order {
		doc := c.docs[key]
		ok, err := matches(doc, filter)
		if err != nil {
			return UpdateResult{}, err
		}
		if !ok {
			continue
		}
		updated := copyValue(doc).(bson.M)
		if err := applyUpdate(updated, update); err != nil {
			return UpdateResult{}, err
		}
		res := UpdateResult{Matched: 1}
		if !reflect.DeepEqual(doc, updated) {
			res.Modified = 1
			c.docs[key] = updated
		}
		return res, nil
	}
	return UpdateResult{}, nil
}

// InsertOne stores a copy of doc, assigning an ObjectID when _id is absent
func (c *MemoryCollection) InsertOne(_ context.Context, doc bson.M) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stored := copyValue(doc).(bson.M)
	id, ok := stored[FieldID]
	if !ok || id == nil {
		id = primitive.NewObjectID()
		stored[FieldID] = id
	}
	key := idKey(id)
	if _, exists := c.docs[key]; exists {
		return nil, fmt.Errorf("%w: _id %v", ErrDuplicateKey, id)
	}
	c.docs[key] = stored
	c.order = append(c.order, key)
	return id, nil
}

// DeleteOne removes the first matching document
func (c *MemoryCollection) DeleteOne(_ context.Context, filter bson.M) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, key := range c.order {
		ok, err := matches(c.docs[key], filter)
		if err != nil {
			return 0, err
		}
		if ok {
			delete(c.docs, key)
			c.order = append(c.order[:i:i], c.order[i+1:]...)
			return 1, nil
		}
	}
	return 0, nil
}

// CreateIndex records the index name; creating an existing name is a no-op
func (c *MemoryCollection) CreateIndex(_ context.Context, _ bson.D, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.indexes {
		if existing == name {
			return nil
		}
	}
	c.indexes = append(c.indexes, name)
	return nil
}

// ListIndexNames returns the recorded index names
func (c *MemoryCollection) ListIndexNames(_ context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.indexes...), nil
}

// Count returns the number of matching documents
func (c *MemoryCollection) Count(_ context.Context, filter bson.M) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int64
	for _, key := range c.order {
		ok, err := matches(c.docs[key], filter)
		if err != nil {
			return 0, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

// Scan visits a snapshot of the matching documents in insertion order
func (c *MemoryCollection) Scan(ctx context.Context, filter bson.M, limit int64, fn func(bson.M) error) error {
	c.mu.Lock()
	var snapshot []bson.M
	for _, key := range c.order {
		ok, err := matches(c.docs[key], filter)
		if err != nil {
			c.mu.Unlock()
			return err
		}
		if ok {
			snapshot = append(snapshot, copyValue(c.docs[key]).(bson.M))
			if limit > 0 && int64(len(snapshot)) >= limit {
				break
			}
		}
	}
	c.mu.Unlock()

	for _, doc := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
	return nil
}

func matches(doc bson.M, filter bson.M) (bool, error) {
	for key, cond := range filter {
		switch key {
		case "$or", "$and":
			clauses, err := asClauses(cond)
			if err != nil {
				return false, err
			}
			anyMatch, allMatch := false, true
			for _, clause := range clauses {
				ok, err := matches(doc, clause)
				if err != nil {
					return false, err
				}
				anyMatch = anyMatch || ok
				allMatch = allMatch && ok
			}
			if key == "$or" && !anyMatch {
				return false, nil
			}
			if key == "$and" && !allMatch {
				return false, nil
			}
			continue
		}

		value, exists := lookup(doc, key)
		if ops, ok := operatorMap(cond); ok {
			for op, arg := range ops {
				ok, err := evalOperator(op, value, exists, arg)
				if err != nil {
					return false, err
				}
				if !ok {
					return false, nil
				}
			}
			continue
		}
		if cond == nil {
			if exists && value != nil {
				return false, nil
			}
			continue
		}
		if !exists || !equal(value, cond) {
			return false, nil
		}
	}
	return true, nil
}

func asClauses(v any) ([]bson.M, error) {
	var items []any
	switch c := v.(type) {
	case bson.A:
		items = c
	case []any:
		items = c
	case []bson.M:
		return c, nil
	default:
		return nil, fmt.Errorf("logical operator expects an array, got %T", v)
	}
	clauses := make([]bson.M, 0, len(items))
	for _, item := range items {
		m, ok := item.(bson.M)
		if !ok {
			return nil, fmt.Errorf("logical operator clause must be a document, got %T", item)
		}
		clauses = append(clauses, m)
	}
	return clauses, nil
}

func operatorMap(cond any) (bson.M, bool) {
	m, ok := cond.(bson.M)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

func evalOperator(op string, value any, exists bool, arg any) (bool, error) {
	switch op {
	case "$eq":
		if arg == nil {
			return !exists || value == nil, nil
		}
		return exists && equal(value, arg), nil
	case "$ne":
		if arg == nil {
			return exists && value != nil, nil
		}
		return !exists || !equal(value, arg), nil
	case "$exists":
		want, _ := arg.(bool)
		return exists == want, nil
	case "$in":
		items, ok := arg.(bson.A)
		if !ok {
			plain, isSlice := arg.([]any)
			if !isSlice {
				return false, fmt.Errorf("$in expects an array, got %T", arg)
			}
			items = plain
		}
		if !exists {
			return false, nil
		}
		for _, item := range items {
			if equal(value, item) {
				return true, nil
			}
		}
		return false, nil
	case "$lt", "$lte", "$gt", "$gte":
		if !exists {
			return false, nil
		}
		a, okA := toFloat(value)
		b, okB := toFloat(arg)
		if !okA || !okB {
			return false, nil
		}
		switch op {
		case "$lt":
			return a < b, nil
		case "$lte":
			return a <= b, nil
		case "$gt":
			return a > b, nil
		default:
			return a >= b, nil
		}
	default:
		return false, fmt.Errorf("unsupported query operator %s", op)
	}
}

func applyUpdate(doc bson.M, update bson.M) error {
	for op, arg := range update {
		fields, ok := arg.(bson.M)
		if !ok {
			return fmt.Errorf("update operator %s expects a document, got %T", op, arg)
		}
		switch op {
		case "$set":
			for path, v := range fields {
				setPath(doc, path, copyValue(v))
			}
		case "$unset":
			for path := range fields {
				unsetPath(doc, path)
			}
		case "$inc":
			for path, delta := range fields {
				current, _ := lookup(doc, path)
				sum, err := addNumbers(current, delta)
				if err != nil {
					return fmt.Errorf("$inc %s: %w", path, err)
				}
				setPath(doc, path, sum)
			}
		default:
			return fmt.Errorf("unsupported update operator %s", op)
		}
	}
	return nil
}

func lookup(doc bson.M, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var current any = doc
	for _, part := range parts {
		m, ok := asMap(current)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func setPath(doc bson.M, path string, value any) {
	parts := strings.Split(path, ".")
	m := doc
	for _, part := range parts[:len(parts)-1] {
		next, ok := asMap(m[part])
		if !ok {
			next = bson.M{}
			m[part] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = value
}

func unsetPath(doc bson.M, path string) {
	parts := strings.Split(path, ".")
	m := doc
	for _, part := range parts[:len(parts)-1] {
		next, ok := asMap(m[part])
		if !ok {
			return
		}
		m = next
	}
	delete(m, parts[len(parts)-1])
}

func asMap(v any) (bson.M, bool) {
	switch m := v.(type) {
	case bson.M:
		return m, true
	case map[string]any:
		return bson.M(m), true
	default:
		return nil, false
	}
}

func addNumbers(current, delta any) (any, error) {
	if current == nil {
		current = int64(0)
	}
	ci, cInt := asInt(current)
	di, dInt := asInt(delta)
	if cInt && dInt {
		return ci + di, nil
	}
	cf, okC := toFloat(current)
	df, okD := toFloat(delta)
	if !okC || !okD {
		return nil, fmt.Errorf("cannot add %T and %T", current, delta)
	}
	return cf + df, nil
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	default:
		return 0, false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func equal(a, b any) bool {
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	if okA && okB {
		return fa == fb
	}
	return reflect.DeepEqual(normalize(a), normalize(b))
}

func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return bson.M(t)
	case []any:
		return bson.A(t)
	default:
		return v
	}
}

func copyValue(v any) any {
	switch t := v.(type) {
	case bson.M:
		out := make(bson.M, len(t))
		for k, item := range t {
			out[k] = copyValue(item)
		}
		return out
	case map[string]any:
		out := make(bson.M, len(t))
		for k, item := range t {
			out[k] = copyValue(item)
		}
		return out
	case bson.A:
		out := make(bson.A, len(t))
		for i, item := range t {
			out[i] = copyValue(item)
		}
		return out
	case []any:
		out := make(bson.A, len(t))
		for i, item := range t {
			out[i] = copyValue(item)
		}
		return out
	case bson.D:
		out := make(bson.D, len(t))
		for i, e := range t {
			out[i] = bson.E{Key: e.Key, Value: copyValue(e.Value)}
		}
		return out
	default:
		return v
	}
}
