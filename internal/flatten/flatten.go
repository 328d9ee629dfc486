// Package flatten converts nested document content into the flat
// (path, value) pairs that are stored in the search index.
//
// Map keys are joined to their parent path with a dot. List elements append
// IndexSeparator followed by the element index, so "a.b@0" is the first element
// of the list under key "b" of map "a", and can never be confused with a map
// key named "0". Scalars are rendered as strings, nil as the literal "null".
//
// Map keys are visited in sorted order, so the output is fully deterministic.
package flatten

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	// PathSeparator joins a map key to its parent path
	PathSeparator = "."

	// IndexSeparator precedes a list index in a path
	IndexSeparator = "@"

	// NullValue is the rendering of a nil value
	NullValue = "null"
)

// Pair is a single flattened leaf.
type Pair struct {
	Path  string `json:"path"`
	Value string `json:"value"`
}

// Flatten walks value and returns its leaves in visiting order. prefix is the
// path of value itself; pass "" for a document root.
func Flatten(value any, prefix string) []Pair {
	var pairs []Pair
	walk(value, prefix, &pairs)
	return pairs
}

func walk(value any, prefix string, out *[]Pair) {
	switch v := value.(type) {
	case nil:
		*out = append(*out, Pair{Path: prefix, Value: NullValue})
	case map[string]any:
		walkMap(v, prefix, out)
	case primitive.M:
		walkMap(v, prefix, out)
	case primitive.D:
		for _, e := range v {
			walk(e.Value, joinKey(prefix, e.Key), out)
		}
	case []any:
		walkList(v, prefix, out)
	case primitive.A:
		walkList(v, prefix, out)
	case []byte:
		*out = append(*out, Pair{Path: prefix, Value: StringOf(v)})
	default:
		rv := reflect.ValueOf(value)
		switch rv.Kind() {
		case reflect.Map:
			if rv.Type().Key().Kind() == reflect.String {
				m := make(map[string]any, rv.Len())
				iter := rv.MapRange()
				for iter.Next() {
					m[iter.Key().String()] = iter.Value().Interface()
				}
				walkMap(m, prefix, out)
				return
			}
		case reflect.Slice, reflect.Array:
			if _, isOID := value.(primitive.ObjectID); !isOID {
				items := make([]any, rv.Len())
				for i := range items {
					items[i] = rv.Index(i).Interface()
				}
				walkList(items, prefix, out)
				return
			}
		case reflect.Pointer:
			if rv.IsNil() {
				walk(nil, prefix, out)
				return
			}
			walk(rv.Elem().Interface(), prefix, out)
			return
		default:
		}
		*out = append(*out, Pair{Path: prefix, Value: StringOf(value)})
	}
}

func walkMap(m map[string]any, prefix string, out *[]Pair) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		walk(m[k], joinKey(prefix, k), out)
	}
}

func walkList(items []any, prefix string, out *[]Pair) {
	for i, item := range items {
		walk(item, prefix+IndexSeparator+strconv.Itoa(i), out)
	}
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + PathSeparator + key
}

// StringOf renders a scalar the way it is indexed.
func StringOf(value any) string {
	switch v := value.(type) {
	case nil:
		return NullValue
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case primitive.ObjectID:
		return v.Hex()
	case primitive.DateTime:
		return v.Time().UTC().Format(time.RFC3339Nano)
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	case primitive.Decimal128:
		return v.String()
	case primitive.Timestamp:
		return strconv.FormatUint(uint64(v.T), 10)
	case primitive.Null, primitive.Undefined:
		return NullValue
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
