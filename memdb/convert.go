package memdb

import (
	"encoding/base64"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/vinicius-lino-figueiredo/gedb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// bson types without a gedb counterpart are stored as tagged strings. The NUL
// prefix keeps them apart from user strings while equality and ordering among
// values of one type still hold.
const (
	objectIDPrefix = "\x00oid:"
	binaryPrefix   = "\x00bin:"
)

// encode converts a bson value into the plain maps, slices and scalars gedb
// stores. Numbers become float64.
func encode(v interface{}) interface{} {
	switch t := v.(type) {
	case nil, bool, string, time.Time:
		return t
	case primitive.ObjectID:
		return objectIDPrefix + t.Hex()
	case primitive.DateTime:
		return t.Time()
	case primitive.Binary:
		return binaryPrefix + base64.StdEncoding.EncodeToString(t.Data)
	case []byte:
		return binaryPrefix + base64.StdEncoding.EncodeToString(t)
	case bson.M:
		return encodeDoc(t)
	case map[string]interface{}:
		return encodeDoc(t)
	case bson.D:
		out := make(map[string]interface{}, len(t))
		for _, e := range t {
			out[e.Key] = encode(e.Value)
		}
		return out
	}

	if f, ok := toFloat(v); ok {
		return f
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]interface{}, rv.Len())
		for i := range out {
			out[i] = encode(rv.Index(i).Interface())
		}
		return out
	}

	return v
}

func encodeDoc(doc map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		out[k] = encode(v)
	}

	return out
}

// decode reverses encode. Integral numbers come back as int64.
func decode(v interface{}) interface{} {
	switch t := v.(type) {
	case string:
		switch {
		case strings.HasPrefix(t, objectIDPrefix):
			if id, err := primitive.ObjectIDFromHex(strings.TrimPrefix(t, objectIDPrefix)); err == nil {
				return id
			}
		case strings.HasPrefix(t, binaryPrefix):
			if data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(t, binaryPrefix)); err == nil {
				return primitive.Binary{Data: data}
			}
		}
		return t
	case map[string]interface{}:
		return decodeDoc(t)
	case []interface{}:
		out := make(bson.A, len(t))
		for i, e := range t {
			out[i] = decode(e)
		}
		return out
	}

	if f, ok := toFloat(v); ok {
		if f == math.Trunc(f) && math.Abs(f) < math.MaxInt64 {
			return int64(f)
		}
		return f
	}

	return v
}

func decodeDoc(doc map[string]interface{}) bson.M {
	out := make(bson.M, len(doc))
	for k, v := range doc {
		out[k] = decode(v)
	}

	return out
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}

	return 0, false
}

// toSort converts a driver sort document into gedb's ordered sort.
func toSort(spec interface{}) (gedb.Sort, error) {
	if spec == nil {
		return nil, nil
	}

	var keys bson.D
	switch s := spec.(type) {
	case bson.D:
		keys = s
	case bson.M:
		if len(s) > 1 {
			return nil, fmt.Errorf("sort on more than one field needs an ordered document")
		}
		for k, v := range s {
			keys = append(keys, bson.E{Key: k, Value: v})
		}
	default:
		return nil, fmt.Errorf("sort must be a document, got %T", spec)
	}

	sort := make(gedb.Sort, 0, len(keys))
	for _, k := range keys {
		dir, ok := toFloat(k.Value)
		if !ok || dir == 0 {
			return nil, fmt.Errorf("sort direction for %s must be 1 or -1", k.Key)
		}
		sort = append(sort, gedb.SortName{Key: k.Key, Order: int64(dir)})
	}

	return sort, nil
}

func isOperatorDoc(v interface{}) bool {
	m, ok := v.(bson.M)
	if !ok {
		if raw, isMap := v.(map[string]interface{}); isMap {
			m = raw
		}
	}

	if len(m) == 0 {
		return false
	}

	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return false
		}
	}

	return true
}
