package docstore

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	mongoOptions "go.mongodb.org/mongo-driver/mongo/options"
)

const (
	Ascending  = 1
	Descending = -1
)

// IndexSpec describes an index created when a collection is bound. Fields use
// the SortBy notation, e.g. []string{"-createdAt", "name"}.
type IndexSpec struct {
	Name               string   `json:"name,omitempty"`
	Fields             []string `json:"fields"`
	Unique             bool     `json:"unique,omitempty"`
	Sparse             bool     `json:"sparse,omitempty"`
	ExpireAfterSeconds *int32   `json:"expireAfterSeconds,omitempty"`
}

func (s IndexSpec) Keys() bson.D {
	return toStorageSort(SortBy(s.Fields...))
}

// Model converts the spec into the driver's index model.
func (s IndexSpec) Model() (mongo.IndexModel, error) {
	if len(s.Fields) == 0 {
		return mongo.IndexModel{}, fmt.Errorf("%w: index %q has no fields", ErrInvalidArgument, s.Name)
	}

	opts := mongoOptions.Index()
	if s.Name != "" {
		opts.SetName(s.Name)
	}

	if s.Unique {
		opts.SetUnique(true)
	}

	if s.Sparse {
		opts.SetSparse(true)
	}

	if s.ExpireAfterSeconds != nil {
		opts.SetExpireAfterSeconds(*s.ExpireAfterSeconds)
	}

	return mongo.IndexModel{Keys: s.Keys(), Options: opts}, nil
}

// SortBy builds a sort document from field names, prefixed by "-" for
// descending order and optionally by "+" for ascending order.
//
// example:
//
//	SortBy("-age", "+name")
func SortBy(fields ...string) bson.D {
	sort := make(bson.D, 0, len(fields))
	for _, field := range fields {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}

		dir := Ascending
		switch field[0] {
		case '-':
			dir = Descending
			field = field[1:]
		case '+':
			field = field[1:]
		}

		sort = append(sort, bson.E{Key: field, Value: dir})
	}

	return sort
}
