package docstore

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	PKField = "pk"
	IDField = "_id"
)

// toStorageQuery renames the logical key to the native id in place, including
// inside $and, $or and $nor clauses. A nil filter is returned as is.
func toStorageQuery(filter bson.M) bson.M {
	if filter == nil {
		return nil
	}

	renameKey(filter, PKField, IDField)
	for _, op := range []string{"$and", "$or", "$nor"} {
		switch clauses := filter[op].(type) {
		case []bson.M:
			for _, clause := range clauses {
				toStorageQuery(clause)
			}
		case bson.A:
			for _, clause := range clauses {
				if m, ok := clause.(bson.M); ok {
					toStorageQuery(m)
				}
			}
		case []interface{}:
			for _, clause := range clauses {
				if m, ok := clause.(bson.M); ok {
					toStorageQuery(m)
				}
			}
		}
	}

	return filter
}

func toStorageSort(sort bson.D) bson.D {
	for i := range sort {
		if sort[i].Key == PKField {
			sort[i].Key = IDField
		}
	}

	return sort
}

func renameKey(doc bson.M, from, to string) {
	v, ok := doc[from]
	if !ok {
		return
	}

	delete(doc, from)
	doc[to] = v
}

func (r *Repository[K, T]) toStorageDocument(m T) (bson.M, error) {
	doc, err := r.codec.Encode(m, PurposeStorage)
	if err != nil {
		return nil, err
	}

	renameKey(doc, PKField, IDField)
	return doc, nil
}

// Output encodes m for callers outside the storage layer. The key stays under
// "pk".
func (r *Repository[K, T]) Output(m T) (bson.M, error) {
	return r.codec.Encode(m, PurposeOutput)
}

// fromStorageDocument hydrates a model and marks it persisted. A nil document
// yields the zero model.
func (r *Repository[K, T]) fromStorageDocument(doc bson.M) (T, error) {
	var model T
	if doc == nil {
		return model, nil
	}

	renameKey(doc, IDField, PKField)
	model, err := r.codec.Decode(doc)
	if err != nil {
		return model, fmt.Errorf("failed to hydrate %s. %w", r.Name, err)
	}

	model.base().setPersisted(true)
	return model, nil
}

// ParsePrimaryKey parses the hex form of an ObjectID. Malformed input yields
// primitive.NilObjectID and false.
func ParsePrimaryKey(text string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(text)
	if err != nil {
		return primitive.NilObjectID, false
	}

	return id, true
}
