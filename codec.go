package docstore

import (
	"fmt"
	"reflect"

	"go.mongodb.org/mongo-driver/bson"
)

// Purpose tells a Codec why a model is being encoded.
type Purpose string

const (
	PurposeStorage Purpose = "db"
	PurposeOutput  Purpose = "output"
)

// Codec converts models to and from storage-shaped documents. Encoded
// documents carry the logical key under "pk"; the repository renames it.
type Codec[T any] interface {
	Encode(value T, purpose Purpose) (bson.M, error)
	Decode(doc bson.M) (T, error)
}

// BSONCodec encodes models with their bson struct tags.
type BSONCodec[T any] struct{}

func (BSONCodec[T]) Encode(value T, _ Purpose) (bson.M, error) {
	raw, err := bson.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %T. %w", value, err)
	}

	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}

	return doc, nil
}

func (BSONCodec[T]) Decode(doc bson.M) (T, error) {
	value := newModel[T]()
	raw, err := bson.Marshal(doc)
	if err != nil {
		return value, err
	}

	if err := bson.Unmarshal(raw, value); err != nil {
		return value, fmt.Errorf("failed to decode into %T. %w", value, err)
	}

	return value, nil
}

// newModel allocates the struct behind the pointer type T.
func newModel[T any]() T {
	var model T
	m := reflect.TypeOf(model)
	if m.Kind() == reflect.Ptr {
		return reflect.New(m.Elem()).Interface().(T)
	}

	return model
}
