package docstore

import (
	"context"
	"reflect"

	"github.com/gofrs/uuid"
	"github.com/tevino/abool"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Model is implemented by every struct that embeds Base.
type Model[K comparable] interface {
	GetPK() K
	SetPK(pk K)
	base() *Base[K]
}

// Base carries the logical primary key and the persistence state of a model.
// Embed it inline:
//
//	type Person struct {
//		docstore.Base[primitive.ObjectID] `bson:",inline"`
//		Name string `bson:"name"`
//	}
type Base[K comparable] struct {
	PK        K              `bson:"pk" json:"pk"`
	persisted abool.AtomicBool
}

// DocumentBase is the Base for models keyed by a native ObjectID.
type DocumentBase = Base[primitive.ObjectID]

func (b *Base[K]) GetPK() K {
	return b.PK
}

func (b *Base[K]) SetPK(pk K) {
	b.PK = pk
}

// Persisted reports whether the model was loaded from, or last written to,
// the storage engine.
func (b *Base[K]) Persisted() bool {
	return b.persisted.IsSet()
}

func (b *Base[K]) base() *Base[K] {
	return b
}

func (b *Base[K]) setPersisted(v bool) {
	b.persisted.SetTo(v)
}

// BeforeSaver is implemented by models that want to inspect or veto a save.
// A non-nil error aborts the save; return ErrSaveVetoed for a plain veto.
type BeforeSaver interface {
	BeforeSave(ctx context.Context) error
}

// AfterSaver is implemented by models notified after a successful save.
type AfterSaver interface {
	AfterSave(ctx context.Context) error
}

type lifecycle struct {
	beforeSave bool
	afterSave  bool
}

func detectLifecycle[T any]() lifecycle {
	var model T
	_, before := any(model).(BeforeSaver)
	_, after := any(model).(AfterSaver)
	return lifecycle{beforeSave: before, afterSave: after}
}

// Init assigns a fresh key to m when its key is the zero value.
func Init[K comparable](m Model[K], gen func() K) {
	var zero K
	if m.GetPK() == zero {
		m.SetPK(gen())
	}
}

// ObjectIDKeys generates native ObjectID keys.
func ObjectIDKeys() primitive.ObjectID {
	return primitive.NewObjectID()
}

// HexKeys generates ObjectIDs rendered as hex strings.
func HexKeys() string {
	return primitive.NewObjectID().Hex()
}

// UUIDKeys generates random v4 UUID strings.
func UUIDKeys() string {
	return uuid.Must(uuid.NewV4()).String()
}

func defaultKeyGenerator[K comparable]() (func() K, bool) {
	var gen interface{}
	var zero K
	switch any(zero).(type) {
	case primitive.ObjectID:
		gen = ObjectIDKeys
	case string:
		gen = HexKeys
	default:
		return nil, false
	}

	return gen.(func() K), true
}

// Equal reports whether every adjacent pair of models is equal. Two models are
// equal when they are the same instance, or share a concrete type and a key.
func Equal[K comparable](a, b Model[K], rest ...Model[K]) bool {
	models := append([]Model[K]{a, b}, rest...)
	result := true
	for i := len(models) - 1; i > 0; i-- {
		result = equalPair(models[i-1], models[i]) && result
	}

	return result
}

func equalPair[K comparable](a, b Model[K]) bool {
	if isNil(a) || isNil(b) {
		return isNil(a) && isNil(b)
	}

	if a.base() == b.base() {
		return true
	}

	if reflect.TypeOf(a) != reflect.TypeOf(b) {
		return false
	}

	return a.GetPK() == b.GetPK()
}

// isNil also treats a typed nil pointer, such as a FindOne miss, as nil.
func isNil[K comparable](m Model[K]) bool {
	if m == nil {
		return true
	}

	v := reflect.ValueOf(m)
	return v.Kind() == reflect.Ptr && v.IsNil()
}
