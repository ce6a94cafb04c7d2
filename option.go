package docstore

import (
	"github.com/rs/zerolog"
	mongoOptions "go.mongodb.org/mongo-driver/mongo/options"
)

type RepositoryOption func(o *option)

type option struct {
	initValues       interface{}
	name             string
	collectionName   string
	indexes          []IndexSpec
	indexConcurrency int
	logger           *zerolog.Logger
	codec            interface{}
	keyGen           interface{}
	confirmedRemove  bool
}

// InitWith seeds the collection once it is bound. values must be a []T of the
// repository's model type; values whose key already exists are skipped.
func InitWith(values interface{}) RepositoryOption {
	return func(o *option) {
		o.initValues = values
	}
}

// WithName sets the model name used in logs and metrics.
func WithName(name string) RepositoryOption {
	return func(o *option) {
		o.name = name
	}
}

// WithCollectionName overrides the collection BindDatabase looks up.
func WithCollectionName(name string) RepositoryOption {
	return func(o *option) {
		o.collectionName = name
	}
}

// WithIndexes declares the indexes created every time the collection is bound.
func WithIndexes(indexes ...IndexSpec) RepositoryOption {
	return func(o *option) {
		o.indexes = append(o.indexes, indexes...)
	}
}

// WithIndexConcurrency bounds how many indexes are created at the same time.
// Zero or negative means no limit.
func WithIndexConcurrency(n int) RepositoryOption {
	return func(o *option) {
		o.indexConcurrency = n
	}
}

func WithLogger(logger zerolog.Logger) RepositoryOption {
	return func(o *option) {
		o.logger = &logger
	}
}

// WithCodec replaces the default bson codec used to encode and hydrate models.
// codec must implement Codec[T] for the repository's model type.
func WithCodec(codec interface{}) RepositoryOption {
	return func(o *option) {
		o.codec = codec
	}
}

// WithKeyGenerator sets the function producing fresh primary keys. gen must be
// a func() K for the repository's key type.
func WithKeyGenerator(gen interface{}) RepositoryOption {
	return func(o *option) {
		o.keyGen = gen
	}
}

// WithConfirmedRemove makes Delete clear the persisted flag only after the
// storage engine confirmed the removal. By default the flag is cleared before
// the removal is issued.
func WithConfirmedRemove() RepositoryOption {
	return func(o *option) {
		o.confirmedRemove = true
	}
}

type QueryOption func(o *queryOption)

type queryOption struct {
	Multi          *bool
	Upsert         *bool
	Single         bool
	Limit          *int64
	Skip           *int64
	ReturnDocument *mongoOptions.ReturnDocument
}

// WithMulti controls whether Update touches every matching document. Update
// defaults to true.
func WithMulti(multi bool) QueryOption {
	return func(o *queryOption) {
		o.Multi = &multi
	}
}

func WithUpsert(upsert bool) QueryOption {
	return func(o *queryOption) {
		o.Upsert = &upsert
	}
}

// WithSingle makes Remove delete at most one document.
func WithSingle() QueryOption {
	return func(o *queryOption) {
		o.Single = true
	}
}

// WithLimit caps the number of documents Count considers.
func WithLimit(limit int64) QueryOption {
	return func(o *queryOption) {
		o.Limit = &limit
	}
}

// WithSkip skips documents before Count starts counting.
func WithSkip(skip int64) QueryOption {
	return func(o *queryOption) {
		o.Skip = &skip
	}
}

// WithReturnDocument exists so callers can state the FindAndModify return
// semantics explicitly. Only options.After is accepted; anything else makes
// FindAndModify fail with ErrInvalidArgument.
func WithReturnDocument(rd mongoOptions.ReturnDocument) QueryOption {
	return func(o *queryOption) {
		o.ReturnDocument = &rd
	}
}

func buildQueryOption(options []QueryOption) *queryOption {
	opt := &queryOption{}
	for _, op := range options {
		op(opt)
	}

	return opt
}
