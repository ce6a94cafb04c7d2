package docstore

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/iancoleman/strcase"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	mongoOptions "go.mongodb.org/mongo-driver/mongo/options"
)

// Repository gives the model type T document persistence. K is the type of
// the logical key stored in Base.
type Repository[K comparable, T Model[K]] struct {
	Name            string
	collectionName  string
	binding         *Binding
	codec           Codec[T]
	keyGen          func() K
	hooks           lifecycle
	confirmedRemove bool
	log             zerolog.Logger
}

func NewRepository[K comparable, T Model[K]](options ...RepositoryOption) (*Repository[K, T], error) {
	opt := &option{}
	for _, op := range options {
		if op != nil {
			op(opt)
		}
	}

	var model T
	m := reflect.TypeOf(model)
	if m == nil || m.Kind() != reflect.Ptr || m.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: model should be a pointer to struct, got %v", ErrInvalidArgument, m)
	}

	if opt.name == "" {
		opt.name = m.Elem().Name()
	}

	if opt.collectionName == "" {
		opt.collectionName = strcase.ToSnake(opt.name)
	}

	log := zerolog.Nop()
	if opt.logger != nil {
		log = *opt.logger
	}
	log = log.With().Str("model", opt.name).Logger()

	repo := &Repository[K, T]{
		Name:            opt.name,
		collectionName:  opt.collectionName,
		codec:           BSONCodec[T]{},
		hooks:           detectLifecycle[T](),
		confirmedRemove: opt.confirmedRemove,
		log:             log,
	}

	if opt.codec != nil {
		codec, ok := opt.codec.(Codec[T])
		if !ok {
			return nil, fmt.Errorf("%w: codec should be Codec[%s], got %T", ErrInvalidArgument, m, opt.codec)
		}
		repo.codec = codec
	}

	if opt.keyGen != nil {
		gen, ok := opt.keyGen.(func() K)
		if !ok {
			return nil, fmt.Errorf("%w: key generator should be func() %T, got %T", ErrInvalidArgument, *new(K), opt.keyGen)
		}
		repo.keyGen = gen
	} else if gen, ok := defaultKeyGenerator[K](); ok {
		repo.keyGen = gen
	} else {
		return nil, fmt.Errorf("%w: no default key generator for %T, use WithKeyGenerator", ErrInvalidArgument, *new(K))
	}

	repo.binding = newBinding(opt.indexes, opt.indexConcurrency, log)

	if opt.initValues != nil {
		values, ok := opt.initValues.([]T)
		if !ok {
			return nil, fmt.Errorf("values to init should be []%s, got %T", m, opt.initValues)
		}
		repo.binding.onReady = func(ctx context.Context, d Driver) error {
			return repo.init(ctx, values)
		}
	}

	return repo, nil
}

func (r *Repository[K, T]) init(ctx context.Context, values []T) error {
	for _, value := range values {
		r.Init(value)
		if _, err := r.insert(ctx, value); err != nil {
			if !errors.Is(err, ErrKeyAlreadyExists) {
				return err
			}
		}
	}

	return nil
}

// Bind assigns the collection handle.
func (r *Repository[K, T]) Bind(d Driver) {
	r.binding.Set(d)
}

// BindFunc assigns a collection handle resolved asynchronously by fn.
func (r *Repository[K, T]) BindFunc(fn func(ctx context.Context) (Driver, error)) {
	r.binding.SetFunc(fn)
}

// BindDatabase binds the model's collection in db.
func (r *Repository[K, T]) BindDatabase(db *mongo.Database) {
	r.binding.Set(NewMongoDriver(db.Collection(r.collectionName)))
}

func (r *Repository[K, T]) CollectionName() string {
	return r.collectionName
}

// IndexesReady waits for the indexes, and InitWith seeding, triggered by the
// last Bind call.
func (r *Repository[K, T]) IndexesReady(ctx context.Context) error {
	return r.binding.IndexesReady(ctx)
}

func (r *Repository[K, T]) collection(ctx context.Context) (Driver, error) {
	return r.binding.Get(ctx)
}

// New allocates a model with a fresh key.
func (r *Repository[K, T]) New() T {
	model := newModel[T]()
	r.Init(model)
	return model
}

// Init assigns a fresh key to m unless it already has one.
func (r *Repository[K, T]) Init(m T) {
	Init[K](m, r.keyGen)
}

func (r *Repository[K, T]) Count(ctx context.Context, filter bson.M, options ...QueryOption) (count int64, err error) {
	defer observe(r.Name, "count", &err)
	opt := buildQueryOption(options)

	coll, err := r.collection(ctx)
	if err != nil {
		return 0, err
	}

	filter = toStorageQuery(filter)
	r.log.Debug().Interface("query", filter).Msg("count")

	countOpts := mongoOptions.Count()
	if opt.Limit != nil {
		countOpts.SetLimit(*opt.Limit)
	}

	if opt.Skip != nil {
		countOpts.SetSkip(*opt.Skip)
	}

	return coll.CountDocuments(ctx, orEmpty(filter), countOpts)
}

// FindOne returns the first matching model, or the zero T when nothing
// matched.
func (r *Repository[K, T]) FindOne(ctx context.Context, filter bson.M) (model T, err error) {
	defer observe(r.Name, "findOne", &err)

	coll, err := r.collection(ctx)
	if err != nil {
		return model, err
	}

	filter = toStorageQuery(filter)
	r.log.Debug().Interface("query", filter).Msg("findOne")

	doc, err := coll.FindOne(ctx, orEmpty(filter))
	if err != nil {
		return model, err
	}

	return r.fromStorageDocument(doc)
}

// FindOneByPk looks a model up by key. A zero key yields the zero T without a
// storage round trip.
func (r *Repository[K, T]) FindOneByPk(ctx context.Context, pk K) (T, error) {
	r.log.Debug().Interface("pk", pk).Msg("findOneByPk")

	var zero K
	if pk == zero {
		var model T
		return model, nil
	}

	return r.FindOne(ctx, bson.M{PKField: pk})
}

// FindAll returns a lazy cursor over the models matching filter, sorted by
// sort when given.
func (r *Repository[K, T]) FindAll(filter bson.M, sort bson.D) *Cursor[K, T] {
	r.log.Debug().Interface("query", filter).Interface("sort", sort).Msg("findAll")

	cursor := newCursor(r, toStorageQuery(filter))
	if sort != nil {
		cursor.Sort(sort)
	}

	return cursor
}

// Find is an alias of FindAll.
func (r *Repository[K, T]) Find(filter bson.M, sort bson.D) *Cursor[K, T] {
	return r.FindAll(filter, sort)
}

// FindAllByPk returns a lazy cursor over the models whose key is in pks, which
// must be a slice or an array.
func (r *Repository[K, T]) FindAllByPk(pks interface{}) (*Cursor[K, T], error) {
	v := reflect.ValueOf(pks)
	if pks == nil || (v.Kind() != reflect.Slice && v.Kind() != reflect.Array) {
		return nil, fmt.Errorf("%w: expecting slice of keys, got %T", ErrInvalidArgument, pks)
	}

	return r.FindAll(bson.M{PKField: bson.M{"$in": pks}}, nil), nil
}

// FindByPk is an alias of FindAllByPk.
func (r *Repository[K, T]) FindByPk(pks interface{}) (*Cursor[K, T], error) {
	return r.FindAllByPk(pks)
}

// Remove deletes every matching document, or the first one with WithSingle,
// and returns the removed count.
func (r *Repository[K, T]) Remove(ctx context.Context, filter bson.M, options ...QueryOption) (removed int64, err error) {
	defer observe(r.Name, "remove", &err)
	opt := buildQueryOption(options)

	coll, err := r.collection(ctx)
	if err != nil {
		return 0, err
	}

	filter = toStorageQuery(filter)
	r.log.Debug().Interface("query", filter).Bool("single", opt.Single).Msg("remove")

	if opt.Single {
		return coll.DeleteOne(ctx, orEmpty(filter))
	}

	return coll.DeleteMany(ctx, orEmpty(filter))
}

// Update applies patch to the matching documents. Every match is updated
// unless WithMulti(false) is given.
func (r *Repository[K, T]) Update(ctx context.Context, filter, patch bson.M, options ...QueryOption) (res *mongo.UpdateResult, err error) {
	defer observe(r.Name, "update", &err)
	opt := buildQueryOption(options)

	multi := opt.Multi == nil || *opt.Multi

	coll, err := r.collection(ctx)
	if err != nil {
		return nil, err
	}

	filter = toStorageQuery(filter)
	r.log.Debug().Interface("query", filter).Bool("multi", multi).Msg("update")

	updateOpts := mongoOptions.Update()
	if opt.Upsert != nil {
		updateOpts.SetUpsert(*opt.Upsert)
		if *opt.Upsert {
			patch = r.withInsertKey(filter, patch)
		}
	}

	if multi {
		return coll.UpdateMany(ctx, orEmpty(filter), patch, updateOpts)
	}

	return coll.UpdateOne(ctx, orEmpty(filter), patch, updateOpts)
}

// FindAndModify atomically updates the first document matching filter in
// sort order and returns the updated model, or the zero T when nothing
// matched. The updated document is always returned; asking for anything else
// fails with ErrInvalidArgument.
func (r *Repository[K, T]) FindAndModify(ctx context.Context, filter, patch bson.M, sort bson.D, options ...QueryOption) (model T, err error) {
	opt := buildQueryOption(options)
	if opt.ReturnDocument != nil && *opt.ReturnDocument != mongoOptions.After {
		return model, fmt.Errorf("%w: FindAndModify always returns the updated document", ErrInvalidArgument)
	}

	defer observe(r.Name, "findAndModify", &err)

	coll, err := r.collection(ctx)
	if err != nil {
		return model, err
	}

	filter = toStorageQuery(filter)
	sort = toStorageSort(sort)

	fopts := mongoOptions.FindOneAndUpdate().SetReturnDocument(mongoOptions.After)
	if sort != nil {
		fopts.SetSort(sort)
	}

	if opt.Upsert != nil {
		fopts.SetUpsert(*opt.Upsert)
		if *opt.Upsert {
			patch = r.withInsertKey(filter, patch)
		}
	}

	r.log.Debug().Interface("query", filter).Interface("sort", sort).Bool("upsert", opt.Upsert != nil && *opt.Upsert).Msg("findAndModify")

	doc, err := coll.FindOneAndUpdate(ctx, orEmpty(filter), patch, fopts)
	if err != nil {
		return model, err
	}

	return r.fromStorageDocument(doc)
}

// Fupsert is FindAndModify with upsert forced on: when nothing matches, a
// document made of the filter's equality fields and the patch is inserted.
func (r *Repository[K, T]) Fupsert(ctx context.Context, filter, patch bson.M, sort bson.D, options ...QueryOption) (T, error) {
	options = append(options, WithUpsert(true))
	return r.FindAndModify(ctx, filter, patch, sort, options...)
}

// Save inserts m when it is not persisted yet and updates it otherwise. The
// model itself is returned.
func (r *Repository[K, T]) Save(ctx context.Context, m T) (_ T, err error) {
	defer observe(r.Name, "save", &err)

	if r.hooks.beforeSave {
		if err := any(m).(BeforeSaver).BeforeSave(ctx); err != nil {
			return m, err
		}
	}

	if m.base().Persisted() {
		r.log.Debug().Interface("pk", m.GetPK()).Msg("save updating")
		err = r.update(ctx, m)
	} else {
		r.log.Debug().Interface("pk", m.GetPK()).Msg("save inserting")
		_, err = r.insert(ctx, m)
	}

	if err != nil {
		return m, err
	}

	m.base().setPersisted(true)
	r.log.Debug().Interface("pk", m.GetPK()).Msg("save saved")

	if r.hooks.afterSave {
		if err := any(m).(AfterSaver).AfterSave(ctx); err != nil {
			return m, err
		}
	}

	return m, nil
}

func (r *Repository[K, T]) insert(ctx context.Context, m T) (interface{}, error) {
	coll, err := r.collection(ctx)
	if err != nil {
		return nil, err
	}

	r.Init(m)
	doc, err := r.toStorageDocument(m)
	if err != nil {
		return nil, err
	}

	return coll.InsertOne(ctx, doc)
}

func (r *Repository[K, T]) update(ctx context.Context, m T) error {
	coll, err := r.collection(ctx)
	if err != nil {
		return err
	}

	doc, err := r.toStorageDocument(m)
	if err != nil {
		return err
	}
	delete(doc, IDField)

	_, err = coll.UpdateOne(ctx, bson.M{IDField: m.GetPK()}, bson.M{"$set": doc}, mongoOptions.Update().SetUpsert(true))
	return err
}

// Delete removes m from storage and returns it. The persisted flag is cleared
// before the removal is issued, so a failed removal leaves m marked as not
// persisted; WithConfirmedRemove changes that order.
func (r *Repository[K, T]) Delete(ctx context.Context, m T) (T, error) {
	if !r.confirmedRemove {
		m.base().setPersisted(false)
	}

	if _, err := r.Remove(ctx, bson.M{PKField: m.GetPK()}, WithSingle()); err != nil {
		return m, err
	}

	m.base().setPersisted(false)
	return m, nil
}

// withInsertKey makes an upsert that inserts take its key from the
// repository's generator. Filters naming _id keep that key.
func (r *Repository[K, T]) withInsertKey(filter, patch bson.M) bson.M {
	if _, ok := filter[IDField]; ok || !isOperatorUpdate(patch) {
		return patch
	}

	out := make(bson.M, len(patch)+1)
	for k, v := range patch {
		out[k] = v
	}

	onInsert := bson.M{}
	if existing, ok := patch["$setOnInsert"].(bson.M); ok {
		for k, v := range existing {
			onInsert[k] = v
		}
	}

	if _, ok := onInsert[IDField]; !ok {
		onInsert[IDField] = r.keyGen()
	}

	out["$setOnInsert"] = onInsert
	return out
}

func isOperatorUpdate(patch bson.M) bool {
	for k := range patch {
		if strings.HasPrefix(k, "$") {
			return true
		}
	}

	return false
}

func orEmpty(filter bson.M) bson.M {
	if filter == nil {
		return bson.M{}
	}

	return filter
}
