// Package memdb is an in-memory storage engine implementing docstore.Driver on
// top of gedb, an embedded MongoDB-like database. It is meant for tests and
// local development.
package memdb

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/likearthian/docstore"
	"github.com/vinicius-lino-figueiredo/gedb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	mongoOptions "go.mongodb.org/mongo-driver/mongo/options"
)

const idField = "_id"

// Database groups named collections.
type Database struct {
	name        string
	mu          sync.Mutex
	collections map[string]*Collection
}

func NewDatabase(name string) *Database {
	return &Database{name: name, collections: make(map[string]*Collection)}
}

// Collection returns the named collection, creating it on first use.
func (db *Database) Collection(name string) *Collection {
	db.mu.Lock()
	defer db.mu.Unlock()

	c, ok := db.collections[name]
	if !ok {
		c = NewCollection(db.name + "." + name)
		db.collections[name] = c
	}

	return c
}

// Collection is one gedb datastore. Writes that need more than one gedb call
// are serialized by mu.
type Collection struct {
	name    string
	db      gedb.GEDB
	err     error
	mu      sync.Mutex
	indexes []string
}

var _ docstore.Driver = (*Collection)(nil)

// NewCollection opens an in-memory datastore. A failure to open it is
// returned by every operation.
func NewCollection(name string) *Collection {
	db, err := gedb.NewDB(gedb.WithInMemoryOnly(true))
	if err != nil {
		err = fmt.Errorf("failed to open in-memory collection %s. %w", name, err)
	}

	return &Collection{name: name, db: db, err: err}
}

func (c *Collection) Name() string {
	return c.name
}

// Indexes lists the names of the created indexes.
func (c *Collection) Indexes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]string(nil), c.indexes...)
}

func (c *Collection) Find(ctx context.Context, filter bson.M, opts ...*mongoOptions.FindOptions) (docstore.DriverCursor, error) {
	if c.err != nil {
		return nil, c.err
	}

	var findOpts []gedb.FindOption
	for _, o := range opts {
		if o == nil {
			continue
		}

		if o.Sort != nil {
			sort, err := toSort(o.Sort)
			if err != nil {
				return nil, err
			}
			findOpts = append(findOpts, gedb.WithSort(sort))
		}

		if o.Skip != nil && *o.Skip > 0 {
			findOpts = append(findOpts, gedb.WithSkip(*o.Skip))
		}

		if o.Limit != nil && *o.Limit != 0 {
			limit := *o.Limit
			if limit < 0 {
				limit = -limit
			}
			findOpts = append(findOpts, gedb.WithLimit(limit))
		}
	}

	docs, err := c.find(ctx, filter, findOpts...)
	if err != nil {
		return nil, err
	}

	return &cursor{docs: docs, pos: -1}, nil
}

func (c *Collection) FindOne(ctx context.Context, filter bson.M) (bson.M, error) {
	if c.err != nil {
		return nil, c.err
	}

	return c.first(ctx, filter)
}

func (c *Collection) InsertOne(ctx context.Context, doc bson.M) (interface{}, error) {
	if c.err != nil {
		return nil, c.err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.insert(ctx, doc)
}

func (c *Collection) UpdateOne(ctx context.Context, filter, update bson.M, opts ...*mongoOptions.UpdateOptions) (*mongo.UpdateResult, error) {
	return c.update(ctx, filter, update, false, upsertOf(opts))
}

func (c *Collection) UpdateMany(ctx context.Context, filter, update bson.M, opts ...*mongoOptions.UpdateOptions) (*mongo.UpdateResult, error) {
	return c.update(ctx, filter, update, true, upsertOf(opts))
}

func upsertOf(opts []*mongoOptions.UpdateOptions) bool {
	upsert := false
	for _, o := range opts {
		if o != nil && o.Upsert != nil {
			upsert = *o.Upsert
		}
	}

	return upsert
}

func (c *Collection) update(ctx context.Context, filter, update bson.M, multi, upsert bool) (*mongo.UpdateResult, error) {
	if c.err != nil {
		return nil, c.err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var findOpts []gedb.FindOption
	if !multi {
		findOpts = append(findOpts, gedb.WithLimit(1))
	}

	matched, err := c.find(ctx, filter, findOpts...)
	if err != nil {
		return nil, err
	}

	if len(matched) == 0 {
		if !upsert {
			return &mongo.UpdateResult{}, nil
		}

		doc, err := c.upsert(ctx, filter, update)
		if err != nil {
			return nil, err
		}

		return &mongo.UpdateResult{UpsertedCount: 1, UpsertedID: doc[idField]}, nil
	}

	res := &mongo.UpdateResult{MatchedCount: int64(len(matched))}
	for _, before := range matched {
		after, err := c.modify(ctx, before, update)
		if err != nil {
			return nil, err
		}

		if !reflect.DeepEqual(before, after) {
			res.ModifiedCount++
		}
	}

	return res, nil
}

func (c *Collection) DeleteOne(ctx context.Context, filter bson.M) (int64, error) {
	return c.delete(ctx, filter, false)
}

func (c *Collection) DeleteMany(ctx context.Context, filter bson.M) (int64, error) {
	return c.delete(ctx, filter, true)
}

func (c *Collection) delete(ctx context.Context, filter bson.M, multi bool) (int64, error) {
	if c.err != nil {
		return 0, c.err
	}

	removed, err := c.db.Remove(ctx, query(filter), gedb.WithRemoveMulti(multi))
	return removed, translateError(err, c.name)
}

func (c *Collection) CountDocuments(ctx context.Context, filter bson.M, opts ...*mongoOptions.CountOptions) (int64, error) {
	if c.err != nil {
		return 0, c.err
	}

	var findOpts []gedb.FindOption
	for _, o := range opts {
		if o == nil {
			continue
		}
		if o.Skip != nil && *o.Skip > 0 {
			findOpts = append(findOpts, gedb.WithSkip(*o.Skip))
		}
		if o.Limit != nil && *o.Limit > 0 {
			findOpts = append(findOpts, gedb.WithLimit(*o.Limit))
		}
	}

	if len(findOpts) == 0 {
		count, err := c.db.Count(ctx, query(filter))
		return count, translateError(err, c.name)
	}

	docs, err := c.find(ctx, filter, findOpts...)
	return int64(len(docs)), err
}

// CreateIndex ensures a gedb index over the model's fields. Directions are
// ignored. Creating an index whose name already exists is a no-op.
func (c *Collection) CreateIndex(ctx context.Context, model mongo.IndexModel) (string, error) {
	if c.err != nil {
		return "", c.err
	}

	keys, ok := model.Keys.(bson.D)
	if !ok {
		return "", fmt.Errorf("index keys must be an ordered document, got %T", model.Keys)
	}

	if len(keys) == 0 {
		return "", fmt.Errorf("index keys cannot be empty")
	}

	name := indexName(keys)
	fields := make([]string, len(keys))
	for i, k := range keys {
		fields[i] = k.Key
	}

	opts := []gedb.EnsureIndexOption{gedb.WithFields(fields...)}
	if o := model.Options; o != nil {
		if o.Name != nil {
			name = *o.Name
		}
		if o.Unique != nil {
			opts = append(opts, gedb.WithUnique(*o.Unique))
		}
		if o.Sparse != nil {
			opts = append(opts, gedb.WithSparse(*o.Sparse))
		}
		if o.ExpireAfterSeconds != nil {
			opts = append(opts, gedb.WithTTL(time.Duration(*o.ExpireAfterSeconds)*time.Second))
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, existing := range c.indexes {
		if existing == name {
			return name, nil
		}
	}

	if err := c.db.EnsureIndex(ctx, opts...); err != nil {
		return "", translateError(err, c.name)
	}

	c.indexes = append(c.indexes, name)
	return name, nil
}

func (c *Collection) FindOneAndUpdate(ctx context.Context, filter, update bson.M, opts ...*mongoOptions.FindOneAndUpdateOptions) (bson.M, error) {
	if c.err != nil {
		return nil, c.err
	}

	var (
		findOpts = []gedb.FindOption{gedb.WithLimit(1)}
		upsert   bool
		after    bool
	)
	for _, o := range opts {
		if o == nil {
			continue
		}
		if o.Sort != nil {
			sort, err := toSort(o.Sort)
			if err != nil {
				return nil, err
			}
			findOpts = append(findOpts, gedb.WithSort(sort))
		}
		if o.Upsert != nil {
			upsert = *o.Upsert
		}
		if o.ReturnDocument != nil {
			after = *o.ReturnDocument == mongoOptions.After
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	docs, err := c.find(ctx, filter, findOpts...)
	if err != nil {
		return nil, err
	}

	if len(docs) == 0 {
		if !upsert {
			return nil, nil
		}

		doc, err := c.upsert(ctx, filter, update)
		if err != nil || !after {
			return nil, err
		}

		return doc, nil
	}

	before := docs[0]
	updated, err := c.modify(ctx, before, update)
	if err != nil {
		return nil, err
	}

	if after {
		return updated, nil
	}

	return before, nil
}

func (c *Collection) find(ctx context.Context, filter bson.M, opts ...gedb.FindOption) ([]bson.M, error) {
	cur, err := c.db.Find(ctx, query(filter), opts...)
	if err != nil {
		return nil, translateError(err, c.name)
	}

	return drain(ctx, cur)
}

func (c *Collection) first(ctx context.Context, filter bson.M) (bson.M, error) {
	docs, err := c.find(ctx, filter, gedb.WithLimit(1))
	if err != nil || len(docs) == 0 {
		return nil, err
	}

	return docs[0], nil
}

// insert stores doc, giving it an ObjectID when it has no _id. Callers hold mu.
func (c *Collection) insert(ctx context.Context, doc bson.M) (interface{}, error) {
	stored := encodeDoc(doc)
	if _, ok := stored[idField]; !ok {
		stored[idField] = encode(primitive.NewObjectID())
	}

	cur, err := c.db.Insert(ctx, stored)
	if err != nil {
		return nil, translateError(err, c.name)
	}

	if _, err := drain(ctx, cur); err != nil {
		return nil, err
	}

	return decode(stored[idField]), nil
}

// modify applies update to the stored document and returns the new version.
// Callers hold mu.
func (c *Collection) modify(ctx context.Context, doc bson.M, update bson.M) (bson.M, error) {
	update, _ = splitSetOnInsert(update)
	if len(update) == 0 {
		return doc, nil
	}

	byID := bson.M{idField: doc[idField]}
	cur, err := c.db.Update(ctx, query(byID), encodeDoc(update))
	if err != nil {
		return nil, translateError(err, c.name)
	}

	if _, err := drain(ctx, cur); err != nil {
		return nil, err
	}

	updated, err := c.first(ctx, byID)
	if err != nil {
		return nil, err
	}

	if updated == nil {
		return nil, fmt.Errorf("document %v vanished during update", doc[idField])
	}

	return updated, nil
}

// upsert inserts the document gedb builds from the filter's equality fields
// and update. $setOnInsert fields, _id included, are applied on top; without
// an _id from the filter or $setOnInsert the document gets an ObjectID. gedb
// never lets an update change _id, so such documents are removed and stored
// again. Callers hold mu.
func (c *Collection) upsert(ctx context.Context, filter, update bson.M) (bson.M, error) {
	update, onInsert := splitSetOnInsert(update)
	if len(update) == 0 {
		if len(onInsert) == 0 {
			return nil, fmt.Errorf("upsert needs a non-empty update")
		}
		update = bson.M{"$set": onInsert}
	}

	cur, err := c.db.Update(ctx, query(filter), encodeDoc(update), gedb.WithUpsert(true))
	if err != nil {
		return nil, translateError(err, c.name)
	}

	docs, err := drain(ctx, cur)
	if err != nil {
		return nil, err
	}

	if len(docs) != 1 {
		return nil, fmt.Errorf("upsert produced %d documents", len(docs))
	}

	doc := docs[0]
	generatedID := doc[idField]

	id, fromFilter := filter[idField]
	fromFilter = fromFilter && !isOperatorDoc(id)
	if fromFilter && len(onInsert) == 0 {
		return doc, nil
	}

	for k, v := range onInsert {
		doc[k] = v
	}

	if _, ok := onInsert[idField]; !ok && !fromFilter {
		doc[idField] = primitive.NewObjectID()
	}

	if _, err := c.db.Remove(ctx, query(bson.M{idField: generatedID})); err != nil {
		return nil, translateError(err, c.name)
	}

	if _, err := c.insert(ctx, doc); err != nil {
		return nil, err
	}

	return doc, nil
}

// splitSetOnInsert separates $setOnInsert, which only applies when an upsert
// inserts, from the rest of update.
func splitSetOnInsert(update bson.M) (bson.M, bson.M) {
	raw, ok := update["$setOnInsert"]
	if !ok {
		return update, nil
	}

	rest := make(bson.M, len(update))
	for k, v := range update {
		if k != "$setOnInsert" {
			rest[k] = v
		}
	}

	onInsert := bson.M{}
	switch fields := raw.(type) {
	case bson.M:
		for k, v := range fields {
			onInsert[k] = v
		}
	case map[string]interface{}:
		for k, v := range fields {
			onInsert[k] = v
		}
	case bson.D:
		for _, e := range fields {
			onInsert[e.Key] = e.Value
		}
	}

	return rest, onInsert
}

func query(filter bson.M) map[string]interface{} {
	if filter == nil {
		return map[string]interface{}{}
	}

	return encodeDoc(filter)
}

// drain scans every document of a gedb cursor into bson form.
func drain(ctx context.Context, cur gedb.Cursor) ([]bson.M, error) {
	var docs []bson.M
	for cur.Next() {
		raw := map[string]interface{}{}
		if err := cur.Scan(ctx, &raw); err != nil {
			return nil, err
		}

		docs = append(docs, decodeDoc(raw))
	}

	return docs, nil
}

// DuplicateKeyError mirrors the server's E11000 write error, so both
// mongo.IsDuplicateKeyError and errors.Is(err, docstore.ErrKeyAlreadyExists)
// recognize it.
type DuplicateKeyError struct {
	mongo.WriteException
}

func (e DuplicateKeyError) Is(target error) bool {
	return target == docstore.ErrKeyAlreadyExists || target == gedb.ErrConstraintViolated
}

func translateError(err error, coll string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, gedb.ErrConstraintViolated) {
		msg := fmt.Sprintf("E11000 duplicate key error collection: %s. %s", coll, err.Error())
		return DuplicateKeyError{mongo.WriteException{
			WriteErrors: mongo.WriteErrors{{Code: 11000, Message: msg}},
		}}
	}

	return err
}

func indexName(keys bson.D) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s_%v", k.Key, k.Value)
	}

	return strings.Join(parts, "_")
}
