package docstore

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	mongoOptions "go.mongodb.org/mongo-driver/mongo/options"
)

// Cursor is a lazy query over a repository. Limit, Skip and Sort configure it
// and return the same cursor; nothing reaches the storage engine until ToArray,
// Count or Iter is called.
type Cursor[K comparable, T Model[K]] struct {
	repo   *Repository[K, T]
	filter bson.M
	opts   *mongoOptions.FindOptions
}

func newCursor[K comparable, T Model[K]](repo *Repository[K, T], filter bson.M) *Cursor[K, T] {
	return &Cursor[K, T]{
		repo:   repo,
		filter: filter,
		opts:   mongoOptions.Find(),
	}
}

func (c *Cursor[K, T]) Limit(limit int64) *Cursor[K, T] {
	c.repo.log.Debug().Int64("limit", limit).Msg("cursor limit")
	c.opts.SetLimit(limit)
	return c
}

func (c *Cursor[K, T]) Skip(skip int64) *Cursor[K, T] {
	c.repo.log.Debug().Int64("skip", skip).Msg("cursor skip")
	c.opts.SetSkip(skip)
	return c
}

func (c *Cursor[K, T]) Sort(sort bson.D) *Cursor[K, T] {
	sort = toStorageSort(sort)
	c.repo.log.Debug().Interface("sort", sort).Msg("cursor sort")
	c.opts.SetSort(sort)
	return c
}

// ToArray materializes every matching model in the order the storage engine
// returned them.
func (c *Cursor[K, T]) ToArray(ctx context.Context) (models []T, err error) {
	defer observe(c.repo.Name, "toArray", &err)

	iter, err := c.Iter(ctx)
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	models = []T{}
	for {
		model, err := iter.Next()
		if errors.Is(err, ErrIteratorDone) {
			return models, nil
		}

		if err != nil {
			return nil, err
		}

		models = append(models, model)
	}
}

// Count counts the documents matching the filter. Limit, Skip and Sort are
// ignored.
func (c *Cursor[K, T]) Count(ctx context.Context) (int64, error) {
	c.repo.log.Debug().Msg("cursor count")
	return c.repo.Count(ctx, c.filter)
}

// Iter opens the query and streams hydrated models.
func (c *Cursor[K, T]) Iter(ctx context.Context) (RowIterator[T], error) {
	coll, err := c.repo.collection(ctx)
	if err != nil {
		return nil, err
	}

	cur, err := coll.Find(ctx, orEmpty(c.filter), c.opts)
	if err != nil {
		return nil, err
	}

	return &cursorIterator[K, T]{ctx: ctx, cur: cur, repo: c.repo}, nil
}

// RowIterator streams models. Next returns ErrIteratorDone once exhausted.
type RowIterator[T any] interface {
	Next() (T, error)
	Close() error
}

type cursorIterator[K comparable, T Model[K]] struct {
	ctx  context.Context
	cur  DriverCursor
	repo *Repository[K, T]
}

func (it *cursorIterator[K, T]) Next() (T, error) {
	var model T
	if !it.cur.Next(it.ctx) {
		if err := it.cur.Err(); err != nil {
			return model, err
		}

		return model, ErrIteratorDone
	}

	var doc bson.M
	if err := it.cur.Decode(&doc); err != nil {
		return model, err
	}

	return it.repo.fromStorageDocument(doc)
}

func (it *cursorIterator[K, T]) Close() error {
	return it.cur.Close(it.ctx)
}
