package docstore

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	mongoOptions "go.mongodb.org/mongo-driver/mongo/options"
)

// Driver is the storage engine capability the repository is written against.
// Filters and updates are already translated to native field names.
// FindOne and FindOneAndUpdate return a nil document when nothing matched.
type Driver interface {
	Name() string
	Find(ctx context.Context, filter bson.M, opts ...*mongoOptions.FindOptions) (DriverCursor, error)
	FindOne(ctx context.Context, filter bson.M) (bson.M, error)
	InsertOne(ctx context.Context, doc bson.M) (interface{}, error)
	UpdateOne(ctx context.Context, filter, update bson.M, opts ...*mongoOptions.UpdateOptions) (*mongo.UpdateResult, error)
	UpdateMany(ctx context.Context, filter, update bson.M, opts ...*mongoOptions.UpdateOptions) (*mongo.UpdateResult, error)
	DeleteOne(ctx context.Context, filter bson.M) (int64, error)
	DeleteMany(ctx context.Context, filter bson.M) (int64, error)
	CountDocuments(ctx context.Context, filter bson.M, opts ...*mongoOptions.CountOptions) (int64, error)
	CreateIndex(ctx context.Context, index mongo.IndexModel) (string, error)
	FindOneAndUpdate(ctx context.Context, filter, update bson.M, opts ...*mongoOptions.FindOneAndUpdateOptions) (bson.M, error)
}

// DriverCursor is the part of *mongo.Cursor the repository consumes.
type DriverCursor interface {
	Next(ctx context.Context) bool
	Decode(val interface{}) error
	Err() error
	Close(ctx context.Context) error
}
