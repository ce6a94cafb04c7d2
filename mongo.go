package docstore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	mongoOptions "go.mongodb.org/mongo-driver/mongo/options"
)

type mongoDriver struct {
	collection *mongo.Collection
}

// NewMongoDriver adapts a MongoDB collection to the Driver interface.
func NewMongoDriver(collection *mongo.Collection) Driver {
	return &mongoDriver{collection: collection}
}

func (m *mongoDriver) Name() string {
	return m.collection.Database().Name() + "." + m.collection.Name()
}

func (m *mongoDriver) Find(ctx context.Context, filter bson.M, opts ...*mongoOptions.FindOptions) (DriverCursor, error) {
	cur, err := m.collection.Find(ctx, filter, opts...)
	if err != nil {
		return nil, wrapMongoError(err)
	}

	return cur, nil
}

func (m *mongoDriver) FindOne(ctx context.Context, filter bson.M) (bson.M, error) {
	var doc bson.M
	if err := m.collection.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}

		return nil, wrapMongoError(err)
	}

	return doc, nil
}

func (m *mongoDriver) InsertOne(ctx context.Context, doc bson.M) (interface{}, error) {
	res, err := m.collection.InsertOne(ctx, doc)
	if err != nil {
		return nil, wrapMongoError(err)
	}

	return res.InsertedID, nil
}

func (m *mongoDriver) UpdateOne(ctx context.Context, filter, update bson.M, opts ...*mongoOptions.UpdateOptions) (*mongo.UpdateResult, error) {
	res, err := m.collection.UpdateOne(ctx, filter, update, opts...)
	if err != nil {
		return nil, wrapMongoError(err)
	}

	return res, nil
}

func (m *mongoDriver) UpdateMany(ctx context.Context, filter, update bson.M, opts ...*mongoOptions.UpdateOptions) (*mongo.UpdateResult, error) {
	res, err := m.collection.UpdateMany(ctx, filter, update, opts...)
	if err != nil {
		return nil, wrapMongoError(err)
	}

	return res, nil
}

func (m *mongoDriver) DeleteOne(ctx context.Context, filter bson.M) (int64, error) {
	res, err := m.collection.DeleteOne(ctx, filter)
	if err != nil {
		return 0, wrapMongoError(err)
	}

	return res.DeletedCount, nil
}

func (m *mongoDriver) DeleteMany(ctx context.Context, filter bson.M) (int64, error) {
	res, err := m.collection.DeleteMany(ctx, filter)
	if err != nil {
		return 0, wrapMongoError(err)
	}

	return res.DeletedCount, nil
}

func (m *mongoDriver) CountDocuments(ctx context.Context, filter bson.M, opts ...*mongoOptions.CountOptions) (int64, error) {
	count, err := m.collection.CountDocuments(ctx, filter, opts...)
	if err != nil {
		return 0, wrapMongoError(err)
	}

	return count, nil
}

func (m *mongoDriver) CreateIndex(ctx context.Context, index mongo.IndexModel) (string, error) {
	name, err := m.collection.Indexes().CreateOne(ctx, index)
	if err != nil {
		return "", wrapMongoError(err)
	}

	return name, nil
}

func (m *mongoDriver) FindOneAndUpdate(ctx context.Context, filter, update bson.M, opts ...*mongoOptions.FindOneAndUpdateOptions) (bson.M, error) {
	var doc bson.M
	if err := m.collection.FindOneAndUpdate(ctx, filter, update, opts...).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}

		return nil, wrapMongoError(err)
	}

	return doc, nil
}

func wrapMongoError(err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w. %s", ErrKeyAlreadyExists, err.Error())
	}

	return err
}
