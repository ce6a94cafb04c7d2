package docstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type book struct {
	DocumentBase `bson:",inline"`
	Title        string `bson:"title"`
}

func TestToStorageQuery(t *testing.T) {
	assert.Nil(t, toStorageQuery(nil))

	id := primitive.NewObjectID()
	filter := bson.M{"pk": id, "title": "Dune"}
	got := toStorageQuery(filter)
	assert.Equal(t, bson.M{"_id": id, "title": "Dune"}, got)
	assert.Equal(t, bson.M{"_id": id, "title": "Dune"}, filter)

	nested := bson.M{
		"$or": bson.A{
			bson.M{"pk": id},
			bson.M{"$and": []bson.M{{"pk": bson.M{"$ne": id}}, {"title": "Dune"}}},
		},
		"$nor": []interface{}{bson.M{"pk": 1}},
	}
	toStorageQuery(nested)
	assert.Equal(t, bson.M{
		"$or": bson.A{
			bson.M{"_id": id},
			bson.M{"$and": []bson.M{{"_id": bson.M{"$ne": id}}, {"title": "Dune"}}},
		},
		"$nor": []interface{}{bson.M{"_id": 1}},
	}, nested)

	untouched := bson.M{"title": "Dune", "author.pk": 1}
	assert.Equal(t, bson.M{"title": "Dune", "author.pk": 1}, toStorageQuery(untouched))
}

func TestToStorageSort(t *testing.T) {
	assert.Nil(t, toStorageSort(nil))
	assert.Equal(t,
		bson.D{{Key: "title", Value: 1}, {Key: "_id", Value: -1}},
		toStorageSort(bson.D{{Key: "title", Value: 1}, {Key: "pk", Value: -1}}),
	)
}

func TestParsePrimaryKey(t *testing.T) {
	id := primitive.NewObjectID()

	got, ok := ParsePrimaryKey(id.Hex())
	assert.True(t, ok)
	assert.Equal(t, id, got)

	got, ok = ParsePrimaryKey("AAAAAAAAAAAAAAAAAAAAAAAA")
	assert.True(t, ok)
	assert.Equal(t, "aaaaaaaaaaaaaaaaaaaaaaaa", got.Hex())

	for _, text := range []string{
		"",
		"bad",
		"uuuuuuuuuuuu",
		"uuuuuuuuuuuuuuuuuuuuuuuu",
		"aaaaaaaaaaaa-aaaaaaaaaaaa",
	} {
		got, ok := ParsePrimaryKey(text)
		assert.False(t, ok, text)
		assert.Equal(t, primitive.NilObjectID, got, text)
	}
}

func TestStorageDocuments(t *testing.T) {
	repo, err := NewRepository[primitive.ObjectID, *book]()
	require.NoError(t, err)

	b := repo.New()
	b.Title = "Dune"

	doc, err := repo.toStorageDocument(b)
	require.NoError(t, err)
	assert.Equal(t, bson.M{"_id": b.PK, "title": "Dune"}, doc)

	hydrated, err := repo.fromStorageDocument(doc)
	require.NoError(t, err)
	assert.Equal(t, b.PK, hydrated.PK)
	assert.Equal(t, "Dune", hydrated.Title)
	assert.True(t, hydrated.Persisted())
	assert.False(t, b.Persisted())

	out, err := repo.Output(b)
	require.NoError(t, err)
	assert.Equal(t, bson.M{"pk": b.PK, "title": "Dune"}, out)

	empty, err := repo.fromStorageDocument(nil)
	require.NoError(t, err)
	assert.Nil(t, empty)

	_, err = repo.fromStorageDocument(bson.M{"_id": b.PK, "title": 42})
	assert.Error(t, err)
}

func TestWithInsertKey(t *testing.T) {
	repo, err := NewRepository[string, *note](WithKeyGenerator(func() string { return "generated" }))
	require.NoError(t, err)

	patch := bson.M{"$set": bson.M{"text": "hi"}}
	got := repo.withInsertKey(bson.M{"text": "hi"}, patch)
	assert.Equal(t, bson.M{
		"$set":         bson.M{"text": "hi"},
		"$setOnInsert": bson.M{"_id": "generated"},
	}, got)
	assert.NotContains(t, patch, "$setOnInsert")

	merged := repo.withInsertKey(nil, bson.M{"$setOnInsert": bson.M{"text": "hi"}})
	assert.Equal(t, bson.M{"$setOnInsert": bson.M{"text": "hi", "_id": "generated"}}, merged)

	own := bson.M{"$setOnInsert": bson.M{"_id": "mine"}}
	assert.Equal(t, own, repo.withInsertKey(nil, own))

	keyed := bson.M{"$set": bson.M{"text": "hi"}}
	assert.Equal(t, keyed, repo.withInsertKey(bson.M{"_id": "k"}, keyed))

	replacement := bson.M{"text": "hi"}
	assert.Equal(t, replacement, repo.withInsertKey(nil, replacement))
}

type note struct {
	Base[string] `bson:",inline"`
	Text         string `bson:"text"`
}
