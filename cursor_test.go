package docstore_test

import (
	"context"
	"errors"
	"testing"

	"github.com/likearthian/docstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func seedFamily(t *testing.T) *docstore.Repository[primitive.ObjectID, *person] {
	repo, _ := newPeople(t)
	savePeople(t, repo,
		&person{Name: "Brian", Age: 22},
		&person{Name: "Aron", Age: 35},
		&person{Name: "Carl", Age: 22},
		&person{Name: "Dina", Age: 8},
	)

	return repo
}

func namesOf(people []*person) []string {
	names := make([]string, len(people))
	for i, p := range people {
		names[i] = p.Name
	}

	return names
}

func TestCursorToArray(t *testing.T) {
	ctx := context.Background()
	repo := seedFamily(t)

	all, err := repo.FindAll(nil, nil).ToArray(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Brian", "Aron", "Carl", "Dina"}, namesOf(all))
	for _, p := range all {
		assert.True(t, p.Persisted())
	}

	sorted, err := repo.FindAll(bson.M{"age": bson.M{"$gt": 10}}, docstore.SortBy("age", "-name")).ToArray(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Carl", "Brian", "Aron"}, namesOf(sorted))

	desc, err := repo.Find(nil, nil).Sort(docstore.SortBy("-name")).ToArray(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Dina", "Carl", "Brian", "Aron"}, namesOf(desc))

	none, err := repo.FindAll(bson.M{"name": "Eve"}, nil).ToArray(ctx)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestCursorSortByKey(t *testing.T) {
	ctx := context.Background()
	repo := seedFamily(t)

	byKey, err := repo.FindAll(nil, docstore.SortBy("-pk")).ToArray(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Dina", "Carl", "Aron", "Brian"}, namesOf(byKey))
}

func TestCursorPagination(t *testing.T) {
	ctx := context.Background()
	repo := seedFamily(t)

	cursor := repo.FindAll(nil, docstore.SortBy("name"))
	page, err := cursor.Skip(1).Limit(2).ToArray(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Brian", "Carl"}, namesOf(page))

	count, err := cursor.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)

	count, err = repo.FindAll(bson.M{"age": 22}, nil).Limit(1).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	past, err := repo.FindAll(nil, nil).Skip(10).ToArray(ctx)
	require.NoError(t, err)
	assert.Empty(t, past)
}

func TestCursorIter(t *testing.T) {
	ctx := context.Background()
	repo := seedFamily(t)

	iter, err := repo.FindAll(bson.M{"age": 22}, docstore.SortBy("name")).Iter(ctx)
	require.NoError(t, err)
	defer iter.Close()

	var names []string
	for {
		p, err := iter.Next()
		if errors.Is(err, docstore.ErrIteratorDone) {
			break
		}
		require.NoError(t, err)
		names = append(names, p.Name)
	}

	assert.Equal(t, []string{"Brian", "Carl"}, names)

	_, err = iter.Next()
	assert.ErrorIs(t, err, docstore.ErrIteratorDone)
}

func TestCursorIsLazy(t *testing.T) {
	ctx := context.Background()

	repo, err := docstore.NewRepository[primitive.ObjectID, *person]()
	require.NoError(t, err)

	cursor := repo.FindAll(bson.M{"name": "Adam"}, nil).Limit(1)

	_, err = cursor.ToArray(ctx)
	assert.ErrorIs(t, err, docstore.ErrNotBound)

	_, coll := newPeople(t)
	repo.Bind(coll)
	savePeople(t, repo, &person{Name: "Adam"}, &person{Name: "Adam"})

	found, err := cursor.ToArray(ctx)
	require.NoError(t, err)
	assert.Len(t, found, 1)
}
