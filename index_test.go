package docstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestSortBy(t *testing.T) {
	assert.Equal(t, bson.D{}, SortBy())
	assert.Equal(t,
		bson.D{{Key: "age", Value: Descending}, {Key: "name", Value: Ascending}, {Key: "pk", Value: Ascending}},
		SortBy("-age", "+name", " ", "pk"),
	)
}

func TestIndexSpecModel(t *testing.T) {
	ttl := int32(3600)
	spec := IndexSpec{
		Name:               "session_ttl",
		Fields:             []string{"pk", "-createdAt"},
		Unique:             true,
		Sparse:             true,
		ExpireAfterSeconds: &ttl,
	}

	model, err := spec.Model()
	require.NoError(t, err)
	assert.Equal(t, bson.D{{Key: "_id", Value: Ascending}, {Key: "createdAt", Value: Descending}}, model.Keys)
	require.NotNil(t, model.Options)
	assert.Equal(t, "session_ttl", *model.Options.Name)
	assert.True(t, *model.Options.Unique)
	assert.True(t, *model.Options.Sparse)
	assert.Equal(t, ttl, *model.Options.ExpireAfterSeconds)

	model, err = IndexSpec{Fields: []string{"email"}}.Model()
	require.NoError(t, err)
	assert.Nil(t, model.Options.Name)
	assert.Nil(t, model.Options.Unique)

	_, err = IndexSpec{Name: "empty"}.Model()
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
