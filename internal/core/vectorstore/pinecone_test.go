package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embedhq/vectorproxy/internal/core"
)

func TestToPineconeFilterNilAndEmpty(t *testing.T) {
	s, err := toPineconeFilter(nil)
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = toPineconeFilter(&core.FilterConditions{})
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestToPineconeFilterSingleMust(t *testing.T) {
	s, err := toPineconeFilter(&core.FilterConditions{
		Must: []core.FieldCondition{{Field: "kind", Value: "row"}},
	})
	require.NoError(t, err)
	require.NotNil(t, s)

	// a single clause is emitted without the $and wrapper
	assert.Equal(t, map[string]any{
		"kind": map[string]any{"$eq": "row"},
	}, s.AsMap())
}

func TestToPineconeFilterComposite(t *testing.T) {
	s, err := toPineconeFilter(&core.FilterConditions{
		Must:    []core.FieldCondition{{Field: "kind", Value: "row"}},
		MustNot: []core.FieldCondition{{Field: "archived", Value: true}},
		Should: []core.FieldCondition{
			{Field: "lang", Value: "en"},
			{Field: "lang", Value: "de"},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, s)

	assert.Equal(t, map[string]any{
		"$and": []any{
			map[string]any{"kind": map[string]any{"$eq": "row"}},
			map[string]any{"archived": map[string]any{"$ne": true}},
			map[string]any{"$or": []any{
				map[string]any{"lang": map[string]any{"$eq": "en"}},
				map[string]any{"lang": map[string]any{"$eq": "de"}},
			}},
		},
	}, s.AsMap())
}

func TestToPineconeFilterRejectsInexpressibleValue(t *testing.T) {
	_, err := toPineconeFilter(&core.FilterConditions{
		Must: []core.FieldCondition{{Field: "ch", Value: make(chan int)}},
	})
	assert.ErrorIs(t, err, core.ErrUnsupported)
}
