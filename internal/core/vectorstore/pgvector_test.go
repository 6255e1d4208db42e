package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embedhq/vectorproxy/internal/core"
)

func TestFilterSQLNil(t *testing.T) {
	conds, args, err := filterSQL(nil, 3)
	require.NoError(t, err)
	assert.Empty(t, conds)
	assert.Empty(t, args)
}

func TestFilterSQLComposite(t *testing.T) {
	conds, args, err := filterSQL(&core.FilterConditions{
		Must:    []core.FieldCondition{{Field: "kind", Value: "row"}},
		MustNot: []core.FieldCondition{{Field: "archived", Value: true}},
		Should: []core.FieldCondition{
			{Field: "lang", Value: "en"},
			{Field: "lang", Value: "de"},
		},
	}, 3)
	require.NoError(t, err)

	// predicates land in the WHERE clause, so LIMIT counts matching rows
	assert.Equal(t, []string{
		"payload @> $4::jsonb",
		"NOT payload @> $5::jsonb",
		"(payload @> $6::jsonb OR payload @> $7::jsonb)",
	}, conds)
	assert.Equal(t, []any{
		`{"kind":"row"}`,
		`{"archived":true}`,
		`{"lang":"en"}`,
		`{"lang":"de"}`,
	}, args)
}

func TestFilterSQLRejectsUnencodableValue(t *testing.T) {
	_, _, err := filterSQL(&core.FilterConditions{
		Must: []core.FieldCondition{{Field: "ch", Value: make(chan int)}},
	}, 0)
	assert.ErrorIs(t, err, core.ErrUnsupported)
}
