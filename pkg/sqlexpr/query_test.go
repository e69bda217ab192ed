package sqlexpr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuery_EqualsAnd(t *testing.T) {
	q := NewQuery(testMap())
	q.Equals(q.Field("uuid"), q.String("abc")).
		Equals(q.Field("content"), q.String("hello")).
		And()

	require.NoError(t, q.Err())
	assert.Equal(t, "N.uuid = $1 AND N.content = $2", q.Condition())
	assert.Equal(t, " WHERE N.uuid = $1 AND N.content = $2", q.WhereClause())
	assert.Equal(t, []interface{}{"abc", "hello"}, q.Args())
}

func TestQuery_Or(t *testing.T) {
	q := NewQuery(testMap())
	q.Equals(q.Field("content"), q.String("a")).
		Equals(q.Field("content"), q.String("b")).
		Or()

	require.NoError(t, q.Err())
	assert.Equal(t, "N.content = $1 OR N.content = $2", q.Condition())
}

func TestQuery_IsNull(t *testing.T) {
	t.Run("renders the postfix test", func(t *testing.T) {
		q := NewQuery(testMap())
		q.IsNull(q.Field("sendAt"))

		require.NoError(t, q.Err())
		assert.Equal(t, "N.send_at IS NULL", q.Condition())
		assert.Empty(t, q.Args())
	})

	t.Run("or branch keeps grouping under and", func(t *testing.T) {
		q := NewQuery(testMap())
		q.Equals(q.Field("content"), q.String("hello"))
		q.LessThanOrEqualTo(q.Field("sendAt"), q.String("2026-01-01"))
		q.IsNull(q.Field("sendAt"))
		q.Or()
		q.And()

		require.NoError(t, q.Err())
		assert.Equal(t, "N.content = $1 AND (N.send_at <= $2 OR N.send_at IS NULL)", q.Condition())
		assert.Equal(t, []interface{}{"hello", "2026-01-01"}, q.Args())
	})
}

func TestQuery_ImplicitAnd(t *testing.T) {
	// Conditions left unjoined on the stack are AND-ed in push order.
	q := NewQuery(testMap())
	q.Equals(q.Field("uuid"), q.String("abc"))
	q.LessThanOrEqualTo(q.Field("sendAt"), q.String("2026-01-01"))

	require.NoError(t, q.Err())
	assert.Equal(t, "N.uuid = $1 AND N.send_at <= $2", q.Condition())
}

func TestQuery_Comparisons(t *testing.T) {
	tests := []struct {
		name  string
		build func(q *Query)
		want  string
	}{
		{"not equals", func(q *Query) { q.NotEquals(q.Field("content"), q.String("x")) }, "N.content <> $1"},
		{"less than", func(q *Query) { q.LessThan(q.Field("sendAt"), q.String("x")) }, "N.send_at < $1"},
		{"greater than", func(q *Query) { q.GreaterThan(q.Field("sendAt"), q.String("x")) }, "N.send_at > $1"},
		{"greater or equal", func(q *Query) { q.GreaterThanOrEqualTo(q.Field("sendAt"), q.String("x")) }, "N.send_at >= $1"},
		{"like", func(q *Query) { q.Like(q.Field("content"), q.String("x%")) }, "N.content LIKE $1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewQuery(testMap())
			tt.build(q)
			require.NoError(t, q.Err())
			assert.Equal(t, tt.want, q.Condition())
		})
	}
}

func TestQuery_UnknownFieldLatchesError(t *testing.T) {
	q := NewQuery(testMap())
	q.Equals(q.Field("nonexistent"), q.String("x"))

	err := q.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown field")
	assert.Contains(t, err.Error(), "nonexistent")
}

func TestQuery_JoinWithoutOperands(t *testing.T) {
	t.Run("empty stack", func(t *testing.T) {
		q := NewQuery(testMap())
		q.And()
		require.Error(t, q.Err())
	})

	t.Run("single operand", func(t *testing.T) {
		q := NewQuery(testMap())
		q.Equals(q.Field("uuid"), q.String("abc")).Or()
		require.Error(t, q.Err())
	})
}

func TestQuery_FirstErrorWins(t *testing.T) {
	q := NewQuery(testMap())
	q.Equals(q.Field("bogus"), q.String("x"))
	q.And()

	require.Error(t, q.Err())
	assert.Contains(t, q.Err().Error(), "unknown field")
}

func TestQuery_Clauses(t *testing.T) {
	t.Run("defaults are empty", func(t *testing.T) {
		q := NewQuery(testMap())
		assert.Equal(t, "", q.WhereClause())
		assert.Equal(t, "", q.OrderClause())
		assert.Equal(t, "", q.LimitClause())
		assert.Equal(t, "", q.SkipClause())
	})

	t.Run("limit and skip", func(t *testing.T) {
		q := NewQuery(testMap()).Limit(25).Skip(50)
		assert.Equal(t, " LIMIT 25", q.LimitClause())
		assert.Equal(t, " OFFSET 50", q.SkipClause())
	})

	t.Run("limit zero renders", func(t *testing.T) {
		q := NewQuery(testMap()).Limit(0)
		assert.Equal(t, " LIMIT 0", q.LimitClause())
	})

	t.Run("descending order", func(t *testing.T) {
		q := NewQuery(testMap()).Descending("sendAt")
		assert.Equal(t, " ORDER BY N.send_at DESC", q.OrderClause())
	})

	t.Run("ascending multi column", func(t *testing.T) {
		q := NewQuery(testMap()).Ascending("content", "sendAt")
		assert.Equal(t, " ORDER BY N.content, N.send_at ASC", q.OrderClause())
	})
}

func TestQuery_ArgList(t *testing.T) {
	q := NewQuery(testMap())
	q.Equals(q.Field("uuid"), q.String("abc"))
	q.GreaterThan(q.Field("sendAt"), q.Integer(100))

	args := q.ArgList()
	require.Len(t, args, 2)
	assert.Equal(t, Arg{Position: 1, Value: "abc", Type: StorageText}, args[0])
	assert.Equal(t, Arg{Position: 2, Value: int64(100), Type: StorageInteger}, args[1])
}
