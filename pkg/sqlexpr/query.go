package sqlexpr

import (
	"strconv"

	"github.com/pkg/errors"
)

// Arg is one positional bind argument registered while building a query.
// Position is the 1-based bind-parameter number and matches the placeholder
// rendered by the literal node it was created with.
type Arg struct {
	Position int
	Value    interface{}
	Type     StorageType
}

// Query builds an expression tree over one aggregate's DataMap while tracking
// the bind arguments in the exact order their placeholders were handed out.
// Aggregate-specific query types embed it and implement execution against
// their own correlated SQL.
//
// Builder misuse (unknown field, And/Or without two operands) is latched into
// Err rather than panicking, so call sites can chain and check once.
type Query struct {
	dm    *DataMap
	stack []Expression
	args  []Arg
	skip  int
	limit int
	order *OrderBy
	err   error
}

func NewQuery(dm *DataMap) *Query {
	return &Query{dm: dm, skip: -1, limit: -1}
}

func (q *Query) DataMap() *DataMap { return q.dm }

// Err reports the first builder misuse, if any. Execute implementations must
// check it before rendering SQL.
func (q *Query) Err() error { return q.err }

func (q *Query) fail(err error) {
	if q.err == nil {
		q.err = err
	}
}

// Field resolves a logical field name to an alias-qualified column node.
func (q *Query) Field(name string) Expression {
	col, ok := q.dm.ColumnFor(name)
	if !ok {
		q.fail(errors.Errorf("sqlexpr: unknown field %q on table %s", name, q.dm.Table()))
		return Column{}
	}
	return Column{TableAlias: q.dm.Alias(), Name: col}
}

// String registers a bound text argument and returns its placeholder node.
func (q *Query) String(v string) Expression {
	pos := q.nextPosition()
	q.args = append(q.args, Arg{Position: pos, Value: v, Type: StorageText})
	return BoundString(v, pos)
}

// Integer registers a bound integer argument and returns its placeholder node.
func (q *Query) Integer(v int64) Expression {
	pos := q.nextPosition()
	q.args = append(q.args, Arg{Position: pos, Value: v, Type: StorageInteger})
	return BoundInt(v, pos)
}

// FloatingPoint registers a bound float argument and returns its placeholder node.
func (q *Query) FloatingPoint(v float64) Expression {
	pos := q.nextPosition()
	q.args = append(q.args, Arg{Position: pos, Value: v, Type: StorageFloat})
	return BoundFloat(v, pos)
}

// Bool registers a bound boolean argument and returns its placeholder node.
func (q *Query) Bool(v bool) Expression {
	pos := q.nextPosition()
	q.args = append(q.args, Arg{Position: pos, Value: v, Type: StorageBoolean})
	return BoundBool(v, pos)
}

func (q *Query) nextPosition() int { return len(q.args) + 1 }

func (q *Query) push(e Expression) { q.stack = append(q.stack, e) }

func (q *Query) pop() (Expression, bool) {
	if len(q.stack) == 0 {
		return nil, false
	}
	e := q.stack[len(q.stack)-1]
	q.stack = q.stack[:len(q.stack)-1]
	return e, true
}

func (q *Query) compare(left, right Expression, op Operator) *Query {
	q.push(Binary{Left: left, Op: op, Right: right})
	return q
}

func (q *Query) Equals(left, right Expression) *Query {
	return q.compare(left, right, OpEquals)
}

func (q *Query) NotEquals(left, right Expression) *Query {
	return q.compare(left, right, OpNotEquals)
}

func (q *Query) LessThan(left, right Expression) *Query {
	return q.compare(left, right, OpLessThan)
}

func (q *Query) LessThanOrEqualTo(left, right Expression) *Query {
	return q.compare(left, right, OpLessOrEqual)
}

func (q *Query) GreaterThan(left, right Expression) *Query {
	return q.compare(left, right, OpGreaterThan)
}

func (q *Query) GreaterThanOrEqualTo(left, right Expression) *Query {
	return q.compare(left, right, OpGreaterOrEqual)
}

func (q *Query) Like(left, right Expression) *Query {
	return q.compare(left, right, OpLike)
}

// IsNull pushes a NULL test for the given column expression.
func (q *Query) IsNull(e Expression) *Query {
	q.push(IsNull{Operand: e})
	return q
}

func (q *Query) join(op Operator) *Query {
	right, ok := q.pop()
	if !ok {
		q.fail(errors.Errorf("sqlexpr: %s with empty expression stack", op))
		return q
	}
	left, ok := q.pop()
	if !ok {
		q.fail(errors.Errorf("sqlexpr: %s needs two operands", op))
		return q
	}
	q.push(Binary{Left: left, Op: op, Right: right})
	return q
}

// And pops the two most recent conditions and joins them with AND.
func (q *Query) And() *Query { return q.join(OpAnd) }

// Or pops the two most recent conditions and joins them with OR.
func (q *Query) Or() *Query { return q.join(OpOr) }

func (q *Query) Skip(n int) *Query {
	q.skip = n
	return q
}

func (q *Query) Limit(n int) *Query {
	q.limit = n
	return q
}

func (q *Query) orderBy(dir SortDirection, fields []string) *Query {
	cols := make(ColumnList, 0, len(fields))
	for _, f := range fields {
		cols = append(cols, q.Field(f))
	}
	q.order = &OrderBy{Columns: cols, Direction: dir}
	return q
}

func (q *Query) Ascending(fields ...string) *Query {
	return q.orderBy(SortAscending, fields)
}

func (q *Query) Descending(fields ...string) *Query {
	return q.orderBy(SortDescending, fields)
}

// Condition interprets the accumulated expression tree. Conditions left
// unjoined on the stack are implicitly AND-ed in push order.
func (q *Query) Condition() string {
	if len(q.stack) == 0 {
		return ""
	}
	e := q.stack[0]
	for _, next := range q.stack[1:] {
		e = Binary{Left: e, Op: OpAnd, Right: next}
	}
	return e.Interpret()
}

// WhereClause renders " WHERE <condition>", or "" when no condition was built.
func (q *Query) WhereClause() string {
	cond := q.Condition()
	if cond == "" {
		return ""
	}
	return " WHERE " + cond
}

// OrderClause renders " ORDER BY ...", or "" when no ordering was requested.
func (q *Query) OrderClause() string {
	if q.order == nil {
		return ""
	}
	return " " + q.order.Interpret()
}

// LimitClause renders " LIMIT n", or "" when no limit was set.
func (q *Query) LimitClause() string {
	if q.limit < 0 {
		return ""
	}
	return " LIMIT " + strconv.Itoa(q.limit)
}

// SkipClause renders " OFFSET n", or "" when no skip was set.
func (q *Query) SkipClause() string {
	if q.skip < 0 {
		return ""
	}
	return " OFFSET " + strconv.Itoa(q.skip)
}

// Args returns the bind values in registration order, ready to pass to a
// prepared statement. The slice index i holds the value for placeholder $i+1.
func (q *Query) Args() []interface{} {
	vals := make([]interface{}, len(q.args))
	for i, a := range q.args {
		vals[i] = a.Value
	}
	return vals
}

// ArgList returns the full (position, value, type) tuples in registration order.
func (q *Query) ArgList() []Arg {
	out := make([]Arg, len(q.args))
	copy(out, q.args)
	return out
}
