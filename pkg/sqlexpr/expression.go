package sqlexpr

import (
	"strconv"
	"strings"
)

// Expression is a node of a composable SQL fragment tree. Interpret renders
// the node (and its children) to SQL text. Literal nodes render either their
// literal value or a positional bind marker, depending on how they were built.
type Expression interface {
	Interpret() string
}

// StorageType classifies how a value is bound/persisted.
type StorageType int

const (
	StorageText StorageType = iota
	StorageInteger
	StorageFloat
	StorageBoolean
	StorageTimestamp
	StorageUUID
)

// Operator is a binary SQL operator joining two sub-expressions.
type Operator string

const (
	OpAnd            Operator = "AND"
	OpOr             Operator = "OR"
	OpEquals         Operator = "="
	OpNotEquals      Operator = "<>"
	OpLessThan       Operator = "<"
	OpLessOrEqual    Operator = "<="
	OpGreaterThan    Operator = ">"
	OpGreaterOrEqual Operator = ">="
	OpLike           Operator = "LIKE"
)

func placeholder(position int) string {
	return "$" + strconv.Itoa(position)
}

// Column references a physical column, optionally qualified by a table alias
// and optionally renamed in the output row.
type Column struct {
	TableAlias  string
	Name        string
	OutputAlias string
}

func (c Column) Interpret() string {
	s := c.Name
	if c.TableAlias != "" {
		s = c.TableAlias + "." + s
	}
	if c.OutputAlias != "" {
		s += " AS " + c.OutputAlias
	}
	return s
}

// IntLiteral is a terminal integer value. A position > 0 marks it as a bind
// placeholder; position 0 renders the literal text.
type IntLiteral struct {
	Value    int64
	position int
}

func Int(v int64) IntLiteral               { return IntLiteral{Value: v} }
func BoundInt(v int64, pos int) IntLiteral { return IntLiteral{Value: v, position: pos} }

func (l IntLiteral) Interpret() string {
	if l.position > 0 {
		return placeholder(l.position)
	}
	return strconv.FormatInt(l.Value, 10)
}

type FloatLiteral struct {
	Value    float64
	position int
}

func Float(v float64) FloatLiteral               { return FloatLiteral{Value: v} }
func BoundFloat(v float64, pos int) FloatLiteral { return FloatLiteral{Value: v, position: pos} }

func (l FloatLiteral) Interpret() string {
	if l.position > 0 {
		return placeholder(l.position)
	}
	return strconv.FormatFloat(l.Value, 'f', -1, 64)
}

type StringLiteral struct {
	Value    string
	position int
}

func String(v string) StringLiteral               { return StringLiteral{Value: v} }
func BoundString(v string, pos int) StringLiteral { return StringLiteral{Value: v, position: pos} }

func (l StringLiteral) Interpret() string {
	if l.position > 0 {
		return placeholder(l.position)
	}
	return "'" + strings.ReplaceAll(l.Value, "'", "''") + "'"
}

type BoolLiteral struct {
	Value    bool
	position int
}

func Bool(v bool) BoolLiteral               { return BoolLiteral{Value: v} }
func BoundBool(v bool, pos int) BoolLiteral { return BoolLiteral{Value: v, position: pos} }

func (l BoolLiteral) Interpret() string {
	if l.position > 0 {
		return placeholder(l.position)
	}
	if l.Value {
		return "TRUE"
	}
	return "FALSE"
}

// Binary joins two sub-expressions with an operator.
type Binary struct {
	Left  Expression
	Op    Operator
	Right Expression
}

func (b Binary) Interpret() string {
	return b.operand(b.Left) + " " + string(b.Op) + " " + b.operand(b.Right)
}

// An OR child under an AND parent keeps its own grouping; SQL's AND binds
// tighter and would otherwise swallow the right-hand OR operand.
func (b Binary) operand(e Expression) string {
	if child, ok := e.(Binary); ok && child.Op == OpOr && b.Op == OpAnd {
		return "(" + child.Interpret() + ")"
	}
	return e.Interpret()
}

// IsNull renders a postfix NULL test; NULL never matches any comparison
// operator, so nullable columns need the test spelled out.
type IsNull struct {
	Operand Expression
}

func (e IsNull) Interpret() string {
	return e.Operand.Interpret() + " IS NULL"
}

// SortDirection is a terminal ASC/DESC marker.
type SortDirection string

const (
	SortAscending  SortDirection = "ASC"
	SortDescending SortDirection = "DESC"
)

func (s SortDirection) Interpret() string { return string(s) }

// ColumnList renders its members joined with ", ".
type ColumnList []Expression

func (cl ColumnList) Interpret() string {
	parts := make([]string, len(cl))
	for i, c := range cl {
		parts[i] = c.Interpret()
	}
	return strings.Join(parts, ", ")
}

// OrderBy joins a column list with a sort direction.
type OrderBy struct {
	Columns   ColumnList
	Direction SortDirection
}

func (o OrderBy) Interpret() string {
	return "ORDER BY " + o.Columns.Interpret() + " " + o.Direction.Interpret()
}
