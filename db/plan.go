package db

import (
	"fmt"
	"iter"
	"strings"

	"github.com/nickyhof/MiniDB/btree"
	"github.com/nickyhof/MiniDB/core"
	"github.com/nickyhof/MiniDB/op"
	"github.com/nickyhof/MiniDB/sql"
)

// source is one table taking part in a statement.
type source struct {
	table  *op.Table
	schema core.Table
}

func newSource(table *op.Table) source {
	return source{table: table, schema: table.Schema()}
}

func (s source) name() string { return s.schema.Name }

// columnRef points at a column of one of the statement's sources.
type columnRef struct {
	side int
	col  int
}

// resolveColumn finds name among sources. A qualified name must match its
// table; an unqualified one must belong to exactly one source.
func resolveColumn(name string, sources []source) (columnRef, error) {
	if table, column, qualified := strings.Cut(name, "."); qualified {
		for side, s := range sources {
			if s.name() != table {
				continue
			}
			if col := s.schema.ColumnIndex(column); col >= 0 {
				return columnRef{side: side, col: col}, nil
			}
			return columnRef{}, fmt.Errorf("%w: %s", core.ErrUnknownColumn, name)
		}
		return columnRef{}, fmt.Errorf("%w: %s (table %s is not part of the query)", core.ErrUnknownColumn, name, table)
	}

	ref, found := columnRef{}, false
	for side, s := range sources {
		col := s.schema.ColumnIndex(name)
		if col < 0 {
			continue
		}
		if found {
			return columnRef{}, fmt.Errorf("%w: %s is ambiguous", core.ErrUnknownColumn, name)
		}
		ref, found = columnRef{side: side, col: col}, true
	}
	if !found {
		return columnRef{}, fmt.Errorf("%w: %s", core.ErrUnknownColumn, name)
	}
	return ref, nil
}

func (ref columnRef) column(sources []source) core.Column {
	return sources[ref.side].schema.Columns[ref.col]
}

// condition is a WHERE condition bound to a column.
type condition struct {
	columnRef
	column   string
	operator sql.WhereOperator
	value    core.Value
}

// matches applies the condition to a stored cell. NULL cells never match.
func (c condition) matches(cell core.Value) bool {
	if cell.IsNull() {
		return false
	}
	cmp, err := core.Compare(cell, c.value)
	if err != nil {
		return false
	}
	return c.operator.Matches(cmp)
}

// bindConditions resolves every condition and checks literal types before
// any row is read.
func bindConditions(where sql.WhereClause, sources []source) ([]condition, error) {
	conditions := make([]condition, 0, len(where.Conditions))
	for _, wc := range where.Conditions {
		ref, err := resolveColumn(wc.Column, sources)
		if err != nil {
			return nil, err
		}
		column := ref.column(sources)
		if wc.Value.IsNull() {
			return nil, fmt.Errorf("%w: %s compared with NULL", core.ErrMalformedPredicate, wc.Column)
		}
		if !wc.Value.Compatible(column.Type) {
			return nil, fmt.Errorf("%w: %s is %s, literal %s is %s",
				core.ErrMalformedPredicate, wc.Column, column.Type, wc.Value.SQL(), wc.Value.Kind())
		}
		conditions = append(conditions, condition{
			columnRef: ref,
			column:    column.Name,
			operator:  wc.Operator,
			value:     wc.Value,
		})
	}
	return conditions, nil
}

func conditionsFor(side int, conditions []condition) []condition {
	var out []condition
	for _, c := range conditions {
		if c.side == side {
			out = append(out, c)
		}
	}
	return out
}

func matchAll(row core.Row, conditions []condition) bool {
	for _, c := range conditions {
		if !c.matches(row[c.col]) {
			return false
		}
	}
	return true
}

// accessPath is how rows of one table are produced before filtering.
type accessPath struct {
	description string
	rows        iter.Seq2[core.RowID, core.Row]
}

// chooseAccessPath picks, in order of preference: an equality lookup on an
// indexed column (unique indexes first), a range over an indexed column
// with all of its range conditions folded into one interval, or a full
// scan. <> never uses an index.
func chooseAccessPath(s source, conditions []condition) (accessPath, error) {
	var (
		eqIndex *op.Index
		eqValue core.Value
	)
	for _, c := range conditions {
		if c.operator != sql.EqualsOperator {
			continue
		}
		idx, ok := s.table.IndexOn(c.column)
		if !ok {
			continue
		}
		if eqIndex == nil || (idx.Unique && !eqIndex.Unique) {
			eqIndex, eqValue = idx, c.value
		}
	}
	if eqIndex != nil {
		rows, err := s.table.Lookup(eqIndex.Name, eqValue)
		if err != nil {
			return accessPath{}, err
		}
		return accessPath{description: "index lookup " + eqIndex.Name, rows: rows}, nil
	}

	for _, c := range conditions {
		if !isRange(c.operator) {
			continue
		}
		idx, ok := s.table.IndexOn(c.column)
		if !ok {
			continue
		}
		low, high := foldRange(c.column, conditions)
		rows, err := s.table.Range(idx.Name, low, high)
		if err != nil {
			return accessPath{}, err
		}
		return accessPath{description: "index range " + idx.Name, rows: rows}, nil
	}

	return accessPath{description: "scan " + s.name(), rows: s.table.Scan()}, nil
}

func isRange(operator sql.WhereOperator) bool {
	switch operator {
	case sql.LessThanOperator, sql.LessThanOrEqualOperator,
		sql.GreaterThanOperator, sql.GreaterThanOrEqualOperator:
		return true
	}
	return false
}

// foldRange intersects every range condition on column into the tightest
// [low, high] interval.
func foldRange(column string, conditions []condition) (btree.Bound[core.Value], btree.Bound[core.Value]) {
	low, high := btree.Unbounded[core.Value](), btree.Unbounded[core.Value]()
	for _, c := range conditions {
		if c.column != column {
			continue
		}
		switch c.operator {
		case sql.GreaterThanOperator:
			low = tighterLow(low, btree.Exclusive(c.value))
		case sql.GreaterThanOrEqualOperator:
			low = tighterLow(low, btree.Inclusive(c.value))
		case sql.LessThanOperator:
			high = tighterHigh(high, btree.Exclusive(c.value))
		case sql.LessThanOrEqualOperator:
			high = tighterHigh(high, btree.Inclusive(c.value))
		}
	}
	return low, high
}

func tighterLow(current, candidate btree.Bound[core.Value]) btree.Bound[core.Value] {
	cur, ok := current.Key()
	if !ok {
		return candidate
	}
	next, _ := candidate.Key()
	switch c := core.KeyCompare(next, cur); {
	case c > 0:
		return candidate
	case c == 0 && !candidate.IsInclusive():
		return candidate
	}
	return current
}

func tighterHigh(current, candidate btree.Bound[core.Value]) btree.Bound[core.Value] {
	cur, ok := current.Key()
	if !ok {
		return candidate
	}
	next, _ := candidate.Key()
	switch c := core.KeyCompare(next, cur); {
	case c < 0:
		return candidate
	case c == 0 && !candidate.IsInclusive():
		return candidate
	}
	return current
}

// joinPlan is an inner equi-join between sources 0 and 1.
type joinPlan struct {
	left  columnRef
	right columnRef
	probe *op.Index
}

func bindJoin(join *sql.JoinClause, sources []source) (joinPlan, error) {
	a, err := resolveColumn(join.LeftCol, sources)
	if err != nil {
		return joinPlan{}, err
	}
	b, err := resolveColumn(join.RightCol, sources)
	if err != nil {
		return joinPlan{}, err
	}
	if a.side == b.side {
		return joinPlan{}, fmt.Errorf("%w: join condition %s = %s must compare columns of both tables",
			core.ErrMalformedPredicate, join.LeftCol, join.RightCol)
	}
	if a.side == 1 {
		a, b = b, a
	}

	lt, rt := a.column(sources).Type, b.column(sources).Type
	numeric := func(t core.ColumnType) bool { return t == core.IntType || t == core.FloatType }
	if lt != rt && !(numeric(lt) && numeric(rt)) {
		return joinPlan{}, fmt.Errorf("%w: cannot join %s column with %s column", core.ErrMalformedPredicate, lt, rt)
	}

	plan := joinPlan{left: a, right: b}
	if idx, ok := sources[1].table.IndexOn(b.column(sources).Name); ok {
		plan.probe = idx
	}
	return plan, nil
}
