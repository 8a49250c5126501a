package db

import (
	"fmt"
	"time"

	"github.com/nickyhof/MiniDB/core"
	"github.com/nickyhof/MiniDB/sql"
)

func (engine *Engine) executeSelectStatement(statement sql.SelectStatement) (QueryResult, error) {
	startTime := time.Now()

	left, err := engine.database.Get(statement.Table)
	if err != nil {
		return QueryResult{}, err
	}
	sources := []source{newSource(left)}
	if statement.Join != nil {
		// without aliases both sides would share one name
		if statement.Join.Table == statement.Table {
			return QueryResult{}, fmt.Errorf("%w: cannot join %s with itself", core.ErrMalformedPredicate, statement.Table)
		}
		right, err := engine.database.Get(statement.Join.Table)
		if err != nil {
			return QueryResult{}, err
		}
		sources = append(sources, newSource(right))
	}

	conditions, err := bindConditions(statement.Where, sources)
	if err != nil {
		return QueryResult{}, err
	}
	columns, refs, err := projection(statement, sources)
	if err != nil {
		return QueryResult{}, err
	}

	leftConditions := conditionsFor(0, conditions)
	leftPath, err := chooseAccessPath(sources[0], leftConditions)
	if err != nil {
		return QueryResult{}, err
	}

	result := QueryResult{Columns: columns, Plan: []string{leftPath.description}}
	project := func(row ...core.Row) {
		out := make(core.Row, len(refs))
		for i, ref := range refs {
			out[i] = row[ref.side][ref.col]
		}
		result.Rows = append(result.Rows, out)
	}

	if statement.Join == nil {
		for _, row := range leftPath.rows {
			result.ExecutionOps++
			if matchAll(row, leftConditions) {
				project(row)
			}
		}
	} else {
		join, err := bindJoin(statement.Join, sources)
		if err != nil {
			return QueryResult{}, err
		}
		rightConditions := conditionsFor(1, conditions)
		rightPath, err := chooseAccessPath(sources[1], rightConditions)
		if err != nil {
			return QueryResult{}, err
		}
		if join.probe != nil {
			result.Plan = append(result.Plan, "index probe "+join.probe.Name)
		} else {
			result.Plan = append(result.Plan, rightPath.description)
		}

		right := sources[1].table
		for _, leftRow := range leftPath.rows {
			result.ExecutionOps++
			if !matchAll(leftRow, leftConditions) {
				continue
			}
			key := leftRow[join.left.col]
			if key.IsNull() {
				continue
			}

			candidates := rightPath.rows
			if join.probe != nil {
				if candidates, err = right.Lookup(join.probe.Name, key); err != nil {
					return QueryResult{}, err
				}
			}
			for _, rightRow := range candidates {
				result.ExecutionOps++
				other := rightRow[join.right.col]
				if other.IsNull() {
					continue
				}
				if c, err := core.Compare(key, other); err != nil || c != 0 {
					continue
				}
				if matchAll(rightRow, rightConditions) {
					project(leftRow, rightRow)
				}
			}
		}
	}

	result.RecordsRead = len(result.Rows)
	result.ExecutionTimeSec = time.Since(startTime).Seconds()
	engine.logger.Debug("select executed", "table", statement.Table, "plan", result.Plan, "rows", result.RecordsRead, "examined", result.ExecutionOps)
	return result, nil
}

// projection resolves the selected columns. * expands to every column of
// the first table then the second; in a join the expanded names are
// qualified with their table.
func projection(statement sql.SelectStatement, sources []source) ([]string, []columnRef, error) {
	var (
		names []string
		refs  []columnRef
	)

	if len(statement.Columns) == 0 {
		for side, s := range sources {
			for col, column := range s.schema.Columns {
				name := column.Name
				if len(sources) > 1 {
					name = s.name() + "." + column.Name
				}
				names = append(names, name)
				refs = append(refs, columnRef{side: side, col: col})
			}
		}
		return names, refs, nil
	}

	for _, name := range statement.Columns {
		ref, err := resolveColumn(name, sources)
		if err != nil {
			return nil, nil, err
		}
		names = append(names, name)
		refs = append(refs, ref)
	}
	return names, refs, nil
}
