package db

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nickyhof/MiniDB/core"
	"github.com/nickyhof/MiniDB/op"
	"github.com/nickyhof/MiniDB/sql"
)

// Engine executes statements against one catalog. It keeps no state of its
// own between calls and is not safe for concurrent use.
type Engine struct {
	database *op.Database
	logger   *slog.Logger
}

func NewEngine(database *op.Database, opts ...Option) *Engine {
	return &Engine{
		database: database,
		logger:   buildOptions(opts).logger,
	}
}

// Database returns the catalog the engine is bound to.
func (engine *Engine) Database() *op.Database {
	return engine.database
}

// ExecuteSQL parses query and executes the resulting statement.
func (engine *Engine) ExecuteSQL(query string) (Result, error) {
	parser := sql.NewParser(query)
	statement, err := parser.Parse()
	if err != nil {
		return nil, err
	}
	return engine.Execute(statement)
}

func (engine *Engine) Execute(statement sql.Statement) (Result, error) {
	switch statement.Type() {
	case sql.SelectStatementType:
		return engine.executeSelectStatement(statement.(sql.SelectStatement))
	case sql.InsertStatementType:
		return engine.executeInsertStatement(statement.(sql.InsertStatement))
	case sql.UpdateStatementType:
		return engine.executeUpdateStatement(statement.(sql.UpdateStatement))
	case sql.DeleteStatementType:
		return engine.executeDeleteStatement(statement.(sql.DeleteStatement))
	case sql.CreateTableStatementType:
		return engine.executeCreateTableStatement(statement.(sql.CreateTableStatement))
	case sql.DropTableStatementType:
		return engine.executeDropTableStatement(statement.(sql.DropTableStatement))
	case sql.CreateIndexStatementType:
		return engine.executeCreateIndexStatement(statement.(sql.CreateIndexStatement))
	case sql.DropIndexStatementType:
		return engine.executeDropIndexStatement(statement.(sql.DropIndexStatement))
	case sql.DescribeStatementType:
		return engine.executeDescribeStatement(statement.(sql.DescribeStatement))
	case sql.ShowTablesStatementType:
		return engine.executeShowTablesStatement()
	case sql.ShowIndexesStatementType:
		return engine.executeShowIndexesStatement(statement.(sql.ShowIndexesStatement))
	default:
		return nil, fmt.Errorf("unsupported statement type: %v", statement.Type())
	}
}

// executeInsertStatement inserts every row of the statement or none of
// them.
func (engine *Engine) executeInsertStatement(statement sql.InsertStatement) (CommitResult, error) {
	startTime := time.Now()

	table, err := engine.database.Get(statement.Table)
	if err != nil {
		return CommitResult{}, err
	}
	schema := table.Schema()

	var positions []int
	if statement.Columns != nil {
		seen := make(map[int]bool, len(statement.Columns))
		for _, name := range statement.Columns {
			col := schema.ColumnIndex(name)
			if col < 0 {
				return CommitResult{}, fmt.Errorf("%w: %s.%s", core.ErrUnknownColumn, schema.Name, name)
			}
			if seen[col] {
				return CommitResult{}, fmt.Errorf("%w: column %s listed twice", core.ErrTypeMismatch, name)
			}
			seen[col] = true
			positions = append(positions, col)
		}
	}

	var inserted []core.RowID
	for _, values := range statement.Rows {
		row := core.Row(values)
		if positions != nil {
			if len(values) != len(positions) {
				return CommitResult{}, engine.undoInserts(table, inserted,
					fmt.Errorf("%w: %d columns but %d values", core.ErrTypeMismatch, len(positions), len(values)))
			}
			row = make(core.Row, len(schema.Columns))
			for i, col := range positions {
				row[col] = values[i]
			}
		}

		id, err := table.Insert(row)
		if err != nil {
			return CommitResult{}, engine.undoInserts(table, inserted, err)
		}
		inserted = append(inserted, id)
	}

	return CommitResult{
		RecordsWritten:   len(inserted),
		ExecutionTimeSec: time.Since(startTime).Seconds(),
		ExecutionOps:     len(inserted),
	}, nil
}

func (engine *Engine) undoInserts(table *op.Table, inserted []core.RowID, cause error) error {
	for i := len(inserted) - 1; i >= 0; i-- {
		if err := table.Delete(inserted[i]); err != nil {
			engine.logger.Error("insert rollback failed", "table", table.Name(), "row", inserted[i], "error", err)
		}
	}
	return cause
}

// matchingRows plans the single-table WHERE clause and collects the ids of
// matching rows before anything is modified.
func (engine *Engine) matchingRows(s source, where sql.WhereClause) ([]core.RowID, int, error) {
	sources := []source{s}
	conditions, err := bindConditions(where, sources)
	if err != nil {
		return nil, 0, err
	}
	path, err := chooseAccessPath(s, conditions)
	if err != nil {
		return nil, 0, err
	}
	engine.logger.Debug("rows planned", "table", s.name(), "plan", path.description)

	var (
		ids      []core.RowID
		examined int
	)
	for id, row := range path.rows {
		examined++
		if matchAll(row, conditions) {
			ids = append(ids, id)
		}
	}
	return ids, examined, nil
}

// executeUpdateStatement applies the SET list to every matching row. If any
// row fails, the rows already changed are restored in reverse order.
func (engine *Engine) executeUpdateStatement(statement sql.UpdateStatement) (CommitResult, error) {
	startTime := time.Now()

	table, err := engine.database.Get(statement.Table)
	if err != nil {
		return CommitResult{}, err
	}
	s := newSource(table)

	type assignment struct {
		col   int
		value core.Value
	}
	assignments := make([]assignment, 0, len(statement.Updates))
	for _, update := range statement.Updates {
		ref, err := resolveColumn(update.Column, []source{s})
		if err != nil {
			return CommitResult{}, err
		}
		assignments = append(assignments, assignment{col: ref.col, value: update.Value})
	}

	ids, examined, err := engine.matchingRows(s, statement.Where)
	if err != nil {
		return CommitResult{}, err
	}

	type change struct {
		id  core.RowID
		old core.Row
	}
	var applied []change
	for _, id := range ids {
		old, ok := table.Get(id)
		if !ok {
			continue
		}
		row := old.Clone()
		for _, a := range assignments {
			row[a.col] = a.value
		}
		if err := table.Update(id, row); err != nil {
			for i := len(applied) - 1; i >= 0; i-- {
				if rerr := table.Update(applied[i].id, applied[i].old); rerr != nil {
					engine.logger.Error("update rollback failed", "table", table.Name(), "row", applied[i].id, "error", rerr)
				}
			}
			return CommitResult{}, err
		}
		applied = append(applied, change{id: id, old: old})
	}

	return CommitResult{
		RecordsUpdated:   len(applied),
		ExecutionTimeSec: time.Since(startTime).Seconds(),
		ExecutionOps:     examined + len(applied),
	}, nil
}

func (engine *Engine) executeDeleteStatement(statement sql.DeleteStatement) (CommitResult, error) {
	startTime := time.Now()

	table, err := engine.database.Get(statement.Table)
	if err != nil {
		return CommitResult{}, err
	}

	ids, examined, err := engine.matchingRows(newSource(table), statement.Where)
	if err != nil {
		return CommitResult{}, err
	}
	for _, id := range ids {
		if err := table.Delete(id); err != nil {
			return CommitResult{}, err
		}
	}

	return CommitResult{
		RecordsDeleted:   len(ids),
		ExecutionTimeSec: time.Since(startTime).Seconds(),
		ExecutionOps:     examined + len(ids),
	}, nil
}

func (engine *Engine) executeCreateTableStatement(statement sql.CreateTableStatement) (CommitResult, error) {
	startTime := time.Now()

	table, err := engine.database.CreateTable(core.Table{
		Name:    statement.Table,
		Columns: statement.Columns,
	})
	if err != nil {
		return CommitResult{}, err
	}

	return CommitResult{
		TablesCreated:    1,
		IndexesCreated:   len(table.Indexes()),
		ExecutionTimeSec: time.Since(startTime).Seconds(),
		ExecutionOps:     1,
	}, nil
}

func (engine *Engine) executeDropTableStatement(statement sql.DropTableStatement) (CommitResult, error) {
	startTime := time.Now()

	table, err := engine.database.Get(statement.Table)
	if err != nil {
		return CommitResult{}, err
	}
	rows := table.Len()
	if err := engine.database.Drop(statement.Table); err != nil {
		return CommitResult{}, err
	}

	return CommitResult{
		TablesDeleted:    1,
		RecordsDeleted:   rows,
		ExecutionTimeSec: time.Since(startTime).Seconds(),
		ExecutionOps:     1,
	}, nil
}

func (engine *Engine) executeCreateIndexStatement(statement sql.CreateIndexStatement) (CommitResult, error) {
	startTime := time.Now()

	idx, err := engine.database.CreateIndex(statement.Table, statement.Name, statement.Column, statement.Unique)
	if err != nil {
		return CommitResult{}, err
	}

	return CommitResult{
		IndexesCreated:   1,
		ExecutionTimeSec: time.Since(startTime).Seconds(),
		ExecutionOps:     idx.Len(),
	}, nil
}

func (engine *Engine) executeDropIndexStatement(statement sql.DropIndexStatement) (CommitResult, error) {
	startTime := time.Now()

	if err := engine.database.DropIndex(statement.Name); err != nil {
		return CommitResult{}, err
	}

	return CommitResult{
		IndexesDeleted:   1,
		ExecutionTimeSec: time.Since(startTime).Seconds(),
		ExecutionOps:     1,
	}, nil
}

func (engine *Engine) executeShowTablesStatement() (QueryResult, error) {
	startTime := time.Now()

	var rows []core.Row
	for _, name := range engine.database.List() {
		table, err := engine.database.Get(name)
		if err != nil {
			return QueryResult{}, err
		}
		rows = append(rows, core.Row{core.Text(name), core.Int(int64(table.Len()))})
	}

	return QueryResult{
		Columns:          []string{"Table", "Rows"},
		Rows:             rows,
		RecordsRead:      len(rows),
		ExecutionTimeSec: time.Since(startTime).Seconds(),
		ExecutionOps:     len(rows),
	}, nil
}

func (engine *Engine) executeShowIndexesStatement(statement sql.ShowIndexesStatement) (QueryResult, error) {
	startTime := time.Now()

	table, err := engine.database.Get(statement.Table)
	if err != nil {
		return QueryResult{}, err
	}

	var rows []core.Row
	for _, idx := range table.Indexes() {
		rows = append(rows, core.Row{
			core.Text(idx.Name),
			core.Text(idx.Column),
			core.Bool(idx.Unique),
			core.Bool(idx.Implicit),
			core.Int(int64(idx.Len())),
		})
	}

	return QueryResult{
		Columns:          []string{"Name", "Column", "Unique", "Implicit", "Keys"},
		Rows:             rows,
		RecordsRead:      len(rows),
		ExecutionTimeSec: time.Since(startTime).Seconds(),
		ExecutionOps:     len(rows),
	}, nil
}

func (engine *Engine) executeDescribeStatement(statement sql.DescribeStatement) (QueryResult, error) {
	startTime := time.Now()

	table, err := engine.database.Get(statement.Table)
	if err != nil {
		return QueryResult{}, err
	}

	var rows []core.Row
	for _, col := range table.Schema().Columns {
		rows = append(rows, core.Row{core.Text(col.Name), core.Text(col.Type.String()), core.Text(col.Constraints())})
	}

	return QueryResult{
		Columns:          []string{"Column", "Type", "Constraints"},
		Rows:             rows,
		RecordsRead:      len(rows),
		ExecutionTimeSec: time.Since(startTime).Seconds(),
		ExecutionOps:     len(rows),
	}, nil
}
