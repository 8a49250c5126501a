// Package db provides the SQL execution engine for MiniDB.
//
// The Engine type is the main entry point for executing SQL statements.
// It is bound to one op.Database, plans each statement against the
// catalog's indexes, and returns results.
//
// # Engine Usage
//
//	engine := db.NewEngine(op.NewDatabase(), db.WithLogger(logger))
//	result, err := engine.ExecuteSQL("SELECT name FROM users WHERE age > 26")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result.Display()
//
// # Planning
//
// Each table of a SELECT, UPDATE or DELETE is read through one access
// path: an equality lookup on an indexed column (unique indexes first), a
// range over an indexed column with its range conditions folded into one
// interval, or a full scan. All conditions are then applied row by row. A
// join probes an index on the second table's join column when one exists.
// QueryResult.Plan names the path taken for each table.
//
// # Result Types
//
// There are two result types:
//   - QueryResult: Returned by SELECT, SHOW and DESCRIBE statements
//   - CommitResult: Returned by INSERT, UPDATE, DELETE, CREATE, DROP
//
// A failed statement leaves the catalog as it was.
package db
