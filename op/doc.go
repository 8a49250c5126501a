// Package op provides the MiniDB table store and catalog.
//
// # Table
//
// Table owns the rows of one schema, validates them against column types
// and constraints, and keeps every index in step:
//
//	users, err := op.NewTable(schema)
//	id, err := users.Insert(core.Row{core.Int(1), core.Text("Alice"), core.Int(30)})
//	err = users.Update(id, core.Row{core.Int(1), core.Text("Alice"), core.Int(31)})
//
//	for id, row := range users.Scan() {
//	    // insertion order
//	}
//
//	users.CreateIndex("users_age_idx", "age", false)
//	rows, _ := users.Range("users_age_idx", btree.Inclusive(core.Int(18)), btree.Unbounded[core.Value]())
//
// Insert, Update and Delete are all-or-nothing: a failed call leaves rows
// and indexes untouched.
//
// # Database
//
// Database is the catalog of tables:
//
//	db := op.NewDatabase(op.WithLogger(logger))
//	db.CreateTable(schema)
//	t, err := db.Get("users")
//	names := db.List()
//
//	txn, err := db.SaveAll(ctx, persistence, identity)
//	err = db.LoadAll(ctx, persistence)
//
// # Architecture
//
//	SQL Parser (sql/)
//	     ↓
//	Query Executor (db/)
//	     ↓
//	Tables & Catalog (op/)     ← This package
//	     ↓                ↘
//	B-Tree (btree/)     Snapshots (ps/)
package op
