// Package MiniDB provides a small in-memory relational database engine
// with B-tree indexes and snapshot persistence.
//
// Tables live in memory; a save writes one snapshot per table to a store.
// The default store is a Git repository, so every save is a commit and
// older saves stay readable.
//
// # Quick Start
//
//	persistence, _ := ps.NewMemoryPersistence()
//	instance, _ := MiniDB.Open(ctx, persistence)
//	engine := instance.Engine()
//
//	engine.ExecuteSQL("CREATE TABLE users (id INT PRIMARY KEY, name TEXT NOT NULL, age INT)")
//	engine.ExecuteSQL("INSERT INTO users VALUES (1, 'Alice', 30), (2, 'Bob', 25)")
//	engine.ExecuteSQL("CREATE INDEX users_age_idx ON users (age)")
//
//	result, _ := engine.ExecuteSQL("SELECT name FROM users WHERE age > 26")
//	result.Display()
//
//	instance.Save(ctx, core.Identity{Name: "App", Email: "app@example.com"})
//
// # Supported SQL
//
// MiniDB supports a subset of SQL including:
//   - CREATE/DROP TABLE with PRIMARY KEY, UNIQUE and NOT NULL columns
//   - CREATE [UNIQUE] INDEX, DROP INDEX
//   - INSERT, SELECT, UPDATE, DELETE
//   - WHERE with comparison operators joined by AND
//   - Two-table INNER JOIN on one equality
//   - SHOW TABLES, SHOW INDEXES ON, DESCRIBE
//
// # Stores
//
// Snapshots can be kept in a Git repository (ps.Persistence), a local
// directory, S3 or a read-only HTTP location (ps.URLStore).
package MiniDB
