// Package sql provides SQL lexing and parsing for MiniDB.
//
// The package includes a lexer that tokenizes SQL strings and a parser
// that produces statements for the executor in package db. Literals are
// parsed straight into core.Value.
//
// # Parser Usage
//
//	parser := sql.NewParser("SELECT name FROM users WHERE age > 26")
//	statement, err := parser.Parse()
//	if errors.Is(err, sql.ErrSyntax) {
//	    // report and carry on
//	}
//
// # Supported Statements
//
//	CREATE TABLE t (col TYPE [PRIMARY KEY] [UNIQUE] [NOT NULL], ...)
//	CREATE [UNIQUE] INDEX name ON t (col)
//	INSERT INTO t [(col, ...)] VALUES (v, ...)[, (v, ...)]
//	SELECT * | col, ... FROM t [[INNER] JOIN u ON a = b] [WHERE cond [AND cond ...]]
//	UPDATE t SET col = v, ... [WHERE ...]
//	DELETE FROM t [WHERE ...]
//	DROP TABLE t
//	DROP INDEX name
//	SHOW TABLES
//	SHOW INDEXES ON t
//	DESCRIBE t
//
// Conditions compare a column, optionally qualified as table.column, with
// a literal using =, <>, !=, <, <=, > or >=. Text literals use single
// quotes, and a doubled quote stands for one quote:
//
//	INSERT INTO t VALUES (1, 'It''s')
package sql
