package db

import (
	"bytes"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/nickyhof/MiniDB/core"
	"github.com/nickyhof/MiniDB/op"
	"github.com/nickyhof/MiniDB/sql"
)

func setupTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine := NewEngine(op.NewDatabase(op.WithOrder(4)))

	mustExec(t, engine, "CREATE TABLE users (id INT PRIMARY KEY, name TEXT NOT NULL, age INT)")
	return engine
}

func mustExec(t *testing.T, engine *Engine, query string) Result {
	t.Helper()
	result, err := engine.ExecuteSQL(query)
	if err != nil {
		t.Fatalf("%s: %v", query, err)
	}
	return result
}

func mustQuery(t *testing.T, engine *Engine, query string) QueryResult {
	t.Helper()
	qr, ok := mustExec(t, engine, query).(QueryResult)
	if !ok {
		t.Fatalf("%s: expected a query result", query)
	}
	return qr
}

func insertTestData(t *testing.T, engine *Engine) {
	t.Helper()
	mustExec(t, engine, "INSERT INTO users VALUES (1, 'Alice', 30)")
	mustExec(t, engine, "INSERT INTO users VALUES (2, 'Bob', 25)")
	mustExec(t, engine, "INSERT INTO users VALUES (3, 'Charlie', 35)")
}

func column(qr QueryResult, name string) []string {
	i := slices.Index(qr.Columns, name)
	if i < 0 {
		return nil
	}
	var out []string
	for _, row := range qr.Data() {
		out = append(out, row[i])
	}
	return out
}

func TestEngineScenario(t *testing.T) {
	engine := setupTestEngine(t)
	mustExec(t, engine, "INSERT INTO users VALUES (1, 'A', 30)")
	mustExec(t, engine, "INSERT INTO users VALUES (2, 'B', 25)")

	qr := mustQuery(t, engine, "SELECT name FROM users WHERE age > 26")
	if !slices.Equal(qr.Columns, []string{"name"}) || !slices.Equal(column(qr, "name"), []string{"A"}) {
		t.Errorf("unexpected result %v %v", qr.Columns, qr.Data())
	}

	_, err := engine.ExecuteSQL("INSERT INTO users VALUES (1, 'C', 40)")
	if !errors.Is(err, core.ErrDuplicateKey) || !errors.Is(err, core.ErrConstraintViolation) {
		t.Fatalf("expected a duplicate key violation, got %v", err)
	}

	cr := mustExec(t, engine, "DELETE FROM users WHERE id = 2").(CommitResult)
	if cr.RowsAffected() != 1 {
		t.Errorf("expected 1 row deleted, got %d", cr.RowsAffected())
	}

	qr = mustQuery(t, engine, "SELECT * FROM users")
	if len(qr.Rows) != 1 || !qr.Rows[0][0].Equal(core.Int(1)) {
		t.Errorf("expected only row 1, got %v", qr.Data())
	}
}

func TestEngineSelect(t *testing.T) {
	engine := setupTestEngine(t)
	insertTestData(t, engine)

	qr := mustQuery(t, engine, "SELECT * FROM users")
	if qr.RecordsRead != 3 {
		t.Errorf("Expected 3 records, got %d", qr.RecordsRead)
	}
	if !slices.Equal(qr.Columns, []string{"id", "name", "age"}) {
		t.Errorf("Expected plain column names, got %v", qr.Columns)
	}
	if !slices.Equal(qr.Plan, []string{"scan users"}) {
		t.Errorf("Expected a scan, got %v", qr.Plan)
	}
	if got := column(qr, "name"); !slices.Equal(got, []string{"Alice", "Bob", "Charlie"}) {
		t.Errorf("Expected insertion order, got %v", got)
	}
}

func TestEngineAccessPaths(t *testing.T) {
	engine := setupTestEngine(t)
	insertTestData(t, engine)
	mustExec(t, engine, "CREATE INDEX users_age_idx ON users (age)")

	tests := []struct {
		query string
		plan  string
		names []string
	}{
		{"SELECT name FROM users WHERE id = 2", "index lookup users_pkey", []string{"Bob"}},
		{"SELECT name FROM users WHERE age = 35 AND id = 3", "index lookup users_pkey", []string{"Charlie"}},
		{"SELECT name FROM users WHERE age = 30", "index lookup users_age_idx", []string{"Alice"}},
		{"SELECT name FROM users WHERE age >= 25 AND age < 35", "index range users_age_idx", []string{"Bob", "Alice"}},
		{"SELECT name FROM users WHERE age > 25 AND age > 20", "index range users_age_idx", []string{"Alice", "Charlie"}},
		{"SELECT name FROM users WHERE age <= 30 AND age < 30", "index range users_age_idx", []string{"Bob"}},
		{"SELECT name FROM users WHERE age > 30 AND name <> 'Charlie'", "index range users_age_idx", nil},
		{"SELECT name FROM users WHERE age <> 30", "scan users", []string{"Bob", "Charlie"}},
		{"SELECT name FROM users WHERE name = 'Bob'", "scan users", []string{"Bob"}},
		{"SELECT name FROM users WHERE id = 99", "index lookup users_pkey", nil},
		{"SELECT name FROM users WHERE age > 28.5", "index range users_age_idx", []string{"Alice", "Charlie"}},
	}

	for _, test := range tests {
		t.Run(test.query, func(t *testing.T) {
			qr := mustQuery(t, engine, test.query)
			if !slices.Equal(qr.Plan, []string{test.plan}) {
				t.Errorf("plan = %v, want %s", qr.Plan, test.plan)
			}
			if got := column(qr, "name"); !slices.Equal(got, test.names) {
				t.Errorf("names = %v, want %v", got, test.names)
			}
		})
	}
}

func TestEngineNullNeverMatches(t *testing.T) {
	engine := setupTestEngine(t)
	mustExec(t, engine, "INSERT INTO users (id, name) VALUES (1, 'NoAge')")
	mustExec(t, engine, "INSERT INTO users VALUES (2, 'Aged', 40)")

	for _, query := range []string{
		"SELECT name FROM users WHERE age <> 40",
		"SELECT name FROM users WHERE age < 40",
	} {
		qr := mustQuery(t, engine, query)
		if len(qr.Rows) != 0 {
			t.Errorf("%s: expected no rows, got %v", query, qr.Data())
		}
	}

	qr := mustQuery(t, engine, "SELECT age FROM users WHERE id = 1")
	if len(qr.Rows) != 1 || !qr.Rows[0][0].IsNull() {
		t.Errorf("expected NULL age, got %v", qr.Data())
	}
}

func TestEnginePredicateErrors(t *testing.T) {
	engine := setupTestEngine(t)
	insertTestData(t, engine)

	tests := []struct {
		query string
		err   error
	}{
		{"SELECT * FROM users WHERE age = 'old'", core.ErrMalformedPredicate},
		{"SELECT * FROM users WHERE name > 3", core.ErrMalformedPredicate},
		{"SELECT * FROM users WHERE height = 3", core.ErrUnknownColumn},
		{"SELECT height FROM users", core.ErrUnknownColumn},
		{"SELECT * FROM users WHERE orders.id = 3", core.ErrUnknownColumn},
		{"SELECT * FROM nope", core.ErrUnknownTable},
		{"DELETE FROM users WHERE age = TRUE", core.ErrMalformedPredicate},
		{"UPDATE users SET age = 1 WHERE name = 1", core.ErrMalformedPredicate},
		{"SELECT * FROM users WHERE id = 1 OR id = 2", sql.ErrSyntax},
	}

	for _, test := range tests {
		t.Run(test.query, func(t *testing.T) {
			_, err := engine.ExecuteSQL(test.query)
			if !errors.Is(err, test.err) {
				t.Errorf("expected %v, got %v", test.err, err)
			}
		})
	}

	// failed statements change nothing
	if qr := mustQuery(t, engine, "SELECT * FROM users"); qr.RecordsRead != 3 {
		t.Errorf("expected 3 rows, got %d", qr.RecordsRead)
	}
}

func TestEngineInsert(t *testing.T) {
	engine := setupTestEngine(t)

	cr := mustExec(t, engine, "INSERT INTO users VALUES (1, 'A', 30), (2, 'B', 25)").(CommitResult)
	if cr.RecordsWritten != 2 {
		t.Errorf("expected 2 records written, got %d", cr.RecordsWritten)
	}

	mustExec(t, engine, "INSERT INTO users (name, id) VALUES ('C', 3)")
	qr := mustQuery(t, engine, "SELECT age FROM users WHERE id = 3")
	if len(qr.Rows) != 1 || !qr.Rows[0][0].IsNull() {
		t.Errorf("omitted column should be NULL, got %v", qr.Data())
	}

	tests := []struct {
		query string
		err   error
	}{
		{"INSERT INTO users VALUES (4, 'D')", core.ErrTypeMismatch},
		{"INSERT INTO users VALUES ('x', 'D', 1)", core.ErrTypeMismatch},
		{"INSERT INTO users (id, age) VALUES (4, 1)", core.ErrNotNull},
		{"INSERT INTO users (id, nick) VALUES (4, 'x')", core.ErrUnknownColumn},
		{"INSERT INTO users (id, id) VALUES (4, 5)", core.ErrTypeMismatch},
		{"INSERT INTO nope VALUES (1)", core.ErrUnknownTable},
		// the second row collides with the first, so neither is kept
		{"INSERT INTO users VALUES (10, 'X', 1), (10, 'Y', 2)", core.ErrDuplicateKey},
	}
	for _, test := range tests {
		t.Run(test.query, func(t *testing.T) {
			_, err := engine.ExecuteSQL(test.query)
			if !errors.Is(err, test.err) {
				t.Errorf("expected %v, got %v", test.err, err)
			}
		})
	}

	if qr := mustQuery(t, engine, "SELECT * FROM users"); qr.RecordsRead != 3 {
		t.Errorf("expected 3 rows after failed inserts, got %d", qr.RecordsRead)
	}
	if qr := mustQuery(t, engine, "SELECT * FROM users WHERE id = 10"); len(qr.Rows) != 0 {
		t.Errorf("partial multi-row insert was kept: %v", qr.Data())
	}
}

func TestEngineInsertFloatColumn(t *testing.T) {
	engine := NewEngine(op.NewDatabase())
	mustExec(t, engine, "CREATE TABLE prices (sku TEXT PRIMARY KEY, amount FLOAT)")
	mustExec(t, engine, "INSERT INTO prices VALUES ('a', 3), ('b', 2.5)")

	qr := mustQuery(t, engine, "SELECT amount FROM prices WHERE amount >= 3")
	if len(qr.Rows) != 1 || qr.Rows[0][0].Kind() != core.FloatKind {
		t.Errorf("expected one widened float, got %v", qr.Rows)
	}
}

func TestEngineUpdate(t *testing.T) {
	engine := setupTestEngine(t)
	insertTestData(t, engine)

	cr := mustExec(t, engine, "UPDATE users SET age = 31 WHERE id = 1").(CommitResult)
	if cr.RecordsUpdated != 1 {
		t.Errorf("expected 1 record updated, got %d", cr.RecordsUpdated)
	}

	qr := mustQuery(t, engine, "SELECT age FROM users WHERE id = 1")
	if got := column(qr, "age"); !slices.Equal(got, []string{"31"}) {
		t.Errorf("Expected age to be updated to 31, got %v", got)
	}

	// moving rows across an index range while it drives the statement
	mustExec(t, engine, "CREATE INDEX users_age_idx ON users (age)")
	cr = mustExec(t, engine, "UPDATE users SET age = 50 WHERE age > 20").(CommitResult)
	if cr.RecordsUpdated != 3 {
		t.Errorf("expected 3 records updated, got %d", cr.RecordsUpdated)
	}
	qr = mustQuery(t, engine, "SELECT name FROM users WHERE age = 50")
	if len(qr.Rows) != 3 {
		t.Errorf("expected 3 rows at age 50, got %v", qr.Data())
	}
}

func TestEngineUpdateIsAtomic(t *testing.T) {
	engine := setupTestEngine(t)
	insertTestData(t, engine)

	// the second row to take id 7 collides with the first
	_, err := engine.ExecuteSQL("UPDATE users SET id = 7 WHERE age >= 30")
	if !errors.Is(err, core.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}

	qr := mustQuery(t, engine, "SELECT id FROM users")
	if got := column(qr, "id"); !slices.Equal(got, []string{"1", "2", "3"}) {
		t.Errorf("ids after failed update = %v", got)
	}
	if qr := mustQuery(t, engine, "SELECT id FROM users WHERE id = 7"); len(qr.Rows) != 0 {
		t.Errorf("index still holds 7: %v", qr.Data())
	}
	if qr := mustQuery(t, engine, "SELECT name FROM users WHERE id = 1"); !slices.Equal(column(qr, "name"), []string{"Alice"}) {
		t.Errorf("index lost id 1: %v", qr.Data())
	}

	if _, err := engine.ExecuteSQL("UPDATE users SET name = NULL"); !errors.Is(err, core.ErrNotNull) {
		t.Errorf("expected ErrNotNull, got %v", err)
	}
	if _, err := engine.ExecuteSQL("UPDATE users SET nick = 'x'"); !errors.Is(err, core.ErrUnknownColumn) {
		t.Errorf("expected ErrUnknownColumn, got %v", err)
	}
}

func TestEngineDelete(t *testing.T) {
	engine := setupTestEngine(t)
	insertTestData(t, engine)

	mustExec(t, engine, "DELETE FROM users WHERE id = 2")
	if qr := mustQuery(t, engine, "SELECT * FROM users"); qr.RecordsRead != 2 {
		t.Errorf("Expected 2 records after delete, got %d", qr.RecordsRead)
	}

	cr := mustExec(t, engine, "DELETE FROM users").(CommitResult)
	if cr.RecordsDeleted != 2 {
		t.Errorf("Expected 2 records deleted, got %d", cr.RecordsDeleted)
	}
	if qr := mustQuery(t, engine, "SELECT * FROM users WHERE id = 1"); len(qr.Rows) != 0 {
		t.Errorf("deleted row still indexed: %v", qr.Data())
	}
}

func setupJoinEngine(t *testing.T) *Engine {
	t.Helper()
	engine := setupTestEngine(t)
	insertTestData(t, engine)
	mustExec(t, engine, "CREATE TABLE orders (id INT PRIMARY KEY, user_id INT, total FLOAT)")
	mustExec(t, engine, `INSERT INTO orders VALUES
		(100, 1, 9.5), (101, 1, 20), (102, 3, 5), (103, 4, 7), (104, NULL, 1)`)
	return engine
}

func sortedRows(qr QueryResult) []string {
	var out []string
	for _, row := range qr.Data() {
		out = append(out, strings.Join(row, "|"))
	}
	slices.Sort(out)
	return out
}

func TestEngineJoin(t *testing.T) {
	engine := setupJoinEngine(t)

	const query = "SELECT * FROM users JOIN orders ON users.id = orders.user_id"

	scanned := mustQuery(t, engine, query)
	if !slices.Equal(scanned.Plan, []string{"scan users", "scan orders"}) {
		t.Errorf("plan = %v", scanned.Plan)
	}
	wantColumns := []string{"users.id", "users.name", "users.age", "orders.id", "orders.user_id", "orders.total"}
	if !slices.Equal(scanned.Columns, wantColumns) {
		t.Errorf("columns = %v", scanned.Columns)
	}
	want := []string{
		"1|Alice|30|100|1|9.5",
		"1|Alice|30|101|1|20",
		"3|Charlie|35|102|3|5",
	}
	if got := sortedRows(scanned); !slices.Equal(got, want) {
		t.Errorf("rows = %v, want %v", got, want)
	}

	mustExec(t, engine, "CREATE INDEX orders_user_idx ON orders (user_id)")
	probed := mustQuery(t, engine, query)
	if !slices.Equal(probed.Plan, []string{"scan users", "index probe orders_user_idx"}) {
		t.Errorf("plan = %v", probed.Plan)
	}
	if got := sortedRows(probed); !slices.Equal(got, sortedRows(scanned)) {
		t.Errorf("index-backed join %v differs from scan-backed join %v", got, sortedRows(scanned))
	}
}

func TestEngineJoinConditionsAndNames(t *testing.T) {
	engine := setupJoinEngine(t)
	mustExec(t, engine, "CREATE INDEX orders_user_idx ON orders (user_id)")

	// ON sides written in reverse, unqualified names resolved per table
	qr := mustQuery(t, engine,
		"SELECT name, total FROM users INNER JOIN orders ON user_id = users.id WHERE total > 6 AND age < 35")
	if !slices.Equal(qr.Columns, []string{"name", "total"}) {
		t.Errorf("columns = %v", qr.Columns)
	}
	if got := sortedRows(qr); !slices.Equal(got, []string{"Alice|20", "Alice|9.5"}) {
		t.Errorf("rows = %v", got)
	}

	qr = mustQuery(t, engine, "SELECT users.name FROM users JOIN orders ON users.id = orders.user_id WHERE users.id = 3")
	if !slices.Equal(qr.Plan, []string{"index lookup users_pkey", "index probe orders_user_idx"}) {
		t.Errorf("plan = %v", qr.Plan)
	}
	if got := column(qr, "users.name"); !slices.Equal(got, []string{"Charlie"}) {
		t.Errorf("names = %v", got)
	}

	for _, query := range []string{
		"SELECT id FROM users JOIN orders ON users.id = orders.user_id",
		"SELECT * FROM users JOIN orders ON id = user_id",
	} {
		if _, err := engine.ExecuteSQL(query); !errors.Is(err, core.ErrUnknownColumn) {
			t.Errorf("%s: expected ambiguous column error, got %v", query, err)
		}
	}

	for _, query := range []string{
		"SELECT * FROM users JOIN orders ON users.id = users.age",
		"SELECT * FROM users JOIN orders ON users.name = orders.id",
		"SELECT * FROM users JOIN users ON users.id = users.age",
	} {
		if _, err := engine.ExecuteSQL(query); !errors.Is(err, core.ErrMalformedPredicate) {
			t.Errorf("%s: expected ErrMalformedPredicate, got %v", query, err)
		}
	}

	if _, err := engine.ExecuteSQL("SELECT * FROM users JOIN ghosts ON users.id = ghosts.id"); !errors.Is(err, core.ErrUnknownTable) {
		t.Errorf("expected ErrUnknownTable, got %v", err)
	}
}

func TestEngineIndexesAndIntrospection(t *testing.T) {
	engine := setupTestEngine(t)
	insertTestData(t, engine)

	cr := mustExec(t, engine, "CREATE UNIQUE INDEX users_name_idx ON users (name)").(CommitResult)
	if cr.IndexesCreated != 1 {
		t.Errorf("expected 1 index created, got %d", cr.IndexesCreated)
	}
	if _, err := engine.ExecuteSQL("INSERT INTO users VALUES (4, 'Alice', 1)"); !errors.Is(err, core.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey from the new index, got %v", err)
	}
	if _, err := engine.ExecuteSQL("CREATE INDEX users_name_idx ON users (age)"); !errors.Is(err, core.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
	if _, err := engine.ExecuteSQL("CREATE INDEX x ON users (nick)"); !errors.Is(err, core.ErrUnknownColumn) {
		t.Errorf("expected ErrUnknownColumn, got %v", err)
	}

	qr := mustQuery(t, engine, "SHOW INDEXES ON users")
	if got := column(qr, "Name"); !slices.Equal(got, []string{"users_pkey", "users_name_idx"}) {
		t.Errorf("indexes = %v", got)
	}

	if _, err := engine.ExecuteSQL("DROP INDEX users_pkey"); !errors.Is(err, op.ErrIndexInUse) {
		t.Errorf("expected ErrIndexInUse, got %v", err)
	}
	mustExec(t, engine, "DROP INDEX users_name_idx")
	if _, err := engine.ExecuteSQL("DROP INDEX users_name_idx"); !errors.Is(err, core.ErrUnknownIndex) {
		t.Errorf("expected ErrUnknownIndex, got %v", err)
	}

	qr = mustQuery(t, engine, "DESCRIBE users")
	if qr.RecordsRead != 3 {
		t.Errorf("Expected 3 columns in DESCRIBE, got %d", qr.RecordsRead)
	}
	if got := column(qr, "Constraints"); !slices.Equal(got, []string{"PRIMARY KEY", "NOT NULL", ""}) {
		t.Errorf("constraints = %v", got)
	}

	mustExec(t, engine, "CREATE TABLE audit (id INT)")
	qr = mustQuery(t, engine, "SHOW TABLES")
	if got := column(qr, "Table"); !slices.Equal(got, []string{"audit", "users"}) {
		t.Errorf("tables = %v", got)
	}

	cr = mustExec(t, engine, "DROP TABLE users").(CommitResult)
	if cr.TablesDeleted != 1 || cr.RecordsDeleted != 3 {
		t.Errorf("unexpected drop result %+v", cr)
	}
	if _, err := engine.ExecuteSQL("SELECT * FROM users"); !errors.Is(err, core.ErrUnknownTable) {
		t.Errorf("expected ErrUnknownTable, got %v", err)
	}
	if _, err := engine.ExecuteSQL("CREATE TABLE audit (id INT)"); !errors.Is(err, core.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestEngineNegativeZero(t *testing.T) {
	engine := NewEngine(op.NewDatabase(op.WithOrder(4)))
	mustExec(t, engine, "CREATE TABLE m (id INT PRIMARY KEY, f FLOAT)")
	mustExec(t, engine, "CREATE TABLE n (id INT PRIMARY KEY, f FLOAT)")
	mustExec(t, engine, "INSERT INTO m VALUES (1, 0.0), (2, 1.5)")
	mustExec(t, engine, "INSERT INTO n VALUES (1, -0.0)")

	const query = "SELECT id FROM m WHERE f = -0.0"
	scanned := mustQuery(t, engine, query)
	if !slices.Equal(scanned.Plan, []string{"scan m"}) || len(scanned.Rows) != 1 {
		t.Fatalf("scan: plan %v rows %v", scanned.Plan, scanned.Data())
	}

	mustExec(t, engine, "CREATE INDEX m_f_idx ON m (f)")
	indexed := mustQuery(t, engine, query)
	if !slices.Equal(indexed.Plan, []string{"index lookup m_f_idx"}) {
		t.Errorf("plan = %v", indexed.Plan)
	}
	if !slices.Equal(column(indexed, "id"), column(scanned, "id")) {
		t.Errorf("index lookup returned %v, scan returned %v", indexed.Data(), scanned.Data())
	}

	joined := mustQuery(t, engine, "SELECT n.id, m.id FROM n JOIN m ON n.f = m.f")
	if !slices.Equal(joined.Plan, []string{"scan n", "index probe m_f_idx"}) {
		t.Errorf("join plan = %v", joined.Plan)
	}
	if len(joined.Rows) != 1 {
		t.Errorf("expected -0 to join with 0, got %v", joined.Data())
	}
}

func TestResultCells(t *testing.T) {
	engine := setupTestEngine(t)
	mustExec(t, engine, "INSERT INTO users (id, name) VALUES (1, 'NULL')")

	qr := mustQuery(t, engine, "SELECT name, age FROM users")
	cells := qr.Cells()
	if len(cells) != 1 || cells[0][0] == nil || *cells[0][0] != "NULL" {
		t.Errorf("text 'NULL' should survive as a value, got %v", cells)
	}
	if cells[0][1] != nil {
		t.Errorf("NULL age should be nil, got %q", *cells[0][1])
	}
}

func TestResultRender(t *testing.T) {
	engine := setupTestEngine(t)
	insertTestData(t, engine)
	mustExec(t, engine, "INSERT INTO users (id, name) VALUES (4, 'Dora')")

	var buf bytes.Buffer
	mustQuery(t, engine, "SELECT name, age FROM users").Render(&buf)
	out := buf.String()
	for _, want := range []string{"name", "Charlie", "NULL", "4 rows", "scan users"} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered output lacks %q:\n%s", want, out)
		}
	}

	buf.Reset()
	mustExec(t, engine, "DELETE FROM users WHERE age > 26").Render(&buf)
	if !strings.HasPrefix(buf.String(), "2 record(s) deleted") {
		t.Errorf("unexpected summary %q", buf.String())
	}
}
