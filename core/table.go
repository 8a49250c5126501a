package core

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

type ColumnType int

const (
	IntType ColumnType = iota
	TextType
	FloatType
	BoolType
)

var columnTypeNames = map[ColumnType]string{
	IntType:   "INT",
	TextType:  "TEXT",
	FloatType: "FLOAT",
	BoolType:  "BOOL",
}

func (t ColumnType) String() string {
	if name, ok := columnTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("ColumnType(%d)", int(t))
}

// ParseColumnType maps a SQL type name to a ColumnType. Common aliases
// (INTEGER, STRING, VARCHAR, REAL, DOUBLE, BOOLEAN) are accepted.
func ParseColumnType(name string) (ColumnType, error) {
	switch strings.ToUpper(name) {
	case "INT", "INTEGER", "BIGINT":
		return IntType, nil
	case "TEXT", "STRING", "VARCHAR":
		return TextType, nil
	case "FLOAT", "REAL", "DOUBLE":
		return FloatType, nil
	case "BOOL", "BOOLEAN":
		return BoolType, nil
	}
	return 0, fmt.Errorf("%w: unknown column type %q", ErrInvalidSchema, name)
}

func (t ColumnType) valid() bool {
	_, ok := columnTypeNames[t]
	return ok
}

func (t ColumnType) MarshalJSON() ([]byte, error) {
	if !t.valid() {
		return nil, fmt.Errorf("%w: unknown column type %d", ErrInvalidSchema, int(t))
	}
	return json.Marshal(t.String())
}

func (t *ColumnType) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseColumnType(name)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

type Column struct {
	Name       string     `json:"name"`
	Type       ColumnType `json:"type"`
	PrimaryKey bool       `json:"primaryKey,omitempty"`
	Unique     bool       `json:"unique,omitempty"`
	NotNull    bool       `json:"notNull,omitempty"`
}

// Constraints renders the column flags the way they are declared in SQL.
func (c Column) Constraints() string {
	var parts []string
	if c.PrimaryKey {
		parts = append(parts, "PRIMARY KEY")
	} else {
		if c.Unique {
			parts = append(parts, "UNIQUE")
		}
		if c.NotNull {
			parts = append(parts, "NOT NULL")
		}
	}
	return strings.Join(parts, " ")
}

// Table is the schema of a table: its name and ordered columns.
type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// Validate checks the schema and normalizes column flags: a primary key
// column is always unique and not null.
func (t *Table) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("%w: table name is empty", ErrInvalidSchema)
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("%w: table %s has no columns", ErrInvalidSchema, t.Name)
	}

	seen := make(map[string]bool, len(t.Columns))
	primaryKeys := 0
	for i := range t.Columns {
		col := &t.Columns[i]
		if col.Name == "" {
			return fmt.Errorf("%w: column %d of %s has no name", ErrInvalidSchema, i, t.Name)
		}
		if seen[col.Name] {
			return fmt.Errorf("%w: duplicate column %s in %s", ErrInvalidSchema, col.Name, t.Name)
		}
		seen[col.Name] = true
		if !col.Type.valid() {
			return fmt.Errorf("%w: column %s has unknown type", ErrInvalidSchema, col.Name)
		}
		if col.PrimaryKey {
			primaryKeys++
			col.Unique = true
			col.NotNull = true
		}
	}
	if primaryKeys > 1 {
		return fmt.Errorf("%w: table %s declares %d primary keys", ErrInvalidSchema, t.Name, primaryKeys)
	}
	return nil
}

// ColumnIndex returns the position of the named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, col := range t.Columns {
		if col.Name == name {
			return i
		}
	}
	return -1
}

func (t *Table) PrimaryKey() (Column, bool) {
	for _, col := range t.Columns {
		if col.PrimaryKey {
			return col, true
		}
	}
	return Column{}, false
}

func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		names[i] = col.Name
	}
	return names
}

// Clone returns a deep copy so callers can't mutate a live schema.
func (t Table) Clone() Table {
	cols := make([]Column, len(t.Columns))
	copy(cols, t.Columns)
	return Table{Name: t.Name, Columns: cols}
}

// RowID locates a stored row. IDs are never reused within a table.
type RowID uint64

type Row []Value

func (r Row) Clone() Row {
	out := make(Row, len(r))
	copy(out, r)
	return out
}

// Identity is the author recorded on persisted snapshots.
type Identity struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}
