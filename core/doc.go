// Package core provides the types shared by every MiniDB layer.
//
// # Values
//
// Value is a closed tagged union over INT, FLOAT, TEXT, BOOL and NULL:
//
//	v := core.Int(42)
//	s := core.Text("Alice")
//	n := core.Null
//
// Integers and floats compare numerically with each other; any other
// cross-kind comparison fails with ErrMalformedPredicate. Coerce settles a
// value against a column type, widening integers into FLOAT columns.
//
// # Table Definition
//
//	table := core.Table{
//	    Name: "users",
//	    Columns: []core.Column{
//	        {Name: "id", Type: core.IntType, PrimaryKey: true},
//	        {Name: "name", Type: core.TextType, NotNull: true},
//	        {Name: "email", Type: core.TextType, Unique: true},
//	    },
//	}
//
// # Errors
//
// Failures are reported with the sentinel errors in this package, wrapped
// with context. Use errors.Is to classify them.
package core
