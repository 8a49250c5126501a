package core

import (
	"bytes"
	"cmp"
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

type Kind uint8

const (
	NullKind Kind = iota
	IntKind
	FloatKind
	TextKind
	BoolKind
)

func (k Kind) String() string {
	switch k {
	case NullKind:
		return "NULL"
	case IntKind:
		return "INT"
	case FloatKind:
		return "FLOAT"
	case TextKind:
		return "TEXT"
	case BoolKind:
		return "BOOL"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Value is a single cell. The zero Value is Null.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
	b    bool
}

var Null = Value{}

func Int(i int64) Value     { return Value{kind: IntKind, i: i} }
func Float(f float64) Value { return Value{kind: FloatKind, f: f} }
func Text(s string) Value   { return Value{kind: TextKind, s: s} }
func Bool(b bool) Value     { return Value{kind: BoolKind, b: b} }

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == NullKind }

func (v Value) AsInt() (int64, bool)     { return v.i, v.kind == IntKind }
func (v Value) AsText() (string, bool)   { return v.s, v.kind == TextKind }
func (v Value) AsBool() (bool, bool)     { return v.b, v.kind == BoolKind }
func (v Value) AsFloat() (float64, bool) { return v.f, v.kind == FloatKind }

func (v Value) numeric() bool { return v.kind == IntKind || v.kind == FloatKind }

func (v Value) float() float64 {
	if v.kind == IntKind {
		return float64(v.i)
	}
	return v.f
}

func (v Value) String() string {
	switch v.kind {
	case IntKind:
		return strconv.FormatInt(v.i, 10)
	case FloatKind:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case TextKind:
		return v.s
	case BoolKind:
		return strconv.FormatBool(v.b)
	}
	return "NULL"
}

// SQL renders the value as a literal that the parser reads back.
func (v Value) SQL() string {
	if v.kind == TextKind {
		return "'" + strings.ReplaceAll(v.s, "'", "''") + "'"
	}
	return v.String()
}

// Compatible reports whether v can be stored in or compared against a
// column of type t. Null is compatible with every type.
func (v Value) Compatible(t ColumnType) bool {
	switch v.kind {
	case NullKind:
		return true
	case IntKind:
		return t == IntType || t == FloatType
	case FloatKind:
		return t == FloatType || t == IntType
	case TextKind:
		return t == TextType
	case BoolKind:
		return t == BoolType
	}
	return false
}

// Coerce converts v for storage in a column of type t. Integers widen into
// float columns; every other mismatch is ErrTypeMismatch.
func Coerce(v Value, t ColumnType) (Value, error) {
	switch {
	case v.kind == NullKind:
		return v, nil
	case v.kind == IntKind && t == IntType,
		v.kind == FloatKind && t == FloatType,
		v.kind == TextKind && t == TextType,
		v.kind == BoolKind && t == BoolType:
		return v, nil
	case v.kind == IntKind && t == FloatType:
		return Float(float64(v.i)), nil
	}
	return Null, fmt.Errorf("%w: %s value %s for %s column", ErrTypeMismatch, v.kind, v.SQL(), t)
}

// Compare orders two non-null values of the same family. Integers and floats
// compare numerically. Null operands or unrelated kinds are
// ErrMalformedPredicate.
func Compare(a, b Value) (int, error) {
	if a.kind == NullKind || b.kind == NullKind {
		return 0, fmt.Errorf("%w: comparison with NULL", ErrMalformedPredicate)
	}
	if a.numeric() && b.numeric() {
		if a.kind == IntKind && b.kind == IntKind {
			return cmp.Compare(a.i, b.i), nil
		}
		return cmp.Compare(a.float(), b.float()), nil
	}
	if a.kind != b.kind {
		return 0, fmt.Errorf("%w: cannot compare %s with %s", ErrMalformedPredicate, a.kind, b.kind)
	}
	switch a.kind {
	case TextKind:
		return strings.Compare(a.s, b.s), nil
	case BoolKind:
		return cmpBool(a.b, b.b), nil
	}
	return 0, fmt.Errorf("%w: cannot compare %s", ErrMalformedPredicate, a.kind)
}

// KeyCompare is a total order over all values, used to order index keys.
// Null sorts first, then numbers (mixed int/float numerically), text, bools.
func KeyCompare(a, b Value) int {
	ra, rb := a.rank(), b.rank()
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	c, err := Compare(a, b)
	if err != nil {
		return 0
	}
	return c
}

func (v Value) rank() int {
	switch v.kind {
	case IntKind, FloatKind:
		return 1
	case TextKind:
		return 2
	case BoolKind:
		return 3
	}
	return 0
}

func cmpBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	}
	return 1
}

// Equal reports strict equality: same kind and same payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case IntKind:
		return v.i == o.i
	case FloatKind:
		return v.f == o.f
	case TextKind:
		return v.s == o.s
	case BoolKind:
		return v.b == o.b
	}
	return true
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case IntKind:
		return strconv.AppendInt(nil, v.i, 10), nil
	case FloatKind:
		return json.Marshal(v.f)
	case TextKind:
		return json.Marshal(v.s)
	case BoolKind:
		return strconv.AppendBool(nil, v.b), nil
	}
	return []byte("null"), nil
}

// UnmarshalJSON decodes a JSON scalar. Numbers without a fraction or
// exponent become integers; use Coerce to settle the column type.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0:
		return fmt.Errorf("%w: empty value", ErrTypeMismatch)
	case bytes.Equal(data, []byte("null")):
		*v = Null
	case bytes.Equal(data, []byte("true")):
		*v = Bool(true)
	case bytes.Equal(data, []byte("false")):
		*v = Bool(false)
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Text(s)
	default:
		if !bytes.ContainsAny(data, ".eE") {
			i, err := strconv.ParseInt(string(data), 10, 64)
			if err == nil {
				*v = Int(i)
				return nil
			}
		}
		f, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return fmt.Errorf("%w: invalid value %s", ErrTypeMismatch, data)
		}
		*v = Float(f)
	}
	return nil
}
