package core

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownTable        = errors.New("unknown table")
	ErrUnknownColumn       = errors.New("unknown column")
	ErrUnknownIndex        = errors.New("unknown index")
	ErrAlreadyExists       = errors.New("already exists")
	ErrTypeMismatch        = errors.New("type mismatch")
	ErrConstraintViolation = errors.New("constraint violation")
	ErrNotFound            = errors.New("row not found")
	ErrDuplicateKey        = errors.New("duplicate key")
	ErrNotNull             = errors.New("null value in not null column")
	ErrMalformedPredicate  = errors.New("malformed predicate")
	ErrInvalidSchema       = errors.New("invalid schema")
	ErrUnreadable          = errors.New("unreadable table snapshot")
)

// ConstraintError reports a not-null or uniqueness breach on a column.
// It matches ErrConstraintViolation and unwraps to the specific cause.
type ConstraintError struct {
	Table  string
	Column string
	Err    error
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("%s on %s.%s: %v", ErrConstraintViolation, e.Table, e.Column, e.Err)
}

func (e *ConstraintError) Unwrap() error {
	return e.Err
}

func (e *ConstraintError) Is(target error) bool {
	return target == ErrConstraintViolation
}
