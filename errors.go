package rbac

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRelation is returned when a check requests an unknown
	// relation combinator.
	ErrInvalidRelation = errors.New("rbac: invalid relation")

	// ErrUnknownMode is returned when configuration names an unknown
	// evaluation mode.
	ErrUnknownMode = errors.New("rbac: unknown evaluation mode")
)

// StoreError wraps a RuleStore failure. Infrastructure errors surface to the
// caller; they are never silently mapped to an allow or a deny.
type StoreError struct {
	Op  string // groups, rules, user
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("rbac: rule store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
