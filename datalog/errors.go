package datalog

import "fmt"

// The datalog package reports execution failures with distinct, typed
// errors (spec §7 `Execution(_)`) so a caller can branch on the kind rather
// than string-matching. Any of these aborts the entire authorization —
// it is never treated as merely "the check failed".

// OverflowError is returned when a trapped arithmetic operation would wrap.
type OverflowError struct {
	Op string
}

func (e *OverflowError) Error() string { return fmt.Sprintf("datalog: %s overflow", e.Op) }

// DivideByZeroError is returned by integer division by zero.
type DivideByZeroError struct{}

func (e *DivideByZeroError) Error() string { return "datalog: divide by zero" }

// InvalidTypeError covers strict-equality type mismatches, wrong-receiver
// method calls, and non-boolean logical operands.
type InvalidTypeError struct {
	Op     string
	Detail string
}

func (e *InvalidTypeError) Error() string {
	return fmt.Sprintf("datalog: invalid type for %s: %s", e.Op, e.Detail)
}

// ShadowedVariableError is returned when a closure parameter (.all/.any)
// reuses a name already bound in the enclosing rule.
type ShadowedVariableError struct {
	Name string
}

func (e *ShadowedVariableError) Error() string {
	return fmt.Sprintf("datalog: closure parameter %q shadows an outer variable", e.Name)
}

// UnknownError is returned when an extern call fails to resolve or its
// host function reports failure.
type UnknownError struct {
	Detail string
}

func (e *UnknownError) Error() string { return fmt.Sprintf("datalog: unknown: %s", e.Detail) }

// RunLimitKind distinguishes the three saturation bounds of spec §4.F.
type RunLimitKind byte

const (
	RunLimitFactCount RunLimitKind = iota
	RunLimitIterations
	RunLimitTimeout
)

func (k RunLimitKind) String() string {
	switch k {
	case RunLimitFactCount:
		return "FactCount"
	case RunLimitIterations:
		return "Iterations"
	case RunLimitTimeout:
		return "Timeout"
	default:
		return "Unknown"
	}
}

// RunLimitError is returned when saturation exceeds a configured bound.
type RunLimitError struct {
	Kind RunLimitKind
}

func (e *RunLimitError) Error() string {
	return fmt.Sprintf("datalog: run limit exceeded: %s", e.Kind)
}

// InvalidRuleError is the static UnboundVariable check of spec §3: every
// variable in a rule's head or expressions must appear in some body
// predicate.
type InvalidRuleError struct {
	MissingVariable Variable
}

func (e *InvalidRuleError) Error() string {
	return fmt.Sprintf("datalog: variable %d in head/expression is unbound in body", e.MissingVariable)
}

// unsafeForWorldError marks a body predicate that currently has zero
// matching facts; it is not a fatal error — the world simply produces no
// new facts from that rule this iteration.
type unsafeForWorldError struct {
	detail string
}

func (e *unsafeForWorldError) Error() string { return e.detail }
