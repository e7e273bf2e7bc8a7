package biscuit

import "fmt"

// Format errors cover malformed input recognized before any cryptographic
// or logical evaluation takes place (spec §7).
type FormatError struct {
	Detail string
}

func (e *FormatError) Error() string { return fmt.Sprintf("biscuit: format error: %s", e.Detail) }

// ErrSignature wraps a chain signature verification failure.
type ErrSignature struct {
	Cause error
}

func (e *ErrSignature) Error() string  { return fmt.Sprintf("biscuit: signature error: %v", e.Cause) }
func (e *ErrSignature) Unwrap() error { return e.Cause }

// ErrInvalidAuthorityIndex is returned when the first block is not index 0
// or a later block reuses an index.
type ErrInvalidAuthorityIndex struct {
	Index uint32
}

func (e *ErrInvalidAuthorityIndex) Error() string {
	return fmt.Sprintf("biscuit: invalid authority index %d", e.Index)
}

// ErrMissingSymbols is returned when a block references a symbol id that
// resolves through neither the default table nor any accumulated
// extension table.
type ErrMissingSymbols struct {
	ID uint64
}

func (e *ErrMissingSymbols) Error() string {
	return fmt.Sprintf("biscuit: missing symbol for id %d", e.ID)
}

// ErrUnauthorized is the normal, non-fatal decision outcome when no policy
// allowed the request, or a check failed first.
type ErrUnauthorized struct {
	Policy        *int
	FailedChecks  []FailedCheck
}

// FailedCheck identifies one check that did not hold, in the vocabulary a
// caller understands (block index, not an internal Origin).
type FailedCheck struct {
	BlockID     int // -1 for an authorizer-supplied check
	Index       int
	Description string // the check's datalog source form, for diagnostics
}

func (e *ErrUnauthorized) Error() string {
	if len(e.FailedChecks) > 0 {
		return fmt.Sprintf("biscuit: unauthorized: %d check(s) failed, first at block %d check %d",
			len(e.FailedChecks), e.FailedChecks[0].BlockID, e.FailedChecks[0].Index)
	}
	if e.Policy != nil {
		return fmt.Sprintf("biscuit: unauthorized: denied by policy %d", *e.Policy)
	}
	return "biscuit: unauthorized: no policy matched"
}

// ErrInvalidBlockRule is returned when a rule added to a block is not
// well-formed: it uses a variable in its head or an expression that no body
// predicate binds (spec §3). BlockID is -1 when the rule is rejected while
// still being built, before it has joined a chain at a known index.
type ErrInvalidBlockRule struct {
	BlockID int
	Rule    string
}

func (e *ErrInvalidBlockRule) Error() string {
	return fmt.Sprintf("biscuit: block %d: invalid rule: %s", e.BlockID, e.Rule)
}

// ErrExecution wraps any fatal datalog execution error (arithmetic
// overflow, a run limit, an extern failure, ...): spec §7 `Execution(_)`.
type ErrExecution struct {
	Cause error
}

func (e *ErrExecution) Error() string  { return fmt.Sprintf("biscuit: execution error: %v", e.Cause) }
func (e *ErrExecution) Unwrap() error { return e.Cause }

// ErrUnknownPublicKey is returned when verifying a biscuit against a root
// public key that does not match the one used to sign it.
var ErrUnknownPublicKey = &FormatError{Detail: "unknown root public key"}

// ErrAlreadySealed is returned when attempting to append a block to a
// biscuit that has already been sealed.
var ErrAlreadySealed = &FormatError{Detail: "biscuit is sealed, cannot append further blocks"}
