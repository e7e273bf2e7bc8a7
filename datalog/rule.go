package datalog

import "strings"

// ScopeKind identifies one element of a trust scope (spec §4.F).
type ScopeKind byte

const (
	// ScopePrevious trusts every origin earlier than the rule's own origin.
	// It is implicit (need not be declared) inside authority/authorizer
	// rules, and must be declared explicitly elsewhere.
	ScopePrevious ScopeKind = iota
	// ScopeAuthority trusts the authority block (origin 0) explicitly;
	// redundant since authority is always trusted, kept so `trusting
	// authority` round-trips.
	ScopeAuthority
	// ScopePublicKey trusts any origin whose block carries a third-party
	// external signature by this key.
	ScopePublicKey
)

type ScopeElement struct {
	Kind        ScopeKind
	PublicKeyID uint64
}

// TrustScope is the set of origins a rule or check may draw facts from.
type TrustScope []ScopeElement

// Trusts reports whether facts originating at origin are visible to a rule
// or check whose own origin is ruleOrigin and whose declared scope is s.
// Authority and the authorizer are implicitly trusted by everyone, and every
// rule or check trusts its own origin. When s
// is empty, `previous` is additionally implicit for rules living in the
// authority block or the authorizer itself; declaring any scope element at
// all replaces that default, so an authority/authorizer check that names
// an explicit public key no longer sees other origins for free. signer
// resolves an origin to the public key id that externally signed it, if
// any (third-party blocks only).
func (s TrustScope) Trusts(origin, ruleOrigin Origin, signer func(Origin) (uint64, bool)) bool {
	if origin == AuthorityOrigin || origin == AuthorizerOrigin || origin == ruleOrigin {
		return true
	}
	if len(s) == 0 && (ruleOrigin == AuthorityOrigin || ruleOrigin == AuthorizerOrigin) && origin < ruleOrigin {
		return true
	}
	for _, el := range s {
		switch el.Kind {
		case ScopeAuthority:
			// authority is always trusted already; nothing to add.
		case ScopePrevious:
			if origin != AuthorizerOrigin && origin < ruleOrigin {
				return true
			}
		case ScopePublicKey:
			if pk, ok := signer(origin); ok && pk == el.PublicKeyID {
				return true
			}
		}
	}
	return false
}

func (s TrustScope) String(syms *PublicKeyTable) string {
	if len(s) == 0 {
		return ""
	}
	parts := make([]string, len(s))
	for i, el := range s {
		switch el.Kind {
		case ScopeAuthority:
			parts[i] = "authority"
		case ScopePrevious:
			parts[i] = "previous"
		case ScopePublicKey:
			parts[i] = "ed25519/<key>"
		}
	}
	return "trusting " + strings.Join(parts, ", ")
}

// Rule is a head predicate, a conjunctive body, expression constraints, and
// a trust scope. A Rule is used both for fact-deriving rules and, with its
// Head ignored, as one disjunct of a Check/Policy query.
type Rule struct {
	Head        Predicate
	Body        []Predicate
	Expressions []Expression
	Scope       TrustScope
}

// Validate checks the well-formedness invariant of spec §3: every variable
// appearing in the head or in an expression must be bound by some body
// predicate. Returns InvalidRuleError otherwise.
func (r Rule) Validate() error {
	bound := make(map[Variable]struct{})
	for _, p := range r.Body {
		for _, t := range p.Terms {
			if v, ok := t.(Variable); ok {
				bound[v] = struct{}{}
			}
		}
	}
	for _, t := range r.Head.Terms {
		if v, ok := t.(Variable); ok {
			if _, ok := bound[v]; !ok {
				return &InvalidRuleError{MissingVariable: v}
			}
		}
	}
	for _, e := range r.Expressions {
		for _, v := range freeVariables(e) {
			if _, ok := bound[v]; !ok {
				return &InvalidRuleError{MissingVariable: v}
			}
		}
	}
	return nil
}

// freeVariables collects the variables an expression references directly
// (not counting a closure's own bound parameter).
func freeVariables(e Expression) []Variable {
	var out []Variable
	var walk func(Expression, map[Variable]struct{})
	walk = func(e Expression, bound map[Variable]struct{}) {
		switch n := e.(type) {
		case *ValueExpr:
		case *VarExpr:
			if _, ok := bound[n.Var]; !ok {
				out = append(out, n.Var)
			}
		case *UnaryExpr:
			walk(n.X, bound)
		case *BinaryExpr:
			walk(n.L, bound)
			walk(n.R, bound)
		case *MethodExpr:
			walk(n.Receiver, bound)
			for _, a := range n.Args {
				walk(a, bound)
			}
		case *ClosureExpr:
			child := make(map[Variable]struct{}, len(bound)+1)
			for k := range bound {
				child[k] = struct{}{}
			}
			child[n.Param] = struct{}{}
			walk(n.Body, child)
		case *ExternExpr:
			if n.Receiver != nil {
				walk(n.Receiver, bound)
			}
			for _, a := range n.Args {
				walk(a, bound)
			}
		}
	}
	walk(e, map[Variable]struct{}{})
	return out
}

// CheckKind selects a check's matching semantics (spec §3).
type CheckKind byte

const (
	CheckIf CheckKind = iota
	CheckAll
	RejectIf
)

// Check is a disjunction of rule-shaped queries plus a mode.
type Check struct {
	Queries []Rule
	Kind    CheckKind
}

// PolicyKind is a policy's verdict.
type PolicyKind byte

const (
	PolicyAllow PolicyKind = iota
	PolicyDeny
)

// Policy is shaped like a Check but carries an allow/deny verdict instead
// of a pass/fail mode.
type Policy struct {
	Queries []Rule
	Kind    PolicyKind
}
