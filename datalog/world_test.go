package datalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWorldFamilySaturation(t *testing.T) {
	syms := &SymbolTable{}
	a := String("a")
	b := String("b")
	c := String("c")
	d := String("d")

	parent := syms.Insert("parent")
	grandparent := syms.Insert("grandparent")

	gp := Variable(syms.Insert("gp"))
	p := Variable(syms.Insert("p"))
	gc := Variable(syms.Insert("gc"))

	w := NewWorld()
	w.AddFact(AuthorityOrigin, Fact{Predicate{parent, []Term{a, b}}})
	w.AddFact(AuthorityOrigin, Fact{Predicate{parent, []Term{b, c}}})
	w.AddFact(AuthorityOrigin, Fact{Predicate{parent, []Term{c, d}}})

	w.AddRule(AuthorityOrigin, Rule{
		Head: Predicate{grandparent, []Term{gp, gc}},
		Body: []Predicate{
			{parent, []Term{gp, p}},
			{parent, []Term{p, gc}},
		},
	})

	require.NoError(t, w.Run(context.Background()))

	var got []Fact
	for _, e := range w.facts {
		if e.Fact.Name == grandparent {
			got = append(got, e.Fact)
		}
	}
	require.Len(t, got, 2)
}

func TestWorldTrustScopeFiltersThirdParty(t *testing.T) {
	syms := &SymbolTable{}
	right := syms.Insert("right")
	canRead := syms.Insert("can_read")

	x := Variable(syms.Insert("x"))

	signer := func(o Origin) (uint64, bool) {
		if o == Origin(1) {
			return 42, true
		}
		return 0, false
	}

	w := NewWorld(WithSigner(signer))
	w.AddFact(Origin(1), Fact{Predicate{right, []Term{String("file1")}}})

	// rule lives in the authorizer and declares a scope naming only a key
	// that did not sign origin 1; a declared scope replaces the implicit
	// `previous`, so the third-party-signed block's facts should not leak in.
	w.AddRule(AuthorizerOrigin, Rule{
		Head: Predicate{canRead, []Term{x}},
		Body: []Predicate{{right, []Term{x}}},
		Scope: TrustScope{
			{Kind: ScopePublicKey, PublicKeyID: 999}, // wrong key on purpose
		},
	})

	require.NoError(t, w.Run(context.Background()))

	for _, e := range w.facts {
		require.NotEqual(t, canRead, e.Fact.Name, "untrusted origin must not unify")
	}
}

func TestWorldProtectedPredicateForging(t *testing.T) {
	syms := &SymbolTable{}
	revocationID := syms.Insert("revocation_id")
	trigger := syms.Insert("trigger")

	w := NewWorld(WithProtectedNames(map[uint64]struct{}{revocationID: {}}))
	w.AddFact(Origin(3), Fact{Predicate{trigger, []Term{Integer(1)}}})
	w.AddRule(Origin(3), Rule{
		Head: Predicate{revocationID, []Term{Integer(7)}},
		Body: []Predicate{{trigger, []Term{Integer(1)}}},
	})

	require.NoError(t, w.Run(context.Background()))
	require.Equal(t, 1, w.DiscardedForgeries)
	for _, e := range w.facts {
		require.NotEqual(t, revocationID, e.Fact.Name)
	}
}

func TestWorldCheckIfAndRejectIf(t *testing.T) {
	syms := &SymbolTable{}
	operation := syms.Insert("operation")
	x := Variable(syms.Insert("x"))

	w := NewWorld()
	w.AddFact(AuthorizerOrigin, Fact{Predicate{operation, []Term{String("read")}}})
	w.AddCheck(AuthorizerOrigin, Check{
		Kind: CheckIf,
		Queries: []Rule{{
			Body: []Predicate{{operation, []Term{x}}},
			Expressions: []Expression{
				&BinaryExpr{Op: OpEq, L: &VarExpr{Var: x}, R: &ValueExpr{Term: String("read")}},
			},
		}},
	})
	w.AddCheck(AuthorizerOrigin, Check{
		Kind: RejectIf,
		Queries: []Rule{{
			Body: []Predicate{{operation, []Term{x}}},
			Expressions: []Expression{
				&BinaryExpr{Op: OpEq, L: &VarExpr{Var: x}, R: &ValueExpr{Term: String("write")}},
			},
		}},
	})

	require.NoError(t, w.Run(context.Background()))
	failed, err := w.EvaluateChecks()
	require.NoError(t, err)
	require.Empty(t, failed)
}

func TestWorldCheckAllVacuousSuccess(t *testing.T) {
	syms := &SymbolTable{}
	absent := syms.Insert("absent")
	x := Variable(syms.Insert("x"))

	w := NewWorld()
	w.AddCheck(AuthorizerOrigin, Check{
		Kind: CheckAll,
		Queries: []Rule{{
			Body: []Predicate{{absent, []Term{x}}},
			Expressions: []Expression{
				&ValueExpr{Term: Bool(false)},
			},
		}},
	})

	require.NoError(t, w.Run(context.Background()))
	failed, err := w.EvaluateChecks()
	require.NoError(t, err)
	require.Empty(t, failed, "a body with zero assignments satisfies check all vacuously")
}

func TestWorldCheckAllRequiresEveryBinding(t *testing.T) {
	syms := &SymbolTable{}
	amount := syms.Insert("amount")
	x := Variable(syms.Insert("x"))

	w := NewWorld()
	w.AddFact(AuthorizerOrigin, Fact{Predicate{amount, []Term{Integer(5)}}})
	w.AddFact(AuthorizerOrigin, Fact{Predicate{amount, []Term{Integer(50)}}})
	w.AddCheck(AuthorizerOrigin, Check{
		Kind: CheckAll,
		Queries: []Rule{{
			Body: []Predicate{{amount, []Term{x}}},
			Expressions: []Expression{
				&BinaryExpr{Op: OpLT, L: &VarExpr{Var: x}, R: &ValueExpr{Term: Integer(10)}},
			},
		}},
	})

	require.NoError(t, w.Run(context.Background()))
	failed, err := w.EvaluateChecks()
	require.NoError(t, err)
	require.Len(t, failed, 1)
}

func TestWorldPoliciesFirstMatchWins(t *testing.T) {
	syms := &SymbolTable{}
	operation := syms.Insert("operation")

	w := NewWorld()
	w.AddFact(AuthorizerOrigin, Fact{Predicate{operation, []Term{String("read")}}})
	w.AddPolicy(Policy{
		Kind: PolicyDeny,
		Queries: []Rule{{
			Body: []Predicate{{operation, []Term{String("write")}}},
		}},
	})
	w.AddPolicy(Policy{
		Kind: PolicyAllow,
		Queries: []Rule{{
			Body: []Predicate{{operation, []Term{String("read")}}},
		}},
	})

	require.NoError(t, w.Run(context.Background()))
	idx, kind, err := w.EvaluatePolicies()
	require.NoError(t, err)
	require.Equal(t, 1, idx)
	require.Equal(t, PolicyAllow, kind)
}

func TestWorldRunLimitIterations(t *testing.T) {
	syms := &SymbolTable{}
	counter := syms.Insert("counter")
	x := Variable(syms.Insert("x"))

	w := NewWorld(WithMaxIterations(0))
	w.AddFact(AuthorityOrigin, Fact{Predicate{counter, []Term{Integer(0)}}})
	w.AddRule(AuthorityOrigin, Rule{
		Head: Predicate{counter, []Term{x}},
		Body: []Predicate{{counter, []Term{x}}},
	})

	err := w.Run(context.Background())
	require.Error(t, err)
	rle, ok := err.(*RunLimitError)
	require.True(t, ok)
	require.Equal(t, RunLimitIterations, rle.Kind)
}

func TestWorldInvalidRuleSurfacesExecutionError(t *testing.T) {
	syms := &SymbolTable{}
	counter := syms.Insert("counter")
	unrelated := syms.Insert("unrelated")
	x := Variable(syms.Insert("x"))
	y := Variable(syms.Insert("y"))

	w := NewWorld()
	w.AddFact(AuthorityOrigin, Fact{Predicate{counter, []Term{Integer(0)}}})
	// malformed on purpose: head var y is never bound by the body.
	w.AddRule(AuthorityOrigin, Rule{
		Head: Predicate{unrelated, []Term{y}},
		Body: []Predicate{{counter, []Term{x}}},
	})

	err := w.Run(context.Background())
	require.Error(t, err)
	_, ok := err.(*InvalidRuleError)
	require.True(t, ok)
}
