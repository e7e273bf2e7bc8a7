package datalog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeBlockDeterministic(t *testing.T) {
	const right = uint64(1)
	facts := []Fact{{Predicate{right, []Term{String("file1"), String("read")}}}}

	a := EncodeBlock("ctx", facts, nil, nil)
	b := EncodeBlock("ctx", facts, nil, nil)
	require.Equal(t, a, b)
}

func TestEncodeBlockDiffersOnContent(t *testing.T) {
	const right = uint64(1)
	f1 := []Fact{{Predicate{right, []Term{String("file1"), String("read")}}}}
	f2 := []Fact{{Predicate{right, []Term{String("file1"), String("write")}}}}

	require.NotEqual(t, EncodeBlock("ctx", f1, nil, nil), EncodeBlock("ctx", f2, nil, nil))
	require.NotEqual(t, EncodeBlock("ctx", f1, nil, nil), EncodeBlock("other", f1, nil, nil))
}

func TestEncodeBlockSetOrderIndependent(t *testing.T) {
	const right = uint64(1)
	insertionOrderA := []Fact{{Predicate{right, []Term{Set{String("read"), String("write"), String("admin")}}}}}
	insertionOrderB := []Fact{{Predicate{right, []Term{Set{String("admin"), String("write"), String("read")}}}}}

	require.Equal(t, EncodeBlock("", insertionOrderA, nil, nil), EncodeBlock("", insertionOrderB, nil, nil))
}

func TestEncodeBlockArrayOrderMatters(t *testing.T) {
	const right = uint64(1)
	a := []Fact{{Predicate{right, []Term{Array{Integer(1), Integer(2)}}}}}
	b := []Fact{{Predicate{right, []Term{Array{Integer(2), Integer(1)}}}}}

	require.NotEqual(t, EncodeBlock("", a, nil, nil), EncodeBlock("", b, nil, nil))
}

func TestEncodeBlockCoversRulesAndChecks(t *testing.T) {
	const op = uint64(2)
	x := Variable(10)

	rule := Rule{
		Head: Predicate{op, []Term{x}},
		Body: []Predicate{{op, []Term{x}}},
	}
	check := Check{Queries: []Rule{rule}, Kind: CheckIf}

	withRule := EncodeBlock("", nil, []Rule{rule}, nil)
	withoutRule := EncodeBlock("", nil, nil, nil)
	require.NotEqual(t, withRule, withoutRule)

	withCheck := EncodeBlock("", nil, nil, []Check{check})
	require.NotEqual(t, withCheck, withoutRule)
	require.NotEqual(t, withCheck, withRule)
}

func TestEncodeBlockCoversExpressionAndScope(t *testing.T) {
	const op = uint64(2)
	x := Variable(10)

	base := Rule{Head: Predicate{op, []Term{x}}, Body: []Predicate{{op, []Term{x}}}}
	withExpr := base
	withExpr.Expressions = []Expression{&BinaryExpr{Op: OpEq, L: &VarExpr{Var: x}, R: &ValueExpr{Term: Integer(1)}}}

	withScope := base
	withScope.Scope = TrustScope{{Kind: ScopeAuthority}}

	plain := EncodeBlock("", nil, []Rule{base}, nil)
	expr := EncodeBlock("", nil, []Rule{withExpr}, nil)
	scope := EncodeBlock("", nil, []Rule{withScope}, nil)

	require.NotEqual(t, plain, expr)
	require.NotEqual(t, plain, scope)
	require.NotEqual(t, expr, scope)
}
