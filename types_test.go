package biscuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/biscuit-core/biscuit-go/datalog"
)

func TestFactRoundTrip(t *testing.T) {
	syms := new(datalog.SymbolTable)
	now := time.Now().Truncate(time.Second)

	f := Fact{Predicate{
		Name: "right",
		Terms: []Term{
			String("file1"),
			Integer(42),
			Date(now),
			Bool(true),
			Bytes([]byte("abc")),
			Set{String("read"), String("write")},
			Array{Integer(1), Integer(2)},
			Map{{Key: String("k"), Value: Integer(1)}},
		},
	}}

	dl := f.convert(syms)
	back := factFromDatalog(syms, dl)

	require.Equal(t, "right", back.Predicate.Name)
	require.Equal(t, String("file1"), back.Terms[0])
	require.Equal(t, Integer(42), back.Terms[1])
	require.Equal(t, Date(now.UTC()), back.Terms[2])
	require.Equal(t, Bool(true), back.Terms[3])
	require.Equal(t, Bytes([]byte("abc")), back.Terms[4])
}

func TestVariableConvertSharesSymbol(t *testing.T) {
	syms := new(datalog.SymbolTable)

	a := Variable("x").convert(syms)
	b := Variable("x").convert(syms)
	require.Equal(t, a, b)
}

func TestRuleConvertAppliesScope(t *testing.T) {
	syms := new(datalog.SymbolTable)
	keys := new(datalog.PublicKeyTable)

	r := Rule{
		Head: Predicate{Name: "allowed", Terms: []Term{Variable("op")}},
		Body: []Predicate{
			{Name: "operation", Terms: []Term{Variable("op")}},
		},
		Scope: TrustScope{ScopeAuthority()},
	}

	dl := r.convert(syms, keys)
	require.Len(t, dl.Scope, 1)
	require.Equal(t, datalog.ScopeAuthority, dl.Scope[0].Kind)
}

func TestScopePublicKeyInternsKey(t *testing.T) {
	keys := new(datalog.PublicKeyTable)
	pub := []byte("0123456789012345678901234567890a")

	el := ScopePublicKey(pub).convert(keys)
	require.Equal(t, datalog.ScopePublicKey, el.Kind)

	id, ok := keys.Get(el.PublicKeyID)
	require.True(t, ok)
	require.Equal(t, pub, id)
}

func TestCheckAndPolicyConvertPreserveKind(t *testing.T) {
	syms := new(datalog.SymbolTable)
	keys := new(datalog.PublicKeyTable)

	c := Check{
		Kind: datalog.CheckAll,
		Queries: []Rule{
			{Head: Predicate{Name: "query"}, Body: []Predicate{{Name: "fact"}}},
		},
	}
	dlC := c.convert(syms, keys)
	require.Equal(t, datalog.CheckAll, dlC.Kind)

	p := Policy{
		Kind: datalog.PolicyDeny,
		Queries: []Rule{
			{Head: Predicate{Name: "query"}, Body: []Predicate{{Name: "fact"}}},
		},
	}
	dlP := p.convert(syms, keys)
	require.Equal(t, datalog.PolicyDeny, dlP.Kind)
}
