package biscuit

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/biscuit-core/biscuit-go/datalog"
)

func TestBlockBuilderAddRuleRejectsUnboundVariable(t *testing.T) {
	symbols := new(datalog.SymbolTable)
	keys := new(datalog.PublicKeyTable)
	b := NewBlockBuilder(symbols, keys)

	err := b.AddRule(Rule{
		Head: Predicate{Name: "allowed", Terms: []Term{Variable("unbound")}},
		Body: []Predicate{{Name: "resource", Terms: []Term{String("file1")}}},
	})

	var target *ErrInvalidBlockRule
	require.ErrorAs(t, err, &target)
	require.Equal(t, -1, target.BlockID)
}

func TestBlockBuilderAddFactRejectsDuplicate(t *testing.T) {
	symbols := new(datalog.SymbolTable)
	keys := new(datalog.PublicKeyTable)
	b := NewBlockBuilder(symbols, keys)

	fact := Fact{Predicate{Name: "right", Terms: []Term{String("file1"), String("read")}}}
	require.NoError(t, b.AddFact(fact))
	require.ErrorIs(t, b.AddFact(fact), ErrDuplicateFact)
}
