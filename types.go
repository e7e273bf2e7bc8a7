package biscuit

import (
	"fmt"
	"strings"
	"time"

	"github.com/biscuit-core/biscuit-go/datalog"
)

// Term is a builder-facing value that can appear in a predicate, either a
// named Variable (interned into a small numeric id per block) or one of
// the ground value kinds of datalog.Term.
type Term interface {
	convert(syms *datalog.SymbolTable) datalog.Term
	String() string
}

// Variable names an unbound slot in a rule/check/policy body. Two
// occurrences of the same name within one Rule refer to the same value.
type Variable string

func (v Variable) convert(syms *datalog.SymbolTable) datalog.Term {
	return datalog.Variable(syms.Insert(string(v)))
}
func (v Variable) String() string { return "$" + string(v) }

type Integer int64

func (i Integer) convert(*datalog.SymbolTable) datalog.Term { return datalog.Integer(i) }
func (i Integer) String() string                            { return fmt.Sprintf("%d", int64(i)) }

type String string

func (s String) convert(*datalog.SymbolTable) datalog.Term { return datalog.String(s) }
func (s String) String() string                             { return fmt.Sprintf("%q", string(s)) }

type Date time.Time

func (d Date) convert(*datalog.SymbolTable) datalog.Term {
	return datalog.NewDate(time.Time(d))
}
func (d Date) String() string { return time.Time(d).UTC().Format(time.RFC3339) }

type Bytes []byte

func (b Bytes) convert(*datalog.SymbolTable) datalog.Term { return datalog.Bytes(b) }
func (b Bytes) String() string                            { return datalog.Bytes(b).String() }

type Bool bool

func (b Bool) convert(*datalog.SymbolTable) datalog.Term { return datalog.Bool(b) }
func (b Bool) String() string                            { return fmt.Sprintf("%t", bool(b)) }

type Null struct{}

func (Null) convert(*datalog.SymbolTable) datalog.Term { return datalog.Null{} }
func (Null) String() string                            { return "null" }

// Set is an unordered, deduplicated collection of scalar terms.
type Set []Term

func (s Set) convert(syms *datalog.SymbolTable) datalog.Term {
	terms := make([]datalog.Term, len(s))
	for i, t := range s {
		terms[i] = t.convert(syms)
	}
	set, _ := datalog.NewSet(terms...)
	return set
}
func (s Set) String() string {
	strs := make([]string, len(s))
	for i, t := range s {
		strs[i] = t.String()
	}
	return "{" + strings.Join(strs, ", ") + "}"
}

// Array is an ordered, possibly nested collection of terms.
type Array []Term

func (a Array) convert(syms *datalog.SymbolTable) datalog.Term {
	terms := make([]datalog.Term, len(a))
	for i, t := range a {
		terms[i] = t.convert(syms)
	}
	return datalog.Array(terms)
}
func (a Array) String() string {
	strs := make([]string, len(a))
	for i, t := range a {
		strs[i] = t.String()
	}
	return "[" + strings.Join(strs, ", ") + "]"
}

// MapPair is one key/value entry of a Map literal. Key must convert to a
// String or Integer term.
type MapPair struct {
	Key   Term
	Value Term
}

// Map is an ordered collection of key/value entries, equal to another Map
// only when every entry matches at the same position.
type Map []MapPair

func (m Map) convert(syms *datalog.SymbolTable) datalog.Term {
	entries := make(datalog.Map, len(m))
	for i, p := range m {
		k := p.Key.convert(syms)
		mk, ok := k.(datalog.MapKey)
		if !ok {
			mk = datalog.String(p.Key.String())
		}
		entries[i] = datalog.MapEntry{Key: mk, Value: p.Value.convert(syms)}
	}
	return entries
}
func (m Map) String() string {
	strs := make([]string, len(m))
	for i, p := range m {
		strs[i] = fmt.Sprintf("%s: %s", p.Key, p.Value)
	}
	return "{" + strings.Join(strs, ", ") + "}"
}

// Predicate is a predicate name plus its ordered terms.
type Predicate struct {
	Name  string
	Terms []Term
}

func (p Predicate) convert(syms *datalog.SymbolTable) datalog.Predicate {
	terms := make([]datalog.Term, len(p.Terms))
	for i, t := range p.Terms {
		terms[i] = t.convert(syms)
	}
	return datalog.Predicate{Name: syms.Insert(p.Name), Terms: terms}
}

func (p Predicate) String() string {
	strs := make([]string, len(p.Terms))
	for i, t := range p.Terms {
		strs[i] = t.String()
	}
	return fmt.Sprintf("%s(%s)", p.Name, strings.Join(strs, ", "))
}

// Fact is a predicate whose terms must all be ground (no Variable); neither
// construction nor convert checks this, mirroring the datalog package's own
// Fact/Predicate split.
type Fact struct {
	Predicate
}

func (f Fact) convert(syms *datalog.SymbolTable) datalog.Fact {
	return datalog.Fact{Predicate: f.Predicate.convert(syms)}
}

// FactSet is a snapshot of ground facts, as returned by Authorizer.Query.
type FactSet []Fact

func factFromDatalog(syms *datalog.SymbolTable, f datalog.Fact) Fact {
	return Fact{Predicate: predicateFromDatalog(syms, f.Predicate)}
}

func predicateFromDatalog(syms *datalog.SymbolTable, p datalog.Predicate) Predicate {
	terms := make([]Term, len(p.Terms))
	for i, t := range p.Terms {
		terms[i] = termFromDatalog(syms, t)
	}
	return Predicate{Name: syms.Str(p.Name), Terms: terms}
}

func termFromDatalog(syms *datalog.SymbolTable, t datalog.Term) Term {
	switch v := t.(type) {
	case datalog.Variable:
		return Variable(syms.Str(uint64(v)))
	case datalog.Integer:
		return Integer(v)
	case datalog.String:
		return String(v)
	case datalog.Date:
		return Date(time.Unix(int64(v), 0).UTC())
	case datalog.Bytes:
		return Bytes(v)
	case datalog.Bool:
		return Bool(v)
	case datalog.Null:
		return Null{}
	case datalog.Set:
		out := make(Set, len(v))
		for i, e := range v {
			out[i] = termFromDatalog(syms, e)
		}
		return out
	case datalog.Array:
		out := make(Array, len(v))
		for i, e := range v {
			out[i] = termFromDatalog(syms, e)
		}
		return out
	case datalog.Map:
		out := make(Map, len(v))
		for i, e := range v {
			out[i] = MapPair{Key: termFromDatalog(syms, e.Key), Value: termFromDatalog(syms, e.Value)}
		}
		return out
	default:
		return String(t.String())
	}
}

// Expression is a builder-facing expression node; see expression.go for
// the constructor functions (Var, Eq, And, Method, ...). Variable names
// are resolved against the enclosing rule's symbol table only when the
// rule itself is converted, so expressions can be built before the rule
// they belong to is known.
type Expression interface {
	convert(syms *datalog.SymbolTable) datalog.Expression
}

// Rule is a head predicate derived from a conjunctive body, filtered by
// expressions and a trust scope.
type Rule struct {
	Head        Predicate
	Body        []Predicate
	Expressions []Expression
	Scope       TrustScope
}

func (r Rule) convert(syms *datalog.SymbolTable, keys *datalog.PublicKeyTable) datalog.Rule {
	body := make([]datalog.Predicate, len(r.Body))
	for i, p := range r.Body {
		body[i] = p.convert(syms)
	}
	exprs := make([]datalog.Expression, len(r.Expressions))
	for i, e := range r.Expressions {
		exprs[i] = e.convert(syms)
	}
	return datalog.Rule{
		Head:        r.Head.convert(syms),
		Body:        body,
		Expressions: exprs,
		Scope:       r.Scope.convert(keys),
	}
}

// TrustScope is the builder-facing form of a rule's trust scope.
type TrustScope []ScopeElement

func (s TrustScope) convert(keys *datalog.PublicKeyTable) datalog.TrustScope {
	out := make(datalog.TrustScope, len(s))
	for i, e := range s {
		out[i] = e.convert(keys)
	}
	return out
}

type ScopeElement struct {
	Kind      datalog.ScopeKind
	PublicKey []byte
}

func (e ScopeElement) convert(keys *datalog.PublicKeyTable) datalog.ScopeElement {
	out := datalog.ScopeElement{Kind: e.Kind}
	if e.Kind == datalog.ScopePublicKey {
		out.PublicKeyID = keys.Insert(e.PublicKey)
	}
	return out
}

func ScopePrevious() ScopeElement { return ScopeElement{Kind: datalog.ScopePrevious} }
func ScopeAuthority() ScopeElement { return ScopeElement{Kind: datalog.ScopeAuthority} }
func ScopePublicKey(key []byte) ScopeElement {
	return ScopeElement{Kind: datalog.ScopePublicKey, PublicKey: key}
}

// Check is a disjunction of rule-shaped queries plus a matching mode.
type Check struct {
	Queries []Rule
	Kind    datalog.CheckKind
}

func (c Check) convert(syms *datalog.SymbolTable, keys *datalog.PublicKeyTable) datalog.Check {
	queries := make([]datalog.Rule, len(c.Queries))
	for i, q := range c.Queries {
		queries[i] = q.convert(syms, keys)
	}
	return datalog.Check{Queries: queries, Kind: c.Kind}
}

// Policy is shaped like Check but carries an allow/deny verdict.
type Policy struct {
	Queries []Rule
	Kind    datalog.PolicyKind
}

func (p Policy) convert(syms *datalog.SymbolTable, keys *datalog.PublicKeyTable) datalog.Policy {
	queries := make([]datalog.Rule, len(p.Queries))
	for i, q := range p.Queries {
		queries[i] = q.convert(syms, keys)
	}
	return datalog.Policy{Queries: queries, Kind: p.Kind}
}
