package datalog

import (
	"fmt"
	"strings"
)

// Predicate is a predicate name (interned) plus an ordered argument list.
type Predicate struct {
	Name  uint64
	Terms []Term
}

func (p Predicate) Equal(o Predicate) bool {
	if p.Name != o.Name || len(p.Terms) != len(o.Terms) {
		return false
	}
	for i, t := range p.Terms {
		if t.Type() != o.Terms[i].Type() || !t.Equal(o.Terms[i]) {
			return false
		}
	}
	return true
}

// Match reports whether p and o could unify: same name/arity, and every
// pair of non-Variable terms at the same position is equal.
func (p Predicate) Match(o Predicate) bool {
	if p.Name != o.Name || len(p.Terms) != len(o.Terms) {
		return false
	}
	for i, t := range p.Terms {
		if t.Type() == TermTypeVariable || o.Terms[i].Type() == TermTypeVariable {
			continue
		}
		if t.Type() != o.Terms[i].Type() || !t.Equal(o.Terms[i]) {
			return false
		}
	}
	return true
}

func (p Predicate) Clone() Predicate {
	out := Predicate{Name: p.Name, Terms: make([]Term, len(p.Terms))}
	copy(out.Terms, p.Terms)
	return out
}

func (p Predicate) String(syms *SymbolTable) string {
	strs := make([]string, len(p.Terms))
	for i, t := range p.Terms {
		if v, ok := t.(Variable); ok {
			strs[i] = "$" + syms.Str(uint64(v))
		} else {
			strs[i] = t.String()
		}
	}
	return fmt.Sprintf("%s(%s)", syms.Str(p.Name), strings.Join(strs, ", "))
}

// Fact is a predicate whose terms are all ground (no Variable).
type Fact struct {
	Predicate
}

// Origin identifies the block (0..N-1) or the authorizer sentinel that
// contributed a fact, rule, or check.
type Origin uint64

// AuthorizerOrigin is the sentinel tagging authorizer-supplied elements.
const AuthorizerOrigin Origin = ^Origin(0)

// AuthorityOrigin is block 0, the authority block.
const AuthorityOrigin Origin = 0

func (o Origin) String() string {
	if o == AuthorizerOrigin {
		return "authorizer"
	}
	return fmt.Sprintf("block#%d", uint64(o))
}

// OriginSet is the set of origins that jointly produced a fact.
type OriginSet map[Origin]struct{}

func NewOriginSet(origins ...Origin) OriginSet {
	s := make(OriginSet, len(origins))
	for _, o := range origins {
		s[o] = struct{}{}
	}
	return s
}

func (s OriginSet) Contains(o Origin) bool {
	_, ok := s[o]
	return ok
}

func (s OriginSet) Equal(o OriginSet) bool {
	if len(s) != len(o) {
		return false
	}
	for k := range s {
		if _, ok := o[k]; !ok {
			return false
		}
	}
	return true
}

// Union returns a new OriginSet containing every origin in s or o.
func (s OriginSet) Union(o OriginSet) OriginSet {
	out := make(OriginSet, len(s)+len(o))
	for k := range s {
		out[k] = struct{}{}
	}
	for k := range o {
		out[k] = struct{}{}
	}
	return out
}

// MergeInto adds every origin of o into s, returning whether s changed.
func (s OriginSet) MergeInto(o OriginSet) bool {
	changed := false
	for k := range o {
		if _, ok := s[k]; !ok {
			s[k] = struct{}{}
			changed = true
		}
	}
	return changed
}

// FactEntry pairs a derived or loaded fact with the set of origins that
// produced it. A fact with contributions from several blocks carries all
// of their origins at once, rather than being duplicated per origin.
type FactEntry struct {
	Origins OriginSet
	Fact    Fact
}

// FactSet is the world's flat fact store: one entry per distinct
// predicate, each carrying the full set of origins that derived it.
type FactSet []FactEntry

// Insert adds f if no entry already has an equal predicate, otherwise
// merges origins into the existing entry. Reports whether the set grew
// (new entry, or new origins merged into an existing one) so saturation
// can detect a fixed point.
func (s *FactSet) Insert(origins OriginSet, f Fact) bool {
	for i := range *s {
		if (*s)[i].Fact.Predicate.Equal(f.Predicate) {
			return (*s)[i].Origins.MergeInto(origins)
		}
	}
	cp := make(OriginSet, len(origins))
	for o := range origins {
		cp[o] = struct{}{}
	}
	*s = append(*s, FactEntry{Origins: cp, Fact: f})
	return true
}

// Len returns the number of distinct facts in the set.
func (s FactSet) Len() int { return len(s) }
