package datalog

import (
	"fmt"
	"strings"
)

// SymbolDebugger renders interned facts/rules/checks back to readable
// text for logging and error messages. It never participates in
// evaluation; it only needs read access to the symbol table that produced
// the ids it is asked to print.
type SymbolDebugger struct {
	Symbols *SymbolTable
	Keys    *PublicKeyTable
}

func (d SymbolDebugger) Predicate(p Predicate) string {
	strs := make([]string, len(p.Terms))
	for i, t := range p.Terms {
		strs[i] = d.Term(t)
	}
	return fmt.Sprintf("%s(%s)", d.Symbols.Str(p.Name), strings.Join(strs, ", "))
}

func (d SymbolDebugger) Term(t Term) string {
	if v, ok := t.(Variable); ok {
		return "$" + d.Symbols.Str(uint64(v))
	}
	return t.String()
}

func (d SymbolDebugger) Rule(r Rule) string {
	head := d.Predicate(r.Head)
	body := d.bodyAndExpressions(r)
	scope := r.Scope.String(d.Keys)
	if scope != "" {
		scope = " " + scope
	}
	return fmt.Sprintf("%s <- %s%s", head, body, scope)
}

func (d SymbolDebugger) bodyAndExpressions(r Rule) string {
	preds := make([]string, len(r.Body))
	for i, p := range r.Body {
		preds[i] = d.Predicate(p)
	}
	exprs := make([]string, len(r.Expressions))
	for i, e := range r.Expressions {
		exprs[i] = e.Print(d.Symbols)
	}
	sep := ""
	if len(preds) > 0 && len(exprs) > 0 {
		sep = ", "
	}
	return strings.Join(preds, ", ") + sep + strings.Join(exprs, ", ")
}

func (d SymbolDebugger) Check(c Check) string {
	queries := make([]string, len(c.Queries))
	for i, q := range c.Queries {
		queries[i] = d.bodyAndExpressions(q)
	}
	keyword := "check if"
	switch c.Kind {
	case CheckAll:
		keyword = "check all"
	case RejectIf:
		keyword = "reject if"
	}
	return fmt.Sprintf("%s %s", keyword, strings.Join(queries, " or "))
}

func (d SymbolDebugger) Policy(p Policy) string {
	queries := make([]string, len(p.Queries))
	for i, q := range p.Queries {
		queries[i] = d.bodyAndExpressions(q)
	}
	keyword := "allow if"
	if p.Kind == PolicyDeny {
		keyword = "deny if"
	}
	return fmt.Sprintf("%s %s", keyword, strings.Join(queries, " or "))
}

func (d SymbolDebugger) FactSet(s *FactSet) string {
	strs := make([]string, len(*s))
	for i, f := range *s {
		strs[i] = fmt.Sprintf("%s [%s]", d.Predicate(f.Fact.Predicate), d.origins(f.Origins))
	}
	return fmt.Sprintf("%v", strs)
}

func (d SymbolDebugger) origins(s OriginSet) string {
	strs := make([]string, 0, len(s))
	for o := range s {
		strs = append(strs, o.String())
	}
	return strings.Join(strs, ",")
}

func (d SymbolDebugger) World(w *World) string {
	facts := d.FactSet(&w.facts)
	rules := make([]string, len(w.rules))
	for i, r := range w.rules {
		rules[i] = fmt.Sprintf("%s: %s", r.Origin, d.Rule(r.Rule))
	}
	checks := make([]string, len(w.checks))
	for i, c := range w.checks {
		checks[i] = fmt.Sprintf("%s: %s", c.Origin, d.Check(c.Check))
	}
	policies := make([]string, len(w.policies))
	for i, p := range w.policies {
		policies[i] = d.Policy(p)
	}
	return fmt.Sprintf("World {\n\tfacts: %v\n\trules: %v\n\tchecks: %v\n\tpolicies: %v\n}",
		facts, rules, checks, policies)
}
