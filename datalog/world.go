package datalog

import (
	"context"
	"time"
)

// RunLimits bound a single saturation run (spec §4.F / §5): exceeding any of
// them aborts with a RunLimitError rather than looping forever on a
// maliciously or accidentally non-terminating rule set.
type RunLimits struct {
	MaxFacts      int
	MaxIterations int
	MaxDuration   time.Duration
}

var DefaultRunLimits = RunLimits{
	MaxFacts:      100_000,
	MaxIterations: 1_000,
	MaxDuration:   1 * time.Second,
}

type WorldOption func(w *World)

func WithMaxFacts(n int) WorldOption      { return func(w *World) { w.limits.MaxFacts = n } }
func WithMaxIterations(n int) WorldOption { return func(w *World) { w.limits.MaxIterations = n } }
func WithMaxDuration(d time.Duration) WorldOption {
	return func(w *World) { w.limits.MaxDuration = d }
}
func WithExterns(externs map[string]ExternFunc) WorldOption {
	return func(w *World) { w.externs = externs }
}

// WithSigner supplies the function resolving a block origin to the public
// key id that externally signed it (third-party blocks only); origins with
// no external signer should report ok=false.
func WithSigner(signer func(Origin) (uint64, bool)) WorldOption {
	return func(w *World) { w.signer = signer }
}

// WithProtectedNames marks predicate-name ids that non-authority,
// non-authorizer origins may never derive (spec §4.F forging protection).
func WithProtectedNames(ids map[uint64]struct{}) WorldOption {
	return func(w *World) { w.protected = ids }
}

type originRule struct {
	Origin Origin
	Rule   Rule
}

type originCheck struct {
	Origin Origin
	Check  Check
}

// World is the verification-time Datalog state: origin-tagged facts, the
// rules and checks loaded from every block plus the authorizer, and the
// authorizer's ordered policies. It is built once, saturated once, and
// discarded — never mutated after a decision is returned.
type World struct {
	facts    FactSet
	rules    []originRule
	checks   []originCheck
	policies []Policy

	externs   map[string]ExternFunc
	signer    func(Origin) (uint64, bool)
	protected map[uint64]struct{}
	limits    RunLimits

	// DiscardedForgeries counts derivations that were silently dropped
	// because a non-authority origin attempted to produce a protected or
	// otherwise forbidden fact (spec §7: the only silent failure mode).
	DiscardedForgeries int
}

func NewWorld(opts ...WorldOption) *World {
	w := &World{limits: DefaultRunLimits}
	for _, o := range opts {
		o(w)
	}
	if w.signer == nil {
		w.signer = func(Origin) (uint64, bool) { return 0, false }
	}
	return w
}

func (w *World) AddFact(origin Origin, f Fact) {
	w.facts.Insert(NewOriginSet(origin), f)
}

func (w *World) AddRule(origin Origin, r Rule) { w.rules = append(w.rules, originRule{origin, r}) }
func (w *World) AddCheck(origin Origin, c Check) {
	w.checks = append(w.checks, originCheck{origin, c})
}
func (w *World) AddPolicy(p Policy) { w.policies = append(w.policies, p) }

func (w *World) Facts() *FactSet { return &w.facts }

// visibleFacts returns the facts whose entire origin-set is trusted by
// scope (declared on a rule/check belonging to ruleOrigin), restricted to
// those matching pred's name/arity pattern.
func (w *World) visibleFacts(pred Predicate, ruleOrigin Origin, scope TrustScope) []Fact {
	var out []Fact
	for _, e := range w.facts {
		if !e.Fact.Predicate.Match(pred) {
			continue
		}
		trusted := true
		for o := range e.Origins {
			if !scope.Trusts(o, ruleOrigin, w.signer) {
				trusted = false
				break
			}
		}
		if trusted {
			out = append(out, e.Fact)
		}
	}
	return out
}

// originsFor returns the union of origin-sets that contributed to facts
// bound into solution, plus the rule's own origin.
func (w *World) originsFor(pred []Predicate, solution map[Variable]Term, ruleOrigin Origin, scope TrustScope) OriginSet {
	out := NewOriginSet(ruleOrigin)
	for _, p := range pred {
		bound := p.Clone()
		for i, t := range bound.Terms {
			if v, ok := t.(Variable); ok {
				if val, ok := solution[v]; ok {
					bound.Terms[i] = val
				}
			}
		}
		for _, e := range w.facts {
			if e.Fact.Predicate.Equal(bound) {
				out = out.Union(e.Origins)
			}
		}
	}
	return out
}

// Run saturates the world bottom-up to a fixed point, subject to the
// configured RunLimits. Saturation runs in a goroutine under
// context.WithTimeout; cancellation is cooperative, checked before each
// iteration and before each rule.
func (w *World) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, w.limits.MaxDuration)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		for iter := 0; iter < w.limits.MaxIterations; iter++ {
			select {
			case <-ctx.Done():
				return
			default:
			}

			grew := false
			for _, or := range w.rules {
				select {
				case <-ctx.Done():
					return
				default:
				}
				changed, err := w.applyRule(or)
				if err != nil {
					done <- err
					return
				}
				grew = grew || changed
			}

			if len(w.facts) >= w.limits.MaxFacts {
				done <- &RunLimitError{Kind: RunLimitFactCount}
				return
			}
			if !grew {
				done <- nil
				return
			}
		}
		done <- &RunLimitError{Kind: RunLimitIterations}
	}()

	select {
	case <-ctx.Done():
		return &RunLimitError{Kind: RunLimitTimeout}
	case err := <-done:
		return err
	}
}

func (w *World) applyRule(or originRule) (bool, error) {
	bindings, err := w.solve(or.Rule.Body, or.Origin, or.Rule.Scope)
	if err != nil {
		return false, err
	}

	grew := false
	for _, binding := range bindings {
		ok, err := evalAllTrue(or.Rule.Expressions, binding, w.externs)
		if err != nil {
			return false, err
		}
		if !ok {
			continue
		}

		head := or.Rule.Head.Clone()
		for i, t := range head.Terms {
			if v, ok := t.(Variable); ok {
				val, ok := binding[v]
				if !ok {
					return false, &InvalidRuleError{MissingVariable: v}
				}
				head.Terms[i] = val
			}
		}

		if w.isForbidden(or.Origin, head) {
			w.DiscardedForgeries++
			continue
		}

		origins := w.originsFor(or.Rule.Body, binding, or.Origin, or.Rule.Scope)
		if w.facts.Insert(origins, Fact{head}) {
			grew = true
		}
	}
	return grew, nil
}

// isForbidden implements the non-authority forging guard of spec §4.F:
// authority and the authorizer may derive anything; every other origin may
// not produce a fact whose predicate name is protected.
func (w *World) isForbidden(origin Origin, head Predicate) bool {
	if origin == AuthorityOrigin || origin == AuthorizerOrigin {
		return false
	}
	if w.protected == nil {
		return false
	}
	_, protected := w.protected[head.Name]
	return protected
}

// solve performs the naive bottom-up join of body against the facts
// visible to (ruleOrigin, scope), without applying expression constraints.
func (w *World) solve(body []Predicate, ruleOrigin Origin, scope TrustScope) ([]map[Variable]Term, error) {
	if len(body) == 0 {
		return []map[Variable]Term{{}}, nil
	}

	candidates := make([][]Fact, len(body))
	for i, p := range body {
		candidates[i] = w.visibleFacts(p, ruleOrigin, scope)
		if len(candidates[i]) == 0 {
			return nil, nil
		}
	}

	var out []map[Variable]Term
	var recurse func(idx int, bound map[Variable]Term) error
	recurse = func(idx int, bound map[Variable]Term) error {
		if idx == len(body) {
			cp := make(map[Variable]Term, len(bound))
			for k, v := range bound {
				cp[k] = v
			}
			out = append(out, cp)
			return nil
		}
		pred := body[idx]
		for _, fact := range candidates[idx] {
			if len(fact.Terms) != len(pred.Terms) {
				continue
			}
			next := cloneBinding(bound)
			ok := true
			for i, t := range pred.Terms {
				v, isVar := t.(Variable)
				if !isVar {
					continue
				}
				if existing, seen := next[v]; seen {
					if existing.Type() != fact.Terms[i].Type() || !existing.Equal(fact.Terms[i]) {
						ok = false
						break
					}
				} else {
					next[v] = fact.Terms[i]
				}
			}
			if !ok {
				continue
			}
			if err := recurse(idx+1, next); err != nil {
				return err
			}
		}
		return nil
	}

	if err := recurse(0, map[Variable]Term{}); err != nil {
		return nil, err
	}
	return out, nil
}

func cloneBinding(m map[Variable]Term) map[Variable]Term {
	out := make(map[Variable]Term, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func evalAllTrue(exprs []Expression, binding map[Variable]Term, externs map[string]ExternFunc) (bool, error) {
	env := NewEnv(binding, externs)
	for _, e := range exprs {
		ok, err := EvaluateCheck(e, env)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// FailedCheck reports one check that did not hold, identified the way
// spec §7 requires: block (or authorizer) origin plus the check's index
// within that origin's list.
type FailedCheck struct {
	Origin Origin
	Index  int
	Check  Check
}

// EvaluateChecks runs every loaded check against the saturated world and
// returns those that failed. A non-nil error is always a fatal Execution
// error (spec §4.F step 5), never a normal check failure.
func (w *World) EvaluateChecks() ([]FailedCheck, error) {
	var failed []FailedCheck
	perOrigin := make(map[Origin]int)
	for _, oc := range w.checks {
		i := perOrigin[oc.Origin]
		perOrigin[oc.Origin]++
		ok, err := w.evaluateCheck(oc.Check, oc.Origin)
		if err != nil {
			return nil, err
		}
		if !ok {
			failed = append(failed, FailedCheck{Origin: oc.Origin, Index: i, Check: oc.Check})
		}
	}
	return failed, nil
}

func (w *World) evaluateCheck(c Check, origin Origin) (bool, error) {
	switch c.Kind {
	case CheckIf:
		return w.anyQueryMatches(c.Queries, origin)
	case RejectIf:
		matched, err := w.anyQueryMatches(c.Queries, origin)
		if err != nil {
			return false, err
		}
		return !matched, nil
	case CheckAll:
		for _, q := range c.Queries {
			ok, err := w.queryAllSatisfy(q, origin)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, nil
	}
}

func (w *World) anyQueryMatches(queries []Rule, origin Origin) (bool, error) {
	for _, q := range queries {
		bindings, err := w.solve(q.Body, origin, q.Scope)
		if err != nil {
			return false, err
		}
		for _, b := range bindings {
			ok, err := evalAllTrue(q.Expressions, b, w.externs)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
	}
	return false, nil
}

// queryAllSatisfy implements `check all`: every body assignment (ignoring
// expression filtering when enumerating them) must satisfy every
// expression; vacuously true when the body produces no assignment.
func (w *World) queryAllSatisfy(q Rule, origin Origin) (bool, error) {
	bindings, err := w.solve(q.Body, origin, q.Scope)
	if err != nil {
		return false, err
	}
	for _, b := range bindings {
		ok, err := evalAllTrue(q.Expressions, b, w.externs)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// EvaluatePolicies evaluates the authorizer's policies in order and
// returns the first one whose queries match. index is -1 if none match.
func (w *World) EvaluatePolicies() (index int, kind PolicyKind, err error) {
	for i, p := range w.policies {
		matched, err := w.anyQueryMatches(p.Queries, AuthorizerOrigin)
		if err != nil {
			return 0, 0, err
		}
		if matched {
			return i, p.Kind, nil
		}
	}
	return -1, 0, nil
}

// QueryRule runs an ad-hoc rule against the current world without mutating
// it; useful for debugging/inspection, not part of the authorization
// decision itself.
func (w *World) QueryRule(r Rule, origin Origin) ([]Fact, error) {
	bindings, err := w.solve(r.Body, origin, r.Scope)
	if err != nil {
		return nil, err
	}
	var out []Fact
	for _, b := range bindings {
		ok, err := evalAllTrue(r.Expressions, b, w.externs)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		head := r.Head.Clone()
		for i, t := range head.Terms {
			if v, ok := t.(Variable); ok {
				val, ok := b[v]
				if !ok {
					return nil, &InvalidRuleError{MissingVariable: v}
				}
				head.Terms[i] = val
			}
		}
		out = append(out, Fact{head})
	}
	return out, nil
}
