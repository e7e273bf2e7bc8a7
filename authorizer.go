package biscuit

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"

	"github.com/biscuit-core/biscuit-go/datalog"
)

// protectedPredicates are predicate names no block but authority may ever
// derive (spec §7 forging protection). Attempts are silently discarded by
// the world and counted, never surfaced as an authorization failure on
// their own — only indirectly, if the discard starves a check that needed
// the (forged) fact.
var protectedPredicates = []string{"revocation_id"}

// Authorizer merges a Biscuit's blocks with side-channel facts, rules,
// checks, and policies supplied at verification time, then decides whether
// the request is authorized.
type Authorizer interface {
	AddFact(fact Fact)
	AddRule(rule Rule)
	AddCheck(check Check)
	AddPolicy(policy Policy)
	// Authorize saturates the merged world and evaluates every check, then
	// every policy in order. It returns the index of the first matching
	// allow policy, or an *ErrUnauthorized / *ErrExecution.
	Authorize(ctx context.Context) (int, error)
	Query(rule Rule) (FactSet, error)
	Biscuit() *Biscuit
	Reset()
	PrintWorld() string
}

type authorizer struct {
	biscuit *Biscuit
	symbols *datalog.SymbolTable
	keys    *datalog.PublicKeyTable

	facts    []Fact
	rules    []Rule
	checks   []Check
	policies []Policy

	world *datalog.World
	log   hclog.Logger
}

var _ Authorizer = (*authorizer)(nil)

// NewAuthorizer starts an authorizer for b. log defaults to a null logger
// when nil.
func NewAuthorizer(b *Biscuit, log hclog.Logger) Authorizer {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &authorizer{
		biscuit: b,
		symbols: b.symbols.Clone(),
		keys:    b.keys.Clone(),
		log:     log,
	}
}

func (v *authorizer) AddFact(fact Fact)     { v.facts = append(v.facts, fact) }
func (v *authorizer) AddRule(rule Rule)     { v.rules = append(v.rules, rule) }
func (v *authorizer) AddCheck(check Check)  { v.checks = append(v.checks, check) }
func (v *authorizer) AddPolicy(p Policy)    { v.policies = append(v.policies, p) }
func (v *authorizer) Biscuit() *Biscuit     { return v.biscuit }

func (v *authorizer) Reset() {
	v.facts = nil
	v.rules = nil
	v.checks = nil
	v.policies = nil
	v.world = nil
}

// buildWorld merges every block (tagged by its chain position) and the
// authorizer's own side-channel program (tagged with the authorizer
// sentinel origin) into one World, then saturates it.
func (v *authorizer) buildWorld(ctx context.Context) (*datalog.World, error) {
	protected := make(map[uint64]struct{}, len(protectedPredicates))
	for _, name := range protectedPredicates {
		protected[v.symbols.Insert(name)] = struct{}{}
	}

	w := datalog.NewWorld(
		datalog.WithSigner(v.biscuit.originSigner()),
		datalog.WithProtectedNames(protected),
	)

	for i, block := range v.biscuit.blocks {
		origin := datalog.Origin(i)
		for _, f := range block.facts {
			w.AddFact(origin, f)
		}
		for _, r := range block.rules {
			w.AddRule(origin, r)
		}
		for _, c := range block.checks {
			w.AddCheck(origin, c)
		}
	}
	v.log.Trace("biscuit: merged block programs", "blocks", len(v.biscuit.blocks))

	for _, f := range v.facts {
		w.AddFact(datalog.AuthorizerOrigin, f.convert(v.symbols))
	}
	for _, r := range v.rules {
		w.AddRule(datalog.AuthorizerOrigin, r.convert(v.symbols, v.keys))
	}
	for _, c := range v.checks {
		w.AddCheck(datalog.AuthorizerOrigin, c.convert(v.symbols, v.keys))
	}
	for _, p := range v.policies {
		w.AddPolicy(p.convert(v.symbols, v.keys))
	}

	if err := w.Run(ctx); err != nil {
		return nil, &ErrExecution{Cause: err}
	}
	v.log.Debug("biscuit: world saturated", "facts", w.Facts().Len(), "discarded_forgeries", w.DiscardedForgeries)
	return w, nil
}

func (v *authorizer) Authorize(ctx context.Context) (int, error) {
	w, err := v.buildWorld(ctx)
	if err != nil {
		return 0, err
	}
	v.world = w

	dlFailed, err := w.EvaluateChecks()
	if err != nil {
		return 0, &ErrExecution{Cause: err}
	}
	if len(dlFailed) > 0 {
		debug := datalog.SymbolDebugger{Symbols: v.symbols, Keys: v.keys}
		failed := make([]FailedCheck, len(dlFailed))
		var merr *multierror.Error
		for i, fc := range dlFailed {
			blockID := -1
			if fc.Origin != datalog.AuthorizerOrigin {
				blockID = int(fc.Origin)
			}
			desc := debug.Check(fc.Check)
			failed[i] = FailedCheck{BlockID: blockID, Index: fc.Index, Description: desc}
			merr = multierror.Append(merr, fmt.Errorf("block %d check %d: %s", blockID, fc.Index, desc))
		}
		v.log.Debug("biscuit: authorization denied by failed check", "count", len(failed), "detail", merr.Error())
		return 0, &ErrUnauthorized{FailedChecks: failed}
	}

	idx, kind, err := w.EvaluatePolicies()
	if err != nil {
		return 0, &ErrExecution{Cause: err}
	}
	if idx < 0 {
		return 0, &ErrUnauthorized{}
	}
	if kind == datalog.PolicyDeny {
		denyIdx := idx
		return 0, &ErrUnauthorized{Policy: &denyIdx}
	}
	return idx, nil
}

func (v *authorizer) Query(rule Rule) (FactSet, error) {
	if v.world == nil {
		w, err := v.buildWorld(context.Background())
		if err != nil {
			return nil, err
		}
		v.world = w
	}

	dlFacts, err := v.world.QueryRule(rule.convert(v.symbols, v.keys), datalog.AuthorizerOrigin)
	if err != nil {
		return nil, &ErrExecution{Cause: err}
	}

	out := make(FactSet, len(dlFacts))
	for i, f := range dlFacts {
		out[i] = factFromDatalog(v.symbols, f)
	}
	return out, nil
}

func (v *authorizer) PrintWorld() string {
	if v.world == nil {
		return "<world not yet built: call Authorize or Query first>"
	}
	debug := datalog.SymbolDebugger{Symbols: v.symbols, Keys: v.keys}
	return debug.World(v.world)
}
