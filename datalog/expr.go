package datalog

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

// Env is the variable environment an Expression evaluates against: the
// current rule-body binding, optionally extended by one closure parameter
// (.all/.any). Lookups resolve the closure parameter first, then fall back
// to the outer rule variables — there is no fallthrough from closure miss
// back to a same-named outer binding, because WithClosure refuses to build
// an Env where that could happen (ShadowedVariable).
type Env struct {
	vars       map[Variable]Term
	closureVar *Variable
	closureVal Term
	externs    map[string]ExternFunc
}

// ExternFunc is a host-registered function backing `extern::name(args...)`.
// receiver is nil for a bare extern call with no receiver.
type ExternFunc func(receiver Term, args []Term) (Term, error)

func NewEnv(vars map[Variable]Term, externs map[string]ExternFunc) *Env {
	return &Env{vars: vars, externs: externs}
}

func (e *Env) Get(v Variable) (Term, bool) {
	if e.closureVar != nil && *e.closureVar == v {
		return e.closureVal, true
	}
	t, ok := e.vars[v]
	return t, ok
}

// WithClosure returns a child Env binding param to val, or a
// ShadowedVariableError if param already names an outer (or the current
// closure's) variable.
func (e *Env) WithClosure(param Variable, val Term) (*Env, error) {
	if _, ok := e.vars[param]; ok {
		return nil, &ShadowedVariableError{Name: param.String()}
	}
	if e.closureVar != nil && *e.closureVar == param {
		return nil, &ShadowedVariableError{Name: param.String()}
	}
	return &Env{vars: e.vars, closureVar: &param, closureVal: val, externs: e.externs}, nil
}

// Expression is a node in the stack-expression AST (spec §4.A/§4.E).
// Evaluation order is left-to-right; every node yields a Term or a fatal
// Execution error.
type Expression interface {
	Eval(env *Env) (Term, error)
	Print(syms *SymbolTable) string
}

// EvaluateCheck runs e and reports whether it satisfies a check/policy
// body: the result must be Bool(true). A non-bool or Bool(false) result is
// a plain non-match, never an error; only a genuine evaluation error (err
// != nil) is fatal to the whole authorization.
func EvaluateCheck(e Expression, env *Env) (bool, error) {
	res, err := e.Eval(env)
	if err != nil {
		return false, err
	}
	b, ok := res.(Bool)
	return ok && bool(b), nil
}

// ValueExpr is a literal ground term.
type ValueExpr struct{ Term Term }

func (v *ValueExpr) Eval(*Env) (Term, error) { return v.Term, nil }
func (v *ValueExpr) Print(syms *SymbolTable) string {
	if s, ok := v.Term.(String); ok {
		return fmt.Sprintf("%q", string(s))
	}
	return v.Term.String()
}

// VarExpr references a bound variable.
type VarExpr struct{ Var Variable }

func (v *VarExpr) Eval(env *Env) (Term, error) {
	t, ok := env.Get(v.Var)
	if !ok {
		return nil, fmt.Errorf("datalog: unbound variable %s in expression", v.Var)
	}
	return t, nil
}
func (v *VarExpr) Print(syms *SymbolTable) string { return "$" + syms.Str(uint64(v.Var)) }

type UnaryOp byte

const (
	OpNot UnaryOp = iota
	OpNegate
	OpLength
	OpTypeOf
)

type UnaryExpr struct {
	Op UnaryOp
	X  Expression
}

func (u *UnaryExpr) Eval(env *Env) (Term, error) {
	v, err := u.X.Eval(env)
	if err != nil {
		return nil, err
	}
	switch u.Op {
	case OpNot:
		b, ok := v.(Bool)
		if !ok {
			return nil, &InvalidTypeError{Op: "!", Detail: fmt.Sprintf("expected bool, got %s", v.Type())}
		}
		return !b, nil
	case OpNegate:
		i, ok := v.(Integer)
		if !ok {
			return nil, &InvalidTypeError{Op: "-", Detail: fmt.Sprintf("expected integer, got %s", v.Type())}
		}
		if i == Integer(minInt64) {
			return nil, &OverflowError{Op: "negate"}
		}
		return -i, nil
	case OpLength:
		return length(v)
	case OpTypeOf:
		return String(v.Type().String()), nil
	default:
		return nil, fmt.Errorf("datalog: unknown unary op %d", u.Op)
	}
}

func length(v Term) (Term, error) {
	switch t := v.(type) {
	case String:
		return Integer(len([]rune(string(t)))), nil
	case Bytes:
		return Integer(len(t)), nil
	case Set:
		return Integer(len(t)), nil
	case Array:
		return Integer(len(t)), nil
	case Map:
		return Integer(len(t)), nil
	default:
		return nil, &InvalidTypeError{Op: ".length()", Detail: fmt.Sprintf("unsupported receiver %s", v.Type())}
	}
}

func (u *UnaryExpr) Print(syms *SymbolTable) string {
	inner := u.X.Print(syms)
	switch u.Op {
	case OpNot:
		return "!" + inner
	case OpNegate:
		return "-" + inner
	case OpLength:
		return inner + ".length()"
	case OpTypeOf:
		return inner + ".type()"
	default:
		return "<unknown unary>(" + inner + ")"
	}
}

type BinOp byte

const (
	OpAdd BinOp = iota
	OpSub
	OpMul
	OpDiv
	OpBitAnd
	OpBitOr
	OpBitXor
	OpLT
	OpLE
	OpGT
	OpGE
	OpEq
	OpNeq
	OpStrictEq
	OpStrictNeq
	OpAnd
	OpOr
)

var binOpSymbol = map[BinOp]string{
	OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/",
	OpBitAnd: "&", OpBitOr: "|", OpBitXor: "^",
	OpLT: "<", OpLE: "<=", OpGT: ">", OpGE: ">=",
	OpEq: "==", OpNeq: "!=", OpStrictEq: "===", OpStrictNeq: "!==",
	OpAnd: "&&", OpOr: "||",
}

const (
	minInt64 = -1 << 63
	maxInt64 = 1<<63 - 1
)

// BinaryExpr evaluates to a bool/int/string term. && and || short-circuit:
// the right operand is not evaluated (and any error it would have raised
// is simply never observed) when the left side already decides the result.
type BinaryExpr struct {
	Op    BinOp
	L, R  Expression
}

func (b *BinaryExpr) Eval(env *Env) (Term, error) {
	left, err := b.L.Eval(env)
	if err != nil {
		return nil, err
	}

	if b.Op == OpAnd || b.Op == OpOr {
		lb, ok := left.(Bool)
		if !ok {
			return nil, &InvalidTypeError{Op: binOpSymbol[b.Op], Detail: "left operand must be bool"}
		}
		if b.Op == OpAnd && !bool(lb) {
			return Bool(false), nil
		}
		if b.Op == OpOr && bool(lb) {
			return Bool(true), nil
		}
		right, err := b.R.Eval(env)
		if err != nil {
			return nil, err
		}
		rb, ok := right.(Bool)
		if !ok {
			return nil, &InvalidTypeError{Op: binOpSymbol[b.Op], Detail: "right operand must be bool"}
		}
		return rb, nil
	}

	right, err := b.R.Eval(env)
	if err != nil {
		return nil, err
	}

	switch b.Op {
	case OpAdd:
		return add(left, right)
	case OpSub:
		return arith(left, right, "-", func(a, bb *big.Int) *big.Int { return new(big.Int).Sub(a, bb) })
	case OpMul:
		return arith(left, right, "*", func(a, bb *big.Int) *big.Int { return new(big.Int).Mul(a, bb) })
	case OpDiv:
		li, lok := left.(Integer)
		ri, rok := right.(Integer)
		if !lok || !rok {
			return nil, &InvalidTypeError{Op: "/", Detail: "operands must be integers"}
		}
		if ri == 0 {
			return nil, &DivideByZeroError{}
		}
		if li == Integer(minInt64) && ri == -1 {
			return nil, &OverflowError{Op: "/"}
		}
		return li / ri, nil
	case OpBitAnd, OpBitOr, OpBitXor:
		return bitwise(b.Op, left, right)
	case OpLT, OpLE, OpGT, OpGE:
		return compare(b.Op, left, right)
	case OpEq:
		return Bool(left.Type() == right.Type() && left.Equal(right)), nil
	case OpNeq:
		return Bool(!(left.Type() == right.Type() && left.Equal(right))), nil
	case OpStrictEq:
		ok, err := StrictEqual(left, right)
		if err != nil {
			return nil, err
		}
		return Bool(ok), nil
	case OpStrictNeq:
		ok, err := StrictEqual(left, right)
		if err != nil {
			return nil, err
		}
		return Bool(!ok), nil
	default:
		return nil, fmt.Errorf("datalog: unknown binary op %d", b.Op)
	}
}

func add(left, right Term) (Term, error) {
	if ls, ok := left.(String); ok {
		rs, ok := right.(String)
		if !ok {
			return nil, &InvalidTypeError{Op: "+", Detail: "cannot concatenate string with non-string"}
		}
		return ls + rs, nil
	}
	return arith(left, right, "+", func(a, b *big.Int) *big.Int { return new(big.Int).Add(a, b) })
}

func arith(left, right Term, op string, f func(a, b *big.Int) *big.Int) (Term, error) {
	li, lok := left.(Integer)
	ri, rok := right.(Integer)
	if !lok || !rok {
		return nil, &InvalidTypeError{Op: op, Detail: "operands must be integers"}
	}
	res := f(big.NewInt(int64(li)), big.NewInt(int64(ri)))
	if !res.IsInt64() {
		return nil, &OverflowError{Op: op}
	}
	return Integer(res.Int64()), nil
}

func bitwise(op BinOp, left, right Term) (Term, error) {
	switch l := left.(type) {
	case Integer:
		r, ok := right.(Integer)
		if !ok {
			return nil, &InvalidTypeError{Op: binOpSymbol[op], Detail: "operands must match"}
		}
		switch op {
		case OpBitAnd:
			return l & r, nil
		case OpBitOr:
			return l | r, nil
		case OpBitXor:
			return l ^ r, nil
		}
	case Bool:
		r, ok := right.(Bool)
		if !ok {
			return nil, &InvalidTypeError{Op: binOpSymbol[op], Detail: "operands must match"}
		}
		switch op {
		case OpBitAnd:
			return l && r, nil
		case OpBitOr:
			return l || r, nil
		case OpBitXor:
			return Bool(l != r), nil
		}
	}
	return nil, &InvalidTypeError{Op: binOpSymbol[op], Detail: fmt.Sprintf("unsupported operand %s", left.Type())}
}

func compare(op BinOp, left, right Term) (Term, error) {
	if left.Type() != right.Type() {
		return nil, &InvalidTypeError{Op: binOpSymbol[op], Detail: "operands must have matching types"}
	}
	var lt, le bool
	switch l := left.(type) {
	case Integer:
		r := right.(Integer)
		lt, le = l < r, l <= r
	case Date:
		r := right.(Date)
		lt, le = l < r, l <= r
	default:
		return nil, &InvalidTypeError{Op: binOpSymbol[op], Detail: fmt.Sprintf("unsupported operand %s", left.Type())}
	}
	switch op {
	case OpLT:
		return Bool(lt), nil
	case OpLE:
		return Bool(le), nil
	case OpGT:
		return Bool(!le), nil
	case OpGE:
		return Bool(!lt), nil
	}
	return nil, fmt.Errorf("datalog: unreachable comparison op %d", op)
}

func (b *BinaryExpr) Print(syms *SymbolTable) string {
	return fmt.Sprintf("%s %s %s", b.L.Print(syms), binOpSymbol[b.Op], b.R.Print(syms))
}

// ClosureExpr is the `v -> expr` argument to .all/.any. It is never
// evaluated on its own; MethodExpr evaluates Body once per element with Param
// bound via Env.WithClosure.
type ClosureExpr struct {
	Param Variable
	Body  Expression
}

func (c *ClosureExpr) Eval(*Env) (Term, error) {
	return nil, fmt.Errorf("datalog: closure cannot be evaluated outside .all/.any")
}
func (c *ClosureExpr) Print(syms *SymbolTable) string {
	return fmt.Sprintf("$%s -> %s", syms.Str(uint64(c.Param)), c.Body.Print(syms))
}

// MethodExpr is a `.method(args...)` call on Receiver.
type MethodExpr struct {
	Receiver Expression
	Method   string
	Args     []Expression
}

func (m *MethodExpr) Print(syms *SymbolTable) string {
	args := make([]string, len(m.Args))
	for i, a := range m.Args {
		args[i] = a.Print(syms)
	}
	return fmt.Sprintf("%s.%s(%s)", m.Receiver.Print(syms), m.Method, strings.Join(args, ", "))
}

func (m *MethodExpr) Eval(env *Env) (Term, error) {
	// try_or must catch errors raised while evaluating the receiver itself,
	// so it is the one method that cannot uniformly eval-then-dispatch.
	if m.Method == "try_or" {
		v, err := m.Receiver.Eval(env)
		if err != nil {
			if len(m.Args) != 1 {
				return nil, fmt.Errorf("datalog: try_or requires exactly one default argument")
			}
			return m.Args[0].Eval(env)
		}
		return v, nil
	}

	recv, err := m.Receiver.Eval(env)
	if err != nil {
		return nil, err
	}

	switch m.Method {
	case "length":
		return length(recv)
	case "type":
		return String(recv.Type().String()), nil
	case "starts_with", "ends_with", "matches":
		return m.stringMethod(env, recv)
	case "contains":
		return m.containsMethod(env, recv)
	case "intersection", "union":
		return m.setMethod(env, recv)
	case "get":
		return m.getMethod(env, recv)
	case "all", "any":
		return m.quantifier(env, recv)
	default:
		return nil, fmt.Errorf("datalog: unknown method %q", m.Method)
	}
}

func (m *MethodExpr) arg(env *Env, i int) (Term, error) {
	if i >= len(m.Args) {
		return nil, fmt.Errorf("datalog: %s missing argument %d", m.Method, i)
	}
	return m.Args[i].Eval(env)
}

func (m *MethodExpr) stringMethod(env *Env, recv Term) (Term, error) {
	s, ok := recv.(String)
	if !ok {
		return nil, &InvalidTypeError{Op: "." + m.Method, Detail: "receiver must be string"}
	}
	arg, err := m.arg(env, 0)
	if err != nil {
		return nil, err
	}
	as, ok := arg.(String)
	if !ok {
		return nil, &InvalidTypeError{Op: "." + m.Method, Detail: "argument must be string"}
	}
	switch m.Method {
	case "starts_with":
		return Bool(strings.HasPrefix(string(s), string(as))), nil
	case "ends_with":
		return Bool(strings.HasSuffix(string(s), string(as))), nil
	case "matches":
		re, err := regexp.Compile(string(as))
		if err != nil {
			return nil, &InvalidTypeError{Op: ".matches", Detail: fmt.Sprintf("invalid regex: %v", err)}
		}
		return Bool(re.MatchString(string(s))), nil
	}
	return nil, fmt.Errorf("datalog: unreachable string method %q", m.Method)
}

func (m *MethodExpr) containsMethod(env *Env, recv Term) (Term, error) {
	arg, err := m.arg(env, 0)
	if err != nil {
		return nil, err
	}
	switch r := recv.(type) {
	case Set:
		if sub, ok := arg.(Set); ok {
			return Bool(sub.Subset(r)), nil
		}
		return Bool(r.Contains(arg)), nil
	case Array:
		return Bool(r.Contains(arg)), nil
	case Map:
		key, ok := arg.(MapKey)
		if !ok {
			return nil, &InvalidTypeError{Op: ".contains", Detail: "map key must be string or integer"}
		}
		return Bool(r.ContainsKey(key)), nil
	default:
		return nil, &InvalidTypeError{Op: ".contains", Detail: fmt.Sprintf("unsupported receiver %s", recv.Type())}
	}
}

func (m *MethodExpr) setMethod(env *Env, recv Term) (Term, error) {
	s, ok := recv.(Set)
	if !ok {
		return nil, &InvalidTypeError{Op: "." + m.Method, Detail: "receiver must be a set"}
	}
	arg, err := m.arg(env, 0)
	if err != nil {
		return nil, err
	}
	other, ok := arg.(Set)
	if !ok {
		return nil, &InvalidTypeError{Op: "." + m.Method, Detail: "argument must be a set"}
	}
	if m.Method == "intersection" {
		return s.Intersection(other), nil
	}
	return s.Union(other), nil
}

func (m *MethodExpr) getMethod(env *Env, recv Term) (Term, error) {
	arg, err := m.arg(env, 0)
	if err != nil {
		return nil, err
	}
	switch r := recv.(type) {
	case Array:
		idx, ok := arg.(Integer)
		if !ok {
			return nil, &InvalidTypeError{Op: ".get", Detail: "array index must be an integer"}
		}
		if idx < 0 || int(idx) >= len(r) {
			return Null{}, nil
		}
		return r[idx], nil
	case Map:
		key, ok := arg.(MapKey)
		if !ok {
			return nil, &InvalidTypeError{Op: ".get", Detail: "map key must be string or integer"}
		}
		if v, ok := r.Get(key); ok {
			return v, nil
		}
		return Null{}, nil
	default:
		return nil, &InvalidTypeError{Op: ".get", Detail: fmt.Sprintf("unsupported receiver %s", recv.Type())}
	}
}

func (m *MethodExpr) quantifier(env *Env, recv Term) (Term, error) {
	if len(m.Args) != 1 {
		return nil, fmt.Errorf("datalog: .%s requires exactly one closure argument", m.Method)
	}
	closure, ok := m.Args[0].(*ClosureExpr)
	if !ok {
		return nil, fmt.Errorf("datalog: .%s argument must be a closure", m.Method)
	}

	var elems []Term
	switch r := recv.(type) {
	case Set:
		elems = []Term(r)
	case Array:
		elems = []Term(r)
	default:
		return nil, &InvalidTypeError{Op: "." + m.Method, Detail: "receiver must be a set or array"}
	}

	wantAll := m.Method == "all"
	for _, e := range elems {
		childEnv, err := env.WithClosure(closure.Param, e)
		if err != nil {
			return nil, err
		}
		res, err := closure.Body.Eval(childEnv)
		if err != nil {
			return nil, err
		}
		b, ok := res.(Bool)
		if !ok {
			return nil, &InvalidTypeError{Op: "." + m.Method, Detail: "closure body must return bool"}
		}
		if wantAll && !bool(b) {
			return Bool(false), nil
		}
		if !wantAll && bool(b) {
			return Bool(true), nil
		}
	}
	return Bool(wantAll), nil
}

// ExternExpr dispatches to a host-registered extern function. The engine
// itself defines no externs; an unregistered name is an UnknownError.
type ExternExpr struct {
	Name     string
	Receiver Expression // nil if the extern takes no receiver
	Args     []Expression
}

func (x *ExternExpr) Eval(env *Env) (Term, error) {
	fn, ok := env.externs[x.Name]
	if !ok {
		return nil, &UnknownError{Detail: fmt.Sprintf("extern %q is not registered", x.Name)}
	}

	var recv Term
	if x.Receiver != nil {
		v, err := x.Receiver.Eval(env)
		if err != nil {
			return nil, err
		}
		recv = v
	}

	args := make([]Term, len(x.Args))
	for i, a := range x.Args {
		v, err := a.Eval(env)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}

	res, err := fn(recv, args)
	if err != nil {
		return nil, &UnknownError{Detail: err.Error()}
	}
	return res, nil
}

func (x *ExternExpr) Print(syms *SymbolTable) string {
	args := make([]string, len(x.Args))
	for i, a := range x.Args {
		args[i] = a.Print(syms)
	}
	prefix := ""
	if x.Receiver != nil {
		prefix = x.Receiver.Print(syms) + "."
	}
	return fmt.Sprintf("%sextern::%s(%s)", prefix, x.Name, strings.Join(args, ", "))
}
