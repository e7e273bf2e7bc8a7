package biscuit

import "github.com/biscuit-core/biscuit-go/datalog"

// This file provides builder-facing constructors for datalog expressions,
// so a caller composing a Rule/Check/Policy never has to import the
// datalog package directly. Each constructor returns an Expression whose
// variable names are resolved lazily, against the symbol table of the
// rule that finally embeds it.

type valueExpr struct{ term Term }

func (v valueExpr) convert(syms *datalog.SymbolTable) datalog.Expression {
	return &datalog.ValueExpr{Term: v.term.convert(syms)}
}

// Val wraps a ground term as an expression leaf.
func Val(t Term) Expression { return valueExpr{term: t} }

type varExpr struct{ name Variable }

func (v varExpr) convert(syms *datalog.SymbolTable) datalog.Expression {
	return &datalog.VarExpr{Var: datalog.Variable(syms.Insert(string(v.name)))}
}

// Var references a rule variable inside an expression.
func Var(v Variable) Expression { return varExpr{name: v} }

type binExpr struct {
	op   datalog.BinOp
	l, r Expression
}

func (b binExpr) convert(syms *datalog.SymbolTable) datalog.Expression {
	return &datalog.BinaryExpr{Op: b.op, L: b.l.convert(syms), R: b.r.convert(syms)}
}

func bin(op datalog.BinOp, l, r Expression) Expression { return binExpr{op: op, l: l, r: r} }

func Eq(l, r Expression) Expression        { return bin(datalog.OpEq, l, r) }
func Neq(l, r Expression) Expression       { return bin(datalog.OpNeq, l, r) }
func StrictEq(l, r Expression) Expression  { return bin(datalog.OpStrictEq, l, r) }
func StrictNeq(l, r Expression) Expression { return bin(datalog.OpStrictNeq, l, r) }
func LT(l, r Expression) Expression        { return bin(datalog.OpLT, l, r) }
func LE(l, r Expression) Expression        { return bin(datalog.OpLE, l, r) }
func GT(l, r Expression) Expression        { return bin(datalog.OpGT, l, r) }
func GE(l, r Expression) Expression        { return bin(datalog.OpGE, l, r) }
func Add(l, r Expression) Expression       { return bin(datalog.OpAdd, l, r) }
func Sub(l, r Expression) Expression       { return bin(datalog.OpSub, l, r) }
func Mul(l, r Expression) Expression       { return bin(datalog.OpMul, l, r) }
func Div(l, r Expression) Expression       { return bin(datalog.OpDiv, l, r) }
func BitAnd(l, r Expression) Expression    { return bin(datalog.OpBitAnd, l, r) }
func BitOr(l, r Expression) Expression     { return bin(datalog.OpBitOr, l, r) }
func BitXor(l, r Expression) Expression    { return bin(datalog.OpBitXor, l, r) }
func And(l, r Expression) Expression       { return bin(datalog.OpAnd, l, r) }
func Or(l, r Expression) Expression        { return bin(datalog.OpOr, l, r) }

type unaryExpr struct {
	op datalog.UnaryOp
	x  Expression
}

func (u unaryExpr) convert(syms *datalog.SymbolTable) datalog.Expression {
	return &datalog.UnaryExpr{Op: u.op, X: u.x.convert(syms)}
}

func Not(e Expression) Expression    { return unaryExpr{op: datalog.OpNot, x: e} }
func Negate(e Expression) Expression { return unaryExpr{op: datalog.OpNegate, x: e} }
func Length(e Expression) Expression { return unaryExpr{op: datalog.OpLength, x: e} }
func TypeOf(e Expression) Expression { return unaryExpr{op: datalog.OpTypeOf, x: e} }

type methodExpr struct {
	receiver Expression
	name     string
	args     []Expression
}

func (m methodExpr) convert(syms *datalog.SymbolTable) datalog.Expression {
	args := make([]datalog.Expression, len(m.args))
	for i, a := range m.args {
		args[i] = a.convert(syms)
	}
	return &datalog.MethodExpr{Receiver: m.receiver.convert(syms), Method: m.name, Args: args}
}

// Method builds a `.name(args...)` call on receiver, e.g. `.try_or`,
// `.starts_with`, `.all`, `.any`, `.contains`, `.intersection`.
func Method(receiver Expression, name string, args ...Expression) Expression {
	return methodExpr{receiver: receiver, name: name, args: args}
}

type closureExpr struct {
	param Variable
	body  Expression
}

func (c closureExpr) convert(syms *datalog.SymbolTable) datalog.Expression {
	return &datalog.ClosureExpr{Param: datalog.Variable(syms.Insert(string(c.param))), Body: c.body.convert(syms)}
}

// Closure builds the `$param -> body` argument expected by `.all`/`.any`.
func Closure(param Variable, body Expression) Expression {
	return closureExpr{param: param, body: body}
}

type externExpr struct {
	name     string
	receiver Expression
	args     []Expression
}

func (x externExpr) convert(syms *datalog.SymbolTable) datalog.Expression {
	var receiver datalog.Expression
	if x.receiver != nil {
		receiver = x.receiver.convert(syms)
	}
	args := make([]datalog.Expression, len(x.args))
	for i, a := range x.args {
		args[i] = a.convert(syms)
	}
	return &datalog.ExternExpr{Name: x.name, Receiver: receiver, Args: args}
}

// Extern builds a call to a host-registered extern function.
func Extern(name string, receiver Expression, args ...Expression) Expression {
	return externExpr{name: name, receiver: receiver, args: args}
}
