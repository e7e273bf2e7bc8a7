package datalog

import "encoding/binary"

// EncodeBlock produces a deterministic byte encoding of one block's content
// (context, facts, rules, checks). This is not a wire format — framing and
// parsing a token's external byte representation is out of scope for this
// package — it exists only so the chain signature of sig.SignBlock has
// something tamper-evident to cover: any change to a fact, rule, check, or
// context changes the encoding.
func EncodeBlock(context string, facts []Fact, rules []Rule, checks []Check) []byte {
	var buf []byte
	putString(&buf, context)
	putUvarint(&buf, uint64(len(facts)))
	for _, f := range facts {
		encodePredicate(&buf, f.Predicate)
	}
	putUvarint(&buf, uint64(len(rules)))
	for _, r := range rules {
		encodeRule(&buf, r)
	}
	putUvarint(&buf, uint64(len(checks)))
	for _, c := range checks {
		encodeCheck(&buf, c)
	}
	return buf
}

func putUvarint(buf *[]byte, n uint64) {
	tmp := make([]byte, binary.MaxVarintLen64)
	l := binary.PutUvarint(tmp, n)
	*buf = append(*buf, tmp[:l]...)
}

func putVarint(buf *[]byte, n int64) {
	tmp := make([]byte, binary.MaxVarintLen64)
	l := binary.PutVarint(tmp, n)
	*buf = append(*buf, tmp[:l]...)
}

func putBytes(buf *[]byte, b []byte) {
	putUvarint(buf, uint64(len(b)))
	*buf = append(*buf, b...)
}

func putString(buf *[]byte, s string) { putBytes(buf, []byte(s)) }

func encodeTerm(buf *[]byte, t Term) {
	*buf = append(*buf, byte(t.Type()))
	switch v := t.(type) {
	case Integer:
		putVarint(buf, int64(v))
	case String:
		putString(buf, string(v))
	case Date:
		putUvarint(buf, uint64(v))
	case Bytes:
		putBytes(buf, v)
	case Bool:
		b := byte(0)
		if v {
			b = 1
		}
		*buf = append(*buf, b)
	case Null:
	case Set:
		strs := make([]string, len(v))
		for i, e := range v {
			strs[i] = e.String()
		}
		order := sortedIndices(strs)
		putUvarint(buf, uint64(len(v)))
		for _, i := range order {
			encodeTerm(buf, v[i])
		}
	case Array:
		putUvarint(buf, uint64(len(v)))
		for _, e := range v {
			encodeTerm(buf, e)
		}
	case Map:
		putUvarint(buf, uint64(len(v)))
		for _, e := range v {
			encodeTerm(buf, e.Key)
			encodeTerm(buf, e.Value)
		}
	case Variable:
		putUvarint(buf, uint64(v))
	}
}

// sortedIndices returns the permutation of 0..len(strs)-1 that sorts strs,
// giving Set (an unordered type) a canonical encoding order independent of
// insertion order.
func sortedIndices(strs []string) []int {
	idx := make([]int, len(strs))
	for i := range idx {
		idx[i] = i
	}
	for i := 1; i < len(idx); i++ {
		for j := i; j > 0 && strs[idx[j-1]] > strs[idx[j]]; j-- {
			idx[j-1], idx[j] = idx[j], idx[j-1]
		}
	}
	return idx
}

func encodePredicate(buf *[]byte, p Predicate) {
	putUvarint(buf, p.Name)
	putUvarint(buf, uint64(len(p.Terms)))
	for _, t := range p.Terms {
		encodeTerm(buf, t)
	}
}

func encodeScope(buf *[]byte, s TrustScope) {
	putUvarint(buf, uint64(len(s)))
	for _, el := range s {
		*buf = append(*buf, byte(el.Kind))
		if el.Kind == ScopePublicKey {
			putUvarint(buf, el.PublicKeyID)
		}
	}
}

func encodeRule(buf *[]byte, r Rule) {
	encodePredicate(buf, r.Head)
	putUvarint(buf, uint64(len(r.Body)))
	for _, p := range r.Body {
		encodePredicate(buf, p)
	}
	putUvarint(buf, uint64(len(r.Expressions)))
	for _, e := range r.Expressions {
		encodeExpression(buf, e)
	}
	encodeScope(buf, r.Scope)
}

func encodeCheck(buf *[]byte, c Check) {
	*buf = append(*buf, byte(c.Kind))
	putUvarint(buf, uint64(len(c.Queries)))
	for _, q := range c.Queries {
		encodeRule(buf, q)
	}
}

func encodeExpression(buf *[]byte, e Expression) {
	switch x := e.(type) {
	case *ValueExpr:
		*buf = append(*buf, 0)
		encodeTerm(buf, x.Term)
	case *VarExpr:
		*buf = append(*buf, 1)
		putUvarint(buf, uint64(x.Var))
	case *UnaryExpr:
		*buf = append(*buf, 2, byte(x.Op))
		encodeExpression(buf, x.X)
	case *BinaryExpr:
		*buf = append(*buf, 3, byte(x.Op))
		encodeExpression(buf, x.L)
		encodeExpression(buf, x.R)
	case *MethodExpr:
		*buf = append(*buf, 4)
		putString(buf, x.Method)
		encodeExpression(buf, x.Receiver)
		putUvarint(buf, uint64(len(x.Args)))
		for _, a := range x.Args {
			encodeExpression(buf, a)
		}
	case *ClosureExpr:
		*buf = append(*buf, 5)
		putUvarint(buf, uint64(x.Param))
		encodeExpression(buf, x.Body)
	case *ExternExpr:
		*buf = append(*buf, 6)
		putString(buf, x.Name)
		if x.Receiver != nil {
			*buf = append(*buf, 1)
			encodeExpression(buf, x.Receiver)
		} else {
			*buf = append(*buf, 0)
		}
		putUvarint(buf, uint64(len(x.Args)))
		for _, a := range x.Args {
			encodeExpression(buf, a)
		}
	default:
		*buf = append(*buf, 0xff)
	}
}
