// Copyright 2020-2021 Dolthub, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package expr

import "github.com/dolthub/quereus/sql"

// CompareOp names a comparison operator, including the non-null-
// propagating IS / IS NOT used for null-safe equality.
type CompareOp int

const (
	CmpEQ CompareOp = iota
	CmpNE
	CmpLT
	CmpLE
	CmpGT
	CmpGE
	CmpIS
	CmpISNOT
)

// Comparison evaluates left OP right. For every op except IS/IS NOT, a
// null operand yields null (three-valued logic, §4.3); coercion for
// comparison is applied first (a string that parses as a number compares
// numerically against a numeric operand; two strings compare as text),
// then a collation-aware text compare.
type Comparison struct {
	Op          CompareOp
	Left, Right Expr
	Collation   sql.CollationFn
}

func NewComparison(op CompareOp, l, r Expr, collation sql.CollationFn) *Comparison {
	if collation == nil {
		if c, ok := l.(*Collate); ok {
			collation = sql.ResolveCollation(c.Collation)
		} else if c, ok := r.(*Collate); ok {
			collation = sql.ResolveCollation(c.Collation)
		}
	}
	return &Comparison{Op: op, Left: l, Right: r, Collation: collation}
}

func (c *Comparison) Type() sql.ScalarType       { return sql.Boolean }
func (c *Comparison) Children() []sql.ScalarNode { return children2(c.Left, c.Right) }
func (c *Comparison) WithChildren(ch ...sql.ScalarNode) (sql.ScalarNode, error) {
	if len(ch) != 2 {
		return nil, sql.ErrInternal.New("comparison takes two children")
	}
	l, err := asExpr(ch[0])
	if err != nil {
		return nil, err
	}
	r, err := asExpr(ch[1])
	if err != nil {
		return nil, err
	}
	return &Comparison{Op: c.Op, Left: l, Right: r, Collation: c.Collation}, nil
}
func (c *Comparison) String() string { return "comparison" }

func (c *Comparison) Eval(ctx *sql.Context, b *sql.BindingStack) (sql.Value, error) {
	lv, err := c.Left.Eval(ctx, b)
	if err != nil {
		return nil, err
	}
	rv, err := c.Right.Eval(ctx, b)
	if err != nil {
		return nil, err
	}

	if c.Op == CmpIS || c.Op == CmpISNOT {
		eq := isEqual(lv, rv, c.Collation)
		if c.Op == CmpIS {
			return eq, nil
		}
		return !eq, nil
	}

	if lv == nil || rv == nil {
		return nil, nil
	}

	cmp := sql.Compare(lv, rv, c.Collation)
	switch c.Op {
	case CmpEQ:
		return cmp == 0, nil
	case CmpNE:
		return cmp != 0, nil
	case CmpLT:
		return cmp < 0, nil
	case CmpLE:
		return cmp <= 0, nil
	case CmpGT:
		return cmp > 0, nil
	case CmpGE:
		return cmp >= 0, nil
	}
	return nil, sql.ErrInternal.New("unknown comparison operator")
}

func isEqual(a, b sql.Value, collation sql.CollationFn) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return sql.Compare(a, b, collation) == 0
}

// Between implements BETWEEN as `>= AND <=`.
type Between struct {
	Val, Lower, Upper Expr
	Collation         sql.CollationFn
}

func NewBetween(v, lo, hi Expr, collation sql.CollationFn) *Between {
	return &Between{Val: v, Lower: lo, Upper: hi, Collation: collation}
}

func (bt *Between) Type() sql.ScalarType { return sql.Boolean }
func (bt *Between) Children() []sql.ScalarNode {
	return []sql.ScalarNode{bt.Val, bt.Lower, bt.Upper}
}
func (bt *Between) WithChildren(c ...sql.ScalarNode) (sql.ScalarNode, error) {
	if len(c) != 3 {
		return nil, sql.ErrInternal.New("between takes three children")
	}
	v, err := asExpr(c[0])
	if err != nil {
		return nil, err
	}
	lo, err := asExpr(c[1])
	if err != nil {
		return nil, err
	}
	hi, err := asExpr(c[2])
	if err != nil {
		return nil, err
	}
	return &Between{Val: v, Lower: lo, Upper: hi, Collation: bt.Collation}, nil
}
func (bt *Between) String() string { return "between" }

func (bt *Between) Eval(ctx *sql.Context, b *sql.BindingStack) (sql.Value, error) {
	ge := NewComparison(CmpGE, bt.Val, bt.Lower, bt.Collation)
	le := NewComparison(CmpLE, bt.Val, bt.Upper, bt.Collation)
	geV, err := ge.Eval(ctx, b)
	if err != nil {
		return nil, err
	}
	leV, err := le.Eval(ctx, b)
	if err != nil {
		return nil, err
	}
	return And(geV, leV), nil
}
