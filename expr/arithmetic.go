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

import (
	"math"

	"github.com/dolthub/quereus/sql"
)

// ArithOp names a binary arithmetic operator.
type ArithOp int

const (
	Add ArithOp = iota
	Sub
	Mul
	Div
	Mod
)

// Arithmetic evaluates left OP right under the three-valued-logic and
// mixed bigint/float coercion rules of §4.3: any null operand yields
// null; if either side is an int64, both are coerced to int64 and an
// overflow/parse failure yields null; otherwise both are coerced to
// float64 and a non-finite result becomes null. Before falling back to
// plain arithmetic, operands that look like ISO-8601 date/time/duration
// strings are routed through the temporal matrix (§4.3).
type Arithmetic struct {
	Op          ArithOp
	Left, Right Expr
	Typ         sql.ScalarType
}

func NewArithmetic(op ArithOp, l, r Expr, t sql.ScalarType) *Arithmetic {
	return &Arithmetic{Op: op, Left: l, Right: r, Typ: t}
}

func (a *Arithmetic) Type() sql.ScalarType       { return a.Typ }
func (a *Arithmetic) Children() []sql.ScalarNode { return children2(a.Left, a.Right) }
func (a *Arithmetic) WithChildren(c ...sql.ScalarNode) (sql.ScalarNode, error) {
	if len(c) != 2 {
		return nil, sql.ErrInternal.New("arithmetic takes two children")
	}
	l, err := asExpr(c[0])
	if err != nil {
		return nil, err
	}
	r, err := asExpr(c[1])
	if err != nil {
		return nil, err
	}
	return &Arithmetic{Op: a.Op, Left: l, Right: r, Typ: a.Typ}, nil
}
func (a *Arithmetic) String() string { return "arithmetic" }

func (a *Arithmetic) Eval(ctx *sql.Context, b *sql.BindingStack) (sql.Value, error) {
	lv, err := a.Left.Eval(ctx, b)
	if err != nil {
		return nil, err
	}
	rv, err := a.Right.Eval(ctx, b)
	if err != nil {
		return nil, err
	}
	if lv == nil || rv == nil {
		return nil, nil
	}

	if tv, ok, err := tryTemporalArithmetic(a.Op, lv, rv); err != nil {
		return nil, err
	} else if ok {
		return tv, nil
	}

	li, lIsInt := lv.(int64)
	ri, rIsInt := rv.(int64)
	if lIsInt && rIsInt {
		v, ok := intArith(a.Op, li, ri)
		if !ok {
			return nil, nil
		}
		return v, nil
	}

	lf, lok := toFloat(lv)
	rf, rok := toFloat(rv)
	if !lok || !rok {
		return nil, nil
	}
	f, ok := floatArith(a.Op, lf, rf)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, nil
	}
	return f, nil
}

func toFloat(v sql.Value) (float64, bool) {
	switch t := v.(type) {
	case int64:
		return float64(t), true
	case float64:
		return t, true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func intArith(op ArithOp, l, r int64) (int64, bool) {
	switch op {
	case Add:
		sum := l + r
		if (r > 0 && sum < l) || (r < 0 && sum > l) {
			return 0, false
		}
		return sum, true
	case Sub:
		diff := l - r
		if (r < 0 && diff < l) || (r > 0 && diff > l) {
			return 0, false
		}
		return diff, true
	case Mul:
		if l == 0 || r == 0 {
			return 0, true
		}
		prod := l * r
		if prod/r != l {
			return 0, false
		}
		return prod, true
	case Div:
		if r == 0 {
			return 0, false
		}
		return l / r, true
	case Mod:
		if r == 0 {
			return 0, false
		}
		return l % r, true
	}
	return 0, false
}

func floatArith(op ArithOp, l, r float64) (float64, bool) {
	switch op {
	case Add:
		return l + r, true
	case Sub:
		return l - r, true
	case Mul:
		return l * r, true
	case Div:
		if r == 0 {
			return 0, false
		}
		return l / r, true
	case Mod:
		if r == 0 {
			return 0, false
		}
		return math.Mod(l, r), true
	}
	return 0, false
}

// Concat implements `||`: converts both operands to text; null in either
// operand yields null.
type Concat struct {
	Left, Right Expr
}

func NewConcat(l, r Expr) *Concat { return &Concat{Left: l, Right: r} }

func (c *Concat) Type() sql.ScalarType       { return sql.Text }
func (c *Concat) Children() []sql.ScalarNode { return children2(c.Left, c.Right) }
func (c *Concat) WithChildren(ch ...sql.ScalarNode) (sql.ScalarNode, error) {
	if len(ch) != 2 {
		return nil, sql.ErrInternal.New("concat takes two children")
	}
	l, err := asExpr(ch[0])
	if err != nil {
		return nil, err
	}
	r, err := asExpr(ch[1])
	if err != nil {
		return nil, err
	}
	return &Concat{Left: l, Right: r}, nil
}
func (c *Concat) String() string { return "concat" }

func (c *Concat) Eval(ctx *sql.Context, b *sql.BindingStack) (sql.Value, error) {
	lv, err := c.Left.Eval(ctx, b)
	if err != nil {
		return nil, err
	}
	rv, err := c.Right.Eval(ctx, b)
	if err != nil {
		return nil, err
	}
	if lv == nil || rv == nil {
		return nil, nil
	}
	return toText(lv) + toText(rv), nil
}

func toText(v sql.Value) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return sql.ValueToText(v)
	}
}
