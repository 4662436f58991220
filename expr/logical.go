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

// And implements SQL's truth table: null AND false = false, otherwise
// null propagates unless both operands are known.
func And(l, r sql.Value) sql.Value {
	lb, lok := asBool3(l)
	rb, rok := asBool3(r)
	if lok && !lb {
		return false
	}
	if rok && !rb {
		return false
	}
	if !lok || !rok {
		return nil
	}
	return lb && rb
}

// Or implements: null OR true = true, otherwise null propagates unless
// both operands are known.
func Or(l, r sql.Value) sql.Value {
	lb, lok := asBool3(l)
	rb, rok := asBool3(r)
	if lok && lb {
		return true
	}
	if rok && rb {
		return true
	}
	if !lok || !rok {
		return nil
	}
	return lb || rb
}

// Xor returns null if either operand is null.
func Xor(l, r sql.Value) sql.Value {
	lb, lok := asBool3(l)
	rb, rok := asBool3(r)
	if !lok || !rok {
		return nil
	}
	return lb != rb
}

func asBool3(v sql.Value) (bool, bool) {
	if v == nil {
		return false, false
	}
	return sql.IsTruthy(v), true
}

// LogicalOp names a boolean connective.
type LogicalOp int

const (
	LogAnd LogicalOp = iota
	LogOr
	LogXor
	LogNot
)

// Logical evaluates AND/OR/XOR/NOT per the SQL truth tables.
type Logical struct {
	Op          LogicalOp
	Left, Right Expr // Right is nil for NOT
}

func NewLogical(op LogicalOp, l, r Expr) *Logical { return &Logical{Op: op, Left: l, Right: r} }

func (l *Logical) Type() sql.ScalarType { return sql.Boolean }
func (l *Logical) Children() []sql.ScalarNode {
	if l.Right == nil {
		return []sql.ScalarNode{l.Left}
	}
	return children2(l.Left, l.Right)
}
func (l *Logical) WithChildren(c ...sql.ScalarNode) (sql.ScalarNode, error) {
	if l.Op == LogNot {
		if len(c) != 1 {
			return nil, sql.ErrInternal.New("not takes one child")
		}
		v, err := asExpr(c[0])
		if err != nil {
			return nil, err
		}
		return &Logical{Op: LogNot, Left: v}, nil
	}
	if len(c) != 2 {
		return nil, sql.ErrInternal.New("logical op takes two children")
	}
	lv, err := asExpr(c[0])
	if err != nil {
		return nil, err
	}
	rv, err := asExpr(c[1])
	if err != nil {
		return nil, err
	}
	return &Logical{Op: l.Op, Left: lv, Right: rv}, nil
}
func (l *Logical) String() string { return "logical" }

func (l *Logical) Eval(ctx *sql.Context, b *sql.BindingStack) (sql.Value, error) {
	lv, err := l.Left.Eval(ctx, b)
	if err != nil {
		return nil, err
	}
	if l.Op == LogNot {
		bv, ok := asBool3(lv)
		if !ok {
			return nil, nil
		}
		return !bv, nil
	}
	rv, err := l.Right.Eval(ctx, b)
	if err != nil {
		return nil, err
	}
	switch l.Op {
	case LogAnd:
		return And(lv, rv), nil
	case LogOr:
		return Or(lv, rv), nil
	case LogXor:
		return Xor(lv, rv), nil
	}
	return nil, sql.ErrInternal.New("unknown logical operator")
}
