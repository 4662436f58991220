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

// CaseBranch is one WHEN/THEN arm of a CASE expression.
type CaseBranch struct {
	When Expr
	Then Expr
}

// Case evaluates its arms top-to-bottom, returning the first match's
// Then value, the Else value if none match, or null if there is no Else.
type Case struct {
	Branches []CaseBranch
	Else     Expr
	Typ      sql.ScalarType
}

func NewCase(branches []CaseBranch, els Expr, t sql.ScalarType) *Case {
	return &Case{Branches: branches, Else: els, Typ: t}
}

func (c *Case) Type() sql.ScalarType { return c.Typ }
func (c *Case) Children() []sql.ScalarNode {
	out := make([]sql.ScalarNode, 0, len(c.Branches)*2+1)
	for _, br := range c.Branches {
		out = append(out, br.When, br.Then)
	}
	if c.Else != nil {
		out = append(out, c.Else)
	}
	return out
}
func (c *Case) WithChildren(ch ...sql.ScalarNode) (sql.ScalarNode, error) {
	n := len(c.Branches) * 2
	if c.Else != nil {
		n++
	}
	if len(ch) != n {
		return nil, sql.ErrInternal.New("case arity mismatch")
	}
	branches := make([]CaseBranch, len(c.Branches))
	for i := range branches {
		w, err := asExpr(ch[i*2])
		if err != nil {
			return nil, err
		}
		t, err := asExpr(ch[i*2+1])
		if err != nil {
			return nil, err
		}
		branches[i] = CaseBranch{When: w, Then: t}
	}
	var els Expr
	if c.Else != nil {
		var err error
		els, err = asExpr(ch[n-1])
		if err != nil {
			return nil, err
		}
	}
	return &Case{Branches: branches, Else: els, Typ: c.Typ}, nil
}
func (c *Case) String() string { return "case" }

func (c *Case) Eval(ctx *sql.Context, b *sql.BindingStack) (sql.Value, error) {
	for _, br := range c.Branches {
		wv, err := br.When.Eval(ctx, b)
		if err != nil {
			return nil, err
		}
		if sql.IsTruthy(wv) {
			return br.Then.Eval(ctx, b)
		}
	}
	if c.Else != nil {
		return c.Else.Eval(ctx, b)
	}
	return nil, nil
}

// Collate re-tags a text expression with an explicit collation name for
// use by an enclosing comparison; evaluation is a pass-through, the
// collation is consulted by whatever Comparison wraps this node
// (NewComparison copies a COLLATE on either operand into the
// comparison's Collation field when none is given, at plan-build time).
type Collate struct {
	Inner     Expr
	Collation string
}

func NewCollate(inner Expr, collation string) *Collate {
	return &Collate{Inner: inner, Collation: collation}
}

func (c *Collate) Type() sql.ScalarType {
	t := c.Inner.Type()
	t.Collation = c.Collation
	return t
}
func (c *Collate) Children() []sql.ScalarNode { return []sql.ScalarNode{c.Inner} }
func (c *Collate) WithChildren(ch ...sql.ScalarNode) (sql.ScalarNode, error) {
	if len(ch) != 1 {
		return nil, sql.ErrInternal.New("collate takes one child")
	}
	in, err := asExpr(ch[0])
	if err != nil {
		return nil, err
	}
	return &Collate{Inner: in, Collation: c.Collation}, nil
}
func (c *Collate) String() string { return "collate" }
func (c *Collate) Eval(ctx *sql.Context, b *sql.BindingStack) (sql.Value, error) {
	return c.Inner.Eval(ctx, b)
}
