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

// Package expr holds the scalar plan node model: binary/unary/case/cast/
// collate/temporal/function-call nodes. Each node is both a sql.ScalarNode
// (for the optimizer) and carries its own Eval method; the emitter
// registry wraps Eval in an Instruction so the scheduler can invoke it
// by value or by reference (§4.2).
package expr

import "github.com/dolthub/quereus/sql"

// Expr is the capability every scalar node in this package satisfies:
// sql.ScalarNode plus evaluation against an ambient binding stack.
type Expr interface {
	sql.ScalarNode
	Eval(ctx *sql.Context, bindings *sql.BindingStack) (sql.Value, error)
}

// Literal is a constant value with a fixed scalar type.
type Literal struct {
	Value sql.Value
	Typ   sql.ScalarType
}

func NewLiteral(v sql.Value, t sql.ScalarType) *Literal { return &Literal{Value: v, Typ: t} }

func (l *Literal) Type() sql.ScalarType        { return l.Typ }
func (l *Literal) Children() []sql.ScalarNode  { return nil }
func (l *Literal) WithChildren(c ...sql.ScalarNode) (sql.ScalarNode, error) {
	if len(c) != 0 {
		return nil, sql.ErrInternal.New("literal takes no children")
	}
	return l, nil
}
func (l *Literal) String() string { return "literal" }
func (l *Literal) Eval(ctx *sql.Context, b *sql.BindingStack) (sql.Value, error) {
	return l.Value, nil
}

// GetField resolves a column reference at runtime by looking up the
// attribute in the ambient binding stack.
type GetField struct {
	Attribute sql.Attribute
	Typ       sql.ScalarType
	Name      string
}

func NewGetField(attr sql.Attribute, t sql.ScalarType, name string) *GetField {
	return &GetField{Attribute: attr, Typ: t, Name: name}
}

func (g *GetField) Type() sql.ScalarType       { return g.Typ }
func (g *GetField) Children() []sql.ScalarNode { return nil }
func (g *GetField) WithChildren(c ...sql.ScalarNode) (sql.ScalarNode, error) {
	if len(c) != 0 {
		return nil, sql.ErrInternal.New("get-field takes no children")
	}
	return g, nil
}
func (g *GetField) String() string { return g.Name }
func (g *GetField) Eval(ctx *sql.Context, b *sql.BindingStack) (sql.Value, error) {
	v, ok := b.Resolve(g.Attribute)
	if !ok {
		return nil, sql.ErrInternal.New("unresolved attribute: " + g.Name)
	}
	return v, nil
}

func children2(l, r Expr) []sql.ScalarNode { return []sql.ScalarNode{l, r} }

func asExpr(n sql.ScalarNode) (Expr, error) {
	e, ok := n.(Expr)
	if !ok {
		return nil, sql.ErrInternal.New("expected expr.Expr child")
	}
	return e, nil
}
