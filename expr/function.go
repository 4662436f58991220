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

// ScalarFunc is the shape every built-in/registered scalar function
// implements; it evaluates eagerly over already-resolved argument values
// (the function-call contract the executor invokes against, §2).
type ScalarFunc func(ctx *sql.Context, args []sql.Value) (sql.Value, error)

// FunctionCall invokes a named scalar function against its evaluated
// arguments. The Fn and Typ are resolved by the analyzer at plan-build
// time from the function registry (package funcreg), keeping this node
// itself registry-agnostic.
type FunctionCall struct {
	Name string
	Args []Expr
	Fn   ScalarFunc
	Typ  sql.ScalarType
}

func NewFunctionCall(name string, args []Expr, fn ScalarFunc, t sql.ScalarType) *FunctionCall {
	return &FunctionCall{Name: name, Args: args, Fn: fn, Typ: t}
}

func (f *FunctionCall) Type() sql.ScalarType { return f.Typ }
func (f *FunctionCall) Children() []sql.ScalarNode {
	out := make([]sql.ScalarNode, len(f.Args))
	for i, a := range f.Args {
		out[i] = a
	}
	return out
}
func (f *FunctionCall) WithChildren(ch ...sql.ScalarNode) (sql.ScalarNode, error) {
	if len(ch) != len(f.Args) {
		return nil, sql.ErrInternal.New("function call arity mismatch")
	}
	args := make([]Expr, len(ch))
	for i, c := range ch {
		e, err := asExpr(c)
		if err != nil {
			return nil, err
		}
		args[i] = e
	}
	return &FunctionCall{Name: f.Name, Args: args, Fn: f.Fn, Typ: f.Typ}, nil
}
func (f *FunctionCall) String() string { return f.Name + "(...)" }

func (f *FunctionCall) Eval(ctx *sql.Context, b *sql.BindingStack) (sql.Value, error) {
	args := make([]sql.Value, len(f.Args))
	for i, a := range f.Args {
		v, err := a.Eval(ctx, b)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	if f.Fn == nil {
		return nil, sql.ErrUnsupported.New("function not bound: " + f.Name)
	}
	return f.Fn(ctx, args)
}

// Like implements pattern matching for LIKE/GLOB-style operators. `_`/`%`
// are SQL LIKE wildcards; GLOB uses `*`/`?` — Caller selects the
// translation by constructing the Pattern already in LIKE form.
type Like struct {
	Val, Pattern Expr
	Escape       rune
	CaseFold     bool
}

func NewLike(val, pattern Expr, escape rune, caseFold bool) *Like {
	return &Like{Val: val, Pattern: pattern, Escape: escape, CaseFold: caseFold}
}

func (l *Like) Type() sql.ScalarType       { return sql.Boolean }
func (l *Like) Children() []sql.ScalarNode { return children2(l.Val, l.Pattern) }
func (l *Like) WithChildren(c ...sql.ScalarNode) (sql.ScalarNode, error) {
	if len(c) != 2 {
		return nil, sql.ErrInternal.New("like takes two children")
	}
	v, err := asExpr(c[0])
	if err != nil {
		return nil, err
	}
	p, err := asExpr(c[1])
	if err != nil {
		return nil, err
	}
	return &Like{Val: v, Pattern: p, Escape: l.Escape, CaseFold: l.CaseFold}, nil
}
func (l *Like) String() string { return "like" }

func (l *Like) Eval(ctx *sql.Context, b *sql.BindingStack) (sql.Value, error) {
	vv, err := l.Val.Eval(ctx, b)
	if err != nil {
		return nil, err
	}
	pv, err := l.Pattern.Eval(ctx, b)
	if err != nil {
		return nil, err
	}
	if vv == nil || pv == nil {
		return nil, nil
	}
	return matchLike(toText(vv), toText(pv), l.Escape, l.CaseFold), nil
}

func matchLike(s, pattern string, escape rune, caseFold bool) bool {
	if caseFold {
		s = foldCase(s)
		pattern = foldCase(pattern)
	}
	return likeMatch([]rune(s), []rune(pattern), escape)
}

func foldCase(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r >= 'A' && r <= 'Z' {
			r = r - 'A' + 'a'
		}
		out = append(out, r)
	}
	return string(out)
}

// likeMatch is a small recursive matcher for `%` (any run) and `_` (any
// single char), with an optional escape rune disabling the next
// wildcard's special meaning.
func likeMatch(s, p []rune, escape rune) bool {
	var match func(si, pi int) bool
	match = func(si, pi int) bool {
		for pi < len(p) {
			switch {
			case p[pi] == escape && escape != 0 && pi+1 < len(p):
				if si >= len(s) || s[si] != p[pi+1] {
					return false
				}
				si++
				pi += 2
			case p[pi] == '%':
				for pi < len(p) && p[pi] == '%' {
					pi++
				}
				if pi == len(p) {
					return true
				}
				for k := si; k <= len(s); k++ {
					if match(k, pi) {
						return true
					}
				}
				return false
			case p[pi] == '_':
				if si >= len(s) {
					return false
				}
				si++
				pi++
			default:
				if si >= len(s) || s[si] != p[pi] {
					return false
				}
				si++
				pi++
			}
		}
		return si == len(s)
	}
	return match(0, 0)
}
