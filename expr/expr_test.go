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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dolthub/quereus/sql"
)

func emptyBindings() *sql.BindingStack { return sql.NewBindingStack() }

func TestLiteralEval(t *testing.T) {
	l := NewLiteral(int64(42), sql.Integer)
	v, err := l.Eval(sql.NewEmptyContext(), emptyBindings())
	require.NoError(t, err)
	require.Equal(t, int64(42), v)
}

func TestGetFieldResolvesFromBindingStack(t *testing.T) {
	attr := sql.NewAttribute()
	desc := sql.NewRowDescriptor([]sql.Attribute{attr})
	bindings := sql.NewBindingStack()
	bindings.Push(sql.Binding{Descriptor: desc, Row: sql.NewRow(int64(7))})

	g := NewGetField(attr, sql.Integer, "x")
	v, err := g.Eval(sql.NewEmptyContext(), bindings)
	require.NoError(t, err)
	require.Equal(t, int64(7), v)
}

func TestGetFieldUnresolvedErrors(t *testing.T) {
	g := NewGetField(sql.NewAttribute(), sql.Integer, "x")
	_, err := g.Eval(sql.NewEmptyContext(), emptyBindings())
	require.Error(t, err)
}

func TestArithmeticIntOverflowYieldsNull(t *testing.T) {
	max := NewLiteral(int64(9223372036854775807), sql.Integer)
	one := NewLiteral(int64(1), sql.Integer)
	a := NewArithmetic(Add, max, one, sql.Integer)
	v, err := a.Eval(sql.NewEmptyContext(), emptyBindings())
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestArithmeticNullPropagates(t *testing.T) {
	a := NewArithmetic(Add, NewLiteral(nil, sql.Integer), NewLiteral(int64(1), sql.Integer), sql.Integer)
	v, err := a.Eval(sql.NewEmptyContext(), emptyBindings())
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestArithmeticFloatDivisionByZeroYieldsNull(t *testing.T) {
	a := NewArithmetic(Div, NewLiteral(1.0, sql.Real), NewLiteral(0.0, sql.Real), sql.Real)
	v, err := a.Eval(sql.NewEmptyContext(), emptyBindings())
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestConcat(t *testing.T) {
	c := NewConcat(NewLiteral("ab", sql.Text), NewLiteral("cd", sql.Text))
	v, err := c.Eval(sql.NewEmptyContext(), emptyBindings())
	require.NoError(t, err)
	require.Equal(t, "abcd", v)
}

func TestComparisonNullPropagationExceptIs(t *testing.T) {
	eq := NewComparison(CmpEQ, NewLiteral(nil, sql.Integer), NewLiteral(int64(1), sql.Integer), nil)
	v, err := eq.Eval(sql.NewEmptyContext(), emptyBindings())
	require.NoError(t, err)
	require.Nil(t, v)

	is := NewComparison(CmpIS, NewLiteral(nil, sql.Integer), NewLiteral(nil, sql.Integer), nil)
	v, err = is.Eval(sql.NewEmptyContext(), emptyBindings())
	require.NoError(t, err)
	require.Equal(t, true, v)
}

func TestBetween(t *testing.T) {
	b := NewBetween(NewLiteral(int64(5), sql.Integer), NewLiteral(int64(1), sql.Integer), NewLiteral(int64(10), sql.Integer), nil)
	v, err := b.Eval(sql.NewEmptyContext(), emptyBindings())
	require.NoError(t, err)
	require.Equal(t, true, v)
}

func TestLogicalTruthTable(t *testing.T) {
	require.Equal(t, false, And(false, nil))
	require.Nil(t, And(true, nil))
	require.Equal(t, true, Or(true, nil))
	require.Nil(t, Or(false, nil))
	require.Nil(t, Xor(true, nil))
}

func TestCaseFallsThroughToElse(t *testing.T) {
	c := NewCase([]CaseBranch{
		{When: NewLiteral(false, sql.Boolean), Then: NewLiteral(int64(1), sql.Integer)},
	}, NewLiteral(int64(2), sql.Integer), sql.Integer)
	v, err := c.Eval(sql.NewEmptyContext(), emptyBindings())
	require.NoError(t, err)
	require.Equal(t, int64(2), v)
}

func TestCaseNoElseYieldsNull(t *testing.T) {
	c := NewCase([]CaseBranch{
		{When: NewLiteral(false, sql.Boolean), Then: NewLiteral(int64(1), sql.Integer)},
	}, nil, sql.Integer)
	v, err := c.Eval(sql.NewEmptyContext(), emptyBindings())
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestCastAffinity(t *testing.T) {
	c := NewCast(NewLiteral("42", sql.Text), sql.Integer)
	v, err := c.Eval(sql.NewEmptyContext(), emptyBindings())
	require.NoError(t, err)
	require.Equal(t, int64(42), v)

	c2 := NewCast(NewLiteral("abc", sql.Text), sql.Integer)
	v, err = c2.Eval(sql.NewEmptyContext(), emptyBindings())
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestFunctionCallDispatch(t *testing.T) {
	fn := NewFunctionCall("double", []Expr{NewLiteral(int64(21), sql.Integer)},
		func(ctx *sql.Context, args []sql.Value) (sql.Value, error) {
			return args[0].(int64) * 2, nil
		}, sql.Integer)
	v, err := fn.Eval(sql.NewEmptyContext(), emptyBindings())
	require.NoError(t, err)
	require.Equal(t, int64(42), v)
}

func TestLikeWildcards(t *testing.T) {
	l := NewLike(NewLiteral("hello world", sql.Text), NewLiteral("hel%", sql.Text), 0, false)
	v, err := l.Eval(sql.NewEmptyContext(), emptyBindings())
	require.NoError(t, err)
	require.Equal(t, true, v)

	l2 := NewLike(NewLiteral("hello", sql.Text), NewLiteral("h_l_o", sql.Text), 0, false)
	v, err = l2.Eval(sql.NewEmptyContext(), emptyBindings())
	require.NoError(t, err)
	require.Equal(t, true, v)

	l3 := NewLike(NewLiteral("HELLO", sql.Text), NewLiteral("hello", sql.Text), 0, true)
	v, err = l3.Eval(sql.NewEmptyContext(), emptyBindings())
	require.NoError(t, err)
	require.Equal(t, true, v)
}

func TestTemporalDateMinusDateYieldsDuration(t *testing.T) {
	a := NewArithmetic(Sub, NewLiteral("2024-01-10", sql.Text), NewLiteral("2024-01-01", sql.Text), sql.Text)
	v, err := a.Eval(sql.NewEmptyContext(), emptyBindings())
	require.NoError(t, err)
	require.Equal(t, "P0DT216H0M0S", v)
}
