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

package funcreg

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dolthub/quereus/sql"
)

func TestScalarAbs(t *testing.T) {
	r := NewRegistry()
	d, ok := r.ResolveScalar("abs")
	require.True(t, ok)

	v, err := d.Fn(sql.NewEmptyContext(), []sql.Value{int64(-5)})
	require.NoError(t, err)
	require.Equal(t, int64(5), v)

	v, err = d.Fn(sql.NewEmptyContext(), []sql.Value{-2.5})
	require.NoError(t, err)
	require.Equal(t, 2.5, v)

	v, err = d.Fn(sql.NewEmptyContext(), []sql.Value{nil})
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestScalarCoalesce(t *testing.T) {
	r := NewRegistry()
	d, ok := r.ResolveScalar("COALESCE")
	require.True(t, ok)

	v, err := d.Fn(sql.NewEmptyContext(), []sql.Value{nil, nil, int64(3), int64(4)})
	require.NoError(t, err)
	require.Equal(t, int64(3), v)
}

func TestScalarTextFuncs(t *testing.T) {
	r := NewRegistry()
	upper, _ := r.ResolveScalar("upper")
	lower, _ := r.ResolveScalar("lower")
	length, _ := r.ResolveScalar("length")

	v, err := upper.Fn(sql.NewEmptyContext(), []sql.Value{"abc"})
	require.NoError(t, err)
	require.Equal(t, "ABC", v)

	v, err = lower.Fn(sql.NewEmptyContext(), []sql.Value{"ABC"})
	require.NoError(t, err)
	require.Equal(t, "abc", v)

	v, err = length.Fn(sql.NewEmptyContext(), []sql.Value{"hello"})
	require.NoError(t, err)
	require.Equal(t, int64(5), v)
}

func TestScalarTypeof(t *testing.T) {
	r := NewRegistry()
	d, _ := r.ResolveScalar("typeof")

	cases := []struct {
		in   sql.Value
		want string
	}{
		{nil, "null"},
		{int64(1), "integer"},
		{1.5, "real"},
		{"x", "text"},
		{[]byte("x"), "blob"},
	}
	for _, c := range cases {
		v, err := d.Fn(sql.NewEmptyContext(), []sql.Value{c.in})
		require.NoError(t, err)
		require.Equal(t, c.want, v)
	}
}

func TestAggregateCount(t *testing.T) {
	r := NewRegistry()
	d, ok := r.ResolveAggregate("count")
	require.True(t, ok)

	acc := d.NewAcc()
	require.NoError(t, acc.Step([]sql.Value{}))
	require.NoError(t, acc.Step([]sql.Value{int64(1)}))
	require.NoError(t, acc.Step([]sql.Value{nil}))
	v, err := acc.Final()
	require.NoError(t, err)
	require.Equal(t, int64(2), v)
}

func TestAggregateSumSwitchesToFloat(t *testing.T) {
	r := NewRegistry()
	d, _ := r.ResolveAggregate("sum")
	acc := d.NewAcc()
	require.NoError(t, acc.Step([]sql.Value{int64(1)}))
	require.NoError(t, acc.Step([]sql.Value{int64(2)}))
	v, err := acc.Final()
	require.NoError(t, err)
	require.Equal(t, int64(3), v)

	acc2 := d.NewAcc()
	require.NoError(t, acc2.Step([]sql.Value{int64(1)}))
	require.NoError(t, acc2.Step([]sql.Value{1.5}))
	v2, err := acc2.Final()
	require.NoError(t, err)
	require.Equal(t, 2.5, v2)
}

func TestAggregateAvg(t *testing.T) {
	r := NewRegistry()
	d, _ := r.ResolveAggregate("avg")
	acc := d.NewAcc()
	require.NoError(t, acc.Step([]sql.Value{int64(2)}))
	require.NoError(t, acc.Step([]sql.Value{int64(4)}))
	v, err := acc.Final()
	require.NoError(t, err)
	require.Equal(t, 3.0, v)
}

func TestAggregateMinMax(t *testing.T) {
	r := NewRegistry()
	minD, _ := r.ResolveAggregate("min")
	maxD, _ := r.ResolveAggregate("max")

	minAcc := minD.NewAcc()
	maxAcc := maxD.NewAcc()
	for _, v := range []sql.Value{int64(5), int64(1), int64(9), nil} {
		require.NoError(t, minAcc.Step([]sql.Value{v}))
		require.NoError(t, maxAcc.Step([]sql.Value{v}))
	}
	minV, err := minAcc.Final()
	require.NoError(t, err)
	require.Equal(t, int64(1), minV)

	maxV, err := maxAcc.Final()
	require.NoError(t, err)
	require.Equal(t, int64(9), maxV)
}

func TestAggregateEmptyYieldsNull(t *testing.T) {
	r := NewRegistry()
	sumD, _ := r.ResolveAggregate("sum")
	v, err := sumD.NewAcc().Final()
	require.NoError(t, err)
	require.Nil(t, v)
}
