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

package plan

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dolthub/quereus/sql"
)

func sampleSchema() *sql.TableSchema {
	return &sql.TableSchema{
		TableName: "t",
		Columns: []sql.ColumnSchema{
			{Name: "id", Type: sql.Integer, PrimaryKey: true, NotNull: true},
			{Name: "name", Type: sql.Text},
		},
		PrimaryKey: []sql.IndexColumn{{ColumnIndex: 0}},
	}
}

func TestTableScanAssignsUniqueAttributes(t *testing.T) {
	s1 := NewTableScan(sampleSchema(), "t")
	s2 := NewTableScan(sampleSchema(), "t2")
	require.Len(t, s1.Attributes(), 2)
	require.NotEqual(t, s1.Attributes()[0], s2.Attributes()[0])
	require.NotEqual(t, s1.Attributes()[0], s1.Attributes()[1])
}

func TestFilterPreservesChildShape(t *testing.T) {
	scan := NewTableScan(sampleSchema(), "t")
	f := NewFilter(scan, nil)
	require.Equal(t, scan.RelType(), f.RelType())
	require.Equal(t, scan.Attributes(), f.Attributes())
}

func TestProjectIntroducesFreshAttributes(t *testing.T) {
	scan := NewTableScan(sampleSchema(), "t")
	p := NewProject(scan, []sql.ScalarNode{nil}, []string{"id"}, []sql.ScalarType{sql.Integer})
	require.Len(t, p.Attributes(), 1)
	require.NotContains(t, scan.Attributes(), p.Attributes()[0])
}

func TestDistinctMarksRelationAsSet(t *testing.T) {
	scan := NewTableScan(sampleSchema(), "t")
	d := NewDistinct(scan)
	require.True(t, d.RelType().IsSet)
}

func TestJoinLeftMarksRightColumnsNullable(t *testing.T) {
	left := NewTableScan(sampleSchema(), "l")
	right := NewTableScan(sampleSchema(), "r")
	j, err := NewJoin(JoinLeft, left, right, nil)
	require.NoError(t, err)
	require.Len(t, j.RelType().Columns, 4)
	for _, c := range j.RelType().Columns[2:] {
		require.True(t, c.Nullable)
	}
}

func TestJoinInnerConcatenatesColumns(t *testing.T) {
	left := NewTableScan(sampleSchema(), "l")
	right := NewTableScan(sampleSchema(), "r")
	j, err := NewJoin(JoinInner, left, right, nil)
	require.NoError(t, err)
	require.Len(t, j.Attributes(), 4)
}

func TestJoinSemiKeepsOnlyLeftColumns(t *testing.T) {
	left := NewTableScan(sampleSchema(), "l")
	right := NewTableScan(sampleSchema(), "r")
	j, err := NewJoin(JoinSemi, left, right, nil)
	require.NoError(t, err)
	require.Len(t, j.Attributes(), 2)
}

func TestWithChildrenRebuildsImmutably(t *testing.T) {
	scan := NewTableScan(sampleSchema(), "t")
	f := NewFilter(scan, nil)
	scan2 := NewTableScan(sampleSchema(), "t2")
	f2n, err := f.WithChildren(scan2)
	require.NoError(t, err)
	f2 := f2n.(*Filter)
	require.Equal(t, scan2, f2.Child)
	require.Equal(t, scan, f.Child) // original untouched
}

func TestRecursiveCTEAllocatesWorkingTableAttribute(t *testing.T) {
	anchor := NewValues([]sql.Row{sql.NewRow(int64(1))}, []sql.ScalarType{sql.Integer})
	recursive := NewValues([]sql.Row{sql.NewRow(int64(2))}, []sql.ScalarType{sql.Integer})
	cte := NewRecursiveCTE("r", anchor, recursive, 1000, false)
	require.NotZero(t, cte.WorkingTableRef)
	require.Equal(t, anchor.RelType(), cte.RelType())
	require.False(t, cte.All)

	cteAll := NewRecursiveCTE("r", anchor, recursive, 1000, true)
	require.True(t, cteAll.All)
}
