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

package emit

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dolthub/quereus/expr"
	"github.com/dolthub/quereus/funcreg"
	"github.com/dolthub/quereus/plan"
	"github.com/dolthub/quereus/sql"
)

// buildDuplicatingRecursiveCTE assembles a RecursiveCTE whose recursive
// term unions its own working-table scan with itself (via SetUnionAll),
// so every delta row is fed forward twice, then filters on the (n, lvl)
// anchor's lvl column so the fixpoint always settles after one step
// regardless of whether duplicates are being dropped. This isolates
// All's dedup-vs-no-dedup behavior (§4.4) without depending on the SQL
// front end's own recursive-CTE or join parsing.
func buildDuplicatingRecursiveCTE(all bool) *plan.RecursiveCTE {
	anchor := plan.NewValues([]sql.Row{sql.NewRow(int64(1), int64(0))}, []sql.ScalarType{sql.Integer, sql.Integer})
	attrs := anchor.Attributes()
	relType := anchor.RelType()

	ws1 := plan.NewWorkingTableScan("r", attrs, relType)
	ws2 := plan.NewWorkingTableScan("r", attrs, relType)
	union := plan.NewSetOp(plan.SetUnionAll, ws1, ws2)

	lvlLess1 := expr.NewComparison(expr.CmpLT, expr.NewGetField(attrs[1], sql.Integer, "lvl"), expr.NewLiteral(int64(1), sql.Integer), nil)
	filtered := plan.NewFilter(union, lvlLess1)

	recursive := plan.NewProject(filtered,
		[]sql.ScalarNode{expr.NewGetField(attrs[0], sql.Integer, "n"), expr.NewLiteral(int64(1), sql.Integer)},
		[]string{"n", "lvl"},
		[]sql.ScalarType{sql.Integer, sql.Integer},
	)

	return plan.NewRecursiveCTE("r", anchor, recursive, 100, all)
}

func runRecursiveCTE(t *testing.T, rcte *plan.RecursiveCTE) []sql.Row {
	ec := &EmissionContext{Registry: NewRegistry(), Funcs: funcreg.NewRegistry()}
	ins, err := ec.Registry.Build(ec, rcte)
	require.NoError(t, err)

	rt := &Runtime{Ctx: sql.NewEmptyContext(), Bindings: sql.NewBindingStack(), Funcs: ec.Funcs}
	iter, err := ins.RowIter(rt)
	require.NoError(t, err)
	rows, err := sql.RowIterToRows(rt.Ctx, iter)
	require.NoError(t, err)
	return rows
}

func TestRecursiveCTEUnionDistinctDedupsAcrossIterations(t *testing.T) {
	rows := runRecursiveCTE(t, buildDuplicatingRecursiveCTE(false))
	require.Len(t, rows, 2)
	require.Equal(t, int64(0), rows[0][1])
	require.Equal(t, int64(1), rows[1][1])
}

func TestRecursiveCTEUnionAllKeepsDuplicates(t *testing.T) {
	rows := runRecursiveCTE(t, buildDuplicatingRecursiveCTE(true))
	require.Len(t, rows, 3)
	require.Equal(t, int64(0), rows[0][1])
	require.Equal(t, int64(1), rows[1][1])
	require.Equal(t, int64(1), rows[2][1])
}
