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
	"sort"

	"github.com/dolthub/quereus/funcreg"
	"github.com/dolthub/quereus/plan"
	"github.com/dolthub/quereus/sql"
)

// buildGroupBy always drives a stream aggregate (§4.4): rows are
// materialized and sorted by group key here rather than relying on the
// optimizer to have placed a Sort beneath it, so grouping is correct
// regardless of what access plan the child chose.
func buildGroupBy(ec *EmissionContext, node sql.RelationalNode) (*Instruction, error) {
	g := node.(*plan.GroupBy)
	childIns, err := ec.Registry.Build(ec, g.Child)
	if err != nil {
		return nil, err
	}
	childDesc := sql.NewRowDescriptor(g.Child.Attributes())
	groupIns, err := ScalarList(g.GroupExprs)
	if err != nil {
		return nil, err
	}
	aggArgIns := make([][]*Instruction, len(g.Aggregates))
	aggDefs := make([]funcreg.AggregateDef, len(g.Aggregates))
	for i, a := range g.Aggregates {
		aggArgIns[i], err = ScalarList(a.Args)
		if err != nil {
			return nil, err
		}
		def, ok := ec.Funcs.ResolveAggregate(a.FuncName)
		if !ok {
			return nil, sql.ErrPlanning.New("unknown aggregate function: " + a.FuncName)
		}
		aggDefs[i] = def
	}
	var havingIns *Instruction
	if g.HavingExpr != nil {
		havingIns, err = Scalar(g.HavingExpr)
		if err != nil {
			return nil, err
		}
	}
	outDesc := sql.NewRowDescriptor(g.Attributes())

	return &Instruction{
		Note: g.String(),
		Run: func(rt *Runtime, _ []sql.Value) (Output, error) {
			child, err := childIns.RowIter(rt)
			if err != nil {
				return nil, err
			}
			rows, err := sql.RowIterToRows(rt.Ctx, child)
			if err != nil {
				return nil, err
			}

			type keyedRow struct {
				key []sql.Value
				row sql.Row
			}
			keyed := make([]keyedRow, len(rows))
			for i, r := range rows {
				key := make([]sql.Value, len(groupIns))
				err := bindRow(rt, childDesc, r, func() error {
					for gi, gk := range groupIns {
						v, err := gk.Value(rt)
						if err != nil {
							return err
						}
						key[gi] = v
					}
					return nil
				})
				if err != nil {
					return nil, err
				}
				keyed[i] = keyedRow{key: key, row: r}
			}
			sort.SliceStable(keyed, func(i, j int) bool {
				return compareKeys(keyed[i].key, keyed[j].key) < 0
			})

			var out []sql.Row
			i := 0
			for i < len(keyed) {
				j := i + 1
				for j < len(keyed) && compareKeys(keyed[i].key, keyed[j].key) == 0 {
					j++
				}
				accs := make([]funcreg.Accumulator, len(aggDefs))
				for a := range accs {
					accs[a] = aggDefs[a].NewAcc()
				}
				for k := i; k < j; k++ {
					row := keyed[k].row
					err := bindRow(rt, childDesc, row, func() error {
						for a, argIns := range aggArgIns {
							args := make([]sql.Value, len(argIns))
							for ai, ins := range argIns {
								v, err := ins.Value(rt)
								if err != nil {
									return err
								}
								args[ai] = v
							}
							if err := accs[a].Step(args); err != nil {
								return err
							}
						}
						return nil
					})
					if err != nil {
						return nil, err
					}
				}
				outRow := make(sql.Row, 0, len(keyed[i].key)+len(accs))
				outRow = append(outRow, keyed[i].key...)
				for _, acc := range accs {
					v, err := acc.Final()
					if err != nil {
						return nil, err
					}
					outRow = append(outRow, v)
				}

				if havingIns != nil {
					var keep sql.Value
					err := bindRow(rt, outDesc, outRow, func() error {
						v, err := havingIns.Value(rt)
						keep = v
						return err
					})
					if err != nil {
						return nil, err
					}
					if !sql.IsTruthy(keep) {
						i = j
						continue
					}
				}

				out = append(out, outRow)
				i = j
			}
			return sql.NewSliceIter(out), nil
		},
	}, nil
}

func compareKeys(a, b []sql.Value) int {
	for i := range a {
		if c := sql.Compare(a[i], b[i], nil); c != 0 {
			return c
		}
	}
	return 0
}
