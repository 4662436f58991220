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
	"github.com/dolthub/quereus/plan"
	"github.com/dolthub/quereus/sql"
)

// buildSetOp materializes both sides (set operations need the whole of
// Right at minimum to test membership, and UNION/INTERSECT/EXCEPT all
// need full dedup bookkeeping anyway) and combines them per Kind.
func buildSetOp(ec *EmissionContext, node sql.RelationalNode) (*Instruction, error) {
	s := node.(*plan.SetOp)
	leftIns, err := ec.Registry.Build(ec, s.Left)
	if err != nil {
		return nil, err
	}
	rightIns, err := ec.Registry.Build(ec, s.Right)
	if err != nil {
		return nil, err
	}
	collations := collationsFor(s.Left.RelType())

	return &Instruction{
		Note: s.String(),
		Run: func(rt *Runtime, _ []sql.Value) (Output, error) {
			left, err := leftIns.RowIter(rt)
			if err != nil {
				return nil, err
			}
			leftRows, err := sql.RowIterToRows(rt.Ctx, left)
			if err != nil {
				return nil, err
			}
			right, err := rightIns.RowIter(rt)
			if err != nil {
				return nil, err
			}
			rightRows, err := sql.RowIterToRows(rt.Ctx, right)
			if err != nil {
				return nil, err
			}

			var out []sql.Row
			switch s.Kind {
			case plan.SetUnionAll:
				out = append(out, leftRows...)
				out = append(out, rightRows...)
			case plan.SetUnion:
				out = distinctRows(append(append([]sql.Row{}, leftRows...), rightRows...), collations)
			case plan.SetIntersect:
				rightKeys := rowKeySet(rightRows, collations)
				seen := make(map[string]struct{})
				for _, row := range leftRows {
					k := rowSetKey(row, collations)
					if _, ok := rightKeys[k]; !ok {
						continue
					}
					if _, ok := seen[k]; ok {
						continue
					}
					seen[k] = struct{}{}
					out = append(out, row)
				}
			case plan.SetExcept:
				rightKeys := rowKeySet(rightRows, collations)
				seen := make(map[string]struct{})
				for _, row := range leftRows {
					k := rowSetKey(row, collations)
					if _, ok := rightKeys[k]; ok {
						continue
					}
					if _, ok := seen[k]; ok {
						continue
					}
					seen[k] = struct{}{}
					out = append(out, row)
				}
			default:
				return nil, sql.ErrInternal.New("unknown set operation kind")
			}
			return sql.NewSliceIter(out), nil
		},
	}, nil
}

func rowKeySet(rows []sql.Row, collations []sql.CollationFn) map[string]struct{} {
	out := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		out[rowSetKey(row, collations)] = struct{}{}
	}
	return out
}
