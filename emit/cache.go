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

// buildCache emits a pipelined cache: the first pass through Child is
// recorded row-by-row as it streams, and replayed from the buffer on
// every subsequent call. Buffering is abandoned once the row count
// reaches AbandonThreshold, after which this instruction just re-drives
// Child fresh on every call (§4.4, pipelined/abandon-on-threshold over
// an eager materializer).
func buildCache(ec *EmissionContext, node sql.RelationalNode) (*Instruction, error) {
	c := node.(*plan.Cache)
	childIns, err := ec.Registry.Build(ec, c.Child)
	if err != nil {
		return nil, err
	}
	state := &cacheState{threshold: c.AbandonThreshold}
	return &Instruction{
		Note: c.String(),
		Run: func(rt *Runtime, _ []sql.Value) (Output, error) {
			if state.abandoned {
				return childIns.RowIter(rt)
			}
			if state.complete {
				rows := make([]sql.Row, len(state.rows))
				copy(rows, state.rows)
				return sql.NewSliceIter(rows), nil
			}
			// A previous pass that was closed before exhaustion left a
			// partial buffer; start recording afresh.
			state.rows = nil
			child, err := childIns.RowIter(rt)
			if err != nil {
				return nil, err
			}
			return &recordingIter{child: child, state: state}, nil
		},
	}, nil
}

type cacheState struct {
	threshold int64
	rows      []sql.Row
	complete  bool
	abandoned bool
}

type recordingIter struct {
	child sql.RowIter
	state *cacheState
}

func (it *recordingIter) Next(ctx *sql.Context) (sql.Row, error) {
	row, err := it.child.Next(ctx)
	if err == sql.ErrIteratorDone {
		if !it.state.abandoned {
			it.state.complete = true
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if !it.state.abandoned {
		it.state.rows = append(it.state.rows, row)
		if int64(len(it.state.rows)) >= it.state.threshold {
			it.state.abandoned = true
			it.state.rows = nil
		}
	}
	return row, nil
}

func (it *recordingIter) Close(ctx *sql.Context) error { return it.child.Close(ctx) }

// buildWorkingTableScan reads whatever delta the enclosing RecursiveCTE
// has bound for this iteration via rt.CTEDeltas.
func buildWorkingTableScan(ec *EmissionContext, node sql.RelationalNode) (*Instruction, error) {
	w := node.(*plan.WorkingTableScan)
	return &Instruction{
		Note: w.String(),
		Run: func(rt *Runtime, _ []sql.Value) (Output, error) {
			rows := rt.CTEDeltas[w]
			cp := make([]sql.Row, len(rows))
			copy(cp, rows)
			return sql.NewSliceIter(cp), nil
		},
	}, nil
}

// buildRecursiveCTE drives semi-naive fixpoint evaluation: Anchor seeds
// the accumulated and delta sets; each iteration rebinds the delta for
// every WorkingTableScan found inside Recursive, evaluates Recursive
// against it, and folds the produced rows into the next delta, stopping
// when a pass adds nothing; if more than MaxIterations passes would be
// needed it fails with an internal error instead (§4.4, §9). Under
// UNION DISTINCT (the default), rows are deduped against everything seen
// so far; under UNION ALL (r.All) every produced row is kept and fed
// back into the next delta unconditionally.
func buildRecursiveCTE(ec *EmissionContext, node sql.RelationalNode) (*Instruction, error) {
	r := node.(*plan.RecursiveCTE)
	anchorIns, err := ec.Registry.Build(ec, r.Anchor)
	if err != nil {
		return nil, err
	}
	recursiveIns, err := ec.Registry.Build(ec, r.Recursive)
	if err != nil {
		return nil, err
	}
	targets := findWorkingTableScans(r.Recursive)
	collations := collationsFor(r.RelType())

	return &Instruction{
		Note: r.String(),
		Run: func(rt *Runtime, _ []sql.Value) (Output, error) {
			anchorIter, err := anchorIns.RowIter(rt)
			if err != nil {
				return nil, err
			}
			anchorRows, err := sql.RowIterToRows(rt.Ctx, anchorIter)
			if err != nil {
				return nil, err
			}

			var seen map[string]struct{}
			if !r.All {
				seen = make(map[string]struct{}, len(anchorRows))
			}
			var out []sql.Row
			delta := make([]sql.Row, 0, len(anchorRows))
			for _, row := range anchorRows {
				if !r.All {
					k := rowSetKey(row, collations)
					if _, ok := seen[k]; ok {
						continue
					}
					seen[k] = struct{}{}
				}
				out = append(out, row)
				delta = append(delta, row)
			}

			var iterations int64
			for len(delta) > 0 {
				iterations++
				if iterations > r.MaxIterations {
					return nil, sql.ErrInternal.New("recursive cte exceeded max iterations: " + r.Name)
				}
				if rt.CTEDeltas == nil {
					rt.CTEDeltas = make(map[*plan.WorkingTableScan][]sql.Row)
				}
				for _, w := range targets {
					rt.CTEDeltas[w] = delta
				}
				recIter, err := recursiveIns.RowIter(rt)
				if err != nil {
					return nil, err
				}
				produced, err := sql.RowIterToRows(rt.Ctx, recIter)
				if err != nil {
					return nil, err
				}
				next := make([]sql.Row, 0, len(produced))
				for _, row := range produced {
					if !r.All {
						k := rowSetKey(row, collations)
						if _, ok := seen[k]; ok {
							continue
						}
						seen[k] = struct{}{}
					}
					out = append(out, row)
					next = append(next, row)
				}
				delta = next
			}
			return sql.NewSliceIter(out), nil
		},
	}, nil
}

func findWorkingTableScans(n sql.RelationalNode) []*plan.WorkingTableScan {
	var out []*plan.WorkingTableScan
	if w, ok := n.(*plan.WorkingTableScan); ok {
		out = append(out, w)
	}
	for _, c := range n.Children() {
		out = append(out, findWorkingTableScans(c)...)
	}
	return out
}
