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
	"github.com/mitchellh/hashstructure"

	"github.com/dolthub/quereus/expr"
	"github.com/dolthub/quereus/plan"
	"github.com/dolthub/quereus/sql"
)

func buildJoin(ec *EmissionContext, node sql.RelationalNode) (*Instruction, error) {
	j := node.(*plan.Join)
	if j.Kind != plan.JoinInner && j.Kind != plan.JoinLeft && j.Kind != plan.JoinSemi && j.Kind != plan.JoinAnti {
		return nil, sql.ErrUnsupported.New("RIGHT and FULL OUTER joins are not supported")
	}
	leftIns, err := ec.Registry.Build(ec, j.Left)
	if err != nil {
		return nil, err
	}
	rightIns, err := ec.Registry.Build(ec, j.Right)
	if err != nil {
		return nil, err
	}
	leftDesc := sql.NewRowDescriptor(j.Left.Attributes())
	rightDesc := sql.NewRowDescriptor(j.Right.Attributes())
	rightWidth := len(j.Right.RelType().Columns)

	if j.Strategy == plan.StrategyHash {
		isLeftAttr := attrSet(j.Left.Attributes())
		pairs, residual := extractEquiJoin(j.Predicate, isLeftAttr)
		if len(pairs) > 0 {
			return buildHashJoin(j, leftIns, rightIns, leftDesc, rightDesc, rightWidth, pairs, residual)
		}
	}

	predIns, err := Scalar(j.Predicate)
	if err != nil {
		return nil, err
	}
	return &Instruction{
		Note: j.String(),
		Run: func(rt *Runtime, _ []sql.Value) (Output, error) {
			left, err := leftIns.RowIter(rt)
			if err != nil {
				return nil, err
			}
			return &nestedLoopIter{
				rt: rt, kind: j.Kind, left: left, rightIns: rightIns,
				leftDesc: leftDesc, rightDesc: rightDesc, rightWidth: rightWidth, pred: predIns,
			}, nil
		},
	}, nil
}

func attrSet(attrs []sql.Attribute) func(sql.Attribute) bool {
	m := make(map[sql.Attribute]bool, len(attrs))
	for _, a := range attrs {
		m[a] = true
	}
	return func(a sql.Attribute) bool { return m[a] }
}

func splitConjuncts(n sql.ScalarNode) []sql.ScalarNode {
	if lg, ok := n.(*expr.Logical); ok && lg.Op == expr.LogAnd {
		return append(splitConjuncts(lg.Left), splitConjuncts(lg.Right)...)
	}
	return []sql.ScalarNode{n}
}

func combineConjuncts(list []sql.ScalarNode) sql.ScalarNode {
	if len(list) == 0 {
		return nil
	}
	result := list[0].(expr.Expr)
	for _, n := range list[1:] {
		result = expr.NewLogical(expr.LogAnd, result, n.(expr.Expr))
	}
	return result
}

type equiPair struct{ left, right expr.Expr }

// extractEquiJoin splits predicate's top-level AND chain into equality
// comparisons between one left-side and one right-side GetField (the
// join's hashable equi columns) plus whatever residual (non-equi)
// conjuncts remain (§4.4 "applying any residual (non-equi) predicate").
func extractEquiJoin(predicate sql.ScalarNode, isLeftAttr func(sql.Attribute) bool) ([]equiPair, sql.ScalarNode) {
	var pairs []equiPair
	var keep []sql.ScalarNode
	for _, c := range splitConjuncts(predicate) {
		cmp, ok := c.(*expr.Comparison)
		if !ok || cmp.Op != expr.CmpEQ {
			keep = append(keep, c)
			continue
		}
		lf, lok := cmp.Left.(*expr.GetField)
		rf, rok := cmp.Right.(*expr.GetField)
		if !lok || !rok {
			keep = append(keep, c)
			continue
		}
		switch {
		case isLeftAttr(lf.Attribute) && !isLeftAttr(rf.Attribute):
			pairs = append(pairs, equiPair{left: lf, right: rf})
		case isLeftAttr(rf.Attribute) && !isLeftAttr(lf.Attribute):
			pairs = append(pairs, equiPair{left: rf, right: lf})
		default:
			keep = append(keep, c)
		}
	}
	return pairs, combineConjuncts(keep)
}

// nestedLoopIter drives the left stream and, for each left row, re-opens
// the right side from scratch via rightIns (the optimizer wraps Right in
// a Cache node when it is worth buffering, §4.4).
type nestedLoopIter struct {
	rt         *Runtime
	kind       plan.JoinKind
	left       sql.RowIter
	rightIns   *Instruction
	leftDesc   *sql.RowDescriptor
	rightDesc  *sql.RowDescriptor
	rightWidth int
	pred       *Instruction

	right      sql.RowIter
	leftRow    sql.Row
	leftMatched bool
	leftDone   bool
}

func (it *nestedLoopIter) Next(ctx *sql.Context) (sql.Row, error) {
	for {
		if it.right == nil {
			row, err := it.left.Next(ctx)
			if err == sql.ErrIteratorDone {
				it.leftDone = true
				return nil, sql.ErrIteratorDone
			}
			if err != nil {
				return nil, err
			}
			it.leftRow = row
			it.leftMatched = false
			right, err := it.rightIns.RowIter(it.rt)
			if err != nil {
				return nil, err
			}
			it.right = right
		}

		rrow, err := it.right.Next(ctx)
		if err == sql.ErrIteratorDone {
			_ = it.right.Close(ctx)
			it.right = nil
			if (it.kind == plan.JoinLeft && !it.leftMatched) {
				return append(append(sql.Row{}, it.leftRow...), make(sql.Row, it.rightWidth)...), nil
			}
			if it.kind == plan.JoinAnti && !it.leftMatched {
				return append(sql.Row{}, it.leftRow...), nil
			}
			continue
		}
		if err != nil {
			return nil, err
		}

		var matched sql.Value
		evalErr := bindings2helper(it.rt, it.leftDesc, it.leftRow, it.rightDesc, rrow, func() error {
			v, e := it.pred.Value(it.rt)
			matched = v
			return e
		})
		if evalErr != nil {
			return nil, evalErr
		}
		if !sql.IsTruthy(matched) {
			continue
		}
		it.leftMatched = true
		switch it.kind {
		case plan.JoinSemi:
			_ = it.right.Close(ctx)
			it.right = nil
			return append(sql.Row{}, it.leftRow...), nil
		case plan.JoinAnti:
			continue
		default:
			out := append(append(sql.Row{}, it.leftRow...), rrow...)
			return out, nil
		}
	}
}

func (it *nestedLoopIter) Close(ctx *sql.Context) error {
	if it.right != nil {
		_ = it.right.Close(ctx)
	}
	return it.left.Close(ctx)
}

// bindings2helper pushes two row bindings (left then right, so right shadows
// left only for attributes right itself owns — the two attribute sets
// never overlap since ids are unique across the whole plan) for the
// duration of fn.
func bindings2helper(rt *Runtime, d1 *sql.RowDescriptor, r1 sql.Row, d2 *sql.RowDescriptor, r2 sql.Row, fn func() error) error {
	rt.Bindings.Push(sql.Binding{Descriptor: d1, Row: r1})
	rt.Bindings.Push(sql.Binding{Descriptor: d2, Row: r2})
	err := fn()
	rt.Bindings.Pop()
	rt.Bindings.Pop()
	return err
}

func buildHashJoin(j *plan.Join, leftIns, rightIns *Instruction, leftDesc, rightDesc *sql.RowDescriptor, rightWidth int, pairs []equiPair, residual sql.ScalarNode) (*Instruction, error) {
	leftKeys := make([]*Instruction, len(pairs))
	rightKeys := make([]*Instruction, len(pairs))
	for i, p := range pairs {
		var err error
		leftKeys[i], err = Scalar(p.left)
		if err != nil {
			return nil, err
		}
		rightKeys[i], err = Scalar(p.right)
		if err != nil {
			return nil, err
		}
	}
	var residualIns *Instruction
	if residual != nil {
		var err error
		residualIns, err = Scalar(residual)
		if err != nil {
			return nil, err
		}
	}
	return &Instruction{
		Note: j.String() + "(hash)",
		Run: func(rt *Runtime, _ []sql.Value) (Output, error) {
			right, err := rightIns.RowIter(rt)
			if err != nil {
				return nil, err
			}
			buckets := make(map[uint64][]sql.Row)
			for {
				rrow, err := right.Next(rt.Ctx)
				if err == sql.ErrIteratorDone {
					break
				}
				if err != nil {
					_ = right.Close(rt.Ctx)
					return nil, err
				}
				key, hasNull, err := hashRowKey(rt, rightDesc, rrow, rightKeys)
				if err != nil {
					_ = right.Close(rt.Ctx)
					return nil, err
				}
				if hasNull {
					continue
				}
				buckets[key] = append(buckets[key], rrow)
			}
			_ = right.Close(rt.Ctx)

			left, err := leftIns.RowIter(rt)
			if err != nil {
				return nil, err
			}
			return &hashJoinIter{
				rt: rt, kind: j.Kind, left: left, buckets: buckets,
				leftDesc: leftDesc, rightDesc: rightDesc, rightWidth: rightWidth,
				leftKeys: leftKeys, residual: residualIns,
			}, nil
		},
	}, nil
}

// hashRowKey tags each equi-key value with its dynamic type before hashing
// (e.g. int64(1) and "1" never collide into the same bucket). hasNull
// reports whether any key component was SQL NULL; per three-valued-logic
// equality a null component can never match, so callers skip both
// inserting and probing such rows rather than hashing them at all.
func hashRowKey(rt *Runtime, desc *sql.RowDescriptor, row sql.Row, keyIns []*Instruction) (key uint64, hasNull bool, err error) {
	tagged := make([]interface{}, len(keyIns)*2)
	err = bindRow(rt, desc, row, func() error {
		for i, k := range keyIns {
			v, err := k.Value(rt)
			if err != nil {
				return err
			}
			if v == nil {
				hasNull = true
				return nil
			}
			tagged[i*2] = sql.ValueToText(v)
			tagged[i*2+1] = typeTag(v)
		}
		return nil
	})
	if err != nil || hasNull {
		return 0, hasNull, err
	}
	h, err := hashstructure.Hash(tagged, nil)
	if err != nil {
		return 0, false, err
	}
	return h, false, nil
}

func typeTag(v sql.Value) string {
	switch v.(type) {
	case int64:
		return "i"
	case float64:
		return "f"
	case string:
		return "s"
	case []byte:
		return "b"
	case bool:
		return "x"
	default:
		return "?"
	}
}

type hashJoinIter struct {
	rt         *Runtime
	kind       plan.JoinKind
	left       sql.RowIter
	buckets    map[uint64][]sql.Row
	leftDesc   *sql.RowDescriptor
	rightDesc  *sql.RowDescriptor
	rightWidth int
	leftKeys   []*Instruction
	residual   *Instruction

	candidates []sql.Row
	ci         int
	leftRow    sql.Row
	matched    bool
}

func (it *hashJoinIter) Next(ctx *sql.Context) (sql.Row, error) {
	for {
		if it.candidates == nil {
			row, err := it.left.Next(ctx)
			if err == sql.ErrIteratorDone {
				return nil, sql.ErrIteratorDone
			}
			if err != nil {
				return nil, err
			}
			it.leftRow = row
			it.matched = false
			key, hasNull, err := hashRowKey(it.rt, it.leftDesc, row, it.leftKeys)
			if err != nil {
				return nil, err
			}
			if hasNull {
				it.candidates = []sql.Row{}
			} else {
				it.candidates = it.buckets[key]
				if it.candidates == nil {
					it.candidates = []sql.Row{}
				}
			}
			it.ci = 0
		}

		if it.ci >= len(it.candidates) {
			it.candidates = nil
			if it.kind == plan.JoinLeft && !it.matched {
				return append(append(sql.Row{}, it.leftRow...), make(sql.Row, it.rightWidth)...), nil
			}
			if it.kind == plan.JoinAnti && !it.matched {
				return append(sql.Row{}, it.leftRow...), nil
			}
			continue
		}

		rrow := it.candidates[it.ci]
		it.ci++

		if it.residual != nil {
			var ok sql.Value
			err := bindings2helper(it.rt, it.leftDesc, it.leftRow, it.rightDesc, rrow, func() error {
				v, e := it.residual.Value(it.rt)
				ok = v
				return e
			})
			if err != nil {
				return nil, err
			}
			if !sql.IsTruthy(ok) {
				continue
			}
		}

		it.matched = true
		switch it.kind {
		case plan.JoinSemi:
			it.candidates = nil
			return append(sql.Row{}, it.leftRow...), nil
		case plan.JoinAnti:
			continue
		default:
			return append(append(sql.Row{}, it.leftRow...), rrow...), nil
		}
	}
}

func (it *hashJoinIter) Close(ctx *sql.Context) error { return it.left.Close(ctx) }
