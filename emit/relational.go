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

	"github.com/dolthub/quereus/plan"
	"github.com/dolthub/quereus/sql"
)

// bindRow pushes row onto rt.Bindings under desc for the duration of fn,
// popping it afterward even on error. Every operator below that invokes
// a by-reference scalar instruction against one ambient row uses this.
func bindRow(rt *Runtime, desc *sql.RowDescriptor, row sql.Row, fn func() error) error {
	rt.Bindings.Push(sql.Binding{Descriptor: desc, Row: row})
	err := fn()
	rt.Bindings.Pop()
	return err
}

func buildFilter(ec *EmissionContext, node sql.RelationalNode) (*Instruction, error) {
	f := node.(*plan.Filter)
	childIns, err := ec.Registry.Build(ec, f.Child)
	if err != nil {
		return nil, err
	}
	predIns, err := Scalar(f.Predicate)
	if err != nil {
		return nil, err
	}
	desc := sql.NewRowDescriptor(f.Child.Attributes())
	return &Instruction{
		Note: f.String(),
		Run: func(rt *Runtime, _ []sql.Value) (Output, error) {
			child, err := childIns.RowIter(rt)
			if err != nil {
				return nil, err
			}
			return &filterIter{child: child, desc: desc, pred: predIns, rt: rt}, nil
		},
	}, nil
}

type filterIter struct {
	child sql.RowIter
	desc  *sql.RowDescriptor
	pred  *Instruction
	rt    *Runtime
}

func (it *filterIter) Next(ctx *sql.Context) (sql.Row, error) {
	for {
		row, err := it.child.Next(ctx)
		if err != nil {
			return nil, err
		}
		var val sql.Value
		err = bindRow(it.rt, it.desc, row, func() error {
			v, evalErr := it.pred.Value(it.rt)
			val = v
			return evalErr
		})
		if err != nil {
			return nil, err
		}
		if sql.IsTruthy(val) {
			return row, nil
		}
	}
}

func (it *filterIter) Close(ctx *sql.Context) error { return it.child.Close(ctx) }

func buildProject(ec *EmissionContext, node sql.RelationalNode) (*Instruction, error) {
	p := node.(*plan.Project)
	childIns, err := ec.Registry.Build(ec, p.Child)
	if err != nil {
		return nil, err
	}
	desc := sql.NewRowDescriptor(p.Child.Attributes())
	colIns := make([]*Instruction, len(p.Columns))
	for i, c := range p.Columns {
		colIns[i], err = Scalar(c.Expr)
		if err != nil {
			return nil, err
		}
	}
	return &Instruction{
		Note: p.String(),
		Run: func(rt *Runtime, _ []sql.Value) (Output, error) {
			child, err := childIns.RowIter(rt)
			if err != nil {
				return nil, err
			}
			return &projectIter{child: child, desc: desc, cols: colIns, rt: rt}, nil
		},
	}, nil
}

type projectIter struct {
	child sql.RowIter
	desc  *sql.RowDescriptor
	cols  []*Instruction
	rt    *Runtime
}

func (it *projectIter) Next(ctx *sql.Context) (sql.Row, error) {
	row, err := it.child.Next(ctx)
	if err != nil {
		return nil, err
	}
	out := make(sql.Row, len(it.cols))
	err = bindRow(it.rt, it.desc, row, func() error {
		for i, c := range it.cols {
			v, evalErr := c.Value(it.rt)
			if evalErr != nil {
				return evalErr
			}
			out[i] = v
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (it *projectIter) Close(ctx *sql.Context) error { return it.child.Close(ctx) }

func buildSort(ec *EmissionContext, node sql.RelationalNode) (*Instruction, error) {
	s := node.(*plan.Sort)
	childIns, err := ec.Registry.Build(ec, s.Child)
	if err != nil {
		return nil, err
	}
	cmp := sql.RowCompareFn(s.Keys)
	return &Instruction{
		Note: s.String(),
		Run: func(rt *Runtime, _ []sql.Value) (Output, error) {
			child, err := childIns.RowIter(rt)
			if err != nil {
				return nil, err
			}
			rows, err := sql.RowIterToRows(rt.Ctx, child)
			if err != nil {
				return nil, err
			}
			sort.SliceStable(rows, func(i, j int) bool { return cmp(rows[i], rows[j]) < 0 })
			return sql.NewSliceIter(rows), nil
		},
	}, nil
}

func buildDistinct(ec *EmissionContext, node sql.RelationalNode) (*Instruction, error) {
	d := node.(*plan.Distinct)
	childIns, err := ec.Registry.Build(ec, d.Child)
	if err != nil {
		return nil, err
	}
	rt0 := d.Child.RelType()
	collations := collationsFor(rt0)
	return &Instruction{
		Note: d.String(),
		Run: func(rt *Runtime, _ []sql.Value) (Output, error) {
			child, err := childIns.RowIter(rt)
			if err != nil {
				return nil, err
			}
			rows, err := sql.RowIterToRows(rt.Ctx, child)
			if err != nil {
				return nil, err
			}
			return sql.NewSliceIter(distinctRows(rows, collations)), nil
		},
	}, nil
}

// collationsFor returns one CollationFn per column of rt, resolved once
// at emit time so row dedup doesn't re-resolve collation names per row.
func collationsFor(rt sql.RelationType) []sql.CollationFn {
	out := make([]sql.CollationFn, len(rt.Columns))
	for i, c := range rt.Columns {
		out[i] = sql.ResolveCollation(c.Collation)
	}
	return out
}

// rowSetKey builds a full order-sensitive key as repeated NUL-joined text
// rendering of every column under its resolved collation, which is
// enough to dedup rows the way DISTINCT/UNION/INTERSECT/EXCEPT require:
// two rows compare equal for set purposes iff every column compares
// equal under its own collation (§4.4).
func rowSetKey(row sql.Row, collations []sql.CollationFn) string {
	var buf []byte
	for i, v := range row {
		if v == nil {
			buf = append(buf, 0, 0)
			continue
		}
		_ = collations[i] // collation affects comparison, not the identity key's text form for binary/nocase alike in practice; NOCASE columns fold here too.
		s := sql.ValueToText(v)
		if i < len(collations) && collations[i] != nil {
			// Fold case-insensitive collations into the key so NOCASE
			// columns treat 'a' and 'A' as one set member.
			if collations[i]("a", "A") == 0 {
				s = foldUpper(s)
			}
		}
		buf = append(buf, []byte(s)...)
		buf = append(buf, 0)
	}
	return string(buf)
}

func foldUpper(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r >= 'a' && r <= 'z' {
			r -= 'a' - 'A'
		}
		out = append(out, r)
	}
	return string(out)
}

func distinctRows(rows []sql.Row, collations []sql.CollationFn) []sql.Row {
	seen := make(map[string]struct{}, len(rows))
	out := make([]sql.Row, 0, len(rows))
	for _, r := range rows {
		k := rowSetKey(r, collations)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}

func buildLimit(ec *EmissionContext, node sql.RelationalNode) (*Instruction, error) {
	l := node.(*plan.Limit)
	childIns, err := ec.Registry.Build(ec, l.Child)
	if err != nil {
		return nil, err
	}
	return &Instruction{
		Note: l.String(),
		Run: func(rt *Runtime, _ []sql.Value) (Output, error) {
			child, err := childIns.RowIter(rt)
			if err != nil {
				return nil, err
			}
			return &limitIter{child: child, remainingOffset: l.Offset, hasCount: l.HasCount, remaining: l.Count}, nil
		},
	}, nil
}

type limitIter struct {
	child           sql.RowIter
	remainingOffset int64
	hasCount        bool
	remaining       int64
}

func (it *limitIter) Next(ctx *sql.Context) (sql.Row, error) {
	for it.remainingOffset > 0 {
		if _, err := it.child.Next(ctx); err != nil {
			return nil, err
		}
		it.remainingOffset--
	}
	if it.hasCount && it.remaining <= 0 {
		return nil, sql.ErrIteratorDone
	}
	row, err := it.child.Next(ctx)
	if err != nil {
		return nil, err
	}
	if it.hasCount {
		it.remaining--
	}
	return row, nil
}

func (it *limitIter) Close(ctx *sql.Context) error { return it.child.Close(ctx) }
