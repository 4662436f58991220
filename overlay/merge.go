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

package overlay

import "github.com/dolthub/quereus/sql"

// Query resolves a scan against the connection's merged view when a
// transaction is open, or straight against the underlying table
// otherwise (autocommit read, nothing to merge). The merge always walks
// full ordered scans of both sides; index selection on plan is applied
// afterwards as a filter over the merged sequence rather than pushed
// into either side — this keeps the merge iterator itself simple at the
// cost of not exploiting the wrapped module's own index on a point
// lookup made during an open transaction.
func (t *Table) Query(ctx *sql.Context, plan sql.ScanPlan) (sql.RowIter, error) {
	cs, ok := t.active(ctx)
	if !ok {
		return t.underlying.Query(ctx, plan)
	}
	underIter, err := t.underlying.Query(ctx, sql.ScanPlan{Direction: plan.Direction})
	if err != nil {
		return nil, err
	}
	overIter, err := cs.overlay.Query(ctx, sql.ScanPlan{Direction: plan.Direction})
	if err != nil {
		_ = underIter.Close(ctx)
		return nil, err
	}
	cmp := pkCompare(t.schema)
	cols := pkColumns(t.schema)
	merged := &mergeIter{
		under: underIter, over: overIter, cmp: cmp, pkCols: cols,
		tombstoneIdx: len(t.schema.Columns), descending: plan.Direction == sql.Descending,
	}
	return &planFilterIter{inner: merged, plan: plan, cmp: cmp, cols: cols}, nil
}

// mergeIter is the §4.8 k-way (here two-way) merge: it pulls lazily from
// two primary-key-ordered sequences — the wrapped module's committed rows
// and the connection's overlay — comparing keys as they arrive. On a key
// present only on one side, that row passes through (dropped if it is a
// tombstone). On a key present on both sides, the overlay row wins; if it
// is a tombstone, both rows are silently consumed and neither is
// surfaced. Closing the iterator (whether by exhaustion or by the
// wrapping planFilterIter terminating early on an upper bound) releases
// both underlying inputs.
type mergeIter struct {
	under, over             sql.RowIter
	cmp                     func(a, b sql.Row) int
	pkCols                  []int
	tombstoneIdx            int
	descending              bool
	underRow, overRow       sql.Row
	underOK, overOK         bool
	underPrimed, overPrimed bool
}

func (m *mergeIter) pullUnder(ctx *sql.Context) error {
	if m.underPrimed {
		return nil
	}
	row, err := m.under.Next(ctx)
	if err == sql.ErrIteratorDone {
		m.underOK = false
	} else if err != nil {
		return err
	} else {
		m.underRow, m.underOK = row, true
	}
	m.underPrimed = true
	return nil
}

func (m *mergeIter) pullOver(ctx *sql.Context) error {
	if m.overPrimed {
		return nil
	}
	row, err := m.over.Next(ctx)
	if err == sql.ErrIteratorDone {
		m.overOK = false
	} else if err != nil {
		return err
	} else {
		m.overRow, m.overOK = row, true
	}
	m.overPrimed = true
	return nil
}

func (m *mergeIter) Next(ctx *sql.Context) (sql.Row, error) {
	for {
		if err := m.pullUnder(ctx); err != nil {
			return nil, err
		}
		if err := m.pullOver(ctx); err != nil {
			return nil, err
		}
		if !m.underOK && !m.overOK {
			return nil, sql.ErrIteratorDone
		}
		if !m.overOK {
			row := m.underRow
			m.underPrimed = false
			return row, nil
		}
		if !m.underOK {
			row := m.overRow
			m.overPrimed = false
			if tomb, _ := row[m.tombstoneIdx].(bool); tomb {
				continue
			}
			return row[:m.tombstoneIdx], nil
		}

		c := m.cmp(pkOf(m.underRow, m.pkCols), pkOf(m.overRow, m.pkCols))
		if m.descending {
			c = -c
		}
		switch {
		case c < 0:
			row := m.underRow
			m.underPrimed = false
			return row, nil
		case c > 0:
			row := m.overRow
			m.overPrimed = false
			if tomb, _ := row[m.tombstoneIdx].(bool); tomb {
				continue
			}
			return row[:m.tombstoneIdx], nil
		default:
			row := m.overRow
			m.underPrimed = false
			m.overPrimed = false
			if tomb, _ := row[m.tombstoneIdx].(bool); tomb {
				continue
			}
			return row[:m.tombstoneIdx], nil
		}
	}
}

func (m *mergeIter) Close(ctx *sql.Context) error {
	err1 := m.under.Close(ctx)
	err2 := m.over.Close(ctx)
	if err1 != nil {
		return err1
	}
	return err2
}

// planFilterIter applies a ScanPlan's equality/range bounds over an
// already-merged, already-ordered sequence, terminating (and releasing
// its inner iterator) as soon as the upper bound is passed.
type planFilterIter struct {
	inner sql.RowIter
	plan  sql.ScanPlan
	cmp   func(a, b sql.Row) int
	cols  []int
	done  bool
}

func (p *planFilterIter) Next(ctx *sql.Context) (sql.Row, error) {
	if p.done {
		return nil, sql.ErrIteratorDone
	}
	for {
		row, err := p.inner.Next(ctx)
		if err != nil {
			if err == sql.ErrIteratorDone {
				p.done = true
			}
			return nil, err
		}
		key := pkOf(row, p.cols)
		if len(p.plan.Equality) > 0 {
			if p.cmp(key, p.plan.Equality) != 0 {
				continue
			}
			return row, nil
		}
		if p.plan.Lower != nil {
			c := p.cmp(key, p.plan.Lower)
			if c < 0 || (c == 0 && !p.plan.LowerIncl) {
				continue
			}
		}
		if p.plan.Upper != nil {
			c := p.cmp(key, p.plan.Upper)
			if c > 0 || (c == 0 && !p.plan.UpperIncl) {
				p.done = true
				_ = p.inner.Close(ctx)
				return nil, sql.ErrIteratorDone
			}
		}
		return row, nil
	}
}

func (p *planFilterIter) Close(ctx *sql.Context) error {
	if p.done {
		return nil
	}
	return p.inner.Close(ctx)
}
