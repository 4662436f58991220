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

package memory

import (
	"github.com/tidwall/btree"

	"github.com/dolthub/quereus/sql"
)

// Query resolves a ScanPlan against either the connection's open
// transaction view or, outside a transaction, the committed base
// (autocommit read — a fresh read each call, since there is no snapshot
// to pin without a Begin).
func (t *Table) Query(ctx *sql.Context, plan sql.ScanPlan) (sql.RowIter, error) {
	t.mu.RLock()
	primary := t.primary
	secondaries := t.secondaries
	if tx, ok := t.conns[ctx.ConnectionID]; ok {
		primary = tx.primary
	}
	t.mu.RUnlock()

	if plan.Index == "" {
		return newPrimaryCursor(primary, plan, t.pkCompare), nil
	}

	var secTree *btree.BTreeG[secondaryEntry]
	var cmp func(a, b sql.Row) int
	if tx, ok := t.activeTxn(ctx.ConnectionID); ok {
		secTree = tx.secondaries[plan.Index]
		t.mu.RLock()
		if s, ok := t.secondaries[plan.Index]; ok {
			cmp = s.compare
		}
		t.mu.RUnlock()
	} else if s, ok := secondaries[plan.Index]; ok {
		secTree = s.tree
		cmp = s.compare
	}
	if secTree == nil {
		return nil, sql.ErrMisuse.New("no such index: " + plan.Index)
	}
	return newSecondaryCursor(secTree, primary, plan, cmp), nil
}

type rowsCollected struct {
	rows []sql.Row
	pos  int
}

func (c *rowsCollected) Next(ctx *sql.Context) (sql.Row, error) {
	if err := ctx.CheckCancelled(); err != nil {
		return nil, err
	}
	if c.pos >= len(c.rows) {
		return nil, sql.ErrIteratorDone
	}
	r := c.rows[c.pos]
	c.pos++
	return r, nil
}

func (c *rowsCollected) Close(ctx *sql.Context) error { return nil }

// newPrimaryCursor materializes the rows satisfying plan from the
// primary tree. The tree itself is immutable once handed to a cursor
// (further writer mutation copy-on-writes new nodes, §9), so a snapshot
// read never races a concurrent writer.
func newPrimaryCursor(tree *btree.BTreeG[rowEntry], plan sql.ScanPlan, cmp func(a, b sql.Row) int) sql.RowIter {
	var rows []sql.Row

	if len(plan.Equality) > 0 {
		if e, ok := tree.Get(rowEntry{key: plan.Equality}); ok {
			rows = append(rows, e.row)
		}
		return &rowsCollected{rows: rows}
	}

	visit := func(e rowEntry) bool {
		if plan.Lower != nil {
			c := cmp(e.key, plan.Lower)
			if c < 0 || (c == 0 && !plan.LowerIncl) {
				return true
			}
		}
		if plan.Upper != nil {
			c := cmp(e.key, plan.Upper)
			if c > 0 || (c == 0 && !plan.UpperIncl) {
				// A descending walk starts at Upper itself: skip it, don't stop.
				return plan.Direction == sql.Descending
			}
		}
		rows = append(rows, e.row)
		return true
	}

	if plan.Direction == sql.Descending {
		pivot := rowEntry{}
		if plan.Upper != nil {
			pivot = rowEntry{key: plan.Upper}
			tree.Descend(pivot, visit)
		} else {
			tree.Reverse(visit)
		}
	} else {
		pivot := rowEntry{}
		if plan.Lower != nil {
			pivot = rowEntry{key: plan.Lower}
			tree.Ascend(pivot, visit)
		} else {
			tree.Scan(visit)
		}
	}

	return &rowsCollected{rows: rows}
}

// newSecondaryCursor walks a secondary index tree and resolves each
// matching entry's primary key back to a full row via the primary tree.
func newSecondaryCursor(idx *btree.BTreeG[secondaryEntry], primary *btree.BTreeG[rowEntry], plan sql.ScanPlan, cmp func(a, b sql.Row) int) sql.RowIter {
	var rows []sql.Row
	resolve := func(pk sql.Row) {
		if e, ok := primary.Get(rowEntry{key: pk}); ok {
			rows = append(rows, e.row)
		}
	}

	if len(plan.Equality) > 0 {
		pivot := secondaryEntry{indexKey: plan.Equality}
		idx.Ascend(pivot, func(e secondaryEntry) bool {
			if cmp(e.indexKey, plan.Equality) != 0 {
				return false
			}
			resolve(e.pk)
			return true
		})
		return &rowsCollected{rows: rows}
	}

	visit := func(e secondaryEntry) bool {
		if plan.Lower != nil {
			if cmp(e.indexKey, plan.Lower) < 0 {
				return true
			}
		}
		if plan.Upper != nil {
			if c := cmp(e.indexKey, plan.Upper); c > 0 || (c == 0 && !plan.UpperIncl) {
				return false
			}
		}
		resolve(e.pk)
		return true
	}

	if plan.Direction == sql.Descending {
		idx.Reverse(visit)
	} else {
		idx.Scan(visit)
	}
	return &rowsCollected{rows: rows}
}
