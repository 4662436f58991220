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

func (t *Table) Schema() *sql.TableSchema { return t.schema }

func (t *Table) newTxnLocked() *txn {
	secs := make(map[string]*btree.BTreeG[secondaryEntry], len(t.secondaries))
	for name, s := range t.secondaries {
		secs[name] = s.tree.Copy()
	}
	return &txn{
		primary:     t.primary.Copy(),
		secondaries: secs,
		savepoints:  make(map[string]savepoint),
	}
}

// dropOrderAfter keeps name and everything established before it,
// returning the truncated slice and the names established after it
// (which are no longer reachable once a RollbackTo supersedes them).
func dropOrderAfter(order []string, name string) (kept, dropped []string) {
	for i, n := range order {
		if n == name {
			return order[:i+1], order[i+1:]
		}
	}
	return order, nil
}

// removeFromOrder deletes name from order, preserving the order of the
// remaining entries.
func removeFromOrder(order []string, name string) []string {
	for i, n := range order {
		if n == name {
			return append(order[:i:i], order[i+1:]...)
		}
	}
	return order
}

// Begin opens a transaction for ctx's connection: an O(1) Copy() of the
// current committed trees, giving this connection a stable snapshot no
// other connection's concurrent writes can mutate (§4.6 connection-scoped
// read-layer snapshot isolation).
func (t *Table) Begin(ctx *sql.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, active := t.conns[ctx.ConnectionID]; active {
		return sql.ErrMisuse.New("transaction already active on this connection")
	}
	t.conns[ctx.ConnectionID] = t.newTxnLocked()
	return nil
}

func (t *Table) activeTxn(connID uint32) (*txn, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tx, ok := t.conns[connID]
	return tx, ok
}

// Commit folds the connection's working trees back into the committed
// base and drops the connection's transaction. A second writer's commit
// racing this one simply overwrites base with its own (later) snapshot;
// the engine's single-threaded-per-connection cooperative model (§5)
// serializes commits through the caller, so this lock only protects
// against concurrent connections, not concurrent statements on one.
func (t *Table) Commit(ctx *sql.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	tx, ok := t.conns[ctx.ConnectionID]
	if !ok {
		return sql.ErrMisuse.New("no active transaction")
	}
	t.primary = tx.primary
	for name, tr := range tx.secondaries {
		if s, ok := t.secondaries[name]; ok {
			s.tree = tr
		}
	}
	delete(t.conns, ctx.ConnectionID)
	return nil
}

// Rollback simply discards the connection's working trees; the
// committed base was never touched.
func (t *Table) Rollback(ctx *sql.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.conns[ctx.ConnectionID]; !ok {
		return sql.ErrMisuse.New("no active transaction")
	}
	delete(t.conns, ctx.ConnectionID)
	return nil
}

// Savepoint records an O(1) Copy() of the connection's current working
// trees under name, overwriting any prior savepoint of the same name.
func (t *Table) Savepoint(ctx *sql.Context, name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	tx, ok := t.conns[ctx.ConnectionID]
	if !ok {
		return sql.ErrMisuse.New("no active transaction")
	}
	secs := make(map[string]*btree.BTreeG[secondaryEntry], len(tx.secondaries))
	for k, v := range tx.secondaries {
		secs[k] = v.Copy()
	}
	if _, exists := tx.savepoints[name]; exists {
		tx.order = removeFromOrder(tx.order, name)
	}
	tx.savepoints[name] = savepoint{primary: tx.primary.Copy(), secondaries: secs}
	tx.order = append(tx.order, name)
	return nil
}

// Release drops a savepoint without affecting the connection's current
// working trees (its changes since the savepoint stay pending commit).
func (t *Table) Release(ctx *sql.Context, name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	tx, ok := t.conns[ctx.ConnectionID]
	if !ok {
		return sql.ErrMisuse.New("no active transaction")
	}
	if _, ok := tx.savepoints[name]; !ok {
		return sql.ErrMisuse.New("no such savepoint: " + name)
	}
	delete(tx.savepoints, name)
	tx.order = removeFromOrder(tx.order, name)
	return nil
}

// RollbackTo restores the connection's working trees to the state
// recorded at Savepoint(name); later savepoints taken after name are
// dropped, matching SQL savepoint-stack semantics.
func (t *Table) RollbackTo(ctx *sql.Context, name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	tx, ok := t.conns[ctx.ConnectionID]
	if !ok {
		return sql.ErrMisuse.New("no active transaction")
	}
	sp, ok := tx.savepoints[name]
	if !ok {
		return sql.ErrMisuse.New("no such savepoint: " + name)
	}
	tx.primary = sp.primary.Copy()
	secs := make(map[string]*btree.BTreeG[secondaryEntry], len(sp.secondaries))
	for k, v := range sp.secondaries {
		secs[k] = v.Copy()
	}
	tx.secondaries = secs

	kept, dropped := dropOrderAfter(tx.order, name)
	tx.order = kept
	for _, n := range dropped {
		delete(tx.savepoints, n)
	}
	return nil
}

func (t *Table) Rename(ctx *sql.Context, newName string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.schema.TableName = newName
	return nil
}

func (t *Table) CreateIndex(ctx *sql.Context, idx sql.IndexSchema) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	cmp := buildSecondaryCompare(t.schema, idx)
	tr := btree.NewBTreeG(secondaryLess(cmp))
	cols := make([]int, len(idx.Columns))
	for i, c := range idx.Columns {
		cols[i] = c.ColumnIndex
	}
	t.primary.Scan(func(e rowEntry) bool {
		tr.Set(secondaryEntry{indexKey: rowKey(e.row, cols), pk: e.key})
		return true
	})
	t.secondaries[idx.Name] = &secondary{schema: idx, compare: cmp, tree: tr}
	t.schema.SecondaryKeys = append(t.schema.SecondaryKeys, idx)
	return nil
}

func (t *Table) DropIndex(ctx *sql.Context, name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.secondaries, name)
	for i, idx := range t.schema.SecondaryKeys {
		if idx.Name == name {
			t.schema.SecondaryKeys = append(t.schema.SecondaryKeys[:i], t.schema.SecondaryKeys[i+1:]...)
			break
		}
	}
	return nil
}

// AlterSchema applies an add/drop/rename-column DDL change to both the
// schema and every stored row (under exclusive lock — DDL is not
// transactional in this engine, matching the teacher's own treatment of
// schema changes as immediate, non-rollback-able operations).
func (t *Table) AlterSchema(ctx *sql.Context, change sql.SchemaChange) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch change.Kind {
	case sql.AddColumn:
		t.schema.Columns = append(t.schema.Columns, change.Column)
		newPrimary := btree.NewBTreeG(pkLess(t.pkCompare))
		t.primary.Scan(func(e rowEntry) bool {
			e.row = append(append(sql.Row{}, e.row...), nil)
			newPrimary.Set(e)
			return true
		})
		t.primary = newPrimary
	case sql.DropColumn:
		idx := t.schema.ColumnIndex(change.OldName)
		if idx < 0 {
			return sql.ErrMisuse.New("no such column: " + change.OldName)
		}
		t.schema.Columns = append(t.schema.Columns[:idx], t.schema.Columns[idx+1:]...)
		newPrimary := btree.NewBTreeG(pkLess(t.pkCompare))
		t.primary.Scan(func(e rowEntry) bool {
			nr := append(append(sql.Row{}, e.row[:idx]...), e.row[idx+1:]...)
			e.row = nr
			newPrimary.Set(e)
			return true
		})
		t.primary = newPrimary
	case sql.RenameColumn:
		idx := t.schema.ColumnIndex(change.OldName)
		if idx < 0 {
			return sql.ErrMisuse.New("no such column: " + change.OldName)
		}
		t.schema.Columns[idx].Name = change.NewName
	}
	return nil
}

func (t *Table) Disconnect(ctx *sql.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.conns, ctx.ConnectionID)
	return nil
}
