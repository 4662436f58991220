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

import (
	"github.com/dolthub/quereus/memory"
	"github.com/dolthub/quereus/sql"
)

// connState holds one connection's live overlay while it has an open
// transaction on this table. The overlay table itself is destroyed as
// soon as the transaction ends (committed or rolled back), so an idle
// connection carries no overlay storage at all.
type connState struct {
	overlay sql.Table
}

// Table wraps one underlying sql.Table, dispatching reads/writes either
// straight through to it (no open transaction: autocommit) or through a
// merge against the connection's overlay (open transaction).
type Table struct {
	schema     *sql.TableSchema
	underlying sql.Table
	overlays   *memory.Module
	conns      map[uint32]*connState
}

func (t *Table) Schema() *sql.TableSchema { return t.schema }

func pkColumns(schema *sql.TableSchema) []int {
	cols := make([]int, len(schema.PrimaryKey))
	for i, pk := range schema.PrimaryKey {
		cols[i] = pk.ColumnIndex
	}
	return cols
}

func pkCompare(schema *sql.TableSchema) func(a, b sql.Row) int {
	keys := make([]sql.SortKey, len(schema.PrimaryKey))
	for i, pk := range schema.PrimaryKey {
		var collation sql.CollationFn
		if pk.Collation != "" {
			collation = sql.ResolveCollation(pk.Collation)
		}
		keys[i] = sql.SortKey{ColumnIndex: i, Descending: pk.Direction == sql.Descending, Collation: collation}
	}
	return sql.RowCompareFn(keys)
}

func pkOf(row sql.Row, cols []int) sql.Row {
	key := make(sql.Row, len(cols))
	for i, c := range cols {
		key[i] = row[c]
	}
	return key
}

// Begin lazily materializes this connection's overlay table (a fresh,
// empty memory-backed table with one extra tombstone column) and opens a
// transaction on it. Every subsequent Query/Update for this connection
// merges against or writes into that overlay until Commit or Rollback.
func (t *Table) Begin(ctx *sql.Context) error {
	if _, active := t.conns[ctx.ConnectionID]; active {
		return sql.ErrMisuse.New("transaction already active on this connection")
	}
	overlaySchema := buildOverlaySchema(t.schema, overlayTableName(ctx.ConnectionID))
	overlayTbl, err := t.overlays.Create(ctx, overlaySchema)
	if err != nil {
		return err
	}
	if err := overlayTbl.Begin(ctx); err != nil {
		return err
	}
	t.conns[ctx.ConnectionID] = &connState{overlay: overlayTbl}
	return nil
}

func (t *Table) active(ctx *sql.Context) (*connState, bool) {
	cs, ok := t.conns[ctx.ConnectionID]
	return cs, ok
}

// Commit folds the connection's overlay into the underlying module: every
// live (non-tombstoned) row is upserted, every tombstoned key is deleted.
// The overlay table is then destroyed.
func (t *Table) Commit(ctx *sql.Context) error {
	cs, ok := t.active(ctx)
	if !ok {
		return sql.ErrMisuse.New("no active transaction")
	}
	if err := cs.overlay.Commit(ctx); err != nil {
		return err
	}
	cols := pkColumns(t.schema)
	tombstoneIdx := len(t.schema.Columns)
	iter, err := cs.overlay.Query(ctx, sql.ScanPlan{})
	if err != nil {
		return err
	}
	rows, err := sql.RowIterToRows(ctx, iter)
	if err != nil {
		return err
	}
	for _, row := range rows {
		key := pkOf(row, cols)
		if tombstoned, _ := row[tombstoneIdx].(bool); tombstoned {
			if _, err := t.underlying.Update(ctx, sql.Mutation{Operation: sql.MutationDelete, OldKeyValues: key}); err != nil {
				return err
			}
			continue
		}
		values := append(sql.Row{}, row[:tombstoneIdx]...)
		res, err := t.underlying.Update(ctx, sql.Mutation{
			Operation: sql.MutationUpdate, OldKeyValues: key, NewValues: values, OnConflict: sql.ConflictReplace,
		})
		if err != nil {
			return err
		}
		if !res.Applied {
			// The key is new to the underlying table: insert it instead.
			if _, err := t.underlying.Update(ctx, sql.Mutation{Operation: sql.MutationInsert, NewValues: values}); err != nil {
				return err
			}
		}
	}
	delete(t.conns, ctx.ConnectionID)
	return t.overlays.Destroy(ctx, cs.overlay.Schema())
}

// Rollback discards the connection's overlay untouched.
func (t *Table) Rollback(ctx *sql.Context) error {
	cs, ok := t.active(ctx)
	if !ok {
		return sql.ErrMisuse.New("no active transaction")
	}
	delete(t.conns, ctx.ConnectionID)
	return t.overlays.Destroy(ctx, cs.overlay.Schema())
}

func (t *Table) Savepoint(ctx *sql.Context, name string) error {
	cs, ok := t.active(ctx)
	if !ok {
		return sql.ErrMisuse.New("no active transaction")
	}
	return cs.overlay.Savepoint(ctx, name)
}

func (t *Table) Release(ctx *sql.Context, name string) error {
	cs, ok := t.active(ctx)
	if !ok {
		return sql.ErrMisuse.New("no active transaction")
	}
	return cs.overlay.Release(ctx, name)
}

func (t *Table) RollbackTo(ctx *sql.Context, name string) error {
	cs, ok := t.active(ctx)
	if !ok {
		return sql.ErrMisuse.New("no active transaction")
	}
	return cs.overlay.RollbackTo(ctx, name)
}

func (t *Table) Rename(ctx *sql.Context, newName string) error {
	t.schema.TableName = newName
	return t.underlying.Rename(ctx, newName)
}

func (t *Table) CreateIndex(ctx *sql.Context, idx sql.IndexSchema) error {
	return t.underlying.CreateIndex(ctx, idx)
}

func (t *Table) DropIndex(ctx *sql.Context, name string) error {
	return t.underlying.DropIndex(ctx, name)
}

func (t *Table) AlterSchema(ctx *sql.Context, change sql.SchemaChange) error {
	return t.underlying.AlterSchema(ctx, change)
}

func (t *Table) Disconnect(ctx *sql.Context) error {
	if cs, ok := t.active(ctx); ok {
		delete(t.conns, ctx.ConnectionID)
		_ = t.overlays.Destroy(ctx, cs.overlay.Schema())
	}
	return t.underlying.Disconnect(ctx)
}
