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

// Update applies one mutation against the connection's open transaction
// tree (or, outside a transaction, directly against the committed base
// under exclusive lock — an implicit single-statement autocommit). On
// success it maintains every secondary index and, when the table has a
// sink, publishes the corresponding change event.
func (t *Table) Update(ctx *sql.Context, m sql.Mutation) (sql.UpdateResult, error) {
	if tx, ok := t.activeTxn(ctx.ConnectionID); ok {
		return t.applyMutation(ctx, tx.primary, tx.secondaries, m)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	secs := make(map[string]*btree.BTreeG[secondaryEntry], len(t.secondaries))
	for name, s := range t.secondaries {
		secs[name] = s.tree
	}
	res, err := t.applyMutation(ctx, t.primary, secs, m)
	for name, tr := range secs {
		t.secondaries[name].tree = tr
	}
	return res, err
}

func (t *Table) applyMutation(ctx *sql.Context, primary *btree.BTreeG[rowEntry], secondaries map[string]*btree.BTreeG[secondaryEntry], m sql.Mutation) (sql.UpdateResult, error) {
	switch m.Operation {
	case sql.MutationInsert:
		key := rowKey(m.NewValues, t.pkColumns)
		if _, exists := primary.Get(rowEntry{key: key}); exists {
			switch m.OnConflict {
			case sql.ConflictIgnore:
				return sql.UpdateResult{Applied: false}, nil
			case sql.ConflictReplace:
				// fall through to overwrite below
			default:
				return sql.UpdateResult{}, sql.ErrConstraint.New("duplicate primary key")
			}
		}
		primary.Set(rowEntry{key: key, row: m.NewValues})
		t.indexInsert(secondaries, key, m.NewValues)
		t.publish(ctx, sql.ChangeInsert, key, nil, m.NewValues)
		return sql.UpdateResult{RowsAffected: 1, Applied: true}, nil

	case sql.MutationUpdate:
		oldKey := rowKey(m.OldKeyValues, t.pkColumns)
		old, ok := primary.Get(rowEntry{key: oldKey})
		if !ok {
			return sql.UpdateResult{Applied: false}, nil
		}
		newKey := rowKey(m.NewValues, t.pkColumns)
		if t.pkCompare(oldKey, newKey) != 0 {
			if _, exists := primary.Get(rowEntry{key: newKey}); exists {
				return sql.UpdateResult{}, sql.ErrConstraint.New("duplicate primary key")
			}
			primary.Delete(rowEntry{key: oldKey})
		}
		primary.Set(rowEntry{key: newKey, row: m.NewValues})
		t.indexDelete(secondaries, oldKey, old.row)
		t.indexInsert(secondaries, newKey, m.NewValues)
		t.publish(ctx, sql.ChangeUpdate, newKey, old.row, m.NewValues)
		return sql.UpdateResult{RowsAffected: 1, Applied: true}, nil

	case sql.MutationDelete:
		key := rowKey(m.OldKeyValues, t.pkColumns)
		old, ok := primary.Delete(rowEntry{key: key})
		if !ok {
			return sql.UpdateResult{Applied: false}, nil
		}
		t.indexDelete(secondaries, key, old.row)
		t.publish(ctx, sql.ChangeDelete, key, old.row, nil)
		return sql.UpdateResult{RowsAffected: 1, Applied: true}, nil
	}
	return sql.UpdateResult{}, sql.ErrInternal.New("unknown mutation operation")
}

func (t *Table) indexInsert(secondaries map[string]*btree.BTreeG[secondaryEntry], pk, row sql.Row) {
	for name, s := range t.secondaries {
		tr := secondaries[name]
		cols := make([]int, len(s.schema.Columns))
		for i, c := range s.schema.Columns {
			cols[i] = c.ColumnIndex
		}
		tr.Set(secondaryEntry{indexKey: rowKey(row, cols), pk: pk})
	}
}

func (t *Table) indexDelete(secondaries map[string]*btree.BTreeG[secondaryEntry], pk, row sql.Row) {
	for name, s := range t.secondaries {
		tr := secondaries[name]
		cols := make([]int, len(s.schema.Columns))
		for i, c := range s.schema.Columns {
			cols[i] = c.ColumnIndex
		}
		tr.Delete(secondaryEntry{indexKey: rowKey(row, cols), pk: pk})
	}
}

func (t *Table) publish(ctx *sql.Context, typ sql.ChangeEventType, pk, oldRow, newRow sql.Row) {
	if t.sink == nil {
		return
	}
	t.sink.Publish(ctx, sql.ChangeEvent{
		Type: typ, Schema: t.schema.SchemaName, Table: t.schema.TableName,
		PrimaryKey: pk, OldRow: oldRow, NewRow: newRow,
	})
}
