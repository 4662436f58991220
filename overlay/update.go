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

// Update applies a mutation against the connection's overlay when a
// transaction is open (the underlying table is never touched until
// Commit), or straight through to the underlying table otherwise.
func (t *Table) Update(ctx *sql.Context, m sql.Mutation) (sql.UpdateResult, error) {
	cs, ok := t.active(ctx)
	if !ok {
		return t.underlying.Update(ctx, m)
	}
	cols := pkColumns(t.schema)
	switch m.Operation {
	case sql.MutationInsert:
		key := pkOf(m.NewValues, cols)
		_, found, err := t.lookup(ctx, cs, key)
		if err != nil {
			return sql.UpdateResult{}, err
		}
		if found {
			switch m.OnConflict {
			case sql.ConflictIgnore:
				return sql.UpdateResult{Applied: false}, nil
			case sql.ConflictReplace:
				// fall through to overwrite below
			default:
				return sql.UpdateResult{}, sql.ErrConstraint.New("duplicate primary key")
			}
		}
		return t.upsertOverlay(ctx, cs, m.NewValues)

	case sql.MutationUpdate:
		oldKey := pkOf(m.OldKeyValues, cols)
		_, found, err := t.lookup(ctx, cs, oldKey)
		if err != nil {
			return sql.UpdateResult{}, err
		}
		if !found {
			return sql.UpdateResult{Applied: false}, nil
		}
		newKey := pkOf(m.NewValues, cols)
		if pkCompare(t.schema)(oldKey, newKey) != 0 {
			if _, err := t.tombstone(ctx, cs, oldKey); err != nil {
				return sql.UpdateResult{}, err
			}
		}
		return t.upsertOverlay(ctx, cs, m.NewValues)

	case sql.MutationDelete:
		key := pkOf(m.OldKeyValues, cols)
		_, found, err := t.lookup(ctx, cs, key)
		if err != nil {
			return sql.UpdateResult{}, err
		}
		if !found {
			return sql.UpdateResult{Applied: false}, nil
		}
		return t.tombstone(ctx, cs, key)
	}
	return sql.UpdateResult{}, sql.ErrInternal.New("unknown mutation operation")
}

// lookup resolves the merged (overlay-over-underlying, tombstone-aware)
// value for key without materializing a full merge iterator — a
// connection's own writes are always checked one key at a time.
func (t *Table) lookup(ctx *sql.Context, cs *connState, key sql.Row) (sql.Row, bool, error) {
	tombstoneIdx := len(t.schema.Columns)
	oiter, err := cs.overlay.Query(ctx, sql.ScanPlan{Equality: key})
	if err != nil {
		return nil, false, err
	}
	orows, err := sql.RowIterToRows(ctx, oiter)
	if err != nil {
		return nil, false, err
	}
	if len(orows) > 0 {
		row := orows[0]
		if tomb, _ := row[tombstoneIdx].(bool); tomb {
			return nil, false, nil
		}
		return row[:tombstoneIdx], true, nil
	}
	uiter, err := t.underlying.Query(ctx, sql.ScanPlan{Equality: key})
	if err != nil {
		return nil, false, err
	}
	urows, err := sql.RowIterToRows(ctx, uiter)
	if err != nil {
		return nil, false, err
	}
	if len(urows) > 0 {
		return urows[0], true, nil
	}
	return nil, false, nil
}

// upsertOverlay writes a live (non-tombstoned) row into the overlay,
// replacing whatever the overlay already held at this key (a prior
// insert, update, or tombstone within the same transaction).
func (t *Table) upsertOverlay(ctx *sql.Context, cs *connState, values sql.Row) (sql.UpdateResult, error) {
	row := append(append(sql.Row{}, values...), false)
	return cs.overlay.Update(ctx, sql.Mutation{Operation: sql.MutationInsert, NewValues: row, OnConflict: sql.ConflictReplace})
}

// tombstone marks key as deleted within the overlay: a row at that
// primary key with every other column nil and the tombstone flag set,
// which the merge iterator uses to suppress the underlying row (or a
// same-transaction insert) at commit-merge read time without touching
// the underlying table until Commit.
func (t *Table) tombstone(ctx *sql.Context, cs *connState, key sql.Row) (sql.UpdateResult, error) {
	cols := pkColumns(t.schema)
	row := make(sql.Row, len(t.schema.Columns))
	for i, c := range cols {
		row[c] = key[i]
	}
	row = append(row, true)
	return cs.overlay.Update(ctx, sql.Mutation{Operation: sql.MutationInsert, NewValues: row, OnConflict: sql.ConflictReplace})
}
