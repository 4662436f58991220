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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dolthub/quereus/memory"
	"github.com/dolthub/quereus/sql"
)

func itemSchema() *sql.TableSchema {
	return &sql.TableSchema{
		TableName: "item",
		Columns: []sql.ColumnSchema{
			{Name: "id", Type: sql.Integer, PrimaryKey: true, NotNull: true},
			{Name: "label", Type: sql.Text},
		},
		PrimaryKey: []sql.IndexColumn{{ColumnIndex: 0}},
	}
}

func newWrappedTable(t *testing.T) (*Module, sql.Table) {
	under := memory.NewModule(nil)
	m := NewModule(under)
	tbl, err := m.Create(sql.NewEmptyContext(), itemSchema())
	require.NoError(t, err)
	return m, tbl
}

func scanAll(t *testing.T, ctx *sql.Context, tbl sql.Table) []sql.Row {
	iter, err := tbl.Query(ctx, sql.ScanPlan{})
	require.NoError(t, err)
	rows, err := sql.RowIterToRows(ctx, iter)
	require.NoError(t, err)
	return rows
}

func TestAutocommitReadBypassesOverlay(t *testing.T) {
	_, tbl := newWrappedTable(t)
	ctx := sql.NewEmptyContext()
	_, err := tbl.Update(ctx, sql.Mutation{Operation: sql.MutationInsert, NewValues: sql.NewRow(int64(1), "a")})
	require.NoError(t, err)
	rows := scanAll(t, ctx, tbl)
	require.Len(t, rows, 1)
}

func TestTransactionMergeSeesOwnInsertsNotUnderlyingUntilCommit(t *testing.T) {
	_, tbl := newWrappedTable(t)
	base := sql.NewEmptyContext()
	_, err := tbl.Update(base, sql.Mutation{Operation: sql.MutationInsert, NewValues: sql.NewRow(int64(1), "a")})
	require.NoError(t, err)

	conn := sql.NewContext(nil, 1)
	require.NoError(t, tbl.Begin(conn))
	_, err = tbl.Update(conn, sql.Mutation{Operation: sql.MutationInsert, NewValues: sql.NewRow(int64(2), "b")})
	require.NoError(t, err)

	// merged view inside the transaction sees both rows
	rows := scanAll(t, conn, tbl)
	require.Len(t, rows, 2)

	// a fresh (no-transaction) read only sees the committed row
	rowsOther := scanAll(t, base, tbl)
	require.Len(t, rowsOther, 1)

	require.NoError(t, tbl.Commit(conn))
	rowsAfter := scanAll(t, base, tbl)
	require.Len(t, rowsAfter, 2)
}

func TestTombstoneSuppressesUnderlyingRowUntilCommit(t *testing.T) {
	_, tbl := newWrappedTable(t)
	base := sql.NewEmptyContext()
	_, err := tbl.Update(base, sql.Mutation{Operation: sql.MutationInsert, NewValues: sql.NewRow(int64(1), "a")})
	require.NoError(t, err)
	_, err = tbl.Update(base, sql.Mutation{Operation: sql.MutationInsert, NewValues: sql.NewRow(int64(2), "b")})
	require.NoError(t, err)

	conn := sql.NewContext(nil, 2)
	require.NoError(t, tbl.Begin(conn))
	res, err := tbl.Update(conn, sql.Mutation{Operation: sql.MutationDelete, OldKeyValues: sql.NewRow(int64(1))})
	require.NoError(t, err)
	require.True(t, res.Applied)

	// merged read inside the transaction no longer sees row 1
	rows := scanAll(t, conn, tbl)
	require.Len(t, rows, 1)
	require.Equal(t, int64(2), rows[0][0])

	// a concurrent autocommit read still sees both committed rows
	rowsOther := scanAll(t, base, tbl)
	require.Len(t, rowsOther, 2)

	require.NoError(t, tbl.Commit(conn))
	rowsAfter := scanAll(t, base, tbl)
	require.Len(t, rowsAfter, 1)
	require.Equal(t, int64(2), rowsAfter[0][0])
}

func TestRollbackDiscardsOverlayEntirely(t *testing.T) {
	_, tbl := newWrappedTable(t)
	base := sql.NewEmptyContext()
	_, err := tbl.Update(base, sql.Mutation{Operation: sql.MutationInsert, NewValues: sql.NewRow(int64(1), "a")})
	require.NoError(t, err)

	conn := sql.NewContext(nil, 3)
	require.NoError(t, tbl.Begin(conn))
	_, err = tbl.Update(conn, sql.Mutation{Operation: sql.MutationDelete, OldKeyValues: sql.NewRow(int64(1))})
	require.NoError(t, err)
	require.NoError(t, tbl.Rollback(conn))

	rows := scanAll(t, base, tbl)
	require.Len(t, rows, 1)
}

func TestSavepointRollbackToOnOverlay(t *testing.T) {
	_, tbl := newWrappedTable(t)
	conn := sql.NewContext(nil, 4)
	require.NoError(t, tbl.Begin(conn))
	_, err := tbl.Update(conn, sql.Mutation{Operation: sql.MutationInsert, NewValues: sql.NewRow(int64(1), "a")})
	require.NoError(t, err)
	require.NoError(t, tbl.Savepoint(conn, "sp1"))
	_, err = tbl.Update(conn, sql.Mutation{Operation: sql.MutationInsert, NewValues: sql.NewRow(int64(2), "b")})
	require.NoError(t, err)

	rows := scanAll(t, conn, tbl)
	require.Len(t, rows, 2)

	require.NoError(t, tbl.RollbackTo(conn, "sp1"))
	rows = scanAll(t, conn, tbl)
	require.Len(t, rows, 1)

	require.NoError(t, tbl.Commit(conn))
}

func TestUpdateWithinTransactionReplacesUnderlyingRowAtCommit(t *testing.T) {
	_, tbl := newWrappedTable(t)
	base := sql.NewEmptyContext()
	_, err := tbl.Update(base, sql.Mutation{Operation: sql.MutationInsert, NewValues: sql.NewRow(int64(1), "a")})
	require.NoError(t, err)

	conn := sql.NewContext(nil, 5)
	require.NoError(t, tbl.Begin(conn))
	_, err = tbl.Update(conn, sql.Mutation{
		Operation: sql.MutationUpdate, OldKeyValues: sql.NewRow(int64(1)), NewValues: sql.NewRow(int64(1), "updated"),
	})
	require.NoError(t, err)
	require.NoError(t, tbl.Commit(conn))

	rows := scanAll(t, base, tbl)
	require.Len(t, rows, 1)
	require.Equal(t, "updated", rows[0][1])
}
