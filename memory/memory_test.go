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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dolthub/quereus/sql"
)

func personSchema() *sql.TableSchema {
	return &sql.TableSchema{
		TableName: "person",
		Columns: []sql.ColumnSchema{
			{Name: "id", Type: sql.Integer, PrimaryKey: true, NotNull: true},
			{Name: "name", Type: sql.Text},
		},
		PrimaryKey: []sql.IndexColumn{{ColumnIndex: 0}},
	}
}

func mustCreate(t *testing.T, m *Module) sql.Table {
	tbl, err := m.Create(sql.NewEmptyContext(), personSchema())
	require.NoError(t, err)
	return tbl
}

func insertRow(t *testing.T, ctx *sql.Context, tbl sql.Table, id int64, name string) {
	_, err := tbl.Update(ctx, sql.Mutation{Operation: sql.MutationInsert, NewValues: sql.NewRow(id, name)})
	require.NoError(t, err)
}

func scanAll(t *testing.T, ctx *sql.Context, tbl sql.Table) []sql.Row {
	iter, err := tbl.Query(ctx, sql.ScanPlan{})
	require.NoError(t, err)
	rows, err := sql.RowIterToRows(ctx, iter)
	require.NoError(t, err)
	return rows
}

func TestInsertAndFullScan(t *testing.T) {
	m := NewModule(nil)
	tbl := mustCreate(t, m)
	ctx := sql.NewEmptyContext()
	insertRow(t, ctx, tbl, 1, "alice")
	insertRow(t, ctx, tbl, 2, "bob")

	rows := scanAll(t, ctx, tbl)
	require.Len(t, rows, 2)
}

func TestDuplicatePrimaryKeyIsConstraintViolation(t *testing.T) {
	m := NewModule(nil)
	tbl := mustCreate(t, m)
	ctx := sql.NewEmptyContext()
	insertRow(t, ctx, tbl, 1, "alice")
	_, err := tbl.Update(ctx, sql.Mutation{Operation: sql.MutationInsert, NewValues: sql.NewRow(int64(1), "dup")})
	require.Error(t, err)
}

func TestConnectionScopedSnapshotIsolation(t *testing.T) {
	m := NewModule(nil)
	tbl := mustCreate(t, m)
	base := sql.NewEmptyContext()
	insertRow(t, base, tbl, 1, "alice")

	connA := sql.NewContext(nil, 1)
	connB := sql.NewContext(nil, 2)

	require.NoError(t, tbl.Begin(connA))
	insertRow(t, connA, tbl, 2, "bob") // visible only inside connA's transaction

	// connB, with no open transaction, reads the committed base and must
	// not see connA's uncommitted insert.
	rowsB := scanAll(t, connB, tbl)
	require.Len(t, rowsB, 1)

	rowsA := scanAll(t, connA, tbl)
	require.Len(t, rowsA, 2)

	require.NoError(t, tbl.Commit(connA))

	rowsB2 := scanAll(t, connB, tbl)
	require.Len(t, rowsB2, 2)
}

func TestRollbackDiscardsTransactionChanges(t *testing.T) {
	m := NewModule(nil)
	tbl := mustCreate(t, m)
	ctx := sql.NewEmptyContext()
	insertRow(t, ctx, tbl, 1, "alice")

	conn := sql.NewContext(nil, 5)
	require.NoError(t, tbl.Begin(conn))
	insertRow(t, conn, tbl, 2, "bob")
	require.NoError(t, tbl.Rollback(conn))

	rows := scanAll(t, ctx, tbl)
	require.Len(t, rows, 1)
}

func TestSavepointRollbackTo(t *testing.T) {
	m := NewModule(nil)
	tbl := mustCreate(t, m)
	conn := sql.NewContext(nil, 7)
	require.NoError(t, tbl.Begin(conn))
	insertRow(t, conn, tbl, 1, "alice")
	require.NoError(t, tbl.Savepoint(conn, "sp1"))
	insertRow(t, conn, tbl, 2, "bob")

	rows := scanAll(t, conn, tbl)
	require.Len(t, rows, 2)

	require.NoError(t, tbl.RollbackTo(conn, "sp1"))
	rows = scanAll(t, conn, tbl)
	require.Len(t, rows, 1)

	require.NoError(t, tbl.Commit(conn))
}

func TestRollbackToDropsLaterSavepoints(t *testing.T) {
	m := NewModule(nil)
	tbl := mustCreate(t, m)
	conn := sql.NewContext(nil, 7)
	require.NoError(t, tbl.Begin(conn))
	insertRow(t, conn, tbl, 1, "alice")
	require.NoError(t, tbl.Savepoint(conn, "sp1"))
	insertRow(t, conn, tbl, 2, "bob")
	require.NoError(t, tbl.Savepoint(conn, "sp2"))
	insertRow(t, conn, tbl, 3, "carol")

	require.NoError(t, tbl.RollbackTo(conn, "sp1"))
	rows := scanAll(t, conn, tbl)
	require.Len(t, rows, 1)

	err := tbl.RollbackTo(conn, "sp2")
	require.Error(t, err)
	require.Contains(t, err.Error(), "no such savepoint")

	err = tbl.Release(conn, "sp2")
	require.Error(t, err)
	require.Contains(t, err.Error(), "no such savepoint")

	// sp1 itself is still usable after the rollback.
	require.NoError(t, tbl.RollbackTo(conn, "sp1"))
	require.NoError(t, tbl.Commit(conn))
}

func TestDeleteRemovesRow(t *testing.T) {
	m := NewModule(nil)
	tbl := mustCreate(t, m)
	ctx := sql.NewEmptyContext()
	insertRow(t, ctx, tbl, 1, "alice")

	res, err := tbl.Update(ctx, sql.Mutation{Operation: sql.MutationDelete, OldKeyValues: sql.NewRow(int64(1))})
	require.NoError(t, err)
	require.True(t, res.Applied)

	rows := scanAll(t, ctx, tbl)
	require.Empty(t, rows)
}

func TestUpdateChangesRowAndKeepsKeyLookup(t *testing.T) {
	m := NewModule(nil)
	tbl := mustCreate(t, m)
	ctx := sql.NewEmptyContext()
	insertRow(t, ctx, tbl, 1, "alice")

	_, err := tbl.Update(ctx, sql.Mutation{
		Operation: sql.MutationUpdate, OldKeyValues: sql.NewRow(int64(1)), NewValues: sql.NewRow(int64(1), "alicia"),
	})
	require.NoError(t, err)

	iter, err := tbl.Query(ctx, sql.ScanPlan{Equality: sql.NewRow(int64(1))})
	require.NoError(t, err)
	rows, err := sql.RowIterToRows(ctx, iter)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "alicia", rows[0][1])
}

func TestSecondaryIndexEqualityLookup(t *testing.T) {
	m := NewModule(nil)
	schema := personSchema()
	schema.SecondaryKeys = []sql.IndexSchema{{Name: "by_name", Columns: []sql.IndexColumn{{ColumnIndex: 1}}}}
	tbl, err := m.Create(sql.NewEmptyContext(), schema)
	require.NoError(t, err)
	ctx := sql.NewEmptyContext()
	insertRow(t, ctx, tbl, 1, "alice")
	insertRow(t, ctx, tbl, 2, "bob")

	iter, err := tbl.Query(ctx, sql.ScanPlan{Index: "by_name", Equality: sql.NewRow("bob")})
	require.NoError(t, err)
	rows, err := sql.RowIterToRows(ctx, iter)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, int64(2), rows[0][0])
}

func TestBestAccessPlanPrefersPrimaryKeyEquality(t *testing.T) {
	m := NewModule(nil)
	tbl := mustCreate(t, m)
	ctx := sql.NewEmptyContext()
	insertRow(t, ctx, tbl, 1, "alice")

	plan, err := m.BestAccessPlan(ctx, tbl.Schema(), sql.AccessRequest{
		Filters: []sql.FilterConstraint{{ColumnIndex: 0, Operator: sql.OpEQ, Usable: true, Value: int64(1)}},
	})
	require.NoError(t, err)
	require.True(t, plan.SupportsSeek)
	require.True(t, plan.Handled[0])
}
