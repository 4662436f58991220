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

package stmt

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dolthub/quereus/catalog"
	"github.com/dolthub/quereus/emit"
	"github.com/dolthub/quereus/funcreg"
	"github.com/dolthub/quereus/memory"
	"github.com/dolthub/quereus/sql"
)

func newTestCatalog() *catalog.Catalog {
	cat := catalog.New()
	cat.RegisterModule("memory", memory.NewModule(nil))
	return cat
}

func prepare(t *testing.T, cat *catalog.Catalog, conn *catalog.Connection, sqlText string) *Statement {
	s, err := Prepare(cat, funcreg.NewRegistry(), nil, conn, emit.DefaultConfig(), sqlText)
	require.NoError(t, err)
	return s
}

func TestLifecycleCreateInsertSelect(t *testing.T) {
	cat := newTestCatalog()
	conn := cat.Connect()
	ctx := sql.NewEmptyContext()

	s := prepare(t, cat, conn, "CREATE TABLE t (id INTEGER PRIMARY KEY, name TEXT)")
	_, err := s.Run(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Finalize())

	s = prepare(t, cat, conn, "INSERT INTO t (id, name) VALUES (1, 'a')")
	rows, err := s.Run(ctx)
	require.NoError(t, err)
	require.Empty(t, rows)
	require.NoError(t, s.Finalize())

	s = prepare(t, cat, conn, "SELECT id, name FROM t")
	names, err := s.ColumnNames()
	require.NoError(t, err)
	require.Equal(t, []string{"id", "name"}, names)
	rows, err = s.Run(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, int64(1), rows[0][0])
	require.Equal(t, "a", rows[0][1])
	require.NoError(t, s.Finalize())
}

func TestBatchNextStatement(t *testing.T) {
	cat := newTestCatalog()
	conn := cat.Connect()
	ctx := sql.NewEmptyContext()

	s := prepare(t, cat, conn, "CREATE TABLE t (id INTEGER PRIMARY KEY); INSERT INTO t (id) VALUES (1)")
	require.Equal(t, 2, s.StatementCount())
	_, err := s.Run(ctx)
	require.NoError(t, err)

	more, err := s.NextStatement()
	require.NoError(t, err)
	require.True(t, more)

	_, err = s.Run(ctx)
	require.NoError(t, err)

	more, err = s.NextStatement()
	require.NoError(t, err)
	require.False(t, more)
	require.NoError(t, s.Finalize())
}

func TestGetReturnsFirstRowOnly(t *testing.T) {
	cat := newTestCatalog()
	conn := cat.Connect()
	ctx := sql.NewEmptyContext()

	s := prepare(t, cat, conn, "CREATE TABLE t (id INTEGER PRIMARY KEY)")
	_, err := s.Run(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Finalize())

	s = prepare(t, cat, conn, "INSERT INTO t (id) VALUES (1), (2), (3)")
	_, err = s.Run(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Finalize())

	s = prepare(t, cat, conn, "SELECT id FROM t ORDER BY id")
	row, ok, err := s.Get(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), row["id"])
	require.NoError(t, s.Finalize())
}

func TestFinalizedStatementRejectsOperations(t *testing.T) {
	cat := newTestCatalog()
	conn := cat.Connect()

	s := prepare(t, cat, conn, "CREATE TABLE t (id INTEGER PRIMARY KEY)")
	require.NoError(t, s.Finalize())
	require.NoError(t, s.Finalize()) // idempotent

	err := s.Bind(0, int64(1))
	require.Error(t, err)

	_, err = s.IterateRows(sql.NewEmptyContext())
	require.Error(t, err)
}

func TestBusyStatementRejectsBindAndAdvance(t *testing.T) {
	cat := newTestCatalog()
	conn := cat.Connect()
	ctx := sql.NewEmptyContext()

	s := prepare(t, cat, conn, "CREATE TABLE t (id INTEGER PRIMARY KEY)")
	_, err := s.Run(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Finalize())

	s = prepare(t, cat, conn, "INSERT INTO t (id) VALUES (1)")
	_, err = s.Run(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Finalize())

	s = prepare(t, cat, conn, "SELECT id FROM t")
	iter, err := s.IterateRows(ctx)
	require.NoError(t, err)

	err = s.Bind(0, int64(1))
	require.Error(t, err)
	_, err = s.NextStatement()
	require.Error(t, err)

	require.NoError(t, iter.Close(ctx))
	require.NoError(t, s.Reset())
	// busy flag cleared; bind now succeeds (even though this query has no
	// params to bind, Bind itself only checks lifecycle state here)
	require.NoError(t, s.Bind(0, int64(1)))
	require.NoError(t, s.Finalize())
}

func TestTransactionControlStatements(t *testing.T) {
	cat := newTestCatalog()
	conn := cat.Connect()
	ctx := sql.NewEmptyContext()

	s := prepare(t, cat, conn, "CREATE TABLE t (id INTEGER PRIMARY KEY)")
	_, err := s.Run(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Finalize())

	require.False(t, conn.InTransaction())
	s = prepare(t, cat, conn, "BEGIN")
	_, err = s.Run(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Finalize())
	require.True(t, conn.InTransaction())

	s = prepare(t, cat, conn, "ROLLBACK")
	_, err = s.Run(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Finalize())
	require.False(t, conn.InTransaction())
}

func TestUpdateAndDeleteReturning(t *testing.T) {
	cat := newTestCatalog()
	conn := cat.Connect()
	ctx := sql.NewEmptyContext()

	s := prepare(t, cat, conn, "CREATE TABLE t (id INTEGER PRIMARY KEY, name TEXT)")
	_, err := s.Run(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Finalize())

	s = prepare(t, cat, conn, "INSERT INTO t (id, name) VALUES (1, 'a')")
	_, err = s.Run(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Finalize())

	s = prepare(t, cat, conn, "UPDATE t SET name = 'b' WHERE id = 1 RETURNING id, name")
	rows, err := s.Run(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "b", rows[0][1])
	require.NoError(t, s.Finalize())

	s = prepare(t, cat, conn, "DELETE FROM t WHERE id = 1 RETURNING id")
	rows, err = s.Run(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, int64(1), rows[0][0])
	require.NoError(t, s.Finalize())
}
