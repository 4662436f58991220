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

package quereus

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dolthub/quereus/sql"
)

func TestEngineEndToEnd(t *testing.T) {
	eng := NewDefault()
	conn := eng.Connect()
	ctx := sql.NewEmptyContext()

	_, err := conn.Exec(ctx, "CREATE TABLE account (id INTEGER PRIMARY KEY, balance INTEGER)")
	require.NoError(t, err)

	_, err = conn.Exec(ctx, "INSERT INTO account (id, balance) VALUES (1, 100), (2, 50)")
	require.NoError(t, err)

	rows, err := conn.Exec(ctx, "SELECT id, balance FROM account ORDER BY id")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, int64(1), rows[0][0])
	require.Equal(t, int64(100), rows[0][1])

	rows, err = conn.Exec(ctx, "UPDATE account SET balance = balance - 10 WHERE id = 1 RETURNING balance")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, int64(90), rows[0][0])

	require.NoError(t, conn.Close(ctx))
}

func TestEngineReadOnlyRejectsMutation(t *testing.T) {
	eng := NewDefault()
	eng.WithReadOnly(true)
	conn := eng.Connect()
	ctx := sql.NewEmptyContext()

	_, err := conn.Exec(ctx, "CREATE TABLE t (id INTEGER PRIMARY KEY)")
	require.Error(t, err)
	require.Contains(t, err.Error(), "read-only")
}

func TestEngineTransactionRollback(t *testing.T) {
	eng := NewDefault()
	conn := eng.Connect()
	ctx := sql.NewEmptyContext()

	_, err := conn.Exec(ctx, "CREATE TABLE t (id INTEGER PRIMARY KEY)")
	require.NoError(t, err)

	_, err = conn.Exec(ctx, "BEGIN")
	require.NoError(t, err)
	require.True(t, conn.InTransaction())

	_, err = conn.Exec(ctx, "INSERT INTO t (id) VALUES (1)")
	require.NoError(t, err)

	_, err = conn.Exec(ctx, "ROLLBACK")
	require.NoError(t, err)
	require.False(t, conn.InTransaction())

	rows, err := conn.Exec(ctx, "SELECT id FROM t")
	require.NoError(t, err)
	require.Empty(t, rows)
}
