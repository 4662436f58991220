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

package catalog

import (
	"sync"

	"github.com/dolthub/quereus/sql"
)

// Connection is the per-reader/writer transaction state described in §3:
// which tables this connection has opened a pending transaction layer
// against (begun lazily, one per table, on first write), and the stack
// of savepoint names taken since. The read side needs no bookkeeping
// here at all — an un-begun connection simply reads each table's
// committed base, which is already what every vtab module does when no
// transaction is active for the calling connection id.
type Connection struct {
	ID  uint32
	cat *Catalog

	mu      sync.Mutex
	open    bool
	touched map[string]sql.Table
	order   []string // table names in begin order, so commit/rollback is deterministic
	saves   []string
}

// NewConnection allocates a connection against cat. Use cat.Connect
// instead of calling this directly so the catalog can track live
// connections if it ever needs to (e.g. for DDL fencing).
func newConnection(id uint32, cat *Catalog) *Connection {
	return &Connection{ID: id, cat: cat, touched: make(map[string]sql.Table)}
}

// Connect allocates a fresh connection bound to this catalog.
func (c *Catalog) Connect() *Connection {
	return newConnection(sql.NewConnectionID(), c)
}

// InTransaction reports whether this connection has an open pending
// transaction on any table.
func (c *Connection) InTransaction() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Begin explicitly opens a transaction with no tables touched yet; a
// subsequent write lazily begins on whichever tables it reaches. Returns
// ErrMisuse if a transaction is already open (state machine in §4.6).
func (c *Connection) Begin(ctx *sql.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open {
		return sql.ErrMisuse.New("transaction already open on this connection")
	}
	c.open = true
	return nil
}

// EnsureWrite lazily opens this connection's pending transaction layer on
// table (identified by name, for dedup) the first time a DML executor
// instruction reaches it (§4.5 "ensures a write transaction has been
// opened on the target connection, lazy begin").
func (c *Connection) EnsureWrite(ctx *sql.Context, name string, table sql.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = true
	if _, ok := c.touched[name]; ok {
		return nil
	}
	if err := table.Begin(ctx); err != nil {
		return err
	}
	c.touched[name] = table
	c.order = append(c.order, name)
	return nil
}

// Commit folds every touched table's pending layer back into its base.
// A commit with no open transaction is a no-op (§8 idempotence property).
func (c *Connection) Commit(ctx *sql.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return nil
	}
	for _, name := range c.order {
		if err := c.touched[name].Commit(ctx); err != nil {
			return err
		}
	}
	c.reset()
	return nil
}

// Rollback discards every touched table's pending layer. A rollback with
// no open transaction is a no-op.
func (c *Connection) Rollback(ctx *sql.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return nil
	}
	for _, name := range c.order {
		if err := c.touched[name].Rollback(ctx); err != nil {
			return err
		}
	}
	c.reset()
	return nil
}

func (c *Connection) reset() {
	c.open = false
	c.touched = make(map[string]sql.Table)
	c.order = nil
	c.saves = nil
}

// Savepoint records name on the connection's stack and propagates it to
// every table touched so far; a table touched for the first time *after*
// this savepoint is rolled back to it by being excluded from the
// table-level RollbackTo entirely (its changes are simply discarded by
// its own absence from the savepoint's table set at rollback time — see
// RollbackTo below).
func (c *Connection) Savepoint(ctx *sql.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saves = append(c.saves, name)
	for _, t := range c.touched {
		if err := t.Savepoint(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

func (c *Connection) Release(ctx *sql.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, n := range c.saves {
		if n == name {
			c.saves = append(c.saves[:i], c.saves[i+1:]...)
			break
		}
	}
	for _, t := range c.touched {
		if err := t.Release(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

func (c *Connection) RollbackTo(ctx *sql.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	found := -1
	for i, n := range c.saves {
		if n == name {
			found = i
			break
		}
	}
	if found < 0 {
		return sql.ErrMisuse.New("no such savepoint: " + name)
	}
	c.saves = c.saves[:found+1]
	for _, t := range c.touched {
		if err := t.RollbackTo(ctx, name); err != nil {
			return err
		}
	}
	return nil
}
