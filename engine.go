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

// Package quereus is the embeddable SQL engine's top-level entry point:
// it wires together the catalog, the function registry, the change
// feed, the SQL front end, the optimizer and the emitter/scheduler into
// a single Engine, and hands out Connections and prepared Statements
// against it (§3, §4.9).
package quereus

import (
	"sync"

	"github.com/dolthub/quereus/catalog"
	"github.com/dolthub/quereus/changefeed"
	"github.com/dolthub/quereus/funcreg"
	"github.com/dolthub/quereus/memory"
	"github.com/dolthub/quereus/overlay"
	"github.com/dolthub/quereus/sql"
	"github.com/dolthub/quereus/stmt"
)

// Engine is the shared, connection-independent state of a running
// instance: the table catalog (and the vtab modules registered into
// it), the function registry, the change feed every mutation publishes
// to, and the engine-wide tunables handed down to the optimizer and
// emitter on every statement. One Engine is meant to be shared by many
// concurrent Connections, mirroring the teacher's own Engine/Session
// split (one Analyzer+Catalog shared across many per-connection
// sessions).
type Engine struct {
	mu       sync.Mutex
	Catalog  *catalog.Catalog
	Funcs    *funcreg.Registry
	Feed     *changefeed.Feed
	Config   Config
	readOnly bool
}

// New builds an Engine with the given configuration, registering the
// in-memory vtab module (wrapped for transactional isolation) as the
// catalog's default module. Use NewDefault for the zero-configuration
// case.
func New(cfg Config) *Engine {
	feed := changefeed.New()
	cat := catalog.New()
	cat.RegisterModule("memory", overlay.NewModule(memory.NewModule(feed)))

	return &Engine{
		Catalog: cat,
		Funcs:   funcreg.NewRegistry(),
		Feed:    feed,
		Config:  cfg,
	}
}

// NewDefault builds an Engine with DefaultConfig.
func NewDefault() *Engine {
	return New(DefaultConfig())
}

// WithReadOnly toggles whether this engine accepts DML/DDL, returning
// the receiver for chaining (mirrors the teacher's own Config.IsReadOnly
// flag, generalized to a post-construction toggle since this module has
// no separate analyzer rule to gate on it — instead Connection.Exec
// consults IsReadOnly and rejects a mutating statement with
// sql.ErrReadOnly; a Statement obtained from Connection.Prepare is not
// checked).
func (e *Engine) WithReadOnly(ro bool) *Engine {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.readOnly = ro
	return e
}

// IsReadOnly reports whether this engine currently rejects mutations.
func (e *Engine) IsReadOnly() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.readOnly
}

// RegisterModule installs an additional vtab module (e.g. a custom
// storage backend) under name, available to CREATE TABLE ... USING name.
func (e *Engine) RegisterModule(name string, m sql.Module) {
	e.Catalog.RegisterModule(name, m)
}

// Connect opens a new Connection against this engine's catalog, the unit
// of transaction state every statement runs within (§3 "Connection").
func (e *Engine) Connect() *Connection {
	return &Connection{engine: e, conn: e.Catalog.Connect()}
}

// Connection pairs a catalog.Connection's transaction state with the
// engine-wide collaborators (catalog, function registry, change sink,
// config) a prepared Statement needs, so callers never have to thread
// those through by hand.
type Connection struct {
	engine *Engine
	conn   *catalog.Connection
}

// ID returns the connection's stable identifier, usable as a
// sql.Context's ConnectionID.
func (c *Connection) ID() uint32 { return c.conn.ID }

// InTransaction reports whether a transaction is currently open on this
// connection: one opened by BEGIN, or one a write opened lazily that no
// COMMIT or ROLLBACK has closed yet.
func (c *Connection) InTransaction() bool { return c.conn.InTransaction() }

// Prepare parses sqlText and returns a Statement positioned on its first
// top-level statement, ready to bind/iterate/run (§4.9).
func (c *Connection) Prepare(sqlText string) (*stmt.Statement, error) {
	return stmt.Prepare(c.engine.Catalog, c.engine.Funcs, c.engine.Feed, c.conn, c.engine.Config.emitConfig(), sqlText)
}

// Exec prepares sqlText, binds args positionally, runs every statement
// in the batch to exhaustion and returns the last statement's rows —
// a one-shot convenience wrapper around the Prepare/Bind/Run/
// NextStatement/Finalize lifecycle for callers that don't need a
// reusable prepared statement.
func (c *Connection) Exec(ctx *sql.Context, sqlText string, args ...sql.Value) ([]sql.Row, error) {
	s, err := c.Prepare(sqlText)
	if err != nil {
		return nil, err
	}
	defer s.Finalize()

	var rows []sql.Row
	for {
		if len(args) > 0 {
			if err := s.BindAll(args); err != nil {
				return nil, err
			}
		}
		if c.engine.IsReadOnly() {
			mutating, err := s.IsMutating()
			if err != nil {
				return nil, err
			}
			if mutating {
				return nil, sql.ErrReadOnly.New()
			}
		}
		rows, err = s.Run(ctx)
		if err != nil {
			return nil, err
		}
		more, err := s.NextStatement()
		if err != nil {
			return nil, err
		}
		if !more {
			break
		}
	}
	return rows, nil
}

// Close finalizes the connection's transaction state, rolling back any
// transaction still open (mirrors the teacher's own CloseSession,
// generalized from clearing a prepared-statement cache to rolling back
// live transaction state since this module's Connection, unlike the
// teacher's Session, owns transaction layers directly).
func (c *Connection) Close(ctx *sql.Context) error {
	if c.conn.InTransaction() {
		return c.conn.Rollback(ctx)
	}
	return nil
}
