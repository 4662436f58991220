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

// Package stmt implements the prepared-statement lifecycle (§4.9): a
// Statement owns one parsed AST batch, a cursor into it, and — for
// whichever statement the cursor is currently on — a lazily built plan.
// prepare/bind/iterate_rows/run/get/reset/finalize are its entire public
// surface, matching §6's "Statement surface" contract.
package stmt

import (
	"github.com/dolthub/quereus/catalog"
	"github.com/dolthub/quereus/emit"
	"github.com/dolthub/quereus/funcreg"
	"github.com/dolthub/quereus/optimizer"
	"github.com/dolthub/quereus/sql"
	"github.com/dolthub/quereus/sqlfront"
)

// Row is one result row keyed by output column name, the shape `get`
// returns (§4.9: "yields the first row as a name-keyed record").
type Row map[string]sql.Value

// Statement is a prepared statement: a batch of parsed top-level SQL
// statements (split on top-level semicolons by sqlfront.Parse), a cursor
// into that batch, and whichever compiled plan + open iteration state
// belongs to the statement currently under the cursor.
type Statement struct {
	cat   *catalog.Catalog
	funcs *funcreg.Registry
	sink  sql.ChangeSink
	conn  *catalog.Connection
	cfg   emit.Config

	batch []interface{}
	idx   int

	compiled *sqlfront.Compiled
	params   []sql.Value

	busy     bool
	finalized bool
	openIter sql.RowIter
}

// Prepare parses sqlText into a batch of statements and positions the
// cursor on the first one. It does not compile a plan yet — compilation
// is deferred to the first iterate_rows/run/get call on each statement,
// matching §4.9's "lazily built plan" invariant.
func Prepare(cat *catalog.Catalog, funcs *funcreg.Registry, sink sql.ChangeSink, conn *catalog.Connection, cfg emit.Config, sqlText string) (*Statement, error) {
	batch, err := sqlfront.Parse(sqlText)
	if err != nil {
		return nil, err
	}
	if sink == nil {
		sink = noopSink{}
	}
	return &Statement{cat: cat, funcs: funcs, sink: sink, conn: conn, cfg: cfg, batch: batch}, nil
}

type noopSink struct{}

func (noopSink) Publish(ctx *sql.Context, ev sql.ChangeEvent) {}

// StatementCount reports how many top-level statements this prepared
// batch holds.
func (s *Statement) StatementCount() int { return len(s.batch) }

// NextStatement advances the cursor to the next statement in the batch,
// discarding whatever compiled plan and bound parameters belonged to the
// previous one. Returns false once the batch is exhausted; the cursor
// then stays past the end, where every call that compiles or runs the
// current statement returns ErrMisuse.
func (s *Statement) NextStatement() (bool, error) {
	if s.finalized {
		return false, sql.ErrMisuse.New("statement is finalized")
	}
	if s.busy {
		return false, sql.ErrMisuse.New("cannot advance statement cursor while iteration is in progress")
	}
	if err := s.closeOpenIter(); err != nil {
		return false, err
	}
	s.idx++
	s.compiled = nil
	s.params = nil
	return s.idx < len(s.batch), nil
}

// Bind sets the 0-based positional parameter index to value. Returns
// ErrMisuse if an iteration is in progress (§4.9: "cannot bind ... while
// an iteration is in progress") or the statement is finalized.
func (s *Statement) Bind(index int, value sql.Value) error {
	if err := s.checkNotBusy(); err != nil {
		return err
	}
	if index < 0 {
		return sql.ErrMisuse.New("parameter index must be non-negative")
	}
	for len(s.params) <= index {
		s.params = append(s.params, nil)
	}
	s.params[index] = value
	return nil
}

// BindAll replaces the entire bound-parameter map at once.
func (s *Statement) BindAll(values []sql.Value) error {
	if err := s.checkNotBusy(); err != nil {
		return err
	}
	s.params = append([]sql.Value(nil), values...)
	return nil
}

func (s *Statement) checkNotBusy() error {
	if s.finalized {
		return sql.ErrMisuse.New("statement is finalized")
	}
	if s.busy {
		return sql.ErrMisuse.New("statement is busy iterating")
	}
	return nil
}

func (s *Statement) current() (interface{}, error) {
	if s.finalized {
		return nil, sql.ErrMisuse.New("statement is finalized")
	}
	if s.idx < 0 || s.idx >= len(s.batch) {
		return nil, sql.ErrMisuse.New("no current statement")
	}
	return s.batch[s.idx], nil
}

// compile lazily lowers the current statement's AST into a
// sqlfront.Compiled, caching the result until NextStatement moves past
// it. Safe to call repeatedly.
func (s *Statement) compile() (*sqlfront.Compiled, error) {
	if s.compiled != nil {
		return s.compiled, nil
	}
	parsed, err := s.current()
	if err != nil {
		return nil, err
	}
	c, err := sqlfront.Build(s.cat, s.funcs, s.cfg.MaxCTEIterations, parsed)
	if err != nil {
		return nil, err
	}
	s.compiled = c
	return c, nil
}

// ColumnNames/ColumnTypes describe the current statement's output row
// shape (compiling it first if needed), empty for DDL/transaction-
// control statements.
func (s *Statement) ColumnNames() ([]string, error) {
	c, err := s.compile()
	if err != nil {
		return nil, err
	}
	return c.ColumnNames, nil
}

func (s *Statement) ColumnTypes() ([]sql.ScalarType, error) {
	c, err := s.compile()
	if err != nil {
		return nil, err
	}
	return c.ColumnTypes, nil
}

// IsMutating reports whether the current statement writes to the
// catalog or a table: DML and DDL both count, a plain query does not.
// Transaction-control statements (BEGIN/COMMIT/...) do not count either
// since they touch no table.
func (s *Statement) IsMutating() (bool, error) {
	c, err := s.compile()
	if err != nil {
		return false, err
	}
	return c.Kind == sqlfront.KindDML || c.Kind == sqlfront.KindDDL, nil
}

// IterateRows compiles (if needed), optimizes, emits and schedules the
// current statement, returning a lazy row sequence. DDL and transaction-
// control statements run to completion immediately and yield an empty
// sequence. The statement is marked busy until the returned iterator is
// exhausted or closed, or Reset is called.
func (s *Statement) IterateRows(ctx *sql.Context) (sql.RowIter, error) {
	if err := s.checkNotBusy(); err != nil {
		return nil, err
	}
	c, err := s.compile()
	if err != nil {
		return nil, err
	}

	rctx := ctx.WithParams(s.params)

	switch c.Kind {
	case sqlfront.KindDDL:
		if err := c.DDL(rctx); err != nil {
			return nil, err
		}
		return sql.NewSliceIter(nil), nil

	case sqlfront.KindTxn:
		if err := s.runTxn(rctx, c); err != nil {
			return nil, err
		}
		return sql.NewSliceIter(nil), nil

	default:
		physical, err := optimizer.Optimize(rctx, s.cat, s.optimizerConfig(), c.Plan)
		if err != nil {
			return nil, err
		}
		ec := &emit.EmissionContext{Catalog: s.cat, Config: s.cfg, Registry: emit.NewRegistry(), Funcs: s.funcs}
		ins, err := ec.Registry.Build(ec, physical)
		if err != nil {
			return nil, err
		}
		rt := &emit.Runtime{
			Ctx: rctx, Bindings: sql.NewBindingStack(), Catalog: s.cat, Conn: s.conn,
			Funcs: s.funcs, Sink: s.sink, Config: s.cfg,
		}
		iter, err := ins.RowIter(rt)
		if err != nil {
			return nil, err
		}
		s.busy = true
		wrapped := &busyIter{inner: iter, owner: s}
		s.openIter = wrapped
		return wrapped, nil
	}
}

func (s *Statement) optimizerConfig() optimizer.Config {
	return optimizer.Config{CacheAbandonThreshold: s.cfg.CacheAbandonThreshold, MaxCTEIterations: s.cfg.MaxCTEIterations}
}

func (s *Statement) runTxn(ctx *sql.Context, c *sqlfront.Compiled) error {
	switch c.Txn {
	case sqlfront.TxnBegin:
		return s.conn.Begin(ctx)
	case sqlfront.TxnCommit:
		return s.conn.Commit(ctx)
	case sqlfront.TxnRollback:
		return s.conn.Rollback(ctx)
	case sqlfront.TxnSavepoint:
		return s.conn.Savepoint(ctx, c.TxnName)
	case sqlfront.TxnRelease:
		return s.conn.Release(ctx, c.TxnName)
	case sqlfront.TxnRollbackTo:
		return s.conn.RollbackTo(ctx, c.TxnName)
	default:
		return sql.ErrInternal.New("unrecognized transaction-control statement")
	}
}

// Run iterates the current statement to exhaustion, returning every row
// it produced (§4.9: "run iterates to exhaustion").
func (s *Statement) Run(ctx *sql.Context) ([]sql.Row, error) {
	iter, err := s.IterateRows(ctx)
	if err != nil {
		return nil, err
	}
	return sql.RowIterToRows(ctx, iter)
}

// Get runs the current statement and returns its first row as a
// name-keyed record, or ok=false if it produced no rows.
func (s *Statement) Get(ctx *sql.Context) (Row, bool, error) {
	names, err := s.ColumnNames()
	if err != nil {
		return nil, false, err
	}
	iter, err := s.IterateRows(ctx)
	if err != nil {
		return nil, false, err
	}
	row, err := iter.Next(ctx)
	if err == sql.ErrIteratorDone {
		_ = iter.Close(ctx)
		return nil, false, nil
	}
	if err != nil {
		_ = iter.Close(ctx)
		return nil, false, err
	}
	_ = iter.Close(ctx)
	out := make(Row, len(names))
	for i, name := range names {
		if i < len(row) {
			out[name] = row[i]
		}
	}
	return out, true, nil
}

// Reset clears busy state without discarding the compiled plan or bound
// parameters, ready for another iterate_rows call on the same
// statement. Idempotent (§8: "reset after reset is a no-op").
func (s *Statement) Reset() error {
	if s.finalized {
		return sql.ErrMisuse.New("statement is finalized")
	}
	return s.closeOpenIter()
}

func (s *Statement) closeOpenIter() error {
	if s.openIter == nil {
		s.busy = false
		return nil
	}
	it := s.openIter
	s.openIter = nil
	s.busy = false
	if bi, ok := it.(*busyIter); ok {
		return bi.inner.Close(sql.NewEmptyContext())
	}
	return nil
}

// Finalize releases this statement's resources. Idempotent; every other
// operation on a finalized statement returns ErrMisuse.
func (s *Statement) Finalize() error {
	if s.finalized {
		return nil
	}
	_ = s.closeOpenIter()
	s.finalized = true
	s.batch = nil
	s.compiled = nil
	return nil
}

// busyIter wraps the top-level row iterator so the statement's busy flag
// clears automatically on normal exhaustion or an explicit Close, without
// requiring every caller to remember to call Reset.
type busyIter struct {
	inner sql.RowIter
	owner *Statement
	done  bool
}

func (b *busyIter) Next(ctx *sql.Context) (sql.Row, error) {
	row, err := b.inner.Next(ctx)
	if err == sql.ErrIteratorDone {
		b.finish(ctx)
	}
	return row, err
}

func (b *busyIter) Close(ctx *sql.Context) error {
	err := b.inner.Close(ctx)
	b.finish(ctx)
	return err
}

func (b *busyIter) finish(ctx *sql.Context) {
	if b.done {
		return
	}
	b.done = true
	b.owner.busy = false
	b.owner.openIter = nil
}
