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

// Package emit is the emitter registry and instruction scheduler (§4.2):
// it walks a physical plan tree built by package plan/optimizer and
// produces a tree of Instructions, then drives them to completion.
//
// Every plan-node kind maps to a builder function (the Registry); each
// builder receives the node plus an EmissionContext (sees the catalog,
// captures referenced schema objects, allocates scratch descriptors) and
// returns an Instruction. The scheduler (Instruction.Execute) runs
// instructions in dependency order: a scalar sub-instruction consumed "by
// value" sits in Params and is resolved once before Run is called; one
// consumed "by reference" is held directly by the builder closure and
// invoked through Invoke once per ambient row instead (join conditions,
// CASE arms, filter predicates, sort keys).
package emit

import (
	"github.com/dolthub/quereus/catalog"
	"github.com/dolthub/quereus/funcreg"
	"github.com/dolthub/quereus/plan"
	"github.com/dolthub/quereus/sql"
)

// Output is whatever an Instruction's Run produces: sql.Value for a
// scalar instruction, sql.RowIter for a relational one.
type Output = interface{}

// Instruction is one scheduler node: a note for debug_program listings,
// the by-value sub-instructions resolved before Run executes, and Run
// itself.
type Instruction struct {
	Note   string
	Params []*Instruction
	Run    func(rt *Runtime, resolved []sql.Value) (Output, error)
}

// Execute resolves every by-value Param (recursively) and calls Run.
// This is the scheduler: dependency order is exactly Params' left-to-
// right order, matching §4.2's "ordering between sibling instructions is
// left-to-right within params".
func (ins *Instruction) Execute(rt *Runtime) (Output, error) {
	if err := rt.Ctx.CheckCancelled(); err != nil {
		return nil, err
	}
	resolved := make([]sql.Value, len(ins.Params))
	for i, p := range ins.Params {
		out, err := p.Execute(rt)
		if err != nil {
			return nil, err
		}
		v, _ := out.(sql.Value)
		resolved[i] = v
	}
	return ins.Run(rt, resolved)
}

// Value runs a scalar instruction once and type-asserts its output.
func (ins *Instruction) Value(rt *Runtime) (sql.Value, error) {
	out, err := ins.Execute(rt)
	if err != nil {
		return nil, err
	}
	v, _ := out.(sql.Value)
	return v, nil
}

// Invoke builds the zero-arg, by-reference callback form: the parent
// relational instruction calls the returned function once per ambient
// row after pushing that row's binding, rather than resolving it as a
// Param ahead of time.
func (ins *Instruction) Invoke(rt *Runtime) func() (sql.Value, error) {
	return func() (sql.Value, error) { return ins.Value(rt) }
}

// RowIter runs a relational instruction once and type-asserts its output
// as a lazy row sequence.
func (ins *Instruction) RowIter(rt *Runtime) (sql.RowIter, error) {
	out, err := ins.Execute(rt)
	if err != nil {
		return nil, err
	}
	it, ok := out.(sql.RowIter)
	if !ok {
		return nil, sql.ErrInternal.New("instruction did not produce a row sequence: " + ins.Note)
	}
	return it, nil
}

// Runtime is the ambient state threaded through one statement's
// scheduler run: the cancellable context, the binding stack scalar
// evaluators resolve column references against, the catalog of live
// tables, the connection whose transaction DML instructions write
// through, the function registry, the change sink, and engine-wide
// tunables.
type Runtime struct {
	Ctx      *sql.Context
	Bindings *sql.BindingStack
	Catalog  *catalog.Catalog
	Conn     *catalog.Connection
	Funcs    *funcreg.Registry
	Sink     sql.ChangeSink
	Config   Config

	// CTEDeltas holds the current iteration's delta rows for each
	// WorkingTableScan inside an in-flight RecursiveCTE evaluation,
	// rebound once per fixpoint iteration (§4.4).
	CTEDeltas map[*plan.WorkingTableScan][]sql.Row
}

// Config carries the engine tunables consulted while emitting
// instructions: the cache node's abandon-on-threshold row count and the
// recursive CTE iteration cap (§9's two resolved Open Questions).
type Config struct {
	CacheAbandonThreshold int64
	MaxCTEIterations      int64
}

// DefaultConfig mirrors the zero-configuration defaults the root Config
// type (see config.go) falls back to.
func DefaultConfig() Config {
	return Config{CacheAbandonThreshold: 10000, MaxCTEIterations: 10000}
}
