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

// Package overlay implements the generic isolation wrapper of §4.8: it
// gives transactional semantics to any sql.Module, even one whose
// Capabilities report SupportsIsolation: false, by keeping a lazily
// materialized per-connection overlay of pending changes on top of the
// wrapped module's committed state.
//
// Unlike the memory package (which owns its own copy-on-write btrees and
// can therefore give a transaction a Copy() of the real storage), overlay
// cannot assume anything about the wrapped module's internals. Its
// working set is instead a small table of its own — backed by the memory
// engine — holding only the rows a connection has touched, each carrying
// an extra tombstone column. Reads merge that overlay against the
// wrapped module's committed rows with a two-pointer sorted merge: the
// overlay wins on a primary-key match, and a tombstoned overlay row
// suppresses the corresponding committed row entirely. Commit applies the
// overlay's rows to the wrapped module and discards the overlay; rollback
// just discards it. Savepoints delegate straight to the overlay table's
// own savepoint support, since the overlay itself is a memory.Table.
package overlay

import (
	"fmt"
	"sync"

	"github.com/dolthub/quereus/memory"
	"github.com/dolthub/quereus/sql"
)

const tombstoneColumn = "$tombstone"

// Module wraps an underlying sql.Module, adding transactional isolation
// via per-connection overlay tables kept in a private memory.Module.
type Module struct {
	mu         sync.Mutex
	underlying sql.Module
	overlays   *memory.Module
	tables     map[string]*Table
}

// NewModule wraps underlying. The returned module reports
// SupportsIsolation/SupportsSavepoints true regardless of what underlying
// itself supports.
func NewModule(underlying sql.Module) *Module {
	return &Module{underlying: underlying, overlays: memory.NewModule(nil), tables: make(map[string]*Table)}
}

func buildOverlaySchema(schema *sql.TableSchema, suffix string) *sql.TableSchema {
	cols := make([]sql.ColumnSchema, len(schema.Columns), len(schema.Columns)+1)
	copy(cols, schema.Columns)
	cols = append(cols, sql.ColumnSchema{Name: tombstoneColumn, Type: sql.Boolean, NotNull: true})
	pk := make([]sql.IndexColumn, len(schema.PrimaryKey))
	copy(pk, schema.PrimaryKey)
	return &sql.TableSchema{
		SchemaName: schema.SchemaName,
		TableName:  schema.TableName + suffix,
		Columns:    cols,
		PrimaryKey: pk,
	}
}

func (m *Module) Create(ctx *sql.Context, schema *sql.TableSchema) (sql.Table, error) {
	under, err := m.underlying.Create(ctx, schema)
	if err != nil {
		return nil, err
	}
	return m.wrap(schema, under), nil
}

func (m *Module) Connect(ctx *sql.Context, schema *sql.TableSchema) (sql.Table, error) {
	under, err := m.underlying.Connect(ctx, schema)
	if err != nil {
		return nil, err
	}
	return m.wrap(schema, under), nil
}

func (m *Module) wrap(schema *sql.TableSchema, under sql.Table) *Table {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tables[schema.QualifiedName()]; ok {
		return t
	}
	t := &Table{
		schema:     schema,
		underlying: under,
		overlays:   m.overlays,
		conns:      make(map[uint32]*connState),
	}
	m.tables[schema.QualifiedName()] = t
	return t
}

func (m *Module) Destroy(ctx *sql.Context, schema *sql.TableSchema) error {
	m.mu.Lock()
	delete(m.tables, schema.QualifiedName())
	m.mu.Unlock()
	return m.underlying.Destroy(ctx, schema)
}

func (m *Module) BestAccessPlan(ctx *sql.Context, schema *sql.TableSchema, req sql.AccessRequest) (sql.AccessPlan, error) {
	return m.underlying.BestAccessPlan(ctx, schema, req)
}

func (m *Module) CreateIndex(ctx *sql.Context, schema *sql.TableSchema, idx sql.IndexSchema) error {
	return m.underlying.CreateIndex(ctx, schema, idx)
}

func (m *Module) DropIndex(ctx *sql.Context, schema *sql.TableSchema, name string) error {
	return m.underlying.DropIndex(ctx, schema, name)
}

func (m *Module) Capabilities() sql.Capabilities {
	caps := m.underlying.Capabilities()
	caps.SupportsIsolation = true
	caps.SupportsSavepoints = true
	return caps
}

func overlayTableName(connID uint32) string {
	return fmt.Sprintf("$overlay$%d", connID)
}
