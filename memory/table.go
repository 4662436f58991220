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
	"sync"

	"github.com/tidwall/btree"

	"github.com/dolthub/quereus/sql"
)

// Module is the memory engine's sql.Module: a process-wide registry of
// Tables keyed by qualified name, created/connected/destroyed by DDL
// (§6). A single Module instance is normally shared by every connection
// to one embedded database.
type Module struct {
	mu     sync.RWMutex
	tables map[string]*Table
	sink   sql.ChangeSink
}

// NewModule builds an empty registry. sink may be nil, in which case
// mutations are not published anywhere (equivalent to changefeed.NoopSink).
func NewModule(sink sql.ChangeSink) *Module {
	return &Module{tables: make(map[string]*Table), sink: sink}
}

func buildPKCompare(schema *sql.TableSchema) (func(a, b sql.Row) int, []int) {
	cols := make([]int, len(schema.PrimaryKey))
	keys := make([]sql.SortKey, len(schema.PrimaryKey))
	for i, pk := range schema.PrimaryKey {
		cols[i] = pk.ColumnIndex
		var collation sql.CollationFn
		if pk.Collation != "" {
			collation = sql.ResolveCollation(pk.Collation)
		} else if pk.ColumnIndex < len(schema.Columns) && schema.Columns[pk.ColumnIndex].Type.Kind == sql.KindText {
			collation = sql.ResolveCollation(schema.Columns[pk.ColumnIndex].Collation)
		}
		keys[i] = sql.SortKey{ColumnIndex: i, Descending: pk.Direction == sql.Descending, Collation: collation}
	}
	cmp := sql.RowCompareFn(keys)
	return cmp, cols
}

func buildSecondaryCompare(schema *sql.TableSchema, idx sql.IndexSchema) func(a, b sql.Row) int {
	keys := make([]sql.SortKey, len(idx.Columns))
	for i, c := range idx.Columns {
		var collation sql.CollationFn
		if c.Collation != "" {
			collation = sql.ResolveCollation(c.Collation)
		}
		keys[i] = sql.SortKey{ColumnIndex: i, Descending: c.Direction == sql.Descending, Collation: collation}
	}
	return sql.RowCompareFn(keys)
}

func (m *Module) Create(ctx *sql.Context, schema *sql.TableSchema) (sql.Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name := schema.QualifiedName()
	if _, ok := m.tables[name]; ok {
		return nil, sql.ErrConstraint.New("table already exists: " + name)
	}
	pkCompare, pkCols := buildPKCompare(schema)
	t := &Table{
		schema:      schema,
		pkCompare:   pkCompare,
		pkColumns:   pkCols,
		primary:     btree.NewBTreeG(pkLess(pkCompare)),
		secondaries: make(map[string]*secondary),
		conns:       make(map[uint32]*txn),
		sink:        m.sink,
	}
	for _, idx := range schema.SecondaryKeys {
		cmp := buildSecondaryCompare(schema, idx)
		t.secondaries[idx.Name] = &secondary{schema: idx, compare: cmp, tree: btree.NewBTreeG(secondaryLess(cmp))}
	}
	m.tables[name] = t
	return t, nil
}

func (m *Module) Connect(ctx *sql.Context, schema *sql.TableSchema) (sql.Table, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tables[schema.QualifiedName()]
	if !ok {
		return nil, sql.ErrMisuse.New("no such table: " + schema.QualifiedName())
	}
	return t, nil
}

func (m *Module) Destroy(ctx *sql.Context, schema *sql.TableSchema) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tables, schema.QualifiedName())
	return nil
}

// BestAccessPlan reports whether any maintained index can serve the
// request. Only leading-column equality constraints are claimed; range
// pushdown on a chosen index is handled by the scan plan built from this
// answer, not by claiming additional Handled bits here.
func (m *Module) BestAccessPlan(ctx *sql.Context, schema *sql.TableSchema, req sql.AccessRequest) (sql.AccessPlan, error) {
	m.mu.RLock()
	t, ok := m.tables[schema.QualifiedName()]
	m.mu.RUnlock()
	if !ok {
		return sql.AccessPlan{}, sql.ErrMisuse.New("no such table: " + schema.QualifiedName())
	}
	handled := make([]bool, len(req.Filters))

	// Primary key equality on the leading PK column(s).
	if len(t.pkColumns) > 0 {
		matched := 0
		for matched < len(t.pkColumns) {
			found := false
			for i, f := range req.Filters {
				if !f.Usable || f.Operator != sql.OpEQ || handled[i] {
					continue
				}
				if f.ColumnIndex == t.pkColumns[matched] {
					handled[i] = true
					found = true
					matched++
					break
				}
			}
			if !found {
				break
			}
		}
		if matched == len(t.pkColumns) && matched > 0 {
			return sql.AccessPlan{
				Handled: handled, EstimatedRows: 1, EstimatedCost: 1, Index: "",
				SupportsSeek: true, Explanation: "primary key point lookup",
			}, nil
		}
	}

	for _, idxT := range t.secondaries {
		cand := make([]bool, len(req.Filters))
		matched := 0
		for matched < len(idxT.schema.Columns) {
			found := false
			for i, f := range req.Filters {
				if !f.Usable || f.Operator != sql.OpEQ || cand[i] || handled[i] {
					continue
				}
				if f.ColumnIndex == idxT.schema.Columns[matched].ColumnIndex {
					cand[i] = true
					found = true
					matched++
					break
				}
			}
			if !found {
				break
			}
		}
		if matched > 0 {
			for i, v := range cand {
				if v {
					handled[i] = true
				}
			}
			rows := t.primary.Len()
			if rows > 0 {
				rows = rows / (matched * 4)
				if rows < 1 {
					rows = 1
				}
			}
			return sql.AccessPlan{
				Handled: handled, EstimatedRows: int64(rows), EstimatedCost: float64(rows),
				Index: idxT.schema.Name, SupportsSeek: matched == len(idxT.schema.Columns),
				Explanation: "secondary index " + idxT.schema.Name,
			}, nil
		}
	}

	return sql.AccessPlan{
		Handled: make([]bool, len(req.Filters)), EstimatedRows: int64(t.primary.Len()),
		EstimatedCost: float64(t.primary.Len()), Explanation: "full scan",
	}, nil
}

func (m *Module) CreateIndex(ctx *sql.Context, schema *sql.TableSchema, idx sql.IndexSchema) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[schema.QualifiedName()]
	if !ok {
		return sql.ErrMisuse.New("no such table: " + schema.QualifiedName())
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	cmp := buildSecondaryCompare(schema, idx)
	tr := btree.NewBTreeG(secondaryLess(cmp))
	t.primary.Scan(func(e rowEntry) bool {
		cols := make([]int, len(idx.Columns))
		for i, c := range idx.Columns {
			cols[i] = c.ColumnIndex
		}
		tr.Set(secondaryEntry{indexKey: rowKey(e.row, cols), pk: e.key})
		return true
	})
	t.secondaries[idx.Name] = &secondary{schema: idx, compare: cmp, tree: tr}
	t.schema.SecondaryKeys = append(t.schema.SecondaryKeys, idx)
	return nil
}

func (m *Module) DropIndex(ctx *sql.Context, schema *sql.TableSchema, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[schema.QualifiedName()]
	if !ok {
		return sql.ErrMisuse.New("no such table: " + schema.QualifiedName())
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.secondaries, name)
	for i, idx := range t.schema.SecondaryKeys {
		if idx.Name == name {
			t.schema.SecondaryKeys = append(t.schema.SecondaryKeys[:i], t.schema.SecondaryKeys[i+1:]...)
			break
		}
	}
	return nil
}

func (m *Module) Capabilities() sql.Capabilities {
	return sql.Capabilities{SupportsSeek: true, SupportsIsolation: true, SupportsSavepoints: true}
}
