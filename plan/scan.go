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

package plan

import (
	"strconv"

	"github.com/dolthub/quereus/sql"
)

// TableScan is a leaf node reading every row a vtab module's Query
// returns under a given ScanPlan. The logical planner always starts with
// Direction ascending, no bounds — the optimizer rewrites ScanPlan once
// it has pushed down filters (§4.5, "physical access selection"); sort
// requirements are not pushed into it.
type TableScan struct {
	Schema   *sql.TableSchema
	Alias    string
	ScanPlan sql.ScanPlan
	attrs    []sql.Attribute
	relType  sql.RelationType
}

// NewTableScan allocates one fresh attribute per column of the table's
// schema-derived relation type, establishing the stable ids every
// GetField above this node will reference.
func NewTableScan(schema *sql.TableSchema, alias string) *TableScan {
	rt := schema.RelationType()
	attrs := make([]sql.Attribute, len(rt.Columns))
	for i := range attrs {
		attrs[i] = sql.NewAttribute()
	}
	return &TableScan{Schema: schema, Alias: alias, relType: rt, attrs: attrs}
}

func (s *TableScan) RelType() sql.RelationType   { return s.relType }
func (s *TableScan) Attributes() []sql.Attribute { return s.attrs }
func (s *TableScan) Children() []sql.RelationalNode { return nil }
func (s *TableScan) WithChildren(ch ...sql.RelationalNode) (sql.RelationalNode, error) {
	if len(ch) != 0 {
		return nil, sql.ErrInternal.New("table scan takes no children")
	}
	return s, nil
}
func (s *TableScan) String() string { return "scan(" + s.Schema.QualifiedName() + ")" }

// WithScanPlan returns a copy of the scan carrying a new physical access
// plan, used by the optimizer once it has consulted BestAccessPlan.
func (s *TableScan) WithScanPlan(sp sql.ScanPlan) *TableScan {
	cp := *s
	cp.ScanPlan = sp
	return &cp
}

// Values is a leaf node producing a fixed, already-materialized set of
// rows (the VALUES clause, and the degenerate single-row relation used
// to evaluate a bare SELECT with no FROM).
type Values struct {
	Rows    []sql.Row
	attrs   []sql.Attribute
	relType sql.RelationType
}

func NewValues(rows []sql.Row, colTypes []sql.ScalarType) *Values {
	attrs := make([]sql.Attribute, len(colTypes))
	cols := make([]sql.ColumnDef, len(colTypes))
	for i, t := range colTypes {
		attrs[i] = sql.NewAttribute()
		cols[i] = sql.ColumnDef{Name: "column" + strconv.Itoa(i+1), Type: t, Nullable: t.Nullable}
	}
	return &Values{Rows: rows, attrs: attrs, relType: sql.RelationType{Columns: cols}}
}

func (v *Values) RelType() sql.RelationType      { return v.relType }
func (v *Values) Attributes() []sql.Attribute    { return v.attrs }
func (v *Values) Children() []sql.RelationalNode { return nil }
func (v *Values) WithChildren(ch ...sql.RelationalNode) (sql.RelationalNode, error) {
	if len(ch) != 0 {
		return nil, sql.ErrInternal.New("values takes no children")
	}
	return v, nil
}
func (v *Values) String() string { return "values" }
