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

package sqlfront

import (
	"github.com/dolthub/quereus/catalog"
	"github.com/dolthub/quereus/plan"
	"github.com/dolthub/quereus/sql"
)

// schemaColumnDefs mirrors TableSchema.RelationType's column derivation,
// used whenever a builder needs a scope over the table's own columns
// rather than over a scan node's already-allocated relation type.
func schemaColumnDefs(schema *sql.TableSchema) []sql.ColumnDef {
	cols := make([]sql.ColumnDef, len(schema.Columns))
	for i, c := range schema.Columns {
		cols[i] = sql.ColumnDef{Name: c.Name, Type: c.Type, Nullable: !c.NotNull, Collation: c.Collation}
	}
	return cols
}

func lookupTableSchema(cat *catalog.Catalog, name string) (*sql.TableSchema, error) {
	e, ok := cat.Lookup(name)
	if !ok {
		return nil, sql.ErrPlanning.New("no such table: " + name)
	}
	return e.Schema, nil
}

// buildReturning lowers a RETURNING clause against sc, or reports no
// columns at all when the clause was omitted.
func (qb *queryBuilder) buildReturning(items []selectItem, sc *scope) ([]sql.ScalarNode, []sql.ScalarType, []string, error) {
	if len(items) == 0 {
		return nil, nil, nil, nil
	}
	proj, _, err := qb.buildProjection(items, nil, sc)
	if err != nil {
		return nil, nil, nil, err
	}
	exprs := make([]sql.ScalarNode, len(proj.Columns))
	types := make([]sql.ScalarType, len(proj.Columns))
	names := make([]string, len(proj.Columns))
	for i, c := range proj.Columns {
		exprs[i] = c.Expr
		types[i] = c.Expr.Type()
		names[i] = c.Name
	}
	return exprs, types, names, nil
}

// buildInsertStmt lowers an INSERT into a plan.Insert, whose Source
// produces rows in either the explicit column-list order (with Mapping
// translating that order into table-column order) or, with no column
// list, in schema order directly.
func (qb *queryBuilder) buildInsertStmt(s *insertStmt) (*plan.Insert, error) {
	schema, err := lookupTableSchema(qb.cat, s.table.name)
	if err != nil {
		return nil, err
	}
	var source sql.RelationalNode
	var sourceScope *scope
	if s.query != nil {
		source, sourceScope, err = qb.buildSelect(s.query)
	} else {
		source, sourceScope, err = qb.buildValues(s.values)
	}
	if err != nil {
		return nil, err
	}

	mapping := make([]int, len(schema.Columns))
	if len(s.columns) == 0 {
		for i := range mapping {
			if i < len(sourceScope.columns) {
				mapping[i] = i
			} else {
				mapping[i] = -1
			}
		}
	} else {
		for i := range mapping {
			mapping[i] = -1
		}
		for srcIdx, name := range s.columns {
			colIdx := schema.ColumnIndex(name)
			if colIdx < 0 {
				return nil, sql.ErrPlanning.New("no such column: " + name)
			}
			mapping[colIdx] = srcIdx
		}
	}

	n := plan.NewInsert(schema, source, mapping, s.onConflict, nil, nil, nil)
	rowScope := newScope().withTable(schema.TableName, schemaColumnDefs(schema), n.RowAttrs)
	retExprs, retTypes, retNames, err := qb.buildReturning(s.returning, rowScope)
	if err != nil {
		return nil, err
	}
	return n.WithReturning(retExprs, retTypes, retNames), nil
}

// buildUpdateStmt lowers an UPDATE into a plan.Update over a TableScan
// (optionally wrapped in a Filter for WHERE), with SetExprs built against
// the scan's own (OLD-row) scope and RETURNING built against the node's
// fresh RowAttrs (NEW-row) scope, matching the split plan.Update's own
// doc comment describes.
func (qb *queryBuilder) buildUpdateStmt(s *updateStmt) (*plan.Update, error) {
	schema, err := lookupTableSchema(qb.cat, s.table.name)
	if err != nil {
		return nil, err
	}
	scan := plan.NewTableScan(schema, s.table.alias)
	oldScope := newScope().withTable(tableAlias(s.table), schemaColumnDefs(schema), scan.Attributes())

	var source sql.RelationalNode = scan
	if s.where != nil {
		pred, err := qb.exprs.build(s.where, oldScope)
		if err != nil {
			return nil, err
		}
		source = plan.NewFilter(source, pred)
	}

	setExprs := make(map[int]sql.ScalarNode, len(s.set))
	for _, sc := range s.set {
		colIdx := schema.ColumnIndex(sc.column)
		if colIdx < 0 {
			return nil, sql.ErrPlanning.New("no such column: " + sc.column)
		}
		e, err := qb.exprs.build(sc.value, oldScope)
		if err != nil {
			return nil, err
		}
		setExprs[colIdx] = e
	}

	n := plan.NewUpdate(schema, source, setExprs, nil, nil, nil)
	rowScope := newScope().withTable(tableAlias(s.table), schemaColumnDefs(schema), n.RowAttrs)
	retExprs, retTypes, retNames, err := qb.buildReturning(s.returning, rowScope)
	if err != nil {
		return nil, err
	}
	return n.WithReturning(retExprs, retTypes, retNames), nil
}

// buildDeleteStmt lowers a DELETE into a plan.Delete over a TableScan
// (optionally Filter-wrapped); RETURNING reads the OLD row, so it builds
// against the scan's own scope directly (no RowAttrs indirection needed,
// matching plan.Delete carrying no separate RowAttrs field).
func (qb *queryBuilder) buildDeleteStmt(s *deleteStmt) (*plan.Delete, error) {
	schema, err := lookupTableSchema(qb.cat, s.table.name)
	if err != nil {
		return nil, err
	}
	scan := plan.NewTableScan(schema, s.table.alias)
	sc := newScope().withTable(tableAlias(s.table), schemaColumnDefs(schema), scan.Attributes())

	var source sql.RelationalNode = scan
	if s.where != nil {
		pred, err := qb.exprs.build(s.where, sc)
		if err != nil {
			return nil, err
		}
		source = plan.NewFilter(source, pred)
	}

	retExprs, retTypes, retNames, err := qb.buildReturning(s.returning, sc)
	if err != nil {
		return nil, err
	}
	return plan.NewDelete(schema, source, retExprs, retTypes, retNames), nil
}

func tableAlias(t tableName) string {
	if t.alias != "" {
		return t.alias
	}
	return t.name
}
