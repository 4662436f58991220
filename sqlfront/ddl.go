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
	"strings"

	"github.com/dolthub/quereus/catalog"
	"github.com/dolthub/quereus/sql"
)

// DDLAction is a fully-resolved schema change, deferred until a
// statement actually runs (§4.9: a prepared statement only compiles, it
// does not act) rather than applied at build time.
type DDLAction func(ctx *sql.Context) error

// buildCreateTable translates the parsed column/primary-key/USING
// clauses into a sql.TableSchema and returns an action that registers it
// with the catalog. DDL in this module is immediate, non-transactional
// (§4.6): the table exists for every connection the instant the
// statement runs, matching the base layer's own "operates under a
// schema-change lock" model.
func buildCreateTable(cat *catalog.Catalog, s *createTableStmt) (DDLAction, error) {
	cols := make([]sql.ColumnSchema, len(s.columns))
	var pk []sql.IndexColumn
	for i, c := range s.columns {
		typ, err := resolveTypeName(c.typName)
		if err != nil {
			return nil, sql.AtPosition(err, s.pos)
		}
		cols[i] = sql.ColumnSchema{
			Name: c.name, Type: typ, NotNull: c.notNull || c.primaryKey,
			Default: c.defaultExpr, Unique: c.unique, PrimaryKey: c.primaryKey,
			AutoIncrement: c.autoIncrement,
		}
		if c.primaryKey {
			pk = append(pk, sql.IndexColumn{ColumnIndex: i})
		}
	}
	for _, name := range s.primaryKey {
		idx := indexOfColumn(s.columns, name)
		if idx < 0 {
			return nil, sql.ErrPlanning.New("no such column in primary key: " + name)
		}
		pk = append(pk, sql.IndexColumn{ColumnIndex: idx})
	}

	schema := &sql.TableSchema{
		SchemaName: s.table.schema, TableName: s.table.name,
		Columns: cols, PrimaryKey: pk, Module: s.using,
	}
	return func(ctx *sql.Context) error {
		return cat.CreateTable(ctx, schema)
	}, nil
}

func indexOfColumn(cols []columnDefAST, name string) int {
	for i, c := range cols {
		if strings.EqualFold(c.name, name) {
			return i
		}
	}
	return -1
}

func buildDropTable(cat *catalog.Catalog, s *dropTableStmt) (DDLAction, error) {
	return func(ctx *sql.Context) error {
		return cat.DropTable(ctx, s.name)
	}, nil
}

func buildCreateIndex(cat *catalog.Catalog, s *createIndexStmt) (DDLAction, error) {
	schema, err := lookupTableSchema(cat, s.table)
	if err != nil {
		return nil, err
	}
	cols := make([]sql.IndexColumn, len(s.columns))
	for i, c := range s.columns {
		idx := schema.ColumnIndex(c.name)
		if idx < 0 {
			return nil, sql.ErrPlanning.New("no such column: " + c.name)
		}
		dir := sql.Ascending
		if c.desc {
			dir = sql.Descending
		}
		cols[i] = sql.IndexColumn{ColumnIndex: idx, Direction: dir}
	}
	idx := sql.IndexSchema{Name: s.name, Columns: cols, Unique: s.unique}
	return func(ctx *sql.Context) error {
		return cat.CreateIndex(ctx, s.table, idx)
	}, nil
}

func buildDropIndex(cat *catalog.Catalog, s *dropIndexStmt) (DDLAction, error) {
	return func(ctx *sql.Context) error {
		return cat.DropIndex(ctx, s.table, s.name)
	}, nil
}

func buildAlterAddColumn(cat *catalog.Catalog, s *alterAddColumnStmt) (DDLAction, error) {
	typ, err := resolveTypeName(s.column.typName)
	if err != nil {
		return nil, sql.AtPosition(err, s.pos)
	}
	change := sql.SchemaChange{
		Kind: sql.AddColumn,
		Column: sql.ColumnSchema{
			Name: s.column.name, Type: typ, NotNull: s.column.notNull, Default: s.column.defaultExpr,
		},
	}
	return func(ctx *sql.Context) error {
		return cat.AlterSchema(ctx, s.table, change)
	}, nil
}
