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

	"github.com/dolthub/quereus/sql"
)

// columnBinding names one column a FROM-clause relation makes visible: the
// table alias (or table/CTE name when no alias was given) it came from,
// its own name, the stable attribute id a downstream GetField resolves it
// by, and its scalar type.
type columnBinding struct {
	table string
	name  string
	attr  sql.Attribute
	typ   sql.ScalarType
}

// scope is the column-resolution environment threaded through the builder
// while it walks one query's FROM clause. It has no parent-scope chaining
// because this front end does not build correlated subqueries — every
// identNode resolves against exactly one flat list of visible columns.
type scope struct {
	columns []columnBinding
}

func newScope() *scope { return &scope{} }

// withTable returns a new scope exposing cols under alias (or, if alias is
// empty, with no table qualifier at all — used for a Values relation feeding
// a bare VALUES statement, which has no user-visible table name).
func (s *scope) withTable(alias string, cols []sql.ColumnDef, attrs []sql.Attribute) *scope {
	out := &scope{columns: append([]columnBinding(nil), s.columns...)}
	for i, c := range cols {
		out.columns = append(out.columns, columnBinding{table: alias, name: c.Name, attr: attrs[i], typ: c.Type})
	}
	return out
}

// merge combines two scopes' visible columns, used when building a join:
// both sides' columns are visible to the ON predicate and to the rest of
// the query once the join node is built.
func (s *scope) merge(other *scope) *scope {
	out := &scope{columns: append([]columnBinding(nil), s.columns...)}
	out.columns = append(out.columns, other.columns...)
	return out
}

// resolve looks up a (possibly table-qualified) column reference. A bare
// name must be unique across every visible table or it is ambiguous.
func (s *scope) resolve(parts []string) (columnBinding, error) {
	switch len(parts) {
	case 1:
		name := parts[0]
		var found []columnBinding
		for _, c := range s.columns {
			if strings.EqualFold(c.name, name) {
				found = append(found, c)
			}
		}
		if len(found) == 0 {
			return columnBinding{}, sql.ErrPlanning.New("no such column: " + name)
		}
		if len(found) > 1 {
			return columnBinding{}, sql.ErrPlanning.New("ambiguous column reference: " + name)
		}
		return found[0], nil
	case 2:
		table, name := parts[0], parts[1]
		for _, c := range s.columns {
			if strings.EqualFold(c.table, table) && strings.EqualFold(c.name, name) {
				return c, nil
			}
		}
		return columnBinding{}, sql.ErrPlanning.New("no such column: " + table + "." + name)
	default:
		return columnBinding{}, sql.ErrPlanning.New("invalid column reference")
	}
}

// tableColumns expands a "alias.*" (or bare "*" when table is empty)
// reference into every matching column, in scope order.
func (s *scope) tableColumns(table string) ([]columnBinding, error) {
	var out []columnBinding
	for _, c := range s.columns {
		if table == "" || strings.EqualFold(c.table, table) {
			out = append(out, c)
		}
	}
	if len(out) == 0 && table != "" {
		return nil, sql.ErrPlanning.New("no such table: " + table)
	}
	return out, nil
}
