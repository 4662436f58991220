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

import "github.com/dolthub/quereus/sql"

// Insert applies one Mutation per Source row against Schema's module,
// translating Source's columns into NewValues per Mapping. RETURNING
// columns, when present, are produced from the applied row (post-default/
// post-generated-column evaluation) as this node's own output relation.
type Insert struct {
	Schema     *sql.TableSchema
	Source     sql.RelationalNode
	Mapping    []int // Mapping[i] = source column index feeding table column i, or -1 for default
	OnConflict sql.ConflictPolicy
	Returning  []sql.ScalarNode
	// RowAttrs names one fresh attribute per table column, representing
	// the row as actually applied; Returning expressions reference these
	// (rather than Source's own attributes, which are VALUES-shaped, not
	// table-shaped) to read back the inserted row.
	RowAttrs []sql.Attribute
	relType  sql.RelationType
	attrs    []sql.Attribute
}

func NewInsert(schema *sql.TableSchema, source sql.RelationalNode, mapping []int, onConflict sql.ConflictPolicy, returning []sql.ScalarNode, returningTypes []sql.ScalarType, returningNames []string) *Insert {
	cols := make([]sql.ColumnDef, len(returning))
	attrs := make([]sql.Attribute, len(returning))
	for i := range returning {
		attrs[i] = sql.NewAttribute()
		cols[i] = sql.ColumnDef{Name: returningNames[i], Type: returningTypes[i], Nullable: returningTypes[i].Nullable}
	}
	rowAttrs := make([]sql.Attribute, len(schema.Columns))
	for i := range rowAttrs {
		rowAttrs[i] = sql.NewAttribute()
	}
	return &Insert{
		Schema: schema, Source: source, Mapping: mapping, OnConflict: onConflict, Returning: returning,
		RowAttrs: rowAttrs,
		relType:  sql.RelationType{Columns: cols}, attrs: attrs,
	}
}

// WithReturning rebuilds the node's RETURNING output columns, keeping
// RowAttrs (and therefore any expression already built against them)
// stable. The builder calls NewInsert once with no RETURNING to obtain
// RowAttrs, builds RETURNING expressions that reference them, then calls
// this to attach the finished expressions.
func (n *Insert) WithReturning(returning []sql.ScalarNode, types []sql.ScalarType, names []string) *Insert {
	cols := make([]sql.ColumnDef, len(returning))
	attrs := make([]sql.Attribute, len(returning))
	for i := range returning {
		attrs[i] = sql.NewAttribute()
		cols[i] = sql.ColumnDef{Name: names[i], Type: types[i], Nullable: types[i].Nullable}
	}
	cp := *n
	cp.Returning = returning
	cp.relType = sql.RelationType{Columns: cols}
	cp.attrs = attrs
	return &cp
}

func (n *Insert) RelType() sql.RelationType      { return n.relType }
func (n *Insert) Attributes() []sql.Attribute    { return n.attrs }
func (n *Insert) Children() []sql.RelationalNode { return children1(n.Source) }
func (n *Insert) WithChildren(ch ...sql.RelationalNode) (sql.RelationalNode, error) {
	if len(ch) != 1 {
		return nil, sql.ErrInternal.New("insert takes one child")
	}
	cp := *n
	cp.Source = ch[0]
	return &cp, nil
}
func (n *Insert) String() string { return "insert(" + n.Schema.QualifiedName() + ")" }

// Update applies a row-wise mutation to every row Source produces,
// recomputing SetExprs against that row's bindings and passing the
// result as NewValues with the row's own primary key as OldKeyValues.
type Update struct {
	Schema    *sql.TableSchema
	Source    sql.RelationalNode
	SetExprs  map[int]sql.ScalarNode // table column index -> new-value expression
	Returning []sql.ScalarNode
	// RowAttrs names one fresh attribute per table column, representing
	// the row's post-update values; Returning expressions needing the new
	// value of a column reference these, while a reference to Source's own
	// attributes reads the pre-update (OLD) value of that same row.
	RowAttrs []sql.Attribute
	relType  sql.RelationType
	attrs    []sql.Attribute
}

func NewUpdate(schema *sql.TableSchema, source sql.RelationalNode, setExprs map[int]sql.ScalarNode, returning []sql.ScalarNode, returningTypes []sql.ScalarType, returningNames []string) *Update {
	cols := make([]sql.ColumnDef, len(returning))
	attrs := make([]sql.Attribute, len(returning))
	for i := range returning {
		attrs[i] = sql.NewAttribute()
		cols[i] = sql.ColumnDef{Name: returningNames[i], Type: returningTypes[i], Nullable: returningTypes[i].Nullable}
	}
	rowAttrs := make([]sql.Attribute, len(schema.Columns))
	for i := range rowAttrs {
		rowAttrs[i] = sql.NewAttribute()
	}
	return &Update{
		Schema: schema, Source: source, SetExprs: setExprs, Returning: returning,
		RowAttrs: rowAttrs,
		relType:  sql.RelationType{Columns: cols}, attrs: attrs,
	}
}

// WithReturning rebuilds the node's RETURNING output columns, keeping
// RowAttrs stable; see Insert.WithReturning for the two-pass rationale.
func (n *Update) WithReturning(returning []sql.ScalarNode, types []sql.ScalarType, names []string) *Update {
	cols := make([]sql.ColumnDef, len(returning))
	attrs := make([]sql.Attribute, len(returning))
	for i := range returning {
		attrs[i] = sql.NewAttribute()
		cols[i] = sql.ColumnDef{Name: names[i], Type: types[i], Nullable: types[i].Nullable}
	}
	cp := *n
	cp.Returning = returning
	cp.relType = sql.RelationType{Columns: cols}
	cp.attrs = attrs
	return &cp
}

func (n *Update) RelType() sql.RelationType      { return n.relType }
func (n *Update) Attributes() []sql.Attribute    { return n.attrs }
func (n *Update) Children() []sql.RelationalNode { return children1(n.Source) }
func (n *Update) WithChildren(ch ...sql.RelationalNode) (sql.RelationalNode, error) {
	if len(ch) != 1 {
		return nil, sql.ErrInternal.New("update takes one child")
	}
	cp := *n
	cp.Source = ch[0]
	return &cp, nil
}
func (n *Update) String() string { return "update(" + n.Schema.QualifiedName() + ")" }

// Delete removes every row Source produces (typically a filtered scan of
// Schema) by primary key.
type Delete struct {
	Schema    *sql.TableSchema
	Source    sql.RelationalNode
	Returning []sql.ScalarNode
	relType   sql.RelationType
	attrs     []sql.Attribute
}

func NewDelete(schema *sql.TableSchema, source sql.RelationalNode, returning []sql.ScalarNode, returningTypes []sql.ScalarType, returningNames []string) *Delete {
	cols := make([]sql.ColumnDef, len(returning))
	attrs := make([]sql.Attribute, len(returning))
	for i := range returning {
		attrs[i] = sql.NewAttribute()
		cols[i] = sql.ColumnDef{Name: returningNames[i], Type: returningTypes[i], Nullable: returningTypes[i].Nullable}
	}
	return &Delete{
		Schema: schema, Source: source, Returning: returning,
		relType: sql.RelationType{Columns: cols}, attrs: attrs,
	}
}

func (n *Delete) RelType() sql.RelationType      { return n.relType }
func (n *Delete) Attributes() []sql.Attribute    { return n.attrs }
func (n *Delete) Children() []sql.RelationalNode { return children1(n.Source) }
func (n *Delete) WithChildren(ch ...sql.RelationalNode) (sql.RelationalNode, error) {
	if len(ch) != 1 {
		return nil, sql.ErrInternal.New("delete takes one child")
	}
	cp := *n
	cp.Source = ch[0]
	return &cp, nil
}
func (n *Delete) String() string { return "delete(" + n.Schema.QualifiedName() + ")" }
