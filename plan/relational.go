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

// Filter keeps only rows for which Predicate evaluates truthy (§4.2).
// Predicate is an sql.ScalarNode rather than expr.Expr to keep this
// package decoupled from the scalar-node implementation package; the
// emitter downcasts it to expr.Expr when building the instruction.
type Filter struct {
	Child     sql.RelationalNode
	Predicate sql.ScalarNode
}

func NewFilter(child sql.RelationalNode, predicate sql.ScalarNode) *Filter {
	return &Filter{Child: child, Predicate: predicate}
}

func (f *Filter) RelType() sql.RelationType      { return f.Child.RelType() }
func (f *Filter) Attributes() []sql.Attribute    { return f.Child.Attributes() }
func (f *Filter) Children() []sql.RelationalNode { return children1(f.Child) }
func (f *Filter) WithChildren(ch ...sql.RelationalNode) (sql.RelationalNode, error) {
	if len(ch) != 1 {
		return nil, sql.ErrInternal.New("filter takes one child")
	}
	return &Filter{Child: ch[0], Predicate: f.Predicate}, nil
}
func (f *Filter) String() string { return "filter" }

// ProjectColumn is one output column of a Project node: the scalar
// expression producing it, the attribute id naming its output slot, and
// a display name for result-set metadata.
type ProjectColumn struct {
	Expr sql.ScalarNode
	Attr sql.Attribute
	Name string
}

// Project computes a new row of columns from its child's bound row,
// introducing one fresh attribute per output column.
type Project struct {
	Child   sql.RelationalNode
	Columns []ProjectColumn
	relType sql.RelationType
}

func NewProject(child sql.RelationalNode, exprs []sql.ScalarNode, names []string, types []sql.ScalarType) *Project {
	cols := make([]ProjectColumn, len(exprs))
	relCols := make([]sql.ColumnDef, len(exprs))
	for i := range exprs {
		attr := sql.NewAttribute()
		cols[i] = ProjectColumn{Expr: exprs[i], Attr: attr, Name: names[i]}
		relCols[i] = sql.ColumnDef{Name: names[i], Type: types[i], Nullable: types[i].Nullable, Collation: types[i].Collation}
	}
	return &Project{Child: child, Columns: cols, relType: sql.RelationType{Columns: relCols}}
}

func (p *Project) RelType() sql.RelationType { return p.relType }
func (p *Project) Attributes() []sql.Attribute {
	attrs := make([]sql.Attribute, len(p.Columns))
	for i, c := range p.Columns {
		attrs[i] = c.Attr
	}
	return attrs
}
func (p *Project) Children() []sql.RelationalNode { return children1(p.Child) }
func (p *Project) WithChildren(ch ...sql.RelationalNode) (sql.RelationalNode, error) {
	if len(ch) != 1 {
		return nil, sql.ErrInternal.New("project takes one child")
	}
	return &Project{Child: ch[0], Columns: p.Columns, relType: p.relType}, nil
}
func (p *Project) String() string { return "project" }

// Sort orders its child's rows by the given composite key (§4.2). The
// optimizer leaves it in place; it is not pushed into a TableScan's
// ScanPlan.
type Sort struct {
	Child sql.RelationalNode
	Keys  []sql.SortKey
}

func NewSort(child sql.RelationalNode, keys []sql.SortKey) *Sort {
	return &Sort{Child: child, Keys: keys}
}

func (s *Sort) RelType() sql.RelationType      { return s.Child.RelType() }
func (s *Sort) Attributes() []sql.Attribute    { return s.Child.Attributes() }
func (s *Sort) Children() []sql.RelationalNode { return children1(s.Child) }
func (s *Sort) WithChildren(ch ...sql.RelationalNode) (sql.RelationalNode, error) {
	if len(ch) != 1 {
		return nil, sql.ErrInternal.New("sort takes one child")
	}
	return &Sort{Child: ch[0], Keys: s.Keys}, nil
}
func (s *Sort) String() string { return "sort" }

// Distinct removes duplicate rows per RelType's column order. The node is
// kept even when the child relation is already known to be a set
// (RelType().IsSet); the optimizer does not remove it.
type Distinct struct {
	Child sql.RelationalNode
}

func NewDistinct(child sql.RelationalNode) *Distinct { return &Distinct{Child: child} }

func (d *Distinct) RelType() sql.RelationType {
	rt := d.Child.RelType()
	rt.IsSet = true
	return rt
}
func (d *Distinct) Attributes() []sql.Attribute    { return d.Child.Attributes() }
func (d *Distinct) Children() []sql.RelationalNode { return children1(d.Child) }
func (d *Distinct) WithChildren(ch ...sql.RelationalNode) (sql.RelationalNode, error) {
	if len(ch) != 1 {
		return nil, sql.ErrInternal.New("distinct takes one child")
	}
	return &Distinct{Child: ch[0]}, nil
}
func (d *Distinct) String() string { return "distinct" }

// Limit caps row count at N, after skipping Offset rows.
type Limit struct {
	Child          sql.RelationalNode
	Count, Offset  int64
	HasCount       bool
}

func NewLimit(child sql.RelationalNode, count, offset int64, hasCount bool) *Limit {
	return &Limit{Child: child, Count: count, Offset: offset, HasCount: hasCount}
}

func (l *Limit) RelType() sql.RelationType      { return l.Child.RelType() }
func (l *Limit) Attributes() []sql.Attribute    { return l.Child.Attributes() }
func (l *Limit) Children() []sql.RelationalNode { return children1(l.Child) }
func (l *Limit) WithChildren(ch ...sql.RelationalNode) (sql.RelationalNode, error) {
	if len(ch) != 1 {
		return nil, sql.ErrInternal.New("limit takes one child")
	}
	return &Limit{Child: ch[0], Count: l.Count, Offset: l.Offset, HasCount: l.HasCount}, nil
}
func (l *Limit) String() string { return "limit" }
