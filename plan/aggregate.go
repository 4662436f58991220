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

// AggregateExpr is one computed aggregate output column: the registered
// function name (resolved against funcreg at emit time), its argument
// expressions, and the attribute naming its output slot.
type AggregateExpr struct {
	FuncName string
	Args     []sql.ScalarNode
	Attr     sql.Attribute
	Name     string
	Typ      sql.ScalarType
}

// GroupBy computes one output row per distinct value of GroupExprs,
// carrying one column per group key followed by one per Aggregates.
// The emitter always drives this as a streaming aggregation, sorting
// its input by group key itself (§4.4); the optimizer leaves the node
// as built.
type GroupBy struct {
	Child       sql.RelationalNode
	GroupExprs  []sql.ScalarNode
	GroupAttrs  []sql.Attribute
	GroupNames  []string
	Aggregates  []AggregateExpr
	HavingExpr  sql.ScalarNode
	relType     sql.RelationType
}

// NewGroupKeyAttrs allocates one fresh attribute per group key, in order.
// The builder calls this before lowering HAVING or any SELECT-list
// expression that references a group key past the aggregation boundary,
// then passes the same slice into NewGroupBy so the ids line up.
func NewGroupKeyAttrs(n int) []sql.Attribute {
	attrs := make([]sql.Attribute, n)
	for i := range attrs {
		attrs[i] = sql.NewAttribute()
	}
	return attrs
}

func NewGroupBy(child sql.RelationalNode, groupExprs []sql.ScalarNode, groupAttrs []sql.Attribute, groupNames []string, groupTypes []sql.ScalarType, aggregates []AggregateExpr, having sql.ScalarNode) *GroupBy {
	cols := make([]sql.ColumnDef, 0, len(groupExprs)+len(aggregates))
	for i := range groupExprs {
		cols = append(cols, sql.ColumnDef{Name: groupNames[i], Type: groupTypes[i], Nullable: groupTypes[i].Nullable})
	}
	for _, a := range aggregates {
		cols = append(cols, sql.ColumnDef{Name: a.Name, Type: a.Typ, Nullable: a.Typ.Nullable})
	}
	return &GroupBy{
		Child: child, GroupExprs: groupExprs, GroupAttrs: groupAttrs, GroupNames: groupNames,
		Aggregates: aggregates, HavingExpr: having,
		relType: sql.RelationType{Columns: cols, IsSet: len(groupExprs) > 0},
	}
}

func (g *GroupBy) RelType() sql.RelationType { return g.relType }
func (g *GroupBy) Attributes() []sql.Attribute {
	attrs := make([]sql.Attribute, 0, len(g.GroupAttrs)+len(g.Aggregates))
	attrs = append(attrs, g.GroupAttrs...)
	for _, a := range g.Aggregates {
		attrs = append(attrs, a.Attr)
	}
	return attrs
}
func (g *GroupBy) Children() []sql.RelationalNode { return children1(g.Child) }
func (g *GroupBy) WithChildren(ch ...sql.RelationalNode) (sql.RelationalNode, error) {
	if len(ch) != 1 {
		return nil, sql.ErrInternal.New("group-by takes one child")
	}
	cp := *g
	cp.Child = ch[0]
	return &cp, nil
}
func (g *GroupBy) String() string { return "group_by" }
