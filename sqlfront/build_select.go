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
	"strconv"
	"strings"

	"github.com/dolthub/quereus/catalog"
	"github.com/dolthub/quereus/expr"
	"github.com/dolthub/quereus/funcreg"
	"github.com/dolthub/quereus/plan"
	"github.com/dolthub/quereus/sql"
)

// queryBuilder lowers a parsed selectStmt (and the tableExpr/exprNode
// trees hanging off it) into a plan.RelationalNode tree, resolving every
// column reference against a scope as it goes. One queryBuilder is
// created per top-level statement compile; cteDefs only ever grows
// (a nested WITH cannot shadow an outer one in this front end).
type queryBuilder struct {
	cat     *catalog.Catalog
	exprs   *exprBuilder
	funcs   *funcreg.Registry
	cteDefs map[string]*cteBinding
	maxIter int64
}

// cteBinding records one WITH-clause definition for later reference
// building. workingAttrs/workingType are set only while building the
// recursive term of a recursive CTE, so a self-reference inside it binds
// to the anchor's own attribute ids via WorkingTableScan.
type cteBinding struct {
	def          cte
	workingAttrs []sql.Attribute
	workingType  sql.RelationType
	inRecursive  bool
}

func newQueryBuilder(cat *catalog.Catalog, funcs *funcreg.Registry, maxIter int64) *queryBuilder {
	return &queryBuilder{
		cat:     cat,
		exprs:   newExprBuilder(funcs),
		funcs:   funcs,
		cteDefs: make(map[string]*cteBinding),
		maxIter: maxIter,
	}
}

// resolvedRef is a builder-internal exprNode standing for a scalar value
// already resolved to a concrete attribute (e.g. an aggregate's output
// slot, or a GROUP BY key's slot) — it carries no further name to look
// up, only the binding to read.
type resolvedRef struct {
	base
	attr sql.Attribute
	typ  sql.ScalarType
	name string
}

// buildSelect lowers one selectStmt, including any set-operation chain
// hanging off its tail, into a single relational plan.
func (qb *queryBuilder) buildSelect(s *selectStmt) (sql.RelationalNode, *scope, error) {
	for _, c := range s.with {
		cp := c
		qb.cteDefs[strings.ToLower(c.name)] = &cteBinding{def: cp}
	}

	node, sc, err := qb.buildSelectCore(s)
	if err != nil {
		return nil, nil, err
	}

	for s.setOp != nil {
		right, _, err := qb.buildSelectCore(s.setOp.next)
		if err != nil {
			return nil, nil, err
		}
		kind, err := setOpKind(s.setOp.kind, s.setOp.all)
		if err != nil {
			return nil, nil, err
		}
		node = plan.NewSetOp(kind, node, right)
		sc = sc // output scope of a set-op is the left side's, already correct
		s = s.setOp.next
	}
	return node, sc, nil
}

func setOpKind(k Kind, all bool) (plan.SetOpKind, error) {
	switch k {
	case UNION:
		if all {
			return plan.SetUnionAll, nil
		}
		return plan.SetUnion, nil
	case INTERSECT:
		return plan.SetIntersect, nil
	case EXCEPT:
		return plan.SetExcept, nil
	default:
		return 0, sql.ErrInternal.New("unknown set operator")
	}
}

// buildSelectCore lowers one selectStmt ignoring any trailing setOp link:
// FROM/WHERE/GROUP BY/HAVING/SELECT list/DISTINCT/ORDER BY/LIMIT.
func (qb *queryBuilder) buildSelectCore(s *selectStmt) (sql.RelationalNode, *scope, error) {
	if s.values != nil {
		return qb.buildValues(s.values)
	}

	var source sql.RelationalNode
	var sourceScope *scope
	var err error
	if s.from != nil {
		source, sourceScope, err = qb.buildFrom(s.from)
		if err != nil {
			return nil, nil, err
		}
	} else {
		source = plan.NewValues([]sql.Row{{}}, nil)
		sourceScope = newScope()
	}

	if s.where != nil {
		pred, err := qb.exprs.build(s.where, sourceScope)
		if err != nil {
			return nil, nil, err
		}
		source = plan.NewFilter(source, pred)
	}

	aggregating := len(s.groupBy) > 0 || selectHasAggregate(s, qb.funcs)

	var outScope *scope
	var projectSourceRowsFrom sql.RelationalNode = source
	if aggregating {
		grouped, gScope, err := qb.buildGroupBy(s, source, sourceScope)
		if err != nil {
			return nil, nil, err
		}
		projectSourceRowsFrom = grouped
		outScope = gScope
	} else {
		outScope = sourceScope
	}

	project, projAliases, err := qb.buildProjection(s.columns, projectSourceRowsFrom, outScope)
	if err != nil {
		return nil, nil, err
	}

	var result sql.RelationalNode = project
	resultScope := projAliases

	if s.distinct {
		result = plan.NewDistinct(result)
	}

	if len(s.orderBy) > 0 {
		keys, err := qb.buildSortKeys(s.orderBy, result, resultScope)
		if err != nil {
			return nil, nil, err
		}
		result = plan.NewSort(result, keys)
	}

	if s.limit != nil || s.offset != nil {
		count, hasCount, err := evalConstInt(s.limit)
		if err != nil {
			return nil, nil, err
		}
		offset, _, err := evalConstInt(s.offset)
		if err != nil {
			return nil, nil, err
		}
		result = plan.NewLimit(result, count, offset, hasCount)
	}

	return result, resultScope, nil
}

func (qb *queryBuilder) buildValues(rows [][]exprNode) (sql.RelationalNode, *scope, error) {
	if len(rows) == 0 {
		return nil, nil, sql.ErrPlanning.New("VALUES requires at least one row")
	}
	width := len(rows[0])
	colTypes := make([]sql.ScalarType, width)
	built := make([]sql.Row, len(rows))
	emptyScope := newScope()
	for ri, r := range rows {
		if len(r) != width {
			return nil, nil, sql.ErrPlanning.New("VALUES rows must all have the same number of columns")
		}
		row := make(sql.Row, width)
		for ci, item := range r {
			e, err := qb.exprs.build(item, emptyScope)
			if err != nil {
				return nil, nil, err
			}
			lit, ok := e.(*expr.Literal)
			if !ok {
				return nil, nil, sql.ErrUnsupported.New("VALUES entries must be constant expressions")
			}
			row[ci] = lit.Value
			if ri == 0 {
				colTypes[ci] = lit.Typ
			}
		}
		built[ri] = row
	}
	v := plan.NewValues(built, colTypes)
	cols := v.RelType().Columns
	sc := newScope().withTable("", cols, v.Attributes())
	return v, sc, nil
}

// buildFrom lowers one FROM-clause construct (bare table, CTE reference,
// join, or parenthesized subquery) into a relational node plus the scope
// of columns it makes visible to the rest of the query.
func (qb *queryBuilder) buildFrom(t tableExpr) (sql.RelationalNode, *scope, error) {
	switch n := t.(type) {
	case *tableName:
		return qb.buildTableRef(n)
	case *joinExpr:
		return qb.buildJoin(n)
	case *subqueryTable:
		return qb.buildSubqueryTable(n)
	default:
		return nil, nil, sql.AtPosition(sql.ErrInternal.New("unknown FROM-clause node"), t.tablePos())
	}
}

func (qb *queryBuilder) buildTableRef(n *tableName) (sql.RelationalNode, *scope, error) {
	alias := n.alias
	if alias == "" {
		alias = n.name
	}
	if cb, ok := qb.cteDefs[strings.ToLower(n.name)]; ok {
		return qb.buildCTEReference(cb, alias)
	}
	entry, ok := qb.cat.Lookup(n.name)
	if !ok {
		return nil, nil, sql.AtPosition(sql.ErrPlanning.New("no such table: "+n.name), n.pos)
	}
	scan := plan.NewTableScan(entry.Schema, alias)
	sc := newScope().withTable(alias, scan.RelType().Columns, scan.Attributes())
	return scan, sc, nil
}

// buildCTEReference builds a CTE's definition fresh for each FROM-clause
// mention, so a self-join against a CTE gets independent attribute ids on
// each side rather than aliasing one row twice.
func (qb *queryBuilder) buildCTEReference(cb *cteBinding, alias string) (sql.RelationalNode, *scope, error) {
	if cb.inRecursive {
		ws := plan.NewWorkingTableScan(cb.def.name, cb.workingAttrs, cb.workingType)
		sc := newScope().withTable(alias, cb.workingType.Columns, ws.Attributes())
		return ws, sc, nil
	}
	if cb.def.recursive {
		return qb.buildRecursiveCTE(cb, alias)
	}
	sub := newQueryBuilder(qb.cat, qb.funcs, qb.maxIter)
	sub.cteDefs = qb.cteDefs
	node, _, err := sub.buildSelect(cb.def.query)
	if err != nil {
		return nil, nil, err
	}
	cols := applyCTEColumnNames(node.RelType().Columns, cb.def.columns)
	sc := newScope().withTable(alias, cols, node.Attributes())
	return node, sc, nil
}

func applyCTEColumnNames(cols []sql.ColumnDef, names []string) []sql.ColumnDef {
	if len(names) == 0 {
		return cols
	}
	out := make([]sql.ColumnDef, len(cols))
	copy(out, cols)
	for i := range out {
		if i < len(names) {
			out[i].Name = names[i]
		}
	}
	return out
}

// buildRecursiveCTE handles the `anchor UNION [ALL] recursive` shape: the
// anchor is built first (it must not reference the CTE's own name), then
// the recursive term is built with the CTE name rebound to a
// WorkingTableScan carrying the anchor's own attribute ids.
func (qb *queryBuilder) buildRecursiveCTE(cb *cteBinding, alias string) (sql.RelationalNode, *scope, error) {
	body := cb.def.query
	if body.setOp == nil {
		// Not actually self-referential; fall back to a plain CTE build.
		sub := newQueryBuilder(qb.cat, qb.funcs, qb.maxIter)
		sub.cteDefs = qb.cteDefs
		node, _, err := sub.buildSelect(body)
		if err != nil {
			return nil, nil, err
		}
		cols := applyCTEColumnNames(node.RelType().Columns, cb.def.columns)
		sc := newScope().withTable(alias, cols, node.Attributes())
		return node, sc, nil
	}

	anchorStmt := &selectStmt{base: body.base, with: body.with, distinct: body.distinct, columns: body.columns,
		from: body.from, where: body.where, groupBy: body.groupBy, having: body.having, values: body.values}
	anchorBuilder := newQueryBuilder(qb.cat, qb.funcs, qb.maxIter)
	anchorBuilder.cteDefs = qb.cteDefs
	anchorNode, _, err := anchorBuilder.buildSelectCore(anchorStmt)
	if err != nil {
		return nil, nil, err
	}
	cols := applyCTEColumnNames(anchorNode.RelType().Columns, cb.def.columns)
	workingType := sql.RelationType{Columns: cols}

	cb.inRecursive = true
	cb.workingAttrs = anchorNode.Attributes()
	cb.workingType = workingType

	recStmt := body.setOp.next
	recBuilder := newQueryBuilder(qb.cat, qb.funcs, qb.maxIter)
	recBuilder.cteDefs = qb.cteDefs
	recNode, _, err := recBuilder.buildSelectCore(recStmt)
	cb.inRecursive = false
	if err != nil {
		return nil, nil, err
	}

	rcte := plan.NewRecursiveCTE(cb.def.name, anchorNode, recNode, qb.maxIter, body.setOp.all)
	sc := newScope().withTable(alias, cols, rcte.Attributes())
	return rcte, sc, nil
}

func (qb *queryBuilder) buildSubqueryTable(n *subqueryTable) (sql.RelationalNode, *scope, error) {
	sub := newQueryBuilder(qb.cat, qb.funcs, qb.maxIter)
	sub.cteDefs = qb.cteDefs
	node, _, err := sub.buildSelect(n.query)
	if err != nil {
		return nil, nil, err
	}
	alias := n.alias
	sc := newScope().withTable(alias, node.RelType().Columns, node.Attributes())
	return node, sc, nil
}

func (qb *queryBuilder) buildJoin(j *joinExpr) (sql.RelationalNode, *scope, error) {
	left, leftScope, err := qb.buildFrom(j.left)
	if err != nil {
		return nil, nil, err
	}
	right, rightScope, err := qb.buildFrom(j.right)
	if err != nil {
		return nil, nil, err
	}
	combined := leftScope.merge(rightScope)

	var kind plan.JoinKind
	var predicate sql.ScalarNode
	switch j.kind {
	case joinInnerAST:
		kind = plan.JoinInner
	case joinLeftAST:
		kind = plan.JoinLeft
	case joinCrossAST:
		kind = plan.JoinInner
		predicate = expr.NewLiteral(true, sql.Boolean)
	default:
		return nil, nil, sql.AtPosition(sql.ErrInternal.New("unknown join kind"), j.pos)
	}
	if predicate == nil {
		if j.on == nil {
			return nil, nil, sql.AtPosition(sql.ErrPlanning.New("join requires an ON condition"), j.pos)
		}
		predicate, err = qb.exprs.build(j.on, combined)
		if err != nil {
			return nil, nil, err
		}
	}

	node, err := plan.NewJoin(kind, left, right, predicate)
	if err != nil {
		return nil, nil, sql.AtPosition(err, j.pos)
	}
	if kind == plan.JoinLeft {
		combined = markNullable(combined, rightScope)
	}
	return node, combined, nil
}

// markNullable returns a copy of combined where every column also present
// in rightCols (the inner side of a LEFT JOIN) is tagged nullable, since a
// non-matching outer row null-pads that side.
func markNullable(combined *scope, rightScope *scope) *scope {
	rightAttrs := make(map[sql.Attribute]bool, len(rightScope.columns))
	for _, c := range rightScope.columns {
		rightAttrs[c.attr] = true
	}
	out := &scope{columns: make([]columnBinding, len(combined.columns))}
	for i, c := range combined.columns {
		if rightAttrs[c.attr] {
			c.typ.Nullable = true
		}
		out.columns[i] = c
	}
	return out
}

// selectHasAggregate reports whether any select-list item or the HAVING
// clause invokes a registered aggregate function.
func selectHasAggregate(s *selectStmt, funcs *funcreg.Registry) bool {
	for _, item := range s.columns {
		if item.expr != nil && exprHasAggregate(item.expr, funcs) {
			return true
		}
	}
	return s.having != nil && exprHasAggregate(s.having, funcs)
}

func exprHasAggregate(n exprNode, funcs *funcreg.Registry) bool {
	switch t := n.(type) {
	case *funcCallNode:
		if _, ok := funcs.ResolveAggregate(t.name); ok {
			return true
		}
		for _, a := range t.args {
			if exprHasAggregate(a, funcs) {
				return true
			}
		}
		return false
	case *unaryNode:
		return exprHasAggregate(t.operand, funcs)
	case *binaryNode:
		return exprHasAggregate(t.left, funcs) || exprHasAggregate(t.right, funcs)
	case *concatNode:
		return exprHasAggregate(t.left, funcs) || exprHasAggregate(t.right, funcs)
	case *betweenNode:
		return exprHasAggregate(t.val, funcs) || exprHasAggregate(t.lo, funcs) || exprHasAggregate(t.hi, funcs)
	case *likeNode:
		return exprHasAggregate(t.val, funcs) || exprHasAggregate(t.pattern, funcs)
	case *isNullNode:
		return exprHasAggregate(t.val, funcs)
	case *inListNode:
		if exprHasAggregate(t.val, funcs) {
			return true
		}
		for _, item := range t.list {
			if exprHasAggregate(item, funcs) {
				return true
			}
		}
		return false
	case *caseNode:
		for _, wc := range t.whens {
			if exprHasAggregate(wc.when, funcs) || exprHasAggregate(wc.then, funcs) {
				return true
			}
		}
		if t.els != nil {
			return exprHasAggregate(t.els, funcs)
		}
		return false
	case *castNode:
		return exprHasAggregate(t.inner, funcs)
	case *collateNode:
		return exprHasAggregate(t.inner, funcs)
	case *parenNode:
		return exprHasAggregate(t.inner, funcs)
	default:
		return false
	}
}

// buildGroupBy lowers GROUP BY / aggregate-bearing SELECT lists into a
// plan.GroupBy node, returning a scope exposing the group keys and each
// aggregate's output under resolvedRef bindings so the select-list /
// HAVING rewrite (below) can reference them directly.
func (qb *queryBuilder) buildGroupBy(s *selectStmt, source sql.RelationalNode, sourceScope *scope) (sql.RelationalNode, *scope, error) {
	groupExprs := make([]sql.ScalarNode, len(s.groupBy))
	groupNames := make([]string, len(s.groupBy))
	groupTypes := make([]sql.ScalarType, len(s.groupBy))
	groupKeys := make(map[string]columnBinding)

	for i, g := range s.groupBy {
		ge, err := qb.exprs.build(g, sourceScope)
		if err != nil {
			return nil, nil, err
		}
		groupExprs[i] = ge
		groupNames[i] = exprDisplayName(g, i)
		groupTypes[i] = ge.Type()
	}

	// Group key attributes are allocated up front (rather than inside
	// NewGroupBy) so the SELECT list and HAVING can be rewritten to
	// reference them by resolvedRef before the GroupBy node itself exists.
	groupAttrs := plan.NewGroupKeyAttrs(len(s.groupBy))
	for i, g := range s.groupBy {
		if id, ok := g.(*identNode); ok {
			col, err := sourceScope.resolve(id.parts)
			if err != nil {
				return nil, nil, sql.AtPosition(err, id.pos)
			}
			groupKeys[identKey(id.parts)] = columnBinding{table: "", name: groupNames[i], attr: groupAttrs[i], typ: col.typ}
			groupKeys[strings.ToLower(col.name)] = columnBinding{table: "", name: groupNames[i], attr: groupAttrs[i], typ: col.typ}
		} else {
			groupKeys[exprKey(g)] = columnBinding{table: "", name: groupNames[i], attr: groupAttrs[i], typ: groupTypes[i]}
		}
	}

	var aggregates []plan.AggregateExpr
	rewriteItem := func(n exprNode) (exprNode, error) {
		rewritten, err := qb.rewriteForAggregation(n, sourceScope, &aggregates)
		if err != nil {
			return nil, err
		}
		return substituteGroupKeys(rewritten, groupKeys)
	}

	finalColumns := make([]selectItem, len(s.columns))
	for i, item := range s.columns {
		if item.star != nil {
			return nil, nil, sql.AtPosition(sql.ErrUnsupported.New("* is not allowed in an aggregate query"), s.pos)
		}
		rewritten, err := rewriteItem(item.expr)
		if err != nil {
			return nil, nil, err
		}
		finalColumns[i] = selectItem{expr: rewritten, alias: item.alias}
	}
	s.columns = finalColumns

	var having sql.ScalarNode
	if s.having != nil {
		rewritten, err := rewriteItem(s.having)
		if err != nil {
			return nil, nil, err
		}
		having, err = qb.exprs.build(rewritten, newScope())
		if err != nil {
			return nil, nil, err
		}
	}

	gb := plan.NewGroupBy(source, groupExprs, groupAttrs, groupNames, groupTypes, aggregates, having)

	outScope := newScope()
	for i, name := range groupNames {
		outScope.columns = append(outScope.columns, columnBinding{table: "", name: name, attr: gb.GroupAttrs[i], typ: groupTypes[i]})
	}
	for _, a := range aggregates {
		outScope.columns = append(outScope.columns, columnBinding{table: "", name: a.Name, attr: a.Attr, typ: a.Typ})
	}
	return gb, outScope, nil
}

// rewriteForAggregation walks n, replacing every aggregate function call
// with a resolvedRef bound to a freshly allocated attribute and appending
// the corresponding plan.AggregateExpr to aggregates. Non-aggregate
// subtrees are rebuilt unchanged; column references are left as-is and
// resolved later by substituteGroupKeys (or rejected by GetField
// resolution against the post-aggregation scope if not actually a group
// key).
func (qb *queryBuilder) rewriteForAggregation(n exprNode, sourceScope *scope, aggregates *[]plan.AggregateExpr) (exprNode, error) {
	switch t := n.(type) {
	case *funcCallNode:
		if def, ok := qb.funcs.ResolveAggregate(t.name); ok {
			var args []sql.ScalarNode
			var argTypes []sql.ScalarType
			if !t.star {
				for _, a := range t.args {
					ae, err := qb.exprs.build(a, sourceScope)
					if err != nil {
						return nil, err
					}
					args = append(args, ae)
					argTypes = append(argTypes, ae.Type())
				}
			}
			attr := sql.NewAttribute()
			typ := aggregateResultType(t.name, argTypes)
			_ = def
			*aggregates = append(*aggregates, plan.AggregateExpr{
				FuncName: strings.ToUpper(t.name), Args: args, Attr: attr, Name: funcDisplayName(t), Typ: typ,
			})
			return &resolvedRef{base: t.base, attr: attr, typ: typ, name: funcDisplayName(t)}, nil
		}
		newArgs := make([]exprNode, len(t.args))
		for i, a := range t.args {
			na, err := qb.rewriteForAggregation(a, sourceScope, aggregates)
			if err != nil {
				return nil, err
			}
			newArgs[i] = na
		}
		return &funcCallNode{base: t.base, name: t.name, args: newArgs, star: t.star, distinct: t.distinct}, nil
	case *unaryNode:
		op, err := qb.rewriteForAggregation(t.operand, sourceScope, aggregates)
		if err != nil {
			return nil, err
		}
		return &unaryNode{base: t.base, op: t.op, operand: op}, nil
	case *binaryNode:
		l, err := qb.rewriteForAggregation(t.left, sourceScope, aggregates)
		if err != nil {
			return nil, err
		}
		r, err := qb.rewriteForAggregation(t.right, sourceScope, aggregates)
		if err != nil {
			return nil, err
		}
		return &binaryNode{base: t.base, op: t.op, left: l, right: r}, nil
	case *concatNode:
		l, err := qb.rewriteForAggregation(t.left, sourceScope, aggregates)
		if err != nil {
			return nil, err
		}
		r, err := qb.rewriteForAggregation(t.right, sourceScope, aggregates)
		if err != nil {
			return nil, err
		}
		return &concatNode{base: t.base, left: l, right: r}, nil
	case *betweenNode:
		v, err := qb.rewriteForAggregation(t.val, sourceScope, aggregates)
		if err != nil {
			return nil, err
		}
		lo, err := qb.rewriteForAggregation(t.lo, sourceScope, aggregates)
		if err != nil {
			return nil, err
		}
		hi, err := qb.rewriteForAggregation(t.hi, sourceScope, aggregates)
		if err != nil {
			return nil, err
		}
		return &betweenNode{base: t.base, val: v, lo: lo, hi: hi, not: t.not}, nil
	case *likeNode:
		v, err := qb.rewriteForAggregation(t.val, sourceScope, aggregates)
		if err != nil {
			return nil, err
		}
		p, err := qb.rewriteForAggregation(t.pattern, sourceScope, aggregates)
		if err != nil {
			return nil, err
		}
		return &likeNode{base: t.base, val: v, pattern: p, escape: t.escape, not: t.not}, nil
	case *isNullNode:
		v, err := qb.rewriteForAggregation(t.val, sourceScope, aggregates)
		if err != nil {
			return nil, err
		}
		return &isNullNode{base: t.base, val: v, not: t.not}, nil
	case *inListNode:
		v, err := qb.rewriteForAggregation(t.val, sourceScope, aggregates)
		if err != nil {
			return nil, err
		}
		list := make([]exprNode, len(t.list))
		for i, item := range t.list {
			li, err := qb.rewriteForAggregation(item, sourceScope, aggregates)
			if err != nil {
				return nil, err
			}
			list[i] = li
		}
		return &inListNode{base: t.base, val: v, list: list, not: t.not}, nil
	case *caseNode:
		var operand exprNode
		var err error
		if t.operand != nil {
			operand, err = qb.rewriteForAggregation(t.operand, sourceScope, aggregates)
			if err != nil {
				return nil, err
			}
		}
		whens := make([]whenClause, len(t.whens))
		for i, wc := range t.whens {
			w, err := qb.rewriteForAggregation(wc.when, sourceScope, aggregates)
			if err != nil {
				return nil, err
			}
			th, err := qb.rewriteForAggregation(wc.then, sourceScope, aggregates)
			if err != nil {
				return nil, err
			}
			whens[i] = whenClause{when: w, then: th}
		}
		var els exprNode
		if t.els != nil {
			els, err = qb.rewriteForAggregation(t.els, sourceScope, aggregates)
			if err != nil {
				return nil, err
			}
		}
		return &caseNode{base: t.base, operand: operand, whens: whens, els: els}, nil
	case *castNode:
		in, err := qb.rewriteForAggregation(t.inner, sourceScope, aggregates)
		if err != nil {
			return nil, err
		}
		return &castNode{base: t.base, inner: in, typName: t.typName}, nil
	case *collateNode:
		in, err := qb.rewriteForAggregation(t.inner, sourceScope, aggregates)
		if err != nil {
			return nil, err
		}
		return &collateNode{base: t.base, inner: in, name: t.name}, nil
	case *parenNode:
		return qb.rewriteForAggregation(t.inner, sourceScope, aggregates)
	default:
		return n, nil
	}
}

// substituteGroupKeys walks n (already passed through
// rewriteForAggregation) and replaces any subtree matching a GROUP BY key
// — a bare column reference, or a structurally identical compound
// expression — with its resolvedRef. Anything left over that is still an
// identNode is a column used outside both GROUP BY and an aggregate,
// which is a planning error.
func substituteGroupKeys(n exprNode, groupKeys map[string]columnBinding) (exprNode, error) {
	if gb, ok := groupKeys[exprKey(n)]; ok {
		return &resolvedRef{base: base{n.exprPos()}, attr: gb.attr, typ: gb.typ, name: gb.name}, nil
	}
	switch t := n.(type) {
	case *identNode:
		if gb, ok := groupKeys[identKey(t.parts)]; ok {
			return &resolvedRef{base: t.base, attr: gb.attr, typ: gb.typ, name: gb.name}, nil
		}
		return nil, sql.AtPosition(sql.ErrPlanning.New("column must appear in GROUP BY or be used in an aggregate: "+strings.Join(t.parts, ".")), t.pos)
	case *resolvedRef:
		return t, nil
	case *literalNode, *boolLiteralNode, *paramNode:
		return t, nil
	case *unaryNode:
		op, err := substituteGroupKeys(t.operand, groupKeys)
		if err != nil {
			return nil, err
		}
		return &unaryNode{base: t.base, op: t.op, operand: op}, nil
	case *binaryNode:
		l, err := substituteGroupKeys(t.left, groupKeys)
		if err != nil {
			return nil, err
		}
		r, err := substituteGroupKeys(t.right, groupKeys)
		if err != nil {
			return nil, err
		}
		return &binaryNode{base: t.base, op: t.op, left: l, right: r}, nil
	case *concatNode:
		l, err := substituteGroupKeys(t.left, groupKeys)
		if err != nil {
			return nil, err
		}
		r, err := substituteGroupKeys(t.right, groupKeys)
		if err != nil {
			return nil, err
		}
		return &concatNode{base: t.base, left: l, right: r}, nil
	case *betweenNode:
		v, err := substituteGroupKeys(t.val, groupKeys)
		if err != nil {
			return nil, err
		}
		lo, err := substituteGroupKeys(t.lo, groupKeys)
		if err != nil {
			return nil, err
		}
		hi, err := substituteGroupKeys(t.hi, groupKeys)
		if err != nil {
			return nil, err
		}
		return &betweenNode{base: t.base, val: v, lo: lo, hi: hi, not: t.not}, nil
	case *likeNode:
		v, err := substituteGroupKeys(t.val, groupKeys)
		if err != nil {
			return nil, err
		}
		p, err := substituteGroupKeys(t.pattern, groupKeys)
		if err != nil {
			return nil, err
		}
		return &likeNode{base: t.base, val: v, pattern: p, escape: t.escape, not: t.not}, nil
	case *isNullNode:
		v, err := substituteGroupKeys(t.val, groupKeys)
		if err != nil {
			return nil, err
		}
		return &isNullNode{base: t.base, val: v, not: t.not}, nil
	case *inListNode:
		v, err := substituteGroupKeys(t.val, groupKeys)
		if err != nil {
			return nil, err
		}
		list := make([]exprNode, len(t.list))
		for i, item := range t.list {
			li, err := substituteGroupKeys(item, groupKeys)
			if err != nil {
				return nil, err
			}
			list[i] = li
		}
		return &inListNode{base: t.base, val: v, list: list, not: t.not}, nil
	case *caseNode:
		var operand exprNode
		var err error
		if t.operand != nil {
			operand, err = substituteGroupKeys(t.operand, groupKeys)
			if err != nil {
				return nil, err
			}
		}
		whens := make([]whenClause, len(t.whens))
		for i, wc := range t.whens {
			w, err := substituteGroupKeys(wc.when, groupKeys)
			if err != nil {
				return nil, err
			}
			th, err := substituteGroupKeys(wc.then, groupKeys)
			if err != nil {
				return nil, err
			}
			whens[i] = whenClause{when: w, then: th}
		}
		var els exprNode
		if t.els != nil {
			els, err = substituteGroupKeys(t.els, groupKeys)
			if err != nil {
				return nil, err
			}
		}
		return &caseNode{base: t.base, operand: operand, whens: whens, els: els}, nil
	case *castNode:
		in, err := substituteGroupKeys(t.inner, groupKeys)
		if err != nil {
			return nil, err
		}
		return &castNode{base: t.base, inner: in, typName: t.typName}, nil
	case *collateNode:
		in, err := substituteGroupKeys(t.inner, groupKeys)
		if err != nil {
			return nil, err
		}
		return &collateNode{base: t.base, inner: in, name: t.name}, nil
	case *parenNode:
		return substituteGroupKeys(t.inner, groupKeys)
	case *funcCallNode:
		args := make([]exprNode, len(t.args))
		for i, a := range t.args {
			na, err := substituteGroupKeys(a, groupKeys)
			if err != nil {
				return nil, err
			}
			args[i] = na
		}
		return &funcCallNode{base: t.base, name: t.name, args: args, star: t.star, distinct: t.distinct}, nil
	default:
		return n, nil
	}
}

func identKey(parts []string) string { return strings.ToLower(strings.Join(parts, ".")) }

// exprKey renders a cheap canonical form of a scalar AST node, used to
// recognize a SELECT-list expression that is structurally identical to a
// non-identifier GROUP BY key (e.g. `GROUP BY price * qty` matching a
// `price * qty` select item).
func exprKey(n exprNode) string {
	switch t := n.(type) {
	case *identNode:
		return "id:" + identKey(t.parts)
	case *literalNode:
		return "lit:" + sql.ValueToText(t.value)
	case *boolLiteralNode:
		return "bool:" + strconv.FormatBool(t.value)
	case *binaryNode:
		return "bin:" + strconv.Itoa(int(t.op)) + "(" + exprKey(t.left) + "," + exprKey(t.right) + ")"
	case *concatNode:
		return "concat(" + exprKey(t.left) + "," + exprKey(t.right) + ")"
	case *unaryNode:
		return "un:" + strconv.Itoa(int(t.op)) + "(" + exprKey(t.operand) + ")"
	case *funcCallNode:
		parts := make([]string, len(t.args))
		for i, a := range t.args {
			parts[i] = exprKey(a)
		}
		return "fn:" + strings.ToLower(t.name) + "(" + strings.Join(parts, ",") + ")"
	case *parenNode:
		return exprKey(t.inner)
	case *castNode:
		return "cast:" + t.typName + "(" + exprKey(t.inner) + ")"
	default:
		return "?"
	}
}

func funcDisplayName(f *funcCallNode) string { return strings.ToLower(f.name) }

func exprDisplayName(n exprNode, idx int) string {
	switch t := n.(type) {
	case *identNode:
		return t.parts[len(t.parts)-1]
	case *funcCallNode:
		return funcDisplayName(t)
	default:
		return "column" + strconv.Itoa(idx+1)
	}
}

func aggregateResultType(name string, argTypes []sql.ScalarType) sql.ScalarType {
	switch strings.ToUpper(name) {
	case "COUNT":
		return sql.Integer
	case "AVG":
		return sql.Real
	case "SUM":
		if len(argTypes) == 1 && argTypes[0].Kind == sql.KindInteger {
			return sql.Integer
		}
		return sql.Real
	case "MIN", "MAX":
		if len(argTypes) == 1 {
			return argTypes[0]
		}
		return sql.AnyNull
	default:
		return sql.AnyNull
	}
}

// buildProjection lowers the SELECT list (with `*`/`alias.*` expansion)
// into a plan.Project, returning the output scope naming each projected
// column by its alias (or derived name) for ORDER BY / outer reference.
func (qb *queryBuilder) buildProjection(items []selectItem, source sql.RelationalNode, sc *scope) (*plan.Project, *scope, error) {
	var exprs []sql.ScalarNode
	var names []string
	var types []sql.ScalarType

	for i, item := range items {
		if item.star != nil {
			cols, err := sc.tableColumns(item.star.table)
			if err != nil {
				return nil, nil, err
			}
			for _, c := range cols {
				exprs = append(exprs, expr.NewGetField(c.attr, c.typ, c.name))
				names = append(names, c.name)
				types = append(types, c.typ)
			}
			continue
		}
		e, err := qb.exprs.build(item.expr, sc)
		if err != nil {
			return nil, nil, err
		}
		name := item.alias
		if name == "" {
			name = exprDisplayName(item.expr, i)
		}
		exprs = append(exprs, e)
		names = append(names, name)
		types = append(types, e.Type())
	}

	proj := plan.NewProject(source, exprs, names, types)
	outScope := newScope()
	attrs := proj.Attributes()
	for i := range names {
		outScope.columns = append(outScope.columns, columnBinding{table: "", name: names[i], attr: attrs[i], typ: types[i]})
	}
	return proj, outScope, nil
}

// buildSortKeys resolves each ORDER BY item either against the
// projection's own output aliases (so `ORDER BY alias` works) or, failing
// that, re-lowers the expression directly against projScope.
func (qb *queryBuilder) buildSortKeys(items []orderItem, source sql.RelationalNode, projScope *scope) ([]sql.SortKey, error) {
	rt := source.RelType()
	attrs := source.Attributes()
	keys := make([]sql.SortKey, len(items))
	for i, item := range items {
		var colIndex = -1
		var collation sql.CollationFn
		if id, ok := item.expr.(*identNode); ok && len(id.parts) == 1 {
			for ci, c := range rt.Columns {
				if strings.EqualFold(c.Name, id.parts[0]) {
					colIndex = ci
					collation = sql.ResolveCollation(c.Collation)
					break
				}
			}
		}
		if colIndex == -1 {
			e, err := qb.exprs.build(item.expr, projScope)
			if err != nil {
				return nil, err
			}
			gf, ok := e.(*expr.GetField)
			if !ok {
				return nil, sql.AtPosition(sql.ErrUnsupported.New("ORDER BY expression must reference an output column"), item.expr.exprPos())
			}
			for ci, a := range attrs {
				if a == gf.Attribute {
					colIndex = ci
					collation = sql.ResolveCollation(gf.Typ.Collation)
					break
				}
			}
			if colIndex == -1 {
				return nil, sql.AtPosition(sql.ErrPlanning.New("ORDER BY references an unknown column"), item.expr.exprPos())
			}
		}
		keys[i] = sql.SortKey{ColumnIndex: colIndex, Descending: item.desc, Collation: collation}
	}
	return keys, nil
}

// evalConstInt evaluates a LIMIT/OFFSET expression, which must be a
// constant integer literal (no column or subquery is meaningful there).
// A nil node reports hasValue=false.
func evalConstInt(n exprNode) (value int64, hasValue bool, err error) {
	if n == nil {
		return 0, false, nil
	}
	lit, ok := n.(*literalNode)
	if !ok {
		return 0, false, sql.AtPosition(sql.ErrUnsupported.New("LIMIT/OFFSET must be a constant integer"), n.exprPos())
	}
	i, ok := lit.value.(int64)
	if !ok {
		return 0, false, sql.AtPosition(sql.ErrUnsupported.New("LIMIT/OFFSET must be a constant integer"), n.exprPos())
	}
	return i, true, nil
}
