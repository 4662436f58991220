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

// Package optimizer rewrites a logical plan into a physical one (§4.4,
// §4.5): pushing filters down into a table scan's access plan, choosing
// nested-loop vs. hash join strategy, and wrapping a join's re-driven
// inner side in a Cache node. The rewrite is a single bottom-up pass over
// the plan tree driven entirely through the RelationalNode
// Children/WithChildren contract, so it needs no type switch to recurse —
// only to decide what to do at each node once its children are already
// physical.
package optimizer

import (
	"github.com/dolthub/quereus/catalog"
	"github.com/dolthub/quereus/expr"
	"github.com/dolthub/quereus/plan"
	"github.com/dolthub/quereus/sql"
)

// Config carries the tunables the optimizer itself consults.
type Config struct {
	CacheAbandonThreshold int64
	MaxCTEIterations      int64
}

// Optimize rewrites node bottom-up into a physical plan.
func Optimize(ctx *sql.Context, cat *catalog.Catalog, cfg Config, node sql.RelationalNode) (sql.RelationalNode, error) {
	children := node.Children()
	if len(children) > 0 {
		newChildren := make([]sql.RelationalNode, len(children))
		for i, c := range children {
			nc, err := Optimize(ctx, cat, cfg, c)
			if err != nil {
				return nil, err
			}
			newChildren[i] = nc
		}
		var err error
		node, err = node.WithChildren(newChildren...)
		if err != nil {
			return nil, err
		}
	}
	return rewriteNode(ctx, cat, cfg, node)
}

func rewriteNode(ctx *sql.Context, cat *catalog.Catalog, cfg Config, node sql.RelationalNode) (sql.RelationalNode, error) {
	switch n := node.(type) {
	case *plan.Filter:
		return pushdownFilter(ctx, cat, n)
	case *plan.Join:
		return chooseJoinStrategy(cfg, n)
	default:
		return node, nil
	}
}

// pushdownFilter asks the table's module what it can enforce itself and
// narrows the scan's ScanPlan accordingly, dropping handled conjuncts
// from the residual Filter (eliding the Filter entirely when every
// conjunct was handled). Scope is deliberately limited to constraints on
// a single column that is the first component of the table's primary
// key — the common seek-by-PK case the spec's ScanPlan (a single
// Equality/Lower/Upper row, not a per-column map) is shaped for — rather
// than general multi-column composite-index matching.
func pushdownFilter(ctx *sql.Context, cat *catalog.Catalog, f *plan.Filter) (sql.RelationalNode, error) {
	ts, ok := f.Child.(*plan.TableScan)
	if !ok {
		return f, nil
	}
	if len(ts.Schema.PrimaryKey) == 0 {
		return f, nil
	}
	pkCol := ts.Schema.PrimaryKey[0].ColumnIndex
	attrs := ts.Attributes()
	if pkCol >= len(attrs) {
		return f, nil
	}
	pkAttr := attrs[pkCol]

	mod, err := cat.Module(ts.Schema.Module)
	if err != nil {
		return f, nil
	}

	conjuncts := splitConjuncts(f.Predicate)
	var residual []sql.ScalarNode
	sp := ts.ScanPlan
	pushed := false

	for _, c := range conjuncts {
		op, val, ok := pkConstraint(c, pkAttr)
		if !ok {
			residual = append(residual, c)
			continue
		}
		req := sql.AccessRequest{
			Filters:       []sql.FilterConstraint{{ColumnIndex: pkCol, Operator: op, Usable: true, Value: val}},
			EstimatedRows: ts.Schema.EstimatedRows,
		}
		ap, err := mod.BestAccessPlan(ctx, ts.Schema, req)
		if err != nil || len(ap.Handled) == 0 || !ap.Handled[0] {
			residual = append(residual, c)
			continue
		}
		switch op {
		case sql.OpEQ:
			sp.Equality = sql.Row{val}
		case sql.OpLT:
			sp.Upper, sp.UpperIncl = sql.Row{val}, false
		case sql.OpLE:
			sp.Upper, sp.UpperIncl = sql.Row{val}, true
		case sql.OpGT:
			sp.Lower, sp.LowerIncl = sql.Row{val}, false
		case sql.OpGE:
			sp.Lower, sp.LowerIncl = sql.Row{val}, true
		default:
			residual = append(residual, c)
			continue
		}
		pushed = true
	}

	if !pushed {
		return f, nil
	}
	newScan := ts.WithScanPlan(sp)
	if len(residual) == 0 {
		return newScan, nil
	}
	return plan.NewFilter(newScan, combine(residual)), nil
}

func splitConjuncts(n sql.ScalarNode) []sql.ScalarNode {
	if lg, ok := n.(*expr.Logical); ok && lg.Op == expr.LogAnd {
		return append(splitConjuncts(lg.Left), splitConjuncts(lg.Right)...)
	}
	return []sql.ScalarNode{n}
}

func combine(list []sql.ScalarNode) sql.ScalarNode {
	result := list[0].(expr.Expr)
	for _, n := range list[1:] {
		result = expr.NewLogical(expr.LogAnd, result, n.(expr.Expr))
	}
	return result
}

// pkConstraint recognizes `pkAttr OP literal` or `literal OP pkAttr`
// (flipping the operator in the latter case) as a pushable constraint.
func pkConstraint(c sql.ScalarNode, pkAttr sql.Attribute) (sql.Operator, sql.Value, bool) {
	cmp, ok := c.(*expr.Comparison)
	if !ok {
		return 0, nil, false
	}
	if gf, ok := cmp.Left.(*expr.GetField); ok && gf.Attribute == pkAttr {
		if lit, ok := cmp.Right.(*expr.Literal); ok {
			if op, ok := toOperator(cmp.Op); ok {
				return op, lit.Value, true
			}
		}
	}
	if gf, ok := cmp.Right.(*expr.GetField); ok && gf.Attribute == pkAttr {
		if lit, ok := cmp.Left.(*expr.Literal); ok {
			if op, ok := toOperator(flip(cmp.Op)); ok {
				return op, lit.Value, true
			}
		}
	}
	return 0, nil, false
}

func flip(op expr.CompareOp) expr.CompareOp {
	switch op {
	case expr.CmpLT:
		return expr.CmpGT
	case expr.CmpLE:
		return expr.CmpGE
	case expr.CmpGT:
		return expr.CmpLT
	case expr.CmpGE:
		return expr.CmpLE
	default:
		return op
	}
}

func toOperator(op expr.CompareOp) (sql.Operator, bool) {
	switch op {
	case expr.CmpEQ:
		return sql.OpEQ, true
	case expr.CmpNE:
		return sql.OpNE, true
	case expr.CmpLT:
		return sql.OpLT, true
	case expr.CmpLE:
		return sql.OpLE, true
	case expr.CmpGT:
		return sql.OpGT, true
	case expr.CmpGE:
		return sql.OpGE, true
	default:
		return 0, false
	}
}

// chooseJoinStrategy picks hash join when an equi-join column pair
// exists between the two sides, nested-loop otherwise, and wraps the
// inner (right) side in a Cache node when nested-loop ends up driving it
// repeatedly — the access pattern Cache's abandon-on-threshold buffering
// targets (§4.4).
func chooseJoinStrategy(cfg Config, j *plan.Join) (sql.RelationalNode, error) {
	leftAttrs := make(map[sql.Attribute]bool, len(j.Left.Attributes()))
	for _, a := range j.Left.Attributes() {
		leftAttrs[a] = true
	}
	if hasEquiJoin(j.Predicate, leftAttrs) {
		return j.WithStrategy(plan.StrategyHash), nil
	}
	out := j.WithStrategy(plan.StrategyNestedLoop)
	if _, isScan := out.Right.(*plan.TableScan); isScan {
		return out, nil
	}
	cached := plan.NewCache(out.Right, cfg.CacheAbandonThreshold)
	rewritten, err := out.WithChildren(out.Left, cached)
	if err != nil {
		return nil, err
	}
	return rewritten, nil
}

func hasEquiJoin(predicate sql.ScalarNode, leftAttrs map[sql.Attribute]bool) bool {
	for _, c := range splitConjuncts(predicate) {
		cmp, ok := c.(*expr.Comparison)
		if !ok || cmp.Op != expr.CmpEQ {
			continue
		}
		lf, lok := cmp.Left.(*expr.GetField)
		rf, rok := cmp.Right.(*expr.GetField)
		if !lok || !rok {
			continue
		}
		if leftAttrs[lf.Attribute] != leftAttrs[rf.Attribute] {
			return true
		}
	}
	return false
}
