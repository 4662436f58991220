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

	"github.com/dolthub/quereus/expr"
	"github.com/dolthub/quereus/funcreg"
	"github.com/dolthub/quereus/sql"
)

// exprBuilder lowers exprNode trees into expr.Expr trees, resolving
// identifiers against a scope. It carries no per-query state of its own
// beyond the function registry, so one builder serves every statement the
// engine compiles.
type exprBuilder struct {
	funcs *funcreg.Registry
}

func newExprBuilder(funcs *funcreg.Registry) *exprBuilder {
	return &exprBuilder{funcs: funcs}
}

func (b *exprBuilder) build(n exprNode, sc *scope) (expr.Expr, error) {
	switch t := n.(type) {
	case *literalNode:
		if t.isNull {
			return expr.NewLiteral(nil, sql.AnyNull), nil
		}
		return expr.NewLiteral(t.value, literalType(t.value)), nil
	case *boolLiteralNode:
		return expr.NewLiteral(t.value, sql.Boolean), nil
	case *identNode:
		col, err := sc.resolve(t.parts)
		if err != nil {
			return nil, sql.AtPosition(err, t.pos)
		}
		return expr.NewGetField(col.attr, col.typ, col.name), nil
	case *paramNode:
		return expr.NewParam(t.index, sql.AnyNull, t.name), nil
	case *parenNode:
		return b.build(t.inner, sc)
	case *unaryNode:
		return b.buildUnary(t, sc)
	case *binaryNode:
		return b.buildBinary(t, sc)
	case *concatNode:
		left, err := b.build(t.left, sc)
		if err != nil {
			return nil, err
		}
		right, err := b.build(t.right, sc)
		if err != nil {
			return nil, err
		}
		return expr.NewConcat(left, right), nil
	case *betweenNode:
		return b.buildBetween(t, sc)
	case *likeNode:
		return b.buildLike(t, sc)
	case *isNullNode:
		return b.buildIsNull(t, sc)
	case *inListNode:
		return b.buildInList(t, sc)
	case *caseNode:
		return b.buildCase(t, sc)
	case *castNode:
		return b.buildCast(t, sc)
	case *funcCallNode:
		return b.buildFuncCall(t, sc)
	case *collateNode:
		inner, err := b.build(t.inner, sc)
		if err != nil {
			return nil, err
		}
		return applyCollation(inner, t.name)
	case *resolvedRef:
		return expr.NewGetField(t.attr, t.typ, t.name), nil
	default:
		return nil, sql.ErrUnsupported.New("expression kind")
	}
}

func literalType(v sql.Value) sql.ScalarType {
	switch v.(type) {
	case int64:
		return sql.Integer
	case float64:
		return sql.Real
	case string:
		return sql.Text
	case []byte:
		return sql.Blob
	case bool:
		return sql.Boolean
	default:
		return sql.AnyNull
	}
}

func (b *exprBuilder) buildUnary(n *unaryNode, sc *scope) (expr.Expr, error) {
	operand, err := b.build(n.operand, sc)
	if err != nil {
		return nil, err
	}
	switch n.op {
	case Minus:
		return expr.NewArithmetic(expr.Sub, expr.NewLiteral(int64(0), sql.Integer), operand, operand.Type()), nil
	case Plus:
		return operand, nil
	case NOT:
		return expr.NewLogical(expr.LogNot, operand, nil), nil
	default:
		return nil, sql.ErrUnsupported.New("unary operator")
	}
}

func (b *exprBuilder) buildBinary(n *binaryNode, sc *scope) (expr.Expr, error) {
	left, err := b.build(n.left, sc)
	if err != nil {
		return nil, err
	}
	right, err := b.build(n.right, sc)
	if err != nil {
		return nil, err
	}
	arithType := arithResultType(left, right)
	switch n.op {
	case Plus:
		return expr.NewArithmetic(expr.Add, left, right, arithType), nil
	case Minus:
		return expr.NewArithmetic(expr.Sub, left, right, arithType), nil
	case Star:
		return expr.NewArithmetic(expr.Mul, left, right, arithType), nil
	case Slash:
		return expr.NewArithmetic(expr.Div, left, right, arithType), nil
	case Percent:
		return expr.NewArithmetic(expr.Mod, left, right, arithType), nil
	case Eq:
		return expr.NewComparison(expr.CmpEQ, left, right, nil), nil
	case Neq:
		return expr.NewComparison(expr.CmpNE, left, right, nil), nil
	case Lt:
		return expr.NewComparison(expr.CmpLT, left, right, nil), nil
	case Le:
		return expr.NewComparison(expr.CmpLE, left, right, nil), nil
	case Gt:
		return expr.NewComparison(expr.CmpGT, left, right, nil), nil
	case Ge:
		return expr.NewComparison(expr.CmpGE, left, right, nil), nil
	case AND:
		return expr.NewLogical(expr.LogAnd, left, right), nil
	case OR:
		return expr.NewLogical(expr.LogOr, left, right), nil
	case XOR:
		return expr.NewLogical(expr.LogXor, left, right), nil
	default:
		return nil, sql.ErrUnsupported.New("binary operator")
	}
}

// arithResultType picks Real whenever either operand might be
// non-integral, Integer otherwise; Arithmetic.Eval performs the actual
// int64/float64 coercion at evaluation time, so this is advisory typing
// for the column the expression reports, not a constraint it enforces.
func arithResultType(l, r expr.Expr) sql.ScalarType {
	if l.Type().Kind == sql.KindReal || r.Type().Kind == sql.KindReal {
		return sql.Real
	}
	return sql.Integer
}

func (b *exprBuilder) buildBetween(n *betweenNode, sc *scope) (expr.Expr, error) {
	val, err := b.build(n.val, sc)
	if err != nil {
		return nil, err
	}
	lo, err := b.build(n.lo, sc)
	if err != nil {
		return nil, err
	}
	hi, err := b.build(n.hi, sc)
	if err != nil {
		return nil, err
	}
	bt := expr.NewBetween(val, lo, hi, nil)
	if n.not {
		return expr.NewLogical(expr.LogNot, bt, nil), nil
	}
	return bt, nil
}

func (b *exprBuilder) buildLike(n *likeNode, sc *scope) (expr.Expr, error) {
	val, err := b.build(n.val, sc)
	if err != nil {
		return nil, err
	}
	pattern, err := b.build(n.pattern, sc)
	if err != nil {
		return nil, err
	}
	var escape rune
	if n.escape != nil {
		lit, ok := n.escape.(*literalNode)
		if !ok {
			return nil, sql.ErrUnsupported.New("ESCAPE clause must be a literal")
		}
		s, ok := lit.value.(string)
		if !ok || len([]rune(s)) != 1 {
			return nil, sql.ErrPlanning.New("ESCAPE must be a single character")
		}
		escape = []rune(s)[0]
	}
	lk := expr.NewLike(val, pattern, escape, true)
	if n.not {
		return expr.NewLogical(expr.LogNot, lk, nil), nil
	}
	return lk, nil
}

func (b *exprBuilder) buildIsNull(n *isNullNode, sc *scope) (expr.Expr, error) {
	val, err := b.build(n.val, sc)
	if err != nil {
		return nil, err
	}
	cmp := expr.NewComparison(expr.CmpIS, val, expr.NewLiteral(nil, sql.AnyNull), nil)
	if n.not {
		return expr.NewComparison(expr.CmpISNOT, val, expr.NewLiteral(nil, sql.AnyNull), nil), nil
	}
	return cmp, nil
}

// buildInList lowers `val IN (e1, e2, ...)` to a chain of equality
// comparisons joined by OR, since expr has no dedicated list-membership
// node. NOT IN wraps the whole chain in a single NOT.
func (b *exprBuilder) buildInList(n *inListNode, sc *scope) (expr.Expr, error) {
	val, err := b.build(n.val, sc)
	if err != nil {
		return nil, err
	}
	if len(n.list) == 0 {
		// An empty list is never a member; NOT IN () is always true
		// (ignoring null val, which SQL also treats as unknown/false here).
		return expr.NewLiteral(n.not, sql.Boolean), nil
	}
	var chain expr.Expr
	for _, item := range n.list {
		iv, err := b.build(item, sc)
		if err != nil {
			return nil, err
		}
		eq := expr.NewComparison(expr.CmpEQ, val, iv, nil)
		if chain == nil {
			chain = eq
		} else {
			chain = expr.NewLogical(expr.LogOr, chain, eq)
		}
	}
	if n.not {
		return expr.NewLogical(expr.LogNot, chain, nil), nil
	}
	return chain, nil
}

func (b *exprBuilder) buildCase(n *caseNode, sc *scope) (expr.Expr, error) {
	var operand expr.Expr
	var err error
	if n.operand != nil {
		operand, err = b.build(n.operand, sc)
		if err != nil {
			return nil, err
		}
	}
	var els expr.Expr
	if n.els != nil {
		els, err = b.build(n.els, sc)
		if err != nil {
			return nil, err
		}
	}
	branches := make([]expr.CaseBranch, len(n.whens))
	for i, wc := range n.whens {
		var cond expr.Expr
		if operand != nil {
			whenVal, werr := b.build(wc.when, sc)
			if werr != nil {
				return nil, werr
			}
			cond = expr.NewComparison(expr.CmpEQ, operand, whenVal, nil)
		} else {
			var cerr error
			cond, cerr = b.build(wc.when, sc)
			if cerr != nil {
				return nil, cerr
			}
		}
		then, terr := b.build(wc.then, sc)
		if terr != nil {
			return nil, terr
		}
		branches[i] = expr.CaseBranch{When: cond, Then: then}
	}
	typ := sql.AnyNull
	if len(branches) > 0 {
		typ = branches[0].Then.Type()
	} else if els != nil {
		typ = els.Type()
	}
	return expr.NewCase(branches, els, typ), nil
}

func (b *exprBuilder) buildCast(n *castNode, sc *scope) (expr.Expr, error) {
	inner, err := b.build(n.inner, sc)
	if err != nil {
		return nil, err
	}
	typ, err := resolveTypeName(n.typName)
	if err != nil {
		return nil, sql.AtPosition(err, n.pos)
	}
	return expr.NewCast(inner, typ), nil
}

func resolveTypeName(name string) (sql.ScalarType, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "INT", "INTEGER", "BIGINT", "SMALLINT":
		return sql.Integer, nil
	case "REAL", "FLOAT", "DOUBLE", "DOUBLE PRECISION", "NUMERIC", "DECIMAL":
		return sql.Real, nil
	case "TEXT", "VARCHAR", "CHAR", "CLOB":
		return sql.Text, nil
	case "BLOB":
		return sql.Blob, nil
	case "BOOLEAN", "BOOL":
		return sql.Boolean, nil
	default:
		return sql.ScalarType{}, sql.ErrUnsupported.New("unknown type name: " + name)
	}
}

func (b *exprBuilder) buildFuncCall(n *funcCallNode, sc *scope) (expr.Expr, error) {
	if n.star {
		// COUNT(*) is the only function form allowed to take *; it is
		// handled by the aggregate-building path in build_select.go before
		// reaching here, so seeing it here means it was used outside an
		// aggregate context.
		return nil, sql.AtPosition(sql.ErrPlanning.New("* is only valid inside COUNT()"), n.pos)
	}
	def, ok := b.funcs.ResolveScalar(n.name)
	if !ok {
		return nil, sql.AtPosition(sql.ErrPlanning.New("no such function: "+n.name), n.pos)
	}
	if def.Arity >= 0 && len(n.args) != def.Arity {
		return nil, sql.AtPosition(sql.ErrPlanning.New("wrong number of arguments to "+n.name), n.pos)
	}
	args := make([]expr.Expr, len(n.args))
	for i, a := range n.args {
		ae, err := b.build(a, sc)
		if err != nil {
			return nil, err
		}
		args[i] = ae
	}
	return expr.NewFunctionCall(n.name, args, def.Fn, sql.AnyNull), nil
}

func applyCollation(e expr.Expr, name string) (expr.Expr, error) {
	return expr.NewCollate(e, strings.ToUpper(name)), nil
}
