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

import "github.com/dolthub/quereus/sql"

// exprNode is every scalar expression AST node; the parser builds these
// directly off the token stream and the builder lowers them to expr.Expr
// trees once names have been resolved against a scope.
type exprNode interface {
	exprPos() sql.Position
}

type base struct{ pos sql.Position }

func (b base) exprPos() sql.Position { return b.pos }

type literalNode struct {
	base
	value sql.Value
	isNull bool
}

type boolLiteralNode struct {
	base
	value bool
}

type identNode struct {
	base
	parts []string // table.column, or just column
}

type starNode struct {
	base
	table string // qualifier for tbl.*, empty for bare *
}

type paramNode struct {
	base
	index int // 0-based, assigned by the parser in source order
	name  string
}

type unaryNode struct {
	base
	op      Kind // Minus, Plus, NOT
	operand exprNode
}

type binaryNode struct {
	base
	op          Kind
	left, right exprNode
}

type concatNode struct {
	base
	left, right exprNode
}

type betweenNode struct {
	base
	val, lo, hi exprNode
	not         bool
}

type likeNode struct {
	base
	val, pattern exprNode
	escape       exprNode
	not          bool
}

type isNullNode struct {
	base
	val exprNode
	not bool
}

type inListNode struct {
	base
	val  exprNode
	list []exprNode
	not  bool
}

type whenClause struct {
	when exprNode
	then exprNode
}

type caseNode struct {
	base
	operand exprNode // non-nil for the "CASE x WHEN ..." shorthand
	whens   []whenClause
	els     exprNode
}

type castNode struct {
	base
	inner   exprNode
	typName string
}

type funcCallNode struct {
	base
	name     string
	args     []exprNode
	star     bool // COUNT(*)
	distinct bool
}

type collateNode struct {
	base
	inner exprNode
	name  string
}

type parenNode struct {
	base
	inner exprNode
}

// selectItem is one output column of a SELECT list.
type selectItem struct {
	expr  exprNode
	alias string
	star  *starNode
}

// tableExpr is every FROM-clause construct: a bare table, a join, or a
// parenthesized subquery.
type tableExpr interface {
	tablePos() sql.Position
}

type tableName struct {
	base
	schema string
	name   string
	alias  string
}

type joinKindAST int

const (
	joinInnerAST joinKindAST = iota
	joinLeftAST
	joinCrossAST
)

type joinExpr struct {
	base
	left, right tableExpr
	kind        joinKindAST
	on          exprNode
}

type subqueryTable struct {
	base
	query *selectStmt
	alias string
}

func (t tableName) tablePos() sql.Position     { return t.pos }
func (j joinExpr) tablePos() sql.Position      { return j.pos }
func (s subqueryTable) tablePos() sql.Position { return s.pos }

type orderItem struct {
	expr exprNode
	desc bool
}

type cte struct {
	name      string
	recursive bool
	columns   []string
	query     *selectStmt
}

// setOpClause chains this select to another via UNION/INTERSECT/EXCEPT.
type setOpClause struct {
	kind Kind // UNION, INTERSECT, EXCEPT
	all  bool
	next *selectStmt
}

type selectStmt struct {
	base
	with     []cte
	distinct bool
	columns  []selectItem
	from     tableExpr
	where    exprNode
	groupBy  []exprNode
	having   exprNode
	orderBy  []orderItem
	limit    exprNode
	offset   exprNode
	setOp    *setOpClause
	// values holds a bare VALUES (...) , (...) statement in lieu of a
	// SELECT list/FROM; columns/from/where etc. are unused when set.
	values [][]exprNode
}

type setClause struct {
	column string
	value  exprNode
}

type insertStmt struct {
	base
	table      tableName
	columns    []string
	values     [][]exprNode
	query      *selectStmt
	onConflict sql.ConflictPolicy
	returning  []selectItem
}

type updateStmt struct {
	base
	table     tableName
	set       []setClause
	where     exprNode
	returning []selectItem
}

type deleteStmt struct {
	base
	table     tableName
	where     exprNode
	returning []selectItem
}

type columnDefAST struct {
	name          string
	typName       string
	notNull       bool
	primaryKey    bool
	unique        bool
	autoIncrement bool
	defaultExpr   string
}

type indexColAST struct {
	name string
	desc bool
}

type createTableStmt struct {
	base
	table      tableName
	columns    []columnDefAST
	primaryKey []string
	using      string
	config     string
}

type createIndexStmt struct {
	base
	name    string
	table   string
	columns []indexColAST
	unique  bool
}

type dropIndexStmt struct {
	base
	name  string
	table string
}

type dropTableStmt struct {
	base
	name string
}

type alterAddColumnStmt struct {
	base
	table  string
	column columnDefAST
}

// txnKindAST names a transaction-control statement kind.
type txnKindAST int

const (
	txnBegin txnKindAST = iota
	txnCommit
	txnRollback
	txnSavepoint
	txnRelease
	txnRollbackTo
)

type txnStmt struct {
	base
	kind txnKindAST
	name string
}
