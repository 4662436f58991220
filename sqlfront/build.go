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

// Package sqlfront is the SQL surface front end: a hand-rolled
// lexer/parser producing the AST in ast.go, and a builder that lowers
// that AST into the plan/expr trees the rest of the engine understands.
// It is the one place in this module that knows the grammar; everything
// downstream works only in terms of sql.RelationalNode/sql.ScalarNode.
package sqlfront

import (
	"github.com/dolthub/quereus/catalog"
	"github.com/dolthub/quereus/funcreg"
	"github.com/dolthub/quereus/sql"
)

// Kind names what a compiled statement actually is, so the statement
// lifecycle (package stmt) knows whether to hand it to the
// emitter/scheduler or act on it directly.
type Kind int

const (
	// KindQuery and KindDML both produce a sql.RelationalNode plan that
	// the emitter/scheduler drives; they are distinguished only so a
	// caller can tell a SELECT's result rows from a DML statement's
	// (possibly empty) RETURNING rows.
	KindQuery Kind = iota
	KindDML
	KindDDL
	KindTxn
)

// TxnKind names a transaction-control statement, mirrored 1:1 from the
// parser's own txnKindAST so package stmt need not import sqlfront's
// unexported AST.
type TxnKind int

const (
	TxnBegin TxnKind = iota
	TxnCommit
	TxnRollback
	TxnSavepoint
	TxnRelease
	TxnRollbackTo
)

// Compiled is one parsed-and-lowered statement, ready for the statement
// lifecycle to drive. Exactly one of Plan/DDL/Txn is meaningful,
// selected by Kind.
type Compiled struct {
	Kind Kind

	// Plan is populated for KindQuery/KindDML: the logical plan tree,
	// not yet optimizer-rewritten (the caller runs optimizer.Optimize
	// before emitting, once per execution, since a DDL change between
	// two iterate_rows calls on the same prepared statement could
	// otherwise make a cached physical plan stale).
	Plan sql.RelationalNode

	// ColumnNames/ColumnTypes describe Plan's output row shape, read
	// directly off its RelationType so callers don't need to re-derive
	// it from the plan tree.
	ColumnNames []string
	ColumnTypes []sql.ScalarType

	// DDL is populated for KindDDL.
	DDL DDLAction

	// Txn/TxnName are populated for KindTxn.
	Txn     TxnKind
	TxnName string
}

// Build lowers one parsed statement (an element of the slice Parse
// returns) into a Compiled ready to run. cat resolves table names for
// DML/DDL/scans; funcs resolves function calls; maxIter bounds
// recursive CTE iteration (§9).
func Build(cat *catalog.Catalog, funcs *funcreg.Registry, maxIter int64, parsed interface{}) (*Compiled, error) {
	switch s := parsed.(type) {
	case *selectStmt:
		qb := newQueryBuilder(cat, funcs, maxIter)
		node, _, err := qb.buildSelect(s)
		if err != nil {
			return nil, err
		}
		rt := node.RelType()
		return &Compiled{Kind: KindQuery, Plan: node, ColumnNames: columnNames(rt), ColumnTypes: columnTypes(rt)}, nil

	case *insertStmt:
		qb := newQueryBuilder(cat, funcs, maxIter)
		n, err := qb.buildInsertStmt(s)
		if err != nil {
			return nil, err
		}
		rt := n.RelType()
		return &Compiled{Kind: KindDML, Plan: n, ColumnNames: columnNames(rt), ColumnTypes: columnTypes(rt)}, nil

	case *updateStmt:
		qb := newQueryBuilder(cat, funcs, maxIter)
		n, err := qb.buildUpdateStmt(s)
		if err != nil {
			return nil, err
		}
		rt := n.RelType()
		return &Compiled{Kind: KindDML, Plan: n, ColumnNames: columnNames(rt), ColumnTypes: columnTypes(rt)}, nil

	case *deleteStmt:
		qb := newQueryBuilder(cat, funcs, maxIter)
		n, err := qb.buildDeleteStmt(s)
		if err != nil {
			return nil, err
		}
		rt := n.RelType()
		return &Compiled{Kind: KindDML, Plan: n, ColumnNames: columnNames(rt), ColumnTypes: columnTypes(rt)}, nil

	case *createTableStmt:
		action, err := buildCreateTable(cat, s)
		if err != nil {
			return nil, err
		}
		return &Compiled{Kind: KindDDL, DDL: action}, nil

	case *dropTableStmt:
		action, err := buildDropTable(cat, s)
		if err != nil {
			return nil, err
		}
		return &Compiled{Kind: KindDDL, DDL: action}, nil

	case *createIndexStmt:
		action, err := buildCreateIndex(cat, s)
		if err != nil {
			return nil, err
		}
		return &Compiled{Kind: KindDDL, DDL: action}, nil

	case *dropIndexStmt:
		action, err := buildDropIndex(cat, s)
		if err != nil {
			return nil, err
		}
		return &Compiled{Kind: KindDDL, DDL: action}, nil

	case *alterAddColumnStmt:
		action, err := buildAlterAddColumn(cat, s)
		if err != nil {
			return nil, err
		}
		return &Compiled{Kind: KindDDL, DDL: action}, nil

	case *txnStmt:
		return &Compiled{Kind: KindTxn, Txn: txnKindOf(s.kind), TxnName: s.name}, nil

	default:
		return nil, sql.ErrUnsupported.New("unrecognized statement form")
	}
}

func txnKindOf(k txnKindAST) TxnKind {
	switch k {
	case txnBegin:
		return TxnBegin
	case txnCommit:
		return TxnCommit
	case txnRollback:
		return TxnRollback
	case txnSavepoint:
		return TxnSavepoint
	case txnRelease:
		return TxnRelease
	case txnRollbackTo:
		return TxnRollbackTo
	default:
		return TxnBegin
	}
}

func columnNames(rt sql.RelationType) []string {
	names := make([]string, len(rt.Columns))
	for i, c := range rt.Columns {
		names[i] = c.Name
	}
	return names
}

func columnTypes(rt sql.RelationType) []sql.ScalarType {
	types := make([]sql.ScalarType, len(rt.Columns))
	for i, c := range rt.Columns {
		types[i] = c.Type
	}
	return types
}

// Parse splits src on top-level statement boundaries and parses each one
// into its AST form, ready for Build. Exported wrapper over the
// unexported recursive-descent parser in parser.go/lexer.go.
func Parse(src string) ([]interface{}, error) {
	return parseStatements(src)
}
