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

// Package sqlfront is the engine's own front end: a small recursive-
// descent tokenizer/parser/builder turning SQL text directly into the
// plan/expr node trees package emit and package optimizer already know
// how to consume. There is no intermediate "logical algebra" AST of its
// own beyond the parse tree — the builder lowers straight from parsed
// syntax to plan nodes, resolving column references against the flat
// scope of FROM-clause columns as it goes.
package sqlfront

import (
	"strings"

	"github.com/dolthub/quereus/sql"
)

// Kind names one lexical token class. Keyword tokens share one flat enum
// with punctuation/operator tokens, bracketed by keywordBeg/keywordEnd;
// the scanner recognizes a reserved word by looking the identifier up in
// the keywords map.
type Kind int

const (
	EOF Kind = iota
	Ident
	QuotedIdent
	Number
	String
	Param
	NamedParam

	LParen
	RParen
	Comma
	Dot
	Semicolon

	Plus
	Minus
	Star
	Slash
	Percent
	Concat // ||
	Eq
	Neq
	Lt
	Le
	Gt
	Ge

	keywordBeg
	SELECT
	FROM
	WHERE
	GROUP
	BY
	HAVING
	ORDER
	LIMIT
	OFFSET
	INSERT
	INTO
	VALUES
	UPDATE
	SET
	DELETE
	JOIN
	INNER
	LEFT
	CROSS
	ON
	AS
	AND
	OR
	XOR
	NOT
	NULL
	TRUE
	FALSE
	IS
	IN
	BETWEEN
	LIKE
	ESCAPE
	CASE
	WHEN
	THEN
	ELSE
	END
	CAST
	DISTINCT
	ALL
	UNION
	INTERSECT
	EXCEPT
	WITH
	RECURSIVE
	ASC
	DESC
	CREATE
	TABLE
	INDEX
	DROP
	ALTER
	ADD
	COLUMN
	PRIMARY
	KEY
	UNIQUE
	DEFAULT
	CHECK
	AUTOINCREMENT
	USING
	CONFIG
	BEGIN
	COMMIT
	ROLLBACK
	SAVEPOINT
	RELEASE
	TO
	TRANSACTION
	RETURNING
	CONFLICT
	IGNORE
	REPLACE
	FAIL
	ABORT
	COLLATE
	EXISTS
	keywordEnd
)

var keywords = map[string]Kind{
	"select": SELECT, "from": FROM, "where": WHERE, "group": GROUP, "by": BY,
	"having": HAVING, "order": ORDER, "limit": LIMIT, "offset": OFFSET,
	"insert": INSERT, "into": INTO, "values": VALUES, "update": UPDATE,
	"set": SET, "delete": DELETE, "join": JOIN, "inner": INNER, "left": LEFT,
	"cross": CROSS, "on": ON, "as": AS, "and": AND, "or": OR, "xor": XOR,
	"not": NOT, "null": NULL, "true": TRUE, "false": FALSE, "is": IS,
	"in": IN, "between": BETWEEN, "like": LIKE, "escape": ESCAPE,
	"case": CASE, "when": WHEN, "then": THEN, "else": ELSE, "end": END,
	"cast": CAST, "distinct": DISTINCT, "all": ALL, "union": UNION,
	"intersect": INTERSECT, "except": EXCEPT, "with": WITH,
	"recursive": RECURSIVE, "asc": ASC, "desc": DESC, "create": CREATE,
	"table": TABLE, "index": INDEX, "drop": DROP, "alter": ALTER,
	"add": ADD, "column": COLUMN, "primary": PRIMARY, "key": KEY,
	"unique": UNIQUE, "default": DEFAULT, "check": CHECK,
	"autoincrement": AUTOINCREMENT, "using": USING, "config": CONFIG,
	"begin": BEGIN, "commit": COMMIT, "rollback": ROLLBACK,
	"savepoint": SAVEPOINT, "release": RELEASE, "to": TO,
	"transaction": TRANSACTION, "returning": RETURNING,
	"conflict": CONFLICT, "ignore": IGNORE, "replace": REPLACE,
	"fail": FAIL, "abort": ABORT, "collate": COLLATE, "exists": EXISTS,
}

// Token is one scanned lexical unit: its kind, the source text it
// covers (already unescaped for String/QuotedIdent), and its position
// for error reporting.
type Token struct {
	Kind Kind
	Text string
	Pos  sql.Position
}

func lookupKeyword(ident string) (Kind, bool) {
	k, ok := keywords[strings.ToLower(ident)]
	return k, ok
}
