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

// lexer scans SQL text into a flat token stream. It looks at most two
// runes ahead; the parser does all the lookahead it needs by
// holding onto the last token returned.
type lexer struct {
	src        []rune
	pos        int
	line, col  int
	paramCount int
}

func newLexer(src string) *lexer {
	return &lexer{src: []rune(src), line: 1, col: 1}
}

func (l *lexer) errPos() sql.Position { return sql.Position{Line: l.line, Col: l.col} }

func (l *lexer) peekRune() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *lexer) peekAt(off int) rune {
	if l.pos+off >= len(l.src) {
		return 0
	}
	return l.src[l.pos+off]
}

func (l *lexer) advance() rune {
	r := l.src[l.pos]
	l.pos++
	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return r
}

func (l *lexer) skipSpaceAndComments() error {
	for l.pos < len(l.src) {
		r := l.peekRune()
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			l.advance()
		case r == '-' && l.peekAt(1) == '-':
			for l.pos < len(l.src) && l.peekRune() != '\n' {
				l.advance()
			}
		case r == '/' && l.peekAt(1) == '*':
			l.advance()
			l.advance()
			closed := false
			for l.pos < len(l.src) {
				if l.peekRune() == '*' && l.peekAt(1) == '/' {
					l.advance()
					l.advance()
					closed = true
					break
				}
				l.advance()
			}
			if !closed {
				return sql.AtPosition(sql.ErrParse.New("unterminated block comment"), l.errPos())
			}
		default:
			return nil
		}
	}
	return nil
}

func isIdentStart(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || (r >= '0' && r <= '9')
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

// next scans and returns the following token.
func (l *lexer) next() (Token, error) {
	if err := l.skipSpaceAndComments(); err != nil {
		return Token{}, err
	}
	pos := sql.Position{Line: l.line, Col: l.col}
	if l.pos >= len(l.src) {
		return Token{Kind: EOF, Pos: pos}, nil
	}
	r := l.peekRune()

	switch {
	case isIdentStart(r):
		return l.scanIdent(pos)
	case isDigit(r):
		return l.scanNumber(pos)
	case r == '\'':
		return l.scanString(pos)
	case r == '"' || r == '`':
		return l.scanQuotedIdent(pos, r)
	case r == '?':
		l.advance()
		l.paramCount++
		return Token{Kind: Param, Text: "?", Pos: pos}, nil
	case r == ':':
		l.advance()
		start := l.pos
		for l.pos < len(l.src) && isIdentPart(l.peekRune()) {
			l.advance()
		}
		if l.pos == start {
			return Token{}, sql.AtPosition(sql.ErrParse.New("expected parameter name after ':'"), pos)
		}
		return Token{Kind: NamedParam, Text: string(l.src[start:l.pos]), Pos: pos}, nil
	}

	l.advance()
	switch r {
	case '(':
		return Token{Kind: LParen, Text: "(", Pos: pos}, nil
	case ')':
		return Token{Kind: RParen, Text: ")", Pos: pos}, nil
	case ',':
		return Token{Kind: Comma, Text: ",", Pos: pos}, nil
	case '.':
		return Token{Kind: Dot, Text: ".", Pos: pos}, nil
	case ';':
		return Token{Kind: Semicolon, Text: ";", Pos: pos}, nil
	case '+':
		return Token{Kind: Plus, Text: "+", Pos: pos}, nil
	case '-':
		return Token{Kind: Minus, Text: "-", Pos: pos}, nil
	case '*':
		return Token{Kind: Star, Text: "*", Pos: pos}, nil
	case '/':
		return Token{Kind: Slash, Text: "/", Pos: pos}, nil
	case '%':
		return Token{Kind: Percent, Text: "%", Pos: pos}, nil
	case '|':
		if l.peekRune() == '|' {
			l.advance()
			return Token{Kind: Concat, Text: "||", Pos: pos}, nil
		}
		return Token{}, sql.AtPosition(sql.ErrParse.New("unexpected '|'"), pos)
	case '=':
		return Token{Kind: Eq, Text: "=", Pos: pos}, nil
	case '!':
		if l.peekRune() == '=' {
			l.advance()
			return Token{Kind: Neq, Text: "!=", Pos: pos}, nil
		}
		return Token{}, sql.AtPosition(sql.ErrParse.New("unexpected '!'"), pos)
	case '<':
		switch l.peekRune() {
		case '=':
			l.advance()
			return Token{Kind: Le, Text: "<=", Pos: pos}, nil
		case '>':
			l.advance()
			return Token{Kind: Neq, Text: "<>", Pos: pos}, nil
		}
		return Token{Kind: Lt, Text: "<", Pos: pos}, nil
	case '>':
		if l.peekRune() == '=' {
			l.advance()
			return Token{Kind: Ge, Text: ">=", Pos: pos}, nil
		}
		return Token{Kind: Gt, Text: ">", Pos: pos}, nil
	}
	return Token{}, sql.AtPosition(sql.ErrParse.New("unexpected character '"+string(r)+"'"), pos)
}

func (l *lexer) scanIdent(pos sql.Position) (Token, error) {
	start := l.pos
	for l.pos < len(l.src) && isIdentPart(l.peekRune()) {
		l.advance()
	}
	text := string(l.src[start:l.pos])
	if k, ok := lookupKeyword(text); ok {
		return Token{Kind: k, Text: text, Pos: pos}, nil
	}
	return Token{Kind: Ident, Text: text, Pos: pos}, nil
}

func (l *lexer) scanNumber(pos sql.Position) (Token, error) {
	start := l.pos
	for l.pos < len(l.src) && isDigit(l.peekRune()) {
		l.advance()
	}
	if l.peekRune() == '.' && isDigit(l.peekAt(1)) {
		l.advance()
		for l.pos < len(l.src) && isDigit(l.peekRune()) {
			l.advance()
		}
	}
	if l.peekRune() == 'e' || l.peekRune() == 'E' {
		save := l.pos
		l.advance()
		if l.peekRune() == '+' || l.peekRune() == '-' {
			l.advance()
		}
		if isDigit(l.peekRune()) {
			for l.pos < len(l.src) && isDigit(l.peekRune()) {
				l.advance()
			}
		} else {
			l.pos = save
		}
	}
	return Token{Kind: Number, Text: string(l.src[start:l.pos]), Pos: pos}, nil
}

func (l *lexer) scanString(pos sql.Position) (Token, error) {
	l.advance() // opening quote
	var sb strings.Builder
	for {
		if l.pos >= len(l.src) {
			return Token{}, sql.AtPosition(sql.ErrParse.New("unterminated string literal"), pos)
		}
		r := l.advance()
		if r == '\'' {
			if l.peekRune() == '\'' {
				sb.WriteRune('\'')
				l.advance()
				continue
			}
			break
		}
		sb.WriteRune(r)
	}
	return Token{Kind: String, Text: sb.String(), Pos: pos}, nil
}

func (l *lexer) scanQuotedIdent(pos sql.Position, quote rune) (Token, error) {
	l.advance()
	var sb strings.Builder
	for {
		if l.pos >= len(l.src) {
			return Token{}, sql.AtPosition(sql.ErrParse.New("unterminated quoted identifier"), pos)
		}
		r := l.advance()
		if r == quote {
			if l.peekRune() == quote {
				sb.WriteRune(quote)
				l.advance()
				continue
			}
			break
		}
		sb.WriteRune(r)
	}
	return Token{Kind: QuotedIdent, Text: sb.String(), Pos: pos}, nil
}
