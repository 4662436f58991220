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

package sql

// ScalarNode is the capability set every scalar plan node exposes: it
// carries the scalar type it evaluates to, and (when it has operands) the
// child scalar nodes the optimizer can rewrite.
type ScalarNode interface {
	Type() ScalarType
	Children() []ScalarNode
	// WithChildren returns a copy of the node with its children replaced,
	// letting transform passes rebuild trees without type assertions on
	// every concrete node type.
	WithChildren(children ...ScalarNode) (ScalarNode, error)
	String() string
}

// RelationalNode is the capability set every relational plan node
// exposes. Children lists only the relational plan tree below the node;
// scalar expressions are not reported as children.
type RelationalNode interface {
	RelType() RelationType
	Attributes() []Attribute
	Children() []RelationalNode
	WithChildren(children ...RelationalNode) (RelationalNode, error)
	String() string
}

// RowIter is the lazy, sequentially-consumed sequence a relational
// instruction produces. Next returns (nil, io.EOF)-equivalent via
// ErrIteratorDone when exhausted.
type RowIter interface {
	Next(ctx *Context) (Row, error)
	Close(ctx *Context) error
}

// ErrIteratorDone signals normal exhaustion of a RowIter. It is not one
// of the Err* kinds in errors.go because it is not a failure; callers
// compare with == the same way callers compare against io.EOF.
var ErrIteratorDone = newSentinel("iterator exhausted")

type sentinel struct{ msg string }

func (s *sentinel) Error() string { return s.msg }

func newSentinel(msg string) error { return &sentinel{msg: msg} }

// SliceIter adapts a pre-materialized []Row into a RowIter, used by Sort,
// Distinct, set-operations and the Values plan node.
type SliceIter struct {
	rows []Row
	pos  int
}

func NewSliceIter(rows []Row) *SliceIter { return &SliceIter{rows: rows} }

func (s *SliceIter) Next(ctx *Context) (Row, error) {
	if err := ctx.CheckCancelled(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.rows) {
		return nil, ErrIteratorDone
	}
	row := s.rows[s.pos]
	s.pos++
	return row, nil
}

func (s *SliceIter) Close(ctx *Context) error { return nil }

// RowIterToRows drains an iterator to exhaustion, used by statement
// lifecycle's `run` and by tests.
func RowIterToRows(ctx *Context, iter RowIter) ([]Row, error) {
	var rows []Row
	for {
		row, err := iter.Next(ctx)
		if err == ErrIteratorDone {
			break
		}
		if err != nil {
			_ = iter.Close(ctx)
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, iter.Close(ctx)
}
