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

// SetOpKind names a relational set operation.
type SetOpKind int

const (
	SetUnion SetOpKind = iota
	SetUnionAll
	SetIntersect
	SetExcept
)

// SetOp combines two union-compatible relations. Left's attribute ids are
// reused as the node's own output attributes; Right's rows are re-bound
// positionally against Left's RowDescriptor by the emitter.
type SetOp struct {
	Kind        SetOpKind
	Left, Right sql.RelationalNode
}

func NewSetOp(kind SetOpKind, left, right sql.RelationalNode) *SetOp {
	return &SetOp{Kind: kind, Left: left, Right: right}
}

func (s *SetOp) RelType() sql.RelationType {
	rt := s.Left.RelType()
	rt.IsSet = s.Kind != SetUnionAll
	return rt
}
func (s *SetOp) Attributes() []sql.Attribute    { return s.Left.Attributes() }
func (s *SetOp) Children() []sql.RelationalNode { return children2(s.Left, s.Right) }
func (s *SetOp) WithChildren(ch ...sql.RelationalNode) (sql.RelationalNode, error) {
	if len(ch) != 2 {
		return nil, sql.ErrInternal.New("set operation takes two children")
	}
	return &SetOp{Kind: s.Kind, Left: ch[0], Right: ch[1]}, nil
}
func (s *SetOp) String() string { return "setop" }
