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

// JoinKind names the supported join semantics. RIGHT and FULL OUTER are
// deliberately absent: the parser rejects them with sql.ErrUnsupported rather than
// silently degrading to an approximation (an explicit Open Question
// decision, not an oversight).
type JoinKind int

const (
	JoinInner JoinKind = iota
	JoinLeft
	JoinSemi  // EXISTS / IN rewrites: emit the outer row once per match, no inner columns
	JoinAnti  // NOT EXISTS / NOT IN rewrites: emit the outer row once per non-match
)

// Join combines Left and Right under Predicate. Strategy (nested-loop vs
// hash) is a physical decision the optimizer attaches via WithStrategy;
// the logical node itself is strategy-agnostic.
type Join struct {
	Kind      JoinKind
	Left      sql.RelationalNode
	Right     sql.RelationalNode
	Predicate sql.ScalarNode
	Strategy  JoinStrategy
	relType   sql.RelationType
	attrs     []sql.Attribute
}

// JoinStrategy names the physical execution strategy the optimizer has
// chosen for a Join node; Unset means the optimizer has not yet run.
type JoinStrategy int

const (
	StrategyUnset JoinStrategy = iota
	StrategyNestedLoop
	StrategyHash
)

// NewJoin builds a join's logical shape. It never fails: JoinKind has no
// RIGHT/FULL value, and the emitter rejects any kind it does not know
// with sql.ErrUnsupported.
func NewJoin(kind JoinKind, left, right sql.RelationalNode, predicate sql.ScalarNode) (*Join, error) {
	lrt := left.RelType()
	var cols []sql.ColumnDef
	var attrs []sql.Attribute
	cols = append(cols, lrt.Columns...)
	attrs = append(attrs, left.Attributes()...)
	if kind == JoinInner || kind == JoinLeft {
		rrt := right.RelType()
		for _, c := range rrt.Columns {
			cc := c
			if kind == JoinLeft {
				cc.Nullable = true
			}
			cols = append(cols, cc)
		}
		attrs = append(attrs, right.Attributes()...)
	}
	return &Join{
		Kind: kind, Left: left, Right: right, Predicate: predicate,
		relType: sql.RelationType{Columns: cols}, attrs: attrs,
	}, nil
}

func (j *Join) WithStrategy(s JoinStrategy) *Join {
	cp := *j
	cp.Strategy = s
	return &cp
}

func (j *Join) RelType() sql.RelationType      { return j.relType }
func (j *Join) Attributes() []sql.Attribute    { return j.attrs }
func (j *Join) Children() []sql.RelationalNode { return children2(j.Left, j.Right) }
func (j *Join) WithChildren(ch ...sql.RelationalNode) (sql.RelationalNode, error) {
	if len(ch) != 2 {
		return nil, sql.ErrInternal.New("join takes two children")
	}
	cp := *j
	cp.Left, cp.Right = ch[0], ch[1]
	return &cp, nil
}
func (j *Join) String() string { return "join" }
