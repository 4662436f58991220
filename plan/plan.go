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

// Package plan holds the relational plan node model: immutable, data-only
// tree nodes produced by the logical planner, rewritten by the optimizer
// into a physical plan, and finally consumed by the emitter registry
// (package emit) to build executable instructions (§4.2). Nodes never
// execute themselves; they describe shape, not behavior.
package plan

import "github.com/dolthub/quereus/sql"

// Node is an alias for sql.RelationalNode, the interface every plan node
// in this package implements; each node computes its relation type once
// at construction rather than deriving it lazily.
type Node = sql.RelationalNode

func children1(n sql.RelationalNode) []sql.RelationalNode { return []sql.RelationalNode{n} }
func children2(l, r sql.RelationalNode) []sql.RelationalNode {
	return []sql.RelationalNode{l, r}
}
