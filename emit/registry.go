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

package emit

import (
	"reflect"

	"github.com/dolthub/quereus/catalog"
	"github.com/dolthub/quereus/expr"
	"github.com/dolthub/quereus/funcreg"
	"github.com/dolthub/quereus/sql"
)

// Builder constructs an Instruction for one concrete relational plan
// node type. EmissionContext is passed through so a builder can recurse
// into its children via ec.Registry.Build.
type Builder func(ec *EmissionContext, node sql.RelationalNode) (*Instruction, error)

// Registry maps a relational plan-node's concrete Go type to the builder
// that knows how to emit it (§4.2's "emitter registry"). Scalar nodes
// need no such registry: every scalar node in package expr already
// implements Eval directly, so Scalar (below) wraps Eval in a thin
// Instruction rather than dispatching through a second map.
type Registry struct {
	builders map[reflect.Type]Builder
}

// NewRegistry returns a registry pre-populated with the builder for
// every relational plan node kind this module ships.
func NewRegistry() *Registry {
	r := &Registry{builders: make(map[reflect.Type]Builder)}
	registerBuiltinEmitters(r)
	return r
}

// Register installs or overrides the builder for the concrete plan-node
// type of a zero-value example node, letting embedders add custom
// physical node kinds without forking this package.
func (r *Registry) Register(example sql.RelationalNode, b Builder) {
	r.builders[reflect.TypeOf(example)] = b
}

// Build dispatches node to its registered builder.
func (r *Registry) Build(ec *EmissionContext, node sql.RelationalNode) (*Instruction, error) {
	b, ok := r.builders[reflect.TypeOf(node)]
	if !ok {
		return nil, sql.ErrUnsupported.New("no emitter registered for plan node: " + node.String())
	}
	return b(ec, node)
}

// EmissionContext is the per-compile state builders see: the catalog
// (to resolve a TableScan's schema to a live sql.Table instance) and the
// engine's Config (cache/CTE thresholds), plus the registry itself for
// recursing into children.
type EmissionContext struct {
	Catalog  *catalog.Catalog
	Config   Config
	Registry *Registry
	Funcs    *funcreg.Registry
}

// Scalar wraps a scalar plan node (always an expr.Expr in this module —
// no other package implements sql.ScalarNode) in a thin Instruction that
// defers straight to its own Eval. This is the entirety of "scalar
// emission": the evaluation logic itself lives in package expr (§4.3),
// so the emitter's job here is purely the by-value/by-reference
// packaging §4.2 describes.
func Scalar(node sql.ScalarNode) (*Instruction, error) {
	e, ok := node.(expr.Expr)
	if !ok {
		return nil, sql.ErrInternal.New("expected expr.Expr scalar node")
	}
	return &Instruction{
		Note: e.String(),
		Run: func(rt *Runtime, _ []sql.Value) (Output, error) {
			return e.Eval(rt.Ctx, rt.Bindings)
		},
	}, nil
}

// ScalarList builds one Instruction per node, for callers (Project,
// GroupBy, Insert) that need a slice of by-reference callbacks rather
// than a single one.
func ScalarList(nodes []sql.ScalarNode) ([]*Instruction, error) {
	out := make([]*Instruction, len(nodes))
	for i, n := range nodes {
		ins, err := Scalar(n)
		if err != nil {
			return nil, err
		}
		out[i] = ins
	}
	return out, nil
}
