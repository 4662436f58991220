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

// Package funcreg is the scalar and aggregate function registry consulted
// by the analyzer when it resolves a FunctionCall / StreamAggregate plan
// node (§4.3, §4.4). Scalar functions are plain value-in/value-out Go
// funcs; aggregates follow the {initial, step, final} accumulator shape
// so the executor can drive either a streaming (sorted-input) or hash
// based aggregation strategy over the same definition.
package funcreg

import (
	"strings"

	"github.com/spf13/cast"

	"github.com/dolthub/quereus/sql"
)

// ScalarFunc mirrors expr.ScalarFunc's signature without importing
// package expr (neither package imports the other; the front end
// converts between the two when it binds a call).
type ScalarFunc func(ctx *sql.Context, args []sql.Value) (sql.Value, error)

// ScalarDef pairs a registry name with its implementation and declared
// arity (-1 means variadic).
type ScalarDef struct {
	Name  string
	Arity int
	Fn    ScalarFunc
}

// Accumulator implements one running aggregate computation.
type Accumulator interface {
	Step(args []sql.Value) error
	Final() (sql.Value, error)
}

// AggregateDef names a factory that produces a fresh Accumulator for each
// new group (§4.4: stream and hash aggregation share this contract).
type AggregateDef struct {
	Name    string
	NewAcc  func() Accumulator
}

// Registry resolves scalar and aggregate functions by (case-insensitive)
// name. The zero value is not usable; call NewRegistry.
type Registry struct {
	scalars    map[string]ScalarDef
	aggregates map[string]AggregateDef
}

// NewRegistry builds a registry pre-populated with the built-in scalar
// and aggregate functions named in §4.3/§4.4.
func NewRegistry() *Registry {
	r := &Registry{
		scalars:    make(map[string]ScalarDef),
		aggregates: make(map[string]AggregateDef),
	}
	registerBuiltinScalars(r)
	registerBuiltinAggregates(r)
	return r
}

func key(name string) string { return strings.ToUpper(name) }

// RegisterScalar installs or overrides a scalar function by name.
func (r *Registry) RegisterScalar(d ScalarDef) { r.scalars[key(d.Name)] = d }

// RegisterAggregate installs or overrides an aggregate function by name.
func (r *Registry) RegisterAggregate(d AggregateDef) { r.aggregates[key(d.Name)] = d }

// ResolveScalar looks up a scalar function by name.
func (r *Registry) ResolveScalar(name string) (ScalarDef, bool) {
	d, ok := r.scalars[key(name)]
	return d, ok
}

// ResolveAggregate looks up an aggregate function by name.
func (r *Registry) ResolveAggregate(name string) (AggregateDef, bool) {
	d, ok := r.aggregates[key(name)]
	return d, ok
}

func registerBuiltinScalars(r *Registry) {
	r.RegisterScalar(ScalarDef{Name: "ABS", Arity: 1, Fn: fnAbs})
	r.RegisterScalar(ScalarDef{Name: "COALESCE", Arity: -1, Fn: fnCoalesce})
	r.RegisterScalar(ScalarDef{Name: "UPPER", Arity: 1, Fn: fnUpper})
	r.RegisterScalar(ScalarDef{Name: "LOWER", Arity: 1, Fn: fnLower})
	r.RegisterScalar(ScalarDef{Name: "LENGTH", Arity: 1, Fn: fnLength})
	r.RegisterScalar(ScalarDef{Name: "TYPEOF", Arity: 1, Fn: fnTypeof})
}

func fnAbs(ctx *sql.Context, args []sql.Value) (sql.Value, error) {
	if len(args) != 1 || args[0] == nil {
		return nil, nil
	}
	switch v := args[0].(type) {
	case int64:
		if v < 0 {
			return -v, nil
		}
		return v, nil
	default:
		f, err := cast.ToFloat64E(args[0])
		if err != nil {
			return nil, nil
		}
		if f < 0 {
			f = -f
		}
		return f, nil
	}
}

func fnCoalesce(ctx *sql.Context, args []sql.Value) (sql.Value, error) {
	for _, a := range args {
		if a != nil {
			return a, nil
		}
	}
	return nil, nil
}

func fnUpper(ctx *sql.Context, args []sql.Value) (sql.Value, error) {
	if len(args) != 1 || args[0] == nil {
		return nil, nil
	}
	return strings.ToUpper(sql.ValueToText(args[0])), nil
}

func fnLower(ctx *sql.Context, args []sql.Value) (sql.Value, error) {
	if len(args) != 1 || args[0] == nil {
		return nil, nil
	}
	return strings.ToLower(sql.ValueToText(args[0])), nil
}

func fnLength(ctx *sql.Context, args []sql.Value) (sql.Value, error) {
	if len(args) != 1 || args[0] == nil {
		return nil, nil
	}
	switch v := args[0].(type) {
	case []byte:
		return int64(len(v)), nil
	default:
		return int64(len([]rune(sql.ValueToText(v)))), nil
	}
}

func fnTypeof(ctx *sql.Context, args []sql.Value) (sql.Value, error) {
	if len(args) != 1 {
		return nil, sql.ErrMisuse.New("typeof takes one argument")
	}
	switch args[0].(type) {
	case nil:
		return "null", nil
	case int64, bool:
		return "integer", nil
	case float64:
		return "real", nil
	case string:
		return "text", nil
	case []byte:
		return "blob", nil
	default:
		return "null", nil
	}
}

func registerBuiltinAggregates(r *Registry) {
	r.RegisterAggregate(AggregateDef{Name: "COUNT", NewAcc: func() Accumulator { return &countAcc{} }})
	r.RegisterAggregate(AggregateDef{Name: "SUM", NewAcc: func() Accumulator { return &sumAcc{} }})
	r.RegisterAggregate(AggregateDef{Name: "AVG", NewAcc: func() Accumulator { return &avgAcc{} }})
	r.RegisterAggregate(AggregateDef{Name: "MIN", NewAcc: func() Accumulator { return &extremeAcc{wantMax: false} }})
	r.RegisterAggregate(AggregateDef{Name: "MAX", NewAcc: func() Accumulator { return &extremeAcc{wantMax: true} }})
}

// countAcc implements COUNT(*) when no args are passed, or COUNT(expr)
// counting only non-null values when one is.
type countAcc struct{ n int64 }

func (a *countAcc) Step(args []sql.Value) error {
	if len(args) == 0 || args[0] != nil {
		a.n++
	}
	return nil
}
func (a *countAcc) Final() (sql.Value, error) { return a.n, nil }

type sumAcc struct {
	isFloat bool
	i       int64
	f       float64
	any     bool
}

func (a *sumAcc) Step(args []sql.Value) error {
	if len(args) != 1 || args[0] == nil {
		return nil
	}
	a.any = true
	if iv, ok := args[0].(int64); ok && !a.isFloat {
		a.i += iv
		return nil
	}
	fv, err := cast.ToFloat64E(args[0])
	if err != nil {
		return sql.ErrType.New("SUM requires numeric input")
	}
	if !a.isFloat {
		a.f = float64(a.i)
		a.isFloat = true
	}
	a.f += fv
	return nil
}

func (a *sumAcc) Final() (sql.Value, error) {
	if !a.any {
		return nil, nil
	}
	if a.isFloat {
		return a.f, nil
	}
	return a.i, nil
}

type avgAcc struct {
	sum   float64
	count int64
}

func (a *avgAcc) Step(args []sql.Value) error {
	if len(args) != 1 || args[0] == nil {
		return nil
	}
	f, err := cast.ToFloat64E(args[0])
	if err != nil {
		return sql.ErrType.New("AVG requires numeric input")
	}
	a.sum += f
	a.count++
	return nil
}

func (a *avgAcc) Final() (sql.Value, error) {
	if a.count == 0 {
		return nil, nil
	}
	return a.sum / float64(a.count), nil
}

type extremeAcc struct {
	wantMax bool
	cur     sql.Value
	set     bool
}

func (a *extremeAcc) Step(args []sql.Value) error {
	if len(args) != 1 || args[0] == nil {
		return nil
	}
	if !a.set {
		a.cur = args[0]
		a.set = true
		return nil
	}
	c := sql.Compare(args[0], a.cur, nil)
	if (a.wantMax && c > 0) || (!a.wantMax && c < 0) {
		a.cur = args[0]
	}
	return nil
}

func (a *extremeAcc) Final() (sql.Value, error) {
	if !a.set {
		return nil, nil
	}
	return a.cur, nil
}
