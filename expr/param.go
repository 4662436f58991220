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

package expr

import "github.com/dolthub/quereus/sql"

// Param resolves a bind placeholder (`?` or `:name`, rewritten to a
// 0-based position by the front end) against the values bound onto the
// statement's Context, rather than against a row's binding stack — a
// bound parameter is ambient to the whole statement execution, not to
// any one row.
type Param struct {
	Index int
	Typ   sql.ScalarType
	Name  string
}

func NewParam(index int, t sql.ScalarType, name string) *Param {
	return &Param{Index: index, Typ: t, Name: name}
}

func (p *Param) Type() sql.ScalarType       { return p.Typ }
func (p *Param) Children() []sql.ScalarNode { return nil }
func (p *Param) WithChildren(c ...sql.ScalarNode) (sql.ScalarNode, error) {
	if len(c) != 0 {
		return nil, sql.ErrInternal.New("param takes no children")
	}
	return p, nil
}
func (p *Param) String() string {
	if p.Name != "" {
		return ":" + p.Name
	}
	return "?"
}
func (p *Param) Eval(ctx *sql.Context, b *sql.BindingStack) (sql.Value, error) {
	v, ok := ctx.Param(p.Index)
	if !ok {
		return nil, sql.ErrMisuse.New("unbound parameter " + p.String())
	}
	return v, nil
}
