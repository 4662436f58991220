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

import (
	"github.com/spf13/cast"

	"github.com/dolthub/quereus/sql"
)

// Cast applies SQLite-style type affinity: the target's logical kind
// determines how the source value is coerced, with null standing in for
// any value the affinity cannot represent. github.com/spf13/cast supplies
// the tolerant numeric/string coercion underneath each affinity rule.
type Cast struct {
	Inner Expr
	Typ   sql.ScalarType
}

func NewCast(inner Expr, t sql.ScalarType) *Cast { return &Cast{Inner: inner, Typ: t} }

func (c *Cast) Type() sql.ScalarType       { return c.Typ }
func (c *Cast) Children() []sql.ScalarNode { return []sql.ScalarNode{c.Inner} }
func (c *Cast) WithChildren(ch ...sql.ScalarNode) (sql.ScalarNode, error) {
	if len(ch) != 1 {
		return nil, sql.ErrInternal.New("cast takes one child")
	}
	in, err := asExpr(ch[0])
	if err != nil {
		return nil, err
	}
	return &Cast{Inner: in, Typ: c.Typ}, nil
}
func (c *Cast) String() string { return "cast" }

func (c *Cast) Eval(ctx *sql.Context, b *sql.BindingStack) (sql.Value, error) {
	v, err := c.Inner.Eval(ctx, b)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return ApplyAffinity(v, c.Typ.Kind)
}

// ApplyAffinity converts v to the given logical kind, returning nil when
// the value cannot be represented (e.g. CAST('abc' AS INTEGER)).
func ApplyAffinity(v sql.Value, kind sql.LogicalKind) (sql.Value, error) {
	switch kind {
	case sql.KindInteger:
		i, err := cast.ToInt64E(v)
		if err != nil {
			return nil, nil
		}
		return i, nil
	case sql.KindReal:
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return nil, nil
		}
		return f, nil
	case sql.KindBoolean:
		bv, err := cast.ToBoolE(v)
		if err != nil {
			return nil, nil
		}
		return bv, nil
	case sql.KindText:
		s, err := cast.ToStringE(v)
		if err != nil {
			return sql.ValueToText(v), nil
		}
		return s, nil
	case sql.KindBlob:
		switch t := v.(type) {
		case []byte:
			return t, nil
		case string:
			return []byte(t), nil
		default:
			return []byte(sql.ValueToText(v)), nil
		}
	default:
		return nil, sql.ErrUnsupported.New("cast target kind")
	}
}
