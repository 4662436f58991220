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

// Package sql defines the value model, row/attribute binding, plan node
// interfaces, schema types and the virtual-table contract shared by every
// other package in this module.
package sql

import (
	"math"
	"strconv"
	"strings"
)

// Value is the tagged SQL value variant: null, integer, real, text, blob
// or boolean (boolean is carried as a 0/1 integer on the wire but is
// distinguished here so scalar evaluators can special-case it).
//
// Go's own nil/int64/float64/string/[]byte/bool cover the variant without
// a wrapper struct: a Value is simply interface{} constrained to one of
// those six dynamic types. Helper predicates below do the classification.
type Value = interface{}

// Row is a finite ordered sequence of Values. Rows do not carry their own
// column names or types; those live on the producing relation's schema.
type Row []Value

// NewRow is a convenience constructor mirroring sql.NewRow in the teacher.
func NewRow(values ...Value) Row {
	return Row(values)
}

// Copy returns a shallow copy of the row; byte slices are not deep
// copied; callers writing into a blob value must copy it themselves.
func (r Row) Copy() Row {
	out := make(Row, len(r))
	copy(out, r)
	return out
}

func IsNull(v Value) bool { return v == nil }

// IsTruthy implements SQL's three-valued logic projected down to a Go
// bool: nil (unknown) and false are both "not truthy".
func IsTruthy(v Value) bool {
	if v == nil {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case int64:
		return t != 0
	case float64:
		return t != 0
	default:
		return true
	}
}

func isNumeric(v Value) bool {
	switch v.(type) {
	case int64, float64, bool:
		return true
	}
	return false
}

func asFloat(v Value) (float64, bool) {
	switch t := v.(type) {
	case int64:
		return float64(t), true
	case float64:
		return t, true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func asInt(v Value) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case float64:
		if math.Trunc(t) != t {
			return 0, false
		}
		return int64(t), true
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}

// CompareFn returns <0, 0 or >0 comparing a to b under the rules below.
// Null is unordered: callers must special-case equality/IS before
// invoking CompareFn on a row or column for ORDER BY / indexing, since
// CompareFn itself treats null as sorting before any non-null value (a
// total order is required for B-tree storage, distinct from SQL's
// three-valued comparison operators).
type CompareFn func(a, b Value) int

// CollationFn is a CompareFn specialised to compare two text values under
// a named collation.
type CollationFn func(a, b string) int

var collations = map[string]CollationFn{
	"BINARY": func(a, b string) int { return strings.Compare(a, b) },
	"NOCASE": func(a, b string) int { return strings.Compare(strings.ToUpper(a), strings.ToUpper(b)) },
	"RTRIM":  func(a, b string) int { return strings.Compare(strings.TrimRight(a, " "), strings.TrimRight(b, " ")) },
}

// RegisterCollation installs or overrides a named collation, allowing
// vtab modules or embedders to extend the set resolvable by name.
func RegisterCollation(name string, fn CollationFn) {
	collations[strings.ToUpper(name)] = fn
}

// ResolveCollation looks a collation up by name, defaulting to BINARY for
// unknown or empty names.
func ResolveCollation(name string) CollationFn {
	if name == "" {
		return collations["BINARY"]
	}
	if fn, ok := collations[strings.ToUpper(name)]; ok {
		return fn
	}
	return collations["BINARY"]
}

// Compare implements the ordering rules from the data model: null is
// unordered (sorts before everything so B-trees have a total order, but
// equality callers must check IsNull themselves); numeric types compare
// numerically with cross-type coercion falling back to text; text uses
// the supplied collation; blobs use byte-lexicographic order.
func Compare(a, b Value, collation CollationFn) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}

	if ab, ok := a.([]byte); ok {
		if bb, ok := b.([]byte); ok {
			return compareBytes(ab, bb)
		}
	}

	if isNumeric(a) || isNumeric(b) {
		af, aok := asFloat(a)
		bf, bok := asFloat(b)
		if aok && bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}

	as, aIsStr := asText(a)
	bs, bIsStr := asText(b)
	if aIsStr && bIsStr {
		if collation == nil {
			collation = collations["BINARY"]
		}
		return collation(as, bs)
	}

	// Cross-type fallback: coerce both sides to their textual form.
	if collation == nil {
		collation = collations["BINARY"]
	}
	return collation(asTextAlways(a), asTextAlways(b))
}

func compareBytes(a, b []byte) int {
	switch {
	case string(a) < string(b):
		return -1
	case string(a) > string(b):
		return 1
	default:
		return 0
	}
}

func asText(v Value) (string, bool) {
	if s, ok := v.(string); ok {
		return s, true
	}
	return "", false
}

// ValueToText renders any scalar value as text, used by `||` and by CAST
// when converting non-string values to TEXT affinity.
func ValueToText(v Value) string { return asTextAlways(v) }

func asTextAlways(v Value) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		if t {
			return "1"
		}
		return "0"
	default:
		return ""
	}
}

// RowCompareFn builds a composite comparator over a row given per-column
// directions, null ordering and collations, as used by Sort and by the
// MVCC cursor's key comparator (§4.6, §4.4).
type SortKey struct {
	ColumnIndex int
	Descending  bool
	NullsFirst  bool
	Collation   CollationFn
}

func RowCompareFn(keys []SortKey) func(a, b Row) int {
	return func(a, b Row) int {
		for _, k := range keys {
			av, bv := a[k.ColumnIndex], b[k.ColumnIndex]
			var c int
			switch {
			case av == nil && bv == nil:
				c = 0
			case av == nil:
				if k.NullsFirst {
					c = -1
				} else {
					c = 1
				}
			case bv == nil:
				if k.NullsFirst {
					c = 1
				} else {
					c = -1
				}
			default:
				c = Compare(av, bv, k.Collation)
			}
			if c != 0 {
				if k.Descending {
					c = -c
				}
				return c
			}
		}
		return 0
	}
}
