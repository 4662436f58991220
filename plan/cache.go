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

// Cache marks a sub-plan the optimizer has decided is worth buffering
// across repeated pulls — the inner side of a nested-loop join re-driven
// once per outer row. The
// emitter builds a pipelined cache instruction: rows are buffered as they
// are first produced and replayed on subsequent passes, but buffering is
// abandoned (falling back to re-driving Child from scratch) once row
// count reaches AbandonThreshold, so a large inner relation is never
// pinned wholesale in memory (Open Question resolved in favor of the
// pipelined, abandon-on-threshold strategy over an eager materializer).
type Cache struct {
	Child            sql.RelationalNode
	AbandonThreshold int64
}

func NewCache(child sql.RelationalNode, abandonThreshold int64) *Cache {
	return &Cache{Child: child, AbandonThreshold: abandonThreshold}
}

func (c *Cache) RelType() sql.RelationType      { return c.Child.RelType() }
func (c *Cache) Attributes() []sql.Attribute    { return c.Child.Attributes() }
func (c *Cache) Children() []sql.RelationalNode { return children1(c.Child) }
func (c *Cache) WithChildren(ch ...sql.RelationalNode) (sql.RelationalNode, error) {
	if len(ch) != 1 {
		return nil, sql.ErrInternal.New("cache takes one child")
	}
	return &Cache{Child: ch[0], AbandonThreshold: c.AbandonThreshold}, nil
}
func (c *Cache) String() string { return "cache" }

// RecursiveCTE implements WITH RECURSIVE via semi-naïve, delta-based
// fixpoint evaluation (Open Question resolved in favor of semi-naïve
// over naïve re-evaluation): Anchor seeds the working table; each
// iteration evaluates Recursive against only the *previous* iteration's
// new rows (bound to WorkingTableRef within Recursive), accumulating
// output until an iteration produces zero new rows; needing more than
// MaxIterations iterations is an error. All selects UNION ALL's no-dedup semantics over the default
// UNION DISTINCT all-seen-rows dedup (§4.4).
type RecursiveCTE struct {
	Name           string
	Anchor         sql.RelationalNode
	Recursive      sql.RelationalNode
	WorkingTableRef sql.Attribute // attribute placeholder bound to the prior iteration's delta
	MaxIterations  int64
	All            bool
	relType        sql.RelationType
	attrs          []sql.Attribute
}

func NewRecursiveCTE(name string, anchor, recursive sql.RelationalNode, maxIterations int64, all bool) *RecursiveCTE {
	rt := anchor.RelType()
	return &RecursiveCTE{
		Name: name, Anchor: anchor, Recursive: recursive,
		WorkingTableRef: sql.NewAttribute(), MaxIterations: maxIterations, All: all,
		relType: rt, attrs: anchor.Attributes(),
	}
}

func (r *RecursiveCTE) RelType() sql.RelationType      { return r.relType }
func (r *RecursiveCTE) Attributes() []sql.Attribute    { return r.attrs }
func (r *RecursiveCTE) Children() []sql.RelationalNode { return children2(r.Anchor, r.Recursive) }
func (r *RecursiveCTE) WithChildren(ch ...sql.RelationalNode) (sql.RelationalNode, error) {
	if len(ch) != 2 {
		return nil, sql.ErrInternal.New("recursive cte takes two children")
	}
	cp := *r
	cp.Anchor, cp.Recursive = ch[0], ch[1]
	return &cp, nil
}
func (r *RecursiveCTE) String() string { return "recursive_cte(" + r.Name + ")" }

// WorkingTableScan is the leaf node inside a RecursiveCTE's Recursive
// subtree that stands for "FROM <cte-name>": it reuses the anchor's own
// attribute ids (rather than allocating fresh ones) so a GetField inside
// Recursive resolves identically whether the row currently bound came
// from Anchor or from the prior iteration's delta. The emitter rebinds
// this node's descriptor to each new delta on every iteration (§4.4).
type WorkingTableScan struct {
	Name    string
	attrs   []sql.Attribute
	relType sql.RelationType
}

// NewWorkingTableScan builds the placeholder from the RecursiveCTE's own
// anchor-derived shape, guaranteeing attribute-id identity with Anchor.
func NewWorkingTableScan(name string, attrs []sql.Attribute, relType sql.RelationType) *WorkingTableScan {
	return &WorkingTableScan{Name: name, attrs: attrs, relType: relType}
}

func (w *WorkingTableScan) RelType() sql.RelationType      { return w.relType }
func (w *WorkingTableScan) Attributes() []sql.Attribute    { return w.attrs }
func (w *WorkingTableScan) Children() []sql.RelationalNode { return nil }
func (w *WorkingTableScan) WithChildren(ch ...sql.RelationalNode) (sql.RelationalNode, error) {
	if len(ch) != 0 {
		return nil, sql.ErrInternal.New("working table scan takes no children")
	}
	return w, nil
}
func (w *WorkingTableScan) String() string { return "working_table(" + w.Name + ")" }
