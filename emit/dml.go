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
	"github.com/dolthub/quereus/plan"
	"github.com/dolthub/quereus/sql"
)

// primaryKeyOf extracts the primary-key column values from row, assuming
// row is laid out in Schema.Columns order (true of every Source this
// module builds for Update/Delete: a scan, or a filter over one).
func primaryKeyOf(schema *sql.TableSchema, row sql.Row) sql.Row {
	key := make(sql.Row, len(schema.PrimaryKey))
	for i, k := range schema.PrimaryKey {
		key[i] = row[k.ColumnIndex]
	}
	return key
}

// buildInsert runs to completion eagerly inside Run (DML is not a lazy
// pull-based stream): every Source row is applied as one Mutation before
// the instruction returns, and RETURNING rows, if any, are collected into
// the slice handed back as this node's row sequence (§4.5).
func buildInsert(ec *EmissionContext, node sql.RelationalNode) (*Instruction, error) {
	n := node.(*plan.Insert)
	entry, ok := ec.Catalog.Lookup(n.Schema.QualifiedName())
	if !ok {
		return nil, sql.ErrPlanning.New("no such table: " + n.Schema.QualifiedName())
	}
	sourceIns, err := ec.Registry.Build(ec, n.Source)
	if err != nil {
		return nil, err
	}
	newDesc := sql.NewRowDescriptor(n.RowAttrs)
	returningIns, err := ScalarList(n.Returning)
	if err != nil {
		return nil, err
	}
	name := n.Schema.QualifiedName()

	return &Instruction{
		Note: n.String(),
		Run: func(rt *Runtime, _ []sql.Value) (Output, error) {
			if err := rt.Conn.EnsureWrite(rt.Ctx, name, entry.Table); err != nil {
				return nil, err
			}
			src, err := sourceIns.RowIter(rt)
			if err != nil {
				return nil, err
			}
			defer src.Close(rt.Ctx)

			var out []sql.Row
			for {
				srow, err := src.Next(rt.Ctx)
				if err == sql.ErrIteratorDone {
					break
				}
				if err != nil {
					return nil, err
				}
				newValues := make(sql.Row, len(n.Mapping))
				for i, srcIdx := range n.Mapping {
					if srcIdx >= 0 {
						newValues[i] = srow[srcIdx]
					}
				}
				res, err := entry.Table.Update(rt.Ctx, sql.Mutation{
					Operation: sql.MutationInsert, NewValues: newValues, OnConflict: n.OnConflict,
				})
				if err != nil {
					return nil, err
				}
				if !res.Applied {
					continue
				}
				if rt.Sink != nil {
					rt.Sink.Publish(rt.Ctx, sql.ChangeEvent{
						Type: sql.ChangeInsert, Schema: n.Schema.SchemaName, Table: n.Schema.TableName,
						PrimaryKey: primaryKeyOf(n.Schema, newValues), NewRow: newValues,
					})
				}
				if len(returningIns) == 0 {
					continue
				}
				row := make(sql.Row, len(returningIns))
				err = bindRow(rt, newDesc, newValues, func() error {
					for i, r := range returningIns {
						v, err := r.Value(rt)
						if err != nil {
							return err
						}
						row[i] = v
					}
					return nil
				})
				if err != nil {
					return nil, err
				}
				out = append(out, row)
			}
			return sql.NewSliceIter(out), nil
		},
	}, nil
}

func buildUpdate(ec *EmissionContext, node sql.RelationalNode) (*Instruction, error) {
	n := node.(*plan.Update)
	entry, ok := ec.Catalog.Lookup(n.Schema.QualifiedName())
	if !ok {
		return nil, sql.ErrPlanning.New("no such table: " + n.Schema.QualifiedName())
	}
	sourceIns, err := ec.Registry.Build(ec, n.Source)
	if err != nil {
		return nil, err
	}
	sourceDesc := sql.NewRowDescriptor(n.Source.Attributes())
	newDesc := sql.NewRowDescriptor(n.RowAttrs)
	setIns := make(map[int]*Instruction, len(n.SetExprs))
	for idx, e := range n.SetExprs {
		ins, err := Scalar(e)
		if err != nil {
			return nil, err
		}
		setIns[idx] = ins
	}
	returningIns, err := ScalarList(n.Returning)
	if err != nil {
		return nil, err
	}
	name := n.Schema.QualifiedName()

	return &Instruction{
		Note: n.String(),
		Run: func(rt *Runtime, _ []sql.Value) (Output, error) {
			if err := rt.Conn.EnsureWrite(rt.Ctx, name, entry.Table); err != nil {
				return nil, err
			}
			src, err := sourceIns.RowIter(rt)
			if err != nil {
				return nil, err
			}
			defer src.Close(rt.Ctx)

			var out []sql.Row
			for {
				oldRow, err := src.Next(rt.Ctx)
				if err == sql.ErrIteratorDone {
					break
				}
				if err != nil {
					return nil, err
				}
				newValues := append(sql.Row{}, oldRow...)
				err = bindRow(rt, sourceDesc, oldRow, func() error {
					for idx, ins := range setIns {
						v, err := ins.Value(rt)
						if err != nil {
							return err
						}
						newValues[idx] = v
					}
					return nil
				})
				if err != nil {
					return nil, err
				}
				oldKey := primaryKeyOf(n.Schema, oldRow)
				res, err := entry.Table.Update(rt.Ctx, sql.Mutation{
					Operation: sql.MutationUpdate, NewValues: newValues, OldKeyValues: oldKey,
					OnConflict: sql.ConflictAbort,
				})
				if err != nil {
					return nil, err
				}
				if !res.Applied {
					continue
				}
				if rt.Sink != nil {
					rt.Sink.Publish(rt.Ctx, sql.ChangeEvent{
						Type: sql.ChangeUpdate, Schema: n.Schema.SchemaName, Table: n.Schema.TableName,
						PrimaryKey: oldKey, OldRow: oldRow, NewRow: newValues,
					})
				}
				if len(returningIns) == 0 {
					continue
				}
				row := make(sql.Row, len(returningIns))
				err = bindings2helper(rt, sourceDesc, oldRow, newDesc, newValues, func() error {
					for i, r := range returningIns {
						v, err := r.Value(rt)
						if err != nil {
							return err
						}
						row[i] = v
					}
					return nil
				})
				if err != nil {
					return nil, err
				}
				out = append(out, row)
			}
			return sql.NewSliceIter(out), nil
		},
	}, nil
}

func buildDelete(ec *EmissionContext, node sql.RelationalNode) (*Instruction, error) {
	n := node.(*plan.Delete)
	entry, ok := ec.Catalog.Lookup(n.Schema.QualifiedName())
	if !ok {
		return nil, sql.ErrPlanning.New("no such table: " + n.Schema.QualifiedName())
	}
	sourceIns, err := ec.Registry.Build(ec, n.Source)
	if err != nil {
		return nil, err
	}
	sourceDesc := sql.NewRowDescriptor(n.Source.Attributes())
	returningIns, err := ScalarList(n.Returning)
	if err != nil {
		return nil, err
	}
	name := n.Schema.QualifiedName()

	return &Instruction{
		Note: n.String(),
		Run: func(rt *Runtime, _ []sql.Value) (Output, error) {
			if err := rt.Conn.EnsureWrite(rt.Ctx, name, entry.Table); err != nil {
				return nil, err
			}
			src, err := sourceIns.RowIter(rt)
			if err != nil {
				return nil, err
			}
			defer src.Close(rt.Ctx)

			var out []sql.Row
			for {
				oldRow, err := src.Next(rt.Ctx)
				if err == sql.ErrIteratorDone {
					break
				}
				if err != nil {
					return nil, err
				}
				oldKey := primaryKeyOf(n.Schema, oldRow)
				res, err := entry.Table.Update(rt.Ctx, sql.Mutation{
					Operation: sql.MutationDelete, OldKeyValues: oldKey, OnConflict: sql.ConflictAbort,
				})
				if err != nil {
					return nil, err
				}
				if !res.Applied {
					continue
				}
				if rt.Sink != nil {
					rt.Sink.Publish(rt.Ctx, sql.ChangeEvent{
						Type: sql.ChangeDelete, Schema: n.Schema.SchemaName, Table: n.Schema.TableName,
						PrimaryKey: oldKey, OldRow: oldRow,
					})
				}
				if len(returningIns) == 0 {
					continue
				}
				row := make(sql.Row, len(returningIns))
				err = bindRow(rt, sourceDesc, oldRow, func() error {
					for i, r := range returningIns {
						v, err := r.Value(rt)
						if err != nil {
							return err
						}
						row[i] = v
					}
					return nil
				})
				if err != nil {
					return nil, err
				}
				out = append(out, row)
			}
			return sql.NewSliceIter(out), nil
		},
	}, nil
}
