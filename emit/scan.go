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

func buildTableScan(ec *EmissionContext, node sql.RelationalNode) (*Instruction, error) {
	ts := node.(*plan.TableScan)
	entry, ok := ec.Catalog.Lookup(ts.Schema.QualifiedName())
	if !ok {
		return nil, sql.ErrPlanning.New("no such table: " + ts.Schema.QualifiedName())
	}
	return &Instruction{
		Note: ts.String(),
		Run: func(rt *Runtime, _ []sql.Value) (Output, error) {
			return entry.Table.Query(rt.Ctx, ts.ScanPlan)
		},
	}, nil
}

func buildValues(ec *EmissionContext, node sql.RelationalNode) (*Instruction, error) {
	v := node.(*plan.Values)
	return &Instruction{
		Note: v.String(),
		Run: func(rt *Runtime, _ []sql.Value) (Output, error) {
			rows := make([]sql.Row, len(v.Rows))
			copy(rows, v.Rows)
			return sql.NewSliceIter(rows), nil
		},
	}, nil
}
