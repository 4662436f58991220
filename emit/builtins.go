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

import "github.com/dolthub/quereus/plan"

// registerBuiltinEmitters wires every physical plan-node kind this module
// ships to its builder.
func registerBuiltinEmitters(r *Registry) {
	r.Register(&plan.TableScan{}, buildTableScan)
	r.Register(&plan.Values{}, buildValues)
	r.Register(&plan.Filter{}, buildFilter)
	r.Register(&plan.Project{}, buildProject)
	r.Register(&plan.Sort{}, buildSort)
	r.Register(&plan.Distinct{}, buildDistinct)
	r.Register(&plan.Limit{}, buildLimit)
	r.Register(&plan.Join{}, buildJoin)
	r.Register(&plan.GroupBy{}, buildGroupBy)
	r.Register(&plan.Cache{}, buildCache)
	r.Register(&plan.RecursiveCTE{}, buildRecursiveCTE)
	r.Register(&plan.WorkingTableScan{}, buildWorkingTableScan)
	r.Register(&plan.SetOp{}, buildSetOp)
	r.Register(&plan.Insert{}, buildInsert)
	r.Register(&plan.Update{}, buildUpdate)
	r.Register(&plan.Delete{}, buildDelete)
}
