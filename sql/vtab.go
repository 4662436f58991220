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

package sql

// Operator is one of the predicate operators a virtual-table module may
// be asked to handle as part of an access-plan request.
type Operator int

const (
	OpEQ Operator = iota
	OpLT
	OpLE
	OpGT
	OpGE
	OpNE
	OpIS
	OpLIKE
	OpGLOB
	OpREGEXP
	OpMATCH
	OpISNULL
	OpISNOTNULL
)

// FilterConstraint is one candidate filter a module's best_access_plan
// may choose to handle, pushing the work below the executor.
type FilterConstraint struct {
	ColumnIndex int
	Operator    Operator
	// Usable is false when the constraint's right-hand side cannot be
	// evaluated before the scan starts (e.g. it references another
	// table), so the module must not claim to handle it.
	Usable bool
	Value  Value
}

// AccessRequest is handed to a module's BestAccessPlan: the surviving
// filter constraints after the optimizer's pushdown pass, plus the
// table's estimated row count.
type AccessRequest struct {
	Filters       []FilterConstraint
	EstimatedRows int64
}

// AccessPlan is a module's answer: which filters it will enforce itself
// (by bit position into the request's Filters slice), the cost/row
// estimates it offers, and an optional chosen index name. A false
// positive on Handled is a correctness bug — a module must never claim to
// filter a constraint it will not actually enforce.
type AccessPlan struct {
	Handled       []bool
	EstimatedRows int64
	EstimatedCost float64
	Index         string
	// SupportsSeek is true when the module can perform a direct
	// equality/point lookup on Index rather than only ranged scans.
	SupportsSeek bool
	Explanation  string
}

// Capabilities describes what a module's instances support, consulted by
// the optimizer and by the isolation wrapper.
type Capabilities struct {
	SupportsSeek       bool
	SupportsIsolation  bool
	SupportsSavepoints bool
	WantsStatements    bool
	NativeEvents       bool
}

// Module is the virtual-table module contract (§6): the boundary between
// the executor and any storage backend.
type Module interface {
	Create(ctx *Context, schema *TableSchema) (Table, error)
	Connect(ctx *Context, schema *TableSchema) (Table, error)
	Destroy(ctx *Context, schema *TableSchema) error
	BestAccessPlan(ctx *Context, schema *TableSchema, req AccessRequest) (AccessPlan, error)
	CreateIndex(ctx *Context, schema *TableSchema, idx IndexSchema) error
	DropIndex(ctx *Context, schema *TableSchema, name string) error
	Capabilities() Capabilities
}

// MutationOp names the kind of change a DML executor asks update() to
// apply.
type MutationOp int

const (
	MutationInsert MutationOp = iota
	MutationUpdate
	MutationDelete
)

// Mutation is the single argument to Table.Update: operation, new values
// (insert/update), old key values (update/delete) and the conflict
// policy to apply.
type Mutation struct {
	Operation    MutationOp
	NewValues    Row
	OldKeyValues Row
	OnConflict   ConflictPolicy
	Statement    string
}

// UpdateResult reports what a mutation actually did, used by the DML
// executor to build its row count and change-event payload.
type UpdateResult struct {
	RowsAffected int64
	// Applied is false when the mutation was dropped by ConflictIgnore or
	// its target key was not found.
	Applied bool
}

// ScanPlan is handed to Table.Query: which index to scan (empty string
// for primary), an optional equality key, optional lower/upper bounds,
// and scan direction.
type ScanPlan struct {
	Index      string
	Equality   Row
	Lower      Row
	LowerIncl  bool
	Upper      Row
	UpperIncl  bool
	Direction  Direction
}

// Table is the virtual-table instance contract (§6).
type Table interface {
	Schema() *TableSchema
	Query(ctx *Context, plan ScanPlan) (RowIter, error)
	Update(ctx *Context, m Mutation) (UpdateResult, error)
	Begin(ctx *Context) error
	Commit(ctx *Context) error
	Rollback(ctx *Context) error
	Savepoint(ctx *Context, name string) error
	Release(ctx *Context, name string) error
	RollbackTo(ctx *Context, name string) error
	Rename(ctx *Context, newName string) error
	CreateIndex(ctx *Context, idx IndexSchema) error
	DropIndex(ctx *Context, name string) error
	AlterSchema(ctx *Context, change SchemaChange) error
	Disconnect(ctx *Context) error
}

// SchemaChangeKind enumerates DDL operations a table must apply to
// itself via AlterSchema.
type SchemaChangeKind int

const (
	AddColumn SchemaChangeKind = iota
	DropColumn
	RenameColumn
)

type SchemaChange struct {
	Kind      SchemaChangeKind
	Column    ColumnSchema
	OldName   string
	NewName   string
}

// ChangeEventType enumerates the kinds of change emitted on the change
// event contract (§6).
type ChangeEventType int

const (
	ChangeInsert ChangeEventType = iota
	ChangeUpdate
	ChangeDelete
)

func (c ChangeEventType) String() string {
	switch c {
	case ChangeInsert:
		return "insert"
	case ChangeUpdate:
		return "update"
	case ChangeDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// ChangeEvent is the payload emitted on every applied mutation (§6),
// consumed by sync/observability collaborators.
type ChangeEvent struct {
	Type           ChangeEventType
	Schema         string
	Table          string
	PrimaryKey     Row
	OldRow         Row
	NewRow         Row
	ChangedColumns []string
	Remote         bool
}

// ChangeSink receives change events. The DML executor calls Publish for
// modules without NativeEvents; modules with NativeEvents call it
// themselves.
type ChangeSink interface {
	Publish(ctx *Context, ev ChangeEvent)
}
