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

// LogicalKind names a scalar type's fundamental storage kind.
type LogicalKind int

const (
	KindNull LogicalKind = iota
	KindInteger
	KindReal
	KindText
	KindBlob
	KindBoolean
)

func (k LogicalKind) String() string {
	switch k {
	case KindInteger:
		return "INTEGER"
	case KindReal:
		return "REAL"
	case KindText:
		return "TEXT"
	case KindBlob:
		return "BLOB"
	case KindBoolean:
		return "BOOLEAN"
	default:
		return "NULL"
	}
}

// ScalarType is a logical kind plus nullability, collation and an
// optional physical hint (e.g. a fixed width) used by CAST affinity.
type ScalarType struct {
	Kind          LogicalKind
	Nullable      bool
	Collation     string
	PhysicalHint  string
}

func (t ScalarType) WithCollation(name string) ScalarType {
	t.Collation = name
	return t
}

var (
	Integer  = ScalarType{Kind: KindInteger, Nullable: true}
	Real     = ScalarType{Kind: KindReal, Nullable: true}
	Text     = ScalarType{Kind: KindText, Nullable: true, Collation: "BINARY"}
	Blob     = ScalarType{Kind: KindBlob, Nullable: true}
	Boolean  = ScalarType{Kind: KindBoolean, Nullable: true}
	AnyNull  = ScalarType{Kind: KindNull, Nullable: true}
)

// ColumnDef describes one column of a relation type: name, scalar type,
// nullability and collation. Nullability is also tracked on ScalarType;
// ColumnDef.Nullable is authoritative for schema purposes (a column may
// be declared NOT NULL even though its scalar type is nominally
// nullable).
type ColumnDef struct {
	Name      string
	Type      ScalarType
	Nullable  bool
	Collation string
}

// RelationType is the ordered sequence of columns a relational plan node
// or virtual table produces, plus optional key sets and a set/bag flag.
type RelationType struct {
	Columns []ColumnDef
	// Keys lists candidate key column-index sets, if known; used by the
	// optimizer to recognise functional dependencies.
	Keys [][]int
	// IsSet marks a relation known to carry no duplicate rows (e.g. the
	// output of DISTINCT or a primary-key-scoped scan).
	IsSet bool
}

func (rt RelationType) ColumnIndex(name string) int {
	for i, c := range rt.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Direction is ascending or descending, used by PK/index column
// definitions and ORDER BY / scan-plan direction.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

// IndexColumn is one component of a primary key or secondary index:
// column index in the table, sort direction and an optional collation
// override.
type IndexColumn struct {
	ColumnIndex int
	Direction   Direction
	Collation   string
}

// IndexSchema describes one secondary index: name, the ordered key
// columns it is built on, and whether it enforces uniqueness.
type IndexSchema struct {
	Name    string
	Columns []IndexColumn
	Unique  bool
}

// CheckConstraint is a named boolean scalar expression (held as source
// text plus a lazily-compiled plan) that every row must satisfy.
type CheckConstraint struct {
	Name string
	Expr string
}

// ColumnSchema is a full table-column definition: type, constraints,
// default and generation expressions, collation.
type ColumnSchema struct {
	Name         string
	Type         ScalarType
	NotNull      bool
	Default      string
	Generated    string
	Collation    string
	Unique       bool
	PrimaryKey   bool
	AutoIncrement bool
}

// TableSchema is a schema-qualified table definition: columns, primary
// key, secondary indexes, check constraints and the vtab module that
// backs it.
type TableSchema struct {
	SchemaName    string
	TableName     string
	Columns       []ColumnSchema
	PrimaryKey    []IndexColumn
	SecondaryKeys []IndexSchema
	Checks        []CheckConstraint
	Module        string
	ModuleConfig  map[string]string
	EstimatedRows int64
}

func (t *TableSchema) QualifiedName() string {
	if t.SchemaName == "" {
		return t.TableName
	}
	return t.SchemaName + "." + t.TableName
}

func (t *TableSchema) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// RelationType derives the output relation type for a table's full scan.
func (t *TableSchema) RelationType() RelationType {
	cols := make([]ColumnDef, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = ColumnDef{Name: c.Name, Type: c.Type, Nullable: !c.NotNull, Collation: c.Collation}
	}
	var keys [][]int
	if len(t.PrimaryKey) > 0 {
		idx := make([]int, len(t.PrimaryKey))
		for i, k := range t.PrimaryKey {
			idx[i] = k.ColumnIndex
		}
		keys = append(keys, idx)
	}
	return RelationType{Columns: cols, Keys: keys, IsSet: len(keys) > 0}
}
