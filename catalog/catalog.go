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

// Package catalog is the engine's table/module registry: it binds a
// schema-qualified table name to both its TableSchema and the live
// sql.Table instance a vtab module produced for it, and tracks the
// per-connection transaction state (§3 "Connection") needed to drive
// begin/commit/rollback/savepoint across every table a statement
// touches. Table entries are held in an immutable radix tree so that a
// DDL change publishing a new schema version never invalidates the
// snapshot an in-flight statement already captured a pointer to (§3:
// "transaction layers share the parent's schema unless a DDL operation
// forks a new schema-version base").
package catalog

import (
	"sync"

	iradix "github.com/hashicorp/go-immutable-radix"
	"github.com/pkg/errors"

	"github.com/dolthub/quereus/sql"
)

// Entry is one catalog-resident table: its current schema and the vtab
// instance backing it.
type Entry struct {
	Schema *sql.TableSchema
	Table  sql.Table
}

// Catalog owns the module registry and the table directory. Reads of the
// directory never block a concurrent DDL publish: Lookup walks whatever
// immutable snapshot was current at the moment it was taken.
type Catalog struct {
	mu            sync.Mutex
	modules       map[string]sql.Module
	defaultModule string
	dir           *iradix.Tree
}

// New builds an empty catalog. Register at least one module (typically
// "memory") before creating tables.
func New() *Catalog {
	return &Catalog{
		modules: make(map[string]sql.Module),
		dir:     iradix.New(),
	}
}

// RegisterModule installs a vtab module under name; the first module
// registered becomes the default used by CREATE TABLE statements that
// don't name one explicitly (USING clause).
func (c *Catalog) RegisterModule(name string, m sql.Module) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.modules[name] = m
	if c.defaultModule == "" {
		c.defaultModule = name
	}
}

// Module resolves a registered module by name, falling back to the
// default module when name is empty.
func (c *Catalog) Module(name string) (sql.Module, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if name == "" {
		name = c.defaultModule
	}
	m, ok := c.modules[name]
	if !ok {
		return nil, sql.ErrPlanning.New("no such vtab module registered: " + name)
	}
	return m, nil
}

// CreateTable asks schema's named module to create a fresh instance and
// publishes it under the table's qualified name. Returns a constraint
// error if the name is already taken.
func (c *Catalog) CreateTable(ctx *sql.Context, schema *sql.TableSchema) error {
	mod, err := c.Module(schema.Module)
	if err != nil {
		return err
	}
	c.mu.Lock()
	if _, ok := c.dir.Get([]byte(schema.QualifiedName())); ok {
		c.mu.Unlock()
		return sql.ErrConstraint.New("table already exists: " + schema.QualifiedName())
	}
	c.mu.Unlock()

	tbl, err := mod.Create(ctx, schema)
	if err != nil {
		return errors.Wrap(err, "creating table "+schema.QualifiedName())
	}
	c.publish(schema.QualifiedName(), &Entry{Schema: schema, Table: tbl})
	return nil
}

// DropTable destroys the backing vtab instance and removes the catalog
// entry. Returns ErrPlanning if no such table is registered.
func (c *Catalog) DropTable(ctx *sql.Context, name string) error {
	e, ok := c.Lookup(name)
	if !ok {
		return sql.ErrPlanning.New("no such table: " + name)
	}
	mod, err := c.Module(e.Schema.Module)
	if err != nil {
		return err
	}
	if err := mod.Destroy(ctx, e.Schema); err != nil {
		return errors.Wrap(err, "dropping table "+name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	dir, _, _ := c.dir.Delete([]byte(name))
	c.dir = dir
	return nil
}

// Lookup resolves a qualified table name against the current directory
// snapshot.
func (c *Catalog) Lookup(name string) (*Entry, bool) {
	c.mu.Lock()
	dir := c.dir
	c.mu.Unlock()
	v, ok := dir.Get([]byte(name))
	if !ok {
		return nil, false
	}
	return v.(*Entry), true
}

// RenameTable updates both the vtab instance and the directory entry.
func (c *Catalog) RenameTable(ctx *sql.Context, oldName, newName string) error {
	e, ok := c.Lookup(oldName)
	if !ok {
		return sql.ErrPlanning.New("no such table: " + oldName)
	}
	if err := e.Table.Rename(ctx, newName); err != nil {
		return err
	}
	c.mu.Lock()
	dir, _, _ := c.dir.Delete([]byte(oldName))
	dir, _, _ = dir.Insert([]byte(newName), e)
	c.dir = dir
	c.mu.Unlock()
	return nil
}

// CreateIndex / DropIndex apply DDL directly to the live table instance;
// the directory entry's Schema pointer is shared with the table and is
// mutated in place by the module (the same immediate, non-transactional
// DDL model the memory module itself implements, §4.6).
func (c *Catalog) CreateIndex(ctx *sql.Context, tableName string, idx sql.IndexSchema) error {
	e, ok := c.Lookup(tableName)
	if !ok {
		return sql.ErrPlanning.New("no such table: " + tableName)
	}
	return e.Table.CreateIndex(ctx, idx)
}

func (c *Catalog) DropIndex(ctx *sql.Context, tableName, indexName string) error {
	e, ok := c.Lookup(tableName)
	if !ok {
		return sql.ErrPlanning.New("no such table: " + tableName)
	}
	return e.Table.DropIndex(ctx, indexName)
}

func (c *Catalog) AlterSchema(ctx *sql.Context, tableName string, change sql.SchemaChange) error {
	e, ok := c.Lookup(tableName)
	if !ok {
		return sql.ErrPlanning.New("no such table: " + tableName)
	}
	return e.Table.AlterSchema(ctx, change)
}

// Tables lists every currently registered qualified table name, used by
// the CLI's debug surfaces.
func (c *Catalog) Tables() []string {
	c.mu.Lock()
	dir := c.dir
	c.mu.Unlock()
	var names []string
	dir.Root().Walk(func(k []byte, v interface{}) bool {
		names = append(names, string(k))
		return false
	})
	return names
}

func (c *Catalog) publish(name string, e *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	dir, _, _ := c.dir.Insert([]byte(name), e)
	c.dir = dir
}
