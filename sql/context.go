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

import (
	"context"
	"sync/atomic"

	opentracing "github.com/opentracing/opentracing-go"
	"github.com/sirupsen/logrus"
	uuid "github.com/satori/go.uuid"
)

// Context carries everything the scheduler, emitters and virtual-table
// modules need at runtime: a cancellation flag, a logger pre-populated
// with connection/statement identifiers, a tracing span, and the
// go-context used to propagate cancellation into blocking calls (remote
// queries, external iterators).
//
// Concurrency model: the engine is single-threaded cooperative (§5). The
// cancel flag is the only piece of Context mutated from outside the
// goroutine driving a statement (a caller may cancel from another
// goroutine), so it alone is atomic; everything else is set up once per
// statement and read-only thereafter.
type Context struct {
	context.Context
	ConnectionID uint32
	cancelled    int32
	logger       *logrus.Entry
	span         opentracing.Span
	params       []Value
}

// NewContext derives a fresh runtime Context for one statement execution.
func NewContext(parent context.Context, connID uint32) *Context {
	if parent == nil {
		parent = context.Background()
	}
	return &Context{
		Context:      parent,
		ConnectionID: connID,
		logger:       logrus.WithField("conn", connID),
	}
}

// NewEmptyContext is a convenience constructor for tests and ad-hoc
// evaluation, mirroring the teacher's sql.NewEmptyContext().
func NewEmptyContext() *Context {
	return NewContext(context.Background(), 0)
}

func (c *Context) Logger() *logrus.Entry {
	if c.logger == nil {
		return logrus.NewEntry(logrus.StandardLogger())
	}
	return c.logger
}

func (c *Context) WithLogger(l *logrus.Entry) *Context {
	c2 := *c
	c2.logger = l
	return &c2
}

// Cancel marks the context cancelled. The scheduler checks this at every
// sequence-advance boundary (§4.2, §5) rather than relying on exceptions
// for control flow.
func (c *Context) Cancel() {
	atomic.StoreInt32(&c.cancelled, 1)
}

func (c *Context) Cancelled() bool {
	return atomic.LoadInt32(&c.cancelled) != 0
}

// CheckCancelled returns an ErrUnsupported cancellation error if the
// context has been cancelled, nil otherwise. Call at sequence boundaries.
func (c *Context) CheckCancelled() error {
	if c.Cancelled() {
		return ErrUnsupported.New("statement cancelled")
	}
	if c.Context != nil {
		select {
		case <-c.Context.Done():
			return ErrUnsupported.New("statement cancelled: " + c.Context.Err().Error())
		default:
		}
	}
	return nil
}

// StartSpan opens a tracing span for the statement lifecycle's `trace`
// operation (§4.9) and attaches it to the context.
func (c *Context) StartSpan(operation string) *Context {
	span := opentracing.StartSpan(operation)
	c2 := *c
	c2.span = span
	return &c2
}

func (c *Context) FinishSpan() {
	if c.span != nil {
		c.span.Finish()
	}
}

// WithParams attaches a statement's bound parameter values, positional by
// index, so an expr.Param scalar node can read them back during Eval
// without threading a separate argument down through every evaluator.
func (c *Context) WithParams(params []Value) *Context {
	c2 := *c
	c2.params = params
	return &c2
}

// Param returns the i'th bound parameter value (0-based). ok is false if
// i is out of range, which a statement with unbound parameters left at
// their zero value would otherwise silently mistake for a bound null.
func (c *Context) Param(i int) (Value, bool) {
	if i < 0 || i >= len(c.params) {
		return nil, false
	}
	return c.params[i], true
}

// NewConnectionID allocates a process-unique connection identifier using
// a UUID-derived low 32 bits; collisions are astronomically unlikely and
// harmless (ids are used for logging/keying, not security).
func NewConnectionID() uint32 {
	id := uuid.NewV4()
	b := id.Bytes()
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
