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
	"fmt"

	errorkind "gopkg.in/src-d/go-errors.v1"
)

// Kind names the broad category an engine error falls into. These map
// directly onto the error kinds enumerated in the error-handling design:
// parse, planning, type, constraint, misuse, unsupported, internal, io.
type Kind = *errorkind.Kind

var (
	// ErrParse covers malformed SQL text. Always carries a Position.
	ErrParse = errorkind.NewKind("parse error: %s")
	// ErrPlanning covers unresolvable symbols, ambiguous columns and
	// unsupported constructs discovered while building a logical plan.
	ErrPlanning = errorkind.NewKind("planning error: %s")
	// ErrType covers invalid coercions surfaced during scalar evaluation
	// or cast resolution.
	ErrType = errorkind.NewKind("type error: %s")
	// ErrConstraint covers PK/UNIQUE/NOT NULL/CHECK violations.
	ErrConstraint = errorkind.NewKind("constraint violation: %s")
	// ErrMisuse covers a statement operated on in the wrong lifecycle
	// state (bind during iteration, operate on a finalized statement).
	ErrMisuse = errorkind.NewKind("misuse: %s")
	// ErrUnsupported covers a reached-but-unimplemented feature.
	ErrUnsupported = errorkind.NewKind("unsupported: %s")
	// ErrInternal covers invariant violations that indicate an engine bug.
	ErrInternal = errorkind.NewKind("internal error: %s")
	// ErrIO covers backend-specific failures wrapped from a virtual-table
	// module.
	ErrIO = errorkind.NewKind("io error: %s")
	// ErrReadOnly is returned for a mutating statement run against an
	// engine configured read-only.
	ErrReadOnly = errorkind.NewKind("engine is read-only")
)

// Position is a source location, present on errors raised while parsing
// or planning.
type Position struct {
	Line, Col int
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

// PositionedError decorates an error kind instance with a source
// location. Parse and planning errors always carry one.
type PositionedError struct {
	Cause error
	Pos   Position
}

func (e *PositionedError) Error() string {
	return fmt.Sprintf("%s (at %s)", e.Cause.Error(), e.Pos)
}

func (e *PositionedError) Unwrap() error { return e.Cause }

// AtPosition attaches a source location to an error produced by one of
// the Err* kinds above.
func AtPosition(err error, pos Position) error {
	if err == nil {
		return nil
	}
	return &PositionedError{Cause: err, Pos: pos}
}

// ConflictPolicy names how a DML executor resolves a constraint
// violation raised by a virtual table's update operation.
type ConflictPolicy int

const (
	ConflictAbort ConflictPolicy = iota
	ConflictReplace
	ConflictIgnore
	ConflictRollback
	ConflictFail
)

func (c ConflictPolicy) String() string {
	switch c {
	case ConflictAbort:
		return "ABORT"
	case ConflictReplace:
		return "REPLACE"
	case ConflictIgnore:
		return "IGNORE"
	case ConflictRollback:
		return "ROLLBACK"
	case ConflictFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}
