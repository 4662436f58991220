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

// Package changefeed implements the external side of the change-event
// contract (§6): it fans each sql.ChangeEvent out to subscribers and
// offers a wire-format encoding for transport to an out-of-process
// sync/observability consumer, without implementing any sync protocol
// itself (that collaborator is out of scope per §1).
package changefeed

import (
	"sync"

	msgpack "gopkg.in/vmihailenco/msgpack.v2"

	"github.com/dolthub/quereus/sql"
)

// wireEvent is the msgpack-serializable shape of sql.ChangeEvent; kept
// distinct from sql.ChangeEvent so the wire format doesn't leak Go-only
// types (sql.Row is a []interface{}, which msgpack already handles, but
// a dedicated struct keeps the wire contract stable if ChangeEvent grows
// engine-internal fields later).
type wireEvent struct {
	Type           string        `msgpack:"type"`
	Schema         string        `msgpack:"schema"`
	Table          string        `msgpack:"table"`
	PrimaryKey     []interface{} `msgpack:"primary_key"`
	OldRow         []interface{} `msgpack:"old_row,omitempty"`
	NewRow         []interface{} `msgpack:"new_row,omitempty"`
	ChangedColumns []string      `msgpack:"changed_columns,omitempty"`
	Remote         bool          `msgpack:"remote"`
}

// Encode renders a change event in the wire format external sync
// consumers decode.
func Encode(ev sql.ChangeEvent) ([]byte, error) {
	w := wireEvent{
		Type:           ev.Type.String(),
		Schema:         ev.Schema,
		Table:          ev.Table,
		PrimaryKey:     []interface{}(ev.PrimaryKey),
		ChangedColumns: ev.ChangedColumns,
		Remote:         ev.Remote,
	}
	if ev.OldRow != nil {
		w.OldRow = []interface{}(ev.OldRow)
	}
	if ev.NewRow != nil {
		w.NewRow = []interface{}(ev.NewRow)
	}
	return msgpack.Marshal(w)
}

// Decode parses a wire-encoded change event back into its Go shape; used
// by tests and by any in-process consumer that wants the wire round trip
// validated rather than receiving the live sql.ChangeEvent directly.
func Decode(b []byte) (sql.ChangeEvent, error) {
	var w wireEvent
	if err := msgpack.Unmarshal(b, &w); err != nil {
		return sql.ChangeEvent{}, err
	}
	ev := sql.ChangeEvent{
		Schema:         w.Schema,
		Table:          w.Table,
		PrimaryKey:     sql.Row(w.PrimaryKey),
		ChangedColumns: w.ChangedColumns,
		Remote:         w.Remote,
	}
	switch w.Type {
	case "insert":
		ev.Type = sql.ChangeInsert
	case "update":
		ev.Type = sql.ChangeUpdate
	case "delete":
		ev.Type = sql.ChangeDelete
	}
	if w.OldRow != nil {
		ev.OldRow = sql.Row(w.OldRow)
	}
	if w.NewRow != nil {
		ev.NewRow = sql.Row(w.NewRow)
	}
	return ev, nil
}

// Feed is an in-process fan-out ChangeSink: every subscriber function is
// invoked synchronously (the engine is single-threaded cooperative, §5)
// for every published event.
type Feed struct {
	mu   sync.Mutex
	subs []func(sql.ChangeEvent)
}

func New() *Feed { return &Feed{} }

func (f *Feed) Subscribe(fn func(sql.ChangeEvent)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, fn)
}

func (f *Feed) Publish(ctx *sql.Context, ev sql.ChangeEvent) {
	f.mu.Lock()
	subs := make([]func(sql.ChangeEvent), len(f.subs))
	copy(subs, f.subs)
	f.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

// NoopSink discards every event; used where no sink was configured.
type NoopSink struct{}

func (NoopSink) Publish(ctx *sql.Context, ev sql.ChangeEvent) {}
