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

package quereus

import (
	"github.com/dolthub/quereus/emit"
	"github.com/dolthub/quereus/optimizer"
)

// Config carries the engine-wide tunables threaded down into the
// optimizer and the emitter/scheduler (§9's two resolved Open
// Questions): the cache node's abandon-on-threshold row count and the
// recursive CTE iteration cap. The memory table itself takes no tunable
// here: it folds a commit straight into the committed base rather than
// chaining transaction layers behind a background collapse pass (see
// the memory package doc and DESIGN.md for the single-layer-per-
// connection simplification this implies).
type Config struct {
	// CacheAbandonThreshold is the row count at which a Cache plan node
	// gives up buffering its first traversal and falls back to re-driving
	// its source on every subsequent one (§4.4).
	CacheAbandonThreshold int64
	// MaxCTEIterations bounds a recursive CTE's semi-naive fixpoint loop
	// (§4.4), guarding against a non-terminating recursive term.
	MaxCTEIterations int64
}

// DefaultConfig mirrors the zero-configuration defaults every layer of
// this module falls back to when the embedder supplies none.
func DefaultConfig() Config {
	return Config{
		CacheAbandonThreshold: 10000,
		MaxCTEIterations:      10000,
	}
}

func (c Config) emitConfig() emit.Config {
	return emit.Config{CacheAbandonThreshold: c.CacheAbandonThreshold, MaxCTEIterations: c.MaxCTEIterations}
}

func (c Config) optimizerConfig() optimizer.Config {
	return optimizer.Config{CacheAbandonThreshold: c.CacheAbandonThreshold, MaxCTEIterations: c.MaxCTEIterations}
}
