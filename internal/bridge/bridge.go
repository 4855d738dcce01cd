// Copyright 2025 Google LLC
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

// Package bridge is the Cross-Layer Bridge (CLB): the single mediator
// every filesystem mutation that could touch more than one of {tree,
// vector-index, graph-index} passes through, so an observer never sees a
// half-applied change. It generalizes the staged-apply pattern of
// gcsproxy's MutableContent/ObjectSyncer into a two-phase protocol with an
// explicit, reverse-order undo log (state.go).
package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jacobsa/timeutil"

	"github.com/vexfs/vexfs/internal/ann"
	"github.com/vexfs/vexfs/internal/logger"
	"github.com/vexfs/vexfs/internal/metrics"
	"github.com/vexfs/vexfs/internal/objectgraph"
	"github.com/vexfs/vexfs/internal/vexerrors"
)

// Bridge owns the Object Graph and the ANN index and is the only component
// permitted to mutate both in the same operation.
type Bridge struct {
	og    *objectgraph.Graph
	index *ann.Index
	clk   timeutil.Clock

	// quiesceMu is held for read by every op and for write by Quiesce, the
	// "safe default: quiesce CLB, apply config, resume" open-question
	// decision recorded in SPEC_FULL.md.
	quiesceMu sync.RWMutex

	ownerMu sync.RWMutex
	owner   map[uuid.UUID]objectgraph.InodeID // embedding id -> owning inode
	dimMu   sync.RWMutex
	dims    map[objectgraph.InodeID]int // owning inode -> embedding dimension, invariant 6
}

// New builds a Bridge over an already-constructed Object Graph and ANN
// index (normally shared process-wide singletons wired up in cmd/).
func New(og *objectgraph.Graph, index *ann.Index, clk timeutil.Clock) *Bridge {
	return &Bridge{
		og:    og,
		index: index,
		clk:   clk,
		owner: make(map[uuid.UUID]objectgraph.InodeID),
		dims:  make(map[objectgraph.InodeID]int),
	}
}

// Quiesce blocks until every in-flight op has returned and prevents new
// ones from starting, so a caller can apply a hot-swapped configuration
// without racing a coordinated mutation.
func (b *Bridge) Quiesce() {
	b.quiesceMu.Lock()
}

// Resume releases the quiescence Quiesce established.
func (b *Bridge) Resume() {
	b.quiesceMu.Unlock()
}

// enter checks ctx's deadline and takes the op's share of quiesceMu; the
// returned func must be deferred to release it.
func (b *Bridge) enter(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, vexerrors.Wrap(vexerrors.Conflict, err, "bridge: context already done")
	}
	b.quiesceMu.RLock()
	return b.quiesceMu.RUnlock, nil
}

// finish records the op's outcome via metrics and logs rollbacks at WARN,
// mirroring gcsproxy's object_syncer logging around a failed Sync.
func finish(ctx context.Context, op string, start time.Time, t *txn, err error) {
	if err != nil {
		metrics.Default().BridgeRollback(ctx, op)
		logger.Warnf("bridge: %s rolled back: %v", op, err)
		return
	}
	metrics.Default().BridgeCommit(ctx, op, float64(time.Since(start).Microseconds())/1000.0)
}
