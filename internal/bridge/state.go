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

package bridge

import "sync/atomic"

// Phase is one state of a coordinated op's state machine, §4.5:
// INIT -> VALIDATED -> STAGED -> COMMITTED, with INIT/VALIDATED -> ABORT
// and STAGED -> ROLLBACK -> ABORT.
type Phase int32

const (
	Init Phase = iota
	Validated
	Staged
	Committed
	RolledBack
	Aborted
)

func (p Phase) String() string {
	switch p {
	case Init:
		return "INIT"
	case Validated:
		return "VALIDATED"
	case Staged:
		return "STAGED"
	case Committed:
		return "COMMITTED"
	case RolledBack:
		return "ROLLBACK"
	case Aborted:
		return "ABORT"
	default:
		return "UNKNOWN"
	}
}

// compensation is one undo closure, staged alongside the mutation it
// reverses. txn.rollback runs these in reverse order, generalizing
// fs.go's lookUpOrCreateInodeIfNotStale retry loop's "what to undo on
// failure" into an explicit stack.
type compensation func()

// txn tracks one coordinated op's phase and its undo log. It is
// stack-local to the call that creates it, never shared across goroutines,
// per §5's "CLB's undo log is per-op, stack-local" resource policy.
type txn struct {
	phase         atomic.Int32
	compensations []compensation
}

func newTxn() *txn {
	t := &txn{}
	t.phase.Store(int32(Init))
	return t
}

func (t *txn) currentPhase() Phase { return Phase(t.phase.Load()) }

func (t *txn) validate() { t.phase.Store(int32(Validated)) }

func (t *txn) stage(c compensation) {
	t.phase.Store(int32(Staged))
	t.compensations = append(t.compensations, c)
}

func (t *txn) commit() { t.phase.Store(int32(Committed)) }

// rollback applies every staged compensation in reverse order (edges -> ANN
// -> embeddings -> tree, the mirror of §4.5's tree -> embedding list -> ANN
// index -> edges apply order) and marks the txn ABORT.
func (t *txn) rollback() {
	t.phase.Store(int32(RolledBack))
	for i := len(t.compensations) - 1; i >= 0; i-- {
		t.compensations[i]()
	}
	t.phase.Store(int32(Aborted))
}
