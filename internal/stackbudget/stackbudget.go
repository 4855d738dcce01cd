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

// Package stackbudget enforces a per-upcall ceiling on stack bytes
// consumed inside a single handler invocation. Estimation is a portable,
// address-of-local approximation against a per-goroutine baseline
// recorded at Checkpoint time — an upper bound, not a cycle-exact
// measurement (see the open-question decision in DESIGN.md).
package stackbudget

import (
	"context"
	"sync/atomic"
	"unsafe"

	"github.com/vexfs/vexfs/internal/metrics"
	"github.com/vexfs/vexfs/internal/vexerrors"
)

// Monitor tracks the configured ceiling/warning thresholds and exposes
// Checkpoint to handlers.
type Monitor struct {
	ceilingBytes   int
	warningPercent int

	exceededCount atomic.Int64
	warningCount  atomic.Int64
}

// Config mirrors cfg.StackBudgetConfig.
type Config struct {
	CeilingBytes   int
	WarningPercent int
}

func New(cfg Config) *Monitor {
	if cfg.CeilingBytes <= 0 {
		cfg.CeilingBytes = 4096
	}
	if cfg.WarningPercent <= 0 {
		cfg.WarningPercent = 75
	}
	return &Monitor{ceilingBytes: cfg.CeilingBytes, warningPercent: cfg.WarningPercent}
}

// Guard is returned by Checkpoint; callers must Close it on every exit path
// (typically via defer) so usage is recorded. Usage is sampled only when
// Peek or Close runs; deeper calls made and returned in between are not
// seen, so no peak is tracked.
type Guard struct {
	m        *Monitor
	ctx      context.Context
	tag      string
	baseline uintptr
	closed   atomic.Bool
}

// stackProxy returns the address of a fresh local variable, used as a
// stand-in for the current stack pointer: callers further down the call
// tree have locals at monotonically smaller addresses on every
// architecture Go targets, since stacks grow downward.
//
//go:noinline
func stackProxy() uintptr {
	var x byte
	return uintptr(unsafe.Pointer(&x))
}

// Checkpoint records a baseline for the calling goroutine. tag identifies
// the call site (typically the upcall name) for diagnostics and counters.
func (m *Monitor) Checkpoint(ctx context.Context, tag string) *Guard {
	return &Guard{m: m, ctx: ctx, tag: tag, baseline: stackProxy()}
}

// Peek returns the stack bytes consumed since the checkpoint was opened,
// without closing the guard. Useful at "algorithmically risky" sites named
// in the spec (deep-looking traversals, large temporaries).
func (g *Guard) Peek() int {
	current := stackProxy()
	if g.baseline >= current {
		return int(g.baseline - current)
	}
	return int(current - g.baseline)
}

// Close measures usage at the point of the Close call, bumps the warning/exceeded
// counters and returns ResourceExhausted(StackBudget) if usage crossed the
// hard ceiling. Handlers must abort the upcall when Close returns an error.
func (g *Guard) Close() error {
	if !g.closed.CompareAndSwap(false, true) {
		return nil
	}
	used := g.Peek()

	warningThreshold := g.m.ceilingBytes * g.m.warningPercent / 100
	switch {
	case used >= g.m.ceilingBytes:
		g.m.exceededCount.Add(1)
		metrics.Default().StackExceeded(g.ctx, g.tag)
		return vexerrors.New(vexerrors.ResourceExhausted, "stack budget ceiling exceeded in "+g.tag)
	case used >= warningThreshold:
		g.m.warningCount.Add(1)
		metrics.Default().StackWarning(g.ctx, g.tag)
	}
	return nil
}

// ExceededCount is the counter invariant 7 of the spec asserts is zero at
// the end of a well-behaved test run.
func (m *Monitor) ExceededCount() int64 { return m.exceededCount.Load() }

// WarningCount reports how many checkpoints crossed the warning threshold
// without exceeding the hard ceiling.
func (m *Monitor) WarningCount() int64 { return m.warningCount.Load() }

// CeilingBytes reports the configured hard ceiling.
func (m *Monitor) CeilingBytes() int { return m.ceilingBytes }
