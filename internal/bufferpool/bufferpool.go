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

// Package bufferpool supplies the upcall handler with working memory
// without per-request heap churn. It mirrors the checkout/release
// discipline of the teacher's lease.FileLeaser, generalized from
// temp-file leases to cache-line-aligned byte buffers in three fixed size
// classes.
package bufferpool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vexfs/vexfs/internal/metrics"
	"github.com/vexfs/vexfs/internal/vexerrors"
)

// alignment is the byte alignment every issued Buffer's backing slice
// honors; buffers are over-allocated and the usable slice begins at the
// next aligned offset.
const alignment = 64

// Class identifies one of the three pre-sized buffer pools.
type Class int

const (
	Small  Class = iota // 1 KiB
	Medium              // 4 KiB
	Large               // 16 KiB
)

func (c Class) String() string {
	switch c {
	case Small:
		return "small"
	case Medium:
		return "medium"
	case Large:
		return "large"
	default:
		return "unknown"
	}
}

func (c Class) size() int {
	switch c {
	case Small:
		return 1 << 10
	case Medium:
		return 4 << 10
	case Large:
		return 16 << 10
	default:
		return 0
	}
}

// Buffer is a checked-out chunk of working memory. Data is sized exactly to
// the class and 64-byte aligned; Data's contents are undefined on reuse —
// buffers are not re-zeroed on recycle.
type Buffer struct {
	Data     []byte
	class    Class
	unpooled bool
	released atomic.Bool
}

// classPool is a lock-free free-list for one buffer class: a channel used
// as a bounded, non-blocking ring so the fast path never takes a mutex.
type classPool struct {
	class     Class
	free      chan *Buffer
	cap       atomic.Int64
	maxCap    int64
	checkedOut atomic.Int64

	hits   atomic.Int64
	misses atomic.Int64
	window atomic.Int64 // misses observed since the last doubling check
	total  atomic.Int64 // acquisitions observed since the last doubling check
}

func newClassPool(class Class, prealloc int, maxMultiplier int) *classPool {
	cp := &classPool{
		class:  class,
		free:   make(chan *Buffer, prealloc*maxMultiplier+prealloc),
		maxCap: int64(prealloc * maxMultiplier),
	}
	for i := 0; i < prealloc; i++ {
		cp.free <- newAlignedBuffer(class)
	}
	cp.cap.Store(int64(prealloc))
	return cp
}

func newAlignedBuffer(class Class) *Buffer {
	size := class.size()
	raw := make([]byte, size+alignment)
	off := alignment - (int(uintptrOf(raw)) % alignment)
	if off == alignment {
		off = 0
	}
	return &Buffer{Data: raw[off : off+size : off+size], class: class}
}

// Pool manages all three buffer classes plus their hit/miss accounting and
// sustained-miss-rate class doubling.
type Pool struct {
	classes       [3]*classPool
	maxMultiplier int
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// Config mirrors cfg.BufferPoolConfig.
type Config struct {
	SmallCount, MediumCount, LargeCount int
	MaxClassMultiplier                  int
}

// New pre-allocates the three classes per cfg and starts the background
// ticker that watches for sustained miss pressure, the same
// context-cancellable goroutine-loop pattern the teacher uses for its
// periodic garbage collector.
func New(cfg Config) *Pool {
	if cfg.MaxClassMultiplier <= 0 {
		cfg.MaxClassMultiplier = 8
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{maxMultiplier: cfg.MaxClassMultiplier, ctx: ctx, cancel: cancel}
	p.classes[Small] = newClassPool(Small, cfg.SmallCount, cfg.MaxClassMultiplier)
	p.classes[Medium] = newClassPool(Medium, cfg.MediumCount, cfg.MaxClassMultiplier)
	p.classes[Large] = newClassPool(Large, cfg.LargeCount, cfg.MaxClassMultiplier)

	p.wg.Add(1)
	go p.watchMissRate(ctx)
	return p
}

// Close stops the background watcher. It does not free outstanding
// buffers; callers must have released them first.
func (p *Pool) Close() {
	p.cancel()
	p.wg.Wait()
}

func classFor(sizeHint int) (Class, bool) {
	switch {
	case sizeHint <= Small.size():
		return Small, true
	case sizeHint <= Medium.size():
		return Medium, true
	case sizeHint <= Large.size():
		return Large, true
	default:
		return 0, false
	}
}

// Acquire returns the smallest buffer class that can hold sizeHint bytes.
// It returns ResourceExhausted when sizeHint exceeds the largest class; the
// caller must fall back to the heap itself or fail the request.
func (p *Pool) Acquire(ctx context.Context, sizeHint int) (*Buffer, error) {
	class, ok := classFor(sizeHint)
	if !ok {
		return nil, vexerrors.New(vexerrors.ResourceExhausted, "requested size exceeds largest buffer class")
	}
	cp := p.classes[class]
	cp.total.Add(1)
	cp.checkedOut.Add(1)

	select {
	case buf := <-cp.free:
		cp.hits.Add(1)
		metrics.Default().BufferHit(ctx, class.String())
		buf.released.Store(false)
		return buf, nil
	default:
	}

	cp.misses.Add(1)
	cp.window.Add(1)
	metrics.Default().BufferMiss(ctx, class.String())

	buf := newAlignedBuffer(class)
	buf.unpooled = true
	return buf, nil
}

// Release returns buf to its class pool, or frees it if it was allocated on
// the heap as an "unpooled" overflow buffer. Double-release is detected and
// panics, per the spec's "programming error the implementation must detect
// in test builds" contract.
func (p *Pool) Release(buf *Buffer) {
	if buf == nil {
		return
	}
	if !buf.released.CompareAndSwap(false, true) {
		panic("bufferpool: double release of buffer")
	}

	cp := p.classes[buf.class]
	cp.checkedOut.Add(-1)

	if buf.unpooled {
		return
	}

	select {
	case cp.free <- buf:
	default:
		// Free list is at capacity; drop it.
	}
}

// CheckedOut returns the number of buffers of class currently checked out,
// the counter invariant 8 of the spec asserts is zero at the end of a test.
func (p *Pool) CheckedOut(class Class) int64 {
	return p.classes[class].checkedOut.Load()
}

// Stats reports hit/miss totals for class, for diagnostics and tests.
func (p *Pool) Stats(class Class) (hits, misses int64) {
	cp := p.classes[class]
	return cp.hits.Load(), cp.misses.Load()
}

func (p *Pool) watchMissRate(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, cp := range p.classes {
				p.maybeDouble(ctx, cp)
			}
		}
	}
}

func (p *Pool) maybeDouble(ctx context.Context, cp *classPool) {
	total := cp.total.Swap(0)
	misses := cp.window.Swap(0)
	if total == 0 {
		return
	}
	if float64(misses)/float64(total) <= 0.10 {
		return
	}
	current := cp.cap.Load()
	if current >= cp.maxCap {
		return
	}
	grow := current
	if current+grow > cp.maxCap {
		grow = cp.maxCap - current
	}
	for i := int64(0); i < grow; i++ {
		select {
		case cp.free <- newAlignedBuffer(cp.class):
		default:
			break
		}
	}
	cp.cap.Add(grow)
	metrics.Default().BufferClassDoubled(ctx, cp.class.String())
}
