// Copyright 2024 Google LLC
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

// Package workerpool drains the upcall queue §5 requires: a fixed-size
// pool with two lanes, priority and normal, so vector/graph control
// requests never queue behind a backlog of plain POSIX upcalls.
package workerpool

import (
	"sync"

	"github.com/vexfs/vexfs/internal/vexerrors"
)

// Task is one unit of work submitted to the pool.
type Task func()

const queueDepth = 4096

// StaticWorkerPool runs a fixed number of goroutines per lane for the
// lifetime of the pool; lanes are never resized, hence "static".
type StaticWorkerPool struct {
	priorityQueue chan Task
	normalQueue   chan Task

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopped  chan struct{}
}

// NewStaticWorkerPool starts priorityWorkers goroutines draining the
// priority lane and normalWorkers draining the normal lane. At least one
// worker, in either lane, is required.
func NewStaticWorkerPool(priorityWorkers, normalWorkers uint32) (*StaticWorkerPool, error) {
	if priorityWorkers == 0 && normalWorkers == 0 {
		return nil, vexerrors.New(vexerrors.InvalidArg, "workerpool: at least one priority or normal worker is required")
	}

	p := &StaticWorkerPool{
		priorityQueue: make(chan Task, queueDepth),
		normalQueue:   make(chan Task, queueDepth),
		stopped:       make(chan struct{}),
	}

	for i := uint32(0); i < priorityWorkers; i++ {
		p.wg.Add(1)
		go p.drain(p.priorityQueue)
	}
	for i := uint32(0); i < normalWorkers; i++ {
		p.wg.Add(1)
		go p.drain(p.normalQueue)
	}
	return p, nil
}

func (p *StaticWorkerPool) drain(q chan Task) {
	defer p.wg.Done()
	for task := range q {
		task()
	}
}

// ScheduleNormal enqueues task on the normal lane. It returns an error if
// the pool has already been stopped.
func (p *StaticWorkerPool) ScheduleNormal(task Task) error {
	return p.schedule(p.normalQueue, task)
}

// SchedulePriority enqueues task on the priority lane, used for
// vector/graph control requests per §5's dispatch rule.
func (p *StaticWorkerPool) SchedulePriority(task Task) error {
	return p.schedule(p.priorityQueue, task)
}

func (p *StaticWorkerPool) schedule(q chan Task, task Task) (err error) {
	select {
	case <-p.stopped:
		return vexerrors.New(vexerrors.Conflict, "workerpool: pool is stopped")
	default:
	}

	defer func() {
		if r := recover(); r != nil {
			err = vexerrors.New(vexerrors.Conflict, "workerpool: pool is stopped")
		}
	}()
	q <- task
	return nil
}

// Stop closes both lanes and blocks until every in-flight task finishes.
// It is safe to call on a nil pool (the failure path of
// NewStaticWorkerPool returns nil, and callers defer Stop unconditionally).
func (p *StaticWorkerPool) Stop() {
	if p == nil {
		return
	}
	p.stopOnce.Do(func() {
		close(p.stopped)
		close(p.priorityQueue)
		close(p.normalQueue)
	})
	p.wg.Wait()
}
