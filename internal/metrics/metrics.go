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

// Package metrics is VexFS's ambient telemetry layer: counters and gauges
// registered against go.opentelemetry.io/otel/metric, following the same
// package-level meter + attribute-set-caching idiom gcsfuse's
// common/otel_metrics.go uses. Dashboards and exporters are Non-goals; the
// instruments themselves are ambient, always-on bookkeeping. The counters
// tests assert on (invariants 7 and 8) are kept separately, by
// stackbudget.Monitor and bufferpool.Pool.
package metrics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	BufferClassKey = "buffer_class"
	AlgoKey        = "traversal_algo"
	OpKey          = "clb_op"
)

var (
	bufferPoolMeter  = otel.Meter("vexfs/bufferpool")
	stackBudgetMeter = otel.Meter("vexfs/stackbudget")
	objectGraphMeter = otel.Meter("vexfs/objectgraph")
	bridgeMeter      = otel.Meter("vexfs/bridge")

	bufferClassAttrSets sync.Map
	algoAttrSets        sync.Map
	opAttrSets          sync.Map
)

func loadOrStore(mp *sync.Map, key string, gen func() attribute.Set) metric.MeasurementOption {
	if v, ok := mp.Load(key); ok {
		return v.(metric.MeasurementOption)
	}
	v, _ := mp.LoadOrStore(key, metric.WithAttributeSet(gen()))
	return v.(metric.MeasurementOption)
}

func bufferClassAttr(class string) metric.MeasurementOption {
	return loadOrStore(&bufferClassAttrSets, class, func() attribute.Set {
		return attribute.NewSet(attribute.String(BufferClassKey, class))
	})
}

func algoAttr(algo string) metric.MeasurementOption {
	return loadOrStore(&algoAttrSets, algo, func() attribute.Set {
		return attribute.NewSet(attribute.String(AlgoKey, algo))
	})
}

func opAttr(op string) metric.MeasurementOption {
	return loadOrStore(&opAttrSets, op, func() attribute.Set {
		return attribute.NewSet(attribute.String(OpKey, op))
	})
}

// vexMetrics holds every instrument VexFS registers. A single package-level
// instance is lazily built on first use via Default(), mirroring gcsfuse's
// singleton otelMetrics handle.
type vexMetrics struct {
	bufferHit    metric.Int64Counter
	bufferMiss   metric.Int64Counter
	bufferClassDoubled metric.Int64Counter

	stackWarnings metric.Int64Counter
	stackExceeded metric.Int64Counter

	traversalCount     metric.Int64Counter
	traversalPathLen   metric.Float64Histogram
	traversalCycleHits metric.Int64Counter

	clbCommits   metric.Int64Counter
	clbRollbacks metric.Int64Counter
	clbLatency   metric.Float64Histogram
}

var (
	once    sync.Once
	current *vexMetrics
)

func Default() *vexMetrics {
	once.Do(func() { current = newVexMetrics() })
	return current
}

func newVexMetrics() *vexMetrics {
	m := &vexMetrics{}

	m.bufferHit, _ = bufferPoolMeter.Int64Counter("bufferpool.hit")
	m.bufferMiss, _ = bufferPoolMeter.Int64Counter("bufferpool.miss")
	m.bufferClassDoubled, _ = bufferPoolMeter.Int64Counter("bufferpool.class_doubled")

	m.stackWarnings, _ = stackBudgetMeter.Int64Counter("stackbudget.warnings")
	m.stackExceeded, _ = stackBudgetMeter.Int64Counter("stackbudget.exceeded")

	m.traversalCount, _ = objectGraphMeter.Int64Counter("objectgraph.traversals")
	m.traversalPathLen, _ = objectGraphMeter.Float64Histogram("objectgraph.traversal_path_length")
	m.traversalCycleHits, _ = objectGraphMeter.Int64Counter("objectgraph.cycle_detections")

	m.clbCommits, _ = bridgeMeter.Int64Counter("bridge.commits")
	m.clbRollbacks, _ = bridgeMeter.Int64Counter("bridge.rollbacks")
	m.clbLatency, _ = bridgeMeter.Float64Histogram("bridge.op_latency_ms")

	return m
}

func (m *vexMetrics) BufferHit(ctx context.Context, class string) {
	m.bufferHit.Add(ctx, 1, bufferClassAttr(class))
}

func (m *vexMetrics) BufferMiss(ctx context.Context, class string) {
	m.bufferMiss.Add(ctx, 1, bufferClassAttr(class))
}

func (m *vexMetrics) BufferClassDoubled(ctx context.Context, class string) {
	m.bufferClassDoubled.Add(ctx, 1, bufferClassAttr(class))
}

func (m *vexMetrics) StackWarning(ctx context.Context, tag string) {
	m.stackWarnings.Add(ctx, 1, opAttr(tag))
}

func (m *vexMetrics) StackExceeded(ctx context.Context, tag string) {
	m.stackExceeded.Add(ctx, 1, opAttr(tag))
}

func (m *vexMetrics) Traversal(ctx context.Context, algo string, pathLen int) {
	m.traversalCount.Add(ctx, 1, algoAttr(algo))
	m.traversalPathLen.Record(ctx, float64(pathLen), algoAttr(algo))
}

func (m *vexMetrics) CycleDetected(ctx context.Context, algo string) {
	m.traversalCycleHits.Add(ctx, 1, algoAttr(algo))
}

func (m *vexMetrics) BridgeCommit(ctx context.Context, op string, latencyMs float64) {
	m.clbCommits.Add(ctx, 1, opAttr(op))
	m.clbLatency.Record(ctx, latencyMs, opAttr(op))
}

func (m *vexMetrics) BridgeRollback(ctx context.Context, op string) {
	m.clbRollbacks.Add(ctx, 1, opAttr(op))
}
