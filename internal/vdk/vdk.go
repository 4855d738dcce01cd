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

// Package vdk computes pairwise distances between equal-length f32 vectors
// under three metrics, with a kernel selected once at process start based
// on detected CPU features (golang.org/x/sys/cpu), the same module
// gcsfuse depends on for its own platform probing, used here via its cpu
// subpackage instead of unix.
package vdk

import (
	"math"

	"github.com/vexfs/vexfs/internal/vexerrors"
	"golang.org/x/sys/cpu"
)

// Metric selects the distance function. The set is closed and small, so it
// is modeled as a tagged variant rather than an interface with dynamic
// dispatch.
type Metric int

const (
	Euclidean Metric = iota
	Cosine
	Dot
)

// kernel is the pure, allocation-free function shape every metric and
// every implementation variant (SIMD-unrolled or scalar) must satisfy.
type kernel func(a, b []float32) float32

var (
	euclideanFn kernel
	cosineFn    kernel
	dotFn       kernel
)

func init() {
	if cpu.X86.HasAVX2 && cpu.X86.HasFMA {
		euclideanFn = euclideanUnrolled
		cosineFn = cosineUnrolled
		dotFn = dotUnrolled
	} else {
		euclideanFn = euclideanScalar
		cosineFn = cosineScalar
		dotFn = dotScalar
	}
}

// Distance computes metric(a, b). Both slices must have equal, non-zero
// length. The result is never NaN or infinite for finite inputs.
func Distance(metric Metric, a, b []float32) (float32, error) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, vexerrors.New(vexerrors.InvalidArg, "vector length mismatch or zero length")
	}
	switch metric {
	case Euclidean:
		return euclideanFn(a, b), nil
	case Cosine:
		return cosineFn(a, b), nil
	case Dot:
		return dotFn(a, b), nil
	default:
		return 0, vexerrors.New(vexerrors.InvalidArg, "unknown distance metric")
	}
}

func dotScalar(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func euclideanScalar(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sqrtf32(sum)
}

func cosineScalar(a, b []float32) float32 {
	var dot, na, nb float32
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 1.0
	}
	return 1.0 - dot/(sqrtf32(na)*sqrtf32(nb))
}

// The *Unrolled variants are the "SIMD fast path": idiomatic Go offers no
// portable intrinsics without assembly, so an 8-wide manually unrolled
// loop, gated on the feature-detected kernel selection, stands in for the
// fused-multiply-add SIMD path the spec calls for.

func dotUnrolled(a, b []float32) float32 {
	n := len(a)
	i := 0
	var sum float32
	for ; i+8 <= n; i += 8 {
		sum += a[i]*b[i] + a[i+1]*b[i+1] + a[i+2]*b[i+2] + a[i+3]*b[i+3] +
			a[i+4]*b[i+4] + a[i+5]*b[i+5] + a[i+6]*b[i+6] + a[i+7]*b[i+7]
	}
	for ; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

func euclideanUnrolled(a, b []float32) float32 {
	n := len(a)
	i := 0
	var sum float32
	for ; i+8 <= n; i += 8 {
		d0, d1, d2, d3 := a[i]-b[i], a[i+1]-b[i+1], a[i+2]-b[i+2], a[i+3]-b[i+3]
		d4, d5, d6, d7 := a[i+4]-b[i+4], a[i+5]-b[i+5], a[i+6]-b[i+6], a[i+7]-b[i+7]
		sum += d0*d0 + d1*d1 + d2*d2 + d3*d3 + d4*d4 + d5*d5 + d6*d6 + d7*d7
	}
	for ; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return sqrtf32(sum)
}

func cosineUnrolled(a, b []float32) float32 {
	n := len(a)
	i := 0
	var dot, na, nb float32
	for ; i+8 <= n; i += 8 {
		for j := 0; j < 8; j++ {
			dot += a[i+j] * b[i+j]
			na += a[i+j] * a[i+j]
			nb += b[i+j] * b[i+j]
		}
	}
	for ; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 1.0
	}
	return 1.0 - dot/(sqrtf32(na)*sqrtf32(nb))
}

func sqrtf32(v float32) float32 {
	return float32(math.Sqrt(float64(v)))
}
