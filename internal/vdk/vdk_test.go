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

package vdk

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistanceLengthMismatchIsInvalidArg(t *testing.T) {
	_, err := Distance(Euclidean, []float32{1, 2}, []float32{1})
	require.Error(t, err)
}

func TestCosineIdenticalVectorsIsZero(t *testing.T) {
	v := []float32{1, 0, 0, 0}
	d, err := Distance(Cosine, v, v)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, d, 1e-6)
}

func TestCosineOrthogonalVectorsIsOne(t *testing.T) {
	a := []float32{1, 0, 0, 0}
	b := []float32{0, 1, 0, 0}
	d, err := Distance(Cosine, a, b)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, d, 1e-6)
}

func TestCosineZeroNormReturnsMaxDistanceNotError(t *testing.T) {
	a := []float32{0, 0, 0, 0}
	b := []float32{1, 0, 0, 0}
	d, err := Distance(Cosine, a, b)
	require.NoError(t, err)
	assert.Equal(t, float32(1.0), d)
}

func TestEuclideanKnownValue(t *testing.T) {
	a := []float32{0, 0}
	b := []float32{3, 4}
	d, err := Distance(Euclidean, a, b)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, d, 1e-6)
}

func TestDotProduct(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{4, 5, 6}
	d, err := Distance(Dot, a, b)
	require.NoError(t, err)
	assert.InDelta(t, 32.0, d, 1e-6)
}

func TestResultsNeverNaNOrInfForFiniteInputs(t *testing.T) {
	a := make([]float32, 17)
	b := make([]float32, 17)
	for i := range a {
		a[i] = float32(i) * 0.37
		b[i] = float32(17-i) * 1.11
	}
	for _, m := range []Metric{Euclidean, Cosine, Dot} {
		d, err := Distance(m, a, b)
		require.NoError(t, err)
		assert.False(t, math.IsNaN(float64(d)))
		assert.False(t, math.IsInf(float64(d), 0))
	}
}

func TestUnrolledMatchesScalarAcrossOddAndEvenLengths(t *testing.T) {
	for _, n := range []int{1, 7, 8, 9, 16, 23} {
		a := make([]float32, n)
		b := make([]float32, n)
		for i := 0; i < n; i++ {
			a[i] = float32(i+1) * 0.5
			b[i] = float32(n-i) * 0.25
		}
		assert.InDelta(t, euclideanScalar(a, b), euclideanUnrolled(a, b), 1e-3)
		assert.InDelta(t, cosineScalar(a, b), cosineUnrolled(a, b), 1e-3)
		assert.InDelta(t, dotScalar(a, b), dotUnrolled(a, b), 1e-3)
	}
}
