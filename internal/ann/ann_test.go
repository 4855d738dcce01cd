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

package ann

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vexfs/vexfs/internal/vdk"
)

func TestInsertThenSearchFindsClosest(t *testing.T) {
	idx := New()
	v1, v2 := uuid.New(), uuid.New()
	require.NoError(t, idx.Insert(v1, []float32{1, 0, 0, 0}))
	require.NoError(t, idx.Insert(v2, []float32{0, 1, 0, 0}))

	results, err := idx.Search([]float32{1, 0, 0, 0}, 2, vdk.Cosine, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, v1, results[0].ID)
	assert.InDelta(t, 0.0, results[0].Distance, 1e-6)
	assert.Equal(t, v2, results[1].ID)
	assert.InDelta(t, 1.0, results[1].Distance, 1e-6)
}

func TestSearchKZeroIsInvalidArg(t *testing.T) {
	idx := New()
	_, err := idx.Search([]float32{1}, 0, vdk.Dot, nil)
	require.Error(t, err)
}

func TestSearchKLargerThanIndexReturnsAll(t *testing.T) {
	idx := New()
	id := uuid.New()
	require.NoError(t, idx.Insert(id, []float32{1, 2, 3}))

	results, err := idx.Search([]float32{1, 2, 3}, 100, vdk.Euclidean, nil)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestRemoveThenSearchExcludesEntry(t *testing.T) {
	idx := New()
	id := uuid.New()
	require.NoError(t, idx.Insert(id, []float32{1, 1}))
	idx.Remove(id)

	results, err := idx.Search([]float32{1, 1}, 10, vdk.Euclidean, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestInsertRemoveRoundTripRestoresCardinality(t *testing.T) {
	idx := New()
	id := uuid.New()
	require.NoError(t, idx.Insert(id, []float32{1, 2, 3, 4}))
	assert.Equal(t, 1, idx.Stats().Cardinality)

	idx.Remove(id)
	assert.Equal(t, 0, idx.Stats().Cardinality)
}

func TestDimensionBucketingKeepsMismatchedVectorsApart(t *testing.T) {
	idx := New()
	a, b := uuid.New(), uuid.New()
	require.NoError(t, idx.Insert(a, []float32{1, 2, 3}))
	require.NoError(t, idx.Insert(b, []float32{1, 2, 3, 4}))

	results, err := idx.Search([]float32{1, 2, 3}, 10, vdk.Euclidean, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, a, results[0].ID)
}

func TestFilterRestrictsCandidates(t *testing.T) {
	idx := New()
	a, b := uuid.New(), uuid.New()
	require.NoError(t, idx.Insert(a, []float32{1, 0}))
	require.NoError(t, idx.Insert(b, []float32{0, 1}))

	results, err := idx.Search([]float32{1, 0}, 10, vdk.Euclidean, func(id uuid.UUID) bool { return id == b })
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, b, results[0].ID)
}
