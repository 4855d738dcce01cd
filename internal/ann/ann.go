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

// Package ann is VexFS's stand-in for the external ANN collaborator §6.4
// of the specification treats as consumed, not designed: a bucketed flat
// index keyed by dimension, reranked exactly by internal/vdk. A true
// HNSW-style graph is out of scope (see DESIGN.md); this package satisfies
// the same index_insert/index_remove/index_search/index_stats interface a
// real HNSW collaborator would.
package ann

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/vexfs/vexfs/internal/vdk"
	"github.com/vexfs/vexfs/internal/vexerrors"
)

type entry struct {
	id  uuid.UUID
	vec []float32
}

// Index is a concurrency-safe, in-memory nearest-neighbor index. Entries
// are bucketed by dimension so that a search never compares vectors of
// mismatched length.
type Index struct {
	mu      sync.RWMutex
	buckets map[int]map[uuid.UUID]*entry
}

func New() *Index {
	return &Index{buckets: make(map[int]map[uuid.UUID]*entry)}
}

// Insert adds id -> vec to the index. Re-inserting an existing id replaces
// its vector.
func (idx *Index) Insert(id uuid.UUID, vec []float32) error {
	if len(vec) == 0 {
		return vexerrors.New(vexerrors.InvalidArg, "ann: empty vector")
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	bucket, ok := idx.buckets[len(vec)]
	if !ok {
		bucket = make(map[uuid.UUID]*entry)
		idx.buckets[len(vec)] = bucket
	}
	stored := make([]float32, len(vec))
	copy(stored, vec)
	bucket[id] = &entry{id: id, vec: stored}
	return nil
}

// Remove deletes id from the index, if present. It is a no-op if id is
// unknown, making it safe to call unconditionally from CLB compensation.
func (idx *Index) Remove(id uuid.UUID) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, bucket := range idx.buckets {
		delete(bucket, id)
	}
}

// Result is one scored hit from Search.
type Result struct {
	ID       uuid.UUID
	Distance float32
}

// Filter optionally restricts Search to a candidate id set; nil means no
// restriction.
type Filter func(id uuid.UUID) bool

// Search returns the k closest entries to query under metric, restricted to
// entries of the same dimension as query. Ties break by ascending id bytes
// for determinism. If k exceeds the index size, all matching entries are
// returned.
func (idx *Index) Search(query []float32, k int, metric vdk.Metric, filter Filter) ([]Result, error) {
	if k <= 0 {
		return nil, vexerrors.New(vexerrors.InvalidArg, "ann: k must be > 0")
	}
	if len(query) == 0 {
		return nil, vexerrors.New(vexerrors.InvalidArg, "ann: empty query vector")
	}

	idx.mu.RLock()
	bucket := idx.buckets[len(query)]
	candidates := make([]*entry, 0, len(bucket))
	for _, e := range bucket {
		if filter == nil || filter(e.id) {
			candidates = append(candidates, e)
		}
	}
	idx.mu.RUnlock()

	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		d, err := vdk.Distance(metric, query, c.vec)
		if err != nil {
			return nil, err
		}
		results = append(results, Result{ID: c.id, Distance: d})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return lessUUID(results[i].ID, results[j].ID)
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func lessUUID(a, b uuid.UUID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// Stats reports index cardinality, used to verify invariant 5 ("sum of
// owned embeddings equals ANN cardinality").
type Stats struct {
	Cardinality int
	Dimensions  int
}

func (idx *Index) Stats() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	s := Stats{Dimensions: len(idx.buckets)}
	for _, bucket := range idx.buckets {
		s.Cardinality += len(bucket)
	}
	return s
}
