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

package objectgraph

import (
	"hash/fnv"
	"sync"
)

// nameIndexShardCount generalizes the teacher's single fs.mu into the
// striped lock the concurrency model calls for: each shard guards the
// bindings whose parent id hashes to it, so unrelated directories never
// contend on the same mutex.
const nameIndexShardCount = 64

type nameShard struct {
	mu       sync.RWMutex
	bindings map[nameKey]InodeID
}

type nameIndex struct {
	shards [nameIndexShardCount]*nameShard
}

func newNameIndex() *nameIndex {
	ni := &nameIndex{}
	for i := range ni.shards {
		ni.shards[i] = &nameShard{bindings: make(map[nameKey]InodeID)}
	}
	return ni
}

func (ni *nameIndex) shardFor(parent InodeID) *nameShard {
	h := fnv.New32a()
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(parent >> (8 * i))
	}
	h.Write(buf[:])
	return ni.shards[h.Sum32()%nameIndexShardCount]
}

func (ni *nameIndex) lookup(parent InodeID, name string) (InodeID, bool) {
	s := ni.shardFor(parent)
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.bindings[nameKey{parent, name}]
	return id, ok
}

func (ni *nameIndex) bind(parent InodeID, name string, child InodeID) bool {
	s := ni.shardFor(parent)
	s.mu.Lock()
	defer s.mu.Unlock()
	key := nameKey{parent, name}
	if _, exists := s.bindings[key]; exists {
		return false
	}
	s.bindings[key] = child
	return true
}

func (ni *nameIndex) unbind(parent InodeID, name string) bool {
	s := ni.shardFor(parent)
	s.mu.Lock()
	defer s.mu.Unlock()
	key := nameKey{parent, name}
	if _, exists := s.bindings[key]; !exists {
		return false
	}
	delete(s.bindings, key)
	return true
}

