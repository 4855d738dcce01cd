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

//go:build debug

package objectgraph

import (
	"fmt"
	"sort"
)

// checkInvariants walks the whole graph and panics on the first violation
// of §5's invariants 1-4. It is built only under the debug tag, the same
// pattern the teacher's root debug.go uses to keep verbose diagnostics out
// of production builds; tests that want it enable the tag explicitly.
func (g *Graph) checkInvariants() {
	root, ok := g.record(RootInodeID)
	if !ok {
		panic("invariant 1 violated: root inode missing")
	}
	root.mu.RLock()
	rootKind, rootNlink := root.kind, root.nlink
	root.mu.RUnlock()
	if rootKind != KindDir {
		panic("invariant 1 violated: root is not a directory")
	}
	if rootNlink < 2 {
		panic(fmt.Sprintf("invariant 1 violated: root nlink %d < 2", rootNlink))
	}

	var ids []InodeID
	g.inodes.Range(func(k, _ any) bool {
		ids = append(ids, k.(InodeID))
		return true
	})
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		r, ok := g.record(id)
		if !ok {
			continue
		}
		r.mu.RLock()
		kind := r.kind
		children := append([]dirent(nil), r.children...)
		outgoing := append([]EdgeID(nil), r.outgoing...)
		r.mu.RUnlock()

		if kind == KindDir {
			seen := map[string]bool{}
			for _, d := range children {
				if !d.valid {
					continue
				}
				if seen[d.name] {
					panic(fmt.Sprintf("invariant 2 violated: duplicate name %q under inode %d", d.name, id))
				}
				seen[d.name] = true
			}
			if !seen["."] || !seen[".."] {
				panic(fmt.Sprintf("invariant 3 violated: directory %d missing . or ..", id))
			}
		}

		for _, eid := range outgoing {
			e, err := g.GetEdge(eid)
			if err != nil {
				panic(fmt.Sprintf("invariant 4 violated: dangling outgoing edge %d from inode %d", eid, id))
			}
			if e.Src != id {
				panic(fmt.Sprintf("invariant 4 violated: edge %d src mismatch", eid))
			}
			if _, ok := g.record(e.Dst); !ok {
				panic(fmt.Sprintf("invariant 4 violated: edge %d targets missing inode %d", eid, e.Dst))
			}
		}
	}
}
