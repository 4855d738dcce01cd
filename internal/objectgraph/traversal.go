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
	"container/heap"
	"context"
	"sort"

	"github.com/vexfs/vexfs/common"
	"github.com/vexfs/vexfs/internal/metrics"
	"github.com/vexfs/vexfs/internal/vexerrors"
)

// Algorithm selects one of the four traversal strategies §4.4 names.
type Algorithm int

const (
	BFS Algorithm = iota
	DFS
	Dijkstra
	TopoSort
)

func (a Algorithm) String() string {
	switch a {
	case BFS:
		return "bfs"
	case DFS:
		return "dfs"
	case Dijkstra:
		return "dijkstra"
	case TopoSort:
		return "toposort"
	default:
		return "unknown"
	}
}

// TraversalOptions bounds a traversal per §4.4: an optional depth bound, an
// optional edge-label filter, an optional node-kind filter, and a weight
// floor.
type TraversalOptions struct {
	MaxDepth    int // 0 means unbounded
	LabelFilter map[EdgeLabel]bool
	KindFilter  map[Kind]bool
	MinWeight   float64
	End         InodeID // for Dijkstra: stop once End is settled; 0 means visit everything reachable
}

func (o TraversalOptions) allows(e Edge) bool {
	if o.LabelFilter != nil && !o.LabelFilter[e.Label] {
		return false
	}
	if e.Weight < o.MinWeight {
		return false
	}
	return true
}

func (g *Graph) kindAllowed(o TraversalOptions, id InodeID) bool {
	if o.KindFilter == nil {
		return true
	}
	r, ok := g.record(id)
	if !ok {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return o.KindFilter[r.kind]
}

// TraversalResult reports the ids visited, in visitation order, and (for
// Dijkstra) the accumulated distance to each visited node.
type TraversalResult struct {
	Visited   []InodeID
	Distances map[InodeID]float64 // Dijkstra only
	Path      []InodeID           // Dijkstra only, when End is set and reached
}

// BFSTraverse performs an iterative, level-ordered breadth-first walk from
// start, using a heap-free FIFO work queue (common.Queue) per the spec's
// "any algorithm that would grow linearly with depth must be implemented
// iteratively" design rule.
func (g *Graph) BFSTraverse(ctx context.Context, start InodeID, opts TraversalOptions) (TraversalResult, error) {
	if _, ok := g.record(start); !ok {
		return TraversalResult{}, vexerrors.New(vexerrors.NotFound, "start inode not found")
	}

	type frame struct {
		id    InodeID
		depth int
	}
	q := common.NewLinkedListQueue[frame]()
	q.Push(frame{start, 0})
	visited := map[InodeID]bool{start: true}
	var order []InodeID

	for !q.IsEmpty() {
		f := q.Pop()
		if g.kindAllowed(opts, f.id) {
			order = append(order, f.id)
		}
		if opts.MaxDepth > 0 && f.depth >= opts.MaxDepth {
			continue
		}
		for _, neighbor := range g.traversableNeighbors(f.id, opts) {
			if !visited[neighbor] {
				visited[neighbor] = true
				q.Push(frame{neighbor, f.depth + 1})
			}
		}
	}

	metrics.Default().Traversal(ctx, BFS.String(), len(order))
	return TraversalResult{Visited: order}, nil
}

// DFSTraverse performs an iterative, LIFO-stack depth-first walk.
func (g *Graph) DFSTraverse(ctx context.Context, start InodeID, opts TraversalOptions) (TraversalResult, error) {
	if _, ok := g.record(start); !ok {
		return TraversalResult{}, vexerrors.New(vexerrors.NotFound, "start inode not found")
	}

	type frame struct {
		id    InodeID
		depth int
	}
	stack := []frame{{start, 0}}
	visited := map[InodeID]bool{}
	var order []InodeID

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[f.id] {
			continue
		}
		visited[f.id] = true
		if g.kindAllowed(opts, f.id) {
			order = append(order, f.id)
		}
		if opts.MaxDepth > 0 && f.depth >= opts.MaxDepth {
			continue
		}
		neighbors := g.traversableNeighbors(f.id, opts)
		for i := len(neighbors) - 1; i >= 0; i-- {
			if !visited[neighbors[i]] {
				stack = append(stack, frame{neighbors[i], f.depth + 1})
			}
		}
	}

	metrics.Default().Traversal(ctx, DFS.String(), len(order))
	return TraversalResult{Visited: order}, nil
}

func (g *Graph) traversableNeighbors(id InodeID, opts TraversalOptions) []InodeID {
	outIDs, err := g.ListOutgoing(id)
	if err != nil {
		return nil
	}
	var out []InodeID
	for _, eid := range outIDs {
		e, err := g.GetEdge(eid)
		if err != nil || !opts.allows(e) {
			continue
		}
		out = append(out, e.Dst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// pqItem is one entry in Dijkstra's binary min-heap, keyed by accumulated
// weight with node-id-ascending tie-break, exactly as §4.4 pins down.
type pqItem struct {
	id   InodeID
	dist float64
}

type priorityQueue []pqItem

func (pq priorityQueue) Len() int { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].dist != pq[j].dist {
		return pq[i].dist < pq[j].dist
	}
	return pq[i].id < pq[j].id
}
func (pq priorityQueue) Swap(i, j int) { pq[i], pq[j] = pq[j], pq[i] }
func (pq *priorityQueue) Push(x any)   { *pq = append(*pq, x.(pqItem)) }
func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[:n-1]
	return item
}

// DijkstraTraverse computes shortest accumulated-weight paths from start
// using a binary min-heap, stopping early once opts.End is settled if set.
func (g *Graph) DijkstraTraverse(ctx context.Context, start InodeID, opts TraversalOptions) (TraversalResult, error) {
	if _, ok := g.record(start); !ok {
		return TraversalResult{}, vexerrors.New(vexerrors.NotFound, "start inode not found")
	}

	dist := map[InodeID]float64{start: 0}
	prev := map[InodeID]InodeID{}
	settled := map[InodeID]bool{}
	var order []InodeID

	pq := &priorityQueue{{start, 0}}
	heap.Init(pq)

	for pq.Len() > 0 {
		item := heap.Pop(pq).(pqItem)
		if settled[item.id] {
			continue
		}
		settled[item.id] = true
		order = append(order, item.id)

		if opts.End != 0 && item.id == opts.End {
			break
		}

		for _, eid := range mustList(g.ListOutgoing(item.id)) {
			e, err := g.GetEdge(eid)
			if err != nil || !opts.allows(e) {
				continue
			}
			nd := item.dist + e.Weight
			if cur, ok := dist[e.Dst]; !ok || nd < cur {
				dist[e.Dst] = nd
				prev[e.Dst] = item.id
				heap.Push(pq, pqItem{e.Dst, nd})
			}
		}
	}

	result := TraversalResult{Visited: order, Distances: dist}
	if opts.End != 0 {
		if _, ok := dist[opts.End]; ok {
			result.Path = reconstructPath(prev, start, opts.End)
		}
	}

	metrics.Default().Traversal(ctx, Dijkstra.String(), len(order))
	return result, nil
}

func mustList(ids []EdgeID, err error) []EdgeID {
	if err != nil {
		return nil
	}
	return ids
}

func reconstructPath(prev map[InodeID]InodeID, start, end InodeID) []InodeID {
	path := []InodeID{end}
	cur := end
	for cur != start {
		p, ok := prev[cur]
		if !ok {
			return nil
		}
		path = append(path, p)
		cur = p
	}
	// reverse
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// TopoSort runs Kahn's algorithm over the edges reachable from start (or,
// if start is 0, over every known inode), restricted by opts. It reports a
// cycle as an error naming one of the offending ids, as §4.4 requires
// ("cycle detection mandatory and reports the cycle").
func (g *Graph) TopoSort(ctx context.Context, start InodeID, opts TraversalOptions) (TraversalResult, error) {
	nodes := map[InodeID]bool{}
	inDegree := map[InodeID]int{}
	adjacency := map[InodeID][]InodeID{}

	var seed []InodeID
	if start != 0 {
		seed = []InodeID{start}
	} else {
		seed = g.allInodeIDs()
	}

	// Discover the reachable subgraph first so in-degree only counts edges
	// within it.
	frontier := common.NewLinkedListQueue[InodeID]()
	for _, s := range seed {
		if !nodes[s] {
			nodes[s] = true
			frontier.Push(s)
		}
	}
	for !frontier.IsEmpty() {
		id := frontier.Pop()
		for _, eid := range mustList(g.ListOutgoing(id)) {
			e, err := g.GetEdge(eid)
			if err != nil || !opts.allows(e) {
				continue
			}
			adjacency[id] = append(adjacency[id], e.Dst)
			if !nodes[e.Dst] {
				nodes[e.Dst] = true
				frontier.Push(e.Dst)
			}
		}
	}
	for id := range nodes {
		inDegree[id] = 0
	}
	for _, targets := range adjacency {
		for _, t := range targets {
			inDegree[t]++
		}
	}

	ready := common.NewLinkedListQueue[InodeID]()
	var ids []InodeID
	for id := range nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if inDegree[id] == 0 {
			ready.Push(id)
		}
	}

	var order []InodeID
	for !ready.IsEmpty() {
		id := ready.Pop()
		order = append(order, id)
		targets := append([]InodeID(nil), adjacency[id]...)
		sort.Slice(targets, func(i, j int) bool { return targets[i] < targets[j] })
		for _, t := range targets {
			inDegree[t]--
			if inDegree[t] == 0 {
				ready.Push(t)
			}
		}
	}

	if len(order) != len(nodes) {
		metrics.Default().CycleDetected(ctx, TopoSort.String())
		var stuck []InodeID
		for id, deg := range inDegree {
			if deg > 0 {
				stuck = append(stuck, id)
			}
		}
		sort.Slice(stuck, func(i, j int) bool { return stuck[i] < stuck[j] })
		return TraversalResult{}, vexerrors.New(vexerrors.DirCycle, "cycle detected involving inode %d", stuck[0])
	}

	metrics.Default().Traversal(ctx, TopoSort.String(), len(order))
	return TraversalResult{Visited: order}, nil
}

func (g *Graph) allInodeIDs() []InodeID {
	var out []InodeID
	g.inodes.Range(func(k, _ any) bool {
		out = append(out, k.(InodeID))
		return true
	})
	return out
}
