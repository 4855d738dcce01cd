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
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vexfs/vexfs/internal/vexerrors"
)

// chain builds a -> b -> c -> d, each edge weight 1, and returns the ids.
func chainGraph(t *testing.T) (*Graph, []InodeID) {
	t.Helper()
	g := newTestGraph()
	ids := make([]InodeID, 4)
	for i := range ids {
		ids[i] = mkfile(t, g, RootInodeID, string(rune('a'+i)))
	}
	for i := 0; i < len(ids)-1; i++ {
		_, err := g.AddEdge(ids[i], ids[i+1], LabelReferences, 1.0, nil)
		require.NoError(t, err)
	}
	return g, ids
}

func TestBFSTraverseVisitsAllReachable(t *testing.T) {
	g, ids := chainGraph(t)
	result, err := g.BFSTraverse(context.Background(), ids[0], TraversalOptions{})
	require.NoError(t, err)
	assert.Equal(t, ids, result.Visited)
}

func TestBFSTraverseRespectsMaxDepth(t *testing.T) {
	g, ids := chainGraph(t)
	result, err := g.BFSTraverse(context.Background(), ids[0], TraversalOptions{MaxDepth: 1})
	require.NoError(t, err)
	assert.Equal(t, []InodeID{ids[0], ids[1]}, result.Visited)
}

func TestBFSTraverseUnknownStartReturnsNotFound(t *testing.T) {
	g := newTestGraph()
	_, err := g.BFSTraverse(context.Background(), InodeID(9999), TraversalOptions{})
	require.Error(t, err)
	assert.Equal(t, vexerrors.NotFound, vexerrors.KindOf(err))
}

func TestDFSTraverseVisitsAllReachable(t *testing.T) {
	g, ids := chainGraph(t)
	result, err := g.DFSTraverse(context.Background(), ids[0], TraversalOptions{})
	require.NoError(t, err)
	assert.ElementsMatch(t, ids, result.Visited)
	assert.Equal(t, ids[0], result.Visited[0])
}

func TestTraversalLabelFilterExcludesEdges(t *testing.T) {
	g := newTestGraph()
	a := mkfile(t, g, RootInodeID, "a")
	b := mkfile(t, g, RootInodeID, "b")
	_, err := g.AddEdge(a, b, LabelSimilarTo, 1.0, nil)
	require.NoError(t, err)

	result, err := g.BFSTraverse(context.Background(), a, TraversalOptions{
		LabelFilter: map[EdgeLabel]bool{LabelReferences: true},
	})
	require.NoError(t, err)
	assert.Equal(t, []InodeID{a}, result.Visited)
}

func TestDijkstraTraverseFindsShortestPath(t *testing.T) {
	g := newTestGraph()
	a := mkfile(t, g, RootInodeID, "a")
	b := mkfile(t, g, RootInodeID, "b")
	c := mkfile(t, g, RootInodeID, "c")
	d := mkfile(t, g, RootInodeID, "d")

	_, err := g.AddEdge(a, b, LabelReferences, 5.0, nil)
	require.NoError(t, err)
	_, err = g.AddEdge(a, c, LabelReferences, 1.0, nil)
	require.NoError(t, err)
	_, err = g.AddEdge(c, d, LabelReferences, 1.0, nil)
	require.NoError(t, err)
	_, err = g.AddEdge(d, b, LabelReferences, 1.0, nil)
	require.NoError(t, err)

	result, err := g.DijkstraTraverse(context.Background(), a, TraversalOptions{End: b})
	require.NoError(t, err)
	assert.Equal(t, []InodeID{a, c, d, b}, result.Path)
	assert.InDelta(t, 3.0, result.Distances[b], 1e-9)
}

func TestDijkstraTraverseTieBreaksByAscendingID(t *testing.T) {
	g := newTestGraph()
	a := mkfile(t, g, RootInodeID, "a")
	b := mkfile(t, g, RootInodeID, "b")
	c := mkfile(t, g, RootInodeID, "c")
	_, err := g.AddEdge(a, b, LabelReferences, 1.0, nil)
	require.NoError(t, err)
	_, err = g.AddEdge(a, c, LabelReferences, 1.0, nil)
	require.NoError(t, err)

	result, err := g.DijkstraTraverse(context.Background(), a, TraversalOptions{})
	require.NoError(t, err)
	assert.Equal(t, []InodeID{a, b, c}, result.Visited)
}

func TestTopoSortOrdersByDependency(t *testing.T) {
	g, ids := chainGraph(t)
	result, err := g.TopoSort(context.Background(), ids[0], TraversalOptions{})
	require.NoError(t, err)
	assert.Equal(t, ids, result.Visited)
}

func TestTopoSortDetectsCycle(t *testing.T) {
	g := newTestGraph()
	a := mkfile(t, g, RootInodeID, "a")
	b := mkfile(t, g, RootInodeID, "b")
	_, err := g.AddEdge(a, b, LabelDependsOn, 1.0, nil)
	require.NoError(t, err)
	_, err = g.AddEdge(b, a, LabelDependsOn, 1.0, nil)
	require.NoError(t, err)

	_, err = g.TopoSort(context.Background(), a, TraversalOptions{})
	require.Error(t, err)
	assert.Equal(t, vexerrors.DirCycle, vexerrors.KindOf(err))
}

func TestTraversalKindFilterExcludesNodes(t *testing.T) {
	g := newTestGraph()
	dir := mkdir(t, g, RootInodeID, "dir")
	file := mkfile(t, g, dir, "file")
	_, err := g.AddEdge(dir, file, LabelContains, 1.0, nil)
	require.NoError(t, err)

	result, err := g.BFSTraverse(context.Background(), dir, TraversalOptions{
		KindFilter: map[Kind]bool{KindDir: true},
	})
	require.NoError(t, err)
	assert.Equal(t, []InodeID{dir}, result.Visited)
}
