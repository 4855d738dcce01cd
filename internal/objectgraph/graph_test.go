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
	"testing"

	"github.com/google/uuid"
	"github.com/jacobsa/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vexfs/vexfs/internal/vexerrors"
)

func newTestGraph() *Graph {
	return New(timeutil.RealClock())
}

func mkdir(t *testing.T, g *Graph, parent InodeID, name string) InodeID {
	t.Helper()
	id := g.InsertInode(NewInodeSpec{Kind: KindDir, Mode: 0o755})
	require.NoError(t, g.BindName(parent, name, id, KindDir))
	require.NoError(t, g.SetDotDot(id, parent))
	return id
}

func mkfile(t *testing.T, g *Graph, parent InodeID, name string) InodeID {
	t.Helper()
	id := g.InsertInode(NewInodeSpec{Kind: KindFile, Mode: 0o644})
	require.NoError(t, g.BindName(parent, name, id, KindFile))
	return id
}

func TestNewGraphRootInvariants(t *testing.T) {
	g := newTestGraph()
	attrs, err := g.GetInode(RootInodeID)
	require.NoError(t, err)
	assert.Equal(t, KindDir, attrs.Kind)
	assert.GreaterOrEqual(t, attrs.Nlink, uint32(2))

	children, err := g.ListChildren(RootInodeID)
	require.NoError(t, err)
	names := map[string]bool{}
	for _, c := range children {
		names[c.Name] = true
	}
	assert.True(t, names["."])
	assert.True(t, names[".."])
}

func TestBindNameRejectsDuplicate(t *testing.T) {
	g := newTestGraph()
	mkfile(t, g, RootInodeID, "a.txt")
	second := g.InsertInode(NewInodeSpec{Kind: KindFile})
	err := g.BindName(RootInodeID, "a.txt", second, KindFile)
	require.Error(t, err)
	assert.Equal(t, vexerrors.Exists, vexerrors.KindOf(err))
}

func TestBindNameRejectsOversizedName(t *testing.T) {
	g := newTestGraph()
	id := g.InsertInode(NewInodeSpec{Kind: KindFile})
	longName := make([]byte, 256)
	for i := range longName {
		longName[i] = 'a'
	}
	err := g.BindName(RootInodeID, string(longName), id, KindFile)
	require.Error(t, err)
	assert.Equal(t, vexerrors.NameTooLong, vexerrors.KindOf(err))
}

func TestUnlinkNameTombstonesSlotAndPreservesOffsets(t *testing.T) {
	g := newTestGraph()
	mkfile(t, g, RootInodeID, "a.txt")
	mkfile(t, g, RootInodeID, "b.txt")

	before, err := g.ListChildren(RootInodeID)
	require.NoError(t, err)
	bIndex := -1
	for i, c := range before {
		if c.Name == "b.txt" {
			bIndex = i
		}
	}
	require.NotEqual(t, -1, bIndex)

	_, err = g.UnlinkName(RootInodeID, "a.txt")
	require.NoError(t, err)

	after, err := g.ListChildren(RootInodeID)
	require.NoError(t, err)
	for _, c := range after {
		assert.NotEqual(t, "a.txt", c.Name)
	}
	found := false
	for _, c := range after {
		if c.Name == "b.txt" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestUnlinkNameFinalizesOrphanWithNoOpenHandles(t *testing.T) {
	g := newTestGraph()
	id := mkfile(t, g, RootInodeID, "a.txt")
	_, err := g.UnlinkName(RootInodeID, "a.txt")
	require.NoError(t, err)

	_, err = g.GetInode(id)
	require.Error(t, err)
	assert.Equal(t, vexerrors.NotFound, vexerrors.KindOf(err))
}

func TestUnlinkNameKeepsOrphanAliveWhileHandleOpen(t *testing.T) {
	g := newTestGraph()
	id := mkfile(t, g, RootInodeID, "a.txt")
	require.NoError(t, g.IncrementOpenHandles(id))

	_, err := g.UnlinkName(RootInodeID, "a.txt")
	require.NoError(t, err)

	_, err = g.GetInode(id)
	require.NoError(t, err, "orphaned inode must survive while a handle is open")

	require.NoError(t, g.DecrementOpenHandles(id))
	_, err = g.GetInode(id)
	require.Error(t, err, "orphaned inode must finalize once the last handle closes")
}

func TestReplaceContentGrowsAndReadsBack(t *testing.T) {
	g := newTestGraph()
	id := mkfile(t, g, RootInodeID, "a.txt")

	n, err := g.ReplaceContent(id, 0, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = g.ReplaceContent(id, 10, []byte("world"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	got, err := g.Content(id, 0, 15)
	require.NoError(t, err)
	assert.Equal(t, "hello\x00\x00\x00\x00\x00world", string(got))
}

func TestContentPastEOFReturnsEmpty(t *testing.T) {
	g := newTestGraph()
	id := mkfile(t, g, RootInodeID, "a.txt")
	_, err := g.ReplaceContent(id, 0, []byte("hi"))
	require.NoError(t, err)

	got, err := g.Content(id, 100, 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAddEdgeAndListAdjacency(t *testing.T) {
	g := newTestGraph()
	a := mkfile(t, g, RootInodeID, "a.txt")
	b := mkfile(t, g, RootInodeID, "b.txt")

	eid, err := g.AddEdge(a, b, LabelReferences, 1.0, nil)
	require.NoError(t, err)

	out, err := g.ListOutgoing(a)
	require.NoError(t, err)
	assert.Contains(t, out, eid)

	in, err := g.ListIncoming(b)
	require.NoError(t, err)
	assert.Contains(t, in, eid)
}

func TestAddEdgeRejectsNegativeWeight(t *testing.T) {
	g := newTestGraph()
	a := mkfile(t, g, RootInodeID, "a.txt")
	b := mkfile(t, g, RootInodeID, "b.txt")

	_, err := g.AddEdge(a, b, LabelReferences, -1, nil)
	require.Error(t, err)
	assert.Equal(t, vexerrors.InvalidArg, vexerrors.KindOf(err))
}

func TestRemoveEdgeIsSymmetric(t *testing.T) {
	g := newTestGraph()
	a := mkfile(t, g, RootInodeID, "a.txt")
	b := mkfile(t, g, RootInodeID, "b.txt")
	eid, err := g.AddEdge(a, b, LabelReferences, 1.0, nil)
	require.NoError(t, err)

	require.NoError(t, g.RemoveEdge(eid))

	out, _ := g.ListOutgoing(a)
	assert.NotContains(t, out, eid)
	in, _ := g.ListIncoming(b)
	assert.NotContains(t, in, eid)
}

func TestAppendAndRemoveEmbedding(t *testing.T) {
	g := newTestGraph()
	f := mkfile(t, g, RootInodeID, "a.vec")
	id := uuid.New()

	require.NoError(t, g.AppendEmbedding(f, id))
	ids, err := g.EmbeddingIDs(f)
	require.NoError(t, err)
	assert.Contains(t, ids, id)

	require.NoError(t, g.RemoveEmbedding(f, id))
	ids, err = g.EmbeddingIDs(f)
	require.NoError(t, err)
	assert.NotContains(t, ids, id)
}

func TestAncestorChainReachesRoot(t *testing.T) {
	g := newTestGraph()
	sub := mkdir(t, g, RootInodeID, "sub")
	leaf := mkdir(t, g, sub, "leaf")

	chain, err := g.AncestorChain(leaf)
	require.NoError(t, err)
	assert.Equal(t, []InodeID{leaf, sub, RootInodeID}, chain)
}

func TestQuarantineMarksInode(t *testing.T) {
	g := newTestGraph()
	f := mkfile(t, g, RootInodeID, "a.txt")
	require.NoError(t, g.Quarantine(f))
	q, err := g.IsQuarantined(f)
	require.NoError(t, err)
	assert.True(t, q)
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	g := newTestGraph()
	f := mkfile(t, g, RootInodeID, "a.txt")
	_, err := g.ReplaceContent(f, 0, []byte("original"))
	require.NoError(t, err)

	_, err = g.Snapshot(f, "snap1")
	require.NoError(t, err)

	_, err = g.ReplaceContent(f, 0, []byte("mutated!"))
	require.NoError(t, err)

	require.NoError(t, g.RestoreSnapshot("snap1"))
	got, err := g.Content(f, 0, 8)
	require.NoError(t, err)
	assert.Equal(t, "original", string(got))
}

func TestSnapshotRejectsDuplicateName(t *testing.T) {
	g := newTestGraph()
	f := mkfile(t, g, RootInodeID, "a.txt")
	_, err := g.Snapshot(f, "dup")
	require.NoError(t, err)
	_, err = g.Snapshot(f, "dup")
	require.Error(t, err)
	assert.Equal(t, vexerrors.Exists, vexerrors.KindOf(err))
}

func TestDeleteSnapshotRemovesMarker(t *testing.T) {
	g := newTestGraph()
	f := mkfile(t, g, RootInodeID, "a.txt")
	_, err := g.Snapshot(f, "gone")
	require.NoError(t, err)
	require.NoError(t, g.DeleteSnapshot("gone"))

	err = g.RestoreSnapshot("gone")
	require.Error(t, err)
	assert.Equal(t, vexerrors.NotFound, vexerrors.KindOf(err))
}

func TestRenameWithinSameDirectory(t *testing.T) {
	g := newTestGraph()
	f := mkfile(t, g, RootInodeID, "old.txt")

	require.NoError(t, g.Rename(RootInodeID, "old.txt", RootInodeID, "new.txt"))

	_, err := g.LookupName(RootInodeID, "old.txt")
	require.Error(t, err)
	id, err := g.LookupName(RootInodeID, "new.txt")
	require.NoError(t, err)
	assert.Equal(t, f, id)
}

func TestRenameAcrossDirectoriesFixesDotDot(t *testing.T) {
	g := newTestGraph()
	src := mkdir(t, g, RootInodeID, "src")
	dst := mkdir(t, g, RootInodeID, "dst")
	moved := mkdir(t, g, src, "moved")

	require.NoError(t, g.Rename(src, "moved", dst, "moved"))

	id, err := g.LookupName(dst, "moved")
	require.NoError(t, err)
	assert.Equal(t, moved, id)

	parent, err := g.LookupName(moved, "..")
	require.NoError(t, err)
	assert.Equal(t, dst, parent)
}

func TestRenameRejectsDirectoryCycle(t *testing.T) {
	g := newTestGraph()
	parent := mkdir(t, g, RootInodeID, "parent")
	child := mkdir(t, g, parent, "child")

	err := g.Rename(RootInodeID, "parent", child, "parent")
	require.Error(t, err)
	assert.Equal(t, vexerrors.DirCycle, vexerrors.KindOf(err))
}

func TestRenameRejectsExistingDestinationName(t *testing.T) {
	g := newTestGraph()
	mkfile(t, g, RootInodeID, "a.txt")
	mkfile(t, g, RootInodeID, "b.txt")

	err := g.Rename(RootInodeID, "a.txt", RootInodeID, "b.txt")
	require.Error(t, err)
	assert.Equal(t, vexerrors.Exists, vexerrors.KindOf(err))
}

func TestIterByTypeReturnsSortedIDs(t *testing.T) {
	g := newTestGraph()
	mkfile(t, g, RootInodeID, "a.txt")
	mkfile(t, g, RootInodeID, "b.txt")

	ids := g.IterByType(KindFile)
	require.Len(t, ids, 2)
	assert.Less(t, ids[0], ids[1])
}
