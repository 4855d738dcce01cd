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

package bridge

import (
	"context"
	"testing"

	"github.com/jacobsa/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vexfs/vexfs/internal/ann"
	"github.com/vexfs/vexfs/internal/objectgraph"
	"github.com/vexfs/vexfs/internal/vdk"
	"github.com/vexfs/vexfs/internal/vexerrors"
)

func newTestBridge() *Bridge {
	og := objectgraph.New(timeutil.RealClock())
	idx := ann.New()
	return New(og, idx, timeutil.RealClock())
}

func TestCreateBindsNameAndContainsEdge(t *testing.T) {
	b := newTestBridge()
	ctx := context.Background()

	child, err := b.Create(ctx, objectgraph.RootInodeID, "a.txt", 0o644, 0, 0)
	require.NoError(t, err)

	id, err := b.og.LookupName(objectgraph.RootInodeID, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, child, id)

	_, hasEdge := b.og.FindEdge(objectgraph.RootInodeID, child, objectgraph.LabelContains)
	assert.True(t, hasEdge)
}

func TestCreateRejectsDuplicateName(t *testing.T) {
	b := newTestBridge()
	ctx := context.Background()
	_, err := b.Create(ctx, objectgraph.RootInodeID, "a.txt", 0o644, 0, 0)
	require.NoError(t, err)

	_, err = b.Create(ctx, objectgraph.RootInodeID, "a.txt", 0o644, 0, 0)
	require.Error(t, err)
	assert.Equal(t, vexerrors.Exists, vexerrors.KindOf(err))
}

func TestCreateRejectsNonDirectoryParent(t *testing.T) {
	b := newTestBridge()
	ctx := context.Background()
	file, err := b.Create(ctx, objectgraph.RootInodeID, "a.txt", 0o644, 0, 0)
	require.NoError(t, err)

	_, err = b.Create(ctx, file, "nested.txt", 0o644, 0, 0)
	require.Error(t, err)
	assert.Equal(t, vexerrors.NotDir, vexerrors.KindOf(err))
}

func TestMkdirCreatesUsableDirectory(t *testing.T) {
	b := newTestBridge()
	ctx := context.Background()

	dir, err := b.Mkdir(ctx, objectgraph.RootInodeID, "sub", 0o755, 0, 0)
	require.NoError(t, err)

	parent, err := b.og.LookupName(dir, "..")
	require.NoError(t, err)
	assert.Equal(t, objectgraph.RootInodeID, parent)
}

func TestMkdirIncrementsParentLinkCountForDotDot(t *testing.T) {
	b := newTestBridge()
	ctx := context.Background()

	rootAttrs, err := b.og.GetInode(objectgraph.RootInodeID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, rootAttrs.Nlink)

	a, err := b.Mkdir(ctx, objectgraph.RootInodeID, "a", 0o755, 0, 0)
	require.NoError(t, err)
	rootAttrs, err = b.og.GetInode(objectgraph.RootInodeID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, rootAttrs.Nlink, "mkdir(1,\"a\") should bump root's link count for a's \"..\"")

	_, err = b.Mkdir(ctx, a, "b", 0o755, 0, 0)
	require.NoError(t, err)
	aAttrs, err := b.og.GetInode(a)
	require.NoError(t, err)
	assert.EqualValues(t, 3, aAttrs.Nlink, "mkdir(2,\"b\") should bump a's own link count for b's \"..\"")
}

func TestUnlinkRemovesBindingAndEdge(t *testing.T) {
	b := newTestBridge()
	ctx := context.Background()
	child, err := b.Create(ctx, objectgraph.RootInodeID, "a.txt", 0o644, 0, 0)
	require.NoError(t, err)

	require.NoError(t, b.Unlink(ctx, objectgraph.RootInodeID, "a.txt"))

	_, err = b.og.LookupName(objectgraph.RootInodeID, "a.txt")
	require.Error(t, err)
	_, hasEdge := b.og.FindEdge(objectgraph.RootInodeID, child, objectgraph.LabelContains)
	assert.False(t, hasEdge)
}

func TestUnlinkRejectsDirectory(t *testing.T) {
	b := newTestBridge()
	ctx := context.Background()
	_, err := b.Mkdir(ctx, objectgraph.RootInodeID, "sub", 0o755, 0, 0)
	require.NoError(t, err)

	err = b.Unlink(ctx, objectgraph.RootInodeID, "sub")
	require.Error(t, err)
	assert.Equal(t, vexerrors.IsDir, vexerrors.KindOf(err))
}

func TestRmdirRejectsNonEmptyDirectory(t *testing.T) {
	b := newTestBridge()
	ctx := context.Background()
	dir, err := b.Mkdir(ctx, objectgraph.RootInodeID, "sub", 0o755, 0, 0)
	require.NoError(t, err)
	_, err = b.Create(ctx, dir, "f.txt", 0o644, 0, 0)
	require.NoError(t, err)

	err = b.Rmdir(ctx, objectgraph.RootInodeID, "sub")
	require.Error(t, err)
	assert.Equal(t, vexerrors.NotEmpty, vexerrors.KindOf(err))
}

func TestRmdirSucceedsOnEmptyDirectory(t *testing.T) {
	b := newTestBridge()
	ctx := context.Background()
	_, err := b.Mkdir(ctx, objectgraph.RootInodeID, "sub", 0o755, 0, 0)
	require.NoError(t, err)

	require.NoError(t, b.Rmdir(ctx, objectgraph.RootInodeID, "sub"))
	_, err = b.og.LookupName(objectgraph.RootInodeID, "sub")
	require.Error(t, err)
}

func TestWriteIsLocalAndImmediatelyVisible(t *testing.T) {
	b := newTestBridge()
	ctx := context.Background()
	f, err := b.Create(ctx, objectgraph.RootInodeID, "a.txt", 0o644, 0, 0)
	require.NoError(t, err)

	n, err := b.Write(ctx, f, 0, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	got, err := b.og.Content(f, 0, 5)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestVectorInsertAndSearchRoundTrip(t *testing.T) {
	b := newTestBridge()
	ctx := context.Background()
	f, err := b.Create(ctx, objectgraph.RootInodeID, "a.vec", 0o644, 0, 0)
	require.NoError(t, err)

	_, err = b.VectorInsert(ctx, f, []float32{1, 0, 0})
	require.NoError(t, err)

	results, err := b.VectorSearch(ctx, nil, []float32{1, 0, 0}, 1, vdk.Euclidean)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, f, results[0].Inode)
}

func TestVectorInsertRejectsDimensionMismatch(t *testing.T) {
	b := newTestBridge()
	ctx := context.Background()
	f, err := b.Create(ctx, objectgraph.RootInodeID, "a.vec", 0o644, 0, 0)
	require.NoError(t, err)

	_, err = b.VectorInsert(ctx, f, []float32{1, 0, 0})
	require.NoError(t, err)

	_, err = b.VectorInsert(ctx, f, []float32{1, 0})
	require.Error(t, err)
	assert.Equal(t, vexerrors.DimMismatch, vexerrors.KindOf(err))
}

func TestVectorSearchScopedToSubgraph(t *testing.T) {
	b := newTestBridge()
	ctx := context.Background()
	dir, err := b.Mkdir(ctx, objectgraph.RootInodeID, "scope", 0o755, 0, 0)
	require.NoError(t, err)
	inScope, err := b.Create(ctx, dir, "in.vec", 0o644, 0, 0)
	require.NoError(t, err)
	outOfScope, err := b.Create(ctx, objectgraph.RootInodeID, "out.vec", 0o644, 0, 0)
	require.NoError(t, err)

	_, err = b.VectorInsert(ctx, inScope, []float32{1, 0})
	require.NoError(t, err)
	_, err = b.VectorInsert(ctx, outOfScope, []float32{1, 0})
	require.NoError(t, err)

	results, err := b.VectorSearch(ctx, &dir, []float32{1, 0}, 5, vdk.Euclidean)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, inScope, results[0].Inode)
}

func TestEdgeAddAndRemove(t *testing.T) {
	b := newTestBridge()
	ctx := context.Background()
	a, err := b.Create(ctx, objectgraph.RootInodeID, "a.txt", 0o644, 0, 0)
	require.NoError(t, err)
	c, err := b.Create(ctx, objectgraph.RootInodeID, "c.txt", 0o644, 0, 0)
	require.NoError(t, err)

	eid, err := b.EdgeAdd(ctx, a, c, objectgraph.LabelReferences, 1.0, nil)
	require.NoError(t, err)

	require.NoError(t, b.EdgeRemove(ctx, eid))
	_, err = b.og.GetEdge(eid)
	require.Error(t, err)
}

func TestSnapshotRestoreThroughBridge(t *testing.T) {
	b := newTestBridge()
	ctx := context.Background()
	f, err := b.Create(ctx, objectgraph.RootInodeID, "a.txt", 0o644, 0, 0)
	require.NoError(t, err)

	_, err = b.Write(ctx, f, 0, []byte("v1"))
	require.NoError(t, err)
	_, err = b.Snapshot(ctx, f, "s1")
	require.NoError(t, err)
	_, err = b.Write(ctx, f, 0, []byte("v2"))
	require.NoError(t, err)

	require.NoError(t, b.RestoreSnapshot(ctx, "s1"))
	got, err := b.og.Content(f, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(got))
}

func TestQuiesceBlocksNewOps(t *testing.T) {
	b := newTestBridge()
	ctx := context.Background()

	b.Quiesce()
	done := make(chan struct{})
	go func() {
		_, _ = b.Create(ctx, objectgraph.RootInodeID, "blocked.txt", 0o644, 0, 0)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("create should not complete while quiesced")
	default:
	}
	b.Resume()
	<-done

	_, err := b.og.LookupName(objectgraph.RootInodeID, "blocked.txt")
	require.NoError(t, err)
}

func TestContextCancelledRejectsOp(t *testing.T) {
	b := newTestBridge()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.Create(ctx, objectgraph.RootInodeID, "a.txt", 0o644, 0, 0)
	require.Error(t, err)
}
