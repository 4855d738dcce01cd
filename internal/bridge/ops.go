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
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vexfs/vexfs/internal/objectgraph"
	"github.com/vexfs/vexfs/internal/vdk"
	"github.com/vexfs/vexfs/internal/vexerrors"
)

// Create is the coordinated "create" op from §4.5's inventory: it binds a
// name and adds the implicit `contains` edge parent->new inode as one
// atomic-from-the-observer's-standpoint unit, applied tree -> edges.
func (b *Bridge) Create(ctx context.Context, parent objectgraph.InodeID, name string, mode, uid, gid uint32) (objectgraph.InodeID, error) {
	return b.createLike(ctx, "create", parent, name, objectgraph.KindFile, mode, uid, gid)
}

// Mkdir is §4.5's coordinated "mkdir" op: as Create, but the new inode is a
// directory with its own "."/".." bindings (handled by
// objectgraph.InsertInode) and ".." fixed up once the parent is known.
func (b *Bridge) Mkdir(ctx context.Context, parent objectgraph.InodeID, name string, mode, uid, gid uint32) (objectgraph.InodeID, error) {
	return b.createLike(ctx, "mkdir", parent, name, objectgraph.KindDir, mode, uid, gid)
}

// CreateSymlink is as Create, but the new inode carries a target string
// instead of regular-file content, set once the inode has been staged so
// a rollback never leaves a symlink with a stale target.
func (b *Bridge) CreateSymlink(ctx context.Context, parent objectgraph.InodeID, name, target string, uid, gid uint32) (objectgraph.InodeID, error) {
	child, err := b.createLike(ctx, "create-symlink", parent, name, objectgraph.KindSymlink, 0o777, uid, gid)
	if err != nil {
		return 0, err
	}
	if err := b.og.SetSymlinkTarget(child, target); err != nil {
		return 0, err
	}
	return child, nil
}

func (b *Bridge) createLike(ctx context.Context, op string, parent objectgraph.InodeID, name string, kind objectgraph.Kind, mode, uid, gid uint32) (objectgraph.InodeID, error) {
	start := time.Now()
	release, err := b.enter(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	t := newTxn()

	// Phase 1 (VALIDATED): parent exists & is a directory; name unused.
	parentAttrs, err := b.og.GetInode(parent)
	if err != nil {
		finish(ctx, op, start, t, err)
		return 0, err
	}
	if parentAttrs.Kind != objectgraph.KindDir {
		err = vexerrors.New(vexerrors.NotDir, "%s: parent is not a directory", op)
		finish(ctx, op, start, t, err)
		return 0, err
	}
	if _, lookupErr := b.og.LookupName(parent, name); lookupErr == nil {
		err = vexerrors.New(vexerrors.Exists, "%s: name already bound", op)
		finish(ctx, op, start, t, err)
		return 0, err
	}
	t.validate()

	// Phase 2 (STAGED): tree -> edges, per §4.5's deterministic apply order.
	child := b.og.InsertInode(objectgraph.NewInodeSpec{Kind: kind, Mode: mode, Uid: uid, Gid: gid})
	t.stage(func() { b.og.RemoveInodeRecord(child) })

	if err := b.og.BindName(parent, name, child, kind); err != nil {
		t.rollback()
		finish(ctx, op, start, t, err)
		return 0, err
	}
	t.stage(func() { _, _ = b.og.UnlinkName(parent, name) })

	if kind == objectgraph.KindDir {
		if err := b.og.SetDotDot(child, parent); err != nil {
			t.rollback()
			finish(ctx, op, start, t, err)
			return 0, err
		}
		if err := b.og.AdjustLinkCount(parent, 1); err != nil {
			t.rollback()
			finish(ctx, op, start, t, err)
			return 0, err
		}
		t.stage(func() { _ = b.og.AdjustLinkCount(parent, -1) })
	}

	edgeID, err := b.og.AddEdge(parent, child, objectgraph.LabelContains, 1.0, nil)
	if err != nil {
		t.rollback()
		finish(ctx, op, start, t, err)
		return 0, err
	}
	t.stage(func() { _ = b.og.RemoveEdge(edgeID) })

	t.commit()
	finish(ctx, op, start, t, nil)
	return child, nil
}

// Unlink is §4.5's coordinated "unlink" op: remove the binding, decrement
// the child's link count, and remove the implicit `contains` edge.
func (b *Bridge) Unlink(ctx context.Context, parent objectgraph.InodeID, name string) error {
	return b.unlinkLike(ctx, "unlink", parent, name, false)
}

// Rmdir is §4.5's coordinated "rmdir" op: as Unlink, but additionally
// requires the target be an empty directory and decrements the parent's
// own link count (the removed child directory's ".." no longer counts).
func (b *Bridge) Rmdir(ctx context.Context, parent objectgraph.InodeID, name string) error {
	return b.unlinkLike(ctx, "rmdir", parent, name, true)
}

func (b *Bridge) unlinkLike(ctx context.Context, op string, parent objectgraph.InodeID, name string, wantDir bool) error {
	start := time.Now()
	release, err := b.enter(ctx)
	if err != nil {
		return err
	}
	defer release()

	t := newTxn()

	child, err := b.og.LookupName(parent, name)
	if err != nil {
		finish(ctx, op, start, t, err)
		return err
	}
	childAttrs, err := b.og.GetInode(child)
	if err != nil {
		finish(ctx, op, start, t, err)
		return err
	}
	if wantDir {
		if childAttrs.Kind != objectgraph.KindDir {
			err = vexerrors.New(vexerrors.NotDir, "rmdir: target is not a directory")
			finish(ctx, op, start, t, err)
			return err
		}
		entries, listErr := b.og.ListChildren(child)
		if listErr != nil {
			finish(ctx, op, start, t, listErr)
			return listErr
		}
		if len(entries) > 2 {
			err = vexerrors.New(vexerrors.NotEmpty, "rmdir: directory is not empty")
			finish(ctx, op, start, t, err)
			return err
		}
	} else if childAttrs.Kind == objectgraph.KindDir {
		err = vexerrors.New(vexerrors.IsDir, "unlink: target is a directory")
		finish(ctx, op, start, t, err)
		return err
	}
	t.validate()

	edgeID, hasEdge := b.og.FindEdge(parent, child, objectgraph.LabelContains)
	if hasEdge {
		if err := b.og.RemoveEdge(edgeID); err != nil {
			t.rollback()
			finish(ctx, op, start, t, err)
			return err
		}
		t.stage(func() { _, _ = b.og.AddEdge(parent, child, objectgraph.LabelContains, 1.0, nil) })
	}

	if _, err := b.og.UnlinkName(parent, name); err != nil {
		t.rollback()
		finish(ctx, op, start, t, err)
		return err
	}
	t.stage(func() { _ = b.og.BindName(parent, name, child, childAttrs.Kind) })

	if wantDir {
		if err := b.og.AdjustLinkCount(parent, -1); err != nil {
			t.rollback()
			finish(ctx, op, start, t, err)
			return err
		}
		t.stage(func() { _ = b.og.AdjustLinkCount(parent, 1) })
	}

	t.commit()
	finish(ctx, op, start, t, nil)
	return nil
}

// Rename is §4.5's coordinated "rename" op. objectgraph.Rename already
// applies its lock-ordering and directory-cycle rejection atomically, so
// CLB's role is the deadline/quiesce envelope and telemetry around it.
func (b *Bridge) Rename(ctx context.Context, srcParent objectgraph.InodeID, srcName string, dstParent objectgraph.InodeID, dstName string) error {
	start := time.Now()
	release, err := b.enter(ctx)
	if err != nil {
		return err
	}
	defer release()

	t := newTxn()
	t.validate()
	err = b.og.Rename(srcParent, srcName, dstParent, dstName)
	if err != nil {
		finish(ctx, "rename", start, t, err)
		return err
	}
	t.commit()
	finish(ctx, "rename", start, t, nil)
	return nil
}

// Write is the *local* consistency op §4.5 names: atomicity against
// concurrent readers of the same inode only, no cross-index coordination,
// so it bypasses the txn machinery entirely.
func (b *Bridge) Write(ctx context.Context, inode objectgraph.InodeID, offset int64, data []byte) (int, error) {
	release, err := b.enter(ctx)
	if err != nil {
		return 0, err
	}
	defer release()
	return b.og.ReplaceContent(inode, offset, data)
}

// VectorInsert is §4.5's coordinated "vector_insert" op: create an
// embedding, append its id to the inode's list, and index it into ANN, in
// that order. A dimension mismatch against the inode's existing embeddings
// is rejected before anything is staged (invariant 6).
func (b *Bridge) VectorInsert(ctx context.Context, inode objectgraph.InodeID, vec []float32) (uuid.UUID, error) {
	start := time.Now()
	release, err := b.enter(ctx)
	if err != nil {
		return uuid.UUID{}, err
	}
	defer release()

	t := newTxn()

	if _, err := b.og.GetInode(inode); err != nil {
		finish(ctx, "vector_insert", start, t, err)
		return uuid.UUID{}, err
	}

	b.dimMu.Lock()
	if want, ok := b.dims[inode]; ok && want != len(vec) {
		b.dimMu.Unlock()
		err := vexerrors.New(vexerrors.DimMismatch, "vector_insert: want dim %d got %d", want, len(vec))
		finish(ctx, "vector_insert", start, t, err)
		return uuid.UUID{}, err
	}
	b.dimMu.Unlock()
	t.validate()

	embeddingID := uuid.New()

	if err := b.og.AppendEmbedding(inode, embeddingID); err != nil {
		finish(ctx, "vector_insert", start, t, err)
		return uuid.UUID{}, err
	}
	t.stage(func() { _ = b.og.RemoveEmbedding(inode, embeddingID) })

	// Non-fatal resource-exhaustion after a partial ANN update must trigger
	// ANN-side compensation (§4.5); Insert either fully applies or errors,
	// so the compensation here simply undoes the one bucket entry it made.
	if err := b.index.Insert(embeddingID, vec); err != nil {
		t.rollback()
		finish(ctx, "vector_insert", start, t, err)
		return uuid.UUID{}, err
	}
	t.stage(func() { b.index.Remove(embeddingID) })

	b.ownerMu.Lock()
	b.owner[embeddingID] = inode
	b.ownerMu.Unlock()
	t.stage(func() {
		b.ownerMu.Lock()
		delete(b.owner, embeddingID)
		b.ownerMu.Unlock()
	})

	b.dimMu.Lock()
	if _, ok := b.dims[inode]; !ok {
		b.dims[inode] = len(vec)
	}
	b.dimMu.Unlock()

	t.commit()
	finish(ctx, "vector_insert", start, t, nil)
	return embeddingID, nil
}

// VectorRemove undoes one VectorInsert, supplementing §4.5's inventory so
// embeddings are not permanently write-only.
func (b *Bridge) VectorRemove(ctx context.Context, inode objectgraph.InodeID, embeddingID uuid.UUID) error {
	release, err := b.enter(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := b.og.RemoveEmbedding(inode, embeddingID); err != nil {
		return err
	}
	b.index.Remove(embeddingID)
	b.ownerMu.Lock()
	delete(b.owner, embeddingID)
	b.ownerMu.Unlock()
	return nil
}

// SearchResult is one ranked hit from VectorSearch: the owning inode, the
// embedding id within it, and the reranked distance.
type SearchResult struct {
	Inode       objectgraph.InodeID
	EmbeddingID uuid.UUID
	Distance    float32
}

// VectorSearch is §4.5's "vector_search" op: ANN pre-filter, VDK rerank
// (handled inside ann.Index.Search), top-k by ascending distance with
// ties broken by ascending inode id — not embedding id, which is why this
// method re-sorts ann.Index.Search's own results rather than trusting its
// internal tie-break.
func (b *Bridge) VectorSearch(ctx context.Context, scope *objectgraph.InodeID, query []float32, k int, metric vdk.Metric) ([]SearchResult, error) {
	release, err := b.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if k <= 0 {
		return nil, vexerrors.New(vexerrors.InvalidArg, "vector_search: k must be > 0")
	}

	var allowed map[objectgraph.InodeID]bool
	if scope != nil {
		result, err := b.og.BFSTraverse(ctx, *scope, objectgraph.TraversalOptions{})
		if err != nil {
			return nil, err
		}
		allowed = make(map[objectgraph.InodeID]bool, len(result.Visited))
		for _, id := range result.Visited {
			allowed[id] = true
		}
	}

	// Over-fetch so that after ascending-inode-id tie-break re-sort the
	// true top-k is still correct even when ann's own sort (distance, then
	// embedding id) cut the slice at a tie boundary.
	fetch := k * 4
	filter := func(id uuid.UUID) bool {
		if allowed == nil {
			return true
		}
		b.ownerMu.RLock()
		owner, ok := b.owner[id]
		b.ownerMu.RUnlock()
		return ok && allowed[owner]
	}

	raw, err := b.index.Search(query, fetch, metric, filter)
	if err != nil {
		return nil, err
	}

	out := make([]SearchResult, 0, len(raw))
	for _, r := range raw {
		b.ownerMu.RLock()
		owner, ok := b.owner[r.ID]
		b.ownerMu.RUnlock()
		if !ok {
			continue
		}
		out = append(out, SearchResult{Inode: owner, EmbeddingID: r.ID, Distance: r.Distance})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].Inode < out[j].Inode
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// EdgeAdd is §4.5's "edge_add" op. objectgraph.AddEdge already validates
// both endpoints exist and updates both adjacency lists atomically (it
// locks both inode records in ascending-id order), so CLB wraps it only
// for the deadline/quiesce envelope and telemetry.
func (b *Bridge) EdgeAdd(ctx context.Context, src, dst objectgraph.InodeID, label objectgraph.EdgeLabel, weight float64, props map[string]objectgraph.EdgeProperty) (objectgraph.EdgeID, error) {
	start := time.Now()
	release, err := b.enter(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	t := newTxn()
	t.validate()
	id, err := b.og.AddEdge(src, dst, label, weight, props)
	if err != nil {
		finish(ctx, "edge_add", start, t, err)
		return 0, err
	}
	t.commit()
	finish(ctx, "edge_add", start, t, nil)
	return id, nil
}

// EdgeRemove is §4.5's "edge_remove" op: symmetric removal from both
// adjacency lists.
func (b *Bridge) EdgeRemove(ctx context.Context, id objectgraph.EdgeID) error {
	release, err := b.enter(ctx)
	if err != nil {
		return err
	}
	defer release()
	return b.og.RemoveEdge(id)
}

// Snapshot is §4.5's "snapshot" op, supplemented from
// original_source/src/fs_core/snapshot.rs per SPEC_FULL.md §4.5.
func (b *Bridge) Snapshot(ctx context.Context, root objectgraph.InodeID, name string) (objectgraph.Snapshot, error) {
	release, err := b.enter(ctx)
	if err != nil {
		return objectgraph.Snapshot{}, err
	}
	defer release()
	return b.og.Snapshot(root, name)
}

// RestoreSnapshot rolls root's content back to a previously taken snapshot.
func (b *Bridge) RestoreSnapshot(ctx context.Context, name string) error {
	release, err := b.enter(ctx)
	if err != nil {
		return err
	}
	defer release()
	return b.og.RestoreSnapshot(name)
}

// DeleteSnapshot garbage-collects a snapshot marker.
func (b *Bridge) DeleteSnapshot(ctx context.Context, name string) error {
	release, err := b.enter(ctx)
	if err != nil {
		return err
	}
	defer release()
	return b.og.DeleteSnapshot(name)
}

// Traverse is the control-plane's "traverse" op (SPEC_FULL.md §6.2): a
// read-only dispatch onto the Object Graph's traversal algorithms, wrapped
// for the same deadline/quiesce envelope every other Bridge op gets.
func (b *Bridge) Traverse(ctx context.Context, algo objectgraph.Algorithm, start objectgraph.InodeID, opts objectgraph.TraversalOptions) (objectgraph.TraversalResult, error) {
	release, err := b.enter(ctx)
	if err != nil {
		return objectgraph.TraversalResult{}, err
	}
	defer release()

	switch algo {
	case objectgraph.BFS:
		return b.og.BFSTraverse(ctx, start, opts)
	case objectgraph.DFS:
		return b.og.DFSTraverse(ctx, start, opts)
	case objectgraph.Dijkstra:
		return b.og.DijkstraTraverse(ctx, start, opts)
	case objectgraph.TopoSort:
		return b.og.TopoSort(ctx, start, opts)
	default:
		return objectgraph.TraversalResult{}, vexerrors.New(vexerrors.InvalidArg, "traverse: unknown algorithm %s", algo)
	}
}
