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
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jacobsa/timeutil"

	"github.com/vexfs/vexfs/internal/vexerrors"
)

// Graph holds every inode and edge record plus the indices over them. It
// generalizes the teacher's single fs.fileSystem.inodes map and fs.mu into
// the arena-plus-index layout DESIGN.md describes: records live in
// sync.Map-backed arenas keyed by id, adjacency lists store ids only, and
// the global name index is sharded (shard.go).
type Graph struct {
	clock timeutil.Clock

	inodes sync.Map // InodeID -> *inodeRecord
	edges  sync.Map // EdgeID -> *edgeRecord

	names *nameIndex

	typeIndexMu sync.RWMutex
	typeIndex   map[Kind][]InodeID

	edgeTypeIndexMu sync.RWMutex
	edgeTypeIndex   map[EdgeLabel][]EdgeID

	nextInodeID atomic.Uint64
	nextEdgeID  atomic.Uint64

	snapshotsMu sync.RWMutex
	snapshots   map[string]*Snapshot
}

// New constructs a Graph with just the root directory present, matching
// invariant 1 (root id 1, kind dir, link count >= 2).
func New(c timeutil.Clock) *Graph {
	g := &Graph{
		clock:         c,
		names:         newNameIndex(),
		typeIndex:     make(map[Kind][]InodeID),
		edgeTypeIndex: make(map[EdgeLabel][]EdgeID),
		snapshots:     make(map[string]*Snapshot),
	}
	g.nextInodeID.Store(uint64(RootInodeID))

	now := c.Now()
	root := &inodeRecord{
		id: RootInodeID, kind: KindDir, mode: 0o755, nlink: 2,
		atime: now, mtime: now, ctime: now,
	}
	root.children = []dirent{
		{name: ".", id: RootInodeID, kind: KindDir, valid: true},
		{name: "..", id: RootInodeID, kind: KindDir, valid: true},
	}
	g.inodes.Store(RootInodeID, root)
	g.names.bind(RootInodeID, ".", RootInodeID)
	g.names.bind(RootInodeID, "..", RootInodeID)
	g.recordType(KindDir, RootInodeID)

	return g
}

func (g *Graph) recordType(k Kind, id InodeID) {
	g.typeIndexMu.Lock()
	defer g.typeIndexMu.Unlock()
	g.typeIndex[k] = append(g.typeIndex[k], id)
}

func (g *Graph) recordEdgeType(label EdgeLabel, id EdgeID) {
	g.edgeTypeIndexMu.Lock()
	defer g.edgeTypeIndexMu.Unlock()
	g.edgeTypeIndex[label] = append(g.edgeTypeIndex[label], id)
}

func (g *Graph) record(id InodeID) (*inodeRecord, bool) {
	v, ok := g.inodes.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*inodeRecord), true
}

func (g *Graph) edgeRecordByID(id EdgeID) (*edgeRecord, bool) {
	v, ok := g.edges.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*edgeRecord), true
}

// ---- Read operations: non-mutating, may run concurrently. ----

// GetInode returns the attribute snapshot for id.
func (g *Graph) GetInode(id InodeID) (Attrs, error) {
	r, ok := g.record(id)
	if !ok {
		return Attrs{}, vexerrors.New(vexerrors.NotFound, "inode not found")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotAttrs(), nil
}

// LookupName resolves (parent, name) to a child id.
func (g *Graph) LookupName(parent InodeID, name string) (InodeID, error) {
	id, ok := g.names.lookup(parent, name)
	if !ok {
		return 0, vexerrors.New(vexerrors.NotFound, "name binding not found")
	}
	return id, nil
}

// ListChildren returns dir's bindings in insertion order: "." and ".."
// first, then the rest, skipping tombstoned slots. It is a snapshot of the
// directory's bindings at the moment of the call.
func (g *Graph) ListChildren(dir InodeID) ([]DirEntry, error) {
	r, ok := g.record(dir)
	if !ok {
		return nil, vexerrors.New(vexerrors.NotFound, "inode not found")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.kind != KindDir {
		return nil, vexerrors.New(vexerrors.NotDir, "not a directory")
	}

	out := make([]DirEntry, 0, len(r.children))
	for _, d := range r.children {
		if d.valid {
			out = append(out, DirEntry{Name: d.name, ID: d.id, Kind: d.kind})
		}
	}
	return out, nil
}

// ListOutgoing returns the ids of edges whose source is inode.
func (g *Graph) ListOutgoing(inode InodeID) ([]EdgeID, error) {
	r, ok := g.record(inode)
	if !ok {
		return nil, vexerrors.New(vexerrors.NotFound, "inode not found")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]EdgeID, len(r.outgoing))
	copy(out, r.outgoing)
	return out, nil
}

// ListIncoming returns the ids of edges whose target is inode.
func (g *Graph) ListIncoming(inode InodeID) ([]EdgeID, error) {
	r, ok := g.record(inode)
	if !ok {
		return nil, vexerrors.New(vexerrors.NotFound, "inode not found")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]EdgeID, len(r.incoming))
	copy(out, r.incoming)
	return out, nil
}

// GetEdge returns the snapshot for an edge id.
func (g *Graph) GetEdge(id EdgeID) (Edge, error) {
	e, ok := g.edgeRecordByID(id)
	if !ok {
		return Edge{}, vexerrors.New(vexerrors.NotFound, "edge not found")
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshot(), nil
}

// IterByType returns a stable-sorted copy of every inode id of kind.
func (g *Graph) IterByType(kind Kind) []InodeID {
	g.typeIndexMu.RLock()
	defer g.typeIndexMu.RUnlock()
	out := make([]InodeID, len(g.typeIndex[kind]))
	copy(out, g.typeIndex[kind])
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// EmbeddingIDs returns the embedding ids an inode owns.
func (g *Graph) EmbeddingIDs(inode InodeID) ([]uuid.UUID, error) {
	r, ok := g.record(inode)
	if !ok {
		return nil, vexerrors.New(vexerrors.NotFound, "inode not found")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]uuid.UUID, len(r.embeddingIDs))
	copy(out, r.embeddingIDs)
	return out, nil
}

// Content returns a copy of inode's small-file content in [offset,
// offset+size). Offsets past EOF return an empty slice.
func (g *Graph) Content(inode InodeID, offset int64, size int) ([]byte, error) {
	r, ok := g.record(inode)
	if !ok {
		return nil, vexerrors.New(vexerrors.NotFound, "inode not found")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.kind != KindFile {
		return nil, vexerrors.New(vexerrors.IsDir, "not a regular file")
	}
	if offset >= int64(len(r.content)) {
		return []byte{}, nil
	}
	end := offset + int64(size)
	if end > int64(len(r.content)) {
		end = int64(len(r.content))
	}
	out := make([]byte, end-offset)
	copy(out, r.content[offset:end])
	return out, nil
}

// SymlinkTarget returns the stored target string of a symlink inode.
func (g *Graph) SymlinkTarget(inode InodeID) (string, error) {
	r, ok := g.record(inode)
	if !ok {
		return "", vexerrors.New(vexerrors.NotFound, "inode not found")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.kind != KindSymlink {
		return "", vexerrors.New(vexerrors.InvalidArg, "not a symlink")
	}
	return r.symlinkTarget, nil
}

// SetSymlinkTarget records target on a freshly created symlink inode.
// Called once, immediately after InsertInode, before the name binding is
// visible to any other lookup.
func (g *Graph) SetSymlinkTarget(inode InodeID, target string) error {
	r, ok := g.record(inode)
	if !ok {
		return vexerrors.New(vexerrors.NotFound, "inode not found")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.kind != KindSymlink {
		return vexerrors.New(vexerrors.InvalidArg, "not a symlink")
	}
	r.symlinkTarget = target
	return nil
}

// FindEdge returns the id of the first edge from src to dst carrying label,
// used by CLB to locate the implicit `contains` edge a directory binding
// creates so unlink/rmdir can remove it symmetrically.
func (g *Graph) FindEdge(src, dst InodeID, label EdgeLabel) (EdgeID, bool) {
	outIDs, err := g.ListOutgoing(src)
	if err != nil {
		return 0, false
	}
	for _, eid := range outIDs {
		e, err := g.GetEdge(eid)
		if err != nil {
			continue
		}
		if e.Dst == dst && e.Label == label {
			return eid, true
		}
	}
	return 0, false
}

// OpenHandleCount reports how many open handles UH currently holds against
// inode, used by Unlink to decide whether to finalize removal.
func (g *Graph) OpenHandleCount(inode InodeID) (int32, error) {
	r, ok := g.record(inode)
	if !ok {
		return 0, vexerrors.New(vexerrors.NotFound, "inode not found")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.openHandles, nil
}

// IncrementOpenHandles bumps inode's open-handle refcount (the `open`
// upcall's effect per §4.6).
func (g *Graph) IncrementOpenHandles(inode InodeID) error {
	r, ok := g.record(inode)
	if !ok {
		return vexerrors.New(vexerrors.NotFound, "inode not found")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.openHandles++
	return nil
}

// DecrementOpenHandles decrements inode's open-handle refcount (the
// `release` upcall's effect) and finalizes removal if the inode was
// orphaned and this was the last handle.
func (g *Graph) DecrementOpenHandles(inode InodeID) error {
	r, ok := g.record(inode)
	if !ok {
		return vexerrors.New(vexerrors.NotFound, "inode not found")
	}
	r.mu.Lock()
	if r.openHandles > 0 {
		r.openHandles--
	}
	finalize := r.orphan && r.openHandles == 0 && r.nlink == 0
	r.mu.Unlock()

	if finalize {
		g.inodes.Delete(inode)
	}
	return nil
}

func nowTimes(c timeutil.Clock) (atime, mtime, ctime time.Time) {
	n := c.Now()
	return n, n, n
}
