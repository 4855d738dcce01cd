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

// Package objectgraph is the authoritative in-memory filesystem tree:
// inodes keyed by a monotonically assigned id, a parent/child name index,
// and per-inode adjacency lists for graph edges. It re-architects the
// teacher's cyclic-pointer samples/memfs inode graph into an
// arena-plus-index layout — inodes and edges live in typed maps keyed by
// 64-bit ids, and every adjacency list stores ids, never pointers, per the
// redesign note in DESIGN.md.
package objectgraph

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// InodeID is a 64-bit monotone inode number. 1 is reserved for the root.
type InodeID uint64

// RootInodeID is the permanent id of the mount's root directory.
const RootInodeID InodeID = 1

// EdgeID is a 64-bit monotone graph edge id.
type EdgeID uint64

// Kind discriminates the three inode kinds the spec defines.
type Kind int

const (
	KindFile Kind = iota
	KindDir
	KindSymlink
)

// EdgeLabel is the ordered, user-extensible edge-type enum from §3.
type EdgeLabel string

const (
	LabelContains    EdgeLabel = "contains"
	LabelReferences  EdgeLabel = "references"
	LabelSimilarTo   EdgeLabel = "similar-to"
	LabelDerivedFrom EdgeLabel = "derived-from"
	LabelDependsOn   EdgeLabel = "depends-on"
)

// PropertyKind discriminates the closed set of scalar types an
// EdgeProperty may hold, supplemented from original_source's
// rust/src/vexgraph/core.rs PropertyType.
type PropertyKind int

const (
	PropertyString PropertyKind = iota
	PropertyInt64
	PropertyFloat64
	PropertyBool
)

// EdgeProperty is a tagged union over the property value, modeled as an
// enum-via-iota plus struct per the spec's "tagged variant, not virtual
// dispatch" design note.
type EdgeProperty struct {
	Kind PropertyKind
	Str  string
	Int  int64
	Flt  float64
	Bool bool
}

func StringProperty(v string) EdgeProperty   { return EdgeProperty{Kind: PropertyString, Str: v} }
func Int64Property(v int64) EdgeProperty     { return EdgeProperty{Kind: PropertyInt64, Int: v} }
func Float64Property(v float64) EdgeProperty { return EdgeProperty{Kind: PropertyFloat64, Flt: v} }
func BoolProperty(v bool) EdgeProperty       { return EdgeProperty{Kind: PropertyBool, Bool: v} }

// extent describes one byte range of an inode's content. No operation in
// this package creates one.
type extent struct {
	offset int64
	data   []byte
}

// inodeRecord is the mutable state behind one InodeID, guarded by its own
// reader-writer lock so unrelated inodes never contend.
type inodeRecord struct {
	mu sync.RWMutex

	id    InodeID
	kind  Kind
	mode  uint32
	uid   uint32
	gid   uint32
	size  int64
	nlink uint32

	atime, mtime, ctime time.Time

	content []byte   // small-file fast path
	extents []extent // not written by any operation; snapshots copy content in full

	symlinkTarget string

	// children holds a directory's bindings in insertion order, mirroring
	// the teacher's memfs.inode.entries: "." and ".." occupy slots 0 and 1
	// and are never removed; later slots are tombstoned (valid=false) on
	// unlink rather than shifted, so readdir offsets stay stable.
	children []dirent

	outgoing []EdgeID
	incoming []EdgeID
	embeddingIDs []uuid.UUID

	openHandles int32
	orphan      bool
	quarantined bool

	snapshotVersion uint64
}

// Attrs is the read-only attribute view handed back to callers; it is a
// copy, not a live reference, so it may outlive the record's lock.
type Attrs struct {
	ID    InodeID
	Kind  Kind
	Mode  uint32
	Uid   uint32
	Gid   uint32
	Size  int64
	Nlink uint32
	Atime, Mtime, Ctime time.Time
	Quarantined bool
}

func (r *inodeRecord) snapshotAttrs() Attrs {
	return Attrs{
		ID: r.id, Kind: r.kind, Mode: r.mode, Uid: r.uid, Gid: r.gid,
		Size: r.size, Nlink: r.nlink, Atime: r.atime, Mtime: r.mtime, Ctime: r.ctime,
		Quarantined: r.quarantined,
	}
}

// edgeRecord is one graph edge, owned exclusively by the Graph and
// referenced by id from both endpoints' adjacency lists.
type edgeRecord struct {
	mu sync.RWMutex

	id     EdgeID
	src    InodeID
	dst    InodeID
	label  EdgeLabel
	weight float64
	props  map[string]EdgeProperty
}

// Edge is a read-only snapshot of an edgeRecord.
type Edge struct {
	ID     EdgeID
	Src    InodeID
	Dst    InodeID
	Label  EdgeLabel
	Weight float64
	Props  map[string]EdgeProperty
}

func (e *edgeRecord) snapshot() Edge {
	props := make(map[string]EdgeProperty, len(e.props))
	for k, v := range e.props {
		props[k] = v
	}
	return Edge{ID: e.id, Src: e.src, Dst: e.dst, Label: e.label, Weight: e.weight, Props: props}
}

// nameKey is the (parent, name) key into the name index.
type nameKey struct {
	parent InodeID
	name   string
}

// dirent is one slot in a directory's ordered children list.
type dirent struct {
	name  string
	id    InodeID
	kind  Kind
	valid bool
}

// DirEntry is the read-only view of one readdir slot.
type DirEntry struct {
	Name string
	ID   InodeID
	Kind Kind
}

// Snapshot is an immutable reference to a subtree's state at a point in
// time, per §3's Inode snapshot entity, supplemented from
// original_source's src/fs_core/snapshot.rs.
type Snapshot struct {
	Name    string
	Base    InodeID
	Version uint64
	taken   time.Time
	content []byte
}
