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
	"github.com/google/uuid"
	"github.com/vexfs/vexfs/internal/vexerrors"
)

// These are the write primitives §4.4 reserves for CLB: OG never decides
// on its own whether a mutation is safe to apply, it only applies one
// already-validated step and reports a typed error if its own local
// precondition fails. Multi-record callers (CLB) are responsible for
// acquiring record locks in ascending-id order before calling these.

// NewInodeSpec describes the inode InsertInode should create.
type NewInodeSpec struct {
	Kind Kind
	Mode uint32
	Uid  uint32
	Gid  uint32
}

// InsertInode allocates a new InodeID and stores a fresh record for it.
// The caller is responsible for binding a name and any implicit edges.
func (g *Graph) InsertInode(spec NewInodeSpec) InodeID {
	id := InodeID(g.nextInodeID.Add(1))
	atime, mtime, ctime := nowTimes(g.clock)

	r := &inodeRecord{
		id: id, kind: spec.Kind, mode: spec.Mode, uid: spec.Uid, gid: spec.Gid,
		atime: atime, mtime: mtime, ctime: ctime,
	}
	if spec.Kind == KindDir {
		r.nlink = 2
		r.children = []dirent{
			{name: ".", id: id, kind: KindDir, valid: true},
			{name: "..", kind: KindDir, valid: true}, // parent id filled by BindName's caller via SetDotDot
		}
	} else {
		r.nlink = 1
	}

	g.inodes.Store(id, r)
	g.recordType(spec.Kind, id)
	return id
}

// SetDotDot fixes a freshly created directory's ".." binding to parent, a
// second step because the parent id is only known once BindName succeeds.
func (g *Graph) SetDotDot(dir, parent InodeID) error {
	r, ok := g.record(dir)
	if !ok {
		return vexerrors.New(vexerrors.NotFound, "inode not found")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.children {
		if r.children[i].name == ".." {
			r.children[i].id = parent
		}
	}
	g.names.bind(dir, "..", parent)
	return nil
}

// BindName creates a (parent, name) -> child binding and appends it to the
// parent's ordered children list. It fails if name is already bound.
func (g *Graph) BindName(parent InodeID, name string, child InodeID, childKind Kind) error {
	if len(name) == 0 || len(name) > 255 {
		return vexerrors.New(vexerrors.NameTooLong, "name length out of range")
	}
	pr, ok := g.record(parent)
	if !ok {
		return vexerrors.New(vexerrors.NotFound, "parent not found")
	}
	pr.mu.RLock()
	isDir := pr.kind == KindDir
	pr.mu.RUnlock()
	if !isDir {
		return vexerrors.New(vexerrors.NotDir, "parent is not a directory")
	}

	if !g.names.bind(parent, name, child) {
		return vexerrors.New(vexerrors.Exists, "name already bound in parent")
	}

	pr.mu.Lock()
	pr.children = append(pr.children, dirent{name: name, id: child, kind: childKind, valid: true})
	pr.mu.Unlock()
	return nil
}

// UnlinkName removes the (parent, name) binding, tombstoning the parent's
// slot so readdir offsets stay stable, and decrements child's link count.
// The child record is finalized (removed from the arena) only once its
// link count and open-handle count both reach zero.
func (g *Graph) UnlinkName(parent InodeID, name string) (InodeID, error) {
	child, ok := g.names.lookup(parent, name)
	if !ok {
		return 0, vexerrors.New(vexerrors.NotFound, "name binding not found")
	}
	if !g.names.unbind(parent, name) {
		return 0, vexerrors.New(vexerrors.NotFound, "name binding not found")
	}

	pr, _ := g.record(parent)
	pr.mu.Lock()
	for i := range pr.children {
		if pr.children[i].name == name && pr.children[i].valid {
			pr.children[i].valid = false
			break
		}
	}
	pr.mu.Unlock()

	cr, ok := g.record(child)
	if ok {
		cr.mu.Lock()
		if cr.nlink > 0 {
			cr.nlink--
		}
		finalize := cr.nlink == 0 && cr.openHandles == 0
		if !finalize {
			cr.orphan = true
		}
		cr.mu.Unlock()
		if finalize {
			g.inodes.Delete(child)
		}
	}
	return child, nil
}

// ReplaceContent overwrites a file inode's content starting at offset,
// extending it if necessary, and updates size/mtime. This is the "local"
// consistency op per §4.5 (a pure-tree mutation, not coordinated).
func (g *Graph) ReplaceContent(inode InodeID, offset int64, data []byte) (int, error) {
	r, ok := g.record(inode)
	if !ok {
		return 0, vexerrors.New(vexerrors.NotFound, "inode not found")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.kind != KindFile {
		return 0, vexerrors.New(vexerrors.IsDir, "not a regular file")
	}

	end := offset + int64(len(data))
	if end > int64(len(r.content)) {
		grown := make([]byte, end)
		copy(grown, r.content)
		r.content = grown
	}
	copy(r.content[offset:end], data)
	r.size = int64(len(r.content))
	r.mtime, _, _ = nowTimes(g.clock)
	return len(data), nil
}

// AddEdge creates a new edge between two existing inodes and updates both
// endpoints' adjacency lists plus the edge-type index.
func (g *Graph) AddEdge(src, dst InodeID, label EdgeLabel, weight float64, props map[string]EdgeProperty) (EdgeID, error) {
	if weight < 0 {
		return 0, vexerrors.New(vexerrors.InvalidArg, "edge weight must be >= 0")
	}
	sr, ok := g.record(src)
	if !ok {
		return 0, vexerrors.New(vexerrors.NotFound, "source inode not found")
	}
	dr, ok := g.record(dst)
	if !ok {
		return 0, vexerrors.New(vexerrors.NotFound, "target inode not found")
	}

	id := EdgeID(g.nextEdgeID.Add(1))
	e := &edgeRecord{id: id, src: src, dst: dst, label: label, weight: weight, props: props}
	g.edges.Store(id, e)
	g.recordEdgeType(label, id)

	lockInodesAscending(sr, dr, func() {
		sr.outgoing = append(sr.outgoing, id)
		dr.incoming = append(dr.incoming, id)
	})
	return id, nil
}

// RemoveEdge deletes edge and removes it from both endpoints' adjacency
// lists (symmetric removal, per the spec's operation inventory).
func (g *Graph) RemoveEdge(id EdgeID) error {
	e, ok := g.edgeRecordByID(id)
	if !ok {
		return vexerrors.New(vexerrors.NotFound, "edge not found")
	}
	e.mu.RLock()
	src, dst := e.src, e.dst
	e.mu.RUnlock()

	sr, srcOK := g.record(src)
	dr, dstOK := g.record(dst)

	if srcOK && dstOK {
		lockInodesAscending(sr, dr, func() {
			sr.outgoing = removeEdgeID(sr.outgoing, id)
			dr.incoming = removeEdgeID(dr.incoming, id)
		})
	} else if srcOK {
		sr.mu.Lock()
		sr.outgoing = removeEdgeID(sr.outgoing, id)
		sr.mu.Unlock()
	} else if dstOK {
		dr.mu.Lock()
		dr.incoming = removeEdgeID(dr.incoming, id)
		dr.mu.Unlock()
	}

	g.edges.Delete(id)
	return nil
}

func removeEdgeID(ids []EdgeID, target EdgeID) []EdgeID {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

// lockInodesAscending locks two inode records in ascending-id order,
// runs fn, then unlocks — the deadlock-avoidance rule §5 requires of every
// multi-record mutation. a and b may be the same record.
func lockInodesAscending(a, b *inodeRecord, fn func()) {
	if a == b {
		a.mu.Lock()
		defer a.mu.Unlock()
		fn()
		return
	}
	first, second := a, b
	if b.id < a.id {
		first, second = b, a
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()
	fn()
}

// AppendEmbedding records a newly created embedding id against inode. It
// does not check the embedding's dimension against the inode's other
// embeddings.
func (g *Graph) AppendEmbedding(inode InodeID, embeddingID uuid.UUID) error {
	r, ok := g.record(inode)
	if !ok {
		return vexerrors.New(vexerrors.NotFound, "inode not found")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embeddingIDs = append(r.embeddingIDs, embeddingID)
	return nil
}

// RemoveEmbedding drops embeddingID from inode's owned list.
func (g *Graph) RemoveEmbedding(inode InodeID, embeddingID uuid.UUID) error {
	r, ok := g.record(inode)
	if !ok {
		return vexerrors.New(vexerrors.NotFound, "inode not found")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.embeddingIDs[:0]
	for _, id := range r.embeddingIDs {
		if id != embeddingID {
			out = append(out, id)
		}
	}
	r.embeddingIDs = out
	return nil
}

// AncestorChain walks "..", "..", ... from dir up to the root and returns
// every inode id visited, including dir itself and the root, used by
// Rename's directory-cycle check (§4.4 "Rejects rename that would create a
// directory cycle").
func (g *Graph) AncestorChain(dir InodeID) ([]InodeID, error) {
	chain := []InodeID{dir}
	current := dir
	for current != RootInodeID {
		parent, ok := g.names.lookup(current, "..")
		if !ok {
			return nil, vexerrors.New(vexerrors.Corruption, "directory missing .. binding")
		}
		chain = append(chain, parent)
		current = parent
		if len(chain) > 1<<20 {
			return nil, vexerrors.New(vexerrors.Corruption, "ancestor chain exceeds sane depth, possible cycle")
		}
	}
	return chain, nil
}

// Rename moves child from (oldParent, oldName) to (newParent, newName).
// Callers lock nothing themselves: Rename locks the distinct records among
// {oldParent, newParent, child} in ascending-id order itself, per §5's
// deadlock-avoidance rule, and rejects a move that would make a directory
// its own descendant (§4.4 "Rejects rename that would create a directory
// cycle").
func (g *Graph) Rename(oldParent InodeID, oldName string, newParent InodeID, newName string) error {
	if len(newName) == 0 || len(newName) > 255 {
		return vexerrors.New(vexerrors.NameTooLong, "name length out of range")
	}

	child, ok := g.names.lookup(oldParent, oldName)
	if !ok {
		return vexerrors.New(vexerrors.NotFound, "source name binding not found")
	}

	cr, ok := g.record(child)
	if !ok {
		return vexerrors.New(vexerrors.NotFound, "inode not found")
	}
	cr.mu.RLock()
	childKind := cr.kind
	cr.mu.RUnlock()

	if childKind == KindDir && newParent != oldParent {
		chain, err := g.AncestorChain(newParent)
		if err != nil {
			return err
		}
		for _, id := range chain {
			if id == child {
				return vexerrors.New(vexerrors.DirCycle, "rename would make directory its own descendant")
			}
		}
	}

	npr, ok := g.record(newParent)
	if !ok {
		return vexerrors.New(vexerrors.NotFound, "destination parent not found")
	}
	npr.mu.RLock()
	destIsDir := npr.kind == KindDir
	npr.mu.RUnlock()
	if !destIsDir {
		return vexerrors.New(vexerrors.NotDir, "destination parent is not a directory")
	}

	if _, exists := g.names.lookup(newParent, newName); exists {
		return vexerrors.New(vexerrors.Exists, "destination name already bound")
	}

	// Rename rebinds the name index and the parents' ordered children
	// lists directly rather than composing UnlinkName+BindName: those
	// generic primitives treat a removed binding as a dropped hard link
	// and can finalize (delete) the child once its nlink reaches zero,
	// which would destroy the inode mid-move instead of relocating it.
	if !g.names.unbind(oldParent, oldName) {
		return vexerrors.New(vexerrors.NotFound, "source name binding not found")
	}
	if !g.names.bind(newParent, newName, child) {
		g.names.bind(oldParent, oldName, child)
		return vexerrors.New(vexerrors.Exists, "destination name already bound")
	}

	opr, _ := g.record(oldParent)
	lockInodesAscending(opr, npr, func() {
		for i := range opr.children {
			if opr.children[i].name == oldName && opr.children[i].valid {
				opr.children[i].valid = false
				break
			}
		}
		npr.children = append(npr.children, dirent{name: newName, id: child, kind: childKind, valid: true})
	})

	if childKind == KindDir && newParent != oldParent {
		if err := g.SetDotDot(child, newParent); err != nil {
			return err
		}
	}
	return nil
}

// RemoveInodeRecord deletes an inode record outright, bypassing the
// nlink/open-handle bookkeeping UnlinkName applies. CLB uses this only to
// compensate for an InsertInode whose following phase (bind_name, add_edge)
// failed before any name ever pointed at the new inode.
func (g *Graph) RemoveInodeRecord(id InodeID) {
	g.inodes.Delete(id)
}

// AdjustLinkCount adds delta (positive or negative) to inode's link count,
// used by CLB's rmdir op to apply the "dec parent link count" effect a
// child directory's removal has on its parent, and to undo it on rollback.
func (g *Graph) AdjustLinkCount(inode InodeID, delta int) error {
	r, ok := g.record(inode)
	if !ok {
		return vexerrors.New(vexerrors.NotFound, "inode not found")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	next := int64(r.nlink) + int64(delta)
	if next < 0 {
		next = 0
	}
	r.nlink = uint32(next)
	return nil
}

// Quarantine flips an inode's quarantined flag, the effect of an integrity
// error per §7: subsequent access returns Corruption until unmount.
func (g *Graph) Quarantine(inode InodeID) error {
	r, ok := g.record(inode)
	if !ok {
		return vexerrors.New(vexerrors.NotFound, "inode not found")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.quarantined = true
	return nil
}

func (g *Graph) IsQuarantined(inode InodeID) (bool, error) {
	r, ok := g.record(inode)
	if !ok {
		return false, vexerrors.New(vexerrors.NotFound, "inode not found")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.quarantined, nil
}
