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

import "github.com/vexfs/vexfs/internal/vexerrors"

// Snapshot captures root's current content under name, supplementing §3's
// Inode-snapshot entity (original_source/src/fs_core/snapshot.rs). The
// content is copied in full at snapshot time; no copy-on-write extents are
// kept. It is an error to reuse a name still held by a live snapshot.
func (g *Graph) Snapshot(root InodeID, name string) (Snapshot, error) {
	r, ok := g.record(root)
	if !ok {
		return Snapshot{}, vexerrors.New(vexerrors.NotFound, "inode not found")
	}

	g.snapshotsMu.Lock()
	defer g.snapshotsMu.Unlock()
	if _, exists := g.snapshots[name]; exists {
		return Snapshot{}, vexerrors.New(vexerrors.Exists, "snapshot name already in use")
	}

	r.mu.Lock()
	content := make([]byte, len(r.content))
	copy(content, r.content)
	r.snapshotVersion++
	version := r.snapshotVersion
	r.mu.Unlock()

	snap := &Snapshot{Name: name, Base: root, Version: version, taken: g.clock.Now(), content: content}
	g.snapshots[name] = snap
	return *snap, nil
}

// RestoreSnapshot replaces the base inode's live content with the content
// captured at Snapshot time. It does not remove the snapshot marker, so a
// caller may restore the same snapshot more than once.
func (g *Graph) RestoreSnapshot(name string) error {
	g.snapshotsMu.RLock()
	snap, ok := g.snapshots[name]
	g.snapshotsMu.RUnlock()
	if !ok {
		return vexerrors.New(vexerrors.NotFound, "snapshot not found")
	}

	r, ok := g.record(snap.Base)
	if !ok {
		return vexerrors.New(vexerrors.NotFound, "snapshot base inode no longer exists")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	restored := make([]byte, len(snap.content))
	copy(restored, snap.content)
	r.content = restored
	r.size = int64(len(restored))
	r.mtime, _, _ = nowTimes(g.clock)
	return nil
}

// DeleteSnapshot removes a snapshot marker and its captured content. It
// does not check for restores that may still want it.
func (g *Graph) DeleteSnapshot(name string) error {
	g.snapshotsMu.Lock()
	defer g.snapshotsMu.Unlock()
	if _, ok := g.snapshots[name]; !ok {
		return vexerrors.New(vexerrors.NotFound, "snapshot not found")
	}
	delete(g.snapshots, name)
	return nil
}
