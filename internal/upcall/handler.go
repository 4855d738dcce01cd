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

// Package upcall is the Upcall Handler (UH): the FUSE-facing front door
// that turns jacobsa/fuse ops into Object Graph / Cross-Layer Bridge
// calls. It is grounded directly on fs/fs.go's fileSystem methods — same
// "find the inode, lock it, serve the request" shape, same embedding of
// fuseutil.NotImplementedFileSystem for the corners of the interface VexFS
// doesn't implement — generalized from a GCS-object-backed tree to VexFS's
// Object Graph and adapted to the (ctx, op) error-returning FileSystem
// convention.
package upcall

import (
	"context"
	"os"
	"sync"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"

	"github.com/vexfs/vexfs/cfg"
	"github.com/vexfs/vexfs/internal/bridge"
	"github.com/vexfs/vexfs/internal/bufferpool"
	"github.com/vexfs/vexfs/internal/objectgraph"
	"github.com/vexfs/vexfs/internal/stackbudget"
	"github.com/vexfs/vexfs/internal/vexerrors"
	"github.com/vexfs/vexfs/internal/workerpool"
)

// dirHandle and fileHandle are the open-handle bookkeeping the kernel
// expects back from OpenDir/OpenFile, mirroring fs.go's fs.handles map
// keyed by fuseops.HandleID.
type dirHandle struct {
	inode objectgraph.InodeID
}

type fileHandle struct {
	inode objectgraph.InodeID
}

// Handler implements the upcall side of every FUSE op SPEC_FULL.md §4
// names. It holds the Bridge for coordinated mutations and the Object
// Graph directly for read-only lookups, the same split fs.go draws
// between inode.DirInode (reads) and gcsproxy (the mutation path).
// Embedding fuseutil.NotImplementedFileSystem satisfies the rest of
// fuseutil.FileSystem (xattrs, hard links, device nodes) with stock
// ENOSYS responses rather than hand-written stubs, the way fs.go does.
type Handler struct {
	fuseutil.NotImplementedFileSystem

	bridge *bridge.Bridge
	og     *objectgraph.Graph
	sbm    *stackbudget.Monitor
	bp     *bufferpool.Pool
	class  *classifier
	pool   *workerpool.StaticWorkerPool

	mu           sync.Mutex
	handles      map[fuseops.HandleID]interface{}
	nextHandleID fuseops.HandleID
}

func New(b *bridge.Bridge, og *objectgraph.Graph, sbm *stackbudget.Monitor, bp *bufferpool.Pool, ctlCfg cfg.ControlConfig) *Handler {
	return &Handler{
		bridge:  b,
		og:      og,
		sbm:     sbm,
		bp:      bp,
		class:   newClassifier(ctlCfg),
		handles: make(map[fuseops.HandleID]interface{}),
	}
}

// WithWorkerPool attaches the two-lane queue SPEC_FULL.md §5 requires:
// once set, every mutating upcall below runs on one of the pool's
// goroutines rather than directly on the kernel's own calling goroutine,
// so a flood of plain POSIX writes can never starve a vector/graph
// request behind it (and vice versa).
func (h *Handler) WithWorkerPool(p *workerpool.StaticWorkerPool) *Handler {
	h.pool = p
	return h
}

// dispatch runs fn either inline (no pool attached, e.g. in unit tests)
// or on the worker pool's priority lane (vector/graph/semantic paths) or
// normal lane (everything else), blocking until fn completes. Scheduling
// onto a stopped pool fails with Conflict (EAGAIN); a full lane blocks
// until a worker frees a slot.
func (h *Handler) dispatch(class Class, fn func() error) error {
	if h.pool == nil {
		return fn()
	}

	result := make(chan error, 1)
	task := func() { result <- fn() }

	var scheduleErr error
	if class == ClassPlain {
		scheduleErr = h.pool.ScheduleNormal(task)
	} else {
		scheduleErr = h.pool.SchedulePriority(task)
	}
	if scheduleErr != nil {
		return toErrno(scheduleErr)
	}
	return <-result
}

func toAttrs(a objectgraph.Attrs) fuseops.InodeAttributes {
	mode := os.FileMode(a.Mode & 0o7777)
	switch a.Kind {
	case objectgraph.KindDir:
		mode |= os.ModeDir
	case objectgraph.KindSymlink:
		mode |= os.ModeSymlink
	}
	return fuseops.InodeAttributes{
		Size:  uint64(a.Size),
		Nlink: uint64(a.Nlink),
		Mode:  mode,
		Atime: a.Atime,
		Mtime: a.Mtime,
		Ctime: a.Ctime,
		Uid:   a.Uid,
		Gid:   a.Gid,
	}
}

// checkpoint opens a Stack Budget Monitor guard for the op named by tag
// and returns a func to defer; it overwrites *err with the guard's close
// error (ResourceExhausted once the hard ceiling is crossed) unless the
// handler already failed for its own reason, the same
// "unlockAndMaybeDisposeOfInode(child, &err)" pattern fs.go uses to let a
// deferred cleanup step report its own failure without masking an
// earlier one.
func (h *Handler) checkpoint(ctx context.Context, tag string, err *error) func() {
	if h.sbm == nil {
		return func() {}
	}
	g := h.sbm.Checkpoint(ctx, tag)
	return func() {
		if cerr := g.Close(); cerr != nil && *err == nil {
			*err = toErrno(cerr)
		}
	}
}

func (h *Handler) LookUpInode(ctx context.Context, op *fuseops.LookUpInodeOp) (err error) {
	defer h.checkpoint(ctx, "LookUpInode", &err)()

	child, err := h.og.LookupName(objectgraph.InodeID(op.Parent), op.Name)
	if err != nil {
		return toErrno(err)
	}
	attrs, err := h.og.GetInode(child)
	if err != nil {
		return toErrno(err)
	}
	op.Entry.Child = fuseops.InodeID(child)
	op.Entry.Attributes = toAttrs(attrs)
	h.class.classify(child, op.Name)
	return nil
}

func (h *Handler) GetInodeAttributes(ctx context.Context, op *fuseops.GetInodeAttributesOp) (err error) {
	defer h.checkpoint(ctx, "GetInodeAttributes", &err)()

	attrs, err := h.og.GetInode(objectgraph.InodeID(op.Inode))
	if err != nil {
		return toErrno(err)
	}
	op.Attributes = toAttrs(attrs)
	return nil
}

// SetInodeAttributes only supports growing file size, the same narrow
// scope fs.go imposes (it returns fuse.ENOSYS for mode/time changes).
// ReplaceContent never shrinks a file's backing buffer, so a truncate to
// a smaller size is accepted but has no effect — matching the Non-goals
// SPEC_FULL.md draws around full POSIX truncate semantics.
func (h *Handler) SetInodeAttributes(ctx context.Context, op *fuseops.SetInodeAttributesOp) (err error) {
	defer h.checkpoint(ctx, "SetInodeAttributes", &err)()

	if op.Mode != nil || op.Atime != nil || op.Mtime != nil {
		return fuse.ENOSYS
	}
	if op.Size != nil {
		if _, err := h.bridge.Write(ctx, objectgraph.InodeID(op.Inode), int64(*op.Size), nil); err != nil {
			return toErrno(err)
		}
	}
	attrs, err := h.og.GetInode(objectgraph.InodeID(op.Inode))
	if err != nil {
		return toErrno(err)
	}
	op.Attributes = toAttrs(attrs)
	return nil
}

// ForgetInode drops the per-inode classifier cache entry; the Object
// Graph itself has no kernel lookup-count to decrement since it isn't
// backed by a remote object store that needs a reference count to know
// when it's safe to evict.
func (h *Handler) ForgetInode(ctx context.Context, op *fuseops.ForgetInodeOp) error {
	h.class.forget(objectgraph.InodeID(op.Inode))
	return nil
}

func (h *Handler) MkDir(ctx context.Context, op *fuseops.MkDirOp) (err error) {
	defer h.checkpoint(ctx, "MkDir", &err)()

	return h.dispatch(h.class.classifyName(op.Name), func() error {
		child, err := h.bridge.Mkdir(ctx, objectgraph.InodeID(op.Parent), op.Name, uint32(op.Mode), 0, 0)
		if err != nil {
			return toErrno(err)
		}
		attrs, err := h.og.GetInode(child)
		if err != nil {
			return toErrno(err)
		}
		op.Entry.Child = fuseops.InodeID(child)
		op.Entry.Attributes = toAttrs(attrs)
		return nil
	})
}

func (h *Handler) CreateFile(ctx context.Context, op *fuseops.CreateFileOp) (err error) {
	defer h.checkpoint(ctx, "CreateFile", &err)()

	return h.dispatch(h.class.classifyName(op.Name), func() error {
		child, err := h.bridge.Create(ctx, objectgraph.InodeID(op.Parent), op.Name, uint32(op.Mode), 0, 0)
		if err != nil {
			return toErrno(err)
		}
		attrs, err := h.og.GetInode(child)
		if err != nil {
			return toErrno(err)
		}
		op.Entry.Child = fuseops.InodeID(child)
		op.Entry.Attributes = toAttrs(attrs)

		h.mu.Lock()
		op.Handle = h.allocHandleLocked(&fileHandle{inode: child})
		h.mu.Unlock()
		return nil
	})
}

func (h *Handler) CreateSymlink(ctx context.Context, op *fuseops.CreateSymlinkOp) (err error) {
	defer h.checkpoint(ctx, "CreateSymlink", &err)()

	return h.dispatch(h.class.classifyName(op.Name), func() error {
		child, err := h.bridge.CreateSymlink(ctx, objectgraph.InodeID(op.Parent), op.Name, op.Target, 0, 0)
		if err != nil {
			return toErrno(err)
		}
		attrs, err := h.og.GetInode(child)
		if err != nil {
			return toErrno(err)
		}
		op.Entry.Child = fuseops.InodeID(child)
		op.Entry.Attributes = toAttrs(attrs)
		return nil
	})
}

// Rename is the coordinated move §4.5 names, delegated straight to the
// Bridge's own Rename (validate both parents, rebind the name, fix up the
// `contains` edges) so the upcall layer adds nothing but errno mapping.
func (h *Handler) Rename(ctx context.Context, op *fuseops.RenameOp) (err error) {
	defer h.checkpoint(ctx, "Rename", &err)()

	return h.dispatch(h.class.classifyName(op.NewName), func() error {
		if err := h.bridge.Rename(ctx, objectgraph.InodeID(op.OldParent), op.OldName, objectgraph.InodeID(op.NewParent), op.NewName); err != nil {
			return toErrno(err)
		}
		return nil
	})
}

func (h *Handler) RmDir(ctx context.Context, op *fuseops.RmDirOp) (err error) {
	defer h.checkpoint(ctx, "RmDir", &err)()

	return h.dispatch(h.class.classifyName(op.Name), func() error {
		if err := h.bridge.Rmdir(ctx, objectgraph.InodeID(op.Parent), op.Name); err != nil {
			return toErrno(err)
		}
		return nil
	})
}

func (h *Handler) Unlink(ctx context.Context, op *fuseops.UnlinkOp) (err error) {
	defer h.checkpoint(ctx, "Unlink", &err)()

	return h.dispatch(h.class.classifyName(op.Name), func() error {
		if err := h.bridge.Unlink(ctx, objectgraph.InodeID(op.Parent), op.Name); err != nil {
			return toErrno(err)
		}
		return nil
	})
}

func (h *Handler) OpenDir(ctx context.Context, op *fuseops.OpenDirOp) error {
	attrs, err := h.og.GetInode(objectgraph.InodeID(op.Inode))
	if err != nil {
		return toErrno(err)
	}
	if attrs.Kind != objectgraph.KindDir {
		return toErrno(vexerrors.New(vexerrors.NotDir, "upcall: OpenDir: inode %d is not a directory", op.Inode))
	}

	h.mu.Lock()
	op.Handle = h.allocHandleLocked(&dirHandle{inode: objectgraph.InodeID(op.Inode)})
	h.mu.Unlock()
	return nil
}

func (h *Handler) ReadDir(ctx context.Context, op *fuseops.ReadDirOp) error {
	h.mu.Lock()
	dh, ok := h.handles[op.Handle].(*dirHandle)
	h.mu.Unlock()
	if !ok {
		return fuse.EIO
	}

	entries, err := h.og.ListChildren(dh.inode)
	if err != nil {
		return toErrno(err)
	}

	var data []byte
	for i := int(op.Offset); i < len(entries); i++ {
		e := entries[i]
		var dt fuseutil.DirentType
		switch e.Kind {
		case objectgraph.KindDir:
			dt = fuseutil.DT_Directory
		case objectgraph.KindSymlink:
			dt = fuseutil.DT_Link
		default:
			dt = fuseutil.DT_File
		}
		d := fuseutil.Dirent{
			Offset: fuseops.DirOffset(i + 1),
			Inode:  fuseops.InodeID(e.ID),
			Name:   e.Name,
			Type:   dt,
		}
		grown := fuseutil.AppendDirent(data, d)
		if len(grown) > op.Size {
			break
		}
		data = grown
	}
	op.Data = data
	return nil
}

func (h *Handler) ReleaseDirHandle(ctx context.Context, op *fuseops.ReleaseDirHandleOp) error {
	h.mu.Lock()
	delete(h.handles, op.Handle)
	h.mu.Unlock()
	return nil
}

func (h *Handler) OpenFile(ctx context.Context, op *fuseops.OpenFileOp) error {
	attrs, err := h.og.GetInode(objectgraph.InodeID(op.Inode))
	if err != nil {
		return toErrno(err)
	}
	if attrs.Kind == objectgraph.KindDir {
		return toErrno(vexerrors.New(vexerrors.IsDir, "upcall: OpenFile: inode %d is a directory", op.Inode))
	}
	if err := h.og.IncrementOpenHandles(objectgraph.InodeID(op.Inode)); err != nil {
		return toErrno(err)
	}

	h.mu.Lock()
	op.Handle = h.allocHandleLocked(&fileHandle{inode: objectgraph.InodeID(op.Inode)})
	h.mu.Unlock()
	return nil
}

// ReadFile acquires a buffer-pool buffer sized to the request and copies
// the Object Graph's backing content into it, the BP's "copy on the way
// out of the hot path" role per SPEC_FULL.md §4.
func (h *Handler) ReadFile(ctx context.Context, op *fuseops.ReadFileOp) (err error) {
	defer h.checkpoint(ctx, "ReadFile", &err)()

	data, err := h.og.Content(objectgraph.InodeID(op.Inode), op.Offset, op.Size)
	if err != nil {
		return toErrno(err)
	}

	if h.bp != nil {
		if buf, acqErr := h.bp.Acquire(ctx, len(data)); acqErr == nil {
			n := copy(buf.Data, data)
			op.Data = buf.Data[:n]
			h.bp.Release(buf)
			return nil
		}
	}
	op.Data = data
	return nil
}

func (h *Handler) ReadSymlink(ctx context.Context, op *fuseops.ReadSymlinkOp) error {
	target, err := h.og.SymlinkTarget(objectgraph.InodeID(op.Inode))
	if err != nil {
		return toErrno(err)
	}
	op.Target = target
	return nil
}

func (h *Handler) WriteFile(ctx context.Context, op *fuseops.WriteFileOp) (err error) {
	defer h.checkpoint(ctx, "WriteFile", &err)()

	class := h.class.classifiedOrPlain(objectgraph.InodeID(op.Inode))
	return h.dispatch(class, func() error {
		if _, err := h.bridge.Write(ctx, objectgraph.InodeID(op.Inode), op.Offset, op.Data); err != nil {
			return toErrno(err)
		}
		return nil
	})
}

// SyncFile and FlushFile are no-ops: every mutation already goes through
// the Bridge's commit phase before the upcall returns, so there is no
// buffered state left to flush.
func (h *Handler) SyncFile(ctx context.Context, op *fuseops.SyncFileOp) error {
	return nil
}

func (h *Handler) FlushFile(ctx context.Context, op *fuseops.FlushFileOp) error {
	return nil
}

func (h *Handler) ReleaseFileHandle(ctx context.Context, op *fuseops.ReleaseFileHandleOp) error {
	h.mu.Lock()
	fh, ok := h.handles[op.Handle].(*fileHandle)
	delete(h.handles, op.Handle)
	h.mu.Unlock()
	if ok {
		_ = h.og.DecrementOpenHandles(fh.inode)
	}
	return nil
}

// allocHandleLocked requires h.mu held.
func (h *Handler) allocHandleLocked(v interface{}) fuseops.HandleID {
	h.nextHandleID++
	id := h.nextHandleID
	h.handles[id] = v
	return id
}
