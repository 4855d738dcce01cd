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

package upcall

import (
	"syscall"

	"github.com/jacobsa/fuse"

	"github.com/vexfs/vexfs/internal/vexerrors"
)

// toErrno maps a vexerrors.Kind onto the host errno convention per §7's
// table, the same translation gcsfuse's fs.go performs implicitly by
// returning fuse.ENOENT/fuse.EEXIST/etc. directly from its methods (see
// e.g. fs.go's "Special case: *gcs.PreconditionError means the name
// already exists" -> fuse.EEXIST). Kinds with no natural errno (Internal,
// Corruption) fall back to EIO so a bug never escapes as a silent success.
func toErrno(err error) error {
	if err == nil {
		return nil
	}
	switch vexerrors.KindOf(err) {
	case vexerrors.NotFound:
		return fuse.ENOENT
	case vexerrors.Exists:
		return fuse.EEXIST
	case vexerrors.NotDir:
		return fuse.Errno(syscall.ENOTDIR)
	case vexerrors.IsDir:
		return fuse.Errno(syscall.EISDIR)
	case vexerrors.NotEmpty:
		return fuse.ENOTEMPTY
	case vexerrors.InvalidArg, vexerrors.NameTooLong, vexerrors.DimMismatch:
		return fuse.Errno(syscall.EINVAL)
	case vexerrors.DirCycle:
		return fuse.Errno(syscall.EINVAL)
	case vexerrors.PermissionDenied:
		return fuse.Errno(syscall.EACCES)
	case vexerrors.ResourceExhausted:
		return fuse.Errno(syscall.ENOSPC)
	case vexerrors.Conflict, vexerrors.Stale, vexerrors.Busy:
		return fuse.Errno(syscall.EAGAIN)
	case vexerrors.Corruption, vexerrors.Internal:
		return fuse.EIO
	default:
		return fuse.EIO
	}
}
