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

// Package blockstore is VexFS's consumed storage abstraction (spec §6.3):
// fixed-size block read/write with fsync over a single backing file,
// grounded on the teacher's lease.FileLeaser / mutable.TempFile pattern of
// managing file content through *os.File rather than an in-memory buffer.
package blockstore

import (
	"os"
	"sync"

	"github.com/vexfs/vexfs/internal/vexerrors"
)

// Store implements read_block/write_block/fsync/capacity_blocks over a
// single *os.File, pre-sized at construction. Blocks are zero-initialized
// on first write, per the spec's assumption.
type Store struct {
	mu        sync.RWMutex
	file      *os.File
	blockSize int
	capacity  int64 // in blocks
}

// Open creates or opens path, truncating it to capacityBlocks*blockSize.
// If path is empty, Store runs purely in memory via an anonymous temp file,
// matching lease.FileLeaser's unlink-on-open discipline for ephemeral
// content.
func Open(path string, blockSize int, capacityBlocks int64) (*Store, error) {
	if blockSize <= 0 || blockSize&(blockSize-1) != 0 {
		return nil, vexerrors.New(vexerrors.InvalidArg, "blockstore: block size must be a power of two")
	}

	var f *os.File
	var err error
	if path == "" {
		f, err = os.CreateTemp("", "vexfs-blockstore-*")
		if err == nil {
			err = os.Remove(f.Name())
		}
	} else {
		f, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	}
	if err != nil {
		return nil, vexerrors.Wrap(vexerrors.Internal, err, "blockstore: open backing file")
	}

	size := int64(blockSize) * capacityBlocks
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, vexerrors.Wrap(vexerrors.Internal, err, "blockstore: size backing file")
	}

	return &Store{file: f, blockSize: blockSize, capacity: capacityBlocks}, nil
}

// Close releases the backing file descriptor.
func (s *Store) Close() error {
	return s.file.Close()
}

// CapacityBlocks reports the fixed block capacity configured at Open.
func (s *Store) CapacityBlocks() int64 { return s.capacity }

// BlockSize reports the fixed block size configured at Open.
func (s *Store) BlockSize() int { return s.blockSize }

func (s *Store) boundsCheck(index int64) error {
	if index < 0 || index >= s.capacity {
		return vexerrors.New(vexerrors.InvalidArg, "blockstore: block index out of range")
	}
	return nil
}

// ReadBlock returns the contents of block index, exactly BlockSize() bytes.
func (s *Store) ReadBlock(index int64) ([]byte, error) {
	if err := s.boundsCheck(index); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	buf := make([]byte, s.blockSize)
	_, err := s.file.ReadAt(buf, index*int64(s.blockSize))
	if err != nil {
		return nil, vexerrors.Wrap(vexerrors.Corruption, err, "blockstore: read_block")
	}
	return buf, nil
}

// WriteBlock overwrites block index with data, which must be exactly
// BlockSize() bytes.
func (s *Store) WriteBlock(index int64, data []byte) error {
	if err := s.boundsCheck(index); err != nil {
		return err
	}
	if len(data) != s.blockSize {
		return vexerrors.New(vexerrors.InvalidArg, "blockstore: write_block payload size mismatch")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.file.WriteAt(data, index*int64(s.blockSize)); err != nil {
		return vexerrors.Wrap(vexerrors.Internal, err, "blockstore: write_block")
	}
	return nil
}

// Fsync flushes the backing file to stable storage.
func (s *Store) Fsync() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.file.Sync(); err != nil {
		return vexerrors.Wrap(vexerrors.Internal, err, "blockstore: fsync")
	}
	return nil
}
