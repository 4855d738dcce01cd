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

package control

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync"

	"github.com/vexfs/vexfs/internal/logger"
)

// SideChannelServer listens on a Unix domain socket and serves
// length-prefixed CBOR Request/Response frames, one connection per client,
// one goroutine per connection — the same accept-loop shape as gcsproxy's
// listeners, grounded concretely on the matchlock vfs-server's
// HandleConnection framing (4-byte big-endian length prefix, then a CBOR
// payload).
type SideChannelServer struct {
	path       string
	dispatcher *Dispatcher

	mu        sync.Mutex
	listener  net.Listener
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

func NewSideChannelServer(path string, d *Dispatcher) *SideChannelServer {
	return &SideChannelServer{path: path, dispatcher: d}
}

// Serve removes any stale socket file at path, listens, and accepts
// connections until ctx is cancelled or Close is called.
func (s *SideChannelServer) Serve(ctx context.Context) error {
	if err := os.RemoveAll(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}
}

// Close stops accepting new connections and waits for in-flight ones to
// drain, mirroring the graceful-shutdown sequencing cmd/ applies to the
// worker pool and the mount itself.
func (s *SideChannelServer) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		ln := s.listener
		s.mu.Unlock()
		if ln == nil {
			return
		}
		s.closeErr = ln.Close()
		s.wg.Wait()
		_ = os.RemoveAll(s.path)
	})
	return s.closeErr
}

func (s *SideChannelServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	// Closing conn once ctx ends unblocks readFrame, so a Close that follows
	// the cancellation of Serve's ctx does not wait on idle clients.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		payload, err := readFrame(conn)
		if err != nil {
			if err != io.EOF {
				logger.Debugf("control: side channel read error: %v", err)
			}
			return
		}

		req, err := DecodeRequest(payload)
		if err != nil {
			logger.Warnf("control: side channel decode error: %v", err)
			return
		}

		resp := s.dispatcher.Dispatch(ctx, req)

		out, err := EncodeResponse(resp)
		if err != nil {
			logger.Warnf("control: side channel encode error: %v", err)
			return
		}
		if err := writeFrame(conn, out); err != nil {
			logger.Debugf("control: side channel write error: %v", err)
			return
		}
	}
}
