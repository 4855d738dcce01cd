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

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/timeutil"

	"github.com/vexfs/vexfs/cfg"
	"github.com/vexfs/vexfs/internal/ann"
	"github.com/vexfs/vexfs/internal/blockstore"
	"github.com/vexfs/vexfs/internal/bridge"
	"github.com/vexfs/vexfs/internal/bufferpool"
	"github.com/vexfs/vexfs/internal/control"
	"github.com/vexfs/vexfs/internal/logger"
	"github.com/vexfs/vexfs/internal/objectgraph"
	"github.com/vexfs/vexfs/internal/stackbudget"
	"github.com/vexfs/vexfs/internal/upcall"
	"github.com/vexfs/vexfs/internal/workerpool"
)

// mountedVolume bundles everything a running mount needs to tear back down
// in reverse dependency order, the same shutdown-ordering shape
// legacy_main.go's deferred Close/Kill chain follows for its visualizer
// subprocess.
type mountedVolume struct {
	mfs        *fuse.MountedFileSystem
	store      *blockstore.Store
	sideServer *control.SideChannelServer
	sbm        *stackbudget.Monitor
	bp         *bufferpool.Pool
	pool       *workerpool.StaticWorkerPool
}

// exitCoded is returned by buildVolume to signal which of SPEC_FULL.md §6.5's
// process exit codes applies; Run translates it into os.Exit without ever
// letting a bare error reach cmd.Execute's generic argument-error path.
type exitCoded struct {
	code int
	err  error
}

func (e *exitCoded) Error() string { return e.err.Error() }

// exitCodeOf returns the code an exitCoded error carries, or 2 (backing-
// store failure) for any other error buildVolume returns, since every
// non-mount failure in that function happens while opening the backing
// store or starting ancillary servers it depends on.
func exitCodeOf(err error) int {
	var ec *exitCoded
	if errors.As(err, &ec) {
		return ec.code
	}
	return 2
}

// Run wires a resolved Config into a live mount and blocks until TERM,
// INT, or an unmount from another process ends it. It is the mountFunc
// passed to Execute from main.go. Run never returns a non-nil error to
// its caller: every failure path here carries its own SPEC_FULL.md §6.5
// exit code and calls os.Exit directly, since cmd.Execute's own RunE
// wrapper only knows how to translate a returned error into the generic
// argument-error code (1).
func Run(c *cfg.Config, mountPoint string) error {
	if err := initLogging(c.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "init logging: %v\n", err)
		os.Exit(2)
	}

	vol, err := buildVolume(c, mountPoint)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeOf(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		logger.Infof("received shutdown signal, unmounting %q", mountPoint)
		if err := fuse.Unmount(mountPoint); err != nil {
			logger.Errorf("unmount %q: %v", mountPoint, err)
		}
	}()

	joinErr := vol.mfs.Join(context.Background())
	teardown(vol)
	if joinErr != nil {
		err := fmt.Errorf("serving %q: %w", mountPoint, joinErr)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(3)
	}
	return nil
}

// buildVolume constructs every VexFS layer (storage, Object Graph, ANN
// index, Cross-Layer Bridge, Buffer Pool, Stack Budget Monitor, control
// plane, Upcall Handler) and mounts it, in the same
// "validate directories, build a ServerConfig, NewServer, fuse.Mount"
// order mount.go's mountWithStorageHandle follows.
func buildVolume(c *cfg.Config, mountPoint string) (*mountedVolume, error) {
	var store *blockstore.Store
	if c.Storage.BackingPath != "" {
		var err error
		store, err = blockstore.Open(string(c.Storage.BackingPath), c.Storage.BlockSize, c.Storage.CapacityBlocks)
		if err != nil {
			return nil, fmt.Errorf("opening backing store %q: %w", c.Storage.BackingPath, err)
		}
		logger.Infof("opened backing store %q (%d blocks of %d bytes)", c.Storage.BackingPath, store.CapacityBlocks(), store.BlockSize())
	} else {
		logger.Warnf("no storage.backing-path configured; running in-memory only, no durability across unmount")
	}

	clk := timeutil.RealClock()
	og := objectgraph.New(clk)
	idx := ann.New()
	b := bridge.New(og, idx, clk)

	sbm := stackbudget.New(stackbudget.Config{
		CeilingBytes:   c.StackBudget.CeilingBytes,
		WarningPercent: c.StackBudget.WarningPercent,
	})
	bp := bufferpool.New(bufferpool.Config{
		SmallCount:         c.BufferPool.SmallCount,
		MediumCount:        c.BufferPool.MediumCount,
		LargeCount:         c.BufferPool.LargeCount,
		MaxClassMultiplier: c.BufferPool.MaxClassMultiplier,
	})

	var sideServer *control.SideChannelServer
	if c.Control.Transport == cfg.ControlTransportSideChannel && c.Control.SideChannelPath == "" {
		if store != nil {
			store.Close()
		}
		return nil, fmt.Errorf("control.side-channel-path is required when control.transport is %q", c.Control.Transport)
	}
	if c.Control.Transport == cfg.ControlTransportBoth && c.Control.SideChannelPath == "" {
		logger.Infof("no control.side-channel-path configured; control plane served through the path overlay only")
	}
	if cfg.IsSideChannelEnabled(c) && c.Control.SideChannelPath != "" {
		dispatcher := control.NewDispatcher(b, clk)
		sideServer = control.NewSideChannelServer(string(c.Control.SideChannelPath), dispatcher)
		go func() {
			if err := sideServer.Serve(context.Background()); err != nil {
				logger.Errorf("side channel server on %q exited: %v", c.Control.SideChannelPath, err)
			}
		}()
		logger.Infof("control-plane side channel listening on %q", c.Control.SideChannelPath)
	}

	pool, err := workerpool.NewStaticWorkerPool(c.WorkerPool.PriorityWorkers, c.WorkerPool.NormalWorkers)
	if err != nil {
		if sideServer != nil {
			sideServer.Close()
		}
		if store != nil {
			store.Close()
		}
		return nil, fmt.Errorf("starting worker pool: %w", err)
	}

	handler := upcall.New(b, og, sbm, bp, c.Control).WithWorkerPool(pool)
	server := upcall.NewServer(handler)

	fsName := fsName(mountPoint)
	logger.Infof("mounting VexFS volume %q at %q", fsName, mountPoint)
	mfs, err := fuse.Mount(mountPoint, server, fuseMountConfig(fsName, c))
	if err != nil {
		pool.Stop()
		if sideServer != nil {
			sideServer.Close()
		}
		if store != nil {
			store.Close()
		}
		return nil, &exitCoded{code: 3, err: fmt.Errorf("mounting at %q: %w", mountPoint, err)}
	}

	return &mountedVolume{mfs: mfs, store: store, sideServer: sideServer, sbm: sbm, bp: bp, pool: pool}, nil
}

// fuseMountConfig translates VexFS's own config into the jacobsa/fuse
// knobs, the same FSName/Subtype/VolumeName/logger-wiring shape
// getFuseMountConfig builds for gcsfuse.
func fuseMountConfig(fsName string, c *cfg.Config) *fuse.MountConfig {
	mountCfg := &fuse.MountConfig{
		FSName:     fsName,
		Subtype:    "vexfs",
		VolumeName: "vexfs",
		// The Object Graph serializes directory mutation through per-inode
		// locks (not one filesystem-wide lock), so parallel LookUp/ReadDir
		// calls from the kernel are safe to allow.
		EnableParallelDirOps: true,
	}

	if c.Logging.Severity.Rank() <= cfg.ErrorLogSeverity.Rank() {
		mountCfg.ErrorLogger = logger.NewStdLogger(logger.LevelError, "fuse: ")
	}
	if c.Logging.Severity.Rank() <= cfg.TraceLogSeverity.Rank() {
		mountCfg.DebugLogger = logger.NewStdLogger(logger.LevelTrace, "fuse_debug: ")
	}
	return mountCfg
}

func fsName(mountPoint string) string {
	return fmt.Sprintf("vexfs:%s", mountPoint)
}

func initLogging(c cfg.LoggingConfig) error {
	if c.FilePath != "" {
		return logger.InitFile(string(c.FilePath), string(c.Format), string(c.Severity), c.MaxFileSizeMB, c.BackupFileCount, c.Compress)
	}
	logger.Init(string(c.Format), string(c.Severity), os.Stderr)
	return nil
}

// teardown drains the queue, flushes storage, and releases every
// resource buildVolume acquired, in reverse order: control-plane
// listeners first (stop accepting new vector/graph requests), then the
// backing store (fsync before close), matching the
// "drain queue, flush storage, unmount" sequence SPEC_FULL.md §6.5 names.
func teardown(vol *mountedVolume) {
	if vol.pool != nil {
		vol.pool.Stop()
	}
	if vol.sideServer != nil {
		if err := vol.sideServer.Close(); err != nil {
			logger.Errorf("closing side channel server: %v", err)
		}
	}
	if vol.store != nil {
		if err := vol.store.Fsync(); err != nil {
			logger.Errorf("flushing backing store: %v", err)
		}
		if err := vol.store.Close(); err != nil {
			logger.Errorf("closing backing store: %v", err)
		}
	}
}
