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

// Package cfg is VexFS's configuration surface: a Config struct bound to
// command-line flags and an optional YAML file via spf13/viper and
// spf13/pflag, following the same shape gcsfuse's cfg package uses
// (struct tags + BindFlags + viper.Unmarshal with a decode hook).
package cfg

import (
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the fully resolved, validated configuration for one VexFS
// mount.
type Config struct {
	MountPoint ResolvedPath `yaml:"mount-point"`

	Storage StorageConfig `yaml:"storage"`

	FileSystem FileSystemConfig `yaml:"file-system"`

	BufferPool BufferPoolConfig `yaml:"buffer-pool"`

	StackBudget StackBudgetConfig `yaml:"stack-budget"`

	Control ControlConfig `yaml:"control"`

	WorkerPool WorkerPoolConfig `yaml:"worker-pool"`

	Logging LoggingConfig `yaml:"logging"`

	Debug DebugConfig `yaml:"debug"`
}

type StorageConfig struct {
	// BackingPath is the file backing the block storage abstraction
	// (SPEC_FULL.md §6.3). Empty means an in-memory-only mount (useful for
	// tests); no fsync durability is offered in that mode.
	BackingPath ResolvedPath `yaml:"backing-path"`

	// BlockSize must be a power of two between 512 and 65536.
	BlockSize int `yaml:"block-size"`

	// CapacityBlocks sizes the backing file at mount time.
	CapacityBlocks int64 `yaml:"capacity-blocks"`
}

type FileSystemConfig struct {
	Uid uint32 `yaml:"uid"`
	Gid uint32 `yaml:"gid"`

	FileMode Octal `yaml:"file-mode"`
	DirMode  Octal `yaml:"dir-mode"`

	// ImplicitDirectories mirrors gcsfuse's knob of the same name: whether a
	// directory that has children but no explicit binding of its own should
	// still be visible (kept here even though VexFS's tree is authoritative
	// in-memory, for parity with the teacher's naming and for the case
	// where a restored snapshot has orphaned intermediate names).
	ImplicitDirectories bool `yaml:"implicit-directories"`

	// AttributeTTL is the TTL handed back on LookUp (§6.1 default 1s).
	AttributeTTL time.Duration `yaml:"attribute-ttl"`

	// MaxEmbeddingDimension bounds vector_insert's dim (§8 boundary: >8192
	// is InvalidArg).
	MaxEmbeddingDimension int `yaml:"max-embedding-dimension"`
}

type BufferPoolConfig struct {
	SmallCount  int `yaml:"small-count"`  // 1 KiB buffers
	MediumCount int `yaml:"medium-count"` // 4 KiB buffers
	LargeCount  int `yaml:"large-count"`  // 16 KiB buffers

	// MaxClassMultiplier bounds how many times a class may double under
	// sustained miss pressure (SPEC_FULL.md §4.1 Policy).
	MaxClassMultiplier int `yaml:"max-class-multiplier"`
}

type StackBudgetConfig struct {
	// CeilingBytes is the hard per-upcall stack ceiling (default 4096).
	CeilingBytes int `yaml:"ceiling-bytes"`

	// WarningPercent is the fraction of CeilingBytes at which SBM emits a
	// diagnostic and increments a counter without aborting (default 75).
	WarningPercent int `yaml:"warning-percent"`
}

type ControlConfig struct {
	Transport ControlTransport `yaml:"transport"`

	// SideChannelPath is the Unix domain socket path used when Transport is
	// side-channel or both.
	SideChannelPath ResolvedPath `yaml:"side-channel-path"`

	// VectorSuffix/GraphSuffix/SemanticSuffix are the path-overlay suffixes
	// from SPEC_FULL.md §6.2 (".vec", ".graph", ".sem" by default).
	VectorSuffix   string `yaml:"vector-suffix"`
	GraphSuffix    string `yaml:"graph-suffix"`
	SemanticSuffix string `yaml:"semantic-suffix"`
}

type WorkerPoolConfig struct {
	PriorityWorkers uint32 `yaml:"priority-workers"`
	NormalWorkers   uint32 `yaml:"normal-workers"`
}

type LoggingConfig struct {
	Severity LogSeverity `yaml:"severity"`
	Format   LogFormat   `yaml:"format"`
	FilePath ResolvedPath `yaml:"file-path"`

	MaxFileSizeMB   int  `yaml:"max-file-size-mb"`
	BackupFileCount int  `yaml:"backup-file-count"`
	Compress        bool `yaml:"compress"`
}

type DebugConfig struct {
	ExitOnInvariantViolation bool `yaml:"exit-on-invariant-violation"`
	LogMutex                 bool `yaml:"log-mutex"`
}

// BindFlags registers every Config field as a pflag and binds it into
// viper under the matching dotted key, the same two-step dance gcsfuse's
// generated cfg.BindFlags performs.
func BindFlags(flagSet *pflag.FlagSet) error {
	bind := func(key string, bindErr *error) {
		if *bindErr != nil {
			return
		}
		*bindErr = viper.BindPFlag(key, flagSet.Lookup(key))
	}

	flagSet.String("storage.backing-path", "", "File backing the block storage abstraction; empty for in-memory only.")
	flagSet.Int("storage.block-size", 4096, "Block size in bytes; power of two in [512, 65536].")
	flagSet.Int64("storage.capacity-blocks", 1<<20, "Number of blocks to size the backing store to.")

	flagSet.Uint32("file-system.uid", 0, "UID owner of all inodes.")
	flagSet.Uint32("file-system.gid", 0, "GID owner of all inodes.")
	flagSet.Int("file-system.file-mode", 0644, "Permission bits for files, in octal.")
	flagSet.Int("file-system.dir-mode", 0755, "Permission bits for directories, in octal.")
	flagSet.Bool("file-system.implicit-directories", false, "Treat directories with children but no binding as present.")
	flagSet.Duration("file-system.attribute-ttl", time.Second, "TTL returned on lookup/getattr replies.")
	flagSet.Int("file-system.max-embedding-dimension", 8192, "Maximum accepted vector dimension.")

	flagSet.Int("buffer-pool.small-count", 128, "Number of pre-allocated 1 KiB buffers.")
	flagSet.Int("buffer-pool.medium-count", 64, "Number of pre-allocated 4 KiB buffers.")
	flagSet.Int("buffer-pool.large-count", 32, "Number of pre-allocated 16 KiB buffers.")
	flagSet.Int("buffer-pool.max-class-multiplier", 8, "Maximum factor a buffer class may grow under sustained miss pressure.")

	flagSet.Int("stack-budget.ceiling-bytes", 4096, "Hard per-upcall stack ceiling in bytes.")
	flagSet.Int("stack-budget.warning-percent", 75, "Percent of the ceiling at which a warning is emitted.")

	flagSet.String("control.transport", "both", "Control-plane transport: path-overlay, side-channel, or both.")
	flagSet.String("control.side-channel-path", "", "Unix domain socket path for the control-plane side channel.")
	flagSet.String("control.vector-suffix", ".vec", "Path-overlay suffix for vector control requests.")
	flagSet.String("control.graph-suffix", ".graph", "Path-overlay suffix for graph control requests.")
	flagSet.String("control.semantic-suffix", ".sem", "Path-overlay suffix for semantic-query control requests.")

	flagSet.Uint32("worker-pool.priority-workers", 8, "Workers dedicated to vector/graph control requests.")
	flagSet.Uint32("worker-pool.normal-workers", 56, "Workers dedicated to plain POSIX upcalls.")

	flagSet.String("logging.severity", "INFO", "Log severity: TRACE, DEBUG, INFO, WARNING, ERROR, OFF.")
	flagSet.String("logging.format", "text", "Log format: text or json.")
	flagSet.String("logging.file-path", "", "Log file path; empty logs to stderr.")
	flagSet.Int("logging.max-file-size-mb", 512, "Log file rotation size in MB.")
	flagSet.Int("logging.backup-file-count", 5, "Number of rotated log files to retain.")
	flagSet.Bool("logging.compress", false, "Compress rotated log files.")

	flagSet.Bool("debug.exit-on-invariant-violation", false, "Exit the process when an internal invariant is violated.")
	flagSet.Bool("debug.log-mutex", false, "Log when a mutex is held longer than expected.")

	var err error
	for _, key := range []string{
		"storage.backing-path", "storage.block-size", "storage.capacity-blocks",
		"file-system.uid", "file-system.gid", "file-system.file-mode", "file-system.dir-mode",
		"file-system.implicit-directories", "file-system.attribute-ttl", "file-system.max-embedding-dimension",
		"buffer-pool.small-count", "buffer-pool.medium-count", "buffer-pool.large-count", "buffer-pool.max-class-multiplier",
		"stack-budget.ceiling-bytes", "stack-budget.warning-percent",
		"control.transport", "control.side-channel-path", "control.vector-suffix", "control.graph-suffix", "control.semantic-suffix",
		"worker-pool.priority-workers", "worker-pool.normal-workers",
		"logging.severity", "logging.format", "logging.file-path", "logging.max-file-size-mb", "logging.backup-file-count", "logging.compress",
		"debug.exit-on-invariant-violation", "debug.log-mutex",
	} {
		bind(key, &err)
	}
	return err
}
