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

// VexFS mounts a POSIX namespace augmented with vector and graph
// primitives (SPEC_FULL.md §6.5).
//
// Usage:
//
//	vexfs [flags] mount-point
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/vexfs/vexfs/cmd"
)

func main() {
	crash := cmd.NewCrashWriter(crashLogPath())
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(crash, "panic: %v\n%s\n", r, debug.Stack())
			panic(r)
		}
	}()

	cmd.Execute(cmd.Run)
}

func crashLogPath() string {
	if p := os.Getenv("VEXFS_CRASH_LOG"); p != "" {
		return p
	}
	return filepath.Join(os.TempDir(), "vexfs-crash.log")
}
