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

package cfg

import "runtime"

// DefaultWorkerTotal returns a total worker count scaled to the host's CPU
// count: eight per CPU, and never fewer than 16. It does not split that
// total between the priority and normal lanes.
func DefaultWorkerTotal() uint32 {
	n := runtime.NumCPU() * 8
	if n < 16 {
		n = 16
	}
	return uint32(n)
}

// IsSideChannelEnabled reports whether the configured transport includes the
// Unix domain socket side channel, alongside (or instead of) the path-overlay
// convention. Under transport "both" the socket is only opened when
// control.side-channel-path is set.
func IsSideChannelEnabled(c *Config) bool {
	return c.Control.Transport == ControlTransportSideChannel || c.Control.Transport == ControlTransportBoth
}

// IsPathOverlayEnabled reports whether vector/graph control requests should
// be recognized by suffix on ordinary file paths.
func IsPathOverlayEnabled(c *Config) bool {
	return c.Control.Transport == ControlTransportPathOverlay || c.Control.Transport == ControlTransportBoth
}

// IsDurable reports whether the block storage abstraction has a backing
// file on disk, as opposed to running purely in memory.
func IsDurable(c *Config) bool {
	return string(c.Storage.BackingPath) != ""
}
