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
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vexfs/vexfs/cfg"
)

func TestFuseMountConfigSetsIdentity(t *testing.T) {
	c := cfg.GetDefaultConfig()
	mountCfg := fuseMountConfig(fsName("/mnt/vexfs"), &c)

	assert.Equal(t, "vexfs:/mnt/vexfs", mountCfg.FSName)
	assert.Equal(t, "vexfs", mountCfg.Subtype)
	assert.Equal(t, "vexfs", mountCfg.VolumeName)
	assert.True(t, mountCfg.EnableParallelDirOps)
}

func TestFuseMountConfigLoggerWiring(t *testing.T) {
	tests := []struct {
		name      string
		severity  cfg.LogSeverity
		wantError bool
		wantDebug bool
	}{
		{name: "off disables both", severity: cfg.OffLogSeverity, wantError: false, wantDebug: false},
		{name: "error enables error logger only", severity: cfg.ErrorLogSeverity, wantError: true, wantDebug: false},
		{name: "info enables error logger only", severity: cfg.InfoLogSeverity, wantError: true, wantDebug: false},
		{name: "trace enables both loggers", severity: cfg.TraceLogSeverity, wantError: true, wantDebug: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := cfg.GetDefaultConfig()
			c.Logging.Severity = tc.severity
			mountCfg := fuseMountConfig("vexfs:/mnt/vexfs", &c)

			if tc.wantError {
				assert.NotNil(t, mountCfg.ErrorLogger)
			} else {
				assert.Nil(t, mountCfg.ErrorLogger)
			}
			if tc.wantDebug {
				assert.NotNil(t, mountCfg.DebugLogger)
			} else {
				assert.Nil(t, mountCfg.DebugLogger)
			}
		})
	}
}

func TestFsNameIncludesMountPoint(t *testing.T) {
	assert.Equal(t, "vexfs:/data/vol1", fsName("/data/vol1"))
}

func TestExitCodeOfExtractsCarriedCode(t *testing.T) {
	err := &exitCoded{code: 3, err: fmt.Errorf("mount failed")}
	assert.Equal(t, 3, exitCodeOf(err))
}

func TestExitCodeOfWrappedExitCoded(t *testing.T) {
	inner := &exitCoded{code: 3, err: fmt.Errorf("mount failed")}
	wrapped := fmt.Errorf("buildVolume: %w", inner)
	assert.Equal(t, 3, exitCodeOf(wrapped))
}

func TestExitCodeOfDefaultsToBackingStoreFailure(t *testing.T) {
	assert.Equal(t, 2, exitCodeOf(errors.New("opening backing store: permission denied")))
}

func TestBuildVolumeRejectsSideChannelTransportWithoutPath(t *testing.T) {
	c := cfg.GetDefaultConfig()
	c.Control.Transport = cfg.ControlTransportSideChannel
	c.Control.SideChannelPath = ""

	_, err := buildVolume(&c, "/mnt/vexfs")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "side-channel-path")
}
