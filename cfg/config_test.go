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

import (
	"testing"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindFlagsThenUnmarshalProducesDefaults(t *testing.T) {
	viper.Reset()
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	require.NoError(t, BindFlags(flagSet))
	require.NoError(t, flagSet.Parse(nil))

	var got Config
	require.NoError(t, viper.Unmarshal(&got, viper.DecodeHook(DecodeHook()), func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "yaml"
	}))

	assert.Equal(t, Octal(0644), got.FileSystem.FileMode)
	assert.Equal(t, Octal(0755), got.FileSystem.DirMode)
	assert.Equal(t, 4096, got.Storage.BlockSize)
	assert.Equal(t, ControlTransportBoth, got.Control.Transport)
	assert.Equal(t, ".vec", got.Control.VectorSuffix)
}

func TestBindFlagsHonorsOverride(t *testing.T) {
	viper.Reset()
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	require.NoError(t, BindFlags(flagSet))
	require.NoError(t, flagSet.Parse([]string{
		"--storage.block-size=8192",
		"--control.transport=side-channel",
		"--control.side-channel-path=/tmp/vexfs.sock",
	}))

	var got Config
	require.NoError(t, viper.Unmarshal(&got, viper.DecodeHook(DecodeHook()), func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "yaml"
	}))

	assert.Equal(t, 8192, got.Storage.BlockSize)
	assert.Equal(t, ControlTransportSideChannel, got.Control.Transport)
	assert.Equal(t, ResolvedPath("/tmp/vexfs.sock"), got.Control.SideChannelPath)
}

func TestValidateConfigDefaultConfigIsValid(t *testing.T) {
	c := GetDefaultConfig()
	assert.NoError(t, ValidateConfig(&c))
}

func TestValidateConfigRejectsNonPowerOfTwoBlockSize(t *testing.T) {
	c := GetDefaultConfig()
	c.Storage.BlockSize = 4097
	assert.ErrorContains(t, ValidateConfig(&c), "block-size")
}

func TestValidateConfigRejectsMissingSideChannelPath(t *testing.T) {
	c := GetDefaultConfig()
	c.Control.Transport = ControlTransportSideChannel
	c.Control.SideChannelPath = ""
	assert.ErrorContains(t, ValidateConfig(&c), "side-channel-path")
}

func TestValidateConfigRejectsZeroWorkers(t *testing.T) {
	c := GetDefaultConfig()
	c.WorkerPool.PriorityWorkers = 0
	c.WorkerPool.NormalWorkers = 0
	assert.ErrorContains(t, ValidateConfig(&c), "worker-pool")
}

func TestIsSideChannelAndPathOverlayEnabled(t *testing.T) {
	c := GetDefaultConfig()
	assert.True(t, IsSideChannelEnabled(&c))
	assert.True(t, IsPathOverlayEnabled(&c))

	c.Control.Transport = ControlTransportPathOverlay
	assert.False(t, IsSideChannelEnabled(&c))
	assert.True(t, IsPathOverlayEnabled(&c))
}

func TestIsDurable(t *testing.T) {
	c := GetDefaultConfig()
	assert.False(t, IsDurable(&c))
	c.Storage.BackingPath = "/var/vexfs/store.img"
	assert.True(t, IsDurable(&c))
}
