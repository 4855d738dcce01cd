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

// Package cmd is VexFS's process surface (SPEC_FULL.md §6.5): a single
// cobra command that resolves flags and an optional config file into a
// cfg.Config and hands it to a mount function, the same
// flags-then-viper-then-mountFn shape gcsfuse's root command uses.
package cmd

import (
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vexfs/vexfs/cfg"
)

// mountFunc performs the actual mount once flags, config file, and
// validation have all resolved cleanly. Exposed as a parameter of
// NewRootCmd (rather than called directly from RunE) so tests can swap in
// a fake that never touches a real kernel FUSE connection.
type mountFunc func(c *cfg.Config, mountPoint string) error

// NewRootCmd builds the "vexfs" command. Binding errors that BindFlags
// hits while registering flags are returned immediately rather than
// deferred to Execute, mirroring gcsfuse's own root command constructor.
func NewRootCmd(mount mountFunc) (*cobra.Command, error) {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "vexfs [flags] mount-point",
		Short: "Mount a VexFS volume: a POSIX tree augmented with vector and graph primitives",
		Long: `VexFS is a user-mode filesystem that augments a conventional POSIX
namespace with first-class vector embeddings and typed graph edges,
exposed through ordinary path operations plus an out-of-band control
plane for vector search and graph traversal.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfgFile != "" {
				viper.SetConfigFile(cfgFile)
				viper.SetConfigType("yaml")
				if err := viper.ReadInConfig(); err != nil {
					return fmt.Errorf("reading config file %q: %w", cfgFile, err)
				}
			}

			var c cfg.Config
			if err := viper.Unmarshal(&c, viper.DecodeHook(cfg.DecodeHook()), func(dc *mapstructure.DecoderConfig) {
				dc.TagName = "yaml"
			}); err != nil {
				return fmt.Errorf("unmarshalling config: %w", err)
			}
			if err := cfg.ValidateConfig(&c); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			return mount(&c, args[0])
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "Path to a YAML config file overriding defaults.")
	if err := cfg.BindFlags(cmd.PersistentFlags()); err != nil {
		return nil, fmt.Errorf("binding flags: %w", err)
	}

	return cmd, nil
}

// Execute runs the root command against os.Args, translating any
// returned error into the argument-error exit code (1) per SPEC_FULL.md
// §6.5. Failures surfaced from inside the mount function itself carry
// their own, more specific exit code and call os.Exit directly instead
// of returning, so reaching this path always means an argument or
// configuration error.
func Execute(mount mountFunc) {
	cmd, err := NewRootCmd(mount)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
