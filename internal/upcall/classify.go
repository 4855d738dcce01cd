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
	"strings"
	"sync"

	"github.com/vexfs/vexfs/cfg"
	"github.com/vexfs/vexfs/internal/objectgraph"
)

// Class is what a path's suffix says about how it should be served:
// ordinary POSIX content, or one of the control-plane overlays.
type Class int

const (
	ClassPlain Class = iota
	ClassVector
	ClassGraph
	ClassSemantic
)

// classifier decides a name's Class from its suffix and memoizes the
// result per inode, echoing inode.DirInode's dirTypeCacheTTL idiom of
// caching a classification alongside the inode rather than recomputing it
// on every lookup.
type classifier struct {
	vectorSuffix   string
	graphSuffix    string
	semanticSuffix string

	cache sync.Map // objectgraph.InodeID -> Class
}

func newClassifier(cfg cfg.ControlConfig) *classifier {
	return &classifier{
		vectorSuffix:   orDefault(cfg.VectorSuffix, ".vec"),
		graphSuffix:    orDefault(cfg.GraphSuffix, ".graph"),
		semanticSuffix: orDefault(cfg.SemanticSuffix, ".sem"),
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func (c *classifier) classifyName(name string) Class {
	switch {
	case strings.HasSuffix(name, c.vectorSuffix):
		return ClassVector
	case strings.HasSuffix(name, c.graphSuffix):
		return ClassGraph
	case strings.HasSuffix(name, c.semanticSuffix):
		return ClassSemantic
	default:
		return ClassPlain
	}
}

// classify memoizes classifyName per inode so a hot path re-lookup (e.g.
// repeated reads of the same open file handle) doesn't re-scan the name.
func (c *classifier) classify(inode objectgraph.InodeID, name string) Class {
	if v, ok := c.cache.Load(inode); ok {
		return v.(Class)
	}
	class := c.classifyName(name)
	c.cache.Store(inode, class)
	return class
}

// classifiedOrPlain returns the cached class for inode, or ClassPlain if
// the inode was never classified (e.g. WriteFile on a handle opened
// before the classifier cache was populated by a LookUp/Create).
func (c *classifier) classifiedOrPlain(inode objectgraph.InodeID) Class {
	if v, ok := c.cache.Load(inode); ok {
		return v.(Class)
	}
	return ClassPlain
}

func (c *classifier) forget(inode objectgraph.InodeID) {
	c.cache.Delete(inode)
}
