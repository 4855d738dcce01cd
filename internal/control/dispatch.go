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

	"github.com/jacobsa/timeutil"

	"github.com/vexfs/vexfs/internal/bridge"
	"github.com/vexfs/vexfs/internal/objectgraph"
	"github.com/vexfs/vexfs/internal/vdk"
	"github.com/vexfs/vexfs/internal/vexerrors"
)

// Dispatcher is the single entry point both transports (path-overlay,
// side-channel) funnel requests through, so a VectorInsert means the same
// thing regardless of how it arrived, the same separation gcsproxy keeps
// between ListingProxy's HTTP shape and its underlying cache logic.
type Dispatcher struct {
	bridge *bridge.Bridge
	clk    timeutil.Clock
}

func NewDispatcher(b *bridge.Bridge, clk timeutil.Clock) *Dispatcher {
	return &Dispatcher{bridge: b, clk: clk}
}

// Dispatch decodes req.Kind, calls the matching Bridge method, and always
// returns a Response — errors are carried in the envelope, not as a Go
// error, so side-channel callers get a structured reply even on failure.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Response {
	start := d.clk.Now()
	resp, err := d.route(ctx, req)
	resp.LatencyMicros = d.clk.Now().Sub(start).Microseconds()
	if err != nil {
		resp.Status = StatusError
		resp.ErrorKind = vexerrors.KindOf(err).String()
		resp.ErrorMessage = err.Error()
		return resp
	}
	resp.Status = StatusOK
	return resp
}

func (d *Dispatcher) route(ctx context.Context, req Request) (Response, error) {
	switch req.Kind {
	case KindVectorInsert:
		return d.vectorInsert(ctx, req)
	case KindVectorSearch:
		return d.vectorSearch(ctx, req)
	case KindEdgeAdd:
		return d.edgeAdd(ctx, req)
	case KindEdgeRemove:
		return d.edgeRemove(ctx, req)
	case KindTraverse:
		return d.traverse(ctx, req)
	case KindSnapshot:
		return d.snapshot(ctx, req)
	case KindRestoreSnapshot:
		return d.restoreSnapshot(ctx, req)
	case KindDeleteSnapshot:
		return d.deleteSnapshot(ctx, req)
	default:
		return Response{}, vexerrors.New(vexerrors.InvalidArg, "control: unknown request kind %d", req.Kind)
	}
}

func (d *Dispatcher) vectorInsert(ctx context.Context, req Request) (Response, error) {
	vec := DecodeFloat32(req.Bytes)
	id, err := d.bridge.VectorInsert(ctx, objectgraph.InodeID(req.Inode), vec)
	if err != nil {
		return Response{}, err
	}
	idBytes, _ := id.MarshalBinary()
	return Response{EmbeddingID: idBytes}, nil
}

func (d *Dispatcher) vectorSearch(ctx context.Context, req Request) (Response, error) {
	metric, err := parseMetric(req.Metric)
	if err != nil {
		return Response{}, err
	}
	var scope *objectgraph.InodeID
	if req.Scope != nil {
		s := objectgraph.InodeID(*req.Scope)
		scope = &s
	}
	query := DecodeFloat32(req.Query)
	results, err := d.bridge.VectorSearch(ctx, scope, query, req.K, metric)
	if err != nil {
		return Response{}, err
	}
	wire := make([]WireSearchResult, len(results))
	for i, r := range results {
		idBytes, _ := r.EmbeddingID.MarshalBinary()
		wire[i] = WireSearchResult{Inode: uint64(r.Inode), EmbeddingID: idBytes, Distance: r.Distance}
	}
	return Response{Results: wire}, nil
}

func (d *Dispatcher) edgeAdd(ctx context.Context, req Request) (Response, error) {
	label := objectgraph.EdgeLabel(req.Label)
	props := make(map[string]objectgraph.EdgeProperty, len(req.Props))
	for k, v := range req.Props {
		props[k] = fromWireProperty(v)
	}
	id, err := d.bridge.EdgeAdd(ctx, objectgraph.InodeID(req.Src), objectgraph.InodeID(req.Dst), label, req.Weight, props)
	if err != nil {
		return Response{}, err
	}
	return Response{NewEdgeID: uint64(id)}, nil
}

func (d *Dispatcher) edgeRemove(ctx context.Context, req Request) (Response, error) {
	if err := d.bridge.EdgeRemove(ctx, objectgraph.EdgeID(req.EdgeID)); err != nil {
		return Response{}, err
	}
	return Response{}, nil
}

func (d *Dispatcher) traverse(ctx context.Context, req Request) (Response, error) {
	algo, err := parseAlgorithm(req.Algo)
	if err != nil {
		return Response{}, err
	}

	opts := objectgraph.TraversalOptions{
		MaxDepth: req.MaxDepth,
		MinWeight: req.MinW,
		End:      objectgraph.InodeID(req.End),
	}
	if len(req.Labels) > 0 {
		opts.LabelFilter = make(map[objectgraph.EdgeLabel]bool, len(req.Labels))
		for _, l := range req.Labels {
			opts.LabelFilter[objectgraph.EdgeLabel(l)] = true
		}
	}
	if len(req.Kinds) > 0 {
		opts.KindFilter = make(map[objectgraph.Kind]bool, len(req.Kinds))
		for _, k := range req.Kinds {
			kind, err := parseKind(k)
			if err != nil {
				return Response{}, err
			}
			opts.KindFilter[kind] = true
		}
	}

	result, err := d.bridge.Traverse(ctx, algo, objectgraph.InodeID(req.Start), opts)
	if err != nil {
		return Response{}, err
	}

	resp := Response{Visited: make([]uint64, len(result.Visited))}
	for i, id := range result.Visited {
		resp.Visited[i] = uint64(id)
	}
	if result.Distances != nil {
		resp.Distances = make(map[uint64]float64, len(result.Distances))
		for id, dist := range result.Distances {
			resp.Distances[uint64(id)] = dist
		}
	}
	if result.Path != nil {
		resp.Path = make([]uint64, len(result.Path))
		for i, id := range result.Path {
			resp.Path[i] = uint64(id)
		}
	}
	return resp, nil
}

func (d *Dispatcher) snapshot(ctx context.Context, req Request) (Response, error) {
	snap, err := d.bridge.Snapshot(ctx, objectgraph.InodeID(req.Root), req.Name)
	if err != nil {
		return Response{}, err
	}
	return Response{Version: snap.Version}, nil
}

func (d *Dispatcher) restoreSnapshot(ctx context.Context, req Request) (Response, error) {
	if err := d.bridge.RestoreSnapshot(ctx, req.Name); err != nil {
		return Response{}, err
	}
	return Response{}, nil
}

func (d *Dispatcher) deleteSnapshot(ctx context.Context, req Request) (Response, error) {
	if err := d.bridge.DeleteSnapshot(ctx, req.Name); err != nil {
		return Response{}, err
	}
	return Response{}, nil
}

func parseMetric(s string) (vdk.Metric, error) {
	switch s {
	case "euclidean", "":
		return vdk.Euclidean, nil
	case "cosine":
		return vdk.Cosine, nil
	case "dot":
		return vdk.Dot, nil
	default:
		return 0, vexerrors.New(vexerrors.InvalidArg, "control: unknown metric %q", s)
	}
}

func parseAlgorithm(s string) (objectgraph.Algorithm, error) {
	switch s {
	case "bfs", "":
		return objectgraph.BFS, nil
	case "dfs":
		return objectgraph.DFS, nil
	case "dijkstra":
		return objectgraph.Dijkstra, nil
	case "toposort":
		return objectgraph.TopoSort, nil
	default:
		return 0, vexerrors.New(vexerrors.InvalidArg, "control: unknown traversal algorithm %q", s)
	}
}

func parseKind(s string) (objectgraph.Kind, error) {
	switch s {
	case "file":
		return objectgraph.KindFile, nil
	case "dir":
		return objectgraph.KindDir, nil
	default:
		return 0, vexerrors.New(vexerrors.InvalidArg, "control: unknown inode kind %q", s)
	}
}
