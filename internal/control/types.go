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

// Package control implements the vector/graph/semantic control plane:
// the CBOR request/response envelopes and the two transports SPEC_FULL.md
// §6.2 names for them, path-overlay (handled by internal/upcall) and
// side-channel (sidechannel.go). Both transports funnel into the same
// Dispatcher so a request means the same thing regardless of how it
// arrived, mirroring gcsproxy's separation of wire shape from serving
// logic.
package control

import (
	"github.com/vexfs/vexfs/internal/objectgraph"
)

// Kind identifies a control-plane request, §6.2's closed request-kind set.
type Kind uint8

const (
	KindVectorInsert Kind = iota
	KindVectorSearch
	KindEdgeAdd
	KindEdgeRemove
	KindTraverse
	KindSnapshot
	KindRestoreSnapshot
	KindDeleteSnapshot
)

func (k Kind) String() string {
	switch k {
	case KindVectorInsert:
		return "VectorInsert"
	case KindVectorSearch:
		return "VectorSearch"
	case KindEdgeAdd:
		return "EdgeAdd"
	case KindEdgeRemove:
		return "EdgeRemove"
	case KindTraverse:
		return "Traverse"
	case KindSnapshot:
		return "Snapshot"
	case KindRestoreSnapshot:
		return "RestoreSnapshot"
	case KindDeleteSnapshot:
		return "DeleteSnapshot"
	default:
		return "Unknown"
	}
}

// WireProperty is EdgeProperty's CBOR-friendly shape: objectgraph.EdgeProperty
// is a tagged union with unexported discriminant plumbing the way gcsfuse's
// own internal types are kept unexported behind constructors, so the wire
// envelope carries its own flat, fully-exported mirror instead of asking
// callers to reach into objectgraph's internals.
type WireProperty struct {
	Kind string  `cbor:"kind"`
	Str  string  `cbor:"str,omitempty"`
	Int  int64   `cbor:"int,omitempty"`
	Flt  float64 `cbor:"flt,omitempty"`
	Bool bool    `cbor:"bool,omitempty"`
}

func toWireProperty(p objectgraph.EdgeProperty) WireProperty {
	switch p.Kind {
	case objectgraph.PropertyString:
		return WireProperty{Kind: "string", Str: p.Str}
	case objectgraph.PropertyInt64:
		return WireProperty{Kind: "int64", Int: p.Int}
	case objectgraph.PropertyFloat64:
		return WireProperty{Kind: "float64", Flt: p.Flt}
	case objectgraph.PropertyBool:
		return WireProperty{Kind: "bool", Bool: p.Bool}
	default:
		return WireProperty{}
	}
}

func fromWireProperty(w WireProperty) objectgraph.EdgeProperty {
	switch w.Kind {
	case "string":
		return objectgraph.StringProperty(w.Str)
	case "int64":
		return objectgraph.Int64Property(w.Int)
	case "float64":
		return objectgraph.Float64Property(w.Flt)
	case "bool":
		return objectgraph.BoolProperty(w.Bool)
	default:
		return objectgraph.EdgeProperty{}
	}
}

// Request is the single envelope every control-plane op is carried in,
// fields populated according to Kind. Only one metric/algo/filter set makes
// sense per Kind; unused fields are left zero and omitted on the wire.
type Request struct {
	Kind Kind `cbor:"kind"`

	// VectorInsert
	Inode uint64 `cbor:"inode,omitempty"`
	Dim   int    `cbor:"dim,omitempty"`
	Bytes []byte `cbor:"bytes,omitempty"`

	// VectorSearch
	Scope  *uint64  `cbor:"scope,omitempty"`
	Query  []byte   `cbor:"query,omitempty"`
	K      int      `cbor:"k,omitempty"`
	Metric string   `cbor:"metric,omitempty"`
	Filter []string `cbor:"filter,omitempty"`

	// EdgeAdd
	Src    uint64                  `cbor:"src,omitempty"`
	Dst    uint64                  `cbor:"dst,omitempty"`
	Label  string                  `cbor:"label,omitempty"`
	Weight float64                 `cbor:"weight,omitempty"`
	Props  map[string]WireProperty `cbor:"props,omitempty"`

	// EdgeRemove
	EdgeID uint64 `cbor:"edge_id,omitempty"`

	// Traverse
	Start    uint64   `cbor:"start,omitempty"`
	Algo     string   `cbor:"algo,omitempty"`
	End      uint64   `cbor:"end,omitempty"`
	MaxDepth int      `cbor:"max_depth,omitempty"`
	Labels   []string `cbor:"labels,omitempty"`
	Kinds    []string `cbor:"kinds,omitempty"`
	MinW     float64  `cbor:"min_weight,omitempty"`

	// Snapshot / RestoreSnapshot / DeleteSnapshot
	Root uint64 `cbor:"root,omitempty"`
	Name string `cbor:"name,omitempty"`
}

// Status is the response's outcome discriminant, mapped onto vexerrors.Kind
// by the caller when Status != StatusOK.
type Status uint8

const (
	StatusOK Status = iota
	StatusError
)

// Response is the single envelope every control-plane reply is carried in.
// LatencyMicros is stamped from a jacobsa/timeutil.Clock by the Dispatcher,
// per SPEC_FULL.md §9's response-manager-inspired micro-timing field.
type Response struct {
	Status        Status `cbor:"status"`
	ErrorKind     string `cbor:"error_kind,omitempty"`
	ErrorMessage  string `cbor:"error_message,omitempty"`
	LatencyMicros int64  `cbor:"latency_micros"`

	// VectorInsert
	EmbeddingID []byte `cbor:"embedding_id,omitempty"`

	// VectorSearch
	Results []WireSearchResult `cbor:"results,omitempty"`

	// EdgeAdd
	NewEdgeID uint64 `cbor:"new_edge_id,omitempty"`

	// Traverse
	Visited   []uint64           `cbor:"visited,omitempty"`
	Distances map[uint64]float64 `cbor:"distances,omitempty"`
	Path      []uint64           `cbor:"path,omitempty"`

	// Snapshot
	Version uint64 `cbor:"version,omitempty"`
}

// WireSearchResult mirrors bridge.SearchResult for the wire.
type WireSearchResult struct {
	Inode       uint64  `cbor:"inode"`
	EmbeddingID []byte  `cbor:"embedding_id"`
	Distance    float32 `cbor:"distance"`
}
