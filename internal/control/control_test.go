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
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/jacobsa/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vexfs/vexfs/internal/ann"
	"github.com/vexfs/vexfs/internal/bridge"
	"github.com/vexfs/vexfs/internal/objectgraph"
)

func newTestDispatcher() *Dispatcher {
	og := objectgraph.New(timeutil.RealClock())
	idx := ann.New()
	b := bridge.New(og, idx, timeutil.RealClock())
	return NewDispatcher(b, timeutil.RealClock())
}

func TestRequestResponseRoundTripsThroughCBOR(t *testing.T) {
	req := Request{Kind: KindVectorInsert, Inode: 4, Dim: 3, Bytes: EncodeFloat32([]float32{1, 0, 0})}
	enc, err := EncodeRequest(req)
	require.NoError(t, err)

	got, err := DecodeRequest(enc)
	require.NoError(t, err)
	assert.Equal(t, req.Kind, got.Kind)
	assert.Equal(t, req.Inode, got.Inode)
	assert.Equal(t, req.Bytes, got.Bytes)
}

func TestDispatchVectorInsertAndSearch(t *testing.T) {
	d := newTestDispatcher()
	ctx := context.Background()

	createResp := d.Dispatch(ctx, Request{Kind: KindVectorInsert, Inode: uint64(objectgraph.RootInodeID), Dim: 3, Bytes: EncodeFloat32([]float32{1, 0, 0})})
	require.Equal(t, StatusOK, createResp.Status)
	require.Len(t, createResp.EmbeddingID, 16)

	searchResp := d.Dispatch(ctx, Request{
		Kind:   KindVectorSearch,
		Query:  EncodeFloat32([]float32{1, 0, 0}),
		K:      1,
		Metric: "euclidean",
	})
	require.Equal(t, StatusOK, searchResp.Status)
	require.Len(t, searchResp.Results, 1)
	assert.Equal(t, uint64(objectgraph.RootInodeID), searchResp.Results[0].Inode)
}

func TestDispatchVectorInsertDimMismatchReturnsErrorEnvelope(t *testing.T) {
	d := newTestDispatcher()
	ctx := context.Background()

	root := uint64(objectgraph.RootInodeID)
	require.Equal(t, StatusOK, d.Dispatch(ctx, Request{Kind: KindVectorInsert, Inode: root, Bytes: EncodeFloat32([]float32{1, 0, 0})}).Status)

	resp := d.Dispatch(ctx, Request{Kind: KindVectorInsert, Inode: root, Bytes: EncodeFloat32([]float32{1, 0})})
	assert.Equal(t, StatusError, resp.Status)
	assert.Equal(t, "DimMismatch", resp.ErrorKind)
	assert.NotZero(t, resp.LatencyMicros >= 0)
}

func TestDispatchEdgeAddAndRemove(t *testing.T) {
	d := newTestDispatcher()
	ctx := context.Background()
	root := uint64(objectgraph.RootInodeID)

	addResp := d.Dispatch(ctx, Request{Kind: KindEdgeAdd, Src: root, Dst: root, Label: "references", Weight: 1.0})
	require.Equal(t, StatusOK, addResp.Status)
	require.NotZero(t, addResp.NewEdgeID)

	rmResp := d.Dispatch(ctx, Request{Kind: KindEdgeRemove, EdgeID: addResp.NewEdgeID})
	assert.Equal(t, StatusOK, rmResp.Status)
}

func TestDispatchUnknownKindReturnsErrorEnvelope(t *testing.T) {
	d := newTestDispatcher()
	resp := d.Dispatch(context.Background(), Request{Kind: Kind(200)})
	assert.Equal(t, StatusError, resp.Status)
	assert.Equal(t, "InvalidArg", resp.ErrorKind)
}

func TestSideChannelServerRoundTrip(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "control.sock")
	d := newTestDispatcher()
	srv := NewSideChannelServer(sockPath, d)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ctx) }()

	var conn net.Conn
	var err error
	for i := 0; i < 50; i++ {
		conn, err = net.Dial("unix", sockPath)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.NoError(t, err)
	defer conn.Close()

	req := Request{Kind: KindVectorInsert, Inode: uint64(objectgraph.RootInodeID), Bytes: EncodeFloat32([]float32{1, 2, 3})}
	payload, err := EncodeRequest(req)
	require.NoError(t, err)
	require.NoError(t, writeFrame(conn, payload))

	respBytes, err := readFrame(conn)
	require.NoError(t, err)
	resp, err := DecodeResponse(respBytes)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, resp.Status)
	assert.Len(t, resp.EmbeddingID, 16)

	cancel()
	require.NoError(t, srv.Close())
}
