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
	"encoding/binary"
	"io"
	"math"

	"github.com/fxamacker/cbor/v2"

	"github.com/vexfs/vexfs/internal/vexerrors"
)

// maxFrameBytes bounds a single CBOR frame so a corrupt or hostile length
// prefix can't make the side channel allocate without limit.
const maxFrameBytes = 64 << 20

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic("control: building canonical CBOR encode mode: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("control: building CBOR decode mode: " + err.Error())
	}
}

// EncodeRequest/DecodeRequest/EncodeResponse/DecodeResponse use canonical
// CBOR (deterministic map key ordering) so the same Request always hashes
// and logs the same way, the property gcsfuse's own JSON logging relies on
// for structured log lines.

func EncodeRequest(r Request) ([]byte, error) {
	return encMode.Marshal(r)
}

func DecodeRequest(b []byte) (Request, error) {
	var r Request
	if err := decMode.Unmarshal(b, &r); err != nil {
		return Request{}, vexerrors.Wrap(vexerrors.InvalidArg, err, "control: decoding request")
	}
	return r, nil
}

func EncodeResponse(r Response) ([]byte, error) {
	return encMode.Marshal(r)
}

func DecodeResponse(b []byte) (Response, error) {
	var r Response
	if err := decMode.Unmarshal(b, &r); err != nil {
		return Response{}, vexerrors.Wrap(vexerrors.InvalidArg, err, "control: decoding response")
	}
	return r, nil
}

// writeFrame writes a big-endian uint32 length prefix followed by payload,
// the framing sidechannel.go's matchlock-style connection loop expects.
func writeFrame(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return vexerrors.Wrap(vexerrors.Conflict, err, "control: writing frame length")
	}
	if _, err := w.Write(payload); err != nil {
		return vexerrors.Wrap(vexerrors.Conflict, err, "control: writing frame payload")
	}
	return nil
}

// EncodeFloat32 and DecodeFloat32 convert between a []float32 vector and
// the little-endian byte payload the Request/Response Bytes/Query/Embedding
// fields carry on the wire, keeping CBOR frames free of per-element array
// overhead for what are often high-dimensional vectors.
func EncodeFloat32(v []float32) []byte {
	out := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*4:i*4+4], math.Float32bits(f))
	}
	return out
}

func DecodeFloat32(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4 : i*4+4]))
	}
	return out
}

// readFrame reads one length-prefixed CBOR frame.
func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameBytes {
		return nil, vexerrors.New(vexerrors.InvalidArg, "control: frame of %d bytes exceeds max %d", n, maxFrameBytes)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
