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

package stackbudget

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpointUnderCeilingSucceeds(t *testing.T) {
	m := New(Config{CeilingBytes: 4096, WarningPercent: 75})
	guard := m.Checkpoint(context.Background(), "TestOp")
	require.NoError(t, guard.Close())
	assert.Equal(t, int64(0), m.ExceededCount())
}

func TestCheckpointOverCeilingReturnsResourceExhausted(t *testing.T) {
	m := New(Config{CeilingBytes: 1, WarningPercent: 75})
	guard := m.Checkpoint(context.Background(), "TestOp")

	// Force measurable stack growth below this checkpoint.
	var sink int
	var recurse func(n int) int
	recurse = func(n int) int {
		if n == 0 {
			return 0
		}
		var pad [256]byte
		sink += len(pad)
		return recurse(n-1) + sink
	}
	_ = recurse(64)

	err := guard.Close()
	require.Error(t, err)
	assert.Equal(t, int64(1), m.ExceededCount())
}

func TestCloseIsIdempotent(t *testing.T) {
	m := New(Config{CeilingBytes: 4096, WarningPercent: 75})
	guard := m.Checkpoint(context.Background(), "TestOp")
	require.NoError(t, guard.Close())
	require.NoError(t, guard.Close())
	assert.Equal(t, int64(0), m.ExceededCount())
}

func TestDefaultsAppliedWhenZero(t *testing.T) {
	m := New(Config{})
	assert.Equal(t, 4096, m.CeilingBytes())
}
