// Copyright 2025 Blink Labs Software
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

package types_test

import (
	"bytes"
	"database/sql"
	"database/sql/driver"
	"math"
	"testing"

	"github.com/blinklabs-io/tally/database/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUint64ScanValue(t *testing.T) {
	for _, orig := range []types.Uint64{0, 123, math.MaxUint64} {
		var valuer driver.Valuer = orig
		valueOut, err := valuer.Value()
		require.NoError(t, err)
		require.IsType(t, "", valueOut)
		var tmp types.Uint64
		var scanner sql.Scanner = &tmp
		require.NoError(t, scanner.Scan(valueOut))
		assert.Equal(t, orig, tmp)
	}
}

func TestUint64ScanDriverTypes(t *testing.T) {
	var tmp types.Uint64
	require.NoError(t, tmp.Scan([]byte("42")))
	assert.Equal(t, types.Uint64(42), tmp)
	require.NoError(t, tmp.Scan(int64(7)))
	assert.Equal(t, types.Uint64(7), tmp)
	require.Error(t, tmp.Scan(int64(-1)))
	require.Error(t, tmp.Scan(1.5))
	require.Error(t, tmp.Scan("not-a-number"))
}

func TestEventBlobKey(t *testing.T) {
	key := types.EventBlobKey(258)
	assert.Equal(
		t,
		[]byte{'e', 'v', 't', 0, 0, 0, 0, 0, 0, 1, 2},
		key,
	)
	seq, ok := types.EventSeqFromBlobKey(key)
	require.True(t, ok)
	assert.Equal(t, uint64(258), seq)
	_, ok = types.EventSeqFromBlobKey([]byte(types.EventSeqBlobKey))
	assert.False(t, ok)
}

func TestCommitTimestampEncoding(t *testing.T) {
	val := types.EncodeCommitTimestamp(1_700_000_000_123)
	require.Len(t, val, 8)
	ts, err := types.DecodeCommitTimestamp(val)
	require.NoError(t, err)
	assert.Equal(t, int64(1_700_000_000_123), ts)

	_, err = types.DecodeCommitTimestamp([]byte{1, 2, 3})
	assert.ErrorIs(t, err, types.ErrInvalidBlobValue)
}

func TestEncodeUint64Ordering(t *testing.T) {
	a := types.EncodeUint64(255)
	b := types.EncodeUint64(256)
	assert.Negative(t, bytes.Compare(a, b))
}
