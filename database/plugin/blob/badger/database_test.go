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

package badger

import (
	"testing"
	"time"

	"github.com/blinklabs-io/tally/database/plugin"
	"github.com/blinklabs-io/tally/database/types"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions(t *testing.T) {
	b := &BlobStoreBadger{}
	WithDataDir("/tmp/test")(b)
	WithBlockCacheSize(123456789)(b)
	WithIndexCacheSize(987654321)(b)
	WithGc(false)(b)
	assert.Equal(t, "/tmp/test", b.dataDir)
	assert.Equal(t, uint64(123456789), b.blockCacheSize)
	assert.Equal(t, uint64(987654321), b.indexCacheSize)
	assert.False(t, b.gcEnabled)
}

func TestParseCompression(t *testing.T) {
	testDefs := map[string]options.CompressionType{
		"snappy": options.Snappy,
		" ZSTD ": options.ZSTD,
		"none":   options.None,
		"":       options.None,
	}
	for name, expected := range testDefs {
		c, err := ParseCompression(name)
		require.NoError(t, err, name)
		assert.Equal(t, expected, c, name)
	}
	_, err := ParseCompression("lz4")
	assert.ErrorContains(t, err, "unknown compression type")
}

func TestNewFromCmdlineOptions(t *testing.T) {
	t.Cleanup(initCmdlineOptions)
	set := func(name string, value any) {
		require.NoError(t, plugin.SetPluginOption(plugin.PluginTypeBlob, "badger", name, value))
	}
	set("data-dir", "")
	set("gc", false)
	set("gc-interval", "90s")
	set("compression", "zstd")
	b, ok := NewFromCmdlineOptions().(*BlobStoreBadger)
	require.True(t, ok)
	assert.Empty(t, b.dataDir)
	assert.False(t, b.gcEnabled)
	assert.Equal(t, 90*time.Second, b.gcInterval)
	assert.Equal(t, options.ZSTD, b.compression)

	set("gc-interval", "0s")
	assert.IsType(t, &plugin.ErrorPlugin{}, NewFromCmdlineOptions())
	set("gc-interval", "1m")
	set("compression", "brotli")
	assert.IsType(t, &plugin.ErrorPlugin{}, NewFromCmdlineOptions())
}

func newTestStore(t *testing.T, opts ...BlobStoreBadgerOptionFunc) *BlobStoreBadger {
	t.Helper()
	store, err := New(opts...)
	require.NoError(t, err)
	require.NoError(t, store.Start())
	t.Cleanup(func() { store.Close() })
	return store
}

func TestInMemoryGetSetDelete(t *testing.T) {
	store := newTestStore(t, WithDataDir(""))

	txn := store.NewTransaction(true)
	require.NoError(t, store.Set(txn, []byte("k1"), []byte("v1")))
	require.NoError(t, txn.Commit())

	txn = store.NewTransaction(false)
	val, err := store.Get(txn, []byte("k1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), val)
	_, err = store.Get(txn, []byte("missing"))
	require.ErrorIs(t, err, types.ErrBlobKeyNotFound)
	require.NoError(t, txn.Rollback())

	txn = store.NewTransaction(true)
	require.NoError(t, store.Delete(txn, []byte("k1")))
	require.NoError(t, txn.Commit())

	txn = store.NewTransaction(false)
	defer txn.Rollback() //nolint:errcheck
	_, err = store.Get(txn, []byte("k1"))
	require.ErrorIs(t, err, types.ErrBlobKeyNotFound)
}

func TestRollbackDiscardsWrites(t *testing.T) {
	store := newTestStore(t)

	txn := store.NewTransaction(true)
	require.NoError(t, store.Set(txn, []byte("k"), []byte("v")))
	require.NoError(t, txn.Rollback())
	// Using a finished transaction is an error
	require.Error(t, store.Set(txn, []byte("k"), []byte("v")))

	txn = store.NewTransaction(false)
	defer txn.Rollback() //nolint:errcheck
	_, err := store.Get(txn, []byte("k"))
	require.ErrorIs(t, err, types.ErrBlobKeyNotFound)
}

func TestIteratorPrefix(t *testing.T) {
	store := newTestStore(t)

	txn := store.NewTransaction(true)
	for seq := uint64(1); seq <= 3; seq++ {
		require.NoError(t, store.Set(txn, types.EventBlobKey(seq), []byte{byte(seq)}))
	}
	require.NoError(t, store.Set(txn, []byte(types.EventSeqBlobKey), []byte{3}))
	require.NoError(t, txn.Commit())

	txn = store.NewTransaction(false)
	defer txn.Rollback() //nolint:errcheck
	prefix := []byte(types.EventBlobKeyPrefix)
	iter := store.NewIterator(txn, types.BlobIteratorOptions{Prefix: prefix})
	defer iter.Close()
	var seqs []uint64
	for iter.Seek(types.EventBlobKey(2)); iter.ValidForPrefix(prefix); iter.Next() {
		seq, ok := types.EventSeqFromBlobKey(iter.Item().Key())
		require.True(t, ok)
		seqs = append(seqs, seq)
	}
	require.NoError(t, iter.Err())
	assert.Equal(t, []uint64{2, 3}, seqs)
}

func TestIteratorWrongTxn(t *testing.T) {
	store := newTestStore(t)
	iter := store.NewIterator(nil, types.BlobIteratorOptions{})
	assert.False(t, iter.Valid())
	assert.ErrorIs(t, iter.Err(), types.ErrNilTxn)
}

func TestCommitTimestamp(t *testing.T) {
	store := newTestStore(t, WithPromRegistry(prometheus.NewRegistry()))

	_, err := store.GetCommitTimestamp()
	require.ErrorIs(t, err, types.ErrBlobKeyNotFound)

	txn := store.NewTransaction(true)
	require.NoError(t, store.SetCommitTimestamp(1700000000123, txn))
	require.NoError(t, txn.Commit())

	ts, err := store.GetCommitTimestamp()
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000123), ts)

	txn = store.NewTransaction(true)
	defer txn.Rollback() //nolint:errcheck
	require.Error(t, store.SetCommitTimestamp(-1, txn))
	require.ErrorIs(t, store.SetCommitTimestamp(1, nil), types.ErrNilTxn)
}

func TestPersistentStore(t *testing.T) {
	dir := t.TempDir()
	store, err := New(WithDataDir(dir), WithGc(false))
	require.NoError(t, err)
	require.NoError(t, store.Start())
	txn := store.NewTransaction(true)
	require.NoError(t, store.Set(txn, []byte("k"), []byte("v")))
	require.NoError(t, txn.Commit())
	require.NoError(t, store.Close())
	// Closing twice is safe
	require.NoError(t, store.Close())

	store = newTestStore(t, WithDataDir(dir), WithGc(false))
	txn = store.NewTransaction(false)
	defer txn.Rollback() //nolint:errcheck
	val, err := store.Get(txn, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), val)
}
