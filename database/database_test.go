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

package database_test

import (
	"errors"
	"testing"

	"github.com/blinklabs-io/tally/database"
	"github.com/blinklabs-io/tally/database/models"
	"github.com/blinklabs-io/tally/database/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDatabase(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.New(&database.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testIdentity(b byte) []byte {
	ret := make([]byte, 32)
	ret[0] = b
	return ret
}

func TestTxnCommitWritesBothStores(t *testing.T) {
	db := newTestDatabase(t)
	txn := db.Transaction(true)
	err := txn.Do(func(txn *database.Txn) error {
		created, err := db.CreateUser(
			&models.User{Authority: testIdentity(1), BasePower: 10},
			txn,
		)
		if err != nil {
			return err
		}
		if !created {
			return errors.New("user not created")
		}
		_, err = db.AppendJournal([]byte(`{"type":"test"}`), txn)
		return err
	})
	require.NoError(t, err)

	user, err := db.GetUser(testIdentity(1), nil)
	require.NoError(t, err)
	assert.EqualValues(t, 10, user.BasePower)
	entries, err := db.JournalEntries(0, 0, nil)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, uint64(1), entries[0].Seq)

	// Both stores carry the same commit timestamp
	metaTs, err := db.Metadata().GetCommitTimestamp()
	require.NoError(t, err)
	blobTs, err := db.Blob().GetCommitTimestamp()
	require.NoError(t, err)
	assert.Positive(t, metaTs)
	assert.Equal(t, metaTs, blobTs)
}

func TestTxnDoRollsBackOnError(t *testing.T) {
	db := newTestDatabase(t)
	errTest := errors.New("test failure")
	err := db.Transaction(true).Do(func(txn *database.Txn) error {
		if _, err := db.CreateUser(
			&models.User{Authority: testIdentity(2), BasePower: 1},
			txn,
		); err != nil {
			return err
		}
		if _, err := db.AppendJournal([]byte("x"), txn); err != nil {
			return err
		}
		return errTest
	})
	require.ErrorIs(t, err, errTest)

	_, err = db.GetUser(testIdentity(2), nil)
	require.ErrorIs(t, err, models.ErrUserNotFound)
	seq, err := db.JournalSeq(nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), seq)
}

func TestJournalEntries(t *testing.T) {
	db := newTestDatabase(t)
	for i := range 5 {
		err := db.Transaction(true).Do(func(txn *database.Txn) error {
			seq, err := db.AppendJournal([]byte{byte(i)}, txn)
			if err != nil {
				return err
			}
			if seq != uint64(i+1) {
				return errors.New("unexpected sequence")
			}
			return nil
		})
		require.NoError(t, err)
	}
	entries, err := db.JournalEntries(2, 2, nil)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, uint64(3), entries[0].Seq)
	assert.Equal(t, []byte{2}, entries[0].Data)
	assert.Equal(t, uint64(4), entries[1].Seq)

	entries, err = db.JournalEntries(5, 10, nil)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = db.AppendJournal([]byte("x"), nil)
	require.Error(t, err)
}

func TestWriteWithoutTxnCommits(t *testing.T) {
	db := newTestDatabase(t)
	created, err := db.CreateGovernanceConfig(
		&models.GovernanceConfig{Admin: testIdentity(1)},
		nil,
	)
	require.NoError(t, err)
	require.True(t, created)
	cfg, err := db.GetGovernanceConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, testIdentity(1), cfg.Admin)
}

func TestCommitTimestampMismatch(t *testing.T) {
	dataDir := t.TempDir()
	db, err := database.New(&database.Config{DataDir: dataDir})
	require.NoError(t, err)
	require.NoError(t, db.SetGovernanceConfig(
		&models.GovernanceConfig{Admin: testIdentity(1)},
		nil,
	))
	// Simulate a metadata commit that the blob store never saw
	require.NoError(t, db.Metadata().SetCommitTimestamp(1, nil))
	require.NoError(t, db.Close())

	db, err = database.New(&database.Config{DataDir: dataDir})
	require.NotNil(t, db)
	defer db.Close()
	var tsErr database.CommitTimestampError
	require.ErrorAs(t, err, &tsErr)
	assert.Equal(t, int64(1), tsErr.MetadataTimestamp)
}

func TestUnknownPlugin(t *testing.T) {
	_, err := database.New(&database.Config{MetadataPlugin: "does-not-exist"})
	require.Error(t, err)
}

func TestTxnOnCommitHooks(t *testing.T) {
	db := newTestDatabase(t)
	var ran []int
	err := db.Transaction(true).Do(func(txn *database.Txn) error {
		txn.OnCommit(func() { ran = append(ran, 1) })
		txn.OnCommit(func() { ran = append(ran, 2) })
		assert.Empty(t, ran, "hooks wait for the commit")
		_, err := db.AppendJournal([]byte(`{}`), txn)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, ran)

	ran = nil
	err = db.Transaction(true).Do(func(txn *database.Txn) error {
		txn.OnCommit(func() { ran = append(ran, 3) })
		return errors.New("abort")
	})
	require.EqualError(t, err, "abort")
	assert.Empty(t, ran)

	txn := db.Transaction(false)
	txn.OnCommit(func() { ran = append(ran, 4) })
	require.NoError(t, txn.Commit())
	assert.Empty(t, ran, "read-only transactions never run hooks")
}

func TestJournalCommitFailureAfterMetadata(t *testing.T) {
	db := newTestDatabase(t)
	txn := db.Transaction(true)
	_, err := db.AppendJournal([]byte(`{}`), txn)
	require.NoError(t, err)

	// A concurrent journal write makes the pending journal commit conflict
	other := db.Blob().NewTransaction(true)
	require.NoError(t, db.Blob().Set(
		other,
		[]byte(types.EventSeqBlobKey),
		types.EncodeUint64(7),
	))
	require.NoError(t, other.Commit())

	hookRan := false
	txn.OnCommit(func() { hookRan = true })
	err = txn.Commit()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "journal commit failed after metadata commit")
	assert.False(t, hookRan)

	// Metadata is ahead and the journal holds nothing for the failed commit
	metaTs, err := db.Metadata().GetCommitTimestamp()
	require.NoError(t, err)
	assert.Positive(t, metaTs)
	_, err = db.Blob().GetCommitTimestamp()
	require.ErrorIs(t, err, types.ErrBlobKeyNotFound)
	entries, err := db.JournalEntries(0, 0, nil)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
