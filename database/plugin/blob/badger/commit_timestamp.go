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
	"fmt"

	"github.com/blinklabs-io/tally/database/types"
)

// GetCommitTimestamp reads the timestamp written with the last journal commit
func (b *BlobStoreBadger) GetCommitTimestamp() (int64, error) {
	txn := b.NewTransaction(false)
	defer txn.Rollback() //nolint:errcheck
	val, err := b.Get(txn, []byte(types.CommitTimestampBlobKey))
	if err != nil {
		return 0, err
	}
	ts, err := types.DecodeCommitTimestamp(val)
	if err != nil {
		return 0, fmt.Errorf("commit timestamp: %w", err)
	}
	return ts, nil
}

// SetCommitTimestamp records the timestamp inside the caller's transaction so
// it lands atomically with the journal writes
func (b *BlobStoreBadger) SetCommitTimestamp(timestamp int64, txn types.Txn) error {
	if txn == nil {
		return types.ErrNilTxn
	}
	if timestamp < 0 {
		return fmt.Errorf("negative commit timestamp: %d", timestamp)
	}
	return b.Set(
		txn,
		[]byte(types.CommitTimestampBlobKey),
		types.EncodeCommitTimestamp(timestamp),
	)
}
