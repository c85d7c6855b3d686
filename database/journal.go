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

package database

import (
	"errors"
	"fmt"
	"math"

	"github.com/blinklabs-io/tally/database/types"
)

// JournalEntry is a single event stored in the journal
type JournalEntry struct {
	Seq  uint64
	Data []byte
}

// JournalSeq returns the sequence number of the last journal entry, or 0 if
// the journal is empty
func (d *Database) JournalSeq(txn *Txn) (uint64, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Release()
	}
	val, err := d.blob.Get(txn.Blob(), []byte(types.EventSeqBlobKey))
	if err != nil {
		if errors.Is(err, types.ErrBlobKeyNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("read journal sequence: %w", err)
	}
	seq, err := types.DecodeUint64(val)
	if err != nil {
		return 0, fmt.Errorf("read journal sequence: %w", err)
	}
	return seq, nil
}

// AppendJournal writes an entry at the next sequence number. The write only
// becomes visible when the transaction commits.
func (d *Database) AppendJournal(data []byte, txn *Txn) (uint64, error) {
	if txn == nil {
		return 0, types.ErrNilTxn
	}
	seq, err := d.JournalSeq(txn)
	if err != nil {
		return 0, err
	}
	seq++
	if err := d.blob.Set(txn.Blob(), types.EventBlobKey(seq), data); err != nil {
		return 0, fmt.Errorf("write journal entry: %w", err)
	}
	if err := d.blob.Set(
		txn.Blob(),
		[]byte(types.EventSeqBlobKey),
		types.EncodeUint64(seq),
	); err != nil {
		return 0, fmt.Errorf("write journal sequence: %w", err)
	}
	return seq, nil
}

// JournalEntries returns up to limit entries with a sequence number greater
// than after, in sequence order
func (d *Database) JournalEntries(
	after uint64,
	limit int,
	txn *Txn,
) ([]JournalEntry, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Release()
	}
	ret := []JournalEntry{}
	if after == math.MaxUint64 {
		return ret, nil
	}
	prefix := []byte(types.EventBlobKeyPrefix)
	iter := d.blob.NewIterator(
		txn.Blob(),
		types.BlobIteratorOptions{Prefix: prefix},
	)
	defer iter.Close()
	for iter.Seek(types.EventBlobKey(after + 1)); iter.ValidForPrefix(prefix); iter.Next() {
		if limit > 0 && len(ret) >= limit {
			break
		}
		item := iter.Item()
		seq, ok := types.EventSeqFromBlobKey(item.Key())
		if !ok {
			continue
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return nil, fmt.Errorf("read journal entry %d: %w", seq, err)
		}
		ret = append(ret, JournalEntry{Seq: seq, Data: val})
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}
