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

package types

import (
	"encoding/binary"
	"errors"
)

// Blob store keys. Journal entries share the evt prefix and sort by sequence
const (
	EventBlobKeyPrefix     = "evt"
	EventSeqBlobKey        = "journal_seq"
	CommitTimestampBlobKey = "metadata_commit_timestamp"
)

// ErrInvalidBlobValue is returned when a fixed-width value has the wrong size
var ErrInvalidBlobValue = errors.New("invalid blob value length")

// EncodeUint64 encodes a value big-endian so byte order matches numeric order
func EncodeUint64(input uint64) []byte {
	return binary.BigEndian.AppendUint64(make([]byte, 0, 8), input)
}

// DecodeUint64 reverses EncodeUint64
func DecodeUint64(val []byte) (uint64, error) {
	if len(val) != 8 {
		return 0, ErrInvalidBlobValue
	}
	return binary.BigEndian.Uint64(val), nil
}

// EncodeCommitTimestamp stores a unix millisecond timestamp. Timestamps
// before the epoch are never written.
func EncodeCommitTimestamp(timestamp int64) []byte {
	return EncodeUint64(uint64(timestamp)) //nolint:gosec
}

func DecodeCommitTimestamp(val []byte) (int64, error) {
	ts, err := DecodeUint64(val)
	if err != nil {
		return 0, err
	}
	return int64(ts), nil //nolint:gosec
}

// EventBlobKey returns the journal key for an event sequence number
func EventBlobKey(seq uint64) []byte {
	return append([]byte(EventBlobKeyPrefix), EncodeUint64(seq)...)
}

// EventSeqFromBlobKey extracts the sequence number from a journal key
func EventSeqFromBlobKey(key []byte) (uint64, bool) {
	if len(key) != len(EventBlobKeyPrefix)+8 ||
		string(key[:len(EventBlobKeyPrefix)]) != EventBlobKeyPrefix {
		return 0, false
	}
	seq, err := DecodeUint64(key[len(EventBlobKeyPrefix):])
	return seq, err == nil
}
