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

package governance

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

const (
	recordNamespaceProposal = "proposal"
	recordNamespaceUser     = "user"
	recordNamespaceUserVote = "user_vote"
	recordNamespaceConfig   = "voting_state"
)

// RecordKey derives a stable external reference for a record from a namespace
// and seed values. The result is the hex sha256 of the namespace followed by
// each seed.
func RecordKey(namespace string, seeds ...[]byte) string {
	h := sha256.New()
	h.Write([]byte(namespace))
	for _, seed := range seeds {
		h.Write(seed)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func proposalIdSeed(proposalId uint64) []byte {
	return binary.LittleEndian.AppendUint64(nil, proposalId)
}

func ConfigKey() string {
	return RecordKey(recordNamespaceConfig)
}

func ProposalKey(proposalId uint64) string {
	return RecordKey(recordNamespaceProposal, proposalIdSeed(proposalId))
}

func UserKey(authority Identity) string {
	return RecordKey(recordNamespaceUser, authority.Bytes())
}

func VoteRecordKey(voter Identity, proposalId uint64) string {
	return RecordKey(
		recordNamespaceUserVote,
		voter.Bytes(),
		proposalIdSeed(proposalId),
	)
}
