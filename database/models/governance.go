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

package models

import (
	"errors"

	"github.com/blinklabs-io/tally/database/types"
)

var (
	ErrGovernanceConfigNotFound = errors.New("governance config not found")
	ErrProposalNotFound         = errors.New("proposal not found")
	ErrUserNotFound             = errors.New("user not found")
	ErrVoteRecordNotFound       = errors.New("vote record not found")
)

// GovernanceConfigRowId is the primary key of the singleton config row
const GovernanceConfigRowId = 1

// Proposal status values
const (
	ProposalStatusActive   = 0
	ProposalStatusPassed   = 1
	ProposalStatusRejected = 2
)

// Vote choice values
const (
	VoteNo  = 0
	VoteYes = 1
)

// GovernanceConfig is the singleton record holding the admin identity and
// the running counters.
type GovernanceConfig struct {
	ID             uint         `gorm:"primarykey"`
	Admin          []byte       `gorm:"size:32;not null"`
	ProposalCount  uint64       `gorm:"not null"`
	TotalBasePower types.Uint64 `gorm:"not null"`
	CreatedAt      int64        `gorm:"not null"`
}

// TableName returns the table name
func (GovernanceConfig) TableName() string {
	return "governance_config"
}

// User is a registered voter. DelegatedTo is nil while the user votes with
// their own power.
type User struct {
	ID           uint         `gorm:"primarykey"`
	Authority    []byte       `gorm:"uniqueIndex;size:32;not null"`
	BasePower    types.Uint64 `gorm:"not null"`
	Reputation   types.Uint64 `gorm:"not null"`
	LastVoteTime int64        `gorm:"not null"`
	DelegatedTo  []byte       `gorm:"index;size:32"`
	RegisteredAt int64        `gorm:"not null"`
}

// TableName returns the table name
func (User) TableName() string {
	return "governance_user"
}

// IsDelegated returns whether the user routes their power to another identity
func (u *User) IsDelegated() bool {
	return len(u.DelegatedTo) > 0
}

// Proposal is a governance proposal. Tallies only change while the status is
// active, and the status only moves from active to a terminal value once.
type Proposal struct {
	ID          uint         `gorm:"primarykey"`
	ProposalId  uint64       `gorm:"uniqueIndex;not null"`
	Title       string       `gorm:"size:255"`
	Description string       `gorm:"type:text;not null"`
	Creator     []byte       `gorm:"index;size:32;not null"`
	YesVotes    types.Uint64 `gorm:"not null"`
	NoVotes     types.Uint64 `gorm:"not null"`
	Status      uint8        `gorm:"index;not null"`
	StartTime   int64        `gorm:"not null"`
	Deadline    int64        `gorm:"index;not null"`
	FinalizedAt int64        `gorm:"not null"`
}

// TableName returns the table name
func (Proposal) TableName() string {
	return "governance_proposal"
}

// IsActive returns whether the proposal still accepts votes
func (p *Proposal) IsActive() bool {
	return p.Status == ProposalStatusActive
}

// VoteRecord guards against a voter being counted twice on one proposal.
// It is created on the first vote and never updated.
type VoteRecord struct {
	ID         uint         `gorm:"primarykey"`
	Voter      []byte       `gorm:"uniqueIndex:idx_vote_record_voter_proposal,priority:1;size:32;not null"`
	ProposalId uint64       `gorm:"uniqueIndex:idx_vote_record_voter_proposal,priority:2;index;not null"`
	HasVoted   bool         `gorm:"not null"`
	Choice     uint8        `gorm:"not null"`
	Weight     types.Uint64 `gorm:"not null"`
	VotedAt    int64        `gorm:"not null"`
}

// TableName returns the table name
func (VoteRecord) TableName() string {
	return "governance_vote_record"
}

// ProposalFilter selects a page of proposals. A nil Status matches every
// status. Proposals are ordered by ProposalId.
type ProposalFilter struct {
	Status     *uint8
	Offset     int
	Limit      int
	Descending bool
}
