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
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/blinklabs-io/tally/database/models"
)

const IdentitySize = 32

// Identity is a 32-byte ed25519 public key
type Identity [IdentitySize]byte

// ParseIdentity parses the hex form of an identity
func ParseIdentity(s string) (Identity, error) {
	var ret Identity
	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil || len(b) != IdentitySize {
		return ret, fmt.Errorf("%w: %q", ErrInvalidIdentity, s)
	}
	copy(ret[:], b)
	return ret, nil
}

// IdentityFromBytes copies a raw identity
func IdentityFromBytes(b []byte) (Identity, error) {
	var ret Identity
	if len(b) != IdentitySize {
		return ret, fmt.Errorf(
			"%w: length %d, expected %d",
			ErrInvalidIdentity,
			len(b),
			IdentitySize,
		)
	}
	copy(ret[:], b)
	return ret, nil
}

func (i Identity) String() string {
	return hex.EncodeToString(i[:])
}

func (i Identity) Bytes() []byte {
	return i[:]
}

func (i Identity) IsZero() bool {
	return i == Identity{}
}

func (i Identity) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

func (i *Identity) UnmarshalText(data []byte) error {
	tmp, err := ParseIdentity(string(data))
	if err != nil {
		return err
	}
	*i = tmp
	return nil
}

type VoteChoice uint8

const (
	VoteNo  VoteChoice = models.VoteNo
	VoteYes VoteChoice = models.VoteYes
)

// ParseVoteChoice accepts "yes" or "no" in any case
func ParseVoteChoice(s string) (VoteChoice, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes":
		return VoteYes, nil
	case "no":
		return VoteNo, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidChoice, s)
}

func (c VoteChoice) Valid() bool {
	return c == VoteYes || c == VoteNo
}

func (c VoteChoice) String() string {
	switch c {
	case VoteYes:
		return "yes"
	case VoteNo:
		return "no"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

func (c VoteChoice) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChoice, uint8(c))
	}
	return []byte(c.String()), nil
}

func (c *VoteChoice) UnmarshalText(data []byte) error {
	tmp, err := ParseVoteChoice(string(data))
	if err != nil {
		return err
	}
	*c = tmp
	return nil
}

type ProposalStatus uint8

const (
	ProposalStatusActive   ProposalStatus = models.ProposalStatusActive
	ProposalStatusPassed   ProposalStatus = models.ProposalStatusPassed
	ProposalStatusRejected ProposalStatus = models.ProposalStatusRejected
)

// ParseProposalStatus accepts "active", "passed" or "rejected" in any case
func ParseProposalStatus(s string) (ProposalStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "active":
		return ProposalStatusActive, nil
	case "passed":
		return ProposalStatusPassed, nil
	case "rejected":
		return ProposalStatusRejected, nil
	}
	return 0, fmt.Errorf("unknown proposal status: %q", s)
}

func (s ProposalStatus) String() string {
	switch s {
	case ProposalStatusActive:
		return "active"
	case ProposalStatusPassed:
		return "passed"
	case ProposalStatusRejected:
		return "rejected"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Terminal returns whether no further transition is possible
func (s ProposalStatus) Terminal() bool {
	return s == ProposalStatusPassed || s == ProposalStatusRejected
}

func (s ProposalStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *ProposalStatus) UnmarshalText(data []byte) error {
	tmp, err := ParseProposalStatus(string(data))
	if err != nil {
		return err
	}
	*s = tmp
	return nil
}

// Config is the governance singleton
type Config struct {
	Admin          Identity `json:"admin"`
	ProposalCount  uint64   `json:"proposalCount"`
	TotalBasePower uint64   `json:"totalBasePower"`
	CreatedAt      int64    `json:"createdAt"`
}

// User is a registered voter. DelegatedTo is nil while the user votes with
// their own power.
type User struct {
	Authority    Identity  `json:"authority"`
	DelegatedTo  *Identity `json:"delegatedTo"`
	BasePower    uint64    `json:"basePower"`
	Reputation   uint64    `json:"reputation"`
	LastVoteTime int64     `json:"lastVoteTime"`
	RegisteredAt int64     `json:"registeredAt"`
}

type Proposal struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Creator     Identity       `json:"creator"`
	ID          uint64         `json:"id"`
	YesVotes    uint64         `json:"yesVotes"`
	NoVotes     uint64         `json:"noVotes"`
	StartTime   int64          `json:"startTime"`
	Deadline    int64          `json:"deadline"`
	FinalizedAt int64          `json:"finalizedAt"`
	Status      ProposalStatus `json:"status"`
}

type VoteRecord struct {
	Voter      Identity   `json:"voter"`
	ProposalID uint64     `json:"proposalId"`
	Weight     uint64     `json:"weight"`
	VotedAt    int64      `json:"votedAt"`
	HasVoted   bool       `json:"hasVoted"`
	Choice     VoteChoice `json:"choice"`
}

func configFromModel(m *models.GovernanceConfig) (*Config, error) {
	admin, err := IdentityFromBytes(m.Admin)
	if err != nil {
		return nil, fmt.Errorf("decode admin: %w", err)
	}
	return &Config{
		Admin:          admin,
		ProposalCount:  m.ProposalCount,
		TotalBasePower: uint64(m.TotalBasePower),
		CreatedAt:      m.CreatedAt,
	}, nil
}

func userFromModel(m *models.User) (*User, error) {
	authority, err := IdentityFromBytes(m.Authority)
	if err != nil {
		return nil, fmt.Errorf("decode user authority: %w", err)
	}
	ret := &User{
		Authority:    authority,
		BasePower:    uint64(m.BasePower),
		Reputation:   uint64(m.Reputation),
		LastVoteTime: m.LastVoteTime,
		RegisteredAt: m.RegisteredAt,
	}
	if m.IsDelegated() {
		delegatee, err := IdentityFromBytes(m.DelegatedTo)
		if err != nil {
			return nil, fmt.Errorf("decode delegatee: %w", err)
		}
		ret.DelegatedTo = &delegatee
	}
	return ret, nil
}

func proposalFromModel(m *models.Proposal) (*Proposal, error) {
	creator, err := IdentityFromBytes(m.Creator)
	if err != nil {
		return nil, fmt.Errorf("decode proposal creator: %w", err)
	}
	return &Proposal{
		ID:          m.ProposalId,
		Title:       m.Title,
		Description: m.Description,
		Creator:     creator,
		YesVotes:    uint64(m.YesVotes),
		NoVotes:     uint64(m.NoVotes),
		Status:      ProposalStatus(m.Status),
		StartTime:   m.StartTime,
		Deadline:    m.Deadline,
		FinalizedAt: m.FinalizedAt,
	}, nil
}

func voteRecordFromModel(m *models.VoteRecord) (*VoteRecord, error) {
	voter, err := IdentityFromBytes(m.Voter)
	if err != nil {
		return nil, fmt.Errorf("decode voter: %w", err)
	}
	return &VoteRecord{
		Voter:      voter,
		ProposalID: m.ProposalId,
		HasVoted:   m.HasVoted,
		Choice:     VoteChoice(m.Choice),
		Weight:     uint64(m.Weight),
		VotedAt:    m.VotedAt,
	}, nil
}
