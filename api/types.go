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

package api

import (
	"context"

	"github.com/blinklabs-io/tally/governance"
)

// GovernanceEngine is the subset of governance.Engine served by the API
type GovernanceEngine interface {
	Initialize(ctx context.Context, admin governance.Identity) error
	RegisterUser(
		ctx context.Context,
		admin governance.Identity,
		target governance.Identity,
		basePower uint64,
	) (*governance.User, error)
	CreateProposal(
		ctx context.Context,
		req governance.CreateProposalRequest,
	) (*governance.Proposal, error)
	Delegate(
		ctx context.Context,
		delegator governance.Identity,
		delegatee governance.Identity,
	) error
	Undelegate(ctx context.Context, user governance.Identity) error
	Vote(
		ctx context.Context,
		req governance.VoteRequest,
	) (*governance.VoteRecord, error)
	FinalizeProposal(
		ctx context.Context,
		caller governance.Identity,
		proposalId uint64,
	) (*governance.Proposal, error)
	GetConfig(ctx context.Context) (*governance.Config, error)
	GetUser(
		ctx context.Context,
		authority governance.Identity,
	) (*governance.User, error)
	GetProposal(
		ctx context.Context,
		proposalId uint64,
	) (*governance.Proposal, error)
	ListProposals(
		ctx context.Context,
		query governance.ProposalQuery,
	) ([]*governance.Proposal, error)
	GetVoteRecord(
		ctx context.Context,
		voter governance.Identity,
		proposalId uint64,
	) (*governance.VoteRecord, error)
	EffectivePower(
		ctx context.Context,
		authority governance.Identity,
	) (uint64, error)
	Events(
		ctx context.Context,
		after uint64,
		limit int,
	) ([]*governance.JournalEvent, error)
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	IsHealthy bool `json:"is_healthy"`
}

// ErrorResponse is the body of every error response. Kind is the governance
// error class and Status the current proposal status, when known.
type ErrorResponse struct {
	StatusCode int    `json:"status_code"`
	Error      string `json:"error"`
	Message    string `json:"message"`
	Kind       string `json:"kind,omitempty"`
	Status     string `json:"status,omitempty"`
}

type RegisterUserRequest struct {
	Authority governance.Identity `json:"authority"`
	BasePower uint64              `json:"basePower"`
}

type DelegateRequest struct {
	Delegatee governance.Identity `json:"delegatee"`
}

type CreateProposalRequest struct {
	Title             string `json:"title"`
	Description       string `json:"description"`
	DurationSeconds   uint64 `json:"durationSeconds"`
	StartDelaySeconds uint64 `json:"startDelaySeconds"`
}

type VoteRequest struct {
	Choice governance.VoteChoice `json:"choice"`
	Power  uint64                `json:"power"`
}

type UserResponse struct {
	*governance.User
	Key            string `json:"key"`
	EffectivePower uint64 `json:"effectivePower"`
}

type ProposalResponse struct {
	*governance.Proposal
	Key string `json:"key"`
}

type VoteRecordResponse struct {
	*governance.VoteRecord
	Key string `json:"key"`
}

type EventsResponse struct {
	Events  []*governance.JournalEvent `json:"events"`
	LastSeq uint64                     `json:"lastSeq"`
}
