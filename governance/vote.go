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
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/blinklabs-io/tally/database"
	"github.com/blinklabs-io/tally/database/models"
	"github.com/blinklabs-io/tally/database/types"
)

type VoteRequest struct {
	Voter      Identity
	ProposalID uint64
	Choice     VoteChoice
	// Power is the power committed to a quadratic vote. Binary votes ignore it.
	Power uint64
}

// Vote applies a vote under the configured voting policy and returns the
// resulting vote record. For unguarded quadratic votes the record is not
// stored.
func (e *Engine) Vote(ctx context.Context, req VoteRequest) (*VoteRecord, error) {
	if !req.Choice.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChoice, uint8(req.Choice))
	}
	if req.Voter.IsZero() {
		return nil, fmt.Errorf("%w: voter must be set", ErrInvalidIdentity)
	}
	var record *models.VoteRecord
	err := e.update(
		ctx,
		"vote",
		func(txn *database.Txn, now int64, evts *pendingEvents) error {
			if _, err := e.loadConfig(txn); err != nil {
				return err
			}
			proposal, err := e.loadProposal(req.ProposalID, txn)
			if err != nil {
				return err
			}
			if err := checkVotingWindow(proposal, now, e.settings.EnforceDeadline); err != nil {
				return err
			}
			switch e.settings.Policy.Kind {
			case PolicyQuadratic:
				record, err = e.applyQuadraticVote(txn, now, proposal, req)
			case PolicyBinary:
				record, err = e.applyBinaryVote(txn, now, proposal, req)
			default:
				err = fmt.Errorf("unknown voting policy: %s", e.settings.Policy.Kind)
			}
			if err != nil {
				return err
			}
			if err := e.db.SetProposal(proposal, txn); err != nil {
				return err
			}
			voteEvt := &VoteEvent{
				ProposalID: req.ProposalID,
				Voter:      req.Voter,
				Choice:     req.Choice,
				Weight:     uint64(record.Weight),
			}
			if e.settings.Policy.guarded() {
				voteEvt.Key = VoteRecordKey(req.Voter, req.ProposalID)
			}
			evts.add(VoteEventType, voteEvt)
			return nil
		},
	)
	if err != nil {
		return nil, err
	}
	e.logger.Debug(
		"vote accepted",
		"component", "governance",
		"proposal_id", req.ProposalID,
		"voter", req.Voter.String(),
		"choice", req.Choice.String(),
		"weight", uint64(record.Weight),
	)
	return voteRecordFromModel(record)
}

func checkVotingWindow(
	proposal *models.Proposal,
	now int64,
	enforceDeadline bool,
) error {
	status := ProposalStatus(proposal.Status)
	if !proposal.IsActive() {
		return proposalStateError(ErrProposalNotActive, proposal.ProposalId, status)
	}
	if now < proposal.StartTime {
		return proposalStateError(
			ErrVotingPeriodNotStarted,
			proposal.ProposalId,
			status,
		)
	}
	if enforceDeadline && now > proposal.Deadline {
		return proposalStateError(
			ErrVotingPeriodEnded,
			proposal.ProposalId,
			status,
		)
	}
	return nil
}

func (e *Engine) applyQuadraticVote(
	txn *database.Txn,
	now int64,
	proposal *models.Proposal,
	req VoteRequest,
) (*models.VoteRecord, error) {
	user, err := e.loadUser(req.Voter, txn)
	if err != nil {
		return nil, err
	}
	available := effectivePower(user)
	if req.Power == 0 || req.Power > available {
		return nil, fmt.Errorf(
			"%w: committed %d, available %d",
			ErrInsufficientPower,
			req.Power,
			available,
		)
	}
	weight := QuadraticWeight(req.Power)
	record := newVoteRecord(req, weight, now)
	if e.settings.Policy.QuadraticGuard {
		if err := e.createVoteRecord(record, txn); err != nil {
			return nil, err
		}
	}
	if err := addTally(proposal, req.Choice, weight); err != nil {
		return nil, err
	}
	gain := e.settings.Policy.ReputationGain
	if uint64(user.Reputation) > math.MaxUint64-gain {
		return nil, fmt.Errorf("%w: reputation", ErrArithmeticOverflow)
	}
	user.Reputation += types.Uint64(gain)
	user.LastVoteTime = now
	if err := e.db.SetUser(user, txn); err != nil {
		return nil, err
	}
	return record, nil
}

func (e *Engine) applyBinaryVote(
	txn *database.Txn,
	now int64,
	proposal *models.Proposal,
	req VoteRequest,
) (*models.VoteRecord, error) {
	record := newVoteRecord(req, 1, now)
	if err := e.createVoteRecord(record, txn); err != nil {
		return nil, err
	}
	if err := addTally(proposal, req.Choice, 1); err != nil {
		return nil, err
	}
	return record, nil
}

func newVoteRecord(req VoteRequest, weight uint64, now int64) *models.VoteRecord {
	return &models.VoteRecord{
		Voter:      req.Voter.Bytes(),
		ProposalId: req.ProposalID,
		HasVoted:   true,
		Choice:     uint8(req.Choice),
		Weight:     types.Uint64(weight),
		VotedAt:    now,
	}
}

// createVoteRecord stores the guard record. The insert is create-if-absent,
// so a concurrent writer on the same database cannot count the voter twice.
func (e *Engine) createVoteRecord(
	record *models.VoteRecord,
	txn *database.Txn,
) error {
	created, err := e.db.CreateVoteRecord(record, txn)
	if err != nil {
		return err
	}
	if !created {
		return fmt.Errorf(
			"%w: proposal %d",
			ErrAlreadyVoted,
			record.ProposalId,
		)
	}
	return nil
}

func addTally(proposal *models.Proposal, choice VoteChoice, weight uint64) error {
	tally := &proposal.NoVotes
	if choice == VoteYes {
		tally = &proposal.YesVotes
	}
	if uint64(*tally) > math.MaxUint64-weight {
		return fmt.Errorf(
			"%w: proposal %d tally",
			ErrArithmeticOverflow,
			proposal.ProposalId,
		)
	}
	*tally += types.Uint64(weight)
	return nil
}

// GetVoteRecord returns the stored vote of voter on a proposal
func (e *Engine) GetVoteRecord(
	ctx context.Context,
	voter Identity,
	proposalId uint64,
) (*VoteRecord, error) {
	var ret *VoteRecord
	err := e.view(ctx, "get_vote_record", func(txn *database.Txn) error {
		record, err := e.db.GetVoteRecord(voter.Bytes(), proposalId, txn)
		if err != nil {
			if errors.Is(err, models.ErrVoteRecordNotFound) {
				return fmt.Errorf(
					"%w: voter %s, proposal %d",
					ErrVoteRecordNotFound,
					voter,
					proposalId,
				)
			}
			return fmt.Errorf("load vote record: %w", err)
		}
		ret, err = voteRecordFromModel(record)
		return err
	})
	return ret, err
}
