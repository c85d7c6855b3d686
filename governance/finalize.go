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
	"bytes"
	"context"

	"github.com/blinklabs-io/tally/database"
	"github.com/blinklabs-io/tally/database/models"
)

// FinalizeProposal moves an active proposal to Passed when it has strictly
// more yes than no votes, and to Rejected otherwise
func (e *Engine) FinalizeProposal(
	ctx context.Context,
	caller Identity,
	proposalId uint64,
) (*Proposal, error) {
	var proposal *models.Proposal
	err := e.update(
		ctx,
		"finalize_proposal",
		func(txn *database.Txn, now int64, evts *pendingEvents) error {
			cfg, err := e.loadConfig(txn)
			if err != nil {
				return err
			}
			proposal, err = e.loadProposal(proposalId, txn)
			if err != nil {
				return err
			}
			status := ProposalStatus(proposal.Status)
			if !proposal.IsActive() {
				return proposalStateError(ErrProposalNotActive, proposalId, status)
			}
			if e.settings.RestrictFinalizeToAdmin &&
				!bytes.Equal(cfg.Admin, caller.Bytes()) {
				return ErrUnauthorized
			}
			if e.settings.EnforceDeadline && now < proposal.Deadline {
				return proposalStateError(ErrTooEarly, proposalId, status)
			}
			if proposal.YesVotes > proposal.NoVotes {
				proposal.Status = models.ProposalStatusPassed
			} else {
				proposal.Status = models.ProposalStatusRejected
			}
			proposal.FinalizedAt = now
			if err := e.db.SetProposal(proposal, txn); err != nil {
				return err
			}
			evts.add(
				ProposalFinalizedEventType,
				&ProposalFinalizedEvent{
					ProposalID: proposalId,
					Status:     ProposalStatus(proposal.Status),
					YesVotes:   uint64(proposal.YesVotes),
					NoVotes:    uint64(proposal.NoVotes),
				},
			)
			return nil
		},
	)
	if err != nil {
		return nil, err
	}
	e.logger.Info(
		"proposal finalized",
		"component", "governance",
		"proposal_id", proposalId,
		"status", ProposalStatus(proposal.Status).String(),
		"yes_votes", uint64(proposal.YesVotes),
		"no_votes", uint64(proposal.NoVotes),
	)
	return proposalFromModel(proposal)
}
