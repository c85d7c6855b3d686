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
	"fmt"
	"math"

	"github.com/blinklabs-io/tally/database"
	"github.com/blinklabs-io/tally/database/models"
)

const (
	DefaultProposalPageSize = 100
	MaxProposalPageSize     = 100
)

type CreateProposalRequest struct {
	Title       string
	Description string
	Proposer    Identity
	// DurationSeconds sets the deadline relative to the creation time
	DurationSeconds uint64
	// StartDelaySeconds postpones the start of voting. It must be less than
	// DurationSeconds.
	StartDelaySeconds uint64
}

func (e *Engine) validateProposalRequest(req *CreateProposalRequest) error {
	if req.Proposer.IsZero() {
		return fmt.Errorf("%w: proposer must be set", ErrInvalidIdentity)
	}
	if req.DurationSeconds == 0 {
		return fmt.Errorf("%w: duration must be positive", ErrInvalidDuration)
	}
	if req.StartDelaySeconds >= req.DurationSeconds {
		return fmt.Errorf(
			"%w: start delay %d must be less than duration %d",
			ErrInvalidDuration,
			req.StartDelaySeconds,
			req.DurationSeconds,
		)
	}
	if req.Description == "" ||
		len(req.Description) > e.settings.MaxDescriptionLength {
		return fmt.Errorf(
			"%w: length %d, maximum %d",
			ErrDescriptionTooLong,
			len(req.Description),
			e.settings.MaxDescriptionLength,
		)
	}
	if len(req.Title) > e.settings.MaxTitleLength {
		return fmt.Errorf(
			"%w: length %d, maximum %d",
			ErrTitleTooLong,
			len(req.Title),
			e.settings.MaxTitleLength,
		)
	}
	return nil
}

// CreateProposal creates an active proposal with the next proposal id. Any
// signer may create a proposal.
func (e *Engine) CreateProposal(
	ctx context.Context,
	req CreateProposalRequest,
) (*Proposal, error) {
	if err := e.validateProposalRequest(&req); err != nil {
		return nil, err
	}
	var proposal *models.Proposal
	var cfg *models.GovernanceConfig
	err := e.update(
		ctx,
		"create_proposal",
		func(txn *database.Txn, now int64, evts *pendingEvents) error {
			var err error
			cfg, err = e.loadConfig(txn)
			if err != nil {
				return err
			}
			if req.DurationSeconds > uint64(math.MaxInt64-now) {
				return fmt.Errorf(
					"%w: deadline overflows the clock",
					ErrInvalidDuration,
				)
			}
			if cfg.ProposalCount == math.MaxUint64 {
				return fmt.Errorf("%w: proposal count", ErrArithmeticOverflow)
			}
			// Checked above: StartDelaySeconds < DurationSeconds
			startTime := now + int64(req.StartDelaySeconds) // #nosec G115
			deadline := now + int64(req.DurationSeconds)    // #nosec G115
			proposal = &models.Proposal{
				ProposalId:  cfg.ProposalCount,
				Title:       req.Title,
				Description: req.Description,
				Creator:     req.Proposer.Bytes(),
				Status:      models.ProposalStatusActive,
				StartTime:   startTime,
				Deadline:    deadline,
			}
			if err := e.db.CreateProposal(proposal, txn); err != nil {
				return err
			}
			cfg.ProposalCount++
			if err := e.db.SetGovernanceConfig(cfg, txn); err != nil {
				return err
			}
			evts.add(
				ProposalCreatedEventType,
				&ProposalCreatedEvent{
					ProposalID: proposal.ProposalId,
					Key:        ProposalKey(proposal.ProposalId),
					Creator:    req.Proposer,
					Title:      req.Title,
					StartTime:  startTime,
					Deadline:   deadline,
				},
			)
			return nil
		},
	)
	if err != nil {
		return nil, err
	}
	e.logger.Info(
		"proposal created",
		"component", "governance",
		"proposal_id", proposal.ProposalId,
		"creator", req.Proposer.String(),
		"deadline", proposal.Deadline,
	)
	if govCfg, err := configFromModel(cfg); err == nil {
		e.metrics.observeConfig(govCfg)
	}
	return proposalFromModel(proposal)
}

func (e *Engine) GetProposal(
	ctx context.Context,
	proposalId uint64,
) (*Proposal, error) {
	var ret *Proposal
	err := e.view(ctx, "get_proposal", func(txn *database.Txn) error {
		proposal, err := e.loadProposal(proposalId, txn)
		if err != nil {
			return err
		}
		ret, err = proposalFromModel(proposal)
		return err
	})
	return ret, err
}

// ProposalQuery selects a page of proposals ordered by id. A nil Status
// matches every status. A zero Limit uses DefaultProposalPageSize.
type ProposalQuery struct {
	Status     *ProposalStatus
	Offset     int
	Limit      int
	Descending bool
}

func (e *Engine) ListProposals(
	ctx context.Context,
	query ProposalQuery,
) ([]*Proposal, error) {
	if query.Offset < 0 {
		return nil, fmt.Errorf("invalid offset: %d", query.Offset)
	}
	limit := query.Limit
	if limit <= 0 {
		limit = DefaultProposalPageSize
	}
	limit = min(limit, MaxProposalPageSize)
	filter := models.ProposalFilter{
		Offset:     query.Offset,
		Limit:      limit,
		Descending: query.Descending,
	}
	if query.Status != nil {
		status := uint8(*query.Status)
		filter.Status = &status
	}
	var ret []*Proposal
	err := e.view(ctx, "list_proposals", func(txn *database.Txn) error {
		proposals, err := e.db.ListProposals(filter, txn)
		if err != nil {
			return fmt.Errorf("list proposals: %w", err)
		}
		ret = make([]*Proposal, 0, len(proposals))
		for i := range proposals {
			tmp, err := proposalFromModel(&proposals[i])
			if err != nil {
				return err
			}
			ret = append(ret, tmp)
		}
		return nil
	})
	return ret, err
}
