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
	"fmt"

	"github.com/blinklabs-io/tally/database/models"
)

// readTxn returns txn, or a new read-only transaction and its release func
func (d *Database) readTxn(txn *Txn) (*Txn, func()) {
	if txn != nil {
		return txn, func() {}
	}
	txn = d.Transaction(false)
	return txn, txn.Release
}

// writeTxn runs fn in txn, or in a new read-write transaction that is
// committed when fn succeeds
func (d *Database) writeTxn(txn *Txn, fn func(*Txn) error) error {
	if txn != nil {
		return fn(txn)
	}
	return d.Transaction(true).Do(fn)
}

func (d *Database) GetGovernanceConfig(
	txn *Txn,
) (*models.GovernanceConfig, error) {
	txn, release := d.readTxn(txn)
	defer release()
	return d.metadata.GetGovernanceConfig(txn.Metadata())
}

// CreateGovernanceConfig creates the singleton config record. It returns
// false if the record already exists.
func (d *Database) CreateGovernanceConfig(
	cfg *models.GovernanceConfig,
	txn *Txn,
) (bool, error) {
	var created bool
	err := d.writeTxn(txn, func(txn *Txn) error {
		var err error
		created, err = d.metadata.CreateGovernanceConfig(cfg, txn.Metadata())
		if err != nil {
			return fmt.Errorf("create governance config: %w", err)
		}
		return nil
	})
	return created, err
}

func (d *Database) SetGovernanceConfig(
	cfg *models.GovernanceConfig,
	txn *Txn,
) error {
	return d.writeTxn(txn, func(txn *Txn) error {
		if err := d.metadata.SetGovernanceConfig(cfg, txn.Metadata()); err != nil {
			return fmt.Errorf("update governance config: %w", err)
		}
		return nil
	})
}

func (d *Database) GetUser(authority []byte, txn *Txn) (*models.User, error) {
	txn, release := d.readTxn(txn)
	defer release()
	return d.metadata.GetUser(authority, txn.Metadata())
}

// CreateUser creates a user record. It returns false if the authority is
// already registered.
func (d *Database) CreateUser(user *models.User, txn *Txn) (bool, error) {
	var created bool
	err := d.writeTxn(txn, func(txn *Txn) error {
		var err error
		created, err = d.metadata.CreateUser(user, txn.Metadata())
		if err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		return nil
	})
	return created, err
}

func (d *Database) SetUser(user *models.User, txn *Txn) error {
	return d.writeTxn(txn, func(txn *Txn) error {
		if err := d.metadata.SetUser(user, txn.Metadata()); err != nil {
			return fmt.Errorf("update user: %w", err)
		}
		return nil
	})
}

func (d *Database) CountUsers(txn *Txn) (int64, error) {
	txn, release := d.readTxn(txn)
	defer release()
	return d.metadata.CountUsers(txn.Metadata())
}

func (d *Database) GetProposal(
	proposalId uint64,
	txn *Txn,
) (*models.Proposal, error) {
	txn, release := d.readTxn(txn)
	defer release()
	return d.metadata.GetProposal(proposalId, txn.Metadata())
}

func (d *Database) CreateProposal(proposal *models.Proposal, txn *Txn) error {
	return d.writeTxn(txn, func(txn *Txn) error {
		if err := d.metadata.CreateProposal(proposal, txn.Metadata()); err != nil {
			return fmt.Errorf("create proposal %d: %w", proposal.ProposalId, err)
		}
		return nil
	})
}

func (d *Database) SetProposal(proposal *models.Proposal, txn *Txn) error {
	return d.writeTxn(txn, func(txn *Txn) error {
		if err := d.metadata.SetProposal(proposal, txn.Metadata()); err != nil {
			return fmt.Errorf("update proposal %d: %w", proposal.ProposalId, err)
		}
		return nil
	})
}

func (d *Database) ListProposals(
	filter models.ProposalFilter,
	txn *Txn,
) ([]models.Proposal, error) {
	txn, release := d.readTxn(txn)
	defer release()
	return d.metadata.ListProposals(filter, txn.Metadata())
}

func (d *Database) GetVoteRecord(
	voter []byte,
	proposalId uint64,
	txn *Txn,
) (*models.VoteRecord, error) {
	txn, release := d.readTxn(txn)
	defer release()
	return d.metadata.GetVoteRecord(voter, proposalId, txn.Metadata())
}

// CreateVoteRecord creates the vote guard for a voter and proposal. It
// returns false if the voter already has a record for the proposal.
func (d *Database) CreateVoteRecord(
	record *models.VoteRecord,
	txn *Txn,
) (bool, error) {
	var created bool
	err := d.writeTxn(txn, func(txn *Txn) error {
		var err error
		created, err = d.metadata.CreateVoteRecord(record, txn.Metadata())
		if err != nil {
			return fmt.Errorf("create vote record: %w", err)
		}
		return nil
	})
	return created, err
}
