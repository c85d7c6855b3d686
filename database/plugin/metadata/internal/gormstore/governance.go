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

package gormstore

import (
	"errors"

	"github.com/blinklabs-io/tally/database/models"
	"github.com/blinklabs-io/tally/database/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (s *Store) GetGovernanceConfig(
	txn types.Txn,
) (*models.GovernanceConfig, error) {
	db, err := s.resolveDB(txn)
	if err != nil {
		return nil, err
	}
	// Every mutation reads the config row first. Locking it serializes
	// writers from other processes sharing the database.
	if s.lockForUpdate(txn) {
		db = db.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
	}
	ret := &models.GovernanceConfig{}
	result := db.First(ret, models.GovernanceConfigRowId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, models.ErrGovernanceConfigNotFound
		}
		return nil, result.Error
	}
	return ret, nil
}

// CreateGovernanceConfig inserts the singleton config row. It returns false
// if the row already exists.
func (s *Store) CreateGovernanceConfig(
	cfg *models.GovernanceConfig,
	txn types.Txn,
) (bool, error) {
	db, err := s.resolveDB(txn)
	if err != nil {
		return false, err
	}
	cfg.ID = models.GovernanceConfigRowId
	result := db.Clauses(clause.OnConflict{DoNothing: true}).Create(cfg)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (s *Store) SetGovernanceConfig(
	cfg *models.GovernanceConfig,
	txn types.Txn,
) error {
	db, err := s.resolveDB(txn)
	if err != nil {
		return err
	}
	cfg.ID = models.GovernanceConfigRowId
	return db.Save(cfg).Error
}

func (s *Store) GetUser(
	authority []byte,
	txn types.Txn,
) (*models.User, error) {
	db, err := s.resolveDB(txn)
	if err != nil {
		return nil, err
	}
	ret := &models.User{}
	result := db.Where("authority = ?", authority).First(ret)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, models.ErrUserNotFound
		}
		return nil, result.Error
	}
	return ret, nil
}

// CreateUser inserts a user. It returns false if a user with the same
// authority already exists.
func (s *Store) CreateUser(user *models.User, txn types.Txn) (bool, error) {
	db, err := s.resolveDB(txn)
	if err != nil {
		return false, err
	}
	result := db.Clauses(clause.OnConflict{DoNothing: true}).Create(user)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (s *Store) SetUser(user *models.User, txn types.Txn) error {
	db, err := s.resolveDB(txn)
	if err != nil {
		return err
	}
	if user.ID == 0 {
		return models.ErrUserNotFound
	}
	return db.Save(user).Error
}

func (s *Store) CountUsers(txn types.Txn) (int64, error) {
	db, err := s.resolveDB(txn)
	if err != nil {
		return 0, err
	}
	var count int64
	if result := db.Model(&models.User{}).Count(&count); result.Error != nil {
		return 0, result.Error
	}
	return count, nil
}

func (s *Store) GetProposal(
	proposalId uint64,
	txn types.Txn,
) (*models.Proposal, error) {
	db, err := s.resolveDB(txn)
	if err != nil {
		return nil, err
	}
	ret := &models.Proposal{}
	result := db.Where("proposal_id = ?", proposalId).First(ret)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, models.ErrProposalNotFound
		}
		return nil, result.Error
	}
	return ret, nil
}

func (s *Store) CreateProposal(
	proposal *models.Proposal,
	txn types.Txn,
) error {
	db, err := s.resolveDB(txn)
	if err != nil {
		return err
	}
	return db.Create(proposal).Error
}

func (s *Store) SetProposal(
	proposal *models.Proposal,
	txn types.Txn,
) error {
	db, err := s.resolveDB(txn)
	if err != nil {
		return err
	}
	if proposal.ID == 0 {
		return models.ErrProposalNotFound
	}
	return db.Save(proposal).Error
}

func (s *Store) ListProposals(
	filter models.ProposalFilter,
	txn types.Txn,
) ([]models.Proposal, error) {
	db, err := s.resolveDB(txn)
	if err != nil {
		return nil, err
	}
	query := db.Model(&models.Proposal{})
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	query = query.Order(clause.OrderByColumn{
		Column: clause.Column{Name: "proposal_id"},
		Desc:   filter.Descending,
	})
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	var ret []models.Proposal
	if result := query.Find(&ret); result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

func (s *Store) GetVoteRecord(
	voter []byte,
	proposalId uint64,
	txn types.Txn,
) (*models.VoteRecord, error) {
	db, err := s.resolveDB(txn)
	if err != nil {
		return nil, err
	}
	ret := &models.VoteRecord{}
	result := db.Where(
		"voter = ? AND proposal_id = ?",
		voter,
		proposalId,
	).First(ret)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, models.ErrVoteRecordNotFound
		}
		return nil, result.Error
	}
	return ret, nil
}

// CreateVoteRecord inserts the vote guard for a (voter, proposal) pair. It
// returns false without error if the pair already has a record.
func (s *Store) CreateVoteRecord(
	record *models.VoteRecord,
	txn types.Txn,
) (bool, error) {
	db, err := s.resolveDB(txn)
	if err != nil {
		return false, err
	}
	result := db.Clauses(clause.OnConflict{DoNothing: true}).Create(record)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
