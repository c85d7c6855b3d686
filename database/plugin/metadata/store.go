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

package metadata

import (
	"fmt"
	"log/slog"

	"github.com/blinklabs-io/tally/database/models"
	"github.com/blinklabs-io/tally/database/plugin"
	"github.com/blinklabs-io/tally/database/types"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

type MetadataStore interface {
	// Database
	Close() error
	DB() *gorm.DB
	GetCommitTimestamp() (int64, error)
	SetCommitTimestamp(int64, types.Txn) error
	// Transaction begins a metadata transaction. Read-write transactions on
	// server backends lock the governance config row on first read.
	Transaction(readWrite bool) types.Txn

	// Governance config
	GetGovernanceConfig(types.Txn) (*models.GovernanceConfig, error)
	CreateGovernanceConfig(*models.GovernanceConfig, types.Txn) (bool, error)
	SetGovernanceConfig(*models.GovernanceConfig, types.Txn) error

	// Users
	GetUser(
		[]byte, // authority
		types.Txn,
	) (*models.User, error)
	CreateUser(*models.User, types.Txn) (bool, error)
	SetUser(*models.User, types.Txn) error
	CountUsers(types.Txn) (int64, error)

	// Proposals
	GetProposal(
		uint64, // proposalId
		types.Txn,
	) (*models.Proposal, error)
	CreateProposal(*models.Proposal, types.Txn) error
	SetProposal(*models.Proposal, types.Txn) error
	ListProposals(models.ProposalFilter, types.Txn) ([]models.Proposal, error)

	// Vote records
	GetVoteRecord(
		[]byte, // voter
		uint64, // proposalId
		types.Txn,
	) (*models.VoteRecord, error)
	CreateVoteRecord(*models.VoteRecord, types.Txn) (bool, error)
}

// New starts the named metadata plugin from the registry
func New(
	pluginName string,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) (MetadataStore, error) {
	p, err := plugin.StartPlugin(
		plugin.PluginTypeMetadata,
		pluginName,
		plugin.WithLogger(logger),
		plugin.WithPromRegistry(promRegistry),
	)
	if err != nil {
		return nil, err
	}
	metadataStore, ok := p.(MetadataStore)
	if !ok {
		_ = p.Stop()
		return nil, fmt.Errorf(
			"plugin '%s' does not implement MetadataStore interface",
			pluginName,
		)
	}
	return metadataStore, nil
}
