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
	"fmt"
	"math"

	"github.com/blinklabs-io/tally/database"
	"github.com/blinklabs-io/tally/database/models"
	"github.com/blinklabs-io/tally/database/types"
)

// Initialize creates the governance singleton with admin as its
// administrator. It can succeed only once.
func (e *Engine) Initialize(ctx context.Context, admin Identity) error {
	if admin.IsZero() {
		return fmt.Errorf("%w: admin must be set", ErrInvalidIdentity)
	}
	var cfg *models.GovernanceConfig
	err := e.update(
		ctx,
		"initialize",
		func(txn *database.Txn, now int64, evts *pendingEvents) error {
			cfg = &models.GovernanceConfig{
				Admin:     admin.Bytes(),
				CreatedAt: now,
			}
			created, err := e.db.CreateGovernanceConfig(cfg, txn)
			if err != nil {
				return err
			}
			if !created {
				return ErrAlreadyInitialized
			}
			evts.add(InitializedEventType, &InitializedEvent{Admin: admin})
			return nil
		},
	)
	if err != nil {
		return err
	}
	e.logger.Info(
		"governance initialized",
		"component", "governance",
		"admin", admin.String(),
	)
	if govCfg, err := configFromModel(cfg); err == nil {
		e.metrics.observeConfig(govCfg)
	}
	return nil
}

// RegisterUser creates the user record for target with the given base power.
// Only the admin may register users.
func (e *Engine) RegisterUser(
	ctx context.Context,
	admin Identity,
	target Identity,
	basePower uint64,
) (*User, error) {
	if target.IsZero() {
		return nil, fmt.Errorf("%w: target must be set", ErrInvalidIdentity)
	}
	var user *models.User
	var cfg *models.GovernanceConfig
	err := e.update(
		ctx,
		"register_user",
		func(txn *database.Txn, now int64, evts *pendingEvents) error {
			var err error
			cfg, err = e.loadConfig(txn)
			if err != nil {
				return err
			}
			if !bytes.Equal(cfg.Admin, admin.Bytes()) {
				return ErrUnauthorized
			}
			if _, err := e.loadUser(target, txn); err == nil {
				return fmt.Errorf("%w: %s", ErrAlreadyRegistered, target)
			} else if ClassOf(err) != ErrorClassNotFound {
				return err
			}
			if basePower == 0 {
				return ErrInvalidPower
			}
			if uint64(cfg.TotalBasePower) > math.MaxUint64-basePower {
				return fmt.Errorf(
					"%w: total base power %d + %d",
					ErrArithmeticOverflow,
					cfg.TotalBasePower,
					basePower,
				)
			}
			user = &models.User{
				Authority:    target.Bytes(),
				BasePower:    types.Uint64(basePower),
				Reputation:   types.Uint64(basePower),
				RegisteredAt: now,
			}
			created, err := e.db.CreateUser(user, txn)
			if err != nil {
				return err
			}
			if !created {
				return fmt.Errorf("%w: %s", ErrAlreadyRegistered, target)
			}
			cfg.TotalBasePower += types.Uint64(basePower)
			if err := e.db.SetGovernanceConfig(cfg, txn); err != nil {
				return err
			}
			evts.add(
				UserRegisteredEventType,
				&UserRegisteredEvent{
					Authority:      target,
					Key:            UserKey(target),
					BasePower:      basePower,
					TotalBasePower: uint64(cfg.TotalBasePower),
				},
			)
			return nil
		},
	)
	if err != nil {
		return nil, err
	}
	e.logger.Info(
		"user registered",
		"component", "governance",
		"authority", target.String(),
		"base_power", basePower,
	)
	if govCfg, err := configFromModel(cfg); err == nil {
		e.metrics.observeConfig(govCfg)
	}
	return userFromModel(user)
}

// GetUser returns the user record for authority
func (e *Engine) GetUser(ctx context.Context, authority Identity) (*User, error) {
	var ret *User
	err := e.view(ctx, "get_user", func(txn *database.Txn) error {
		user, err := e.loadUser(authority, txn)
		if err != nil {
			return err
		}
		ret, err = userFromModel(user)
		return err
	})
	return ret, err
}
