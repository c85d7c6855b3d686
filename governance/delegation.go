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

	"github.com/blinklabs-io/tally/database"
	"github.com/blinklabs-io/tally/database/models"
)

// Delegate routes the power of delegator to delegatee. The delegatee does not
// need to be registered.
func (e *Engine) Delegate(
	ctx context.Context,
	delegator Identity,
	delegatee Identity,
) error {
	if delegatee.IsZero() {
		return fmt.Errorf("%w: delegatee must be set", ErrInvalidIdentity)
	}
	err := e.update(
		ctx,
		"delegate",
		func(txn *database.Txn, _ int64, evts *pendingEvents) error {
			if _, err := e.loadConfig(txn); err != nil {
				return err
			}
			user, err := e.loadUser(delegator, txn)
			if err != nil {
				return err
			}
			if delegatee == delegator {
				return ErrSelfDelegation
			}
			if e.settings.DetectDelegationCycles {
				if err := e.checkDelegationCycle(delegator, delegatee, txn); err != nil {
					return err
				}
			}
			user.DelegatedTo = delegatee.Bytes()
			if err := e.db.SetUser(user, txn); err != nil {
				return err
			}
			target := delegatee
			evts.add(
				DelegationEventType,
				&DelegationEvent{Delegator: delegator, DelegatedTo: &target},
			)
			return nil
		},
	)
	if err != nil {
		return err
	}
	e.logger.Info(
		"delegation set",
		"component", "governance",
		"delegator", delegator.String(),
		"delegatee", delegatee.String(),
	)
	return nil
}

// Undelegate clears the delegation of user. It is a no-op when the user has
// not delegated.
func (e *Engine) Undelegate(ctx context.Context, user Identity) error {
	var changed bool
	err := e.update(
		ctx,
		"undelegate",
		func(txn *database.Txn, _ int64, evts *pendingEvents) error {
			if _, err := e.loadConfig(txn); err != nil {
				return err
			}
			record, err := e.loadUser(user, txn)
			if err != nil {
				return err
			}
			if !record.IsDelegated() {
				return nil
			}
			record.DelegatedTo = nil
			if err := e.db.SetUser(record, txn); err != nil {
				return err
			}
			changed = true
			evts.add(DelegationEventType, &DelegationEvent{Delegator: user})
			return nil
		},
	)
	if err != nil {
		return err
	}
	if changed {
		e.logger.Info(
			"delegation cleared",
			"component", "governance",
			"delegator", user.String(),
		)
	}
	return nil
}

// checkDelegationCycle follows the delegation chain from delegatee and fails
// if it reaches delegator. The walk visits each user at most once, so it
// stops after at most as many steps as there are registered users.
func (e *Engine) checkDelegationCycle(
	delegator Identity,
	delegatee Identity,
	txn *database.Txn,
) error {
	userCount, err := e.db.CountUsers(txn)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	visited := make(map[Identity]struct{})
	cur := delegatee
	for int64(len(visited)) <= userCount {
		if cur == delegator {
			return fmt.Errorf(
				"%w: %s already delegates to %s",
				ErrDelegationCycle,
				delegatee,
				delegator,
			)
		}
		if _, ok := visited[cur]; ok {
			return nil
		}
		visited[cur] = struct{}{}
		user, err := e.loadUser(cur, txn)
		if err != nil {
			if ClassOf(err) == ErrorClassNotFound {
				return nil
			}
			return err
		}
		if !user.IsDelegated() {
			return nil
		}
		next, err := IdentityFromBytes(user.DelegatedTo)
		if err != nil {
			return fmt.Errorf("decode delegatee of %s: %w", cur, err)
		}
		cur = next
	}
	return nil
}

func effectivePower(user *models.User) uint64 {
	if user.IsDelegated() {
		return 0
	}
	return uint64(user.BasePower)
}

// EffectivePower returns the power the user can commit to a vote: their base
// power, or 0 while delegated. Delegated power is not added to the
// delegatee.
func (e *Engine) EffectivePower(
	ctx context.Context,
	authority Identity,
) (uint64, error) {
	var ret uint64
	err := e.view(ctx, "effective_power", func(txn *database.Txn) error {
		user, err := e.loadUser(authority, txn)
		if err != nil {
			return err
		}
		ret = effectivePower(user)
		return nil
	})
	return ret, err
}
