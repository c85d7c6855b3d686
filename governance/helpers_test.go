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

package governance_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/tally/database"
	"github.com/blinklabs-io/tally/event"
	"github.com/blinklabs-io/tally/governance"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	engine *governance.Engine
	db     *database.Database
	bus    *event.EventBus
	clock  *testClock
	admin  governance.Identity
}

func newTestEnv(t *testing.T, settings *governance.Settings) *testEnv {
	t.Helper()
	db, err := database.New(&database.Config{})
	require.NoError(t, err)
	bus := event.NewEventBus(nil, nil)
	t.Cleanup(func() {
		bus.Stop()
		db.Close()
	})
	env := &testEnv{
		db:    db,
		bus:   bus,
		clock: newTestClock(),
		admin: testIdentity(0xaa),
	}
	cfg := governance.EngineConfig{
		Database: db,
		EventBus: bus,
		Clock:    env.clock.Now,
	}
	if settings != nil {
		cfg.Settings = *settings
	}
	env.engine, err = governance.NewEngine(cfg)
	require.NoError(t, err)
	return env
}

// newInitializedEnv returns an environment with the admin set
func newInitializedEnv(t *testing.T, settings *governance.Settings) *testEnv {
	t.Helper()
	env := newTestEnv(t, settings)
	require.NoError(t, env.engine.Initialize(context.Background(), env.admin))
	return env
}

func (env *testEnv) register(
	t *testing.T,
	target governance.Identity,
	basePower uint64,
) *governance.User {
	t.Helper()
	user, err := env.engine.RegisterUser(
		context.Background(),
		env.admin,
		target,
		basePower,
	)
	require.NoError(t, err)
	return user
}

func (env *testEnv) propose(t *testing.T, duration uint64) *governance.Proposal {
	t.Helper()
	proposal, err := env.engine.CreateProposal(
		context.Background(),
		governance.CreateProposalRequest{
			Proposer:        env.admin,
			Title:           "Treasury",
			Description:     "Fund the treasury",
			DurationSeconds: duration,
		},
	)
	require.NoError(t, err)
	return proposal
}

func testIdentity(b byte) governance.Identity {
	var ret governance.Identity
	for i := range ret {
		ret[i] = b
	}
	return ret
}

func binarySettings() *governance.Settings {
	settings := governance.DefaultSettings()
	settings.Policy = governance.BinaryPolicy()
	return &settings
}
