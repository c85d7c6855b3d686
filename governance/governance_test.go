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
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/tally/database"
	"github.com/blinklabs-io/tally/governance"
)

func TestDelegateUndelegate(t *testing.T) {
	env := newInitializedEnv(t, nil)
	ctx := context.Background()
	alice := testIdentity(1)
	bob := testIdentity(2)
	env.register(t, alice, 10)

	// Undelegate when not delegated is a no-op
	require.NoError(t, env.engine.Undelegate(ctx, alice))
	user, err := env.engine.GetUser(ctx, alice)
	require.NoError(t, err)
	assert.Nil(t, user.DelegatedTo)

	require.NoError(t, env.engine.Delegate(ctx, alice, bob))
	user, err = env.engine.GetUser(ctx, alice)
	require.NoError(t, err)
	require.NotNil(t, user.DelegatedTo)
	assert.Equal(t, bob, *user.DelegatedTo)

	require.NoError(t, env.engine.Undelegate(ctx, alice))
	user, err = env.engine.GetUser(ctx, alice)
	require.NoError(t, err)
	assert.Nil(t, user.DelegatedTo)
	power, err := env.engine.EffectivePower(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), power)

	require.NoError(t, env.engine.Undelegate(ctx, alice))
}

func TestDelegateErrors(t *testing.T) {
	env := newInitializedEnv(t, nil)
	ctx := context.Background()
	alice := testIdentity(1)
	env.register(t, alice, 10)

	err := env.engine.Delegate(ctx, alice, alice)
	require.ErrorIs(t, err, governance.ErrSelfDelegation)
	assert.Equal(t, governance.ErrorClassAuthorization, governance.ClassOf(err))

	err = env.engine.Delegate(ctx, testIdentity(9), alice)
	require.ErrorIs(t, err, governance.ErrUserNotFound)
	err = env.engine.Undelegate(ctx, testIdentity(9))
	require.ErrorIs(t, err, governance.ErrUserNotFound)
}

func TestDelegationCycle(t *testing.T) {
	env := newInitializedEnv(t, nil)
	ctx := context.Background()
	a, b, c := testIdentity(1), testIdentity(2), testIdentity(3)
	for _, id := range []governance.Identity{a, b, c} {
		env.register(t, id, 10)
	}
	require.NoError(t, env.engine.Delegate(ctx, a, b))
	require.NoError(t, env.engine.Delegate(ctx, b, c))
	err := env.engine.Delegate(ctx, c, a)
	require.ErrorIs(t, err, governance.ErrDelegationCycle)
	user, err := env.engine.GetUser(ctx, c)
	require.NoError(t, err)
	assert.Nil(t, user.DelegatedTo, "rejected delegation must not persist")

	// Redelegating along the chain is fine
	require.NoError(t, env.engine.Delegate(ctx, a, c))
}

func TestDelegationCycleDetectionDisabled(t *testing.T) {
	settings := governance.DefaultSettings()
	settings.DetectDelegationCycles = false
	env := newInitializedEnv(t, &settings)
	ctx := context.Background()
	a, b := testIdentity(1), testIdentity(2)
	env.register(t, a, 10)
	env.register(t, b, 10)
	require.NoError(t, env.engine.Delegate(ctx, a, b))
	require.NoError(t, env.engine.Delegate(ctx, b, a))
}

func TestEventsJournaledAndPublished(t *testing.T) {
	env := newInitializedEnv(t, binarySettings())
	ctx := context.Background()
	_, voteCh := env.bus.Subscribe(governance.VoteEventType)
	_, finalCh := env.bus.Subscribe(governance.ProposalFinalizedEventType)
	proposal := env.propose(t, 100)
	_, err := env.engine.Vote(
		ctx,
		governance.VoteRequest{
			Voter:      testIdentity(1),
			ProposalID: proposal.ID,
			Choice:     governance.VoteYes,
		},
	)
	require.NoError(t, err)
	_, err = env.engine.FinalizeProposal(ctx, env.admin, proposal.ID)
	require.NoError(t, err)

	select {
	case evt := <-voteCh:
		voteEvt, ok := evt.Data.(*governance.VoteEvent)
		require.True(t, ok)
		assert.Equal(t, proposal.ID, voteEvt.ProposalID)
		assert.Equal(t, testIdentity(1), voteEvt.Voter)
		assert.Equal(t, governance.VoteYes, voteEvt.Choice)
		assert.Equal(t, uint64(1), voteEvt.Weight)
		assert.Equal(t, uint64(3), voteEvt.Seq)
		assert.Equal(
			t,
			governance.VoteRecordKey(testIdentity(1), proposal.ID),
			voteEvt.Key,
		)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for vote event")
	}
	select {
	case evt := <-finalCh:
		finalEvt, ok := evt.Data.(*governance.ProposalFinalizedEvent)
		require.True(t, ok)
		assert.Equal(t, governance.ProposalStatusPassed, finalEvt.Status)
		assert.Equal(t, uint64(1), finalEvt.YesVotes)
		assert.Zero(t, finalEvt.NoVotes)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for finalized event")
	}

	events, err := env.engine.Events(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 4)
	expected := []string{
		string(governance.InitializedEventType),
		string(governance.ProposalCreatedEventType),
		string(governance.VoteEventType),
		string(governance.ProposalFinalizedEventType),
	}
	for i, evt := range events {
		assert.Equal(t, uint64(i+1), evt.Seq)
		assert.Equal(t, expected[i], string(evt.Type))
	}
	payload, err := events[2].Decode()
	require.NoError(t, err)
	voteEvt, ok := payload.(*governance.VoteEvent)
	require.True(t, ok)
	assert.Equal(t, uint64(3), voteEvt.Seq)

	page, err := env.engine.Events(ctx, 2, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, uint64(3), page[0].Seq)
}

func TestJournalSurvivesReopen(t *testing.T) {
	dataDir := t.TempDir()
	db, err := database.New(&database.Config{DataDir: dataDir})
	require.NoError(t, err)
	engine, err := governance.NewEngine(governance.EngineConfig{Database: db})
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, engine.Initialize(ctx, testIdentity(0xaa)))
	_, err = engine.RegisterUser(ctx, testIdentity(0xaa), testIdentity(1), 5)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = database.New(&database.Config{DataDir: dataDir})
	require.NoError(t, err)
	defer db.Close()
	engine, err = governance.NewEngine(governance.EngineConfig{Database: db})
	require.NoError(t, err)
	cfg, err := engine.GetConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), cfg.TotalBasePower)
	events, err := engine.Events(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestEngineMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	db, err := database.New(&database.Config{})
	require.NoError(t, err)
	defer db.Close()
	engine, err := governance.NewEngine(
		governance.EngineConfig{Database: db, PromRegistry: reg},
	)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, engine.Initialize(ctx, testIdentity(0xaa)))
	_, err = engine.RegisterUser(ctx, testIdentity(0xaa), testIdentity(1), 40)
	require.NoError(t, err)
	_, err = engine.RegisterUser(ctx, testIdentity(0xbb), testIdentity(2), 40)
	require.Error(t, err)
	expected := `
# HELP tally_governance_total_base_power sum of base power over registered users
# TYPE tally_governance_total_base_power gauge
tally_governance_total_base_power 40
# HELP tally_governance_operations_total total governance operations by result
# TYPE tally_governance_operations_total counter
tally_governance_operations_total{operation="initialize",result="ok"} 1
tally_governance_operations_total{operation="register_user",result="authorization"} 1
tally_governance_operations_total{operation="register_user",result="ok"} 1
`
	require.NoError(
		t,
		testutil.GatherAndCompare(
			reg,
			strings.NewReader(expected),
			"tally_governance_total_base_power",
			"tally_governance_operations_total",
		),
	)
}

func TestQuadraticWeight(t *testing.T) {
	testDefs := []struct {
		power  uint64
		weight uint64
	}{
		{0, 0},
		{1, 1},
		{2, 1},
		{3, 1},
		{4, 2},
		{50, 7},
		{99, 9},
		{100, 10},
		{1 << 62, 1 << 31},
		{18446744073709551615, 4294967295},
	}
	for _, testDef := range testDefs {
		assert.Equal(
			t,
			testDef.weight,
			governance.QuadraticWeight(testDef.power),
			"power %d",
			testDef.power,
		)
	}
}

func TestRecordKeys(t *testing.T) {
	id := testIdentity(1)
	assert.Len(t, governance.UserKey(id), 64)
	assert.Equal(t, governance.UserKey(id), governance.UserKey(id))
	assert.NotEqual(t, governance.UserKey(id), governance.UserKey(testIdentity(2)))
	assert.NotEqual(t, governance.ProposalKey(0), governance.ProposalKey(1))
	assert.NotEqual(
		t,
		governance.VoteRecordKey(id, 0),
		governance.VoteRecordKey(id, 1),
	)
	assert.Equal(
		t,
		governance.RecordKey("user", id.Bytes()),
		governance.UserKey(id),
	)
}

func TestParseHelpers(t *testing.T) {
	id := testIdentity(0x0f)
	parsed, err := governance.ParseIdentity(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
	_, err = governance.ParseIdentity("abcd")
	require.ErrorIs(t, err, governance.ErrInvalidIdentity)

	choice, err := governance.ParseVoteChoice("YES")
	require.NoError(t, err)
	assert.Equal(t, governance.VoteYes, choice)
	_, err = governance.ParseVoteChoice("maybe")
	require.ErrorIs(t, err, governance.ErrInvalidChoice)

	status, err := governance.ParseProposalStatus("rejected")
	require.NoError(t, err)
	assert.True(t, status.Terminal())

	kind, err := governance.ParsePolicyKind("binary")
	require.NoError(t, err)
	assert.Equal(t, governance.PolicyBinary, kind)
	_, err = governance.ParsePolicyKind("ranked")
	require.Error(t, err)
}

func TestClassOfInternal(t *testing.T) {
	assert.Equal(t, governance.ErrorClassInternal, governance.ClassOf(nil))
	assert.Equal(
		t,
		governance.ErrorClassInternal,
		governance.ClassOf(context.Canceled),
	)
	assert.Equal(t, "not-found", governance.ErrorClassNotFound.String())
}

func TestNewEngineValidation(t *testing.T) {
	_, err := governance.NewEngine(governance.EngineConfig{})
	require.Error(t, err)
	db, err := database.New(&database.Config{})
	require.NoError(t, err)
	defer db.Close()
	settings := governance.DefaultSettings()
	settings.MaxDescriptionLength = 0
	_, err = governance.NewEngine(
		governance.EngineConfig{Database: db, Settings: settings},
	)
	require.Error(t, err)
	engine, err := governance.NewEngine(governance.EngineConfig{Database: db})
	require.NoError(t, err)
	assert.Equal(t, governance.DefaultSettings(), engine.Settings())
}

func TestNewEngineKeepsSettingsWithoutPolicy(t *testing.T) {
	db, err := database.New(&database.Config{})
	require.NoError(t, err)
	defer db.Close()
	settings := governance.DefaultSettings()
	settings.Policy = governance.VotingPolicy{}
	settings.EnforceDeadline = true
	settings.RestrictFinalizeToAdmin = true
	settings.DetectDelegationCycles = false
	engine, err := governance.NewEngine(
		governance.EngineConfig{Database: db, Settings: settings},
	)
	require.NoError(t, err)

	expected := settings
	expected.Policy = governance.DefaultSettings().Policy
	assert.Equal(t, expected, engine.Settings())
}

func TestClassOfMultipleSentinels(t *testing.T) {
	err := errors.Join(governance.ErrUnauthorized, governance.ErrProposalNotFound)
	for range 50 {
		assert.Equal(t, governance.ErrorClassAuthorization, governance.ClassOf(err))
	}
	err = fmt.Errorf(
		"rollback failed: %w: original error: %w",
		governance.ErrProposalNotFound,
		governance.ErrAlreadyVoted,
	)
	for range 50 {
		assert.Equal(t, governance.ErrorClassStatePrecondition, governance.ClassOf(err))
	}
}
