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

package api

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/tally/database"
	"github.com/blinklabs-io/tally/governance"
)

var testNow = time.Unix(1_700_000_000, 0)

type testServer struct {
	server *Server
	engine *governance.Engine
	admin  ed25519.PrivateKey
	voter  ed25519.PrivateKey
	// signed advances the signing time so repeated requests differ
	signed int
}

func testKey(b byte) ed25519.PrivateKey {
	return ed25519.NewKeyFromSeed(bytes.Repeat([]byte{b}, ed25519.SeedSize))
}

func keyIdentity(t *testing.T, key ed25519.PrivateKey) governance.Identity {
	t.Helper()
	pub, ok := key.Public().(ed25519.PublicKey)
	require.True(t, ok)
	id, err := governance.IdentityFromBytes(pub)
	require.NoError(t, err)
	return id
}

func newTestServer(t *testing.T, cfg Config) *testServer {
	t.Helper()
	db, err := database.New(&database.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	engine, err := governance.NewEngine(governance.EngineConfig{
		Database: db,
		Clock:    func() time.Time { return testNow },
	})
	require.NoError(t, err)
	if cfg.Clock == nil {
		cfg.Clock = func() time.Time { return testNow }
	}
	return &testServer{
		server: New(cfg, engine, slog.New(slog.NewJSONHandler(io.Discard, nil))),
		engine: engine,
		admin:  testKey(0x01),
		voter:  testKey(0x02),
	}
}

func (ts *testServer) do(
	t *testing.T,
	key ed25519.PrivateKey,
	method string,
	path string,
	body any,
) *httptest.ResponseRecorder {
	t.Helper()
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(bodyBytes))
	if key != nil {
		ts.signed++
		SignRequest(req, key, bodyBytes, testNow.Add(time.Duration(ts.signed)*time.Second))
	}
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeResponse[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var ret T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ret), rec.Body.String())
	return ret
}

// setup initializes governance and registers the voter with 100 power
func (ts *testServer) setup(t *testing.T) {
	t.Helper()
	rec := ts.do(t, ts.admin, http.MethodPost, "/api/v1/initialize", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = ts.do(t, ts.admin, http.MethodPost, "/api/v1/users", RegisterUserRequest{
		Authority: keyIdentity(t, ts.voter),
		BasePower: 100,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func (ts *testServer) propose(t *testing.T, title string) ProposalResponse {
	t.Helper()
	rec := ts.do(t, ts.voter, http.MethodPost, "/api/v1/proposals", CreateProposalRequest{
		Title:           title,
		Description:     "description of " + title,
		DurationSeconds: 3600,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeResponse[ProposalResponse](t, rec)
}

func TestGovernanceFlow(t *testing.T) {
	ts := newTestServer(t, Config{})
	ts.setup(t)
	voter := keyIdentity(t, ts.voter)

	rec := ts.do(t, nil, http.MethodGet, "/api/v1/config", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cfg := decodeResponse[governance.Config](t, rec)
	assert.Equal(t, keyIdentity(t, ts.admin), cfg.Admin)
	assert.Equal(t, uint64(100), cfg.TotalBasePower)

	proposal := ts.propose(t, "upgrade")
	assert.Equal(t, uint64(0), proposal.ID)
	assert.Equal(t, governance.ProposalKey(0), proposal.Key)
	assert.Equal(t, voter, proposal.Creator)

	rec = ts.do(t, ts.voter, http.MethodPost, "/api/v1/proposals/0/votes", VoteRequest{
		Choice: governance.VoteYes,
		Power:  49,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	vote := decodeResponse[VoteRecordResponse](t, rec)
	assert.Equal(t, uint64(7), vote.Weight)
	assert.True(t, vote.HasVoted)
	assert.Equal(t, governance.VoteRecordKey(voter, 0), vote.Key)

	rec = ts.do(t, nil, http.MethodGet, "/api/v1/proposals/0/votes/"+voter.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, governance.VoteYes, decodeResponse[VoteRecordResponse](t, rec).Choice)

	rec = ts.do(t, nil, http.MethodGet, "/api/v1/users/"+voter.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	user := decodeResponse[UserResponse](t, rec)
	assert.Equal(t, uint64(101), user.Reputation)
	assert.Equal(t, uint64(100), user.EffectivePower)

	rec = ts.do(t, ts.admin, http.MethodPost, "/api/v1/proposals/0/finalize", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	final := decodeResponse[ProposalResponse](t, rec)
	assert.Equal(t, governance.ProposalStatusPassed, final.Status)
	assert.Equal(t, uint64(7), final.YesVotes)

	rec = ts.do(t, nil, http.MethodGet, "/api/v1/events?after=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	events := decodeResponse[EventsResponse](t, rec)
	require.Len(t, events.Events, 3)
	assert.Equal(t, governance.ProposalCreatedEventType, events.Events[0].Type)
	assert.Equal(t, governance.VoteEventType, events.Events[1].Type)
	assert.Equal(t, governance.ProposalFinalizedEventType, events.Events[2].Type)
	assert.Equal(t, uint64(5), events.LastSeq)
}

func TestDelegationEndpoints(t *testing.T) {
	ts := newTestServer(t, Config{})
	ts.setup(t)
	other := testKey(0x03)
	rec := ts.do(t, ts.admin, http.MethodPost, "/api/v1/users", RegisterUserRequest{
		Authority: keyIdentity(t, other),
		BasePower: 10,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.do(t, ts.voter, http.MethodPost, "/api/v1/delegate", DelegateRequest{
		Delegatee: keyIdentity(t, other),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	user := decodeResponse[UserResponse](t, rec)
	require.NotNil(t, user.DelegatedTo)
	assert.Equal(t, keyIdentity(t, other), *user.DelegatedTo)
	assert.Equal(t, uint64(0), user.EffectivePower)

	rec = ts.do(t, ts.voter, http.MethodPost, "/api/v1/delegate", DelegateRequest{
		Delegatee: keyIdentity(t, ts.voter),
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, ts.voter, http.MethodPost, "/api/v1/undelegate", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	user = decodeResponse[UserResponse](t, rec)
	assert.Nil(t, user.DelegatedTo)
	assert.Equal(t, uint64(100), user.EffectivePower)
}

func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t, Config{})

	rec := ts.do(t, nil, http.MethodGet, "/api/v1/config", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "state-precondition", decodeResponse[ErrorResponse](t, rec).Kind)

	ts.setup(t)

	rec = ts.do(t, ts.admin, http.MethodPost, "/api/v1/initialize", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, ts.voter, http.MethodPost, "/api/v1/users", RegisterUserRequest{
		Authority: keyIdentity(t, testKey(0x04)),
		BasePower: 1,
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "authorization", decodeResponse[ErrorResponse](t, rec).Kind)

	rec = ts.do(t, ts.admin, http.MethodPost, "/api/v1/users", RegisterUserRequest{
		Authority: keyIdentity(t, testKey(0x04)),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "input-validation", decodeResponse[ErrorResponse](t, rec).Kind)

	rec = ts.do(t, nil, http.MethodGet, "/api/v1/proposals/99", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not-found", decodeResponse[ErrorResponse](t, rec).Kind)

	rec = ts.do(t, nil, http.MethodGet, "/api/v1/proposals/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, nil, http.MethodGet, "/api/v1/users/xyz", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	ts.propose(t, "first")
	vote := VoteRequest{Choice: governance.VoteNo, Power: 4}
	rec = ts.do(t, ts.voter, http.MethodPost, "/api/v1/proposals/0/votes", vote)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = ts.do(t, ts.voter, http.MethodPost, "/api/v1/proposals/0/votes", vote)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, ts.voter, http.MethodPost, "/api/v1/proposals/0/votes", map[string]any{
		"power": 4,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, ts.admin, http.MethodPost, "/api/v1/proposals/0/finalize", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(t, ts.admin, http.MethodPost, "/api/v1/proposals/0/finalize", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	errResp := decodeResponse[ErrorResponse](t, rec)
	assert.Equal(t, "rejected", errResp.Status)
	assert.Equal(t, "Conflict", errResp.Error)
}

func TestSignatureRequired(t *testing.T) {
	ts := newTestServer(t, Config{})

	rec := ts.do(t, nil, http.MethodPost, "/api/v1/initialize", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Signed over a different body
	req := httptest.NewRequest(
		http.MethodPost,
		"/api/v1/users",
		strings.NewReader(`{"basePower":100}`),
	)
	SignRequest(req, ts.admin, []byte(`{"basePower":1}`), testNow)
	rec = httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/initialize", nil)
	SignRequest(req, ts.admin, nil, testNow.Add(-time.Hour))
	rec = httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), ErrStaleSignature.Error())

	req = httptest.NewRequest(http.MethodPost, "/api/v1/initialize", nil)
	SignRequest(req, ts.admin, nil, testNow)
	req.Header.Set(HeaderSignature, hex.EncodeToString(make([]byte, ed25519.SignatureSize)))
	rec = httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestReplayedSignatureRejected(t *testing.T) {
	ts := newTestServer(t, Config{})
	ts.setup(t)
	body := []byte(`{"title":"replayed","description":"once","durationSeconds":3600}`)
	send := func(signedAt time.Time) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/proposals", bytes.NewReader(body))
		SignRequest(req, ts.voter, body, signedAt)
		rec := httptest.NewRecorder()
		ts.server.Handler().ServeHTTP(rec, req)
		return rec
	}

	rec := send(testNow)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = send(testNow)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), ErrReplayedSignature.Error())

	// A fresh signature for the same body is a new request
	rec = send(testNow.Add(time.Second))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	proposals, err := ts.engine.ListProposals(context.Background(), governance.ProposalQuery{})
	require.NoError(t, err)
	assert.Len(t, proposals, 2)
}

func TestReplayGuard(t *testing.T) {
	guard := newReplayGuard(2, time.Minute)
	a := keyIdentity(t, testKey(0x0a))
	b := keyIdentity(t, testKey(0x0b))
	sig := []byte{1, 2, 3}

	require.NoError(t, guard.check(a, sig))
	assert.ErrorIs(t, guard.check(a, sig), ErrReplayedSignature)
	assert.NoError(t, guard.check(b, sig))
	assert.NoError(t, guard.check(a, []byte{4}))
}

func TestBodyTooLarge(t *testing.T) {
	ts := newTestServer(t, Config{MaxBodyBytes: 16})
	rec := ts.do(t, ts.voter, http.MethodPost, "/api/v1/proposals", CreateProposalRequest{
		Title:           "a title that is long enough",
		DurationSeconds: 60,
	})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestListProposalsPagination(t *testing.T) {
	ts := newTestServer(t, Config{})
	ts.setup(t)
	for i := range 3 {
		ts.propose(t, fmt.Sprintf("proposal %d", i))
	}

	rec := ts.do(t, nil, http.MethodGet, "/api/v1/proposals?count=2&page=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodeResponse[[]ProposalResponse](t, rec)
	require.Len(t, page, 1)
	assert.Equal(t, uint64(2), page[0].ID)
	assert.Equal(t, "3", rec.Header().Get("X-Pagination-Count-Total"))
	assert.Equal(t, "2", rec.Header().Get("X-Pagination-Page-Total"))

	rec = ts.do(t, nil, http.MethodGet, "/api/v1/proposals?order=desc", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page = decodeResponse[[]ProposalResponse](t, rec)
	require.Len(t, page, 3)
	assert.Equal(t, uint64(2), page[0].ID)

	rec = ts.do(t, ts.admin, http.MethodPost, "/api/v1/proposals/1/finalize", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(t, nil, http.MethodGet, "/api/v1/proposals?status=rejected", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page = decodeResponse[[]ProposalResponse](t, rec)
	require.Len(t, page, 1)
	assert.Equal(t, uint64(1), page[0].ID)
	assert.Empty(t, rec.Header().Get("X-Pagination-Count-Total"))

	for _, query := range []string{"count=0", "count=101", "page=0", "order=up", "status=open"} {
		rec = ts.do(t, nil, http.MethodGet, "/api/v1/proposals?"+query, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, query)
	}
}

func TestEventsParameters(t *testing.T) {
	ts := newTestServer(t, Config{})
	ts.setup(t)

	rec := ts.do(t, nil, http.MethodGet, "/api/v1/events?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	events := decodeResponse[EventsResponse](t, rec)
	require.Len(t, events.Events, 1)
	assert.Equal(t, governance.InitializedEventType, events.Events[0].Type)
	assert.Equal(t, uint64(1), events.LastSeq)

	rec = ts.do(t, nil, http.MethodGet, "/api/v1/events?after=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	events = decodeResponse[EventsResponse](t, rec)
	assert.Empty(t, events.Events)
	assert.Equal(t, uint64(10), events.LastSeq)

	for _, query := range []string{"after=-1", "limit=0", "limit=1001"} {
		rec = ts.do(t, nil, http.MethodGet, "/api/v1/events?"+query, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, query)
	}
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, Config{MaxRequestsPerIP: 1})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	key := ipKeyFromRemoteAddr(req.RemoteAddr)
	require.NotEmpty(t, key)

	require.True(t, ts.server.limiter.acquire(key))
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	ts.server.limiter.release(key)
	rec = httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, ts.server.limiter.inFlight(key))
}

func TestIPKeyFromRemoteAddr(t *testing.T) {
	assert.Equal(t, "192.0.2.1", ipKeyFromRemoteAddr("192.0.2.1:1234"))
	assert.Equal(
		t,
		ipKeyFromRemoteAddr("[2001:db8::1]:80"),
		ipKeyFromRemoteAddr("[2001:db8::ffff]:443"),
	)
	assert.Empty(t, ipKeyFromRemoteAddr("not-an-address"))
}

func TestGraphQL(t *testing.T) {
	ts := newTestServer(t, Config{})
	ts.setup(t)
	ts.propose(t, "graphql")

	query := func(q string) map[string]any {
		body, err := json.Marshal(map[string]string{"query": q})
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/graphql", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		ts.server.Handler().ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		return decodeResponse[map[string]any](t, rec)
	}

	resp := query(`{ proposal(id: "0") { title status yesVotes } config { proposalCount } }`)
	assert.Equal(t, map[string]any{
		"proposal": map[string]any{
			"title":    "graphql",
			"status":   "active",
			"yesVotes": "0",
		},
		"config": map[string]any{"proposalCount": "1"},
	}, resp["data"])

	voter := keyIdentity(t, ts.voter)
	resp = query(fmt.Sprintf(
		`{ user(authority: %q) { basePower effectivePower } missing: proposal(id: "7") { id } }`,
		voter.String(),
	))
	assert.Equal(t, map[string]any{
		"user": map[string]any{
			"basePower":      "100",
			"effectivePower": "100",
		},
		"missing": nil,
	}, resp["data"])
}

func TestStartStop(t *testing.T) {
	ts := newTestServer(t, Config{ListenAddress: "127.0.0.1:0"})
	require.NoError(t, ts.server.Start(t.Context()))
	addr := ts.server.Addr()
	require.NotNil(t, addr)
	require.Error(t, ts.server.Start(t.Context()))

	resp, err := http.Get("http://" + addr.String() + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.True(t, health.IsHealthy)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, ts.server.Stop(ctx))
	assert.Nil(t, ts.server.Addr())
}
