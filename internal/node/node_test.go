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

package node

import (
	"io"
	"log/slog"
	"testing"

	"github.com/blinklabs-io/tally/governance"
	"github.com/blinklabs-io/tally/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		BlobPlugin:       "badger",
		MetadataPlugin:   "sqlite",
		DatabasePath:     t.TempDir(),
		ShutdownTimeout:  "5s",
		SignatureMaxSkew: "1m",
		MaxRequestsPerIP: 8,
		Governance: config.GovernanceConfig{
			VotingPolicy:           "binary",
			MaxDescriptionLength:   governance.DefaultMaxDescriptionLength,
			MaxTitleLength:         governance.DefaultMaxTitleLength,
			DetectDelegationCycles: true,
		},
	}
}

func TestOpenPersistsState(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	cfg := testConfig(t)
	var admin governance.Identity
	admin[0] = 0x42

	n, err := Open(t.Context(), cfg, logger)
	require.NoError(t, err)
	assert.Nil(t, n.ApiAddr())
	assert.Equal(
		t,
		governance.PolicyBinary,
		n.Engine().Settings().Policy.Kind,
	)
	require.NoError(t, n.Engine().Initialize(t.Context(), admin))
	require.NoError(t, n.Stop())

	// Reopen the same data directory
	n, err = Open(t.Context(), cfg, logger)
	require.NoError(t, err)
	defer func() { _ = n.Stop() }()
	govCfg, err := n.Engine().GetConfig(t.Context())
	require.NoError(t, err)
	assert.Equal(t, admin, govCfg.Admin)
}

func TestNodeOptionsInvalid(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	tests := []struct {
		name   string
		modify func(*config.Config)
	}{
		{"shutdown timeout", func(c *config.Config) { c.ShutdownTimeout = "soon" }},
		{"signature skew", func(c *config.Config) { c.SignatureMaxSkew = "" }},
		{"voting policy", func(c *config.Config) { c.Governance.VotingPolicy = "ranked" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig(t)
			tc.modify(cfg)
			_, err := nodeOptions(cfg, logger)
			assert.Error(t, err)
			_, err = Open(t.Context(), cfg, logger)
			assert.Error(t, err)
		})
	}
}
