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

package tally

import (
	"testing"
	"time"

	"github.com/blinklabs-io/tally/governance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()
	assert.NotNil(t, cfg.logger)
	assert.Equal(t, governance.DefaultSettings(), cfg.settings)
	assert.Empty(t, cfg.dataDir)
	assert.Empty(t, cfg.apiListenAddress)
	assert.NoError(t, cfg.validate())
}

func TestConfigOptions(t *testing.T) {
	settings := governance.DefaultSettings()
	settings.Policy = governance.BinaryPolicy()
	cfg := NewConfig(
		WithDatabasePath("/tmp/tally"),
		WithBlobPlugin("badger"),
		WithMetadataPlugin("sqlite"),
		WithApiListenAddress("127.0.0.1:9000"),
		WithMaxRequestsPerIP(-1),
		WithSignatureMaxSkew(time.Minute),
		WithGovernanceSettings(settings),
		WithRedis("localhost:6379", "secret", 2, "gov"),
		WithArchive("gcs://results/tally", "/etc/tally/gcs.json"),
		WithTracing(true),
		WithTracingStdout(true),
		WithShutdownTimeout(5*time.Second),
	)
	assert.Equal(t, "/tmp/tally", cfg.dataDir)
	assert.Equal(t, "badger", cfg.blobPlugin)
	assert.Equal(t, "sqlite", cfg.metadataPlugin)
	assert.Equal(t, "127.0.0.1:9000", cfg.apiListenAddress)
	assert.Equal(t, -1, cfg.maxRequestsPerIP)
	assert.Equal(t, time.Minute, cfg.signatureMaxSkew)
	assert.Equal(t, governance.PolicyBinary, cfg.settings.Policy.Kind)
	assert.Equal(t, "localhost:6379", cfg.redisAddr)
	assert.Equal(t, "secret", cfg.redisPassword)
	assert.Equal(t, 2, cfg.redisDB)
	assert.Equal(t, "gov", cfg.redisChannelPrefix)
	assert.Equal(t, "gcs://results/tally", cfg.archiveUrl)
	assert.Equal(t, "/etc/tally/gcs.json", cfg.archiveCredentialsFile)
	assert.True(t, cfg.tracing)
	assert.True(t, cfg.tracingStdout)
	assert.Equal(t, 5*time.Second, cfg.shutdownTimeout)
	require.NoError(t, cfg.validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		opt  ConfigOptionFunc
	}{
		{"max requests", WithMaxRequestsPerIP(-2)},
		{"signature skew", WithSignatureMaxSkew(-time.Second)},
		{"shutdown timeout", WithShutdownTimeout(-time.Second)},
		{"archive url", WithArchive("s3://bucket", "")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewConfig(tc.opt)
			assert.Error(t, cfg.validate())
			_, err := New(cfg)
			assert.ErrorContains(t, err, "invalid configuration")
		})
	}
}
