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

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/blinklabs-io/tally/database/plugin/blob/badger"
	"github.com/blinklabs-io/tally/governance"
)

// isolate resets the global config and keeps the user's home directory,
// working directory and environment out of the test
func isolate(t *testing.T) string {
	t.Helper()
	globalConfig = defaultConfig()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Chdir(dir)
	return dir
}

func writeFile(t *testing.T, dir string, name string, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), cfg)
	assert.Equal(t, "0.0.0.0:8080", cfg.ApiListenAddress())
	assert.Equal(t, "0.0.0.0:12798", cfg.MetricsListenAddress())

	settings, err := cfg.Governance.Settings()
	require.NoError(t, err)
	assert.Equal(t, governance.DefaultSettings(), settings)
}

func TestLoadConfigFile(t *testing.T) {
	dir := isolate(t)
	path := writeFile(t, dir, "tally.yaml", `
config:
  databasePath: /var/lib/tally
  apiPort: 9000
  redisAddr: localhost:6379
  archiveUrl: gcs://results/tally
  governance:
    votingPolicy: binary
    enforceDeadline: true
    restrictFinalizeToAdmin: true
    maxTitleLength: 64
    maxDescriptionLength: 512
database:
  blob:
    plugin: badger
    badger:
      gc: false
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/tally", cfg.DatabasePath)
	assert.Equal(t, uint(9000), cfg.ApiPort)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, "gcs://results/tally", cfg.ArchiveUrl)
	assert.Equal(t, DefaultBlobPlugin, cfg.BlobPlugin)

	settings, err := cfg.Governance.Settings()
	require.NoError(t, err)
	assert.Equal(t, governance.PolicyBinary, settings.Policy.Kind)
	assert.True(t, settings.EnforceDeadline)
	assert.True(t, settings.RestrictFinalizeToAdmin)
	assert.True(t, settings.DetectDelegationCycles)
	assert.Equal(t, 64, settings.MaxTitleLength)
	assert.Equal(t, 512, settings.MaxDescriptionLength)
}

func TestLoadNestedConfigKeepsDefaults(t *testing.T) {
	dir := isolate(t)
	path := writeFile(t, dir, "tally.yaml", `
config:
  signatureMaxSkew: 2m
  governance:
    maxDescriptionLength: 2048
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	expected := defaultConfig()
	expected.SignatureMaxSkew = "2m"
	expected.Governance.MaxDescriptionLength = 2048
	assert.Equal(t, expected, cfg)

	settings, err := cfg.Governance.Settings()
	require.NoError(t, err)
	defaults := governance.DefaultSettings()
	assert.Equal(t, defaults.Policy, settings.Policy)
	assert.True(t, settings.Policy.QuadraticGuard)
	assert.True(t, settings.DetectDelegationCycles)
	assert.Equal(t, defaults.MaxTitleLength, settings.MaxTitleLength)
}

func TestLoadConfigSectionShape(t *testing.T) {
	dir := isolate(t)
	path := writeFile(t, dir, "tally.yaml", "config:\n")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), cfg)

	isolate(t)
	path = writeFile(t, dir, "bad.yaml", "config: [1, 2]\n")
	_, err = LoadConfig(path)
	assert.ErrorContains(t, err, "config section must be a mapping")
}

func TestLoadFlatConfigFile(t *testing.T) {
	dir := isolate(t)
	path := writeFile(t, dir, "tally.yaml", "metricsPort: 9100\ndebug: true\n")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, uint(9100), cfg.MetricsPort)
	assert.True(t, cfg.Debug)
}

func TestLoadUnknownPlugin(t *testing.T) {
	dir := isolate(t)
	path := writeFile(t, dir, "tally.yaml", `
database:
  blob:
    s3:
      bucket: results
`)
	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown blob plugin: s3")
}

func TestEnvironmentOverridesFile(t *testing.T) {
	dir := isolate(t)
	path := writeFile(t, dir, "tally.yaml", "apiPort: 9000\n")
	writeFile(t, dir, DefaultEnvFile, "TALLY_REDIS_ADDR=redis:6379\n")
	t.Setenv("TALLY_API_PORT", "9500")
	t.Setenv("TALLY_GOVERNANCE_REPUTATION_GAIN", "3")
	t.Setenv("TALLY_DATABASE_METADATA_PLUGIN", "postgres")
	t.Cleanup(func() { os.Unsetenv("TALLY_REDIS_ADDR") })

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, uint(9500), cfg.ApiPort)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.Equal(t, uint64(3), cfg.Governance.ReputationGain)
	assert.Equal(t, "postgres", cfg.MetadataPlugin)
}

func TestInvalidConfig(t *testing.T) {
	for _, content := range []string{
		"shutdownTimeout: soon\n",
		"signatureMaxSkew: 5\n",
		"governance:\n  votingPolicy: ranked\n",
		"apiPort: [\n",
	} {
		dir := isolate(t)
		path := writeFile(t, dir, "tally.yaml", content)
		_, err := LoadConfig(path)
		assert.Error(t, err, content)
	}
}

func TestLoadMissingFile(t *testing.T) {
	dir := isolate(t)
	_, err := LoadConfig(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}

func TestContext(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))
	cfg := defaultConfig()
	ctx := WithContext(context.Background(), cfg)
	assert.Same(t, cfg, FromContext(ctx))
}

func TestIsEncrypted(t *testing.T) {
	assert.True(t, isEncrypted([]byte("apiPort: ENC[AES256_GCM]\nsops:\n  version: 3.11.0\n")))
	assert.False(t, isEncrypted([]byte("apiPort: 8080\n")))
	assert.False(t, isEncrypted([]byte("- not a map\n")))
}
