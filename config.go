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
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/blinklabs-io/tally/archive"
	"github.com/blinklabs-io/tally/governance"
	"github.com/prometheus/client_golang/prometheus"
)

type Config struct {
	promRegistry     prometheus.Registerer
	logger           *slog.Logger
	clock            func() time.Time
	dataDir          string
	blobPlugin       string
	metadataPlugin   string
	apiListenAddress string
	maxRequestsPerIP int
	signatureMaxSkew time.Duration
	settings         governance.Settings
	// Redis event relay (empty address = disabled)
	redisAddr          string
	redisPassword      string
	redisDB            int
	redisChannelPrefix string
	// Result archive (empty URL and nil sink = disabled)
	archiveUrl             string
	archiveCredentialsFile string
	archiveSink            archive.Sink
	tracing                bool
	tracingStdout          bool
	shutdownTimeout        time.Duration
}

// ConfigOptionFunc modifies a node Config
type ConfigOptionFunc func(*Config)

// NewConfig creates a new tally config with the specified options
func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		// Default logger will throw away logs
		// We do this so we don't have to add guards around every log operation
		logger:   slog.New(slog.NewJSONHandler(io.Discard, nil)),
		settings: governance.DefaultSettings(),
	}
	// Apply options
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func (c *Config) validate() error {
	if c.maxRequestsPerIP < -1 {
		return errors.New("max requests per IP must be -1 (unlimited) or greater")
	}
	if c.signatureMaxSkew < 0 {
		return errors.New("signature max skew must not be negative")
	}
	if c.shutdownTimeout < 0 {
		return errors.New("shutdown timeout must not be negative")
	}
	if c.archiveUrl != "" && c.archiveSink == nil {
		if _, _, err := archive.ParseGCSURL(c.archiveUrl); err != nil {
			return err
		}
	}
	return nil
}

// WithLogger specifies the logger to use. This defaults to discarding log output
func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithPrometheusRegistry specifies a prometheus.Registerer instance to add metrics to. In most cases, prometheus.DefaultRegistry would be
// a good choice to get metrics working
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithClock overrides the time source used for proposal timing and request
// signature checks
func WithClock(clock func() time.Time) ConfigOptionFunc {
	return func(c *Config) {
		c.clock = clock
	}
}

// WithDatabasePath specifies the persistent data directory to use. The default is to store everything in memory
func WithDatabasePath(dataDir string) ConfigOptionFunc {
	return func(c *Config) {
		c.dataDir = dataDir
	}
}

// WithBlobPlugin specifies the blob storage plugin to use.
func WithBlobPlugin(plugin string) ConfigOptionFunc {
	return func(c *Config) {
		c.blobPlugin = plugin
	}
}

// WithMetadataPlugin specifies the metadata storage plugin to use.
func WithMetadataPlugin(plugin string) ConfigOptionFunc {
	return func(c *Config) {
		c.metadataPlugin = plugin
	}
}

// WithApiListenAddress specifies the listen address for the governance API.
// An empty address disables the API server
func WithApiListenAddress(addr string) ConfigOptionFunc {
	return func(c *Config) {
		c.apiListenAddress = addr
	}
}

// WithMaxRequestsPerIP bounds concurrent API requests from a single client IP.
// Use -1 for unlimited
func WithMaxRequestsPerIP(limit int) ConfigOptionFunc {
	return func(c *Config) {
		c.maxRequestsPerIP = limit
	}
}

// WithSignatureMaxSkew sets how far a request signature timestamp may drift
// from the local clock
func WithSignatureMaxSkew(skew time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.signatureMaxSkew = skew
	}
}

// WithGovernanceSettings specifies the voting policy and limits for the engine
func WithGovernanceSettings(settings governance.Settings) ConfigOptionFunc {
	return func(c *Config) {
		c.settings = settings
	}
}

// WithRedis enables publishing governance events to Redis pub/sub
func WithRedis(
	addr string,
	password string,
	db int,
	channelPrefix string,
) ConfigOptionFunc {
	return func(c *Config) {
		c.redisAddr = addr
		c.redisPassword = password
		c.redisDB = db
		c.redisChannelPrefix = channelPrefix
	}
}

// WithArchive enables archiving finalized proposal results to a gcs:// URL
func WithArchive(url string, credentialsFile string) ConfigOptionFunc {
	return func(c *Config) {
		c.archiveUrl = url
		c.archiveCredentialsFile = credentialsFile
	}
}

// WithArchiveSink enables archiving finalized proposal results to sink
func WithArchiveSink(sink archive.Sink) ConfigOptionFunc {
	return func(c *Config) {
		c.archiveSink = sink
	}
}

// WithTracing enables tracing. By default, spans are submitted to a HTTP(s) OTLP collector
func WithTracing(tracing bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracing = tracing
	}
}

// WithTracingStdout enables tracing output to stdout. This also requires tracing to enabled separately. This is mostly useful for debugging
func WithTracingStdout(stdout bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracingStdout = stdout
	}
}

// WithShutdownTimeout specifies the timeout for graceful shutdown. The default is 30 seconds
func WithShutdownTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.shutdownTimeout = timeout
	}
}
