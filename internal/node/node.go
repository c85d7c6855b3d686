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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof" // #nosec G108
	"os/signal"
	"syscall"
	"time"

	"github.com/blinklabs-io/tally"
	"github.com/blinklabs-io/tally/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// nodeOptions translates the loaded configuration into node options
func nodeOptions(
	cfg *config.Config,
	logger *slog.Logger,
) ([]tally.ConfigOptionFunc, error) {
	shutdownTimeout, err := time.ParseDuration(cfg.ShutdownTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid shutdown timeout: %w", err)
	}
	signatureMaxSkew, err := time.ParseDuration(cfg.SignatureMaxSkew)
	if err != nil {
		return nil, fmt.Errorf("invalid signature max skew: %w", err)
	}
	settings, err := cfg.Governance.Settings()
	if err != nil {
		return nil, err
	}
	return []tally.ConfigOptionFunc{
		tally.WithLogger(logger),
		tally.WithDatabasePath(cfg.DatabasePath),
		tally.WithBlobPlugin(cfg.BlobPlugin),
		tally.WithMetadataPlugin(cfg.MetadataPlugin),
		tally.WithGovernanceSettings(settings),
		tally.WithSignatureMaxSkew(signatureMaxSkew),
		tally.WithMaxRequestsPerIP(cfg.MaxRequestsPerIP),
		tally.WithShutdownTimeout(shutdownTimeout),
	}, nil
}

func Run(cfg *config.Config, logger *slog.Logger) error {
	logger.Debug(fmt.Sprintf("config: %+v", cfg), "component", "node")
	opts, err := nodeOptions(cfg, logger)
	if err != nil {
		return err
	}
	apiListenAddress := ""
	if cfg.ApiPort > 0 {
		apiListenAddress = cfg.ApiListenAddress()
	}
	opts = append(
		opts,
		tally.WithApiListenAddress(apiListenAddress),
		tally.WithRedis(
			cfg.RedisAddr,
			cfg.RedisPassword,
			cfg.RedisDB,
			cfg.RedisChannelPrefix,
		),
		tally.WithArchive(cfg.ArchiveUrl, cfg.ArchiveCredentialsFile),
		tally.WithTracing(cfg.Tracing),
		tally.WithTracingStdout(cfg.TracingStdout),
		// Enable metrics with default prometheus registry
		tally.WithPrometheusRegistry(prometheus.DefaultRegisterer),
	)
	n, err := tally.New(tally.NewConfig(opts...))
	if err != nil {
		return err
	}
	// Parsed above by nodeOptions
	shutdownTimeout, _ := time.ParseDuration(cfg.ShutdownTimeout)

	// Metrics and debug listener
	var metricsServer *http.Server
	if cfg.MetricsPort > 0 {
		http.Handle("/metrics", promhttp.Handler())
		logger.Info(
			"serving prometheus metrics on "+cfg.MetricsListenAddress(),
			"component", "node",
		)
		metricsServer = &http.Server{
			Addr:              cfg.MetricsListenAddress(),
			ReadHeaderTimeout: 60 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil &&
				!errors.Is(err, http.ErrServerClosed) {
				logger.Error(
					fmt.Sprintf("failed to start metrics listener: %s", err),
					"component", "node",
				)
			}
		}()
	}
	shutdownMetrics := func() {
		if metricsServer == nil {
			return
		}
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			shutdownTimeout,
		)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", "error", err)
		}
	}
	defer shutdownMetrics()

	// Wait for interrupt/termination signal
	signalCtx, signalCtxStop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer signalCtxStop()

	if err := n.Run(signalCtx); err != nil {
		logger.Error("node error", "error", err)
		return err
	}
	if signalCtx.Err() != nil {
		logger.Info("signal received, initiating graceful shutdown")
	}
	if err := n.Stop(); err != nil {
		logger.Error("shutdown errors occurred", "error", err)
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

// Open starts a node with only the database and governance engine, for
// one-shot CLI operations against the local data directory. The caller must
// call Stop on the returned node.
func Open(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
) (*tally.Node, error) {
	opts, err := nodeOptions(cfg, logger)
	if err != nil {
		return nil, err
	}
	n, err := tally.New(tally.NewConfig(opts...))
	if err != nil {
		return nil, err
	}
	if err := n.Start(ctx); err != nil {
		return nil, err
	}
	return n, nil
}
