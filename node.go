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
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/blinklabs-io/tally/api"
	"github.com/blinklabs-io/tally/archive"
	"github.com/blinklabs-io/tally/database"
	"github.com/blinklabs-io/tally/event"
	"github.com/blinklabs-io/tally/event/redis"
	"github.com/blinklabs-io/tally/governance"
)

type Node struct {
	eventBus      *event.EventBus
	db            *database.Database
	engine        *governance.Engine
	apiServer     *api.Server
	archiver      *archive.Archiver
	relay         *redis.Relay
	shutdownFuncs []func(context.Context) error
	config        Config
	done          chan struct{}
	shutdownOnce  sync.Once
	startOnce     sync.Once
}

func New(cfg Config) (*Node, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	eventBus := event.NewEventBus(cfg.promRegistry, cfg.logger)
	n := &Node{
		config:   cfg,
		eventBus: eventBus,
		done:     make(chan struct{}),
	}
	return n, nil
}

// Start opens the database and starts every enabled component without
// blocking. Any failure stops the components started so far.
func (n *Node) Start(ctx context.Context) error {
	err := errors.New("node already started")
	n.startOnce.Do(func() {
		err = n.start(ctx)
		if err != nil {
			if stopErr := n.Stop(); stopErr != nil {
				n.config.logger.Warn(
					"failed to stop partially started node",
					"error", stopErr,
				)
			}
		}
	})
	return err
}

func (n *Node) start(ctx context.Context) error {
	// Configure tracing
	if n.config.tracing {
		if err := n.setupTracing(ctx); err != nil {
			return err
		}
	}
	// Load database
	db, err := database.New(&database.Config{
		DataDir:        n.config.dataDir,
		BlobPlugin:     n.config.blobPlugin,
		MetadataPlugin: n.config.metadataPlugin,
		Logger:         n.config.logger,
		PromRegistry:   n.config.promRegistry,
	})
	// A database returned alongside an error still needs closing
	n.db = db
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	// Governance engine
	engine, err := governance.NewEngine(governance.EngineConfig{
		Database:     n.db,
		EventBus:     n.eventBus,
		Logger:       n.config.logger,
		PromRegistry: n.config.promRegistry,
		Clock:        n.config.clock,
		Settings:     n.config.settings,
	})
	if err != nil {
		return fmt.Errorf("failed to load governance engine: %w", err)
	}
	n.engine = engine
	// Result archive
	if err := n.startArchive(ctx); err != nil {
		return err
	}
	// Redis event relay
	if n.config.redisAddr != "" {
		relayOpts := []redis.RelayOptionFunc{
			redis.WithLogger(n.config.logger),
		}
		if n.config.redisChannelPrefix != "" {
			relayOpts = append(
				relayOpts,
				redis.WithChannelPrefix(n.config.redisChannelPrefix),
			)
		}
		relay, err := redis.New(
			ctx,
			redis.Config{
				Addr:     n.config.redisAddr,
				Password: n.config.redisPassword,
				DB:       n.config.redisDB,
			},
			relayOpts...,
		)
		if err != nil {
			return fmt.Errorf("failed to start redis relay: %w", err)
		}
		relay.Register(n.eventBus, governance.EventTypes...)
		n.relay = relay
	}
	// API server
	if n.config.apiListenAddress != "" {
		n.apiServer = api.New(
			api.Config{
				ListenAddress:    n.config.apiListenAddress,
				MaxRequestsPerIP: n.config.maxRequestsPerIP,
				SignatureMaxSkew: n.config.signatureMaxSkew,
				Clock:            n.config.clock,
			},
			n.engine,
			n.config.logger,
		)
		if err := n.apiServer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start API server: %w", err)
		}
	}
	n.config.logger.Info(
		"governance node started",
		"policy", n.engine.Settings().Policy.Kind.String(),
	)
	return nil
}

func (n *Node) startArchive(ctx context.Context) error {
	sink := n.config.archiveSink
	prefix := ""
	if sink == nil {
		if n.config.archiveUrl == "" {
			return nil
		}
		bucket, urlPrefix, err := archive.ParseGCSURL(n.config.archiveUrl)
		if err != nil {
			return err
		}
		gcsOpts := []archive.GCSSinkOptionFunc{
			archive.WithLogger(n.config.logger),
			archive.WithBucket(bucket),
		}
		if n.config.archiveCredentialsFile != "" {
			gcsOpts = append(
				gcsOpts,
				archive.WithCredentialsFile(n.config.archiveCredentialsFile),
			)
		}
		gcsSink, err := archive.NewGCSSink(ctx, gcsOpts...)
		if err != nil {
			return fmt.Errorf("failed to create archive sink: %w", err)
		}
		sink = gcsSink
		prefix = urlPrefix
	}
	archiver, err := archive.New(archive.Config{
		Sink:         sink,
		Source:       n.engine,
		Logger:       n.config.logger,
		PromRegistry: n.config.promRegistry,
		Prefix:       prefix,
		Clock:        n.config.clock,
	})
	if err != nil {
		_ = sink.Close()
		return err
	}
	if err := archiver.Start(n.eventBus); err != nil {
		_ = archiver.Stop()
		return err
	}
	n.archiver = archiver
	return nil
}

// Run starts the node and blocks until ctx is cancelled or Stop is called.
// The caller is responsible for calling Stop afterward.
func (n *Node) Run(ctx context.Context) error {
	if err := n.Start(ctx); err != nil {
		return err
	}
	// Wait for shutdown signal
	select {
	case <-ctx.Done():
	case <-n.done:
	}
	return nil
}

// Engine returns the governance engine, or nil before Start
func (n *Node) Engine() *governance.Engine {
	return n.engine
}

// ApiAddr returns the bound API address, or nil if the API is disabled
func (n *Node) ApiAddr() net.Addr {
	if n.apiServer == nil {
		return nil
	}
	return n.apiServer.Addr()
}

func (n *Node) Stop() error {
	var err error
	n.shutdownOnce.Do(func() {
		err = n.shutdown()
	})
	return err
}

func (n *Node) shutdown() error {
	shutdownTimeout := 30 * time.Second
	if n.config.shutdownTimeout > 0 {
		shutdownTimeout = n.config.shutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var err error

	n.config.logger.Debug("starting graceful shutdown")

	// Phase 1: Stop accepting new requests
	n.config.logger.Debug("shutdown phase 1: stopping API server")

	if n.apiServer != nil {
		if stopErr := n.apiServer.Stop(ctx); stopErr != nil {
			err = errors.Join(err, fmt.Errorf("api shutdown: %w", stopErr))
		}
	}

	// Phase 2: Flush event consumers
	n.config.logger.Debug("shutdown phase 2: flushing event consumers")

	if n.archiver != nil {
		if stopErr := n.archiver.Stop(); stopErr != nil {
			err = errors.Join(err, fmt.Errorf("archive shutdown: %w", stopErr))
		}
	}

	if n.relay != nil {
		n.relay.Close()
	}

	// Phase 3: Close database
	n.config.logger.Debug("shutdown phase 3: closing database")

	if n.db != nil {
		if closeErr := n.db.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("database close: %w", closeErr))
		}
	}

	// Phase 4: Cleanup resources
	n.config.logger.Debug("shutdown phase 4: cleanup resources")

	for _, fn := range n.shutdownFuncs {
		if fnErr := fn(ctx); fnErr != nil {
			err = errors.Join(err, fmt.Errorf("shutdown function: %w", fnErr))
		}
	}
	n.shutdownFuncs = nil

	if n.eventBus != nil {
		n.eventBus.Stop()
	}

	n.config.logger.Debug("graceful shutdown complete")
	close(n.done)
	return err
}
