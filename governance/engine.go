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

// Package governance implements the proposal and voting state machine
package governance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/blinklabs-io/tally/database"
	"github.com/blinklabs-io/tally/database/models"
	"github.com/blinklabs-io/tally/event"
)

const tracerName = "github.com/blinklabs-io/tally/governance"

type EngineConfig struct {
	Database     *database.Database
	EventBus     *event.EventBus
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
	// Clock defaults to time.Now
	Clock func() time.Time
	// Settings defaults to DefaultSettings() when zero. A zero policy alone
	// takes the default policy.
	Settings Settings
}

// Engine executes governance operations. Mutating operations run one at a
// time, each inside a single database transaction, and publish their events
// only after that transaction commits.
type Engine struct {
	db       *database.Database
	bus      *event.EventBus
	logger   *slog.Logger
	clock    func() time.Time
	tracer   trace.Tracer
	metrics  engineMetrics
	settings Settings
	mu       sync.RWMutex
	lastNow  int64
}

func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Database == nil {
		return nil, errors.New("governance engine requires a database")
	}
	// Zero settings select the defaults. Otherwise only a missing policy is
	// filled in so the caller's other choices are kept.
	if cfg.Settings == (Settings{}) {
		cfg.Settings = DefaultSettings()
	} else if cfg.Settings.Policy.Kind == 0 {
		cfg.Settings.Policy = DefaultSettings().Policy
	}
	if err := cfg.Settings.validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		db:       cfg.Database,
		bus:      cfg.EventBus,
		logger:   cfg.Logger,
		clock:    cfg.Clock,
		settings: cfg.Settings,
		tracer:   otel.Tracer(tracerName),
	}
	if e.logger == nil {
		e.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	if cfg.PromRegistry != nil {
		e.metrics.init(cfg.PromRegistry)
		if govCfg, err := e.GetConfig(context.Background()); err == nil {
			e.metrics.observeConfig(govCfg)
		}
	}
	return e, nil
}

func (e *Engine) Settings() Settings {
	return e.settings
}

// now returns the engine clock in unix seconds. It never goes backwards and
// must be called with the write lock held.
func (e *Engine) now() int64 {
	t := e.clock().Unix()
	if t < e.lastNow {
		t = e.lastNow
	}
	e.lastNow = t
	return t
}

type updateFunc func(txn *database.Txn, now int64, evts *pendingEvents) error

// update runs fn under the write lock in a new read-write transaction. The
// events fn collects are journaled in the same transaction and published
// from its commit hook while the lock is held, so bus order matches journal
// order. Bus delivery never blocks.
func (e *Engine) update(ctx context.Context, op string, fn updateFunc) error {
	ctx, span := e.tracer.Start(
		ctx,
		"governance."+op,
		trace.WithAttributes(attribute.String("governance.operation", op)),
	)
	defer span.End()
	start := time.Now()
	err := ctx.Err()
	evts := &pendingEvents{}
	if err == nil {
		e.mu.Lock()
		now := e.now()
		err = e.db.Transaction(true).Do(func(txn *database.Txn) error {
			if err := fn(txn, now, evts); err != nil {
				return err
			}
			if err := evts.journal(e.db, txn); err != nil {
				return err
			}
			txn.OnCommit(func() { e.publish(evts) })
			return nil
		})
		e.mu.Unlock()
	}
	e.observe(op, start, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// publish runs once the journal and the state commit together
func (e *Engine) publish(evts *pendingEvents) {
	for _, evt := range evts.events {
		e.metrics.observeEvent(evt.Data)
		if e.bus != nil {
			e.bus.Publish(evt.Type, evt)
		}
	}
}

// view runs fn under the read lock in a read-only transaction
func (e *Engine) view(
	ctx context.Context,
	op string,
	fn func(txn *database.Txn) error,
) error {
	_, span := e.tracer.Start(
		ctx,
		"governance."+op,
		trace.WithAttributes(attribute.String("governance.operation", op)),
	)
	defer span.End()
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	txn := e.db.Transaction(false)
	defer txn.Release()
	if err := fn(txn); err != nil {
		if ClassOf(err) == ErrorClassInternal {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return err
	}
	return nil
}

func (e *Engine) observe(op string, start time.Time, err error) {
	if e.metrics.operationsTotal == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = ClassOf(err).String()
	}
	e.metrics.operationsTotal.WithLabelValues(op, result).Inc()
	e.metrics.operationDuration.WithLabelValues(op).
		Observe(time.Since(start).Seconds())
}

func (e *Engine) loadConfig(txn *database.Txn) (*models.GovernanceConfig, error) {
	cfg, err := e.db.GetGovernanceConfig(txn)
	if err != nil {
		if errors.Is(err, models.ErrGovernanceConfigNotFound) {
			return nil, ErrNotInitialized
		}
		return nil, fmt.Errorf("load governance config: %w", err)
	}
	return cfg, nil
}

func (e *Engine) loadUser(
	authority Identity,
	txn *database.Txn,
) (*models.User, error) {
	user, err := e.db.GetUser(authority.Bytes(), txn)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, authority)
		}
		return nil, fmt.Errorf("load user %s: %w", authority, err)
	}
	return user, nil
}

func (e *Engine) loadProposal(
	proposalId uint64,
	txn *database.Txn,
) (*models.Proposal, error) {
	proposal, err := e.db.GetProposal(proposalId, txn)
	if err != nil {
		if errors.Is(err, models.ErrProposalNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrProposalNotFound, proposalId)
		}
		return nil, fmt.Errorf("load proposal %d: %w", proposalId, err)
	}
	return proposal, nil
}

// GetConfig returns the governance singleton
func (e *Engine) GetConfig(ctx context.Context) (*Config, error) {
	var ret *Config
	err := e.view(ctx, "get_config", func(txn *database.Txn) error {
		cfg, err := e.loadConfig(txn)
		if err != nil {
			return err
		}
		ret, err = configFromModel(cfg)
		return err
	})
	return ret, err
}

// Events returns up to limit journaled events with a sequence greater than
// after. A limit of 0 returns every remaining event.
func (e *Engine) Events(
	ctx context.Context,
	after uint64,
	limit int,
) ([]*JournalEvent, error) {
	var ret []*JournalEvent
	err := e.view(ctx, "events", func(txn *database.Txn) error {
		entries, err := e.db.JournalEntries(after, limit, txn)
		if err != nil {
			return fmt.Errorf("read journal: %w", err)
		}
		ret = make([]*JournalEvent, 0, len(entries))
		for _, entry := range entries {
			evt, err := journalEventFromEntry(entry)
			if err != nil {
				return err
			}
			ret = append(ret, evt)
		}
		return nil
	})
	return ret, err
}
