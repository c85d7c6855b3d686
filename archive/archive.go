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

// Package archive stores the results of finalized proposals in an external
// object store
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/blinklabs-io/tally/event"
	"github.com/blinklabs-io/tally/governance"
)

const DefaultWriteTimeout = 30 * time.Second

// Sink is an object store
type Sink interface {
	Put(ctx context.Context, name string, data []byte) error
	Close() error
}

// ProposalSource looks up proposals by id
type ProposalSource interface {
	GetProposal(
		ctx context.Context,
		proposalId uint64,
	) (*governance.Proposal, error)
}

// Result is the archived record of a finalized proposal
type Result struct {
	ArchivedAt time.Time            `json:"archivedAt"`
	Proposal   *governance.Proposal `json:"proposal"`
	Key        string               `json:"key"`
	Seq        uint64               `json:"seq"`
}

// ObjectName returns the object name of a proposal result under prefix
func ObjectName(prefix string, proposalId uint64) string {
	return path.Join(prefix, "proposals", fmt.Sprintf("%d.json", proposalId))
}

type Config struct {
	Sink         Sink
	Source       ProposalSource
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
	// Prefix is prepended to every object name
	Prefix       string
	WriteTimeout time.Duration
	// Clock defaults to time.Now
	Clock func() time.Time
}

// Archiver writes a Result to its sink for every finalized proposal
type Archiver struct {
	config   Config
	logger   *slog.Logger
	archived *prometheus.CounterVec
	bus      *event.EventBus
	subId    event.EventSubscriberId
	mu       sync.Mutex
}

func New(cfg Config) (*Archiver, error) {
	if cfg.Sink == nil {
		return nil, errors.New("archive: sink not set")
	}
	if cfg.Source == nil {
		return nil, errors.New("archive: proposal source not set")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	a := &Archiver{
		config: cfg,
		logger: cfg.Logger.With("component", "archive"),
	}
	if cfg.PromRegistry != nil {
		a.archived = promauto.With(cfg.PromRegistry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tally_archive_results_total",
				Help: "finalized proposal results written to the archive",
			},
			[]string{"result"},
		)
	}
	return a, nil
}

// Start subscribes to finalization events on bus
func (a *Archiver) Start(bus *event.EventBus) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.bus != nil {
		return errors.New("archive: already started")
	}
	subId := bus.SubscribeFunc(
		governance.ProposalFinalizedEventType,
		a.handleEvent,
	)
	if subId == 0 {
		return errors.New("archive: event bus is stopped")
	}
	a.bus = bus
	a.subId = subId
	a.logger.Info("archiving finalized proposals")
	return nil
}

// Stop unsubscribes from the bus and closes the sink
func (a *Archiver) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.bus != nil {
		a.bus.Unsubscribe(governance.ProposalFinalizedEventType, a.subId)
		a.bus = nil
	}
	return a.config.Sink.Close()
}

func (a *Archiver) handleEvent(evt event.Event) {
	finalized, ok := evt.Data.(*governance.ProposalFinalizedEvent)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(
		context.Background(),
		a.config.WriteTimeout,
	)
	defer cancel()
	if err := a.Archive(ctx, finalized.ProposalID, finalized.Seq); err != nil {
		a.logger.Error(
			"failed to archive proposal result",
			"proposal_id", finalized.ProposalID,
			"error", err,
		)
	}
}

// Archive writes the current state of a proposal to the sink
func (a *Archiver) Archive(
	ctx context.Context,
	proposalId uint64,
	seq uint64,
) error {
	err := a.archive(ctx, proposalId, seq)
	if a.archived != nil {
		result := "ok"
		if err != nil {
			result = "error"
		}
		a.archived.WithLabelValues(result).Inc()
	}
	return err
}

func (a *Archiver) archive(
	ctx context.Context,
	proposalId uint64,
	seq uint64,
) error {
	proposal, err := a.config.Source.GetProposal(ctx, proposalId)
	if err != nil {
		return fmt.Errorf("load proposal %d: %w", proposalId, err)
	}
	if !proposal.Status.Terminal() {
		return fmt.Errorf(
			"proposal %d is not finalized (%s)",
			proposalId,
			proposal.Status,
		)
	}
	data, err := json.Marshal(Result{
		ArchivedAt: a.config.Clock().UTC(),
		Proposal:   proposal,
		Key:        governance.ProposalKey(proposalId),
		Seq:        seq,
	})
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	name := ObjectName(a.config.Prefix, proposalId)
	if err := a.config.Sink.Put(ctx, name, data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	a.logger.Debug(
		"archived proposal result",
		"proposal_id", proposalId,
		"object", name,
		"status", proposal.Status.String(),
	)
	return nil
}
