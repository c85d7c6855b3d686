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

// Package redis relays event bus events to Redis pub/sub channels
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/blinklabs-io/tally/event"
)

const (
	DefaultChannelPrefix  = "tally"
	DefaultQueueSize      = 1024
	DefaultPublishTimeout = 5 * time.Second
)

// Publisher is the subset of the Redis client used by the relay
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *goredis.IntCmd
	Set(
		ctx context.Context,
		key string,
		value any,
		expiration time.Duration,
	) *goredis.StatusCmd
}

// Relay is an event.Subscriber that forwards events to Redis. Each event is
// published as JSON on "<prefix>:<event type>". Events carrying a journal
// sequence also update "<prefix>:last_seq".
type Relay struct {
	client         Publisher
	closer         io.Closer
	logger         *slog.Logger
	queue          chan event.Event
	wg             sync.WaitGroup
	closeOnce      sync.Once
	mu             sync.RWMutex
	closed         bool
	channelPrefix  string
	publishTimeout time.Duration
}

// Sequenced is implemented by event payloads that carry a journal sequence
type Sequenced interface {
	JournalSeq() uint64
}

type RelayOptionFunc func(*Relay)

func WithLogger(logger *slog.Logger) RelayOptionFunc {
	return func(r *Relay) {
		r.logger = logger
	}
}

func WithChannelPrefix(prefix string) RelayOptionFunc {
	return func(r *Relay) {
		r.channelPrefix = prefix
	}
}

func WithQueueSize(size int) RelayOptionFunc {
	return func(r *Relay) {
		if size > 0 {
			r.queue = make(chan event.Event, size)
		}
	}
}

func WithPublishTimeout(timeout time.Duration) RelayOptionFunc {
	return func(r *Relay) {
		r.publishTimeout = timeout
	}
}

// Config describes the Redis connection used by New
type Config struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// New connects to Redis and starts a relay. The connection is verified with
// PING before returning.
func New(
	ctx context.Context,
	cfg Config,
	opts ...RelayOptionFunc,
) (*Relay, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Addr, err)
	}
	r := NewWithPublisher(client, opts...)
	r.closer = client
	return r, nil
}

// NewWithPublisher starts a relay using an existing client
func NewWithPublisher(client Publisher, opts ...RelayOptionFunc) *Relay {
	r := &Relay{
		client:         client,
		channelPrefix:  DefaultChannelPrefix,
		publishTimeout: DefaultPublishTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if r.queue == nil {
		r.queue = make(chan event.Event, DefaultQueueSize)
	}
	r.wg.Add(1)
	go r.run()
	return r
}

// Register subscribes the relay to each of the given event types
func (r *Relay) Register(bus *event.EventBus, eventTypes ...event.EventType) {
	for _, evtType := range eventTypes {
		bus.RegisterSubscriber(evtType, r)
	}
}

// Deliver queues an event for publishing. Events are dropped when the queue
// is full so a slow Redis never stalls the publisher.
func (r *Relay) Deliver(evt event.Event) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil
	}
	select {
	case r.queue <- evt:
	default:
		r.logger.Warn(
			"redis relay queue full, dropping event",
			"component", "event-relay",
			"type", evt.Type,
		)
	}
	return nil
}

// Close stops the relay after flushing queued events. It is safe to call more
// than once.
func (r *Relay) Close() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.queue)
		r.mu.Unlock()
		r.wg.Wait()
		if r.closer != nil {
			if err := r.closer.Close(); err != nil {
				r.logger.Warn(
					"failed to close redis client",
					"component", "event-relay",
					"error", err,
				)
			}
		}
	})
}

func (r *Relay) channelName(evtType event.EventType) string {
	return r.channelPrefix + ":" + string(evtType)
}

func (r *Relay) run() {
	defer r.wg.Done()
	for evt := range r.queue {
		if err := r.publish(evt); err != nil {
			r.logger.Error(
				"failed to publish event to redis",
				"component", "event-relay",
				"type", evt.Type,
				"error", err,
			)
		}
	}
}

func (r *Relay) publish(evt event.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.publishTimeout)
	defer cancel()
	if err := r.client.Publish(ctx, r.channelName(evt.Type), payload).Err(); err != nil {
		return err
	}
	if seqEvt, ok := evt.Data.(Sequenced); ok {
		if err := r.client.Set(
			ctx,
			r.channelPrefix+":last_seq",
			seqEvt.JournalSeq(),
			0,
		).Err(); err != nil {
			return err
		}
	}
	return nil
}
