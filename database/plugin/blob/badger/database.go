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

package badger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/blinklabs-io/tally/database/types"
	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/prometheus/client_golang/prometheus"
)

// BlobStoreBadger stores the governance event journal in BadgerDB
type BlobStoreBadger struct {
	promRegistry   prometheus.Registerer
	db             *badger.DB
	logger         *slog.Logger
	metrics        blobMetrics
	gcStopCh       chan struct{}
	gcWg           sync.WaitGroup
	closeOnce      sync.Once
	dataDir        string
	blockCacheSize uint64
	indexCacheSize uint64
	gcInterval     time.Duration
	gcEnabled      bool
	compression    options.CompressionType
}

// New creates a badger blob store. The database is opened by Start()
func New(opts ...BlobStoreBadgerOptionFunc) (*BlobStoreBadger, error) {
	d := &BlobStoreBadger{
		gcEnabled:      true,
		gcInterval:     DefaultGcInterval,
		blockCacheSize: DefaultBlockCacheSize,
		indexCacheSize: DefaultIndexCacheSize,
		compression:    options.Snappy,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.gcInterval <= 0 {
		return nil, errors.New("invalid GC interval")
	}
	return d, nil
}

// SetLogger sets the logger before the store is started
func (d *BlobStoreBadger) SetLogger(logger *slog.Logger) {
	d.logger = logger
}

// SetPromRegistry sets the metrics registry before the store is started
func (d *BlobStoreBadger) SetPromRegistry(registry prometheus.Registerer) {
	d.promRegistry = registry
}

func (d *BlobStoreBadger) badgerOptions() (badger.Options, error) {
	if d.dataDir == "" {
		return badger.DefaultOptions("").
			WithLogger(NewBadgerLogger(d.logger)).
			WithLoggingLevel(badger.WARNING).
			WithInMemory(true), nil
	}
	journalDir := filepath.Join(d.dataDir, "journal")
	if err := os.MkdirAll(journalDir, 0o755); err != nil {
		return badger.Options{}, fmt.Errorf("failed to create data dir: %w", err)
	}
	return badger.DefaultOptions(journalDir).
		WithLogger(NewBadgerLogger(d.logger)).
		// The default INFO logging is a bit verbose
		WithLoggingLevel(badger.WARNING).
		WithBlockCacheSize(int64(d.blockCacheSize)). //nolint:gosec
		WithIndexCacheSize(int64(d.indexCacheSize)). //nolint:gosec
		WithValueLogFileSize(DefaultValueLogFileSize).
		WithMemTableSize(DefaultMemTableSize).
		WithValueThreshold(DefaultValueThreshold).
		WithCompression(d.compression), nil
}

func (d *BlobStoreBadger) blobGc(stop <-chan struct{}) {
	defer d.gcWg.Done()
	ticker := time.NewTicker(d.gcInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.runGc()
		case <-stop:
			return
		}
	}
}

// runGc rewrites value log files until badger reports nothing left to do
func (d *BlobStoreBadger) runGc() {
	for {
		err := d.db.RunValueLogGC(0.5)
		if err == nil {
			d.metrics.incGcRuns()
			continue
		}
		if !errors.Is(err, badger.ErrNoRewrite) {
			d.metrics.incGcFailures()
			d.logger.Warn(
				fmt.Sprintf("blob DB: GC failure: %s", err),
				"component", "database",
			)
		}
		return
	}
}

func (d *BlobStoreBadger) Start() error {
	if d.db != nil {
		return nil
	}
	if d.logger == nil {
		d.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	badgerOpts, err := d.badgerOptions()
	if err != nil {
		return err
	}
	db, err := badger.Open(badgerOpts)
	if err != nil {
		return fmt.Errorf("open badger: %w", err)
	}
	d.db = db
	if d.promRegistry != nil {
		d.registerBlobMetrics()
	}
	// GC is pointless for an in-memory store
	if d.gcEnabled && d.dataDir != "" {
		d.gcStopCh = make(chan struct{})
		d.gcWg.Add(1)
		go d.blobGc(d.gcStopCh)
	}
	return nil
}

func (d *BlobStoreBadger) Stop() error {
	return d.Close()
}

func (d *BlobStoreBadger) Close() error {
	if d.db == nil {
		return nil
	}
	var err error
	d.closeOnce.Do(func() {
		if d.gcStopCh != nil {
			close(d.gcStopCh)
			d.gcWg.Wait()
		}
		err = d.db.Close()
	})
	return err
}

func (d *BlobStoreBadger) DB() *badger.DB {
	return d.db
}

func (d *BlobStoreBadger) NewTransaction(update bool) types.Txn {
	return &badgerTxn{store: d, tx: d.db.NewTransaction(update)}
}

func (d *BlobStoreBadger) Get(txn types.Txn, key []byte) ([]byte, error) {
	bt, err := d.txnFrom(txn)
	if err != nil {
		return nil, err
	}
	item, err := bt.tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, types.ErrBlobKeyNotFound
		}
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (d *BlobStoreBadger) Set(txn types.Txn, key, val []byte) error {
	bt, err := d.txnFrom(txn)
	if err != nil {
		return err
	}
	return bt.tx.Set(key, val)
}

func (d *BlobStoreBadger) Delete(txn types.Txn, key []byte) error {
	bt, err := d.txnFrom(txn)
	if err != nil {
		return err
	}
	return bt.tx.Delete(key)
}

func (d *BlobStoreBadger) NewIterator(
	txn types.Txn,
	opts types.BlobIteratorOptions,
) types.BlobIterator {
	bt, err := d.txnFrom(txn)
	if err != nil {
		return &errorIterator{err: err}
	}
	iterOpts := badger.DefaultIteratorOptions
	iterOpts.Prefix = opts.Prefix
	iterOpts.Reverse = opts.Reverse
	return &badgerIterator{iter: bt.tx.NewIterator(iterOpts)}
}
