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
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4/options"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	DefaultValueLogFileSize = 1 << 28 // 256MB
	DefaultMemTableSize     = 1 << 26 // 64MB
	// Journal entries are small, keep them in the LSM tree
	DefaultValueThreshold = 1 << 10
	DefaultGcInterval     = 5 * time.Minute
)

type BlobStoreBadgerOptionFunc func(*BlobStoreBadger)

func WithLogger(logger *slog.Logger) BlobStoreBadgerOptionFunc {
	return func(b *BlobStoreBadger) {
		b.logger = logger
	}
}

func WithPromRegistry(
	registry prometheus.Registerer,
) BlobStoreBadgerOptionFunc {
	return func(b *BlobStoreBadger) {
		b.promRegistry = registry
	}
}

// WithDataDir sets the data directory. An empty value opens an in-memory store
func WithDataDir(dataDir string) BlobStoreBadgerOptionFunc {
	return func(b *BlobStoreBadger) {
		b.dataDir = dataDir
	}
}

func WithBlockCacheSize(size uint64) BlobStoreBadgerOptionFunc {
	return func(b *BlobStoreBadger) {
		b.blockCacheSize = size
	}
}

func WithIndexCacheSize(size uint64) BlobStoreBadgerOptionFunc {
	return func(b *BlobStoreBadger) {
		b.indexCacheSize = size
	}
}

func WithGc(enabled bool) BlobStoreBadgerOptionFunc {
	return func(b *BlobStoreBadger) {
		b.gcEnabled = enabled
	}
}

// WithGcInterval sets how often the value log is checked for rewrite
func WithGcInterval(interval time.Duration) BlobStoreBadgerOptionFunc {
	return func(b *BlobStoreBadger) {
		b.gcInterval = interval
	}
}

// WithCompression sets the block compression for on-disk tables
func WithCompression(compression options.CompressionType) BlobStoreBadgerOptionFunc {
	return func(b *BlobStoreBadger) {
		b.compression = compression
	}
}

// ParseCompression maps a compression name to its badger type
func ParseCompression(name string) (options.CompressionType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "snappy":
		return options.Snappy, nil
	case "zstd":
		return options.ZSTD, nil
	case "none", "":
		return options.None, nil
	default:
		return options.None, fmt.Errorf("unknown compression type: %s", name)
	}
}
