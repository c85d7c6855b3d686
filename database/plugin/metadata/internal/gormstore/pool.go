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

package gormstore

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	DefaultMaxOpenConns    = 100
	DefaultMaxIdleConns    = 10
	DefaultConnMaxLifetime = time.Hour
)

// PoolConfig sizes the connection pool of a networked metadata store
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    DefaultMaxOpenConns,
		MaxIdleConns:    DefaultMaxIdleConns,
		ConnMaxLifetime: DefaultConnMaxLifetime,
	}
}

// Validate rejects negative sizes and an idle pool larger than the open limit
func (p PoolConfig) Validate() error {
	if p.MaxOpenConns < 0 || p.MaxIdleConns < 0 || p.ConnMaxLifetime < 0 {
		return errors.New("connection pool settings must not be negative")
	}
	if p.MaxOpenConns > 0 && p.MaxIdleConns > p.MaxOpenConns {
		return errors.New("max idle connections exceeds max open connections")
	}
	return nil
}

// Apply configures the pool on an open handle. Zero values mean unlimited,
// matching database/sql
func (p PoolConfig) Apply(db *sql.DB) {
	db.SetMaxOpenConns(p.MaxOpenConns)
	db.SetMaxIdleConns(p.MaxIdleConns)
	db.SetConnMaxLifetime(p.ConnMaxLifetime)
}

// ParsePool builds a PoolConfig from plugin option values
func ParsePool(maxOpen, maxIdle uint64, lifetime string) (PoolConfig, error) {
	const maxConns = uint64(math.MaxInt32)
	if maxOpen > maxConns || maxIdle > maxConns {
		return PoolConfig{}, errors.New("connection pool size out of range")
	}
	d, err := time.ParseDuration(lifetime)
	if err != nil {
		return PoolConfig{}, fmt.Errorf("invalid connection lifetime %q: %w", lifetime, err)
	}
	ret := PoolConfig{
		MaxOpenConns:    int(maxOpen),
		MaxIdleConns:    int(maxIdle),
		ConnMaxLifetime: d,
	}
	return ret, ret.Validate()
}
