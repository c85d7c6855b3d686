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

// Package gormstore holds the metadata store logic shared by the gorm based
// metadata plugins. Each plugin opens its own dialect and hands the
// connection to Open.
package gormstore

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/blinklabs-io/tally/database/models"
	"github.com/blinklabs-io/tally/database/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/plugin/opentelemetry/tracing"
)

const commitTimestampRowId = 1

type CommitTimestamp struct {
	ID        uint `gorm:"primarykey"`
	Timestamp int64
}

func (CommitTimestamp) TableName() string {
	return "commit_timestamp"
}

type Store struct {
	db     *gorm.DB
	logger *slog.Logger
	// rowLocks is set for server backends, where several processes may
	// write the same rows. SQLite serializes writers itself.
	rowLocks bool
}

// Open configures tracing and metrics on an open gorm connection and creates
// the table schemas
func Open(
	db *gorm.DB,
	name string,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	s := &Store{
		db:       db,
		logger:   logger,
		rowLocks: db.Dialector.Name() != "sqlite",
	}
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, err
	}
	if promRegistry != nil {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		if err := promRegistry.Register(collectors.NewDBStatsCollector(sqlDB, name)); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return nil, err
			}
		}
	}
	if err := s.AutoMigrate(&CommitTimestamp{}); err != nil {
		return nil, err
	}
	for _, model := range models.MigrateModels {
		logger.Debug(
			fmt.Sprintf("creating table: %T", model),
			"component", "database",
		)
		if err := s.AutoMigrate(model); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// AutoMigrate wraps the gorm AutoMigrate
func (s *Store) AutoMigrate(dst ...any) error {
	return s.db.AutoMigrate(dst...)
}

// DB returns the database handle
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Close closes the underlying connection pool
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get database handle: %w", err)
	}
	return sqlDB.Close()
}

// Transaction begins a metadata transaction. A failure to begin is reported
// by the first use of the returned handle.
func (s *Store) Transaction(readWrite bool) types.Txn {
	db := s.db.Begin()
	if db.Error != nil {
		s.logger.Error(
			"failed to begin transaction",
			"component", "database",
			"error", db.Error,
		)
		return newFailedTxn(db.Error)
	}
	return newTxn(db, readWrite)
}

func (s *Store) resolveDB(txn types.Txn) (*gorm.DB, error) {
	if txn == nil {
		return s.db, nil
	}
	switch t := txn.(type) {
	case *Txn:
		if t == nil {
			return s.db, nil
		}
		if t.beginErr != nil {
			return nil, t.beginErr
		}
		if t.finished {
			return nil, errors.New("transaction already finished")
		}
		return t.db, nil
	case interface{ MetadataTxn() *gorm.DB }:
		if db := t.MetadataTxn(); db != nil {
			return db, nil
		}
	}
	return nil, types.ErrTxnWrongType
}

// lockForUpdate reports whether reads in txn should take row locks
func (s *Store) lockForUpdate(txn types.Txn) bool {
	t, ok := txn.(*Txn)
	return s.rowLocks && ok && t != nil && t.readWrite
}

func (s *Store) GetCommitTimestamp() (int64, error) {
	var tmp CommitTimestamp
	result := s.db.First(&tmp)
	if result.Error != nil {
		// No records is not an error
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, result.Error
	}
	return tmp.Timestamp, nil
}

func (s *Store) SetCommitTimestamp(timestamp int64, txn types.Txn) error {
	db, err := s.resolveDB(txn)
	if err != nil {
		return err
	}
	tmp := CommitTimestamp{
		ID:        commitTimestampRowId,
		Timestamp: timestamp,
	}
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"timestamp"}),
	}).Create(&tmp)
	return result.Error
}
