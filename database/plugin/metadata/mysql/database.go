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

package mysql

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/blinklabs-io/tally/database/plugin/metadata/internal/gormstore"
	"github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// MySQL error number for an unknown database
const errUnknownDatabase = 1049

// MetadataStoreMysql keeps governance records in MySQL
type MetadataStoreMysql struct {
	*gormstore.Store
	promRegistry prometheus.Registerer
	logger       *slog.Logger

	host     string
	port     uint
	user     string
	password string
	database string
	sslMode  string
	timeZone string
	dsn      string

	pool           gormstore.PoolConfig
	connectTimeout time.Duration
}

// NewWithOptions creates a MySQL metadata store. The connection is opened by
// Start()
func NewWithOptions(opts ...MysqlOptionFunc) (*MetadataStoreMysql, error) {
	d := &MetadataStoreMysql{
		pool:           gormstore.DefaultPoolConfig(),
		connectTimeout: DefaultConnectTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.host == "" {
		d.host = DefaultHost
	}
	if d.port == 0 {
		d.port = DefaultPort
	}
	if d.user == "" {
		d.user = DefaultUser
	}
	if d.database == "" {
		d.database = DefaultDatabase
	}
	if d.logger == nil {
		d.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if err := d.pool.Validate(); err != nil {
		return nil, err
	}
	if d.connectTimeout < 0 {
		return nil, errors.New("connect timeout must not be negative")
	}
	return d, nil
}

// SetLogger sets the logger before the store is started
func (d *MetadataStoreMysql) SetLogger(logger *slog.Logger) {
	d.logger = logger
}

// SetPromRegistry sets the metrics registry before the store is started
func (d *MetadataStoreMysql) SetPromRegistry(registry prometheus.Registerer) {
	d.promRegistry = registry
}

// driverConfig returns the parsed DSN if one was given, otherwise a config
// built from the individual options
func (d *MetadataStoreMysql) driverConfig() (*mysql.Config, error) {
	if dsn := strings.TrimSpace(d.dsn); dsn != "" {
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("parse mysql DSN: %w", err)
		}
		return cfg, nil
	}
	cfg := mysql.NewConfig()
	cfg.User = d.user
	cfg.Passwd = d.password
	cfg.Net = "tcp"
	cfg.Addr = d.host + ":" + strconv.FormatUint(uint64(d.port), 10)
	cfg.DBName = d.database
	cfg.ParseTime = true
	cfg.AllowNativePasswords = true
	cfg.Timeout = d.connectTimeout
	if d.timeZone != "" {
		loc, err := time.LoadLocation(d.timeZone)
		if err != nil {
			return nil, fmt.Errorf("invalid time zone %q: %w", d.timeZone, err)
		}
		cfg.Loc = loc
	}
	if d.sslMode != "" {
		cfg.TLSConfig = d.sslMode
	}
	return cfg, nil
}

func openGorm(dsn string) (*gorm.DB, error) {
	return gorm.Open(
		gormmysql.Open(dsn),
		&gorm.Config{
			Logger:                 gormlogger.Discard,
			SkipDefaultTransaction: true,
			PrepareStmt:            true,
		},
	)
}

// Start implements the plugin.Plugin interface
func (d *MetadataStoreMysql) Start() error {
	if d.Store != nil {
		return nil
	}
	cfg, err := d.driverConfig()
	if err != nil {
		return err
	}
	db, err := openGorm(cfg.FormatDSN())
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if !errors.As(err, &mysqlErr) || mysqlErr.Number != errUnknownDatabase {
			return err
		}
		if err := ensureDatabaseExists(cfg); err != nil {
			return err
		}
		db, err = openGorm(cfg.FormatDSN())
		if err != nil {
			return err
		}
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	d.pool.Apply(sqlDB)
	store, err := gormstore.Open(db, "mysql", d.logger, d.promRegistry)
	if err != nil {
		_ = sqlDB.Close()
		return err
	}
	d.Store = store
	d.logger.Info(
		"connected to mysql metadata store",
		"component", "database",
		"addr", cfg.Addr,
		"database", cfg.DBName,
	)
	return nil
}

// ensureDatabaseExists connects without a database name and creates the
// configured one
func ensureDatabaseExists(cfg *mysql.Config) error {
	if cfg.DBName == "" {
		return errors.New("no mysql database name configured")
	}
	adminCfg := cfg.Clone()
	adminCfg.DBName = ""
	adminDb, err := openGorm(adminCfg.FormatDSN())
	if err != nil {
		return err
	}
	sqlAdminDb, err := adminDb.DB()
	if err != nil {
		return err
	}
	defer sqlAdminDb.Close()
	stmt := fmt.Sprintf(
		"CREATE DATABASE IF NOT EXISTS `%s`",
		strings.ReplaceAll(cfg.DBName, "`", "``"),
	)
	return adminDb.Exec(stmt).Error
}

// Stop implements the plugin.Plugin interface
func (d *MetadataStoreMysql) Stop() error {
	return d.Close()
}

// Close closes the connection pool. It is safe to call before Start()
func (d *MetadataStoreMysql) Close() error {
	if d.Store == nil {
		return nil
	}
	return d.Store.Close()
}
