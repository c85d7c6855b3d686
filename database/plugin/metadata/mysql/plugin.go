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
	"sync"
	"time"

	"github.com/blinklabs-io/tally/database/plugin"
	"github.com/blinklabs-io/tally/database/plugin/metadata/internal/gormstore"
)

const (
	DefaultHost     = "localhost"
	DefaultPort     = 3306
	DefaultUser     = "root"
	DefaultDatabase = "tally"
	DefaultTimeZone = "UTC"

	DefaultConnectTimeout = 10 * time.Second
)

var (
	cmdlineOptions struct {
		host     string
		port     uint64
		user     string
		password string
		database string
		sslMode  string
		timeZone string
		dsn      string

		maxOpenConns    uint64
		maxIdleConns    uint64
		connMaxLifetime string
		connectTimeout  string
	}
	cmdlineOptionsMutex sync.RWMutex
)

func initCmdlineOptions() {
	cmdlineOptionsMutex.Lock()
	defer cmdlineOptionsMutex.Unlock()
	cmdlineOptions.host = DefaultHost
	cmdlineOptions.port = DefaultPort
	cmdlineOptions.user = DefaultUser
	cmdlineOptions.database = DefaultDatabase
	cmdlineOptions.timeZone = DefaultTimeZone
	cmdlineOptions.maxOpenConns = gormstore.DefaultMaxOpenConns
	cmdlineOptions.maxIdleConns = gormstore.DefaultMaxIdleConns
	cmdlineOptions.connMaxLifetime = gormstore.DefaultConnMaxLifetime.String()
	cmdlineOptions.connectTimeout = DefaultConnectTimeout.String()
}

func init() {
	initCmdlineOptions()
	plugin.Register(
		plugin.PluginEntry{
			Type:               plugin.PluginTypeMetadata,
			Name:               "mysql",
			Description:        "MySQL governance record store",
			NewFromOptionsFunc: NewFromCmdlineOptions,
			Options: []plugin.PluginOption{
				{
					Name:         "host",
					Type:         plugin.PluginOptionTypeString,
					Description:  "MySQL host",
					DefaultValue: DefaultHost,
					CustomEnvVar: "MYSQL_HOST",
					Dest:         &(cmdlineOptions.host),
				},
				{
					Name:         "port",
					Type:         plugin.PluginOptionTypeUint,
					Description:  "MySQL port",
					DefaultValue: uint64(DefaultPort),
					CustomEnvVar: "MYSQL_PORT",
					Dest:         &(cmdlineOptions.port),
				},
				{
					Name:         "user",
					Type:         plugin.PluginOptionTypeString,
					Description:  "MySQL user",
					DefaultValue: DefaultUser,
					CustomEnvVar: "MYSQL_USER",
					Dest:         &(cmdlineOptions.user),
				},
				{
					Name:         "password",
					Type:         plugin.PluginOptionTypeString,
					Description:  "MySQL password",
					DefaultValue: "",
					CustomEnvVar: "MYSQL_PASSWORD",
					Dest:         &(cmdlineOptions.password),
				},
				{
					Name:         "database",
					Type:         plugin.PluginOptionTypeString,
					Description:  "MySQL database name",
					DefaultValue: DefaultDatabase,
					CustomEnvVar: "MYSQL_DATABASE",
					Dest:         &(cmdlineOptions.database),
				},
				{
					Name:         "ssl-mode",
					Type:         plugin.PluginOptionTypeString,
					Description:  "MySQL TLS mode (mapped to tls= in DSN)",
					DefaultValue: "",
					CustomEnvVar: "MYSQL_SSLMODE",
					Dest:         &(cmdlineOptions.sslMode),
				},
				{
					Name:         "timezone",
					Type:         plugin.PluginOptionTypeString,
					Description:  "MySQL time zone location",
					DefaultValue: DefaultTimeZone,
					CustomEnvVar: "MYSQL_TIMEZONE",
					Dest:         &(cmdlineOptions.timeZone),
				},
				{
					Name:         "dsn",
					Type:         plugin.PluginOptionTypeString,
					Description:  "Full MySQL DSN (overrides other options when set)",
					DefaultValue: "",
					CustomEnvVar: "MYSQL_DSN",
					Dest:         &(cmdlineOptions.dsn),
				},
				{
					Name:         "max-open-conns",
					Type:         plugin.PluginOptionTypeUint,
					Description:  "Maximum open connections (0 for unlimited)",
					DefaultValue: uint64(gormstore.DefaultMaxOpenConns),
					Dest:         &(cmdlineOptions.maxOpenConns),
				},
				{
					Name:         "max-idle-conns",
					Type:         plugin.PluginOptionTypeUint,
					Description:  "Maximum idle connections kept in the pool",
					DefaultValue: uint64(gormstore.DefaultMaxIdleConns),
					Dest:         &(cmdlineOptions.maxIdleConns),
				},
				{
					Name:         "conn-max-lifetime",
					Type:         plugin.PluginOptionTypeString,
					Description:  "Maximum lifetime of a pooled connection",
					DefaultValue: gormstore.DefaultConnMaxLifetime.String(),
					Dest:         &(cmdlineOptions.connMaxLifetime),
				},
				{
					Name:         "connect-timeout",
					Type:         plugin.PluginOptionTypeString,
					Description:  "Timeout for establishing a connection",
					DefaultValue: DefaultConnectTimeout.String(),
					Dest:         &(cmdlineOptions.connectTimeout),
				},
			},
		},
	)
}

// NewFromCmdlineOptions builds the store from the registered plugin options.
// Option errors surface from Start()
func NewFromCmdlineOptions() plugin.Plugin {
	cmdlineOptionsMutex.RLock()
	defer cmdlineOptionsMutex.RUnlock()
	pool, err := gormstore.ParsePool(
		cmdlineOptions.maxOpenConns,
		cmdlineOptions.maxIdleConns,
		cmdlineOptions.connMaxLifetime,
	)
	if err != nil {
		return plugin.NewErrorPlugin(err)
	}
	connectTimeout, err := time.ParseDuration(cmdlineOptions.connectTimeout)
	if err != nil {
		return plugin.NewErrorPlugin(err)
	}
	p, err := NewWithOptions(
		WithHost(cmdlineOptions.host),
		WithPort(uint(cmdlineOptions.port)),
		WithUser(cmdlineOptions.user),
		WithPassword(cmdlineOptions.password),
		WithDatabase(cmdlineOptions.database),
		WithSSLMode(cmdlineOptions.sslMode),
		WithTimeZone(cmdlineOptions.timeZone),
		WithDSN(cmdlineOptions.dsn),
		WithPool(pool),
		WithConnectTimeout(connectTimeout),
	)
	if err != nil {
		return plugin.NewErrorPlugin(err)
	}
	return p
}
