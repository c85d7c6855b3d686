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

package postgres

import (
	"testing"
	"time"

	"github.com/blinklabs-io/tally/database/plugin"
	"github.com/blinklabs-io/tally/database/plugin/metadata/internal/gormstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	d, err := NewWithOptions()
	require.NoError(t, err)
	assert.Equal(t, DefaultHost, d.host)
	assert.Equal(t, uint(DefaultPort), d.port)
	assert.Equal(t, DefaultUser, d.user)
	assert.Equal(t, DefaultDatabase, d.database)
	assert.Equal(t, gormstore.DefaultPoolConfig(), d.pool)
	assert.Equal(t, DefaultConnectTimeout, d.connectTimeout)
	assert.Equal(t, DefaultSSLMode, d.sslMode)
	assert.NotNil(t, d.logger)
}

func TestConnString(t *testing.T) {
	d, err := NewWithOptions(
		WithHost("db.example"),
		WithPort(6543),
		WithUser("tally"),
		WithPassword("secret"),
		WithDatabase("governance"),
		WithSSLMode("require"),
		WithTimeZone("UTC"),
	)
	require.NoError(t, err)
	assert.Equal(
		t,
		"host=db.example user=tally dbname=governance port=6543 sslmode=require password=secret TimeZone=UTC connect_timeout=10",
		d.connString(),
	)

	d, err = NewWithOptions(
		WithHost("ignored"),
		WithDSN("  postgres://u:p@h:5432/db  "),
	)
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@h:5432/db", d.connString())
}

func TestCloseBeforeStart(t *testing.T) {
	d, err := NewWithOptions()
	require.NoError(t, err)
	require.NoError(t, d.Close())
}

func TestRegistered(t *testing.T) {
	p := plugin.GetPlugin(plugin.PluginTypeMetadata, "postgres")
	require.NotNil(t, p)
	_, ok := p.(*MetadataStorePostgres)
	assert.True(t, ok)
}

func TestPoolOptions(t *testing.T) {
	pool := gormstore.PoolConfig{MaxOpenConns: 8, MaxIdleConns: 2, ConnMaxLifetime: time.Minute}
	d, err := NewWithOptions(WithPool(pool), WithConnectTimeout(3*time.Second))
	require.NoError(t, err)
	assert.Equal(t, pool, d.pool)
	assert.Equal(t, 3*time.Second, d.connectTimeout)

	_, err = NewWithOptions(WithPool(gormstore.PoolConfig{MaxOpenConns: 1, MaxIdleConns: 2}))
	require.Error(t, err)
	_, err = NewWithOptions(WithConnectTimeout(-time.Second))
	require.Error(t, err)
}

func TestNewFromCmdlineOptions(t *testing.T) {
	t.Cleanup(initCmdlineOptions)
	set := func(name string, value any) {
		require.NoError(t, plugin.SetPluginOption(plugin.PluginTypeMetadata, "postgres", name, value))
	}
	set("max-open-conns", 12)
	set("max-idle-conns", uint64(4))
	set("conn-max-lifetime", "15m")
	set("connect-timeout", "2s")
	d, ok := NewFromCmdlineOptions().(*MetadataStorePostgres)
	require.True(t, ok)
	assert.Equal(t, gormstore.PoolConfig{MaxOpenConns: 12, MaxIdleConns: 4, ConnMaxLifetime: 15 * time.Minute}, d.pool)
	assert.Equal(t, 2*time.Second, d.connectTimeout)

	set("max-idle-conns", 20)
	assert.IsType(t, &plugin.ErrorPlugin{}, NewFromCmdlineOptions())
	set("max-idle-conns", 4)
	set("connect-timeout", "whenever")
	assert.IsType(t, &plugin.ErrorPlugin{}, NewFromCmdlineOptions())
}
