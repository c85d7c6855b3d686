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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultPoolConfig().Validate())
	assert.NoError(t, PoolConfig{}.Validate())
	assert.NoError(t, PoolConfig{MaxIdleConns: 50}.Validate(), "unlimited open connections")

	testDefs := []struct {
		name string
		pool PoolConfig
	}{
		{"negative open", PoolConfig{MaxOpenConns: -1}},
		{"negative idle", PoolConfig{MaxIdleConns: -1}},
		{"negative lifetime", PoolConfig{ConnMaxLifetime: -time.Second}},
		{"idle above open", PoolConfig{MaxOpenConns: 5, MaxIdleConns: 6}},
	}
	for _, test := range testDefs {
		t.Run(test.name, func(t *testing.T) {
			assert.Error(t, test.pool.Validate())
		})
	}
}

func TestParsePool(t *testing.T) {
	pool, err := ParsePool(20, 5, "30m")
	require.NoError(t, err)
	assert.Equal(t, PoolConfig{MaxOpenConns: 20, MaxIdleConns: 5, ConnMaxLifetime: 30 * time.Minute}, pool)

	_, err = ParsePool(20, 5, "forever")
	assert.ErrorContains(t, err, "connection lifetime")
	_, err = ParsePool(2, 5, "1h")
	assert.Error(t, err)
	_, err = ParsePool(1<<40, 0, "1h")
	assert.ErrorContains(t, err, "out of range")
}
