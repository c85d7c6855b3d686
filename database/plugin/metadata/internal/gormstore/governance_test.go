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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newDryRunStore builds a postgres store that renders SQL without a server
func newDryRunStore(t *testing.T) (*Store, *gorm.DB, *string) {
	t.Helper()
	db, err := gorm.Open(
		postgres.Open("host=localhost user=tally dbname=tally sslmode=disable"),
		&gorm.Config{
			DryRun:               true,
			DisableAutomaticPing: true,
			Logger:               gormlogger.Discard,
		},
	)
	require.NoError(t, err)
	var lastSQL string
	require.NoError(t, db.Callback().Query().After("gorm:query").Register(
		"tally:capture_sql",
		func(tx *gorm.DB) { lastSQL = tx.Statement.SQL.String() },
	))
	s := &Store{
		db:       db,
		rowLocks: db.Dialector.Name() != "sqlite",
	}
	return s, db, &lastSQL
}

func TestGovernanceConfigRowLock(t *testing.T) {
	s, db, lastSQL := newDryRunStore(t)
	require.True(t, s.rowLocks)

	testDefs := []struct {
		name   string
		txn    *Txn
		locked bool
	}{
		{"read-write", &Txn{db: db, readWrite: true}, true},
		{"read-only", &Txn{db: db}, false},
	}
	for _, test := range testDefs {
		t.Run(test.name, func(t *testing.T) {
			_, err := s.GetGovernanceConfig(test.txn)
			require.NoError(t, err)
			if test.locked {
				assert.Contains(t, *lastSQL, "FOR UPDATE")
			} else {
				assert.NotContains(t, *lastSQL, "FOR UPDATE")
			}
		})
	}

	_, err := s.GetGovernanceConfig(nil)
	require.NoError(t, err)
	assert.NotContains(t, *lastSQL, "FOR UPDATE")

	s.rowLocks = false
	_, err = s.GetGovernanceConfig(&Txn{db: db, readWrite: true})
	require.NoError(t, err)
	assert.NotContains(t, *lastSQL, "FOR UPDATE")
}
