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
	"gorm.io/gorm"
)

// Txn is a metadata transaction backed by a gorm transaction
type Txn struct {
	db        *gorm.DB
	beginErr  error
	finished  bool
	readWrite bool
}

func newTxn(db *gorm.DB, readWrite bool) *Txn {
	return &Txn{db: db, readWrite: readWrite}
}

func newFailedTxn(err error) *Txn {
	return &Txn{beginErr: err}
}

// MetadataTxn returns the gorm handle for the transaction
func (t *Txn) MetadataTxn() *gorm.DB {
	return t.db
}

func (t *Txn) Commit() error {
	if t.beginErr != nil {
		return t.beginErr
	}
	if t.finished {
		return nil
	}
	t.finished = true
	if t.db == nil {
		return nil
	}
	return t.db.Commit().Error
}

func (t *Txn) Rollback() error {
	if t.beginErr != nil {
		return t.beginErr
	}
	if t.finished {
		return nil
	}
	t.finished = true
	if t.db == nil {
		return nil
	}
	return t.db.Rollback().Error
}
