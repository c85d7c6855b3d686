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

package database

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/blinklabs-io/tally/database/types"
)

// Txn spans the metadata store and the event journal. A read-write Txn
// commits the metadata store first and stamps both stores with the same
// commit timestamp, which Open() compares to detect a torn commit.
type Txn struct {
	db          *Database
	blobTxn     types.Txn
	metadataTxn types.Txn
	onCommit    []func()
	lock        sync.Mutex
	finished    bool
	readWrite   bool
}

func NewTxn(db *Database, readWrite bool) *Txn {
	t := &Txn{db: db, readWrite: readWrite}
	if bs := db.Blob(); bs != nil {
		t.blobTxn = bs.NewTransaction(readWrite)
	}
	if ms := db.Metadata(); ms != nil {
		t.metadataTxn = ms.Transaction(readWrite)
	}
	return t
}

func (t *Txn) DB() *Database {
	return t.db
}

func (t *Txn) Metadata() types.Txn {
	return t.metadataTxn
}

func (t *Txn) Blob() types.Txn {
	return t.blobTxn
}

func (t *Txn) ReadWrite() bool {
	return t.readWrite
}

// OnCommit registers fn to run after both stores have committed. Hooks are
// dropped on rollback and run in registration order.
func (t *Txn) OnCommit(fn func()) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.onCommit = append(t.onCommit, fn)
}

// Do runs fn and commits, or rolls back if fn returns an error
func (t *Txn) Do(fn func(*Txn) error) error {
	if err := fn(t); err != nil {
		if rbErr := t.Rollback(); rbErr != nil {
			return fmt.Errorf(
				"rollback failed: %w: original error: %w",
				rbErr,
				err,
			)
		}
		return err
	}
	if err := t.Commit(); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}
	return nil
}

func (t *Txn) Commit() error {
	t.lock.Lock()
	if t.finished {
		t.lock.Unlock()
		return nil
	}
	var err error
	switch {
	case !t.readWrite:
		err = t.rollback()
	case t.blobTxn == nil && t.metadataTxn == nil:
		t.finished = true
		err = types.ErrNoStoreAvailable
	default:
		err = t.commitStores()
	}
	hooks := t.onCommit
	t.onCommit = nil
	t.lock.Unlock()
	if err != nil || !t.readWrite {
		return err
	}
	for _, fn := range hooks {
		fn()
	}
	return nil
}

// commitStores must be called with the lock held. Metadata commits first, so
// the journal never holds entries for state that did not commit.
func (t *Txn) commitStores() error {
	defer func() { t.finished = true }()
	if t.blobTxn != nil && t.metadataTxn != nil {
		if err := t.db.updateCommitTimestamp(t, time.Now().UnixMilli()); err != nil {
			t.rollbackStores()
			return fmt.Errorf("failed to update commit timestamp: %w", err)
		}
	}
	if t.metadataTxn != nil {
		if err := t.metadataTxn.Commit(); err != nil {
			if t.blobTxn != nil {
				_ = t.blobTxn.Rollback()
			}
			return fmt.Errorf("metadata commit failed: %w", err)
		}
	}
	if t.blobTxn == nil {
		return nil
	}
	if err := t.blobTxn.Commit(); err != nil {
		// The metadata store is ahead of the journal now. The commit
		// timestamps disagree and the next Open() reports it.
		t.db.logger.Error(
			"partial commit: metadata committed, journal failed",
			"component", "database",
			"error", err,
		)
		_ = t.blobTxn.Rollback()
		return fmt.Errorf(
			"partial commit: journal commit failed after metadata commit: %w",
			err,
		)
	}
	return nil
}

func (t *Txn) Rollback() error {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.rollback()
}

func (t *Txn) rollback() error {
	if t.finished {
		return nil
	}
	t.onCommit = nil
	err := t.rollbackStores()
	t.finished = true
	return err
}

func (t *Txn) rollbackStores() error {
	var errs []error
	if t.blobTxn != nil {
		if err := t.blobTxn.Rollback(); err != nil {
			errs = append(errs, fmt.Errorf("journal rollback: %w", err))
		}
	}
	if t.metadataTxn != nil {
		if err := t.metadataTxn.Rollback(); err != nil {
			errs = append(errs, fmt.Errorf("metadata rollback: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Release rolls back anything not yet committed. It is meant for defer.
func (t *Txn) Release() {
	if err := t.Rollback(); err != nil {
		t.db.logger.Debug(
			"transaction release failed",
			"component", "database",
			"error", err,
			"read_write", t.readWrite,
		)
	}
}
