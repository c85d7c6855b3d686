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

package governance

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/blinklabs-io/tally/database"
	"github.com/blinklabs-io/tally/event"
)

const (
	InitializedEventType       event.EventType = "governance.initialized"
	UserRegisteredEventType    event.EventType = "governance.user_registered"
	ProposalCreatedEventType   event.EventType = "governance.proposal_created"
	DelegationEventType        event.EventType = "governance.delegation"
	VoteEventType              event.EventType = "governance.vote"
	ProposalFinalizedEventType event.EventType = "governance.proposal_finalized"
)

// EventTypes lists every event type emitted by the engine
var EventTypes = []event.EventType{
	InitializedEventType,
	UserRegisteredEventType,
	ProposalCreatedEventType,
	DelegationEventType,
	VoteEventType,
	ProposalFinalizedEventType,
}

// Every event payload carries the journal sequence it was stored under

type InitializedEvent struct {
	Admin Identity `json:"admin"`
	Seq   uint64   `json:"seq"`
}

type UserRegisteredEvent struct {
	Authority      Identity `json:"authority"`
	Key            string   `json:"key"`
	BasePower      uint64   `json:"basePower"`
	TotalBasePower uint64   `json:"totalBasePower"`
	Seq            uint64   `json:"seq"`
}

type ProposalCreatedEvent struct {
	Creator    Identity `json:"creator"`
	Key        string   `json:"key"`
	Title      string   `json:"title"`
	ProposalID uint64   `json:"proposalId"`
	StartTime  int64    `json:"startTime"`
	Deadline   int64    `json:"deadline"`
	Seq        uint64   `json:"seq"`
}

// DelegationEvent is emitted by delegate and undelegate. A nil DelegatedTo
// means the user undelegated.
type DelegationEvent struct {
	Delegator   Identity  `json:"delegator"`
	DelegatedTo *Identity `json:"delegatedTo"`
	Seq         uint64    `json:"seq"`
}

type VoteEvent struct {
	Voter      Identity   `json:"voter"`
	Key        string     `json:"key,omitempty"`
	ProposalID uint64     `json:"proposalId"`
	Weight     uint64     `json:"weight"`
	Seq        uint64     `json:"seq"`
	Choice     VoteChoice `json:"choice"`
}

type ProposalFinalizedEvent struct {
	ProposalID uint64         `json:"proposalId"`
	YesVotes   uint64         `json:"yesVotes"`
	NoVotes    uint64         `json:"noVotes"`
	Seq        uint64         `json:"seq"`
	Status     ProposalStatus `json:"status"`
}

func (e *InitializedEvent) JournalSeq() uint64       { return e.Seq }
func (e *UserRegisteredEvent) JournalSeq() uint64    { return e.Seq }
func (e *ProposalCreatedEvent) JournalSeq() uint64   { return e.Seq }
func (e *DelegationEvent) JournalSeq() uint64        { return e.Seq }
func (e *VoteEvent) JournalSeq() uint64              { return e.Seq }
func (e *ProposalFinalizedEvent) JournalSeq() uint64 { return e.Seq }

func (e *InitializedEvent) setSeq(seq uint64)       { e.Seq = seq }
func (e *UserRegisteredEvent) setSeq(seq uint64)    { e.Seq = seq }
func (e *ProposalCreatedEvent) setSeq(seq uint64)   { e.Seq = seq }
func (e *DelegationEvent) setSeq(seq uint64)        { e.Seq = seq }
func (e *VoteEvent) setSeq(seq uint64)              { e.Seq = seq }
func (e *ProposalFinalizedEvent) setSeq(seq uint64) { e.Seq = seq }

type sequencedPayload interface {
	JournalSeq() uint64
	setSeq(uint64)
}

// JournalEvent is an event read back from the journal
type JournalEvent struct {
	Timestamp time.Time       `json:"timestamp"`
	Type      event.EventType `json:"type"`
	Data      json.RawMessage `json:"data"`
	Seq       uint64          `json:"seq"`
}

// Decode returns the typed payload of the event
func (j *JournalEvent) Decode() (any, error) {
	var payload any
	switch j.Type {
	case InitializedEventType:
		payload = &InitializedEvent{}
	case UserRegisteredEventType:
		payload = &UserRegisteredEvent{}
	case ProposalCreatedEventType:
		payload = &ProposalCreatedEvent{}
	case DelegationEventType:
		payload = &DelegationEvent{}
	case VoteEventType:
		payload = &VoteEvent{}
	case ProposalFinalizedEventType:
		payload = &ProposalFinalizedEvent{}
	default:
		return nil, fmt.Errorf("unknown event type: %s", j.Type)
	}
	if err := json.Unmarshal(j.Data, payload); err != nil {
		return nil, fmt.Errorf("decode %s event: %w", j.Type, err)
	}
	return payload, nil
}

// pendingEvents collects the events of one operation. They are journaled in
// the operation's transaction and published after it commits.
type pendingEvents struct {
	events []event.Event
}

func (p *pendingEvents) add(evtType event.EventType, payload sequencedPayload) {
	p.events = append(p.events, event.NewEvent(evtType, payload))
}

func (p *pendingEvents) journal(db *database.Database, txn *database.Txn) error {
	for _, evt := range p.events {
		payload, ok := evt.Data.(sequencedPayload)
		if !ok {
			return fmt.Errorf("event %s has no journal sequence", evt.Type)
		}
		seq, err := db.JournalSeq(txn)
		if err != nil {
			return err
		}
		// The sequence is part of the stored payload
		payload.setSeq(seq + 1)
		data, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("encode %s event: %w", evt.Type, err)
		}
		stored, err := db.AppendJournal(data, txn)
		if err != nil {
			return err
		}
		if stored != seq+1 {
			return fmt.Errorf(
				"journal sequence moved during append: expected %d, got %d",
				seq+1,
				stored,
			)
		}
	}
	return nil
}

func journalEventFromEntry(entry database.JournalEntry) (*JournalEvent, error) {
	ret := &JournalEvent{Seq: entry.Seq}
	if err := json.Unmarshal(entry.Data, ret); err != nil {
		return nil, fmt.Errorf("decode journal entry %d: %w", entry.Seq, err)
	}
	// The stored envelope does not carry the sequence at the top level
	ret.Seq = entry.Seq
	return ret, nil
}
