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
	"errors"
	"fmt"
)

// Authorization errors
var (
	ErrUnauthorized   = errors.New("signer is not authorized")
	ErrSelfDelegation = errors.New("cannot delegate to self")
)

// State-precondition errors
var (
	ErrAlreadyInitialized     = errors.New("governance already initialized")
	ErrNotInitialized         = errors.New("governance not initialized")
	ErrAlreadyRegistered      = errors.New("user already registered")
	ErrProposalNotActive      = errors.New("proposal is not active")
	ErrAlreadyVoted           = errors.New("user has already voted on this proposal")
	ErrTooEarly               = errors.New("voting period has not ended yet")
	ErrVotingPeriodNotStarted = errors.New("voting period has not started yet")
	ErrVotingPeriodEnded      = errors.New("voting period has ended")
	ErrDelegationCycle        = errors.New("delegation would create a cycle")
	ErrArithmeticOverflow     = errors.New("arithmetic overflow")
)

// Input-validation errors
var (
	ErrInvalidPower       = errors.New("base power must be greater than zero")
	ErrInvalidDuration    = errors.New("invalid voting duration")
	ErrDescriptionTooLong = errors.New("description is empty or too long")
	ErrTitleTooLong       = errors.New("title is too long")
	ErrInsufficientPower  = errors.New("insufficient voting power")
	ErrInvalidChoice      = errors.New("invalid vote choice")
	ErrInvalidIdentity    = errors.New("invalid identity")
)

// Not-found errors
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrProposalNotFound   = errors.New("proposal not found")
	ErrVoteRecordNotFound = errors.New("vote record not found")
)

// ErrorClass groups governance errors by how a caller can react to them
type ErrorClass int

const (
	ErrorClassInternal ErrorClass = iota
	ErrorClassAuthorization
	ErrorClassStatePrecondition
	ErrorClassInputValidation
	ErrorClassNotFound
)

func (c ErrorClass) String() string {
	switch c {
	case ErrorClassAuthorization:
		return "authorization"
	case ErrorClassStatePrecondition:
		return "state-precondition"
	case ErrorClassInputValidation:
		return "input-validation"
	case ErrorClassNotFound:
		return "not-found"
	default:
		return "internal"
	}
}

// errorClasses is checked in order, so an error wrapping several sentinels
// gets the class of the earliest one
var errorClasses = []struct {
	sentinel error
	class    ErrorClass
}{
	{ErrUnauthorized, ErrorClassAuthorization},
	{ErrSelfDelegation, ErrorClassAuthorization},
	{ErrAlreadyInitialized, ErrorClassStatePrecondition},
	{ErrNotInitialized, ErrorClassStatePrecondition},
	{ErrAlreadyRegistered, ErrorClassStatePrecondition},
	{ErrProposalNotActive, ErrorClassStatePrecondition},
	{ErrAlreadyVoted, ErrorClassStatePrecondition},
	{ErrTooEarly, ErrorClassStatePrecondition},
	{ErrVotingPeriodNotStarted, ErrorClassStatePrecondition},
	{ErrVotingPeriodEnded, ErrorClassStatePrecondition},
	{ErrDelegationCycle, ErrorClassStatePrecondition},
	{ErrArithmeticOverflow, ErrorClassStatePrecondition},
	{ErrInvalidPower, ErrorClassInputValidation},
	{ErrInvalidDuration, ErrorClassInputValidation},
	{ErrDescriptionTooLong, ErrorClassInputValidation},
	{ErrTitleTooLong, ErrorClassInputValidation},
	{ErrInsufficientPower, ErrorClassInputValidation},
	{ErrInvalidChoice, ErrorClassInputValidation},
	{ErrInvalidIdentity, ErrorClassInputValidation},
	{ErrUserNotFound, ErrorClassNotFound},
	{ErrProposalNotFound, ErrorClassNotFound},
	{ErrVoteRecordNotFound, ErrorClassNotFound},
}

// ClassOf returns the class of the governance sentinel in the error chain, or
// ErrorClassInternal
func ClassOf(err error) ErrorClass {
	if err == nil {
		return ErrorClassInternal
	}
	for _, entry := range errorClasses {
		if errors.Is(err, entry.sentinel) {
			return entry.class
		}
	}
	return ErrorClassInternal
}

// ProposalStateError reports a failure caused by the current status of a
// proposal
type ProposalStateError struct {
	Err        error
	ProposalID uint64
	Status     ProposalStatus
}

func (e *ProposalStateError) Error() string {
	return fmt.Sprintf(
		"proposal %d (%s): %s",
		e.ProposalID,
		e.Status,
		e.Err,
	)
}

func (e *ProposalStateError) Unwrap() error {
	return e.Err
}

func proposalStateError(
	err error,
	proposalId uint64,
	status ProposalStatus,
) error {
	return &ProposalStateError{
		Err:        err,
		ProposalID: proposalId,
		Status:     status,
	}
}
