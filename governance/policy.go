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
	"fmt"
	"math/bits"
	"strings"
)

// PolicyKind selects how votes are weighted
type PolicyKind uint8

const (
	PolicyQuadratic PolicyKind = iota + 1
	PolicyBinary
)

func ParsePolicyKind(s string) (PolicyKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "quadratic":
		return PolicyQuadratic, nil
	case "binary":
		return PolicyBinary, nil
	}
	return 0, fmt.Errorf("unknown voting policy: %q", s)
}

func (k PolicyKind) String() string {
	switch k {
	case PolicyQuadratic:
		return "quadratic"
	case PolicyBinary:
		return "binary"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// VotingPolicy is the vote contract in effect for a deployment. Quadratic
// votes weigh committed power by its integer square root; binary votes count
// one per voter.
type VotingPolicy struct {
	Kind PolicyKind
	// QuadraticGuard records a VoteRecord for quadratic votes so a voter can
	// only vote once per proposal. Binary votes are always guarded.
	QuadraticGuard bool
	// ReputationGain is added to a voter's reputation on each quadratic vote
	ReputationGain uint64
}

func QuadraticPolicy(guard bool, reputationGain uint64) VotingPolicy {
	return VotingPolicy{
		Kind:           PolicyQuadratic,
		QuadraticGuard: guard,
		ReputationGain: reputationGain,
	}
}

func BinaryPolicy() VotingPolicy {
	return VotingPolicy{Kind: PolicyBinary}
}

func (p VotingPolicy) guarded() bool {
	switch p.Kind {
	case PolicyBinary:
		return true
	case PolicyQuadratic:
		return p.QuadraticGuard
	}
	return true
}

func (p VotingPolicy) validate() error {
	switch p.Kind {
	case PolicyQuadratic, PolicyBinary:
		return nil
	}
	return fmt.Errorf("unknown voting policy: %s", p.Kind)
}

// QuadraticWeight returns floor(sqrt(power))
func QuadraticWeight(power uint64) uint64 {
	if power < 2 {
		return power
	}
	// Newton's method from an initial guess above the root
	x := uint64(1) << ((bits.Len64(power) + 1) / 2)
	for {
		y := (x + power/x) / 2
		if y >= x {
			return x
		}
		x = y
	}
}

const (
	DefaultMaxDescriptionLength = 1024
	DefaultMaxTitleLength       = 128
	DefaultReputationGain       = 1
)

// Settings holds the deployment profile for an Engine
type Settings struct {
	Policy                  VotingPolicy
	MaxDescriptionLength    int
	MaxTitleLength          int
	EnforceDeadline         bool
	DetectDelegationCycles  bool
	RestrictFinalizeToAdmin bool
}

func DefaultSettings() Settings {
	return Settings{
		Policy:                 QuadraticPolicy(true, DefaultReputationGain),
		MaxDescriptionLength:   DefaultMaxDescriptionLength,
		MaxTitleLength:         DefaultMaxTitleLength,
		DetectDelegationCycles: true,
	}
}

func (s Settings) validate() error {
	if err := s.Policy.validate(); err != nil {
		return err
	}
	if s.MaxDescriptionLength <= 0 {
		return fmt.Errorf(
			"invalid max description length: %d",
			s.MaxDescriptionLength,
		)
	}
	if s.MaxTitleLength < 0 {
		return fmt.Errorf("invalid max title length: %d", s.MaxTitleLength)
	}
	return nil
}
