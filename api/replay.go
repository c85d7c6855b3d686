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

package api

import (
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/blinklabs-io/tally/governance"
)

const DefaultReplayCacheSize = 1 << 16

var ErrReplayedSignature = errors.New("request signature already used")

// replayGuard remembers accepted signatures for as long as their timestamp
// could still pass the skew check, so each signed request is applied once
type replayGuard struct {
	seen *expirable.LRU[string, struct{}]
	mu   sync.Mutex
}

func newReplayGuard(size int, maxSkew time.Duration) *replayGuard {
	// A timestamp is accepted from now-skew to now+skew
	ttl := 2*maxSkew + time.Second
	return &replayGuard{
		seen: expirable.NewLRU[string, struct{}](size, nil, ttl),
	}
}

// check records the signature and returns ErrReplayedSignature if it was
// already seen
func (g *replayGuard) check(signer governance.Identity, sig []byte) error {
	key := signer.String() + ":" + hex.EncodeToString(sig)
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.seen.Contains(key) {
		return ErrReplayedSignature
	}
	g.seen.Add(key, struct{}{})
	return nil
}
